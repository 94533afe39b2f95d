package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	nonceSize = 12
	tagSize   = 16
	keySize   = 32 // AES-256
)

// ErrTampered is returned when a ciphertext fails authentication or is
// structurally malformed. Decryption never returns partial plaintext.
var ErrTampered = errors.New("ciphertext failed authentication")

// Pseudonymize derives a deterministic, non-reversible stand-in for a raw
// external identifier using HMAC-SHA256. The same (rawID, secret) pair always
// produces the same pseudonym, across calls and across processes.
func Pseudonymize(rawID string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(rawID))
	return hex.EncodeToString(mac.Sum(nil))
}

// DeriveKey derives a 32-byte symmetric key from a secret and a context label
// using HKDF-SHA256. Distinct labels yield independent keys from the same
// secret, which keeps per-purpose ciphertexts separated.
func DeriveKey(secret []byte, context string) []byte {
	reader := hkdf.New(sha256.New, secret, nil, []byte(context))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		// HKDF-SHA256 can produce far more than 32 bytes; a short read here
		// means the universe is broken.
		panic(fmt.Sprintf("hkdf: %v", err))
	}
	return key
}

// Encrypt seals plaintext with AES-256-GCM under the given key and returns
// base64(nonce | tag | ciphertext). A fresh random nonce is generated per call.
func Encrypt(plaintext, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, nonceSize+tagSize+len(ct))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a base64(nonce | tag | ciphertext) envelope. Any tag mismatch
// or malformed input yields ErrTampered; there is no plaintext fallback.
func Decrypt(encoded string, key []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid encoding", ErrTampered)
	}
	if len(raw) < nonceSize+tagSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrTampered)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+tagSize]
	ct := raw[nonceSize+tagSize:]

	// GCM in the standard library expects the tag appended to the ciphertext.
	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTampered, err)
	}
	return plaintext, nil
}
