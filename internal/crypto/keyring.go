package crypto

import (
	"errors"
	"fmt"
)

// Key derivation context labels. Each purpose gets an independent key from the
// same generation secret.
const (
	ContextIdentity     = "talkasaurus-identity"
	ContextMessage      = "talkasaurus-message"
	ContextReminder     = "talkasaurus-reminder"
	ContextInstructions = "talkasaurus-instructions"
)

// Keyring holds the append-only history of secret generations and the index of
// the generation used for new writes. Identity secrets feed the pseudonym HMAC;
// envelope secrets feed AEAD key derivation. Rotation appends a new generation
// and bumps the current index; older generations are never removed, so records
// written under them stay decryptable.
type Keyring struct {
	identitySecrets [][]byte
	envelopeSecrets [][]byte
	current         int
}

// NewKeyring validates and builds a keyring. It fails when the current version
// is out of bounds, when the two secret histories disagree in length, or when
// any generation secret is empty. These are startup-time configuration errors,
// never discovered lazily.
func NewKeyring(identitySecrets, envelopeSecrets []string, currentVersion int) (*Keyring, error) {
	if len(identitySecrets) == 0 || len(envelopeSecrets) == 0 {
		return nil, errors.New("keyring requires at least one secret generation")
	}
	if len(identitySecrets) != len(envelopeSecrets) {
		return nil, fmt.Errorf("mismatched secret history lengths: %d identity vs %d envelope",
			len(identitySecrets), len(envelopeSecrets))
	}
	if currentVersion < 0 || currentVersion >= len(envelopeSecrets) {
		return nil, fmt.Errorf("current key version %d out of range [0,%d)",
			currentVersion, len(envelopeSecrets))
	}

	k := &Keyring{current: currentVersion}
	for i, s := range identitySecrets {
		if s == "" {
			return nil, fmt.Errorf("identity secret for generation %d is empty", i)
		}
		k.identitySecrets = append(k.identitySecrets, []byte(s))
	}
	for i, s := range envelopeSecrets {
		if s == "" {
			return nil, fmt.Errorf("envelope secret for generation %d is empty", i)
		}
		k.envelopeSecrets = append(k.envelopeSecrets, []byte(s))
	}
	return k, nil
}

// CurrentVersion returns the generation used for new encryptions.
func (k *Keyring) CurrentVersion() int {
	return k.current
}

// Pseudonymize computes the pseudonym for rawID under the current generation.
func (k *Keyring) Pseudonymize(rawID string) string {
	return Pseudonymize(rawID, k.identitySecrets[k.current])
}

// Seal encrypts plaintext for the given context under the current generation
// and returns the envelope together with the version that produced it. The
// version must be persisted alongside the ciphertext.
func (k *Keyring) Seal(context, plaintext string) (string, int, error) {
	key := DeriveKey(k.envelopeSecrets[k.current], context)
	ct, err := Encrypt([]byte(plaintext), key)
	if err != nil {
		return "", 0, err
	}
	return ct, k.current, nil
}

// Open decrypts an envelope using the exact generation it was written under,
// regardless of what the current generation is.
func (k *Keyring) Open(context, ciphertext string, version int) (string, error) {
	if version < 0 || version >= len(k.envelopeSecrets) {
		return "", fmt.Errorf("unknown key version %d", version)
	}
	key := DeriveKey(k.envelopeSecrets[version], context)
	plaintext, err := Decrypt(ciphertext, key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
