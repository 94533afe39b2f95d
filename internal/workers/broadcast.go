package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"talkasaurus/internal/crypto"
	"talkasaurus/internal/queue"
)

// BroadcastWorker delivers one admin broadcast message per job. The recipient
// arrives sealed in the payload and is opened with the generation recorded at
// enqueue time.
type BroadcastWorker struct {
	keyring *crypto.Keyring
	sender  MessageSender
}

// NewBroadcastWorker creates a new broadcast worker
func NewBroadcastWorker(keyring *crypto.Keyring, sender MessageSender) *BroadcastWorker {
	return &BroadcastWorker{keyring: keyring, sender: sender}
}

// Handle processes one broadcast delivery job.
func (w *BroadcastWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload queue.BroadcastPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("bad broadcast payload: %w", err)
	}

	recipient, err := w.keyring.Open(crypto.ContextIdentity, payload.EncryptedRecipient, payload.KeyVersion)
	if err != nil {
		return fmt.Errorf("broadcast recipient: %w", err)
	}
	if err := w.sender.SendMessage(ctx, recipient, payload.Message); err != nil {
		return fmt.Errorf("broadcast send: %w", err)
	}
	return nil
}
