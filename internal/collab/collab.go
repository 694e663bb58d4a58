// Package collab declares the narrow interfaces this service consumes
// from external collaborators: hosted text generation, embeddings,
// message delivery and identity lookup. None of them are implemented
// here beyond thin adapters; tests substitute fakes.
package collab

import "context"

// Generator produces text from a prompt. Output is semi-structured at
// best; callers must treat missing fields as recoverable.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder turns text into a similarity vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DeliveryTarget addresses one recipient in their chat/room.
type DeliveryTarget struct {
	ChatID      string
	RecipientID string
}

// Notifier delivers a message best-effort. Failures are logged and
// swallowed by callers; the workflow state is already persisted.
type Notifier interface {
	Deliver(ctx context.Context, target DeliveryTarget, message string) error
}

// Identity is what the directory knows about a user for display purposes.
type Identity struct {
	DisplayName string
	Username    string
}

// Directory resolves user ids to display identities.
type Directory interface {
	GetDisplayName(ctx context.Context, userID string) (Identity, error)
}
