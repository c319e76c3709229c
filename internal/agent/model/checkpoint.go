package model

import "context"

// CheckpointStore maps a thread id to the latest ConversationState of that thread.
type CheckpointStore interface {
	// Load returns the latest snapshot, or a fresh default state when the
	// thread has none. A miss is never an error.
	Load(ctx context.Context, threadID string) (*ConversationState, error)

	// Save overwrites the snapshot of the thread.
	Save(ctx context.Context, threadID string, state *ConversationState) error

	// Delete drops the snapshot so the next Load starts a new conversation.
	Delete(ctx context.Context, threadID string) error
}
