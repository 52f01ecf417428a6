package domain

import "context"

// Transcriber turns WAV-encoded audio into text. Implementations return
// classified *Error values for upstream failures.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// EventPublisher forwards leak events to an external system. Publish failures
// are reported to the caller but never undo a meter update.
type EventPublisher interface {
	Publish(ctx context.Context, event LeakEvent) error
}
