package timer

import (
	"context"

	"github.com/osa030/flowshift/internal/domain/record"
)

// Recorder persists completed focus sessions.
type Recorder interface {
	RecordCompletedSession(ctx context.Context, session record.CompletedSession) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, session record.CompletedSession) error

// RecordCompletedSession calls f.
func (f RecorderFunc) RecordCompletedSession(ctx context.Context, session record.CompletedSession) error {
	return f(ctx, session)
}
