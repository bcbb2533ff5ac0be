package archive

import (
	"context"

	"github.com/claude/grouplift/internal/rotation"
)

// Sink receives finished sessions. Deliveries are retried, so
// implementations must tolerate seeing the same archive key more than once.
type Sink interface {
	ArchiveSession(ctx context.Context, view rotation.View) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, view rotation.View) error

// ArchiveSession calls f.
func (f SinkFunc) ArchiveSession(ctx context.Context, view rotation.View) error {
	return f(ctx, view)
}

// Chain delivers to each sink in order and stops at the first error.
type Chain []Sink

// ArchiveSession implements Sink.
func (c Chain) ArchiveSession(ctx context.Context, view rotation.View) error {
	for _, s := range c {
		if err := s.ArchiveSession(ctx, view); err != nil {
			return err
		}
	}
	return nil
}
