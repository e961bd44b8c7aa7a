package settings

import "context"

type Store interface {
	// Get returns the settings, or an error wrapping ErrNotInitialized.
	Get(ctx context.Context) (*Settings, error)
	// Create stores the settings once. A second call fails with an error
	// wrapping ErrAlreadyInitialized.
	Create(ctx context.Context, s *Settings) error
	Update(ctx context.Context, s *Settings) error

	// Next returns the current value of the counter and advances it by one.
	// A counter that was never used starts at 0.
	Next(ctx context.Context, seq Sequence) (uint64, error)
	// Peek returns the current value of the counter without advancing it.
	Peek(ctx context.Context, seq Sequence) (uint64, error)
}
