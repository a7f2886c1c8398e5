package realtime

import "time"

const (
	DefaultBackoffInitial = time.Second
	DefaultBackoffMax     = 30 * time.Second
)

// Backoff produces the reconnect delay sequence 1s, 2s, 4s ... capped at Max.
// It is not safe for concurrent use; each transport loop owns one.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	current time.Duration
}

func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = DefaultBackoffInitial
	}
	if max < initial {
		max = initial
	}
	return &Backoff{Initial: initial, Max: max}
}

// Next returns the delay before the next attempt and advances the sequence.
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.Initial
		return b.current
	}
	next := b.current * 2
	if next > b.Max || next <= 0 {
		next = b.Max
	}
	b.current = next
	return b.current
}

// Reset restarts the sequence after a successful connect.
func (b *Backoff) Reset() {
	b.current = 0
}
