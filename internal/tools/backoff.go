package tools

import "time"

const (
	backoffInitial = 500 * time.Millisecond
	backoffMax     = 8 * time.Second
)

// backoff produces an exponential delay sequence for startup reconnect
// probes, capped at backoffMax.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

func (b *backoff) next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}
