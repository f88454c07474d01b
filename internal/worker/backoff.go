package worker

import "time"

// Backoff grows the idle-poll delay geometrically up to a ceiling. Not safe
// for concurrent use; each loop owns its own instance.
type Backoff struct {
	base       time.Duration
	cap        time.Duration
	multiplier float64
	current    time.Duration
}

func NewBackoff(base, ceiling time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if ceiling < base {
		ceiling = base
	}
	return &Backoff{
		base:       base,
		cap:        ceiling,
		multiplier: 1.5,
		current:    base,
	}
}

// Next returns the delay for this empty poll and grows the next one.
func (b *Backoff) Next() time.Duration {
	d := b.current

	grown := time.Duration(float64(b.current) * b.multiplier)
	if grown > b.cap {
		grown = b.cap
	}
	b.current = grown

	return d
}

// Reset returns the delay to its base value; called after a successful claim.
func (b *Backoff) Reset() {
	b.current = b.base
}
