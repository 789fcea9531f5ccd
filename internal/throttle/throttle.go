// Package throttle keeps short lived cooldown markers, used to stop the
// same address from being mailed over and over.
package throttle

import (
	"context"
	"time"
)

type Store interface {
	// Acquire reports whether key was free. A free key is held for ttl and
	// every further Acquire fails until it lapses.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
