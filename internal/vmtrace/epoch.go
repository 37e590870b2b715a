package vmtrace

import (
	"errors"
	"sync/atomic"
)

var ErrAlreadyAttached = errors.New("attach epoch already set")

// Epoch is the monotonic timestamp captured at attach. It is written once and
// read by every callback afterwards.
type Epoch struct {
	value atomic.Pointer[int64]
}

// Set publishes t as the epoch. Only the first call succeeds.
func (e *Epoch) Set(t int64) error {
	if !e.value.CompareAndSwap(nil, &t) {
		return ErrAlreadyAttached
	}

	return nil
}

// Since returns now minus the epoch, or zero when the epoch is not set.
func (e *Epoch) Since(now int64) int64 {
	t := e.value.Load()
	if t == nil {
		return 0
	}

	return now - *t
}

// IsSet reports whether the epoch has been published.
func (e *Epoch) IsSet() bool {
	return e.value.Load() != nil
}
