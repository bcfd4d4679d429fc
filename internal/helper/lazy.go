package helper

import (
	"sync"
	"sync/atomic"
)

// Lazy builds a value on first use and hands the same value (or error) to
// every later caller.
type Lazy[T any] struct {
	once sync.Once
	done atomic.Bool
	init func() (T, error)
	val  T
	err  error
}

func NewLazy[T any](init func() (T, error)) *Lazy[T] {
	return &Lazy[T]{init: init}
}

// Get runs init at most once.
func (l *Lazy[T]) Get() (T, error) {
	l.once.Do(func() {
		l.val, l.err = l.init()
		l.done.Store(true)
	})
	return l.val, l.err
}

// Loaded returns the value only if init already ran and succeeded.
func (l *Lazy[T]) Loaded() (T, bool) {
	var zero T
	if !l.done.Load() || l.err != nil {
		return zero, false
	}
	return l.val, true
}
