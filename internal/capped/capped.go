// Package capped provides a bounded, most-recent-first list that reports
// what it evicts.
package capped

import "sync"

// List keeps at most Cap values, newest first. It is safe for concurrent use.
type List[T any] struct {
	mu      sync.RWMutex
	cap     int
	items   []T
	onEvict func(T)
}

// New returns a list holding at most capacity values. onEvict, when non-nil,
// is called for each value pushed out by an insertion, outside the lock.
func New[T any](capacity int, onEvict func(T)) *List[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &List[T]{cap: capacity, onEvict: onEvict}
}

// Push prepends values in the order given, so the last value ends up first,
// and returns the evicted oldest values.
func (l *List[T]) Push(values ...T) []T {
	l.mu.Lock()
	evicted := l.pushLocked(values)
	l.mu.Unlock()

	if l.onEvict != nil {
		for _, v := range evicted {
			l.onEvict(v)
		}
	}
	return evicted
}

func (l *List[T]) pushLocked(values []T) []T {
	if len(values) == 0 {
		return nil
	}
	next := make([]T, 0, min(len(values)+len(l.items), l.cap+len(values)))
	for i := len(values) - 1; i >= 0; i-- {
		next = append(next, values[i])
	}
	next = append(next, l.items...)

	var evicted []T
	if len(next) > l.cap {
		evicted = append(evicted, next[l.cap:]...)
		next = next[:l.cap]
	}
	l.items = next
	return evicted
}

// Items returns a copy of the values, newest first.
func (l *List[T]) Items() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]T(nil), l.items...)
}

// Len reports the number of values held.
func (l *List[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Update applies fn to the first value matching match and reports whether
// one was found. fn may modify the value in place.
func (l *List[T]) Update(match func(T) bool, fn func(*T) error) (T, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if match(l.items[i]) {
			candidate := l.items[i]
			if err := fn(&candidate); err != nil {
				return l.items[i], true, err
			}
			l.items[i] = candidate
			return candidate, true, nil
		}
	}
	var zero T
	return zero, false, nil
}
