// Package event is a synchronous observer list shared by the models.
package event

import "sync"

// List delivers values to subscribers in subscription order.
// Subscribers must not subscribe or unsubscribe from inside a callback.
type List[E any] struct {
	mu   sync.Mutex
	next int
	subs []sub[E]
}

type sub[E any] struct {
	id int
	fn func(E)
}

// Subscribe registers fn and returns a func that removes it.
func (l *List[E]) Subscribe(fn func(E)) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.next
	l.next++
	l.subs = append(l.subs, sub[E]{id: id, fn: fn})
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, s := range l.subs {
			if s.id == id {
				l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit calls every subscriber with e.
func (l *List[E]) Emit(e E) {
	l.mu.Lock()
	subs := l.subs
	l.mu.Unlock()
	for _, s := range subs {
		s.fn(e)
	}
}

// Len returns the number of subscribers.
func (l *List[E]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}
