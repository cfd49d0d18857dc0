// Package notify is an in-process publish/subscribe channel used to announce
// completion events across otherwise independent screens.
package notify

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type subscription[E any] struct {
	id uint64
	fn func(E)
}

// Channel delivers each published event synchronously to the listeners
// subscribed at publish time, in subscription order. Events are not
// buffered and late subscribers never see earlier events.
type Channel[E any] struct {
	name   string
	logger *zap.Logger

	mu        sync.Mutex
	nextID    uint64
	listeners []subscription[E]
}

func New[E any](name string, logger *zap.Logger) *Channel[E] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel[E]{name: name, logger: logger}
}

// Subscribe registers fn and returns a handle that removes it. Calling the
// handle more than once is harmless.
func (c *Channel[E]) Subscribe(fn func(E)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, subscription[E]{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { c.remove(id) })
	}
}

func (c *Channel[E]) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, sub := range c.listeners {
		if sub.id == id {
			c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
			return
		}
	}
}

// Publish may be called from inside a listener. Subscriptions added or
// removed during delivery take effect from the next Publish.
func (c *Channel[E]) Publish(event E) {
	c.mu.Lock()
	listeners := append([]subscription[E](nil), c.listeners...)
	c.mu.Unlock()

	for _, sub := range listeners {
		c.deliver(sub, event)
	}
}

func (c *Channel[E]) deliver(sub subscription[E], event E) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("listener panicked",
				zap.String("channel", c.name),
				zap.Uint64("subscription", sub.id),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	sub.fn(event)
}

// Len returns the number of current subscribers.
func (c *Channel[E]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}
