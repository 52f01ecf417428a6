// Package broadcast fans leak events out to live subscribers.
//
// Broadcast snapshots the subscriber set under a read lock, sends to every
// subscriber with the lock released, and only then takes the write lock to
// drop the ones whose send failed. A slow or dead subscriber never blocks
// registration or other broadcasts, and one failure never stops delivery to
// the rest. Disconnects are expected and are not reported as errors.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/furzing/leakWhisperer/internal/domain"
)

// Subscriber is a live connection that accepts leak events.
type Subscriber interface {
	ID() string
	Send(ctx context.Context, event domain.LeakEvent) error
	Close() error
}

// Hub is the set of connected subscribers.
type Hub struct {
	mu          sync.RWMutex
	subs        map[string]Subscriber
	sendTimeout time.Duration
	logger      *slog.Logger

	// onChange, if set, is called with the subscriber count after every change.
	onChange func(n int)
}

// Option configures a Hub.
type Option func(*Hub)

// WithSendTimeout bounds each individual send. Zero disables the bound.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) { h.sendTimeout = d }
}

// WithCountObserver registers a callback for subscriber count changes.
func WithCountObserver(fn func(n int)) Option {
	return func(h *Hub) { h.onChange = fn }
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		subs:   make(map[string]Subscriber),
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a subscriber. A subscriber already registered under the same
// id is replaced and closed.
func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	old, exists := h.subs[s.ID()]
	h.subs[s.ID()] = s
	n := len(h.subs)
	h.mu.Unlock()

	if exists && old != s {
		_ = old.Close()
	}
	h.logger.Debug("subscriber registered", "subscriber_id", s.ID(), "subscribers", n)
	h.notify(n)
}

// Unregister removes and closes a subscriber. Unknown ids are ignored.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	s, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	n := len(h.subs)
	h.mu.Unlock()

	if !ok {
		return
	}
	_ = s.Close()
	h.logger.Debug("subscriber unregistered", "subscriber_id", id, "subscribers", n)
	h.notify(n)
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast sends event to every subscriber registered at call time and
// prunes the ones that fail. It returns the number of failed sends.
func (h *Hub) Broadcast(ctx context.Context, event domain.LeakEvent) int {
	h.mu.RLock()
	snapshot := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		snapshot = append(snapshot, s)
	}
	h.mu.RUnlock()

	var failed []Subscriber
	for _, s := range snapshot {
		if err := h.send(ctx, s, event); err != nil {
			h.logger.Debug("leak event send failed, dropping subscriber",
				"subscriber_id", s.ID(), "meter_id", event.MeterID, "error", err)
			failed = append(failed, s)
		}
	}
	if len(failed) == 0 {
		return 0
	}

	h.mu.Lock()
	for _, s := range failed {
		// A reconnect may have reused the id; only drop the failed instance.
		if cur, ok := h.subs[s.ID()]; ok && cur == s {
			delete(h.subs, s.ID())
		}
	}
	n := len(h.subs)
	h.mu.Unlock()

	for _, s := range failed {
		_ = s.Close()
	}
	h.notify(n)
	return len(failed)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]Subscriber)
	h.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
	h.notify(0)
}

func (h *Hub) send(ctx context.Context, s Subscriber, event domain.LeakEvent) error {
	if h.sendTimeout <= 0 {
		return s.Send(ctx, event)
	}
	ctx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()
	return s.Send(ctx, event)
}

func (h *Hub) notify(n int) {
	if h.onChange != nil {
		h.onChange(n)
	}
}
