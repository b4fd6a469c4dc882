package event

import (
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/bundlr/internal/logging"
)

// Handler is a function that handles an event.
type Handler func(Event)

// wildcard is the key under which SubscribeAll handlers are stored.
const wildcard = "*"

type subscription struct {
	id      string
	pattern string // exact type, "*", or "category." prefix
	handler Handler
}

// Bus is a synchronous pub-sub event bus.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string][]subscription // pattern -> subscriptions
	nextID        atomic.Uint64
	logger        *logging.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used to report panicking handlers.
func WithLogger(logger *logging.Logger) BusOption {
	return func(b *Bus) {
		b.logger = logger
	}
}

// NewBus creates a new event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subscriptions: make(map[string][]subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logging.NopLogger()
	}
	return b
}

// Subscribe registers a handler for a specific event type.
// Returns a subscription ID that can be used to unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	return b.add(eventType, handler)
}

// SubscribeCategory registers a handler for every event whose type starts
// with category followed by a dot, e.g. "build" receives build.progress and
// build.done.
func (b *Bus) SubscribeCategory(category string, handler Handler) string {
	return b.add(strings.TrimSuffix(category, ".")+".", handler)
}

// SubscribeAll registers a handler for all event types.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.add(wildcard, handler)
}

func (b *Bus) add(pattern string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := "sub-" + strconv.FormatUint(b.nextID.Add(1), 10)
	b.subscriptions[pattern] = append(b.subscriptions[pattern], subscription{
		id:      id,
		pattern: pattern,
		handler: handler,
	})
	return id
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for pattern, subs := range b.subscriptions {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}
			rest := make([]subscription, 0, len(subs)-1)
			rest = append(rest, subs[:i]...)
			rest = append(rest, subs[i+1:]...)
			if len(rest) == 0 {
				delete(b.subscriptions, pattern)
			} else {
				b.subscriptions[pattern] = rest
			}
			return true
		}
	}
	return false
}

// Publish dispatches an event to all registered handlers on the caller's
// goroutine. Exact-type handlers run first, then category handlers, then
// SubscribeAll handlers; each group runs in registration order. A panicking
// handler is logged and skipped.
func (b *Bus) Publish(event Event) {
	eventType := event.EventType()

	b.mu.RLock()
	targets := make([]subscription, 0, len(b.subscriptions[eventType]))
	targets = append(targets, b.subscriptions[eventType]...)
	if dot := strings.IndexByte(eventType, '.'); dot >= 0 {
		targets = append(targets, b.subscriptions[eventType[:dot+1]]...)
	}
	targets = append(targets, b.subscriptions[wildcard]...)
	b.mu.RUnlock()

	for _, sub := range targets {
		b.safeCall(sub.handler, event)
	}
}

func (b *Bus) safeCall(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event_type", event.EventType(),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	handler(event)
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = make(map[string][]subscription)
}

// SubscriptionCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, subs := range b.subscriptions {
		count += len(subs)
	}
	return count
}
