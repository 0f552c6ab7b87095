// Package bus implements C13: a typed, in-process request/response and
// publish/subscribe bus used to decouple components that would otherwise
// need a direct import of each other (spec §9's "global event bus maps to
// typed channels with a central registry; no module-level mutable state").
// Every topic is addressed by name and carries a single Go type, enforced
// at registration/publish time via generics instead of a reflection-based
// dispatch table.
package bus

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoHandler is returned by Request when no handler is registered for a
// topic.
var ErrNoHandler = errors.New("bus: no handler registered for topic")

// ErrWrongType is returned when a topic is published, subscribed to, or
// requested with a Go type that doesn't match the type it was first used
// with. Topics are typed for their lifetime, not per-call.
var ErrWrongType = errors.New("bus: topic used with a different type than it was registered with")

// subscriber is one Subscribe call's delivery channel, closed when the
// caller cancels.
type subscriber struct {
	ch     chan any
	cancel chan struct{}
}

type topicState struct {
	sampleType string
	subs       []*subscriber
	handler    func(any) (any, error)
}

// Bus is a single process's event bus instance. The zero value is not
// usable; construct with New. Bus carries no package-level state — every
// caller holds its own instance, passed explicitly to whatever needs it
// (cmd/bywise wires one per node).
type Bus struct {
	mu     sync.Mutex
	topics map[string]*topicState
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{topics: make(map[string]*topicState)}
}

func typeName[T any]() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}

func (b *Bus) state(topic string, want string) (*topicState, error) {
	st, ok := b.topics[topic]
	if !ok {
		st = &topicState{sampleType: want}
		b.topics[topic] = st
		return st, nil
	}
	if st.sampleType != want {
		return nil, fmt.Errorf("%w: topic %q is %s, not %s", ErrWrongType, topic, st.sampleType, want)
	}
	return st, nil
}

// Publish fans payload out to every current Subscribe[T] caller on topic.
// Delivery is non-blocking per subscriber: a subscriber that isn't
// receiving doesn't stall the publisher or its siblings (buffered channel,
// drop-oldest on overflow), matching the gossip path's "don't let one slow
// consumer back up the rest" shape already used in netp2p.Dedup.
func Publish[T any](b *Bus, topic string, payload T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.state(topic, typeName[T]())
	if err != nil {
		return err
	}
	for _, s := range st.subs {
		select {
		case s.ch <- payload:
		default:
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- payload:
			default:
			}
		}
	}
	return nil
}

// Subscription is a live Subscribe[T] registration.
type Subscription[T any] struct {
	ch   <-chan T
	stop func()
}

// C returns the subscription's delivery channel.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription[T]) Close() { s.stop() }

// Subscribe registers for every future Publish[T] on topic. The returned
// channel is buffered (capacity 8) and drops the oldest pending value if a
// consumer falls behind rather than blocking the publisher.
func Subscribe[T any](b *Bus, topic string) (*Subscription[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.state(topic, typeName[T]())
	if err != nil {
		return nil, err
	}

	raw := make(chan any, 8)
	sub := &subscriber{ch: raw, cancel: make(chan struct{})}
	st.subs = append(st.subs, sub)

	typed := make(chan T, 8)
	go func() {
		for {
			select {
			case v, ok := <-raw:
				if !ok {
					close(typed)
					return
				}
				select {
				case typed <- v.(T):
				default:
					select {
					case <-typed:
					default:
					}
					select {
					case typed <- v.(T):
					default:
					}
				}
			case <-sub.cancel:
				close(typed)
				return
			}
		}
	}()

	stopOnce := sync.Once{}
	stop := func() {
		stopOnce.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			close(sub.cancel)
			for i, s := range st.subs {
				if s == sub {
					st.subs = append(st.subs[:i], st.subs[i+1:]...)
					break
				}
			}
		})
	}

	return &Subscription[T]{ch: typed, stop: stop}, nil
}

// Handle registers fn as the sole responder for topic's request/response
// pairs. Registering a second handler for the same topic replaces the
// first, mirroring how a component restart re-registers its handler.
func Handle[Req, Resp any](b *Bus, topic string, fn func(Req) (Resp, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	want := typeName[Req]() + "->" + typeName[Resp]()
	st, err := b.state(topic, want)
	if err != nil {
		return err
	}
	st.handler = func(req any) (any, error) {
		return fn(req.(Req))
	}
	return nil
}

// Request calls topic's registered handler synchronously and returns its
// response. Returns ErrNoHandler if nothing has called Handle for topic.
func Request[Req, Resp any](b *Bus, topic string, req Req) (Resp, error) {
	var zero Resp
	b.mu.Lock()
	want := typeName[Req]() + "->" + typeName[Resp]()
	st, err := b.state(topic, want)
	if err != nil {
		b.mu.Unlock()
		return zero, err
	}
	handler := st.handler
	b.mu.Unlock()

	if handler == nil {
		return zero, fmt.Errorf("%w: %q", ErrNoHandler, topic)
	}
	resp, err := handler(req)
	if err != nil {
		return zero, err
	}
	return resp.(Resp), nil
}
