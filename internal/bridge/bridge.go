// Package bridge delivers asynchronous transaction updates from backends to
// the listeners registered by the host, outside the request/response path.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("event bridge is closed")

// Handler receives one event payload. A returned error or panic is logged and
// never reaches the backend that triggered the event.
type Handler interface {
	HandleMessage(ctx context.Context, message []byte) error
}

type HandlerFunc func(ctx context.Context, message []byte) error

func (f HandlerFunc) HandleMessage(ctx context.Context, message []byte) error {
	return f(ctx, message)
}

// Observer is told about every delivery attempt.
type Observer func(event string, err error)

type Option func(*Registry)

func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

type subscription struct {
	event   string
	handler Handler
}

type Registry struct {
	mu       sync.RWMutex
	byEvent  map[string]map[uuid.UUID]Handler
	byHandle map[uuid.UUID]subscription
	closed   bool

	inflight sync.WaitGroup
	observer Observer
}

func New(opts ...Option) *Registry {
	r := &Registry{
		byEvent:  make(map[string]map[uuid.UUID]Handler),
		byHandle: make(map[uuid.UUID]subscription),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Init creates the process-wide registry. Later calls return the same
// instance and ignore their options.
func Init(opts ...Option) *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = New(opts...)
	})
	return defaultRegistry
}

// Default is Init without options.
func Default() *Registry {
	return Init()
}

// Register subscribes h to event and returns the handle used to unsubscribe.
func (r *Registry) Register(event string, h Handler) (uuid.UUID, error) {
	if event == "" {
		return uuid.Nil, errors.New("event name is empty")
	}
	if h == nil {
		return uuid.Nil, errors.New("handler is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return uuid.Nil, ErrClosed
	}

	handle := uuid.New()
	listeners, ok := r.byEvent[event]
	if !ok {
		listeners = make(map[uuid.UUID]Handler)
		r.byEvent[event] = listeners
	}
	listeners[handle] = h
	r.byHandle[handle] = subscription{event: event, handler: h}

	log.WithFields(log.Fields{
		"event":  event,
		"handle": handle,
	}).Debug("Listener registered")
	return handle, nil
}

// Unregister removes the listener behind handle. Unknown or already removed
// handles are ignored.
func (r *Registry) Unregister(handle uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.byHandle[handle]
	if !ok {
		return
	}
	delete(r.byHandle, handle)
	if listeners, ok := r.byEvent[sub.event]; ok {
		delete(listeners, handle)
		if len(listeners) == 0 {
			delete(r.byEvent, sub.event)
		}
	}
	log.WithFields(log.Fields{
		"event":  sub.event,
		"handle": handle,
	}).Debug("Listener unregistered")
}

// Listeners reports how many listeners are registered for event.
func (r *Registry) Listeners(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byEvent[event])
}

// Trigger hands payload to every listener registered for event at the time of
// the call. Delivery runs on its own goroutine, so Trigger never waits for
// listeners and is safe to call from any goroutine, including foreign
// callback threads.
func (r *Registry) Trigger(event string, payload []byte) error {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrClosed
	}
	listeners := r.byEvent[event]
	if len(listeners) == 0 {
		r.mu.RUnlock()
		return nil
	}
	targets := make([]Handler, 0, len(listeners))
	for _, h := range listeners {
		targets = append(targets, h)
	}
	r.inflight.Add(1)
	r.mu.RUnlock()

	message := make([]byte, len(payload))
	copy(message, payload)

	go r.deliver(event, message, targets)
	return nil
}

// TriggerJSON encodes v and triggers it.
func (r *Registry) TriggerJSON(event string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return r.Trigger(event, payload)
}

func (r *Registry) deliver(event string, message []byte, targets []Handler) {
	defer r.inflight.Done()

	ctx := context.Background()
	for _, h := range targets {
		err := r.invoke(ctx, h, message)
		if err != nil {
			log.WithError(err).WithField("event", event).Error("Listener failed to handle event")
		}
		if r.observer != nil {
			r.observer(event, err)
		}
	}
}

func (r *Registry) invoke(ctx context.Context, h Handler, message []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("listener panicked: %v", p)
		}
	}()
	// Each listener gets a private copy of the payload.
	buf := make([]byte, len(message))
	copy(buf, message)
	return h.HandleMessage(ctx, buf)
}

// Wait blocks until every delivery started so far has finished. It must not
// be called concurrently with Trigger.
func (r *Registry) Wait() {
	r.inflight.Wait()
}

// Close rejects further registrations and triggers, then waits for in-flight
// deliveries to finish.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.byEvent = make(map[string]map[uuid.UUID]Handler)
	r.byHandle = make(map[uuid.UUID]subscription)
	r.mu.Unlock()

	r.inflight.Wait()
}
