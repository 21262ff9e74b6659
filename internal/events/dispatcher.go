package events

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/pharmakart/api/internal/domain"
)

// ReactionResult describes the outcome of one handler invocation.
type ReactionResult struct {
	Handler   string
	Event     string
	EntityID  string
	Action    domain.AuditAction
	Success   bool
	Timestamp time.Time
	Err       error
}

// Handler reacts to a single event.
type Handler func(ctx context.Context, event Event) ReactionResult

// Publisher is the narrow interface services publish through.
type Publisher interface {
	Publish(ctx context.Context, event Event) []ReactionResult
}

// Redispatcher replays events that already left this process once. Dispatch
// runs only the named subscribers, never the catch-all ones, so a mirrored
// event pulled back in from Pub/Sub is not mirrored out again.
type Redispatcher interface {
	Dispatch(ctx context.Context, event Event) []ReactionResult
}

type registeredHandler struct {
	name    string
	handler Handler
}

// DispatcherDeps carries the collaborators a Dispatcher needs.
type DispatcherDeps struct {
	// Logger receives one entry per reaction outcome. Required.
	Logger func(ctx context.Context, event string, fields map[string]any)
	// Record counts reaction outcomes for metrics. Optional.
	Record func(event string, success bool)
	// Failures receives every recovered handler panic, after the panic value
	// is normalised to an error. Optional; wired to the event-log recorder so
	// crashes leave a durable trace. Must not panic itself.
	Failures func(ctx context.Context, event Event, err error)
	// Clock stamps reaction results. Defaults to time.Now.
	Clock func() time.Time
}

// Dispatcher is a synchronous in-process event bus. Handlers run in
// registration order; a failing or panicking handler never stops the others
// and never fails the publishing operation.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]registeredHandler
	all      []registeredHandler

	logger   func(ctx context.Context, event string, fields map[string]any)
	record   func(event string, success bool)
	failures func(ctx context.Context, event Event, err error)
	clock    func() time.Time
}

func NewDispatcher(deps DispatcherDeps) (*Dispatcher, error) {
	if deps.Logger == nil {
		return nil, errors.New("event dispatcher requires logger")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Dispatcher{
		handlers: make(map[string][]registeredHandler),
		logger:   deps.Logger,
		record:   deps.Record,
		failures: deps.Failures,
		clock:    clock,
	}, nil
}

var (
	_ Publisher    = (*Dispatcher)(nil)
	_ Redispatcher = (*Dispatcher)(nil)
)

// Subscribe registers a handler for one event name.
func (d *Dispatcher) Subscribe(eventName, handlerName string, handler Handler) {
	if eventName == "" || handler == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventName] = append(d.handlers[eventName], registeredHandler{name: handlerName, handler: handler})
}

// SubscribeAll registers a handler invoked for every event. Used by the
// Pub/Sub mirror.
func (d *Dispatcher) SubscribeAll(handlerName string, handler Handler) {
	if handler == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.all = append(d.all, registeredHandler{name: handlerName, handler: handler})
}

// Publish runs every handler subscribed to the event, including the
// catch-all subscribers, and returns their results. It never returns an
// error: reaction failures are logged, counted and swallowed.
func (d *Dispatcher) Publish(ctx context.Context, event Event) []ReactionResult {
	return d.run(ctx, event, true)
}

// Dispatch runs only the handlers subscribed by name. Redelivered events use
// this path so they never re-enter the catch-all mirror.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) []ReactionResult {
	return d.run(ctx, event, false)
}

func (d *Dispatcher) run(ctx context.Context, event Event, includeAll bool) []ReactionResult {
	if event == nil {
		return nil
	}

	d.mu.RLock()
	targets := make([]registeredHandler, 0, len(d.handlers[event.EventName()])+len(d.all))
	targets = append(targets, d.handlers[event.EventName()]...)
	if includeAll {
		targets = append(targets, d.all...)
	}
	d.mu.RUnlock()

	results := make([]ReactionResult, 0, len(targets))
	for _, target := range targets {
		result := d.invoke(ctx, target, event)
		d.report(ctx, result)
		results = append(results, result)
	}
	return results
}

func (d *Dispatcher) invoke(ctx context.Context, target registeredHandler, event Event) (result ReactionResult) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err, ok := recovered.(error)
			if !ok {
				err = errors.New("Unknown error")
			}
			result = ReactionResult{
				Handler:   target.name,
				Event:     event.EventName(),
				EntityID:  event.EntityID(),
				Success:   false,
				Timestamp: d.clock().UTC(),
				Err:       err,
			}
			if d.failures != nil {
				d.failures(ctx, event, err)
			}
		}
	}()

	result = target.handler(ctx, event)
	if result.Handler == "" {
		result.Handler = target.name
	}
	if result.Event == "" {
		result.Event = event.EventName()
	}
	if result.EntityID == "" {
		result.EntityID = event.EntityID()
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = d.clock().UTC()
	}
	return result
}

func (d *Dispatcher) report(ctx context.Context, result ReactionResult) {
	fields := map[string]any{
		"handler":   result.Handler,
		"event":     result.Event,
		"entity_id": result.EntityID,
		"success":   result.Success,
	}
	if result.Action != "" {
		fields["action"] = string(result.Action)
	}
	if result.Err != nil {
		fields["error"] = result.Err.Error()
	}
	d.logger(ctx, "event.reaction", fields)
	if d.record != nil {
		d.record(result.Event, result.Success)
	}
}
