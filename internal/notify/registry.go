package notify

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/tempodb/internal/model"
)

var (
	listenerDeliveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tempodb_listener_deliveries_total",
		Help: "Total number of events delivered to listeners",
	})

	listenerFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tempodb_listener_failures_total",
		Help: "Total number of listener invocations that returned an error or panicked",
	}, []string{"reason"})

	listenersRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tempodb_listeners_registered",
		Help: "Current number of registered listeners",
	})
)

// Event describes one indexed transaction.
type Event struct {
	Committed bool
	Instant   model.TransactionInstant

	// Operations is set only when the transaction committed and the
	// listener registered with IncludeOperations; otherwise nil.
	Operations []model.Operation
}

// Listener receives indexed-transaction events.
type Listener interface {
	OnIndexed(ctx context.Context, ev Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, ev Event) error

// OnIndexed calls f.
func (f ListenerFunc) OnIndexed(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Config is the per-listener subscription configuration.
type Config struct {
	IncludeOperations bool
}

// Handle identifies a registration. Close deregisters it.
type Handle struct {
	id       string
	registry *Registry
	closed   atomic.Bool
}

// ID returns the handle id.
func (h *Handle) ID() string {
	if h == nil {
		return ""
	}
	return h.id
}

// Close deregisters the listener. Closing twice is a DOUBLE_CLOSE error;
// closing a handle that was never returned by Register is CLOSE_BEFORE_OPEN.
func (h *Handle) Close() error {
	if h == nil || h.registry == nil {
		return model.NewError(model.ErrCodeCloseBeforeOpen, "listener handle was never registered")
	}
	if !h.closed.CompareAndSwap(false, true) {
		return model.NewError(model.ErrCodeDoubleClose, "listener %s already closed", h.id)
	}
	h.registry.remove(h)
	return nil
}

type subscription struct {
	handle   *Handle
	listener Listener
	config   Config
}

// Registry holds listeners in registration order.
type Registry struct {
	mu   sync.RWMutex
	subs []*subscription
	ids  IDGenerator
}

// Option configures a Registry.
type Option func(*Registry)

// WithIDGenerator sets the handle id generator.
//
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Registry) {
		r.ids = g
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a listener and returns its handle.
func (r *Registry) Register(l Listener, cfg Config) *Handle {
	h := &Handle{id: r.ids.Generate(), registry: r}

	r.mu.Lock()
	r.subs = append(r.subs, &subscription{handle: h, listener: l, config: cfg})
	r.mu.Unlock()

	listenersRegistered.Inc()
	slog.Debug("listener registered", "handle", h.id, "include_operations", cfg.IncludeOperations)
	return h
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Registry) remove(h *Handle) {
	r.mu.Lock()
	r.subs = slices.DeleteFunc(r.subs, func(s *subscription) bool {
		return s.handle == h
	})
	r.mu.Unlock()

	listenersRegistered.Dec()
	slog.Debug("listener closed", "handle", h.id)
}

// Notify invokes every live listener with ev, in registration order, and
// waits for each to return.
func (r *Registry) Notify(ctx context.Context, ev Event) {
	r.mu.RLock()
	subs := slices.Clone(r.subs)
	r.mu.RUnlock()

	for _, sub := range subs {
		if sub.handle.closed.Load() {
			continue
		}

		delivered := Event{Committed: ev.Committed, Instant: ev.Instant}
		if ev.Committed && sub.config.IncludeOperations {
			delivered.Operations = slices.Clone(ev.Operations)
			if delivered.Operations == nil {
				delivered.Operations = []model.Operation{}
			}
		}

		if err := invoke(ctx, sub, delivered); err != nil {
			slog.Error("listener failed",
				"handle", sub.handle.id,
				"tx_id", ev.Instant.TxID,
				"committed", ev.Committed,
				"error", err,
			)
			continue
		}
		listenerDeliveriesTotal.Inc()
	}
}

// invoke calls the listener, converting errors and panics into
// LISTENER_INVOCATION errors.
func invoke(ctx context.Context, sub *subscription, ev Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			listenerFailuresTotal.WithLabelValues("panic").Inc()
			err = listenerError(sub, ev, fmt.Errorf("panic: %v", p))
		}
	}()

	if cause := sub.listener.OnIndexed(ctx, ev); cause != nil {
		listenerFailuresTotal.WithLabelValues("error").Inc()
		return listenerError(sub, ev, cause)
	}
	return nil
}

func listenerError(sub *subscription, ev Event, cause error) error {
	e := model.WrapError(model.ErrCodeListenerInvocation, cause, "listener %s", sub.handle.id)
	e.TxID = ev.Instant.TxID
	return e
}
