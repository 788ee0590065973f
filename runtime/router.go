package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"voicehub/admission"
	"voicehub/contract"
	"voicehub/domain"
	"voicehub/domain/event"
	"voicehub/errors"
	"voicehub/observability"
	"voicehub/runtime/workers"
)

// RouterConfig bounds the dispatch pipeline. Zero values fall back to
// production defaults; tests shrink BackoffBase to keep retries fast.
type RouterConfig struct {
	LaneBuffer     int
	RetryBuffer    int
	DefaultTTL     time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	UrgentIdleTick time.Duration
	IdleTick       time.Duration
}

func (c RouterConfig) withDefaults() RouterConfig {
	if c.LaneBuffer <= 0 {
		c.LaneBuffer = 256
	}
	if c.RetryBuffer <= 0 {
		c.RetryBuffer = 128
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.UrgentIdleTick <= 0 {
		c.UrgentIdleTick = time.Second
	}
	if c.IdleTick <= 0 {
		c.IdleTick = 5 * time.Second
	}
	return c
}

// Router is the admission and dispatch engine: validate, rate-limit,
// enqueue into the lane matching the declared priority, and let the lane
// consumers deliver. Admission answers synchronously; everything after a
// successful enqueue is asynchronous and visible only through statistics.
type Router struct {
	log        *slog.Logger
	validator  *admission.Validator
	limiter    *admission.RateLimiter
	registry   contract.IRegistry
	table      *HandlerTable
	stats      *observability.StatsManager
	supervisor contract.ISupervisor
	cfg        RouterConfig

	lanes   []chan *domain.QueuedMessage
	retries chan *domain.QueuedMessage
	seq     atomic.Uint64
}

func NewRouter(
	log *slog.Logger,
	validator *admission.Validator,
	limiter *admission.RateLimiter,
	registry contract.IRegistry,
	table *HandlerTable,
	stats *observability.StatsManager,
	supervisor contract.ISupervisor,
	cfg RouterConfig,
) *Router {
	cfg = cfg.withDefaults()

	lanes := make([]chan *domain.QueuedMessage, domain.NumPriorities)
	for p := range lanes {
		lanes[p] = make(chan *domain.QueuedMessage, cfg.LaneBuffer)
	}

	return &Router{
		log:        log,
		validator:  validator,
		limiter:    limiter,
		registry:   registry,
		table:      table,
		stats:      stats,
		supervisor: supervisor,
		cfg:        cfg,
		lanes:      lanes,
		retries:    make(chan *domain.QueuedMessage, cfg.RetryBuffer),
	}
}

// Handlers exposes the table for wiring-time registration.
func (r *Router) Handlers() *HandlerTable { return r.table }

// Submit admits one raw inbound frame from a registered connection.
// Rejections (malformed, invalid, rate-limited, lane full) are final and
// answered with a typed error event on the originating connection; a nil
// return means the message was either queued or definitively rejected.
func (r *Router) Submit(ctx context.Context, connID string, raw []byte) error {
	rec, ok := r.registry.Lookup(connID)
	if !ok {
		return fmt.Errorf("%w: connection %s", errors.ErrNotFound, connID)
	}
	r.registry.Touch(connID)

	env, err := domain.DecodeEnvelope(raw)
	if err != nil {
		r.reject(ctx, connID, "message", "", "malformed payload")
		return nil
	}

	if !r.validator.Validate(raw, env, rec.UserID) {
		r.reject(ctx, connID, envType(env), env.SessionID, "validation failed")
		return nil
	}

	priority := domain.ParsePriority(env.Priority)
	if !r.limiter.Allow(rec.UserID, priority) {
		r.reject(ctx, connID, envType(env), env.SessionID, "rate limit exceeded")
		return nil
	}

	now := time.Now()
	msg := &domain.QueuedMessage{
		ID:         r.seq.Add(1),
		Priority:   priority,
		SessionID:  env.SessionID,
		UserID:     rec.UserID,
		ConnID:     connID,
		Envelope:   env,
		EnqueuedAt: now,
		ExpiresAt:  now.Add(r.cfg.DefaultTTL),
		MaxRetries: r.cfg.MaxRetries,
		Status:     domain.StatusPending,
	}

	lane := r.lanes[priority]
	select {
	case lane <- msg:
		r.stats.SetQueueDepth(priority, len(lane))
	default:
		r.log.Warn("Lane full, dropping message", "lane", priority.String(), "user", rec.UserID)
		r.reject(ctx, connID, envType(env), env.SessionID, "server busy")
	}
	return nil
}

// Start validates the handler table, spins up the lane consumers, the
// retry supervisor, and any extra workers, then blocks until shutdown.
// Whatever is still queued afterwards is drained log-and-drop rather than
// blocking the stop path.
func (r *Router) Start(ctx context.Context, extra ...contract.Worker) error {
	if err := r.table.ValidateStartup(CanonicalTypes); err != nil {
		return err
	}
	r.stats.SetActiveHandlers(r.table.Len())

	for p := domain.Priority(0); p < domain.NumPriorities; p++ {
		idle := r.cfg.IdleTick
		if p == domain.PriorityUrgent {
			idle = r.cfg.UrgentIdleTick
		}
		r.supervisor.Add(workers.NewLaneWorker(
			r.log, p, r.lanes[p], idle, r.table, r.registry, r.stats, r.retries))
	}
	r.supervisor.Add(workers.NewRetrySupervisor(
		r.log, r.cfg.BackoffBase, r.retries, r.lanes, r.stats))
	r.supervisor.Add(extra...)

	r.log.Info("Starting router", "handlers", r.table.Len(), "lane_buffer", r.cfg.LaneBuffer)
	r.supervisor.Run(ctx)
	r.drain()
	return nil
}

// Stop requests a coordinated shutdown: lane consumers finish their
// in-flight handler invocation, then Start's drain pass empties the rest.
func (r *Router) Stop() {
	r.log.Info("Requesting router shutdown")
	r.supervisor.Stop()
}

func (r *Router) drain() {
	dropped := 0
	for _, lane := range r.lanes {
		for {
			select {
			case msg := <-lane:
				msg.Status = domain.StatusFailed
				dropped++
				continue
			default:
			}
			break
		}
	}
	for {
		select {
		case msg := <-r.retries:
			msg.Status = domain.StatusFailed
			dropped++
			continue
		default:
		}
		break
	}
	if dropped > 0 {
		r.log.Warn("Dropped queued messages on shutdown", "count", dropped)
	}
}

func (r *Router) reject(ctx context.Context, connID, inboundType, sessionID, reason string) {
	r.stats.IncrRejected()
	if err := r.registry.Unicast(ctx, connID, event.Error(inboundType, sessionID, reason)); err != nil {
		r.log.Debug("Rejection event undeliverable", "conn", connID)
	}
}

func envType(env *domain.Envelope) string {
	if env.Type == "" {
		return "message"
	}
	return env.Type
}
