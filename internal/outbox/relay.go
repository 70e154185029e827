package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// RelayOptions tune a Relay. Zero values take the defaults below.
type RelayOptions struct {
	PollInterval    time.Duration
	BatchSize       int
	Concurrency     int
	MaxAttempts     int
	LockTTL         time.Duration
	DispatchTimeout time.Duration
	MaxBackoff      time.Duration
	JitterMax       time.Duration
	LastErrorMaxLen int
	DepthEvery      time.Duration
	SingleActive    bool
	Name            string
	Rand            *rand.Rand
}

func (o *RelayOptions) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 8
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 5 * time.Minute
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Minute
	}
	if o.JitterMax < 0 {
		o.JitterMax = 0
	}
	if o.LastErrorMaxLen <= 0 {
		o.LastErrorMaxLen = 2048
	}
	if o.DepthEvery <= 0 {
		o.DepthEvery = 30 * time.Second
	}
	if o.Name == "" {
		o.Name = "generation"
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
}

// leaderElector is implemented by stores that can keep a single relay
// active across processes.
type leaderElector interface {
	TryLeader(ctx context.Context, name string) (release func(), ok bool, err error)
}

// Relay polls the outbox and hands due messages to a Dispatcher.
type Relay struct {
	store      Store
	dispatcher Dispatcher
	opts       RelayOptions
	m          *metrics
	now        func() time.Time

	randMu sync.Mutex
}

func NewRelay(store Store, dispatcher Dispatcher, opts RelayOptions) (*Relay, error) {
	if store == nil {
		return nil, errors.New("outbox: store is required")
	}
	if dispatcher == nil {
		return nil, errors.New("outbox: dispatcher is required")
	}
	opts.setDefaults()
	return &Relay{
		store:      store,
		dispatcher: dispatcher,
		opts:       opts,
		m:          metricsInstance(),
		now:        time.Now,
	}, nil
}

// Run processes the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	elector, ok := r.store.(leaderElector)
	if !r.opts.SingleActive || !ok {
		r.m.relayLeader.Set(1)
		return r.runLoop(ctx)
	}

	logCtx := slog.With("relay", r.opts.Name)
	for {
		release, leader, err := elector.TryLeader(ctx, r.opts.Name)
		if err != nil {
			logCtx.Warn("Failed to attempt relay lock.", "error", err)
		}
		if leader {
			r.m.relayLeader.Set(1)
			logCtx.Info("Relay became leader.")
			err = r.runLoop(ctx)
			release()
			r.m.relayLeader.Set(0)
			return err
		}
		r.m.relayLeader.Set(0)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.opts.PollInterval):
		}
	}
}

func (r *Relay) runLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	nextDepthAt := r.now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if r.now().After(nextDepthAt) {
			if err := r.observeDepth(ctx); err != nil {
				slog.Debug("Failed to observe outbox depth.", "error", err)
			}
			nextDepthAt = r.now().Add(r.opts.DepthEvery)
		}

		if _, err := r.ProcessOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			slog.Warn("Outbox tick failed.", "relay", r.opts.Name, "error", err)
		}
	}
}

// ProcessOnce claims one batch and dispatches it. It returns how many
// messages were claimed.
func (r *Relay) ProcessOnce(ctx context.Context) (int, error) {
	now := r.now()
	claimed, err := r.store.Claim(ctx, now, now.Add(-r.opts.LockTTL), r.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for _, c := range claimed {
		g.Go(func() error {
			r.deliver(gctx, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return len(claimed), fmt.Errorf("outbox dispatch: %w", err)
	}
	return len(claimed), nil
}

func (r *Relay) deliver(ctx context.Context, c Claimed) {
	logCtx := slog.With("eventId", c.EventID.String(), "requestId", c.RequestID, "topic", c.Topic, "attempt", c.Attempts)

	dispatchCtx := ctx
	if r.opts.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, r.opts.DispatchTimeout)
		defer cancel()
	}

	start := r.now()
	err := r.dispatcher.Dispatch(dispatchCtx, c)
	latency := r.now().Sub(start)
	r.m.dispatchLatency.WithLabelValues(c.Topic).Observe(latency.Seconds())

	// Ack/nack must land even if the dispatch context expired.
	bookkeeping := context.WithoutCancel(ctx)
	if err == nil {
		r.m.dispatchTotal.WithLabelValues(c.Topic, "success").Inc()
		if ackErr := r.store.Ack(bookkeeping, c.ID); ackErr != nil {
			logCtx.Warn("Failed to ack outbox message.", "error", ackErr)
		}
		return
	}

	r.m.dispatchTotal.WithLabelValues(c.Topic, "failure").Inc()
	lastErr := truncateError(err, r.opts.LastErrorMaxLen)

	if c.Attempts >= r.opts.MaxAttempts {
		r.m.deadTotal.WithLabelValues(c.Topic).Inc()
		logCtx.Error("Outbox message exhausted its attempts.", "error", err)
		if deadErr := r.store.Dead(bookkeeping, c.ID, lastErr); deadErr != nil {
			logCtx.Warn("Failed to mark outbox message dead.", "error", deadErr)
		}
		return
	}

	r.randMu.Lock()
	delay := backoff(c.Attempts, r.opts.MaxBackoff) + jitter(r.opts.Rand, r.opts.JitterMax)
	r.randMu.Unlock()
	next := r.now().Add(delay)
	logCtx.Warn("Outbox dispatch failed, will retry.", "error", err, "nextAttemptAt", next)
	if nackErr := r.store.Nack(bookkeeping, c.ID, lastErr, next); nackErr != nil {
		logCtx.Warn("Failed to nack outbox message.", "error", nackErr)
	}
}

func (r *Relay) observeDepth(ctx context.Context) error {
	pending, locked, err := r.store.Depth(ctx)
	if err != nil {
		return err
	}
	r.m.pending.Set(float64(pending))
	r.m.locked.Set(float64(locked))
	return nil
}
