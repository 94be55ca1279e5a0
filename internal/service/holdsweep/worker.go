// Package holdsweep implements the Hold Lifecycle Manager: a periodic
// worker that releases expired holds and reclaims their stock.
package holdsweep

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/flashsale/checkout/internal/domain"
)

const (
	defaultInterval  = 60 * time.Second
	defaultBatchSize = 100
	lockTTL          = 5 * time.Minute
)

var (
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_hold_sweep_runs_total",
		Help: "Total number of hold sweep runs grouped by result.",
	}, []string{"result"})
	sweepReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_hold_sweep_released_total",
		Help: "Total number of holds released by the sweep worker.",
	})
)

// Releaser is the subset of the Reservation Engine the sweep needs.
type Releaser interface {
	Release(holdID string) error
}

// Locker grants at-most-one-runner-at-a-time serialization across
// instances. TryLock returns held=false, nil if another instance
// currently holds the lock — never blocks.
type Locker interface {
	TryLock(name string, ttl time.Duration) (held bool, release func(), err error)
}

// Options configures a Worker.
type Options struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
}

type Option func(*Options)

func WithLogger(logger *log.Entry) Option { return func(o *Options) { o.Logger = logger } }
func WithInterval(d time.Duration) Option { return func(o *Options) { o.Interval = d } }
func WithBatchSize(n int) Option         { return func(o *Options) { o.BatchSize = n } }

// Worker periodically sweeps expired holds.
type Worker struct {
	holds    domain.HoldRepository
	releaser Releaser
	locker   Locker

	logger    *log.Entry
	interval  time.Duration
	batchSize int
}

// New builds a sweep Worker. locker may be nil, in which case the
// worker assumes it is the only instance running (fine for the
// in-memory single-process deployment; Postgres deployments should
// supply an advisory-lock-backed Locker).
func New(holds domain.HoldRepository, releaser Releaser, locker Locker, opts ...Option) *Worker {
	o := Options{Interval: defaultInterval, BatchSize: defaultBatchSize}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.Logger
	if logger == nil {
		logger = log.New().WithField("component", "hold-sweep-worker")
	}
	if o.Interval <= 0 {
		o.Interval = defaultInterval
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}

	return &Worker{
		holds:     holds,
		releaser:  releaser,
		locker:    locker,
		logger:    logger,
		interval:  o.Interval,
		batchSize: o.BatchSize,
	}
}

// Run loops until ctx is cancelled. An in-progress batch is allowed to
// finish its current hold before the loop exits.
func (w *Worker) Run(ctx context.Context) {
	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	if w.locker != nil {
		held, release, err := w.locker.TryLock("hold-sweep", lockTTL)
		if err != nil {
			sweepRunsTotal.WithLabelValues("lock_error").Inc()
			w.logger.WithError(err).Warn("failed to acquire sweep lock")
			return
		}
		if !held {
			sweepRunsTotal.WithLabelValues("skipped").Inc()
			return
		}
		defer release()
	}

	released, err := w.Sweep(ctx, time.Now().UTC())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		sweepRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("hold sweep run failed")
		return
	}

	sweepRunsTotal.WithLabelValues("ok").Inc()
	if released > 0 {
		w.logger.WithField("released", released).Info("hold sweep completed")
	}
}

// Sweep releases up to batchSize expired holds in a single pass,
// logging (not aborting on) per-hold failures.
func (w *Worker) Sweep(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	expired, err := w.holds.SweepExpired(before, w.batchSize)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, h := range expired {
		if err := ctx.Err(); err != nil {
			return released, err
		}

		if err := w.releaser.Release(h.ID); err != nil {
			if errors.Is(err, domain.ErrHoldAlreadyConsumed) || errors.Is(err, domain.ErrHoldAlreadyTerminal) {
				continue
			}
			w.logger.WithError(err).WithField("hold_id", h.ID).Warn("failed to release expired hold")
			continue
		}
		released++
	}

	sweepReleasedTotal.Add(float64(released))
	return released, nil
}
