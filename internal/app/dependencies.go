package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/flashsale/checkout/internal/cache"
	"github.com/flashsale/checkout/internal/clock"
	"github.com/flashsale/checkout/internal/domain"
	healthcheck "github.com/flashsale/checkout/internal/health"
	"github.com/flashsale/checkout/internal/metrics"
	"github.com/flashsale/checkout/internal/service/holdsweep"
	"github.com/flashsale/checkout/internal/service/idempotency"
	"github.com/flashsale/checkout/internal/service/ordermachine"
	"github.com/flashsale/checkout/internal/service/outbox"
	"github.com/flashsale/checkout/internal/service/reservation"
	"github.com/flashsale/checkout/internal/service/webhook"
	"github.com/flashsale/checkout/internal/storage/memory"
	"github.com/flashsale/checkout/internal/storage/postgres"
)

// runtimeDependencies bundles every wired component Run needs, plus the
// teardown hook for whichever storage driver backs it.
type runtimeDependencies struct {
	products        domain.ProductRepository
	holds           domain.HoldRepository
	repo            domain.OrderRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository
	deferredRepo    domain.DeferredWebhookRepository
	failedRepo      domain.FailedWebhookRepository

	engine      *reservation.Engine
	sweepWorker *holdsweep.Worker
	machine     *ordermachine.Machine
	processor   *webhook.Processor

	storageChecker healthcheck.Checker
	closeFn        func() error
}

// initRuntimeDependencies wires every repository and domain service from
// cfg, choosing the memory or Postgres storage driver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		return newMemoryDependencies(cfg, logger), nil
	case StorageDriverPostgres:
		return newPostgresDependencies(ctx, cfg, logger)
	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver: %q", cfg.StorageDriver)
	}
}

func newMemoryDependencies(cfg Config, logger *log.Entry) runtimeDependencies {
	deps := runtimeDependencies{
		products:        memory.NewProductRepository(),
		holds:           memory.NewHoldRepository(),
		repo:            memory.NewOrderRepository(),
		outboxRepo:      memory.NewOutboxRepository(),
		timelineRepo:    memory.NewTimelineRepository(),
		idempotencyRepo: memory.NewIdempotencyRepository(),
		deferredRepo:    memory.NewDeferredWebhookRepository(),
		failedRepo:      memory.NewFailedWebhookRepository(),
	}
	wireServices(&deps, cfg, logger)
	return deps
}

func newPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	if cfg.PostgresDSN == "" {
		return runtimeDependencies{}, fmt.Errorf("postgres storage driver requires postgres_dsn")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return runtimeDependencies{}, fmt.Errorf("open postgres store: %w", err)
	}
	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return runtimeDependencies{}, fmt.Errorf("run postgres migrations: %w", err)
		}
	}

	deps := runtimeDependencies{
		products:        postgres.NewProductRepository(store),
		holds:           postgres.NewHoldRepository(store),
		repo:            postgres.NewOrderRepository(store),
		outboxRepo:      postgres.NewOutboxRepository(store),
		timelineRepo:    postgres.NewTimelineRepository(store),
		idempotencyRepo: postgres.NewIdempotencyRepository(store),
		deferredRepo:    postgres.NewDeferredWebhookRepository(store),
		failedRepo:      postgres.NewFailedWebhookRepository(store),
		storageChecker: healthcheck.NewSimpleChecker("storage", func() error {
			return store.Ping(ctx)
		}),
		closeFn: store.Close,
	}
	wireServices(&deps, cfg, logger)
	return deps, nil
}

// wireServices builds the four core subsystems on top of deps' already
// constructed repositories.
func wireServices(deps *runtimeDependencies, cfg Config, logger *log.Entry) {
	sys := clock.NewSystem()
	m := metrics.NewCheckoutMetrics()
	stockCache := cache.New()

	deps.engine = reservation.New(
		deps.products, deps.holds, stockCache, deps.outboxRepo, deps.timelineRepo,
		reservation.WithLogger(logger.WithField("component", "reservation-engine")),
		reservation.WithClock(sys),
		reservation.WithHoldTTL(cfg.HoldTTL),
		reservation.WithMaxHoldQuantity(cfg.MaxHoldQuantity),
		reservation.WithCacheTTL(cfg.StockCacheTTL),
		reservation.WithMetrics(m),
	)

	deps.sweepWorker = holdsweep.New(
		deps.holds, deps.engine, nil,
		holdsweep.WithLogger(logger.WithField("component", "hold-sweep")),
		holdsweep.WithInterval(cfg.HoldSweepInterval),
		holdsweep.WithBatchSize(cfg.HoldSweepBatchSize),
	)

	deps.processor = webhook.New(
		deps.idempotencyRepo, deps.deferredRepo, deps.failedRepo, deps.repo, nil,
		webhook.WithLogger(logger.WithField("component", "webhook-processor")),
		webhook.WithClock(sys),
		webhook.WithMetrics(m),
		webhook.WithHMACSecret(cfg.WebhookHMACSecret),
		webhook.WithSignatureRequired(cfg.WebhookHMACSecret != ""),
		webhook.WithIdempotencyTTL(cfg.IdempotencyTTLWebhook),
	)

	deps.machine = ordermachine.New(
		deps.repo, deps.holds, deps.products, deps.outboxRepo, deps.timelineRepo,
		ordermachine.WithLogger(logger.WithField("component", "order-machine")),
		ordermachine.WithClock(sys),
		ordermachine.WithMetrics(m),
		ordermachine.WithDeferredReplayer(deps.processor),
	)
	deps.processor.SetOrderApplier(deps.machine)
}

// newIdempotencyCleanupWorker builds the TTL janitor for expired
// idempotency slots, shared by both storage drivers.
func newIdempotencyCleanupWorker(repo domain.IdempotencyRepository, cfg Config, logger *log.Entry) *idempotency.CleanupWorker {
	return idempotency.NewCleanupWorker(repo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
}

// newOutboxWorker builds the transactional-outbox publisher worker.
func newOutboxWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, cfg Config, logger *log.Entry) *outbox.Worker {
	opts := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if publisher != nil {
		opts = append(opts, outbox.WithDLQPublisher(publisher))
	}
	return outbox.NewWorker(repo, publisher, opts...)
}
