package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/flashsale/checkout/internal/domain"
	healthcheck "github.com/flashsale/checkout/internal/health"
	"github.com/flashsale/checkout/internal/messaging/kafka"
	transporthttp "github.com/flashsale/checkout/internal/transport/http"
	"github.com/flashsale/checkout/internal/version"
)

// Run wires the checkout service's storage, domain services, HTTP surface,
// and background workers, then blocks until ctx is cancelled or the HTTP
// server fails.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if deps.closeFn != nil {
			if err := deps.closeFn(); err != nil {
				logger.WithError(err).Warn("failed to close storage")
			}
		}
	}()

	kafkaProducer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.WithError(err).Warn("continuing without kafka")
	}
	defer closeKafka(kafkaProducer, logger)

	var outboxPublisher = domainOutboxPublisher(kafkaProducer, cfg)

	outboxWorker := newOutboxWorker(deps.outboxRepo, outboxPublisher, cfg, logger)
	cleanupWorker := newIdempotencyCleanupWorker(deps.idempotencyRepo, cfg, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", deps.storageChecker)
	}

	appMux := transporthttp.NewMux(transporthttp.Deps{
		Products:     deps.products,
		Holds:        deps.holds,
		Reserver:     deps.engine,
		Releaser:     deps.engine,
		Orders:       deps.machine,
		WebhookProc:  deps.processor,
		Logger:       logger.WithField("layer", "http"),
		SignatureHdr: cfg.WebhookSignatureHeader,
	})
	appMux.Handle("/healthz", healthHandler)
	appMux.HandleFunc("/livez", healthcheck.LivenessHandler)
	appMux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: appMux}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	go deps.sweepWorker.Run(workerCtx)
	go outboxWorker.Run(workerCtx)
	go cleanupWorker.Run(workerCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("http сервер слушает %s", cfg.HTTPAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем http сервер")
		shutdownHTTP(httpServer, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// domainOutboxPublisher wires a Kafka-backed outbox publisher when a
// producer is available, so the outbox worker has somewhere to deliver
// events; with nil the outbox worker's Run logs that it is disabled and
// returns without polling.
func domainOutboxPublisher(producer *kafka.Producer, cfg Config) domain.OutboxPublisher {
	if producer == nil {
		return nil
	}
	return kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents)
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
