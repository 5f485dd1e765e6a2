// Package app собирает зависимости магазина и управляет жизненным циклом процессов.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/bookstore/internal/esewa"
	healthcheck "github.com/vladislavdragonenkov/bookstore/internal/health"
	"github.com/vladislavdragonenkov/bookstore/internal/metrics"
	"github.com/vladislavdragonenkov/bookstore/internal/service/cart"
	"github.com/vladislavdragonenkov/bookstore/internal/service/catalog"
	"github.com/vladislavdragonenkov/bookstore/internal/service/idempotency"
	"github.com/vladislavdragonenkov/bookstore/internal/service/orders"
	"github.com/vladislavdragonenkov/bookstore/internal/service/outbox"
	"github.com/vladislavdragonenkov/bookstore/internal/service/payment"
	"github.com/vladislavdragonenkov/bookstore/internal/service/reconcile"
	"github.com/vladislavdragonenkov/bookstore/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/bookstore/internal/version"
)

// Run запускает API, сервер метрик и фоновые воркеры и блокируется до отмены ctx.
// Чистая остановка возвращает nil.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := log.WithField("component", "app")

	shutdownTracer, err := initTracer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.WithError(err).Warn("tracer shutdown failed")
		}
	}()

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("storage close failed")
		}
	}()

	producer, err := initKafkaProducer(cfg.KafkaBrokers, cfg.KafkaClientID, logger)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
	}
	defer closeKafka(producer, logger)

	esewaCfg := cfg.esewaConfig()
	breaker := esewa.NewCircuitBreaker(cfg.BreakerMaxFailures, cfg.BreakerResetTimeout, logger.WithField("component", "esewa-breaker"))
	gateway := esewa.NewGuardedGateway(esewa.NewClient(esewaCfg, logger.WithField("component", "esewa")), breaker)

	paymentSvc := payment.NewService(esewaCfg, deps.Orders, deps.Settlements, deps.Outbox, gateway,
		payment.WithTimeline(deps.Timeline),
		payment.WithMetrics(metrics.NewPaymentMetrics()),
	)
	api := httpapi.NewServer(httpapi.Services{
		Catalog:     catalog.NewService(deps.Books, nil),
		Cart:        cart.NewService(deps.Carts, deps.Books, nil),
		Orders:      orders.NewService(deps.Orders, deps.Books, deps.Carts, deps.Outbox, orders.WithTimeline(deps.Timeline)),
		Payments:    paymentSvc,
		Idempotency: deps.Idempotency,
	}, httpapi.WithServiceName(cfg.ServiceName))

	healthHandler := newHealthHandler(deps, breaker)

	g, gctx := errgroup.WithContext(ctx)

	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownHTTPWithTimeout(apiSrv, cfg.ShutdownTimeout, logger)
		return nil
	})

	metricsSrv := startMetricsServer(gctx, cfg.MetricsAddr, logger, healthHandler)

	if cfg.GRPCHealthAddr != "" {
		g.Go(func() error {
			return serveGRPCHealth(gctx, cfg.GRPCHealthAddr, logger)
		})
	}

	outboxPublisher, dlqPublisher := outboxPublishers(producer, cfg, logger)
	outboxWorker := outbox.NewWorker(deps.Outbox, outboxPublisher,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(dlqPublisher),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	g.Go(func() error {
		outboxWorker.Run(gctx)
		return nil
	})

	if cfg.ReconcileInterval > 0 {
		reconcileWorker := reconcile.NewWorker(deps.Orders, paymentSvc,
			reconcile.WithLogger(logger.WithField("component", "reconcile-worker")),
			reconcile.WithInterval(cfg.ReconcileInterval),
			reconcile.WithMinAge(cfg.ReconcileMinAge),
			reconcile.WithBatchSize(cfg.ReconcileBatchSize),
			reconcile.WithConcurrency(cfg.ReconcileConcurrency),
		)
		g.Go(func() error {
			reconcileWorker.Run(gctx)
			return nil
		})
	}

	if cfg.IdempotencyCleanupInterval > 0 {
		sweeper := idempotency.NewSweeper(deps.Idempotency,
			idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
			idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		)
		g.Go(func() error {
			sweeper.Run(gctx)
			return nil
		})
	}

	err = g.Wait()
	shutdownHTTP(metricsSrv, logger)
	logger.Info("сервис остановлен")
	return err
}

// newHealthHandler регистрирует проверки хранилища и платёжного шлюза.
// Разомкнутый breaker переводит сервис в degraded, но не снимает readiness.
func newHealthHandler(deps *Dependencies, breaker *esewa.CircuitBreaker) *healthcheck.Handler {
	h := healthcheck.NewHandler(version.GetVersion())
	if deps.StorageChecker != nil {
		h.RegisterChecker("storage", deps.StorageChecker)
	}
	h.RegisterChecker("esewa", healthcheck.NewDegradedChecker("esewa", func() error {
		if state := breaker.State(); state == esewa.CircuitOpen {
			return fmt.Errorf("circuit breaker is %s", state)
		}
		return nil
	}))
	return h
}

// serveGRPCHealth поднимает стандартный grpc.health.v1 для оркестратора.
func serveGRPCHealth(ctx context.Context, addr string, logger *log.Entry) error {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc health listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC health слушает %s", addr)
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stoppedCh := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stoppedCh)
		}()
		select {
		case <-stoppedCh:
		case <-time.After(5 * time.Second):
			logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
			grpcServer.Stop()
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("grpc health: %w", err)
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus и health-пробы.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
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
	shutdownHTTPWithTimeout(srv, 5*time.Second, logger)
}

func shutdownHTTPWithTimeout(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
