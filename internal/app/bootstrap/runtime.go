package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/adapters/cache"
	eventadapter "github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/adapters/events"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/adapters/gateway"
	httpadapter "github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/adapters/http"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/adapters/metrics"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/adapters/notify"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/adapters/render"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/adapters/security"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/application"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/contracts"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	outbox     *eventadapter.OutboxWorker
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)

	var closers []io.Closer
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	closers = append(closers, sqlDB)
	if err := postgres.RunMigrations(ctx, db); err != nil {
		closeAll()
		return nil, err
	}
	repos := postgres.NewRepositories(db)

	var cacheStore ports.Cache
	var redisCache *cache.RedisCache
	if cfg.RedisURL != "" {
		redisClient, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, redisClient)
		redisCache = cache.NewRedisCache(redisClient, "")
		cacheStore = redisCache
	} else {
		logger.WarnContext(ctx, "redis disabled, referral rate limiting is off and codes rely on the unique index")
	}

	var gatewayClient ports.PaymentGateway
	client, err := gateway.NewClient(gateway.Options{
		KeyID:     cfg.GatewayKeyID,
		KeySecret: cfg.GatewayKeySecret,
		BaseURL:   cfg.GatewayBaseURL,
		Timeout:   cfg.GatewayTimeout,
	})
	if err != nil {
		logger.WarnContext(ctx, "payment gateway not configured, order creation disabled", "error", err)
	} else {
		gatewayClient = client
	}

	notifier := ports.Notifier(notify.NewLoggingNotifier(logger))
	if cfg.SlackToken != "" && cfg.SlackChannel != "" {
		slackNotifier, slackErr := notify.NewSlackNotifier(notify.SlackOptions{
			Token:         cfg.SlackToken,
			Channel:       cfg.SlackChannel,
			AlertsChannel: cfg.SlackAlertsChannel,
		})
		if slackErr != nil {
			logger.WarnContext(ctx, "slack notifier disabled, using logging notifier", "error", slackErr)
		} else {
			notifier = slackNotifier
		}
	}

	tokens, err := security.NewJWTAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		closeAll()
		return nil, err
	}

	var serviceMetrics ports.Metrics = ports.NoopMetrics{}
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		prom := metrics.NewPrometheus()
		serviceMetrics = prom
		metricsHandler = prom.Handler()
	}

	service, err := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:             cfg.ServiceID,
			DefaultCurrency:         cfg.DefaultCurrency,
			TaxRatePercent:          cfg.TaxRatePercent,
			CommissionRatePercent:   cfg.CommissionRatePercent,
			InvoiceNumberPrefix:     cfg.InvoicePrefix,
			InvoiceLineDescription:  cfg.InvoiceDescription,
			ReferralCodePrefix:      cfg.ReferralCodePrefix,
			ReferralCodeAlphabet:    cfg.ReferralCodeAlphabet,
			ReferralCodeLength:      cfg.ReferralCodeLength,
			ReferralCodeMaxAttempts: cfg.ReferralCodeMaxAttempts,
			CodeReservationTTL:      cfg.CodeReservationTTL,
			ReferralRateLimit:       cfg.ReferralRateLimit,
			ReferralRateWindow:      cfg.ReferralRateWindow,
			IdempotencyTTL:          cfg.IdempotencyTTL,
		},
		Orders:      repos.Orders,
		Invoices:    repos.Invoices,
		Affiliates:  repos.Affiliates,
		Referrals:   repos.Referrals,
		Commissions: repos.Commissions,
		Deliveries:  repos.Deliveries,
		Idempotency: repos.Idempotency,
		UnitOfWork:  repos.UnitOfWork,
		Gateway:     gatewayClient,
		Verifier:    security.NewHMACVerifier(cfg.WebhookSecret),
		Notifier:    notifier,
		Cache:       cacheStore,
		InvoicePDF: render.NewInvoicePDF(render.Seller{
			Name:    cfg.SellerName,
			Address: cfg.SellerAddress,
			TaxID:   cfg.SellerTaxID,
		}),
		Statements: render.NewCommissionStatement(),
		Metrics:    serviceMetrics,
		Logger:     logger,
	})
	if err != nil {
		closeAll()
		return nil, err
	}

	handler := httpadapter.NewHandler(service, httpadapter.Options{
		Tokens:          tokens,
		SignatureHeader: cfg.SignatureHeader,
		MaxWebhookBytes: cfg.MaxWebhookBytes,
		Logger:          logger,
		Metrics:         metricsHandler,
		Ready: func(ctx context.Context) error {
			if err := postgres.Ping(ctx, db); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			if redisCache != nil {
				if err := redisCache.Ping(ctx); err != nil {
					return fmt.Errorf("redis: %w", err)
				}
			}
			return nil
		},
	})
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	topics := eventadapter.Topics{
		contracts.EventPaymentCaptured:   cfg.KafkaTopicPaymentCaptured,
		contracts.EventPaymentFailed:     cfg.KafkaTopicPaymentFailed,
		contracts.EventInvoiceIssued:     cfg.KafkaTopicInvoiceIssued,
		contracts.EventReferralConverted: cfg.KafkaTopicReferralConverted,
		contracts.EventCommissionCreated: cfg.KafkaTopicCommissionCreated,
	}
	publisher := ports.EventPublisher(eventadapter.NewLoggingPublisher(logger, topics))
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, pubErr := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, topics)
		if pubErr != nil {
			logger.WarnContext(ctx, "kafka publisher disabled, using logging publisher", "error", pubErr)
		} else {
			publisher = kafkaPublisher
			closers = append(closers, kafkaPublisher)
		}
	}
	outbox := eventadapter.NewOutboxWorker(logger, repos.Outbox, publisher, eventadapter.OutboxOptions{
		Interval:   cfg.OutboxPollInterval,
		BatchSize:  cfg.OutboxBatchSize,
		MaxRetries: cfg.OutboxMaxRetries,
		Metrics:    serviceMetrics,
	})

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		outbox:     outbox,
		cleanupFn: func(context.Context) {
			closeAll()
		},
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		r.cleanupFn(ctx)
		return fmt.Errorf("listen grpc: %w", err)
	}
	errCh := make(chan error, 2)

	go func() {
		r.logger.InfoContext(ctx, "http server listening", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := r.grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		r.logger.ErrorContext(ctx, "runtime failure", "error", runErr)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return runErr
}

// RunWorker relays the outbox until the process is signalled.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := r.outbox.Run(ctx)
	r.cleanupFn(context.Background())
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
