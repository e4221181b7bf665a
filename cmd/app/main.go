// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"newspay-l402/internal/config"
	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/adapter"
	"newspay-l402/internal/domain/ports/repository"
	"newspay-l402/internal/infra/adapters/content"
	payAdapters "newspay-l402/internal/infra/adapters/payment"
	"newspay-l402/internal/infra/api"
	"newspay-l402/internal/infra/db/boltstore"
	"newspay-l402/internal/infra/db/memory"
	pg "newspay-l402/internal/infra/db/postgres"
	"newspay-l402/internal/infra/events"
	"newspay-l402/internal/infra/i18n"
	"newspay-l402/internal/infra/logging"
	"newspay-l402/internal/infra/metrics"
	red "newspay-l402/internal/infra/redis"
	"newspay-l402/internal/infra/sched"
	"newspay-l402/internal/infra/security"
	"newspay-l402/internal/infra/worker"
	"newspay-l402/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

type stores struct {
	contexts repository.PaymentContextRepository
	sessions repository.PaymentSessionRepository
	creds    repository.CredentialRepository
	redis    *red.Client // nil unless durable
	checks   map[string]api.HealthCheck
	closers  []func()
	poolStat func()
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop webhook, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Storage ----
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("storage")
	}
	defer st.close()

	// ---- Token sealing ----
	var sealer *security.TokenSealer
	if cfg.Security.TokenKey != "" {
		sealer, err = security.NewTokenSealer(cfg.Security.TokenKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("security.token_key")
		}
	} else {
		logger.Warn().Msg("security.token_key not set; using a process-local key, tokens cannot be picked up after restart")
		sealer, err = security.NewEphemeralTokenSealer()
		if err != nil {
			logger.Fatal().Err(err).Msg("token sealer")
		}
	}

	// ---- Payment provider ----
	gateway, webhooks, err := openPayments(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.Payment.Provider).Msg("payment provider")
	}

	// ---- Events ----
	var publisher adapter.EventPublisher
	if len(cfg.Events.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, logger)
		logger.Info().Strs("brokers", cfg.Events.Brokers).Str("topic", cfg.Events.Topic).Msg("publishing events to kafka")
	} else {
		publisher = events.NewLogPublisher(logger)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("event publisher close")
		}
	}()

	// ---- Use cases ----
	offers := make([]*model.Offer, 0, len(cfg.Offers))
	for _, oc := range cfg.Offers {
		o, err := oc.Offer()
		if err != nil {
			logger.Fatal().Err(err).Msg("offers")
		}
		offers = append(offers, o)
	}
	catalog, err := usecase.NewOfferCatalog(offers, cfg.Categories)
	if err != nil {
		logger.Fatal().Err(err).Msg("offer catalog")
	}

	sink := usecase.NewEventSink(publisher, logger)
	contextUC := usecase.NewPaymentContextUseCase(st.contexts, cfg.L402.ContextTTL, nil, logger)
	issuer := usecase.NewTokenIssuer(st.creds, nil, logger)
	gate := usecase.NewAccessGate(st.creds, sink, nil, logger)
	broker := usecase.NewPaymentSessionBroker(catalog, contextUC, st.sessions, issuer, st.creds, sealer,
		gateway, sink, cfg.L402.SessionTimeout, nil, logger)
	classifier := usecase.NewRequestClassifier(gate, logger)
	news := content.NewMockNews(catalog.Categories(), cfg.L402.NewsPerCategory, 0, time.Now())
	contentUC := usecase.NewContentUseCase(gate, news, logger)

	// ---- Background jobs ----
	var locker sched.Locker
	if st.redis != nil {
		locker = red.NewLocker(st.redis)
	}
	pool := worker.NewPool("reconcile", cfg.L402.ReconcileWorkers, logger)
	pool.Start(ctx)
	defer pool.Stop()

	reconciler := sched.NewSessionReconciler(broker, pool, locker, cfg.L402.ReconcileInterval, cfg.L402.ReconcileAfter, logger)
	sweeper := sched.NewContextSweeper(cfg.L402.SweepInterval, contextUC, locker, logger)
	go func() { _ = reconciler.Run(ctx) }()
	go func() { _ = sweeper.Run(ctx) }()
	if st.poolStat != nil {
		go reportPoolStats(ctx, st.poolStat)
	}

	// ---- HTTP ----
	opts := api.Options{
		Version:          cfg.L402.Version,
		PublicURL:        cfg.L402.PublicURL,
		RequestTimeout:   cfg.Server.RequestTimeout,
		PaymentRateLimit: cfg.L402.PaymentRateLimit,
		Webhooks:         webhooks,
		Admin:            api.NewAdminAuth(cfg.Security.AdminJWTSecret, cfg.Security.AdminTokenTTL),
		Checks:           st.checks,
	}
	if st.redis != nil {
		opts.Limiter = red.NewRateLimiter(st.redis)
	} else if cfg.L402.PaymentRateLimit > 0 {
		logger.Warn().Msg("l402.payment_rate_limit needs redis; rate limiting disabled")
	}
	if opts.Admin == nil {
		logger.Info().Msg("security.admin_jwt_secret not set; /admin disabled")
	}

	text, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Server.Language)
	if err != nil {
		logger.Fatal().Err(err).Str("language", cfg.Server.Language).Msg("server.language")
	}
	opts.Text = text

	srv := api.NewServer(catalog, contextUC, broker, classifier, contentUC, opts, logger)
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Str("public_url", cfg.L402.PublicURL).
			Str("storage", cfg.Storage.Driver).Str("provider", gateway.Name()).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	cancel()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*stores, error) {
	st := &stores{checks: make(map[string]api.HealthCheck)}
	switch cfg.Storage.Driver {
	case "memory":
		logger.Warn().Msg("storage.driver=memory; state is lost on restart")
		st.contexts = memory.NewPaymentContextRepo()
		st.sessions = memory.NewPaymentSessionRepo()
		st.creds = memory.NewCredentialRepo()

	case "bolt":
		db, err := boltstore.Open(cfg.Storage.BoltPath)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() { _ = db.Close() })
		st.contexts = boltstore.NewPaymentContextRepo(db)
		st.sessions = boltstore.NewPaymentSessionRepo(db)
		st.creds = boltstore.NewCredentialRepo(db)

	case "durable":
		pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		st.closers = append(st.closers, pool.Close)
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			st.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		st.closers = append(st.closers, func() { _ = rc.Close() })

		st.redis = rc
		st.contexts = red.NewContextStore(rc)
		st.sessions = pg.NewPaymentSessionRepo(pool)
		st.creds = pg.NewCredentialRepo(pool)
		st.checks["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }
		st.checks["redis"] = rc.Ping
		st.poolStat = func() {
			pg.ReportPoolStats(pool)
			rc.ReportPoolStats()
		}

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	return st, nil
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func openPayments(cfg *config.Config, logger *zerolog.Logger) (adapter.PaymentGateway, []adapter.WebhookVerifier, error) {
	switch cfg.Payment.Provider {
	case "stripe":
		sc := cfg.Payment.Stripe
		gw, err := payAdapters.NewStripeGateway(sc.SecretKey, sc.SuccessURL, sc.CancelURL, nil)
		if err != nil {
			return nil, nil, err
		}
		hook, err := payAdapters.NewStripeWebhook(sc.WebhookSecret)
		if err != nil {
			return nil, nil, err
		}
		return gw, []adapter.WebhookVerifier{hook}, nil
	default:
		logger.Warn().Msg("payment.provider=noop; checkouts are never charged")
		gw := payAdapters.NewNoopPaymentGateway(cfg.L402.PublicURL)
		if !cfg.Runtime.Dev {
			return gw, nil, nil
		}
		return gw, []adapter.WebhookVerifier{payAdapters.NewNoopWebhook(gw)}, nil
	}
}

func reportPoolStats(ctx context.Context, report func()) {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		report()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
