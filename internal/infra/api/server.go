package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"newspay-l402/internal/domain/ports/adapter"
	"newspay-l402/internal/infra/i18n"
	"newspay-l402/internal/usecase"
)

// RateLimiter is satisfied by the redis fixed-window limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Options struct {
	Version          string // advertised in every 402 body
	PublicURL        string
	RequestTimeout   time.Duration
	PaymentRateLimit int // payment requests per client per minute, 0 = off
	Limiter          RateLimiter
	Webhooks         []adapter.WebhookVerifier
	Admin            *AdminAuth // nil leaves /admin unmounted
	Checks           map[string]HealthCheck
	Text             *i18n.Translator // page text; nil uses the embedded English
}

// Server exposes the L402 flow over HTTP: classified content, payment
// requests, session resolution, provider webhooks and the admin audit view.
type Server struct {
	catalog    usecase.OfferCatalog
	contexts   usecase.PaymentContextUseCase
	broker     usecase.PaymentSessionBroker
	classifier *usecase.RequestClassifier
	content    usecase.ContentUseCase
	webhooks   map[string]adapter.WebhookVerifier
	text       *i18n.Translator
	pages      *pages
	opts       Options
	log        *zerolog.Logger
}

func NewServer(
	catalog usecase.OfferCatalog,
	contexts usecase.PaymentContextUseCase,
	broker usecase.PaymentSessionBroker,
	classifier *usecase.RequestClassifier,
	content usecase.ContentUseCase,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if opts.Version == "" {
		opts.Version = "0.2.3"
	}
	if opts.Text == nil {
		opts.Text = i18n.Default()
	}
	hooks := make(map[string]adapter.WebhookVerifier, len(opts.Webhooks))
	for _, v := range opts.Webhooks {
		hooks[v.Provider()] = v
	}
	l := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{
		catalog:    catalog,
		contexts:   contexts,
		broker:     broker,
		classifier: classifier,
		content:    content,
		webhooks:   hooks,
		text:       opts.Text,
		pages:      newPages(opts.Text),
		opts:       opts,
		log:        &l,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(Timeout(s.opts.RequestTimeout))

		r.Get("/", s.handleContent)
		r.Get("/news/{category}", s.handleContent)

		r.Post("/l402/payment-request", s.handlePaymentRequest)
		r.Get("/l402/payment-sessions/{id}", s.handleSessionStatus)

		r.Get("/payment/success", s.handlePaymentSuccess)
		r.Get("/payment/cancel", s.handlePaymentCancel)

		r.Post("/webhook/{provider}", s.handleWebhook)

		if s.opts.Admin != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(s.adminOnly)
				r.Get("/sessions/{id}", s.handleAdminSession)
			})
		}
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(s.opts.Checks))
	for name, check := range s.opts.Checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}
