// Command demo walks the L402 flow end to end against an in-process server
// and the noop payment provider, printing every request it makes.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"newspay-l402/internal/config"
	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/adapter"
	"newspay-l402/internal/infra/adapters/content"
	payAdapters "newspay-l402/internal/infra/adapters/payment"
	"newspay-l402/internal/infra/api"
	"newspay-l402/internal/infra/db/memory"
	"newspay-l402/internal/infra/events"
	"newspay-l402/internal/infra/security"
	"newspay-l402/internal/usecase"
)

const agentUA = "newspay-demo-agent/1.0"

type demo struct {
	base    string
	gateway *payAdapters.NoopPaymentGateway
	client  *http.Client
	log     zerolog.Logger
}

func main() {
	verbose := flag.Bool("v", false, "log server-side events")
	category := flag.String("category", "politics", "category bought in scenario C")
	flag.Parse()

	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	serverLog := zerolog.New(out).Level(level).With().Timestamp().Logger()

	srv, gw, err := buildServer(&serverLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "demo setup: %v\n", err)
		os.Exit(1)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	d := &demo{
		base:    ts.URL,
		gateway: gw,
		client:  &http.Client{Timeout: 5 * time.Second},
		log:     zerolog.New(out).With().Timestamp().Logger(),
	}

	ctx := context.Background()
	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"A: unauthenticated agent gets 402", d.scenarioA},
		{"B: payment request consumes the context", d.scenarioB},
		{"C: paid single-category credential is spent once", func(ctx context.Context) error { return d.scenarioC(ctx, *category) }},
		{"D: failed payment issues nothing", d.scenarioD},
	}
	failed := false
	for _, s := range steps {
		d.log.Info().Msg("=== " + s.name)
		if err := s.run(ctx); err != nil {
			d.log.Error().Err(err).Msg("scenario failed")
			failed = true
			continue
		}
		d.log.Info().Msg("--- ok")
	}
	if failed {
		os.Exit(1)
	}
}

func buildServer(logger *zerolog.Logger) (*api.Server, *payAdapters.NoopPaymentGateway, error) {
	cfg, err := config.Parse(nil)
	if err != nil {
		return nil, nil, err
	}
	offers := make([]*model.Offer, 0, len(cfg.Offers))
	for _, oc := range cfg.Offers {
		o, err := oc.Offer()
		if err != nil {
			return nil, nil, err
		}
		offers = append(offers, o)
	}
	catalog, err := usecase.NewOfferCatalog(offers, cfg.Categories)
	if err != nil {
		return nil, nil, err
	}
	sealer, err := security.NewEphemeralTokenSealer()
	if err != nil {
		return nil, nil, err
	}

	creds := memory.NewCredentialRepo()
	gw := payAdapters.NewNoopPaymentGateway("http://demo.invalid")
	sink := usecase.NewEventSink(events.NewLogPublisher(logger), logger)
	contexts := usecase.NewPaymentContextUseCase(memory.NewPaymentContextRepo(), cfg.L402.ContextTTL, nil, logger)
	issuer := usecase.NewTokenIssuer(creds, nil, logger)
	gate := usecase.NewAccessGate(creds, sink, nil, logger)
	broker := usecase.NewPaymentSessionBroker(catalog, contexts, memory.NewPaymentSessionRepo(), issuer, creds, sealer,
		gw, sink, cfg.L402.SessionTimeout, nil, logger)
	news := content.NewMockNews(catalog.Categories(), 3, 0, time.Now())

	srv := api.NewServer(catalog, contexts, broker, usecase.NewRequestClassifier(gate, logger),
		usecase.NewContentUseCase(gate, news, logger), api.Options{
			Version:   cfg.L402.Version,
			PublicURL: "http://demo.invalid",
			Webhooks:  []adapter.WebhookVerifier{payAdapters.NewNoopWebhook(gw)},
		}, logger)
	return srv, gw, nil
}

// ---- scenarios ----

type challenge struct {
	Version           string `json:"version"`
	PaymentRequestURL string `json:"payment_request_url"`
	ContextToken      string `json:"payment_context_token"`
	Offers            []struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Type     string `json:"type"`
	} `json:"offers"`
}

type session struct {
	ID          string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
	State       string `json:"state"`
	Scope       string `json:"scope"`
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
	SingleUse   bool   `json:"single_use"`
}

func (d *demo) scenarioA(ctx context.Context) error {
	ch, err := d.challenge(ctx, "/")
	if err != nil {
		return err
	}
	for _, o := range ch.Offers {
		d.log.Info().Str("offer", o.ID).Int64("amount", o.Amount).Str("currency", o.Currency).Str("type", o.Type).Msg("offer")
	}
	if len(ch.Offers) != 2 {
		return fmt.Errorf("expected two offers, got %d", len(ch.Offers))
	}
	return nil
}

func (d *demo) scenarioB(ctx context.Context) error {
	ch, err := d.challenge(ctx, "/news/politics")
	if err != nil {
		return err
	}
	s, err := d.requestPayment(ctx, ch.ContextToken, "one_category", "politics")
	if err != nil {
		return err
	}
	d.log.Info().Str("session", s.ID).Str("checkout", s.CheckoutURL).Msg("pending session")

	code, body, err := d.do(ctx, http.MethodPost, "/l402/payment-request", map[string]string{
		"offer_id":              "one_category",
		"payment_context_token": ch.ContextToken,
		"category":              "politics",
	}, "")
	if err != nil {
		return err
	}
	d.log.Info().Int("status", code).Str("body", strings.TrimSpace(string(body))).Msg("reused context token")
	if code != http.StatusConflict {
		return fmt.Errorf("reused context: expected 409, got %d", code)
	}
	return nil
}

func (d *demo) scenarioC(ctx context.Context, category string) error {
	ch, err := d.challenge(ctx, "/news/"+category)
	if err != nil {
		return err
	}
	s, err := d.requestPayment(ctx, ch.ContextToken, "one_category", category)
	if err != nil {
		return err
	}
	if err := d.gateway.Settle(s.ID, adapter.OutcomePaid); err != nil {
		return err
	}
	resolved, err := d.poll(ctx, s.ID)
	if err != nil {
		return err
	}
	d.log.Info().Str("state", resolved.State).Str("scope", resolved.Scope).Bool("single_use", resolved.SingleUse).Msg("session resolved")
	if resolved.AccessToken == "" {
		return errors.New("paid session returned no token")
	}

	for i, want := range []int{http.StatusOK, http.StatusPaymentRequired} {
		code, body, err := d.do(ctx, http.MethodGet, "/news/"+category, nil, resolved.AccessToken)
		if err != nil {
			return err
		}
		d.log.Info().Int("attempt", i+1).Int("status", code).Int("bytes", len(body)).Msg("gated fetch")
		if code != want {
			return fmt.Errorf("attempt %d: expected %d, got %d", i+1, want, code)
		}
	}
	return nil
}

func (d *demo) scenarioD(ctx context.Context) error {
	ch, err := d.challenge(ctx, "/")
	if err != nil {
		return err
	}
	s, err := d.requestPayment(ctx, ch.ContextToken, "all_categories", "")
	if err != nil {
		return err
	}
	code, _, err := d.do(ctx, http.MethodPost, "/webhook/noop", map[string]string{"session_id": s.ID, "outcome": "failed"}, "")
	if err != nil {
		return err
	}
	d.log.Info().Int("status", code).Msg("webhook delivered")
	for i := 0; i < 2; i++ {
		got, err := d.status(ctx, s.ID)
		if err != nil {
			return err
		}
		d.log.Info().Str("state", got.State).Bool("token", got.AccessToken != "").Msg("resolve")
		if got.State != string(model.SessionStateFailed) || got.AccessToken != "" {
			return fmt.Errorf("expected failed without token, got %+v", got)
		}
	}
	return nil
}

// ---- http helpers ----

func (d *demo) challenge(ctx context.Context, path string) (*challenge, error) {
	code, body, err := d.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	if code != http.StatusPaymentRequired {
		return nil, fmt.Errorf("GET %s: expected 402, got %d", path, code)
	}
	var ch challenge
	if err := json.Unmarshal(body, &ch); err != nil {
		return nil, err
	}
	d.log.Info().Str("path", path).Str("version", ch.Version).Str("context", ch.ContextToken).Msg("402 Payment Required")
	return &ch, nil
}

func (d *demo) requestPayment(ctx context.Context, contextToken, offerID, category string) (*session, error) {
	req := map[string]string{"offer_id": offerID, "payment_context_token": contextToken}
	if category != "" {
		req["category"] = category
	}
	code, body, err := d.do(ctx, http.MethodPost, "/l402/payment-request", req, "")
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, fmt.Errorf("payment request: %d %s", code, body)
	}
	var s session
	return &s, json.Unmarshal(body, &s)
}

func (d *demo) status(ctx context.Context, id string) (*session, error) {
	code, body, err := d.do(ctx, http.MethodGet, "/l402/payment-sessions/"+id, nil, "")
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, fmt.Errorf("session status: %d %s", code, body)
	}
	var s session
	return &s, json.Unmarshal(body, &s)
}

func (d *demo) poll(ctx context.Context, id string) (*session, error) {
	for i := 0; i < 10; i++ {
		s, err := d.status(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.State != string(model.SessionStatePending) {
			return s, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil, errors.New("session still pending")
}

func (d *demo) do(ctx context.Context, method, path string, payload any, bearer string) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.base+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", agentUA)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return resp.StatusCode, b, err
}
