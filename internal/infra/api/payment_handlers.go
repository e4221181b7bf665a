package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/infra/logging"
	"newspay-l402/internal/infra/metrics"
	"newspay-l402/internal/usecase"
)

const (
	maxRequestBody = 16 << 10
	maxWebhookBody = 64 << 10
)

type paymentRequestBody struct {
	PaymentContextToken string `json:"payment_context_token"`
	OfferID             string `json:"offer_id"`
	Category            string `json:"category,omitempty"`
}

type paymentRequestResponse struct {
	Message     string `json:"message"`
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

type sessionView struct {
	SessionID   string     `json:"session_id"`
	State       string     `json:"state"`
	OfferID     string     `json:"offer_id"`
	Scope       string     `json:"scope,omitempty"`
	AccessToken string     `json:"access_token,omitempty"`
	TokenType   string     `json:"token_type,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	SingleUse   bool       `json:"single_use,omitempty"`
}

func (s *Server) handlePaymentRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.allowPaymentRequest(w, r) {
		return
	}

	var body paymentRequestBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&body); err != nil {
		writeError(w, r, s.log, fmt.Errorf("decode body: %w", domain.ErrInvalidArgument))
		return
	}
	if body.PaymentContextToken == "" || body.OfferID == "" {
		writeError(w, r, s.log, fmt.Errorf("payment_context_token and offer_id are required: %w", domain.ErrInvalidArgument))
		return
	}
	ctx = logging.WithContextToken(ctx, body.PaymentContextToken)

	sess, err := s.broker.Open(ctx, body.PaymentContextToken, body.OfferID, strings.ToLower(strings.TrimSpace(body.Category)))
	if err != nil {
		writeError(w, r.WithContext(ctx), s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentRequestResponse{
		Message:     "Checkout session created",
		CheckoutURL: sess.CheckoutURL,
		SessionID:   sess.ID,
	})
}

// allowPaymentRequest applies the per-client limit. Limiter errors let the
// request through.
func (s *Server) allowPaymentRequest(w http.ResponseWriter, r *http.Request) bool {
	if s.opts.Limiter == nil || s.opts.PaymentRateLimit <= 0 {
		return true
	}
	ok, err := s.opts.Limiter.Allow(r.Context(), "payment_request:"+clientIP(r), s.opts.PaymentRateLimit, time.Minute)
	if err != nil {
		l := logging.With(r.Context(), s.log)
		l.Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		metrics.IncRateLimited("payment_request")
		w.Header().Set("Retry-After", "60")
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate_limited", Message: "too many payment requests"})
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := logging.WithSessionID(r.Context(), id)
	res, err := s.broker.Resolve(ctx, id)
	if err != nil {
		writeError(w, r.WithContext(ctx), s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(res))
}

func newSessionView(res *usecase.Resolution) sessionView {
	v := sessionView{
		SessionID: res.Session.ID,
		State:     string(res.Session.State),
		OfferID:   res.Session.OfferID,
		Scope:     string(res.Session.Scope),
	}
	if c := res.Credential; c != nil && c.Token != "" {
		v.AccessToken = c.Token
		v.TokenType = "Bearer"
		v.ExpiresAt = c.ExpiresAt
		v.SingleUse = c.SingleUse
	}
	return v
}

func (s *Server) handlePaymentSuccess(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		s.renderResult(w, http.StatusBadRequest, resultView{Title: s.text.T("page.result_title"), Class: "fail", Msg: s.text.T("page.missing_session")})
		return
	}
	ctx := logging.WithSessionID(r.Context(), id)
	res, err := s.broker.Resolve(ctx, id)
	if err != nil {
		status, _ := statusFor(err)
		if status == http.StatusInternalServerError {
			l := logging.With(ctx, s.log)
			l.Error().Err(err).Msg("success page resolve failed")
		}
		s.renderResult(w, status, resultView{Title: s.text.T("page.result_title"), Class: "fail", Msg: s.text.T("page.verify_failed"), SessionID: id})
		return
	}
	s.renderResult(w, successStatus(res.Session.State), s.successView(res))
}

func successStatus(st model.SessionState) int {
	if st == model.SessionStatePending {
		return http.StatusAccepted
	}
	return http.StatusOK
}

func (s *Server) successView(res *usecase.Resolution) resultView {
	v := resultView{SessionID: res.Session.ID}
	switch res.Session.State {
	case model.SessionStatePaid:
		v.Title, v.Class = s.text.T("page.paid_title"), "ok"
		v.Msg = s.text.T("page.paid_msg")
		if c := res.Credential; c != nil && c.Token != "" {
			v.Token = c.Token
			v.Scope = s.scopeLabel(c.Scope)
			if c.ExpiresAt != nil {
				v.ExpiresAt = c.ExpiresAt.UTC().Format(time.RFC1123)
			}
		} else {
			v.Msg += " " + s.text.T("page.token_elsewhere")
		}
	case model.SessionStatePending:
		v.Title, v.Class = s.text.T("page.pending_title"), "warn"
		v.Msg = s.text.T("page.pending_msg")
	default:
		v.Title, v.Class = s.text.T("page.unpaid_title"), "fail"
		v.Msg = s.text.T("page.unpaid_msg", res.Session.State)
	}
	return v
}

func (s *Server) scopeLabel(sc model.Scope) string {
	if sc.IsAll() {
		return s.text.T("page.all_categories")
	}
	return string(sc)
}

func (s *Server) handlePaymentCancel(w http.ResponseWriter, r *http.Request) {
	s.renderResult(w, http.StatusOK, resultView{
		Title:     s.text.T("page.cancel_title"),
		Class:     "warn",
		Msg:       s.text.T("page.cancel_msg"),
		SessionID: r.URL.Query().Get("session_id"),
	})
}

func (s *Server) renderResult(w http.ResponseWriter, code int, v resultView) {
	v.Lang = s.text.Lang()
	renderHTML(w, code, s.pages.result, v)
}

type webhookAck struct {
	Received bool   `json:"received"`
	State    string `json:"state,omitempty"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	provider := chi.URLParam(r, "provider")
	v, ok := s.webhooks[provider]
	if !ok {
		writeError(w, r, s.log, fmt.Errorf("webhook %q: %w", provider, domain.ErrUnsupportedProvider))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		metrics.ObserveWebhook(provider, "rejected", "read_body", time.Since(start))
		writeError(w, r, s.log, fmt.Errorf("read webhook body: %w", domain.ErrInvalidArgument))
		return
	}
	sig, ok, err := v.Parse(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		_, code := statusFor(err)
		metrics.ObserveWebhook(provider, "rejected", code, time.Since(start))
		l := logging.With(r.Context(), s.log)
		l.Warn().Err(err).Str("provider", provider).Msg("webhook rejected")
		writeError(w, r, s.log, err)
		return
	}
	if !ok {
		metrics.ObserveWebhook(provider, "ignored", "no_outcome", time.Since(start))
		writeJSON(w, http.StatusOK, webhookAck{Received: true})
		return
	}

	ctx := logging.WithSessionID(r.Context(), sig.SessionID)
	res, err := s.broker.Confirm(ctx, sig)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		// not ours; acknowledge so the provider stops retrying
		metrics.ObserveWebhook(provider, "ignored", "unknown_session", time.Since(start))
		writeJSON(w, http.StatusOK, webhookAck{Received: true})
	case err != nil:
		metrics.ObserveWebhook(provider, "error", "confirm", time.Since(start))
		writeError(w, r.WithContext(ctx), s.log, err)
	default:
		metrics.ObserveWebhook(provider, "ok", "", time.Since(start))
		writeJSON(w, http.StatusOK, webhookAck{Received: true, State: string(res.Session.State)})
	}
}
