package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"newspay-l402/internal/infra/logging"
	"newspay-l402/internal/infra/metrics"
)

const adminSessionsRoute = "/admin/sessions/{id}"

type adminSessionView struct {
	SessionID    string     `json:"session_id"`
	ContextToken string     `json:"context_token"`
	OfferID      string     `json:"offer_id"`
	Scope        string     `json:"scope"`
	State        string     `json:"state"`
	Checkout     string     `json:"checkout_reference"`
	Provider     string     `json:"provider"`
	Amount       int64      `json:"amount"`
	Currency     string     `json:"currency"`
	CredentialID string     `json:"credential_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.opts.Admin.ParseFromRequest(r)
		if err != nil {
			metrics.IncAdminRequest(adminSessionsRoute, "unauthorized")
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: err.Error()})
			return
		}
		l := logging.With(r.Context(), s.log)
		l.Debug().Str("admin", claims.Subject).Str("path", r.URL.Path).Msg("admin request")
		next.ServeHTTP(w, r)
	})
}

// handleAdminSession is the read-only audit view; it never polls the provider.
func (s *Server) handleAdminSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.broker.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		_, code := statusFor(err)
		metrics.IncAdminRequest(adminSessionsRoute, code)
		writeError(w, r, s.log, err)
		return
	}
	metrics.IncAdminRequest(adminSessionsRoute, "ok")
	writeJSON(w, http.StatusOK, adminSessionView{
		SessionID:    sess.ID,
		ContextToken: logging.Redact(sess.ContextToken, false),
		OfferID:      sess.OfferID,
		Scope:        string(sess.Scope),
		State:        string(sess.State),
		Checkout:     sess.CheckoutURL,
		Provider:     sess.Provider,
		Amount:       sess.Amount,
		Currency:     sess.Currency,
		CredentialID: sess.CredentialID,
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    sess.UpdatedAt,
		ResolvedAt:   sess.ResolvedAt,
	})
}
