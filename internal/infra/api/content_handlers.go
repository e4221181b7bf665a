package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/usecase"
)

type newsResponse struct {
	News []model.NewsItem `json:"news"`
}

type offerView struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Amount         int64    `json:"amount"`
	Currency       string   `json:"currency"`
	Type           string   `json:"type"`
	Entitlement    string   `json:"entitlement,omitempty"`
	Duration       string   `json:"duration,omitempty"`
	PaymentMethods []string `json:"payment_methods"`
}

type paymentRequired struct {
	Version             string      `json:"version"`
	PaymentRequestURL   string      `json:"payment_request_url"`
	PaymentContextToken string      `json:"payment_context_token"`
	Offers              []offerView `json:"offers"`
	Error               string      `json:"error,omitempty"`
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "category")))
	if category != "" && !s.catalog.IsCategory(category) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown_category", Message: fmt.Sprintf("no such category %q", category)})
		return
	}

	meta := requestMeta(r)
	cls := s.classifier.Classify(ctx, meta, category)
	switch cls.Outcome {
	case usecase.OutcomeServeContent:
		items, d, err := s.content.Fetch(ctx, meta.BearerToken, category)
		if err != nil {
			writeError(w, r, s.log, err)
			return
		}
		if !d.Allowed {
			// lost a race with another request spending the same single-use token
			s.writePaymentRequired(w, r, d.Reason)
			return
		}
		if items == nil {
			items = []model.NewsItem{}
		}
		writeJSON(w, http.StatusOK, newsResponse{News: items})

	case usecase.OutcomeServeBrowser:
		items, err := s.content.Preview(ctx)
		if err != nil {
			writeError(w, r, s.log, err)
			return
		}
		cats := s.catalog.Categories()
		if category != "" {
			cats = []string{category}
		}
		renderHTML(w, http.StatusOK, s.pages.news, newsView{Lang: s.text.Lang(), Groups: groupNews(cats, items)})

	default:
		s.writePaymentRequired(w, r, cls.Decision.Reason)
	}
}

// writePaymentRequired mints a fresh context and answers 402 with the catalog.
// reason is set when a presented credential was denied.
func (s *Server) writePaymentRequired(w http.ResponseWriter, r *http.Request, reason usecase.DenyReason) {
	pc, err := s.contexts.Create(r.Context())
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	body := paymentRequired{
		Version:             s.opts.Version,
		PaymentRequestURL:   s.opts.PublicURL + "/l402/payment-request",
		PaymentContextToken: pc.Token,
		Offers:              offerViews(s.catalog.List()),
		Error:               string(reason),
	}
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`L402 version=%q, payment_request_url=%q, payment_context_token=%q`,
		body.Version, body.PaymentRequestURL, body.PaymentContextToken))
	writeJSON(w, http.StatusPaymentRequired, body)
}

func offerViews(offers []*model.Offer) []offerView {
	out := make([]offerView, 0, len(offers))
	for _, o := range offers {
		out = append(out, offerView{
			ID:             o.ID,
			Title:          o.Title,
			Description:    o.Description,
			Amount:         o.Amount,
			Currency:       o.Currency,
			Type:           string(o.Type()),
			Entitlement:    string(o.Entitlement),
			Duration:       o.DurationLabel,
			PaymentMethods: o.PaymentMethods,
		})
	}
	return out
}

func requestMeta(r *http.Request) usecase.RequestMeta {
	m := usecase.RequestMeta{
		UserAgent:    r.Header.Get("User-Agent"),
		Accept:       r.Header.Get("Accept"),
		SecFetchMode: r.Header.Get("Sec-Fetch-Mode"),
		SecFetchDest: r.Header.Get("Sec-Fetch-Dest"),
		BearerToken:  bearerToken(r),
	}
	for name := range r.Header {
		if name == "X-Ai-Agent" || strings.HasPrefix(name, "X-Agent-") {
			m.AgentHint = true
			break
		}
	}
	return m
}

func bearerToken(r *http.Request) string {
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}
