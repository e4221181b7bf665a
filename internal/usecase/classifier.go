package usecase

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"newspay-l402/internal/infra/metrics"
)

type Outcome string

const (
	OutcomeServeContent    Outcome = "serve_content"
	OutcomeServeBrowser    Outcome = "serve_browser_view"
	OutcomePaymentRequired Outcome = "payment_required"
)

// RequestMeta is the transport-independent view of an inbound request.
type RequestMeta struct {
	UserAgent    string
	Accept       string
	SecFetchMode string
	SecFetchDest string
	AgentHint    bool // X-AI-Agent, X-Agent-* and similar self-declarations
	BearerToken  string
}

type Classification struct {
	Outcome  Outcome
	Decision Decision // credential verdict when a bearer token was presented
}

var agentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bot\b|bot/`),
	regexp.MustCompile(`(?i)crawler|spider|scraper`),
	regexp.MustCompile(`(?i)headless`),
	regexp.MustCompile(`(?i)^curl/|^wget/|^httpie/`),
	regexp.MustCompile(`(?i)python-requests|python-urllib|aiohttp|httpx`),
	regexp.MustCompile(`(?i)go-http-client|okhttp|java/|node-fetch|axios`),
	regexp.MustCompile(`(?i)openai|anthropic|claude|gpt-?[345]|langchain|autogpt|crewai|llama-?index`),
	regexp.MustCompile(`(?i)mcp-client|aiagent|agent/`),
}

var browserMarkers = []string{"mozilla", "chrome", "safari", "firefox", "edg", "opera"}

// IsInteractiveBrowser is the browser heuristic. It is pure: the same
// metadata always yields the same answer. Anything it cannot place is treated
// as programmatic.
func IsInteractiveBrowser(m RequestMeta) bool {
	ua := strings.TrimSpace(m.UserAgent)
	if ua == "" || m.AgentHint {
		return false
	}
	for _, p := range agentPatterns {
		if p.MatchString(ua) {
			return false
		}
	}
	if strings.EqualFold(m.SecFetchMode, "navigate") || strings.EqualFold(m.SecFetchDest, "document") {
		return true
	}
	lower := strings.ToLower(ua)
	for _, marker := range browserMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// RequestClassifier picks how an inbound content request is served. It never
// fails: anything short of a verified credential or a browser gets the 402.
type RequestClassifier struct {
	gate AccessGate
	log  *zerolog.Logger
}

func NewRequestClassifier(gate AccessGate, logger *zerolog.Logger) *RequestClassifier {
	l := logger.With().Str("component", "RequestClassifier").Logger()
	return &RequestClassifier{gate: gate, log: &l}
}

func (c *RequestClassifier) Classify(ctx context.Context, m RequestMeta, category string) Classification {
	var out Classification
	if m.BearerToken != "" {
		out.Decision = c.gate.Verify(ctx, m.BearerToken, category)
		if out.Decision.Allowed {
			out.Outcome = OutcomeServeContent
			metrics.IncClassification(string(out.Outcome))
			return out
		}
	}
	if IsInteractiveBrowser(m) {
		out.Outcome = OutcomeServeBrowser
	} else {
		out.Outcome = OutcomePaymentRequired
	}
	metrics.IncClassification(string(out.Outcome))
	c.log.Debug().
		Str("outcome", string(out.Outcome)).
		Str("deny_reason", string(out.Decision.Reason)).
		Msg("request classified")
	return out
}
