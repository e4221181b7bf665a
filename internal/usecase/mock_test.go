//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/adapter"
	"newspay-l402/internal/domain/ports/repository"
	"newspay-l402/internal/infra/db/memory"
	"newspay-l402/internal/usecase"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// stepClock is a settable clock shared by every component of a test.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock { return &stepClock{now: t0} }

func (c *stepClock) Clock() usecase.Clock {
	return func() time.Time {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.now
	}
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// =============================
// Adapters
// =============================

type MockPaymentGateway struct {
	NameVal string

	CreateCheckoutFunc func(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error)
	QueryStatusFunc    func(ctx context.Context, sessionID string) (adapter.PaymentOutcome, error)

	mu       sync.Mutex
	requests []adapter.CheckoutRequest
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Name() string {
	if m.NameVal == "" {
		return "mockpay"
	}
	return m.NameVal
}

func (m *MockPaymentGateway) CreateCheckout(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.CreateCheckoutFunc != nil {
		return m.CreateCheckoutFunc(ctx, req)
	}
	id := "cs_" + uuid.NewString()
	return &adapter.CheckoutSession{ID: id, CheckoutURL: "https://pay.example/" + id}, nil
}

func (m *MockPaymentGateway) QueryStatus(ctx context.Context, sessionID string) (adapter.PaymentOutcome, error) {
	if m.QueryStatusFunc != nil {
		return m.QueryStatusFunc(ctx, sessionID)
	}
	return adapter.OutcomePending, nil
}

func (m *MockPaymentGateway) Requests() []adapter.CheckoutRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]adapter.CheckoutRequest(nil), m.requests...)
}

type MockEventPublisher struct {
	PublishFunc func(ctx context.Context, ev model.PaymentEvent) error

	mu     sync.Mutex
	events []model.PaymentEvent
}

var _ adapter.EventPublisher = (*MockEventPublisher)(nil)

func (m *MockEventPublisher) Publish(ctx context.Context, ev model.PaymentEvent) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, ev)
	}
	return nil
}

func (m *MockEventPublisher) Close() error { return nil }

func (m *MockEventPublisher) Types() []model.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.EventType, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Type)
	}
	return out
}

func (m *MockEventPublisher) Count(t model.EventType) int {
	n := 0
	for _, got := range m.Types() {
		if got == t {
			n++
		}
	}
	return n
}

type MockContentProvider struct {
	ListFunc func(ctx context.Context, scope model.Scope) ([]model.NewsItem, error)
}

var _ adapter.ContentProvider = (*MockContentProvider)(nil)

func (m *MockContentProvider) Categories() []string { return []string{"politics", "sports"} }

func (m *MockContentProvider) List(ctx context.Context, scope model.Scope) ([]model.NewsItem, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, scope)
	}
	all := []model.NewsItem{
		{Timestamp: t0, Title: "Politics: a", Category: "politics"},
		{Timestamp: t0.Add(-time.Minute), Title: "Sports: b", Category: "sports"},
	}
	if scope.IsAll() {
		return all, nil
	}
	var out []model.NewsItem
	for _, it := range all {
		if it.Category == string(scope) {
			out = append(out, it)
		}
	}
	return out, nil
}

// =============================
// Repositories
// =============================

// MockSessionRepo wraps the in-memory store so single calls can be failed.
type MockSessionRepo struct {
	repository.PaymentSessionRepository
	SaveFunc func(ctx context.Context, s *model.PaymentSession) error
}

func (m *MockSessionRepo) Save(ctx context.Context, s *model.PaymentSession) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, s)
	}
	return m.PaymentSessionRepository.Save(ctx, s)
}

type MockCredentialRepo struct {
	repository.CredentialRepository
	SaveFunc            func(ctx context.Context, c *model.BearerCredential) error
	FindByTokenHashFunc func(ctx context.Context, hash string) (*model.BearerCredential, error)
}

func (m *MockCredentialRepo) Save(ctx context.Context, c *model.BearerCredential) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, c)
	}
	return m.CredentialRepository.Save(ctx, c)
}

func (m *MockCredentialRepo) FindByTokenHash(ctx context.Context, hash string) (*model.BearerCredential, error) {
	if m.FindByTokenHashFunc != nil {
		return m.FindByTokenHashFunc(ctx, hash)
	}
	return m.CredentialRepository.FindByTokenHash(ctx, hash)
}

// plainSealer is a reversible stand-in for the AES sealer.
type plainSealer struct{}

func (plainSealer) Seal(token string) (string, error)  { return "sealed:" + token, nil }
func (plainSealer) Open(sealed string) (string, error) { return sealed[len("sealed:"):], nil }

// =============================
// Fixture
// =============================

type l402Deps struct {
	clock    *stepClock
	gateway  *MockPaymentGateway
	events   *MockEventPublisher
	contexts usecase.PaymentContextUseCase
	sessions *MockSessionRepo
	creds    *MockCredentialRepo
	catalog  usecase.OfferCatalog
	issuer   usecase.TokenIssuer
	gate     usecase.AccessGate
	broker   usecase.PaymentSessionBroker
}

func testOffers() []*model.Offer {
	one, _ := model.NewOffer("one_category", "Single Category Access", "", 100, "USD", "", 0, "", []string{"stripe"})
	all, _ := model.NewOffer("all_categories", "All Categories Access", "", 500, "USD", model.ScopeAll, 30*24*time.Hour, "1 month", []string{"stripe"})
	sports, _ := model.NewOffer("sports_week", "Sports week", "", 250, "EUR", "sports", 7*24*time.Hour, "1 week", []string{"stripe"})
	return []*model.Offer{one, all, sports}
}

func newL402Deps() *l402Deps {
	log := newTestLogger()
	d := &l402Deps{
		clock:    newStepClock(),
		gateway:  &MockPaymentGateway{},
		events:   &MockEventPublisher{},
		sessions: &MockSessionRepo{PaymentSessionRepository: memory.NewPaymentSessionRepo()},
		creds:    &MockCredentialRepo{CredentialRepository: memory.NewCredentialRepo()},
	}
	clock := d.clock.Clock()
	sink := usecase.NewEventSink(d.events, log)
	catalog, err := usecase.NewOfferCatalog(testOffers(), []string{"politics", "sports", "economy"})
	if err != nil {
		panic(err)
	}
	d.catalog = catalog
	d.contexts = usecase.NewPaymentContextUseCase(memory.NewPaymentContextRepo(), 15*time.Minute, clock, log)
	d.issuer = usecase.NewTokenIssuer(d.creds, clock, log)
	d.gate = usecase.NewAccessGate(d.creds, sink, clock, log)
	d.broker = usecase.NewPaymentSessionBroker(d.catalog, d.contexts, d.sessions, d.issuer, d.creds, plainSealer{}, d.gateway, sink, 24*time.Hour, clock, log)
	return d
}

// paid walks a fresh context through Open and a paid confirmation.
func (d *l402Deps) paid(ctx context.Context, offerID, category string) (*usecase.Resolution, error) {
	pc, err := d.contexts.Create(ctx)
	if err != nil {
		return nil, err
	}
	s, err := d.broker.Open(ctx, pc.Token, offerID, category)
	if err != nil {
		return nil, err
	}
	return d.broker.Confirm(ctx, adapter.ConfirmationSignal{SessionID: s.ID, Outcome: adapter.OutcomePaid})
}
