// File: internal/usecase/session_broker.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/adapter"
	"newspay-l402/internal/domain/ports/repository"
	"newspay-l402/internal/infra/logging"
	"newspay-l402/internal/infra/metrics"
)

// Compile-time check
var _ PaymentSessionBroker = (*sessionBroker)(nil)

// Resolution is the result of resolving a session. Credential carries the
// bearer token at most once per session: to the call that bound it for a
// buyer, or to the one call that claimed the sealed copy. Issued is true only
// on the call that bound the credential to the session.
type Resolution struct {
	Session    *model.PaymentSession
	Credential *model.BearerCredential
	Issued     bool
}

// TokenSealer keeps an encrypted copy of a token issued on a background path
// (webhook, reconciler) until the buyer collects it.
type TokenSealer interface {
	Seal(token string) (string, error)
	Open(sealed string) (string, error)
}

type PaymentSessionBroker interface {
	// Open consumes the context, opens a provider checkout and records a
	// PENDING session. Provider failures leave no session behind.
	Open(ctx context.Context, contextToken, offerID, category string) (*model.PaymentSession, error)
	// Resolve is the buyer's path: it polls the provider for PENDING sessions
	// and hands out the token of a PAID one the first time only.
	Resolve(ctx context.Context, sessionID string) (*Resolution, error)
	// Reconcile polls like Resolve but never hands out a token; one issued
	// here is sealed for the buyer's next Resolve.
	Reconcile(ctx context.Context, sessionID string) (*model.PaymentSession, error)
	// Confirm applies a pushed provider signal (webhook). Like Reconcile it
	// seals the token instead of returning it.
	Confirm(ctx context.Context, sig adapter.ConfirmationSignal) (*Resolution, error)
	Get(ctx context.Context, sessionID string) (*model.PaymentSession, error)
	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]*model.PaymentSession, error)
}

// delivery says who receives a token issued by the current call.
type delivery int

const (
	deliverToCaller delivery = iota // returned in the Resolution, no copy kept
	deliverSealed                   // sealed on the session for one later pickup
)

type sessionBroker struct {
	catalog  OfferCatalog
	contexts PaymentContextUseCase
	sessions repository.PaymentSessionRepository
	issuer   TokenIssuer
	creds    repository.CredentialRepository
	sealer   TokenSealer
	gateway  adapter.PaymentGateway
	events   *EventSink
	timeout  time.Duration // PENDING sessions older than this expire
	clock    Clock
	log      *zerolog.Logger
}

func NewPaymentSessionBroker(
	catalog OfferCatalog,
	contexts PaymentContextUseCase,
	sessions repository.PaymentSessionRepository,
	issuer TokenIssuer,
	creds repository.CredentialRepository,
	sealer TokenSealer,
	gateway adapter.PaymentGateway,
	events *EventSink,
	sessionTimeout time.Duration,
	clock Clock,
	logger *zerolog.Logger,
) *sessionBroker {
	if sessionTimeout <= 0 {
		sessionTimeout = 24 * time.Hour
	}
	l := logger.With().Str("component", "PaymentSessionBroker").Logger()
	return &sessionBroker{
		catalog:  catalog,
		contexts: contexts,
		sessions: sessions,
		issuer:   issuer,
		creds:    creds,
		sealer:   sealer,
		gateway:  gateway,
		events:   events,
		timeout:  sessionTimeout,
		clock:    clock,
		log:      &l,
	}
}

func (b *sessionBroker) Open(ctx context.Context, contextToken, offerID, category string) (*model.PaymentSession, error) {
	l := logging.With(ctx, b.log)

	offer, err := b.catalog.Get(offerID)
	if err != nil {
		return nil, err
	}
	scope, err := offer.ScopeFor(category)
	if err != nil {
		return nil, err
	}
	if !scope.IsAll() && !b.catalog.IsCategory(string(scope)) {
		return nil, domain.ErrInvalidCategory
	}

	if contextToken == "" {
		return nil, domain.ErrContextNotFound
	}
	if _, err := b.contexts.Consume(ctx, contextToken); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return nil, domain.ErrContextNotFound
		case errors.Is(err, domain.ErrAlreadyConsumed), errors.Is(err, domain.ErrExpired):
			return nil, fmt.Errorf("%w: %w", domain.ErrContextNotOpen, err)
		default:
			return nil, fmt.Errorf("consume context: %w", err)
		}
	}

	// No lock is held here: the consumed context already excludes every
	// concurrent Open on the same token.
	start := time.Now()
	checkout, err := b.gateway.CreateCheckout(ctx, adapter.CheckoutRequest{
		ContextToken:   contextToken,
		OfferID:        offer.ID,
		Scope:          scope,
		Description:    checkoutDescription(offer, scope),
		Amount:         offer.Amount,
		Currency:       offer.Currency,
		PaymentMethods: offer.PaymentMethods,
	})
	metrics.ObserveProviderCall(b.gateway.Name(), "create_checkout", err == nil, time.Since(start))
	if err == nil && (checkout == nil || checkout.ID == "") {
		err = errors.New("provider returned an empty session")
	}
	if err != nil {
		b.reopen(ctx, contextToken)
		l.Warn().Err(err).Str("offer_id", offer.ID).Msg("provider rejected checkout")
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderError, err)
	}

	now := b.clock.now()
	s := model.NewPendingSession(checkout.ID, contextToken, offer, scope, checkout.CheckoutURL, b.gateway.Name(), now)
	if err := b.sessions.Save(ctx, s); err != nil {
		b.reopen(ctx, contextToken)
		l.Error().Err(err).Str("session_id", s.ID).Msg("failed to record pending session")
		return nil, fmt.Errorf("save session: %w", err)
	}

	metrics.IncPaymentSession(string(model.SessionStatePending))
	b.events.emit(ctx, model.PaymentEvent{
		Type:       model.EventSessionOpened,
		SessionID:  s.ID,
		OfferID:    s.OfferID,
		Scope:      s.Scope,
		Amount:     s.Amount,
		Currency:   s.Currency,
		OccurredAt: now,
	})
	l.Info().Str("session_id", s.ID).Str("offer_id", s.OfferID).Str("scope", string(s.Scope)).Msg("payment session opened")
	return s, nil
}

// reopen hands the context back after a failed Open so the caller can retry;
// consumption only sticks once a session exists.
func (b *sessionBroker) reopen(ctx context.Context, token string) {
	if err := b.contexts.Reopen(context.WithoutCancel(ctx), token); err != nil {
		l := logging.With(ctx, b.log)
		l.Warn().Err(err).Msg("could not reopen payment context")
	}
}

func (b *sessionBroker) Get(ctx context.Context, sessionID string) (*model.PaymentSession, error) {
	if sessionID == "" {
		return nil, domain.ErrSessionNotFound
	}
	s, err := b.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

func (b *sessionBroker) Resolve(ctx context.Context, sessionID string) (*Resolution, error) {
	return b.resolve(ctx, sessionID, deliverToCaller)
}

func (b *sessionBroker) Reconcile(ctx context.Context, sessionID string) (*model.PaymentSession, error) {
	res, err := b.resolve(ctx, sessionID, deliverSealed)
	if err != nil {
		return nil, err
	}
	return res.Session, nil
}

func (b *sessionBroker) resolve(ctx context.Context, sessionID string, d delivery) (*Resolution, error) {
	s, err := b.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.State.IsTerminal() {
		return b.settle(ctx, s, d)
	}

	start := time.Now()
	outcome, qerr := b.gateway.QueryStatus(ctx, s.ID)
	metrics.ObserveProviderCall(b.gateway.Name(), "query_status", qerr == nil, time.Since(start))

	timedOut := b.clock.now().Sub(s.CreatedAt) > b.timeout
	switch {
	case qerr == nil && outcome != adapter.OutcomePending:
		return b.apply(ctx, s, outcome.SessionState(), d)
	case timedOut:
		return b.apply(ctx, s, model.SessionStateExpired, d)
	case qerr != nil:
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderError, qerr)
	default:
		return &Resolution{Session: s}, nil
	}
}

func (b *sessionBroker) Confirm(ctx context.Context, sig adapter.ConfirmationSignal) (*Resolution, error) {
	s, err := b.Get(ctx, sig.SessionID)
	if err != nil {
		return nil, err
	}
	if s.State.IsTerminal() {
		return b.settle(ctx, s, deliverSealed)
	}
	if sig.Outcome == adapter.OutcomePending {
		return &Resolution{Session: s}, nil
	}
	return b.apply(ctx, s, sig.Outcome.SessionState(), deliverSealed)
}

func (b *sessionBroker) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]*model.PaymentSession, error) {
	return b.sessions.ListPendingOlderThan(ctx, b.clock.now().Add(-olderThan), limit)
}

// apply performs the one-shot PENDING -> terminal transition. Only the caller
// that wins the compare-and-set emits the transition; a PAID session then goes
// through issue.
func (b *sessionBroker) apply(ctx context.Context, s *model.PaymentSession, to model.SessionState, d delivery) (*Resolution, error) {
	l := logging.With(ctx, b.log)
	now := b.clock.now()

	won, err := b.sessions.TransitionFromPending(ctx, s.ID, to, now)
	if err != nil {
		return nil, fmt.Errorf("transition session: %w", err)
	}
	if !won {
		current, err := b.Get(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		return b.settle(ctx, current, d)
	}
	s.TransitionFromPending(to, now)

	metrics.IncPaymentSession(string(to))
	b.events.emit(ctx, model.PaymentEvent{
		Type:       model.SessionEventType(to),
		SessionID:  s.ID,
		OfferID:    s.OfferID,
		Scope:      s.Scope,
		Amount:     s.Amount,
		Currency:   s.Currency,
		OccurredAt: now,
	})
	if to != model.SessionStatePaid {
		l.Info().Str("session_id", s.ID).Str("state", string(to)).Msg("payment session closed without payment")
		return &Resolution{Session: s}, nil
	}
	metrics.AddPaymentRevenue(s.Currency, s.Amount)
	return b.issue(ctx, s, d)
}

// settle handles a session that is already terminal. A PAID session with no
// credential bound still owes one: the issuing call failed after the
// transition.
func (b *sessionBroker) settle(ctx context.Context, s *model.PaymentSession, d delivery) (*Resolution, error) {
	switch {
	case s.State != model.SessionStatePaid:
		return &Resolution{Session: s}, nil
	case s.CredentialID == "":
		l := logging.With(ctx, b.log)
		l.Warn().Str("session_id", s.ID).Msg("paid session has no credential; issuing")
		return b.issue(ctx, s, d)
	case d == deliverToCaller:
		return b.pickup(ctx, s), nil
	default:
		return &Resolution{Session: s}, nil
	}
}

// issue mints a credential and binds it to the session. The bind is a
// compare-and-set, so racing issuers leave exactly one credential attached;
// the losers' tokens never leave this process.
func (b *sessionBroker) issue(ctx context.Context, s *model.PaymentSession, d delivery) (*Resolution, error) {
	l := logging.With(ctx, b.log)

	offer, err := b.catalog.Get(s.OfferID)
	if err != nil {
		l.Error().Err(err).Str("session_id", s.ID).Str("offer_id", s.OfferID).Msg("paid session references unknown offer")
		return nil, fmt.Errorf("issue credential: %w", err)
	}
	cred, err := b.issuer.Issue(ctx, offer, s.Scope, s.ID)
	if err != nil {
		l.Error().Err(err).Str("session_id", s.ID).Msg("paid session left without credential")
		return nil, err
	}
	var sealedToken string
	if d == deliverSealed {
		sealedToken = b.seal(ctx, cred)
	}
	attached, err := b.sessions.AttachCredential(ctx, s.ID, cred.ID, sealedToken)
	if err != nil {
		l.Error().Err(err).Str("session_id", s.ID).Str("credential_id", cred.ID).Msg("could not attach credential to session")
		return nil, fmt.Errorf("attach credential: %w", err)
	}
	if !attached {
		l.Warn().Str("session_id", s.ID).Str("credential_id", cred.ID).Msg("session already has a credential; discarding")
		current, err := b.Get(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		return b.settle(ctx, current, d)
	}
	s.CredentialID = cred.ID
	s.SealedToken = sealedToken

	b.events.emit(ctx, model.PaymentEvent{
		Type:         model.EventCredentialIssued,
		SessionID:    s.ID,
		OfferID:      s.OfferID,
		CredentialID: cred.ID,
		Scope:        cred.Scope,
		OccurredAt:   b.clock.now(),
	})
	if d == deliverSealed {
		cred.Token = ""
	}
	return &Resolution{Session: s, Credential: cred, Issued: true}, nil
}

func (b *sessionBroker) seal(ctx context.Context, cred *model.BearerCredential) string {
	if b.sealer == nil {
		return ""
	}
	sealedToken, err := b.sealer.Seal(cred.Token)
	if err != nil {
		l := logging.With(ctx, b.log)
		l.Warn().Err(err).Str("credential_id", cred.ID).Msg("token not sealed; it cannot be picked up")
		return ""
	}
	return sealedToken
}

// pickup hands the sealed token of a PAID session to its first collector.
// The claim happens only after the credential lookup succeeded, so a failed
// lookup leaves the token for a later attempt.
func (b *sessionBroker) pickup(ctx context.Context, s *model.PaymentSession) *Resolution {
	res := &Resolution{Session: s}
	if s.SealedToken == "" || b.sealer == nil || b.creds == nil {
		return res
	}
	l := logging.With(ctx, b.log)
	token, err := b.sealer.Open(s.SealedToken)
	if err != nil {
		l.Warn().Err(err).Str("session_id", s.ID).Msg("sealed token cannot be opened")
		return res
	}
	cred, err := b.creds.FindByTokenHash(ctx, model.HashToken(token))
	if err != nil {
		l.Warn().Err(err).Str("session_id", s.ID).Msg("credential of paid session not found")
		return res
	}
	claimed, err := b.sessions.ClaimSealedToken(ctx, s.ID)
	if err != nil {
		l.Warn().Err(err).Str("session_id", s.ID).Msg("sealed token claim failed")
		return res
	}
	s.SealedToken = ""
	if claimed == "" {
		// collected by a concurrent caller
		return res
	}
	cred.Token = token
	res.Credential = cred
	return res
}

func checkoutDescription(offer *model.Offer, scope model.Scope) string {
	if offer.BuyerChoosesCategory() {
		return fmt.Sprintf("Access to %s category", scope)
	}
	return offer.Title
}
