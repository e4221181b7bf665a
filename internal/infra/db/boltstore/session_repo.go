package boltstore

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.PaymentSessionRepository = (*sessionRepo)(nil)

type sessionRepo struct {
	db *bolt.DB
}

func NewPaymentSessionRepo(d *DB) *sessionRepo {
	return &sessionRepo{db: d.db}
}

func (r *sessionRepo) Save(_ context.Context, s *model.PaymentSession) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		if b.Get([]byte(s.ID)) != nil {
			return domain.ErrAlreadyExists
		}
		return put(b, s.ID, s)
	})
}

func (r *sessionRepo) FindByID(_ context.Context, id string) (*model.PaymentSession, error) {
	var s model.PaymentSession
	err := r.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketSessions), id, &s)
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) TransitionFromPending(_ context.Context, id string, to model.SessionState, at time.Time) (bool, error) {
	if !to.IsTerminal() {
		return false, domain.ErrInvalidTransition
	}
	won := false
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		var s model.PaymentSession
		if err := get(b, id, &s); err != nil {
			return err
		}
		if !s.TransitionFromPending(to, at) {
			return nil
		}
		won = true
		return put(b, id, &s)
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

func (r *sessionRepo) AttachCredential(_ context.Context, id, credentialID, sealedToken string) (bool, error) {
	attached := false
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		var s model.PaymentSession
		if err := get(b, id, &s); err != nil {
			return err
		}
		if s.CredentialID != "" {
			return nil
		}
		s.CredentialID = credentialID
		s.SealedToken = sealedToken
		attached = true
		return put(b, id, &s)
	})
	if err != nil {
		return false, err
	}
	return attached, nil
}

func (r *sessionRepo) ClaimSealedToken(_ context.Context, id string) (string, error) {
	var sealed string
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		var s model.PaymentSession
		if err := get(b, id, &s); err != nil {
			return err
		}
		if s.SealedToken == "" {
			return nil
		}
		sealed = s.SealedToken
		s.SealedToken = ""
		return put(b, id, &s)
	})
	if err != nil {
		return "", err
	}
	return sealed, nil
}

func (r *sessionRepo) ListPendingOlderThan(_ context.Context, cutoff time.Time, limit int) ([]*model.PaymentSession, error) {
	var out []*model.PaymentSession
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).ForEach(func(_, v []byte) error {
			var s model.PaymentSession
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			if s.State == model.SessionStatePending && s.CreatedAt.Before(cutoff) {
				out = append(out, &s)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
