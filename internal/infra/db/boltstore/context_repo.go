package boltstore

import (
	"context"
	"encoding/json"
	"time"

	bolt "github.com/boltdb/bolt"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.PaymentContextRepository = (*contextRepo)(nil)

type contextRepo struct {
	db *bolt.DB
}

func NewPaymentContextRepo(d *DB) *contextRepo {
	return &contextRepo{db: d.db}
}

func (r *contextRepo) Save(_ context.Context, c *model.PaymentContext) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContexts)
		if b.Get([]byte(c.Token)) != nil {
			return domain.ErrAlreadyExists
		}
		return put(b, c.Token, c)
	})
}

func (r *contextRepo) FindByToken(_ context.Context, token string) (*model.PaymentContext, error) {
	var c model.PaymentContext
	err := r.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketContexts), token, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *contextRepo) Consume(_ context.Context, token string, now time.Time) (*model.PaymentContext, error) {
	var (
		c       model.PaymentContext
		consume error
	)
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContexts)
		if err := get(b, token, &c); err != nil {
			return err
		}
		// Persist the expired state too; only a bolt error aborts the tx.
		consume = c.Consume(now)
		return put(b, token, &c)
	})
	if err != nil {
		return nil, err
	}
	if consume != nil {
		return nil, consume
	}
	return &c, nil
}

func (r *contextRepo) Reopen(_ context.Context, token string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContexts)
		var c model.PaymentContext
		if err := get(b, token, &c); err != nil {
			return err
		}
		switch c.State {
		case model.ContextStateOpen:
			return nil
		case model.ContextStateConsumed:
			c.State = model.ContextStateOpen
			c.ConsumedAt = nil
			return put(b, token, &c)
		default:
			return domain.ErrInvalidTransition
		}
	})
}

func (r *contextRepo) SweepExpired(_ context.Context, cutoff time.Time) (int, error) {
	n := 0
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContexts)
		var doomed [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var c model.PaymentContext
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			if c.ExpiresAt.Before(cutoff) {
				doomed = append(doomed, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(doomed)
		return nil
	})
	return n, err
}
