package boltstore

import (
	"context"
	"time"

	bolt "github.com/boltdb/bolt"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.CredentialRepository = (*credentialRepo)(nil)

// credentialRepo keys records by token hash. The json encoding of
// model.BearerCredential omits the plaintext token.
type credentialRepo struct {
	db *bolt.DB
}

func NewCredentialRepo(d *DB) *credentialRepo {
	return &credentialRepo{db: d.db}
}

func (r *credentialRepo) Save(_ context.Context, c *model.BearerCredential) error {
	if c.TokenHash == "" {
		return domain.ErrInvalidArgument
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		if b.Get([]byte(c.TokenHash)) != nil {
			return domain.ErrAlreadyExists
		}
		return put(b, c.TokenHash, c)
	})
}

func (r *credentialRepo) FindByTokenHash(_ context.Context, tokenHash string) (*model.BearerCredential, error) {
	var c model.BearerCredential
	err := r.db.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(bucketCredentials), tokenHash, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *credentialRepo) ConsumeIfUnused(_ context.Context, tokenHash string, at time.Time) (bool, error) {
	won := false
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		var c model.BearerCredential
		if err := get(b, tokenHash, &c); err != nil {
			return err
		}
		if c.Consumed {
			return nil
		}
		c.Consumed = true
		c.ConsumedAt = &at
		won = true
		return put(b, tokenHash, &c)
	})
	if err != nil {
		return false, err
	}
	return won, nil
}
