package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Locker keeps a periodic job to one replica per tick. It is satisfied by
// the redis locker; a nil Locker runs every tick locally.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

func acquire(ctx context.Context, l Locker, key string, ttl time.Duration, log *zerolog.Logger) (release func(), ok bool) {
	if l == nil {
		return func() {}, true
	}
	token, err := l.TryLock(ctx, key, ttl)
	if err != nil {
		log.Debug().Err(err).Str("lock", key).Msg("skipping tick; lock not acquired")
		return nil, false
	}
	return func() {
		if err := l.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			log.Warn().Err(err).Str("lock", key).Msg("unlock failed")
		}
	}, true
}
