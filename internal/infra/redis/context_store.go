package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.PaymentContextRepository = (*ContextStore)(nil)

// ContextStore keeps each payment context in a hash and indexes deadlines in
// a sorted set for the sweeper. State changes run as Lua scripts so that
// check-and-set is a single server-side step across every replica.
type ContextStore struct {
	c *Client
}

func NewContextStore(c *Client) *ContextStore {
	return &ContextStore{c: c}
}

func (s *ContextStore) hashKey(token string) string { return s.c.key("ctx", token) }
func (s *ContextStore) indexKey() string            { return s.c.key("ctx", "deadlines") }

// KEYS[1]=hash KEYS[2]=index ARGV: state, created_ms, expires_ms, token
var luaSaveContext = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "state", ARGV[1], "created_at", ARGV[2], "expires_at", ARGV[3])
redis.call("ZADD", KEYS[2], ARGV[3], ARGV[4])
return 1`)

// KEYS[1]=hash ARGV[1]=now_ms
var luaConsumeContext = redis.NewScript(`
local state = redis.call("HGET", KEYS[1], "state")
if not state then
	return "missing"
end
if state ~= "open" then
	return state
end
if tonumber(ARGV[1]) >= tonumber(redis.call("HGET", KEYS[1], "expires_at")) then
	redis.call("HSET", KEYS[1], "state", "expired")
	return "expired"
end
redis.call("HSET", KEYS[1], "state", "consumed", "consumed_at", ARGV[1])
return "ok"`)

// KEYS[1]=hash
var luaReopenContext = redis.NewScript(`
local state = redis.call("HGET", KEYS[1], "state")
if not state then
	return "missing"
end
if state == "consumed" then
	redis.call("HSET", KEYS[1], "state", "open")
	redis.call("HDEL", KEYS[1], "consumed_at")
	return "ok"
end
if state == "open" then
	return "ok"
end
return "invalid"`)

func (s *ContextStore) Save(ctx context.Context, pc *model.PaymentContext) error {
	ok, err := luaSaveContext.Run(ctx, s.c.cli,
		[]string{s.hashKey(pc.Token), s.indexKey()},
		string(pc.State), pc.CreatedAt.UnixMilli(), pc.ExpiresAt.UnixMilli(), pc.Token,
	).Int()
	if err != nil {
		return fmt.Errorf("save context: %w", err)
	}
	if ok == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (s *ContextStore) FindByToken(ctx context.Context, token string) (*model.PaymentContext, error) {
	fields, err := s.c.cli.HGetAll(ctx, s.hashKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("load context: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}
	return decodeContext(token, fields)
}

func (s *ContextStore) Consume(ctx context.Context, token string, now time.Time) (*model.PaymentContext, error) {
	res, err := luaConsumeContext.Run(ctx, s.c.cli, []string{s.hashKey(token)}, now.UnixMilli()).Text()
	if err != nil {
		return nil, fmt.Errorf("consume context: %w", err)
	}
	switch res {
	case "ok":
		return s.FindByToken(ctx, token)
	case "missing":
		return nil, domain.ErrNotFound
	case string(model.ContextStateConsumed):
		return nil, domain.ErrAlreadyConsumed
	case string(model.ContextStateExpired):
		return nil, domain.ErrExpired
	default:
		return nil, fmt.Errorf("consume context: unexpected state %q: %w", res, domain.ErrOperationFailed)
	}
}

func (s *ContextStore) Reopen(ctx context.Context, token string) error {
	res, err := luaReopenContext.Run(ctx, s.c.cli, []string{s.hashKey(token)}).Text()
	if err != nil {
		return fmt.Errorf("reopen context: %w", err)
	}
	switch res {
	case "ok":
		return nil
	case "missing":
		return domain.ErrNotFound
	default:
		return domain.ErrInvalidTransition
	}
}

func (s *ContextStore) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	tokens, err := s.c.cli.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan context deadlines: %w", err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(tokens))
	members := make([]interface{}, 0, len(tokens))
	for _, t := range tokens {
		keys = append(keys, s.hashKey(t))
		members = append(members, t)
	}
	_, err = s.c.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keys...)
		p.ZRem(ctx, s.indexKey(), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweep contexts: %w", err)
	}
	return len(tokens), nil
}

func decodeContext(token string, f map[string]string) (*model.PaymentContext, error) {
	created, err1 := strconv.ParseInt(f["created_at"], 10, 64)
	expires, err2 := strconv.ParseInt(f["expires_at"], 10, 64)
	if err := errors.Join(err1, err2); err != nil || f["state"] == "" {
		return nil, errors.Join(domain.ErrReadDatabaseRow, err)
	}
	pc := &model.PaymentContext{
		Token:     token,
		CreatedAt: time.UnixMilli(created).UTC(),
		ExpiresAt: time.UnixMilli(expires).UTC(),
		State:     model.ContextState(f["state"]),
	}
	if v, ok := f["consumed_at"]; ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.Join(domain.ErrReadDatabaseRow, err)
		}
		at := time.UnixMilli(ms).UTC()
		pc.ConsumedAt = &at
	}
	return pc, nil
}
