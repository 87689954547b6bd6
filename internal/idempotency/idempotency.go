// Package idempotency replays the stored response of a request whose
// Idempotency-Key was already used, and keeps concurrent duplicates out.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	redisadapter "github.com/robertarktes/event-seat-inventory/internal/adapters/redis"
)

type Store interface {
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, bool, error)
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

type Idempotency struct {
	redis Store
	ttl   time.Duration
}

func NewIdempotency(redis Store, ttl time.Duration) *Idempotency {
	return &Idempotency{redis: redis, ttl: ttl}
}

type Response struct {
	Status      int
	ContentType string
	Result      []byte
	Fingerprint string
}

type State int

const (
	// Fresh means the caller claimed the key and must Set or Abort it.
	Fresh State = iota
	InFlight
	Completed
)

// Fingerprint identifies a request body so a key reused with a different
// payload can be told apart from a retry.
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method + " " + path + "\n"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Begin looks key up and claims it when unused.
func (i *Idempotency) Begin(ctx context.Context, key string) (State, *Response, error) {
	stored, pending, err := i.redis.Get(ctx, key)
	if err != nil {
		return 0, nil, err
	}
	if pending {
		return InFlight, nil, nil
	}
	if stored != nil {
		return Completed, &Response{
			Status:      stored.Status,
			ContentType: stored.ContentType,
			Result:      stored.Result,
			Fingerprint: stored.Fingerprint,
		}, nil
	}

	claimed, err := i.redis.Claim(ctx, key, i.ttl)
	if err != nil {
		return 0, nil, err
	}
	if !claimed {
		return InFlight, nil, nil
	}
	return Fresh, nil, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	return i.redis.Set(ctx, key, redisadapter.IdempResponse{
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Result:      resp.Result,
		Fingerprint: resp.Fingerprint,
	}, i.ttl)
}

// Abort releases a claimed key so the request can be retried.
func (i *Idempotency) Abort(ctx context.Context, key string) error {
	return i.redis.Forget(ctx, key)
}
