package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const pendingMarker = "pending"

type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

type IdempResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Result      []byte `json:"result"`
	Fingerprint string `json:"fingerprint"`
}

// Get returns the stored response for key. pending is true while the first
// request with this key is still running.
func (i *Idempotency) Get(ctx context.Context, key string) (resp *IdempResponse, pending bool, err error) {
	val, err := i.client.Get(ctx, "idemp:"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if string(val) == pendingMarker {
		return nil, true, nil
	}
	var r IdempResponse
	if err := json.Unmarshal(val, &r); err != nil {
		return nil, false, err
	}
	return &r, false, nil
}

// Claim marks key as in flight. It reports false when another request holds
// the key or already completed with it.
func (i *Idempotency) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return i.client.SetNX(ctx, "idemp:"+key, pendingMarker, ttl).Result()
}

func (i *Idempotency) Set(ctx context.Context, key string, resp IdempResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return i.client.Set(ctx, "idemp:"+key, data, ttl).Err()
}

func (i *Idempotency) Forget(ctx context.Context, key string) error {
	return i.client.Del(ctx, "idemp:"+key).Err()
}
