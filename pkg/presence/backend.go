package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("presence: record not found")

// Backend stores presence records.
type Backend interface {
	// Put writes the record for id and adds id to the server's set.
	Put(ctx context.Context, server, id string, fields map[string]string, ttl time.Duration) error

	// Touch extends the TTL of the record and the server's set.
	Touch(ctx context.Context, server, id string, ttl time.Duration) error

	// Delete removes the record and its set membership.
	Delete(ctx context.Context, server, id string) error

	// Members lists the ids in the server's set.
	Members(ctx context.Context, server string) ([]string, error)

	// Get returns the record fields for id.
	Get(ctx context.Context, id string) (map[string]string, error)
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	// Addr like "localhost:6379".
	Addr string

	// KeyPrefix for all keys. Defaults to "sessionkit:".
	KeyPrefix string

	// Client overrides Addr with an existing client.
	Client *redis.Client
}

// RedisBackend stores records as hashes and membership as sets.
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string
	owned     bool
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	cl, owned := cfg.Client, false
	if cl == nil {
		addr := cfg.Addr
		if addr == "" {
			addr = "localhost:6379"
		}
		cl, owned = redis.NewClient(&redis.Options{Addr: addr}), true
	}
	if err := cl.Ping(ctx).Err(); err != nil {
		if owned {
			cl.Close()
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "sessionkit:"
	}
	return &RedisBackend{client: cl, keyPrefix: prefix, owned: owned}, nil
}

// Close closes the client if the backend created it.
func (b *RedisBackend) Close() error {
	if !b.owned {
		return nil
	}
	return b.client.Close()
}

func (b *RedisBackend) sessionKey(id string) string { return b.keyPrefix + "session:" + id }
func (b *RedisBackend) serverKey(id string) string  { return b.keyPrefix + "server:" + id }

// Put implements Backend.
func (b *RedisBackend) Put(ctx context.Context, server, id string, fields map[string]string, ttl time.Duration) error {
	args := make([]any, 0, 2*len(fields))
	for k, v := range fields {
		args = append(args, k, v)
	}
	_, err := b.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, b.sessionKey(id))
		p.HSet(ctx, b.sessionKey(id), args...)
		p.SAdd(ctx, b.serverKey(server), id)
		if ttl > 0 {
			p.Expire(ctx, b.sessionKey(id), ttl)
			p.Expire(ctx, b.serverKey(server), ttl)
		}
		return nil
	})
	return err
}

// Touch implements Backend.
func (b *RedisBackend) Touch(ctx context.Context, server, id string, ttl time.Duration) error {
	_, err := b.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Expire(ctx, b.sessionKey(id), ttl)
		p.Expire(ctx, b.serverKey(server), ttl)
		return nil
	})
	return err
}

// Delete implements Backend.
func (b *RedisBackend) Delete(ctx context.Context, server, id string) error {
	_, err := b.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, b.sessionKey(id))
		p.SRem(ctx, b.serverKey(server), id)
		return nil
	})
	return err
}

// Members implements Backend.
func (b *RedisBackend) Members(ctx context.Context, server string) ([]string, error) {
	ids, err := b.client.SMembers(ctx, b.serverKey(server)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return ids, nil
}

// Get implements Backend.
func (b *RedisBackend) Get(ctx context.Context, id string) (map[string]string, error) {
	fields, err := b.client.HGetAll(ctx, b.sessionKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return fields, nil
}

var _ Backend = (*RedisBackend)(nil)
