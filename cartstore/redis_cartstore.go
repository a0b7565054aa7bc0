// rocketshoes-cartservice/cartstore/redis_cartstore.go

package cartstore

import (
	"context"
	"time"

	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultPingAttempts = 30
	maxPingBackoff      = 30 * time.Second
)

// RedisCartStore is a cart store backed by Redis. Each user owns one hash;
// slot keys are hash fields.
type RedisCartStore struct {
	client *redis.Client
	log    logrus.FieldLogger

	pingAttempts int
	baseBackoff  time.Duration
}

// NewRedisCartStore takes a Redis address ("hostname:port" or a redis:// URL)
// and returns a store instance.
func NewRedisCartStore(redisAddr string, log logrus.FieldLogger) (*RedisCartStore, error) {
	if redisAddr == "" {
		return nil, errors.New("redis address is empty")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	opts, err := redis.ParseURL(redisAddr)
	if err != nil {
		// Not a "redis://..." URL, use it as a plain address.
		opts = &redis.Options{
			Addr:         redisAddr,
			MinIdleConns: 1,
			MaxRetries:   3,
			DialTimeout:  30 * time.Second,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			PoolSize:     10,
			PoolTimeout:  4 * time.Second,
			IdleTimeout:  180 * time.Second,
		}
	}

	client := redis.NewClient(opts)
	client.AddHook(redisotel.NewTracingHook())

	return newRedisCartStore(client, log), nil
}

func newRedisCartStore(client *redis.Client, log logrus.FieldLogger) *RedisCartStore {
	return &RedisCartStore{
		client:       client,
		log:          log,
		pingAttempts: defaultPingAttempts,
		baseBackoff:  time.Second,
	}
}

// Initialize waits for Redis to answer a ping, backing off exponentially
// between attempts.
func (r *RedisCartStore) Initialize(ctx context.Context) error {
	r.log.Info("RedisCartStore: initializing connection...")

	for i := 0; i < r.pingAttempts; i++ {
		r.log.Debugf("RedisCartStore: attempting Ping (attempt %d/%d)...", i+1, r.pingAttempts)
		if r.Ping(ctx) {
			r.log.Infof("RedisCartStore initialized on attempt %d", i+1)
			return nil
		}

		backoff := r.baseBackoff << uint(i)
		if backoff > maxPingBackoff || backoff <= 0 {
			backoff = maxPingBackoff
		}
		r.log.Infof("RedisCartStore: waiting %v before next attempt", backoff)

		select {
		case <-ctx.Done():
			r.log.Warnf("RedisCartStore: context cancelled during backoff: %v", ctx.Err())
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return errors.Errorf("failed to connect to Redis after %d attempts", r.pingAttempts)
}

// Get reads the slot field key from the user's hash.
func (r *RedisCartStore) Get(ctx context.Context, userID, key string) (string, bool, error) {
	r.log.Debugf("RedisCartStore: Get called (userID=%s, key=%s)", userID, key)

	val, err := r.client.HGet(ctx, userID, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "redis HGet")
	}
	return val, true, nil
}

// Set writes the slot field key in the user's hash.
func (r *RedisCartStore) Set(ctx context.Context, userID, key, value string) error {
	r.log.Debugf("RedisCartStore: Set called (userID=%s, key=%s, bytes=%d)", userID, key, len(value))

	if err := r.client.HSet(ctx, userID, key, value).Err(); err != nil {
		return errors.Wrap(err, "redis HSet")
	}
	return nil
}

// Ping checks whether Redis is alive.
func (r *RedisCartStore) Ping(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.client.Ping(pingCtx).Err(); err != nil {
		r.log.Warnf("RedisCartStore: Ping failed with error: %v", err)
		return false
	}
	return true
}

// Close releases the underlying client.
func (r *RedisCartStore) Close() error {
	return r.client.Close()
}
