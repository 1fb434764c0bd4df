package caching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"smartlibrary/internal/models"

	"github.com/google/uuid"
	"github.com/labstack/gommon/random"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "smartlibrary"

// releaseLockScript deletes the lock only if it still carries the caller's token,
// so an expired lock re-acquired by someone else is left alone.
var releaseLockScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

type CacheService interface {
	// Payment history caching. Entries are stored under the user's current
	// history version; DeletePaymentHistory bumps the version, so a write
	// carrying a version read before the bump lands on a key nobody reads.
	GetPaymentHistory(ctx context.Context, userID uuid.UUID) (payments []*models.Payment, version int64, err error)
	SetPaymentHistory(ctx context.Context, userID uuid.UUID, version int64, payments []*models.Payment, ttl time.Duration) error
	DeletePaymentHistory(ctx context.Context, userID uuid.UUID) error

	// Verification locking
	AcquireVerifyLock(ctx context.Context, orderID, paymentID string, ttl time.Duration) (release func(), acquired bool, err error)

	Ping(ctx context.Context) error
}

type redisCacheService struct {
	client *redis.Client
}

// NewRedisClient builds a client, accepting either host:port or a redis:// URL.
func NewRedisClient(addr, password string, db int) *redis.Client {
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if hostPort := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://"); hostPort != addr {
			parsedAddr = hostPort
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		log.Printf("WARN: Redis ping failed on initialization: %v (address: %s)", pingErr, parsedAddr)
	} else {
		log.Printf("DEBUG: Redis connection established (address: %s)", parsedAddr)
	}
	return client
}

func NewRedisCacheService(client *redis.Client) CacheService {
	return &redisCacheService{client: client}
}

func historyKey(userID uuid.UUID, version int64) string {
	return fmt.Sprintf("%s:payments:history:%s:v%d", keyPrefix, userID.String(), version)
}

func historyVersionKey(userID uuid.UUID) string {
	return fmt.Sprintf("%s:payments:history-version:%s", keyPrefix, userID.String())
}

func (r *redisCacheService) historyVersion(ctx context.Context, userID uuid.UUID) (int64, error) {
	version, err := r.client.Get(ctx, historyVersionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return version, err
}

func verifyLockKey(orderID, paymentID string) string {
	return fmt.Sprintf("%s:payments:verify-lock:%s:%s", keyPrefix, orderID, paymentID)
}

func (r *redisCacheService) GetPaymentHistory(ctx context.Context, userID uuid.UUID) ([]*models.Payment, int64, error) {
	version, err := r.historyVersion(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	data, err := r.client.Get(ctx, historyKey(userID, version)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, version, nil // cache miss
		}
		return nil, version, err
	}

	var payments []*models.Payment
	if err := json.Unmarshal(data, &payments); err != nil {
		return nil, version, err
	}
	if payments == nil {
		payments = []*models.Payment{}
	}
	return payments, version, nil
}

func (r *redisCacheService) SetPaymentHistory(ctx context.Context, userID uuid.UUID, version int64, payments []*models.Payment, ttl time.Duration) error {
	data, err := json.Marshal(payments)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, historyKey(userID, version), data, ttl).Err()
}

// DeletePaymentHistory retires the current entry by bumping the user's version.
// Retired entries age out with their TTL.
func (r *redisCacheService) DeletePaymentHistory(ctx context.Context, userID uuid.UUID) error {
	return r.client.Incr(ctx, historyVersionKey(userID)).Err()
}

func (r *redisCacheService) AcquireVerifyLock(ctx context.Context, orderID, paymentID string, ttl time.Duration) (func(), bool, error) {
	key := verifyLockKey(orderID, paymentID)
	token := random.String(24)

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		if err := releaseLockScript.Run(context.Background(), r.client, []string{key}, token).Err(); err != nil {
			log.Printf("WARN: failed to release verify lock %s: %v", key, err)
		}
	}
	return release, true, nil
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
