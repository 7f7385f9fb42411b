package salesregister

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "salesregister:version"
	// InvalidationChannel receives version bumps whenever invoices are posted or cancelled.
	InvalidationChannel = "sales_invoice.bump"
)

// advanceVersion moves the version forward to ARGV[1] and never backwards, so
// bumps delivered out of order cannot resurrect stale reports.
var advanceVersion = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local candidate = tonumber(ARGV[1])
if candidate > current then
	redis.call('SET', KEYS[1], ARGV[1])
	return candidate
end
return current
`)

// Cache stores built registers in Redis behind a global version counter.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client or zero TTL disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes a versioned key from the request fingerprint.
func (c *Cache) BuildKey(ctx context.Context, fingerprint string) (string, error) {
	sum := sha1.Sum([]byte(fingerprint))
	base := "salesregister:report:" + hex.EncodeToString(sum[:])
	if !c.enabled() {
		return base, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", base, ver), nil
}

// FetchReport loads a cached report or builds and stores it using loader.
func (c *Cache) FetchReport(ctx context.Context, key string, loader func(context.Context) (Report, error)) (Report, bool, error) {
	if loader == nil {
		return Report{}, false, errors.New("salesregister: cache loader required")
	}
	if !c.enabled() {
		report, err := loader(ctx)
		return report, false, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var report Report
		if err := json.Unmarshal(payload, &report); err != nil {
			return Report{}, false, fmt.Errorf("salesregister: decode cached report: %w", err)
		}
		return report, true, nil
	}
	if !errors.Is(err, redis.Nil) {
		return Report{}, false, err
	}
	report, err := loader(ctx)
	if err != nil {
		return Report{}, false, err
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return Report{}, false, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return Report{}, false, err
	}
	return report, false, nil
}

// Bump invalidates every cached report and notifies other instances.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, InvalidationChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation follows version bumps published by other writers
// until ctx is cancelled. Numeric payloads only ever advance the version;
// other payloads come from writers that did not increment it themselves.
func (c *Cache) ListenForInvalidation(ctx context.Context, channel string) error {
	if !c.enabled() {
		return nil
	}
	if strings.TrimSpace(channel) == "" {
		channel = InvalidationChannel
	}
	pubsub := c.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
					_ = advanceVersion.Run(ctx, c.client, []string{cacheVersionKey}, ver).Err()
					continue
				}
				_ = c.client.Incr(ctx, cacheVersionKey).Err()
			}
		}
	}()
	return nil
}
