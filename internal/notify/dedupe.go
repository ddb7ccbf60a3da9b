package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	appLog "schedcal/internal/log"
	"schedcal/internal/reminder"
)

const keyPrefix = "schedcal:notified:"

// Claimer records that a tag has been delivered. Claim reports true only for
// the first caller within ttl.
type Claimer interface {
	Claim(ctx context.Context, tag string, ttl time.Duration) (bool, error)
}

// Dedupe forwards a notification to Next only the first time its tag is
// seen. When the claimer itself fails the notification is delivered anyway:
// a duplicate is better than a lost reminder.
type Dedupe struct {
	Next    reminder.Sink
	Claimer Claimer
	TTL     time.Duration
	Logger  appLog.Logger
}

func (d *Dedupe) Show(ctx context.Context, n reminder.Notification) error {
	if n.Tag == "" || d.Claimer == nil {
		return d.Next.Show(ctx, n)
	}
	first, err := d.Claimer.Claim(ctx, n.Tag, d.TTL)
	if err != nil {
		appLog.OrNop(d.Logger).Error("notify: dedupe unavailable, delivering", err, "tag", n.Tag)
		return d.Next.Show(ctx, n)
	}
	if !first {
		appLog.OrNop(d.Logger).Debug("notify: duplicate suppressed", "tag", n.Tag)
		return nil
	}
	return d.Next.Show(ctx, n)
}

// setNXer is the slice of the go-redis client Dedupe needs.
type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisClaimer claims tags with SET NX so that several processes sharing a
// redis instance deliver each reminder once.
type RedisClaimer struct {
	client setNXer
	closer func() error
}

// NewRedisClaimer connects to redisURL and verifies the connection.
func NewRedisClaimer(redisURL string) (*RedisClaimer, error) {
	url := strings.TrimSpace(redisURL)
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisClaimer{client: client, closer: client.Close}, nil
}

func (c *RedisClaimer) Claim(ctx context.Context, tag string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, keyPrefix+tag, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (c *RedisClaimer) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}

// MemoryClaimer is the single-process fallback used when no redis URL is
// configured. Entries expire after the ttl given at construction.
type MemoryClaimer struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

func NewMemoryClaimer(size int, ttl time.Duration) *MemoryClaimer {
	if size <= 0 {
		size = 4096
	}
	return &MemoryClaimer{seen: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

// Claim ignores ttl; the LRU's own expiry applies.
func (c *MemoryClaimer) Claim(_ context.Context, tag string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen.Contains(tag) {
		return false, nil
	}
	c.seen.Add(tag, struct{}{})
	return true, nil
}
