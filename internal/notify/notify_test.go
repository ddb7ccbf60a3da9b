package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedcal/internal/reminder"
)

type collector struct {
	mu   sync.Mutex
	tags []string
	err  error
}

func (c *collector) Show(_ context.Context, n reminder.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags = append(c.tags, n.Tag)
	return c.err
}

type fakeRedis struct {
	keys map[string]bool
	err  error
	ttl  time.Duration
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ interface{}, ttl time.Duration) *redis.BoolCmd {
	f.ttl = ttl
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if f.keys[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = true
	return redis.NewBoolResult(true, nil)
}

func note(tag string) reminder.Notification {
	return reminder.Notification{Title: "t", Body: "b", Tag: tag}
}

func TestDedupeSuppressesSecondShow(t *testing.T) {
	next := &collector{}
	fr := &fakeRedis{keys: map[string]bool{}}
	d := &Dedupe{Next: next, Claimer: &RedisClaimer{client: fr}, TTL: time.Hour}

	require.NoError(t, d.Show(context.Background(), note("schedule-reminder-a:2024-01-10")))
	require.NoError(t, d.Show(context.Background(), note("schedule-reminder-a:2024-01-10")))
	require.NoError(t, d.Show(context.Background(), note("schedule-reminder-a:2024-01-17")))

	assert.Equal(t, []string{"schedule-reminder-a:2024-01-10", "schedule-reminder-a:2024-01-17"}, next.tags)
	assert.True(t, fr.keys[keyPrefix+"schedule-reminder-a:2024-01-10"])
	assert.Equal(t, time.Hour, fr.ttl)
}

func TestDedupeDeliversWhenRedisFails(t *testing.T) {
	next := &collector{}
	d := &Dedupe{Next: next, Claimer: &RedisClaimer{client: &fakeRedis{err: errors.New("conn refused")}}}

	require.NoError(t, d.Show(context.Background(), note("x")))
	require.NoError(t, d.Show(context.Background(), note("x")))
	assert.Len(t, next.tags, 2)
}

func TestDedupeWithoutTagAlwaysDelivers(t *testing.T) {
	next := &collector{}
	d := &Dedupe{Next: next, Claimer: NewMemoryClaimer(8, time.Hour)}
	require.NoError(t, d.Show(context.Background(), note("")))
	require.NoError(t, d.Show(context.Background(), note("")))
	assert.Len(t, next.tags, 2)
}

func TestMemoryClaimer(t *testing.T) {
	c := NewMemoryClaimer(8, time.Hour)
	first, err := c.Claim(context.Background(), "a", 0)
	require.NoError(t, err)
	assert.True(t, first)
	again, err := c.Claim(context.Background(), "a", 0)
	require.NoError(t, err)
	assert.False(t, again)
}

func TestMultiAttemptsAll(t *testing.T) {
	a := &collector{err: errors.New("a down")}
	b := &collector{}
	err := Multi{a, nil, b}.Show(context.Background(), note("t"))
	assert.ErrorContains(t, err, "a down")
	assert.Equal(t, []string{"t"}, b.tags)
}

func TestFuncAndLogSink(t *testing.T) {
	called := false
	f := Func(func(context.Context, reminder.Notification) error {
		called = true
		return nil
	})
	require.NoError(t, f.Show(context.Background(), note("t")))
	assert.True(t, called)
	assert.NoError(t, LogSink{}.Show(context.Background(), note("t")))
}

func TestNewRedisClaimerRequiresURL(t *testing.T) {
	_, err := NewRedisClaimer(" ")
	assert.Error(t, err)
	_, err = NewRedisClaimer("not a url")
	assert.Error(t, err)
}
