package dedup

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type memStore struct {
	mu     sync.Mutex
	marks  map[string]time.Time
	claims int
	err    error
}

func newMemStore() *memStore {
	return &memStore{marks: make(map[string]time.Time)}
}

func (m *memStore) LastAlert(_ context.Context, symbol string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return time.Time{}, false, m.err
	}
	t, ok := m.marks[symbol]
	return t, ok, nil
}

func (m *memStore) Claim(_ context.Context, symbol string, at time.Time, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims++
	if m.err != nil {
		return false, m.err
	}
	if last, ok := m.marks[symbol]; ok && at.Sub(last) < window {
		return false, nil
	}
	m.marks[symbol] = at
	return true, nil
}

func (m *memStore) Record(_ context.Context, symbol string, at time.Time, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.marks[symbol] = at
	return nil
}

func TestCache_NoEntryNotSuppressed(t *testing.T) {
	c := New(6 * time.Hour)
	assert.False(t, c.ShouldSuppress(context.Background(), "BTC"))
}

func TestCache_SuppressionWindow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := New(6*time.Hour, WithClock(clock.Now))

	c.MarkAlert(ctx, "BTC")
	assert.True(t, c.ShouldSuppress(ctx, "BTC"), "suppressed immediately after mark")

	clock.Advance(6*time.Hour - time.Second)
	assert.True(t, c.ShouldSuppress(ctx, "BTC"), "still inside window")

	clock.Advance(time.Second)
	assert.False(t, c.ShouldSuppress(ctx, "BTC"), "window elapsed")

	assert.False(t, c.ShouldSuppress(ctx, "ETH"), "other symbols unaffected")
}

func TestCache_WindowPlusOneSecond(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := New(DefaultWindow, WithClock(clock.Now))

	c.MarkAlert(ctx, "ETH")
	require.True(t, c.ShouldSuppress(ctx, "ETH"))

	clock.Advance(c.Window() + time.Second)
	assert.False(t, c.ShouldSuppress(ctx, "ETH"))
}

func TestCache_DefaultWindow(t *testing.T) {
	assert.Equal(t, 6*time.Hour, New(0).Window())
}

func TestCache_TryMark(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := New(time.Hour, WithClock(clock.Now))

	assert.True(t, c.TryMark(ctx, "SOL"))
	assert.False(t, c.TryMark(ctx, "SOL"))

	clock.Advance(time.Hour)
	assert.True(t, c.TryMark(ctx, "SOL"), "claimable again after window")
}

func TestCache_TryMarkConcurrent(t *testing.T) {
	ctx := context.Background()
	c := New(time.Hour)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.TryMark(ctx, "DOGE") {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestCache_StoreBacked(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newMemStore()

	// A mark left by a previous process is honoured.
	store.marks["ADA"] = clock.Now().Add(-time.Hour)
	c := New(6*time.Hour, WithClock(clock.Now), WithStore(store))
	assert.True(t, c.ShouldSuppress(ctx, "ADA"))
	assert.False(t, c.TryMark(ctx, "ADA"))

	clock.Advance(5*time.Hour + time.Second)
	assert.True(t, c.TryMark(ctx, "ADA"))
	assert.Equal(t, clock.Now(), store.marks["ADA"])
}

func TestCache_StoreClaimLost(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newMemStore()
	c := New(6*time.Hour, WithClock(clock.Now), WithStore(store))

	// A second cache sharing the store stands in for another process.
	other := New(6*time.Hour, WithClock(clock.Now), WithStore(store))
	require.True(t, other.TryMark(ctx, "XRP"))

	assert.False(t, c.TryMark(ctx, "XRP"))
}

func TestCache_StoreErrorsFailOpen(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.err = errors.New("connection refused")
	c := New(time.Hour, WithStore(store))

	assert.False(t, c.ShouldSuppress(ctx, "BTC"))
	assert.True(t, c.TryMark(ctx, "BTC"), "in-process mark still taken")
	assert.True(t, c.ShouldSuppress(ctx, "BTC"))
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "")

	at := time.Unix(1_700_000_000, 0)
	val := strconv.FormatInt(at.UnixNano(), 10)
	key := "cryptoscan:alert:BTC"

	mock.ExpectGet(key).RedisNil()
	_, ok, err := store.LastAlert(ctx, "BTC")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectSetNX(key, val, 6*time.Hour).SetVal(true)
	won, err := store.Claim(ctx, "BTC", at, 6*time.Hour)
	require.NoError(t, err)
	assert.True(t, won)

	mock.ExpectSetNX(key, val, 6*time.Hour).SetVal(false)
	won, err = store.Claim(ctx, "BTC", at, 6*time.Hour)
	require.NoError(t, err)
	assert.False(t, won)

	mock.ExpectGet(key).SetVal(val)
	last, ok, err := store.LastAlert(ctx, "BTC")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, last.Equal(at))

	mock.ExpectSet(key, val, time.Hour).SetVal("OK")
	require.NoError(t, store.Record(ctx, "BTC", at, time.Hour))

	mock.ExpectGet(key).SetVal("garbage")
	_, _, err = store.LastAlert(ctx, "BTC")
	assert.Error(t, err)

	mock.ExpectSetNX(key, val, time.Hour).SetErr(errors.New("READONLY"))
	_, err = store.Claim(ctx, "BTC", at, time.Hour)
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
