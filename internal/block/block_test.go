package block_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaintrace/asset-indexer/internal/block"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time                         { return c.now }
func (c *fakeClock) Since(t time.Time) time.Duration        { return c.now.Sub(t) }
func (c *fakeClock) After(d time.Duration) <-chan time.Time { return nil }

type fakeFetcher struct {
	height      uint64
	heightErr   error
	heightCalls int

	blockTime time.Time
	timeErr   error
	timeCalls int
}

func (f *fakeFetcher) FetchLatestHeight(ctx context.Context) (uint64, error) {
	f.heightCalls++
	return f.height, f.heightErr
}

func (f *fakeFetcher) FetchBlockTime(ctx context.Context, height uint64) (time.Time, error) {
	f.timeCalls++
	return f.blockTime, f.timeErr
}

func newProvider(fetcher *fakeFetcher, clock *fakeClock) block.Provider {
	return block.NewProvider(fetcher, block.Config{
		HeadTTL:     10 * time.Second,
		StaleWindow: 2 * time.Minute,
	}, clock)
}

func TestLatestHeight_CachesWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	fetcher := &fakeFetcher{height: 1000}
	provider := newProvider(fetcher, clock)
	ctx := context.Background()

	height, err := provider.LatestHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), height)
	assert.Equal(t, 1, fetcher.heightCalls)

	// Within TTL: served from cache even though the chain moved
	fetcher.height = 1001
	clock.now = clock.now.Add(5 * time.Second)

	height, err = provider.LatestHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), height)
	assert.Equal(t, 1, fetcher.heightCalls)

	// Past TTL: refreshed
	clock.now = clock.now.Add(10 * time.Second)
	height, err = provider.LatestHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1001), height)
	assert.Equal(t, 2, fetcher.heightCalls)
}

func TestLatestHeight_ServesStaleOnFetchFailure(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	fetcher := &fakeFetcher{height: 1000}
	provider := newProvider(fetcher, clock)
	ctx := context.Background()

	_, err := provider.LatestHeight(ctx)
	require.NoError(t, err)

	// Fetch starts failing past the TTL but within the stale window
	fetcher.heightErr = errors.New("rpc down")
	clock.now = clock.now.Add(30 * time.Second)

	height, err := provider.LatestHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), height)

	// Past the stale window the failure surfaces
	clock.now = clock.now.Add(3 * time.Minute)
	_, err = provider.LatestHeight(ctx)
	assert.Error(t, err)
}

func TestLatestHeight_FailsWithoutCache(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	fetcher := &fakeFetcher{heightErr: errors.New("rpc down")}
	provider := newProvider(fetcher, clock)

	_, err := provider.LatestHeight(context.Background())
	assert.Error(t, err)
}

func TestBlockTime_CachedForever(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	ts := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{blockTime: ts}
	provider := newProvider(fetcher, clock)
	ctx := context.Background()

	got, err := provider.BlockTime(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, ts, got)
	assert.Equal(t, 1, fetcher.timeCalls)

	// Confirmed block timestamps never change: cache has no expiry
	clock.now = clock.now.Add(24 * time.Hour)
	fetcher.timeErr = errors.New("rpc down")

	got, err = provider.BlockTime(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, ts, got)
	assert.Equal(t, 1, fetcher.timeCalls)

	// A different block is a cache miss and surfaces the failure
	_, err = provider.BlockTime(ctx, 43)
	assert.Error(t, err)
}

func TestBlockTime_CacheStaysBounded(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	fetcher := &fakeFetcher{blockTime: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
	provider := block.NewProvider(fetcher, block.Config{
		HeadTTL:            10 * time.Second,
		StaleWindow:        2 * time.Minute,
		BlockTimeCacheSize: 3,
	}, clock)
	ctx := context.Background()

	for height := uint64(1); height <= 3; height++ {
		_, err := provider.BlockTime(ctx, height)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, fetcher.timeCalls)

	// The cache is full: caching block 10 evicts the older blocks
	_, err := provider.BlockTime(ctx, 10)
	require.NoError(t, err)

	_, err = provider.BlockTime(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, fetcher.timeCalls)

	// The newest block survived the eviction
	_, err = provider.BlockTime(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, fetcher.timeCalls)
}
