package block

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chaintrace/asset-indexer/internal/adapter"
	"github.com/chaintrace/asset-indexer/internal/logger"
)

// headCache holds the last observed chain head and when it was observed
type headCache struct {
	Height     uint64
	ObservedAt time.Time
}

// timeCache holds a cached block timestamp
type timeCache struct {
	Timestamp time.Time
	CachedAt  time.Time
}

// Provider gives cached access to the chain head height and to block
// timestamps. The poll loop asks for the head every tick and the decoder asks
// for a timestamp per distinct block, so both answers are cached to keep the
// RPC volume flat.
type Provider interface {
	// LatestHeight returns the current chain head height, potentially from cache
	LatestHeight(ctx context.Context) (uint64, error)

	// BlockTime returns the timestamp of a block, potentially from cache
	BlockTime(ctx context.Context, height uint64) (time.Time, error)
}

// Fetcher fetches head and timestamp information from the chain
type Fetcher interface {
	// FetchLatestHeight fetches the current chain head height
	FetchLatestHeight(ctx context.Context) (uint64, error)

	// FetchBlockTime fetches the timestamp of a block
	FetchBlockTime(ctx context.Context, height uint64) (time.Time, error)
}

// Config holds configuration for the Provider
type Config struct {
	// HeadTTL is how long a fetched head height stays fresh
	HeadTTL time.Duration

	// StaleWindow is how long stale cache entries may still be served when a
	// fresh fetch fails; beyond it the fetch error is surfaced
	StaleWindow time.Duration

	// BlockTimeTTL is how long block timestamps stay cached. Confirmed block
	// timestamps never change, so 0 means no expiry.
	BlockTimeTTL time.Duration

	// BlockTimeCacheSize caps how many block timestamps stay cached at once;
	// 0 means the default of 8192. Ingestion walks forward, so entries below
	// a newly cached block are evicted first.
	BlockTimeCacheSize int
}

const defaultBlockTimeCacheSize = 8192

type provider struct {
	fetcher Fetcher
	config  Config
	clock   adapter.Clock

	mu         sync.RWMutex
	head       *headCache
	blockTimes map[uint64]*timeCache
}

// NewProvider creates a caching Provider on top of a Fetcher
func NewProvider(fetcher Fetcher, config Config, clock adapter.Clock) Provider {
	if config.BlockTimeCacheSize == 0 {
		config.BlockTimeCacheSize = defaultBlockTimeCacheSize
	}
	return &provider{
		fetcher:    fetcher,
		config:     config,
		clock:      clock,
		blockTimes: make(map[uint64]*timeCache),
	}
}

// LatestHeight returns the current chain head height, using cache if fresh
func (p *provider) LatestHeight(ctx context.Context) (uint64, error) {
	p.mu.RLock()
	cached := p.head
	p.mu.RUnlock()

	now := p.clock.Now()

	if cached != nil && now.Sub(cached.ObservedAt) < p.config.HeadTTL {
		return cached.Height, nil
	}

	height, err := p.fetcher.FetchLatestHeight(ctx)
	if err != nil {
		if cached != nil && now.Sub(cached.ObservedAt) < p.config.StaleWindow {
			logger.DebugCtx(ctx, "head fetch failed, serving stale height",
				zap.Uint64("height", cached.Height), zap.Error(err))
			return cached.Height, nil
		}
		return 0, fmt.Errorf("failed to fetch chain head and no usable cache: %w", err)
	}

	p.mu.Lock()
	p.head = &headCache{Height: height, ObservedAt: now}
	p.mu.Unlock()

	return height, nil
}

// BlockTime returns the timestamp of a block, using cache if fresh
func (p *provider) BlockTime(ctx context.Context, height uint64) (time.Time, error) {
	p.mu.RLock()
	cached := p.blockTimes[height]
	p.mu.RUnlock()

	now := p.clock.Now()

	if cached != nil && (p.config.BlockTimeTTL == 0 || now.Sub(cached.CachedAt) < p.config.BlockTimeTTL) {
		return cached.Timestamp, nil
	}

	timestamp, err := p.fetcher.FetchBlockTime(ctx, height)
	if err != nil {
		if cached != nil && now.Sub(cached.CachedAt) < p.config.StaleWindow {
			logger.DebugCtx(ctx, "block time fetch failed, serving stale timestamp",
				zap.Uint64("height", height), zap.Error(err))
			return cached.Timestamp, nil
		}
		return time.Time{}, fmt.Errorf("failed to fetch timestamp for block %d and no usable cache: %w", height, err)
	}

	p.mu.Lock()
	if len(p.blockTimes) >= p.config.BlockTimeCacheSize {
		p.evictBlockTimesLocked(height)
	}
	p.blockTimes[height] = &timeCache{Timestamp: timestamp, CachedAt: now}
	p.mu.Unlock()

	return timestamp, nil
}

// evictBlockTimesLocked makes room in the timestamp cache. Entries below the
// incoming block go first; if everything cached is at or above it the cache
// is reset wholesale.
func (p *provider) evictBlockTimesLocked(height uint64) {
	for h := range p.blockTimes {
		if h < height {
			delete(p.blockTimes, h)
		}
	}
	if len(p.blockTimes) >= p.config.BlockTimeCacheSize {
		p.blockTimes = make(map[uint64]*timeCache)
	}
}
