package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chaintrace/asset-indexer/internal/adapter"
	"github.com/chaintrace/asset-indexer/internal/block"
	"github.com/chaintrace/asset-indexer/internal/domain"
	"github.com/chaintrace/asset-indexer/internal/logger"
	"github.com/chaintrace/asset-indexer/internal/messaging"
	"github.com/chaintrace/asset-indexer/internal/store"
)

// PollerConfig holds the configuration for the poll loop
type PollerConfig struct {
	Chain domain.Chain

	// GenesisBlock is where ingestion starts when no cursor is stored yet
	GenesisBlock uint64

	// Confirmations is how many blocks behind the head the poller stays to
	// avoid reading blocks that may still be reorganized
	Confirmations uint64

	// PollInterval is the pause between ticks
	PollInterval time.Duration

	// BatchBlocks caps how many blocks one sub-batch covers, bounding both
	// the getLogs response and the processing transaction size
	BatchBlocks uint64
}

// Poller drives ingestion: every tick it walks the confirmed block range
// beyond the stored cursor in bounded sub-batches, decoding then processing
// each sub-batch before moving to the next. A failed sub-batch stops the tick;
// the cursor only ever points at fully processed blocks, so the next tick
// resumes exactly where this one gave up.
type Poller struct {
	config    PollerConfig
	store     store.Store
	decoder   *Decoder
	processor *Processor
	blocks    block.Provider
	publisher messaging.Publisher
	clock     adapter.Clock
}

// NewPoller creates a new poller. The publisher may be nil, in which case
// applied events are not announced.
func NewPoller(
	cfg PollerConfig,
	st store.Store,
	decoder *Decoder,
	processor *Processor,
	blocks block.Provider,
	publisher messaging.Publisher,
	clock adapter.Clock,
) *Poller {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.BatchBlocks == 0 {
		cfg.BatchBlocks = 1000
	}
	return &Poller{
		config:    cfg,
		store:     st,
		decoder:   decoder,
		processor: processor,
		blocks:    blocks,
		publisher: publisher,
		clock:     clock,
	}
}

// Run polls until the context is cancelled. Errors inside a tick are logged
// and retried on the next tick, never fatal.
func (p *Poller) Run(ctx context.Context) error {
	logger.InfoCtx(ctx, "starting poll loop",
		zap.String("chain", string(p.config.Chain)),
		zap.Uint64("genesis_block", p.config.GenesisBlock),
		zap.Uint64("confirmations", p.config.Confirmations),
		zap.Duration("poll_interval", p.config.PollInterval))

	for {
		if err := p.tick(ctx); err != nil {
			logger.ErrorCtx(ctx, fmt.Errorf("poll tick failed: %w", err))
		}

		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "poll loop stopped")
			return ctx.Err()
		case <-p.clock.After(p.config.PollInterval):
		}
	}
}

// tick ingests every confirmed block beyond the cursor, one sub-batch at a time
func (p *Poller) tick(ctx context.Context) error {
	head, err := p.blocks.LatestHeight(ctx)
	if err != nil {
		return err
	}
	if head < p.config.Confirmations {
		return nil
	}
	target := head - p.config.Confirmations

	cursor, ok, err := p.store.GetBlockCursor(ctx, string(p.config.Chain))
	if err != nil {
		return err
	}

	next := p.config.GenesisBlock
	if ok {
		next = cursor + 1
	}
	if next > target {
		return nil
	}

	for from := next; from <= target; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		to := from + p.config.BatchBlocks - 1
		if to > target {
			to = target
		}

		inserted, skipped, err := p.decoder.DecodeRange(ctx, from, to)
		if err != nil {
			return fmt.Errorf("decode %d-%d: %w", from, to, err)
		}
		if inserted > 0 || skipped > 0 {
			logger.DebugCtx(ctx, "decoded block range",
				zap.Uint64("from_block", from),
				zap.Uint64("to_block", to),
				zap.Int("inserted", inserted),
				zap.Int("skipped", skipped))
		}

		applied, err := p.processor.ProcessRange(ctx, from, to)
		if err != nil {
			return fmt.Errorf("process %d-%d: %w", from, to, err)
		}

		p.announce(ctx, applied)

		from = to + 1
	}

	return nil
}

// announce publishes applied-event notifications best-effort; the events are
// already committed, so publish failures are logged and dropped
func (p *Poller) announce(ctx context.Context, applied []domain.AppliedEvent) {
	if p.publisher == nil {
		return
	}

	for i := range applied {
		if err := p.publisher.PublishApplied(ctx, &applied[i]); err != nil {
			logger.WarnCtx(ctx, "failed to publish applied event",
				zap.String("asset_id", applied[i].AssetID),
				zap.String("operation", string(applied[i].Operation)),
				zap.Error(err))
		}
	}
}
