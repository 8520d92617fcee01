package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chaintrace/asset-indexer/internal/block"
	"github.com/chaintrace/asset-indexer/internal/domain"
	"github.com/chaintrace/asset-indexer/internal/logger"
	"github.com/chaintrace/asset-indexer/internal/providers/ethereum"
	"github.com/chaintrace/asset-indexer/internal/store"
	"github.com/chaintrace/asset-indexer/internal/store/schema"
	"gorm.io/datatypes"
)

// Decoder pulls raw ledger logs for a block range and appends them to the
// durable event log. Decoding is idempotent: re-reading a range never
// duplicates events because the store collapses on (tx_id, log_index).
type Decoder struct {
	ledger ethereum.LedgerClient
	blocks block.Provider
	store  store.Store
}

// NewDecoder creates a new decoder
func NewDecoder(ledger ethereum.LedgerClient, blocks block.Provider, st store.Store) *Decoder {
	return &Decoder{
		ledger: ledger,
		blocks: blocks,
		store:  st,
	}
}

// DecodeRange ingests all registry logs in [fromBlock, toBlock].
// Returns how many events were newly inserted and how many were skipped
// (duplicates, foreign signatures and malformed payloads).
func (d *Decoder) DecodeRange(ctx context.Context, fromBlock, toBlock uint64) (inserted, skipped int, err error) {
	logs, err := d.ledger.FilterOperationLogs(ctx, fromBlock, toBlock)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch logs: %w", err)
	}

	for _, vLog := range logs {
		record, err := d.ledger.ParseOperationLog(vLog)
		if err != nil {
			if errors.Is(err, domain.ErrUnknownEventSignature) {
				logger.DebugCtx(ctx, "skipping foreign log",
					zap.String("tx_id", vLog.TxHash.Hex()),
					zap.Uint("log_index", vLog.Index))
				skipped++
				continue
			}
			if errors.Is(err, domain.ErrMalformedEvent) {
				logger.WarnCtx(ctx, "skipping malformed registry log",
					zap.String("tx_id", vLog.TxHash.Hex()),
					zap.Uint("log_index", vLog.Index),
					zap.Error(err))
				skipped++
				continue
			}
			return inserted, skipped, fmt.Errorf("failed to parse log %s:%d: %w", vLog.TxHash.Hex(), vLog.Index, err)
		}

		blockTime, err := d.blocks.BlockTime(ctx, record.BlockNumber)
		if err != nil {
			return inserted, skipped, fmt.Errorf("failed to resolve block time for %s: %w", record.Key(), err)
		}
		record.BlockTime = blockTime

		ok, err := d.store.InsertOperationEvent(ctx, eventFromRecord(record))
		if err != nil {
			return inserted, skipped, fmt.Errorf("failed to store event %s: %w", record.Key(), err)
		}
		if !ok {
			logger.DebugCtx(ctx, "event already ingested", zap.String("key", record.Key()))
			skipped++
			continue
		}
		inserted++
	}

	return inserted, skipped, nil
}

// eventFromRecord converts a decoded record to its durable form
func eventFromRecord(r *domain.OperationRecord) *schema.OperationEvent {
	return &schema.OperationEvent{
		TxID:            r.TxID,
		LogIndex:        r.LogIndex,
		AssetID:         r.AssetID,
		Operation:       r.Operation,
		Status:          r.Status,
		BlockNumber:     r.BlockNumber,
		BlockTime:       r.BlockTime,
		Owner:           r.Owner,
		Channel:         r.Channel,
		Location:        r.Location,
		Amount:          r.Amount,
		DataHash:        r.DataHash,
		RelatedAssetIDs: datatypes.NewJSONSlice(r.RelatedAssetIDs),
		RelatedAmounts:  datatypes.NewJSONSlice(r.RelatedAmounts),
	}
}
