package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/chaintrace/asset-indexer/internal/adapter"
	"github.com/chaintrace/asset-indexer/internal/block"
)

type blockFetcher struct {
	client adapter.EthClient
}

// NewBlockFetcher creates a block.Fetcher backed by an Ethereum RPC connection
func NewBlockFetcher(client adapter.EthClient) block.Fetcher {
	return &blockFetcher{client: client}
}

// FetchLatestHeight fetches the current chain head height
func (f *blockFetcher) FetchLatestHeight(ctx context.Context) (uint64, error) {
	header, err := f.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch latest header: %w", err)
	}
	return header.Number.Uint64(), nil
}

// FetchBlockTime fetches the timestamp of a block from its header
func (f *blockFetcher) FetchBlockTime(ctx context.Context, height uint64) (time.Time, error) {
	header, err := f.client.HeaderByNumber(ctx, new(big.Int).SetUint64(height))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch header for block %d: %w", height, err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}
