package store

import (
	"context"
	"time"

	"github.com/chaintrace/asset-indexer/internal/domain"
	"github.com/chaintrace/asset-indexer/internal/store/schema"
)

// EventQueryFilter selects operation events for genealogy history queries.
// An event matches when its subject asset is in AssetIDs, or when any of its
// related assets is.
type EventQueryFilter struct {
	AssetIDs   []string
	From       *time.Time
	To         *time.Time
	Operations []domain.Operation
	Limit      int
	Offset     int
}

// Store defines the interface for database operations.
//
// Mutating methods on the raw event log, the asset projection and the
// lineage index are only ever called by the ingestion path; the query path
// is read-only by construction.
type Store interface {
	// WithTransaction runs fn against a Store bound to one database
	// transaction; fn returning an error rolls back everything
	WithTransaction(ctx context.Context, fn func(tx Store) error) error

	// InsertOperationEvent appends a raw event using the insert-if-absent
	// contract on (tx_id, log_index). Returns false when the event was
	// already ingested.
	InsertOperationEvent(ctx context.Context, event *schema.OperationEvent) (bool, error)
	// GetUnprocessedEvents returns unprocessed events in the block range,
	// ordered by (block_number, log_index)
	GetUnprocessedEvents(ctx context.Context, fromBlock, toBlock uint64) ([]schema.OperationEvent, error)
	// MarkEventsProcessed flips the processed flag for the given event IDs
	MarkEventsProcessed(ctx context.Context, eventIDs []uint64) error
	// GetEventsByFilter returns events touching any of the filter's assets
	// (as subject or related), ordered by (block_time, block_number,
	// log_index) ascending, plus the total match count before pagination
	GetEventsByFilter(ctx context.Context, filter EventQueryFilter) ([]schema.OperationEvent, int64, error)

	// GetAssetByAssetID retrieves an asset projection row, nil when absent
	GetAssetByAssetID(ctx context.Context, assetID string) (*schema.Asset, error)
	// CreateAsset inserts a new asset projection row
	CreateAsset(ctx context.Context, asset *schema.Asset) error
	// SaveAsset persists mutations to an existing asset projection row
	SaveAsset(ctx context.Context, asset *schema.Asset) error

	// InsertLineageEdge inserts a closure edge using the insert-if-absent
	// contract on (ancestor_id, descendant_id). Returns false when the edge
	// already existed.
	InsertLineageEdge(ctx context.Context, edge *schema.LineageEdge) (bool, error)
	// GetAncestorEdges returns all closure edges ending at the descendant
	GetAncestorEdges(ctx context.Context, descendantID string) ([]schema.LineageEdge, error)
	// GetDescendantEdges returns all closure edges starting at the ancestor
	GetDescendantEdges(ctx context.Context, ancestorID string) ([]schema.LineageEdge, error)
	// GetEdgesByAncestors returns all closure edges starting at any of the ancestors
	GetEdgesByAncestors(ctx context.Context, ancestorIDs []string) ([]schema.LineageEdge, error)

	// CreateParentRelation records one GROUP contribution
	CreateParentRelation(ctx context.Context, relation *schema.AssetParentRelation) error
	// GetParentRelationsByChild returns the GROUP contributions absorbed by a group asset
	GetParentRelationsByChild(ctx context.Context, childAssetID string) ([]schema.AssetParentRelation, error)

	// GetBlockCursor retrieves the last processed block height for a chain;
	// ok is false when no cursor has been stored yet, which is distinct from
	// a stored cursor of 0
	GetBlockCursor(ctx context.Context, chain string) (height uint64, ok bool, err error)
	// SetBlockCursor stores the last processed block height for a chain
	SetBlockCursor(ctx context.Context, chain string, height uint64) error
}
