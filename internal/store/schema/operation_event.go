package schema

import (
	"time"

	"gorm.io/datatypes"

	"github.com/chaintrace/asset-indexer/internal/domain"
)

// OperationEvent represents the operation_events table - the append-only raw
// event log. Rows are written once by the decoder and never mutated except
// for the Processed flag. `(tx_id, log_index)` is the natural key; the unique
// index is what makes re-polling overlapping block ranges safe.
type OperationEvent struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// TxID is the ledger transaction identifier the event was emitted in
	TxID string `gorm:"column:tx_id;not null;type:text;uniqueIndex:idx_operation_events_tx_log,priority:1"`
	// LogIndex is the log position within the block
	LogIndex uint `gorm:"column:log_index;not null;uniqueIndex:idx_operation_events_tx_log,priority:2"`
	// AssetID is the subject asset of the operation
	AssetID string `gorm:"column:asset_id;not null;type:text;index:idx_operation_events_asset"`
	// Operation identifies the lifecycle operation kind
	Operation domain.Operation `gorm:"column:operation;not null;type:text"`
	// Status is the subject asset's status after this operation
	Status domain.AssetStatus `gorm:"column:status;not null;type:text"`
	// BlockNumber is the block height the event was recorded at
	BlockNumber uint64 `gorm:"column:block_number;not null;index:idx_operation_events_block"`
	// BlockTime is the ledger timestamp of the containing block
	BlockTime time.Time `gorm:"column:block_time;not null;type:timestamptz"`
	// Owner is the owner address carried by the event (empty when not applicable)
	Owner string `gorm:"column:owner;type:text"`
	// Channel is the channel/namespace the asset belongs to (CREATE and GROUP only)
	Channel string `gorm:"column:channel;type:text"`
	// Location is the physical/logical location carried by the event
	Location string `gorm:"column:location;type:text"`
	// Amount is the asset quantity, stored as string to support up to 78 digits
	Amount string `gorm:"column:amount;type:text"`
	// DataHash is the hash of the off-ledger payload associated with the event
	DataHash string `gorm:"column:data_hash;type:text"`
	// RelatedAssetIDs are the counterpart assets (SPLIT children, GROUP
	// parents, UNGROUP members, TRANSFORM result)
	RelatedAssetIDs datatypes.JSONSlice[string] `gorm:"column:related_asset_ids"`
	// RelatedAmounts are the per-related-asset quantities, index-aligned with RelatedAssetIDs
	RelatedAmounts datatypes.JSONSlice[string] `gorm:"column:related_amounts"`
	// Processed flags whether the operation processor has applied this event
	Processed bool `gorm:"column:processed;not null;default:false;index:idx_operation_events_processed"`
	// CreatedAt is the timestamp when this record was ingested
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime"`
}

// TableName specifies the table name for the OperationEvent model
func (OperationEvent) TableName() string {
	return "operation_events"
}

// EventAssetRef represents the operation_event_refs table - one row per
// (event, related asset) pair, a relational index over RelatedAssetIDs so
// history queries can match related assets without jsonb containment scans
type EventAssetRef struct {
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// EventID references the operation event
	EventID uint64 `gorm:"column:event_id;not null;uniqueIndex:idx_event_refs_event_asset,priority:1"`
	// AssetID is one entry of the event's RelatedAssetIDs
	AssetID string `gorm:"column:asset_id;not null;type:text;uniqueIndex:idx_event_refs_event_asset,priority:2;index:idx_event_refs_asset"`
}

// TableName specifies the table name for the EventAssetRef model
func (EventAssetRef) TableName() string {
	return "operation_event_refs"
}
