package schema

import (
	"time"

	"github.com/chaintrace/asset-indexer/internal/domain"
)

// Asset represents the assets table - the current-state projection, one row
// per asset identifier, reflecting the fold of all processed events in
// `(block_number, log_index)` order. Rows are never deleted; INACTIVE is a
// terminal status for the asset identity.
type Asset struct {
	// ID is the internal database primary key
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// AssetID is the ledger-assigned asset identifier (32-byte hex)
	AssetID string `gorm:"column:asset_id;not null;uniqueIndex;type:text"`
	// Channel is the channel/namespace the asset was created in
	Channel string `gorm:"column:channel;type:text"`
	// Owner is the current owner address
	Owner string `gorm:"column:owner;not null;type:text"`
	// Amount is the current quantity, stored as string to support up to 78 digits
	Amount string `gorm:"column:amount;not null;type:text"`
	// Location is the current physical/logical location
	Location string `gorm:"column:location;type:text"`
	// Status is ACTIVE or INACTIVE
	Status domain.AssetStatus `gorm:"column:status;not null;type:text;index:idx_assets_status"`
	// DataHash is the hash of the latest off-ledger payload
	DataHash string `gorm:"column:data_hash;type:text"`
	// OriginOwner is the owner that first created the root of this asset's
	// lineage; inherited across TRANSFORM
	OriginOwner string `gorm:"column:origin_owner;type:text"`
	// ParentAssetID is the single direct parent for SPLIT children and
	// TRANSFORM results; nil for CREATE and GROUP assets
	ParentAssetID *string `gorm:"column:parent_asset_id;type:text;index:idx_assets_parent"`
	// CreatedAt is the timestamp when this asset was first projected
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime"`
	// LastUpdated is the timestamp of the most recent applied event
	LastUpdated time.Time `gorm:"column:last_updated;not null;autoUpdateTime"`
}

// TableName specifies the table name for the Asset model
func (Asset) TableName() string {
	return "assets"
}
