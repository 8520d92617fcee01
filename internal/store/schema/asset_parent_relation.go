package schema

import "time"

// AssetParentRelation represents the asset_parent_relations table - the
// many-to-many join written for GROUP operations. Depth-1 closure edges alone
// cannot express which group absorbed how much of which parent; this table
// does.
type AssetParentRelation struct {
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// ParentAssetID is a contributing asset absorbed by the group
	ParentAssetID string `gorm:"column:parent_asset_id;not null;type:text;uniqueIndex:idx_parent_relations_pair,priority:1"`
	// ChildAssetID is the group asset
	ChildAssetID string `gorm:"column:child_asset_id;not null;type:text;uniqueIndex:idx_parent_relations_pair,priority:2;index:idx_parent_relations_child"`
	// SourceEventID references the GROUP operation event that created this relation
	SourceEventID uint64 `gorm:"column:source_event_id;not null"`
	// ContributedAmount is the quantity the parent contributed to the group
	ContributedAmount string `gorm:"column:contributed_amount;type:text"`
	// CreatedAt is the timestamp when this relation was recorded
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime"`
}

// TableName specifies the table name for the AssetParentRelation model
func (AssetParentRelation) TableName() string {
	return "asset_parent_relations"
}
