package schema

import "time"

// LineageEdge represents the lineage_edges table - the materialized
// transitive closure over parent/child links introduced by SPLIT, GROUP and
// TRANSFORM. For any directed path from an ancestor to a descendant through
// depth-1 edges there is exactly one row whose depth is the path length. The
// unique index backs the insert-if-absent contract used during closure
// extension.
type LineageEdge struct {
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// AncestorID is the ancestor asset identifier
	AncestorID string `gorm:"column:ancestor_id;not null;type:text;uniqueIndex:idx_lineage_ancestor_descendant,priority:1;index:idx_lineage_ancestor"`
	// DescendantID is the descendant asset identifier
	DescendantID string `gorm:"column:descendant_id;not null;type:text;uniqueIndex:idx_lineage_ancestor_descendant,priority:2;index:idx_lineage_descendant"`
	// Depth is the number of depth-1 edges on the path from ancestor to descendant
	Depth int `gorm:"column:depth;not null"`
	// Path is the asset-id chain from ancestor to descendant, '>'-separated
	Path string `gorm:"column:path;not null;type:text"`
	// CreatedAt is the timestamp when this edge was materialized
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime"`
}

// TableName specifies the table name for the LineageEdge model
func (LineageEdge) TableName() string {
	return "lineage_edges"
}
