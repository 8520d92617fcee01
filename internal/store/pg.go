package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chaintrace/asset-indexer/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new store instance backed by a GORM database
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// Migrate creates or updates the five durable tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&schema.OperationEvent{},
		&schema.EventAssetRef{},
		&schema.Asset{},
		&schema.LineageEdge{},
		&schema.AssetParentRelation{},
		&schema.KeyValueStore{},
	)
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to defaults: MaxOpenConns 20,
// MaxIdleConns 5, ConnMaxLifetime 5m, ConnMaxIdleTime 10m.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// WithTransaction runs fn against a Store bound to one database transaction
func (s *pgStore) WithTransaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&pgStore{db: tx})
	})
}

// InsertOperationEvent appends a raw event; a duplicate (tx_id, log_index)
// pair is swallowed and reported as not-inserted, never as an error
func (s *pgStore) InsertOperationEvent(ctx context.Context, event *schema.OperationEvent) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tx_id"}, {Name: "log_index"}},
			DoNothing: true,
		}).
		Create(event)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert operation event: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	// Index the related assets for relational lookup during history queries
	for _, related := range event.RelatedAssetIDs {
		ref := schema.EventAssetRef{EventID: event.ID, AssetID: related}
		err := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "event_id"}, {Name: "asset_id"}},
				DoNothing: true,
			}).
			Create(&ref).Error
		if err != nil {
			return false, fmt.Errorf("failed to insert event asset ref: %w", err)
		}
	}

	return true, nil
}

// GetUnprocessedEvents returns unprocessed events in [fromBlock, toBlock]
// ordered by (block_number, log_index) - the happened-before order
func (s *pgStore) GetUnprocessedEvents(ctx context.Context, fromBlock, toBlock uint64) ([]schema.OperationEvent, error) {
	var events []schema.OperationEvent
	err := s.db.WithContext(ctx).
		Where("processed = ? AND block_number >= ? AND block_number <= ?", false, fromBlock, toBlock).
		Order("block_number ASC, log_index ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get unprocessed events: %w", err)
	}
	return events, nil
}

// MarkEventsProcessed flips the processed flag for the given event IDs
func (s *pgStore) MarkEventsProcessed(ctx context.Context, eventIDs []uint64) error {
	if len(eventIDs) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).
		Model(&schema.OperationEvent{}).
		Where("id IN ?", eventIDs).
		Update("processed", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark events processed: %w", err)
	}
	return nil
}

// GetEventsByFilter returns events whose subject or related assets intersect
// the filter's asset set, with optional time-range and operation filters
func (s *pgStore) GetEventsByFilter(ctx context.Context, filter EventQueryFilter) ([]schema.OperationEvent, int64, error) {
	if len(filter.AssetIDs) == 0 {
		return []schema.OperationEvent{}, 0, nil
	}

	refSubquery := s.db.
		Model(&schema.EventAssetRef{}).
		Select("event_id").
		Where("asset_id IN ?", filter.AssetIDs)

	query := s.db.WithContext(ctx).
		Model(&schema.OperationEvent{}).
		Where("asset_id IN ? OR id IN (?)", filter.AssetIDs, refSubquery)

	if filter.From != nil {
		query = query.Where("block_time >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("block_time <= ?", *filter.To)
	}
	if len(filter.Operations) > 0 {
		query = query.Where("operation IN ?", filter.Operations)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	var events []schema.OperationEvent
	err := query.
		Order("block_time ASC, block_number ASC, log_index ASC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&events).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get events: %w", err)
	}

	return events, total, nil
}

// GetAssetByAssetID retrieves an asset by its ledger identifier
func (s *pgStore) GetAssetByAssetID(ctx context.Context, assetID string) (*schema.Asset, error) {
	var asset schema.Asset
	err := s.db.WithContext(ctx).Where("asset_id = ?", assetID).First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return &asset, nil
}

// CreateAsset inserts a new asset projection row
func (s *pgStore) CreateAsset(ctx context.Context, asset *schema.Asset) error {
	if err := s.db.WithContext(ctx).Create(asset).Error; err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}
	return nil
}

// SaveAsset persists mutations to an existing asset projection row
func (s *pgStore) SaveAsset(ctx context.Context, asset *schema.Asset) error {
	if err := s.db.WithContext(ctx).Save(asset).Error; err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}
	return nil
}

// InsertLineageEdge inserts a closure edge; an existing (ancestor,
// descendant) pair is left untouched and reported as not-inserted
func (s *pgStore) InsertLineageEdge(ctx context.Context, edge *schema.LineageEdge) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ancestor_id"}, {Name: "descendant_id"}},
			DoNothing: true,
		}).
		Create(edge)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert lineage edge: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GetAncestorEdges returns all closure edges ending at the descendant
func (s *pgStore) GetAncestorEdges(ctx context.Context, descendantID string) ([]schema.LineageEdge, error) {
	var edges []schema.LineageEdge
	err := s.db.WithContext(ctx).
		Where("descendant_id = ?", descendantID).
		Order("depth ASC").
		Find(&edges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get ancestor edges: %w", err)
	}
	return edges, nil
}

// GetDescendantEdges returns all closure edges starting at the ancestor
func (s *pgStore) GetDescendantEdges(ctx context.Context, ancestorID string) ([]schema.LineageEdge, error) {
	var edges []schema.LineageEdge
	err := s.db.WithContext(ctx).
		Where("ancestor_id = ?", ancestorID).
		Order("depth ASC").
		Find(&edges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get descendant edges: %w", err)
	}
	return edges, nil
}

// GetEdgesByAncestors returns all closure edges starting at any of the ancestors
func (s *pgStore) GetEdgesByAncestors(ctx context.Context, ancestorIDs []string) ([]schema.LineageEdge, error) {
	if len(ancestorIDs) == 0 {
		return []schema.LineageEdge{}, nil
	}

	var edges []schema.LineageEdge
	err := s.db.WithContext(ctx).
		Where("ancestor_id IN ?", ancestorIDs).
		Find(&edges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get edges by ancestors: %w", err)
	}
	return edges, nil
}

// CreateParentRelation records one GROUP contribution
func (s *pgStore) CreateParentRelation(ctx context.Context, relation *schema.AssetParentRelation) error {
	if err := s.db.WithContext(ctx).Create(relation).Error; err != nil {
		return fmt.Errorf("failed to create parent relation: %w", err)
	}
	return nil
}

// GetParentRelationsByChild returns the GROUP contributions absorbed by a group asset
func (s *pgStore) GetParentRelationsByChild(ctx context.Context, childAssetID string) ([]schema.AssetParentRelation, error) {
	var relations []schema.AssetParentRelation
	err := s.db.WithContext(ctx).
		Where("child_asset_id = ?", childAssetID).
		Find(&relations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get parent relations: %w", err)
	}
	return relations, nil
}

// GetBlockCursor retrieves the last processed block height for a chain
func (s *pgStore) GetBlockCursor(ctx context.Context, chain string) (uint64, bool, error) {
	key := fmt.Sprintf("block_cursor:%s", chain)

	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil // No cursor stored yet
		}
		return 0, false, fmt.Errorf("failed to get block cursor: %w", err)
	}

	height, err := strconv.ParseUint(kv.Value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("failed to parse block cursor: %w", err)
	}

	return height, true, nil
}

// SetBlockCursor stores the last processed block height for a chain
func (s *pgStore) SetBlockCursor(ctx context.Context, chain string, height uint64) error {
	kv := schema.KeyValueStore{
		Key:   fmt.Sprintf("block_cursor:%s", chain),
		Value: strconv.FormatUint(height, 10),
	}

	if err := s.db.WithContext(ctx).Save(&kv).Error; err != nil {
		return fmt.Errorf("failed to set block cursor: %w", err)
	}
	return nil
}
