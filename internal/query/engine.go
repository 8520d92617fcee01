package query

import (
	"context"
	"fmt"
	"time"

	"github.com/chaintrace/asset-indexer/internal/adapter"
	"github.com/chaintrace/asset-indexer/internal/domain"
	"github.com/chaintrace/asset-indexer/internal/lineage"
	"github.com/chaintrace/asset-indexer/internal/store"
	"github.com/chaintrace/asset-indexer/internal/store/schema"
)

const (
	// DefaultLimit is applied when a history request carries no limit
	DefaultLimit = 100
	// MaxLimit caps the page size of a history request
	MaxLimit = 1000
)

// HistoryRequest describes one genealogy history query
type HistoryRequest struct {
	AssetID    string
	Mode       domain.QueryMode
	From       *time.Time
	To         *time.Time
	Operations []domain.Operation
	Limit      int
	Offset     int
	// WithStatistics additionally aggregates over the full matching set,
	// not just the returned page
	WithStatistics bool
}

// Statistics aggregates the full matching event set of a history query.
// DistinctAssets counts every asset appearing in the set, as subject or as a
// related asset.
type Statistics struct {
	TotalEvents     int64                      `json:"total_events"`
	OperationCounts map[domain.Operation]int64 `json:"operation_counts"`
	DistinctOwners  int                        `json:"distinct_owners"`
	DistinctAssets  int                        `json:"distinct_assets"`
	EarliestEvent   *time.Time                 `json:"earliest_event,omitempty"`
	LatestEvent     *time.Time                 `json:"latest_event,omitempty"`
}

// HistoryResponse is the result of a history query
type HistoryResponse struct {
	AssetID         string                   `json:"asset_id"`
	Mode            domain.QueryMode         `json:"mode"`
	Events          []domain.OperationRecord `json:"events"`
	Total           int64                    `json:"total"`
	Limit           int                      `json:"limit"`
	Offset          int                      `json:"offset"`
	Statistics      *Statistics              `json:"statistics,omitempty"`
	ExecutionTimeMs int64                    `json:"execution_time_ms"`
}

// Genealogy describes an asset's position in the lineage graph
type Genealogy struct {
	AssetID     string             `json:"asset_id"`
	Ancestors   []lineage.Relative `json:"ancestors"`
	Descendants []lineage.Relative `json:"descendants"`
	Siblings    []string           `json:"siblings"`
	// GroupContributions lists the GROUP inputs when the asset is a group
	GroupContributions []Contribution `json:"group_contributions,omitempty"`
}

// Contribution is one parent's input into a group asset
type Contribution struct {
	ParentAssetID string `json:"parent_asset_id"`
	Amount        string `json:"amount"`
}

// Engine answers read-side genealogy queries. It never writes.
type Engine struct {
	store store.Store
	index *lineage.Index
	clock adapter.Clock
}

// NewEngine creates a new query engine
func NewEngine(st store.Store, index *lineage.Index, clock adapter.Clock) *Engine {
	return &Engine{store: st, index: index, clock: clock}
}

// History returns the event history of an asset. DIRECT mode covers the asset
// and its ancestor chain; INDIRECT mode additionally covers descendants and
// siblings. Events are returned oldest first.
func (e *Engine) History(ctx context.Context, req HistoryRequest) (*HistoryResponse, error) {
	started := e.clock.Now()

	if !domain.IsValidAssetID(req.AssetID) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidAssetID, req.AssetID)
	}
	if req.Mode == "" {
		req.Mode = domain.QueryModeDirect
	}
	if !domain.IsValidQueryMode(req.Mode) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidQueryMode, req.Mode)
	}
	for _, op := range req.Operations {
		if !domain.IsValidOperation(op) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownOperation, op)
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	asset, err := e.store.GetAssetByAssetID(ctx, req.AssetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrAssetNotFound, req.AssetID)
	}

	assetIDs, err := e.scopeAssets(ctx, req.AssetID, req.Mode)
	if err != nil {
		return nil, err
	}

	filter := store.EventQueryFilter{
		AssetIDs:   assetIDs,
		From:       req.From,
		To:         req.To,
		Operations: req.Operations,
		Limit:      limit,
		Offset:     offset,
	}
	events, total, err := e.store.GetEventsByFilter(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := &HistoryResponse{
		AssetID: req.AssetID,
		Mode:    req.Mode,
		Events:  recordsFromEvents(events),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}

	if req.WithStatistics {
		stats, err := e.aggregate(ctx, filter, events, total, offset)
		if err != nil {
			return nil, err
		}
		resp.Statistics = stats
	}

	resp.ExecutionTimeMs = e.clock.Since(started).Milliseconds()
	return resp, nil
}

// Exists reports whether an asset is known to the projection
func (e *Engine) Exists(ctx context.Context, assetID string) (bool, error) {
	if !domain.IsValidAssetID(assetID) {
		return false, fmt.Errorf("%w: %s", domain.ErrInvalidAssetID, assetID)
	}

	asset, err := e.store.GetAssetByAssetID(ctx, assetID)
	if err != nil {
		return false, err
	}
	return asset != nil, nil
}

// Asset returns the projection row of an asset
func (e *Engine) Asset(ctx context.Context, assetID string) (*schema.Asset, error) {
	if !domain.IsValidAssetID(assetID) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidAssetID, assetID)
	}

	asset, err := e.store.GetAssetByAssetID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrAssetNotFound, assetID)
	}
	return asset, nil
}

// AssetGenealogy returns the asset's relatives in the lineage graph
func (e *Engine) AssetGenealogy(ctx context.Context, assetID string) (*Genealogy, error) {
	if !domain.IsValidAssetID(assetID) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidAssetID, assetID)
	}

	asset, err := e.store.GetAssetByAssetID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrAssetNotFound, assetID)
	}

	ancestors, err := e.index.Ancestors(ctx, assetID)
	if err != nil {
		return nil, err
	}
	descendants, err := e.index.Descendants(ctx, assetID)
	if err != nil {
		return nil, err
	}
	siblings, err := e.index.Siblings(ctx, assetID)
	if err != nil {
		return nil, err
	}

	relations, err := e.store.GetParentRelationsByChild(ctx, assetID)
	if err != nil {
		return nil, err
	}
	contributions := make([]Contribution, 0, len(relations))
	for _, r := range relations {
		contributions = append(contributions, Contribution{
			ParentAssetID: r.ParentAssetID,
			Amount:        r.ContributedAmount,
		})
	}

	return &Genealogy{
		AssetID:            assetID,
		Ancestors:          ancestors,
		Descendants:        descendants,
		Siblings:           siblings,
		GroupContributions: contributions,
	}, nil
}

// scopeAssets resolves the set of asset identifiers a history query covers
func (e *Engine) scopeAssets(ctx context.Context, assetID string, mode domain.QueryMode) ([]string, error) {
	ids := []string{assetID}

	ancestors, err := e.index.Ancestors(ctx, assetID)
	if err != nil {
		return nil, err
	}
	for _, a := range ancestors {
		ids = append(ids, a.AssetID)
	}

	if mode == domain.QueryModeDirect {
		return ids, nil
	}

	descendants, err := e.index.Descendants(ctx, assetID)
	if err != nil {
		return nil, err
	}
	for _, d := range descendants {
		ids = append(ids, d.AssetID)
	}

	siblings, err := e.index.Siblings(ctx, assetID)
	if err != nil {
		return nil, err
	}
	ids = append(ids, siblings...)

	return dedupe(ids), nil
}

// aggregate builds statistics over the full matching set. When the returned
// page already covers everything it is reused; otherwise the filter is
// re-run without pagination.
func (e *Engine) aggregate(ctx context.Context, filter store.EventQueryFilter, page []schema.OperationEvent, total int64, offset int) (*Statistics, error) {
	events := page
	if offset > 0 || int64(len(page)) < total {
		full := filter
		full.Limit = -1
		full.Offset = -1
		var err error
		events, _, err = e.store.GetEventsByFilter(ctx, full)
		if err != nil {
			return nil, err
		}
	}

	stats := &Statistics{
		TotalEvents:     total,
		OperationCounts: make(map[domain.Operation]int64),
	}

	owners := make(map[string]bool)
	assets := make(map[string]bool)
	for i := range events {
		ev := &events[i]
		stats.OperationCounts[ev.Operation]++
		if ev.Owner != "" {
			owners[ev.Owner] = true
		}
		assets[ev.AssetID] = true
		for _, related := range ev.RelatedAssetIDs {
			assets[related] = true
		}

		t := ev.BlockTime
		if stats.EarliestEvent == nil || t.Before(*stats.EarliestEvent) {
			earliest := t
			stats.EarliestEvent = &earliest
		}
		if stats.LatestEvent == nil || t.After(*stats.LatestEvent) {
			latest := t
			stats.LatestEvent = &latest
		}
	}
	stats.DistinctOwners = len(owners)
	stats.DistinctAssets = len(assets)

	return stats, nil
}

// recordsFromEvents converts durable rows into wire-facing records
func recordsFromEvents(events []schema.OperationEvent) []domain.OperationRecord {
	records := make([]domain.OperationRecord, 0, len(events))
	for i := range events {
		ev := &events[i]
		records = append(records, domain.OperationRecord{
			TxID:            ev.TxID,
			LogIndex:        ev.LogIndex,
			AssetID:         ev.AssetID,
			Operation:       ev.Operation,
			Status:          ev.Status,
			BlockNumber:     ev.BlockNumber,
			BlockTime:       ev.BlockTime,
			Owner:           ev.Owner,
			Channel:         ev.Channel,
			Location:        ev.Location,
			Amount:          ev.Amount,
			DataHash:        ev.DataHash,
			RelatedAssetIDs: ev.RelatedAssetIDs,
			RelatedAmounts:  ev.RelatedAmounts,
		})
	}
	return records
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
