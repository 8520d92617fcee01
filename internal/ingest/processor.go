package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chaintrace/asset-indexer/internal/domain"
	"github.com/chaintrace/asset-indexer/internal/logger"
	"github.com/chaintrace/asset-indexer/internal/store"
	"github.com/chaintrace/asset-indexer/internal/store/schema"
)

// Processor folds ingested events into the asset projection and the lineage
// index. One call to ProcessRange applies every unprocessed event of the
// range inside a single database transaction; a structural violation rolls
// the whole range back so the projection never holds a half-applied batch.
type Processor struct {
	store store.Store
	chain domain.Chain
}

// NewProcessor creates a new processor
func NewProcessor(st store.Store, chain domain.Chain) *Processor {
	return &Processor{store: st, chain: chain}
}

// ProcessRange applies all unprocessed events in [fromBlock, toBlock] in
// (block_number, log_index) order and advances the block cursor to toBlock.
// Everything happens in one transaction. The returned notifications describe
// the applied events and are only valid after the call returns nil.
func (p *Processor) ProcessRange(ctx context.Context, fromBlock, toBlock uint64) ([]domain.AppliedEvent, error) {
	var applied []domain.AppliedEvent

	err := p.store.WithTransaction(ctx, func(tx store.Store) error {
		events, err := tx.GetUnprocessedEvents(ctx, fromBlock, toBlock)
		if err != nil {
			return err
		}

		processedIDs := make([]uint64, 0, len(events))
		for i := range events {
			event := &events[i]
			if err := p.applyEvent(ctx, tx, event); err != nil {
				return fmt.Errorf("failed to apply %s event %s:%d for asset %s: %w",
					event.Operation, event.TxID, event.LogIndex, event.AssetID, err)
			}
			processedIDs = append(processedIDs, event.ID)
			applied = append(applied, domain.AppliedEvent{
				Chain:           p.chain,
				AssetID:         event.AssetID,
				Operation:       event.Operation,
				TxID:            event.TxID,
				LogIndex:        event.LogIndex,
				BlockNumber:     event.BlockNumber,
				BlockTime:       event.BlockTime,
				Owner:           event.Owner,
				RelatedAssetIDs: event.RelatedAssetIDs,
			})
		}

		if err := tx.MarkEventsProcessed(ctx, processedIDs); err != nil {
			return err
		}

		return tx.SetBlockCursor(ctx, string(p.chain), toBlock)
	})
	if err != nil {
		return nil, err
	}

	if len(applied) > 0 {
		logger.InfoCtx(ctx, "processed event range",
			zap.Uint64("from_block", fromBlock),
			zap.Uint64("to_block", toBlock),
			zap.Int("applied", len(applied)))
	}

	return applied, nil
}

// applyEvent dispatches one event to its operation handler. The switch is
// exhaustive over the operation enum; an unknown value is a hard error, not
// a skip.
func (p *Processor) applyEvent(ctx context.Context, tx store.Store, event *schema.OperationEvent) error {
	switch event.Operation {
	case domain.OperationCreate:
		return p.applyCreate(ctx, tx, event)
	case domain.OperationUpdate:
		return p.applyUpdate(ctx, tx, event)
	case domain.OperationTransfer:
		return p.applyTransfer(ctx, tx, event)
	case domain.OperationSplit:
		return p.applySplit(ctx, tx, event)
	case domain.OperationGroup:
		return p.applyGroup(ctx, tx, event)
	case domain.OperationUngroup:
		return p.applyUngroup(ctx, tx, event)
	case domain.OperationTransform:
		return p.applyTransform(ctx, tx, event)
	case domain.OperationInactivate:
		return p.applyInactivate(ctx, tx, event)
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnknownOperation, event.Operation)
	}
}

// applyCreate registers a brand-new asset
func (p *Processor) applyCreate(ctx context.Context, tx store.Store, event *schema.OperationEvent) error {
	existing, err := tx.GetAssetByAssetID(ctx, event.AssetID)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.ErrAssetExists
	}

	return tx.CreateAsset(ctx, &schema.Asset{
		AssetID:     event.AssetID,
		Channel:     event.Channel,
		Owner:       event.Owner,
		Amount:      event.Amount,
		Location:    event.Location,
		Status:      domain.StatusActive,
		DataHash:    event.DataHash,
		OriginOwner: event.Owner,
	})
}

// applyUpdate mutates the metadata of an existing active asset
func (p *Processor) applyUpdate(ctx context.Context, tx store.Store, event *schema.OperationEvent) error {
	asset, err := p.activeAsset(ctx, tx, event.AssetID)
	if err != nil {
		return err
	}

	if event.Amount != "" {
		asset.Amount = event.Amount
	}
	if event.Location != "" {
		asset.Location = event.Location
	}
	if event.DataHash != "" {
		asset.DataHash = event.DataHash
	}

	return tx.SaveAsset(ctx, asset)
}

// applyTransfer changes the owner of an existing active asset
func (p *Processor) applyTransfer(ctx context.Context, tx store.Store, event *schema.OperationEvent) error {
	asset, err := p.activeAsset(ctx, tx, event.AssetID)
	if err != nil {
		return err
	}

	asset.Owner = event.Owner
	if event.Location != "" {
		asset.Location = event.Location
	}

	return tx.SaveAsset(ctx, asset)
}

// applySplit inactivates the parent and creates one child per related asset,
// each inheriting channel, owner and origin from the parent and linked into
// the lineage index
func (p *Processor) applySplit(ctx context.Context, tx store.Store, event *schema.OperationEvent) error {
	parent, err := p.activeAsset(ctx, tx, event.AssetID)
	if err != nil {
		return err
	}
	if len(event.RelatedAssetIDs) == 0 {
		return fmt.Errorf("%w: split without children", domain.ErrMalformedEvent)
	}
	if len(event.RelatedAmounts) != len(event.RelatedAssetIDs) {
		return fmt.Errorf("%w: split amounts do not align with children", domain.ErrMalformedEvent)
	}

	parent.Status = domain.StatusInactive
	if err := tx.SaveAsset(ctx, parent); err != nil {
		return err
	}

	for i, childID := range event.RelatedAssetIDs {
		existing, err := tx.GetAssetByAssetID(ctx, childID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("split child %s: %w", childID, domain.ErrAssetExists)
		}

		parentID := parent.AssetID
		child := &schema.Asset{
			AssetID:       childID,
			Channel:       parent.Channel,
			Owner:         parent.Owner,
			Amount:        event.RelatedAmounts[i],
			Location:      pickLocation(event.Location, parent.Location),
			Status:        domain.StatusActive,
			DataHash:      parent.DataHash,
			OriginOwner:   parent.OriginOwner,
			ParentAssetID: &parentID,
		}
		if err := tx.CreateAsset(ctx, child); err != nil {
			return err
		}
		if err := extendLineage(ctx, tx, parent.AssetID, childID); err != nil {
			return err
		}
	}

	return nil
}

// applyGroup creates the group asset, inactivates every contributing parent
// and records each contribution in the parent-relation table. A group has
// multiple parents, so its projection row carries no single parent pointer;
// the relations and the lineage index carry the ancestry instead.
func (p *Processor) applyGroup(ctx context.Context, tx store.Store, event *schema.OperationEvent) error {
	existing, err := tx.GetAssetByAssetID(ctx, event.AssetID)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.ErrAssetExists
	}
	if len(event.RelatedAssetIDs) == 0 {
		return fmt.Errorf("%w: group without parents", domain.ErrMalformedEvent)
	}
	if len(event.RelatedAmounts) != len(event.RelatedAssetIDs) {
		return fmt.Errorf("%w: group amounts do not align with parents", domain.ErrMalformedEvent)
	}

	group := &schema.Asset{
		AssetID:     event.AssetID,
		Channel:     event.Channel,
		Owner:       event.Owner,
		Amount:      event.Amount,
		Location:    event.Location,
		Status:      domain.StatusActive,
		DataHash:    event.DataHash,
		OriginOwner: event.Owner,
	}
	if err := tx.CreateAsset(ctx, group); err != nil {
		return err
	}

	for i, parentID := range event.RelatedAssetIDs {
		parent, err := p.activeAsset(ctx, tx, parentID)
		if err != nil {
			return fmt.Errorf("group parent %s: %w", parentID, err)
		}

		parent.Status = domain.StatusInactive
		if err := tx.SaveAsset(ctx, parent); err != nil {
			return err
		}

		relation := &schema.AssetParentRelation{
			ParentAssetID:     parentID,
			ChildAssetID:      event.AssetID,
			SourceEventID:     event.ID,
			ContributedAmount: event.RelatedAmounts[i],
		}
		if err := tx.CreateParentRelation(ctx, relation); err != nil {
			return err
		}
		if err := extendLineage(ctx, tx, parentID, event.AssetID); err != nil {
			return err
		}
	}

	return nil
}

// applyUngroup inactivates the group and reactivates its surviving members
func (p *Processor) applyUngroup(ctx context.Context, tx store.Store, event *schema.OperationEvent) error {
	group, err := p.activeAsset(ctx, tx, event.AssetID)
	if err != nil {
		return err
	}

	group.Status = domain.StatusInactive
	if err := tx.SaveAsset(ctx, group); err != nil {
		return err
	}

	for _, memberID := range event.RelatedAssetIDs {
		member, err := tx.GetAssetByAssetID(ctx, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return fmt.Errorf("ungroup member %s: %w", memberID, domain.ErrAssetNotFound)
		}

		member.Status = domain.StatusActive
		if event.Location != "" {
			member.Location = event.Location
		}
		if err := tx.SaveAsset(ctx, member); err != nil {
			return err
		}
	}

	return nil
}

// applyTransform inactivates the source asset and creates its successor,
// inheriting owner, channel and origin and linked into the lineage index
func (p *Processor) applyTransform(ctx context.Context, tx store.Store, event *schema.OperationEvent) error {
	source, err := p.activeAsset(ctx, tx, event.AssetID)
	if err != nil {
		return err
	}
	if len(event.RelatedAssetIDs) == 0 {
		return fmt.Errorf("%w: transform without result asset", domain.ErrMalformedEvent)
	}

	newID := event.RelatedAssetIDs[0]
	existing, err := tx.GetAssetByAssetID(ctx, newID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("transform result %s: %w", newID, domain.ErrAssetExists)
	}

	source.Status = domain.StatusInactive
	if err := tx.SaveAsset(ctx, source); err != nil {
		return err
	}

	// The result inherits the source amount unless the event carries one
	amount := source.Amount
	if len(event.RelatedAmounts) > 0 && event.RelatedAmounts[0] != "" {
		amount = event.RelatedAmounts[0]
	}

	sourceID := source.AssetID
	successor := &schema.Asset{
		AssetID:       newID,
		Channel:       source.Channel,
		Owner:         source.Owner,
		Amount:        amount,
		Location:      pickLocation(event.Location, source.Location),
		Status:        domain.StatusActive,
		DataHash:      event.DataHash,
		OriginOwner:   source.OriginOwner,
		ParentAssetID: &sourceID,
	}
	if err := tx.CreateAsset(ctx, successor); err != nil {
		return err
	}

	return extendLineage(ctx, tx, source.AssetID, newID)
}

// applyInactivate retires an active asset
func (p *Processor) applyInactivate(ctx context.Context, tx store.Store, event *schema.OperationEvent) error {
	asset, err := p.activeAsset(ctx, tx, event.AssetID)
	if err != nil {
		return err
	}

	asset.Status = domain.StatusInactive
	return tx.SaveAsset(ctx, asset)
}

// activeAsset loads an asset that must exist and be active
func (p *Processor) activeAsset(ctx context.Context, tx store.Store, assetID string) (*schema.Asset, error) {
	asset, err := tx.GetAssetByAssetID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, domain.ErrAssetNotFound
	}
	if asset.Status != domain.StatusActive {
		return nil, domain.ErrAssetInactive
	}
	return asset, nil
}

// extendLineage records the parent/child link in the closure index: one
// depth-1 edge plus one deeper edge per ancestor of the parent, so every
// ancestor of the parent becomes an ancestor of the child in a single pass.
// Insert-if-absent keeps replays harmless.
func extendLineage(ctx context.Context, tx store.Store, parentID, childID string) error {
	edge := &schema.LineageEdge{
		AncestorID:   parentID,
		DescendantID: childID,
		Depth:        1,
		Path:         parentID + ">" + childID,
	}
	if _, err := tx.InsertLineageEdge(ctx, edge); err != nil {
		return err
	}

	ancestors, err := tx.GetAncestorEdges(ctx, parentID)
	if err != nil {
		return err
	}
	for _, a := range ancestors {
		deeper := &schema.LineageEdge{
			AncestorID:   a.AncestorID,
			DescendantID: childID,
			Depth:        a.Depth + 1,
			Path:         a.Path + ">" + childID,
		}
		if _, err := tx.InsertLineageEdge(ctx, deeper); err != nil {
			return err
		}
	}

	return nil
}

func pickLocation(eventLocation, inherited string) string {
	if eventLocation != "" {
		return eventLocation
	}
	return inherited
}
