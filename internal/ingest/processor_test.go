package ingest_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/chaintrace/asset-indexer/internal/domain"
	"github.com/chaintrace/asset-indexer/internal/ingest"
	"github.com/chaintrace/asset-indexer/internal/store"
	"github.com/chaintrace/asset-indexer/internal/store/schema"
)

const testChain = domain.ChainEthereumMainnet

// newTestStore opens an isolated in-memory database with the full schema
func newTestStore(t *testing.T) store.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, store.Migrate(db))
	return store.NewPGStore(db)
}

// aid builds a deterministic 32-byte hex asset identifier
func aid(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

type eventSpec struct {
	op             domain.Operation
	assetID        string
	block          uint64
	logIndex       uint
	owner          string
	channel        string
	location       string
	amount         string
	dataHash       string
	relatedIDs     []string
	relatedAmounts []string
}

func seedEvent(t *testing.T, s store.Store, spec eventSpec) {
	t.Helper()

	owner := spec.owner
	if owner == "" {
		owner = "0x00000000000000000000000000000000000000aa"
	}

	event := &schema.OperationEvent{
		TxID:            fmt.Sprintf("0xtx%d_%d", spec.block, spec.logIndex),
		LogIndex:        spec.logIndex,
		AssetID:         spec.assetID,
		Operation:       spec.op,
		Status:          spec.op.SubjectStatus(),
		BlockNumber:     spec.block,
		BlockTime:       time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(spec.block) * time.Minute),
		Owner:           owner,
		Channel:         spec.channel,
		Location:        spec.location,
		Amount:          spec.amount,
		DataHash:        spec.dataHash,
		RelatedAssetIDs: datatypes.NewJSONSlice(spec.relatedIDs),
		RelatedAmounts:  datatypes.NewJSONSlice(spec.relatedAmounts),
	}
	inserted, err := s.InsertOperationEvent(context.Background(), event)
	require.NoError(t, err)
	require.True(t, inserted)
}

func getAsset(t *testing.T, s store.Store, assetID string) *schema.Asset {
	t.Helper()
	asset, err := s.GetAssetByAssetID(context.Background(), assetID)
	require.NoError(t, err)
	require.NotNil(t, asset, "asset %s should exist", assetID)
	return asset
}

func TestProcessRange_CreateUpdateTransfer(t *testing.T) {
	s := newTestStore(t)
	p := ingest.NewProcessor(s, testChain)
	ctx := context.Background()

	seedEvent(t, s, eventSpec{op: domain.OperationCreate, assetID: aid(1), block: 10, channel: "produce", amount: "100", location: "warehouse-1", dataHash: "0xd1"})
	seedEvent(t, s, eventSpec{op: domain.OperationUpdate, assetID: aid(1), block: 11, amount: "200", dataHash: "0xd2"})
	seedEvent(t, s, eventSpec{op: domain.OperationTransfer, assetID: aid(1), block: 12, owner: "0x00000000000000000000000000000000000000bb", location: "warehouse-2"})

	applied, err := p.ProcessRange(ctx, 10, 12)
	require.NoError(t, err)
	require.Len(t, applied, 3)
	assert.Equal(t, domain.OperationCreate, applied[0].Operation)
	assert.Equal(t, testChain, applied[0].Chain)

	asset := getAsset(t, s, aid(1))
	assert.Equal(t, domain.StatusActive, asset.Status)
	assert.Equal(t, "0x00000000000000000000000000000000000000bb", asset.Owner)
	assert.Equal(t, "200", asset.Amount)
	assert.Equal(t, "warehouse-2", asset.Location)
	assert.Equal(t, "0xd2", asset.DataHash)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", asset.OriginOwner)

	cursor, ok, err := s.GetBlockCursor(ctx, string(testChain))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(12), cursor)

	remaining, err := s.GetUnprocessedEvents(ctx, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestProcessRange_Split(t *testing.T) {
	s := newTestStore(t)
	p := ingest.NewProcessor(s, testChain)
	ctx := context.Background()

	seedEvent(t, s, eventSpec{op: domain.OperationCreate, assetID: aid(1), block: 10, channel: "produce", amount: "100", location: "farm", dataHash: "0xd1"})
	seedEvent(t, s, eventSpec{op: domain.OperationSplit, assetID: aid(1), block: 11, relatedIDs: []string{aid(2), aid(3)}, relatedAmounts: []string{"40", "60"}})

	_, err := p.ProcessRange(ctx, 10, 11)
	require.NoError(t, err)

	parent := getAsset(t, s, aid(1))
	assert.Equal(t, domain.StatusInactive, parent.Status)

	child := getAsset(t, s, aid(2))
	assert.Equal(t, domain.StatusActive, child.Status)
	assert.Equal(t, "40", child.Amount)
	assert.Equal(t, "produce", child.Channel)
	assert.Equal(t, "farm", child.Location) // inherited, event carried none
	assert.Equal(t, "0xd1", child.DataHash)
	require.NotNil(t, child.ParentAssetID)
	assert.Equal(t, aid(1), *child.ParentAssetID)

	edges, err := s.GetDescendantEdges(ctx, aid(1))
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	// A second split extends the closure transitively
	seedEvent(t, s, eventSpec{op: domain.OperationSplit, assetID: aid(2), block: 12, relatedIDs: []string{aid(4)}, relatedAmounts: []string{"40"}})
	_, err = p.ProcessRange(ctx, 12, 12)
	require.NoError(t, err)

	ancestors, err := s.GetAncestorEdges(ctx, aid(4))
	require.NoError(t, err)
	require.Len(t, ancestors, 2)
	assert.Equal(t, aid(2), ancestors[0].AncestorID)
	assert.Equal(t, 1, ancestors[0].Depth)
	assert.Equal(t, aid(1), ancestors[1].AncestorID)
	assert.Equal(t, 2, ancestors[1].Depth)
	assert.Equal(t, aid(1)+">"+aid(2)+">"+aid(4), ancestors[1].Path)
}

func TestProcessRange_GroupAndUngroup(t *testing.T) {
	s := newTestStore(t)
	p := ingest.NewProcessor(s, testChain)
	ctx := context.Background()

	seedEvent(t, s, eventSpec{op: domain.OperationCreate, assetID: aid(1), block: 10, amount: "30"})
	seedEvent(t, s, eventSpec{op: domain.OperationCreate, assetID: aid(2), block: 10, logIndex: 1, amount: "70"})
	seedEvent(t, s, eventSpec{
		op: domain.OperationGroup, assetID: aid(10), block: 11,
		owner: "0x00000000000000000000000000000000000000cc", channel: "bundles", amount: "100",
		relatedIDs: []string{aid(1), aid(2)}, relatedAmounts: []string{"30", "70"},
	})

	_, err := p.ProcessRange(ctx, 10, 11)
	require.NoError(t, err)

	group := getAsset(t, s, aid(10))
	assert.Equal(t, domain.StatusActive, group.Status)
	assert.Equal(t, "bundles", group.Channel)
	assert.Nil(t, group.ParentAssetID)

	assert.Equal(t, domain.StatusInactive, getAsset(t, s, aid(1)).Status)
	assert.Equal(t, domain.StatusInactive, getAsset(t, s, aid(2)).Status)

	relations, err := s.GetParentRelationsByChild(ctx, aid(10))
	require.NoError(t, err)
	require.Len(t, relations, 2)

	ancestors, err := s.GetAncestorEdges(ctx, aid(10))
	require.NoError(t, err)
	assert.Len(t, ancestors, 2)

	// Ungrouping retires the group and brings the members back
	seedEvent(t, s, eventSpec{op: domain.OperationUngroup, assetID: aid(10), block: 12, relatedIDs: []string{aid(1), aid(2)}})
	_, err = p.ProcessRange(ctx, 12, 12)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusInactive, getAsset(t, s, aid(10)).Status)
	assert.Equal(t, domain.StatusActive, getAsset(t, s, aid(1)).Status)
	assert.Equal(t, domain.StatusActive, getAsset(t, s, aid(2)).Status)
}

func TestProcessRange_Transform(t *testing.T) {
	s := newTestStore(t)
	p := ingest.NewProcessor(s, testChain)
	ctx := context.Background()

	seedEvent(t, s, eventSpec{op: domain.OperationCreate, assetID: aid(1), block: 10, amount: "100", channel: "produce"})
	seedEvent(t, s, eventSpec{op: domain.OperationTransform, assetID: aid(1), block: 11, relatedIDs: []string{aid(2)}, relatedAmounts: []string{"77"}, dataHash: "0xnew"})

	_, err := p.ProcessRange(ctx, 10, 11)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusInactive, getAsset(t, s, aid(1)).Status)

	successor := getAsset(t, s, aid(2))
	assert.Equal(t, domain.StatusActive, successor.Status)
	assert.Equal(t, "77", successor.Amount)
	assert.Equal(t, "produce", successor.Channel)
	assert.Equal(t, "0xnew", successor.DataHash)
	require.NotNil(t, successor.ParentAssetID)
	assert.Equal(t, aid(1), *successor.ParentAssetID)

	// Without an explicit amount the successor inherits the source amount
	seedEvent(t, s, eventSpec{op: domain.OperationTransform, assetID: aid(2), block: 12, relatedIDs: []string{aid(3)}})
	_, err = p.ProcessRange(ctx, 12, 12)
	require.NoError(t, err)
	assert.Equal(t, "77", getAsset(t, s, aid(3)).Amount)

	ancestors, err := s.GetAncestorEdges(ctx, aid(3))
	require.NoError(t, err)
	assert.Len(t, ancestors, 2)
}

func TestProcessRange_Inactivate(t *testing.T) {
	s := newTestStore(t)
	p := ingest.NewProcessor(s, testChain)
	ctx := context.Background()

	seedEvent(t, s, eventSpec{op: domain.OperationCreate, assetID: aid(1), block: 10, amount: "1"})
	seedEvent(t, s, eventSpec{op: domain.OperationInactivate, assetID: aid(1), block: 11})

	_, err := p.ProcessRange(ctx, 10, 11)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInactive, getAsset(t, s, aid(1)).Status)
}

func TestProcessRange_StructuralViolationRollsBackWholeRange(t *testing.T) {
	s := newTestStore(t)
	p := ingest.NewProcessor(s, testChain)
	ctx := context.Background()

	seedEvent(t, s, eventSpec{op: domain.OperationCreate, assetID: aid(1), block: 10, amount: "1"})
	// Update against an asset that was never created
	seedEvent(t, s, eventSpec{op: domain.OperationUpdate, assetID: aid(99), block: 11, amount: "5"})

	_, err := p.ProcessRange(ctx, 10, 11)
	require.ErrorIs(t, err, domain.ErrAssetNotFound)

	// Nothing of the range survives, including the valid CREATE
	asset, err := s.GetAssetByAssetID(ctx, aid(1))
	require.NoError(t, err)
	assert.Nil(t, asset)

	_, ok, err := s.GetBlockCursor(ctx, string(testChain))
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := s.GetUnprocessedEvents(ctx, 0, 100)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestProcessRange_OperationsOnInactiveAssetAreViolations(t *testing.T) {
	s := newTestStore(t)
	p := ingest.NewProcessor(s, testChain)
	ctx := context.Background()

	seedEvent(t, s, eventSpec{op: domain.OperationCreate, assetID: aid(1), block: 10, amount: "1"})
	seedEvent(t, s, eventSpec{op: domain.OperationInactivate, assetID: aid(1), block: 11})
	_, err := p.ProcessRange(ctx, 10, 11)
	require.NoError(t, err)

	seedEvent(t, s, eventSpec{op: domain.OperationTransfer, assetID: aid(1), block: 12, owner: "0xbb"})
	_, err = p.ProcessRange(ctx, 12, 12)
	require.ErrorIs(t, err, domain.ErrAssetInactive)
}

func TestProcessRange_DuplicateCreateIsViolation(t *testing.T) {
	s := newTestStore(t)
	p := ingest.NewProcessor(s, testChain)
	ctx := context.Background()

	seedEvent(t, s, eventSpec{op: domain.OperationCreate, assetID: aid(1), block: 10, amount: "1"})
	_, err := p.ProcessRange(ctx, 10, 10)
	require.NoError(t, err)

	seedEvent(t, s, eventSpec{op: domain.OperationCreate, assetID: aid(1), block: 11, amount: "2"})
	_, err = p.ProcessRange(ctx, 11, 11)
	require.ErrorIs(t, err, domain.ErrAssetExists)

	// Cursor still points at the last fully processed block
	cursor, _, err := s.GetBlockCursor(ctx, string(testChain))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), cursor)
}

func TestProcessRange_EmptyRangeAdvancesCursor(t *testing.T) {
	s := newTestStore(t)
	p := ingest.NewProcessor(s, testChain)
	ctx := context.Background()

	applied, err := p.ProcessRange(ctx, 10, 20)
	require.NoError(t, err)
	assert.Empty(t, applied)

	cursor, _, err := s.GetBlockCursor(ctx, string(testChain))
	require.NoError(t, err)
	assert.Equal(t, uint64(20), cursor)
}
