package ethereum_test

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaintrace/asset-indexer/internal/domain"
	"github.com/chaintrace/asset-indexer/internal/providers/ethereum"
)

type fakeEthClient struct {
	logs      []types.Log
	lastQuery goethereum.FilterQuery
	head      uint64
}

func (f *fakeEthClient) FilterLogs(ctx context.Context, query goethereum.FilterQuery) ([]types.Log, error) {
	f.lastQuery = query
	return f.logs, nil
}

func (f *fakeEthClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: new(big.Int).SetUint64(f.head), Time: 1750000000}, nil
}

func (f *fakeEthClient) Close() {}

func aid(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

func packLog(t *testing.T, name string, assetID string, values ...interface{}) types.Log {
	t.Helper()

	event := ethereum.RegistryABI().Events[name]
	data, err := event.Inputs.NonIndexed().Pack(values...)
	require.NoError(t, err)

	return types.Log{
		Topics:      []common.Hash{event.ID, common.HexToHash(assetID)},
		Data:        data,
		TxHash:      common.HexToHash("0xabc"),
		Index:       3,
		BlockNumber: 42,
	}
}

func newClient(contract string) ethereum.LedgerClient {
	return ethereum.NewLedgerClient(ethereum.Config{
		ChainID:         domain.ChainEthereumMainnet,
		ContractAddress: contract,
	}, &fakeEthClient{})
}

func TestParseOperationLog_Created(t *testing.T) {
	client := newClient("")

	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	dataHash := common.HexToHash("0xd1")
	vLog := packLog(t, "AssetCreated", aid(1), owner, "produce", big.NewInt(500), "warehouse-1", [32]byte(dataHash))

	record, err := client.ParseOperationLog(vLog)
	require.NoError(t, err)

	assert.Equal(t, domain.OperationCreate, record.Operation)
	assert.Equal(t, domain.StatusActive, record.Status)
	assert.Equal(t, aid(1), record.AssetID)
	assert.Equal(t, owner.Hex(), record.Owner)
	assert.Equal(t, "produce", record.Channel)
	assert.Equal(t, "500", record.Amount)
	assert.Equal(t, "warehouse-1", record.Location)
	assert.Equal(t, dataHash.Hex(), record.DataHash)
	assert.Equal(t, common.HexToHash("0xabc").Hex(), record.TxID)
	assert.Equal(t, uint(3), record.LogIndex)
	assert.Equal(t, uint64(42), record.BlockNumber)
}

func TestParseOperationLog_Transferred(t *testing.T) {
	client := newClient("")

	from := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	vLog := packLog(t, "AssetTransferred", aid(1), from, to, "warehouse-2")

	record, err := client.ParseOperationLog(vLog)
	require.NoError(t, err)

	assert.Equal(t, domain.OperationTransfer, record.Operation)
	assert.Equal(t, to.Hex(), record.Owner)
	assert.Equal(t, "warehouse-2", record.Location)
}

func TestParseOperationLog_Split(t *testing.T) {
	client := newClient("")

	children := [][32]byte{
		[32]byte(common.HexToHash(aid(2))),
		[32]byte(common.HexToHash(aid(3))),
	}
	amounts := []*big.Int{big.NewInt(40), big.NewInt(60)}
	vLog := packLog(t, "AssetSplit", aid(1), children, amounts, "")

	record, err := client.ParseOperationLog(vLog)
	require.NoError(t, err)

	assert.Equal(t, domain.OperationSplit, record.Operation)
	assert.Equal(t, domain.StatusInactive, record.Status)
	assert.Equal(t, []string{aid(2), aid(3)}, record.RelatedAssetIDs)
	assert.Equal(t, []string{"40", "60"}, record.RelatedAmounts)
}

func TestParseOperationLog_Grouped(t *testing.T) {
	client := newClient("")

	owner := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	parents := [][32]byte{[32]byte(common.HexToHash(aid(1))), [32]byte(common.HexToHash(aid(2)))}
	amounts := []*big.Int{big.NewInt(30), big.NewInt(70)}
	vLog := packLog(t, "AssetsGrouped", aid(10), owner, "bundles", big.NewInt(100), "depot", parents, amounts)

	record, err := client.ParseOperationLog(vLog)
	require.NoError(t, err)

	assert.Equal(t, domain.OperationGroup, record.Operation)
	assert.Equal(t, domain.StatusActive, record.Status)
	assert.Equal(t, aid(10), record.AssetID)
	assert.Equal(t, "bundles", record.Channel)
	assert.Equal(t, "100", record.Amount)
	assert.Equal(t, []string{aid(1), aid(2)}, record.RelatedAssetIDs)
	assert.Equal(t, []string{"30", "70"}, record.RelatedAmounts)
}

func TestParseOperationLog_Ungrouped(t *testing.T) {
	client := newClient("")

	members := [][32]byte{[32]byte(common.HexToHash(aid(1)))}
	vLog := packLog(t, "AssetsUngrouped", aid(10), members, "depot")

	record, err := client.ParseOperationLog(vLog)
	require.NoError(t, err)

	assert.Equal(t, domain.OperationUngroup, record.Operation)
	assert.Equal(t, domain.StatusInactive, record.Status)
	assert.Equal(t, []string{aid(1)}, record.RelatedAssetIDs)
}

func TestParseOperationLog_Transformed(t *testing.T) {
	client := newClient("")

	newID := [32]byte(common.HexToHash(aid(2)))
	dataHash := [32]byte(common.HexToHash("0xd2"))
	vLog := packLog(t, "AssetTransformed", aid(1), newID, big.NewInt(77), "plant", dataHash)

	record, err := client.ParseOperationLog(vLog)
	require.NoError(t, err)

	assert.Equal(t, domain.OperationTransform, record.Operation)
	assert.Equal(t, domain.StatusInactive, record.Status)
	assert.Equal(t, []string{aid(2)}, record.RelatedAssetIDs)
	assert.Equal(t, []string{"77"}, record.RelatedAmounts)
}

func TestParseOperationLog_Inactivated(t *testing.T) {
	client := newClient("")

	vLog := packLog(t, "AssetInactivated", aid(1))

	record, err := client.ParseOperationLog(vLog)
	require.NoError(t, err)

	assert.Equal(t, domain.OperationInactivate, record.Operation)
	assert.Equal(t, domain.StatusInactive, record.Status)
	assert.Empty(t, record.RelatedAssetIDs)
}

func TestParseOperationLog_ForeignAndMalformed(t *testing.T) {
	client := newClient("")

	_, err := client.ParseOperationLog(types.Log{})
	assert.ErrorIs(t, err, domain.ErrUnknownEventSignature)

	_, err = client.ParseOperationLog(types.Log{
		Topics: []common.Hash{common.HexToHash("0xdeadbeef")},
	})
	assert.ErrorIs(t, err, domain.ErrUnknownEventSignature)

	// Known signature but missing the asset id topic
	created := ethereum.RegistryABI().Events["AssetCreated"]
	_, err = client.ParseOperationLog(types.Log{Topics: []common.Hash{created.ID}})
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)

	// Known signature with garbage payload
	_, err = client.ParseOperationLog(types.Log{
		Topics: []common.Hash{created.ID, common.HexToHash(aid(1))},
		Data:   []byte{0x01, 0x02},
	})
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)
}

func TestFilterOperationLogs_QueryShape(t *testing.T) {
	fake := &fakeEthClient{}
	client := ethereum.NewLedgerClient(ethereum.Config{
		ChainID:         domain.ChainEthereumMainnet,
		ContractAddress: "0x00000000000000000000000000000000000000ff",
	}, fake)

	_, err := client.FilterOperationLogs(context.Background(), 100, 200)
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(100), fake.lastQuery.FromBlock)
	assert.Equal(t, big.NewInt(200), fake.lastQuery.ToBlock)
	require.Len(t, fake.lastQuery.Addresses, 1)
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000ff"), fake.lastQuery.Addresses[0])
	require.Len(t, fake.lastQuery.Topics, 1)
	assert.Len(t, fake.lastQuery.Topics[0], 8) // one signature per operation
}

func TestLatestHeight(t *testing.T) {
	fake := &fakeEthClient{head: 12345}
	client := ethereum.NewLedgerClient(ethereum.Config{ChainID: domain.ChainEthereumMainnet}, fake)

	height, err := client.LatestHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), height)
}
