package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chaintrace/asset-indexer/internal/adapter"
	"github.com/chaintrace/asset-indexer/internal/domain"
)

// registryABIJSON describes the asset-registry contract events. Every event
// carries the subject asset identifier as an indexed bytes32 topic.
const registryABIJSON = `[
	{"type":"event","name":"AssetCreated","inputs":[
		{"name":"assetId","type":"bytes32","indexed":true},
		{"name":"owner","type":"address","indexed":false},
		{"name":"channel","type":"string","indexed":false},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"location","type":"string","indexed":false},
		{"name":"dataHash","type":"bytes32","indexed":false}]},
	{"type":"event","name":"AssetUpdated","inputs":[
		{"name":"assetId","type":"bytes32","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"location","type":"string","indexed":false},
		{"name":"dataHash","type":"bytes32","indexed":false}]},
	{"type":"event","name":"AssetTransferred","inputs":[
		{"name":"assetId","type":"bytes32","indexed":true},
		{"name":"from","type":"address","indexed":false},
		{"name":"to","type":"address","indexed":false},
		{"name":"location","type":"string","indexed":false}]},
	{"type":"event","name":"AssetSplit","inputs":[
		{"name":"assetId","type":"bytes32","indexed":true},
		{"name":"childIds","type":"bytes32[]","indexed":false},
		{"name":"childAmounts","type":"uint256[]","indexed":false},
		{"name":"location","type":"string","indexed":false}]},
	{"type":"event","name":"AssetsGrouped","inputs":[
		{"name":"groupId","type":"bytes32","indexed":true},
		{"name":"owner","type":"address","indexed":false},
		{"name":"channel","type":"string","indexed":false},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"location","type":"string","indexed":false},
		{"name":"parentIds","type":"bytes32[]","indexed":false},
		{"name":"parentAmounts","type":"uint256[]","indexed":false}]},
	{"type":"event","name":"AssetsUngrouped","inputs":[
		{"name":"groupId","type":"bytes32","indexed":true},
		{"name":"memberIds","type":"bytes32[]","indexed":false},
		{"name":"location","type":"string","indexed":false}]},
	{"type":"event","name":"AssetTransformed","inputs":[
		{"name":"assetId","type":"bytes32","indexed":true},
		{"name":"newAssetId","type":"bytes32","indexed":false},
		{"name":"newAmount","type":"uint256","indexed":false},
		{"name":"location","type":"string","indexed":false},
		{"name":"dataHash","type":"bytes32","indexed":false}]},
	{"type":"event","name":"AssetInactivated","inputs":[
		{"name":"assetId","type":"bytes32","indexed":true}]}
]`

var registryABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(registryABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid registry ABI: %v", err))
	}
	return parsed
}()

// eventNameByID maps topic-zero signatures to registry event names
var eventNameByID = func() map[common.Hash]string {
	m := make(map[common.Hash]string, len(registryABI.Events))
	for name, ev := range registryABI.Events {
		m[ev.ID] = name
	}
	return m
}()

// operationByEvent maps registry event names to lifecycle operations
var operationByEvent = map[string]domain.Operation{
	"AssetCreated":     domain.OperationCreate,
	"AssetUpdated":     domain.OperationUpdate,
	"AssetTransferred": domain.OperationTransfer,
	"AssetSplit":       domain.OperationSplit,
	"AssetsGrouped":    domain.OperationGroup,
	"AssetsUngrouped":  domain.OperationUngroup,
	"AssetTransformed": domain.OperationTransform,
	"AssetInactivated": domain.OperationInactivate,
}

// RegistryABI returns the parsed asset-registry contract ABI
func RegistryABI() abi.ABI {
	return registryABI
}

// LedgerClient is the pull-based source of asset lifecycle logs. Callers must
// treat returned logs as possibly duplicated and possibly reordered within
// one poll.
type LedgerClient interface {
	// FilterOperationLogs retrieves all registry logs in [fromBlock, toBlock]
	FilterOperationLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error)

	// ParseOperationLog decodes a raw log into an operation record.
	// Returns domain.ErrUnknownEventSignature for foreign logs.
	ParseOperationLog(vLog types.Log) (*domain.OperationRecord, error)

	// LatestHeight returns the current chain head height
	LatestHeight(ctx context.Context) (uint64, error)

	// Close closes the connection
	Close()
}

// Config holds the configuration for the ledger client
type Config struct {
	ChainID domain.Chain
	// ContractAddress is the asset-registry contract; empty means no address filter
	ContractAddress string
	// RequestTimeout bounds a single getLogs call
	RequestTimeout time.Duration
	// MaxRetries bounds the retry loop around transient getLogs failures
	MaxRetries uint64
}

type ledgerClient struct {
	config Config
	client adapter.EthClient
}

// NewLedgerClient creates a new ledger client over an Ethereum RPC connection
func NewLedgerClient(cfg Config, client adapter.EthClient) LedgerClient {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = time.Minute
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &ledgerClient{config: cfg, client: client}
}

// FilterOperationLogs retrieves all registry logs in [fromBlock, toBlock],
// retrying transient RPC failures with exponential backoff
func (c *ledgerClient) FilterOperationLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	topics := make([]common.Hash, 0, len(registryABI.Events))
	for _, ev := range registryABI.Events {
		topics = append(topics, ev.ID)
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Topics:    [][]common.Hash{topics},
	}
	if c.config.ContractAddress != "" {
		query.Addresses = []common.Address{common.HexToAddress(c.config.ContractAddress)}
	}

	var logs []types.Log
	operation := func() error {
		var err error
		logs, err = c.client.FilterLogs(timeoutCtx, query)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.config.MaxRetries),
		timeoutCtx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("failed to filter logs for range %d-%d: %w", fromBlock, toBlock, err)
	}

	return logs, nil
}

// ParseOperationLog decodes a raw log into an operation record
func (c *ledgerClient) ParseOperationLog(vLog types.Log) (*domain.OperationRecord, error) {
	if len(vLog.Topics) == 0 {
		return nil, domain.ErrUnknownEventSignature
	}

	name, ok := eventNameByID[vLog.Topics[0]]
	if !ok {
		return nil, domain.ErrUnknownEventSignature
	}
	if len(vLog.Topics) < 2 {
		return nil, fmt.Errorf("%w: %s log missing asset id topic", domain.ErrMalformedEvent, name)
	}

	values, err := registryABI.Unpack(name, vLog.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedEvent, name, err)
	}

	op := operationByEvent[name]
	record := &domain.OperationRecord{
		TxID:        vLog.TxHash.Hex(),
		LogIndex:    vLog.Index,
		AssetID:     vLog.Topics[1].Hex(),
		Operation:   op,
		Status:      op.SubjectStatus(),
		BlockNumber: vLog.BlockNumber,
	}

	if err := decodeEventValues(record, name, values); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedEvent, name, err)
	}

	return record, nil
}

// decodeEventValues fills the operation-specific fields from the non-indexed
// ABI values, in declaration order
func decodeEventValues(record *domain.OperationRecord, name string, values []interface{}) error {
	switch name {
	case "AssetCreated":
		if len(values) != 5 {
			return fmt.Errorf("expected 5 values, got %d", len(values))
		}
		record.Owner = values[0].(common.Address).Hex()
		record.Channel = values[1].(string)
		record.Amount = values[2].(*big.Int).String()
		record.Location = values[3].(string)
		record.DataHash = common.Hash(values[4].([32]byte)).Hex()

	case "AssetUpdated":
		if len(values) != 3 {
			return fmt.Errorf("expected 3 values, got %d", len(values))
		}
		record.Amount = values[0].(*big.Int).String()
		record.Location = values[1].(string)
		record.DataHash = common.Hash(values[2].([32]byte)).Hex()

	case "AssetTransferred":
		if len(values) != 3 {
			return fmt.Errorf("expected 3 values, got %d", len(values))
		}
		// The new owner is the transfer recipient
		record.Owner = values[1].(common.Address).Hex()
		record.Location = values[2].(string)

	case "AssetSplit":
		if len(values) != 3 {
			return fmt.Errorf("expected 3 values, got %d", len(values))
		}
		record.RelatedAssetIDs = hashesToHex(values[0].([][32]byte))
		record.RelatedAmounts = bigIntsToStrings(values[1].([]*big.Int))
		record.Location = values[2].(string)

	case "AssetsGrouped":
		if len(values) != 6 {
			return fmt.Errorf("expected 6 values, got %d", len(values))
		}
		record.Owner = values[0].(common.Address).Hex()
		record.Channel = values[1].(string)
		record.Amount = values[2].(*big.Int).String()
		record.Location = values[3].(string)
		record.RelatedAssetIDs = hashesToHex(values[4].([][32]byte))
		record.RelatedAmounts = bigIntsToStrings(values[5].([]*big.Int))

	case "AssetsUngrouped":
		if len(values) != 2 {
			return fmt.Errorf("expected 2 values, got %d", len(values))
		}
		record.RelatedAssetIDs = hashesToHex(values[0].([][32]byte))
		record.Location = values[1].(string)

	case "AssetTransformed":
		if len(values) != 4 {
			return fmt.Errorf("expected 4 values, got %d", len(values))
		}
		record.RelatedAssetIDs = []string{common.Hash(values[0].([32]byte)).Hex()}
		record.RelatedAmounts = []string{values[1].(*big.Int).String()}
		record.Location = values[2].(string)
		record.DataHash = common.Hash(values[3].([32]byte)).Hex()

	case "AssetInactivated":
		if len(values) != 0 {
			return fmt.Errorf("expected 0 values, got %d", len(values))
		}

	default:
		return domain.ErrUnknownOperation
	}

	return nil
}

// LatestHeight returns the current chain head height
func (c *ledgerClient) LatestHeight(ctx context.Context) (uint64, error) {
	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return header.Number.Uint64(), nil
}

// Close closes the connection
func (c *ledgerClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

func hashesToHex(hashes [][32]byte) []string {
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = common.Hash(h).Hex()
	}
	return out
}

func bigIntsToStrings(values []*big.Int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.String()
	}
	return out
}
