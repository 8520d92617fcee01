package domain

import (
	"fmt"
	"regexp"
	"time"
)

// Chain represents the ledger network identifier using CAIP-2 format
type Chain string

const (
	ChainEthereumMainnet Chain = "eip155:1"
	ChainEthereumSepolia Chain = "eip155:11155111"
)

// Operation is the closed set of asset lifecycle operations recorded by the
// ledger. The processor dispatches over this enum with an exhaustive switch;
// adding a value here without a handler is a compile-visible change, not a
// silent runtime miss.
type Operation string

const (
	OperationCreate     Operation = "CREATE"
	OperationUpdate     Operation = "UPDATE"
	OperationTransfer   Operation = "TRANSFER"
	OperationSplit      Operation = "SPLIT"
	OperationGroup      Operation = "GROUP"
	OperationUngroup    Operation = "UNGROUP"
	OperationTransform  Operation = "TRANSFORM"
	OperationInactivate Operation = "INACTIVATE"
)

// Operations lists every known operation in a stable order
var Operations = []Operation{
	OperationCreate,
	OperationUpdate,
	OperationTransfer,
	OperationSplit,
	OperationGroup,
	OperationUngroup,
	OperationTransform,
	OperationInactivate,
}

// IsValidOperation checks if an operation is one of the known kinds
func IsValidOperation(op Operation) bool {
	switch op {
	case OperationCreate, OperationUpdate, OperationTransfer, OperationSplit,
		OperationGroup, OperationUngroup, OperationTransform, OperationInactivate:
		return true
	}
	return false
}

// AssetStatus is the lifecycle status of an asset in the projection.
// INACTIVE is terminal for the asset identity; UNGROUP may reactivate
// previously-grouped member assets but never the group itself.
type AssetStatus string

const (
	StatusActive   AssetStatus = "ACTIVE"
	StatusInactive AssetStatus = "INACTIVE"
)

// SubjectStatus returns the status of the event's subject asset after the
// operation has been applied.
func (op Operation) SubjectStatus() AssetStatus {
	switch op {
	case OperationSplit, OperationUngroup, OperationTransform, OperationInactivate:
		return StatusInactive
	default:
		return StatusActive
	}
}

// QueryMode selects how much genealogy a history query traverses
type QueryMode string

const (
	// QueryModeDirect covers the asset itself plus its ancestor chain
	QueryModeDirect QueryMode = "DIRECT"
	// QueryModeIndirect additionally covers descendants and siblings
	QueryModeIndirect QueryMode = "INDIRECT"
)

// IsValidQueryMode checks if a query mode is valid
func IsValidQueryMode(mode QueryMode) bool {
	return mode == QueryModeDirect || mode == QueryModeIndirect
}

var assetIDPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// IsValidAssetID checks that an asset identifier is a 32-byte hex string as
// emitted by the ledger contract (0x-prefixed, 64 hex digits)
func IsValidAssetID(assetID string) bool {
	return assetIDPattern.MatchString(assetID)
}

// OperationRecord is one decoded ledger log, normalized into the shape the
// raw event log persists. `(TxID, LogIndex)` is the natural key: the same
// pair delivered twice must collapse into one stored event.
type OperationRecord struct {
	TxID            string      `json:"tx_id"`
	LogIndex        uint        `json:"log_index"`
	AssetID         string      `json:"asset_id"`
	Operation       Operation   `json:"operation"`
	Status          AssetStatus `json:"status"`
	BlockNumber     uint64      `json:"block_number"`
	BlockTime       time.Time   `json:"block_time"`
	Owner           string      `json:"owner"`
	Channel         string      `json:"channel,omitempty"`
	Location        string      `json:"location,omitempty"`
	Amount          string      `json:"amount,omitempty"`
	DataHash        string      `json:"data_hash,omitempty"`
	RelatedAssetIDs []string    `json:"related_asset_ids,omitempty"`
	RelatedAmounts  []string    `json:"related_amounts,omitempty"`
}

// Key returns the natural key of the record for logging and deduplication
func (r *OperationRecord) Key() string {
	return fmt.Sprintf("%s:%d", r.TxID, r.LogIndex)
}

// AppliedEvent is the notification published after a processed sub-batch
// commits, one per applied operation event
type AppliedEvent struct {
	Chain           Chain     `json:"chain"`
	AssetID         string    `json:"asset_id"`
	Operation       Operation `json:"operation"`
	TxID            string    `json:"tx_id"`
	LogIndex        uint      `json:"log_index"`
	BlockNumber     uint64    `json:"block_number"`
	BlockTime       time.Time `json:"block_time"`
	Owner           string    `json:"owner,omitempty"`
	RelatedAssetIDs []string  `json:"related_asset_ids,omitempty"`
}
