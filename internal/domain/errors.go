package domain

import "errors"

var (
	// ErrAssetNotFound is returned when an operation or query references an
	// asset that has never been created
	ErrAssetNotFound = errors.New("asset not found")

	// ErrAssetExists is returned when a CREATE (or derived creation) targets
	// an asset identifier that already has a projection row
	ErrAssetExists = errors.New("asset already exists")

	// ErrAssetInactive is returned when an operation requires an active asset
	ErrAssetInactive = errors.New("asset is inactive")

	// ErrInvalidAssetID is returned for malformed asset identifiers
	ErrInvalidAssetID = errors.New("invalid asset identifier")

	// ErrInvalidQueryMode is returned for unknown history query modes
	ErrInvalidQueryMode = errors.New("invalid query mode")

	// ErrUnknownOperation is returned when an event carries an operation kind
	// outside the closed enum
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrUnknownEventSignature is returned by the ledger client when a log's
	// topic zero matches none of the registry events
	ErrUnknownEventSignature = errors.New("unknown event signature")

	// ErrMalformedEvent is returned when a recognized log cannot be decoded
	ErrMalformedEvent = errors.New("malformed event payload")
)
