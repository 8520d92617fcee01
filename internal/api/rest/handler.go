package rest

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaintrace/asset-indexer/internal/domain"
	"github.com/chaintrace/asset-indexer/internal/query"
	"github.com/chaintrace/asset-indexer/internal/store"
)

// Handler handles REST API requests
type Handler struct {
	engine *query.Engine
	store  store.Store
	chain  domain.Chain
}

// NewHandler creates a new REST API handler
func NewHandler(engine *query.Engine, st store.Store, chain domain.Chain) *Handler {
	return &Handler{engine: engine, store: st, chain: chain}
}

// HealthCheck reports service liveness and the current ingestion cursor
func (h *Handler) HealthCheck(c *gin.Context) {
	cursor, _, err := h.store.GetBlockCursor(c.Request.Context(), string(h.chain))
	if err != nil {
		respondInternalError(c, err, "Failed to read block cursor")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"chain":        h.chain,
		"block_cursor": cursor,
	})
}

// GetAsset returns the current projection of one asset
func (h *Handler) GetAsset(c *gin.Context) {
	assetID := c.Param("asset_id")

	asset, err := h.engine.Asset(c.Request.Context(), assetID)
	if err != nil {
		h.respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, asset)
}

// GetAssetHistory returns the event history of an asset
func (h *Handler) GetAssetHistory(c *gin.Context) {
	req, ok := h.parseHistoryRequest(c)
	if !ok {
		return
	}

	resp, err := h.engine.History(c.Request.Context(), *req)
	if err != nil {
		h.respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetAssetGenealogy returns the asset's relatives in the lineage graph
func (h *Handler) GetAssetGenealogy(c *gin.Context) {
	assetID := c.Param("asset_id")

	genealogy, err := h.engine.AssetGenealogy(c.Request.Context(), assetID)
	if err != nil {
		h.respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, genealogy)
}

// parseHistoryRequest extracts and validates history query parameters
func (h *Handler) parseHistoryRequest(c *gin.Context) (*query.HistoryRequest, bool) {
	req := query.HistoryRequest{
		AssetID: c.Param("asset_id"),
		Mode:    domain.QueryMode(strings.ToUpper(c.DefaultQuery("mode", string(domain.QueryModeDirect)))),
	}

	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			respondValidationError(c, "from must be an RFC 3339 timestamp")
			return nil, false
		}
		req.From = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			respondValidationError(c, "to must be an RFC 3339 timestamp")
			return nil, false
		}
		req.To = &t
	}
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		respondValidationError(c, "to must not be before from")
		return nil, false
	}

	if ops := c.Query("operations"); ops != "" {
		for _, raw := range strings.Split(ops, ",") {
			op := domain.Operation(strings.ToUpper(strings.TrimSpace(raw)))
			if !domain.IsValidOperation(op) {
				respondValidationError(c, "unknown operation: "+raw)
				return nil, false
			}
			req.Operations = append(req.Operations, op)
		}
	}

	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			respondValidationError(c, "limit must be a non-negative integer")
			return nil, false
		}
		req.Limit = n
	}
	if offset := c.Query("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			respondValidationError(c, "offset must be a non-negative integer")
			return nil, false
		}
		req.Offset = n
	}

	req.WithStatistics = c.Query("statistics") == "true"

	return &req, true
}

// respondQueryError maps query-engine errors to HTTP responses
func (h *Handler) respondQueryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAssetID),
		errors.Is(err, domain.ErrInvalidQueryMode),
		errors.Is(err, domain.ErrUnknownOperation):
		respondBadRequest(c, "Invalid request", err.Error())
	case errors.Is(err, domain.ErrAssetNotFound):
		respondNotFound(c, "Asset not found")
	default:
		respondInternalError(c, err, "Query failed", zap.String("path", c.Request.URL.Path))
	}
}
