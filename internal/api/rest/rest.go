package rest

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler *Handler) {
	// Health check endpoint (no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes (public read access)
	v1 := router.Group("/api/v1")
	{
		v1.GET("/assets/:asset_id", handler.GetAsset)
		v1.GET("/assets/:asset_id/history", handler.GetAssetHistory)
		v1.GET("/assets/:asset_id/genealogy", handler.GetAssetGenealogy)
	}
}
