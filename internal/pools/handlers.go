package pools

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for pool metrics.
type Handler struct {
	service *Service
}

// NewHandler creates a new pools handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up pool routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/pools", h.ListPools)
	r.GET("/pools/:id/metrics", h.GetMetrics)
}

// ListPools handles GET /api/pools
func (h *Handler) ListPools(c *gin.Context) {
	pools, err := h.service.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load pools",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pools": pools, "count": len(pools)})
}

// GetMetrics handles GET /api/pools/:id/metrics
func (h *Handler) GetMetrics(c *gin.Context) {
	m, err := h.service.Metrics(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Pool not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load pool metrics",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": m})
}
