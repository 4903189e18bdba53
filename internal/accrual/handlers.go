package accrual

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for accrual computation.
type Handler struct{}

// NewHandler creates a new accrual handler.
func NewHandler() *Handler {
	return &Handler{}
}

// RegisterRoutes sets up accrual routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/streams/accrual", h.Calculate)
}

// Calculate handles POST /api/streams/accrual
func (h *Handler) Calculate(c *gin.Context) {
	var req StateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	resp, err := req.Evaluate()
	if err != nil {
		calculationsTotal.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": err.Error(),
		})
		return
	}

	outcome := "zero"
	if resp.Claimable != "0" {
		outcome = "claimable"
	}
	calculationsTotal.WithLabelValues(outcome).Inc()

	c.JSON(http.StatusOK, gin.H{"accrual": resp})
}
