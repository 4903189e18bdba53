package business

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/streamvault/internal/validation"
)

// Handler provides HTTP endpoints for business registration.
type Handler struct {
	service *Service
}

// NewHandler creates a new business handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up business routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/business/register", h.Register)
	r.GET("/business/:address", h.GetBusiness)
}

// Register handles POST /api/business/register
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	profile, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": verrs.Error(),
				"details": verrs,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to register business",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"business": profile})
}

// GetBusiness handles GET /api/business/:address
func (h *Handler) GetBusiness(c *gin.Context) {
	profile, err := h.service.Get(c.Request.Context(), c.Param("address"))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAddress):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "address must be a valid Ethereum address (0x + 40 hex chars)",
			})
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Business not found",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to load business",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"business": profile})
}
