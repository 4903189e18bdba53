package risk

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/streamvault/internal/riskstore"
)

// Handler provides HTTP endpoints for risk evaluation.
type Handler struct {
	service *Service
}

// NewHandler creates a new risk handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up risk routes. evaluate middleware (for example a
// rate limiter) runs only in front of the evaluation route.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, evaluate ...gin.HandlerFunc) {
	r.GET("/business/:address/risk", h.GetRisk)
	r.POST("/business/:address/risk", append(evaluate, h.EvaluateRisk)...)
	r.POST("/risk/verify", h.VerifyRisk)
	r.GET("/signer", h.GetSigner)
}

// GetRisk handles GET /api/business/:address/risk
func (h *Handler) GetRisk(c *gin.Context) {
	rec, err := h.service.Get(c.Request.Context(), c.Param("address"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"risk": rec, "scored": rec != nil})
}

// EvaluateRisk handles POST /api/business/:address/risk
func (h *Handler) EvaluateRisk(c *gin.Context) {
	var overrides Overrides
	if err := c.ShouldBindJSON(&overrides); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	eval, err := h.service.Evaluate(c.Request.Context(), c.Param("address"), overrides)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"risk":      eval.Record,
		"payload":   eval.Payload,
		"signature": eval.Signature,
		"signer":    eval.Signer,
	})
}

// VerifyRequest checks either the stored record for Address, or an explicit
// payload and signature.
type VerifyRequest struct {
	Address   string                   `json:"address"`
	Payload   *riskstore.SignedPayload `json:"payload,omitempty"`
	Signature string                   `json:"signature,omitempty"`
}

// VerifyRisk handles POST /api/risk/verify
func (h *Handler) VerifyRisk(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if req.Payload != nil {
		if req.Signature == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "signature is required with payload",
			})
			return
		}
		address := req.Address
		if address == "" {
			address = req.Payload.Subject
		}
		c.JSON(http.StatusOK, gin.H{"verification": h.service.VerifyRecord(address, *req.Payload, req.Signature)})
		return
	}

	v, err := h.service.Verify(c.Request.Context(), req.Address)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verification": v})
}

// GetSigner handles GET /api/signer
func (h *Handler) GetSigner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"address":    h.service.Signer().Address().Hex(),
		"typeString": TypeString,
		"typeHash":   TypeHash.Hex(),
		"validity":   int64(Validity.Seconds()),
	})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidAddress), errors.Is(err, ErrInvalidOverrides):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": err.Error(),
		})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No risk record for this address",
		})
	case errors.Is(err, ErrScoringUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "scoring_unavailable",
			"message": err.Error(),
		})
	case errors.Is(err, ErrInvalidScore):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "invalid_score",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Internal server error",
		})
	}
}
