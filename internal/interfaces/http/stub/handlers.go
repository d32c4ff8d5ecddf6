package stub

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/neobile/smarttutor-iap/internal/domain/entity"
)

// Handler implements the subscription API contract consumed by the agent:
// status read/write, receipt validation, cancellation and data deletion.
// Responses use the same flat JSON shapes as the production backend.
type Handler struct {
	store  *memoryStore
	logger *zap.Logger
}

// NewHandler creates a new stub API handler
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		store:  newMemoryStore(),
		logger: logger,
	}
}

// GetSubscription handles GET /subscription/:uid. Unknown users read as
// free: accounts start with a free subscription at signup.
func (h *Handler) GetSubscription(c *gin.Context) {
	sub, ok := h.store.get(c.Param("uid"))
	if !ok {
		sub = entity.FreeSubscription()
	}
	c.JSON(http.StatusOK, sub)
}

// PutSubscription handles PUT /subscription/:uid.
func (h *Handler) PutSubscription(c *gin.Context) {
	var sub entity.Subscription
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST", "message": "invalid subscription body"})
		return
	}
	if sub.Status != entity.StatusFree && sub.Status != entity.StatusPremium {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST", "message": "unknown status"})
		return
	}
	h.store.put(c.Param("uid"), sub)
	c.JSON(http.StatusOK, sub)
}

type validateRequest struct {
	Receipt         string `json:"receipt" binding:"required"`
	ProductID       string `json:"productId" binding:"required"`
	TransactionID   string `json:"transactionId" binding:"required"`
	TransactionDate int64  `json:"transactionDate"`
}

// ValidateReceipt handles POST /subscription/:uid/validate. An invalid
// receipt is a 200 with the authoritative (free) status, never an error.
func (h *Handler) ValidateReceipt(c *gin.Context) {
	userID := c.Param("uid")

	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST", "message": "invalid validate body"})
		return
	}

	valid := receiptVerdict(req.Receipt)
	sub := entity.FreeSubscription()
	if valid {
		sub = entity.Subscription{
			Status:         entity.StatusPremium,
			SubscriptionID: req.TransactionID,
		}
	}
	h.store.put(userID, sub)

	h.logger.Info("receipt validated",
		zap.String("user_id", userID),
		zap.String("transaction_id", req.TransactionID),
		zap.Bool("valid", valid),
	)
	c.JSON(http.StatusOK, entity.ReceiptValidation{IsValid: valid, Status: sub.Status})
}

type cancelRequest struct {
	FirebaseID string `json:"firebaseId" binding:"required"`
}

// Cancel handles POST /subscription/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST", "message": "firebaseId is required"})
		return
	}

	sub := entity.FreeSubscription()
	h.store.put(req.FirebaseID, sub)
	h.logger.Info("subscription cancelled", zap.String("user_id", req.FirebaseID))
	c.JSON(http.StatusOK, sub)
}

// DeleteSubscription handles DELETE /subscription/:uid.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	h.store.delete(c.Param("uid"))
	c.Status(http.StatusNoContent)
}
