package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger-service/internal/domain/entities"
	"github.com/poolvest/ledger-service/internal/domain/services/deposit"
	"github.com/poolvest/ledger-service/pkg/logger"
)

// DepositHandlers handles deposit intents and gateway callbacks
type DepositHandlers struct {
	depositService *deposit.Service
	logger         *logger.Logger
}

// NewDepositHandlers creates new deposit handlers
func NewDepositHandlers(depositService *deposit.Service, logger *logger.Logger) *DepositHandlers {
	return &DepositHandlers{depositService: depositService, logger: logger}
}

// InitiateDepositRequest is the checkout payload
type InitiateDepositRequest struct {
	UserID     uuid.UUID  `json:"user_id" binding:"required"`
	Amount     float64    `json:"amount" binding:"required,gt=0"`
	Plan       string     `json:"plan" binding:"required,oneof=flexible locked"`
	ReferrerID *uuid.UUID `json:"referrer_id,omitempty"`
}

// Initiate creates a pending deposit intent
// POST /api/v1/deposits
func (h *DepositHandlers) Initiate(c *gin.Context) {
	var req InitiateDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	dep, err := h.depositService.Initiate(c.Request.Context(),
		req.UserID,
		decimal.NewFromFloat(req.Amount),
		entities.InvestmentPlan(req.Plan),
		req.ReferrerID,
	)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusCreated, dep)
}

// GatewayCallbackRequest is the payment gateway's confirmation payload
type GatewayCallbackRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Status    string `json:"status" binding:"required,oneof=success failed"`
	Signature string `json:"signature" binding:"required"`
}

// GatewayCallback processes a payment confirmation from the gateway. A
// replayed success callback answers 200 so the gateway stops retrying, but
// credits nothing.
// POST /api/v1/payments/callback
func (h *DepositHandlers) GatewayCallback(c *gin.Context) {
	var req GatewayCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	ctx := c.Request.Context()

	if req.Status == "failed" {
		if err := h.depositService.MarkFailed(ctx, req.OrderID, req.PaymentID, req.Signature); err != nil {
			respondDomainError(c, err)
			return
		}
		respondSuccess(c, http.StatusOK, gin.H{"order_id": req.OrderID, "status": "failed"})
		return
	}

	tx, err := h.depositService.VerifyAndCredit(ctx, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		if errors.Is(err, entities.ErrAlreadyProcessed) {
			respondSuccess(c, http.StatusOK, gin.H{"order_id": req.OrderID, "status": "already_processed"})
			return
		}
		respondDomainError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"order_id":       req.OrderID,
		"status":         "credited",
		"transaction_id": tx.ID,
	})
}

// Get returns a deposit intent by order ID
// GET /api/v1/deposits/:orderID
func (h *DepositHandlers) Get(c *gin.Context) {
	orderID := c.Param("orderID")
	dep, err := h.depositService.GetByOrderID(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "Deposit not found")
		return
	}
	respondSuccess(c, http.StatusOK, dep)
}

// ListByUser returns a user's deposit history
// GET /api/v1/users/:userID/deposits
func (h *DepositHandlers) ListByUser(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "userID")
	if !ok {
		return
	}
	limit, offset := pagination(c)

	deposits, err := h.depositService.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, deposits)
}
