package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger-service/internal/domain/services/withdrawal"
	"github.com/poolvest/ledger-service/pkg/logger"
)

// WithdrawalHandlers handles withdrawal requests and admin decisions
type WithdrawalHandlers struct {
	withdrawalService *withdrawal.Service
	logger            *logger.Logger
}

// NewWithdrawalHandlers creates new withdrawal handlers
func NewWithdrawalHandlers(withdrawalService *withdrawal.Service, logger *logger.Logger) *WithdrawalHandlers {
	return &WithdrawalHandlers{withdrawalService: withdrawalService, logger: logger}
}

// RequestWithdrawalRequest is the user-facing request payload
type RequestWithdrawalRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Amount float64   `json:"amount" binding:"required,gt=0"`
}

// Request creates a withdrawal request and locks the funds
// POST /api/v1/withdrawals
func (h *WithdrawalHandlers) Request(c *gin.Context) {
	var req RequestWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	w, err := h.withdrawalService.Request(c.Request.Context(), req.UserID, decimal.NewFromFloat(req.Amount))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, w)
}

// Get returns a withdrawal by ID
// GET /api/v1/withdrawals/:id
func (h *WithdrawalHandlers) Get(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	w, err := h.withdrawalService.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "Withdrawal not found")
		return
	}
	respondSuccess(c, http.StatusOK, w)
}

// ListByUser returns a user's withdrawal history
// GET /api/v1/users/:userID/withdrawals
func (h *WithdrawalHandlers) ListByUser(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "userID")
	if !ok {
		return
	}
	limit, offset := pagination(c)

	list, err := h.withdrawalService.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, list)
}

// Approve releases a pending withdrawal to settlement
// POST /api/v1/admin/withdrawals/:id/approve
func (h *WithdrawalHandlers) Approve(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.withdrawalService.Approve(c.Request.Context(), id); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"withdrawal_id": id, "status": "approved"})
}

// Reject returns a pending withdrawal's funds to their source buckets
// POST /api/v1/admin/withdrawals/:id/reject
func (h *WithdrawalHandlers) Reject(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.withdrawalService.Reject(c.Request.Context(), id); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"withdrawal_id": id, "status": "rejected"})
}
