package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger-service/internal/domain/services/distribution"
	"github.com/poolvest/ledger-service/internal/domain/services/ledger"
	"github.com/poolvest/ledger-service/internal/domain/services/settlement"
	"github.com/poolvest/ledger-service/pkg/logger"
)

// AdminHandlers exposes the admin-only ledger operations: profit
// distribution, settlement sweeps, and the journal audit.
type AdminHandlers struct {
	ledgerService       *ledger.Service
	distributionService *distribution.Service
	settlementService   *settlement.Service
	logger              *logger.Logger
}

// NewAdminHandlers creates new admin handlers
func NewAdminHandlers(
	ledgerService *ledger.Service,
	distributionService *distribution.Service,
	settlementService *settlement.Service,
	logger *logger.Logger,
) *AdminHandlers {
	return &AdminHandlers{
		ledgerService:       ledgerService,
		distributionService: distributionService,
		settlementService:   settlementService,
		logger:              logger,
	}
}

// DistributeRequest declares one period's profit
type DistributeRequest struct {
	Period         string  `json:"period" binding:"required,period"`
	DeclaredProfit float64 `json:"declared_profit" binding:"required,gt=0"`
}

// Distribute runs a profit distribution for a period
// POST /api/v1/admin/distributions
func (h *AdminHandlers) Distribute(c *gin.Context) {
	var req DistributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	dist, err := h.distributionService.Distribute(c.Request.Context(), req.Period, decimal.NewFromFloat(req.DeclaredProfit))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, dist)
}

// GetDistribution returns a past distribution run
// GET /api/v1/admin/distributions/:period
func (h *AdminHandlers) GetDistribution(c *gin.Context) {
	period := c.Param("period")
	dist, err := h.distributionService.GetByPeriod(c.Request.Context(), period)
	if err != nil {
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "Distribution not found")
		return
	}
	respondSuccess(c, http.StatusOK, dist)
}

// SettleRequest configures a settlement sweep
type SettleRequest struct {
	MinRetain float64 `json:"min_retain" binding:"gte=0"`
}

// Settle runs a settlement sweep over all wallets
// POST /api/v1/admin/settlements
func (h *AdminHandlers) Settle(c *gin.Context) {
	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	report, err := h.settlementService.Settle(c.Request.Context(), decimal.NewFromFloat(req.MinRetain))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, report)
}

// Audit replays the journal and reports inconsistencies
// GET /api/v1/admin/audit
func (h *AdminHandlers) Audit(c *gin.Context) {
	report, err := h.ledgerService.Audit(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, report)
}
