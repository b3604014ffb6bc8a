package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger-service/internal/domain/entities"
	"github.com/poolvest/ledger-service/internal/domain/services/ledger"
	"github.com/poolvest/ledger-service/internal/infrastructure/repositories"
	"github.com/poolvest/ledger-service/pkg/logger"
)

// WalletHandlers exposes the materialized wallet view and transaction history
type WalletHandlers struct {
	ledgerService *ledger.Service
	walletRepo    repositories.WalletStore
	logger        *logger.Logger
}

// NewWalletHandlers creates new wallet handlers
func NewWalletHandlers(ledgerService *ledger.Service, walletRepo repositories.WalletStore, logger *logger.Logger) *WalletHandlers {
	return &WalletHandlers{ledgerService: ledgerService, walletRepo: walletRepo, logger: logger}
}

// WalletResponse is a wallet with its derived totals
type WalletResponse struct {
	*entities.Wallet
	TotalBalance decimal.Decimal `json:"total_balance"`
}

// Get returns a user's wallet
// GET /api/v1/users/:userID/wallet
func (h *WalletHandlers) Get(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "userID")
	if !ok {
		return
	}

	wallet, err := h.ledgerService.GetWallet(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, WalletResponse{Wallet: wallet, TotalBalance: wallet.TotalBalance()})
}

// GetTransaction returns one transaction with its ledger entries
// GET /api/v1/transactions/:transactionID
func (h *WalletHandlers) GetTransaction(c *gin.Context) {
	txID, ok := parseUUIDParam(c, "transactionID")
	if !ok {
		return
	}

	tx, entries, err := h.ledgerService.GetTransactionWithEntries(c.Request.Context(), txID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"transaction": tx, "entries": entries})
}

// ListTransactions returns a user's transaction history
// GET /api/v1/users/:userID/transactions
func (h *WalletHandlers) ListTransactions(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "userID")
	if !ok {
		return
	}
	limit, offset := pagination(c)

	txs, err := h.ledgerService.ListUserTransactions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, txs)
}

// SetPreferenceRequest updates profit-share routing
type SetPreferenceRequest struct {
	Preference string `json:"preference" binding:"required,oneof=compound payout"`
}

// SetPreference sets a user's payout preference
// PUT /api/v1/users/:userID/wallet/preference
func (h *WalletHandlers) SetPreference(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "userID")
	if !ok {
		return
	}

	var req SetPreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	pref := entities.PayoutPreference(req.Preference)
	if err := h.walletRepo.SetPreference(c.Request.Context(), userID, pref); err != nil {
		respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"user_id": userID, "preference": pref})
}
