package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/poolvest/ledger-service/internal/domain/entities"
)

// Error codes as constants for consistent error responses across handlers
const (
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeInvalidID           = "INVALID_ID"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeWalletNotFound      = "WALLET_NOT_FOUND"
	ErrCodeInsufficientFunds   = "INSUFFICIENT_FUNDS"
	ErrCodeAlreadyProcessed    = "ALREADY_PROCESSED"
	ErrCodeAlreadyDistributed  = "ALREADY_DISTRIBUTED"
	ErrCodeDistributionRunning = "DISTRIBUTION_IN_PROGRESS"
	ErrCodeInvalidSignature    = "INVALID_SIGNATURE"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// ErrorResponse is the standard error envelope
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// respondError sends a standardized error response
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: c.GetString("request_id"),
	})
}

// respondSuccess sends a success response with data
func respondSuccess(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"data": data})
}

// respondDomainError maps domain errors to HTTP status and error codes.
// Unknown errors are reported as internal without leaking detail.
func respondDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entities.ErrSignatureMismatch):
		respondError(c, http.StatusUnauthorized, ErrCodeInvalidSignature, "Signature verification failed")
	case errors.Is(err, entities.ErrInsufficientFunds):
		respondError(c, http.StatusUnprocessableEntity, ErrCodeInsufficientFunds, "Insufficient funds")
	case errors.Is(err, entities.ErrAlreadyDistributed):
		respondError(c, http.StatusConflict, ErrCodeAlreadyDistributed, "Period already distributed")
	case errors.Is(err, entities.ErrDistributionInProgress):
		respondError(c, http.StatusConflict, ErrCodeDistributionRunning, "A distribution is already running")
	case errors.Is(err, entities.ErrWalletNotFound):
		respondError(c, http.StatusNotFound, ErrCodeWalletNotFound, "Wallet not found")
	case errors.Is(err, entities.ErrAlreadyProcessed):
		respondError(c, http.StatusConflict, ErrCodeAlreadyProcessed, "Already processed")
	case errors.Is(err, sql.ErrNoRows):
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "Resource not found")
	default:
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "Internal server error")
	}
}

// parseUUIDParam parses a UUID path parameter
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidID, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// pagination reads limit/offset query params with sane bounds
func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
