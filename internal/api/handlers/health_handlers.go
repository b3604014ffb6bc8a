package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/poolvest/ledger-service/internal/infrastructure/cache"
	"github.com/poolvest/ledger-service/internal/infrastructure/database"
	"github.com/poolvest/ledger-service/pkg/logger"
)

// HealthHandlers exposes liveness and readiness probes
type HealthHandlers struct {
	db     *sqlx.DB
	locker cache.Locker
	logger *logger.Logger
}

// NewHealthHandlers creates new health handlers
func NewHealthHandlers(db *sqlx.DB, locker cache.Locker, logger *logger.Logger) *HealthHandlers {
	return &HealthHandlers{db: db, locker: locker, logger: logger}
}

// Health reports overall service health including dependencies
// GET /health
func (h *HealthHandlers) Health(c *gin.Context) {
	ctx := c.Request.Context()

	checks := gin.H{}
	healthy := true

	if err := database.HealthCheck(h.db); err != nil {
		checks["database"] = "down"
		healthy = false
	} else {
		checks["database"] = "up"
	}

	if err := h.locker.Ping(ctx); err != nil {
		checks["redis"] = "down"
		healthy = false
	} else {
		checks["redis"] = "up"
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":    state,
		"checks":    checks,
		"timestamp": time.Now().UTC(),
	})
}

// Live reports process liveness
// GET /live
func (h *HealthHandlers) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}
