package graceful

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/poolvest/ledger-service/pkg/logger"
)

// Stopper is anything with background work to drain before exit
type Stopper interface {
	Stop()
}

// ShutdownManager drains the HTTP server, registered workers, and the
// database connection on SIGINT/SIGTERM.
type ShutdownManager struct {
	server   *http.Server
	db       *sqlx.DB
	stoppers []Stopper
	logger   *logger.Logger
}

// NewShutdownManager creates a shutdown manager
func NewShutdownManager(server *http.Server, db *sqlx.DB, logger *logger.Logger) *ShutdownManager {
	return &ShutdownManager{
		server: server,
		db:     db,
		logger: logger,
	}
}

// Register adds a component to stop before the server drains
func (sm *ShutdownManager) Register(s Stopper) {
	sm.stoppers = append(sm.stoppers, s)
}

// WaitForShutdown blocks until a termination signal, then drains everything
func (sm *ShutdownManager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sm.logger.Info("Shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, s := range sm.stoppers {
		s.Stop()
	}

	if err := sm.server.Shutdown(ctx); err != nil {
		sm.logger.Error("Server forced shutdown", "error", err)
	}

	if sm.db != nil {
		if err := sm.db.Close(); err != nil {
			sm.logger.Warn("Failed to close database connection", "error", err)
		}
	}

	sm.logger.Info("Shutdown complete")
}
