package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position is an investment position opened by a confirmed deposit or grown by
// profit compounding. Settlement closes positions rather than deleting them.
type Position struct {
	ID       uuid.UUID       `json:"id" db:"id"`
	UserID   uuid.UUID       `json:"user_id" db:"user_id"`
	Amount   decimal.Decimal `json:"amount" db:"amount"`
	Plan     InvestmentPlan  `json:"plan" db:"plan"`
	Active   bool            `json:"active" db:"active"`
	OpenedAt time.Time       `json:"opened_at" db:"opened_at"`
	ClosedAt *time.Time      `json:"closed_at,omitempty" db:"closed_at"`
}

// Validate validates the position
func (p *Position) Validate() error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("position ID is required")
	}
	if p.UserID == uuid.Nil {
		return fmt.Errorf("position user ID is required")
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("position amount must be positive")
	}
	return p.Plan.Validate()
}

// Close marks the position inactive and records the closure time
func (p *Position) Close(at time.Time) {
	p.Active = false
	p.ClosedAt = &at
}
