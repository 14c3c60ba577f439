package models

import (
	"time"

	"github.com/google/uuid"
)

type MarketStatus string

const (
	MarketStatusScheduled MarketStatus = "SCHEDULED"
	MarketStatusLive      MarketStatus = "LIVE"
	MarketStatusPostponed MarketStatus = "POSTPONED"
	MarketStatusCancelled MarketStatus = "CANCELLED"
	MarketStatusFinished  MarketStatus = "FINISHED"
)

type Outcome string

const (
	OutcomeA Outcome = "OUTCOME_A" // home win
	OutcomeB Outcome = "OUTCOME_B" // away win
	OutcomeC Outcome = "OUTCOME_C" // draw
)

// AtomicUnitsPerToken is the fixed scale between display tokens and the
// atomic units all pool/stake math runs in. 1 token = 100,000 atomic units.
const AtomicUnitsPerToken int64 = 100_000

// Market represents a prediction pool tied to one real-world match.
// EntryFee and TotalPool are atomic units. Fee percentages are captured at
// creation and never recomputed, so historical payouts stay reproducible.
type Market struct {
	ID               uuid.UUID    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CreatorID        uint         `gorm:"not null;index" json:"creator_id"`
	Creator          *User        `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	FixtureID        string       `gorm:"size:100;not null;index" json:"fixture_id"`
	Title            string       `gorm:"size:500;not null" json:"title"`
	Description      string       `gorm:"type:text" json:"description"`
	EntryFee         int64        `gorm:"not null" json:"entry_fee"`
	TotalPool        int64        `gorm:"not null;default:0" json:"total_pool"`
	Status           MarketStatus `gorm:"size:50;not null;default:SCHEDULED;index" json:"status"`
	Outcome          *Outcome     `gorm:"size:50" json:"outcome,omitempty"`
	CreatorRewardPct float64      `gorm:"type:decimal(6,4);not null" json:"creator_reward_pct"`
	PlatformFeePct   float64      `gorm:"type:decimal(6,4);not null" json:"platform_fee_pct"`
	CreatedAt        time.Time    `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
	ResolvedAt       *time.Time   `json:"resolved_at,omitempty"`
}

func (Market) TableName() string {
	return "markets"
}

// IsOpen reports whether the market still accepts entries.
func (m *Market) IsOpen() bool {
	return m.Status == MarketStatusScheduled
}
