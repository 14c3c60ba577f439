package models

import (
	"time"

	"github.com/google/uuid"
)

type ParticipantStatus string

const (
	ParticipantStatusActive    ParticipantStatus = "ACTIVE"
	ParticipantStatusCancelled ParticipantStatus = "CANCELLED"
)

// Participant is one prediction placed by one user against one market.
// A user may hold several rows per market (up to the configured cap) but at
// most one per distinct predicted outcome; rows are never merged.
type Participant struct {
	ID                uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	MarketID          uuid.UUID         `gorm:"type:uuid;not null;index:idx_participant_market_user" json:"market_id"`
	UserID            uint              `gorm:"not null;index:idx_participant_market_user" json:"user_id"`
	User              *User             `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Prediction        Outcome           `gorm:"size:50;not null" json:"prediction"`
	Stake             int64             `gorm:"not null" json:"stake"`
	PotentialWinnings int64             `gorm:"not null;default:0" json:"potential_winnings"`
	ActualWinnings    *int64            `json:"actual_winnings,omitempty"`
	Status            ParticipantStatus `gorm:"size:50;not null;default:ACTIVE;index" json:"status"`
	CreatedAt         time.Time         `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Participant) TableName() string {
	return "participants"
}
