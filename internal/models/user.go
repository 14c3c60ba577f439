package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a platform user. CachedBalance mirrors the external token
// ledger in atomic units; the external ledger is always the source of truth
// and the cache is repaired by reconciliation.
type User struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	WalletAddress   string          `gorm:"uniqueIndex;not null" json:"wallet_address"`
	Nickname        string          `gorm:"uniqueIndex;not null" json:"nickname"`
	CachedBalance   decimal.Decimal `gorm:"type:decimal(20,0);default:0" json:"cached_balance"`
	LastBalanceSync *time.Time      `json:"last_balance_sync,omitempty"`
	IsAdmin         bool            `gorm:"default:false" json:"is_admin"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
