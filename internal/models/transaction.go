package models

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypeEntry         TransactionType = "entry"
	TransactionTypeWinnings      TransactionType = "winnings"
	TransactionTypeCreatorReward TransactionType = "creator_reward"
	TransactionTypePlatformFee   TransactionType = "platform_fee"
	TransactionTypeAuditLog      TransactionType = "audit_log"
)

type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

// EntryMeta records the inputs of a market-entry operation so the entry can
// be compensated (participant cancelled, pool decremented) if it fails.
type EntryMeta struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	Stake         int64     `json:"stake"`
	Prediction    Outcome   `json:"prediction"`
}

// WinningsMeta records which participant rows a payout credited.
type WinningsMeta struct {
	ParticipantIDs []uuid.UUID `json:"participant_ids"`
	PerWinner      int64       `json:"per_winner"`
	Recipient      string      `json:"recipient"`
}

// RewardMeta records a creator reward. Compensation is record-only.
type RewardMeta struct {
	CreatorID uint   `json:"creator_id"`
	Recipient string `json:"recipient"`
}

// FeeMeta records a platform fee collection. Compensation is record-only.
type FeeMeta struct {
	Recipient string `json:"recipient"`
}

// RollbackMeta is the ordered trail of compensating actions taken after a
// failed operation, appended to the transaction's metadata.
type RollbackMeta struct {
	Actions    []string  `json:"actions"`
	RolledBack bool      `json:"rolled_back"`
	At         time.Time `json:"at"`
	Reason     string    `json:"reason,omitempty"`
}

// AuditMeta is the payload of a durable audit_log row.
type AuditMeta struct {
	Operation string            `json:"operation"`
	Status    string            `json:"status"`
	Details   map[string]string `json:"details,omitempty"`
}

// TransactionMeta is a closed union: exactly one branch is set, matching the
// transaction type, so compensation logic can switch exhaustively instead of
// probing free-form blobs.
type TransactionMeta struct {
	Entry    *EntryMeta    `json:"entry,omitempty"`
	Winnings *WinningsMeta `json:"winnings,omitempty"`
	Reward   *RewardMeta   `json:"reward,omitempty"`
	Fee      *FeeMeta      `json:"fee,omitempty"`
	Rollback *RollbackMeta `json:"rollback,omitempty"`
	Audit    *AuditMeta    `json:"audit,omitempty"`
}

// LedgerTransaction is one atomic unit-of-work in the local ledger, optionally
// bound to one external transfer. It is the durable intent log: created
// PENDING before any external call, finalized exactly once, never deleted.
type LedgerTransaction struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Type          TransactionType   `gorm:"size:50;not null;index" json:"type"`
	UserID        uint              `gorm:"not null;index" json:"user_id"`
	MarketID      *uuid.UUID        `gorm:"type:uuid;index" json:"market_id,omitempty"`
	Amount        int64             `gorm:"not null" json:"amount"`
	Status        TransactionStatus `gorm:"size:50;not null;default:PENDING;index" json:"status"`
	TicketID      *string           `gorm:"size:255" json:"ticket_id,omitempty"`
	CorrelationID string            `gorm:"size:255;not null;uniqueIndex" json:"correlation_id"`
	Meta          TransactionMeta   `gorm:"serializer:json" json:"meta"`
	FailureReason *string           `gorm:"type:text" json:"failure_reason,omitempty"`
	CreatedAt     time.Time         `gorm:"default:CURRENT_TIMESTAMP;index" json:"created_at"`
	FinalizedAt   *time.Time        `json:"finalized_at,omitempty"`
}

func (LedgerTransaction) TableName() string {
	return "transactions"
}

// Terminal reports whether the transaction has reached SUCCESS or FAILED.
func (t *LedgerTransaction) Terminal() bool {
	return t.Status == TransactionStatusSuccess || t.Status == TransactionStatusFailed
}
