package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"matchpool/internal/ledger"
	"matchpool/internal/models"
	"matchpool/internal/repository"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestMarket mirrors models.Market but compatible with SQLite (no Postgres
// specific defaults).
type TestMarket struct {
	ID               uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	CreatorID        uint                `gorm:"not null;index" json:"creator_id"`
	FixtureID        string              `gorm:"size:100;not null;index" json:"fixture_id"`
	Title            string              `gorm:"size:500;not null" json:"title"`
	Description      string              `gorm:"type:text" json:"description"`
	EntryFee         int64               `gorm:"not null" json:"entry_fee"`
	TotalPool        int64               `gorm:"not null;default:0" json:"total_pool"`
	Status           models.MarketStatus `gorm:"size:50;not null;default:SCHEDULED;index" json:"status"`
	Outcome          *models.Outcome     `gorm:"size:50" json:"outcome"`
	CreatorRewardPct float64             `gorm:"type:decimal(6,4);not null" json:"creator_reward_pct"`
	PlatformFeePct   float64             `gorm:"type:decimal(6,4);not null" json:"platform_fee_pct"`
	CreatedAt        time.Time           `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
	ResolvedAt       *time.Time          `json:"resolved_at"`
}

func (TestMarket) TableName() string {
	return "markets"
}

// TestParticipant mirrors models.Participant.
type TestParticipant struct {
	ID                uuid.UUID                `gorm:"type:uuid;primaryKey" json:"id"`
	MarketID          uuid.UUID                `gorm:"type:uuid;not null;index" json:"market_id"`
	UserID            uint                     `gorm:"not null;index" json:"user_id"`
	Prediction        models.Outcome           `gorm:"size:50;not null" json:"prediction"`
	Stake             int64                    `gorm:"not null" json:"stake"`
	PotentialWinnings int64                    `gorm:"not null;default:0" json:"potential_winnings"`
	ActualWinnings    *int64                   `json:"actual_winnings"`
	Status            models.ParticipantStatus `gorm:"size:50;not null;default:ACTIVE;index" json:"status"`
	CreatedAt         time.Time                `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time                `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (TestParticipant) TableName() string {
	return "participants"
}

// TestLedgerTransaction mirrors models.LedgerTransaction.
type TestLedgerTransaction struct {
	ID            uuid.UUID                `gorm:"type:uuid;primaryKey" json:"id"`
	Type          models.TransactionType   `gorm:"size:50;not null;index" json:"type"`
	UserID        uint                     `gorm:"not null;index" json:"user_id"`
	MarketID      *uuid.UUID               `gorm:"type:uuid;index" json:"market_id"`
	Amount        int64                    `gorm:"not null" json:"amount"`
	Status        models.TransactionStatus `gorm:"size:50;not null;default:PENDING;index" json:"status"`
	TicketID      *string                  `gorm:"size:255" json:"ticket_id"`
	CorrelationID string                   `gorm:"size:255;not null;uniqueIndex" json:"correlation_id"`
	Meta          models.TransactionMeta   `gorm:"serializer:json" json:"meta"`
	FailureReason *string                  `gorm:"type:text" json:"failure_reason"`
	CreatedAt     time.Time                `gorm:"default:CURRENT_TIMESTAMP;index" json:"created_at"`
	FinalizedAt   *time.Time               `json:"finalized_at"`
}

func (TestLedgerTransaction) TableName() string {
	return "transactions"
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&TestMarket{},
		&TestParticipant{},
		&TestLedgerTransaction{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	// Clean all tables, the shared memory DB persists across tests.
	db.Exec("DELETE FROM transactions")
	db.Exec("DELETE FROM participants")
	db.Exec("DELETE FROM markets")
	db.Exec("DELETE FROM users")

	return db
}

// scriptedTokenClient is a ledger.TokenClient with per-test scripting.
type scriptedTokenClient struct {
	balances      map[string]int64
	failTransfers int
	transferCalls int
	ticketStatus  ledger.TransferStatus
}

func newScriptedTokenClient() *scriptedTokenClient {
	return &scriptedTokenClient{
		balances:     make(map[string]int64),
		ticketStatus: ledger.TransferStatusConfirmed,
	}
}

func (c *scriptedTokenClient) Balance(ctx context.Context, address string) (int64, error) {
	return c.balances[address], nil
}

func (c *scriptedTokenClient) Balances(ctx context.Context, addresses []string) ([]ledger.Balance, error) {
	out := make([]ledger.Balance, 0, len(addresses))
	for _, address := range addresses {
		out = append(out, ledger.Balance{Address: address, Amount: c.balances[address]})
	}
	return out, nil
}

func (c *scriptedTokenClient) Transfer(ctx context.Context, recipients []ledger.Recipient, signingKey string) (*ledger.TransferResult, error) {
	c.transferCalls++
	if c.failTransfers > 0 {
		c.failTransfers--
		return nil, ledger.NewNetworkError("scripted failure", errors.New("unavailable"))
	}
	return &ledger.TransferResult{
		TicketID: fmt.Sprintf("ticket-%d", c.transferCalls),
		Status:   ledger.TransferStatusPending,
	}, nil
}

func (c *scriptedTokenClient) TransferStatus(ctx context.Context, ticketID string) (*ledger.TransferStatusInfo, error) {
	return &ledger.TransferStatusInfo{Status: c.ticketStatus}, nil
}

func (c *scriptedTokenClient) ValidAddress(address string) bool {
	return address != ""
}

// testStack wires the full service graph over a scripted token client.
type testStack struct {
	db      *gorm.DB
	repo    *repository.Repository
	client  *scriptedTokenClient
	gateway *ledger.Gateway
	audit   *AuditService
	ledger  *TransactionLedgerService
}

func newTestStack(t *testing.T) *testStack {
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	client := newScriptedTokenClient()

	retry := ledger.NewRetryPolicy(2, time.Millisecond, 5*time.Millisecond, 2.0).WithSeed(1)
	breaker := ledger.NewCircuitBreaker(100, 30*time.Second)
	gateway := ledger.NewGateway(client, retry, breaker, ledger.GatewayConfig{
		BatchSize:       10,
		QueryTimeout:    time.Second,
		TransferTimeout: time.Second,
	})

	audit := NewAuditService(repo)
	ledgerService := NewTransactionLedgerService(repo, gateway, audit, "test-signing-key")

	return &testStack{
		db:      db,
		repo:    repo,
		client:  client,
		gateway: gateway,
		audit:   audit,
		ledger:  ledgerService,
	}
}

func createTestUser(t *testing.T, db *gorm.DB, id uint, wallet string) *models.User {
	user := &models.User{
		ID:            id,
		WalletAddress: wallet,
		Nickname:      fmt.Sprintf("user-%d", id),
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}
