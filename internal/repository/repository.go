package repository

import (
	"context"
	"time"

	"matchpool/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// --- users ---

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *Repository) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) GetUserByWallet(ctx context.Context, walletAddress string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("wallet_address = ?", walletAddress).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns all users that have a wallet address, for sweep-style
// iteration.
func (r *Repository) ListUsers(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	err := r.db.WithContext(ctx).
		Where("wallet_address <> ''").
		Order("id ASC").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateCachedBalance overwrites the local balance mirror for a user.
func (r *Repository) UpdateCachedBalance(ctx context.Context, userID uint, balance decimal.Decimal) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"cached_balance":    balance,
			"last_balance_sync": &now,
		}).Error
}

// --- markets ---

func (r *Repository) CreateMarket(ctx context.Context, market *models.Market) error {
	return r.db.WithContext(ctx).Create(market).Error
}

func (r *Repository) GetMarketByID(ctx context.Context, marketID uuid.UUID) (*models.Market, error) {
	var market models.Market
	if err := r.db.WithContext(ctx).Where("id = ?", marketID).First(&market).Error; err != nil {
		return nil, err
	}
	return &market, nil
}

func (r *Repository) ListMarkets(ctx context.Context, status models.MarketStatus, limit, offset int) ([]*models.Market, error) {
	var markets []*models.Market
	query := r.db.WithContext(ctx)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&markets).Error
	if err != nil {
		return nil, err
	}
	return markets, nil
}

// ListUnresolvedMarkets returns markets that may still need a status sync or
// a terminal resolution.
func (r *Repository) ListUnresolvedMarkets(ctx context.Context, limit int) ([]*models.Market, error) {
	var markets []*models.Market
	err := r.db.WithContext(ctx).
		Where("status IN ?", []models.MarketStatus{
			models.MarketStatusScheduled,
			models.MarketStatusLive,
			models.MarketStatusPostponed,
		}).
		Order("created_at ASC").
		Limit(limit).
		Find(&markets).Error
	if err != nil {
		return nil, err
	}
	return markets, nil
}

// UpdateMarketStatus moves a market to a non-terminal status. Terminal
// transitions go through ResolveMarket only.
func (r *Repository) UpdateMarketStatus(ctx context.Context, marketID uuid.UUID, status models.MarketStatus) error {
	return r.db.WithContext(ctx).Model(&models.Market{}).
		Where("id = ? AND status <> ?", marketID, models.MarketStatusFinished).
		Update("status", status).Error
}

// ResolveMarket atomically sets the outcome and FINISHED status. The guard on
// a currently-null outcome makes the terminal transition happen exactly once:
// a concurrent sweep loses the race and sees zero rows affected.
func (r *Repository) ResolveMarket(ctx context.Context, marketID uuid.UUID, outcome models.Outcome) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.Market{}).
		Where("id = ? AND outcome IS NULL AND status <> ?", marketID, models.MarketStatusFinished).
		Updates(map[string]interface{}{
			"outcome":     outcome,
			"status":      models.MarketStatusFinished,
			"resolved_at": &now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// AdjustPool adds delta to the market's pool, only while the market is still
// accepting entries. The pool is frozen for any other status.
func (r *Repository) AdjustPool(ctx context.Context, marketID uuid.UUID, delta int64) error {
	result := r.db.WithContext(ctx).Model(&models.Market{}).
		Where("id = ? AND status = ?", marketID, models.MarketStatusScheduled).
		Update("total_pool", gorm.Expr("total_pool + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// --- participants ---

func (r *Repository) CreateParticipant(ctx context.Context, participant *models.Participant) error {
	return r.db.WithContext(ctx).Create(participant).Error
}

func (r *Repository) GetParticipantByID(ctx context.Context, participantID uuid.UUID) (*models.Participant, error) {
	var participant models.Participant
	if err := r.db.WithContext(ctx).Where("id = ?", participantID).First(&participant).Error; err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *Repository) ListParticipants(ctx context.Context, marketID uuid.UUID) ([]*models.Participant, error) {
	var participants []*models.Participant
	err := r.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("created_at ASC").
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

// ListWinners returns active participants whose prediction matches the
// resolved outcome, in join order.
func (r *Repository) ListWinners(ctx context.Context, marketID uuid.UUID, outcome models.Outcome) ([]*models.Participant, error) {
	var participants []*models.Participant
	err := r.db.WithContext(ctx).
		Where("market_id = ? AND prediction = ? AND status = ?",
			marketID, outcome, models.ParticipantStatusActive).
		Order("created_at ASC").
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

// CountUserEntries counts a user's rows for one market.
func (r *Repository) CountUserEntries(ctx context.Context, marketID uuid.UUID, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Participant{}).
		Where("market_id = ? AND user_id = ? AND status = ?",
			marketID, userID, models.ParticipantStatusActive).
		Count(&count).Error
	return count, err
}

// HasPrediction reports whether the user already holds this prediction on the
// market.
func (r *Repository) HasPrediction(ctx context.Context, marketID uuid.UUID, userID uint, prediction models.Outcome) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Participant{}).
		Where("market_id = ? AND user_id = ? AND prediction = ? AND status = ?",
			marketID, userID, prediction, models.ParticipantStatusActive).
		Count(&count).Error
	return count > 0, err
}

// SetActualWinnings records the settled amount on a participant row exactly
// once; a second settlement sweep sees zero rows affected.
func (r *Repository) SetActualWinnings(ctx context.Context, participantID uuid.UUID, amount int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Participant{}).
		Where("id = ? AND actual_winnings IS NULL", participantID).
		Update("actual_winnings", amount)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ClearActualWinnings reverts SetActualWinnings during rollback.
func (r *Repository) ClearActualWinnings(ctx context.Context, participantIDs []uuid.UUID) error {
	if len(participantIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Participant{}).
		Where("id IN ?", participantIDs).
		Update("actual_winnings", nil).Error
}

// CancelParticipant soft-cancels one participant row.
func (r *Repository) CancelParticipant(ctx context.Context, participantID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Participant{}).
		Where("id = ?", participantID).
		Update("status", models.ParticipantStatusCancelled).Error
}

// CancelMarketParticipants soft-cancels every active row of a cancelled
// market.
func (r *Repository) CancelMarketParticipants(ctx context.Context, marketID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Participant{}).
		Where("market_id = ? AND status = ?", marketID, models.ParticipantStatusActive).
		Update("status", models.ParticipantStatusCancelled).Error
}

// --- transactions ---

func (r *Repository) CreateTransaction(ctx context.Context, tx *models.LedgerTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *Repository) GetTransactionByCorrelationID(ctx context.Context, correlationID string) (*models.LedgerTransaction, error) {
	var tx models.LedgerTransaction
	err := r.db.WithContext(ctx).Where("correlation_id = ?", correlationID).First(&tx).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// SaveTransaction persists status/ticket/meta mutations on an existing row.
func (r *Repository) SaveTransaction(ctx context.Context, tx *models.LedgerTransaction) error {
	return r.db.WithContext(ctx).Save(tx).Error
}

func (r *Repository) ListTransactionsByMarket(ctx context.Context, marketID uuid.UUID) ([]*models.LedgerTransaction, error) {
	var txs []*models.LedgerTransaction
	err := r.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("created_at ASC").
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *Repository) ListTransactionsByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.LedgerTransaction, error) {
	var txs []*models.LedgerTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// ListSubmittedPending returns PENDING rows that hold a ticket id, oldest
// first. These are transfers submitted externally but never finalized.
func (r *Repository) ListSubmittedPending(ctx context.Context, limit int) ([]*models.LedgerTransaction, error) {
	var txs []*models.LedgerTransaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND ticket_id IS NOT NULL", models.TransactionStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// ListAuditTrail returns persisted audit_log rows, newest first.
func (r *Repository) ListAuditTrail(ctx context.Context, limit int) ([]*models.LedgerTransaction, error) {
	var txs []*models.LedgerTransaction
	err := r.db.WithContext(ctx).
		Where("type = ?", models.TransactionTypeAuditLog).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}
