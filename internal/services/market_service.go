package services

import (
	"context"
	"fmt"
	"log"

	"matchpool/internal/ledger"
	"matchpool/internal/models"
	"matchpool/internal/repository"

	"github.com/google/uuid"
)

// MarketConfig carries market lifecycle tunables.
type MarketConfig struct {
	CreatorRewardPct  float64
	PlatformFeePct    float64
	MaxEntriesPerUser int
}

// MarketService owns market creation and entry placement.
type MarketService struct {
	repo   *repository.Repository
	ledger *TransactionLedgerService
	audit  *AuditService
	cfg    MarketConfig
}

func NewMarketService(
	repo *repository.Repository,
	ledgerService *TransactionLedgerService,
	audit *AuditService,
	cfg MarketConfig,
) *MarketService {
	if cfg.MaxEntriesPerUser <= 0 {
		cfg.MaxEntriesPerUser = 3
	}
	return &MarketService{
		repo:   repo,
		ledger: ledgerService,
		audit:  audit,
		cfg:    cfg,
	}
}

// CreateMarket opens a new market for a fixture. Fee percentages are frozen
// onto the market row at creation; later config changes never rewrite live
// markets.
func (s *MarketService) CreateMarket(ctx context.Context, creatorID uint, req *models.CreateMarketRequest) (*models.Market, error) {
	if req.EntryFee <= 0 {
		return nil, ledger.NewValidationError("entry fee must be positive, got %d", req.EntryFee)
	}

	creatorRewardPct := req.CreatorRewardPct
	if creatorRewardPct == 0 {
		creatorRewardPct = s.cfg.CreatorRewardPct
	}
	platformFeePct := req.PlatformFeePct
	if platformFeePct == 0 {
		platformFeePct = s.cfg.PlatformFeePct
	}
	if creatorRewardPct < 0 || platformFeePct < 0 || creatorRewardPct+platformFeePct >= 1 {
		return nil, ledger.NewValidationError("invalid fee percentages: creator=%f platform=%f",
			creatorRewardPct, platformFeePct)
	}

	market := &models.Market{
		ID:               uuid.New(),
		CreatorID:        creatorID,
		FixtureID:        req.FixtureID,
		Title:            req.Title,
		Description:      req.Description,
		EntryFee:         req.EntryFee,
		Status:           models.MarketStatusScheduled,
		CreatorRewardPct: creatorRewardPct,
		PlatformFeePct:   platformFeePct,
	}

	if err := s.repo.CreateMarket(ctx, market); err != nil {
		return nil, fmt.Errorf("failed to create market: %w", err)
	}

	s.audit.Record(ctx, "market_created", "success", &market.ID, map[string]string{
		"fixture_id": market.FixtureID,
		"entry_fee":  fmt.Sprintf("%d", market.EntryFee),
	})
	log.Printf("[Market] Created market %s for fixture %s (entry fee %d)",
		market.ID, market.FixtureID, market.EntryFee)

	return market, nil
}

// JoinMarket places one prediction. A user holds at most the configured
// number of entries per market and never two entries on the same outcome.
// The participant row, the pool increment and the entry ledger row move
// together; a failure partway compensates what already went in.
func (s *MarketService) JoinMarket(ctx context.Context, userID uint, marketID uuid.UUID, req *models.JoinMarketRequest) (*models.Participant, error) {
	switch req.Prediction {
	case models.OutcomeA, models.OutcomeB, models.OutcomeC:
	default:
		return nil, ledger.NewValidationError("unknown prediction %q", req.Prediction)
	}

	market, err := s.repo.GetMarketByID(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to load market: %w", err)
	}
	if !market.IsOpen() {
		return nil, ledger.NewValidationError("market %s is %s and no longer accepts entries", marketID, market.Status)
	}
	if req.Stake != market.EntryFee {
		return nil, ledger.NewValidationError("stake %d does not match entry fee %d", req.Stake, market.EntryFee)
	}

	entries, err := s.repo.CountUserEntries(ctx, marketID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}
	if entries >= int64(s.cfg.MaxEntriesPerUser) {
		return nil, ledger.NewValidationError("entry cap of %d reached for market %s", s.cfg.MaxEntriesPerUser, marketID)
	}

	duplicate, err := s.repo.HasPrediction(ctx, marketID, userID, req.Prediction)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing predictions: %w", err)
	}
	if duplicate {
		return nil, ledger.NewValidationError("user %d already predicted %s on market %s", userID, req.Prediction, marketID)
	}

	// Snapshot the payout this entry would earn if its prediction wins at
	// the pool size as of joining. Informational only; the real amount is
	// computed at settlement.
	peers, err := s.repo.ListWinners(ctx, marketID, req.Prediction)
	if err != nil {
		return nil, fmt.Errorf("failed to list existing predictions: %w", err)
	}
	poolAfter := market.TotalPool + req.Stake
	distributable := poolAfter -
		int64(float64(poolAfter)*market.CreatorRewardPct) -
		int64(float64(poolAfter)*market.PlatformFeePct)
	potential := distributable / int64(len(peers)+1)

	participant := &models.Participant{
		ID:                uuid.New(),
		MarketID:          marketID,
		UserID:            userID,
		Prediction:        req.Prediction,
		Stake:             req.Stake,
		PotentialWinnings: potential,
		Status:            models.ParticipantStatusActive,
	}
	if err := s.repo.CreateParticipant(ctx, participant); err != nil {
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}

	// The pool increment and the durable entry row move through the ledger's
	// intent log; on failure its compensation cancels the participant and
	// reverses whatever applied.
	if _, err := s.ledger.ExecuteEntry(ctx, participant); err != nil {
		return nil, fmt.Errorf("failed to book entry: %w", err)
	}

	s.audit.Record(ctx, "market_joined", "success", &marketID, map[string]string{
		"user_id":    fmt.Sprintf("%d", userID),
		"prediction": string(req.Prediction),
		"stake":      fmt.Sprintf("%d", req.Stake),
	})
	log.Printf("[Market] User %d joined market %s with %s (stake %d)",
		userID, marketID, req.Prediction, req.Stake)

	return participant, nil
}

// GetMarket returns one market with its participants.
func (s *MarketService) GetMarket(ctx context.Context, marketID uuid.UUID) (*models.Market, []*models.Participant, error) {
	market, err := s.repo.GetMarketByID(ctx, marketID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load market: %w", err)
	}
	participants, err := s.repo.ListParticipants(ctx, marketID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load participants: %w", err)
	}
	return market, participants, nil
}

// ListMarkets returns markets, optionally filtered by status.
func (s *MarketService) ListMarkets(ctx context.Context, status models.MarketStatus, limit, offset int) ([]*models.Market, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListMarkets(ctx, status, limit, offset)
}
