package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"matchpool/internal/models"
	"matchpool/internal/oracle"
	"matchpool/internal/repository"

	"github.com/google/uuid"
)

// SettlementConfig carries the orchestrator's tunables.
type SettlementConfig struct {
	TreasuryAddress string
	SweepBatchSize  int
}

// StatusSyncResult records one market's lifecycle transition during a sweep.
type StatusSyncResult struct {
	MarketID  uuid.UUID           `json:"market_id"`
	FixtureID string              `json:"fixture_id"`
	From      models.MarketStatus `json:"from"`
	To        models.MarketStatus `json:"to"`
	Error     string              `json:"error,omitempty"`
}

// PayoutReport records the outcome of one settlement leg.
type PayoutReport struct {
	CorrelationID string                   `json:"correlation_id"`
	UserID        uint                     `json:"user_id"`
	Amount        int64                    `json:"amount"`
	Status        models.TransactionStatus `json:"status"`
	Error         string                   `json:"error,omitempty"`
}

// MarketResolution records one resolved market with every payout leg that
// ran, succeeded or not.
type MarketResolution struct {
	MarketID uuid.UUID      `json:"market_id"`
	Outcome  models.Outcome `json:"outcome"`
	Payouts  []PayoutReport `json:"payouts"`
}

// CycleReport summarizes one settlement sweep: aggregate counters plus the
// per-market sync transitions and per-payee resolution outcomes.
type CycleReport struct {
	Scanned     int                `json:"scanned"`
	Synced      int                `json:"synced"`
	Resolved    int                `json:"resolved"`
	Settled     int                `json:"settled"`
	Cancelled   int                `json:"cancelled"`
	Errors      int                `json:"errors"`
	StatusSync  []StatusSyncResult `json:"status_sync"`
	Resolutions []MarketResolution `json:"resolutions"`
}

// SettlementOrchestrator drives markets from oracle status to settled
// payouts. The terminal transition is guarded in the database, so concurrent
// sweeps and manual triggers cannot settle the same market twice.
type SettlementOrchestrator struct {
	repo   *repository.Repository
	oracle *oracle.Client
	calc   *WinningsCalculator
	ledger *TransactionLedgerService
	audit  *AuditService
	cfg    SettlementConfig
}

func NewSettlementOrchestrator(
	repo *repository.Repository,
	oracleClient *oracle.Client,
	calc *WinningsCalculator,
	ledgerService *TransactionLedgerService,
	audit *AuditService,
	cfg SettlementConfig,
) *SettlementOrchestrator {
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 50
	}
	return &SettlementOrchestrator{
		repo:   repo,
		oracle: oracleClient,
		calc:   calc,
		ledger: ledgerService,
		audit:  audit,
		cfg:    cfg,
	}
}

// RunCycle syncs every unresolved market against the oracle and settles the
// ones that finished. Per-market failures are counted, logged and skipped so
// one bad fixture cannot stall the sweep.
func (s *SettlementOrchestrator) RunCycle(ctx context.Context) (*CycleReport, error) {
	markets, err := s.repo.ListUnresolvedMarkets(ctx, s.cfg.SweepBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved markets: %w", err)
	}

	report := &CycleReport{Scanned: len(markets)}
	for _, market := range markets {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		sync := StatusSyncResult{
			MarketID:  market.ID,
			FixtureID: market.FixtureID,
			From:      market.Status,
			To:        market.Status,
		}
		res, err := s.syncMarket(ctx, market)
		if res != nil {
			sync.To = res.status
			if res.resolution != nil {
				report.Resolutions = append(report.Resolutions, *res.resolution)
			}
		}
		if err != nil {
			report.Errors++
			sync.Error = err.Error()
			report.StatusSync = append(report.StatusSync, sync)
			log.Printf("[Settlement] Sync failed for market %s (fixture %s): %v", market.ID, market.FixtureID, err)
			continue
		}
		report.StatusSync = append(report.StatusSync, sync)
		report.Synced++
		switch res.outcome {
		case syncResolved:
			report.Resolved++
			report.Settled++
		case syncCancelled:
			report.Cancelled++
		}
	}

	log.Printf("[Settlement] Cycle done: scanned=%d synced=%d resolved=%d cancelled=%d errors=%d",
		report.Scanned, report.Synced, report.Resolved, report.Cancelled, report.Errors)
	return report, nil
}

type syncOutcome int

const (
	syncNoChange syncOutcome = iota
	syncResolved
	syncCancelled
)

// syncResult carries what one market's sync produced: the lifecycle change,
// the status the market ended on and, for resolved markets, the per-payee
// resolution.
type syncResult struct {
	outcome    syncOutcome
	status     models.MarketStatus
	resolution *MarketResolution
}

// syncMarket pulls the market's fixture from the oracle and applies the
// resulting lifecycle transition. A finished fixture with a determinate score
// resolves and settles the market.
func (s *SettlementOrchestrator) syncMarket(ctx context.Context, market *models.Market) (*syncResult, error) {
	res := &syncResult{status: market.Status}

	match, err := s.oracle.GetMatch(ctx, market.FixtureID)
	if err != nil {
		return res, fmt.Errorf("oracle lookup: %w", err)
	}

	switch match.Status {
	case oracle.MatchStatusLive, oracle.MatchStatusInPlay, oracle.MatchStatusPaused:
		if market.Status != models.MarketStatusLive {
			if err := s.repo.UpdateMarketStatus(ctx, market.ID, models.MarketStatusLive); err != nil {
				return res, fmt.Errorf("failed to mark market live: %w", err)
			}
		}
		res.status = models.MarketStatusLive
		return res, nil

	case oracle.MatchStatusPostponed, oracle.MatchStatusSuspended:
		if market.Status != models.MarketStatusPostponed {
			if err := s.repo.UpdateMarketStatus(ctx, market.ID, models.MarketStatusPostponed); err != nil {
				return res, fmt.Errorf("failed to mark market postponed: %w", err)
			}
		}
		res.status = models.MarketStatusPostponed
		return res, nil

	case oracle.MatchStatusCancelled:
		if err := s.cancelMarket(ctx, market); err != nil {
			return res, err
		}
		res.outcome = syncCancelled
		res.status = models.MarketStatusCancelled
		return res, nil

	case oracle.MatchStatusFinished:
		if !match.Score.Determinate() {
			// Finished without a full score happens while the provider is
			// still publishing; pick it up on the next sweep.
			log.Printf("[Settlement] Fixture %s finished with indeterminate score, deferring", market.FixtureID)
			return res, nil
		}
		outcome := outcomeFromScore(match.Score)
		won, err := s.repo.ResolveMarket(ctx, market.ID, outcome)
		if err != nil {
			return res, fmt.Errorf("failed to resolve market: %w", err)
		}
		if !won {
			// Another sweep resolved it first.
			return res, nil
		}
		s.audit.Record(ctx, "market_resolved", "success", &market.ID, map[string]string{
			"fixture_id": market.FixtureID,
			"outcome":    string(outcome),
		})
		res.outcome = syncResolved
		res.status = models.MarketStatusFinished
		resolution, settleErr := s.SettleMarket(ctx, market.ID)
		res.resolution = resolution
		if settleErr != nil {
			return res, fmt.Errorf("market resolved but settlement incomplete: %w", settleErr)
		}
		return res, nil
	}

	return res, nil
}

// outcomeFromScore maps a determinate final score onto the three-way market
// outcome.
func outcomeFromScore(score oracle.Score) models.Outcome {
	switch {
	case *score.Home > *score.Away:
		return models.OutcomeA
	case *score.Away > *score.Home:
		return models.OutcomeB
	default:
		return models.OutcomeC
	}
}

// cancelMarket propagates an upstream cancellation: the market closes, every
// active participant row is soft-cancelled and the cancellation is audited.
func (s *SettlementOrchestrator) cancelMarket(ctx context.Context, market *models.Market) error {
	if err := s.repo.UpdateMarketStatus(ctx, market.ID, models.MarketStatusCancelled); err != nil {
		return fmt.Errorf("failed to cancel market: %w", err)
	}
	if err := s.repo.CancelMarketParticipants(ctx, market.ID); err != nil {
		return fmt.Errorf("failed to cancel participants: %w", err)
	}
	s.audit.Record(ctx, "market_cancelled", "success", &market.ID, map[string]string{
		"fixture_id": market.FixtureID,
	})
	log.Printf("[Settlement] Market %s cancelled (fixture %s)", market.ID, market.FixtureID)
	return nil
}

// SettleMarket pays out a resolved market: equal winner payouts, creator
// reward, platform fee. Every payout is keyed by a deterministic correlation
// id, so re-running after a partial failure completes the remaining legs
// without double paying the ones that went through. The returned resolution
// carries every leg's outcome, failed ones included.
func (s *SettlementOrchestrator) SettleMarket(ctx context.Context, marketID uuid.UUID) (*MarketResolution, error) {
	market, err := s.repo.GetMarketByID(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to load market: %w", err)
	}
	if market.Outcome == nil || market.Status != models.MarketStatusFinished {
		return nil, fmt.Errorf("market %s is not resolved", marketID)
	}

	winners, err := s.repo.ListWinners(ctx, marketID, *market.Outcome)
	if err != nil {
		return nil, fmt.Errorf("failed to list winners: %w", err)
	}

	breakdown, err := s.calc.Calculate(market.TotalPool, len(winners))
	if err != nil {
		return nil, fmt.Errorf("failed to split pool: %w", err)
	}

	log.Printf("[Settlement] Settling market %s: pool=%d winners=%d perWinner=%d creator=%d platform=%d remainder=%d",
		marketID, breakdown.TotalPool, breakdown.WinnerCount, breakdown.PerWinner,
		breakdown.CreatorReward, breakdown.PlatformFee, breakdown.Remainder)

	resolution := &MarketResolution{MarketID: marketID, Outcome: *market.Outcome}

	var firstErr error
	record := func(leg PayoutReport, err error) {
		if err != nil {
			leg.Status = models.TransactionStatusFailed
			leg.Error = err.Error()
			if firstErr == nil {
				firstErr = err
			}
		}
		resolution.Payouts = append(resolution.Payouts, leg)
	}

	for _, winner := range winners {
		err := s.payWinner(ctx, market, winner, breakdown.PerWinner)
		if err != nil {
			log.Printf("[Settlement] Winner payout failed for participant %s: %v", winner.ID, err)
		}
		record(PayoutReport{
			CorrelationID: fmt.Sprintf("winnings:%s:%s", market.ID, winner.ID),
			UserID:        winner.UserID,
			Amount:        breakdown.PerWinner,
			Status:        models.TransactionStatusSuccess,
		}, err)
	}

	if breakdown.CreatorReward > 0 {
		err := s.payCreator(ctx, market, breakdown.CreatorReward)
		if err != nil {
			log.Printf("[Settlement] Creator reward failed for market %s: %v", marketID, err)
		}
		record(PayoutReport{
			CorrelationID: fmt.Sprintf("creator_reward:%s", market.ID),
			UserID:        market.CreatorID,
			Amount:        breakdown.CreatorReward,
			Status:        models.TransactionStatusSuccess,
		}, err)
	}

	if breakdown.PlatformFee > 0 {
		err := s.recordPlatformFee(ctx, market, breakdown.PlatformFee)
		if err != nil {
			log.Printf("[Settlement] Platform fee record failed for market %s: %v", marketID, err)
		}
		record(PayoutReport{
			CorrelationID: fmt.Sprintf("platform_fee:%s", market.ID),
			UserID:        market.CreatorID,
			Amount:        breakdown.PlatformFee,
			Status:        models.TransactionStatusSuccess,
		}, err)
	}

	s.audit.Record(ctx, "market_settled", settleStatus(firstErr), &marketID, map[string]string{
		"winners":    fmt.Sprintf("%d", breakdown.WinnerCount),
		"per_winner": fmt.Sprintf("%d", breakdown.PerWinner),
		"remainder":  fmt.Sprintf("%d", breakdown.Remainder),
	})

	return resolution, firstErr
}

func settleStatus(err error) string {
	if err != nil {
		return "partial"
	}
	return "success"
}

// payWinner credits one winner: the winnings are pinned on the participant
// row first, then transferred out through the ledger.
func (s *SettlementOrchestrator) payWinner(ctx context.Context, market *models.Market, winner *models.Participant, amount int64) error {
	if amount <= 0 {
		return nil
	}

	user, err := s.repo.GetUserByID(ctx, winner.UserID)
	if err != nil {
		return fmt.Errorf("failed to load winner user %d: %w", winner.UserID, err)
	}
	if user.WalletAddress == "" {
		return fmt.Errorf("winner user %d has no wallet address", winner.UserID)
	}

	if _, err := s.repo.SetActualWinnings(ctx, winner.ID, amount); err != nil {
		return fmt.Errorf("failed to pin winnings: %w", err)
	}

	_, err = s.ledger.ExecutePayout(ctx, PayoutRequest{
		Type:          models.TransactionTypeWinnings,
		UserID:        winner.UserID,
		MarketID:      &market.ID,
		Amount:        amount,
		Recipient:     user.WalletAddress,
		CorrelationID: fmt.Sprintf("winnings:%s:%s", market.ID, winner.ID),
		Meta: models.TransactionMeta{
			Winnings: &models.WinningsMeta{
				ParticipantIDs: []uuid.UUID{winner.ID},
				PerWinner:      amount,
				Recipient:      user.WalletAddress,
			},
		},
	})
	return err
}

// payCreator transfers the creator reward out of the treasury.
func (s *SettlementOrchestrator) payCreator(ctx context.Context, market *models.Market, amount int64) error {
	creator, err := s.repo.GetUserByID(ctx, market.CreatorID)
	if err != nil {
		return fmt.Errorf("failed to load creator %d: %w", market.CreatorID, err)
	}
	if creator.WalletAddress == "" {
		return fmt.Errorf("creator %d has no wallet address", market.CreatorID)
	}

	_, err = s.ledger.ExecutePayout(ctx, PayoutRequest{
		Type:          models.TransactionTypeCreatorReward,
		UserID:        market.CreatorID,
		MarketID:      &market.ID,
		Amount:        amount,
		Recipient:     creator.WalletAddress,
		CorrelationID: fmt.Sprintf("creator_reward:%s", market.ID),
		Meta: models.TransactionMeta{
			Reward: &models.RewardMeta{
				CreatorID: market.CreatorID,
				Recipient: creator.WalletAddress,
			},
		},
	})
	return err
}

// recordPlatformFee books the platform's share. The pool already sits in the
// treasury, so no external transfer happens; the row exists so the ledger sums
// to the pool. The unique correlation id makes the record idempotent.
func (s *SettlementOrchestrator) recordPlatformFee(ctx context.Context, market *models.Market, amount int64) error {
	correlationID := fmt.Sprintf("platform_fee:%s", market.ID)

	existing, err := s.repo.GetTransactionByCorrelationID(ctx, correlationID)
	if err != nil {
		return fmt.Errorf("failed to look up fee record: %w", err)
	}
	if existing != nil {
		return nil
	}

	now := time.Now()
	tx := &models.LedgerTransaction{
		ID:            uuid.New(),
		Type:          models.TransactionTypePlatformFee,
		UserID:        market.CreatorID,
		MarketID:      &market.ID,
		Amount:        amount,
		Status:        models.TransactionStatusSuccess,
		CorrelationID: correlationID,
		Meta: models.TransactionMeta{
			Fee: &models.FeeMeta{Recipient: s.cfg.TreasuryAddress},
		},
		FinalizedAt: &now,
	}
	return s.repo.CreateTransaction(ctx, tx)
}
