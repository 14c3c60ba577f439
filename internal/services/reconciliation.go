package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"matchpool/internal/ledger"
	"matchpool/internal/models"
	"matchpool/internal/repository"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// ErrReconciliationInProgress is returned when a user's balance is already
// being reconciled by another caller.
var ErrReconciliationInProgress = errors.New("reconciliation already in progress for user")

// ReconciliationConfig carries the reconciliation tunables. Tolerance is the
// atomic-unit drift treated as consistent.
type ReconciliationConfig struct {
	Tolerance int64
	SweepRate float64
}

// ReconciliationResult reports one user's balance check. Amounts are atomic
// units; the external service is authoritative. Consistent means the drift
// stayed within tolerance, which is not the same as a zero drift.
type ReconciliationResult struct {
	UserID     uint  `json:"user_id"`
	Cached     int64 `json:"cached"`
	External   int64 `json:"external"`
	Drift      int64 `json:"drift"`
	Consistent bool  `json:"consistent"`
	Adjusted   bool  `json:"adjusted"`
}

// SweepReport summarizes one full reconciliation sweep.
type SweepReport struct {
	Users     int `json:"users"`
	Adjusted  int `json:"adjusted"`
	Skipped   int `json:"skipped"`
	Finalized int `json:"finalized"`
	Errors    int `json:"errors"`
}

// ReconciliationService keeps local balance mirrors and in-flight transfers
// consistent with the external token service. An in-flight set makes each
// user's reconciliation exclusive, and a rate limiter paces sweeps so a large
// user table does not flood the external service.
type ReconciliationService struct {
	repo    *repository.Repository
	gateway *ledger.Gateway
	audit   *AuditService
	cfg     ReconciliationConfig

	limiter *rate.Limiter

	mu       sync.Mutex
	inFlight map[uint]struct{}
}

func NewReconciliationService(
	repo *repository.Repository,
	gateway *ledger.Gateway,
	audit *AuditService,
	cfg ReconciliationConfig,
) *ReconciliationService {
	if cfg.SweepRate <= 0 {
		cfg.SweepRate = 2
	}
	return &ReconciliationService{
		repo:     repo,
		gateway:  gateway,
		audit:    audit,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(cfg.SweepRate), 1),
		inFlight: make(map[uint]struct{}),
	}
}

func (s *ReconciliationService) acquire(userID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[userID]; busy {
		return false
	}
	s.inFlight[userID] = struct{}{}
	return true
}

func (s *ReconciliationService) release(userID uint) {
	s.mu.Lock()
	delete(s.inFlight, userID)
	s.mu.Unlock()
}

// ReconcileUser checks one user's cached balance against the external
// service and rewrites the cache when drift exceeds the tolerance. Concurrent
// calls for the same user fail with ErrReconciliationInProgress.
func (s *ReconciliationService) ReconcileUser(ctx context.Context, userID uint) (*ReconciliationResult, error) {
	if !s.acquire(userID) {
		return nil, fmt.Errorf("user %d: %w", userID, ErrReconciliationInProgress)
	}
	defer s.release(userID)

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("reconciliation rate limiter: %w", err)
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	if user.WalletAddress == "" {
		return nil, ledger.NewValidationError("user %d has no wallet address", userID)
	}

	return s.reconcile(ctx, user)
}

// reconcile runs the balance check. Callers hold the in-flight slot.
func (s *ReconciliationService) reconcile(ctx context.Context, user *models.User) (*ReconciliationResult, error) {
	balance, err := s.gateway.GetBalance(ctx, user.WalletAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch external balance for user %d: %w", user.ID, err)
	}

	cached := user.CachedBalance.IntPart()
	result := &ReconciliationResult{
		UserID:   user.ID,
		Cached:   cached,
		External: balance.Amount,
		Drift:    balance.Amount - cached,
	}

	drift := result.Drift
	if drift < 0 {
		drift = -drift
	}
	result.Consistent = drift <= s.cfg.Tolerance

	if !result.Consistent {
		if err := s.repo.UpdateCachedBalance(ctx, user.ID, decimal.NewFromInt(balance.Amount)); err != nil {
			return nil, fmt.Errorf("failed to update cached balance for user %d: %w", user.ID, err)
		}
		result.Adjusted = true
		s.audit.Record(ctx, "balance_reconciled", "adjusted", nil, map[string]string{
			"user_id":  fmt.Sprintf("%d", user.ID),
			"cached":   fmt.Sprintf("%d", result.Cached),
			"external": fmt.Sprintf("%d", result.External),
		})
		log.Printf("[Reconciliation] User %d drifted by %d, cache rewritten to %d",
			user.ID, result.Drift, result.External)
	}

	return result, nil
}

// ReconcileAll sweeps every user with a wallet and finalizes stale in-flight
// transfers. Users busy in a concurrent reconciliation are skipped, not
// blocked on.
func (s *ReconciliationService) ReconcileAll(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{}

	finalized, err := s.resolveSubmittedPending(ctx)
	if err != nil {
		log.Printf("[Reconciliation] Warning: pending-transfer pass failed: %v", err)
		report.Errors++
	}
	report.Finalized = finalized

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list users: %w", err)
	}
	report.Users = len(users)

	for _, user := range users {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if !s.acquire(user.ID) {
			report.Skipped++
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			s.release(user.ID)
			return report, fmt.Errorf("reconciliation rate limiter: %w", err)
		}

		result, err := s.reconcile(ctx, user)
		s.release(user.ID)
		if err != nil {
			report.Errors++
			log.Printf("[Reconciliation] User %d failed: %v", user.ID, err)
			continue
		}
		if result.Adjusted {
			report.Adjusted++
		}
	}

	log.Printf("[Reconciliation] Sweep done: users=%d adjusted=%d skipped=%d finalized=%d errors=%d",
		report.Users, report.Adjusted, report.Skipped, report.Finalized, report.Errors)
	return report, nil
}

// resolveSubmittedPending finalizes ledger rows whose transfer went out but
// whose terminal status was never recorded, typically after a crash between
// submission and finalization.
func (s *ReconciliationService) resolveSubmittedPending(ctx context.Context) (int, error) {
	pending, err := s.repo.ListSubmittedPending(ctx, 100)
	if err != nil {
		return 0, fmt.Errorf("failed to list submitted pending transactions: %w", err)
	}

	finalized := 0
	for _, tx := range pending {
		if ctx.Err() != nil {
			return finalized, ctx.Err()
		}

		info, err := s.gateway.GetTransferStatus(ctx, *tx.TicketID)
		if err != nil {
			log.Printf("[Reconciliation] Status lookup failed for ticket %s: %v", *tx.TicketID, err)
			continue
		}

		now := time.Now()
		switch info.Status {
		case ledger.TransferStatusConfirmed:
			tx.Status = models.TransactionStatusSuccess
			tx.FinalizedAt = &now
		case ledger.TransferStatusFailed:
			reason := "external transfer failed"
			if info.Error != "" {
				reason = info.Error
			}
			tx.Status = models.TransactionStatusFailed
			tx.FailureReason = &reason
			tx.FinalizedAt = &now
		default:
			// Still settling externally.
			continue
		}

		if err := s.repo.SaveTransaction(ctx, tx); err != nil {
			log.Printf("[Reconciliation] Failed to finalize transaction %s: %v", tx.CorrelationID, err)
			continue
		}
		finalized++
		log.Printf("[Reconciliation] Finalized transaction %s as %s", tx.CorrelationID, tx.Status)
	}

	return finalized, nil
}
