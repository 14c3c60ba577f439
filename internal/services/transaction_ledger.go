package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"matchpool/internal/ledger"
	"matchpool/internal/models"
	"matchpool/internal/repository"

	"github.com/google/uuid"
)

// PayoutRequest describes one outbound treasury transfer to run through the
// ledger. CorrelationID is the idempotency key: the same key never produces a
// second external submission.
type PayoutRequest struct {
	Type          models.TransactionType
	UserID        uint
	MarketID      *uuid.UUID
	Amount        int64
	Recipient     string
	CorrelationID string
	Meta          models.TransactionMeta
}

// PayoutOutcome reports the transaction row backing the request. Replayed is
// true when the correlation id had already settled and no external call was
// made.
type PayoutOutcome struct {
	Transaction *models.LedgerTransaction
	Replayed    bool
}

// TransactionLedgerService is the durable intent log around the token
// gateway. Every payout writes a PENDING row before touching the external
// service, finalizes it exactly once, and compensates local bookkeeping when
// the external leg fails.
type TransactionLedgerService struct {
	repo       *repository.Repository
	gateway    *ledger.Gateway
	audit      *AuditService
	signingKey string
}

func NewTransactionLedgerService(
	repo *repository.Repository,
	gateway *ledger.Gateway,
	audit *AuditService,
	signingKey string,
) *TransactionLedgerService {
	return &TransactionLedgerService{
		repo:       repo,
		gateway:    gateway,
		audit:      audit,
		signingKey: signingKey,
	}
}

// ExecutePayout runs one payout end to end: intent row, external transfer,
// finalization. Replays of a settled correlation id return the original row
// without contacting the external service.
func (s *TransactionLedgerService) ExecutePayout(ctx context.Context, req PayoutRequest) (*PayoutOutcome, error) {
	if req.CorrelationID == "" {
		return nil, ledger.NewValidationError("payout requires a correlation id")
	}
	if req.Amount <= 0 {
		return nil, ledger.NewValidationError("payout amount must be positive, got %d", req.Amount)
	}

	tx, err := s.repo.GetTransactionByCorrelationID(ctx, req.CorrelationID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up correlation id %s: %w", req.CorrelationID, err)
	}

	reused := false
	if tx != nil {
		switch tx.Status {
		case models.TransactionStatusSuccess:
			log.Printf("[Ledger] Replay of settled correlation id %s, skipping", req.CorrelationID)
			return &PayoutOutcome{Transaction: tx, Replayed: true}, nil
		case models.TransactionStatusPending:
			if tx.TicketID != nil {
				// Submitted but never finalized. Resubmitting could double
				// pay; reconciliation owns this row now.
				return nil, fmt.Errorf("correlation id %s has an in-flight transfer %s", req.CorrelationID, *tx.TicketID)
			}
			// Crashed before submission, the row is safe to reuse.
			reused = true
		case models.TransactionStatusFailed:
			log.Printf("[Ledger] Retrying failed correlation id %s", req.CorrelationID)
			tx.Status = models.TransactionStatusPending
			tx.FailureReason = nil
			tx.FinalizedAt = nil
			reused = true
		}
	} else {
		tx = &models.LedgerTransaction{
			ID:            uuid.New(),
			Type:          req.Type,
			UserID:        req.UserID,
			MarketID:      req.MarketID,
			Amount:        req.Amount,
			Status:        models.TransactionStatusPending,
			CorrelationID: req.CorrelationID,
			Meta:          req.Meta,
		}
		if err := s.repo.CreateTransaction(ctx, tx); err != nil {
			return nil, fmt.Errorf("failed to record payout intent: %w", err)
		}
	}
	if reused {
		// Persist the reset before the external call so a crash here still
		// leaves a PENDING row without a ticket.
		if err := s.repo.SaveTransaction(ctx, tx); err != nil {
			return nil, fmt.Errorf("failed to reset payout intent: %w", err)
		}
	}

	result, transferErr := s.gateway.Transfer(ctx, []ledger.Recipient{
		{Address: req.Recipient, Amount: req.Amount},
	}, s.signingKey)

	if transferErr != nil {
		return nil, s.failAndRollback(ctx, tx, transferErr)
	}

	// Persist the ticket on the still-PENDING row before marking SUCCESS. A
	// crash or save failure from here on leaves a PENDING row with a ticket,
	// which the in-flight check above refuses to resubmit and reconciliation
	// finalizes from the external status.
	tx.TicketID = &result.TicketID
	if err := s.repo.SaveTransaction(ctx, tx); err != nil {
		s.audit.Record(ctx, string(req.Type), "inconsistent", req.MarketID, map[string]string{
			"correlation_id": req.CorrelationID,
			"ticket_id":      result.TicketID,
			"reason":         "transfer submitted but ticket persist failed",
		})
		log.Printf("[Ledger] INCONSISTENCY: transfer %s for %s went out but the ticket was not persisted: %v",
			result.TicketID, req.CorrelationID, err)
		return nil, fmt.Errorf("transfer %s submitted but ticket persist failed, manual check required: %w",
			result.TicketID, err)
	}

	now := time.Now()
	tx.Status = models.TransactionStatusSuccess
	tx.FinalizedAt = &now
	if err := s.repo.SaveTransaction(ctx, tx); err != nil {
		log.Printf("[Ledger] Finalization failed for %s (ticket %s), reconciliation will finalize: %v",
			req.CorrelationID, result.TicketID, err)
		return nil, fmt.Errorf("transfer %s submitted but finalization failed: %w", result.TicketID, err)
	}

	s.audit.Record(ctx, string(req.Type), "success", req.MarketID, map[string]string{
		"correlation_id": req.CorrelationID,
		"ticket_id":      result.TicketID,
		"amount":         fmt.Sprintf("%d", req.Amount),
	})

	log.Printf("[Ledger] Payout %s settled: correlation=%s ticket=%s amount=%d",
		req.Type, req.CorrelationID, result.TicketID, req.Amount)

	return &PayoutOutcome{Transaction: tx}, nil
}

// failAndRollback finalizes the row as FAILED and runs the compensating
// actions for its metadata branch. The original transfer error is always
// returned to the caller.
func (s *TransactionLedgerService) failAndRollback(ctx context.Context, tx *models.LedgerTransaction, cause error) error {
	now := time.Now()
	reason := cause.Error()
	tx.Status = models.TransactionStatusFailed
	tx.FailureReason = &reason
	tx.FinalizedAt = &now

	actions := s.compensate(ctx, tx)
	tx.Meta.Rollback = &models.RollbackMeta{
		Actions:    actions,
		RolledBack: true,
		At:         now,
		Reason:     reason,
	}

	if err := s.repo.SaveTransaction(ctx, tx); err != nil {
		log.Printf("[Ledger] Warning: failed to persist rollback for %s: %v", tx.CorrelationID, err)
	}

	s.audit.Record(ctx, string(tx.Type), "failed", tx.MarketID, map[string]string{
		"correlation_id": tx.CorrelationID,
		"reason":         reason,
	})

	return fmt.Errorf("transaction %s failed: %w", tx.CorrelationID, cause)
}

// compensate undoes the local bookkeeping for one transaction. Each branch of
// the metadata union has its own compensation; reward and fee rows carry no
// local state and compensate as a record only.
func (s *TransactionLedgerService) compensate(ctx context.Context, tx *models.LedgerTransaction) []string {
	var actions []string

	switch {
	case tx.Meta.Entry != nil:
		meta := tx.Meta.Entry
		if err := s.repo.CancelParticipant(ctx, meta.ParticipantID); err != nil {
			log.Printf("[Ledger] Warning: failed to cancel participant %s: %v", meta.ParticipantID, err)
		} else {
			actions = append(actions, fmt.Sprintf("cancelled participant %s", meta.ParticipantID))
		}
		if tx.MarketID != nil {
			if err := s.repo.AdjustPool(ctx, *tx.MarketID, -meta.Stake); err != nil {
				log.Printf("[Ledger] Warning: failed to decrement pool for market %s: %v", *tx.MarketID, err)
			} else {
				actions = append(actions, fmt.Sprintf("decremented pool by %d", meta.Stake))
			}
		}

	case tx.Meta.Winnings != nil:
		meta := tx.Meta.Winnings
		if err := s.repo.ClearActualWinnings(ctx, meta.ParticipantIDs); err != nil {
			log.Printf("[Ledger] Warning: failed to clear winnings for %d participants: %v", len(meta.ParticipantIDs), err)
		} else {
			actions = append(actions, fmt.Sprintf("cleared actual winnings on %d participants", len(meta.ParticipantIDs)))
		}

	case tx.Meta.Reward != nil:
		actions = append(actions, "creator reward not delivered, no local state to undo")

	case tx.Meta.Fee != nil:
		actions = append(actions, "platform fee not collected, no local state to undo")

	default:
		actions = append(actions, "no compensating action for transaction type "+string(tx.Type))
	}

	return actions
}

// ExecuteEntry books one market entry through the same intent log as
// payouts: PENDING row first, pool increment, finalization. An entry has no
// external leg, so any failure compensates in full; the pool reversal is a
// no-op when the increment itself was the failing step.
func (s *TransactionLedgerService) ExecuteEntry(ctx context.Context, participant *models.Participant) (*PayoutOutcome, error) {
	correlationID := "entry:" + participant.ID.String()

	tx, err := s.repo.GetTransactionByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up correlation id %s: %w", correlationID, err)
	}
	if tx != nil && tx.Status == models.TransactionStatusSuccess {
		log.Printf("[Ledger] Replay of settled entry %s, skipping", correlationID)
		return &PayoutOutcome{Transaction: tx, Replayed: true}, nil
	}

	if tx != nil {
		tx.Status = models.TransactionStatusPending
		tx.FailureReason = nil
		tx.FinalizedAt = nil
		if err := s.repo.SaveTransaction(ctx, tx); err != nil {
			return nil, fmt.Errorf("failed to reset entry intent: %w", err)
		}
	} else {
		tx = &models.LedgerTransaction{
			ID:            uuid.New(),
			Type:          models.TransactionTypeEntry,
			UserID:        participant.UserID,
			MarketID:      &participant.MarketID,
			Amount:        participant.Stake,
			Status:        models.TransactionStatusPending,
			CorrelationID: correlationID,
			Meta: models.TransactionMeta{
				Entry: &models.EntryMeta{
					ParticipantID: participant.ID,
					Stake:         participant.Stake,
					Prediction:    participant.Prediction,
				},
			},
		}
		if err := s.repo.CreateTransaction(ctx, tx); err != nil {
			return nil, fmt.Errorf("failed to record entry intent: %w", err)
		}
	}

	if err := s.repo.AdjustPool(ctx, participant.MarketID, participant.Stake); err != nil {
		// The market may have left SCHEDULED after the caller's open check.
		return nil, s.failAndRollback(ctx, tx, err)
	}

	now := time.Now()
	tx.Status = models.TransactionStatusSuccess
	tx.FinalizedAt = &now
	if err := s.repo.SaveTransaction(ctx, tx); err != nil {
		return nil, s.failAndRollback(ctx, tx, fmt.Errorf("failed to finalize entry: %w", err))
	}

	log.Printf("[Ledger] Entry settled: correlation=%s stake=%d", correlationID, participant.Stake)
	return &PayoutOutcome{Transaction: tx}, nil
}

// GetTransaction returns the row bound to a correlation id, or nil.
func (s *TransactionLedgerService) GetTransaction(ctx context.Context, correlationID string) (*models.LedgerTransaction, error) {
	return s.repo.GetTransactionByCorrelationID(ctx, correlationID)
}

// ListMarketTransactions returns every ledger row of one market.
func (s *TransactionLedgerService) ListMarketTransactions(ctx context.Context, marketID uuid.UUID) ([]*models.LedgerTransaction, error) {
	return s.repo.ListTransactionsByMarket(ctx, marketID)
}
