package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"matchpool/internal/ledger"
	"matchpool/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newTestReconciliation(stack *testStack, tolerance int64) *ReconciliationService {
	return NewReconciliationService(stack.repo, stack.gateway, stack.audit, ReconciliationConfig{
		Tolerance: tolerance,
		SweepRate: 1000,
	})
}

func TestReconcileUserAdjustsDrift(t *testing.T) {
	stack := newTestStack(t)
	svc := newTestReconciliation(stack, 100)
	ctx := context.Background()

	createTestUser(t, stack.db, 1, "wallet-1")
	if err := stack.repo.UpdateCachedBalance(ctx, 1, decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}
	stack.client.balances["wallet-1"] = 1500

	result, err := svc.ReconcileUser(ctx, 1)
	if err != nil {
		t.Fatalf("ReconcileUser failed: %v", err)
	}

	if !result.Adjusted {
		t.Error("drift beyond tolerance must adjust the cache")
	}
	if result.Consistent {
		t.Error("drift beyond tolerance must not report consistent")
	}
	if result.Drift != 500 {
		t.Errorf("drift = %d, want 500", result.Drift)
	}

	user, err := stack.repo.GetUserByID(ctx, 1)
	if err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	if user.CachedBalance.IntPart() != 1500 {
		t.Errorf("cached balance = %d, want external 1500", user.CachedBalance.IntPart())
	}
	if user.LastBalanceSync == nil {
		t.Error("expected sync timestamp")
	}
}

func TestReconcileUserWithinTolerance(t *testing.T) {
	stack := newTestStack(t)
	svc := newTestReconciliation(stack, 100)
	ctx := context.Background()

	createTestUser(t, stack.db, 1, "wallet-1")
	if err := stack.repo.UpdateCachedBalance(ctx, 1, decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}
	stack.client.balances["wallet-1"] = 1050

	result, err := svc.ReconcileUser(ctx, 1)
	if err != nil {
		t.Fatalf("ReconcileUser failed: %v", err)
	}

	if result.Adjusted {
		t.Error("drift within tolerance must not rewrite the cache")
	}
	if !result.Consistent {
		t.Error("drift within tolerance must report consistent")
	}
	if result.Drift != 50 {
		t.Errorf("drift = %d, a consistent verdict must still expose the residual drift", result.Drift)
	}

	user, _ := stack.repo.GetUserByID(ctx, 1)
	if user.CachedBalance.IntPart() != 1000 {
		t.Errorf("cached balance = %d, want untouched 1000", user.CachedBalance.IntPart())
	}
}

func TestReconcileUserRejectsConcurrentRun(t *testing.T) {
	stack := newTestStack(t)
	svc := newTestReconciliation(stack, 0)
	ctx := context.Background()

	createTestUser(t, stack.db, 1, "wallet-1")

	if !svc.acquire(1) {
		t.Fatal("failed to take the in-flight slot")
	}
	defer svc.release(1)

	_, err := svc.ReconcileUser(ctx, 1)
	if err == nil {
		t.Fatal("expected rejection while reconciliation is in flight")
	}
	if !errors.Is(err, ErrReconciliationInProgress) {
		t.Errorf("error = %v, want ErrReconciliationInProgress", err)
	}
}

func TestReconcileUserRequiresWallet(t *testing.T) {
	stack := newTestStack(t)
	svc := newTestReconciliation(stack, 0)
	ctx := context.Background()

	user := &models.User{ID: 9, WalletAddress: "", Nickname: "nowallet"}
	if err := stack.db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	_, err := svc.ReconcileUser(ctx, 9)
	if err == nil {
		t.Fatal("expected error for wallet-less user")
	}
	if ledger.KindOf(err) != ledger.KindValidation {
		t.Errorf("kind = %s, want VALIDATION", ledger.KindOf(err))
	}
}

func TestReconcileAllSweeps(t *testing.T) {
	stack := newTestStack(t)
	svc := newTestReconciliation(stack, 0)
	ctx := context.Background()

	for id := uint(1); id <= 3; id++ {
		createTestUser(t, stack.db, id, fmt.Sprintf("wallet-%d", id))
	}
	stack.client.balances["wallet-1"] = 100
	stack.client.balances["wallet-2"] = 0
	stack.client.balances["wallet-3"] = 300

	report, err := svc.ReconcileAll(ctx)
	if err != nil {
		t.Fatalf("ReconcileAll failed: %v", err)
	}

	if report.Users != 3 {
		t.Errorf("users = %d, want 3", report.Users)
	}
	// Users 1 and 3 drifted from the zero default; user 2 matches.
	if report.Adjusted != 2 {
		t.Errorf("adjusted = %d, want 2", report.Adjusted)
	}
	if report.Errors != 0 {
		t.Errorf("errors = %d, want 0", report.Errors)
	}
}

func TestReconcileAllFinalizesSubmittedPending(t *testing.T) {
	stack := newTestStack(t)
	svc := newTestReconciliation(stack, 0)
	ctx := context.Background()

	ticket := "ticket-orphan"
	pending := &models.LedgerTransaction{
		ID:            uuid.New(),
		Type:          models.TransactionTypeWinnings,
		UserID:        1,
		Amount:        400,
		Status:        models.TransactionStatusPending,
		TicketID:      &ticket,
		CorrelationID: "winnings:orphan:1",
	}
	if err := stack.repo.CreateTransaction(ctx, pending); err != nil {
		t.Fatalf("failed to seed pending row: %v", err)
	}
	stack.client.ticketStatus = ledger.TransferStatusConfirmed

	report, err := svc.ReconcileAll(ctx)
	if err != nil {
		t.Fatalf("ReconcileAll failed: %v", err)
	}
	if report.Finalized != 1 {
		t.Errorf("finalized = %d, want 1", report.Finalized)
	}

	tx, _ := stack.repo.GetTransactionByCorrelationID(ctx, "winnings:orphan:1")
	if tx.Status != models.TransactionStatusSuccess {
		t.Errorf("status = %s, want SUCCESS", tx.Status)
	}
	if tx.FinalizedAt == nil {
		t.Error("expected finalized timestamp")
	}
}

func TestReconcileAllMarksFailedTransfers(t *testing.T) {
	stack := newTestStack(t)
	svc := newTestReconciliation(stack, 0)
	ctx := context.Background()

	ticket := "ticket-dead"
	pending := &models.LedgerTransaction{
		ID:            uuid.New(),
		Type:          models.TransactionTypeCreatorReward,
		UserID:        1,
		Amount:        200,
		Status:        models.TransactionStatusPending,
		TicketID:      &ticket,
		CorrelationID: "creator_reward:dead:1",
	}
	if err := stack.repo.CreateTransaction(ctx, pending); err != nil {
		t.Fatalf("failed to seed pending row: %v", err)
	}
	stack.client.ticketStatus = ledger.TransferStatusFailed

	if _, err := svc.ReconcileAll(ctx); err != nil {
		t.Fatalf("ReconcileAll failed: %v", err)
	}

	tx, _ := stack.repo.GetTransactionByCorrelationID(ctx, "creator_reward:dead:1")
	if tx.Status != models.TransactionStatusFailed {
		t.Errorf("status = %s, want FAILED", tx.Status)
	}
	if tx.FailureReason == nil {
		t.Error("expected a failure reason")
	}
}
