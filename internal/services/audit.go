package services

import (
	"context"
	"log"
	"sync"
	"time"

	"matchpool/internal/models"
	"matchpool/internal/repository"

	"github.com/google/uuid"
)

// AuditEvent is one recorded settlement action.
type AuditEvent struct {
	At        time.Time         `json:"at"`
	Operation string            `json:"operation"`
	Status    string            `json:"status"`
	MarketID  *uuid.UUID        `json:"market_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// AuditService keeps a bounded in-memory window of recent settlement events
// for fast inspection, and mirrors each event into a durable audit_log
// transaction row. The durable write is best effort: a failing database never
// blocks settlement itself.
type AuditService struct {
	repo *repository.Repository

	mu     sync.Mutex
	events []AuditEvent
	next   int
	filled bool
}

const auditWindowSize = 256

func NewAuditService(repo *repository.Repository) *AuditService {
	return &AuditService{
		repo:   repo,
		events: make([]AuditEvent, auditWindowSize),
	}
}

// Record logs one settlement event.
func (s *AuditService) Record(ctx context.Context, operation, status string, marketID *uuid.UUID, details map[string]string) {
	event := AuditEvent{
		At:        time.Now(),
		Operation: operation,
		Status:    status,
		MarketID:  marketID,
		Details:   details,
	}

	s.mu.Lock()
	s.events[s.next] = event
	s.next = (s.next + 1) % len(s.events)
	if s.next == 0 {
		s.filled = true
	}
	s.mu.Unlock()

	tx := &models.LedgerTransaction{
		ID:            uuid.New(),
		Type:          models.TransactionTypeAuditLog,
		MarketID:      marketID,
		Status:        models.TransactionStatusSuccess,
		CorrelationID: "audit:" + uuid.NewString(),
		Meta: models.TransactionMeta{
			Audit: &models.AuditMeta{
				Operation: operation,
				Status:    status,
				Details:   details,
			},
		},
	}
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		log.Printf("[Audit] Warning: failed to persist audit event %s/%s: %v", operation, status, err)
	}
}

// Recent returns the in-memory window in chronological order.
func (s *AuditService) Recent() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.filled {
		out := make([]AuditEvent, s.next)
		copy(out, s.events[:s.next])
		return out
	}

	out := make([]AuditEvent, 0, len(s.events))
	out = append(out, s.events[s.next:]...)
	out = append(out, s.events[:s.next]...)
	return out
}

// Trail returns the durable audit rows, newest first.
func (s *AuditService) Trail(ctx context.Context, limit int) ([]*models.LedgerTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditTrail(ctx, limit)
}
