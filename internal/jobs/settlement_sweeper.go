package jobs

import (
	"context"
	"log"
	"time"

	"matchpool/internal/services"
)

// SettlementSweeper periodically syncs unresolved markets against the oracle
// and settles the ones that finished.
type SettlementSweeper struct {
	orchestrator *services.SettlementOrchestrator
	interval     time.Duration
	stopChan     chan struct{}
}

// NewSettlementSweeper creates a new settlement sweep job
func NewSettlementSweeper(orchestrator *services.SettlementOrchestrator, interval time.Duration) *SettlementSweeper {
	return &SettlementSweeper{
		orchestrator: orchestrator,
		interval:     interval,
		stopChan:     make(chan struct{}),
	}
}

// Start begins the settlement sweep loop
func (ss *SettlementSweeper) Start() {
	log.Printf("[SettlementSweeper] Starting settlement sweep job (interval: %v)", ss.interval)

	ticker := time.NewTicker(ss.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ss.sweep()
		case <-ss.stopChan:
			log.Println("[SettlementSweeper] Stopping settlement sweep job")
			return
		}
	}
}

// Stop stops the settlement sweep loop
func (ss *SettlementSweeper) Stop() {
	close(ss.stopChan)
}

func (ss *SettlementSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := ss.orchestrator.RunCycle(ctx)
	if err != nil {
		log.Printf("[SettlementSweeper] Sweep failed: %v", err)
		return
	}
	if report.Scanned > 0 {
		log.Printf("[SettlementSweeper] Swept %d markets (%d resolved, %d cancelled, %d errors)",
			report.Scanned, report.Resolved, report.Cancelled, report.Errors)
	}
}
