package jobs

import (
	"context"
	"log"
	"time"

	"matchpool/internal/services"
)

// ReconciliationJob periodically reconciles balance mirrors and in-flight
// transfers against the external token service.
type ReconciliationJob struct {
	reconciliation *services.ReconciliationService
	interval       time.Duration
	stopChan       chan struct{}
}

// NewReconciliationJob creates a new reconciliation job
func NewReconciliationJob(reconciliation *services.ReconciliationService, interval time.Duration) *ReconciliationJob {
	return &ReconciliationJob{
		reconciliation: reconciliation,
		interval:       interval,
		stopChan:       make(chan struct{}),
	}
}

// Start begins the reconciliation loop
func (rj *ReconciliationJob) Start() {
	log.Printf("[ReconciliationJob] Starting reconciliation job (interval: %v)", rj.interval)

	ticker := time.NewTicker(rj.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rj.sweep()
		case <-rj.stopChan:
			log.Println("[ReconciliationJob] Stopping reconciliation job")
			return
		}
	}
}

// Stop stops the reconciliation loop
func (rj *ReconciliationJob) Stop() {
	close(rj.stopChan)
}

func (rj *ReconciliationJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	report, err := rj.reconciliation.ReconcileAll(ctx)
	if err != nil {
		log.Printf("[ReconciliationJob] Sweep failed: %v", err)
		return
	}
	if report.Adjusted > 0 || report.Finalized > 0 || report.Errors > 0 {
		log.Printf("[ReconciliationJob] Swept %d users (%d adjusted, %d finalized, %d errors)",
			report.Users, report.Adjusted, report.Finalized, report.Errors)
	}
}
