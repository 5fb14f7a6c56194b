package storage

import (
	"context"
	"time"

	"github.com/dgellow/customer-auth/internal/log"
)

// CleanupManager periodically sweeps expired entries from a store
type CleanupManager struct {
	sweeper  Sweeper
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(sweeper Sweeper, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		sweeper:  sweeper,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the cleanup loop in a goroutine
func (cm *CleanupManager) Start(ctx context.Context) {
	log.LogInfoWithFields("cleanup", "Starting store cleanup manager", map[string]any{
		"interval": cm.interval.String(),
	})

	go cm.run(ctx)
}

// Stop gracefully stops the cleanup loop
func (cm *CleanupManager) Stop() {
	log.LogInfo("Stopping store cleanup manager...")
	close(cm.stopChan)
	<-cm.doneChan
	log.LogInfo("Store cleanup manager stopped")
}

func (cm *CleanupManager) run(ctx context.Context) {
	defer close(cm.doneChan)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.cleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.cleanup(ctx)
		case <-cm.stopChan:
			cm.cleanup(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cm *CleanupManager) cleanup(ctx context.Context) {
	count, err := cm.sweeper.SweepExpired(ctx)
	if err != nil {
		log.LogErrorWithFields("cleanup", "Failed to sweep expired entries", map[string]any{
			"error": err.Error(),
		})
		return
	}

	if count > 0 {
		log.LogInfoWithFields("cleanup", "Swept expired entries", map[string]any{
			"count": count,
		})
	}
}
