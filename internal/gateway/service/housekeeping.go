package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/northplain/idgate/internal/gateway/store"
)

// HousekeepingService periodically deletes unconfirmed TOTP enrollments
// that were started but never verified, so abandoned setups do not pile
// up. Expired email codes need no sweeping; their store evicts them.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// MaxPendingAge is how long an unconfirmed enrollment may sit before
	// it is swept.
	MaxPendingAge time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates the worker. Zero or negative interval
// defaults to 1 hour, zero or negative pending age to 24 hours.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval, maxPendingAge time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if maxPendingAge <= 0 {
		maxPendingAge = 24 * time.Hour
	}

	return &HousekeepingService{
		Store:         store,
		Logger:        logger,
		Interval:      interval,
		MaxPendingAge: maxPendingAge,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut
// it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts the worker down, blocking until any in-progress sweep
// finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Sweep once on startup.
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	cutoff := time.Now().Add(-s.MaxPendingAge)

	if err := s.Store.Enrollments().DeleteStaleUnconfirmedEnrollments(ctx, cutoff); err != nil {
		s.Logger.Error("failed to sweep stale enrollments", "error", err)
		return
	}
	s.Logger.Debug("housekeeping sweep completed", "cutoff", cutoff)
}
