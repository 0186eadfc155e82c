package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/intra/internal/intra/store"
)

// HousekeepingService periodically purges cache rows older than the cache
// TTL so the database does not grow without bound.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration
	TTL      time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service. Non-positive
// interval or ttl default to one hour and ten minutes respectively.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval, ttl time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		TTL:      ttl,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "ttl", s.TTL)
}

// Stop shuts the worker down and waits for an in-progress purge to finish.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

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

// cleanup purges stale rows. Each table is handled independently.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	cutoff := time.Now().Add(-s.TTL)

	var purged int64

	if n, err := s.Store.Profiles().DeleteProfilesFetchedBefore(ctx, cutoff); err != nil {
		s.Logger.Error("failed to purge cached profiles", "error", err)
	} else {
		purged += n
	}

	if n, err := s.Store.Projects().DeleteProjectsFetchedBefore(ctx, cutoff); err != nil {
		s.Logger.Error("failed to purge cached projects", "error", err)
	} else {
		purged += n
	}

	s.Logger.Debug("housekeeping cleanup completed", "purged_rows", purged)
}
