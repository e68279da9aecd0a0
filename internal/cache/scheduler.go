package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// defaultRepairRate bounds strong-mode verification fan-out per sync pass so
// a mass-divergence event cannot saturate the transport.
const defaultRepairRate = 50

// Scheduler drives the engine's two background loops: the sync loop (expiry
// sweep plus strong-mode replica verification) and the heartbeat loop. Both
// loops stop cleanly on Stop; Start and Stop are idempotent.
type Scheduler struct {
	cache   *DistributedCache
	logger  *zap.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	// wg belongs to one Start/Stop cycle; a fresh Start allocates its own so
	// a Stop still waiting on the previous run never races its Add.
	wg *sync.WaitGroup
}

// NewScheduler creates a scheduler for the cache's configured intervals.
func NewScheduler(cache *DistributedCache, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cache:   cache,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(defaultRepairRate), defaultRepairRate),
	}
}

// Start launches both loops. Calling Start while running is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.wg = &sync.WaitGroup{}

	s.wg.Add(2)
	go s.syncLoop(ctx, s.wg)
	go s.heartbeatLoop(ctx, s.wg)

	s.logger.Info("scheduler started",
		zap.Duration("sync_interval", s.cache.Config().SyncInterval),
		zap.Duration("heartbeat_interval", s.cache.Config().HeartbeatInterval))
}

// Stop cancels both loops and waits for them to finish. A second Stop is a
// no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	wg := s.wg
	s.mu.Unlock()

	wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) syncLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(s.cache.Config().SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runSyncPass(ctx)
		}
	}
}

// runSyncPass sweeps expired entries, then under strong consistency
// verifies every surviving key against its replicas, repairing divergence.
func (s *Scheduler) runSyncPass(ctx context.Context) {
	if expired := s.cache.Sweep(); expired > 0 {
		s.logger.Debug("swept expired entries", zap.Int("count", expired))
	}

	if s.cache.Config().Consistency != Strong {
		return
	}

	repaired := 0
	for _, e := range s.cache.snapshotEntries() {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		if s.cache.verifyAndRepair(ctx, e) {
			repaired++
		}
	}
	if repaired > 0 {
		s.logger.Info("sync pass repaired replicas", zap.Int("keys", repaired))
	}
}

func (s *Scheduler) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(s.cache.Config().HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cache.Registry().Heartbeat(ctx)
		}
	}
}
