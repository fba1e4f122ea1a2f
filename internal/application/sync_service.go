package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrRateLimited is returned when a sync is triggered again within the cooldown.
var ErrRateLimited = errors.New("rate limit exceeded")

// DefaultSyncCooldown is the minimum time between two triggered syncs.
const DefaultSyncCooldown = 30 * time.Second

// Sync triggers.
const (
	TriggerScheduled = "scheduled"
	TriggerAPI       = "api"
)

// SyncResult reports one pass over the workflow storage.
type SyncResult struct {
	Trigger          string        `json:"trigger"`
	WorkflowsAdded   int           `json:"workflows_added"`
	WorkflowsRemoved int           `json:"workflows_removed"`
	WorkflowsTotal   int           `json:"workflows_total"`
	SyncedAt         time.Time     `json:"synced_at"`
	Duration         time.Duration `json:"duration_ns"`
	NextScheduledAt  time.Time     `json:"next_scheduled_at,omitempty"`
}

// SyncOption configures a SyncService.
type SyncOption func(*SyncService)

// WithCooldown sets the minimum time between triggered syncs.
func WithCooldown(d time.Duration) SyncOption {
	return func(s *SyncService) { s.cooldown = d }
}

// SyncService reconciles the registry with the workflow storage on a schedule and
// on demand. Only one pass runs at a time.
type SyncService struct {
	registry *WorkflowRegistry
	interval time.Duration
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	running sync.Mutex // held for the duration of a pass

	mu          sync.Mutex
	lastTrigger time.Time
	nextRun     time.Time
	last        *SyncResult

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSyncService creates a sync service running every interval once started.
func NewSyncService(registry *WorkflowRegistry, interval time.Duration, logger *slog.Logger, opts ...SyncOption) *SyncService {
	s := &SyncService{
		registry: registry,
		interval: interval,
		cooldown: DefaultSyncCooldown,
		logger:   logger,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs scheduled syncs in the background until ctx is canceled or Stop is called.
func (s *SyncService) Start(ctx context.Context) {
	s.logger.Info("starting sync service", "interval", s.interval)
	s.setNextRun(s.now().Add(s.interval))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.setNextRun(s.now().Add(s.interval))
				if _, err := s.run(ctx, TriggerScheduled); err != nil {
					s.logger.Error("scheduled sync failed", "error", err)
				}
			}
		}
	}()
}

// Stop ends the scheduler and waits for a running pass. It is safe to call more than once.
func (s *SyncService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping sync service")
		close(s.stop)
	})
	s.wg.Wait()
}

// TriggerSync runs a pass now. It returns ErrRateLimited within the cooldown of the
// previous triggered pass.
func (s *SyncService) TriggerSync(ctx context.Context) (SyncResult, error) {
	s.mu.Lock()
	now := s.now()
	if !s.lastTrigger.IsZero() && now.Sub(s.lastTrigger) < s.cooldown {
		s.mu.Unlock()
		return SyncResult{}, ErrRateLimited
	}
	s.lastTrigger = now
	s.mu.Unlock()

	return s.run(ctx, TriggerAPI)
}

func (s *SyncService) run(ctx context.Context, trigger string) (SyncResult, error) {
	s.running.Lock()
	defer s.running.Unlock()

	start := s.now()
	stats, err := s.registry.Sync(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	result := SyncResult{
		Trigger:          trigger,
		WorkflowsAdded:   stats.Added,
		WorkflowsRemoved: stats.Removed,
		WorkflowsTotal:   s.registry.WorkflowCount(),
		SyncedAt:         s.now(),
		NextScheduledAt:  s.nextRun,
	}
	result.Duration = result.SyncedAt.Sub(start)
	s.last = &result

	s.logger.Info("sync completed", "trigger", trigger,
		"added", result.WorkflowsAdded, "removed", result.WorkflowsRemoved, "total", result.WorkflowsTotal)
	return result, nil
}

func (s *SyncService) setNextRun(t time.Time) {
	s.mu.Lock()
	s.nextRun = t
	s.mu.Unlock()
}

// LastResult returns the most recent successful pass, if any.
func (s *SyncService) LastResult() (SyncResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return SyncResult{}, false
	}
	return *s.last, true
}

// Interval returns the sync interval.
func (s *SyncService) Interval() time.Duration {
	return s.interval
}
