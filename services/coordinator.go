package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"bin-dates/metrics"
	"bin-dates/models"
	"bin-dates/storage"
	"bin-dates/utils"
)

// DateFetcher is the part of the council client the coordinator needs.
type DateFetcher interface {
	FetchDates(ctx context.Context, uprn models.UPRN) (*models.CollectionResult, error)
}

// CoordinatorConfig carries the fixed settings of one polled property.
type CoordinatorConfig struct {
	UPRN         models.UPRN
	PollInterval time.Duration
	Timeout      time.Duration
	Policy       DayPolicy
	Publishers   []storage.StatePublisher
	Metrics      *metrics.Metrics
}

// Status is the read-side view of the coordinator for the state API.
type Status struct {
	Available           bool
	Snapshot            models.Snapshot
	LastError           string
	LastAttempt         time.Time
	ConsecutiveFailures int
}

// Coordinator polls the collection feed on a fixed interval and republishes
// the last successful result. A failed refresh leaves that result in place.
type Coordinator struct {
	fetcher DateFetcher
	cfg     CoordinatorConfig
	logger  *utils.Logger

	group singleflight.Group

	mu          sync.RWMutex
	last        *models.Snapshot
	lastErr     error
	lastAttempt time.Time
	failures    int
}

// NewCoordinator creates a Coordinator for a single property.
func NewCoordinator(fetcher DateFetcher, cfg CoordinatorConfig, logger *utils.Logger) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Coordinator{fetcher: fetcher, cfg: cfg, logger: logger}
}

// Run refreshes immediately and then on every tick until ctx is done. A
// failing first refresh aborts Run; later failures are logged and the
// previous state is kept.
func (c *Coordinator) Run(ctx context.Context) error {
	if _, err := c.Refresh(ctx); err != nil {
		return fmt.Errorf("first refresh: %w", err)
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Warn("[coordinator] Refresh failed, keeping last known dates: %v", err)
			}
		}
	}
}

// Refresh fetches the dates once. Concurrent callers share a single
// in-flight request, which is bounded by the coordinator's timeout rather
// than by the cancellation of whichever caller started it.
func (c *Coordinator) Refresh(ctx context.Context) (models.Snapshot, error) {
	v, err, shared := c.group.Do(string(c.cfg.UPRN), func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})
	if shared {
		c.logger.Debug("[coordinator] Joined in-flight refresh")
	}
	if err != nil {
		return models.Snapshot{}, err
	}
	return v.(models.Snapshot), nil
}

func (c *Coordinator) refresh(ctx context.Context) (models.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	c.logger.Debug("[coordinator] Fetching collection dates for uprn %s", c.cfg.UPRN)
	start := time.Now()
	result, err := c.fetcher.FetchDates(ctx, c.cfg.UPRN)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ObserveRefresh(time.Since(start), err)
	}

	now := c.cfg.Policy.now()
	if err == nil && result == nil {
		err = errors.New("fetcher returned no result")
	}
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.lastAttempt = now
		c.failures++
		c.mu.Unlock()
		return models.Snapshot{}, fmt.Errorf("refresh uprn %s: %w", c.cfg.UPRN, err)
	}

	snap := models.Snapshot{
		CycleID:     uuid.NewString(),
		UPRN:        c.cfg.UPRN,
		Result:      *result,
		IsToday:     c.cfg.Policy.Flags(*result),
		RefreshedAt: now,
	}

	c.mu.Lock()
	c.last = &snap
	c.lastErr = nil
	c.lastAttempt = now
	c.failures = 0
	c.mu.Unlock()

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.SetSnapshot(snap)
	}
	c.publish(ctx, snap)

	c.logger.Info("[coordinator] Cycle %s: domestic=%s recycling=%s garden=%s",
		snap.CycleID,
		snap.Result.Domestic.Format(time.DateOnly),
		snap.Result.Recycling.Format(time.DateOnly),
		snap.Result.Garden.Format(time.DateOnly))
	return snap, nil
}

// publish hands the snapshot to every sink. A failing sink does not fail
// the refresh.
func (c *Coordinator) publish(ctx context.Context, snap models.Snapshot) {
	for _, p := range c.cfg.Publishers {
		if err := p.Publish(ctx, snap); err != nil {
			c.logger.Error("[coordinator] Publish cycle %s failed: %v", snap.CycleID, err)
		}
	}
}

// Snapshot returns the last successful result with its is-today flags
// re-evaluated against the current day. ok is false before the first success.
func (c *Coordinator) Snapshot() (snap models.Snapshot, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return models.Snapshot{}, false
	}
	snap = *c.last
	snap.IsToday = c.cfg.Policy.Flags(snap.Result)
	return snap, true
}

// Status reports the last known state together with the outcome of the
// most recent attempt.
func (c *Coordinator) Status() Status {
	snap, ok := c.Snapshot()

	c.mu.RLock()
	defer c.mu.RUnlock()
	st := Status{
		Available:           ok,
		Snapshot:            snap,
		LastAttempt:         c.lastAttempt,
		ConsecutiveFailures: c.failures,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}
