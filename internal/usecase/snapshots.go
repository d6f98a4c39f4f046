package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"MacroSim/internal/domain/models"
	"MacroSim/internal/domain/repository"
	"MacroSim/internal/domain/service"
	"MacroSim/pkg/cache"
	applogger "MacroSim/pkg/logger"
	"MacroSim/pkg/metrics"
)

// ErrNoSnapshot means no starting state has been loaded yet; callers must
// trigger a refresh first.
var ErrNoSnapshot = errors.New("no state snapshot loaded")

const snapshotCacheKey = "state:snapshot:latest"

// SnapshotProvider owns the latest estimator snapshot. Readers get a deep
// copy, so simulations never observe a concurrent refresh; writers bump the
// version, warm the cache, and record history.
type SnapshotProvider struct {
	mu      sync.RWMutex
	current models.StateSnapshot
	loaded  bool

	estimator service.StateEstimator
	cache     cache.Service
	cacheTTL  time.Duration
	history   repository.SnapshotStore
	recorder  *metrics.Recorder
	log       *applogger.Logger
}

// NewSnapshotProvider wires the provider. cache and history may be nil when
// Redis or ClickHouse are disabled.
func NewSnapshotProvider(
	estimator service.StateEstimator,
	cacheSvc cache.Service,
	cacheTTL time.Duration,
	history repository.SnapshotStore,
	recorder *metrics.Recorder,
	log *applogger.Logger,
) *SnapshotProvider {
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}
	return &SnapshotProvider{
		estimator: estimator,
		cache:     cacheSvc,
		cacheTTL:  cacheTTL,
		history:   history,
		recorder:  recorder,
		log:       log,
	}
}

// Current returns a deep copy of the latest snapshot.
func (p *SnapshotProvider) Current() (models.StateSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.loaded {
		return models.StateSnapshot{}, ErrNoSnapshot
	}
	return p.current.Clone(), nil
}

// Refresh pulls a fresh snapshot from the estimator and applies it.
func (p *SnapshotProvider) Refresh(ctx context.Context) (models.StateSnapshot, error) {
	snap, err := p.estimator.FetchSnapshot(ctx)
	if err != nil {
		if p.recorder != nil {
			p.recorder.RecordError("estimator_fetch")
		}
		return models.StateSnapshot{}, fmt.Errorf("refresh snapshot: %w", err)
	}
	return p.Apply(ctx, snap), nil
}

// Apply installs a snapshot as the current starting state, assigning the
// next version. Cache and history writes are best effort.
func (p *SnapshotProvider) Apply(ctx context.Context, snap models.StateSnapshot) models.StateSnapshot {
	p.mu.Lock()
	snap.Version = p.current.Version + 1
	if snap.AsOf.IsZero() {
		snap.AsOf = time.Now().UTC()
	}
	p.current = snap.Clone()
	p.loaded = true
	p.mu.Unlock()

	if p.recorder != nil {
		p.recorder.RecordSnapshotVersion(snap.Version)
	}
	if p.log != nil {
		p.log.Info("snapshot applied",
			applogger.Int64("version", snap.Version),
			applogger.String("as_of", snap.AsOf.Format(time.RFC3339)),
			applogger.Float64("stress_score", snap.StressScore),
			applogger.String("regime", snap.RegimeLabel),
		)
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, snapshotCacheKey, snap, p.cacheTTL); err != nil && p.log != nil {
			p.log.Warn("snapshot cache write failed", applogger.Error(err))
		}
	}
	if p.history != nil {
		if err := p.history.Save(ctx, snap); err != nil && p.log != nil {
			p.log.Warn("snapshot history write failed", applogger.Error(err))
		}
	}

	return snap
}

// RestoreFromCache loads the last cached snapshot on startup so the service
// is usable before the first estimator round trip. Returns true on success.
func (p *SnapshotProvider) RestoreFromCache(ctx context.Context) bool {
	if p.cache == nil {
		return false
	}

	var snap models.StateSnapshot
	if err := p.cache.Get(ctx, snapshotCacheKey, &snap); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) && p.log != nil {
			p.log.Warn("snapshot cache read failed", applogger.Error(err))
		}
		return false
	}
	if !snap.Valid() {
		return false
	}

	p.mu.Lock()
	p.current = snap
	p.loaded = true
	p.mu.Unlock()

	if p.recorder != nil {
		p.recorder.RecordSnapshotVersion(snap.Version)
	}
	if p.log != nil {
		p.log.Info("snapshot restored from cache", applogger.Int64("version", snap.Version))
	}
	return true
}
