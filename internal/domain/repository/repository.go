package repository

import (
	"context"
	"time"

	"MacroSim/internal/domain/models"
)

// SnapshotStore persists estimator snapshots for historical lookups.
type SnapshotStore interface {
	Save(ctx context.Context, snap models.StateSnapshot) error
	// ClosestAtOrBefore returns the latest snapshot with as_of <= t.
	ClosestAtOrBefore(ctx context.Context, t time.Time) (models.StateSnapshot, error)
}

// PolicyRateStore serves the historical policy-rate series.
type PolicyRateStore interface {
	SaveRate(ctx context.Context, date time.Time, rate float64) error
	// RateChangeAt returns the policy-rate change, in basis points, over the
	// month starting at the closest observation at or before date.
	RateChangeAt(ctx context.Context, date time.Time) (float64, error)
}
