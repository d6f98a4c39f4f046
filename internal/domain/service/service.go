package service

import (
	"context"

	"MacroSim/internal/domain/models"
)

// StateEstimator is the external service that fits the daily state-space
// model and filters the latest latent state.
type StateEstimator interface {
	FetchSnapshot(ctx context.Context) (models.StateSnapshot, error)
}

// ActionPredictor is the external learned-action service. PredictDelta
// returns a recommended policy change in basis points for the given state.
type ActionPredictor interface {
	PredictDelta(ctx context.Context, snap models.StateSnapshot) (float64, error)
}
