package agents

import (
	"context"
	"fmt"
	"time"

	"MacroSim/internal/domain/models"
	xhttp "MacroSim/pkg/http"
)

// PredictorClient talks to the external learned-action service (a trained
// policy model served over HTTP). Unavailability is expected and is handled
// by the caller degrading to a hold action.
type PredictorClient struct {
	baseURL string
	client  *xhttp.Client
}

// NewPredictorClient builds a predictor client with base URL and timeout.
func NewPredictorClient(baseURL string, timeout time.Duration) *PredictorClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PredictorClient{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

type predictRequest struct {
	State       []float64 `json:"state"`
	StressScore float64   `json:"stress_score"`
	Regime      string    `json:"regime"`
	PolicyRate  float64   `json:"policy_rate"`
}

type predictResponse struct {
	DeltaBps float64 `json:"delta_bps"`
}

// PredictDelta asks the learned policy for a rate change in basis points.
func (c *PredictorClient) PredictDelta(ctx context.Context, snap models.StateSnapshot) (float64, error) {
	if c.baseURL == "" {
		return 0, fmt.Errorf("predictor base URL not configured")
	}

	var resp predictResponse
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    c.baseURL + "/api/predict",
		Body: predictRequest{
			State:       snap.MuT,
			StressScore: snap.StressScore,
			Regime:      snap.RegimeLabel,
			PolicyRate:  snap.PolicyRate,
		},
	}, &resp)
	if err != nil {
		return 0, fmt.Errorf("predict action: %w", err)
	}
	return resp.DeltaBps, nil
}
