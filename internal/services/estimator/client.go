package estimator

import (
	"context"
	"fmt"
	"time"

	"MacroSim/internal/domain/models"
	xhttp "MacroSim/pkg/http"
	"MacroSim/pkg/util"
)

// Client talks to the external state-estimation service, which fits the
// daily state-space model (Kalman + EM) and filters the latest latent state.
type Client struct {
	baseURL string
	client  *xhttp.Client
}

// NewClient builds an estimator client with base URL and timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

// snapshotResponse is the estimator's wire format for a fitted model plus
// the filtered starting state.
type snapshotResponse struct {
	AsOf            string      `json:"as_of"`
	A               [][]float64 `json:"A"`
	B               []float64   `json:"B"`
	Q               [][]float64 `json:"Q"`
	MuT             []float64   `json:"mu_T"`
	PT              [][]float64 `json:"P_T"`
	CrisisThreshold float64     `json:"crisis_threshold"`
	StressStd       float64     `json:"stress_std"`
	StressScore     float64     `json:"stress_score"`
	RegimeLabel     string      `json:"regime_label"`
	PolicyRate      float64     `json:"policy_rate"`
}

// FetchSnapshot pulls the current fitted model and starting state.
func (c *Client) FetchSnapshot(ctx context.Context) (models.StateSnapshot, error) {
	if c.baseURL == "" {
		return models.StateSnapshot{}, fmt.Errorf("estimator base URL not configured")
	}

	var resp snapshotResponse
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/api/state/latest",
	}, &resp)
	if err != nil {
		return models.StateSnapshot{}, fmt.Errorf("fetch snapshot: %w", err)
	}

	snap := models.StateSnapshot{
		AsOf:            util.ParseTimeDefault(resp.AsOf, time.Now().UTC()),
		A:               resp.A,
		B:               resp.B,
		Q:               resp.Q,
		MuT:             resp.MuT,
		PT:              resp.PT,
		CrisisThreshold: resp.CrisisThreshold,
		StressStd:       resp.StressStd,
		StressScore:     resp.StressScore,
		RegimeLabel:     resp.RegimeLabel,
		PolicyRate:      resp.PolicyRate,
	}
	if !snap.Valid() {
		return models.StateSnapshot{}, fmt.Errorf("estimator returned an incomplete model")
	}
	return snap, nil
}
