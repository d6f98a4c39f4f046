package models

// RecommendRequest asks the policy evaluator to score the discrete action
// set (and an optional custom delta) and pick the lowest-loss action.
type RecommendRequest struct {
	Alpha           float64            `json:"alpha" default:"1.0" validate:"gte=0,lte=10"`
	Beta            float64            `json:"beta" default:"1.0" validate:"gte=0,lte=10"`
	Gamma           float64            `json:"gamma" default:"1.0" validate:"gte=0,lte=10"`
	Lambda          float64            `json:"lambda" default:"1.0" validate:"gte=0,lte=10"`
	NPaths          int                `json:"n_paths" default:"5000" validate:"gte=500,lte=10000"`
	Horizon         int                `json:"horizon" default:"24" validate:"gte=6,lte=36"`
	DeltaBpsCustom  *float64           `json:"delta_bps_custom"`
	Shocks          map[string]float64 `json:"shocks" validate:"omitempty,dive,keys,oneof=credit vol rate,endkeys"`
	RegimeSwitching *bool              `json:"regime_switching"`
	Seed            int64              `json:"seed"`
}

// AgentsSimulateRequest runs several named action sources through one shared
// engine from one starting state for side-by-side comparison.
type AgentsSimulateRequest struct {
	Agents          []string           `json:"agents" validate:"required,min=1,dive,oneof=custom heuristic rl historical"`
	CustomDeltaBps  float64            `json:"custom_delta_bps"`
	HistoricalStart string             `json:"historical_start"`
	Alpha           float64            `json:"alpha" default:"1.0" validate:"gte=0,lte=10"`
	Beta            float64            `json:"beta" default:"1.0" validate:"gte=0,lte=10"`
	Gamma           float64            `json:"gamma" default:"1.0" validate:"gte=0,lte=10"`
	Lambda          float64            `json:"lambda" default:"1.0" validate:"gte=0,lte=10"`
	NPaths          int                `json:"n_paths" default:"3000" validate:"gte=500,lte=10000"`
	Horizon         int                `json:"horizon" default:"24" validate:"gte=6,lte=36"`
	Shocks          map[string]float64 `json:"shocks" validate:"omitempty,dive,keys,oneof=credit vol rate,endkeys"`
	RegimeSwitching *bool              `json:"regime_switching"`
}

// RegimeSwitchingOn returns the regime-switching flag, defaulting to true.
func (r *RecommendRequest) RegimeSwitchingOn() bool {
	return r.RegimeSwitching == nil || *r.RegimeSwitching
}

func (r *AgentsSimulateRequest) RegimeSwitchingOn() bool {
	return r.RegimeSwitching == nil || *r.RegimeSwitching
}

// StreamRequest is one simulation request over the WebSocket channel.
// Unlike the batch endpoints, out-of-range values are clamped, not rejected.
type StreamRequest struct {
	DeltaBps        float64            `json:"delta_bps"`
	Alpha           float64            `json:"alpha"`
	Beta            float64            `json:"beta"`
	Gamma           float64            `json:"gamma"`
	Lambda          float64            `json:"lambda"`
	NPaths          int                `json:"n_paths"`
	Horizon         int                `json:"horizon"`
	SpeedMs         int                `json:"speed_ms"`
	Shocks          map[string]float64 `json:"shocks"`
	RegimeSwitching *bool              `json:"regime_switching"`
}

func (r *StreamRequest) RegimeSwitchingOn() bool {
	return r.RegimeSwitching == nil || *r.RegimeSwitching
}

// ActionRecord is one agent's resolved policy action. A failed resolution
// degrades to a 0-bps hold with Error set; it never aborts the other agents.
type ActionRecord struct {
	Agent    string  `json:"agent"`
	DeltaBps float64 `json:"delta_bps"`
	Label    string  `json:"label"`
	Error    string  `json:"error,omitempty"`
}

// SnapshotSummary is the client-facing view of the current starting state.
type SnapshotSummary struct {
	Version         int64   `json:"version"`
	AsOf            string  `json:"as_of"`
	Stress          float64 `json:"stress"`
	Liquidity       float64 `json:"liquidity"`
	Growth          float64 `json:"growth"`
	StressScore     float64 `json:"stress_score"`
	RegimeLabel     string  `json:"regime_label"`
	CrisisThreshold float64 `json:"crisis_threshold"`
	PolicyRate      float64 `json:"policy_rate"`
}
