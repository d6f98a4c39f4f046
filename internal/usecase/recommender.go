package usecase

import (
	"time"

	"MacroSim/internal/sim"
	"MacroSim/pkg/config"
	applogger "MacroSim/pkg/logger"
	"MacroSim/pkg/metrics"
	"MacroSim/pkg/util"
)

// candidateActions is the discrete policy set searched by the recommender,
// in basis points.
var candidateActions = []float64{-50, -25, 0, 25, 50}

// ActionLabel names the direction of a rate change.
func ActionLabel(deltaBps float64) string {
	switch {
	case deltaBps < 0:
		return "Ease"
	case deltaBps > 0:
		return "Tighten"
	default:
		return "Hold"
	}
}

// ActionEvaluation is one scored candidate in a recommendation response.
type ActionEvaluation struct {
	DeltaBps       float64   `json:"delta_bps"`
	Action         string    `json:"action"`
	MeanStress     float64   `json:"mean_stress"`
	GrowthPenalty  float64   `json:"mean_growth_penalty"`
	MeanES95       float64   `json:"mean_es95"`
	CrisisEnd      float64   `json:"crisis_end"`
	TotalLoss      float64   `json:"total_loss"`
	CrisisProbPath []float64 `json:"crisis_prob_path"`
}

// Recommendation is the outcome of a policy search.
type Recommendation struct {
	RecommendedBps    float64            `json:"recommended_bps"`
	RecommendedAction string             `json:"recommended_action"`
	Results           []ActionEvaluation `json:"results"`
	Horizon           int                `json:"horizon"`
	Paths             int                `json:"paths"`
}

// RecommendParams are the evaluation inputs shared by all candidates.
type RecommendParams struct {
	Weights         sim.Weights
	Paths           int
	Horizon         int
	Shocks          map[string]float64
	RegimeSwitching bool
	CustomDeltaBps  *float64
	Seed            int64
}

// Recommender scores the discrete action set through one engine and picks
// the minimum-loss action.
type Recommender struct {
	cfg      config.Simulation
	recorder *metrics.Recorder
	log      *applogger.Logger
}

func NewRecommender(cfg config.Simulation, recorder *metrics.Recorder, log *applogger.Logger) *Recommender {
	return &Recommender{cfg: cfg, recorder: recorder, log: log}
}

// Recommend evaluates every candidate (plus an optional custom delta) with
// a shared seed so the comparison is apples to apples, then recommends the
// lowest total loss.
func (r *Recommender) Recommend(eng *sim.Engine, p RecommendParams) Recommendation {
	start := time.Now()

	seed := p.Seed
	if seed == 0 {
		seed = r.cfg.BaseSeed
	}

	actions := candidateActions
	if p.CustomDeltaBps != nil {
		found := false
		for _, a := range actions {
			if a == *p.CustomDeltaBps {
				found = true
				break
			}
		}
		if !found {
			actions = append(append([]float64(nil), actions...), *p.CustomDeltaBps)
		}
	}

	results := make([]ActionEvaluation, 0, len(actions))
	bestIdx := 0
	for i, delta := range actions {
		ev := eng.Evaluate(delta, p.Weights, p.Paths, p.Horizon, p.Shocks, p.RegimeSwitching, seed)
		results = append(results, ActionEvaluation{
			DeltaBps:       delta,
			Action:         ActionLabel(delta),
			MeanStress:     util.Round4(ev.MeanStress),
			GrowthPenalty:  util.Round4(ev.MeanGrowthPenalty),
			MeanES95:       util.Round4(ev.MeanES95),
			CrisisEnd:      util.Round4(ev.CrisisEnd),
			TotalLoss:      util.Round4(ev.TotalLoss),
			CrisisProbPath: ev.CrisisProbPath,
		})
		if results[i].TotalLoss < results[bestIdx].TotalLoss {
			bestIdx = i
		}
	}

	best := results[bestIdx]
	if r.recorder != nil {
		r.recorder.RecordSimulation("recommend", time.Since(start).Seconds())
	}
	if r.log != nil {
		r.log.Info("policy recommendation",
			applogger.Float64("recommended_bps", best.DeltaBps),
			applogger.String("action", best.Action),
			applogger.Float64("total_loss", best.TotalLoss),
			applogger.Int("paths", p.Paths),
			applogger.Int("horizon", p.Horizon),
		)
	}

	return Recommendation{
		RecommendedBps:    best.DeltaBps,
		RecommendedAction: best.Action,
		Results:           results,
		Horizon:           p.Horizon,
		Paths:             p.Paths,
	}
}
