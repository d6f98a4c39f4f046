package usecase

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"MacroSim/internal/domain/models"
	"MacroSim/internal/domain/repository"
	"MacroSim/internal/domain/service"
	"MacroSim/internal/sim"
	"MacroSim/pkg/config"
	applogger "MacroSim/pkg/logger"
	"MacroSim/pkg/metrics"
	"MacroSim/pkg/util"
)

// Agent names accepted by the comparator.
const (
	AgentCustom     = "custom"
	AgentHeuristic  = "heuristic"
	AgentRL         = "rl"
	AgentHistorical = "historical"
)

// AgentMetrics is the loss breakdown for one agent, rounded for display.
type AgentMetrics struct {
	MeanStress        float64 `json:"mean_stress"`
	MeanGrowthPenalty float64 `json:"mean_growth_penalty"`
	MeanES95          float64 `json:"mean_es95"`
	CrisisEnd         float64 `json:"crisis_end"`
	TotalLoss         float64 `json:"total_loss"`
}

// AgentResult is one agent's evaluation plus its charting paths.
type AgentResult struct {
	Agent          string       `json:"agent"`
	Label          string       `json:"label"`
	DeltaBps       float64      `json:"delta_bps"`
	Error          string       `json:"error,omitempty"`
	Metrics        AgentMetrics `json:"metrics"`
	CrisisProbPath []float64    `json:"crisis_prob_path"`
	StressPath     []float64    `json:"stress_path"`
	GrowthPath     []float64    `json:"growth_path"`
	StressFan      []sim.Fan    `json:"stress_fan"`
	GrowthFan      []sim.Fan    `json:"growth_fan"`
}

// ComparisonResult is the full multi-agent response.
type ComparisonResult struct {
	StartDate string                 `json:"start_date,omitempty"`
	Agents    map[string]AgentResult `json:"agents"`
	Horizon   int                    `json:"horizon"`
	Paths     int                    `json:"paths"`
}

// Comparator resolves each requested agent to a single basis-point action
// and evaluates all of them through one shared engine from one starting
// state, so results are directly comparable.
type Comparator struct {
	provider    *SnapshotProvider
	recommender *Recommender
	predictor   service.ActionPredictor
	history     repository.SnapshotStore
	rates       repository.PolicyRateStore
	cfg         config.Simulation
	recorder    *metrics.Recorder
	log         *applogger.Logger
}

// NewComparator wires the comparator. predictor, history, and rates may be
// nil; agents depending on them then degrade to annotated hold actions.
func NewComparator(
	provider *SnapshotProvider,
	recommender *Recommender,
	predictor service.ActionPredictor,
	history repository.SnapshotStore,
	rates repository.PolicyRateStore,
	cfg config.Simulation,
	recorder *metrics.Recorder,
	log *applogger.Logger,
) *Comparator {
	return &Comparator{
		provider:    provider,
		recommender: recommender,
		predictor:   predictor,
		history:     history,
		rates:       rates,
		cfg:         cfg,
		recorder:    recorder,
		log:         log,
	}
}

// agentSeed derives a deterministic per-agent seed: repeated calls with the
// same inputs reproduce each agent's draws while different agents receive
// decorrelated ensembles.
func (c *Comparator) agentSeed(agent string) int64 {
	h := fnv.New32a()
	h.Write([]byte(agent))
	return c.cfg.BaseSeed + int64(h.Sum32()%1000)
}

// Compare runs the requested agents. One agent's resolution failure never
// aborts the others.
func (c *Comparator) Compare(ctx context.Context, req models.AgentsSimulateRequest) (*ComparisonResult, error) {
	started := time.Now()

	latest, err := c.provider.Current()
	if err != nil {
		return nil, err
	}

	start := c.resolveStart(ctx, latest, req.HistoricalStart)

	eng, err := sim.NewEngine(start, SimConfigFrom(c.cfg))
	if err != nil {
		if c.recorder != nil {
			c.recorder.RecordError("engine_build")
		}
		return nil, fmt.Errorf("build engine: %w", err)
	}

	actions := make([]models.ActionRecord, 0, len(req.Agents))
	for _, name := range req.Agents {
		actions = append(actions, c.resolveAction(ctx, eng, start, name, req))
	}

	w := sim.Weights{Alpha: req.Alpha, Beta: req.Beta, Gamma: req.Gamma, Lambda: req.Lambda}
	rs := req.RegimeSwitchingOn()

	chartPaths := req.NPaths
	if chartPaths > c.cfg.ChartPathCap {
		chartPaths = c.cfg.ChartPathCap
	}

	results := make(map[string]AgentResult, len(actions))
	for _, action := range actions {
		seed := c.agentSeed(action.Agent)

		ev := eng.Evaluate(action.DeltaBps, w, req.NPaths, req.Horizon, req.Shocks, rs, seed)
		steps := eng.Simulate(action.DeltaBps, chartPaths, req.Horizon, req.Shocks, rs, seed)

		stressPath := make([]float64, len(steps))
		growthPath := make([]float64, len(steps))
		stressFan := make([]sim.Fan, len(steps))
		growthFan := make([]sim.Fan, len(steps))
		for i, s := range steps {
			stressPath[i] = s.StressFan.P50
			growthPath[i] = s.GrowthFan.P50
			stressFan[i] = s.StressFan
			growthFan[i] = s.GrowthFan
		}

		if c.recorder != nil {
			c.recorder.RecordAgentAction(action.Agent, action.DeltaBps)
		}

		results[action.Agent] = AgentResult{
			Agent:    action.Agent,
			Label:    action.Label,
			DeltaBps: action.DeltaBps,
			Error:    action.Error,
			Metrics: AgentMetrics{
				MeanStress:        util.Round4(ev.MeanStress),
				MeanGrowthPenalty: util.Round4(ev.MeanGrowthPenalty),
				MeanES95:          util.Round4(ev.MeanES95),
				CrisisEnd:         util.Round4(ev.CrisisEnd),
				TotalLoss:         util.Round4(ev.TotalLoss),
			},
			CrisisProbPath: ev.CrisisProbPath,
			StressPath:     stressPath,
			GrowthPath:     growthPath,
			StressFan:      stressFan,
			GrowthFan:      growthFan,
		}
	}

	if c.recorder != nil {
		c.recorder.RecordSimulation("agents", time.Since(started).Seconds())
	}
	if c.log != nil {
		c.log.Info("multi-agent comparison complete",
			applogger.Int("agents", len(results)),
			applogger.Int("paths", req.NPaths),
			applogger.Int("horizon", req.Horizon),
			applogger.Duration("duration_ms", time.Since(started)),
		)
	}

	return &ComparisonResult{
		StartDate: req.HistoricalStart,
		Agents:    results,
		Horizon:   req.Horizon,
		Paths:     req.NPaths,
	}, nil
}

// resolveStart picks the starting snapshot: the historical one closest at
// or before the requested date, or the latest. The crisis threshold and
// stress std always come from the latest calibration.
func (c *Comparator) resolveStart(ctx context.Context, latest models.StateSnapshot, startDate string) models.StateSnapshot {
	if startDate == "" || c.history == nil {
		return latest
	}

	t, ok := util.ParseTime(startDate)
	if !ok {
		if c.log != nil {
			c.log.Warn("unparseable historical start date, using latest state",
				applogger.String("start_date", startDate))
		}
		return latest
	}

	snap, err := c.history.ClosestAtOrBefore(ctx, t)
	if err != nil {
		if c.log != nil {
			c.log.Warn("historical snapshot lookup failed, using latest state",
				applogger.String("start_date", startDate),
				applogger.Error(err))
		}
		return latest
	}

	snap.CrisisThreshold = latest.CrisisThreshold
	snap.StressStd = latest.StressStd
	return snap
}

// resolveAction maps one agent name to a basis-point action. Failures
// degrade to an annotated 0-bps hold.
func (c *Comparator) resolveAction(ctx context.Context, eng *sim.Engine, start models.StateSnapshot, name string, req models.AgentsSimulateRequest) models.ActionRecord {
	switch name {
	case AgentCustom:
		return models.ActionRecord{
			Agent:    AgentCustom,
			DeltaBps: req.CustomDeltaBps,
			Label:    fmt.Sprintf("Custom (%+.0f bps)", req.CustomDeltaBps),
		}

	case AgentHeuristic:
		paths := req.NPaths
		if paths > c.cfg.HeuristicPathCap {
			paths = c.cfg.HeuristicPathCap
		}
		rec := c.recommender.Recommend(eng, RecommendParams{
			Weights:         sim.Weights{Alpha: req.Alpha, Beta: req.Beta, Gamma: req.Gamma, Lambda: req.Lambda},
			Paths:           paths,
			Horizon:         req.Horizon,
			RegimeSwitching: req.RegimeSwitchingOn(),
			Seed:            c.cfg.BaseSeed,
		})
		return models.ActionRecord{
			Agent:    AgentHeuristic,
			DeltaBps: rec.RecommendedBps,
			Label:    fmt.Sprintf("Heuristic (%s, %+.0f bps)", rec.RecommendedAction, rec.RecommendedBps),
		}

	case AgentRL:
		if c.predictor == nil {
			return holdAction(AgentRL, "RL Agent (unavailable, hold)", "predictor not configured")
		}
		delta, err := c.predictor.PredictDelta(ctx, start)
		if err != nil {
			if c.log != nil {
				c.log.Warn("learned-action predictor unavailable", applogger.Error(err))
			}
			if c.recorder != nil {
				c.recorder.RecordError("agent_resolution")
			}
			return holdAction(AgentRL, "RL Agent (unavailable, hold)", err.Error())
		}
		return models.ActionRecord{
			Agent:    AgentRL,
			DeltaBps: delta,
			Label:    fmt.Sprintf("RL Agent (%+.0f bps)", delta),
		}

	case AgentHistorical:
		if req.HistoricalStart == "" {
			return models.ActionRecord{
				Agent: AgentHistorical,
				Label: "Historical (hold, no start date)",
			}
		}
		if c.rates == nil {
			return holdAction(AgentHistorical, "Historical (unavailable, hold)", "policy-rate store not configured")
		}
		t, ok := util.ParseTime(req.HistoricalStart)
		if !ok {
			return holdAction(AgentHistorical, "Historical (unavailable, hold)",
				fmt.Sprintf("unparseable start date %q", req.HistoricalStart))
		}
		change, err := c.rates.RateChangeAt(ctx, t)
		if err != nil {
			if c.log != nil {
				c.log.Warn("historical rate lookup failed", applogger.Error(err))
			}
			if c.recorder != nil {
				c.recorder.RecordError("agent_resolution")
			}
			return holdAction(AgentHistorical, "Historical (unavailable, hold)", err.Error())
		}
		return models.ActionRecord{
			Agent:    AgentHistorical,
			DeltaBps: change,
			Label:    fmt.Sprintf("Historical (%+.0f bps)", change),
		}

	default:
		return holdAction(name, fmt.Sprintf("%s (unknown agent, hold)", name), "unknown agent")
	}
}

func holdAction(agent, label, errText string) models.ActionRecord {
	return models.ActionRecord{Agent: agent, Label: label, Error: errText}
}
