package api

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"MacroSim/internal/domain/models"
	"MacroSim/internal/sim"
	"MacroSim/internal/usecase"
	"MacroSim/pkg/config"
	xhttp "MacroSim/pkg/http"
	applogger "MacroSim/pkg/logger"
)

// Handler serves the REST API: state management, policy recommendation,
// and multi-agent comparison.
type Handler struct {
	provider    *usecase.SnapshotProvider
	recommender *usecase.Recommender
	comparator  *usecase.Comparator
	cfg         config.Simulation
	log         *applogger.Logger
}

func NewHandler(
	provider *usecase.SnapshotProvider,
	recommender *usecase.Recommender,
	comparator *usecase.Comparator,
	cfg config.Simulation,
	log *applogger.Logger,
) *Handler {
	return &Handler{
		provider:    provider,
		recommender: recommender,
		comparator:  comparator,
		cfg:         cfg,
		log:         log,
	}
}

// RegisterRoutes registers API endpoints.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/health", h.health)
	e.POST("/api/state/refresh", h.refreshState)
	e.GET("/api/state/current", h.currentState)
	e.POST("/api/policy/recommend", h.recommend)
	e.POST("/api/agents/simulate", h.agentsSimulate)
}

func (h *Handler) health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]bool{"ok": true})
}

func (h *Handler) refreshState(c echo.Context) error {
	snap, err := h.provider.Refresh(c.Request().Context())
	if err != nil {
		h.log.Error("state refresh failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("state refresh failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, snapshotSummary(snap))
}

func (h *Handler) currentState(c echo.Context) error {
	snap, err := h.provider.Current()
	if err != nil {
		return xhttp.AppErrorResponse(c, noSnapshotError(err))
	}
	return xhttp.SuccessResponse(c, snapshotSummary(snap))
}

func (h *Handler) recommend(c echo.Context) error {
	var req models.RecommendRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}

	snap, err := h.provider.Current()
	if err != nil {
		return xhttp.AppErrorResponse(c, noSnapshotError(err))
	}

	eng, err := sim.NewEngine(snap, usecase.SimConfigFrom(h.cfg))
	if err != nil {
		h.log.Error("engine construction failed",
			applogger.Int64("snapshot_version", snap.Version),
			applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("simulation engine construction failed").WithError(err))
	}

	seed := req.Seed
	if seed == 0 {
		seed = h.cfg.BaseSeed
	}
	out := h.recommender.Recommend(eng, usecase.RecommendParams{
		Weights:         sim.Weights{Alpha: req.Alpha, Beta: req.Beta, Gamma: req.Gamma, Lambda: req.Lambda},
		Paths:           req.NPaths,
		Horizon:         req.Horizon,
		Shocks:          req.Shocks,
		RegimeSwitching: req.RegimeSwitchingOn(),
		CustomDeltaBps:  req.DeltaBpsCustom,
		Seed:            seed,
	})
	return xhttp.SuccessResponse(c, out)
}

func (h *Handler) agentsSimulate(c echo.Context) error {
	var req models.AgentsSimulateRequest
	if errs := xhttp.ReadAndValidateRequest(c, &req); errs != nil {
		return xhttp.BadRequestResponse(c, errs)
	}

	res, err := h.comparator.Compare(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, usecase.ErrNoSnapshot) {
			return xhttp.AppErrorResponse(c, noSnapshotError(err))
		}
		h.log.Error("multi-agent comparison failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("multi-agent simulation failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func noSnapshotError(err error) *xhttp.AppError {
	return xhttp.NotFoundError("state not initialized; call POST /api/state/refresh first").WithError(err)
}

func snapshotSummary(snap models.StateSnapshot) models.SnapshotSummary {
	s := models.SnapshotSummary{
		Version:         snap.Version,
		AsOf:            snap.AsOf.Format(time.RFC3339),
		StressScore:     snap.StressScore,
		RegimeLabel:     snap.RegimeLabel,
		CrisisThreshold: snap.CrisisThreshold,
		PolicyRate:      snap.PolicyRate,
	}
	if len(snap.MuT) >= 3 {
		s.Stress = snap.MuT[0]
		s.Liquidity = snap.MuT[1]
		s.Growth = snap.MuT[2]
	}
	return s
}
