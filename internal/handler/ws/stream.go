package ws

import (
	"context"
	"math/rand"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"MacroSim/internal/domain/models"
	"MacroSim/internal/service/ratelimit"
	"MacroSim/internal/sim"
	"MacroSim/internal/usecase"
	"MacroSim/pkg/config"
	applogger "MacroSim/pkg/logger"
	"MacroSim/pkg/metrics"
	"MacroSim/pkg/util"
)

// Parameter clamp bounds for the streaming path. The batch endpoints reject
// out-of-range values instead; the streaming contract clamps.
const (
	minPaths   = 500
	maxPaths   = 10000
	minHorizon = 6
	maxHorizon = 36
	minSpeedMs = 20
	maxSpeedMs = 2000
)

// terminalMessage closes one streamed request: {done:true,H} on success or
// {error,done:true} on failure.
type terminalMessage struct {
	Error   string `json:"error,omitempty"`
	Done    bool   `json:"done"`
	Horizon int    `json:"H,omitempty"`
}

// Handler streams simulation steps over a WebSocket. Each connection can
// issue multiple requests in sequence; each request owns a private engine
// and ensemble. Disconnecting cancels delivery immediately.
type Handler struct {
	provider *usecase.SnapshotProvider
	cfg      config.Simulation
	limiter  *ratelimit.Limiter
	recorder *metrics.Recorder
	log      *applogger.Logger
	upgrader websocket.Upgrader
}

func NewHandler(
	provider *usecase.SnapshotProvider,
	cfg config.Simulation,
	limiter *ratelimit.Limiter,
	recorder *metrics.Recorder,
	log *applogger.Logger,
) *Handler {
	return &Handler{
		provider: provider,
		cfg:      cfg,
		limiter:  limiter,
		recorder: recorder,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// RegisterRoutes registers the streaming endpoint.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/simulate", h.simulate)
}

func (h *Handler) simulate(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	key := conn.RemoteAddr().String()
	defer h.limiter.Forget(key)

	// The read pump is the disconnect detector: a failed read cancels the
	// session context, which stops any in-flight delivery between steps.
	requests := make(chan models.StreamRequest)
	go h.readPump(ctx, cancel, conn, requests)

	h.log.Info("stream connected", applogger.String("client", key))
	defer h.log.Info("stream disconnected", applogger.String("client", key))

	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-requests:
			if !ok {
				return nil
			}
			if !h.limiter.Allow(key, h.cfg.StreamRequestBurst, h.cfg.StreamRequestRate) {
				if err := conn.WriteJSON(terminalMessage{Error: "rate limit exceeded", Done: true}); err != nil {
					return nil
				}
				continue
			}
			if !h.streamOne(ctx, conn, req) {
				return nil
			}
		}
	}
}

func (h *Handler) readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, requests chan<- models.StreamRequest) {
	defer cancel()
	defer close(requests)
	for {
		var req models.StreamRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		select {
		case requests <- req:
		case <-ctx.Done():
			return
		}
	}
}

// streamOne serves a single request: full simulation up front, then paced
// per-step delivery. Returns false when the connection is unusable.
func (h *Handler) streamOne(ctx context.Context, conn *websocket.Conn, req models.StreamRequest) bool {
	paths := clampDefault(req.NPaths, h.cfg.DefaultPaths, minPaths, maxPaths)
	horizon := clampDefault(req.Horizon, h.cfg.DefaultHorizon, minHorizon, maxHorizon)
	speedMs := clampDefault(req.SpeedMs, h.cfg.DefaultSpeedMs, minSpeedMs, maxSpeedMs)

	snap, err := h.provider.Current()
	if err != nil {
		return h.writeError(conn, "state not initialized; refresh first")
	}

	eng, err := sim.NewEngine(snap, usecase.SimConfigFrom(h.cfg))
	if err != nil {
		h.log.Error("stream engine construction failed", applogger.Error(err))
		if h.recorder != nil {
			h.recorder.RecordError("engine_build")
		}
		return h.writeError(conn, err.Error())
	}

	h.recorder.StreamStarted()
	defer h.recorder.StreamEnded()
	started := time.Now()

	// Fresh draws per request; streaming is for exploration, not replay.
	seed := rand.Int63n(100000)
	steps := eng.Simulate(req.DeltaBps, paths, horizon, req.Shocks, req.RegimeSwitchingOn(), seed)

	h.recorder.RecordSimulation("stream", time.Since(started).Seconds())
	h.log.Info("stream simulation complete",
		applogger.Int("paths", paths),
		applogger.Int("horizon", horizon),
		applogger.Int("speed_ms", speedMs),
		applogger.Float64("delta_bps", req.DeltaBps),
		applogger.Duration("duration_ms", time.Since(started)),
	)

	delay := time.Duration(speedMs) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for _, step := range steps {
		if err := conn.WriteJSON(step); err != nil {
			return false
		}

		timer.Reset(delay)
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}
	}

	return conn.WriteJSON(terminalMessage{Done: true, Horizon: horizon}) == nil
}

func (h *Handler) writeError(conn *websocket.Conn, msg string) bool {
	return conn.WriteJSON(terminalMessage{Error: msg, Done: true}) == nil
}

func clampDefault(v, def, lo, hi int) int {
	if v == 0 {
		v = def
	}
	return util.Clamp(v, lo, hi)
}
