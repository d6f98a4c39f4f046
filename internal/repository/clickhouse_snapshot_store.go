package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"MacroSim/internal/domain/models"
	pkgch "MacroSim/pkg/clickhouse"
	applogger "MacroSim/pkg/logger"
)

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("repository: not found")

// SchemaStatements creates the tables the stores need. Idempotent.
var SchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS state_snapshots (
        version Int64,
        as_of DateTime,
        stress_score Float64,
        regime_label String,
        crisis_threshold Float64,
        stress_std Float64,
        policy_rate Float64,
        model String
    ) ENGINE = ReplacingMergeTree(version)
    ORDER BY as_of`,
	`CREATE TABLE IF NOT EXISTS policy_rates (
        obs_date Date,
        rate Float64
    ) ENGINE = ReplacingMergeTree()
    ORDER BY obs_date`,
}

// snapshotModel is the JSON blob column holding the matrix payload.
type snapshotModel struct {
	A   [][]float64 `json:"A"`
	B   []float64   `json:"B"`
	Q   [][]float64 `json:"Q"`
	MuT []float64   `json:"mu_T"`
	PT  [][]float64 `json:"P_T"`
}

// CHSnapshotStore persists estimator snapshots in ClickHouse so the
// historical agent can start comparisons from a past date.
type CHSnapshotStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHSnapshotStore(ch *pkgch.Client) *CHSnapshotStore {
	return &CHSnapshotStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHSnapshotStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHSnapshotStore) Save(ctx context.Context, snap models.StateSnapshot) error {
	model, err := json.Marshal(snapshotModel{A: snap.A, B: snap.B, Q: snap.Q, MuT: snap.MuT, PT: snap.PT})
	if err != nil {
		return fmt.Errorf("marshal snapshot model: %w", err)
	}

	const q = `
        INSERT INTO state_snapshots
            (version, as_of, stress_score, regime_label, crisis_threshold, stress_std, policy_rate, model)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `
	if _, err := s.db.ExecContext(ctx, q,
		snap.Version, snap.AsOf, snap.StressScore, snap.RegimeLabel,
		snap.CrisisThreshold, snap.StressStd, snap.PolicyRate, string(model),
	); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse save_snapshot error",
				applogger.Int64("version", snap.Version),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// ClosestAtOrBefore returns the latest snapshot observed at or before t.
func (s *CHSnapshotStore) ClosestAtOrBefore(ctx context.Context, t time.Time) (models.StateSnapshot, error) {
	const q = `
        SELECT version, as_of, stress_score, regime_label, crisis_threshold, stress_std, policy_rate, model
        FROM state_snapshots
        WHERE as_of <= ?
        ORDER BY as_of DESC
        LIMIT 1
    `
	var (
		snap  models.StateSnapshot
		blob  string
		model snapshotModel
	)
	row := s.db.QueryRowContext(ctx, q, t)
	err := row.Scan(&snap.Version, &snap.AsOf, &snap.StressScore, &snap.RegimeLabel,
		&snap.CrisisThreshold, &snap.StressStd, &snap.PolicyRate, &blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.StateSnapshot{}, ErrNotFound
		}
		if s.l != nil {
			s.l.Error("clickhouse snapshot lookup error", applogger.Error(err))
		}
		return models.StateSnapshot{}, fmt.Errorf("snapshot at %s: %w", t.Format("2006-01-02"), err)
	}

	if err := json.Unmarshal([]byte(blob), &model); err != nil {
		return models.StateSnapshot{}, fmt.Errorf("decode snapshot model: %w", err)
	}
	snap.A, snap.B, snap.Q, snap.MuT, snap.PT = model.A, model.B, model.Q, model.MuT, model.PT
	return snap, nil
}
