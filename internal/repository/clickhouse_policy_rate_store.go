package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	pkgch "MacroSim/pkg/clickhouse"
	applogger "MacroSim/pkg/logger"
)

// CHPolicyRateStore serves the historical policy-rate series from
// ClickHouse. The historical agent uses it to replay the actual rate
// change at a past start date.
type CHPolicyRateStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHPolicyRateStore(ch *pkgch.Client) *CHPolicyRateStore {
	return &CHPolicyRateStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHPolicyRateStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHPolicyRateStore) SaveRate(ctx context.Context, date time.Time, rate float64) error {
	const q = `INSERT INTO policy_rates (obs_date, rate) VALUES (?, ?)`
	if _, err := s.db.ExecContext(ctx, q, date, rate); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse save_rate error",
				applogger.String("date", date.Format("2006-01-02")),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("save rate: %w", err)
	}
	return nil
}

// RateChangeAt returns the policy-rate change in basis points between the
// closest observation at or before date and the one preceding it. Rates are
// stored as decimals, so the change is scaled by 10000 and rounded to whole
// basis points.
func (s *CHPolicyRateStore) RateChangeAt(ctx context.Context, date time.Time) (float64, error) {
	const q = `
        SELECT rate
        FROM policy_rates
        WHERE obs_date <= ?
        ORDER BY obs_date DESC
        LIMIT 2
    `
	rows, err := s.db.QueryContext(ctx, q, date)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse rate_change query error", applogger.Error(err))
		}
		return 0, fmt.Errorf("rate change at %s: %w", date.Format("2006-01-02"), err)
	}
	defer rows.Close()

	rates := make([]float64, 0, 2)
	for rows.Next() {
		var r float64
		if err := rows.Scan(&r); err != nil {
			return 0, fmt.Errorf("scan rate: %w", err)
		}
		rates = append(rates, r)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("rows: %w", err)
	}
	if len(rates) < 2 {
		return 0, fmt.Errorf("need two observations at or before %s: %w", date.Format("2006-01-02"), ErrNotFound)
	}

	// rates[0] is the observation at the date, rates[1] the one before.
	return math.Round((rates[0] - rates[1]) * 10000), nil
}
