package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sufield/signet/internal/ports"
)

// RecordUploadAttempt counts one attempt of strategy.
func (s *Store) RecordUploadAttempt(ctx context.Context, strategy string, ok bool) error {
	succ, fail := 0, 1
	if ok {
		succ, fail = 1, 0
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO upload_strategies (name, successes, failures, last_used) VALUES (?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET
		     successes = successes + excluded.successes,
		     failures = failures + excluded.failures,
		     last_used = excluded.last_used`,
		strategy, succ, fail, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record upload attempt: %w", err)
	}
	return nil
}

// StrategyStats returns the counters of every strategy seen, by name.
func (s *Store) StrategyStats(ctx context.Context) ([]ports.StrategyStat, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT name, successes, failures, last_used FROM upload_strategies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list strategy stats: %w", err)
	}
	defer rows.Close()

	var out []ports.StrategyStat
	for rows.Next() {
		var st ports.StrategyStat
		var last string
		if err := rows.Scan(&st.Name, &st.Successes, &st.Failures, &last); err != nil {
			return nil, fmt.Errorf("scan strategy stat: %w", err)
		}
		if st.LastUsed, err = time.Parse(time.RFC3339Nano, last); err != nil {
			return nil, fmt.Errorf("parse last used: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
