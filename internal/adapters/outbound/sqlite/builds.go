package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sufield/signet/internal/domain"
)

// HighWaterMark returns the highest build recorded for team/app, 0 if none.
func (s *Store) HighWaterMark(ctx context.Context, team domain.TeamID, app domain.AppIdentifier) (domain.BuildNumber, error) {
	var build int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(build), 0) FROM build_marks WHERE team_id = ? AND app_id = ?`,
		string(team), app.String(),
	).Scan(&build)
	if err != nil {
		return 0, fmt.Errorf("read high-water mark: %w", err)
	}
	return domain.BuildNumber(build), nil
}

// RecordBuild raises the high-water mark; a lower build never lowers it.
func (s *Store) RecordBuild(ctx context.Context, team domain.TeamID, app domain.AppIdentifier, version domain.MarketingVersion, build domain.BuildNumber) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO build_marks (team_id, app_id, version, build, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (team_id, app_id) DO UPDATE SET
		     version = excluded.version,
		     build = excluded.build,
		     updated_at = excluded.updated_at
		 WHERE excluded.build > build_marks.build`,
		string(team), app.String(), version.String(), int(build), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record build: %w", err)
	}
	return nil
}
