package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sufield/signet/internal/domain"
)

type stageRow struct {
	Stage      string `json:"stage"`
	DurationMS int64  `json:"duration_ms"`
}

// AppendDeployment inserts rec. Records are never updated.
func (s *Store) AppendDeployment(ctx context.Context, rec domain.DeploymentRecord) error {
	stages := make([]stageRow, 0, len(rec.Stages))
	for _, st := range rec.Stages {
		stages = append(stages, stageRow{Stage: st.Stage, DurationMS: st.Duration.Milliseconds()})
	}
	js, err := json.Marshal(stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}

	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO deployments (run_id, team_id, app_id, created_at, version, build, locally_resolved,
		     upload_strategy, processing_status, timed_out, outcome, error, stages, total_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, string(rec.TeamID), rec.AppIdentifier, rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.Version.String(), int(rec.Build), rec.LocallyResolved,
		rec.UploadStrategy, rec.ProcessingStatus, rec.TimedOut, rec.Outcome, rec.Error,
		string(js), rec.Total.Milliseconds(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("deployment %s already recorded", rec.RunID)
		}
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}

// RecentDeployments returns up to limit records of team, newest first.
func (s *Store) RecentDeployments(ctx context.Context, team domain.TeamID, limit int) ([]domain.DeploymentRecord, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT run_id, team_id, app_id, created_at, version, build, locally_resolved,
		     upload_strategy, processing_status, timed_out, outcome, error, stages, total_ms
		 FROM deployments WHERE team_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		string(team), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var out []domain.DeploymentRecord
	for rows.Next() {
		rec, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanDeployment(row *sql.Rows) (domain.DeploymentRecord, error) {
	var (
		rec      domain.DeploymentRecord
		team     string
		created  string
		version  string
		build    int
		stagesJS string
		totalMS  int64
	)
	if err := row.Scan(&rec.RunID, &team, &rec.AppIdentifier, &created, &version, &build, &rec.LocallyResolved,
		&rec.UploadStrategy, &rec.ProcessingStatus, &rec.TimedOut, &rec.Outcome, &rec.Error, &stagesJS, &totalMS); err != nil {
		return rec, fmt.Errorf("scan deployment: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return rec, fmt.Errorf("parse deployment time: %w", err)
	}
	var stages []stageRow
	if err := json.Unmarshal([]byte(stagesJS), &stages); err != nil {
		return rec, fmt.Errorf("unmarshal stages: %w", err)
	}
	rec.TeamID = domain.TeamID(team)
	rec.Timestamp = ts
	rec.Version = domain.MarketingVersion(version)
	rec.Build = domain.BuildNumber(build)
	rec.Total = time.Duration(totalMS) * time.Millisecond
	for _, st := range stages {
		rec.Stages = append(rec.Stages, domain.StageDuration{Stage: st.Stage, Duration: time.Duration(st.DurationMS) * time.Millisecond})
	}
	return rec, nil
}
