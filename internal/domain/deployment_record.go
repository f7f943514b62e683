package domain

import "time"

// Deployment outcomes recorded in DeploymentRecord.Outcome.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// StageDuration is the time spent in one pipeline stage.
type StageDuration struct {
	Stage    string
	Duration time.Duration
}

// DeploymentRecord is the append-only record of one run's terminal outcome.
type DeploymentRecord struct {
	RunID            string
	Timestamp        time.Time
	AppIdentifier    string
	TeamID           TeamID
	Version          MarketingVersion
	Build            BuildNumber
	LocallyResolved  bool
	UploadStrategy   string
	ProcessingStatus string
	TimedOut         bool
	Outcome          string
	Error            string
	Stages           []StageDuration
	Total            time.Duration
}
