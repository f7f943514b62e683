// Package audit records every lifecycle decision of a run as an append-only
// list of events, one text line per event:
//
//	2026-03-01T12:00:00Z: UPLOAD_ATTEMPT - com.example.app v2.0.0 (42) - FAILED | attempt=1 strategy=altool
//
// Everything after " | " is optional detail. Detail values holding spaces,
// newlines or other separators are written as Go-quoted strings.
package audit

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"k8s.io/utils/clock"

	"github.com/sufield/signet/internal/logging"
)

// Event kinds.
const (
	KindKeychainCreated = "KEYCHAIN_CREATED"
	KindKeychainCleaned = "KEYCHAIN_CLEANED"
	KindCertImport      = "CERT_IMPORT"
	KindCertReused      = "CERT_REUSED"
	KindCertCreated     = "CERT_CREATED"
	KindCertCleanup     = "CERT_CLEANUP"
	KindCertExpired     = "CERT_EXPIRED"
	KindProfileReused   = "PROFILE_REUSED"
	KindProfileCreated  = "PROFILE_CREATED"
	KindVersionResolved = "VERSION_RESOLVED"
	KindBuild           = "BUILD"
	KindUploadAttempt   = "UPLOAD_ATTEMPT"
	KindUpload          = "UPLOAD"
	KindProcessingPoll  = "PROCESSING_POLL"
	KindProcessing      = "PROCESSING"
	KindDeploy          = "DEPLOY"
)

// Level is the severity of an event.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Event is one audit entry.
type Event struct {
	Time    time.Time
	Level   Level
	Kind    string
	App     string
	Version string
	Build   string
	Status  string
	Detail  map[string]string
}

// Line renders the event in the log file format.
func (e Event) Line() string {
	dash := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s - %s v%s (%s) - %s",
		e.Time.UTC().Format(time.RFC3339),
		e.Kind,
		dash(e.App),
		dash(e.Version),
		dash(e.Build),
		dash(e.Status),
	)
	if len(e.Detail) > 0 {
		b.WriteString(" |")
		for _, k := range slices.Sorted(maps.Keys(e.Detail)) {
			fmt.Fprintf(&b, " %s=%s", k, detailValue(e.Detail[k]))
		}
	}
	return b.String()
}

// detailValue quotes values that would otherwise break the one-line format or
// the key=value split.
func detailValue(v string) string {
	if v == "" {
		return `""`
	}
	if strings.ContainsFunc(v, func(r rune) bool {
		return unicode.IsSpace(r) || r == '=' || r == '"' || !unicode.IsPrint(r)
	}) {
		return strconv.Quote(v)
	}
	return v
}

// Sink persists events.
type Sink interface {
	Write(e Event) error
}

// Log collects events in memory and forwards them to sinks. Sink failures are
// logged and never fail the run.
type Log struct {
	mu      sync.Mutex
	clock   clock.PassiveClock
	logger  *slog.Logger
	sinks   []Sink
	entries []Event
}

// New returns a Log stamping events with clk.
func New(clk clock.PassiveClock, logger *slog.Logger, sinks ...Sink) *Log {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Log{clock: clk, logger: logging.OrDiscard(logger), sinks: sinks}
}

// AddSink attaches another sink for subsequent events.
func (l *Log) AddSink(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Record appends e. A zero Time is replaced by the clock, an empty Level by INFO.
func (l *Log) Record(e Event) {
	if l == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = l.clock.Now()
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}
	e.Detail = maps.Clone(e.Detail)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	for _, s := range l.sinks {
		if err := s.Write(e); err != nil {
			l.logger.Warn("audit sink write failed", "kind", e.Kind, "error", err)
		}
	}
}

// Entries returns a copy of all recorded events.
func (l *Log) Entries() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

// Kind returns the events of one kind, in order.
func (l *Log) Kind(kind string) []Event {
	var out []Event
	for _, e := range l.Entries() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
