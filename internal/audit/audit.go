// Package audit appends the human-readable event trail of a project.
package audit

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/store"
)

// Events written to the audit trail
const (
	EventRunStart         = "run_start"
	EventRunFinish        = "run_finish"
	EventStageStart       = "stage_start"
	EventStageFinish      = "stage_finish"
	EventStageError       = "stage_error"
	EventGuardRejected    = "guard_rejected"
	EventTransition       = "transition"
	EventSynthesisChecked = "synthesis_checked"
	EventReopen           = "reopen"
	EventBudgetExceeded   = "budget_exceeded"
)

// Entry is one audit_log.jsonl line
type Entry struct {
	TS     time.Time `json:"ts"`
	RunID  string    `json:"run_id,omitempty"`
	Event  string    `json:"event"`
	Stage  string    `json:"stage,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Log appends entries for a single run. Write failures are logged, never returned:
// the trail is a side channel and must not change run outcomes.
type Log struct {
	path   string
	runID  string
	logger *zap.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// NewLog creates an audit log bound to path and run id
func NewLog(path, runID string, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{
		path:   path,
		runID:  runID,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RunID returns the run this log is bound to
func (l *Log) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// Record appends one event
func (l *Log) Record(event, stage, detail string, err error) {
	if l == nil {
		return
	}
	entry := Entry{
		TS:     l.now(),
		RunID:  l.runID,
		Event:  event,
		Stage:  stage,
		Detail: detail,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if werr := store.AppendJSONL(l.path, entry); werr != nil {
		l.logger.Warn("audit write failed", zap.String("event", event), zap.Error(werr))
	}
}

// Read returns every entry of an audit file
func Read(path string) ([]Entry, error) {
	return store.ReadJSONL[Entry](path)
}
