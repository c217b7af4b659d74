package model

// EnforcementMode controls how contract and threshold failures propagate
type EnforcementMode string

const (
	ModeObserve EnforcementMode = "observe"
	ModeEnforce EnforcementMode = "enforce"
	ModeStrict  EnforcementMode = "strict"
)

// ParseEnforcementMode returns the mode and whether the input was recognized
func ParseEnforcementMode(s string) (EnforcementMode, bool) {
	switch EnforcementMode(s) {
	case ModeObserve, ModeEnforce, ModeStrict:
		return EnforcementMode(s), true
	case "":
		return ModeObserve, true
	}
	return ModeObserve, false
}

// SettleResult is the JSON document emitted by aem-settle
type SettleResult struct {
	OK                       bool            `json:"ok"`
	ProjectID                string          `json:"project_id,omitempty"`
	RunID                    string          `json:"run_id,omitempty"`
	Steps                    []string        `json:"steps"`
	OracleIntegrityRate      float64         `json:"oracle_integrity_rate"`
	DeadlockRate             float64         `json:"deadlock_rate"`
	TentativeConvergenceRate float64         `json:"tentative_convergence_rate"`
	BlockSynthesize          bool            `json:"block_synthesize"`
	EnforcementMode          EnforcementMode `json:"enforcement_mode,omitempty"`
	Error                    string          `json:"error,omitempty"`
	StageErrors              []StageError    `json:"stage_errors,omitempty"`
}

// StageError records a failure that did not stop the run
type StageError struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// Signal is a diagnostic with transparent scoring data
type Signal struct {
	Type        SignalType             `json:"type"`
	Severity    SignalSeverity         `json:"severity"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalEvidenceDensity SignalType = "evidence_density"
	SignalFlood           SignalType = "evidence_flood"
	SignalNearDuplicates  SignalType = "near_duplicates"
	SignalAuthorityMix    SignalType = "authority_mix"
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)
