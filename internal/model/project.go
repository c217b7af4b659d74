package model

// Project is the project.json metadata record
type Project struct {
	ProjectID    string        `json:"project_id"`
	Question     string        `json:"question"`
	Domain       string        `json:"domain"`
	Status       string        `json:"status"`
	Phase        string        `json:"phase"`
	SubQuestions []string      `json:"sub_questions,omitempty"`
	Config       ProjectConfig `json:"config"`
}

// ProjectConfig carries per-project overrides
type ProjectConfig struct {
	QuestionType    string  `json:"question_type,omitempty"`
	EnforcementMode string  `json:"enforcement_mode,omitempty"`
	BudgetLimit     float64 `json:"budget_limit,omitempty"`
}

// Finding is one findings/*.json record produced by the reader
type Finding struct {
	FindingID  string     `json:"finding_id"`
	Text       string     `json:"text"`
	SourceURL  string     `json:"source_url"`
	SourceType string     `json:"source_type,omitempty"`
	Scope      ClaimScope `json:"scope"`
	File       string     `json:"-"`
}

// SourceRecord is one sources/*.json metadata record
type SourceRecord struct {
	SourceID           string     `json:"source_id,omitempty"`
	URL                string     `json:"url"`
	Title              string     `json:"title,omitempty"`
	SourceType         string     `json:"source_type,omitempty"`
	Scope              ClaimScope `json:"scope"`
	ReliabilityScore   *float64   `json:"reliability_score,omitempty"`
	DirectnessScore    *float64   `json:"directness_score,omitempty"`
	MethodRigorScore   *float64   `json:"method_rigor_score,omitempty"`
	ConflictOfInterest bool       `json:"conflict_of_interest,omitempty"`
}

// VerifyClaim is one normalized row of the upstream verify ledger
type VerifyClaim struct {
	ClaimID             string
	Text                string
	SupportingSourceIDs []string
	IsVerified          bool
	VerificationTier    VerificationTier
	Confidence          *float64
}
