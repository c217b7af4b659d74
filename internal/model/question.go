package model

// QuestionState tracks how far a research question has been narrowed
type QuestionState string

const (
	QuestionOpen              QuestionState = "open"
	QuestionNarrowed          QuestionState = "narrowed"
	QuestionPartiallyResolved QuestionState = "partially_resolved"
	QuestionResolved          QuestionState = "resolved"
	QuestionReopened          QuestionState = "reopened"
)

// Uncertainty splits question uncertainty by axis
type Uncertainty struct {
	Measurement      float64 `json:"measurement"`
	Mechanism        float64 `json:"mechanism"`
	ExternalValidity float64 `json:"external_validity"`
	Temporal         float64 `json:"temporal"`
}

// Question is a node of the question graph
type Question struct {
	QuestionID        string        `json:"question_id"`
	Text              string        `json:"text"`
	State             QuestionState `json:"state"`
	DecisionRelevance float64       `json:"decision_relevance"`
	Uncertainty       Uncertainty   `json:"uncertainty"`
	EvidenceGapScore  float64       `json:"evidence_gap_score"`
	LinkedClaims      []string      `json:"linked_claims"`
}

// QuestionGraph is the persisted questions/questions.json document.
// Open and Answered are legacy keys kept for older readers.
type QuestionGraph struct {
	Questions []Question `json:"questions"`
	Open      []string   `json:"open"`
	Answered  []string   `json:"answered"`
}
