package model

// SourceType values recognized on findings and source records
const (
	SourceTypePrimary   = "primary"
	SourceTypeSecondary = "secondary"
	SourceTypeDataset   = "dataset"
	SourceTypeBenchmark = "benchmark"
	SourceTypePaper     = "paper"
)

// EvidenceEntry holds per-source features used by triage, defense and the gate
type EvidenceEntry struct {
	EvidenceID             string     `json:"evidence_id"`
	SourceURL              string     `json:"source_url"`
	SourceType             string     `json:"source_type"`
	SourceClusterID        string     `json:"source_cluster_id"`
	IndependenceScore      float64    `json:"independence_score"`
	PrimarySourceFlag      bool       `json:"primary_source_flag"`
	EvidenceScope          ClaimScope `json:"evidence_scope"`
	ScopeOverlapScore      float64    `json:"scope_overlap_score"`
	DirectnessScore        float64    `json:"directness_score"`
	MethodRigorScore       float64    `json:"method_rigor_score"`
	ConflictOfInterestFlag bool       `json:"conflict_of_interest_flag"`
	ReliabilityScore       float64    `json:"reliability_score"`
}

// AuthorityTier represents the classification of source authority
type AuthorityTier int

const (
	TierUnknown   AuthorityTier = 0 // Not yet classified
	TierPrimary   AuthorityTier = 1 // Statutes, datasets, academic papers, official documents
	TierSecondary AuthorityTier = 2 // Encyclopedias, major publishers, reputable media
	TierTertiary  AuthorityTier = 3 // Blogs, personal websites, aggregators
)

func (t AuthorityTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}
