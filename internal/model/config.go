package model

import "time"

// Config is the complete aem-settle configuration
type Config struct {
	EnforcementMode  EnforcementMode     `yaml:"enforcement_mode"`
	ProjectsRoot     string              `yaml:"projects_root"`
	GlobalSchemaPath string              `yaml:"global_schema_path"`
	Thresholds       ThresholdConfig     `yaml:"thresholds"`
	Gate             GateConfig          `yaml:"gate"`
	Triage           TriageConfig        `yaml:"triage"`
	Attack           AttackConfig        `yaml:"attack"`
	Contradiction    ContradictionConfig `yaml:"contradiction"`
	Governor         GovernorConfig      `yaml:"governor"`
	Reopen           ReopenConfig        `yaml:"reopen"`
	Authority        AuthorityConfig     `yaml:"authority"`
	LLM              LLMConfig           `yaml:"llm"`
	Cache            CacheConfig         `yaml:"cache"`
	Concurrency      ConcurrencyConfig   `yaml:"concurrency"`
	Log              LogConfig           `yaml:"log"`
}

// ThresholdConfig holds the project-level AEM health thresholds
type ThresholdConfig struct {
	OracleIntegrityMin      float64 `yaml:"oracle_integrity_min"`
	DeadlockRateMax         float64 `yaml:"deadlock_rate_max"`
	TentativeConvergenceMin float64 `yaml:"tentative_convergence_min"`
}

// GateConfig bounds the falsification gate
type GateConfig struct {
	DeadlockMaxCycles     int     `yaml:"deadlock_max_cycles"`
	UnresolvedResidualMax float64 `yaml:"unresolved_residual_max"`
	StableFloor           float64 `yaml:"stable_floor"`
	InitialTentativeTTL   int     `yaml:"initial_tentative_ttl"`
}

// TriageConfig controls claim selection
type TriageConfig struct {
	TopK int `yaml:"top_k"`
}

// AttackConfig controls attack generation and defense
type AttackConfig struct {
	MaxPerClaim   int                     `yaml:"max_per_claim"`
	MinGateWeight float64                 `yaml:"min_gate_weight"`
	Defend        bool                    `yaml:"defend"`
	Weights       map[AttackClass]float64 `yaml:"weights"`
}

// ContradictionConfig controls the contradiction linker
type ContradictionConfig struct {
	DefaultStrength float64 `yaml:"default_strength"`
}

// GovernorConfig maps compute lanes to models
type GovernorConfig struct {
	MinIGPerToken float64 `yaml:"min_ig_per_token"`
	CheapModel    string  `yaml:"cheap_model"`
	MidModel      string  `yaml:"mid_model"`
	StrongModel   string  `yaml:"strong_model"`
}

// ReopenConfig controls the optional reopen check
type ReopenConfig struct {
	Check bool `yaml:"check"`
}

// AuthorityConfig classifies source domains when a source type is not declared
type AuthorityConfig struct {
	PrimaryDomains   []string          `yaml:"primary_domains"`
	SecondaryDomains []string          `yaml:"secondary_domains"`
	PathPatterns     []PathPattern     `yaml:"path_patterns,omitempty"`
	DomainMap        map[string]string `yaml:"domain_map,omitempty"`
}

// PathPattern maps a URL path regex to an authority tier name
type PathPattern struct {
	Pattern string `yaml:"pattern"`
	Tier    string `yaml:"tier"`
}

// LLMConfig configures the LLM fabric adapter
type LLMConfig struct {
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	APIKey            string  `yaml:"-"`
	BaseURL           string  `yaml:"base_url,omitempty"`
	Timeout           int     `yaml:"timeout"`
	MaxTokens         int     `yaml:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	HTTPProxy         string  `yaml:"http_proxy,omitempty"`
	HTTPSProxy        string  `yaml:"https_proxy,omitempty"`
}

// CacheConfig configures the LLM response cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Dir       string        `yaml:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl"`
}

// ConcurrencyConfig bounds cross-project parallelism
type ConcurrencyConfig struct {
	Workers int `yaml:"workers"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultAttackWeights are the per-class weights before any override
func DefaultAttackWeights() map[AttackClass]float64 {
	return map[AttackClass]float64{
		AttackAssumption:         0.4,
		AttackMeasurement:        0.5,
		AttackMechanism:          0.5,
		AttackExternalValidity:   0.6,
		AttackIncentiveConfound:  0.5,
		AttackTemporalDrift:      0.4,
		AttackOntologyDefinition: 0.5,
	}
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		EnforcementMode: ModeObserve,
		ProjectsRoot:    ".",
		Thresholds: ThresholdConfig{
			OracleIntegrityMin:      0.80,
			DeadlockRateMax:         0.05,
			TentativeConvergenceMin: 0.60,
		},
		Gate: GateConfig{
			DeadlockMaxCycles:     5,
			UnresolvedResidualMax: 0.3,
			StableFloor:           0.5,
			InitialTentativeTTL:   3,
		},
		Triage: TriageConfig{TopK: 10},
		Attack: AttackConfig{
			MaxPerClaim:   3,
			MinGateWeight: 0.2,
			Defend:        true,
			Weights:       DefaultAttackWeights(),
		},
		Contradiction: ContradictionConfig{DefaultStrength: 0.7},
		Governor: GovernorConfig{
			MinIGPerToken: 0.001,
			CheapModel:    "gpt-4o-mini",
			MidModel:      "gpt-4o-mini",
			StrongModel:   "gpt-4o",
		},
		Authority: AuthorityConfig{
			PrimaryDomains: []string{
				"doi.org", "arxiv.org", "pubmed.ncbi.nlm.nih.gov", "nih.gov",
				"who.int", "data.gov", "europa.eu", "oecd.org", "worldbank.org",
			},
			SecondaryDomains: []string{
				"wikipedia.org", "britannica.com", "reuters.com", "apnews.com",
				"nature.com", "science.org", "economist.com",
			},
		},
		LLM: LLMConfig{
			Timeout:           30,
			MaxTokens:         1000,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".cache/llm",
			MemoryTTL: time.Hour,
			DiskTTL:   7 * 24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{Workers: 4},
		Log:         LogConfig{Level: "info"},
	}
}
