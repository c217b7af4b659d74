package model

// AttackClass is one axis of the attack taxonomy
type AttackClass string

const (
	AttackAssumption         AttackClass = "assumption"
	AttackMeasurement        AttackClass = "measurement"
	AttackMechanism          AttackClass = "mechanism"
	AttackExternalValidity   AttackClass = "external_validity"
	AttackIncentiveConfound  AttackClass = "incentive_confound"
	AttackTemporalDrift      AttackClass = "temporal_drift"
	AttackOntologyDefinition AttackClass = "ontology_definition"
)

// AttackClasses lists the taxonomy in its canonical order
var AttackClasses = []AttackClass{
	AttackAssumption, AttackMeasurement, AttackMechanism, AttackExternalValidity,
	AttackIncentiveConfound, AttackTemporalDrift, AttackOntologyDefinition,
}

// Attack is one adversarial challenge against a claim version
type Attack struct {
	AttackID           string      `json:"attack_id"`
	RunID              string      `json:"run_id"`
	ClaimRef           string      `json:"claim_ref"`
	AttackClass        AttackClass `json:"attack_class"`
	AttackWeight       float64     `json:"attack_weight"`
	SelectedForGate    bool        `json:"selected_for_gate"`
	AttackStrength     float64     `json:"attack_strength"`
	DefenseStrength    float64     `json:"defense_strength"`
	UnresolvedResidual float64     `json:"unresolved_residual"`
	FalsificationTest  string      `json:"falsification_test"`
	MinimalReproSteps  []string    `json:"minimal_repro_steps"`
}
