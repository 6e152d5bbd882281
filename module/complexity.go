package module

import (
	"github.com/mstoykov/envconfig"
	"gopkg.in/yaml.v3"

	errs "github.com/dylibso/modsurfer/errors"
	"github.com/dylibso/modsurfer/wasm"
)

// Risk is a discrete summary of a module's cyclomatic complexity. The
// risk is purely about computational resource usage, not security.
type Risk uint8

const (
	RiskLow Risk = iota
	RiskMedium
	RiskHigh
)

func (r Risk) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	}
	return "unknown"
}

// ParseRisk parses a checkfile risk label (low, medium, high).
func ParseRisk(s string) (Risk, bool) {
	switch s {
	case "low":
		return RiskLow, true
	case "medium":
		return RiskMedium, true
	case "high":
		return RiskHigh, true
	default:
		return 0, false
	}
}

// MarshalYAML implements yaml.Marshaler.
func (r Risk) MarshalYAML() (any, error) {
	return r.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Risk) UnmarshalYAML(node *yaml.Node) error {
	var label string
	if err := node.Decode(&label); err != nil {
		return errs.Syntax(nil, "risk level must be a string", err)
	}
	parsed, ok := ParseRisk(label)
	if !ok {
		return errs.Syntax(nil, "invalid risk level "+label, nil)
	}
	*r = parsed
	return nil
}

// Complexity holds the mean per-function cyclomatic complexity score
// and its risk classification.
type Complexity struct {
	Score uint32
	Risk  Risk
}

// Thresholds are the inclusive upper bounds partitioning complexity
// scores into risk levels. They are read once at process start and
// treated as immutable thereafter.
type Thresholds struct {
	Low    uint32 `envconfig:"MODSURFER_RISK_LOW" default:"10"`
	Medium uint32 `envconfig:"MODSURFER_RISK_MEDIUM" default:"25"`
	// High is informational; scores above Medium always classify high.
	High uint32 `envconfig:"MODSURFER_RISK_HIGH" default:"4294967295"`
}

// DefaultThresholds returns the built-in risk thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 10, Medium: 25, High: ^uint32(0)}
}

// ThresholdsFromEnv reads risk thresholds from the environment
// (MODSURFER_RISK_LOW, MODSURFER_RISK_MEDIUM, MODSURFER_RISK_HIGH) and
// validates them. Violations are configuration errors and must abort
// the process before any module is loaded.
func ThresholdsFromEnv() (Thresholds, error) {
	var t Thresholds
	if err := envconfig.Process("", &t); err != nil {
		return Thresholds{}, errs.Config("invalid risk threshold: %v", err)
	}
	if err := t.Validate(); err != nil {
		return Thresholds{}, err
	}
	return t, nil
}

// Validate checks the ordering constraint LOW <= MEDIUM.
func (t Thresholds) Validate() error {
	if t.Low > t.Medium {
		return errs.Config("MODSURFER_RISK_LOW (%d) must not exceed MODSURFER_RISK_MEDIUM (%d)", t.Low, t.Medium)
	}
	return nil
}

// Classify maps a mean complexity score onto a risk level.
func (t Thresholds) Classify(score uint32) Risk {
	switch {
	case score <= t.Low:
		return RiskLow
	case score <= t.Medium:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// analyzeComplexity computes the mean per-function cyclomatic
// complexity: each body contributes 1 plus its branch instruction
// count, and the sum is divided by the number of non-imported
// functions. A module with no function bodies scores 0 (low risk).
func analyzeComplexity(raw *wasm.Module, t Thresholds) (Complexity, error) {
	if len(raw.Code) == 0 {
		return Complexity{Score: 0, Risk: RiskLow}, nil
	}
	var total uint64
	for i := range raw.Code {
		branches, err := wasm.CountBranchInstructions(&raw.Code[i])
		if err != nil {
			return Complexity{}, err
		}
		total += 1 + uint64(branches)
	}
	mean := total / uint64(len(raw.Code))
	if mean > uint64(^uint32(0)) {
		mean = uint64(^uint32(0))
	}
	score := uint32(mean)
	return Complexity{Score: score, Risk: t.Classify(score)}, nil
}
