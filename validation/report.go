package validation

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Status is the result of a single policy check.
type Status uint8

const (
	Pass Status = iota
	Fail
)

func (s Status) String() string {
	if s == Pass {
		return "PASS"
	}
	return "FAIL"
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	if s == Pass {
		return json.Marshal("pass")
	}
	return json.Marshal("fail")
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	switch label {
	case "pass":
		*s = Pass
	case "fail":
		*s = Fail
	default:
		return fmt.Errorf("invalid status %q", label)
	}
	return nil
}

// Classification groups checks by what a failure would compromise.
type Classification uint8

const (
	AbiCompatibility Classification = iota
	Security
	ResourceLimit
)

func (c Classification) String() string {
	switch c {
	case AbiCompatibility:
		return "ABI Compatibility"
	case Security:
		return "Security"
	default:
		return "Resource Limit"
	}
}

// MarshalJSON implements json.Marshaler.
func (c Classification) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Classification) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	switch label {
	case "ABI Compatibility":
		*c = AbiCompatibility
	case "Security":
		*c = Security
	case "Resource Limit":
		*c = ResourceLimit
	default:
		return fmt.Errorf("invalid classification %q", label)
	}
	return nil
}

// SeverityMax caps outcome severities.
const SeverityMax = 10

// Outcome is a single pass/fail record produced by the validator.
// Property is the dotted path uniquely identifying the clause that
// produced it (e.g. imports.include.log_message, exports.max).
type Outcome struct {
	Status         Status         `json:"status"`
	Property       string         `json:"property"`
	Expected       string         `json:"expected"`
	Actual         string         `json:"actual"`
	Classification Classification `json:"classification"`
	Severity       int            `json:"severity"`
}

// Report is the ordered list of outcomes from evaluating one policy
// against one module. Ordering is stable: outcomes sort by property.
type Report struct {
	Outcomes []Outcome
}

func (r *Report) add(o Outcome) {
	if o.Severity > SeverityMax {
		o.Severity = SeverityMax
	}
	if o.Severity < 1 {
		o.Severity = 1
	}
	r.Outcomes = append(r.Outcomes, o)
}

func (r *Report) sortOutcomes() {
	sort.SliceStable(r.Outcomes, func(i, j int) bool {
		return r.Outcomes[i].Property < r.Outcomes[j].Property
	})
}

// HasFailures reports whether any outcome failed.
func (r *Report) HasFailures() bool {
	for _, o := range r.Outcomes {
		if o.Status == Fail {
			return true
		}
	}
	return false
}

// Failures returns the failed outcomes, in report order.
func (r *Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == Fail {
			out = append(out, o)
		}
	}
	return out
}

// MarshalJSON renders the report as a plain array of outcomes.
func (r *Report) MarshalJSON() ([]byte, error) {
	if r.Outcomes == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Outcomes)
}

// UnmarshalJSON accepts the array form produced by MarshalJSON.
func (r *Report) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &r.Outcomes)
}
