package checkfile

import (
	"fmt"

	"github.com/dylibso/modsurfer/module"
)

// Checkfile is the top-level YAML document: a single validate key
// holding the policy.
type Checkfile struct {
	Validate Policy `yaml:"validate"`
}

// Policy is a validation policy: a set of optional clauses, each
// imposing one constraint on a module summary. Absent clauses impose
// no constraint.
type Policy struct {
	// URL, when present without sibling clauses, redirects the loader
	// to a remotely hosted policy. Followed at most once.
	URL string `yaml:"url,omitempty"`

	AllowWASI  *bool       `yaml:"allow_wasi,omitempty"`
	Imports    *Imports    `yaml:"imports,omitempty"`
	Exports    *Exports    `yaml:"exports,omitempty"`
	Size       *Size       `yaml:"size,omitempty"`
	Complexity *Complexity `yaml:"complexity,omitempty"`

	// UnknownFields lists the dotted paths of unrecognized keys found
	// during loading. They do not abort loading; the validator folds
	// them into a single warning outcome.
	UnknownFields []string `yaml:"-"`
}

// Imports constrains the module's import section.
type Imports struct {
	Include   []Matcher  `yaml:"include,omitempty"`
	Exclude   []Matcher  `yaml:"exclude,omitempty"`
	Namespace *Namespace `yaml:"namespace,omitempty"`
}

// Namespace constrains the set of namespaces imported from.
type Namespace struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// Exports constrains the module's export section.
type Exports struct {
	Max     *uint64   `yaml:"max,omitempty"`
	Include []Matcher `yaml:"include,omitempty"`
	Exclude []Matcher `yaml:"exclude,omitempty"`
}

// Size constrains the module's byte size. Max keeps the user-written
// human form (for display); MaxBytes is its parsed value.
type Size struct {
	Max      string `yaml:"max,omitempty"`
	MaxBytes uint64 `yaml:"-"`
}

// Complexity constrains the module's complexity risk level.
type Complexity struct {
	MaxRisk *module.Risk `yaml:"max_risk,omitempty"`
}

// Matcher is a partial description of a function-shaped import or
// export. A matcher matches a candidate iff every specified field
// equals the corresponding candidate field; absent fields are
// wildcards. Signature lists match element-wise; a candidate without a
// signature cannot match a matcher that specifies one.
type Matcher struct {
	Namespace *string           `yaml:"namespace,omitempty"`
	Name      string            `yaml:"name,omitempty"`
	Params    *[]module.ValType `yaml:"params,omitempty"`
	Results   *[]module.ValType `yaml:"results,omitempty"`

	key string
}

// Key returns the matcher's display key within its clause: the name
// when present, otherwise "<namespace>.<*>", with "#N" appended by the
// loader when two matchers in one clause would collide.
func (m *Matcher) Key() string {
	if m.key != "" {
		return m.key
	}
	return m.baseKey()
}

func (m *Matcher) baseKey() string {
	if m.Name != "" {
		return m.Name
	}
	if m.Namespace != nil {
		return *m.Namespace + ".<*>"
	}
	return "<*>"
}

// HasSignature reports whether the matcher constrains params or results.
func (m *Matcher) HasSignature() bool {
	return m.Params != nil || m.Results != nil
}

// Matches reports whether the candidate (namespace, name, signature)
// satisfies every specified matcher field. fn is nil for candidates
// that are not function-shaped; such candidates cannot satisfy a
// signature constraint.
func (m *Matcher) Matches(namespace, name string, fn *module.FunctionType) bool {
	if m.Namespace != nil && *m.Namespace != namespace {
		return false
	}
	if m.Name != "" && m.Name != name {
		return false
	}
	if m.Params != nil {
		if fn == nil || !module.ValTypesEqual(*m.Params, fn.Params) {
			return false
		}
	}
	if m.Results != nil {
		if fn == nil || !module.ValTypesEqual(*m.Results, fn.Results) {
			return false
		}
	}
	return true
}

// MarshalYAML serializes a matcher back to its compact form: a bare
// name when only the name is specified, a mapping otherwise.
func (m Matcher) MarshalYAML() (any, error) {
	if m.Namespace == nil && m.Params == nil && m.Results == nil {
		return m.Name, nil
	}
	type structured struct {
		Namespace *string           `yaml:"namespace,omitempty"`
		Name      string            `yaml:"name,omitempty"`
		Params    *[]module.ValType `yaml:"params,omitempty"`
		Results   *[]module.ValType `yaml:"results,omitempty"`
	}
	return structured{Namespace: m.Namespace, Name: m.Name, Params: m.Params, Results: m.Results}, nil
}

// AssignKeys computes the display key for each matcher in a clause
// list, appending #2, #3, ... in list order when base keys collide.
// Property path uniqueness inside a report depends on this.
func AssignKeys(matchers []Matcher) {
	counts := make(map[string]int, len(matchers))
	for i := range matchers {
		base := matchers[i].baseKey()
		counts[base]++
		if n := counts[base]; n > 1 {
			matchers[i].key = fmt.Sprintf("%s#%d", base, n)
		} else {
			matchers[i].key = base
		}
	}
}

// finalize assigns display keys across every matcher list in p.
func (p *Policy) finalize() {
	if p.Imports != nil {
		AssignKeys(p.Imports.Include)
		AssignKeys(p.Imports.Exclude)
	}
	if p.Exports != nil {
		AssignKeys(p.Exports.Include)
		AssignKeys(p.Exports.Exclude)
	}
}

// hasClauses reports whether any constraint clause is present,
// ignoring URL. A url-only policy is an indirection, not a policy.
func (p *Policy) hasClauses() bool {
	return p.AllowWASI != nil || p.Imports != nil || p.Exports != nil ||
		p.Size != nil || p.Complexity != nil
}
