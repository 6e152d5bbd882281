package validation

import (
	"math/bits"

	"github.com/dustin/go-humanize"

	"github.com/dylibso/modsurfer/checkfile"
	"github.com/dylibso/modsurfer/module"
)

// GenerateCheckfile derives a strict policy from a module's current
// shape: every function import and export pinned with its full
// signature, the export count as a ceiling, the size rounded up to the
// next power of two, and the current complexity risk as the maximum.
// Validating a module against its own generated checkfile always
// passes.
func GenerateCheckfile(m *module.Module) *checkfile.Checkfile {
	allowWASI := m.UsesWASI()
	policy := checkfile.Policy{AllowWASI: &allowWASI}

	imports := &checkfile.Imports{}
	for _, imp := range m.FunctionImports() {
		imports.Include = append(imports.Include, matcherFor(imp.Namespace, imp.Name, imp.Func))
	}
	if namespaces := m.ImportNamespaces(); len(namespaces) > 0 {
		imports.Namespace = &checkfile.Namespace{Include: namespaces}
	}
	if len(imports.Include) > 0 || imports.Namespace != nil {
		checkfile.AssignKeys(imports.Include)
		policy.Imports = imports
	}

	max := uint64(len(m.Exports))
	exports := &checkfile.Exports{Max: &max}
	for _, exp := range m.FunctionExports() {
		exports.Include = append(exports.Include, matcherFor("", exp.Name, exp.Func))
	}
	checkfile.AssignKeys(exports.Include)
	policy.Exports = exports

	maxBytes := roundUpPowerOfTwo(m.Size)
	policy.Size = &checkfile.Size{
		Max:      humanize.IBytes(maxBytes),
		MaxBytes: maxBytes,
	}

	risk := m.Complexity.Risk
	policy.Complexity = &checkfile.Complexity{MaxRisk: &risk}

	return &checkfile.Checkfile{Validate: policy}
}

// matcherFor pins a function by name and full signature. The namespace
// is included only for imports; exports carry none.
func matcherFor(namespace, name string, fn *module.FunctionType) checkfile.Matcher {
	m := checkfile.Matcher{Name: name}
	if namespace != "" {
		ns := namespace
		m.Namespace = &ns
	}
	if fn != nil {
		params := append([]module.ValType(nil), fn.Params...)
		results := append([]module.ValType(nil), fn.Results...)
		if params == nil {
			params = []module.ValType{}
		}
		if results == nil {
			results = []module.ValType{}
		}
		m.Params = &params
		m.Results = &results
	}
	return m
}

func roundUpPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len64(n-1)
}
