package validation

import (
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/dylibso/modsurfer/checkfile"
	"github.com/dylibso/modsurfer/module"
)

// Clause severities. A failed check's weight is fixed per clause; the
// only variation is that an import inclusion carrying a signature
// constraint weighs more than a bare name.
const (
	severityAllowWASI        = 10
	severityImportBare       = 8
	severityImportSigned     = 10
	severityImportExclude    = 10
	severityNamespaceInclude = 8
	severityNamespaceExclude = 10
	severityExportsMax       = 6
	severityExportInclude    = 10
	severityExportExclude    = 5
	severityResourceLimit    = 1
	severityUnknownFields    = 1
)

const (
	included = "included"
	excluded = "excluded"
)

// Validate evaluates every clause of the policy against the module
// summary. Each clause contributes at least one outcome (one per
// element for list clauses); outcomes are sorted by property path so
// reports are deterministic. Validate is pure: repeated calls with the
// same inputs yield identical reports.
func Validate(m *module.Module, p *checkfile.Policy) *Report {
	r := &Report{}

	if p.AllowWASI != nil {
		usesWASI := m.UsesWASI()
		r.add(Outcome{
			Status:         status(*p.AllowWASI || !usesWASI),
			Property:       "allow_wasi",
			Expected:       strconv.FormatBool(*p.AllowWASI),
			Actual:         strconv.FormatBool(usesWASI),
			Classification: AbiCompatibility,
			Severity:       severityAllowWASI,
		})
	}

	if p.Imports != nil {
		validateImports(r, m, p.Imports)
	}
	if p.Exports != nil {
		validateExports(r, m, p.Exports)
	}

	if p.Size != nil && p.Size.Max != "" {
		r.add(Outcome{
			Status:         status(m.Size <= p.Size.MaxBytes),
			Property:       "size.max",
			Expected:       "<= " + p.Size.Max,
			Actual:         humanize.IBytes(m.Size),
			Classification: ResourceLimit,
			Severity:       severityResourceLimit,
		})
	}

	if p.Complexity != nil && p.Complexity.MaxRisk != nil {
		r.add(Outcome{
			Status:         status(m.Complexity.Risk <= *p.Complexity.MaxRisk),
			Property:       "complexity.max_risk",
			Expected:       "<= " + p.Complexity.MaxRisk.String(),
			Actual:         m.Complexity.Risk.String(),
			Classification: ResourceLimit,
			Severity:       severityResourceLimit,
		})
	}

	if len(p.UnknownFields) > 0 {
		r.add(Outcome{
			Status:         Fail,
			Property:       "unknown_fields",
			Expected:       "none",
			Actual:         strings.Join(p.UnknownFields, ", "),
			Classification: Security,
			Severity:       severityUnknownFields,
		})
	}

	r.sortOutcomes()
	return r
}

func validateImports(r *Report, m *module.Module, imports *checkfile.Imports) {
	for i := range imports.Include {
		matcher := &imports.Include[i]
		found := anyImportMatches(m, matcher)
		severity := severityImportBare
		if matcher.HasSignature() {
			severity = severityImportSigned
		}
		r.add(Outcome{
			Status:         status(found),
			Property:       "imports.include." + matcher.Key(),
			Expected:       included,
			Actual:         existence(found),
			Classification: AbiCompatibility,
			Severity:       severity,
		})
	}

	for i := range imports.Exclude {
		matcher := &imports.Exclude[i]
		found := anyImportMatches(m, matcher)
		r.add(Outcome{
			Status:         status(!found),
			Property:       "imports.exclude." + matcher.Key(),
			Expected:       excluded,
			Actual:         existence(found),
			Classification: AbiCompatibility,
			Severity:       severityImportExclude,
		})
	}

	if imports.Namespace == nil {
		return
	}
	namespaces := make(map[string]bool)
	for _, ns := range m.ImportNamespaces() {
		namespaces[ns] = true
	}
	for _, ns := range imports.Namespace.Include {
		r.add(Outcome{
			Status:         status(namespaces[ns]),
			Property:       "imports.namespace.include." + ns,
			Expected:       included,
			Actual:         existence(namespaces[ns]),
			Classification: AbiCompatibility,
			Severity:       severityNamespaceInclude,
		})
	}
	for _, ns := range imports.Namespace.Exclude {
		r.add(Outcome{
			Status:         status(!namespaces[ns]),
			Property:       "imports.namespace.exclude." + ns,
			Expected:       excluded,
			Actual:         existence(namespaces[ns]),
			Classification: AbiCompatibility,
			Severity:       severityNamespaceExclude,
		})
	}
}

func validateExports(r *Report, m *module.Module, exports *checkfile.Exports) {
	if exports.Max != nil {
		count := uint64(len(m.Exports))
		r.add(Outcome{
			Status:         status(count <= *exports.Max),
			Property:       "exports.max",
			Expected:       "<= " + strconv.FormatUint(*exports.Max, 10),
			Actual:         strconv.FormatUint(count, 10),
			Classification: Security,
			Severity:       severityExportsMax,
		})
	}

	for i := range exports.Include {
		matcher := &exports.Include[i]
		found := anyExportMatches(m, matcher)
		r.add(Outcome{
			Status:         status(found),
			Property:       "exports.include." + matcher.Key(),
			Expected:       included,
			Actual:         existence(found),
			Classification: AbiCompatibility,
			Severity:       severityExportInclude,
		})
	}

	for i := range exports.Exclude {
		matcher := &exports.Exclude[i]
		found := anyExportMatches(m, matcher)
		r.add(Outcome{
			Status:         status(!found),
			Property:       "exports.exclude." + matcher.Key(),
			Expected:       excluded,
			Actual:         existence(found),
			Classification: Security,
			Severity:       severityExportExclude,
		})
	}
}

func anyImportMatches(m *module.Module, matcher *checkfile.Matcher) bool {
	for _, imp := range m.Imports {
		if matcher.Matches(imp.Namespace, imp.Name, imp.Func) {
			return true
		}
	}
	return false
}

// anyExportMatches considers only function exports: table, memory, and
// global exports are unmatchable by design.
func anyExportMatches(m *module.Module, matcher *checkfile.Matcher) bool {
	for _, exp := range m.Exports {
		if exp.Kind != module.ExportFunction {
			continue
		}
		if matcher.Matches("", exp.Name, exp.Func) {
			return true
		}
	}
	return false
}

func status(pass bool) Status {
	if pass {
		return Pass
	}
	return Fail
}

func existence(present bool) string {
	if present {
		return included
	}
	return excluded
}
