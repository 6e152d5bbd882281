package validation

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dylibso/modsurfer/module"
)

// ImportChange records an import present in both modules whose
// signature changed.
type ImportChange struct {
	Namespace string
	Name      string
	Before    module.FunctionType
	After     module.FunctionType
}

// ExportChange records an export present in both modules whose kind or
// signature changed.
type ExportChange struct {
	Name       string
	KindBefore module.ExportKind
	KindAfter  module.ExportKind
	FuncBefore *module.FunctionType
	FuncAfter  *module.FunctionType
}

// ModuleDiff is a structured comparison of two module summaries.
// Imports are keyed by (namespace, name), exports by name; all lists
// are key-sorted so diffs are deterministic.
type ModuleDiff struct {
	AddedImports   []module.Import
	RemovedImports []module.Import
	ChangedImports []ImportChange

	AddedExports   []module.Export
	RemovedExports []module.Export
	ChangedExports []ExportChange

	SizeDelta  int64
	ScoreDelta int64

	RiskBefore module.Risk
	RiskAfter  module.Risk

	LanguageBefore module.SourceLanguage
	LanguageAfter  module.SourceLanguage
}

// Diff compares two module summaries.
func Diff(a, b *module.Module) *ModuleDiff {
	d := &ModuleDiff{
		SizeDelta:      int64(b.Size) - int64(a.Size),
		ScoreDelta:     int64(b.Complexity.Score) - int64(a.Complexity.Score),
		RiskBefore:     a.Complexity.Risk,
		RiskAfter:      b.Complexity.Risk,
		LanguageBefore: a.SourceLanguage,
		LanguageAfter:  b.SourceLanguage,
	}

	type importKey struct{ namespace, name string }
	aImports := make(map[importKey]module.Import)
	for _, imp := range a.Imports {
		key := importKey{imp.Namespace, imp.Name}
		if _, ok := aImports[key]; !ok {
			aImports[key] = imp
		}
	}
	bImports := make(map[importKey]module.Import)
	for _, imp := range b.Imports {
		key := importKey{imp.Namespace, imp.Name}
		if _, ok := bImports[key]; !ok {
			bImports[key] = imp
		}
	}
	for key, imp := range bImports {
		prev, ok := aImports[key]
		switch {
		case !ok:
			d.AddedImports = append(d.AddedImports, imp)
		case !funcTypesEqual(prev.Func, imp.Func):
			d.ChangedImports = append(d.ChangedImports, ImportChange{
				Namespace: key.namespace,
				Name:      key.name,
				Before:    derefFunc(prev.Func),
				After:     derefFunc(imp.Func),
			})
		}
	}
	for key, imp := range aImports {
		if _, ok := bImports[key]; !ok {
			d.RemovedImports = append(d.RemovedImports, imp)
		}
	}

	aExports := make(map[string]module.Export)
	for _, exp := range a.Exports {
		if _, ok := aExports[exp.Name]; !ok {
			aExports[exp.Name] = exp
		}
	}
	bExports := make(map[string]module.Export)
	for _, exp := range b.Exports {
		if _, ok := bExports[exp.Name]; !ok {
			bExports[exp.Name] = exp
		}
	}
	for name, exp := range bExports {
		prev, ok := aExports[name]
		switch {
		case !ok:
			d.AddedExports = append(d.AddedExports, exp)
		case prev.Kind != exp.Kind || !funcTypesEqual(prev.Func, exp.Func):
			d.ChangedExports = append(d.ChangedExports, ExportChange{
				Name:       name,
				KindBefore: prev.Kind,
				KindAfter:  exp.Kind,
				FuncBefore: prev.Func,
				FuncAfter:  exp.Func,
			})
		}
	}
	for name, exp := range aExports {
		if _, ok := bExports[name]; !ok {
			d.RemovedExports = append(d.RemovedExports, exp)
		}
	}

	sortImports(d.AddedImports)
	sortImports(d.RemovedImports)
	sort.Slice(d.ChangedImports, func(i, j int) bool {
		a, b := d.ChangedImports[i], d.ChangedImports[j]
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		return a.Name < b.Name
	})
	sortExports(d.AddedExports)
	sortExports(d.RemovedExports)
	sort.Slice(d.ChangedExports, func(i, j int) bool {
		return d.ChangedExports[i].Name < d.ChangedExports[j].Name
	})

	return d
}

// Inverse returns the diff as seen from the opposite direction:
// added and removed swap, before and after swap, deltas negate.
func (d *ModuleDiff) Inverse() *ModuleDiff {
	inv := &ModuleDiff{
		AddedImports:   d.RemovedImports,
		RemovedImports: d.AddedImports,
		AddedExports:   d.RemovedExports,
		RemovedExports: d.AddedExports,
		SizeDelta:      -d.SizeDelta,
		ScoreDelta:     -d.ScoreDelta,
		RiskBefore:     d.RiskAfter,
		RiskAfter:      d.RiskBefore,
		LanguageBefore: d.LanguageAfter,
		LanguageAfter:  d.LanguageBefore,
	}
	for _, c := range d.ChangedImports {
		inv.ChangedImports = append(inv.ChangedImports, ImportChange{
			Namespace: c.Namespace,
			Name:      c.Name,
			Before:    c.After,
			After:     c.Before,
		})
	}
	for _, c := range d.ChangedExports {
		inv.ChangedExports = append(inv.ChangedExports, ExportChange{
			Name:       c.Name,
			KindBefore: c.KindAfter,
			KindAfter:  c.KindBefore,
			FuncBefore: c.FuncAfter,
			FuncAfter:  c.FuncBefore,
		})
	}
	return inv
}

// Empty reports whether the two modules are indistinguishable across
// the compared dimensions.
func (d *ModuleDiff) Empty() bool {
	return len(d.AddedImports) == 0 && len(d.RemovedImports) == 0 && len(d.ChangedImports) == 0 &&
		len(d.AddedExports) == 0 && len(d.RemovedExports) == 0 && len(d.ChangedExports) == 0 &&
		d.SizeDelta == 0 && d.ScoreDelta == 0 &&
		d.RiskBefore == d.RiskAfter && d.LanguageBefore == d.LanguageAfter
}

var (
	diffAddStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98"))
	diffRemoveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	diffChangeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
)

// Render writes a line-oriented listing of the diff. withContext adds
// the unchanged scalar dimensions; color applies terminal styling.
func (d *ModuleDiff) Render(w io.Writer, withContext, color bool) {
	paint := func(style lipgloss.Style, line string) string {
		if color {
			return style.Render(line)
		}
		return line
	}

	for _, imp := range d.RemovedImports {
		fmt.Fprintln(w, paint(diffRemoveStyle, "- import "+importLabel(imp)))
	}
	for _, imp := range d.AddedImports {
		fmt.Fprintln(w, paint(diffAddStyle, "+ import "+importLabel(imp)))
	}
	for _, c := range d.ChangedImports {
		fmt.Fprintln(w, paint(diffChangeStyle, fmt.Sprintf("~ import %s.%s %s -> %s",
			c.Namespace, c.Name, signature(&c.Before), signature(&c.After))))
	}
	for _, exp := range d.RemovedExports {
		fmt.Fprintln(w, paint(diffRemoveStyle, "- export "+exportLabel(exp)))
	}
	for _, exp := range d.AddedExports {
		fmt.Fprintln(w, paint(diffAddStyle, "+ export "+exportLabel(exp)))
	}
	for _, c := range d.ChangedExports {
		fmt.Fprintln(w, paint(diffChangeStyle, fmt.Sprintf("~ export %s %s%s -> %s%s",
			c.Name, c.KindBefore, signature(c.FuncBefore), c.KindAfter, signature(c.FuncAfter))))
	}

	delta := func(name string, v int64) {
		switch {
		case v != 0:
			fmt.Fprintln(w, paint(diffChangeStyle, fmt.Sprintf("~ %s %+d", name, v)))
		case withContext:
			fmt.Fprintf(w, "  %s +0\n", name)
		}
	}
	change := func(name, before, after string) {
		switch {
		case before != after:
			fmt.Fprintln(w, paint(diffChangeStyle, fmt.Sprintf("~ %s %s -> %s", name, before, after)))
		case withContext:
			fmt.Fprintf(w, "  %s %s\n", name, before)
		}
	}
	delta("size_bytes", d.SizeDelta)
	delta("complexity.score", d.ScoreDelta)
	change("complexity.risk", d.RiskBefore.String(), d.RiskAfter.String())
	change("source_language", d.LanguageBefore.String(), d.LanguageAfter.String())
}

func importLabel(imp module.Import) string {
	return imp.Namespace + "." + imp.Name + signature(imp.Func)
}

func exportLabel(exp module.Export) string {
	if exp.Kind == module.ExportFunction {
		return exp.Name + signature(exp.Func)
	}
	return exp.Name + " (" + strings.ToLower(exp.Kind.String()) + ")"
}

func signature(fn *module.FunctionType) string {
	if fn == nil {
		return ""
	}
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = p.String()
	}
	results := make([]string, len(fn.Results))
	for i, r := range fn.Results {
		results[i] = r.String()
	}
	out := "(" + strings.Join(params, ", ") + ")"
	if len(results) > 0 {
		out += " -> " + strings.Join(results, ", ")
	}
	return out
}

func funcTypesEqual(a, b *module.FunctionType) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func derefFunc(fn *module.FunctionType) module.FunctionType {
	if fn == nil {
		return module.FunctionType{}
	}
	return *fn
}

func sortImports(imports []module.Import) {
	sort.Slice(imports, func(i, j int) bool {
		if imports[i].Namespace != imports[j].Namespace {
			return imports[i].Namespace < imports[j].Namespace
		}
		return imports[i].Name < imports[j].Name
	})
}

func sortExports(exports []module.Export) {
	sort.Slice(exports, func(i, j int) bool {
		return exports[i].Name < exports[j].Name
	})
}

