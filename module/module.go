package module

import (
	"sort"

	"gopkg.in/yaml.v3"

	errs "github.com/dylibso/modsurfer/errors"
)

// ValType represents the type of a value in a WebAssembly module.
type ValType uint8

const (
	I32 ValType = iota
	I64
	F32
	F64
	V128
	FuncRef
	ExternRef
)

func (v ValType) String() string {
	switch v {
	case I32:
		return "I32"
	case I64:
		return "I64"
	case F32:
		return "F32"
	case F64:
		return "F64"
	case V128:
		return "V128"
	case FuncRef:
		return "FuncRef"
	case ExternRef:
		return "ExternRef"
	default:
		return "Unknown"
	}
}

// ParseValType parses a checkfile value type label. Labels are
// case-sensitive: I32, I64, F32, F64, V128, FuncRef, ExternRef.
func ParseValType(s string) (ValType, bool) {
	switch s {
	case "I32":
		return I32, true
	case "I64":
		return I64, true
	case "F32":
		return F32, true
	case "F64":
		return F64, true
	case "V128":
		return V128, true
	case "FuncRef":
		return FuncRef, true
	case "ExternRef":
		return ExternRef, true
	default:
		return 0, false
	}
}

// MarshalYAML implements yaml.Marshaler.
func (v ValType) MarshalYAML() (any, error) {
	return v.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *ValType) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return errs.Syntax(nil, "value type must be a string", err)
	}
	parsed, ok := ParseValType(s)
	if !ok {
		return errs.Syntax(nil, "invalid value type "+s, nil)
	}
	*v = parsed
	return nil
}

// FunctionType describes a function signature.
type FunctionType struct {
	Params  []ValType `yaml:"params"`
	Results []ValType `yaml:"results"`
}

// Equal reports whether two signatures match element-wise.
func (f FunctionType) Equal(other FunctionType) bool {
	return ValTypesEqual(f.Params, other.Params) && ValTypesEqual(f.Results, other.Results)
}

// ValTypesEqual reports element-wise equality of two type lists.
// Length mismatch is a non-match.
func ValTypesEqual(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Import is a single entry of the module's import section. Func is
// populated only when the import is a function.
type Import struct {
	Namespace string
	Name      string
	Func      *FunctionType
}

// ExportKind identifies what an export refers to.
type ExportKind uint8

const (
	ExportFunction ExportKind = iota
	ExportTable
	ExportMemory
	ExportGlobal
)

func (k ExportKind) String() string {
	switch k {
	case ExportFunction:
		return "Function"
	case ExportTable:
		return "Table"
	case ExportMemory:
		return "Memory"
	case ExportGlobal:
		return "Global"
	default:
		return "Unknown"
	}
}

// Export is a single entry of the module's export section. Func is
// populated only for function exports.
type Export struct {
	Name string
	Kind ExportKind
	Func *FunctionType
}

// Limits holds declared size constraints for a memory or table.
type Limits struct {
	Min uint64
	Max *uint64
}

// Module is an immutable summary of a WebAssembly binary, derived
// purely from the input bytes.
type Module struct {
	// Hash is the hex-encoded SHA-256 of the input bytes.
	Hash string
	// Size is the byte length of the input.
	Size uint64
	// SourceLanguage is the inferred producing language.
	SourceLanguage SourceLanguage
	// Imports preserves the module's import section order.
	Imports []Import
	// Exports preserves the module's export section order.
	Exports []Export
	// FunctionTypes maps function index (imports first) to signature.
	FunctionTypes map[uint32]FunctionType
	// Memories and Tables carry declared limits; Globals is a count.
	Memories []Limits
	Tables   []Limits
	Globals  int
	// Start is the start function index, if declared.
	Start *uint32
	// Complexity summarizes the cyclomatic complexity analysis.
	Complexity Complexity
	// Strings holds printable strings found in the data section,
	// deduplicated and sorted.
	Strings []string
}

// wasiNamespaces are the import namespaces that indicate WASI usage.
var wasiNamespaces = map[string]bool{
	"wasi_snapshot_preview1": true,
	"wasi_unstable":          true,
	"wasi_snapshot_preview2": true,
}

// ImportNamespaces returns the sorted set of namespaces this module
// imports from.
func (m *Module) ImportNamespaces() []string {
	seen := make(map[string]bool, len(m.Imports))
	var out []string
	for _, imp := range m.Imports {
		if !seen[imp.Namespace] {
			seen[imp.Namespace] = true
			out = append(out, imp.Namespace)
		}
	}
	sort.Strings(out)
	return out
}

// UsesWASI reports whether the module imports from any WASI namespace.
func (m *Module) UsesWASI() bool {
	for _, imp := range m.Imports {
		if wasiNamespaces[imp.Namespace] {
			return true
		}
	}
	return false
}

// IsWASINamespace reports whether ns is one of the recognized WASI
// import namespaces.
func IsWASINamespace(ns string) bool {
	return wasiNamespaces[ns]
}

// FunctionImports returns the imports that are functions, in section order.
func (m *Module) FunctionImports() []Import {
	var out []Import
	for _, imp := range m.Imports {
		if imp.Func != nil {
			out = append(out, imp)
		}
	}
	return out
}

// FunctionExports returns the exports of function kind, in section order.
func (m *Module) FunctionExports() []Export {
	var out []Export
	for _, exp := range m.Exports {
		if exp.Kind == ExportFunction {
			out = append(out, exp)
		}
	}
	return out
}

func (m *Module) findExport(name string) *Export {
	for i := range m.Exports {
		if m.Exports[i].Name == name {
			return &m.Exports[i]
		}
	}
	return nil
}

func (m *Module) findImport(namespace, name string) *Import {
	for i := range m.Imports {
		if m.Imports[i].Namespace == namespace && m.Imports[i].Name == name {
			return &m.Imports[i]
		}
	}
	return nil
}
