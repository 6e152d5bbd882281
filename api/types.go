package api

import (
	"time"

	"github.com/dylibso/modsurfer/module"
	"github.com/dylibso/modsurfer/validation"
)

// WireFunctionType mirrors module.FunctionType on the wire.
type WireFunctionType struct {
	Params  []string `json:"params"`
	Results []string `json:"results"`
}

// WireImport is the catalog representation of an import record.
type WireImport struct {
	Namespace string            `json:"namespace"`
	Name      string            `json:"name"`
	Func      *WireFunctionType `json:"func,omitempty"`
}

// WireExport is the catalog representation of an export record.
type WireExport struct {
	Name string            `json:"name"`
	Kind string            `json:"kind"`
	Func *WireFunctionType `json:"func,omitempty"`
}

// WireModule is a module summary as stored by the catalog.
type WireModule struct {
	Hash           string            `json:"hash"`
	Size           uint64            `json:"size"`
	Location       string            `json:"location,omitempty"`
	SourceLanguage string            `json:"source_language"`
	Imports        []WireImport      `json:"imports"`
	Exports        []WireExport      `json:"exports"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Strings        []string          `json:"strings,omitempty"`
	Complexity     uint32            `json:"complexity"`
	Risk           string            `json:"risk"`
	InsertedAt     time.Time         `json:"inserted_at"`
}

// Persisted pairs a stored entity with its catalog ID.
type Persisted struct {
	ModuleID int64      `json:"module_id"`
	Module   WireModule `json:"module"`
}

// List is a paginated result set.
type List struct {
	Modules []Persisted `json:"modules"`
	Total   uint32      `json:"total"`
	Offset  uint32      `json:"offset"`
	Limit   uint32      `json:"limit"`
}

// wireError is the error payload catalog responses may carry.
type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type createRequest struct {
	Wasm     []byte            `json:"wasm"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Location string            `json:"location,omitempty"`
}

type createResponse struct {
	ModuleID int64      `json:"module_id"`
	Hash     string     `json:"hash"`
	Error    *wireError `json:"error,omitempty"`
}

type getRequest struct {
	ModuleID int64 `json:"module_id"`
}

type getResponse struct {
	Module Persisted  `json:"module"`
	Error  *wireError `json:"error,omitempty"`
}

// Pagination bounds list and search responses.
type Pagination struct {
	Offset uint32 `json:"offset"`
	Limit  uint32 `json:"limit"`
}

type listRequest struct {
	Pagination Pagination `json:"pagination"`
}

type listResponse struct {
	Modules []Persisted `json:"modules"`
	Total   uint32      `json:"total"`
	Error   *wireError  `json:"error,omitempty"`
}

// SearchQuery narrows a catalog search; zero fields are wildcards.
type SearchQuery struct {
	Hash           string   `json:"hash,omitempty"`
	ModuleName     string   `json:"module_name,omitempty"`
	FunctionName   string   `json:"function_name,omitempty"`
	SourceLanguage string   `json:"source_language,omitempty"`
	Strings        []string `json:"strings,omitempty"`
	Offset         uint32   `json:"offset"`
	Limit          uint32   `json:"limit"`
}

type searchResponse struct {
	Modules []Persisted `json:"modules"`
	Total   uint32      `json:"total"`
	Error   *wireError  `json:"error,omitempty"`
}

type deleteRequest struct {
	ModuleIDs []int64 `json:"module_ids"`
}

// Deleted identifies one removed module.
type Deleted struct {
	ModuleID int64  `json:"module_id"`
	Hash     string `json:"hash"`
}

type deleteResponse struct {
	Deleted []Deleted  `json:"deleted"`
	Error   *wireError `json:"error,omitempty"`
}

type yankRequest struct {
	ModuleID int64  `json:"module_id"`
	Version  string `json:"version"`
}

type yankResponse struct {
	Error *wireError `json:"error,omitempty"`
}

// AuditOutcome filters audit results to passing or failing modules.
type AuditOutcome string

const (
	AuditPass AuditOutcome = "pass"
	AuditFail AuditOutcome = "fail"
)

type auditRequest struct {
	Checkfile  []byte       `json:"checkfile"`
	Outcome    AuditOutcome `json:"outcome"`
	Pagination Pagination   `json:"pagination"`
}

// AuditReport pairs a module ID with its validation report.
type AuditReport struct {
	ModuleID int64             `json:"module_id"`
	Report   validation.Report `json:"report"`
}

type auditResponse struct {
	Reports []AuditReport `json:"reports"`
	Error   *wireError    `json:"error,omitempty"`
}

// ToSummary converts a catalog module into the local summary model so
// diff and validate can run against catalog entries.
func (w *WireModule) ToSummary() *module.Module {
	m := &module.Module{
		Hash:           w.Hash,
		Size:           w.Size,
		SourceLanguage: module.ParseSourceLanguage(w.SourceLanguage),
		Strings:        w.Strings,
	}
	if risk, ok := module.ParseRisk(w.Risk); ok {
		m.Complexity = module.Complexity{Score: w.Complexity, Risk: risk}
	}
	for _, imp := range w.Imports {
		m.Imports = append(m.Imports, module.Import{
			Namespace: imp.Namespace,
			Name:      imp.Name,
			Func:      imp.Func.toFunctionType(),
		})
	}
	for _, exp := range w.Exports {
		m.Exports = append(m.Exports, module.Export{
			Name: exp.Name,
			Kind: parseExportKind(exp.Kind),
			Func: exp.Func.toFunctionType(),
		})
	}
	return m
}

// FromSummary converts a local summary into its wire form.
func FromSummary(m *module.Module, location string) WireModule {
	w := WireModule{
		Hash:           m.Hash,
		Size:           m.Size,
		Location:       location,
		SourceLanguage: m.SourceLanguage.String(),
		Strings:        m.Strings,
		Complexity:     m.Complexity.Score,
		Risk:           m.Complexity.Risk.String(),
	}
	for _, imp := range m.Imports {
		w.Imports = append(w.Imports, WireImport{
			Namespace: imp.Namespace,
			Name:      imp.Name,
			Func:      fromFunctionType(imp.Func),
		})
	}
	for _, exp := range m.Exports {
		w.Exports = append(w.Exports, WireExport{
			Name: exp.Name,
			Kind: exp.Kind.String(),
			Func: fromFunctionType(exp.Func),
		})
	}
	return w
}

func (w *WireFunctionType) toFunctionType() *module.FunctionType {
	if w == nil {
		return nil
	}
	ft := &module.FunctionType{Params: []module.ValType{}, Results: []module.ValType{}}
	for _, p := range w.Params {
		if vt, ok := module.ParseValType(p); ok {
			ft.Params = append(ft.Params, vt)
		}
	}
	for _, r := range w.Results {
		if vt, ok := module.ParseValType(r); ok {
			ft.Results = append(ft.Results, vt)
		}
	}
	return ft
}

func fromFunctionType(ft *module.FunctionType) *WireFunctionType {
	if ft == nil {
		return nil
	}
	w := &WireFunctionType{Params: []string{}, Results: []string{}}
	for _, p := range ft.Params {
		w.Params = append(w.Params, p.String())
	}
	for _, r := range ft.Results {
		w.Results = append(w.Results, r.String())
	}
	return w
}

func parseExportKind(s string) module.ExportKind {
	switch s {
	case "Table":
		return module.ExportTable
	case "Memory":
		return module.ExportMemory
	case "Global":
		return module.ExportGlobal
	default:
		return module.ExportFunction
	}
}
