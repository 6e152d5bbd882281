package module

import (
	"crypto/sha256"
	"encoding/hex"

	errs "github.com/dylibso/modsurfer/errors"
	"github.com/dylibso/modsurfer/wasm"
)

// Parse decodes a WebAssembly binary into an immutable module summary.
// The summary is derived purely from data; parsing identical bytes
// yields a structurally identical summary. The decoder copies what it
// keeps, so the caller may drop data after Parse returns.
func Parse(data []byte, t Thresholds) (*Module, error) {
	raw, err := wasm.ParseModule(data)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	m := &Module{
		Hash:    hex.EncodeToString(sum[:]),
		Size:    uint64(len(data)),
		Globals: len(raw.Globals),
		Start:   raw.Start,
	}

	for _, mem := range raw.Memories {
		m.Memories = append(m.Memories, Limits{Min: mem.Limits.Min, Max: mem.Limits.Max})
	}
	for _, imp := range raw.Imports {
		if imp.Desc.Kind == wasm.KindMemory {
			m.Memories = append(m.Memories, Limits{Min: imp.Desc.Memory.Limits.Min, Max: imp.Desc.Memory.Limits.Max})
		}
	}
	for _, tbl := range raw.Tables {
		m.Tables = append(m.Tables, Limits{Min: tbl.Limits.Min, Max: tbl.Limits.Max})
	}
	for _, imp := range raw.Imports {
		if imp.Desc.Kind == wasm.KindTable {
			m.Tables = append(m.Tables, Limits{Min: imp.Desc.Table.Limits.Min, Max: imp.Desc.Table.Limits.Max})
		}
	}

	m.Imports = make([]Import, 0, len(raw.Imports))
	for _, imp := range raw.Imports {
		rec := Import{Namespace: imp.Module, Name: imp.Name}
		if imp.Desc.Kind == wasm.KindFunc {
			if int(imp.Desc.TypeIdx) >= len(raw.Types) {
				return nil, errs.Malformed(0, "import %s.%s references type %d of %d",
					imp.Module, imp.Name, imp.Desc.TypeIdx, len(raw.Types))
			}
			ft := convertFuncType(raw.Types[imp.Desc.TypeIdx])
			rec.Func = &ft
		}
		m.Imports = append(m.Imports, rec)
	}

	m.FunctionTypes = make(map[uint32]FunctionType)
	numFuncs := uint32(raw.NumImportedFuncs() + len(raw.Funcs))
	for idx := uint32(0); idx < numFuncs; idx++ {
		ft := raw.GetFuncType(idx)
		if ft == nil {
			return nil, errs.Malformed(0, "function %d references a type out of range", idx)
		}
		m.FunctionTypes[idx] = convertFuncType(*ft)
	}

	m.Exports = make([]Export, 0, len(raw.Exports))
	for _, exp := range raw.Exports {
		rec := Export{Name: exp.Name, Kind: convertExportKind(exp.Kind)}
		if exp.Kind == wasm.KindFunc {
			ft, ok := m.FunctionTypes[exp.Idx]
			if !ok {
				return nil, errs.Malformed(0, "export %q references function %d of %d",
					exp.Name, exp.Idx, numFuncs)
			}
			rec.Func = &ft
		}
		m.Exports = append(m.Exports, rec)
	}

	m.Complexity, err = analyzeComplexity(raw, t)
	if err != nil {
		return nil, err
	}
	m.Strings = extractStrings(raw)
	m.SourceLanguage = detectLanguage(raw, m)

	return m, nil
}

func convertFuncType(ft wasm.FuncType) FunctionType {
	out := FunctionType{
		Params:  make([]ValType, 0, len(ft.Params)),
		Results: make([]ValType, 0, len(ft.Results)),
	}
	for _, p := range ft.Params {
		out.Params = append(out.Params, convertValType(p))
	}
	for _, r := range ft.Results {
		out.Results = append(out.Results, convertValType(r))
	}
	return out
}

func convertValType(v wasm.ValType) ValType {
	switch v {
	case wasm.ValI32:
		return I32
	case wasm.ValI64:
		return I64
	case wasm.ValF32:
		return F32
	case wasm.ValF64:
		return F64
	case wasm.ValV128:
		return V128
	case wasm.ValFuncRef:
		return FuncRef
	default:
		return ExternRef
	}
}

func convertExportKind(k byte) ExportKind {
	switch k {
	case wasm.KindFunc:
		return ExportFunction
	case wasm.KindTable:
		return ExportTable
	case wasm.KindMemory:
		return ExportMemory
	default:
		return ExportGlobal
	}
}
