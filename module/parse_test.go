package module_test

import (
	"crypto/sha256"
	"encoding/hex"
	"reflect"
	"testing"

	"github.com/dylibso/modsurfer/module"
	"github.com/dylibso/modsurfer/wasm"
)

// buildModule assembles a small but realistic fixture: a WASI-style
// module importing fd_write and exporting _start plus its memory.
func buildModule(custom ...wasm.CustomSection) []byte {
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
			{},
		},
		Imports: []wasm.Import{
			{Module: "wasi_snapshot_preview1", Name: "fd_write", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
		},
		Funcs:    []uint32{1},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 2}}},
		Exports: []wasm.Export{
			{Name: "_start", Kind: wasm.KindFunc, Idx: 1},
			{Name: "memory", Kind: wasm.KindMemory, Idx: 0},
		},
		Code: []wasm.FuncBody{
			// if (void) end; select; drop
			{Code: []byte{0x41, 0x01, 0x04, 0x40, 0x0B, 0x41, 0x01, 0x41, 0x02, 0x41, 0x00, 0x1B, 0x1A, 0x0B}},
		},
		Data: []wasm.DataSegment{
			{Flags: 0, Init: []byte("hello from wasm\x00\x01\x02tmp")},
		},
		CustomSections: custom,
	}
	return m.Encode()
}

func TestParseHashAndSize(t *testing.T) {
	data := buildModule()
	m, err := module.Parse(data, module.DefaultThresholds())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sum := sha256.Sum256(data)
	if m.Hash != hex.EncodeToString(sum[:]) {
		t.Errorf("hash = %s, want sha256 of input", m.Hash)
	}
	if m.Size != uint64(len(data)) {
		t.Errorf("size = %d, want %d", m.Size, len(data))
	}
}

func TestParseImportsAndExports(t *testing.T) {
	m, err := module.Parse(buildModule(), module.DefaultThresholds())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(m.Imports) != 1 {
		t.Fatalf("imports = %d, want 1", len(m.Imports))
	}
	imp := m.Imports[0]
	if imp.Namespace != "wasi_snapshot_preview1" || imp.Name != "fd_write" {
		t.Errorf("unexpected import %s.%s", imp.Namespace, imp.Name)
	}
	if imp.Func == nil || len(imp.Func.Params) != 4 || len(imp.Func.Results) != 1 {
		t.Errorf("unexpected import signature %+v", imp.Func)
	}

	if len(m.Exports) != 2 {
		t.Fatalf("exports = %d, want 2", len(m.Exports))
	}
	if m.Exports[0].Name != "_start" || m.Exports[0].Kind != module.ExportFunction {
		t.Errorf("unexpected export %+v", m.Exports[0])
	}
	if m.Exports[0].Func == nil {
		t.Error("function export missing signature")
	}
	if m.Exports[1].Kind != module.ExportMemory || m.Exports[1].Func != nil {
		t.Errorf("memory export should have no signature: %+v", m.Exports[1])
	}

	if !m.UsesWASI() {
		t.Error("expected UsesWASI")
	}
	if got := m.ImportNamespaces(); !reflect.DeepEqual(got, []string{"wasi_snapshot_preview1"}) {
		t.Errorf("namespaces = %v", got)
	}
}

func TestParseComplexity(t *testing.T) {
	m, err := module.Parse(buildModule(), module.DefaultThresholds())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// One body with one if and one select: score (1+2)/1 = 3.
	if m.Complexity.Score != 3 {
		t.Errorf("score = %d, want 3", m.Complexity.Score)
	}
	if m.Complexity.Risk != module.RiskLow {
		t.Errorf("risk = %s, want low", m.Complexity.Risk)
	}
}

func TestParseNoFunctionsMeansLowRisk(t *testing.T) {
	data := (&wasm.Module{
		Types: []wasm.FuncType{{}},
		Imports: []wasm.Import{
			{Module: "env", Name: "tick", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
		},
	}).Encode()
	m, err := module.Parse(data, module.DefaultThresholds())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Complexity.Score != 0 || m.Complexity.Risk != module.RiskLow {
		t.Errorf("complexity = %+v, want {0 low}", m.Complexity)
	}
}

func TestParseStrings(t *testing.T) {
	m, err := module.Parse(buildModule(), module.DefaultThresholds())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	found := false
	for _, s := range m.Strings {
		if s == "hello from wasm" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected data string, got %v", m.Strings)
	}
}

func TestParseDeterministic(t *testing.T) {
	data := buildModule()
	a, err := module.Parse(data, module.DefaultThresholds())
	if err != nil {
		t.Fatal(err)
	}
	b, err := module.Parse(data, module.DefaultThresholds())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("re-decoding identical bytes produced different summaries")
	}
}

func TestParseLanguageFromProducers(t *testing.T) {
	data := buildModule(wasm.ProducersSection("Rust", "1.74.0"))
	m, err := module.Parse(data, module.DefaultThresholds())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.SourceLanguage != module.LangRust {
		t.Errorf("language = %s, want Rust", m.SourceLanguage)
	}
}

func TestParseLanguageProducersCaseInsensitive(t *testing.T) {
	data := buildModule(wasm.ProducersSection("c++", "clang-17"))
	m, err := module.Parse(data, module.DefaultThresholds())
	if err != nil {
		t.Fatal(err)
	}
	if m.SourceLanguage != module.LangCpp {
		t.Errorf("language = %s, want C++", m.SourceLanguage)
	}
}

func TestParseLanguageAssemblyScriptHeuristic(t *testing.T) {
	data := (&wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValI32}},
		},
		Imports: []wasm.Import{
			{Module: "env", Name: "abort", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
		},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Exports: []wasm.Export{
			{Name: "memory", Kind: wasm.KindMemory, Idx: 0},
		},
	}).Encode()
	m, err := module.Parse(data, module.DefaultThresholds())
	if err != nil {
		t.Fatal(err)
	}
	if m.SourceLanguage != module.LangAssemblyScript {
		t.Errorf("language = %s, want AssemblyScript", m.SourceLanguage)
	}
}

func TestParseLanguageGoHeuristic(t *testing.T) {
	data := (&wasm.Module{
		Types: []wasm.FuncType{{}},
		Funcs: []uint32{0},
		Exports: []wasm.Export{
			{Name: "_initialize", Kind: wasm.KindFunc, Idx: 0},
		},
		Code: []wasm.FuncBody{{}},
	}).Encode()
	m, err := module.Parse(data, module.DefaultThresholds())
	if err != nil {
		t.Fatal(err)
	}
	if m.SourceLanguage != module.LangGo {
		t.Errorf("language = %s, want Go", m.SourceLanguage)
	}
}

func TestParseLanguageUnknown(t *testing.T) {
	m, err := module.Parse(buildModule(), module.DefaultThresholds())
	if err != nil {
		t.Fatal(err)
	}
	if m.SourceLanguage != module.LangUnknown {
		t.Errorf("language = %s, want Unknown", m.SourceLanguage)
	}
}

func TestParseUnknownProducersLabelIsUnknown(t *testing.T) {
	data := buildModule(wasm.ProducersSection("Fortran", "13"))
	m, err := module.Parse(data, module.DefaultThresholds())
	if err != nil {
		t.Fatal(err)
	}
	if m.SourceLanguage != module.LangUnknown {
		t.Errorf("language = %s, want Unknown for unrecognized label", m.SourceLanguage)
	}
}
