package module

import (
	"strings"

	"github.com/dylibso/modsurfer/wasm"
)

// SourceLanguage is the programming language inferred to have produced
// a module, detected from the producers custom section or from
// well-known import/export shapes.
// See https://github.com/WebAssembly/tool-conventions/blob/main/ProducersSection.md
type SourceLanguage uint8

const (
	LangUnknown SourceLanguage = iota
	LangRust
	LangGo
	LangC
	LangCpp
	LangAssemblyScript
	LangSwift
	LangJavaScript
	LangHaskell
	LangZig
)

func (l SourceLanguage) String() string {
	switch l {
	case LangRust:
		return "Rust"
	case LangGo:
		return "Go"
	case LangC:
		return "C"
	case LangCpp:
		return "C++"
	case LangAssemblyScript:
		return "AssemblyScript"
	case LangSwift:
		return "Swift"
	case LangJavaScript:
		return "JavaScript"
	case LangHaskell:
		return "Haskell"
	case LangZig:
		return "Zig"
	default:
		return "Unknown"
	}
}

// ParseSourceLanguage maps a label to a SourceLanguage,
// case-insensitively. Unrecognized labels map to LangUnknown so the
// enum can grow without breaking older checkfiles.
func ParseSourceLanguage(s string) SourceLanguage {
	switch strings.ToLower(s) {
	case "rust":
		return LangRust
	case "go":
		return LangGo
	case "c":
		return LangC
	case "c++", "cpp":
		return LangCpp
	case "assemblyscript":
		return LangAssemblyScript
	case "swift":
		return LangSwift
	case "javascript":
		return LangJavaScript
	case "haskell":
		return LangHaskell
	case "zig":
		return LangZig
	default:
		return LangUnknown
	}
}

// detectLanguage infers the source language of a summarized module.
// The producers section wins when present and recognizable; otherwise
// a fixed ordered heuristic over imports, exports, and data-section
// strings applies.
func detectLanguage(raw *wasm.Module, m *Module) SourceLanguage {
	if cs := raw.Custom("producers"); cs != nil {
		if label, ok := wasm.ProducersLanguage(cs.Data); ok {
			if lang := ParseSourceLanguage(label); lang != LangUnknown {
				return lang
			}
		}
	}

	// AssemblyScript modules export their memory and import an abort
	// handler from the env namespace.
	if m.findExport("memory") != nil && m.findImport("env", "abort") != nil {
		return LangAssemblyScript
	}

	// Go emits a WASI reactor _initialize export, or imports its
	// runtime from the gojs namespace (js/wasm target).
	if m.findExport("_initialize") != nil {
		return LangGo
	}
	for _, imp := range m.Imports {
		if imp.Namespace == "gojs" || imp.Namespace == "go" {
			return LangGo
		}
	}

	// WASI command modules narrow the field but do not identify a
	// single language; rustc leaves recognizable panic machinery in
	// the data section, which is the one member we can still separate.
	if m.UsesWASI() && m.findExport("_start") != nil {
		for _, s := range m.Strings {
			if strings.Contains(s, "rustc") || strings.Contains(s, "rust_begin_unwind") ||
				strings.Contains(s, "called `Option::unwrap()`") {
				return LangRust
			}
		}
	}

	return LangUnknown
}
