// Package wasm decodes the WebAssembly binary format into a raw
// section-level model.
//
// The decoder accepts core wasm plus the widely deployed extensions
// needed to cover real-world modules: reference types, multi-value,
// SIMD (v128), and bulk memory; function bodies may also use the
// tail-call instructions and multi-memory memory arguments. Anything
// beyond that set (GC, threads, exception handling) is rejected with an
// unsupported error rather than skipped, so a summary never silently
// misrepresents a module.
//
// Custom sections are preserved verbatim; the higher-level module
// package interprets the producers section from them. Function bodies
// are kept as raw bytecode with their absolute offsets so the
// complexity analysis can report precise error positions.
package wasm
