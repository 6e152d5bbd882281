// Package module builds immutable summaries of WebAssembly binaries.
//
// Parse hashes the input, decodes it with the wasm package, and
// derives everything the validator needs: import and export records in
// section order, function signatures, memory/table limits, the
// inferred source language, data-section strings, and the cyclomatic
// complexity classification.
package module
