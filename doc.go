// Package modsurfer inspects compiled WebAssembly modules and validates
// them against declarative policy documents (checkfiles).
//
// The library decodes a Wasm binary into an immutable module summary,
// loads a YAML checkfile into a validation policy, and evaluates the
// policy against the summary to produce a pass/fail report. Secondary
// operators derive a checkfile from an existing module (generate) and
// compare two modules (diff).
//
// Package layout:
//
//   - wasm:       binary format decoder (sections, LEB128, opcodes)
//   - module:     module summary model and Parse entry point
//   - checkfile:  checkfile loading, matchers, serialization
//   - validation: policy evaluation, report, generate, diff
//   - api:        HTTP catalog client
//   - errors:     structured error taxonomy
//
// The engine never executes WebAssembly code. All analysis is static and
// derived purely from the module bytes; re-decoding identical bytes
// yields a structurally identical summary.
package modsurfer
