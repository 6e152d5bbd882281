// Package validation evaluates checkfile policies against module
// summaries.
//
// Validate walks every clause present in a policy and emits one
// outcome per clause element, sorted by property path. The package
// also derives policies from modules (GenerateCheckfile) and compares
// two modules structurally (Diff); both operate on the same summary
// model and share the validator's comparison semantics.
package validation
