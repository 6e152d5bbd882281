// Package errors defines the structured error taxonomy shared by the
// decoding, loading, and configuration phases.
//
// Errors carry a phase (where processing failed), a kind (how it
// failed), and for decode errors the byte offset in the module at which
// decoding stopped. The CLI maps phases onto process exit codes:
// decode and load failures exit 2, configuration and I/O failures
// exit 3.
package errors
