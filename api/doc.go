// Package api is the HTTP client for a modsurfer catalog server:
// create, get, list, search, delete, yank, and audit over stored
// module summaries. The core analysis engine never depends on it; the
// CLI wires the two together.
package api
