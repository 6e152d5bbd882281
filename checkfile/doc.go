// Package checkfile loads and serializes validation policy documents.
//
// A checkfile is a YAML document with a single top-level validate key.
// The loader is strict about values but lenient about keys: malformed
// values are syntax errors, while unrecognized keys are collected onto
// the policy for the validator to surface as a warning outcome.
//
// A checkfile whose validate block contains only a url key is an
// indirection: the loader fetches the referenced document over HTTP
// (one bounded request, at most one HTTP redirect) and loads that
// instead. Indirections do not nest.
package checkfile
