package checkfile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	errs "github.com/dylibso/modsurfer/errors"
	"github.com/dylibso/modsurfer/module"
)

// fetchTimeout bounds the single HTTP request a url indirection makes.
const fetchTimeout = 30 * time.Second

// maxHTTPRedirects bounds how many HTTP-level redirects the fetch follows.
const maxHTTPRedirects = 1

// Loader reads checkfiles from a filesystem and resolves at most one
// url indirection over HTTP.
type Loader struct {
	FS     afero.Fs
	Client *http.Client
}

// NewLoader returns a Loader reading from the OS filesystem with a
// bounded-timeout HTTP client.
func NewLoader() *Loader {
	return &Loader{
		FS: afero.NewOsFs(),
		Client: &http.Client{
			Timeout: fetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxHTTPRedirects {
					return fmt.Errorf("stopped after %d redirects", maxHTTPRedirects)
				}
				return nil
			},
		},
	}
}

// Load reads the checkfile at path and returns its policy, following a
// url indirection at most once.
func (l *Loader) Load(ctx context.Context, path string) (*Policy, error) {
	data, err := afero.ReadFile(l.FS, path)
	if err != nil {
		return nil, errs.IO(errs.PhaseLoad, "read checkfile "+path, err)
	}
	return l.Parse(ctx, data)
}

// Parse parses checkfile bytes already in memory, following a url
// indirection at most once. A fetched document containing another url
// indirection is a redirect loop.
func (l *Loader) Parse(ctx context.Context, data []byte) (*Policy, error) {
	policy, err := parseDocument(data)
	if err != nil {
		return nil, err
	}

	if policy.URL == "" || policy.hasClauses() {
		return policy, nil
	}

	fetched, err := l.fetch(ctx, policy.URL)
	if err != nil {
		return nil, err
	}
	remote, err := parseDocument(fetched)
	if err != nil {
		return nil, err
	}
	if remote.URL != "" && !remote.hasClauses() {
		return nil, errs.RedirectLoop(policy.URL)
	}
	return remote, nil
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Redirect(url, err)
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, errs.Redirect(url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.Redirect(url, fmt.Errorf("unexpected status %s", resp.Status))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Redirect(url, err)
	}
	return body, nil
}

// parseDocument decodes one YAML checkfile document. Unknown keys are
// collected onto the policy rather than rejected; malformed values are
// syntax errors.
func parseDocument(data []byte) (*Policy, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errs.Syntax(nil, "invalid YAML", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, errs.Syntax(nil, "empty checkfile", nil)
	}

	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, errs.Syntax(nil, "checkfile must be a mapping", nil)
	}

	p := &Policy{}
	var validateNode *yaml.Node
	forEachKey(doc, func(key string, value *yaml.Node) {
		if key == "validate" {
			validateNode = value
		} else {
			p.UnknownFields = append(p.UnknownFields, key)
		}
	})
	if validateNode == nil {
		return nil, errs.Syntax(nil, "missing top-level validate key", nil)
	}
	if validateNode.Kind != yaml.MappingNode {
		// `validate:` with no body decodes as a null scalar.
		if validateNode.Tag == "!!null" {
			p.finalize()
			return p, nil
		}
		return nil, errs.Syntax([]string{"validate"}, "must be a mapping", nil)
	}

	var err error
	forEachKey(validateNode, func(key string, value *yaml.Node) {
		if err != nil {
			return
		}
		switch key {
		case "url":
			err = decodeScalar(value, &p.URL, "validate", "url")
		case "allow_wasi":
			var b bool
			if err = decodeScalar(value, &b, "validate", "allow_wasi"); err == nil {
				p.AllowWASI = &b
			}
		case "imports":
			p.Imports, err = parseImports(value, p)
		case "exports":
			p.Exports, err = parseExports(value, p)
		case "size":
			p.Size, err = parseSize(value, p)
		case "complexity":
			p.Complexity, err = parseComplexity(value, p)
		default:
			p.UnknownFields = append(p.UnknownFields, "validate."+key)
		}
	})
	if err != nil {
		return nil, err
	}

	p.finalize()
	return p, nil
}

// forEachKey visits a mapping node's entries in document order.
func forEachKey(node *yaml.Node, fn func(key string, value *yaml.Node)) {
	for i := 0; i+1 < len(node.Content); i += 2 {
		fn(node.Content[i].Value, node.Content[i+1])
	}
}

func decodeScalar[T any](node *yaml.Node, out *T, path ...string) error {
	if err := node.Decode(out); err != nil {
		return errs.Syntax(path, "invalid value", err)
	}
	return nil
}

func parseImports(node *yaml.Node, p *Policy) (*Imports, error) {
	if node.Kind != yaml.MappingNode {
		return nil, errs.Syntax([]string{"validate", "imports"}, "must be a mapping", nil)
	}
	imports := &Imports{}
	var err error
	forEachKey(node, func(key string, value *yaml.Node) {
		if err != nil {
			return
		}
		switch key {
		case "include":
			imports.Include, err = parseMatchers(value, p, "validate.imports.include")
		case "exclude":
			imports.Exclude, err = parseMatchers(value, p, "validate.imports.exclude")
		case "namespace":
			imports.Namespace, err = parseNamespace(value, p)
		default:
			p.UnknownFields = append(p.UnknownFields, "validate.imports."+key)
		}
	})
	if err != nil {
		return nil, err
	}
	return imports, nil
}

func parseNamespace(node *yaml.Node, p *Policy) (*Namespace, error) {
	if node.Kind != yaml.MappingNode {
		return nil, errs.Syntax([]string{"validate", "imports", "namespace"}, "must be a mapping", nil)
	}
	ns := &Namespace{}
	var err error
	forEachKey(node, func(key string, value *yaml.Node) {
		if err != nil {
			return
		}
		switch key {
		case "include":
			err = decodeScalar(value, &ns.Include, "validate", "imports", "namespace", "include")
		case "exclude":
			err = decodeScalar(value, &ns.Exclude, "validate", "imports", "namespace", "exclude")
		default:
			p.UnknownFields = append(p.UnknownFields, "validate.imports.namespace."+key)
		}
	})
	if err != nil {
		return nil, err
	}
	return ns, nil
}

func parseExports(node *yaml.Node, p *Policy) (*Exports, error) {
	if node.Kind != yaml.MappingNode {
		return nil, errs.Syntax([]string{"validate", "exports"}, "must be a mapping", nil)
	}
	exports := &Exports{}
	var err error
	forEachKey(node, func(key string, value *yaml.Node) {
		if err != nil {
			return
		}
		switch key {
		case "max":
			var max uint64
			if err = decodeScalar(value, &max, "validate", "exports", "max"); err == nil {
				exports.Max = &max
			}
		case "include":
			exports.Include, err = parseMatchers(value, p, "validate.exports.include")
		case "exclude":
			exports.Exclude, err = parseMatchers(value, p, "validate.exports.exclude")
		default:
			p.UnknownFields = append(p.UnknownFields, "validate.exports."+key)
		}
	})
	if err != nil {
		return nil, err
	}
	return exports, nil
}

func parseSize(node *yaml.Node, p *Policy) (*Size, error) {
	if node.Kind != yaml.MappingNode {
		return nil, errs.Syntax([]string{"validate", "size"}, "must be a mapping", nil)
	}
	size := &Size{}
	var err error
	forEachKey(node, func(key string, value *yaml.Node) {
		if err != nil {
			return
		}
		switch key {
		case "max":
			if err = decodeScalar(value, &size.Max, "validate", "size", "max"); err != nil {
				return
			}
			size.MaxBytes, err = ParseByteSize(size.Max)
			if err != nil {
				err = errs.Syntax([]string{"validate", "size", "max"}, "invalid size "+strconv.Quote(size.Max), err)
			}
		default:
			p.UnknownFields = append(p.UnknownFields, "validate.size."+key)
		}
	})
	if err != nil {
		return nil, err
	}
	return size, nil
}

func parseComplexity(node *yaml.Node, p *Policy) (*Complexity, error) {
	if node.Kind != yaml.MappingNode {
		return nil, errs.Syntax([]string{"validate", "complexity"}, "must be a mapping", nil)
	}
	complexity := &Complexity{}
	var err error
	forEachKey(node, func(key string, value *yaml.Node) {
		if err != nil {
			return
		}
		switch key {
		case "max_risk":
			var label string
			if err = decodeScalar(value, &label, "validate", "complexity", "max_risk"); err != nil {
				return
			}
			risk, ok := module.ParseRisk(label)
			if !ok {
				err = errs.Syntax([]string{"validate", "complexity", "max_risk"},
					"must be one of low, medium, high", nil)
				return
			}
			complexity.MaxRisk = &risk
		default:
			p.UnknownFields = append(p.UnknownFields, "validate.complexity."+key)
		}
	})
	if err != nil {
		return nil, err
	}
	return complexity, nil
}

func parseMatchers(node *yaml.Node, p *Policy, path string) ([]Matcher, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, errs.Syntax([]string{path}, "must be a list", nil)
	}
	matchers := make([]Matcher, 0, len(node.Content))
	for i, entry := range node.Content {
		m, err := parseMatcher(entry, p, fmt.Sprintf("%s.%d", path, i))
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}
	return matchers, nil
}

// parseMatcher accepts either a bare name string (equivalent to
// {name: S}) or a structured mapping with any of namespace, name,
// params, results.
func parseMatcher(node *yaml.Node, p *Policy, path string) (Matcher, error) {
	if node.Kind == yaml.ScalarNode {
		var name string
		if err := node.Decode(&name); err != nil {
			return Matcher{}, errs.Syntax([]string{path}, "invalid matcher", err)
		}
		return Matcher{Name: name}, nil
	}
	if node.Kind != yaml.MappingNode {
		return Matcher{}, errs.Syntax([]string{path}, "matcher must be a name or a mapping", nil)
	}

	var m Matcher
	var err error
	forEachKey(node, func(key string, value *yaml.Node) {
		if err != nil {
			return
		}
		switch key {
		case "namespace":
			var ns string
			if err = decodeScalar(value, &ns, path, "namespace"); err == nil {
				m.Namespace = &ns
			}
		case "name":
			err = decodeScalar(value, &m.Name, path, "name")
		case "params":
			var types []module.ValType
			if err = decodeScalar(value, &types, path, "params"); err == nil {
				m.Params = &types
			}
		case "results":
			var types []module.ValType
			if err = decodeScalar(value, &types, path, "results"); err == nil {
				m.Results = &types
			}
		default:
			p.UnknownFields = append(p.UnknownFields, path+"."+key)
		}
	})
	if err != nil {
		return Matcher{}, err
	}
	return m, nil
}

// ParseByteSize parses a size with an optional unit suffix. Suffixes
// with an i (KiB, MiB, GiB) are base-1024; KB, MB, GB are base-1000;
// a bare number is bytes.
func ParseByteSize(s string) (uint64, error) {
	return humanize.ParseBytes(s)
}
