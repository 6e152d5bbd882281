package checkfile_test

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/spf13/afero"

	"github.com/dylibso/modsurfer/checkfile"
	errs "github.com/dylibso/modsurfer/errors"
	"github.com/dylibso/modsurfer/module"
)

func memLoader(t *testing.T, files map[string]string) *checkfile.Loader {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		if err := afero.WriteFile(fs, name, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	l := checkfile.NewLoader()
	l.FS = fs
	return l
}

func TestLoadEmptyPolicy(t *testing.T) {
	l := memLoader(t, map[string]string{"check.yaml": "validate: {}\n"})
	p, err := l.Load(context.Background(), "check.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.AllowWASI != nil || p.Imports != nil || p.Exports != nil || p.Size != nil || p.Complexity != nil {
		t.Errorf("expected empty policy, got %+v", p)
	}
	if len(p.UnknownFields) != 0 {
		t.Errorf("unexpected unknown fields %v", p.UnknownFields)
	}
}

func TestLoadBareValidateKey(t *testing.T) {
	l := memLoader(t, map[string]string{"check.yaml": "validate:\n"})
	if _, err := l.Load(context.Background(), "check.yaml"); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadFullPolicy(t *testing.T) {
	const doc = `
validate:
  allow_wasi: false
  imports:
    include:
      - log_message
      - namespace: env
        name: http_get
        params: [I32, I32]
        results: [I32]
    exclude:
      - system_call
    namespace:
      include:
        - env
      exclude:
        - wasi_snapshot_preview1
  exports:
    max: 100
    include:
      - name: run
        params: []
        results: [I32]
    exclude:
      - main
  size:
    max: 4MB
  complexity:
    max_risk: medium
`
	l := memLoader(t, map[string]string{"check.yaml": doc})
	p, err := l.Load(context.Background(), "check.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if p.AllowWASI == nil || *p.AllowWASI {
		t.Error("allow_wasi should be false")
	}

	if len(p.Imports.Include) != 2 {
		t.Fatalf("imports.include = %d entries", len(p.Imports.Include))
	}
	bare := p.Imports.Include[0]
	if bare.Name != "log_message" || bare.Namespace != nil || bare.HasSignature() {
		t.Errorf("bare matcher parsed wrong: %+v", bare)
	}
	structured := p.Imports.Include[1]
	if structured.Namespace == nil || *structured.Namespace != "env" || structured.Name != "http_get" {
		t.Errorf("structured matcher parsed wrong: %+v", structured)
	}
	if structured.Params == nil || !module.ValTypesEqual(*structured.Params, []module.ValType{module.I32, module.I32}) {
		t.Errorf("params parsed wrong: %+v", structured.Params)
	}
	if structured.Results == nil || !module.ValTypesEqual(*structured.Results, []module.ValType{module.I32}) {
		t.Errorf("results parsed wrong: %+v", structured.Results)
	}

	if !reflect.DeepEqual(p.Imports.Namespace.Include, []string{"env"}) {
		t.Errorf("namespace include = %v", p.Imports.Namespace.Include)
	}
	if !reflect.DeepEqual(p.Imports.Namespace.Exclude, []string{"wasi_snapshot_preview1"}) {
		t.Errorf("namespace exclude = %v", p.Imports.Namespace.Exclude)
	}

	if p.Exports.Max == nil || *p.Exports.Max != 100 {
		t.Errorf("exports.max = %v", p.Exports.Max)
	}
	if len(p.Exports.Include) != 1 || p.Exports.Include[0].Name != "run" {
		t.Errorf("exports.include = %+v", p.Exports.Include)
	}
	if inc := p.Exports.Include[0]; inc.Params == nil || len(*inc.Params) != 0 {
		t.Errorf("explicit empty params should be present and empty: %+v", inc.Params)
	}

	if p.Size.Max != "4MB" || p.Size.MaxBytes != 4_000_000 {
		t.Errorf("size = %+v", p.Size)
	}
	if p.Complexity.MaxRisk == nil || *p.Complexity.MaxRisk != module.RiskMedium {
		t.Errorf("complexity = %+v", p.Complexity)
	}
}

func TestLoadSizeUnits(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"4MB", 4_000_000},
		{"512KiB", 524_288},
		{"1GiB", 1 << 30},
		{"1GB", 1_000_000_000},
		{"123", 123},
	}
	for _, tt := range tests {
		got, err := checkfile.ParseByteSize(tt.in)
		if err != nil {
			t.Errorf("ParseByteSize(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLoadUnknownKeysCollected(t *testing.T) {
	const doc = `
validate:
  allow_wasi: true
  frobnicate: 7
  exports:
    max: 5
    shiny: yes
`
	l := memLoader(t, map[string]string{"check.yaml": doc})
	p, err := l.Load(context.Background(), "check.yaml")
	if err != nil {
		t.Fatalf("unknown keys must not abort loading: %v", err)
	}
	want := []string{"validate.frobnicate", "validate.exports.shiny"}
	if !reflect.DeepEqual(p.UnknownFields, want) {
		t.Errorf("unknown fields = %v, want %v", p.UnknownFields, want)
	}
}

func TestLoadMalformedValueIsSyntaxError(t *testing.T) {
	tests := []string{
		"validate:\n  size:\n    max: not-a-size\n",
		"validate:\n  complexity:\n    max_risk: extreme\n",
		"validate:\n  exports:\n    max: -1\n",
		"validate:\n  allow_wasi: maybe\n",
		"validate: [1, 2]\n",
	}
	l := memLoader(t, nil)
	for _, doc := range tests {
		_, err := l.Parse(context.Background(), []byte(doc))
		if !stderrors.Is(err, &errs.Error{Phase: errs.PhaseLoad, Kind: errs.KindSyntax}) {
			t.Errorf("doc %q: expected syntax error, got %v", doc, err)
		}
	}
}

func TestLoadMatcherKeyDisambiguation(t *testing.T) {
	const doc = `
validate:
  imports:
    include:
      - name: read
        namespace: env
      - name: read
        namespace: wasi_snapshot_preview1
      - read
`
	l := memLoader(t, nil)
	p, err := l.Parse(context.Background(), []byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	keys := []string{
		p.Imports.Include[0].Key(),
		p.Imports.Include[1].Key(),
		p.Imports.Include[2].Key(),
	}
	want := []string{"read", "read#2", "read#3"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v, want %v", keys, want)
	}
}

func TestLoadURLIndirection(t *testing.T) {
	remote := "validate:\n  allow_wasi: false\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(remote))
	}))
	defer srv.Close()

	l := memLoader(t, nil)
	p, err := l.Parse(context.Background(), []byte("validate:\n  url: "+srv.URL+"\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.AllowWASI == nil || *p.AllowWASI {
		t.Errorf("expected remote policy, got %+v", p)
	}
}

func TestLoadURLWithSiblingsNotFollowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("fetch should not happen when url has sibling clauses")
	}))
	defer srv.Close()

	l := memLoader(t, nil)
	doc := "validate:\n  url: " + srv.URL + "\n  allow_wasi: true\n"
	p, err := l.Parse(context.Background(), []byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if p.AllowWASI == nil || !*p.AllowWASI {
		t.Errorf("expected local policy, got %+v", p)
	}
}

func TestLoadRedirectLoop(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("validate:\n  url: " + srv.URL + "\n"))
	}))
	defer srv.Close()

	l := memLoader(t, nil)
	_, err := l.Parse(context.Background(), []byte("validate:\n  url: "+srv.URL+"\n"))
	if !stderrors.Is(err, &errs.Error{Phase: errs.PhaseLoad, Kind: errs.KindRedirectLoop}) {
		t.Errorf("expected redirect loop error, got %v", err)
	}
}

func TestLoadURLHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	l := memLoader(t, nil)
	_, err := l.Parse(context.Background(), []byte("validate:\n  url: "+srv.URL+"\n"))
	if !stderrors.Is(err, &errs.Error{Phase: errs.PhaseLoad, Kind: errs.KindRedirect}) {
		t.Errorf("expected redirect error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	l := memLoader(t, nil)
	_, err := l.Load(context.Background(), "nope.yaml")
	if !stderrors.Is(err, &errs.Error{Phase: errs.PhaseLoad, Kind: errs.KindIO}) {
		t.Errorf("expected io error, got %v", err)
	}
}

func TestMatcherMatches(t *testing.T) {
	env := "env"
	sig := []module.ValType{module.I32, module.I32}
	results := []module.ValType{module.I32}
	fn := &module.FunctionType{Params: sig, Results: results}

	tests := []struct {
		name      string
		m         checkfile.Matcher
		namespace string
		fn        *module.FunctionType
		want      bool
	}{
		{"bare name matches any namespace", checkfile.Matcher{Name: "f"}, "whatever", fn, true},
		{"namespace mismatch", checkfile.Matcher{Namespace: &env, Name: "f"}, "other", fn, false},
		{"namespace match", checkfile.Matcher{Namespace: &env, Name: "f"}, "env", fn, true},
		{"params match", checkfile.Matcher{Name: "f", Params: &sig}, "env", fn, true},
		{"params length mismatch", checkfile.Matcher{Name: "f", Params: &results}, "env", fn, false},
		{"signature against non-function", checkfile.Matcher{Name: "f", Params: &sig}, "env", nil, false},
		{"no signature against non-function", checkfile.Matcher{Name: "f"}, "env", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.Matches(tt.namespace, "f", tt.fn); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	env := "env"
	params := []module.ValType{module.I32}
	risk := module.RiskLow
	max := uint64(3)
	allowWASI := false

	cf := &checkfile.Checkfile{Validate: checkfile.Policy{
		AllowWASI: &allowWASI,
		Imports: &checkfile.Imports{
			Include: []checkfile.Matcher{
				{Name: "log"},
				{Namespace: &env, Name: "get", Params: &params, Results: &params},
			},
			Namespace: &checkfile.Namespace{Include: []string{"env"}},
		},
		Exports: &checkfile.Exports{
			Max:     &max,
			Include: []checkfile.Matcher{{Name: "run", Params: &params, Results: &params}},
		},
		Size:       &checkfile.Size{Max: "1.0 MiB", MaxBytes: 1 << 20},
		Complexity: &checkfile.Complexity{MaxRisk: &risk},
	}}
	checkfile.AssignKeys(cf.Validate.Imports.Include)
	checkfile.AssignKeys(cf.Validate.Exports.Include)

	out, err := checkfile.Marshal(cf)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	l := memLoader(t, nil)
	loaded, err := l.Parse(context.Background(), out)
	if err != nil {
		t.Fatalf("Parse(Marshal()): %v\n%s", err, out)
	}
	if !reflect.DeepEqual(loaded, &cf.Validate) {
		t.Errorf("round trip mismatch:\nloaded:  %+v\noriginal: %+v\nyaml:\n%s", loaded, &cf.Validate, out)
	}
}
