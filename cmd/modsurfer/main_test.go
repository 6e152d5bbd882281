package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/dylibso/modsurfer/wasm"
)

func testState(t *testing.T, files map[string][]byte) (*globalState, *bytes.Buffer) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		if err := afero.WriteFile(fs, name, content, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	var stdout bytes.Buffer
	return &globalState{
		fs:     fs,
		stdout: &stdout,
		stderr: &bytes.Buffer{},
		logger: zap.NewNop(),
		host:   "http://localhost:0",
	}, &stdout
}

func testWasm() []byte {
	return (&wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
			{},
		},
		Imports: []wasm.Import{
			{Module: "wasi_snapshot_preview1", Name: "fd_write", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
		},
		Funcs:    []uint32{1},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Exports: []wasm.Export{
			{Name: "_start", Kind: wasm.KindFunc, Idx: 1},
			{Name: "memory", Kind: wasm.KindMemory, Idx: 0},
		},
		Code: []wasm.FuncBody{{}},
	}).Encode()
}

func TestValidateExitZeroOnPass(t *testing.T) {
	gs, _ := testState(t, map[string][]byte{
		"app.wasm": testWasm(),
		"mod.yaml": []byte("validate:\n  allow_wasi: true\n"),
	})
	if code := runWith(gs, []string{"validate", "-p", "app.wasm", "-c", "mod.yaml"}); code != exitOK {
		t.Errorf("exit = %d, want %d", code, exitOK)
	}
}

func TestValidateExitOneOnFailure(t *testing.T) {
	gs, stdout := testState(t, map[string][]byte{
		"app.wasm": testWasm(),
		"mod.yaml": []byte("validate:\n  allow_wasi: false\n"),
	})
	if code := runWith(gs, []string{"validate", "-p", "app.wasm", "-c", "mod.yaml"}); code != exitFailures {
		t.Errorf("exit = %d, want %d", code, exitFailures)
	}
	if !strings.Contains(stdout.String(), "allow_wasi") {
		t.Errorf("report not rendered:\n%s", stdout.String())
	}
}

func TestValidateExitTwoOnBadModule(t *testing.T) {
	gs, _ := testState(t, map[string][]byte{
		"app.wasm": []byte("not wasm at all"),
		"mod.yaml": []byte("validate: {}\n"),
	})
	if code := runWith(gs, []string{"validate", "-p", "app.wasm", "-c", "mod.yaml"}); code != exitBadInput {
		t.Errorf("exit = %d, want %d", code, exitBadInput)
	}
}

func TestValidateExitTwoOnBadCheckfile(t *testing.T) {
	gs, _ := testState(t, map[string][]byte{
		"app.wasm": testWasm(),
		"mod.yaml": []byte("validate:\n  size:\n    max: banana\n"),
	})
	if code := runWith(gs, []string{"validate", "-p", "app.wasm", "-c", "mod.yaml"}); code != exitBadInput {
		t.Errorf("exit = %d, want %d", code, exitBadInput)
	}
}

func TestValidateExitThreeOnMissingModule(t *testing.T) {
	gs, _ := testState(t, map[string][]byte{
		"mod.yaml": []byte("validate: {}\n"),
	})
	if code := runWith(gs, []string{"validate", "-p", "gone.wasm", "-c", "mod.yaml"}); code != exitConfigOrIO {
		t.Errorf("exit = %d, want %d", code, exitConfigOrIO)
	}
}

func TestValidateExitThreeOnBadThresholds(t *testing.T) {
	t.Setenv("MODSURFER_RISK_LOW", "50")
	t.Setenv("MODSURFER_RISK_MEDIUM", "10")
	gs, _ := testState(t, map[string][]byte{
		"app.wasm": testWasm(),
		"mod.yaml": []byte("validate: {}\n"),
	})
	if code := runWith(gs, []string{"validate", "-p", "app.wasm", "-c", "mod.yaml"}); code != exitConfigOrIO {
		t.Errorf("exit = %d, want %d", code, exitConfigOrIO)
	}
}

func TestValidateJSONOutput(t *testing.T) {
	gs, stdout := testState(t, map[string][]byte{
		"app.wasm": testWasm(),
		"mod.yaml": []byte("validate:\n  allow_wasi: false\n"),
	})
	code := runWith(gs, []string{"validate", "-p", "app.wasm", "-c", "mod.yaml", "--output-format", "json"})
	if code != exitFailures {
		t.Fatalf("exit = %d, want %d", code, exitFailures)
	}
	var outcomes []map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &outcomes); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout.String())
	}
	if len(outcomes) != 1 || outcomes[0]["property"] != "allow_wasi" {
		t.Errorf("unexpected outcomes %v", outcomes)
	}
}

func TestGenerateThenValidateViaCLI(t *testing.T) {
	gs, _ := testState(t, map[string][]byte{"app.wasm": testWasm()})
	if code := runWith(gs, []string{"generate", "-p", "app.wasm", "-o", "gen.yaml"}); code != exitOK {
		t.Fatalf("generate exit = %d", code)
	}
	if code := runWith(gs, []string{"validate", "-p", "app.wasm", "-c", "gen.yaml"}); code != exitOK {
		data, _ := afero.ReadFile(gs.fs, "gen.yaml")
		t.Errorf("validate exit = %d, want 0; checkfile:\n%s", code, data)
	}
}

func TestGenerateToStdout(t *testing.T) {
	gs, stdout := testState(t, map[string][]byte{"app.wasm": testWasm()})
	if code := runWith(gs, []string{"generate", "-p", "app.wasm", "-o", "-"}); code != exitOK {
		t.Fatalf("exit = %d", code)
	}
	out := stdout.String()
	for _, want := range []string{"validate:", "allow_wasi: true", "fd_write", "exports:", "max: 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("generated checkfile missing %q:\n%s", want, out)
		}
	}
}

func TestDiffLocalFiles(t *testing.T) {
	other := (&wasm.Module{
		Types: []wasm.FuncType{{}},
		Funcs: []uint32{0},
		Exports: []wasm.Export{
			{Name: "_start", Kind: wasm.KindFunc, Idx: 0},
		},
		Code: []wasm.FuncBody{{}},
	}).Encode()

	gs, stdout := testState(t, map[string][]byte{
		"a.wasm": testWasm(),
		"b.wasm": other,
	})
	if code := runWith(gs, []string{"diff", "a.wasm", "b.wasm"}); code != exitOK {
		t.Fatalf("exit = %d", code)
	}
	out := stdout.String()
	if !strings.Contains(out, "- import wasi_snapshot_preview1.fd_write") {
		t.Errorf("diff output missing removed import:\n%s", out)
	}
	if !strings.Contains(out, "- export memory") {
		t.Errorf("diff output missing removed export:\n%s", out)
	}
}

func TestInspect(t *testing.T) {
	gs, stdout := testState(t, map[string][]byte{"app.wasm": testWasm()})
	if code := runWith(gs, []string{"inspect", "-p", "app.wasm"}); code != exitOK {
		t.Fatalf("exit = %d", code)
	}
	out := stdout.String()
	for _, want := range []string{"Hash", "wasi_snapshot_preview1.fd_write", "_start", "memory (memory)"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output missing %q:\n%s", want, out)
		}
	}
}

func TestInspectJSON(t *testing.T) {
	gs, stdout := testState(t, map[string][]byte{"app.wasm": testWasm()})
	if code := runWith(gs, []string{"inspect", "-p", "app.wasm", "--output-format", "json"}); code != exitOK {
		t.Fatalf("exit = %d", code)
	}
	var summary map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &summary); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if summary["imports"] != float64(1) || summary["exports"] != float64(2) {
		t.Errorf("unexpected summary %v", summary)
	}
}
