package errors_test

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dylibso/modsurfer/errors"
)

func TestErrorString(t *testing.T) {
	err := errors.Malformed(42, "invalid section size")
	s := err.Error()
	if !strings.Contains(s, "[decode]") {
		t.Errorf("expected phase in message, got %q", s)
	}
	if !strings.Contains(s, "offset 42") {
		t.Errorf("expected offset in message, got %q", s)
	}
	if !strings.Contains(s, "invalid section size") {
		t.Errorf("expected detail in message, got %q", s)
	}
}

func TestErrorStringWithPath(t *testing.T) {
	err := errors.Syntax([]string{"validate", "size", "max"}, "not a size", nil)
	s := err.Error()
	if !strings.Contains(s, "validate.size.max") {
		t.Errorf("expected dotted path in message, got %q", s)
	}
}

func TestIsMatchesPhaseAndKind(t *testing.T) {
	err := errors.Unsupported(0, "tag section")
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindUnsupported}) {
		t.Error("expected Is to match same phase and kind")
	}
	if stderrors.Is(err, &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindMalformed}) {
		t.Error("expected Is not to match different kind")
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := errors.Redirect("http://example.com/check.yaml", cause)
	if !stderrors.Is(err, cause) {
		t.Error("expected Is to find wrapped cause")
	}
}

func TestPhasePredicates(t *testing.T) {
	tests := []struct {
		err      error
		isDecode bool
		isLoad   bool
		isConfig bool
	}{
		{errors.Malformed(0, "x"), true, false, false},
		{errors.Unsupported(9, "x"), true, false, false},
		{errors.Syntax(nil, "x", nil), false, true, false},
		{errors.RedirectLoop("u"), false, true, false},
		{errors.Config("bad threshold"), false, false, true},
		{stderrors.New("plain"), false, false, false},
		{fmt.Errorf("wrapped: %w", errors.Malformed(3, "y")), true, false, false},
	}
	for i, tt := range tests {
		if got := errors.IsDecode(tt.err); got != tt.isDecode {
			t.Errorf("case %d: IsDecode = %v, want %v", i, got, tt.isDecode)
		}
		if got := errors.IsLoad(tt.err); got != tt.isLoad {
			t.Errorf("case %d: IsLoad = %v, want %v", i, got, tt.isLoad)
		}
		if got := errors.IsConfig(tt.err); got != tt.isConfig {
			t.Errorf("case %d: IsConfig = %v, want %v", i, got, tt.isConfig)
		}
	}
}

func TestRedirectLoopMessage(t *testing.T) {
	err := errors.RedirectLoop("https://example.com/a.yaml")
	if !strings.Contains(err.Error(), "another url indirection") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
