package wasm_test

import (
	stderrors "errors"
	"testing"

	errs "github.com/dylibso/modsurfer/errors"
	"github.com/dylibso/modsurfer/wasm"
)

func body(code ...byte) *wasm.FuncBody {
	return &wasm.FuncBody{Code: code}
}

func TestCountBranchInstructions(t *testing.T) {
	tests := []struct {
		name string
		body *wasm.FuncBody
		want uint32
	}{
		{
			name: "empty body",
			body: body(0x0B),
			want: 0,
		},
		{
			name: "straight-line arithmetic",
			body: body(0x41, 0x01, 0x41, 0x02, 0x6A, 0x1A, 0x0B), // i32.const, i32.const, i32.add, drop, end
			want: 0,
		},
		{
			name: "if",
			body: body(0x41, 0x01, 0x04, 0x40, 0x0B, 0x0B), // i32.const 1, if (void), end, end
			want: 1,
		},
		{
			name: "loop with br_if",
			body: body(0x03, 0x40, 0x41, 0x00, 0x0D, 0x00, 0x0B, 0x0B), // loop, i32.const, br_if 0, end, end
			want: 2,
		},
		{
			name: "br does not count",
			body: body(0x02, 0x40, 0x0C, 0x00, 0x0B, 0x0B), // block, br 0, end, end
			want: 0,
		},
		{
			name: "br_table counts each entry",
			body: body(0x41, 0x00, 0x0E, 0x03, 0x00, 0x00, 0x00, 0x00, 0x0B), // br_table [0,0,0] default 0
			want: 3,
		},
		{
			name: "call_indirect",
			body: body(0x41, 0x00, 0x11, 0x00, 0x00, 0x0B),
			want: 1,
		},
		{
			name: "select",
			body: body(0x41, 0x01, 0x41, 0x02, 0x41, 0x00, 0x1B, 0x1A, 0x0B),
			want: 1,
		},
		{
			name: "typed select",
			body: body(0x41, 0x01, 0x41, 0x02, 0x41, 0x00, 0x1C, 0x01, 0x7F, 0x1A, 0x0B),
			want: 1,
		},
		{
			name: "plain call does not count",
			body: body(0x10, 0x00, 0x0B),
			want: 0,
		},
		{
			name: "memory access skipped correctly",
			// i32.const 0, i32.load align=2 offset=4 (0x04 would read as if opcode
			// if immediates were not decoded), drop, end
			body: body(0x41, 0x00, 0x28, 0x02, 0x04, 0x1A, 0x0B),
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := wasm.CountBranchInstructions(tt.body)
			if err != nil {
				t.Fatalf("CountBranchInstructions: %v", err)
			}
			if got != tt.want {
				t.Errorf("count = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCountBranchInstructionsUnsupported(t *testing.T) {
	tests := []struct {
		name string
		body *wasm.FuncBody
	}{
		{"GC prefix", body(0xFB, 0x00, 0x00, 0x0B)},
		{"atomic prefix", body(0xFE, 0x10, 0x02, 0x00, 0x0B)},
		{"exception opcode", body(0x06, 0x40, 0x0B)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wasm.CountBranchInstructions(tt.body)
			if !stderrors.Is(err, &errs.Error{Phase: errs.PhaseDecode, Kind: errs.KindUnsupported}) {
				t.Errorf("expected unsupported error, got %v", err)
			}
		})
	}
}

func TestCountBranchInstructionsTruncated(t *testing.T) {
	_, err := wasm.CountBranchInstructions(body(0x0E, 0x05, 0x00)) // br_table cut short
	if !stderrors.Is(err, &errs.Error{Phase: errs.PhaseDecode, Kind: errs.KindMalformed}) {
		t.Errorf("expected malformed error, got %v", err)
	}
}
