package wasm

import (
	errs "github.com/dylibso/modsurfer/errors"
	"github.com/dylibso/modsurfer/wasm/internal/binary"
)

// CountBranchInstructions walks a function body's bytecode and counts
// the instructions that introduce a decision point: if, br_if,
// br_table (each table entry counts as one), loop, call_indirect, and
// select. The walk decodes every immediate so that counting cannot be
// confused by operand bytes.
func CountBranchInstructions(body *FuncBody) (uint32, error) {
	r := binary.NewReader(body.Code, body.CodeOffset)
	var count uint32

	for r.Len() > 0 {
		op, err := r.ReadByte()
		if err != nil {
			return 0, malformed(r, "opcode", err)
		}

		switch {
		case op == OpBlock:
			if _, err := r.ReadS64(); err != nil { // blocktype (s33)
				return 0, malformed(r, "block type", err)
			}

		case op == OpLoop, op == OpIf:
			count++
			if _, err := r.ReadS64(); err != nil {
				return 0, malformed(r, "block type", err)
			}

		case op == OpBrIf:
			count++
			if _, err := r.ReadU32(); err != nil {
				return 0, malformed(r, "branch label", err)
			}

		case op == OpBr:
			if _, err := r.ReadU32(); err != nil {
				return 0, malformed(r, "branch label", err)
			}

		case op == OpBrTable:
			labels, err := r.ReadU32()
			if err != nil {
				return 0, malformed(r, "br_table label count", err)
			}
			count += labels
			for i := uint32(0); i <= labels; i++ { // labels plus default
				if _, err := r.ReadU32(); err != nil {
					return 0, malformed(r, "br_table label", err)
				}
			}

		case op == OpCallIndirect, op == OpReturnCallIndirect:
			count++
			if _, err := r.ReadU32(); err != nil {
				return 0, malformed(r, "call_indirect type index", err)
			}
			if _, err := r.ReadU32(); err != nil {
				return 0, malformed(r, "call_indirect table index", err)
			}

		case op == OpSelect:
			count++

		case op == OpSelectType:
			count++
			n, err := r.ReadU32()
			if err != nil {
				return 0, malformed(r, "select type count", err)
			}
			for i := uint32(0); i < n; i++ {
				if _, err := readValType(r, "select type"); err != nil {
					return 0, err
				}
			}

		case op == OpCall, op == OpReturnCall, op == OpRefFunc,
			op == OpLocalGet, op == OpLocalSet, op == OpLocalTee,
			op == OpGlobalGet, op == OpGlobalSet,
			op == OpTableGet, op == OpTableSet,
			op == OpMemorySize, op == OpMemoryGrow:
			if _, err := r.ReadU32(); err != nil {
				return 0, malformed(r, "instruction operand", err)
			}

		case op >= OpI32Load && op <= OpI64Store32:
			if err := skipMemArg(r); err != nil {
				return 0, err
			}

		case op == OpI32Const:
			if _, err := r.ReadS32(); err != nil {
				return 0, malformed(r, "i32.const", err)
			}
		case op == OpI64Const:
			if _, err := r.ReadS64(); err != nil {
				return 0, malformed(r, "i64.const", err)
			}
		case op == OpF32Const:
			if err := r.Skip(4); err != nil {
				return 0, malformed(r, "f32.const", err)
			}
		case op == OpF64Const:
			if err := r.Skip(8); err != nil {
				return 0, malformed(r, "f64.const", err)
			}

		case op == OpRefNull:
			if _, err := r.ReadS64(); err != nil { // heap type (s33)
				return 0, malformed(r, "ref.null heap type", err)
			}

		case op == OpUnreachable, op == OpNop, op == OpElse, op == OpEnd,
			op == OpReturn, op == OpDrop, op == OpRefIsNull:
			// No immediate

		case op >= OpNumericFirst && op <= OpNumericLast:
			// Comparisons, arithmetic, conversions: no immediate

		case op >= OpI32Extend8S && op <= OpI64Extend32S:
			// No immediate

		case op == OpPrefixMisc:
			if err := skipMiscImmediate(r); err != nil {
				return 0, err
			}

		case op == OpPrefixSIMD:
			if err := skipSIMDImmediate(r); err != nil {
				return 0, err
			}

		case op == OpPrefixGC:
			return 0, errs.Unsupported(r.Position()-1, "GC instruction")

		case op == OpPrefixAtomic:
			return 0, errs.Unsupported(r.Position()-1, "atomic instruction")

		default:
			return 0, errs.Unsupported(r.Position()-1, "opcode 0x%02x", op)
		}
	}

	return count, nil
}

// skipMemArg skips a memarg with multi-memory support: if bit 6 of the
// align field is set, a separate memory index follows.
func skipMemArg(r *binary.Reader) error {
	const multiMemBit = 0x40
	align, err := r.ReadU32()
	if err != nil {
		return malformed(r, "memarg align", err)
	}
	if align&multiMemBit != 0 {
		if _, err := r.ReadU32(); err != nil {
			return malformed(r, "memarg memory index", err)
		}
	}
	if _, err := r.ReadU64(); err != nil {
		return malformed(r, "memarg offset", err)
	}
	return nil
}

func skipMiscImmediate(r *binary.Reader) error {
	sub, err := r.ReadU32()
	if err != nil {
		return malformed(r, "misc sub-opcode", err)
	}
	switch sub {
	case MiscMemoryInit, MiscTableInit, MiscMemoryCopy, MiscTableCopy:
		if _, err := r.ReadU32(); err != nil {
			return malformed(r, "misc operand", err)
		}
		if _, err := r.ReadU32(); err != nil {
			return malformed(r, "misc operand", err)
		}
	case MiscDataDrop, MiscMemoryFill, MiscElemDrop,
		MiscTableGrow, MiscTableSize, MiscTableFill:
		if _, err := r.ReadU32(); err != nil {
			return malformed(r, "misc operand", err)
		}
	default:
		if sub > MiscI64TruncSatF64U {
			return errs.Unsupported(r.Position(), "misc sub-opcode 0x%02x", sub)
		}
		// Saturating truncations: no operands
	}
	return nil
}

func skipSIMDImmediate(r *binary.Reader) error {
	sub, err := r.ReadU32()
	if err != nil {
		return malformed(r, "SIMD sub-opcode", err)
	}
	switch {
	case sub <= SimdV128Load64Splat || sub == SimdV128Store,
		sub == SimdV128Load32Zero, sub == SimdV128Load64Zero:
		return skipMemArg(r)

	case sub == SimdV128Const, sub == SimdI8x16Shuffle:
		if err := r.Skip(16); err != nil {
			return malformed(r, "SIMD immediate", err)
		}

	case sub >= SimdExtractLaneS && sub <= SimdF64x2ReplLane:
		if _, err := r.ReadByte(); err != nil {
			return malformed(r, "SIMD lane index", err)
		}

	case sub >= SimdV128Load8Lane && sub <= SimdV128Store64Lane:
		if err := skipMemArg(r); err != nil {
			return err
		}
		if _, err := r.ReadByte(); err != nil {
			return malformed(r, "SIMD lane index", err)
		}

	case sub > SimdLast:
		return errs.Unsupported(r.Position(), "SIMD sub-opcode 0x%02x", sub)

	default:
		// Remaining SIMD instructions carry no immediate
	}
	return nil
}
