package wasm

import (
	stderrors "errors"

	errs "github.com/dylibso/modsurfer/errors"
	"github.com/dylibso/modsurfer/wasm/internal/binary"
)

// ParseModule parses a WebAssembly binary module. It accepts core wasm
// plus the reference types, multi-value, SIMD, and bulk memory
// extensions; sections or types outside that set return an unsupported
// error. All errors carry the byte offset at which decoding failed.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data, 0)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, malformed(r, "header", err)
	}
	if magic != Magic {
		return nil, errs.Malformed(0, "invalid wasm magic number 0x%08x", magic)
	}

	version, err := r.ReadU32LE()
	if err != nil {
		return nil, malformed(r, "header", err)
	}
	if version != Version {
		return nil, errs.Malformed(4, "unsupported wasm version %d", version)
	}

	m := &Module{}

	// Track section ordering using canonical order, not section IDs.
	// Spec order: Type(1), Import(2), Function(3), Table(4), Memory(5),
	// Global(6), Export(7), Start(8), Element(9), DataCount(12), Code(10), Data(11)
	var lastSectionOrder int

	for r.Len() > 0 {
		sectionID, err := r.ReadByte()
		if err != nil {
			return nil, malformed(r, "section header", err)
		}

		if sectionID != SectionCustom {
			order, ok := sectionOrder(sectionID)
			if !ok {
				return nil, errs.Unsupported(r.Position()-1, "unknown section ID 0x%02x", sectionID)
			}
			if sectionID == SectionTag {
				return nil, errs.Unsupported(r.Position()-1, "tag section (exception handling)")
			}
			if order <= lastSectionOrder {
				return nil, errs.Malformed(r.Position()-1, "section %d appears out of order", sectionID)
			}
			lastSectionOrder = order
		}

		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, malformed(r, "section size", err)
		}

		sr, err := r.Sub(int(sectionSize))
		if err != nil {
			return nil, malformed(r, "section data", err)
		}

		if err := parseSection(sectionID, sr, m); err != nil {
			return nil, err
		}

		if sr.Len() != 0 {
			return nil, errs.Malformed(sr.Position(), "section %d has %d trailing bytes", sectionID, sr.Len())
		}
	}

	return m, nil
}

func parseSection(id byte, r *binary.Reader, m *Module) error {
	switch id {
	case SectionCustom:
		return parseCustomSection(r, m)
	case SectionType:
		return parseTypeSection(r, m)
	case SectionImport:
		return parseImportSection(r, m)
	case SectionFunction:
		return parseFunctionSection(r, m)
	case SectionTable:
		return parseTableSection(r, m)
	case SectionMemory:
		return parseMemorySection(r, m)
	case SectionGlobal:
		return parseGlobalSection(r, m)
	case SectionExport:
		return parseExportSection(r, m)
	case SectionStart:
		return parseStartSection(r, m)
	case SectionElement:
		return parseElementSection(r, m)
	case SectionCode:
		return parseCodeSection(r, m)
	case SectionData:
		return parseDataSection(r, m)
	case SectionDataCount:
		return parseDataCountSection(r, m)
	default:
		return errs.Unsupported(r.Position(), "section ID 0x%02x", id)
	}
}

// sectionOrder returns the canonical ordering for a section ID.
// The wasm spec requires sections in a specific order that differs from IDs.
func sectionOrder(id byte) (int, bool) {
	switch id {
	case SectionType:
		return 1, true
	case SectionImport:
		return 2, true
	case SectionFunction:
		return 3, true
	case SectionTable:
		return 4, true
	case SectionMemory:
		return 5, true
	case SectionGlobal:
		return 6, true
	case SectionExport:
		return 7, true
	case SectionStart:
		return 8, true
	case SectionElement:
		return 9, true
	case SectionDataCount:
		return 10, true // DataCount must come before Code
	case SectionCode:
		return 11, true
	case SectionData:
		return 12, true
	case SectionTag:
		return 6, true // would sit between Memory and Global; rejected separately
	default:
		return 0, false
	}
}

func malformed(r *binary.Reader, what string, err error) error {
	if stderrors.Is(err, binary.ErrOverflow) {
		return errs.Malformed(r.Position(), "%s: invalid LEB128", what)
	}
	return errs.Malformed(r.Position(), "%s: %v", what, err)
}

func readValType(r *binary.Reader, what string) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, malformed(r, what, err)
	}
	switch ValType(b) {
	case ValI32, ValI64, ValF32, ValF64, ValV128, ValFuncRef, ValExtern:
		return ValType(b), nil
	default:
		return 0, errs.Unsupported(r.Position()-1, "%s: value type 0x%02x", what, b)
	}
}

func readRefType(r *binary.Reader, what string) (ValType, error) {
	vt, err := readValType(r, what)
	if err != nil {
		return 0, err
	}
	if vt != ValFuncRef && vt != ValExtern {
		return 0, errs.Malformed(r.Position()-1, "%s: expected reference type, got %s", what, vt)
	}
	return vt, nil
}

func parseCustomSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return malformed(r, "custom section name", err)
	}
	rest, err := r.ReadRemaining()
	if err != nil {
		return malformed(r, "custom section data", err)
	}
	m.CustomSections = append(m.CustomSections, CustomSection{
		Name: name,
		Data: rest,
	})
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed(r, "type count", err)
	}
	m.Types = make([]FuncType, 0, capHint(count))
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return malformed(r, "type form", err)
		}
		if form != FuncTypeByte {
			return errs.Unsupported(r.Position()-1, "type form 0x%02x", form)
		}
		ft, err := readFuncType(r)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, ft)
	}
	return nil
}

func readFuncType(r *binary.Reader) (FuncType, error) {
	params, err := readValTypes(r, "param types")
	if err != nil {
		return FuncType{}, err
	}
	results, err := readValTypes(r, "result types")
	if err != nil {
		return FuncType{}, err
	}
	return FuncType{Params: params, Results: results}, nil
}

func readValTypes(r *binary.Reader, what string) ([]ValType, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, malformed(r, what, err)
	}
	out := make([]ValType, 0, capHint(count))
	for i := uint32(0); i < count; i++ {
		vt, err := readValType(r, what)
		if err != nil {
			return nil, err
		}
		out = append(out, vt)
	}
	return out, nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed(r, "import count", err)
	}
	m.Imports = make([]Import, 0, capHint(count))
	for i := uint32(0); i < count; i++ {
		mod, err := r.ReadName()
		if err != nil {
			return malformed(r, "import module", err)
		}
		name, err := r.ReadName()
		if err != nil {
			return malformed(r, "import name", err)
		}
		kind, err := r.ReadByte()
		if err != nil {
			return malformed(r, "import kind", err)
		}

		imp := Import{Module: mod, Name: name, Desc: ImportDesc{Kind: kind}}
		switch kind {
		case KindFunc:
			imp.Desc.TypeIdx, err = r.ReadU32()
			if err != nil {
				return malformed(r, "import type index", err)
			}
		case KindTable:
			tt, err := readTableType(r)
			if err != nil {
				return err
			}
			imp.Desc.Table = &tt
		case KindMemory:
			mt, err := readMemoryType(r)
			if err != nil {
				return err
			}
			imp.Desc.Memory = &mt
		case KindGlobal:
			gt, err := readGlobalType(r)
			if err != nil {
				return err
			}
			imp.Desc.Global = &gt
		default:
			return errs.Unsupported(r.Position()-1, "import kind 0x%02x", kind)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed(r, "function count", err)
	}
	m.Funcs = make([]uint32, 0, capHint(count))
	for i := uint32(0); i < count; i++ {
		idx, err := r.ReadU32()
		if err != nil {
			return malformed(r, "function type index", err)
		}
		m.Funcs = append(m.Funcs, idx)
	}
	return nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, malformed(r, "limits flags", err)
	}
	switch flags {
	case 0x00, 0x01:
	case 0x02, 0x03:
		return Limits{}, errs.Unsupported(r.Position()-1, "shared memory limits")
	default:
		return Limits{}, errs.Malformed(r.Position()-1, "invalid limits flags 0x%02x", flags)
	}
	min, err := r.ReadU32()
	if err != nil {
		return Limits{}, malformed(r, "limits min", err)
	}
	l := Limits{Min: uint64(min)}
	if flags == 0x01 {
		max, err := r.ReadU32()
		if err != nil {
			return Limits{}, malformed(r, "limits max", err)
		}
		m := uint64(max)
		l.Max = &m
	}
	return l, nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	et, err := readRefType(r, "table element type")
	if err != nil {
		return TableType{}, err
	}
	limits, err := readLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: et, Limits: limits}, nil
}

func readMemoryType(r *binary.Reader) (MemoryType, error) {
	limits, err := readLimits(r)
	if err != nil {
		return MemoryType{}, err
	}
	return MemoryType{Limits: limits}, nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	vt, err := readValType(r, "global type")
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, malformed(r, "global mutability", err)
	}
	if mut > 1 {
		return GlobalType{}, errs.Malformed(r.Position()-1, "invalid global mutability 0x%02x", mut)
	}
	return GlobalType{ValType: vt, Mutable: mut == 1}, nil
}

func parseTableSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed(r, "table count", err)
	}
	m.Tables = make([]TableType, 0, capHint(count))
	for i := uint32(0); i < count; i++ {
		tt, err := readTableType(r)
		if err != nil {
			return err
		}
		m.Tables = append(m.Tables, tt)
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed(r, "memory count", err)
	}
	m.Memories = make([]MemoryType, 0, capHint(count))
	for i := uint32(0); i < count; i++ {
		mt, err := readMemoryType(r)
		if err != nil {
			return err
		}
		m.Memories = append(m.Memories, mt)
	}
	return nil
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed(r, "global count", err)
	}
	m.Globals = make([]Global, 0, capHint(count))
	for i := uint32(0); i < count; i++ {
		gt, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readConstExpr(r)
		if err != nil {
			return err
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: init})
	}
	return nil
}

// readConstExpr reads a constant expression (init expression) through
// its terminating end opcode, returning the raw bytes including end.
func readConstExpr(r *binary.Reader) ([]byte, error) {
	start := r.Position()
	for {
		op, err := r.ReadByte()
		if err != nil {
			return nil, malformed(r, "constant expression", err)
		}
		switch op {
		case OpEnd:
			return r.Capture(start), nil
		case OpI32Const:
			if _, err := r.ReadS32(); err != nil {
				return nil, malformed(r, "i32.const", err)
			}
		case OpI64Const:
			if _, err := r.ReadS64(); err != nil {
				return nil, malformed(r, "i64.const", err)
			}
		case OpF32Const:
			if err := r.Skip(4); err != nil {
				return nil, malformed(r, "f32.const", err)
			}
		case OpF64Const:
			if err := r.Skip(8); err != nil {
				return nil, malformed(r, "f64.const", err)
			}
		case OpGlobalGet, OpRefFunc:
			if _, err := r.ReadU32(); err != nil {
				return nil, malformed(r, "constant expression operand", err)
			}
		case OpRefNull:
			if _, err := readRefType(r, "ref.null"); err != nil {
				return nil, err
			}
		case OpPrefixSIMD:
			sub, err := r.ReadU32()
			if err != nil {
				return nil, malformed(r, "v128.const", err)
			}
			if sub != SimdV128Const {
				return nil, errs.Unsupported(r.Position(), "SIMD sub-opcode 0x%02x in constant expression", sub)
			}
			if err := r.Skip(16); err != nil {
				return nil, malformed(r, "v128.const", err)
			}
		default:
			return nil, errs.Malformed(r.Position()-1, "opcode 0x%02x in constant expression", op)
		}
	}
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed(r, "export count", err)
	}
	m.Exports = make([]Export, 0, capHint(count))
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return malformed(r, "export name", err)
		}
		kind, err := r.ReadByte()
		if err != nil {
			return malformed(r, "export kind", err)
		}
		if kind > KindGlobal {
			return errs.Unsupported(r.Position()-1, "export kind 0x%02x", kind)
		}
		idx, err := r.ReadU32()
		if err != nil {
			return malformed(r, "export index", err)
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Idx: idx})
	}
	return nil
}

func parseStartSection(r *binary.Reader, m *Module) error {
	idx, err := r.ReadU32()
	if err != nil {
		return malformed(r, "start function index", err)
	}
	m.Start = &idx
	return nil
}

func parseElementSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed(r, "element count", err)
	}
	m.Elements = make([]Element, 0, capHint(count))
	for i := uint32(0); i < count; i++ {
		elem, err := readElement(r)
		if err != nil {
			return err
		}
		m.Elements = append(m.Elements, elem)
	}
	return nil
}

func readElement(r *binary.Reader) (Element, error) {
	flags, err := r.ReadU32()
	if err != nil {
		return Element{}, malformed(r, "element flags", err)
	}
	if flags > 7 {
		return Element{}, errs.Malformed(r.Position(), "invalid element flags %d", flags)
	}
	elem := Element{Flags: flags, Type: ValFuncRef}

	// Active segments with explicit table index (2, 6)
	if flags == 2 || flags == 6 {
		elem.TableIdx, err = r.ReadU32()
		if err != nil {
			return Element{}, malformed(r, "element table index", err)
		}
	}

	// Active segments (0, 2, 4, 6) carry an offset expression
	if flags&0x01 == 0 {
		elem.Offset, err = readConstExpr(r)
		if err != nil {
			return Element{}, err
		}
	}

	// Element kind / ref type for non-zero flags
	if flags&0x04 == 0 {
		if flags != 0 {
			kind, err := r.ReadByte()
			if err != nil {
				return Element{}, malformed(r, "element kind", err)
			}
			if kind != 0x00 {
				return Element{}, errs.Unsupported(r.Position()-1, "element kind 0x%02x", kind)
			}
		}
		idxs, err := readU32Vec(r, "element function indices")
		if err != nil {
			return Element{}, err
		}
		elem.FuncIdxs = idxs
	} else {
		if flags != 4 {
			elem.Type, err = readRefType(r, "element type")
			if err != nil {
				return Element{}, err
			}
		}
		exprCount, err := r.ReadU32()
		if err != nil {
			return Element{}, malformed(r, "element expression count", err)
		}
		elem.Exprs = make([][]byte, 0, capHint(exprCount))
		for j := uint32(0); j < exprCount; j++ {
			expr, err := readConstExpr(r)
			if err != nil {
				return Element{}, err
			}
			elem.Exprs = append(elem.Exprs, expr)
		}
	}
	return elem, nil
}

func readU32Vec(r *binary.Reader, what string) ([]uint32, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, malformed(r, what, err)
	}
	out := make([]uint32, 0, capHint(count))
	for i := uint32(0); i < count; i++ {
		v, err := r.ReadU32()
		if err != nil {
			return nil, malformed(r, what, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed(r, "code count", err)
	}
	if int(count) != len(m.Funcs) {
		return errs.Malformed(r.Position(), "code count %d does not match function count %d", count, len(m.Funcs))
	}
	m.Code = make([]FuncBody, 0, capHint(count))
	for i := uint32(0); i < count; i++ {
		bodySize, err := r.ReadU32()
		if err != nil {
			return malformed(r, "function body size", err)
		}
		br, err := r.Sub(int(bodySize))
		if err != nil {
			return malformed(r, "function body", err)
		}

		localCount, err := br.ReadU32()
		if err != nil {
			return malformed(br, "local declarations", err)
		}
		locals := make([]LocalEntry, 0, capHint(localCount))
		for j := uint32(0); j < localCount; j++ {
			n, err := br.ReadU32()
			if err != nil {
				return malformed(br, "local count", err)
			}
			vt, err := readValType(br, "local type")
			if err != nil {
				return err
			}
			locals = append(locals, LocalEntry{Count: n, ValType: vt})
		}

		codeOffset := br.Position()
		code, err := br.ReadRemaining()
		if err != nil {
			return malformed(br, "function code", err)
		}
		if len(code) == 0 || code[len(code)-1] != OpEnd {
			return errs.Malformed(br.Position(), "function body %d missing end opcode", i)
		}
		m.Code = append(m.Code, FuncBody{Locals: locals, Code: code, CodeOffset: codeOffset})
	}
	return nil
}

func parseDataSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed(r, "data count", err)
	}
	if m.DataCount != nil && *m.DataCount != count {
		return errs.Malformed(r.Position(), "data section count %d does not match data count section %d", count, *m.DataCount)
	}
	m.Data = make([]DataSegment, 0, capHint(count))
	for i := uint32(0); i < count; i++ {
		flags, err := r.ReadU32()
		if err != nil {
			return malformed(r, "data segment flags", err)
		}
		if flags > 2 {
			return errs.Malformed(r.Position(), "invalid data segment flags %d", flags)
		}
		seg := DataSegment{Flags: flags}
		if flags == 2 {
			seg.MemIdx, err = r.ReadU32()
			if err != nil {
				return malformed(r, "data segment memory index", err)
			}
		}
		if flags != 1 {
			seg.Offset, err = readConstExpr(r)
			if err != nil {
				return err
			}
		}
		size, err := r.ReadU32()
		if err != nil {
			return malformed(r, "data segment size", err)
		}
		seg.Init, err = r.ReadBytes(int(size))
		if err != nil {
			return malformed(r, "data segment bytes", err)
		}
		m.Data = append(m.Data, seg)
	}
	return nil
}

func parseDataCountSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return malformed(r, "data count", err)
	}
	m.DataCount = &count
	return nil
}

// capHint bounds pre-allocation so hostile counts cannot force huge
// allocations before the truncated input is noticed.
func capHint(count uint32) int {
	const maxPrealloc = 1 << 16
	if count > maxPrealloc {
		return maxPrealloc
	}
	return int(count)
}
