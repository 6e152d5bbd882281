package wasm

import (
	"github.com/dylibso/modsurfer/wasm/internal/binary"
)

// Encode serializes the module back to the WebAssembly binary format.
// It is used to assemble module fixtures. Element segments are always
// written in the flag-0 form (active, table 0, function indices), the
// data count section is not written, and custom sections are appended
// after all other sections.
func (m *Module) Encode() []byte {
	var w binary.Writer
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	if len(m.Types) > 0 {
		var s binary.Writer
		s.WriteU32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			s.WriteByte(FuncTypeByte)
			writeValTypes(&s, ft.Params)
			writeValTypes(&s, ft.Results)
		}
		writeSection(&w, SectionType, &s)
	}

	if len(m.Imports) > 0 {
		var s binary.Writer
		s.WriteU32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			s.WriteName(imp.Module)
			s.WriteName(imp.Name)
			s.WriteByte(imp.Desc.Kind)
			switch imp.Desc.Kind {
			case KindFunc:
				s.WriteU32(imp.Desc.TypeIdx)
			case KindTable:
				writeTableType(&s, *imp.Desc.Table)
			case KindMemory:
				writeLimits(&s, imp.Desc.Memory.Limits)
			case KindGlobal:
				writeGlobalType(&s, *imp.Desc.Global)
			}
		}
		writeSection(&w, SectionImport, &s)
	}

	if len(m.Funcs) > 0 {
		var s binary.Writer
		s.WriteU32(uint32(len(m.Funcs)))
		for _, idx := range m.Funcs {
			s.WriteU32(idx)
		}
		writeSection(&w, SectionFunction, &s)
	}

	if len(m.Tables) > 0 {
		var s binary.Writer
		s.WriteU32(uint32(len(m.Tables)))
		for _, t := range m.Tables {
			writeTableType(&s, t)
		}
		writeSection(&w, SectionTable, &s)
	}

	if len(m.Memories) > 0 {
		var s binary.Writer
		s.WriteU32(uint32(len(m.Memories)))
		for _, mem := range m.Memories {
			writeLimits(&s, mem.Limits)
		}
		writeSection(&w, SectionMemory, &s)
	}

	if len(m.Globals) > 0 {
		var s binary.Writer
		s.WriteU32(uint32(len(m.Globals)))
		for _, g := range m.Globals {
			writeGlobalType(&s, g.Type)
			init := g.Init
			if len(init) == 0 {
				init = defaultInit(g.Type.ValType)
			}
			s.Write(init)
		}
		writeSection(&w, SectionGlobal, &s)
	}

	if len(m.Exports) > 0 {
		var s binary.Writer
		s.WriteU32(uint32(len(m.Exports)))
		for _, e := range m.Exports {
			s.WriteName(e.Name)
			s.WriteByte(e.Kind)
			s.WriteU32(e.Idx)
		}
		writeSection(&w, SectionExport, &s)
	}

	if m.Start != nil {
		var s binary.Writer
		s.WriteU32(*m.Start)
		writeSection(&w, SectionStart, &s)
	}

	if len(m.Elements) > 0 {
		var s binary.Writer
		s.WriteU32(uint32(len(m.Elements)))
		for _, e := range m.Elements {
			// Only flag-0 active segments are emitted by the fixture builder.
			s.WriteU32(0)
			offset := e.Offset
			if len(offset) == 0 {
				offset = []byte{OpI32Const, 0x00, OpEnd}
			}
			s.Write(offset)
			s.WriteU32(uint32(len(e.FuncIdxs)))
			for _, idx := range e.FuncIdxs {
				s.WriteU32(idx)
			}
		}
		writeSection(&w, SectionElement, &s)
	}

	if len(m.Code) > 0 {
		var s binary.Writer
		s.WriteU32(uint32(len(m.Code)))
		for _, body := range m.Code {
			var b binary.Writer
			b.WriteU32(uint32(len(body.Locals)))
			for _, l := range body.Locals {
				b.WriteU32(l.Count)
				b.WriteByte(byte(l.ValType))
			}
			code := body.Code
			if len(code) == 0 {
				code = []byte{OpEnd}
			}
			b.Write(code)
			s.WriteU32(uint32(b.Len()))
			s.Write(b.Bytes())
		}
		writeSection(&w, SectionCode, &s)
	}

	if len(m.Data) > 0 {
		var s binary.Writer
		s.WriteU32(uint32(len(m.Data)))
		for _, seg := range m.Data {
			s.WriteU32(seg.Flags)
			if seg.Flags == 2 {
				s.WriteU32(seg.MemIdx)
			}
			if seg.Flags != 1 {
				offset := seg.Offset
				if len(offset) == 0 {
					offset = []byte{OpI32Const, 0x00, OpEnd}
				}
				s.Write(offset)
			}
			s.WriteU32(uint32(len(seg.Init)))
			s.Write(seg.Init)
		}
		writeSection(&w, SectionData, &s)
	}

	for _, cs := range m.CustomSections {
		var s binary.Writer
		s.WriteName(cs.Name)
		s.Write(cs.Data)
		writeSection(&w, SectionCustom, &s)
	}

	return w.Bytes()
}

// ProducersSection encodes a producers custom section declaring the
// given language, per the tool-conventions producers format.
func ProducersSection(language, version string) CustomSection {
	var s binary.Writer
	s.WriteU32(1) // one field
	s.WriteName("language")
	s.WriteU32(1) // one value
	s.WriteName(language)
	s.WriteName(version)
	return CustomSection{Name: "producers", Data: s.Bytes()}
}

func writeSection(w *binary.Writer, id byte, s *binary.Writer) {
	w.WriteByte(id)
	w.WriteU32(uint32(s.Len()))
	w.Write(s.Bytes())
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.WriteByte(byte(t))
	}
}

func writeLimits(w *binary.Writer, l Limits) {
	if l.Max != nil {
		w.WriteByte(0x01)
		w.WriteU32(uint32(l.Min))
		w.WriteU32(uint32(*l.Max))
	} else {
		w.WriteByte(0x00)
		w.WriteU32(uint32(l.Min))
	}
}

func writeTableType(w *binary.Writer, t TableType) {
	et := t.ElemType
	if et == 0 {
		et = ValFuncRef
	}
	w.WriteByte(byte(et))
	writeLimits(w, t.Limits)
}

func writeGlobalType(w *binary.Writer, g GlobalType) {
	w.WriteByte(byte(g.ValType))
	if g.Mutable {
		w.WriteByte(0x01)
	} else {
		w.WriteByte(0x00)
	}
}

func defaultInit(vt ValType) []byte {
	switch vt {
	case ValI64:
		return []byte{OpI64Const, 0x00, OpEnd}
	case ValF32:
		return []byte{OpF32Const, 0x00, 0x00, 0x00, 0x00, OpEnd}
	case ValF64:
		return []byte{OpF64Const, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, OpEnd}
	default:
		return []byte{OpI32Const, 0x00, OpEnd}
	}
}
