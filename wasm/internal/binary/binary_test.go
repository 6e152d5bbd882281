package binary

import (
	"errors"
	"testing"
)

func TestReadU32(t *testing.T) {
	tests := []struct {
		data []byte
		want uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7F}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xE5, 0x8E, 0x26}, 624485},
		{[]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F}, 0xFFFFFFFF},
	}
	for _, tt := range tests {
		r := NewReader(tt.data, 0)
		got, err := r.ReadU32()
		if err != nil {
			t.Fatalf("ReadU32(%x): %v", tt.data, err)
		}
		if got != tt.want {
			t.Errorf("ReadU32(%x) = %d, want %d", tt.data, got, tt.want)
		}
	}
}

func TestReadU32Overflow(t *testing.T) {
	r := NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}, 0)
	if _, err := r.ReadU32(); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
}

func TestReadS32SignExtension(t *testing.T) {
	tests := []struct {
		data []byte
		want int32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7F}, -1},
		{[]byte{0x40}, -64},
		{[]byte{0xC0, 0x00}, 64},
		{[]byte{0x80, 0x7F}, -128},
	}
	for _, tt := range tests {
		r := NewReader(tt.data, 0)
		got, err := r.ReadS32()
		if err != nil {
			t.Fatalf("ReadS32(%x): %v", tt.data, err)
		}
		if got != tt.want {
			t.Errorf("ReadS32(%x) = %d, want %d", tt.data, got, tt.want)
		}
	}
}

func TestReadTruncated(t *testing.T) {
	r := NewReader([]byte{0x80}, 0)
	if _, err := r.ReadU32(); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected truncated, got %v", err)
	}
}

func TestPositionTracksBase(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03}, 100)
	if r.Position() != 100 {
		t.Errorf("initial position = %d, want 100", r.Position())
	}
	if _, err := r.ReadByte(); err != nil {
		t.Fatal(err)
	}
	if r.Position() != 101 {
		t.Errorf("position after read = %d, want 101", r.Position())
	}
}

func TestSubInheritsAbsolutePosition(t *testing.T) {
	r := NewReader([]byte{0xAA, 0xBB, 0xCC, 0xDD}, 10)
	if _, err := r.ReadByte(); err != nil {
		t.Fatal(err)
	}
	sub, err := r.Sub(2)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Position() != 11 {
		t.Errorf("sub position = %d, want 11", sub.Position())
	}
	if r.Position() != 13 {
		t.Errorf("parent position = %d, want 13", r.Position())
	}
}

func TestReadNameRejectsInvalidUTF8(t *testing.T) {
	r := NewReader([]byte{0x02, 0xFF, 0xFE}, 0)
	if _, err := r.ReadName(); !errors.Is(err, ErrInvalidUTF8) {
		t.Errorf("expected invalid UTF-8, got %v", err)
	}
}

func TestCapture(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03, 0x04}, 5)
	if _, err := r.ReadByte(); err != nil {
		t.Fatal(err)
	}
	start := r.Position()
	if _, err := r.ReadBytes(2); err != nil {
		t.Fatal(err)
	}
	got := r.Capture(start)
	if len(got) != 2 || got[0] != 0x02 || got[1] != 0x03 {
		t.Errorf("Capture = %x, want 0203", got)
	}
}

func TestWriterRoundTrip(t *testing.T) {
	var w Writer
	w.WriteU32(624485)
	w.WriteName("memory")
	w.WriteS32(-64)

	r := NewReader(w.Bytes(), 0)
	if v, _ := r.ReadU32(); v != 624485 {
		t.Errorf("u32 = %d", v)
	}
	if s, _ := r.ReadName(); s != "memory" {
		t.Errorf("name = %q", s)
	}
	if v, _ := r.ReadS32(); v != -64 {
		t.Errorf("s32 = %d", v)
	}
	if r.Len() != 0 {
		t.Errorf("leftover bytes: %d", r.Len())
	}
}
