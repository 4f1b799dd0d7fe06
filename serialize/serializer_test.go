package serialize

import (
	"bytes"
	"testing"

	"psgpack/psg"
)

func delta(pairs ...byte) psg.Delta {
	var d psg.Delta
	for i := 0; i < len(pairs); i += 2 {
		d.Set(int(pairs[i]), pairs[i+1])
	}
	return d
}

func dictOf(deltas ...psg.Delta) *psg.MaskDict {
	frames := make([]psg.Frame, 0, len(deltas))
	for _, d := range deltas {
		frames = append(frames, psg.Frame{Symbol: psg.MaxDelay + 1, Delta: d})
	}
	return psg.BuildMaskDict(frames)
}

func TestDelayEncoding(t *testing.T) {
	cases := []struct {
		n    int
		want []byte
	}{
		{1, []byte{0x10}},
		{16, []byte{0x1F}},
		{17, []byte{0x00, 0x10}},
		{34, []byte{0x00, 0x21}},
		{256, []byte{0x00, 0xFF}},
	}
	for _, c := range cases {
		w := NewWriter(dictOf())
		w.Delay(c.n)
		if !bytes.Equal(w.Bytes(), c.want) {
			t.Errorf("delay %d: got % 02x, want % 02x", c.n, w.Bytes(), c.want)
		}
		if DelaySize(c.n) != len(c.want) {
			t.Errorf("delay size %d: got %d", c.n, DelaySize(c.n))
		}
	}

	defer func() {
		if recover() == nil {
			t.Error("delay 257 did not panic")
		}
	}()
	NewWriter(dictOf()).Delay(257)
}

func TestSingleRegisterFrame(t *testing.T) {
	w := NewWriter(dictOf())
	w.Frame(delta(7, 0x38), true)
	if !bytes.Equal(w.Bytes(), []byte{0x08, 0x38}) {
		t.Errorf("got % 02x", w.Bytes())
	}
}

func TestExplicitTwoHeaderFrame(t *testing.T) {
	// Registers 0 and 1 only: absence mask 001111 over the low six, all of
	// the high group absent.
	w := NewWriter(dictOf())
	w.Frame(delta(0, 0x55, 1, 0xAA), true)
	want := []byte{0x4F, 0x55, 0xAA, 0xFF}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("got % 02x, want % 02x", w.Bytes(), want)
	}
}

func TestExplicitPlayAllBranch(t *testing.T) {
	// Low group absent entirely, registers 6..12 all present: header2 keeps
	// only the reg-13 bit and the values follow in forward order.
	d := delta(6, 0x06, 7, 0x07, 8, 0x08, 9, 0x09, 10, 0x0A, 11, 0x0B, 12, 0x0C)
	w := NewWriter(dictOf())
	w.Frame(d, true)
	want := []byte{0x40 | 0x3F, 0x80, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("got % 02x, want % 02x", w.Bytes(), want)
	}
}

func TestExplicitByMaskBranchReversesHighGroup(t *testing.T) {
	d := delta(0, 0x10, 6, 0x06, 13, 0x0D)
	w := NewWriter(dictOf())
	w.Frame(d, true)
	// header2 flags 7..12 absent: 0111 1110
	want := []byte{0x40 | 0x1F, 0x10, 0x7E, 0x0D, 0x06}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("got % 02x, want % 02x", w.Bytes(), want)
	}
}

func TestDictIndexedFrame(t *testing.T) {
	d := delta(0, 0x10, 1, 0x20, 6, 0x06, 13, 0x0D)
	dict := dictOf(d)
	if !dict.Contains(d) {
		t.Fatal("mask not retained")
	}

	w := NewWriter(dict)
	w.Frame(d, true)
	// Slot 0, then both halves in reverse index order.
	want := []byte{0x20, 0x20, 0x10, 0x0D, 0x06}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("got % 02x, want % 02x", w.Bytes(), want)
	}

	// The explicit form must still be reachable for widened frames.
	w = NewWriter(dict)
	w.Frame(d, false)
	if w.Bytes()[0] == 0x20 {
		t.Error("allowDict=false still used the dictionary")
	}
	if got, want := len(w.Bytes()), FrameSize(d, dict, false); got != want {
		t.Errorf("explicit size %d, want %d", got, want)
	}
}

func TestFrameSize(t *testing.T) {
	d := delta(0, 1, 1, 2, 7, 3)
	dict := dictOf(d)
	if got := FrameSize(delta(5, 9), dict, true); got != 2 {
		t.Errorf("single: %d", got)
	}
	if got := FrameSize(d, dict, true); got != 4 {
		t.Errorf("dict form: %d", got)
	}
	if got := FrameSize(d, dict, false); got != 5 {
		t.Errorf("explicit form: %d", got)
	}
}

func TestPrologue(t *testing.T) {
	d := delta(0, 1, 1, 2)
	p := Prologue(dictOf(d))
	if len(p) != PrologueSize {
		t.Fatalf("size %d", len(p))
	}
	mask := d.LongMask()
	if p[0] != byte(mask) || p[1] != byte(mask>>8) {
		t.Errorf("slot 0: % 02x, mask %#04x", p[:2], mask)
	}
	for _, b := range p[2:] {
		if b != 0 {
			t.Fatal("unused slots not zero")
		}
	}
}

func TestRefEncoding(t *testing.T) {
	t.Run("short", func(t *testing.T) {
		w := NewWriter(dictOf())
		w.Frame(delta(0, 1), true) // 2 bytes at offset 0
		w.Frame(delta(0, 2), true) // 2 bytes at offset 2
		w.Ref(0, 1)
		// delta = 0 - 4 - 2 = -6 = 0xFFFA, bit 6 of the high byte cleared.
		got := w.Bytes()[4:]
		if !bytes.Equal(got, []byte{0xBF, 0xFA}) {
			t.Errorf("got % 02x", got)
		}
	})

	t.Run("long", func(t *testing.T) {
		w := NewWriter(dictOf())
		w.Frame(delta(0, 1), true)
		w.Ref(0, 5)
		// delta = 0 - 2 - 3 + 1 = -4 = 0xFFFC, bit 6 set, count byte 4.
		got := w.Bytes()[2:]
		if !bytes.Equal(got, []byte{0xFF, 0xFC, 0x04}) {
			t.Errorf("got % 02x", got)
		}
		if got[0]&0x40 == 0 {
			t.Error("long ref lost bit 6")
		}
	})

	t.Run("nonNegativePanics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("forward reference did not panic")
			}
		}()
		w := NewWriter(dictOf())
		w.Ref(5, 1)
	})
}

func TestEndMarker(t *testing.T) {
	w := NewWriter(dictOf())
	w.End()
	if !bytes.Equal(w.Bytes(), []byte{0x0F}) {
		t.Errorf("got % 02x", w.Bytes())
	}
}
