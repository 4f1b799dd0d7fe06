package psg

import (
	"reflect"
	"testing"
)

func delta(pairs ...byte) Delta {
	var d Delta
	for i := 0; i < len(pairs); i += 2 {
		d.Set(int(pairs[i]), pairs[i+1])
	}
	return d
}

func TestDeltaOrderAndKey(t *testing.T) {
	var a, b Delta
	a.Set(7, 0x38)
	a.Set(0, 0x55)
	b.Set(0, 0x55)
	b.Set(7, 0x38)

	if !reflect.DeepEqual(a.Regs(), []int{0, 7}) {
		t.Errorf("regs: got %v, want [0 7]", a.Regs())
	}
	if a.Key() != b.Key() {
		t.Errorf("insertion order leaked into key: %q vs %q", a.Key(), b.Key())
	}

	b.Set(7, 0x39)
	if a.Key() == b.Key() {
		t.Error("different values produced the same key")
	}
}

func TestDeltaMasks(t *testing.T) {
	// Registers 0 and 1 present: low absence mask flags 2..5, high flags all.
	d := delta(0, 0x55, 1, 0xAA)
	if got := d.LowMask6(); got != 0x0F {
		t.Errorf("LowMask6: got %#02x, want 0x0f", got)
	}
	if got := d.HighMaskRev(); got != 0xFF {
		t.Errorf("HighMaskRev: got %#02x, want 0xff", got)
	}
	if got := d.LongMask(); got != 0xFF0F {
		t.Errorf("LongMask: got %#04x, want 0xff0f", got)
	}

	var full Delta
	for i := 0; i < NumRegs; i++ {
		full.Set(i, 1)
	}
	if full.LongMask() != 0 {
		t.Errorf("full delta mask: got %#04x, want 0", full.LongMask())
	}
	if full.CountLow() != 6 || full.CountMid() != 7 {
		t.Errorf("counts: got %d/%d, want 6/7", full.CountLow(), full.CountMid())
	}
}

func TestReverseBits(t *testing.T) {
	cases := map[byte]byte{0x80: 0x01, 0x01: 0x80, 0xF0: 0x0F, 0xAA: 0x55, 0x00: 0x00}
	for in, want := range cases {
		if got := ReverseBits(in); got != want {
			t.Errorf("ReverseBits(%#02x) = %#02x, want %#02x", in, got, want)
		}
	}
}

func TestSymbolTable(t *testing.T) {
	tbl := NewTable()

	a := tbl.Intern(delta(0, 1))
	if a != MaxDelay+1 {
		t.Errorf("first symbol: got %d, want %d", a, MaxDelay+1)
	}
	if s := tbl.Intern(delta(0, 1)); s != a {
		t.Errorf("re-intern: got %d, want %d", s, a)
	}
	b := tbl.Intern(delta(0, 2))
	if b != a+1 {
		t.Errorf("second symbol: got %d, want %d", b, a+1)
	}
	if got := tbl.Delta(b); !reflect.DeepEqual(got, delta(0, 2)) {
		t.Errorf("Delta(b) mismatch: %v", got)
	}

	if !Symbol(MaxDelay).IsDelay() || Symbol(MaxDelay+1).IsDelay() {
		t.Error("delay range boundary misplaced")
	}
}

func TestDelayFrame(t *testing.T) {
	f := DelayFrame(17)
	if !f.IsDelay() || f.DelayLen() != 17 {
		t.Errorf("delay frame: %v", f)
	}

	defer func() {
		if recover() == nil {
			t.Error("DelayFrame(0) did not panic")
		}
	}()
	DelayFrame(0)
}

func TestMaskDictRanking(t *testing.T) {
	var frames []Frame
	add := func(d Delta, n int) {
		for i := 0; i < n; i++ {
			frames = append(frames, Frame{Symbol: MaxDelay + 1, Delta: d})
		}
	}
	add(delta(0, 1, 1, 2), 3)      // mask 0xff0f
	add(delta(0, 1, 2, 2), 5)      // mask 0xff17
	add(delta(6, 1, 7, 2), 2)      // low all absent
	add(delta(0, 9), 50)           // single-register: never in the dictionary
	frames = append(frames, DelayFrame(4))

	dict := BuildMaskDict(frames)
	if dict.Len() != 3 {
		t.Fatalf("dict len: got %d, want 3", dict.Len())
	}
	if dict.Mask(0) != delta(0, 1, 2, 2).LongMask() {
		t.Errorf("slot 0: got %#04x", dict.Mask(0))
	}
	if idx, ok := dict.Lookup(delta(0, 1, 1, 2).LongMask()); !ok || idx != 1 {
		t.Errorf("slot 1 lookup: %d %v", idx, ok)
	}
	if dict.Contains(delta(0, 9)) {
		t.Error("single-register delta reported in dictionary")
	}
}

func TestMaskDictTieBreak(t *testing.T) {
	var frames []Frame
	big := delta(0, 1, 1, 1)   // larger mask value
	small := delta(8, 1, 9, 1) // smaller? compare explicitly below
	frames = append(frames,
		Frame{Delta: big, Symbol: MaxDelay + 1},
		Frame{Delta: small, Symbol: MaxDelay + 2},
	)
	dict := BuildMaskDict(frames)
	want := big.LongMask()
	if small.LongMask() < want {
		want = small.LongMask()
	}
	if dict.Mask(0) != want {
		t.Errorf("tie-break: slot 0 = %#04x, want %#04x", dict.Mask(0), want)
	}
}
