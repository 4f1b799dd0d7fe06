package timing

import (
	"testing"

	"psgpack/psg"
)

func delta(regs ...int) psg.Delta {
	var d psg.Delta
	for _, r := range regs {
		d.Set(r, 1)
	}
	return d
}

func TestTrbRep(t *testing.T) {
	if got := TrbRep(0); got != 22 {
		t.Errorf("TrbRep(0) = %d, want 22", got)
	}
	if got := TrbRep(1); got != 65 {
		t.Errorf("TrbRep(1) = %d, want 65", got)
	}
	if got := TrbRep(2); got != 40 {
		t.Errorf("TrbRep(2) = %d, want 40", got)
	}
	if got := TrbRep(200); got != 40 {
		t.Errorf("TrbRep(200) = %d, want 40", got)
	}
}

func TestPl0xSingleRegister(t *testing.T) {
	m := &Model{}
	if got := m.Pl0x(delta(7), false); got != 110 {
		t.Errorf("single-register pl0x = %d, want 110", got)
	}
	// The dictionary never applies to single-register deltas.
	if got := m.Pl0x(delta(7), true); got != 110 {
		t.Errorf("single-register pl0x via dict = %d, want 110", got)
	}
}

func TestPl0xPlayAllBranches(t *testing.T) {
	m := &Model{}

	full := delta(0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13)
	if got := m.Pl0x(full, false); got != psg2Preamble+playAll05+playAll613 {
		t.Errorf("full frame = %d", got)
	}

	noForm := delta(0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)
	want := psg2Preamble + playAll05 + playAll613 - 35
	if got := m.Pl0x(noForm, false); got != want {
		t.Errorf("full frame without reg 13 = %d, want %d", got, want)
	}
}

func TestPl0xByMaskSums(t *testing.T) {
	m := &Model{}

	// Two low registers present, everything else absent.
	d := delta(0, 1)
	low := maskLoopPresent + 4*maskLoopAbsent + maskFinalPresent + maskFinalTestAdj
	high := 7*maskLoopAbsent + maskFinalAbsent + maskFinalTestAdj
	if got := m.Pl0x(d, false); got != psg2Preamble+low+high {
		t.Errorf("explicit = %d, want %d", got, psg2Preamble+low+high)
	}
	if got := m.Pl0x(d, true); got != dictPreamble+low+high {
		t.Errorf("dict = %d, want %d", got, dictPreamble+low+high)
	}
}

func TestScfAdjustment(t *testing.T) {
	plain := &Model{}
	scf := &Model{AddScf: true}
	d := delta(0, 1)
	if scf.OwnFrameTime(d, false, 0)-plain.OwnFrameTime(d, false, 0) != 4 {
		t.Error("scf build must cost 4 extra T-states per frame")
	}
}

func TestRejectLongRefL01(t *testing.T) {
	m := &Model{}

	// A full frame decodes too slowly for the level 0/1 budget.
	full := delta(0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13)
	if !m.RejectLongRefL01(full, false) {
		t.Error("full-frame donor accepted at level<2")
	}
	// A small frame leaves enough slack for the reference preamble.
	if m.RejectLongRefL01(delta(0, 8), false) {
		t.Error("small donor rejected at level<2")
	}
}

func TestDelayRunTime(t *testing.T) {
	m := &Model{}

	if got := m.DelayRunTime(1); got != m.DelayTime(DelaySingle) {
		t.Errorf("run(1) = %d", got)
	}

	want := m.DelayTime(DelayFirst) + 2*m.DelayTime(DelayMid) + m.DelayTime(DelayLast)
	if got := m.DelayRunTime(4); got != want {
		t.Errorf("run(4) = %d, want %d", got, want)
	}

	// A run over 16 frames uses the two-byte form with the extra fetch.
	diff := m.DelayRunTime(17) - m.DelayRunTime(16)
	want = m.DelayTime(DelayLongFirst) - m.DelayTime(DelayFirst) + m.DelayTime(DelayMid)
	if diff != want {
		t.Errorf("long-form first frame: diff %d, want %d", diff, want)
	}
}

func TestLongRefFirstTimeDepth(t *testing.T) {
	m := &Model{}
	d := delta(0, 1, 7)
	base := m.LongRefFirstTime(d, false, 0)
	if m.LongRefFirstTime(d, false, 2)-base != 2*nestedHop {
		t.Error("nesting depth not priced per level")
	}
	if m.ShortRefTime(d, false) >= base {
		t.Error("short reference must be cheaper than a long reference init")
	}
}
