// Package timing models the target player's per-frame decode cost in Z80
// T-states. The constants mirror the player's instruction timings and are
// frozen: the matcher gates on them, and at level 4+ the re-pack loop uses
// them to keep every first frame of a long reference under budget.
package timing

import "psgpack/psg"

const (
	// MaxTimeForL4 is the first-frame ceiling enforced by the level 4+
	// re-pack loop.
	MaxTimeForL4 = 930

	// maxOwnTimeL01 is the pl0x ceiling the level 0/1 long-reference gate
	// compares against.
	maxOwnTimeL01 = 661

	// MaxNestedLevel bounds reference nesting at level 4+.
	MaxNestedLevel = 16
)

// Entry and exit offsets of the player's dispatch loop.
const (
	afterPlayFrame = 22 + 13 + 10 + 11 + 12 + 19 // 87: counters, int ack, loop jump
	ownPrologue    = 141                         // header fetch and branch to pl0x
	shortRefInit   = 152                         // save pos, fetch 2-byte offset, jump
	longRefInit    = 168                         // as short ref, plus repeat counter setup
	nestedHop      = longRefInit - ownPrologue   // extra indirection per nesting level
)

// pl0x path constants.
const (
	pl00SingleReg = 4 + 12 + 4 + 7 + 7 + 7 + 7 + 7 + 4 + 6 + 45 // 110

	psg2Preamble = 62 // dual-header fetch, mask split
	dictPreamble = 49 // 0x20|k header, dict entry fetch

	playAll05        = 253 // unrolled low-group write, all six present
	playAll613       = 341 // unrolled high-group write, regs 6..12 present
	playAll613NoForm = playAll613 - 35
	maskLoopPresent  = 54 // play_by_mask: register present
	maskLoopAbsent   = 20 // play_by_mask: register absent
	maskFinalPresent = 55
	maskFinalAbsent  = 15
	maskFinalTestAdj = -34
)

// Delay decode states: position within a run and whether the run used the
// two-byte long form.
type DelayState int

const (
	DelaySingle DelayState = iota
	DelayLongFirst
	DelayFirst
	DelayMid
	DelayLast
)

// TrbRep is the trailing-repeat adjustment added to a frame's cost, keyed by
// the number of repeats still pending.
func TrbRep(n int) int {
	switch n {
	case 0:
		return 22
	case 1:
		return 13 + 5 + 5 + 42
	default:
		return 7 + 4 + 5 + 13 + 11
	}
}

// Model carries the per-job timing adjustments.
type Model struct {
	// AddScf accounts for the player build that sets carry before returning
	// from the frame interrupt.
	AddScf bool
}

func (m *Model) epilogue() int {
	t := afterPlayFrame
	if m.AddScf {
		t += 4
	}
	return t
}

// Pl0x is the symbol-specific decode path cost for a register delta.
func (m *Model) Pl0x(d psg.Delta, inDict bool) int {
	if d.Len() == 1 {
		return pl00SingleReg
	}
	if inDict {
		return dictPreamble + playByMaskLow(d) + playByMaskHigh(d)
	}

	t := psg2Preamble
	if d.CountLow() == 6 {
		t += playAll05
	} else {
		t += playByMaskLow(d)
	}
	if d.CountMid() == 7 {
		if d.Has(psg.EnvFormReg) {
			t += playAll613
		} else {
			t += playAll613NoForm
		}
	} else {
		t += playByMaskHigh(d)
	}
	return t
}

// playByMaskLow walks registers 5..0, the direction the player's register
// pointer moves through the low half.
func playByMaskLow(d psg.Delta) int {
	t := 0
	for reg := 5; reg >= 1; reg-- {
		if d.Has(reg) {
			t += maskLoopPresent
		} else {
			t += maskLoopAbsent
		}
	}
	if d.Has(0) {
		t += maskFinalPresent
	} else {
		t += maskFinalAbsent
	}
	return t + maskFinalTestAdj
}

// playByMaskHigh walks registers 13..6.
func playByMaskHigh(d psg.Delta) int {
	t := 0
	for reg := 13; reg >= 7; reg-- {
		if d.Has(reg) {
			t += maskLoopPresent
		} else {
			t += maskLoopAbsent
		}
	}
	if d.Has(6) {
		t += maskFinalPresent
	} else {
		t += maskFinalAbsent
	}
	return t + maskFinalTestAdj
}

// OwnFrameTime is the full cost of decoding a frame emitted own.
func (m *Model) OwnFrameTime(d psg.Delta, inDict bool, rep int) int {
	return ownPrologue + m.Pl0x(d, inDict) + m.epilogue() + TrbRep(rep)
}

// ShortRefTime is the cost of a 2-byte reference frame.
func (m *Model) ShortRefTime(d psg.Delta, inDict bool) int {
	return shortRefInit + m.Pl0x(d, inDict) + m.epilogue()
}

// LongRefFirstTime is the cost of the first frame of a long reference whose
// donor sits depth levels of references away from an own frame.
func (m *Model) LongRefFirstTime(d psg.Delta, inDict bool, depth int) int {
	return longRefInit + m.Pl0x(d, inDict) + m.epilogue() + depth*nestedHop
}

// DelayTime is the per-frame cost of a delay run element.
func (m *Model) DelayTime(s DelayState) int {
	switch s {
	case DelaySingle:
		return 98 + 12 + 7 + 6 + 12 + 10 + 10 + m.epilogue()
	case DelayLongFirst:
		return 98 + 12 + 7 + 6 + 12 + 10 + 10 + 12 + 7 + m.epilogue()
	case DelayFirst:
		return 98 + 12 + 7 + 6 + 12 + 10 + 10 + 5 + m.epilogue()
	case DelayMid:
		return 12 + 10 + 14 + m.epilogue()
	case DelayLast:
		return 12 + 10 + 7 + 12 + m.epilogue()
	}
	panic("timing: unknown delay state")
}

// DelayRunTime sums a whole delay element of n frames.
func (m *Model) DelayRunTime(n int) int {
	if n <= 0 {
		return 0
	}
	if n == 1 {
		return m.DelayTime(DelaySingle)
	}
	first := DelayFirst
	if n > 16 {
		first = DelayLongFirst
	}
	t := m.DelayTime(first)
	for i := 1; i < n-1; i++ {
		t += m.DelayTime(DelayMid)
	}
	return t + m.DelayTime(DelayLast)
}

// RejectLongRefL01 reports whether a long reference into a donor with this
// delta must be refused at levels 0..1: the reference preamble burns budget
// the body cannot recover from.
func (m *Model) RejectLongRefL01(d psg.Delta, inDict bool) bool {
	t := m.Pl0x(d, inDict)
	return (longRefInit-ownPrologue)-(maxOwnTimeL01-t) > 0
}
