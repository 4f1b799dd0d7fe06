// Package serialize emits the packed track: a fixed mask-dictionary prologue,
// then own frames, back-references and delay runs, closed by the end marker.
// Value orderings inside a frame are asymmetric on purpose: they follow the
// direction the player's decode loop walks its register pointer.
package serialize

import (
	"fmt"

	"psgpack/psg"
)

const (
	// EndMarker terminates the body. A reader stops decoding here.
	EndMarker = 0x0F

	// MaxRefOffset is the 14-bit back-reference window in body bytes.
	MaxRefOffset = 16384

	// PrologueSize is the serialized mask dictionary: 32 slots of 2 bytes.
	PrologueSize = psg.DictSlots * 2

	// maxShortDelay is the longest run the one-byte delay form holds.
	maxShortDelay = 16
)

// Prologue serializes the mask dictionary, little-endian per slot, unused
// slots zero.
func Prologue(dict *psg.MaskDict) []byte {
	out := make([]byte, PrologueSize)
	for k := 0; k < dict.Len(); k++ {
		mask := dict.Mask(k)
		out[k*2] = byte(mask)
		out[k*2+1] = byte(mask >> 8)
	}
	return out
}

// Writer accumulates the body. Offsets recorded by the caller index into the
// body, not the prologue.
type Writer struct {
	dict *psg.MaskDict
	buf  []byte
}

func NewWriter(dict *psg.MaskDict) *Writer {
	return &Writer{dict: dict}
}

func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

// Delay emits one delay element, 1 <= n <= MaxDelay.
func (w *Writer) Delay(n int) {
	if n < 1 || n > psg.MaxDelay {
		panic(fmt.Sprintf("serialize: delay %d out of range", n))
	}
	if n <= maxShortDelay {
		w.buf = append(w.buf, byte(0x10|(n-1)))
	} else {
		w.buf = append(w.buf, 0x00, byte(n-1))
	}
}

// DelaySize is the encoded size of one delay element.
func DelaySize(n int) int {
	if n <= maxShortDelay {
		return 1
	}
	return 2
}

// Frame emits an own frame. allowDict false forces the explicit two-header
// form even when the long mask is in the dictionary; widened frames need the
// explicit headers to reach the player's play_all branches.
func (w *Writer) Frame(d psg.Delta, allowDict bool) {
	regs := d.Regs()
	if len(regs) == 0 {
		panic("serialize: empty delta")
	}

	if len(regs) == 1 {
		w.buf = append(w.buf, byte(regs[0]+1), d.Get(regs[0]))
		return
	}

	if k, ok := w.dict.Lookup(d.LongMask()); ok && allowDict {
		w.buf = append(w.buf, byte(0x20|k))
		for i := len(regs) - 1; i >= 0; i-- {
			if regs[i] < 6 {
				w.buf = append(w.buf, d.Get(regs[i]))
			}
		}
		for i := len(regs) - 1; i >= 0; i-- {
			if regs[i] >= 6 {
				w.buf = append(w.buf, d.Get(regs[i]))
			}
		}
		return
	}

	w.buf = append(w.buf, 0x40|d.LowMask6())
	for _, reg := range regs {
		if reg < 6 {
			w.buf = append(w.buf, d.Get(reg))
		}
	}

	header2 := d.HighMaskRev()
	w.buf = append(w.buf, header2)
	if header2&0x7f == 0 {
		// play_all branch: regs 6..12 all present, forward order.
		for _, reg := range regs {
			if reg >= 6 {
				w.buf = append(w.buf, d.Get(reg))
			}
		}
	} else {
		// play_by_mask branch: backward order.
		for i := len(regs) - 1; i >= 0; i-- {
			if regs[i] >= 6 {
				w.buf = append(w.buf, d.Get(regs[i]))
			}
		}
	}
}

// FrameSize is the encoded size of an own frame without emitting it.
func FrameSize(d psg.Delta, dict *psg.MaskDict, allowDict bool) int {
	n := d.Len()
	if n == 1 {
		return 2
	}
	if allowDict && dict.Contains(d) {
		return 1 + n
	}
	return 2 + n
}

// Ref emits a back-reference to targetOffset (a body offset previously
// recorded for the donor frame). reducedLen is the count of donor frames the
// player charges time for; 1 selects the two-byte short form.
func (w *Writer) Ref(targetOffset, reducedLen int) {
	recordSize := 2
	if reducedLen > 1 {
		recordSize = 3
	}
	delta := targetOffset - len(w.buf) - recordSize
	if reducedLen > 1 {
		delta++
	}
	if delta >= 0 {
		panic(fmt.Sprintf("serialize: non-negative ref delta %d", delta))
	}

	hi := byte(uint16(int16(delta)) >> 8)
	lo := byte(uint16(int16(delta)))
	if reducedLen == 1 {
		hi &^= 0x40
	}
	w.buf = append(w.buf, hi, lo)
	if reducedLen > 1 {
		w.buf = append(w.buf, byte(reducedLen-1))
	}
}

// End closes the body.
func (w *Writer) End() {
	w.buf = append(w.buf, EndMarker)
}
