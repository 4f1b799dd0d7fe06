// Package encode runs the back-reference compressor: for every frame slot it
// either finds the most byte-saving reference into the already-emitted window
// or serializes the frame own, keeping the byte-offset table and reference
// records the matcher and the cycle model feed on.
package encode

import (
	"fmt"

	"psgpack/psg"
	"psgpack/serialize"
	"psgpack/timing"
)

// RefInfo records how a frame slot was emitted. RefLen 0 means own, 1 a
// short reference, >1 a long reference of that many frames; every covered
// slot carries its position inside the reference.
type RefInfo struct {
	RefTo       int
	RefLen      int
	ReducedLen  int
	NestedLevel int
	OffsetInRef int
}

// Options configures one pack pass.
type Options struct {
	Level int
	Model *timing.Model

	// Inflate is the mustInflate set carried in from earlier passes. Frames
	// whose raw key is marked serialize in the explicit form so the player
	// takes its play_all branches, and they may not donate long references
	// that would still overrun the budget.
	Inflate map[string]bool
}

// Stats tallies the pack pass.
type Stats struct {
	OwnCnt          int
	OwnBytes        int
	SingleRepeat    int
	AllRepeat       int
	AllRepeatFrames int
	EmptyCnt        int
	EmptyFrames     int

	// Histograms over own multi-register frames: how many registers the
	// frame carried in each half of the bank.
	FirstHalfRegs  map[int]int
	SecondHalfRegs map[int]int
}

// Result is the packed body plus everything the pipeline inspects.
type Result struct {
	Body         []byte
	RefInfo      []RefInfo
	FrameOffsets []int
	Stats        Stats

	// MustInflate holds the raw keys of donor deltas whose long-reference
	// first frame overran MaxTimeForL4. Non-empty only at level 4+.
	MustInflate map[string]bool
}

type encoder struct {
	opts   Options
	frames []psg.Frame
	dict   *psg.MaskDict

	w            *serialize.Writer
	refInfo      []RefInfo
	frameOffsets []int

	mustInflate map[string]bool
	stats       Stats
}

// Pack compresses the frame stream against the given mask dictionary.
func Pack(frames []psg.Frame, dict *psg.MaskDict, opts Options) *Result {
	e := &encoder{
		opts:        opts,
		frames:      frames,
		dict:        dict,
		w:           serialize.NewWriter(dict),
		refInfo:     make([]RefInfo, len(frames)),
		mustInflate: make(map[string]bool),
	}
	e.stats.FirstHalfRegs = make(map[int]int)
	e.stats.SecondHalfRegs = make(map[int]int)
	e.pack()
	return &Result{
		Body:         e.w.Bytes(),
		RefInfo:      e.refInfo,
		FrameOffsets: e.frameOffsets,
		Stats:        e.stats,
		MustInflate:  e.mustInflate,
	}
}

func (e *encoder) pack() {
	for i := 0; i < len(e.frames); {
		for len(e.frameOffsets) <= i {
			e.frameOffsets = append(e.frameOffsets, e.w.Len())
		}

		f := e.frames[i]
		if f.IsDelay() {
			e.w.Delay(f.DelayLen())
			e.stats.EmptyCnt++
			e.stats.EmptyFrames += f.DelayLen()
			i++
			continue
		}

		pos, length, reduced, nested := e.findRef(i)
		if length > 0 {
			e.w.Ref(e.frameOffsets[pos], reduced)
			for j := 0; j < length; j++ {
				e.refInfo[i+j] = RefInfo{
					RefTo:       pos,
					RefLen:      length,
					ReducedLen:  reduced,
					NestedLevel: nested,
					OffsetInRef: j,
				}
			}
			if length == 1 {
				e.stats.SingleRepeat++
			}
			e.stats.AllRepeat++
			e.stats.AllRepeatFrames += length

			if e.opts.Level >= 4 && reduced > 1 {
				if t := e.refFirstFrameTime(pos); t > timing.MaxTimeForL4 {
					e.mustInflate[e.frames[pos].RawKey] = true
				}
			}
			// Frames consumed by the reference resolve to the next element.
			for len(e.frameOffsets) < i+length {
				e.frameOffsets = append(e.frameOffsets, e.w.Len())
			}
			i += length
		} else {
			before := e.w.Len()
			e.w.Frame(f.Delta, e.allowDict(f))
			e.stats.OwnCnt++
			e.stats.OwnBytes += e.w.Len() - before
			if n := f.Delta.Len(); n > 1 {
				low := f.Delta.CountLow()
				e.stats.FirstHalfRegs[low]++
				e.stats.SecondHalfRegs[n-low]++
			}
			i++
		}
	}
	e.w.End()
}

// allowDict reports whether the frame may use the mask dictionary: marked
// frames stay on the explicit headers the play_all branches need.
func (e *encoder) allowDict(f psg.Frame) bool {
	return !e.opts.Inflate[f.RawKey]
}

// useDict reports whether the frame actually serializes via the dictionary.
func (e *encoder) useDict(f psg.Frame) bool {
	return e.allowDict(f) && e.dict.Contains(f.Delta)
}

// refFirstFrameTime resolves the donor chain to an own frame and prices the
// first frame of a long reference landing there.
func (e *encoder) refFirstFrameTime(pos int) int {
	depth := 0
	for e.refInfo[pos].RefLen > 0 {
		pos = e.refInfo[pos].RefTo + e.refInfo[pos].OffsetInRef
		depth++
		if depth > timing.MaxNestedLevel {
			panic(fmt.Sprintf("encode: reference nesting exceeds %d", timing.MaxNestedLevel))
		}
	}
	f := e.frames[pos]
	return e.opts.Model.LongRefFirstTime(f.Delta, e.useDict(f), depth)
}

// frameSize is the serialized size of the frame at pos if emitted own.
func (e *encoder) frameSize(pos int) int {
	f := e.frames[pos]
	if f.IsDelay() {
		return serialize.DelaySize(f.DelayLen())
	}
	return serialize.FrameSize(f.Delta, e.dict, e.allowDict(f))
}

// findRef searches every earlier position for the most byte-saving reference
// covering the frames starting at pos. Ties keep the earliest donor.
func (e *encoder) findRef(pos int) (chainPos, chainLen, reducedLen, nestedLv int) {
	maxLength := len(e.frames) - pos
	if maxLength > 255 {
		maxLength = 255
	}
	reducedCap := 128
	if e.opts.Level >= 4 {
		reducedCap = 255
	}

	// Zero-benefit references still win: same size, and the frame stays
	// deduplicated for later long chains.
	bestBenefit := -1
	chainPos = -1

	for i := 0; i < pos; i++ {
		if e.frameOffsets[pos]-e.frameOffsets[i]+3 > serialize.MaxRefOffset {
			continue
		}
		if e.refInfo[i].RefLen != 0 || !covers(e.frames[i], e.frames[pos], e.opts.Level) {
			continue
		}

		length, reduced, nested := 0, 0, 0
		size := 0
		sizes := make([]int, 0, 16)

		for j := 0; j < maxLength && i+j < pos; j++ {
			if j > 0 && !covers(e.frames[i+j], e.frames[pos+j], e.opts.Level) {
				break
			}
			ri := e.refInfo[i+j]
			if e.opts.Level < 4 {
				if ri.RefLen > 1 {
					break
				}
			} else if ri.RefLen > 0 {
				if ri.NestedLevel+1 >= timing.MaxNestedLevel {
					break
				}
				if ri.NestedLevel+1 > nested {
					nested = ri.NestedLevel + 1
				}
			}

			charged := ri.RefLen == 0 || e.opts.Level >= 4
			if charged && reduced == reducedCap {
				break
			}
			length++
			if charged {
				reduced++
			}
			size += e.frameSize(pos + j)
			sizes = append(sizes, size)
		}
		if length == 0 {
			continue
		}

		// A reference cannot end inside another long reference: the player
		// would have no resumption point there.
		popped := false
		for length > 0 {
			ri := e.refInfo[i+length-1]
			if ri.RefLen > 1 && ri.OffsetInRef < ri.RefLen-1 {
				length--
				popped = true
				continue
			}
			break
		}
		if popped && reduced > 0 {
			reduced--
		}
		if e.opts.Level < 4 {
			for length > 0 && e.refInfo[i+length-1].RefLen == 1 {
				length--
			}
		}
		if length == 0 || reduced == 0 {
			continue
		}

		overhead := 3
		if length == 1 {
			overhead = 2
		}
		benefit := sizes[length-1] - overhead
		if benefit <= bestBenefit {
			continue
		}

		if length > 1 {
			donor := e.frames[i]
			if e.opts.Level < 2 {
				if e.opts.Model.RejectLongRefL01(donor.Delta, e.useDict(donor)) {
					continue
				}
			}
			if e.opts.Level >= 4 && e.opts.Inflate[donor.RawKey] {
				// Already widened and still over budget: emitting the long
				// reference would overrun playback for good.
				t := e.opts.Model.LongRefFirstTime(donor.Delta, e.useDict(donor), 0)
				if t > timing.MaxTimeForL4 {
					continue
				}
			}
		}

		bestBenefit = benefit
		chainPos = i
		chainLen = length
		reducedLen = reduced
		nestedLv = nested
	}
	return chainPos, chainLen, reducedLen, nestedLv
}
