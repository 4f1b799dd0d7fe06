// Package parse walks the tokenized PSG source and assembles the per-frame
// delta stream the packer compresses. Register writes accumulate into the
// current partial frame; frame-advance tokens flush it through cleaning, the
// cross-frame delta and the symbol table.
package parse

import (
	"errors"
	"fmt"

	"psgpack/clean"
	"psgpack/psg"
)

// HeaderSize is the opaque prologue of the source format, passed through
// verbatim.
const HeaderSize = 16

// ErrMalformed marks input-format violations: a short file, a register index
// above 13, or a truncated token.
var ErrMalformed = errors.New("malformed psg input")

// CutRange admits input frames with From <= index < To.
type CutRange struct {
	From, To int
}

// Options configures one parse pass.
type Options struct {
	// Level is the compression level 0..5. Below 3 every near-full delta is
	// widened to the full register group.
	Level int

	// Clean enables the audibility projection.
	Clean      bool
	CleanFlags clean.Flags

	// Dump captures the canonical post-clean stream for the side file.
	Dump bool

	// Cuts restricts which source frames are admitted. Empty means all.
	Cuts []CutRange

	// MustInflate forces widening for deltas marked by a previous pack pass,
	// keyed by their canonical pre-widening delta key.
	MustInflate map[string]bool
}

// Stats counts what the parser saw.
type Stats struct {
	PSGFrames  int
	RegsChange map[int]int
	Cleaning   clean.Counters
}

// Result is the assembled stream.
type Result struct {
	Header  []byte
	Frames  []psg.Frame
	Symbols *psg.Table
	Dump    []byte
	Stats   Stats
}

type parser struct {
	opts    Options
	symbols *psg.Table
	cleaner *clean.Cleaner

	frames []psg.Frame
	dump   []byte

	changedRegs     psg.Delta
	lastOrigRegs    [psg.NumRegs]byte
	lastCleanedRegs [psg.NumRegs]byte
	prevCleanedRegs [psg.NumRegs]byte
	havePrev        bool
	seeded          bool

	delayCounter int
	stats        Stats
}

// Parse runs one full pass over the source bytes.
func Parse(src []byte, opts Options) (*Result, error) {
	if len(src) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, header needs %d", ErrMalformed, len(src), HeaderSize)
	}

	p := &parser{
		opts:    opts,
		symbols: psg.NewTable(),
		cleaner: clean.New(opts.CleanFlags),
		stats:   Stats{RegsChange: make(map[int]int)},
	}

	cuts := opts.Cuts
	if len(cuts) == 0 {
		cuts = []CutRange{{From: 0, To: int(^uint(0) >> 1)}}
	}
	cutIdx := 0
	frameIdx := 0
	emitting := frameIdx >= cuts[0].From && frameIdx < cuts[0].To

	pos := HeaderSize
	end := len(src)

	advance := func(n int) bool {
		frameIdx += n
		for cutIdx < len(cuts) && frameIdx >= cuts[cutIdx].To {
			cutIdx++
		}
		if cutIdx == len(cuts) {
			// Clip the pending delay to the range end before stopping.
			if over := frameIdx - cuts[len(cuts)-1].To; over > 0 {
				p.delayCounter -= over
				if p.delayCounter < 0 {
					p.delayCounter = 0
				}
			}
			return false
		}
		nowEmitting := frameIdx >= cuts[cutIdx].From
		if nowEmitting && !emitting {
			// Entering a range: the first admitted frame must carry the
			// full state, and nothing waits in the delay counter.
			p.havePrev = false
			p.delayCounter = 0
		}
		emitting = nowEmitting
		return true
	}

loop:
	for pos < end {
		value := src[pos]
		switch {
		case value == 0xfd:
			break loop

		case value >= 0xfe:
			p.stats.PSGFrames++
			p.flushRegs(emitting)
			if value == 0xff {
				p.delayCounter++
				if !advance(1) {
					break loop
				}
				pos++
			} else {
				if pos+1 >= end {
					return nil, fmt.Errorf("%w: truncated 0xfe token", ErrMalformed)
				}
				n := 4 * int(src[pos+1])
				p.delayCounter += n
				if !advance(n) {
					break loop
				}
				pos += 2
			}

		default:
			if value > 13 {
				return nil, fmt.Errorf("%w: register %d at offset %d", ErrMalformed, value, pos)
			}
			if pos+1 >= end {
				return nil, fmt.Errorf("%w: truncated register write", ErrMalformed)
			}
			if emitting {
				p.writeDelay(p.delayCounter - 1)
			}
			p.delayCounter = 0

			p.changedRegs.Set(int(value), src[pos+1])
			p.lastOrigRegs[value] = src[pos+1]
			p.stats.RegsChange[int(value)]++
			pos += 2
		}
	}
	p.flushRegs(emitting)
	if emitting {
		p.writeDelay(p.delayCounter - 1)
	}

	p.stats.Cleaning = p.cleaner.Counters
	header := make([]byte, HeaderSize)
	copy(header, src[:HeaderSize])
	return &Result{
		Header:  header,
		Frames:  p.frames,
		Symbols: p.symbols,
		Dump:    p.dump,
		Stats:   p.stats,
	}, nil
}

// flushRegs turns the accumulated writes into a frame record. A flush whose
// cross-frame delta comes out empty emits nothing and folds the frame back
// into the delay run.
func (p *parser) flushRegs(emit bool) {
	if p.changedRegs.Empty() {
		return
	}

	if !p.seeded {
		// First flush: the chip powers up zeroed. Register 13 stays out
		// unless written, a zero write there still retriggers.
		for i := 0; i < 13; i++ {
			p.changedRegs.SetDefault(i, 0)
		}
		p.seeded = true
	}

	p.lastCleanedRegs = p.lastOrigRegs
	if p.opts.Clean {
		p.cleaner.Apply(&p.lastCleanedRegs)
	}

	var delta psg.Delta
	for i := 0; i < psg.NumRegs; i++ {
		if !p.havePrev {
			if i == psg.EnvFormReg && !p.changedRegs.Has(psg.EnvFormReg) {
				// A seeded zero here would retrigger the envelope.
				continue
			}
			delta.Set(i, p.lastCleanedRegs[i])
			continue
		}
		if p.lastCleanedRegs[i] != p.prevCleanedRegs[i] {
			delta.Set(i, p.lastCleanedRegs[i])
		}
	}
	if p.changedRegs.Has(psg.EnvFormReg) && !p.opts.Clean {
		// Envelope retrigger: the write matters even when the value repeats.
		delta.Set(psg.EnvFormReg, p.changedRegs.Get(psg.EnvFormReg))
	}

	p.prevCleanedRegs = p.lastCleanedRegs
	p.havePrev = true
	p.changedRegs = psg.Delta{}

	if delta.Empty() {
		// Inaudible frame: its slot becomes one more delay frame.
		p.delayCounter++
		return
	}
	if !emit {
		return
	}

	if p.opts.Dump {
		p.dump = append(p.dump, 0xff)
		for _, reg := range delta.Regs() {
			p.dump = append(p.dump, byte(reg), delta.Get(reg))
		}
	}

	rawKey := delta.Key()
	if p.opts.Level < 3 || p.opts.MustInflate[rawKey] {
		p.widen(&delta)
	}

	p.frames = append(p.frames, psg.Frame{
		Symbol: p.symbols.Intern(delta),
		State:  p.lastCleanedRegs,
		Delta:  delta,
		RawKey: rawKey,
	})
}

// widen extends a near-full delta to the whole register group. The packed
// frame grows, but the player takes its fastest decode branch.
func (p *parser) widen(delta *psg.Delta) {
	if delta.CountLow() == 5 {
		for i := 0; i < 6; i++ {
			delta.Set(i, p.lastCleanedRegs[i])
		}
	}
	if n := delta.CountMid(); n == 5 || n == 6 {
		for i := 6; i < 13; i++ {
			delta.Set(i, p.lastCleanedRegs[i])
		}
	}
}

// writeDelay appends a delay run, merging with any trailing delay records and
// chunking to MaxDelay.
func (p *parser) writeDelay(delay int) {
	if delay <= 0 {
		return
	}
	if p.opts.Dump {
		for i := 0; i < delay; i++ {
			p.dump = append(p.dump, 0xff)
		}
	}

	for len(p.frames) > 0 && p.frames[len(p.frames)-1].IsDelay() {
		delay += p.frames[len(p.frames)-1].DelayLen()
		p.frames = p.frames[:len(p.frames)-1]
	}
	for delay > 0 {
		d := delay
		if d > psg.MaxDelay {
			d = psg.MaxDelay
		}
		p.frames = append(p.frames, psg.DelayFrame(d))
		delay -= d
	}
}
