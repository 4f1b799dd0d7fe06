// Package clean implements the audibility projection over the register bank:
// writes whose audible effect is masked by the rest of the chip state are
// replaced with remembered previous values, so identical-sounding frames
// collapse onto the same symbol.
package clean

import "psgpack/psg"

// Flags gates each erasure independently. All are on by default.
type Flags struct {
	ToneA    bool
	ToneB    bool
	ToneC    bool
	Envelope bool
	EnvForm  bool
	Noise    bool
}

// AllOn is the default flag set.
func AllOn() Flags {
	return Flags{ToneA: true, ToneB: true, ToneC: true, Envelope: true, EnvForm: true, Noise: true}
}

// Counters tallies how often each erasure fired.
type Counters struct {
	UnusedToneA    int
	UnusedToneB    int
	UnusedToneC    int
	UnusedEnvelope int
	UnusedEnvForm  int
	UnusedNoise    int
}

// Cleaner holds the shadow banks that supply replacement values. One cleaner
// lives per encoder job; the zero shadow banks match the chip's power-on
// state the parser seeds on the first frame.
type Cleaner struct {
	flags Flags

	prevTonePeriod     [psg.NumRegs]byte
	prevEnvelopePeriod [psg.NumRegs]byte
	prevEnvelopeForm   [psg.NumRegs]byte
	prevNoisePeriod    [psg.NumRegs]byte

	// envFormSeen flips once the envelope was active and the form captured.
	// Until then there is no prior value to erase toward, and the write is
	// kept as is.
	envFormSeen bool

	Counters Counters
}

func New(flags Flags) *Cleaner {
	return &Cleaner{flags: flags}
}

// Apply normalizes and cleans the bank in place. regs arrives as a copy of
// the raw accumulated register values for the frame; on return it holds the
// cleaned values. Erasure conditions and shadow-bank updates both read the
// normalized pre-erasure values, never a sibling branch's output.
func (c *Cleaner) Apply(regs *[psg.NumRegs]byte) {
	// Normalize to the bits the chip decodes.
	regs[1] &= 15
	regs[3] &= 15
	regs[5] &= 15
	regs[6] &= 31
	regs[7] &= 63
	regs[8] &= 31
	regs[9] &= 31
	regs[10] &= 31
	regs[13] &= 15

	// In envelope mode the volume bits are ignored.
	for _, i := range []int{8, 9, 10} {
		if regs[i]&16 != 0 {
			regs[i] = 16
		}
	}

	raw := *regs

	if c.flags.ToneA {
		if raw[8] == 0 || raw[7]&1 != 0 {
			regs[0] = c.prevTonePeriod[0]
			regs[1] = c.prevTonePeriod[1]
			c.Counters.UnusedToneA++
		} else {
			c.prevTonePeriod[0] = raw[0]
			c.prevTonePeriod[1] = raw[1]
		}
	}
	if c.flags.ToneB {
		if raw[9] == 0 || raw[7]&2 != 0 {
			regs[2] = c.prevTonePeriod[2]
			regs[3] = c.prevTonePeriod[3]
			c.Counters.UnusedToneB++
		} else {
			c.prevTonePeriod[2] = raw[2]
			c.prevTonePeriod[3] = raw[3]
		}
	}
	if c.flags.ToneC {
		if raw[10] == 0 || raw[7]&4 != 0 {
			regs[4] = c.prevTonePeriod[4]
			regs[5] = c.prevTonePeriod[5]
			c.Counters.UnusedToneC++
		} else {
			c.prevTonePeriod[4] = raw[4]
			c.prevTonePeriod[5] = raw[5]
		}
	}

	envActive := raw[8]&16 != 0 || raw[9]&16 != 0 || raw[10]&16 != 0

	if c.flags.Envelope {
		if !envActive {
			regs[11] = c.prevEnvelopePeriod[11]
			regs[12] = c.prevEnvelopePeriod[12]
			c.Counters.UnusedEnvelope++
		} else {
			c.prevEnvelopePeriod[11] = raw[11]
			c.prevEnvelopePeriod[12] = raw[12]
		}
	}
	if c.flags.EnvForm {
		if !envActive {
			if c.envFormSeen {
				regs[13] = c.prevEnvelopeForm[13]
				c.Counters.UnusedEnvForm++
			}
		} else {
			c.prevEnvelopeForm[13] = raw[13]
			c.envFormSeen = true
		}
	}

	if c.flags.Noise {
		if raw[7]&8 != 0 && raw[7]&16 != 0 && raw[7]&32 != 0 {
			regs[6] = c.prevNoisePeriod[6]
			c.Counters.UnusedNoise++
		} else {
			c.prevNoisePeriod[6] = raw[6]
		}
	}
}
