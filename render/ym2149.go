// Package render bounces an assembled frame stream through a YM2149 model to
// a WAV file, so the effect of register cleaning can be audited by ear.
package render

import "psgpack/psg"

// Envelope shapes: one period of 8 steps per form, continued or held
// according to the form bits.
var envShapes = [16][8]int{
	{1, 0, 0, 0, 0, 0, 0, 0}, {1, 0, 0, 0, 0, 0, 0, 0},
	{1, 0, 0, 0, 0, 0, 0, 0}, {1, 0, 0, 0, 0, 0, 0, 0},
	{0, 1, 0, 0, 0, 0, 0, 0}, {0, 1, 0, 0, 0, 0, 0, 0},
	{0, 1, 0, 0, 0, 0, 0, 0}, {0, 1, 0, 0, 0, 0, 0, 0},
	{1, 0, 1, 0, 1, 0, 1, 0}, {1, 0, 0, 0, 0, 0, 0, 0},
	{1, 0, 0, 1, 1, 0, 0, 1}, {1, 0, 1, 1, 1, 1, 1, 1},
	{0, 1, 0, 1, 0, 1, 0, 1}, {0, 1, 1, 1, 1, 1, 1, 1},
	{0, 1, 1, 0, 0, 1, 1, 0}, {0, 1, 0, 0, 0, 0, 0, 0},
}

// ymVolume is the chip's logarithmic 16-step volume curve. Step 0 is silent.
var ymVolume = [16]int{
	0, 161, 265, 377, 580, 774, 1155, 1575,
	2260, 3088, 4570, 6233, 9330, 13187, 21220, 32767,
}

// Synth is a straight tone/noise/envelope YM2149 model clocked per output
// sample.
type Synth struct {
	clock      int // chip clock in Hz
	sampleRate int

	regs [psg.NumRegs]byte

	tonePos   [3]float64
	toneStep  [3]float64
	noisePos  float64
	noiseStep float64
	noiseBit  int
	lfsr      uint32

	envPos  float64
	envStep float64
	envIdx  int
	envHold bool
}

// NewSynth builds a synth for the common ZX Spectrum AY clock.
func NewSynth(sampleRate int) *Synth {
	return &Synth{
		clock:      1773400,
		sampleRate: sampleRate,
		lfsr:       1,
		noiseBit:   1,
	}
}

// Write applies one register write, retriggering the envelope on register 13.
func (s *Synth) Write(reg int, v byte) {
	s.regs[reg] = v
	switch reg {
	case 0, 1, 2, 3, 4, 5:
		ch := reg / 2
		s.toneStep[ch] = s.periodStep(s.tonePeriod(ch) * 8)
	case 6:
		s.noiseStep = s.periodStep(int(v&31) * 16)
	case 11, 12:
		s.envStep = s.periodStep(s.envPeriod() * 16)
	case 13:
		s.envStep = s.periodStep(s.envPeriod() * 16)
		s.envPos = 0
		s.envIdx = 0
		s.envHold = false
	}
}

func (s *Synth) tonePeriod(ch int) int {
	p := int(s.regs[ch*2]) | int(s.regs[ch*2+1]&15)<<8
	if p == 0 {
		p = 1
	}
	return p
}

func (s *Synth) envPeriod() int {
	p := int(s.regs[11]) | int(s.regs[12])<<8
	if p == 0 {
		p = 1
	}
	return p
}

// periodStep converts a divider in chip cycles to a per-sample phase step.
func (s *Synth) periodStep(cycles int) float64 {
	if cycles <= 0 {
		cycles = 1
	}
	return float64(s.clock) / float64(cycles) / float64(s.sampleRate)
}

func (s *Synth) stepNoise() {
	s.noisePos += s.noiseStep
	for s.noisePos >= 1 {
		s.noisePos--
		// 17-bit LFSR, taps 0 and 3.
		bit := (s.lfsr ^ (s.lfsr >> 3)) & 1
		s.lfsr = (s.lfsr >> 1) | (bit << 16)
		s.noiseBit = int(s.lfsr & 1)
	}
}

func (s *Synth) stepEnvelope() {
	if s.envHold {
		return
	}
	s.envPos += s.envStep
	for s.envPos >= 1 {
		s.envPos--
		s.envIdx++
		if s.envIdx >= 8 {
			form := s.regs[13] & 15
			if form < 8 || form&1 != 0 {
				// One-shot forms hold their final value.
				s.envIdx = 7
				s.envHold = true
			} else {
				s.envIdx = 0
			}
		}
	}
}

// envLevel collapses the shape step to the loud/quiet extremes; the audit
// bounce needs envelope timing and retriggers, not the full 32-step ramp.
func (s *Synth) envLevel() int {
	form := s.regs[13] & 15
	if envShapes[form][s.envIdx] != 0 {
		return 15
	}
	return 0
}

// Sample advances all generators by one output sample and returns a signed
// 16-bit mono sample.
func (s *Synth) Sample() int {
	s.stepNoise()
	s.stepEnvelope()

	mixer := s.regs[7]
	sum := 0
	for ch := 0; ch < 3; ch++ {
		s.tonePos[ch] += s.toneStep[ch]
		for s.tonePos[ch] >= 2 {
			s.tonePos[ch] -= 2
		}
		toneBit := 0
		if s.tonePos[ch] < 1 {
			toneBit = 1
		}

		// Mixer bits are disable flags: set means the source is always on.
		toneOn := mixer&(1<<uint(ch)) != 0 || toneBit != 0
		noiseOn := mixer&(1<<uint(ch+3)) != 0 || s.noiseBit != 0
		if !toneOn || !noiseOn {
			continue
		}

		vol := s.regs[8+ch] & 31
		level := 0
		if vol&16 != 0 {
			level = s.envLevel()
		} else {
			level = int(vol & 15)
		}
		sum += ymVolume[level]
	}

	sum /= 3
	if sum > 32767 {
		sum = 32767
	}
	return sum - 16384
}
