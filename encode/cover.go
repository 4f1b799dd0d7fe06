package encode

import "psgpack/psg"

// covers reports whether executing frame m would leave the chip in a state
// indistinguishable from executing frame s. Symbol equality always covers;
// at level 1+ a donor may carry extra writes as long as each one is a no-op
// on s's pre-state, and a donor writing the envelope form can only cover a
// frame that also writes it.
func covers(m, s psg.Frame, level int) bool {
	if m.Symbol == s.Symbol {
		return true
	}
	if level < 1 {
		return false
	}
	if m.IsDelay() || s.IsDelay() {
		return false
	}

	for _, reg := range s.Delta.Regs() {
		if !m.Delta.Has(reg) || m.Delta.Get(reg) != s.Delta.Get(reg) {
			return false
		}
	}
	for _, reg := range m.Delta.Regs() {
		if s.Delta.Has(reg) {
			continue
		}
		if s.State[reg] != m.Delta.Get(reg) {
			return false
		}
	}
	if m.Delta.Has(psg.EnvFormReg) && !s.Delta.Has(psg.EnvFormReg) {
		return false
	}
	return true
}
