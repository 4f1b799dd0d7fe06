package psg

import "sort"

// DictSlots is the fixed size of the long-mask dictionary. Each retained mask
// lets a frame drop one header byte.
const DictSlots = 32

// MaskDict is the frozen top-N long masks of a frame stream, ranked by
// frequency. Index order is significant: slot k is referenced on the wire as
// 0x20|k.
type MaskDict struct {
	masks []uint16
	index map[uint16]int
}

// BuildMaskDict histograms the long masks of the multi-register frames and
// keeps the DictSlots most frequent. Ties break toward the smaller mask so
// the dictionary is deterministic across passes.
func BuildMaskDict(frames []Frame) *MaskDict {
	usage := make(map[uint16]int)
	for _, f := range frames {
		if f.IsDelay() || f.Delta.Len() < 2 {
			continue
		}
		usage[f.Delta.LongMask()]++
	}

	type entry struct {
		mask  uint16
		count int
	}
	entries := make([]entry, 0, len(usage))
	for mask, count := range usage {
		entries = append(entries, entry{mask, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].mask < entries[j].mask
	})

	if len(entries) > DictSlots {
		entries = entries[:DictSlots]
	}
	d := &MaskDict{index: make(map[uint16]int, len(entries))}
	for i, e := range entries {
		d.masks = append(d.masks, e.mask)
		d.index[e.mask] = i
	}
	return d
}

// Lookup returns the slot of mask, if retained.
func (d *MaskDict) Lookup(mask uint16) (int, bool) {
	idx, ok := d.index[mask]
	return idx, ok
}

// Contains reports whether the delta's long mask is retained. Single-register
// deltas never use the dictionary.
func (d *MaskDict) Contains(delta Delta) bool {
	if delta.Len() < 2 {
		return false
	}
	_, ok := d.index[delta.LongMask()]
	return ok
}

// Len is the number of occupied slots.
func (d *MaskDict) Len() int {
	return len(d.masks)
}

// Mask returns the mask at slot k.
func (d *MaskDict) Mask(k int) uint16 {
	return d.masks[k]
}
