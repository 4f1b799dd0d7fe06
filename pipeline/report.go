package pipeline

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"psgpack/encode"
	"psgpack/psg"
	"psgpack/serialize"
	"psgpack/timing"
)

// timingReport renders one CSV row per emitted element: frame index, kind,
// encoded bytes and T-states. A delay row sums every frame of the run; the
// other rows price the element's first frame.
func timingReport(frames []psg.Frame, packed *encode.Result, dict *psg.MaskDict, model *timing.Model, inflate map[string]bool) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"frame", "kind", "bytes", "tstates"})

	useDict := func(f psg.Frame) bool {
		return !inflate[f.RawKey] && dict.Contains(f.Delta)
	}

	for i := 0; i < len(frames); {
		f := frames[i]
		ri := packed.RefInfo[i]

		switch {
		case f.IsDelay():
			n := f.DelayLen()
			_ = w.Write(row(i, "delay", serialize.DelaySize(n), model.DelayRunTime(n)))
			i++

		case ri.RefLen > 1:
			donor := frames[resolveOwn(packed.RefInfo, ri.RefTo)]
			t := model.LongRefFirstTime(donor.Delta, useDict(donor), 0)
			_ = w.Write(row(i, "longref", 3, t))
			i += ri.RefLen

		case ri.RefLen == 1:
			donor := frames[resolveOwn(packed.RefInfo, ri.RefTo)]
			_ = w.Write(row(i, "shortref", 2, model.ShortRefTime(donor.Delta, useDict(donor))))
			i++

		default:
			size := serialize.FrameSize(f.Delta, dict, !inflate[f.RawKey])
			_ = w.Write(row(i, "own", size, model.OwnFrameTime(f.Delta, useDict(f), 0)))
			i++
		}
	}
	w.Flush()
	return buf.Bytes()
}

func resolveOwn(refInfo []encode.RefInfo, pos int) int {
	for refInfo[pos].RefLen > 0 {
		pos = refInfo[pos].RefTo + refInfo[pos].OffsetInRef
	}
	return pos
}

func row(frame int, kind string, size, tstates int) []string {
	return []string{
		strconv.Itoa(frame),
		kind,
		strconv.Itoa(size),
		strconv.Itoa(tstates),
	}
}
