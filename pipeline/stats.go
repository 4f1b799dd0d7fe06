package pipeline

import (
	"sort"

	"github.com/klauspost/compress/zstd"
	log "github.com/sirupsen/logrus"

	"psgpack/clean"
	"psgpack/encode"
	"psgpack/parse"
	"psgpack/serialize"
)

// Stats merges parser and packer tallies for the end-of-job report.
type Stats struct {
	InputBytes  int
	PackedBytes int
	ZstdBytes   int

	PSGFrames   int
	TotalFrames int

	OwnCnt          int
	OwnBytes        int
	SingleRepeat    int
	AllRepeat       int
	AllRepeatFrames int
	EmptyCnt        int
	EmptyFrames     int

	RegsChange     map[int]int
	FirstHalfRegs  map[int]int
	SecondHalfRegs map[int]int
	Cleaning       clean.Counters
}

func buildStats(src []byte, parsed *parse.Result, packed *encode.Result) Stats {
	return Stats{
		InputBytes:      len(src),
		PackedBytes:     len(packed.Body) + serialize.PrologueSize,
		ZstdBytes:       zstdBaseline(src),
		PSGFrames:       parsed.Stats.PSGFrames,
		TotalFrames:     len(parsed.Frames),
		OwnCnt:          packed.Stats.OwnCnt,
		OwnBytes:        packed.Stats.OwnBytes,
		SingleRepeat:    packed.Stats.SingleRepeat,
		AllRepeat:       packed.Stats.AllRepeat,
		AllRepeatFrames: packed.Stats.AllRepeatFrames,
		EmptyCnt:        packed.Stats.EmptyCnt,
		EmptyFrames:     packed.Stats.EmptyFrames,
		RegsChange:      parsed.Stats.RegsChange,
		FirstHalfRegs:   packed.Stats.FirstHalfRegs,
		SecondHalfRegs:  packed.Stats.SecondHalfRegs,
		Cleaning:        parsed.Stats.Cleaning,
	}
}

// zstdBaseline is the size a general-purpose compressor reaches on the raw
// source, reported beside the packed size for ratio context. Zero when the
// encoder cannot be constructed.
func zstdBaseline(src []byte) int {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return 0
	}
	defer enc.Close()
	return len(enc.EncodeAll(src, nil))
}

func logHalfHistogram(name string, hist map[int]int) {
	counts := make([]int, 0, len(hist))
	for n := range hist {
		counts = append(counts, n)
	}
	sort.Ints(counts)
	for _, n := range counts {
		log.Debugf("%s %d: %d", name, n, hist[n])
	}
}

// Log prints the end-of-job summary.
func (s Stats) Log() {
	log.WithFields(log.Fields{
		"input":  s.InputBytes,
		"packed": s.PackedBytes,
		"zstd":   s.ZstdBytes,
	}).Info("compression done")
	log.WithFields(log.Fields{
		"psgFrames":   s.PSGFrames,
		"totalFrames": s.TotalFrames,
		"own":         s.OwnCnt,
		"ownBytes":    s.OwnBytes,
		"shortRefs":   s.SingleRepeat,
		"refs":        s.AllRepeat,
		"refFrames":   s.AllRepeatFrames,
		"delayRuns":   s.EmptyCnt,
		"delayFrames": s.EmptyFrames,
	}).Info("frame breakdown")

	regs := make([]int, 0, len(s.RegsChange))
	for reg := range s.RegsChange {
		regs = append(regs, reg)
	}
	sort.Ints(regs)
	for _, reg := range regs {
		log.Debugf("reg %2d writes: %d", reg, s.RegsChange[reg])
	}
	logHalfHistogram("first-half regs per frame", s.FirstHalfRegs)
	logHalfHistogram("second-half regs per frame", s.SecondHalfRegs)

	c := s.Cleaning
	if c != (clean.Counters{}) {
		log.WithFields(log.Fields{
			"toneA":    c.UnusedToneA,
			"toneB":    c.UnusedToneB,
			"toneC":    c.UnusedToneC,
			"envelope": c.UnusedEnvelope,
			"envForm":  c.UnusedEnvForm,
			"noise":    c.UnusedNoise,
		}).Info("cleaning erasures")
	}
}
