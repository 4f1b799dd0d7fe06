// Package pipeline drives a compression job end to end: parse, mask
// dictionary, pack, and at level 4+ the re-pack loop that widens symbols
// whose long-reference first frame overran the playback budget.
package pipeline

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"psgpack/clean"
	"psgpack/encode"
	"psgpack/parse"
	"psgpack/psg"
	"psgpack/serialize"
	"psgpack/timing"
)

// ErrLevel rejects levels outside 0..5 before any work starts.
var ErrLevel = errors.New("compression level out of range")

// maxPackPasses backstops a non-converging mustInflate set; in practice the
// set stabilizes after one or two re-packs.
const maxPackPasses = 16

// Config is a whole job's options.
type Config struct {
	Level      int
	Clean      bool
	CleanFlags clean.Flags
	Dump       bool
	Info       bool
	AddScf     bool
	Cuts       []parse.CutRange
}

// Result carries everything the front-end writes out.
type Result struct {
	Output []byte // prologue || body || end marker
	Dump   []byte // canonical post-clean stream, when requested
	Report []byte // CSV timing report, when requested

	Frames  []psg.Frame
	Stats   Stats
	Passes  int
}

// Run executes one job. The encoder context is rebuilt from scratch on every
// pass; only the mustInflate set carries over.
func Run(src []byte, cfg Config) (*Result, error) {
	if cfg.Level < 0 || cfg.Level > 5 {
		return nil, fmt.Errorf("%w: %d", ErrLevel, cfg.Level)
	}

	model := &timing.Model{AddScf: cfg.AddScf}
	mustInflate := make(map[string]bool)

	for pass := 1; ; pass++ {
		parsed, err := parse.Parse(src, parse.Options{
			Level:       cfg.Level,
			Clean:       cfg.Clean,
			CleanFlags:  cfg.CleanFlags,
			Dump:        cfg.Dump,
			Cuts:        cfg.Cuts,
			MustInflate: mustInflate,
		})
		if err != nil {
			return nil, err
		}

		dict := psg.BuildMaskDict(parsed.Frames)
		packed := encode.Pack(parsed.Frames, dict, encode.Options{
			Level:   cfg.Level,
			Model:   model,
			Inflate: mustInflate,
		})

		if cfg.Level >= 4 && pass < maxPackPasses {
			marked := false
			for key := range packed.MustInflate {
				if !mustInflate[key] {
					mustInflate[key] = true
					marked = true
				}
			}
			if marked {
				log.WithFields(log.Fields{
					"pass":    pass,
					"inflate": len(mustInflate),
				}).Debug("re-packing: long reference over budget")
				continue
			}
		}

		output := make([]byte, 0, serialize.PrologueSize+len(packed.Body))
		output = append(output, serialize.Prologue(dict)...)
		output = append(output, packed.Body...)

		res := &Result{
			Output: output,
			Frames: parsed.Frames,
			Stats:  buildStats(src, parsed, packed),
			Passes: pass,
		}
		if cfg.Dump {
			res.Dump = append(res.Dump, parsed.Header...)
			res.Dump = append(res.Dump, parsed.Dump...)
		}
		if cfg.Info {
			res.Report = timingReport(parsed.Frames, packed, dict, model, mustInflate)
		}
		return res, nil
	}
}
