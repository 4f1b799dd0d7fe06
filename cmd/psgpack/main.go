// psgpack compresses a frame-accurate PSG register log into the packed track
// format the cycle-budgeted player decodes.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"psgpack/clean"
	"psgpack/parse"
	"psgpack/pipeline"
	"psgpack/render"
)

type cutList []parse.CutRange

func (c *cutList) String() string {
	parts := make([]string, 0, len(*c))
	for _, r := range *c {
		parts = append(parts, fmt.Sprintf("%d,%d", r.From, r.To))
	}
	return strings.Join(parts, " ")
}

func (c *cutList) Set(s string) error {
	from, to, ok := strings.Cut(s, ",")
	if !ok {
		return errors.New("expected from,to")
	}
	f, err := strconv.Atoi(from)
	if err != nil {
		return err
	}
	t, err := strconv.Atoi(to)
	if err != nil {
		return err
	}
	if f < 0 || t <= f {
		return fmt.Errorf("bad range %d,%d", f, t)
	}
	*c = append(*c, parse.CutRange{From: f, To: t})
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("psgpack", flag.ContinueOnError)
	level := fs.Int("level", 1, "compression level 0..5")
	doClean := fs.Bool("clean", true, "clean AY registers before packing")
	keep := fs.Bool("keep", false, "don't clean AY registers")
	dump := fs.Bool("dump", false, "dump the cleaned PSG stream to a side file")
	info := fs.Bool("info", false, "write a CSV timing report for each packed frame")
	scf := fs.Bool("scf", false, "account for the scf player build")
	wavPath := fs.String("wav", "", "bounce the cleaned stream to a WAV file")
	verbose := fs.Bool("v", false, "verbose logging")
	var cuts cutList
	fs.Var(&cuts, "cut", "admit source frames from,to (repeatable)")

	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: psgpack [options] input_file output_file")
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		return 1
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return 1
	}

	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	inputPath := fs.Arg(0)
	outputPath := fs.Arg(1)

	src, err := os.ReadFile(inputPath)
	if err != nil {
		log.Errorf("can't read input file: %v", err)
		return 1
	}

	cfg := pipeline.Config{
		Level:      *level,
		Clean:      *doClean && !*keep,
		CleanFlags: clean.AllOn(),
		Dump:       *dump,
		Info:       *info,
		AddScf:     *scf,
		Cuts:       cuts,
	}

	res, err := pipeline.Run(src, cfg)
	if err != nil {
		log.Errorf("compression failed: %v", err)
		return 1
	}

	if err := os.WriteFile(outputPath, res.Output, 0644); err != nil {
		log.Errorf("can't write output file: %v", err)
		return 1
	}
	if cfg.Dump {
		if err := os.WriteFile(outputPath+".psg", res.Dump, 0644); err != nil {
			log.Errorf("can't write dump file: %v", err)
			return 1
		}
	}
	if cfg.Info {
		if err := os.WriteFile(outputPath+".csv", res.Report, 0644); err != nil {
			log.Errorf("can't write timing report: %v", err)
			return 1
		}
	}
	if *wavPath != "" {
		f, err := os.Create(*wavPath)
		if err != nil {
			log.Errorf("can't create wav file: %v", err)
			return 1
		}
		if err := render.WriteWAV(f, res.Frames); err != nil {
			f.Close()
			log.Errorf("wav render failed: %v", err)
			return 1
		}
		if err := f.Close(); err != nil {
			log.Errorf("can't close wav file: %v", err)
			return 1
		}
	}

	res.Stats.Log()
	if res.Passes > 1 {
		log.Infof("budget re-pack converged after %d passes", res.Passes)
	}
	return 0
}
