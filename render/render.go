package render

import (
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"psgpack/psg"
)

const (
	sampleRate = 44100
	frameRate  = 50
)

// WriteWAV replays the frame stream into the synth and encodes a 44.1 kHz
// 16-bit mono WAV. out must be seekable: the encoder patches the RIFF sizes
// on Close.
func WriteWAV(out io.WriteSeeker, frames []psg.Frame) error {
	enc := wav.NewEncoder(out, sampleRate, 16, 1, 1)
	synth := NewSynth(sampleRate)
	samplesPerFrame := sampleRate / frameRate

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}

	for _, f := range frames {
		n := 1
		if f.IsDelay() {
			n = f.DelayLen()
		} else {
			for _, reg := range f.Delta.Regs() {
				synth.Write(reg, f.Delta.Get(reg))
			}
		}

		buf.Data = buf.Data[:0]
		for i := 0; i < n*samplesPerFrame; i++ {
			buf.Data = append(buf.Data, synth.Sample())
		}
		if err := enc.Write(buf); err != nil {
			return fmt.Errorf("render: %w", err)
		}
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return nil
}
