package generate

import (
	"context"
	"hash/fnv"
	"math"
)

// Tone is a deterministic stand-in for the model: a sine whose pitch is
// derived from the prompt. It lets the pipeline run end to end on machines
// without an accelerator.
type Tone struct {
	sampleRate int
	amplitude  float64
}

// NewTone creates a tone generator at the given sample rate
func NewTone(sampleRate int) *Tone {
	return &Tone{sampleRate: sampleRate, amplitude: 0.3}
}

// SampleRate returns the generator's rate
func (t *Tone) SampleRate() int { return t.sampleRate }

// Generate returns seconds*rate samples
func (t *Tone) Generate(ctx context.Context, prompt string, seconds int) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	freq := pitchFor(prompt)
	n := seconds * t.sampleRate
	out := make([]float32, n)
	step := 2 * math.Pi * freq / float64(t.sampleRate)
	for i := range out {
		out[i] = float32(t.amplitude * math.Sin(step*float64(i)))
	}
	return out, nil
}

// pitchFor maps a prompt onto 220-880 Hz
func pitchFor(prompt string) float64 {
	h := fnv.New32a()
	h.Write([]byte(prompt))
	return 220 + float64(h.Sum32()%661)
}
