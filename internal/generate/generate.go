// Package generate is the boundary to the music model. The model itself is
// an external program; this package only shapes requests, applies the
// chunking policy and collects samples.
package generate

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
)

// Generator renders a prompt into mono float samples in [-1, 1]
type Generator interface {
	Generate(ctx context.Context, prompt string, seconds int) ([]float32, error)
	SampleRate() int
}

// PlanChunks splits a duration into consecutive chunks of at most ceiling
// seconds. The chunks sum to duration and only the last may be shorter.
func PlanChunks(duration, ceiling int) []int {
	if duration <= 0 {
		return nil
	}
	if ceiling <= 0 {
		return []int{duration}
	}

	chunks := make([]int, 0, (duration+ceiling-1)/ceiling)
	for remaining := duration; remaining > 0; {
		n := min(remaining, ceiling)
		chunks = append(chunks, n)
		remaining -= n
	}
	return chunks
}

// Chunked applies the chunking policy on top of another generator: requests
// longer than the ceiling are rendered chunk by chunk with the same prompt and
// concatenated in order without cross-fade.
type Chunked struct {
	inner   Generator
	ceiling int
	logger  arbor.ILogger
}

// NewChunked wraps gen with a per-call duration ceiling in seconds
func NewChunked(gen Generator, ceiling int, logger arbor.ILogger) *Chunked {
	return &Chunked{inner: gen, ceiling: ceiling, logger: logger}
}

// SampleRate returns the wrapped generator's rate
func (c *Chunked) SampleRate() int { return c.inner.SampleRate() }

// Generate renders seconds of audio, splitting the request when needed
func (c *Chunked) Generate(ctx context.Context, prompt string, seconds int) ([]float32, error) {
	chunks := PlanChunks(seconds, c.ceiling)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("invalid duration %d", seconds)
	}
	if len(chunks) == 1 {
		return c.inner.Generate(ctx, prompt, chunks[0])
	}

	c.logger.Info().Int("duration", seconds).Int("chunks", len(chunks)).Msg("Using chunked generation")

	var out []float32
	remaining := seconds
	for i, n := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		samples, err := c.inner.Generate(ctx, prompt, n)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		out = append(out, samples...)
		remaining -= n
		c.logger.Info().Int("chunk_seconds", n).Int("remaining", remaining).Msg("Generated chunk")
	}
	return out, nil
}
