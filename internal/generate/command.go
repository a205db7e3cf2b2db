package generate

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// CommandConfig describes the external model program
type CommandConfig struct {
	Path            string
	Args            []string
	Model           string
	SampleRate      int
	TokensPerSecond int
}

// Command runs an external model program once per request. The program
// receives the prompt and token budget as flags and writes raw little-endian
// float32 mono PCM to stdout.
type Command struct {
	cfg    CommandConfig
	runner commandRunner
}

// commandRunner abstracts process execution for testability
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// NewCommand creates a generator backed by an external program
func NewCommand(cfg CommandConfig) *Command {
	return &Command{cfg: cfg, runner: execRunner{}}
}

// SampleRate returns the rate the program is asked to produce
func (c *Command) SampleRate() int { return c.cfg.SampleRate }

// MaxNewTokens converts seconds into the model's token budget
func (c *Command) MaxNewTokens(seconds int) int {
	return seconds * c.cfg.TokensPerSecond
}

// Args returns the full argument list for one request
func (c *Command) Args(prompt string, seconds int) []string {
	args := append([]string{}, c.cfg.Args...)
	args = append(args,
		"--prompt", prompt,
		"--duration", strconv.Itoa(seconds),
		"--max-new-tokens", strconv.Itoa(c.MaxNewTokens(seconds)),
		"--sample-rate", strconv.Itoa(c.cfg.SampleRate),
	)
	if c.cfg.Model != "" {
		args = append(args, "--model", c.cfg.Model)
	}
	return args
}

// Generate runs the program and decodes its output
func (c *Command) Generate(ctx context.Context, prompt string, seconds int) ([]float32, error) {
	stdout, stderr, err := c.runner.Run(ctx, c.cfg.Path, c.Args(prompt, seconds)...)
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && msg != "" {
			return nil, fmt.Errorf("%s exited with %d: %s", c.cfg.Path, exitErr.ExitCode(), lastLine(msg))
		}
		return nil, fmt.Errorf("running %s: %w", c.cfg.Path, err)
	}

	samples, err := DecodeFloat32LE(stdout)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%s produced no audio", c.cfg.Path)
	}
	return samples, nil
}

// DecodeFloat32LE decodes raw little-endian float32 samples
func DecodeFloat32LE(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("truncated sample stream: %d bytes", len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
