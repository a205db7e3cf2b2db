// Package audio encodes generated sample buffers into WAV files.
package audio

import (
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	bitDepth  = 16
	channels  = 1
	pcmFormat = 1
	maxInt16  = math.MaxInt16
)

// EncodeWAV writes mono float samples in [-1, 1] as 16-bit PCM WAV
func EncodeWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	enc := wav.NewEncoder(w, sampleRate, bitDepth, channels, pcmFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           toPCM16(samples),
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return fmt.Errorf("writing samples: %w", err)
	}
	return enc.Close()
}

// WriteWAVFile encodes samples into a new file at path and returns its size
func WriteWAVFile(path string, samples []float32, sampleRate int) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	if err := EncodeWAV(f, samples, sampleRate); err != nil {
		f.Close()
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, err
	}
	return info.Size(), f.Close()
}

// WithTempWAV encodes samples into a temporary file, calls fn with its path
// and size, and removes the file whatever happens in between
func WithTempWAV(dir string, samples []float32, sampleRate int, fn func(path string, size int64) error) (err error) {
	f, err := os.CreateTemp(dir, "musicgen-*.wav")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if err := EncodeWAV(f, samples, sampleRate); err != nil {
		f.Close()
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return fn(path, info.Size())
}

func toPCM16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		v := float64(s)
		if math.IsNaN(v) {
			v = 0
		}
		v = math.Max(-1, math.Min(1, v))
		out[i] = int(math.Round(v * maxInt16))
	}
	return out
}
