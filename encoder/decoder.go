package encoder

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"parley/log"
)

// FileDecoder renders finished utterances to audio files on disk so they
// can be replayed from the transcript.
type FileDecoder struct {
	Dir    string
	Format string
}

// Decode resamples samples from sourceRate to targetRate, writes them as a
// new file in Dir and returns its file:// URL.
func (d FileDecoder) Decode(ctx context.Context, samples []int16, sourceRate, targetRate int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	start := time.Now()

	enc, err := New(d.Format, targetRate)
	if err != nil {
		return "", err
	}
	data, err := Encode(enc, Resample(samples, sourceRate, targetRate))
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return "", fmt.Errorf("creating decode directory: %w", err)
	}
	ext := d.Format
	if ext == "" {
		ext = FormatWAV
	}
	path, err := filepath.Abs(filepath.Join(d.Dir, uuid.NewString()+"."+ext))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}

	log.Infof("decoded %d samples to %s in %dms", len(samples), filepath.Base(path), time.Since(start).Milliseconds())
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}
