// Package probe extracts duration and sample rate from stored media files
// and writes them back onto the owning record.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/afero"

	"github.com/dkeye/vlink/internal/media"
)

var ErrFileMissing = errors.New("media file missing")

type Info struct {
	DurationMS *int64 `json:"duration_ms,omitempty"`
	SampleRate *int   `json:"sample_rate,omitempty"`
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type Prober struct {
	runner media.Runner
	binary string
	fs     afero.Fs
}

func NewProber(runner media.Runner, binary string, fs afero.Fs) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	return &Prober{runner: runner, binary: binary, fs: fs}
}

// Probe returns whatever of duration and sample rate the tool could report.
func (p *Prober) Probe(ctx context.Context, path string) (*Info, error) {
	if ok, _ := afero.Exists(p.fs, path); !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrFileMissing)
	}

	out, err := p.runner.Run(ctx, p.binary,
		"-v", "error", "-print_format", "json", "-show_format", "-show_streams", path)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty probe output", path)
	}
	return parse(out)
}

func parse(out []byte) (*Info, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("decode probe output: %w", err)
	}

	info := &Info{}
	for _, s := range raw.Streams {
		if s.CodecType != "audio" {
			continue
		}
		if sr, err := strconv.Atoi(s.SampleRate); err == nil {
			info.SampleRate = &sr
		}
		break
	}
	if d, err := strconv.ParseFloat(raw.Format.Duration, 64); err == nil && !math.IsNaN(d) && d >= 0 {
		ms := int64(d * 1000)
		info.DurationMS = &ms
	}
	return info, nil
}
