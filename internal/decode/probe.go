// ABOUTME: Track metadata probing with native fast paths
// ABOUTME: Uses ffprobe, falling back to conservative defaults, never aborting playback
package decode

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aria-audio/aria-go/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"github.com/rs/zerolog"
)

// Prober resolves track format and duration before playback.
type Prober struct {
	binary string
	logger zerolog.Logger
}

// NewProber creates a prober using the given ffprobe binary name.
func NewProber(binary string, logger zerolog.Logger) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	return &Prober{
		binary: binary,
		logger: logger.With().Str("component", "probe").Logger(),
	}
}

// Probe inspects a track. Local MP3 and FLAC files take a native fast path;
// everything else goes through ffprobe. Any failure falls back to the
// conservative default format rather than failing playback.
func (p *Prober) Probe(ctx context.Context, path string) audio.TrackInfo {
	info := audio.TrackInfo{Path: path, Format: audio.DefaultFormat()}

	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".flac":
			if ok := p.probeFLAC(path, &info); ok {
				return info
			}
		case ".mp3":
			if ok := p.probeMP3(path, &info); ok {
				return info
			}
		}
	}

	if ok := p.probeExternal(ctx, path, &info); !ok {
		p.logger.Warn().Str("path", path).
			Int("sample_rate", info.Format.SampleRate).
			Int("channels", info.Format.Channels).
			Msg("probe failed, using conservative defaults")
	}
	return info
}

// probeFLAC reads the StreamInfo metadata block.
func (p *Prober) probeFLAC(path string, info *audio.TrackInfo) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	stream, err := flac.New(f)
	if err != nil {
		p.logger.Debug().Err(err).Str("path", path).Msg("flac probe failed")
		return false
	}
	defer stream.Close()

	si := stream.Info
	info.Format = audio.Format{
		SampleRate: int(si.SampleRate),
		Channels:   int(si.NChannels),
		BitDepth:   int(si.BitsPerSample),
	}
	if si.SampleRate > 0 && si.NSamples > 0 {
		info.DurationSeconds = float64(si.NSamples) / float64(si.SampleRate)
	}
	return info.Format.Valid()
}

// probeMP3 decodes headers only. go-mp3 always yields 16-bit stereo, and
// Length reports the decoded byte count, so duration = length/(4*rate).
func (p *Prober) probeMP3(path string, info *audio.TrackInfo) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		p.logger.Debug().Err(err).Str("path", path).Msg("mp3 probe failed")
		return false
	}

	info.Format = audio.Format{
		SampleRate: dec.SampleRate(),
		Channels:   2,
		BitDepth:   16,
	}
	if dec.SampleRate() > 0 && dec.Length() > 0 {
		info.DurationSeconds = float64(dec.Length()) / float64(4*dec.SampleRate())
	}
	return info.Format.Valid()
}

// ffprobe JSON shapes, trimmed to the fields the pipeline needs.
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType        string `json:"codec_type"`
	SampleRate       string `json:"sample_rate"`
	Channels         int    `json:"channels"`
	BitsPerSample    int    `json:"bits_per_sample"`
	BitsPerRawSample string `json:"bits_per_raw_sample"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

// probeExternal shells out to ffprobe.
func (p *Prober) probeExternal(ctx context.Context, path string, info *audio.TrackInfo) bool {
	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		p.logger.Debug().Err(err).Str("path", path).Msg("ffprobe failed")
		return false
	}

	return parseProbeOutput(out, info)
}

// parseProbeOutput fills info from ffprobe JSON, keeping defaults for any
// field the probe could not determine.
func parseProbeOutput(data []byte, info *audio.TrackInfo) bool {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return false
	}

	var stream *probeStream
	for i := range out.Streams {
		if out.Streams[i].CodecType == "audio" {
			stream = &out.Streams[i]
			break
		}
	}
	if stream == nil {
		return false
	}

	if rate, err := strconv.Atoi(stream.SampleRate); err == nil && rate > 0 {
		info.Format.SampleRate = rate
	}
	if stream.Channels > 0 {
		info.Format.Channels = stream.Channels
	}
	if stream.BitsPerSample > 0 {
		info.Format.BitDepth = stream.BitsPerSample
	} else if raw, err := strconv.Atoi(stream.BitsPerRawSample); err == nil && raw > 0 {
		info.Format.BitDepth = raw
	}
	if dur, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil && dur > 0 {
		info.DurationSeconds = dur
	}
	return true
}
