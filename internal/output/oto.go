// ABOUTME: Oto-based audio output implementation
// ABOUTME: Adapts the pull interface onto oto's io.Reader player
package output

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/aria-audio/aria-go/pkg/audio"
	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"
)

// otoPlayer is the slice of oto.Player the output drives.
type otoPlayer interface {
	Play()
	Pause()
	Close() error
}

// otoContext is the slice of oto.Context the output drives.
type otoContext interface {
	NewPlayer(io.Reader) otoPlayer
	Suspend() error
	Resume() error
}

type realOtoContext struct {
	ctx *oto.Context
}

func (c realOtoContext) NewPlayer(r io.Reader) otoPlayer { return c.ctx.NewPlayer(r) }
func (c realOtoContext) Suspend() error                  { return c.ctx.Suspend() }
func (c realOtoContext) Resume() error                   { return c.ctx.Resume() }

// newOtoContext is a hook so tests can run the open/close lifecycle
// without a sound card. oto allows one context per process.
var newOtoContext = func(op *oto.NewContextOptions) (otoContext, error) {
	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-readyChan
	return realOtoContext{ctx: ctx}, nil
}

// Oto output implementation using the oto library. Oto pulls bytes
// through an io.Reader, so the FillFunc is wrapped in a reader that
// converts float samples to 16-bit little-endian on demand.
type Oto struct {
	logger zerolog.Logger
	otoCtx otoContext
	player otoPlayer
	paused bool
	mu     sync.Mutex
}

// NewOto creates a new Oto output.
func NewOto() Output {
	return &Oto{logger: zerolog.Nop()}
}

// NewOtoWithLogger creates an Oto output that logs device lifecycle.
func NewOtoWithLogger(logger zerolog.Logger) Output {
	return &Oto{logger: logger}
}

// fillReader adapts a FillFunc into the io.Reader oto consumes.
type fillReader struct {
	fill        FillFunc
	channels    int
	frames      int
	scratch     []float32
	pending     []byte
	pendingView []byte
}

func (r *fillReader) Read(p []byte) (int, error) {
	if len(r.pendingView) == 0 {
		total := r.frames * r.channels
		if r.scratch == nil {
			r.scratch = make([]float32, total)
			r.pending = make([]byte, total*2)
		}
		r.fill(r.scratch)
		for i, s := range r.scratch {
			binary.LittleEndian.PutUint16(r.pending[i*2:], uint16(audio.Float32ToInt16(s)))
		}
		r.pendingView = r.pending
	}

	n := copy(p, r.pendingView)
	r.pendingView = r.pendingView[n:]
	return n, nil
}

// Open initializes the oto context and starts the player.
func (o *Oto) Open(cfg StreamConfig, fill FillFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		return fmt.Errorf("%w: device already open", audio.ErrDeviceUnavailable)
	}

	// oto only outputs 16-bit; higher depths are dithered down here.
	if cfg.BitDepth != 16 {
		o.logger.Warn().Int("bit_depth", cfg.BitDepth).Msg("oto backend truncates to 16-bit output")
	}

	if o.otoCtx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: cfg.Channels,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, err := newOtoContext(op)
		if err != nil {
			return fmt.Errorf("%w: create oto context: %v", audio.ErrDeviceUnavailable, err)
		}
		o.otoCtx = ctx
	} else {
		// Close suspends the shared context; a reopen must lift that or
		// the new player stays silent.
		if err := o.otoCtx.Resume(); err != nil {
			return fmt.Errorf("%w: resume oto context: %v", audio.ErrDeviceUnavailable, err)
		}
	}

	frames := cfg.FramesPerBuffer
	if frames <= 0 {
		frames = 1024
	}
	reader := &fillReader{fill: fill, channels: cfg.Channels, frames: frames}

	o.player = o.otoCtx.NewPlayer(reader)
	o.player.Play()
	o.paused = false

	o.logger.Info().
		Int("sample_rate", cfg.SampleRate).
		Int("channels", cfg.Channels).
		Msg("audio output opened (oto)")

	return nil
}

// Pause stops pulling samples.
func (o *Oto) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player == nil {
		return fmt.Errorf("%w: not open", audio.ErrDeviceUnavailable)
	}
	if o.paused {
		return nil
	}
	o.player.Pause()
	o.paused = true
	return nil
}

// Resume restarts a paused player.
func (o *Oto) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player == nil {
		return fmt.Errorf("%w: not open", audio.ErrDeviceUnavailable)
	}
	if !o.paused {
		return nil
	}
	o.player.Play()
	o.paused = false
	return nil
}

// Close releases the player. The oto context cannot be torn down, only
// suspended; oto allows a single context per process.
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.otoCtx != nil {
		o.otoCtx.Suspend()
	}
	return nil
}
