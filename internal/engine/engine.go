// ABOUTME: Playback engine orchestrating decode, queue, effects, and output
// ABOUTME: Owns sessions, the audio callback, and track transitions
package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aria-audio/aria-go/internal/config"
	"github.com/aria-audio/aria-go/internal/decode"
	"github.com/aria-audio/aria-go/internal/device"
	"github.com/aria-audio/aria-go/internal/effects"
	"github.com/aria-audio/aria-go/internal/netstream"
	"github.com/aria-audio/aria-go/internal/output"
	"github.com/aria-audio/aria-go/internal/playlist"
	"github.com/aria-audio/aria-go/pkg/audio"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	monitorInterval = 50 * time.Millisecond
	spliceInterval  = 20 * time.Millisecond
	probeTimeout    = 10 * time.Second
)

// session is one track's playback: one decode process, one queue, and
// the bookkeeping the callback and monitor share.
type session struct {
	id       string
	track    audio.TrackInfo
	format   device.NegotiatedFormat
	queue    *ChunkQueue
	proc     *decode.Process
	net      *netstream.Source
	pre      *effects.Prebuffer // set when adopted from a transition
	cancel   context.CancelFunc
	channels int

	baseFrames    int64 // frames represented by the seek offset
	framesPlayed  atomic.Int64
	lastUnderruns uint64
	errReported   bool

	// pending is the prebuffered next track, guarded by Engine.mu.
	pending *pendingTrack
}

// pendingTrack holds a prebuffering decode for the upcoming track.
type pendingTrack struct {
	track audio.TrackInfo
	proc  *decode.Process
	net   *netstream.Source
	pre   *effects.Prebuffer
}

func (p *pendingTrack) cleanup() {
	p.pre.Cleanup()
	if p.net != nil {
		p.net.Stop()
	}
}

// Engine drives playback. All control methods are safe for concurrent
// use; the audio callback reads engine state through atomics only.
type Engine struct {
	cfg    config.Config
	logger zerolog.Logger
	reg    *device.Registry
	out    output.Output
	prober *decode.Prober
	seq    *playlist.Sequencer
	curve  effects.Curve
	events chan Event

	mu           sync.Mutex
	state        State
	sess         *session
	outOpen      bool
	outCfg       output.StreamConfig
	playlistDone bool
	closed       bool

	active     atomic.Pointer[session]
	running    atomic.Bool
	bitPerfect atomic.Bool
	gainBits   atomic.Uint64
	muted      atomic.Bool

	wg sync.WaitGroup
}

// New creates an engine on an initialized device registry and output
// backend. The config must already be validated.
func New(cfg config.Config, reg *device.Registry, out output.Output, logger zerolog.Logger) (*Engine, error) {
	curve, err := effects.ParseCurve(cfg.Crossfade.Curve)
	if err != nil {
		return nil, err
	}
	if err := effects.ValidateGain(cfg.Volume); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		logger: logger,
		reg:    reg,
		out:    out,
		prober: decode.NewProber(cfg.ProbeBinary, logger),
		seq:    playlist.NewSequencer(logger),
		curve:  curve,
		events: make(chan Event, 64),
		state:  StateIdle,
	}
	e.gainBits.Store(math.Float64bits(cfg.Volume))
	e.bitPerfect.Store(cfg.BitPerfect)
	return e, nil
}

// Events returns the engine's notification channel. It is closed by
// Close once all background work has stopped.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Sequencer exposes playlist controls (shuffle, repeat, jump).
func (e *Engine) Sequencer() *playlist.Sequencer {
	return e.seq
}

// State returns the current playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LoadPlaylist replaces the playlist with the given paths or URLs.
func (e *Engine) LoadPlaylist(paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("%w: empty playlist", audio.ErrInvalidParameter)
	}
	tracks := make([]audio.TrackInfo, len(paths))
	for i, p := range paths {
		tracks[i] = audio.TrackInfo{Path: p}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq.Load(tracks)
	e.playlistDone = false
	return nil
}

// Play starts playback of the sequencer's current track. When paths are
// given they replace the playlist first.
func (e *Engine) Play(paths ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("engine closed")
	}
	if len(paths) > 0 {
		tracks := make([]audio.TrackInfo, len(paths))
		for i, p := range paths {
			tracks[i] = audio.TrackInfo{Path: p}
		}
		e.seq.Load(tracks)
		e.playlistDone = false
	}

	e.teardownSessionLocked()
	return e.playCurrentLocked(0)
}

// Pause suspends playback without releasing the device.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePlaying {
		return nil
	}
	if err := e.out.Pause(); err != nil {
		return err
	}
	e.running.Store(false)
	e.setStateLocked(StatePaused)
	return nil
}

// Resume continues a paused session.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePaused {
		return nil
	}
	if err := e.out.Resume(); err != nil {
		return err
	}
	e.running.Store(true)
	e.setStateLocked(StatePlaying)
	return nil
}

// Stop ends playback and closes the output stream. Idempotent and
// callable from error paths.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.teardownSessionLocked()
	e.closeOutputLocked()
	if e.state != StateStopped && e.state != StateIdle {
		e.setStateLocked(StateStopped)
	}
	return nil
}

// Seek restarts decoding of the current track at the given position.
func (e *Engine) Seek(seconds float64) error {
	if seconds < 0 {
		return fmt.Errorf("%w: negative seek position", audio.ErrInvalidParameter)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		return fmt.Errorf("%w: nothing playing", audio.ErrInvalidParameter)
	}
	e.teardownSessionLocked()
	return e.playCurrentLocked(seconds)
}

// Next skips to the next track. At the natural end of the playlist it
// stops and reports the playlist end.
func (e *Engine) Next() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.seq.Next(); !ok {
		e.teardownSessionLocked()
		e.closeOutputLocked()
		e.emitPlaylistEndedLocked()
		e.setStateLocked(StateIdle)
		return nil
	}
	e.teardownSessionLocked()
	return e.playCurrentLocked(0)
}

// Previous skips to the previous track.
func (e *Engine) Previous() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.seq.Previous(); !ok {
		return fmt.Errorf("%w: no previous track", audio.ErrInvalidParameter)
	}
	e.teardownSessionLocked()
	return e.playCurrentLocked(0)
}

// SetVolume sets the playback gain in [0,1]. Unavailable in bit-perfect
// mode.
func (e *Engine) SetVolume(gain float64) error {
	if e.bitPerfect.Load() {
		return fmt.Errorf("%w: volume in bit-perfect mode", audio.ErrEffectUnavailable)
	}
	if err := effects.ValidateGain(gain); err != nil {
		return err
	}
	e.gainBits.Store(math.Float64bits(gain))
	return nil
}

// Volume returns the current gain.
func (e *Engine) Volume() float64 {
	return math.Float64frombits(e.gainBits.Load())
}

// SetMuted toggles mute. The last gain is preserved.
func (e *Engine) SetMuted(muted bool) error {
	if e.bitPerfect.Load() {
		return fmt.Errorf("%w: mute in bit-perfect mode", audio.ErrEffectUnavailable)
	}
	e.muted.Store(muted)
	return nil
}

// SetBitPerfect enables or disables the bit-perfect gate. Rejected
// while a session is active; the change requires a restart.
func (e *Engine) SetBitPerfect(on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess != nil {
		return fmt.Errorf("%w: bit-perfect change requires stopped playback", audio.ErrEffectUnavailable)
	}
	e.bitPerfect.Store(on)
	return nil
}

// Elapsed returns the playback position in seconds, derived from frames
// delivered to the device, not wall clock.
func (e *Engine) Elapsed() float64 {
	s := e.active.Load()
	if s == nil || s.format.SampleRate == 0 {
		return 0
	}
	return float64(s.baseFrames+s.framesPlayed.Load()) / float64(s.format.SampleRate)
}

// Stats is a point-in-time snapshot of the active session.
type Stats struct {
	SessionID      string
	TrackPath      string
	State          State
	ElapsedSeconds float64
	FramesPlayed   int64
	Underruns      uint64
	SamplesQueued  int64
}

// Stats snapshots the active session's counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()

	st := Stats{State: state}
	s := e.active.Load()
	if s == nil {
		return st
	}
	st.SessionID = s.id
	st.TrackPath = s.track.Path
	st.ElapsedSeconds = e.Elapsed()
	st.FramesPlayed = s.framesPlayed.Load()
	st.Underruns = s.queue.Underruns()
	st.SamplesQueued = s.queue.SamplesQueued()
	return st
}

// Close stops playback, waits for background goroutines, and closes the
// event channel.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.teardownSessionLocked()
	e.closeOutputLocked()
	e.mu.Unlock()

	e.wg.Wait()
	close(e.events)
	return nil
}

// playCurrentLocked starts a session for the sequencer's current track.
func (e *Engine) playCurrentLocked(seekSeconds float64) error {
	track, ok := e.seq.Current()
	if !ok {
		return fmt.Errorf("%w: empty playlist", audio.ErrInvalidParameter)
	}

	info := e.probeTrack(track)

	caps, err := e.reg.Selected()
	if err != nil {
		return err
	}
	nf, err := device.NegotiateWithFallback(info.Format, caps, e.reg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	proc, net, err := e.startDecode(ctx, info, nf.SampleRate, nf.Channels, seekSeconds)
	if err != nil {
		cancel()
		return err
	}

	s := &session{
		id:         uuid.New().String(),
		track:      info,
		format:     nf,
		queue:      NewChunkQueue(e.cfg.QueueChunks),
		proc:       proc,
		net:        net,
		cancel:     cancel,
		channels:   nf.Channels,
		baseFrames: int64(seekSeconds * float64(nf.SampleRate)),
	}

	if err := e.openOutputLocked(nf); err != nil {
		cancel()
		proc.Terminate()
		if net != nil {
			net.Stop()
		}
		return err
	}

	e.sess = s
	e.active.Store(s)
	e.running.Store(true)
	e.setStateLocked(StatePlaying)
	e.emit(Event{Type: EventTrackStarted, SessionID: s.id, Track: s.track})

	e.logger.Info().
		Str("session", s.id).
		Str("track", s.track.Path).
		Int("sample_rate", nf.SampleRate).
		Int("channels", nf.Channels).
		Int("bit_depth", nf.BitDepth).
		Float64("seek", seekSeconds).
		Msg("playback started")

	e.wg.Add(2)
	go e.pump(ctx, s)
	go e.monitor(ctx, s)
	return nil
}

// startDecode launches the decode process, piping remote tracks through
// a resumable network source.
func (e *Engine) startDecode(ctx context.Context, info audio.TrackInfo, rate, channels int, seek float64) (*decode.Process, *netstream.Source, error) {
	req := decode.Request{
		Input:       info.Path,
		SampleRate:  rate,
		Channels:    channels,
		SeekSeconds: seek,
		FastStart:   true,
		Binary:      e.cfg.DecoderBinary,
	}

	var net *netstream.Source
	if info.IsRemote() {
		net = netstream.New(netstream.Config{
			URL:             info.Path,
			BufferSizeBytes: e.cfg.Network.BufferSizeBytes,
			MaxRetries:      e.cfg.Network.MaxRetries,
			BackoffBase:     time.Duration(e.cfg.Network.BackoffBaseMs) * time.Millisecond,
		}, e.logger)
		net.Start(ctx)
		req.Input = ""
		req.Stdin = net.Reader()

		e.wg.Add(1)
		go e.forwardNetEvents(net)
	}

	proc, err := decode.Start(req, e.logger)
	if err != nil {
		if net != nil {
			net.Stop()
		}
		return nil, nil, err
	}
	return proc, net, nil
}

// openOutputLocked opens the output stream, reopening on format change.
func (e *Engine) openOutputLocked(nf device.NegotiatedFormat) error {
	cfg := output.StreamConfig{
		SampleRate:      nf.SampleRate,
		Channels:        nf.Channels,
		BitDepth:        nf.BitDepth,
		FramesPerBuffer: e.cfg.FramesPerBuffer,
	}

	if e.outOpen && e.outCfg != cfg {
		if err := e.out.Close(); err != nil {
			e.logger.Warn().Err(err).Msg("output close on format change")
		}
		e.outOpen = false
	}
	if e.outOpen {
		return e.out.Resume()
	}
	if err := e.out.Open(cfg, e.fill); err != nil {
		return err
	}
	e.outOpen = true
	e.outCfg = cfg
	return nil
}

func (e *Engine) closeOutputLocked() {
	if !e.outOpen {
		return
	}
	if err := e.out.Close(); err != nil {
		e.logger.Warn().Err(err).Msg("output close error")
	}
	e.outOpen = false
}

// fill is the realtime audio callback. It never blocks and recovers
// any fault into silence plus an out-of-band event.
func (e *Engine) fill(out []float32) {
	defer func() {
		if r := recover(); r != nil {
			for i := range out {
				out[i] = 0
			}
			e.emit(Event{Type: EventDeviceError, Err: fmt.Errorf("audio callback fault: %v", r)})
		}
	}()

	if !e.running.Load() {
		for i := range out {
			out[i] = 0
		}
		return
	}
	s := e.active.Load()
	if s == nil {
		for i := range out {
			out[i] = 0
		}
		return
	}

	s.queue.ReadInto(out)

	if !e.bitPerfect.Load() {
		gain := math.Float64frombits(e.gainBits.Load())
		if e.muted.Load() {
			gain = 0
		}
		effects.ApplyGain(out, gain)
	}

	s.framesPlayed.Add(int64(len(out) / s.channels))
}

// pump moves decoded chunks into the queue, throttled by queue capacity.
func (e *Engine) pump(ctx context.Context, s *session) {
	defer e.wg.Done()
	for {
		select {
		case chunk, ok := <-s.proc.Chunks():
			if !ok {
				return
			}
			if err := s.queue.Push(ctx, chunk); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// pumpSpliced feeds the queue from an adopted prebuffer, which keeps
// collecting the remaining decode output after a transition.
func (e *Engine) pumpSpliced(ctx context.Context, s *session) {
	defer e.wg.Done()
	ticker := time.NewTicker(spliceInterval)
	defer ticker.Stop()

	// The collector may still be draining the decoder when Exited flips,
	// so only stop after two consecutive empty passes.
	emptyPasses := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		chunks := s.pre.TakeChunks()
		for _, c := range chunks {
			if err := s.queue.Push(ctx, c); err != nil {
				return
			}
		}
		if len(chunks) == 0 && s.proc.Exited() {
			emptyPasses++
			if emptyPasses >= 2 {
				return
			}
		} else {
			emptyPasses = 0
		}
	}
}

// forwardNetEvents translates network stream events into engine events.
func (e *Engine) forwardNetEvents(net *netstream.Source) {
	defer e.wg.Done()
	for ev := range net.Events() {
		e.emit(Event{Type: EventNetwork, Net: ev, Err: ev.Err})
	}
}

// monitor watches one session: underrun deltas, decode status, the
// prebuffer window, and the end-of-track condition.
func (e *Engine) monitor(ctx context.Context, s *session) {
	defer e.wg.Done()
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if u := s.queue.Underruns(); u > s.lastUnderruns {
			// The callback's final partial read at track end also counts
			// an underrun; only mid-track starvation is worth reporting.
			if e.running.Load() && !s.proc.Exited() {
				e.emit(Event{Type: EventUnderrun, SessionID: s.id, Track: s.track})
			}
			s.lastUnderruns = u
		}

		e.checkDecodeError(s)
		e.maybePrebuffer(s)

		if s.proc.Exited() {
			if e.transition(s) {
				return
			}
		}
	}
}

// checkDecodeError surfaces a decoder failure exactly once. A failed
// track still drains its queued audio, then playback advances.
func (e *Engine) checkDecodeError(s *session) {
	if s.errReported {
		return
	}
	if s.pre != nil {
		if err := s.pre.Err(); err != nil {
			s.errReported = true
			e.emit(Event{Type: EventDecodeError, SessionID: s.id, Track: s.track, Err: err})
		}
		return
	}
	select {
	case err := <-s.proc.Done():
		if err != nil {
			s.errReported = true
			e.emit(Event{Type: EventDecodeError, SessionID: s.id, Track: s.track, Err: err})
		}
	default:
	}
}

// maybePrebuffer starts decoding the upcoming track once the current
// one enters the transition window.
func (e *Engine) maybePrebuffer(s *session) {
	if e.bitPerfect.Load() {
		return
	}
	if !e.cfg.Gapless.Enabled && !e.cfg.Crossfade.Enabled {
		return
	}
	if s.track.DurationSeconds <= 0 {
		return
	}

	e.mu.Lock()
	busy := e.sess != s || s.pending != nil
	e.mu.Unlock()
	if busy {
		return
	}

	lead := e.cfg.Gapless.LeadSeconds
	if e.cfg.Crossfade.Enabled && e.cfg.Crossfade.DurationSeconds > lead {
		lead = e.cfg.Crossfade.DurationSeconds
	}
	elapsed := float64(s.baseFrames+s.framesPlayed.Load()) / float64(s.format.SampleRate)
	if s.track.DurationSeconds-elapsed > lead && !s.proc.Exited() {
		return
	}

	next, ok := e.seq.Peek()
	if !ok || next.Path == "" {
		return
	}

	info := e.probeTrack(next)
	ctx, cancel := context.WithCancel(context.Background())
	proc, net, err := e.startDecode(ctx, info, s.format.SampleRate, s.format.Channels, 0)
	if err != nil {
		cancel()
		e.logger.Warn().Err(err).Str("track", info.Path).Msg("prebuffer decode failed to start")
		return
	}

	minReady := s.format.SampleRate * s.format.Channels / 2
	pre := effects.NewPrebuffer(proc, minReady, e.logger)
	p := &pendingTrack{track: info, proc: proc, net: net, pre: pre}

	e.mu.Lock()
	if e.sess != s || s.pending != nil {
		e.mu.Unlock()
		cancel()
		p.cleanup()
		return
	}
	s.pending = p
	e.mu.Unlock()

	e.logger.Debug().Str("track", info.Path).Msg("prebuffering next track")
}

// transition handles the end of decode for a session. Returns true when
// the monitor should exit.
func (e *Engine) transition(s *session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess != s {
		return true
	}
	if s.pending != nil {
		return e.spliceLocked(s)
	}
	if !s.queue.Empty() {
		return false
	}
	e.finishTrackLocked(s)
	return true
}

// spliceLocked hands playback to the prebuffered next track, reusing
// the queue and the open output stream. Gapless pushes the incoming
// audio straight behind the outgoing tail; crossfade blends them.
func (e *Engine) spliceLocked(s *session) bool {
	p := s.pending
	s.pending = nil

	peek, ok := e.seq.Peek()
	if !ok || peek.Path != p.track.Path {
		p.cleanup()
		if s.queue.Empty() {
			e.finishTrackLocked(s)
			return true
		}
		return false
	}

	timeout := time.Duration(e.cfg.Gapless.TimeoutMs) * time.Millisecond
	if !p.pre.Wait(timeout) {
		e.logger.Warn().Str("track", p.track.Path).Msg("prebuffer not ready, falling back to plain transition")
		p.cleanup()
		if s.queue.Empty() {
			e.finishTrackLocked(s)
			return true
		}
		return false
	}

	cur, _ := e.seq.Next()
	if cur.Path != p.track.Path {
		// Wraparound reshuffle changed the upcoming track.
		p.cleanup()
		s.cancel()
		if s.net != nil {
			s.net.Stop()
		}
		if s.pre != nil {
			s.pre.Cleanup()
		}
		e.emit(Event{Type: EventTrackEnded, SessionID: s.id, Track: s.track})
		if err := e.playCurrentLocked(0); err != nil {
			e.failPlaybackLocked(err)
		}
		return true
	}

	// Stop the outgoing session's feeders before taking what's left.
	s.cancel()
	if s.net != nil {
		s.net.Stop()
	}
	var residual []float32
	if s.pre != nil {
		residual = flatten(s.pre.TakeChunks())
	}

	ctx, cancel := context.WithCancel(context.Background())
	ns := &session{
		id:       uuid.New().String(),
		track:    p.track,
		format:   s.format,
		queue:    s.queue,
		proc:     p.proc,
		net:      p.net,
		pre:      p.pre,
		cancel:   cancel,
		channels: s.channels,
	}

	if e.cfg.Crossfade.Enabled {
		incoming := flatten(p.pre.TakeChunks())
		tail := append(s.queue.DrainAll(), residual...)
		n := int(e.cfg.Crossfade.DurationSeconds*float64(s.format.SampleRate)) * s.channels
		// Only the last fade window of the tail blends; everything the
		// queue buffered before it plays through unmixed.
		if head := len(tail) - n; head > 0 {
			_ = s.queue.Push(ctx, tail[:head])
			tail = tail[head:]
		}
		mixed := effects.Mix(tail, incoming, n, e.curve)
		if err := s.queue.Push(ctx, mixed); err == nil && len(incoming) > n {
			_ = s.queue.Push(ctx, incoming[n:])
		}
	} else if len(residual) > 0 {
		// Gapless keeps the incoming head inside the prebuffer; the
		// spliced pump drains it in order behind the outgoing tail.
		_ = s.queue.Push(ctx, residual)
	}

	e.sess = ns
	e.active.Store(ns)
	e.emit(Event{Type: EventTrackEnded, SessionID: s.id, Track: s.track})
	e.emit(Event{Type: EventTrackStarted, SessionID: ns.id, Track: ns.track})

	e.logger.Info().
		Str("session", ns.id).
		Str("track", ns.track.Path).
		Bool("crossfade", e.cfg.Crossfade.Enabled).
		Msg("spliced into next track")

	e.wg.Add(2)
	go e.pumpSpliced(ctx, ns)
	go e.monitor(ctx, ns)
	return true
}

// finishTrackLocked ends the current track and either advances the
// playlist or reports its natural end.
func (e *Engine) finishTrackLocked(s *session) {
	e.emit(Event{Type: EventTrackEnded, SessionID: s.id, Track: s.track})

	s.cancel()
	if s.net != nil {
		s.net.Stop()
	}
	if s.pre != nil {
		s.pre.Cleanup()
	}
	e.sess = nil
	e.active.Store(nil)

	if _, ok := e.seq.Next(); !ok {
		e.running.Store(false)
		e.closeOutputLocked()
		e.emitPlaylistEndedLocked()
		e.setStateLocked(StateIdle)
		return
	}
	if err := e.playCurrentLocked(0); err != nil {
		e.failPlaybackLocked(err)
	}
}

// failPlaybackLocked reports a playback failure and parks the engine.
func (e *Engine) failPlaybackLocked(err error) {
	e.logger.Error().Err(err).Msg("playback failed")
	e.emit(Event{Type: EventDeviceError, Err: err})
	e.teardownSessionLocked()
	e.closeOutputLocked()
	e.setStateLocked(StateStopped)
}

// teardownSessionLocked releases the active session. Idempotent.
func (e *Engine) teardownSessionLocked() {
	s := e.sess
	if s == nil {
		return
	}
	s.cancel()
	s.proc.Terminate()
	if s.net != nil {
		s.net.Stop()
	}
	if s.pre != nil {
		s.pre.Cleanup()
	}
	if s.pending != nil {
		s.pending.cleanup()
		s.pending = nil
	}
	s.queue.Clear()
	e.sess = nil
	e.active.Store(nil)
	e.running.Store(false)
}

func (e *Engine) emitPlaylistEndedLocked() {
	if e.playlistDone {
		return
	}
	e.playlistDone = true
	e.emit(Event{Type: EventPlaylistEnded})
}

func (e *Engine) setStateLocked(st State) {
	if e.state == st {
		return
	}
	e.state = st
	e.emit(Event{Type: EventStateChanged, State: st})
}

// emit delivers an event without blocking; slow consumers lose events.
func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.logger.Debug().Str("type", ev.Type.String()).Msg("event dropped, consumer too slow")
	}
}

// probeTrack fills in format and duration when not already known.
func (e *Engine) probeTrack(track audio.TrackInfo) audio.TrackInfo {
	if track.Format.Valid() && track.DurationSeconds > 0 {
		return track
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	info := e.prober.Probe(ctx, track.Path)
	return info
}

func flatten(chunks [][]float32) []float32 {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]float32, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
