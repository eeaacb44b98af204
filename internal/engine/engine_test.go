// ABOUTME: Tests for the playback engine
// ABOUTME: Uses a fake output backend and a shell-script decoder stand-in
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aria-audio/aria-go/internal/config"
	"github.com/aria-audio/aria-go/internal/device"
	"github.com/aria-audio/aria-go/internal/output"
	"github.com/aria-audio/aria-go/pkg/audio"
	"github.com/rs/zerolog"
)

// fakeOutput records lifecycle calls and lets tests drive the fill
// callback by hand.
type fakeOutput struct {
	mu     sync.Mutex
	fill   output.FillFunc
	cfg    output.StreamConfig
	opened bool
	paused bool
	closes int
}

func (f *fakeOutput) Open(cfg output.StreamConfig, fill output.FillFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fill = fill
	f.cfg = cfg
	f.opened = true
	f.paused = false
	return nil
}

func (f *fakeOutput) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
	return nil
}

func (f *fakeOutput) Resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
	return nil
}

func (f *fakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = false
	f.closes++
	return nil
}

// pull invokes the fill callback like a device would.
func (f *fakeOutput) pull(samples int) []float32 {
	f.mu.Lock()
	fill := f.fill
	f.mu.Unlock()

	buf := make([]float32, samples)
	if fill != nil {
		fill(buf)
	}
	return buf
}

func (f *fakeOutput) isPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeOutput) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// writeDecoderScript writes a stand-in decoder that ignores its
// arguments and emits a fixed PCM file.
func writeDecoderScript(t *testing.T, pcmPath string) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "fakedec")
	body := "#!/bin/sh\ncat \"" + pcmPath + "\"\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return script
}

// writePCM writes count float32 samples of the given value.
func writePCM(t *testing.T, count int, value float32) string {
	t.Helper()
	return writePCMNamed(t, "track.pcm", count, value)
}

// writePCMNamed writes count float32 samples under a chosen file name, so
// decoder stand-ins can key behavior off the track path.
func writePCMNamed(t *testing.T, name string, count int, value float32) string {
	t.Helper()
	samples := make([]float32, count)
	for i := range samples {
		samples[i] = value
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, audio.Float32ToBytes(samples), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// writeTrackDecoderScript writes a decoder stand-in that emits the file
// named by its -i argument. Tracks with "slow" in the name stall first,
// simulating a decoder that is not ready in time.
func writeTrackDecoderScript(t *testing.T) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "fakedec")
	body := `#!/bin/sh
in=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-i" ]; then in="$a"; fi
  prev="$a"
done
case "$in" in
  *slow*) sleep 1 ;;
esac
cat "$in"
`
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return script
}

// writeProbeScript writes a probe stand-in reporting a fixed format and
// the given duration for every track.
func writeProbeScript(t *testing.T, durationSeconds float64) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "fakeprobe")
	payload := fmt.Sprintf(
		`{"streams":[{"codec_type":"audio","sample_rate":"44100","channels":2,"bits_per_sample":16}],"format":{"duration":"%.3f"}}`,
		durationSeconds)
	body := "#!/bin/sh\ncat <<'EOF'\n" + payload + "\nEOF\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return script
}

func newEngineWithConfig(t *testing.T, cfg config.Config) (*Engine, *fakeOutput) {
	t.Helper()

	reg := device.NewRegistry(device.NewStaticProvider([]device.Capabilities{{
		Index:             0,
		Name:              "test device",
		SampleRates:       []int{44100, 48000},
		ChannelCounts:     []int{2},
		BitDepths:         []int{16, 24},
		DefaultSampleRate: 44100,
		MaxOutputChannels: 2,
		IsDefault:         true,
	}}), zerolog.Nop())
	if err := reg.Init(); err != nil {
		t.Fatal(err)
	}

	out := &fakeOutput{}
	e, err := New(cfg, reg, out, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })

	return e, out
}

func testEngine(t *testing.T, mutate func(*config.Config)) (*Engine, *fakeOutput, string) {
	t.Helper()

	pcm := writePCM(t, 8192, 0.8)
	script := writeDecoderScript(t, pcm)

	cfg := config.Default()
	cfg.DecoderBinary = script
	cfg.ProbeBinary = filepath.Join(t.TempDir(), "no-such-probe")
	cfg.FramesPerBuffer = 256
	cfg.Crossfade.Enabled = false
	cfg.Gapless.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}

	e, out := newEngineWithConfig(t, cfg)
	return e, out, pcm
}

// spliceConfig builds a config whose decoder and probe stand-ins support
// multi-track transitions.
func spliceConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DecoderBinary = writeTrackDecoderScript(t)
	cfg.ProbeBinary = writeProbeScript(t, 0.2)
	cfg.FramesPerBuffer = 256
	cfg.Crossfade.Enabled = false
	cfg.Gapless.Enabled = false
	return cfg
}

// drainAudio pulls the fill callback in the background until stopped.
func drainAudio(out *fakeOutput) (stop func()) {
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				out.pull(512)
				time.Sleep(time.Millisecond)
			}
		}
	}()
	return func() { close(done) }
}

func waitEvent(t *testing.T, e *Engine, want EventType) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-e.Events():
			if !ok {
				t.Fatalf("event channel closed while waiting for %v", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", want)
		}
	}
}

func TestPlayToNaturalEnd(t *testing.T) {
	e, out, pcm := testEngine(t, nil)

	if err := e.Play(pcm); err != nil {
		t.Fatalf("play failed: %v", err)
	}

	stop := drainAudio(out)
	defer stop()

	started := waitEvent(t, e, EventTrackStarted)
	if started.Track.Path != pcm {
		t.Errorf("started wrong track: %s", started.Track.Path)
	}
	waitEvent(t, e, EventTrackEnded)
	waitEvent(t, e, EventPlaylistEnded)

	if e.State() != StateIdle {
		t.Errorf("expected idle after playlist end, got %v", e.State())
	}
}

func TestVolumeAppliedInCallback(t *testing.T) {
	e, out, pcm := testEngine(t, nil)

	if err := e.SetVolume(0.5); err != nil {
		t.Fatal(err)
	}
	if err := e.Play(pcm); err != nil {
		t.Fatal(err)
	}

	// Give the pump a moment to fill the queue.
	time.Sleep(200 * time.Millisecond)

	buf := out.pull(512)
	found := false
	for _, s := range buf {
		if s != 0 {
			found = true
			if s < 0.39 || s > 0.41 {
				t.Fatalf("expected samples near 0.4 after gain, got %v", s)
			}
		}
	}
	if !found {
		t.Fatal("callback produced only silence")
	}
}

func TestPauseSilencesCallback(t *testing.T) {
	e, out, pcm := testEngine(t, nil)

	if err := e.Play(pcm); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := e.Pause(); err != nil {
		t.Fatal(err)
	}
	if !out.isPaused() {
		t.Error("output backend not paused")
	}
	if e.State() != StatePaused {
		t.Errorf("expected paused state, got %v", e.State())
	}

	buf := out.pull(256)
	for i, s := range buf {
		if s != 0 {
			t.Fatalf("sample %d not silent while paused: %v", i, s)
		}
	}

	if err := e.Resume(); err != nil {
		t.Fatal(err)
	}
	if e.State() != StatePlaying {
		t.Errorf("expected playing after resume, got %v", e.State())
	}
}

func TestBitPerfectGatesEffects(t *testing.T) {
	e, _, _ := testEngine(t, func(c *config.Config) {
		c.BitPerfect = true
	})

	if err := e.SetVolume(0.5); !errors.Is(err, audio.ErrEffectUnavailable) {
		t.Errorf("expected ErrEffectUnavailable for volume, got %v", err)
	}
	if err := e.SetMuted(true); !errors.Is(err, audio.ErrEffectUnavailable) {
		t.Errorf("expected ErrEffectUnavailable for mute, got %v", err)
	}
}

func TestBitPerfectChangeRequiresStop(t *testing.T) {
	e, _, pcm := testEngine(t, nil)

	if err := e.Play(pcm); err != nil {
		t.Fatal(err)
	}
	if err := e.SetBitPerfect(true); !errors.Is(err, audio.ErrEffectUnavailable) {
		t.Errorf("expected ErrEffectUnavailable mid-playback, got %v", err)
	}

	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := e.SetBitPerfect(true); err != nil {
		t.Errorf("expected bit-perfect change after stop, got %v", err)
	}
}

func TestSeekMovesElapsed(t *testing.T) {
	e, _, pcm := testEngine(t, nil)

	if err := e.Play(pcm); err != nil {
		t.Fatal(err)
	}
	if err := e.Seek(2.5); err != nil {
		t.Fatal(err)
	}
	if got := e.Elapsed(); got < 2.5 {
		t.Errorf("expected elapsed >= 2.5 after seek, got %v", got)
	}

	if err := e.Seek(-1); !errors.Is(err, audio.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for negative seek, got %v", err)
	}
}

func TestStopIdempotent(t *testing.T) {
	e, out, pcm := testEngine(t, nil)

	if err := e.Play(pcm); err != nil {
		t.Fatal(err)
	}
	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	if out.opened {
		t.Error("output still open after stop")
	}
	if e.State() != StateStopped {
		t.Errorf("expected stopped, got %v", e.State())
	}
}

func TestPlaylistAdvances(t *testing.T) {
	e, out, pcm := testEngine(t, nil)

	if err := e.Play(pcm, pcm); err != nil {
		t.Fatal(err)
	}

	stop := drainAudio(out)
	defer stop()

	first := waitEvent(t, e, EventTrackStarted)
	waitEvent(t, e, EventTrackEnded)
	second := waitEvent(t, e, EventTrackStarted)
	if first.SessionID == second.SessionID {
		t.Error("second track reused the first session id")
	}
	waitEvent(t, e, EventTrackEnded)
	waitEvent(t, e, EventPlaylistEnded)
}

func TestNextPastEndStopsOnce(t *testing.T) {
	e, _, pcm := testEngine(t, nil)

	if err := e.Play(pcm); err != nil {
		t.Fatal(err)
	}
	if err := e.Next(); err != nil {
		t.Fatal(err)
	}

	waitEvent(t, e, EventPlaylistEnded)
	if e.State() != StateIdle {
		t.Errorf("expected idle after next past end, got %v", e.State())
	}
}

func TestPlayEmptyPlaylist(t *testing.T) {
	e, _, _ := testEngine(t, nil)

	if err := e.Play(); !errors.Is(err, audio.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for empty playlist, got %v", err)
	}
}

func TestUnderrunCounted(t *testing.T) {
	// A long track keeps the decoder busy so the session stays alive
	// while the callback outruns the pump.
	longPCM := writePCM(t, 1<<20, 0.5)
	script := writeDecoderScript(t, longPCM)
	e, out, _ := testEngine(t, func(c *config.Config) {
		c.DecoderBinary = script
	})

	if err := e.Play(longPCM); err != nil {
		t.Fatal(err)
	}

	// Drain far faster than the pump can feed; the dry reads must
	// underrun and zero-fill, never block.
	for i := 0; i < 500; i++ {
		out.pull(4096)
		if e.Stats().Underruns > 0 {
			return
		}
	}
	t.Error("expected underruns after overdraining")
}

func TestNoUnderrunEventAtTrackEnd(t *testing.T) {
	e, out, pcm := testEngine(t, nil)

	if err := e.Play(pcm); err != nil {
		t.Fatal(err)
	}
	// Let the pump fill the queue before the callback starts pulling, so
	// the only dry reads are the final drain past the track's end.
	time.Sleep(200 * time.Millisecond)

	stop := drainAudio(out)
	defer stop()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-e.Events():
			if !ok {
				t.Fatal("event channel closed before playlist end")
			}
			if ev.Type == EventUnderrun {
				t.Error("end-of-track drain reported as underrun")
			}
			if ev.Type == EventPlaylistEnded {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for playlist end")
		}
	}
}

func TestLocalDecodeUsesProbeBudget(t *testing.T) {
	pcm := writePCM(t, 4096, 0.5)
	argsPath := filepath.Join(t.TempDir(), "args")
	script := filepath.Join(t.TempDir(), "fakedec")
	body := "#!/bin/sh\necho \"$@\" > \"" + argsPath + "\"\ncat \"" + pcm + "\"\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	e, _, _ := testEngine(t, func(c *config.Config) {
		c.DecoderBinary = script
	})

	if err := e.Play(pcm); err != nil {
		t.Fatal(err)
	}
	waitEvent(t, e, EventTrackStarted)
	time.Sleep(100 * time.Millisecond)

	data, err := os.ReadFile(argsPath)
	if err != nil {
		t.Fatalf("decoder args not recorded: %v", err)
	}
	if !strings.Contains(string(data), "-probesize") {
		t.Errorf("local decode missing probe budget flags: %s", data)
	}
}

// pullAll collects the callback output until it goes quiet.
func pullAll(out *fakeOutput, samples int) []float32 {
	var got []float32
	for len(got) < samples {
		got = append(got, out.pull(512)...)
	}
	return got
}

// nonSilentSpan returns the first and last nonzero sample indexes.
func nonSilentSpan(t *testing.T, samples []float32) (int, int) {
	t.Helper()
	start, end := -1, -1
	for i, s := range samples {
		if s != 0 {
			if start == -1 {
				start = i
			}
			end = i
		}
	}
	if start == -1 {
		t.Fatal("callback produced only silence")
	}
	return start, end
}

func near(s, v float32) bool {
	d := s - v
	return d < 1e-3 && d > -1e-3
}

func TestGaplessSpliceSeamless(t *testing.T) {
	cfg := spliceConfig(t)
	cfg.Gapless.Enabled = true
	e, out := newEngineWithConfig(t, cfg)

	first := writePCMNamed(t, "first.pcm", 32768, 0.8)
	second := writePCMNamed(t, "second.pcm", 8192, 0.4)

	if err := e.Play(first, second); err != nil {
		t.Fatal(err)
	}

	started := waitEvent(t, e, EventTrackStarted)
	next := waitEvent(t, e, EventTrackStarted)
	if next.Track.Path != second {
		t.Fatalf("spliced into wrong track: %s", next.Track.Path)
	}
	if next.SessionID == started.SessionID {
		t.Error("spliced track reused the outgoing session id")
	}
	if out.closeCount() != 0 {
		t.Error("gapless transition should keep the output stream open")
	}

	// Let the spliced pump flush the adopted prebuffer into the queue.
	time.Sleep(300 * time.Millisecond)

	samples := pullAll(out, 48000)
	start, end := nonSilentSpan(t, samples)

	firstRun, secondRun := 0, 0
	seenSecond := false
	for i := start; i <= end; i++ {
		switch s := samples[i]; {
		case near(s, 0.8):
			if seenSecond {
				t.Fatalf("outgoing track audio after the splice at %d", i)
			}
			firstRun++
		case near(s, 0.4):
			seenSecond = true
			secondRun++
		default:
			t.Fatalf("gap or distortion at %d: %v", i, s)
		}
	}
	if firstRun != 32768 {
		t.Errorf("expected 32768 outgoing samples, got %d", firstRun)
	}
	if secondRun != 8192 {
		t.Errorf("expected 8192 incoming samples, got %d", secondRun)
	}

	waitEvent(t, e, EventPlaylistEnded)
}

func TestCrossfadeSpliceBlendsWindow(t *testing.T) {
	cfg := spliceConfig(t)
	cfg.Crossfade.Enabled = true
	cfg.Crossfade.DurationSeconds = 0.05
	e, out := newEngineWithConfig(t, cfg)

	first := writePCMNamed(t, "first.pcm", 32768, 0.8)
	second := writePCMNamed(t, "second.pcm", 8192, 0.4)

	if err := e.Play(first, second); err != nil {
		t.Fatal(err)
	}

	waitEvent(t, e, EventTrackStarted)
	waitEvent(t, e, EventTrackStarted)
	time.Sleep(300 * time.Millisecond)

	samples := pullAll(out, 48000)
	start, end := nonSilentSpan(t, samples)

	// Everything queued ahead of the fade window plays unmixed: with a
	// 0.05 s window at 44100x2 only the last 4410 samples of the 32768
	// sample tail blend.
	leading := 0
	for i := start; i <= end && near(samples[i], 0.8); i++ {
		leading++
	}
	if leading < 25000 || leading > 30000 {
		t.Errorf("fade window not honored: %d leading unmixed samples", leading)
	}

	midSeen, tailSeen := false, false
	for i := start; i <= end; i++ {
		s := samples[i]
		if s == 0 {
			t.Fatalf("silent gap inside the crossfade at %d", i)
		}
		if s > 0.55 && s < 0.65 {
			midSeen = true
		}
		if near(s, 0.4) {
			tailSeen = true
		}
	}
	if !midSeen {
		t.Error("no blended samples between the two tracks")
	}
	if !tailSeen {
		t.Error("incoming track never reached full level")
	}

	waitEvent(t, e, EventPlaylistEnded)
}

func TestSpliceFallsBackWhenPrebufferLate(t *testing.T) {
	cfg := spliceConfig(t)
	cfg.Gapless.Enabled = true
	cfg.Gapless.TimeoutMs = 100
	e, out := newEngineWithConfig(t, cfg)

	first := writePCMNamed(t, "first.pcm", 8192, 0.8)
	second := writePCMNamed(t, "slow.pcm", 8192, 0.4)

	if err := e.Play(first, second); err != nil {
		t.Fatal(err)
	}

	stop := drainAudio(out)
	defer stop()

	started := waitEvent(t, e, EventTrackStarted)
	next := waitEvent(t, e, EventTrackStarted)
	if next.Track.Path != second {
		t.Fatalf("advanced to wrong track: %s", next.Track.Path)
	}
	if next.SessionID == started.SessionID {
		t.Error("fallback transition reused the outgoing session id")
	}

	// The stalled prebuffer must not wedge playback; the second track
	// still plays to completion through a fresh session.
	waitEvent(t, e, EventPlaylistEnded)
}
