// ABOUTME: External decoder process lifecycle management
// ABOUTME: Builds ffmpeg invocations and streams decoded PCM chunks from stdout
package decode

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/aria-audio/aria-go/pkg/audio"
	"github.com/rs/zerolog"
)

const readBufferSize = 16384

// Request describes one decoder invocation. Output is always raw
// little-endian float32 PCM on stdout.
type Request struct {
	Input       string    // file path or URL; ignored when Stdin is set
	Stdin       io.Reader // network-fed input, decoder reads pipe:0
	SampleRate  int
	Channels    int
	Codec       string // optional input format hint ("flac", "mp3", ...)
	SeekSeconds float64
	FastStart   bool   // bound probe/analysis work for low startup latency
	Binary      string // decoder binary, "ffmpeg" when empty
}

// buildArgs derives the decoder command line from the request.
func buildArgs(req Request) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}

	if req.FastStart {
		// Small probe budget: startup latency optimization for local files.
		args = append(args, "-probesize", "262144", "-analyzeduration", "0")
	}

	input := req.Input
	if req.Stdin != nil {
		input = "pipe:0"
	} else if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}

	if req.SeekSeconds > 0 {
		args = append(args, "-ss", strconv.FormatFloat(req.SeekSeconds, 'f', 3, 64))
	}
	if req.Codec != "" {
		args = append(args, "-f", req.Codec)
	}

	args = append(args, "-i", input, "-vn")
	if req.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(req.Channels))
	}
	if req.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(req.SampleRate))
	}
	args = append(args, "-f", "f32le", "pipe:1")

	return args
}

// Process is a running decoder. PCM chunks arrive on Chunks in production
// order; Done yields nil on clean exit and a DecodeFailed error otherwise.
type Process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	chunks chan []float32
	done   chan error
	quit   chan struct{}
	logger zerolog.Logger

	termOnce   sync.Once
	mu         sync.Mutex
	terminated bool
	exited     bool
}

// Start spawns the decoder process described by req.
func Start(req Request, logger zerolog.Logger) (*Process, error) {
	binary := req.Binary
	if binary == "" {
		binary = "ffmpeg"
	}

	cmd := exec.Command(binary, buildArgs(req)...)
	return startProcess(cmd, req.Stdin, logger)
}

// startProcess wires up a prepared command. Split from Start so tests can
// exercise the lifecycle without a real decoder binary.
func startProcess(cmd *exec.Cmd, stdin io.Reader, logger zerolog.Logger) (*Process, error) {
	p := &Process{
		cmd:    cmd,
		stderr: &bytes.Buffer{},
		chunks: make(chan []float32, 16),
		done:   make(chan error, 1),
		quit:   make(chan struct{}),
		logger: logger.With().Str("component", "decode").Logger(),
	}

	cmd.Stderr = p.stderr
	if stdin != nil {
		cmd.Stdin = stdin
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	p.stdout = stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start decoder: %w", err)
	}

	p.logger.Debug().Int("pid", cmd.Process.Pid).Msg("decoder started")

	go p.readOutput()
	return p, nil
}

// Chunks returns the PCM output channel. Closed when the stream ends.
func (p *Process) Chunks() <-chan []float32 {
	return p.chunks
}

// Done yields the final process status exactly once.
func (p *Process) Done() <-chan error {
	return p.done
}

// readOutput streams stdout into PCM chunks, preserving order. Reads may
// split a float32 sample, so stray bytes carry over to the next chunk.
func (p *Process) readOutput() {
	defer close(p.chunks)

	buf := make([]byte, readBufferSize)
	var carry []byte
	var totalBytes int64

	for {
		n, err := p.stdout.Read(buf)
		if n > 0 {
			totalBytes += int64(n)
			data := append(carry, buf[:n]...)
			usable := len(data) - len(data)%4
			if usable > 0 {
				// An abandoned consumer must not wedge the send: Terminate
				// closes quit so the exit status still gets reaped.
				select {
				case p.chunks <- audio.BytesToFloat32(data[:usable]):
				case <-p.quit:
					p.finish(totalBytes)
					return
				}
			}
			carry = append([]byte(nil), data[usable:]...)
		}
		if err != nil {
			if err != io.EOF {
				p.logger.Debug().Err(err).Msg("decoder stdout read ended")
			}
			break
		}
	}

	p.finish(totalBytes)
}

// Exited reports whether the decoder process has finished.
func (p *Process) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

// finish waits for the process exit and reports it on done.
func (p *Process) finish(totalBytes int64) {
	err := p.cmd.Wait()

	p.mu.Lock()
	terminated := p.terminated
	p.exited = true
	p.mu.Unlock()

	if terminated {
		// Caller asked for termination; the non-zero exit is expected.
		p.done <- nil
		return
	}

	if err != nil {
		msg := strings.TrimSpace(p.stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		p.logger.Error().Str("stderr", msg).Msg("decoder exited abnormally")
		p.done <- fmt.Errorf("%w: %s", audio.ErrDecodeFailed, msg)
		return
	}

	p.logger.Debug().Int64("bytes", totalBytes).Msg("decoder finished")
	p.done <- nil
}

// Terminate kills the decoder. Idempotent and safe on an already-exited
// process: signal failures are logged, never propagated.
func (p *Process) Terminate() {
	p.termOnce.Do(func() {
		p.mu.Lock()
		p.terminated = true
		p.mu.Unlock()
		close(p.quit)

		if p.cmd.Process != nil {
			if err := p.cmd.Process.Kill(); err != nil {
				p.logger.Debug().Err(err).Msg("decoder kill failed (already exited?)")
			}
		}
	})
}
