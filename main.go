// ABOUTME: Entry point for the Aria audio player
// ABOUTME: Parses CLI flags, wires the device registry and engine, runs playback
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/aria-audio/aria-go/internal/config"
	"github.com/aria-audio/aria-go/internal/device"
	"github.com/aria-audio/aria-go/internal/engine"
	"github.com/aria-audio/aria-go/internal/output"
	"github.com/aria-audio/aria-go/internal/version"
	"github.com/rs/zerolog"
)

var (
	configPath  = flag.String("config", "", "Path to YAML config file")
	deviceIndex = flag.Int("device", -1, "Output device index (-1 for default)")
	backend     = flag.String("backend", "", "Output backend: malgo, oto, or portaudio")
	volume      = flag.Float64("volume", -1, "Playback gain in [0,1]")
	bitPerfect  = flag.Bool("bit-perfect", false, "Disable all processing between decoder and device")
	shuffle     = flag.Bool("shuffle", false, "Shuffle the playlist")
	repeat      = flag.String("repeat", "", "Repeat mode: off, one, or all")
	crossfade   = flag.Float64("crossfade", 0, "Crossfade duration in seconds (0 disables)")
	gapless     = flag.Bool("gapless", false, "Enable gapless transitions")
	listDevices = flag.Bool("list-devices", false, "List output devices and exit")
	logFile     = flag.String("log-file", "", "Also write logs to this file")
	verbose     = flag.Bool("verbose", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s (%s)\n", version.Product, version.Version, version.Manufacturer)
		return
	}

	logger, closeLog, err := setupLogging(*logFile, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	reg, err := buildRegistry(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("device registry init failed")
	}
	defer reg.Close()

	if *listDevices {
		printDevices(reg)
		return
	}

	tracks := flag.Args()
	if len(tracks) == 0 {
		fmt.Fprintln(os.Stderr, "usage: aria [flags] <file-or-url> [...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if _, err := reg.Select(cfg.DeviceIndex); err != nil {
		logger.Fatal().Err(err).Msg("device selection failed")
	}

	out, err := output.New(cfg.Backend)
	if err != nil {
		logger.Fatal().Err(err).Msg("output backend")
	}

	eng, err := engine.New(cfg, reg, out, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("engine init failed")
	}

	eng.Sequencer().SetShuffle(*shuffle)
	if *repeat != "" {
		if err := eng.Sequencer().SetRepeatString(*repeat); err != nil {
			logger.Fatal().Err(err).Msg("invalid repeat mode")
		}
	}

	if err := eng.Play(tracks...); err != nil {
		logger.Fatal().Err(err).Msg("playback failed to start")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	run(eng, logger, sigCh)

	if err := eng.Close(); err != nil {
		logger.Warn().Err(err).Msg("engine close")
	}
	logger.Info().Msg("goodbye")
}

// run drains engine events until the playlist ends or a signal arrives.
func run(eng *engine.Engine, logger zerolog.Logger, sigCh <-chan os.Signal) {
	for {
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
			return
		case ev, ok := <-eng.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case engine.EventTrackStarted:
				logger.Info().Str("track", ev.Track.Path).Msg("now playing")
			case engine.EventTrackEnded:
				logger.Info().Str("track", ev.Track.Path).Msg("track finished")
			case engine.EventPlaylistEnded:
				logger.Info().Msg("playlist finished")
				return
			case engine.EventUnderrun:
				logger.Warn().Str("track", ev.Track.Path).Msg("audio underrun")
			case engine.EventDecodeError, engine.EventDeviceError:
				logger.Error().Err(ev.Err).Str("type", ev.Type.String()).Msg("playback error")
			case engine.EventNetwork:
				logger.Debug().
					Int("attempt", ev.Net.Attempt).
					Int64("offset", ev.Net.Offset).
					Msg("network stream event")
			case engine.EventStateChanged:
				logger.Debug().Str("state", ev.State.String()).Msg("state changed")
			}
		}
	}
}

// loadConfig merges the config file with command-line overrides.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if *deviceIndex >= 0 {
		cfg.DeviceIndex = *deviceIndex
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *volume >= 0 {
		cfg.Volume = *volume
	}
	if *bitPerfect {
		cfg.BitPerfect = true
	}
	if *crossfade > 0 {
		cfg.Crossfade.Enabled = true
		cfg.Crossfade.DurationSeconds = *crossfade
	}
	if *gapless {
		cfg.Gapless.Enabled = true
	}

	return cfg, cfg.Validate()
}

// buildRegistry picks the device provider matching the output backend.
func buildRegistry(cfg config.Config, logger zerolog.Logger) (*device.Registry, error) {
	var provider device.Provider
	var err error
	switch cfg.Backend {
	case "portaudio":
		provider, err = device.NewPortAudioProvider()
	default:
		provider, err = device.NewMalgoProvider()
	}
	if err != nil {
		return nil, err
	}

	reg := device.NewRegistry(provider, logger)
	if err := reg.Init(); err != nil {
		return nil, err
	}
	return reg, nil
}

func printDevices(reg *device.Registry) {
	devices, err := reg.Devices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "device enumeration failed: %v\n", err)
		os.Exit(1)
	}
	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Printf("%s [%d] %s (default rate %d Hz, up to %d channels)\n",
			marker, d.Index, d.Name, d.DefaultSampleRate, d.MaxOutputChannels)
	}
}

// setupLogging builds a console logger, optionally teeing to a file.
func setupLogging(path string, verbose bool) (zerolog.Logger, func(), error) {
	console := zerolog.ConsoleWriter{Out: os.Stderr}

	var w io.Writer = console
	closer := func() {}
	if path != "" {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			return zerolog.Logger{}, nil, err
		}
		w = zerolog.MultiLevelWriter(console, f)
		closer = func() { _ = f.Close() }
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}
