// Command memovox records a voice memo, transcribes it and writes a
// structured markdown note.
//
// Audio comes from a mono 16-bit WAV file (audio.input_wav) or, by default,
// from raw s16le PCM on stdin, so a live run is a matter of piping a capture
// tool in:
//
//	arecord -f S16_LE -r 16000 -c 1 -t raw | memovox -config config.yaml
//
// The first SIGINT stops capture gracefully: buffered audio is segmented and
// transcribed before the note is generated. A second SIGINT cancels the run
// and discards whatever is still queued.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/hwidmann/memovox/internal/config"
	"github.com/hwidmann/memovox/internal/health"
	"github.com/hwidmann/memovox/internal/notes"
	"github.com/hwidmann/memovox/internal/observe"
	"github.com/hwidmann/memovox/internal/pipeline"
	"github.com/hwidmann/memovox/internal/segment"
	"github.com/hwidmann/memovox/internal/transcribe"
	"github.com/hwidmann/memovox/internal/transcript"
	"github.com/hwidmann/memovox/pkg/audio"
	"github.com/hwidmann/memovox/pkg/provider/llm"
	"github.com/hwidmann/memovox/pkg/provider/llm/anyllm"
	"github.com/hwidmann/memovox/pkg/provider/stt"
	"github.com/hwidmann/memovox/pkg/provider/stt/remote"
	"github.com/hwidmann/memovox/pkg/provider/stt/whisper"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	inputWAV := flag.String("input", "", "WAV file to transcribe (overrides audio.input_wav)")
	title := flag.String("title", "", "note title (overrides notes.title)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "memovox: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "memovox: %v\n", err)
		}
		return 1
	}
	if *inputWAV != "" {
		cfg.Audio.InputWAV = *inputWAV
	}
	if *title != "" {
		cfg.Notes.Title = *title
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	source, sampleRate, err := buildSource(cfg)
	if err != nil {
		slog.Error("failed to open audio source", "err", err)
		return 1
	}
	defer source.Close()

	decoder, closeDecoder, err := buildDecoder(cfg)
	if err != nil {
		slog.Error("failed to build decoder", "err", err)
		return 1
	}
	defer closeDecoder()

	fileStore, err := notes.NewFileStore(cfg.Notes.Dir)
	if err != nil {
		slog.Error("failed to open notes directory", "err", err)
		return 1
	}

	// The pool is optional: a dead database degrades to file-only storage.
	var pool *pgxpool.Pool
	if dsn := cfg.Notes.PostgresDSN; dsn != "" {
		pool, err = pgxpool.New(ctx, dsn)
		if err != nil {
			slog.Warn("postgres unavailable, notes go to file only", "err", err)
			pool = nil
		} else {
			defer pool.Close()
		}
	}

	if cfg.MetricsAddr != "" {
		checkers := []health.Checker{health.DirWritable("notes_dir", cfg.Notes.Dir)}
		if pool != nil {
			checkers = append(checkers, health.PingChecker("postgres", pool))
		}
		ops := health.NewServer(cfg.MetricsAddr, checkers...)
		go func() {
			if err := ops.ListenAndServe(); err != nil {
				slog.Error("ops server error", "err", err)
			}
		}()
		defer func() {
			opsCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := ops.Shutdown(opsCtx); err != nil {
				slog.Warn("ops server shutdown error", "err", err)
			}
		}()
	}

	slog.Info("memovox starting",
		"config", *configPath,
		"sample_rate", sampleRate,
		"frame_ms", cfg.Audio.FrameMs,
		"stt_engine", cfg.Providers.STT.Engine,
		"llm_provider", cfg.Providers.LLM.Provider,
	)

	ctrl, err := pipeline.New(source, decoder, pipeline.Config{
		SampleRate:     sampleRate,
		FrameMs:        cfg.Audio.FrameMs,
		Aggressiveness: cfg.VAD.Aggressiveness,
		FrameQueue:     cfg.Queues.Frames,
		SegmentQueue:   cfg.Queues.Segments,
		Segmenter: segment.Config{
			HangoverFrames:  cfg.VAD.HangoverFrames,
			HangoverKeepMs:  cfg.VAD.HangoverKeepMs,
			MinSpeechFrames: (cfg.VAD.MinSegmentMs + cfg.Audio.FrameMs - 1) / cfg.Audio.FrameMs,
		},
		Transcribe: transcribe.Config{
			Session: stt.SessionConfig{
				SampleRate: sampleRate,
				Language:   cfg.Providers.STT.Language,
			},
		},
	})
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}

	if err := ctrl.Start(ctx); err != nil {
		slog.Error("failed to start pipeline", "err", err)
		return 1
	}
	if cfg.Audio.InputWAV == "" {
		slog.Info("recording — press Ctrl+C to stop, twice to abort")
	}

	res, runErr := waitForRun(ctx, ctrl)
	if runErr != nil {
		// A device timeout still leaves a partial transcript worth keeping.
		if !errors.Is(runErr, pipeline.ErrDeviceTimeout) {
			slog.Error("pipeline error", "err", runErr)
			return 1
		}
		slog.Warn("capture device timed out, keeping partial transcript", "err", runErr)
	}
	slog.Info("run complete",
		"audio", res.Audio,
		"segments", res.SegmentsEmitted,
		"dropped", res.DroppedSegments,
		"discarded_short", res.DiscardedShort,
	)

	if len(res.Chunks) == 0 {
		slog.Info("no speech recognized, nothing to save")
		return 0
	}

	corrector := transcript.NewCorrector(cfg.Vocabulary)
	chunks, corrections := corrector.CorrectChunks(res.Chunks)
	res.Chunks = chunks
	for _, c := range corrections {
		slog.Debug("vocabulary correction",
			"original", c.Original,
			"corrected", c.Corrected,
			"confidence", c.Confidence,
		)
	}

	note, err := generateNote(ctx, cfg, res, len(corrections))
	if err != nil {
		slog.Error("failed to generate note", "err", err)
		return 1
	}

	if err := saveNote(ctx, fileStore, pool, note); err != nil {
		slog.Error("failed to save note", "err", err)
		return 1
	}
	fmt.Println(note.ID)
	return 0
}

// waitForRun blocks until the pipeline finishes on its own and translates
// SIGINT into Stop (first) and Cancel (second).
func waitForRun(ctx context.Context, ctrl *pipeline.Controller) (pipeline.Result, error) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT)
	defer signal.Stop(sigs)

	stopped := false
	for {
		select {
		case <-sigs:
			if stopped {
				slog.Warn("cancelling, discarding queued audio")
				return ctrl.Cancel()
			}
			stopped = true
			slog.Info("stopping, draining buffered audio")
			go func() {
				// Errors surface through Wait below.
				_, _ = ctrl.Stop(context.Background())
			}()
		case <-ctx.Done():
			return ctrl.Cancel()
		case <-ctrl.Done():
			return ctrl.Wait(ctx)
		}
	}
}

// buildSource opens the configured audio source and reports its sample rate,
// which for WAV input comes from the file header rather than the config.
func buildSource(cfg *config.Config) (audio.Source, int, error) {
	if cfg.Audio.InputWAV != "" {
		f, err := os.Open(cfg.Audio.InputWAV)
		if err != nil {
			return nil, 0, err
		}
		src, err := audio.NewWAVSource(f, cfg.Audio.FrameMs)
		if err != nil {
			f.Close()
			return nil, 0, err
		}
		return src, src.SampleRate(), nil
	}

	src, err := audio.NewReaderSource(os.Stdin, cfg.Audio.SampleRate, cfg.Audio.FrameMs)
	if err != nil {
		return nil, 0, err
	}
	return src, cfg.Audio.SampleRate, nil
}

// buildDecoder constructs the configured speech decoder and a release func.
func buildDecoder(cfg *config.Config) (stt.Decoder, func(), error) {
	switch cfg.Providers.STT.Engine {
	case "whisper":
		var opts []whisper.Option
		if lang := cfg.Providers.STT.Language; lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		d, err := whisper.New(cfg.Providers.STT.ModelPath, opts...)
		if err != nil {
			return nil, nil, err
		}
		return d, func() {
			if err := d.Close(); err != nil {
				slog.Warn("whisper close error", "err", err)
			}
		}, nil
	case "remote":
		d, err := remote.New(cfg.Providers.STT.URL)
		if err != nil {
			return nil, nil, err
		}
		return d, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown stt engine %q", cfg.Providers.STT.Engine)
	}
}

// buildProvider constructs the note summarizer backend.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	var opts []anyllmlib.Option
	if cfg.Providers.LLM.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.Providers.LLM.APIKey))
	}
	if cfg.Providers.LLM.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.Providers.LLM.BaseURL))
	}
	return anyllm.New(cfg.Providers.LLM.Provider, cfg.Providers.LLM.Model, opts...)
}

// generateNote summarizes the run's transcript into a Note.
func generateNote(ctx context.Context, cfg *config.Config, res pipeline.Result, corrections int) (*notes.Note, error) {
	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}
	gen, err := notes.NewGenerator(provider, notes.GeneratorConfig{})
	if err != nil {
		return nil, err
	}

	summary, err := gen.Generate(ctx, res.Transcript())
	if err != nil {
		return nil, err
	}
	return &notes.Note{
		Title:           cfg.Notes.Title,
		Summary:         summary,
		Transcript:      res.Transcript(),
		Model:           cfg.Providers.LLM.Provider + "/" + cfg.Providers.LLM.Model,
		Audio:           res.Audio,
		Corrections:     corrections,
		DroppedSegments: res.DroppedSegments,
	}, nil
}

// saveNote writes the note to the notes directory and, when a pool is
// available, to PostgreSQL as well. The file write is authoritative; a
// database failure is logged but does not fail the run.
func saveNote(ctx context.Context, fileStore *notes.FileStore, pool *pgxpool.Pool, note *notes.Note) error {
	if err := fileStore.Save(ctx, note); err != nil {
		return err
	}

	if pool != nil {
		pg := notes.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Warn("postgres migrate failed, note saved to file only", "err", err)
			return nil
		}
		// Keep the file path as the note ID; the row id is secondary.
		dbNote := *note
		if err := pg.Save(ctx, &dbNote); err != nil {
			slog.Warn("postgres save failed, note saved to file only", "err", err)
		}
	}
	return nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
