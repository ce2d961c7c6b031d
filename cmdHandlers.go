package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"song-scanner/db"
	"song-scanner/scanner"
	"song-scanner/shazam"
	"song-scanner/utils"
	"song-scanner/wav"
)

// dbSink mirrors recognized tracks into the history database. Dedup
// is left to the database's unique constraint.
type dbSink struct {
	client db.Client
	source string
	logger *slog.Logger
}

func (s *dbSink) WriteIfNew(offsetS int, text string) (bool, error) {
	err := s.client.SaveMatch(db.Match{
		ScannedAt:  time.Now(),
		SourcePath: s.source,
		OffsetS:    offsetS,
		Track:      text,
	})
	if err != nil {
		// history is best-effort, never fail the scan over it
		s.logger.Warn("saving match to history", utils.ErrAttr(err))
	}
	return true, nil
}

func (s *dbSink) Close() error { return nil }

// outputPathFor places the result file next to the input (or in
// outDir), appending " (n)" when the name is taken.
func outputPathFor(sourcePath, outDir string) string {
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	dir := filepath.Dir(sourcePath)
	if outDir != "" {
		dir = outDir
	}

	candidate := filepath.Join(dir, base+".txt")
	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d).txt", base, n))
	}
}

func buildConfig(intervalS, workers int) scanner.Config {
	cfg := scanner.ConfigFromEnv()
	if intervalS > 0 {
		cfg.IntervalS = intervalS
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	return cfg.Normalized()
}

func newRecognizerFactory() func() scanner.Recognizer {
	clientCfg := shazam.DefaultClientConfig()
	return func() scanner.Recognizer {
		return shazam.NewClient(clientCfg)
	}
}

// consumeEvents prints scan progress until the events channel closes.
func consumeEvents(events <-chan scanner.Event, logger *slog.Logger) {
	for ev := range events {
		switch ev.Kind {
		case scanner.EventMeta:
			if ev.SourcePath != "" {
				fmt.Printf("scanning %s -> %s\n", ev.SourcePath, ev.OutputPath)
			}
			if ev.DurationKnown {
				fmt.Printf("duration %s, %d samples, %d workers\n",
					utils.FormatHMS(int(ev.DurationS)), ev.TotalSamples, ev.Workers)
			} else {
				fmt.Println("duration unknown, scanning sequentially")
			}
		case scanner.EventMatch:
			fmt.Printf("%s  %s\n", utils.FormatHMS(ev.OffsetS), ev.Text)
		case scanner.EventProgress:
			if ev.TotalKnown {
				line := fmt.Sprintf("scanned %d/%d  matches %d  errors %d",
					ev.Done, ev.Total, ev.Matches, ev.Errors)
				if ev.HasETA {
					line += fmt.Sprintf("  eta %s", utils.FormatHMS(int(ev.ETAS)))
				}
				fmt.Printf("\r%-70s", line)
				if ev.Done == ev.Total {
					fmt.Println()
				}
			}
		case scanner.EventWarn, scanner.EventStatus:
			fmt.Printf("\n%s\n", ev.Text)
		case scanner.EventError:
			logger.Warn("sample error", utils.ErrAttr(ev.Err))
		}
	}
}

func scanFiles(files []string, intervalS, workers int, outDir string) {
	logger := utils.Logger()

	if _, _, err := wav.RequireFFmpeg(); err != nil {
		logger.Error("ffmpeg not available", utils.ErrAttr(err))
		os.Exit(1)
	}
	if outDir != "" {
		if err := utils.CreateFolder(outDir); err != nil {
			logger.Error("creating output directory", utils.ErrAttr(err))
			os.Exit(1)
		}
	}

	cfg := buildConfig(intervalS, workers)
	factory := newRecognizerFactory()

	historyDB, err := db.NewDBClient()
	if err != nil {
		logger.Warn("history database unavailable", utils.ErrAttr(err))
		historyDB = nil
	} else {
		defer historyDB.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed := 0
	for _, path := range files {
		if ctx.Err() != nil {
			fmt.Println("\nstopped")
			break
		}

		src, err := scanner.NewFileSource(path, cfg.SampleRate, cfg.Channels)
		if err != nil {
			logger.Error("skipping file", slog.String("path", path), utils.ErrAttr(err))
			failed++
			continue
		}

		outPath := outputPathFor(path, outDir)
		textSink, err := scanner.NewTextSink(outPath)
		if err != nil {
			logger.Error("skipping file", slog.String("path", path), utils.ErrAttr(err))
			failed++
			continue
		}

		var sink scanner.ResultSink = textSink
		if historyDB != nil {
			sink = &scanner.FanoutSink{Sinks: []scanner.ResultSink{
				textSink,
				&dbSink{client: historyDB, source: path, logger: logger},
			}}
		}

		emitter := scanner.NewEmitter(256)
		done := make(chan struct{})
		go func() {
			consumeEvents(emitter.Events(), logger)
			close(done)
		}()

		sched := scanner.NewScheduler(cfg, factory, emitter, logger)
		sched.SourcePath = path
		sched.OutputPath = outPath
		stats, runErr := sched.Run(ctx, src, sink)
		<-done
		sink.Close()

		if runErr != nil {
			fmt.Printf("\nstopped after %d samples, %d matches\n", stats.Done, stats.Matches)
			break
		}
		// per-sample errors are already counted in stats; only files
		// that could not be opened or scanned at all count as failed
		fmt.Printf("done: %d samples, %d matches, %d no-match, %d errors\n",
			stats.Done, stats.Matches, stats.NoMatch, stats.Errors)
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func live(intervalS int) {
	logger := utils.Logger()

	cfg := buildConfig(intervalS, 1)
	// a live stream cannot be sampled ahead of real time
	cfg.Workers = 1

	src := scanner.NewLiveSource(os.Stdin, cfg.SampleRate, cfg.Channels)
	sink := scanner.NewStreamSink(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	emitter := scanner.NewEmitter(256)
	done := make(chan struct{})
	go func() {
		for ev := range emitter.Events() {
			switch ev.Kind {
			case scanner.EventWarn, scanner.EventStatus:
				fmt.Fprintln(os.Stderr, ev.Text)
			case scanner.EventError:
				logger.Warn("sample error", utils.ErrAttr(ev.Err))
			}
		}
		close(done)
	}()

	sched := scanner.NewScheduler(cfg, newRecognizerFactory(), emitter, logger)
	stats, err := sched.Run(ctx, src, sink)
	<-done

	if err != nil {
		fmt.Fprintf(os.Stderr, "stopped after %d samples, %d matches\n", stats.Done, stats.Matches)
		return
	}
	fmt.Fprintf(os.Stderr, "stream ended: %d samples, %d matches\n", stats.Done, stats.Matches)
}

func history(limit int) {
	logger := utils.Logger()

	client, err := db.NewDBClient()
	if err != nil {
		logger.Error("opening history database", utils.ErrAttr(err))
		os.Exit(1)
	}
	defer client.Close()

	matches, err := client.RecentMatches(limit)
	if err != nil {
		logger.Error("reading history", utils.ErrAttr(err))
		os.Exit(1)
	}
	if len(matches) == 0 {
		fmt.Println("no matches recorded yet")
		return
	}

	for _, m := range matches {
		fmt.Printf("%s  %s  %s (%s)\n",
			m.ScannedAt.Format("2006-01-02 15:04"),
			m.Track,
			filepath.Base(m.SourcePath),
			utils.FormatHMS(m.OffsetS))
	}
}
