// Package spool imports upload files dropped into a directory, for devices
// that hand over data by file copy instead of HTTP.
package spool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"drilltrack/internal/metrics"
	"drilltrack/internal/survey"
	"drilltrack/internal/util/logger/sl"

	"github.com/fsnotify/fsnotify"
)

// Persister stores a decoded upload. *ingestion.Ingestor implements it.
type Persister interface {
	Persist(ctx context.Context, u survey.Upload) (int64, error)
}

type Config struct {
	Dir              string
	DebounceDuration time.Duration
	IgnorePatterns   []string
}

// Spool watches Dir for *.json uploads. Each file is persisted once and then
// moved to processed/ or failed/.
type Spool struct {
	watcher   *fsnotify.Watcher
	persister Persister
	config    Config
	metrics   *metrics.Metrics
	log       *slog.Logger
	debouncer *Debouncer

	ctx    context.Context
	cancel context.CancelFunc

	stopChan  chan struct{}
	wg        sync.WaitGroup
	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once

	// serializes file handling between the initial scan and watcher events
	mu sync.Mutex
}

func New(p Persister, config Config, m *metrics.Metrics, log *slog.Logger) (*Spool, error) {
	const op = "spool.New"

	if strings.TrimSpace(config.Dir) == "" {
		return nil, fmt.Errorf("%s: %w: empty directory", op, ErrInvalidPath)
	}
	dir, err := filepath.Abs(config.Dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidPath, err)
	}
	config.Dir = dir

	if config.DebounceDuration == 0 {
		config.DebounceDuration = DefaultDebounceDuration
	}
	if config.IgnorePatterns == nil {
		config.IgnorePatterns = IgnoredPatterns
	}
	if m == nil {
		m = metrics.New()
	}

	for _, d := range []string{dir, filepath.Join(dir, ProcessedDir), filepath.Join(dir, FailedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidPath, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Spool{
		watcher:   watcher,
		persister: p,
		config:    config,
		metrics:   m,
		log:       log.With(slog.String("component", "spool"), slog.String("dir", dir)),
		debouncer: NewDebouncer(config.DebounceDuration),
		ctx:       ctx,
		cancel:    cancel,
		stopChan:  make(chan struct{}),
	}, nil
}

// Start begins watching and imports the files already waiting in the
// directory before returning.
func (s *Spool) Start() error {
	const op = "spool.Start"

	if s.closed.Load() {
		return fmt.Errorf("%s: %w", op, ErrSpoolClosed)
	}
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%s: %w", op, ErrAlreadyStarted)
	}

	if err := s.watcher.Add(s.config.Dir); err != nil {
		return fmt.Errorf("%s: failed to watch %s: %w", op, s.config.Dir, err)
	}

	s.wg.Add(1)
	go s.run()

	entries, err := os.ReadDir(s.config.Dir)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	pending := 0
	for _, e := range entries {
		path := filepath.Join(s.config.Dir, e.Name())
		if e.Type().IsRegular() && s.eligible(path) {
			pending++
			s.processFile(path)
		}
	}

	s.log.Info("Spool started", slog.Int("pending", pending))
	return nil
}

func (s *Spool) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopChan:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if s.shouldProcessEvent(event) {
				path := event.Name
				s.debouncer.Debounce(path, func() { s.processFile(path) })
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("Watcher error", sl.Err(err))
		}
	}
}

func (s *Spool) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op&WatchedEvents == 0 {
		return false
	}
	return s.eligible(event.Name)
}

// eligible reports whether path is an upload file directly inside the spool
// directory.
func (s *Spool) eligible(path string) bool {
	if filepath.Dir(path) != s.config.Dir {
		return false
	}
	if !strings.EqualFold(filepath.Ext(path), uploadExt) {
		return false
	}
	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(filepath.Base(path), pattern) {
			s.log.Debug("Ignoring file", slog.String("file", path), slog.String("pattern", pattern))
			return false
		}
	}
	return true
}

func (s *Spool) processFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.log.With(slog.String("file", filepath.Base(path)))

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		// already moved by an earlier event
		return
	}
	if err != nil {
		log.Error("Failed to read upload file", sl.Err(err))
		return
	}

	upload, err := survey.Decode(data)
	if err != nil {
		log.Warn("Invalid upload file", sl.Err(err))
		s.finish(path, FailedDir, metrics.ResultFailed)
		return
	}

	runID, err := s.persister.Persist(s.ctx, upload)
	if err != nil {
		log.Error("Failed to store upload file", sl.Err(err))
		s.finish(path, FailedDir, metrics.ResultFailed)
		return
	}

	log.Info("Upload file imported",
		slog.Int64("run_id", runID),
		slog.Int("points", len(upload.Points)),
	)
	s.finish(path, ProcessedDir, metrics.ResultProcessed)
}

func (s *Spool) finish(path, subdir, result string) {
	s.metrics.SpoolFiles.WithLabelValues(result).Inc()

	target := filepath.Join(s.config.Dir, subdir, filepath.Base(path))
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(target)
		target = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(target, ext), time.Now().UnixNano(), ext)
	}

	if err := os.Rename(path, target); err != nil {
		s.log.Error("Failed to move upload file",
			slog.String("file", path),
			slog.String("target", target),
			sl.Err(err),
		)
	}
}

// Close stops watching and waits for imports in progress.
func (s *Spool) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.stopChan)
		s.wg.Wait()
		s.debouncer.Stop()
		s.cancel()

		if cerr := s.watcher.Close(); cerr != nil {
			err = fmt.Errorf("failed to close watcher: %w", cerr)
		}
	})
	return err
}
