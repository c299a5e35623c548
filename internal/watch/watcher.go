// Package watch keeps storage in sync with a corpus directory: changed
// corpus files are re-imported, the search cache is flushed and a
// corpus.reloaded event is published.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ricesearch/support-context/internal/bus"
	"github.com/ricesearch/support-context/internal/pkg/logger"
	"github.com/ricesearch/support-context/internal/store"
)

// Importer loads one corpus file into storage.
type Importer interface {
	ImportFile(ctx context.Context, path string) (store.ImportStats, error)
}

// Invalidator drops cached search responses.
type Invalidator interface {
	InvalidateCache(ctx context.Context) error
}

// Config configures a Watcher.
type Config struct {
	Dir      string
	Debounce time.Duration // default 500ms
	Importer Importer
	Cache    Invalidator // optional
	Bus      bus.Bus     // optional
	Log      *logger.Logger
}

// Stats describes what a watcher has done so far.
type Stats struct {
	Reloads    int       `json:"reloads"`
	Files      int       `json:"files"`
	LastReload time.Time `json:"last_reload"`
}

// Watcher re-imports corpus files in one directory when they change.
type Watcher struct {
	dir      string
	debounce time.Duration
	importer Importer
	cache    Invalidator
	bus      bus.Bus
	ignore   *IgnoreFilter
	log      *logger.Logger

	pendingMu sync.Mutex
	pending   map[string]struct{}
	timer     *time.Timer

	// reloadMu serializes reloads so imports never interleave.
	reloadMu sync.Mutex
	statsMu  sync.Mutex
	stats    Stats

	ready    chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher validates cfg and prepares a watcher. Call Start to run it.
func NewWatcher(cfg Config) (*Watcher, error) {
	if cfg.Importer == nil {
		return nil, errors.New("watch: importer is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.Log == nil {
		cfg.Log = logger.Discard()
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("corpus dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus dir: %s is not a directory", dir)
	}

	ignore, err := NewIgnoreFilter(dir)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", IgnoreFile, err)
	}

	return &Watcher{
		dir:      dir,
		debounce: cfg.Debounce,
		importer: cfg.Importer,
		cache:    cfg.Cache,
		bus:      cfg.Bus,
		ignore:   ignore,
		log:      cfg.Log.WithComponent("watch"),
		pending:  make(map[string]struct{}),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Dir returns the absolute corpus directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Ready is closed once the initial import finished and change
// notifications are active.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Start imports every corpus file, then watches for changes until ctx is
// done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.log.Info("Starting corpus watcher", "dir", w.dir)

	files, err := w.corpusFiles()
	if err != nil {
		return err
	}
	if err := w.reload(ctx, files); err != nil {
		return fmt.Errorf("initial import: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	close(w.ready)

	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Error("Watcher error")
		}
	}
}

// Stop ends Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

// Stats returns a snapshot of reload counters.
func (w *Watcher) Stats() Stats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

func (w *Watcher) wanted(path string) bool {
	return store.IsCorpusFile(path) && !w.ignore.ShouldIgnore(path)
}

func (w *Watcher) corpusFiles() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if !e.IsDir() && w.wanted(path) {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !w.wanted(event.Name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[event.Name] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) stopTimer() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	sort.Strings(paths)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := w.reload(ctx, paths); err != nil {
		w.log.WithError(err).Error("Corpus reload failed")
	}
}

// reload imports the given files. Files that no longer exist are skipped;
// their entries stay in storage until overwritten.
func (w *Watcher) reload(ctx context.Context, paths []string) error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	var total store.ImportStats
	var errs []error
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			w.log.Info("Corpus file removed", "path", path)
			continue
		}
		stats, err := w.importer.ImportFile(ctx, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(path), err))
			continue
		}
		total.Files += stats.Files
		total.Articles += stats.Articles
		total.FAQs += stats.FAQs
		total.Documents += stats.Documents
	}

	if total.Files > 0 {
		w.afterImport(ctx, total)
	}
	return errors.Join(errs...)
}

func (w *Watcher) afterImport(ctx context.Context, total store.ImportStats) {
	w.statsMu.Lock()
	w.stats.Reloads++
	w.stats.Files += total.Files
	w.stats.LastReload = time.Now()
	w.statsMu.Unlock()

	if w.cache != nil {
		if err := w.cache.InvalidateCache(ctx); err != nil {
			w.log.WithError(err).Warn("Search cache invalidation failed")
		}
	}

	if w.bus != nil {
		event := bus.NewEvent(bus.TopicCorpusReloaded, "watch", bus.CorpusReloaded{
			Path:      w.dir,
			Articles:  total.Articles,
			FAQs:      total.FAQs,
			Documents: total.Documents,
		})
		if err := w.bus.Publish(ctx, bus.TopicCorpusReloaded, event); err != nil {
			w.log.WithError(err).Warn("Publishing corpus reload failed")
		}
	}

	w.log.Info("Corpus reloaded",
		"files", total.Files,
		"articles", total.Articles,
		"faqs", total.FAQs,
		"documents", total.Documents,
	)
}
