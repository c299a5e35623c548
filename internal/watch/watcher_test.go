package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ricesearch/support-context/internal/bus"
	"github.com/ricesearch/support-context/internal/store"
)

type countingInvalidator struct {
	calls atomic.Int32
}

func (c *countingInvalidator) InvalidateCache(ctx context.Context) error {
	c.calls.Add(1)
	return nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

type harness struct {
	watcher *Watcher
	storage *store.MemoryStorage
	cache   *countingInvalidator
	reloads chan bus.CorpusReloaded
	errc    chan error
	cancel  context.CancelFunc
}

func startWatcher(t *testing.T, dir string) *harness {
	t.Helper()

	storage := store.NewMemoryStorage()
	b := bus.NewMemoryBus(nil)
	t.Cleanup(func() { _ = b.Close() })

	h := &harness{
		storage: storage,
		cache:   &countingInvalidator{},
		reloads: make(chan bus.CorpusReloaded, 10),
		errc:    make(chan error, 1),
	}
	err := b.Subscribe(context.Background(), bus.TopicCorpusReloaded, func(ctx context.Context, e bus.Event) error {
		p, err := bus.DecodePayload[bus.CorpusReloaded](e)
		if err == nil {
			h.reloads <- p
		}
		return err
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	w, err := NewWatcher(Config{
		Dir:      dir,
		Debounce: 20 * time.Millisecond,
		Importer: store.NewService(storage, nil),
		Cache:    h.cache,
		Bus:      b,
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	h.watcher = w

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.errc <- w.Start(ctx) }()
	t.Cleanup(cancel)

	select {
	case <-w.Ready():
	case err := <-h.errc:
		t.Fatalf("Start() returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher not ready")
	}
	return h
}

func (h *harness) waitReload(t *testing.T) bus.CorpusReloaded {
	t.Helper()
	select {
	case r := <-h.reloads:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no corpus.reloaded event")
		return bus.CorpusReloaded{}
	}
}

func TestWatcher_InitialImport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "kb.json"), `{"articles":[{"id":"a1","title":"Reset password","content":"Go to settings"}]}`)
	writeFile(t, filepath.Join(dir, "faqs.yaml"), "faqs:\n  - id: f1\n    question: How do I reset?\n    answer: Use the link\n    status: published\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "not a corpus file")

	h := startWatcher(t, dir)

	r := h.waitReload(t)
	if r.Articles != 1 || r.FAQs != 1 {
		t.Errorf("reload = %+v, want 1 article and 1 faq", r)
	}
	if _, err := h.storage.GetArticle(context.Background(), "a1"); err != nil {
		t.Errorf("GetArticle(a1) error = %v", err)
	}
	if h.cache.calls.Load() != 1 {
		t.Errorf("invalidations = %d, want 1", h.cache.calls.Load())
	}
	if s := h.watcher.Stats(); s.Reloads != 1 || s.Files != 2 {
		t.Errorf("Stats() = %+v, want 1 reload of 2 files", s)
	}
}

func TestWatcher_ReimportsChangedFile(t *testing.T) {
	dir := t.TempDir()
	h := startWatcher(t, dir)

	writeFile(t, filepath.Join(dir, "kb.json"), `{"articles":[{"id":"a1","title":"First","content":"v1"}]}`)
	h.waitReload(t)

	writeFile(t, filepath.Join(dir, "kb.json"), `{"articles":[{"id":"a1","title":"Second","content":"v2"}]}`)

	deadline := time.Now().Add(5 * time.Second)
	for {
		a, err := h.storage.GetArticle(context.Background(), "a1")
		if err == nil && a.Title == "Second" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("article not reloaded: %+v, %v", a, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if h.cache.calls.Load() < 2 {
		t.Errorf("invalidations = %d, want at least 2", h.cache.calls.Load())
	}
}

func TestWatcher_IgnoresFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, IgnoreFile), "drafts-*.json\n")
	h := startWatcher(t, dir)

	writeFile(t, filepath.Join(dir, "drafts-1.json"), `{"articles":[{"id":"d1","title":"Draft","content":"x"}]}`)
	writeFile(t, filepath.Join(dir, ".hidden.json"), `{"articles":[{"id":"d2","title":"Hidden","content":"x"}]}`)
	writeFile(t, filepath.Join(dir, "live.json"), `{"articles":[{"id":"l1","title":"Live","content":"x"}]}`)

	r := h.waitReload(t)
	if r.Articles != 1 {
		t.Errorf("reload articles = %d, want 1", r.Articles)
	}
	if _, err := h.storage.GetArticle(context.Background(), "d1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ignored file was imported: err = %v", err)
	}
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	h := startWatcher(t, t.TempDir())
	h.cancel()

	select {
	case err := <-h.errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Start() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestWatcher_Stop(t *testing.T) {
	h := startWatcher(t, t.TempDir())
	h.watcher.Stop()
	h.watcher.Stop()

	select {
	case err := <-h.errc:
		if err != nil {
			t.Errorf("Start() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestNewWatcher_Validation(t *testing.T) {
	importer := store.NewService(store.NewMemoryStorage(), nil)

	if _, err := NewWatcher(Config{Dir: t.TempDir()}); err == nil {
		t.Error("expected error without importer")
	}
	if _, err := NewWatcher(Config{Dir: filepath.Join(t.TempDir(), "missing"), Importer: importer}); err == nil {
		t.Error("expected error for missing dir")
	}

	file := filepath.Join(t.TempDir(), "kb.json")
	writeFile(t, file, "{}")
	if _, err := NewWatcher(Config{Dir: file, Importer: importer}); err == nil {
		t.Error("expected error when dir is a file")
	}
}
