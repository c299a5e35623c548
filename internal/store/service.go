package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/ricesearch/support-context/internal/pkg/errors"
	"github.com/ricesearch/support-context/internal/pkg/logger"
	"github.com/ricesearch/support-context/internal/pkg/security"
)

// Service loads corpus files into a Storage.
type Service struct {
	storage Storage
	log     *logger.Logger
}

// ImportStats summarizes one import.
type ImportStats struct {
	Files     int `json:"files"`
	Articles  int `json:"articles"`
	FAQs      int `json:"faqs"`
	Documents int `json:"documents"`
}

func (s *ImportStats) add(o ImportStats) {
	s.Files += o.Files
	s.Articles += o.Articles
	s.FAQs += o.FAQs
	s.Documents += o.Documents
}

// NewService creates a store service.
func NewService(storage Storage, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{storage: storage, log: log.WithComponent("store")}
}

// Storage returns the underlying storage.
func (s *Service) Storage() Storage {
	return s.storage
}

// IsCorpusFile reports whether path has an importable extension.
func IsCorpusFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// ParseCorpus decodes a corpus bundle. format is "json" or "yaml".
func ParseCorpus(data []byte, format string) (*Corpus, error) {
	var c Corpus
	switch format {
	case "json":
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decoding json corpus: %w", err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decoding yaml corpus: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported corpus format %q", format)
	}
	return &c, nil
}

// ImportFile loads one JSON or YAML corpus file.
func (s *Service) ImportFile(ctx context.Context, path string) (ImportStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImportStats{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := security.ValidateContent(data, security.MaxCorpusFileSize); err != nil {
		return ImportStats{}, fmt.Errorf("%s: %w", path, err)
	}

	format := "json"
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		format = "yaml"
	}

	corpus, err := ParseCorpus(data, format)
	if err != nil {
		return ImportStats{}, fmt.Errorf("%s: %w", path, err)
	}

	stats, err := s.ImportCorpus(ctx, corpus)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", path, err)
	}
	stats.Files = 1

	s.log.Info("Imported corpus file",
		"path", path,
		"articles", stats.Articles,
		"faqs", stats.FAQs,
		"documents", stats.Documents,
	)
	return stats, nil
}

// ImportPath imports a single file or every corpus file directly inside a
// directory, in name order.
func (s *Service) ImportPath(ctx context.Context, path string) (ImportStats, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ImportStats{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return s.ImportFile(ctx, path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return ImportStats{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsCorpusFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var total ImportStats
	for _, name := range names {
		stats, err := s.ImportFile(ctx, filepath.Join(path, name))
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ImportCorpus saves every entity in c, filling defaults for status and
// timestamps.
func (s *Service) ImportCorpus(ctx context.Context, c *Corpus) (ImportStats, error) {
	var stats ImportStats
	now := time.Now().UTC()

	for i := range c.Articles {
		a := &c.Articles[i]
		if a.Status == "" {
			a.Status = ArticlePublished
		}
		stampTimes(&a.CreatedAt, &a.UpdatedAt, now)
		if err := s.storage.SaveArticle(ctx, a); err != nil {
			return stats, apperrors.StorageError("saving article "+a.ID, err)
		}
		stats.Articles++
	}

	for i := range c.FAQs {
		f := &c.FAQs[i]
		if f.Status == "" {
			f.Status = FAQPending
		}
		stampTimes(&f.CreatedAt, &f.UpdatedAt, now)
		if err := s.storage.SaveFAQ(ctx, f); err != nil {
			return stats, apperrors.StorageError("saving faq "+f.ID, err)
		}
		stats.FAQs++
	}

	for i := range c.Documents {
		d := &c.Documents[i]
		if d.Status == "" && d.ExtractedText != nil {
			d.Status = DocumentCompleted
		}
		if d.FileType == "" {
			d.FileType = strings.TrimPrefix(strings.ToLower(filepath.Ext(d.Filename)), ".")
		}
		if d.FileSize == 0 && d.ExtractedText != nil {
			d.FileSize = int64(len(*d.ExtractedText))
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
		if err := s.storage.SaveDocument(ctx, d); err != nil {
			return stats, apperrors.StorageError("saving document "+d.ID, err)
		}
		stats.Documents++
	}

	return stats, nil
}

func stampTimes(created, updated *time.Time, now time.Time) {
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = *created
	}
}
