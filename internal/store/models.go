// Package store holds the support corpora (knowledge-base articles, learned
// FAQs, session documents) and the audit rows written by the retrieval
// pipeline.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ArticleStatus is the publication state of a knowledge-base article.
type ArticleStatus string

const (
	ArticleDraft     ArticleStatus = "draft"
	ArticlePublished ArticleStatus = "published"
	ArticleArchived  ArticleStatus = "archived"
)

// FAQStatus is the review state of a learned FAQ entry.
type FAQStatus string

const (
	FAQDraft     FAQStatus = "draft"
	FAQPending   FAQStatus = "pending"
	FAQApproved  FAQStatus = "approved"
	FAQPublished FAQStatus = "published"
	FAQRejected  FAQStatus = "rejected"
)

// DocumentCompleted marks a session document whose text extraction finished.
const DocumentCompleted = "completed"

// Article is a knowledge-base article.
type Article struct {
	ID              string        `json:"id" yaml:"id"`
	Title           string        `json:"title" yaml:"title"`
	Content         string        `json:"content" yaml:"content"`
	Summary         string        `json:"summary,omitempty" yaml:"summary"`
	Tags            []string      `json:"tags,omitempty" yaml:"tags"`
	Category        string        `json:"category,omitempty" yaml:"category"`
	Author          string        `json:"author,omitempty" yaml:"author"`
	URL             string        `json:"url,omitempty" yaml:"url"`
	Status          ArticleStatus `json:"status" yaml:"status"`
	ViewCount       int           `json:"view_count" yaml:"view_count"`
	HelpfulCount    int           `json:"helpful_count" yaml:"helpful_count"`
	NotHelpfulCount int           `json:"not_helpful_count" yaml:"not_helpful_count"`
	// SearchScore is an editorial 0..100 quality score.
	SearchScore float64   `json:"search_score" yaml:"search_score"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// Validate checks the article can be stored.
func (a *Article) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("article id is required")
	}
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("article %s: title is required", a.ID)
	}
	switch a.Status {
	case ArticleDraft, ArticlePublished, ArticleArchived:
	default:
		return fmt.Errorf("article %s: invalid status %q", a.ID, a.Status)
	}
	if a.SearchScore < 0 || a.SearchScore > 100 {
		return fmt.Errorf("article %s: search_score must be between 0 and 100", a.ID)
	}
	return nil
}

// FAQ is a question/answer pair learned from past conversations.
type FAQ struct {
	ID       string    `json:"id" yaml:"id"`
	Question string    `json:"question" yaml:"question"`
	Answer   string    `json:"answer" yaml:"answer"`
	Keywords []string  `json:"keywords,omitempty" yaml:"keywords"`
	Category string    `json:"category,omitempty" yaml:"category"`
	Status   FAQStatus `json:"status" yaml:"status"`
	// Confidence is 0..100.
	Confidence      float64   `json:"confidence" yaml:"confidence"`
	UsageCount      int       `json:"usage_count" yaml:"usage_count"`
	HelpfulCount    int       `json:"helpful_count" yaml:"helpful_count"`
	NotHelpfulCount int       `json:"not_helpful_count" yaml:"not_helpful_count"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"updated_at"`
}

// Validate checks the FAQ can be stored.
func (f *FAQ) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("faq id is required")
	}
	if strings.TrimSpace(f.Question) == "" {
		return fmt.Errorf("faq %s: question is required", f.ID)
	}
	switch f.Status {
	case FAQDraft, FAQPending, FAQApproved, FAQPublished, FAQRejected:
	default:
		return fmt.Errorf("faq %s: invalid status %q", f.ID, f.Status)
	}
	if f.Confidence < 0 || f.Confidence > 100 {
		return fmt.Errorf("faq %s: confidence must be between 0 and 100", f.ID)
	}
	return nil
}

// SessionDocument is a file uploaded into a chat session.
type SessionDocument struct {
	ID        string `json:"id" yaml:"id"`
	SessionID string `json:"session_id" yaml:"session_id"`
	Filename  string `json:"filename" yaml:"filename"`
	FileType  string `json:"file_type" yaml:"file_type"`
	FileSize  int64  `json:"file_size" yaml:"file_size"`
	Status    string `json:"status" yaml:"status"`
	// ExtractedText is nil until extraction has run.
	ExtractedText *string   `json:"extracted_text,omitempty" yaml:"extracted_text"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
}

// Validate checks the document can be stored.
func (d *SessionDocument) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if d.SessionID == "" {
		return fmt.Errorf("document %s: session_id is required", d.ID)
	}
	if d.Filename == "" {
		return fmt.Errorf("document %s: filename is required", d.ID)
	}
	return nil
}

// ContextRecord is the audit row written for each source handed to the
// assistant.
type ContextRecord struct {
	ID             string            `json:"id"`
	SessionID      string            `json:"session_id"`
	SourceType     string            `json:"source_type"`
	SourceID       string            `json:"source_id"`
	Content        string            `json:"content"`
	RelevanceScore float64           `json:"relevance_score"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// SearchLog records one executed (uncached) search.
type SearchLog struct {
	ID               string    `json:"id"`
	Query            string    `json:"query"`
	Total            int       `json:"total"`
	ProcessingTimeMs float64   `json:"processing_time_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// Corpus is the import bundle format.
type Corpus struct {
	Articles  []Article         `json:"articles" yaml:"articles"`
	FAQs      []FAQ             `json:"faqs" yaml:"faqs"`
	Documents []SessionDocument `json:"documents" yaml:"documents"`
}

// HelpfulRatio returns helpful/(helpful+notHelpful), or def when no feedback exists.
func HelpfulRatio(helpful, notHelpful int, def float64) float64 {
	total := helpful + notHelpful
	if total <= 0 {
		return def
	}
	return float64(helpful) / float64(total)
}
