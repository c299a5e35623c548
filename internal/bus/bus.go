// Package bus carries analytics events between the retrieval pipeline and
// its observers (metrics, external consumers).
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe registers handler for events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"` // unix millis
	Payload   any    `json:"payload"`
}

// Topics.
const (
	TopicSearchPerformed = "search.performed"
	TopicContextBuilt    = "context.built"
	TopicCorpusReloaded  = "corpus.reloaded"
)

// SearchPerformed is published after an uncached search completes.
type SearchPerformed struct {
	Query            string  `json:"query"`
	Total            int     `json:"total"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
}

// ContextBuilt is published after a context build completes.
type ContextBuilt struct {
	Query               string         `json:"query"`
	SessionID           string         `json:"session_id,omitempty"`
	SourceCount         int            `json:"source_count"`
	SourcesByType       map[string]int `json:"sources_by_type,omitempty"`
	TotalRelevanceScore float64        `json:"total_relevance_score"`
	ProcessingTimeMs    float64        `json:"processing_time_ms"`
}

// CorpusReloaded is published after corpus files are imported.
type CorpusReloaded struct {
	Path      string `json:"path"`
	Articles  int    `json:"articles"`
	FAQs      int    `json:"faqs"`
	Documents int    `json:"documents"`
}

// NewEvent builds an event with a fresh ID and the current time.
func NewEvent(eventType, source string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

// DecodePayload converts an event payload into T. In-process buses deliver
// the original value; Kafka delivers decoded JSON, which is re-marshalled.
func DecodePayload[T any](event Event) (T, error) {
	var out T
	switch p := event.Payload.(type) {
	case T:
		return p, nil
	case *T:
		if p != nil {
			return *p, nil
		}
		return out, fmt.Errorf("nil %T payload", p)
	}

	data, err := json.Marshal(event.Payload)
	if err != nil {
		return out, fmt.Errorf("encoding payload: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decoding payload as %T: %w", out, err)
	}
	return out, nil
}
