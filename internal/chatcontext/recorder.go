package chatcontext

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ricesearch/support-context/internal/bus"
	"github.com/ricesearch/support-context/internal/pkg/logger"
	"github.com/ricesearch/support-context/internal/store"
)

// Recorder writes the audit trail of a built context and announces it on
// the bus. Both happen in the background and failures are only logged.
type Recorder struct {
	records store.ContextRepository
	bus     bus.Bus
	timeout time.Duration
	log     *logger.Logger
	wg      sync.WaitGroup
}

// NewRecorder creates a recorder. records and b may be nil.
func NewRecorder(records store.ContextRepository, b bus.Bus, timeout time.Duration, log *logger.Logger) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Recorder{
		records: records,
		bus:     b,
		timeout: timeout,
		log:     log.WithComponent("context_recorder"),
	}
}

// Record persists result's sources for sessionID and publishes a
// context.built event without blocking the caller.
func (r *Recorder) Record(ctx context.Context, sessionID string, result *Result) {
	if r == nil || (r.records == nil && r.bus == nil) {
		return
	}

	rows := make([]store.ContextRecord, 0, len(result.Sources))
	byType := make(map[string]int)
	now := time.Now().UTC()
	for _, src := range result.Sources {
		row := record(sessionID, src)
		row.ID = uuid.New().String()
		row.CreatedAt = now
		rows = append(rows, row)
		byType[string(src.Type)]++
	}

	payload := bus.ContextBuilt{
		Query:               result.SearchQuery,
		SessionID:           sessionID,
		SourceCount:         len(result.Sources),
		SourcesByType:       byType,
		TotalRelevanceScore: result.TotalRelevanceScore,
		ProcessingTimeMs:    result.ProcessingTime,
	}
	log := r.log.WithContext(ctx).WithSession(sessionID)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		if r.records != nil && sessionID != "" && len(rows) > 0 {
			if err := r.records.SaveContextRecords(rctx, rows); err != nil {
				log.WithError(err).Warn("Failed to save context records", "count", len(rows))
			}
		}
		if r.bus != nil {
			event := bus.NewEvent(bus.TopicContextBuilt, "chatcontext", payload)
			if err := r.bus.Publish(rctx, bus.TopicContextBuilt, event); err != nil {
				log.WithError(err).Warn("Failed to publish context event")
			}
		}
	}()
}

// Wait blocks until pending writes finish.
func (r *Recorder) Wait() {
	if r != nil {
		r.wg.Wait()
	}
}
