package metrics

import (
	"context"

	"github.com/ricesearch/support-context/internal/bus"
	"github.com/ricesearch/support-context/internal/pkg/logger"
)

// EventSubscriber feeds metrics from analytics events on the bus.
type EventSubscriber struct {
	metrics *Metrics
	bus     bus.Bus
	log     *logger.Logger
}

// NewEventSubscriber creates a subscriber.
func NewEventSubscriber(m *Metrics, eventBus bus.Bus, log *logger.Logger) *EventSubscriber {
	if log == nil {
		log = logger.Discard()
	}
	return &EventSubscriber{metrics: m, bus: eventBus, log: log.WithComponent("metrics")}
}

// SubscribeToEvents registers handlers for every analytics topic.
func (es *EventSubscriber) SubscribeToEvents(ctx context.Context) error {
	handlers := map[string]bus.Handler{
		bus.TopicSearchPerformed: es.handleSearchPerformed,
		bus.TopicContextBuilt:    es.handleContextBuilt,
		bus.TopicCorpusReloaded:  es.handleCorpusReloaded,
	}
	for topic, h := range handlers {
		if err := es.bus.Subscribe(ctx, topic, h); err != nil {
			return err
		}
	}
	return nil
}

func (es *EventSubscriber) handleSearchPerformed(ctx context.Context, event bus.Event) error {
	p, err := bus.DecodePayload[bus.SearchPerformed](event)
	if err != nil {
		es.log.WithError(err).Warn("Dropping malformed event", "topic", bus.TopicSearchPerformed)
		return err
	}
	es.metrics.RecordSearch(p.ProcessingTimeMs, p.Total)
	return nil
}

func (es *EventSubscriber) handleContextBuilt(ctx context.Context, event bus.Event) error {
	p, err := bus.DecodePayload[bus.ContextBuilt](event)
	if err != nil {
		es.log.WithError(err).Warn("Dropping malformed event", "topic", bus.TopicContextBuilt)
		return err
	}
	es.metrics.RecordContext(p.ProcessingTimeMs, p.SourcesByType, p.TotalRelevanceScore)
	return nil
}

func (es *EventSubscriber) handleCorpusReloaded(ctx context.Context, event bus.Event) error {
	p, err := bus.DecodePayload[bus.CorpusReloaded](event)
	if err != nil {
		es.log.WithError(err).Warn("Dropping malformed event", "topic", bus.TopicCorpusReloaded)
		return err
	}
	es.metrics.RecordCorpusReload(p.Articles, p.FAQs, p.Documents)
	return nil
}
