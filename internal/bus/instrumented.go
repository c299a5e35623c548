package bus

import (
	"context"
	"time"
)

// PublishRecorder receives publish outcomes. Implemented by the metrics
// package; declared here to avoid an import cycle.
type PublishRecorder interface {
	RecordBusPublish(topic string, latency time.Duration, err error)
}

// InstrumentedBus records the latency and outcome of every publish.
type InstrumentedBus struct {
	inner    Bus
	recorder PublishRecorder
}

// NewInstrumentedBus wraps inner.
func NewInstrumentedBus(inner Bus, recorder PublishRecorder) *InstrumentedBus {
	return &InstrumentedBus{inner: inner, recorder: recorder}
}

// Publish forwards to the wrapped bus and records the result.
func (b *InstrumentedBus) Publish(ctx context.Context, topic string, event Event) error {
	start := time.Now()
	err := b.inner.Publish(ctx, topic, event)
	if b.recorder != nil {
		b.recorder.RecordBusPublish(topic, time.Since(start), err)
	}
	return err
}

// Subscribe forwards to the wrapped bus.
func (b *InstrumentedBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return b.inner.Subscribe(ctx, topic, handler)
}

// Close closes the wrapped bus.
func (b *InstrumentedBus) Close() error {
	return b.inner.Close()
}
