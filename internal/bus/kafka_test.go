package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/ricesearch/support-context/internal/pkg/logger"
)

func TestKafkaConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     KafkaConfig
		wantErr bool
	}{
		{"empty brokers", KafkaConfig{ConsumerGroup: "g"}, true},
		{"empty consumer group", KafkaConfig{Brokers: []string{"localhost:9092"}}, true},
		{"invalid version", KafkaConfig{Brokers: []string{"localhost:9092"}, ConsumerGroup: "g", Version: "invalid"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewKafkaBus(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewKafkaBus() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKafkaConfig_Defaults(t *testing.T) {
	cfg := KafkaConfig{Brokers: []string{"localhost:9092"}, ConsumerGroup: "g"}
	if err := cfg.applyDefaults(); err != nil {
		t.Fatalf("applyDefaults() error = %v", err)
	}
	if cfg.ClientID != "support-context" || cfg.Version != "2.8.0" {
		t.Errorf("defaults = %+v", cfg)
	}

	sc, err := cfg.saramaConfig()
	if err != nil {
		t.Fatalf("saramaConfig() error = %v", err)
	}
	if !sc.Producer.Return.Successes {
		t.Error("sync producer requires Return.Successes")
	}
}

func TestParseKafkaBrokers(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"localhost:9092", []string{"localhost:9092"}},
		{"b1:9092,b2:9092", []string{"b1:9092", "b2:9092"}},
		{" b1:9092 , , b2:9092 ", []string{"b1:9092", "b2:9092"}},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseKafkaBrokers(tt.input)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("ParseKafkaBrokers(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func mockProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	return cfg
}

func TestKafkaBus_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mockProducerConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev Event
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.Type != TopicSearchPerformed {
			return fmt.Errorf("type = %s", ev.Type)
		}
		return nil
	})

	b := &KafkaBus{
		config:   KafkaConfig{TopicPrefix: "support."},
		producer: producer,
		handlers: make(map[string][]Handler),
		log:      logger.Discard(),
	}

	ev := NewEvent(TopicSearchPerformed, "search", SearchPerformed{Query: "reset", Total: 3})
	if err := b.Publish(context.Background(), TopicSearchPerformed, ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := producer.Close(); err != nil {
		t.Errorf("unmet producer expectations: %v", err)
	}
}

func TestKafkaBus_PublishFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mockProducerConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	b := &KafkaBus{producer: producer, handlers: make(map[string][]Handler), log: logger.Discard()}
	if err := b.Publish(context.Background(), TopicContextBuilt, Event{ID: "x"}); err == nil {
		t.Error("expected publish error")
	}
	producer.Close()
}

func TestEncodeMessage(t *testing.T) {
	msg, err := encodeMessage("support.context.built", Event{ID: "ev-1", Type: TopicContextBuilt})
	if err != nil {
		t.Fatalf("encodeMessage() error = %v", err)
	}
	if msg.Topic != "support.context.built" {
		t.Errorf("topic = %s", msg.Topic)
	}
	if key, _ := msg.Key.Encode(); string(key) != "ev-1" {
		t.Errorf("key = %s, want ev-1", key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != TopicContextBuilt {
		t.Errorf("headers = %+v", msg.Headers)
	}
}

func TestConsumerGroupHandler_Dispatch(t *testing.T) {
	b := &KafkaBus{handlers: make(map[string][]Handler), log: logger.Discard()}

	var calls atomic.Int32
	b.handlers[TopicContextBuilt] = []Handler{
		func(ctx context.Context, ev Event) error {
			p, err := DecodePayload[ContextBuilt](ev)
			if err != nil {
				return err
			}
			if p.SourceCount == 2 {
				calls.Add(1)
			}
			return nil
		},
		func(ctx context.Context, ev Event) error {
			calls.Add(1)
			return fmt.Errorf("failing handler does not stop the next")
		},
	}

	data, _ := json.Marshal(NewEvent(TopicContextBuilt, "context", ContextBuilt{SourceCount: 2}))
	h := &consumerGroupHandler{bus: b, topic: TopicContextBuilt}

	h.dispatch(context.Background(), &sarama.ConsumerMessage{Value: data})
	h.dispatch(context.Background(), &sarama.ConsumerMessage{Value: []byte("garbage")})

	if calls.Load() != 2 {
		t.Errorf("handler calls = %d, want 2", calls.Load())
	}
}

func TestKafkaBus_ClosedRejects(t *testing.T) {
	b := &KafkaBus{handlers: make(map[string][]Handler), closed: true, log: logger.Discard()}

	if err := b.Publish(context.Background(), "t", Event{}); err == nil {
		t.Error("Publish() after close should fail")
	}
	if err := b.Subscribe(context.Background(), "t", func(context.Context, Event) error { return nil }); err == nil {
		t.Error("Subscribe() after close should fail")
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close() on closed bus error = %v", err)
	}
}

var _ Bus = (*KafkaBus)(nil)
