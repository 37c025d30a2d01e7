package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
	// MaxAttempts defaults to 3.
	MaxAttempts int
	// WriteTimeout defaults to 10s.
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier writes events keyed by content item id so one item's
// events land on one partition in order.
type KafkaNotifier struct {
	writer         messageWriter
	maxAttempts    int
	attemptTimeout time.Duration
	backoff        time.Duration
}

func NewKafkaNotifier(cfg KafkaConfig) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false,
	})
	return newKafkaNotifier(w, cfg.MaxAttempts), nil
}

func newKafkaNotifier(w messageWriter, maxAttempts int) *KafkaNotifier {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &KafkaNotifier{
		writer:         w,
		maxAttempts:    maxAttempts,
		attemptTimeout: 5 * time.Second,
		backoff:        100 * time.Millisecond,
	}
}

func (n *KafkaNotifier) Notify(ctx context.Context, evs ...Event) error {
	if len(evs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(evs))
	for _, ev := range evs {
		if ev.ID == uuid.Nil {
			ev.ID = uuid.New()
		}
		if ev.At.IsZero() {
			ev.At = time.Now().UTC()
		}
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.Type, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(ev.ContentItemID.String()),
			Value:   value,
			Time:    ev.At,
			Headers: []kafka.Header{{Key: "event-type", Value: []byte(ev.Type)}},
		})
	}

	var lastErr error
	backoff := n.backoff
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, n.attemptTimeout)
		err := n.writer.WriteMessages(attemptCtx, msgs...)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == n.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("produce events: %w", ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("produce failed after %d attempts: %w", n.maxAttempts, lastErr)
}

func (n *KafkaNotifier) Close() error {
	if n == nil || n.writer == nil {
		return nil
	}
	return n.writer.Close()
}
