package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	failures int
	calls    int
	written  []kafka.Message
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("leader not available")
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaNotifierWritesKeyedMessages(t *testing.T) {
	w := &fakeWriter{}
	n := newKafkaNotifier(w, 3)
	itemID := uuid.New()

	err := n.Notify(context.Background(),
		Event{Type: TypeContractPublished, ContentItemID: itemID, Status: "published"},
		Event{Type: TypeContentItemStatus, ContentItemID: itemID, Status: "published"},
	)
	require.NoError(t, err)
	require.Len(t, w.written, 2)

	msg := w.written[0]
	assert.Equal(t, itemID.String(), string(msg.Key))
	assert.Equal(t, "event-type", msg.Headers[0].Key)
	assert.Equal(t, TypeContractPublished, string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.NotEqual(t, uuid.Nil, decoded.ID)
	assert.False(t, decoded.At.IsZero())
	assert.Equal(t, "published", decoded.Status)

	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}

func TestKafkaNotifierRetries(t *testing.T) {
	w := &fakeWriter{failures: 2}
	n := newKafkaNotifier(w, 3)
	n.backoff = time.Millisecond

	require.NoError(t, n.Notify(context.Background(), Event{Type: TypeContractFailed}))
	assert.Equal(t, 3, w.calls)
	assert.Len(t, w.written, 1)
}

func TestKafkaNotifierGivesUp(t *testing.T) {
	w := &fakeWriter{failures: 10}
	n := newKafkaNotifier(w, 2)
	n.backoff = time.Millisecond

	err := n.Notify(context.Background(), Event{Type: TypeContractFailed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, 2, w.calls)
}

func TestNewKafkaNotifierValidates(t *testing.T) {
	_, err := NewKafkaNotifier(KafkaConfig{Topic: "t"})
	assert.Error(t, err)
	_, err = NewKafkaNotifier(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}
