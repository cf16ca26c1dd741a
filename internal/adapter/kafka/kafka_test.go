package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/covid-analytics-service/internal/config"
	"github.com/couchcryptid/covid-analytics-service/internal/domain"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func strPtr(s string) *string { return &s }

func testEvent() domain.CommentEvent {
	return domain.CommentEvent{
		ID:        "65f1c0ffee0000000000abcd",
		Country:   strPtr("Italy"),
		Text:      strPtr("second wave starting"),
		CreatedAt: time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC),
	}
}

func TestSerializeToMessage(t *testing.T) {
	event := testEvent()

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte(event.ID), msg.Key)
	assert.JSONEq(t, `{
		"id":"65f1c0ffee0000000000abcd",
		"country":"Italy",
		"region":null,
		"date":null,
		"text":"second wave starting",
		"created_at":"2024-04-26T15:10:00Z"
	}`, string(msg.Value))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte(EventCommentCreated), msg.Headers[0].Value)
	assert.Equal(t, "created_at", msg.Headers[1].Key)
	assert.Equal(t, []byte("2024-04-26T15:10:00Z"), msg.Headers[1].Value)
}

func TestPublishComment(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	require.NoError(t, p.PublishComment(context.Background(), testEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "65f1c0ffee0000000000abcd", string(w.msgs[0].Key))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishComment_WriteError(t *testing.T) {
	boom := errors.New("leader not available")
	p := &Publisher{writer: &fakeWriter{err: boom}, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	err := p.PublishComment(context.Background(), testEvent())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "65f1c0ffee0000000000abcd")
}

func TestNewPublisher(t *testing.T) {
	p := NewPublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}, CommentsTopic: "covid-comments"}, slog.Default())
	w, ok := p.writer.(*kafkago.Writer)
	require.True(t, ok)
	assert.Equal(t, "covid-comments", w.Topic)
	assert.Equal(t, kafkago.RequireAll, w.RequiredAcks)
	require.NoError(t, p.Close())
}
