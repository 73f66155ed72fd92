package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher_EncodesEvent(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(), Event{
		Type:       BookingAssigned,
		BookingID:  "B001",
		CustomerID: "C001",
		DriverID:   "D002",
		Status:     "Assigned",
		OccurredAt: at,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "B001", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "booking.assigned", string(msg.Headers[0].Value))

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, BookingAssigned, got.Type)
	assert.Equal(t, "D002", string(got.DriverID))
}

func TestKafkaPublisher_WrapsWriteError(t *testing.T) {
	cause := errors.New("broker down")
	p := &KafkaPublisher{writer: &fakeWriter{err: cause}}

	err := p.Publish(context.Background(), Event{Type: BookingCreated, BookingID: "B001"})
	assert.ErrorIs(t, err, cause)
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	_ = r.Publish(context.Background(), Event{Type: BookingCreated})
	_ = r.Publish(context.Background(), Event{Type: BookingCancelled})
	assert.Equal(t, []Type{BookingCreated, BookingCancelled}, r.Types())
}
