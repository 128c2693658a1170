package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobboard/apiserver/config"
)

type fakeBackend struct {
	published []Message
	channels  []string
	err       error
	closed    bool
}

func (f *fakeBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.channels = append(f.channels, channel)
	f.published = append(f.published, Message{ID: "m1", Data: data, Attributes: attrs})
	return "m1", nil
}

func (f *fakeBackend) Subscribe(context.Context, string, Handler) error { return nil }

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_PublishesEnvelope(t *testing.T) {
	backend := &fakeBackend{}
	p := NewPublisher(New(backend), nil)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return at }

	p.Publish(context.Background(), EventJobPosted, map[string]string{"id": "42"})

	require.Len(t, backend.published, 1)
	assert.Equal(t, []string{EventsChannel}, backend.channels)
	assert.Equal(t, EventJobPosted, backend.published[0].Attributes["event_type"])

	ev, err := DecodeEvent(backend.published[0])
	require.NoError(t, err)
	assert.Equal(t, EventJobPosted, ev.Type)
	assert.True(t, ev.OccurredAt.Equal(at))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, "42", payload["id"])

	require.NoError(t, p.Close())
	assert.True(t, backend.closed)
}

func TestPublisher_NilMQIsNoop(t *testing.T) {
	p := NewPublisher(nil, nil)
	assert.False(t, p.Enabled())
	p.Publish(context.Background(), EventAccountVerified, struct{}{})
	assert.NoError(t, p.Close())

	var nilPublisher *Publisher
	assert.False(t, nilPublisher.Enabled())
	nilPublisher.Publish(context.Background(), EventAccountVerified, struct{}{})
}

func TestPublisher_BackendErrorIsSwallowed(t *testing.T) {
	backend := &fakeBackend{err: errors.New("broker down")}
	p := NewPublisher(New(backend), nil)
	p.Publish(context.Background(), EventRegistrationPending, map[string]string{"email": "a@b.co"})
	assert.Empty(t, backend.published)
}

func TestDecodeEvent_FallsBackToAttribute(t *testing.T) {
	ev, err := DecodeEvent(Message{Data: []byte(`{"payload":{}}`), Attributes: map[string]string{"event_type": EventJobPosted}})
	require.NoError(t, err)
	assert.Equal(t, EventJobPosted, ev.Type)

	_, err = DecodeEvent(Message{ID: "x", Data: []byte("nope")})
	assert.ErrorContains(t, err, "decode event x")
}

func TestOpen(t *testing.T) {
	m, err := Open(context.Background(), config.MQConfig{})
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = Open(context.Background(), config.MQConfig{Backend: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unknown mq backend")

	_, err = Open(context.Background(), config.MQConfig{Backend: "kafka"})
	assert.ErrorContains(t, err, "kafka brokers are required")

	m, err = Open(context.Background(), config.MQConfig{Backend: "kafka", Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}}})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.NoError(t, m.Close())
}

func TestRoutingKey(t *testing.T) {
	require.Equal(t, EventJobPosted, routingKey(map[string]string{attrEventType: EventJobPosted}))
	require.Equal(t, "event", routingKey(nil))
}
