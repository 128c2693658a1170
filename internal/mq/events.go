package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// EventsChannel is the single channel all domain events are published on.
const EventsChannel = "jobboard-events"

// Event types.
const (
	EventRegistrationPending = "registration.pending"
	EventAccountVerified     = "account.verified"
	EventJobPosted           = "job.posted"
)

const attrEventType = "event_type"

// Event is the envelope written to EventsChannel.
type Event struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher emits domain events. A Publisher over a nil MQ drops everything.
// Publish failures are logged, not returned.
type Publisher struct {
	mq     *MQ
	logger *zap.Logger
	now    func() time.Time
}

// NewPublisher returns a Publisher writing to m (which may be nil).
func NewPublisher(m *MQ, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{mq: m, logger: logger, now: time.Now}
}

// Enabled reports whether events are actually delivered somewhere.
func (p *Publisher) Enabled() bool {
	return p != nil && p.mq != nil
}

// Publish encodes payload into an Event of the given type and sends it.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload any) {
	if !p.Enabled() {
		return
	}
	data, err := EncodeEvent(eventType, p.now(), payload)
	if err != nil {
		p.logger.Error("encode event", zap.String("type", eventType), zap.Error(err))
		return
	}
	id, err := p.mq.Publish(ctx, EventsChannel, data, map[string]string{attrEventType: eventType})
	if err != nil {
		p.logger.Warn("publish event", zap.String("type", eventType), zap.Error(err))
		return
	}
	p.logger.Debug("event published", zap.String("type", eventType), zap.String("id", id))
}

// Close closes the underlying MQ, if any.
func (p *Publisher) Close() error {
	if !p.Enabled() {
		return nil
	}
	return p.mq.Close()
}

// EncodeEvent builds the wire form of an event.
func EncodeEvent(eventType string, at time.Time, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Type: eventType, OccurredAt: at.UTC(), Payload: raw})
}

// DecodeEvent parses a message received from EventsChannel.
func DecodeEvent(msg Message) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event %s: %w", msg.ID, err)
	}
	if ev.Type == "" {
		ev.Type = msg.EventType()
	}
	return ev, nil
}
