package handlers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

var ErrAsyncPublishDisabled = errors.New("async publish is disabled")

// JetStreamPublisher is the slice of the JetStream context the async write
// path uses. nats.JetStreamContext satisfies it.
type JetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// EventPublisher pushes progress reports onto JetStream for the worker to
// apply, decoupling the playback heartbeat from the store write.
type EventPublisher struct {
	js          JetStreamPublisher
	asyncWrites bool
}

// NewEventPublisher creates a publisher. asyncWrites comes from the service
// config (PROGRESS_ASYNC_WRITES); with js=nil the publisher reports disabled
// and writes apply synchronously.
func NewEventPublisher(js JetStreamPublisher, asyncWrites bool) *EventPublisher {
	return &EventPublisher{js: js, asyncWrites: asyncWrites}
}

func (p *EventPublisher) Enabled() bool {
	return p != nil && p.js != nil && p.asyncWrites
}

func (p *EventPublisher) PublishJSON(subject string, payload map[string]any) (string, error) {
	if !p.Enabled() {
		return "", ErrAsyncPublishDisabled
	}

	eventID := uuid.NewString()
	payload["event_id"] = eventID
	if _, ok := payload["created_at"]; !ok {
		payload["created_at"] = time.Now().UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	if _, err := p.js.Publish(subject, body); err != nil {
		return "", err
	}
	return eventID, nil
}
