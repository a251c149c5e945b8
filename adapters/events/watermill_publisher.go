package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/Danny02/garagen-flohmarkt/ports"
)

// Topics for lifecycle events.
const (
	TopicStandCreated         = "flohmarkt.stand.created"
	TopicStandDeleted         = "flohmarkt.stand.deleted"
	TopicCredentialRegistered = "flohmarkt.credential.registered"
	TopicSessionCreated       = "flohmarkt.session.created"
)

// Event is the payload published on every topic. Subject identifies the
// affected record; session tokens are never published, sessions are
// identified by issue time only.
type Event struct {
	Subject   string    `json:"subject,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) publish(topic, subject string) error {
	payload, err := json.Marshal(Event{Subject: subject, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// PublishStandCreated publishes a stand creation event.
func (p *WatermillPublisher) PublishStandCreated(ctx context.Context, standID string) error {
	return p.publish(TopicStandCreated, standID)
}

// PublishStandDeleted publishes a stand deletion event.
func (p *WatermillPublisher) PublishStandDeleted(ctx context.Context, standID string) error {
	return p.publish(TopicStandDeleted, standID)
}

// PublishCredentialRegistered publishes a credential registration event.
func (p *WatermillPublisher) PublishCredentialRegistered(ctx context.Context, credentialID string) error {
	return p.publish(TopicCredentialRegistered, credentialID)
}

// PublishSessionCreated publishes a session creation event. The token itself
// is secret material and is not included.
func (p *WatermillPublisher) PublishSessionCreated(ctx context.Context, _ string) error {
	return p.publish(TopicSessionCreated, "")
}
