package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fundlio/be-governance/internal/logger"
	"github.com/fundlio/be-governance/internal/natsclient"
)

// NotificationPublisher publishes governance events to NATS JetStream for
// consumption by the platform notifications service.
//
// Subject convention: notifications.governance.<event_type>
// Event types: proposal_created, vote_cast, proposal_executed,
//              milestone_approved, funding_decided, funds_released
//
// All publish operations are non-fatal — errors are logged but never
// propagated to the caller, so notification failures never interrupt
// governance operations.
type NotificationPublisher struct {
	nats *natsclient.Client
	log  *logger.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string                 `json:"event_type"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	ActorID      string                 `json:"actor_id"`
	Severity     string                 `json:"severity,omitempty"`
	Category     string                 `json:"category,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS client.
func NewNotificationPublisher(nats *natsclient.Client, log *logger.Logger) *NotificationPublisher {
	return &NotificationPublisher{nats: nats, log: log}
}

// PublishGovernanceEvent publishes a governance event to NATS.
// Subject: notifications.governance.<eventType>
func (p *NotificationPublisher) PublishGovernanceEvent(ctx context.Context, eventType, resourceType, resourceID, actorID string, payload map[string]interface{}) {
	if p.nats == nil {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		ActorID:      actorID,
		Severity:     "info",
		Category:     "governance",
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.governance.%s", eventType)
	if err := p.nats.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("resource_id", resourceID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("resource_id", resourceID).
		Msg("notification: event published")
}
