package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-plt-approvals/internal/repository"
	"github.com/pesio-ai/be-plt-approvals/internal/service"
)

// Publisher is the subset of *nats.Conn used here.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NotificationPublisher publishes approval workflow events to NATS for the
// notifications service.
//
// Subject convention: <prefix>.<event_type>
// Event types: approval_required, workflow_approved, workflow_rejected and
// workflow_cancelled.
//
// All publish operations are non-fatal; errors are logged and never
// propagated to the caller.
type NotificationPublisher struct {
	conn   Publisher
	prefix string
	log    zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string                 `json:"event_type"`
	ActorID      string                 `json:"actor_id"`
	Recipients   []string               `json:"recipients"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	IsActionable bool                   `json:"is_actionable,omitempty"`
	Severity     string                 `json:"severity,omitempty"`
	Category     string                 `json:"category,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by conn. A nil conn
// turns every publish into a no-op.
func NewNotificationPublisher(conn Publisher, prefix string, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{conn: conn, prefix: prefix, log: log}
}

// PublishWorkflowEvent publishes one workflow event.
func (p *NotificationPublisher) PublishWorkflowEvent(
	ctx context.Context,
	eventType string,
	wf *repository.ApprovalWorkflow,
	actorID string,
	recipients []string,
) {
	if p.conn == nil {
		return
	}
	if len(recipients) == 0 {
		return
	}

	severity := "info"
	if eventType == service.EventWorkflowRejected {
		severity = "warning"
	}

	event := &NotificationEvent{
		EventType:    eventType,
		ActorID:      actorID,
		Recipients:   recipients,
		ResourceType: string(wf.DocumentType),
		ResourceID:   wf.DocumentID,
		IsActionable: eventType == service.EventApprovalRequired,
		Severity:     severity,
		Category:     "procurement_approval",
		Payload: map[string]interface{}{
			"workflow_id":  wf.ID,
			"status":       wf.Status,
			"current_step": wf.CurrentStep,
			"total_amount": wf.TotalAmount,
			"currency":     wf.Currency,
			"priority":     wf.Priority,
		},
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("workflow_id", wf.ID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("workflow_id", wf.ID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}

var _ service.Notifier = (*NotificationPublisher)(nil)
