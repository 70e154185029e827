package outbox

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/formationflow/internal/models"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// EventType is the CloudEvents type of a generation marker.
const EventType = "com.formationflow." + TopicGenerationRequested

// GenerationHandler runs document generation for a request.
type GenerationHandler interface {
	HandleGenerationRequested(ctx context.Context, event models.GenerationRequestedEvent) error
}

// HandlerDispatcher delivers generation markers to an in-process handler.
type HandlerDispatcher struct {
	handler GenerationHandler
}

func NewHandlerDispatcher(handler GenerationHandler) *HandlerDispatcher {
	return &HandlerDispatcher{handler: handler}
}

func (d *HandlerDispatcher) Dispatch(ctx context.Context, msg Claimed) error {
	if msg.Topic != TopicGenerationRequested {
		return fmt.Errorf("unsupported outbox topic %q", msg.Topic)
	}
	event, err := DecodeGenerationRequested(msg.Payload)
	if err != nil {
		return err
	}
	return d.handler.HandleGenerationRequested(ctx, event)
}

// CloudEventsDispatcher posts generation markers to the document worker as
// binary-mode CloudEvents. The outbox event id is the CloudEvent id, so a
// redelivery carries the same identity.
type CloudEventsDispatcher struct {
	client cloudevents.Client
	target string
	source string
}

func NewCloudEventsDispatcher(target, source string) (*CloudEventsDispatcher, error) {
	client, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, fmt.Errorf("failed to create CloudEvents client: %w", err)
	}
	return &CloudEventsDispatcher{client: client, target: target, source: source}, nil
}

func (d *CloudEventsDispatcher) Dispatch(ctx context.Context, msg Claimed) error {
	event := NewCloudEvent(msg, d.source)
	result := d.client.Send(cloudevents.ContextWithTarget(ctx, d.target), event)
	if cloudevents.IsUndelivered(result) {
		return models.Upstream("document-worker", fmt.Errorf("event %s undelivered: %w", msg.EventID, result))
	}
	if !cloudevents.IsACK(result) {
		return models.Upstream("document-worker", fmt.Errorf("event %s rejected: %w", msg.EventID, result))
	}
	return nil
}

// NewCloudEvent wraps a claimed marker as a CloudEvent.
func NewCloudEvent(msg Claimed, source string) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(msg.EventID.String())
	event.SetSource(source)
	event.SetType(EventType)
	event.SetSubject(fmt.Sprintf("company-request/%d", msg.RequestID))
	_ = event.SetData(cloudevents.ApplicationJSON, []byte(msg.Payload))
	return event
}
