package outbox

import "encoding/json"

// TopicNotificationRequested carries every push the workflow asks for. The
// Kafka topic name equals the event type.
const TopicNotificationRequested = "workflow.notification.requested.v1"

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// NotificationPayload is the body of a workflow.notification.requested.v1
// event. Recipients are user ids; the notification service resolves their
// device tokens.
type NotificationPayload struct {
	AppointmentID string   `json:"appointment_id"`
	Kind          string   `json:"kind"`
	Recipients    []string `json:"recipients"`
	Title         string   `json:"title"`
	Body          string   `json:"body"`
}

// NotificationRequested builds the outbox event for a workflow push.
func NotificationRequested(p NotificationPayload) (Event, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   p.AppointmentID,
		EventType:     TopicNotificationRequested,
		Payload:       raw,
	}, nil
}
