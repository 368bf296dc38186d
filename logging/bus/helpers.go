package bus

import (
	"context"

	"neocore/logging"
)

// EventConsumerViolation is emitted when a second consumer touches a command bus.
const EventConsumerViolation logging.EventType = "bus.consumer_violation"

// ConsumerViolationPayload names both consumer identities.
type ConsumerViolationPayload struct {
	Owner     string `json:"owner"`
	Intruder  string `json:"intruder"`
	Operation string `json:"operation"`
	Total     uint64 `json:"total"`
}

// ConsumerViolation publishes a single-consumer violation that was tolerated.
func ConsumerViolation(ctx context.Context, pub logging.Publisher, payload ConsumerViolationPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventConsumerViolation,
		Source:   logging.Module(payload.Intruder),
		Severity: logging.SeverityError,
		Category: logging.CategoryBus,
		Payload:  payload,
	})
}
