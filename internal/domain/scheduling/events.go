package scheduling

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ehr/apptsched/internal/platform/websocket"
)

const (
	EventProviderRegistered   = "provider.registered"
	EventAvailabilityRevised  = "provider.availability_revised"
	EventAppointmentScheduled = "appointment.scheduled"
	EventAppointmentCancelled = "appointment.cancelled"
)

// EventPublisher receives scheduling events. *websocket.Hub implements it.
type EventPublisher interface {
	Publish(ctx context.Context, event websocket.Event) error
}

// ProviderTopic is the topic carrying every event about one provider.
func ProviderTopic(providerID string) string {
	return "provider/" + providerID
}

// SetPublisher makes the service emit events after each state change.
func (s *Service) SetPublisher(p EventPublisher) {
	s.events = p
}

func (s *Service) publish(ctx context.Context, eventType, providerID, requestID string, data interface{}) {
	if s.events == nil {
		return
	}
	ev := websocket.Event{
		Type:       eventType,
		Topic:      ProviderTopic(providerID),
		ProviderID: providerID,
		RequestID:  requestID,
		Timestamp:  time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to encode event payload")
			return
		}
		ev.Data = raw
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Str("provider_id", providerID).Msg("failed to publish event")
	}
}

type slotPayload struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type revisedPayload struct {
	Availability      []slotPayload `json:"availability"`
	RemainingCapacity int           `json:"remaining_capacity"`
	Cancelled         []string      `json:"cancelled"`
}

func slotsPayload(cal Calendar) []slotPayload {
	out := make([]slotPayload, 0, len(cal))
	for _, s := range cal {
		out = append(out, slotPayload{Start: FormatClock(s.Start), End: FormatClock(s.End)})
	}
	return out
}
