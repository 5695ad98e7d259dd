package engine

import (
	"github.com/roach88/edgelisp/internal/bus"
	"github.com/roach88/edgelisp/internal/payload"
)

// OutgoingPayload encodes an outgoing script event as canonical JSON:
// {"eventID":<id>,"value":<value>}.
func OutgoingPayload(eventID string, value int32) []byte {
	return payload.MustMarshal(payload.NewObject(
		payload.O("eventID", payload.String(eventID)),
		payload.O("value", payload.Int(int64(value))),
	))
}

// PushOutgoingEvent hands an event to the gateway: the payload goes on the
// outgoing-event channel, then NEW_OUTGOING_EVENT is emitted.
//
// Returns false if the channel is full. The event is dropped.
func (e *Engine) PushOutgoingEvent(eventID string, value int32) bool {
	if !e.bus.SendDataToChannel(bus.ChannelOutgoingEvent, OutgoingPayload(eventID, value)) {
		e.stats.outgoingDropped++
		e.logger.Warn("outgoing event dropped", "event_id", eventID)
		return false
	}
	e.stats.outgoing++
	e.bus.EmitEvent(bus.TopicEvents, bus.MsgNewOutgoingEvent)
	return true
}
