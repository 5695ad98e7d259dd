// Package gateway connects the script runtime to the device message broker.
//
// The Broker is an in-process stand-in for an MQTT broker: topics are
// slash-separated, filters accept the + (one level) and # (remaining levels)
// wildcards, and a retained message is replayed to every new matching
// subscription.
//
// The Gateway routes between the broker and the runtime's bus:
//
//	devices/<id>/script        → engine (SubmitScript)
//	events/#                   → incoming-event channel + NEW_INCOMING_EVENT
//	outgoing-event channel     → events/<eventID> (retained) + history
//	stdout, log, error         → devices/<id>/stdout, log, error
//
// A REFRESH_EVENTS_REQUEST from the runtime re-subscribes to events/# so the
// retained event messages are delivered again.
package gateway
