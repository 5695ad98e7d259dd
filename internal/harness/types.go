package harness

import "github.com/roach88/edgelisp/internal/engine"

// TraceEvent is one broker publication observed during a run.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Trace holds every broker publication in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Stats is the engine snapshot taken after the last step.
	Stats engine.Stats `json:"stats"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a publication to the trace.
func (r *Result) AddTrace(topic string, payload []byte) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:     int64(len(r.Trace) + 1),
		Topic:   topic,
		Payload: string(payload),
	})
}

// Published returns the payloads published on topic, in order.
func (r *Result) Published(topic string) []string {
	var out []string
	for _, ev := range r.Trace {
		if ev.Topic == topic {
			out = append(out, ev.Payload)
		}
	}
	return out
}
