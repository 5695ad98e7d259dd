package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/edgelisp/internal/gateway"
)

// BrokerLine is one broker message as a JSON line.
//
// Payloads that are valid JSON are embedded as-is. Anything else, such as
// script output, is carried as a JSON string.
type BrokerLine struct {
	Topic    string          `json:"topic"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Retained bool            `json:"retained,omitempty"`
}

// newBrokerLine converts a broker message for output.
func newBrokerLine(msg gateway.Message) BrokerLine {
	line := BrokerLine{Topic: msg.Topic, Retained: msg.Retained}
	switch {
	case len(msg.Payload) == 0:
	case json.Valid(msg.Payload):
		line.Payload = json.RawMessage(msg.Payload)
	default:
		quoted, _ := json.Marshal(string(msg.Payload))
		line.Payload = quoted
	}
	return line
}

// payloadBytes returns the bytes to publish. A JSON string payload is
// published unquoted; null or a missing payload publishes nothing.
func (l BrokerLine) payloadBytes() ([]byte, error) {
	raw := bytes.TrimSpace(l.Payload)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return []byte(s), nil
	}
	return raw, nil
}

// lineWriter prints broker messages in the selected format. Safe for
// concurrent use.
type lineWriter struct {
	mu     sync.Mutex
	w      io.Writer
	format string
}

func (lw *lineWriter) Write(msg gateway.Message) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.format == "json" {
		data, err := json.Marshal(newBrokerLine(msg))
		if err != nil {
			return
		}
		fmt.Fprintln(lw.w, string(data))
		return
	}

	marker := ""
	if msg.Retained {
		marker = " (retained)"
	}
	fmt.Fprintf(lw.w, "%s%s %s\n", msg.Topic, marker, msg.Payload)
}

// publishLines reads JSON lines from r and publishes each one on broker.
// Blank lines are skipped; malformed lines are logged and skipped. Returns the
// number of messages published when r is exhausted.
func publishLines(r io.Reader, broker *gateway.Broker, logger *slog.Logger) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	published := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		var line BrokerLine
		if err := json.Unmarshal(text, &line); err != nil {
			logger.Warn("skipping malformed input line", "line", lineNo, "error", err)
			continue
		}
		data, err := line.payloadBytes()
		if err != nil {
			logger.Warn("skipping malformed payload", "line", lineNo, "error", err)
			continue
		}
		if _, err := broker.Publish(line.Topic, data, line.Retained); err != nil {
			logger.Warn("publish failed", "line", lineNo, "topic", line.Topic, "error", err)
			continue
		}
		published++
	}
	if err := scanner.Err(); err != nil {
		return published, fmt.Errorf("read input: %w", err)
	}
	return published, nil
}
