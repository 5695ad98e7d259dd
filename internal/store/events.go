package store

import (
	"context"
	"fmt"
)

// OutgoingEvent is one published script event.
type OutgoingEvent struct {
	ID         string // message id
	Seq        int64  // logical clock
	EventID    string
	Value      int32
	SenderType string
	SenderID   string
	Timestamp  int64  // unix milliseconds, informational only
	Payload    string // the published JSON
}

// AppendOutgoing records an outgoing event.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) AppendOutgoing(ctx context.Context, ev OutgoingEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outgoing_events
		(id, seq, event_id, value, sender_type, sender_id, timestamp, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		ev.ID,
		ev.Seq,
		ev.EventID,
		ev.Value,
		ev.SenderType,
		ev.SenderID,
		ev.Timestamp,
		ev.Payload,
	)
	if err != nil {
		return fmt.Errorf("append outgoing event: %w", err)
	}
	return nil
}

// ReadOutgoing returns recorded events ordered by seq ASC, id ASC COLLATE BINARY.
// An empty eventID matches every event. A limit of 0 or less means no limit.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ReadOutgoing(ctx context.Context, eventID string, limit int) ([]OutgoingEvent, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, event_id, value, sender_type, sender_id, timestamp, payload
		FROM outgoing_events
		WHERE ? = '' OR event_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
		LIMIT ?
	`, eventID, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("query outgoing events: %w", err)
	}
	defer rows.Close()

	events := []OutgoingEvent{}
	for rows.Next() {
		var ev OutgoingEvent
		if err := rows.Scan(
			&ev.ID,
			&ev.Seq,
			&ev.EventID,
			&ev.Value,
			&ev.SenderType,
			&ev.SenderID,
			&ev.Timestamp,
			&ev.Payload,
		); err != nil {
			return nil, fmt.Errorf("scan outgoing event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outgoing events: %w", err)
	}
	return events, nil
}

// LastOutgoingSeq returns the highest recorded seq, or 0 for an empty history.
// Used to resume the logical clock after a restart.
func (s *Store) LastOutgoingSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM outgoing_events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq, nil
}

// CountOutgoing returns the number of recorded events.
func (s *Store) CountOutgoing(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outgoing_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outgoing events: %w", err)
	}
	return n, nil
}
