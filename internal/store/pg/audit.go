package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"civium.org/internal/audit"
)

var _ audit.Sink = (*Store)(nil)

// Append writes one decision event. The table carries no update or delete
// path in this codebase; rows are immutable once inserted.
func (s *Store) Append(ctx context.Context, event *audit.Event) error {
	if event == nil {
		return errors.New("pg: event is required")
	}
	metaJSON := []byte("{}")
	if len(event.Metadata) > 0 {
		data, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		metaJSON = data
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_events
			(id, actor_id, actor_email, actor_role, required, decision, reason, endpoint, method, metadata, occurred_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		event.ID, event.ActorID, event.ActorEmail, event.ActorRole, event.Required,
		string(event.Decision), event.Reason, event.Endpoint, event.Method, metaJSON, event.OccurredAt,
	)
	return err
}

// ListEvents returns the most recent events, newest first. ULID keys make
// id ordering match time ordering.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, actor_id, actor_email, actor_role, required, decision, reason, endpoint, method, metadata, occurred_at
		from audit_events
		order by id desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			decision string
			rawMeta  []byte
			occurred time.Time
		)
		if err := rows.Scan(
			&e.ID, &e.ActorID, &e.ActorEmail, &e.ActorRole, &e.Required,
			&decision, &e.Reason, &e.Endpoint, &e.Method, &rawMeta, &occurred,
		); err != nil {
			return nil, err
		}
		e.Decision = audit.Decision(decision)
		e.OccurredAt = occurred
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
