package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/footy-fa-bot/internal/clock"
	"github.com/jensholdgaard/footy-fa-bot/internal/event"
)

// EventStore implements event.Store with sqlx.
type EventStore struct {
	db  sqlx.ExtContext
	clk clock.Clock
}

// eventRow scans the payload as bytes; sqlite returns JSON text as a string.
type eventRow struct {
	ID          string     `db:"id"`
	AggregateID string     `db:"aggregate_id"`
	Type        event.Type `db:"type"`
	Actor       string     `db:"actor"`
	Data        []byte     `db:"data"`
	CreatedAt   time.Time  `db:"created_at"`
}

const eventColumns = `id, aggregate_id, type, actor, data, created_at`

func (s *EventStore) Append(ctx context.Context, events ...event.Event) error {
	q := s.db.Rebind(`INSERT INTO audit_events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	now := s.clk.Now()
	for _, e := range events {
		if _, err := s.db.ExecContext(ctx, q, newID(), e.AggregateID, e.Type, e.Actor, string(e.Data), now); err != nil {
			return fmt.Errorf("inserting event (aggregate=%s, type=%s): %w", e.AggregateID, e.Type, err)
		}
	}
	return nil
}

func (s *EventStore) Load(ctx context.Context, periodID string) ([]event.Event, error) {
	var rows []eventRow
	err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(
		`SELECT `+eventColumns+` FROM audit_events WHERE aggregate_id = ? ORDER BY seq`), periodID)
	if err != nil {
		return nil, fmt.Errorf("loading events for %s: %w", periodID, err)
	}
	events := make([]event.Event, len(rows))
	for i, row := range rows {
		events[i] = event.Event{
			ID:          row.ID,
			AggregateID: row.AggregateID,
			Type:        row.Type,
			Actor:       row.Actor,
			Data:        json.RawMessage(row.Data),
			CreatedAt:   row.CreatedAt,
		}
	}
	return events, nil
}
