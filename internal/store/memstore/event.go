package memstore

import (
	"context"

	"github.com/jensholdgaard/footy-fa-bot/internal/event"
)

type eventStore struct{ db *db }

func (s *eventStore) Append(_ context.Context, events ...event.Event) error {
	st := s.db.lock()
	defer s.db.unlock()
	now := s.db.clk.Now()
	for _, e := range events {
		e.ID = newID()
		e.CreatedAt = now
		st.events = append(st.events, e)
	}
	return nil
}

func (s *eventStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	st := s.db.lock()
	defer s.db.unlock()
	var out []event.Event
	for _, e := range st.events {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}
