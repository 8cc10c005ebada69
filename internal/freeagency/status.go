package freeagency

import (
	"context"
	"errors"
	"fmt"

	"github.com/jensholdgaard/footy-fa-bot/internal/event"
	"github.com/jensholdgaard/footy-fa-bot/internal/store"
)

// Report is an admin's view of the current free agency period.
type Report struct {
	Season       int
	SeasonStatus string
	Phase        string
	Period       *store.Period
	Expiring     int
	ActiveBids   int
	Results      int
	AuditEvents  int
	LastEvent    *event.Event
	// Next is the phase the next admin command moves to, "" when done.
	Next string
	// Blocking lists the teams holding up Next.
	Blocking []string
}

// Status reports the phase, its timestamps and counts, and which teams
// still need to confirm before the next transition.
func (m *Manager) Status(ctx context.Context) (*Report, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Status")
	defer span.End()

	season, p, err := m.loadPeriod(ctx, m.repos)
	if err != nil && !errors.Is(err, ErrNoPeriod) {
		return nil, err
	}
	r := &Report{Season: season.Number, SeasonStatus: season.Status, Phase: phaseOf(p), Period: p}
	r.Next = NextPhase(r.Phase)

	expiring, err := m.repos.Players.ListExpiring(ctx, season.Number)
	if err != nil {
		return nil, fmt.Errorf("listing expiring players: %w", err)
	}
	r.Expiring = len(expiring)
	if p == nil {
		return r, nil
	}

	bids, err := m.repos.Bids.ListByPeriod(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("listing bids: %w", err)
	}
	for _, b := range bids {
		if b.Status == store.BidActive {
			r.ActiveBids++
		}
	}
	results, err := m.repos.Results.ListByPeriod(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("loading results: %w", err)
	}
	r.Results = len(results)

	events, err := m.repos.Events.Load(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("loading audit events: %w", err)
	}
	r.AuditEvents = len(events)
	if n := len(events); n > 0 {
		r.LastEvent = &events[n-1]
	}

	teams, err := teamsByID(ctx, m.repos.Teams)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case store.PeriodResign:
		ref, err := LoadReference(ctx, m.repos.Reference)
		if err != nil {
			return nil, err
		}
		if r.Blocking, err = resignBlockers(ctx, m.repos, ref, expiring, p, teams); err != nil {
			return nil, err
		}
	case store.PeriodMatching:
		r.Blocking = matchBlockers(results, teams)
	}
	return r, nil
}
