package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jensholdgaard/footy-fa-bot/internal/store"
)

type periodRepo struct{ db *db }

func (r *periodRepo) Create(_ context.Context, p *store.Period) error {
	st := r.db.lock()
	defer r.db.unlock()
	for _, other := range st.periods {
		if other.SeasonNumber == p.SeasonNumber {
			return fmt.Errorf("creating period for season %d: %w", p.SeasonNumber, store.ErrConflict)
		}
	}
	if p.ID == "" {
		p.ID = newID()
	}
	p.CreatedAt = r.db.clk.Now()
	st.periods[p.ID] = *p
	return nil
}

func (r *periodRepo) GetBySeason(_ context.Context, season int) (*store.Period, error) {
	st := r.db.lock()
	defer r.db.unlock()
	for _, p := range st.periods {
		if p.SeasonNumber == season {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("getting period for season %d: %w", season, store.ErrNotFound)
}

// Lock only checks existence; writers are already serialised by Tx.
func (r *periodRepo) Lock(_ context.Context, id string) error {
	st := r.db.lock()
	defer r.db.unlock()
	if _, ok := st.periods[id]; !ok {
		return fmt.Errorf("locking period %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (r *periodRepo) Advance(_ context.Context, id, from, to string, at time.Time) error {
	st := r.db.lock()
	defer r.db.unlock()
	p, ok := st.periods[id]
	if !ok || p.Status != from {
		return fmt.Errorf("advancing period %s from %s to %s: %w", id, from, to, store.ErrConflict)
	}
	p.Status = to
	switch to {
	case store.PeriodBidding:
		p.BiddingStartedAt = &at
	case store.PeriodMatching:
		p.MatchingStartedAt = &at
	case store.PeriodCompleted:
		p.CompletedAt = &at
	}
	st.periods[id] = p
	return nil
}

type reSignRepo struct{ db *db }

func (r *reSignRepo) ListByPeriod(_ context.Context, periodID string) ([]store.ReSign, error) {
	st := r.db.lock()
	defer r.db.unlock()
	return filterReSigns(st, func(rs store.ReSign) bool { return rs.PeriodID == periodID }), nil
}

func (r *reSignRepo) ListByTeam(_ context.Context, periodID, teamID string) ([]store.ReSign, error) {
	st := r.db.lock()
	defer r.db.unlock()
	return filterReSigns(st, func(rs store.ReSign) bool { return rs.PeriodID == periodID && rs.TeamID == teamID }), nil
}

func filterReSigns(st *state, keep func(store.ReSign) bool) []store.ReSign {
	var out []store.ReSign
	for _, rs := range st.resigns {
		if keep(rs) {
			out = append(out, rs)
		}
	}
	slices.SortFunc(out, func(a, b store.ReSign) int {
		return cmp.Or(strings.Compare(a.TeamID, b.TeamID), a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	})
	return out
}

func (r *reSignRepo) Replace(_ context.Context, periodID, teamID string, playerIDs []string, confirmedAt *time.Time) error {
	st := r.db.lock()
	defer r.db.unlock()
	for id, rs := range st.resigns {
		if rs.PeriodID == periodID && rs.TeamID == teamID {
			delete(st.resigns, id)
		}
	}
	now := r.db.clk.Now()
	add := func(playerID *string) {
		rs := store.ReSign{
			ID:          newID(),
			PeriodID:    periodID,
			TeamID:      teamID,
			PlayerID:    playerID,
			Confirmed:   confirmedAt != nil,
			ConfirmedAt: confirmedAt,
			CreatedAt:   now,
		}
		st.resigns[rs.ID] = rs
	}
	if len(playerIDs) == 0 {
		add(nil)
		return nil
	}
	for _, pid := range slices.Compact(slices.Sorted(slices.Values(playerIDs))) {
		add(&pid)
	}
	return nil
}

func (r *reSignRepo) SetConfirmed(_ context.Context, periodID, teamID string, confirmedAt *time.Time) error {
	st := r.db.lock()
	defer r.db.unlock()
	for id, rs := range st.resigns {
		if rs.PeriodID == periodID && rs.TeamID == teamID {
			rs.Confirmed = confirmedAt != nil
			rs.ConfirmedAt = confirmedAt
			st.resigns[id] = rs
		}
	}
	return nil
}

type bidRepo struct{ db *db }

func (r *bidRepo) Upsert(_ context.Context, b *store.Bid) error {
	st := r.db.lock()
	defer r.db.unlock()
	for id, existing := range st.bids {
		if existing.PeriodID == b.PeriodID && existing.TeamID == b.TeamID && existing.PlayerID == b.PlayerID {
			b.ID = id
			st.bids[id] = *b
			return nil
		}
	}
	b.ID = newID()
	st.bids[b.ID] = *b
	return nil
}

func (r *bidRepo) Get(_ context.Context, periodID, teamID, playerID string) (*store.Bid, error) {
	st := r.db.lock()
	defer r.db.unlock()
	for _, b := range st.bids {
		if b.PeriodID == periodID && b.TeamID == teamID && b.PlayerID == playerID {
			return &b, nil
		}
	}
	return nil, fmt.Errorf("getting bid: %w", store.ErrNotFound)
}

func (r *bidRepo) ListByPeriod(_ context.Context, periodID string) ([]store.Bid, error) {
	st := r.db.lock()
	defer r.db.unlock()
	out := filterBids(st, func(b store.Bid) bool { return b.PeriodID == periodID })
	slices.SortFunc(out, func(a, b store.Bid) int {
		return cmp.Or(
			strings.Compare(a.PlayerID, b.PlayerID),
			cmp.Compare(b.Amount, a.Amount),
			a.PlacedAt.Compare(b.PlacedAt),
			strings.Compare(a.ID, b.ID),
		)
	})
	return out, nil
}

func (r *bidRepo) ListByTeam(_ context.Context, periodID, teamID string) ([]store.Bid, error) {
	st := r.db.lock()
	defer r.db.unlock()
	out := filterBids(st, func(b store.Bid) bool { return b.PeriodID == periodID && b.TeamID == teamID })
	slices.SortFunc(out, func(a, b store.Bid) int {
		return cmp.Or(a.PlacedAt.Compare(b.PlacedAt), strings.Compare(a.ID, b.ID))
	})
	return out, nil
}

func filterBids(st *state, keep func(store.Bid) bool) []store.Bid {
	var out []store.Bid
	for _, b := range st.bids {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

func (r *bidRepo) SumActive(_ context.Context, periodID, teamID, excludePlayerID string) (int, error) {
	st := r.db.lock()
	defer r.db.unlock()
	total := 0
	for _, b := range st.bids {
		if b.PeriodID == periodID && b.TeamID == teamID && b.Status == store.BidActive && b.PlayerID != excludePlayerID {
			total += b.Amount
		}
	}
	return total, nil
}

func (r *bidRepo) SetStatus(_ context.Context, id, status string) error {
	st := r.db.lock()
	defer r.db.unlock()
	b, ok := st.bids[id]
	if !ok {
		return fmt.Errorf("setting status of bid %s: %w", id, store.ErrNotFound)
	}
	b.Status = status
	b.UpdatedAt = r.db.clk.Now()
	st.bids[id] = b
	return nil
}

func (r *bidRepo) Delete(_ context.Context, periodID, teamID string, ids []string) (int, error) {
	st := r.db.lock()
	defer r.db.unlock()
	n := 0
	for _, id := range ids {
		b, ok := st.bids[id]
		if ok && b.PeriodID == periodID && b.TeamID == teamID {
			delete(st.bids, id)
			n++
		}
	}
	return n, nil
}

func (r *bidRepo) DeleteByPeriod(_ context.Context, periodID string) (int, error) {
	st := r.db.lock()
	defer r.db.unlock()
	n := 0
	for id, b := range st.bids {
		if b.PeriodID == periodID {
			delete(st.bids, id)
			n++
		}
	}
	return n, nil
}

type resultRepo struct{ db *db }

func (r *resultRepo) Create(_ context.Context, res *store.Result) error {
	st := r.db.lock()
	defer r.db.unlock()
	for _, other := range st.results {
		if other.PeriodID == res.PeriodID && other.PlayerID == res.PlayerID {
			return fmt.Errorf("creating result for player %s: %w", res.PlayerID, store.ErrConflict)
		}
	}
	if res.ID == "" {
		res.ID = newID()
	}
	st.results[res.ID] = *res
	return nil
}

func (r *resultRepo) ListByPeriod(_ context.Context, periodID string) ([]store.Result, error) {
	st := r.db.lock()
	defer r.db.unlock()
	return filterResults(st, func(res store.Result) bool { return res.PeriodID == periodID }), nil
}

func (r *resultRepo) ListByOriginalTeam(_ context.Context, periodID, teamID string) ([]store.Result, error) {
	st := r.db.lock()
	defer r.db.unlock()
	return filterResults(st, func(res store.Result) bool {
		return res.PeriodID == periodID && res.OriginalTeamID == teamID
	}), nil
}

func filterResults(st *state, keep func(store.Result) bool) []store.Result {
	var out []store.Result
	for _, res := range st.results {
		if keep(res) {
			out = append(out, res)
		}
	}
	slices.SortFunc(out, func(a, b store.Result) int {
		return cmp.Or(strings.Compare(a.OriginalTeamID, b.OriginalTeamID), strings.Compare(a.PlayerID, b.PlayerID))
	})
	return out
}

func (r *resultRepo) Update(_ context.Context, res *store.Result) error {
	st := r.db.lock()
	defer r.db.unlock()
	cur, ok := st.results[res.ID]
	if !ok {
		return fmt.Errorf("updating result %s: %w", res.ID, store.ErrNotFound)
	}
	cur.Matched = res.Matched
	cur.CompensationBand = res.CompensationBand
	cur.CompensationPickID = res.CompensationPickID
	cur.ConfirmedAt = res.ConfirmedAt
	st.results[res.ID] = cur
	return nil
}
