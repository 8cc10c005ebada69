package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jensholdgaard/footy-fa-bot/internal/store"
)

type seasonRepo struct{ db *db }

func (r *seasonRepo) Current(_ context.Context) (*store.Season, error) {
	st := r.db.lock()
	defer r.db.unlock()
	var cur *store.Season
	for _, s := range st.seasons {
		if cur == nil || s.Number > cur.Number {
			cur = &s
		}
	}
	if cur == nil {
		return nil, fmt.Errorf("getting current season: %w", store.ErrNotFound)
	}
	return cur, nil
}

func (r *seasonRepo) Upsert(_ context.Context, s *store.Season) error {
	st := r.db.lock()
	defer r.db.unlock()
	st.seasons[s.Number] = *s
	return nil
}

type teamRepo struct{ db *db }

func (r *teamRepo) Create(_ context.Context, t *store.Team) error {
	st := r.db.lock()
	defer r.db.unlock()
	if t.ID == "" {
		t.ID = newID()
	}
	st.teams[t.ID] = *t
	return nil
}

func (r *teamRepo) GetByID(_ context.Context, id string) (*store.Team, error) {
	st := r.db.lock()
	defer r.db.unlock()
	t, ok := st.teams[id]
	if !ok {
		return nil, fmt.Errorf("getting team %s: %w", id, store.ErrNotFound)
	}
	return &t, nil
}

func (r *teamRepo) GetByOwner(_ context.Context, discordID string) (*store.Team, error) {
	return r.find(func(t store.Team) bool { return t.OwnerDiscordID == discordID }, "owner "+discordID)
}

func (r *teamRepo) GetByChannel(_ context.Context, channelID string) (*store.Team, error) {
	return r.find(func(t store.Team) bool { return t.ChannelID == channelID }, "channel "+channelID)
}

func (r *teamRepo) find(match func(store.Team) bool, desc string) (*store.Team, error) {
	st := r.db.lock()
	defer r.db.unlock()
	for _, t := range sortedTeams(st) {
		if match(t) {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("getting team by %s: %w", desc, store.ErrNotFound)
}

func (r *teamRepo) List(_ context.Context) ([]store.Team, error) {
	st := r.db.lock()
	defer r.db.unlock()
	return sortedTeams(st), nil
}

func sortedTeams(st *state) []store.Team {
	teams := make([]store.Team, 0, len(st.teams))
	for _, t := range st.teams {
		teams = append(teams, t)
	}
	slices.SortFunc(teams, func(a, b store.Team) int {
		return cmp.Or(strings.Compare(a.Name, b.Name), strings.Compare(a.ID, b.ID))
	})
	return teams
}

func (r *teamRepo) SetLadderPosition(_ context.Context, season int, teamID string, position int) error {
	st := r.db.lock()
	defer r.db.unlock()
	if st.ladder[season] == nil {
		st.ladder[season] = map[string]int{}
	}
	st.ladder[season][teamID] = position
	return nil
}

func (r *teamRepo) LadderPositions(_ context.Context, season int) (map[string]int, error) {
	st := r.db.lock()
	defer r.db.unlock()
	out := make(map[string]int, len(st.ladder[season]))
	for id, pos := range st.ladder[season] {
		out[id] = pos
	}
	return out, nil
}

type playerRepo struct{ db *db }

func (r *playerRepo) Create(_ context.Context, p *store.Player) error {
	st := r.db.lock()
	defer r.db.unlock()
	if p.ID == "" {
		p.ID = newID()
	}
	st.players[p.ID] = *p
	return nil
}

func (r *playerRepo) GetByID(_ context.Context, id string) (*store.Player, error) {
	st := r.db.lock()
	defer r.db.unlock()
	p, ok := st.players[id]
	if !ok {
		return nil, fmt.Errorf("getting player %s: %w", id, store.ErrNotFound)
	}
	return &p, nil
}

func (r *playerRepo) ListExpiring(_ context.Context, season int) ([]store.Player, error) {
	st := r.db.lock()
	defer r.db.unlock()
	var out []store.Player
	for _, p := range st.players {
		if p.ContractExpiry == season && p.TeamID != nil {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b store.Player) int {
		return cmp.Or(
			cmp.Compare(b.OverallRating, a.OverallRating),
			strings.Compare(a.Name, b.Name),
			strings.Compare(a.ID, b.ID),
		)
	})
	return out, nil
}

func (r *playerRepo) Assign(_ context.Context, id, teamID string, contractExpiry int) error {
	st := r.db.lock()
	defer r.db.unlock()
	p, ok := st.players[id]
	if !ok {
		return fmt.Errorf("assigning player %s: %w", id, store.ErrNotFound)
	}
	p.TeamID = &teamID
	p.ContractExpiry = contractExpiry
	st.players[id] = p
	return nil
}

type draftRepo struct{ db *db }

func (r *draftRepo) Create(_ context.Context, d *store.Draft) error {
	st := r.db.lock()
	defer r.db.unlock()
	if d.ID == "" {
		d.ID = newID()
	}
	if d.Current {
		for id, other := range st.drafts {
			other.Current = false
			st.drafts[id] = other
		}
	}
	st.drafts[d.ID] = *d
	return nil
}

func (r *draftRepo) Current(_ context.Context) (*store.Draft, error) {
	st := r.db.lock()
	defer r.db.unlock()
	for _, d := range st.drafts {
		if d.Current {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("getting current draft: %w", store.ErrNotFound)
}

func (r *draftRepo) ListPicks(_ context.Context, draftID string) ([]store.DraftPick, error) {
	st := r.db.lock()
	defer r.db.unlock()
	var out []store.DraftPick
	for _, p := range st.picks {
		if p.DraftID == draftID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b store.DraftPick) int { return cmp.Compare(a.PickNumber, b.PickNumber) })
	return out, nil
}

func (r *draftRepo) ShiftFrom(_ context.Context, draftID string, from int) error {
	st := r.db.lock()
	defer r.db.unlock()
	for id, p := range st.picks {
		if p.DraftID == draftID && p.PickNumber >= from {
			p.PickNumber++
			st.picks[id] = p
		}
	}
	return nil
}

func (r *draftRepo) InsertPick(_ context.Context, p *store.DraftPick) error {
	st := r.db.lock()
	defer r.db.unlock()
	for _, other := range st.picks {
		if other.DraftID == p.DraftID && other.PickNumber == p.PickNumber {
			return fmt.Errorf("inserting pick %d into draft %s: %w", p.PickNumber, p.DraftID, store.ErrConflict)
		}
	}
	if p.ID == "" {
		p.ID = newID()
	}
	st.picks[p.ID] = *p
	return nil
}

type referenceRepo struct{ db *db }

func (r *referenceRepo) ContractRules(_ context.Context) ([]store.ContractRule, error) {
	st := r.db.lock()
	defer r.db.unlock()
	out := slices.Clone(st.contractRules)
	slices.SortStableFunc(out, func(a, b store.ContractRule) int { return cmp.Compare(a.MinAge, b.MinAge) })
	return out, nil
}

func (r *referenceRepo) CompensationRules(_ context.Context) ([]store.CompensationRule, error) {
	st := r.db.lock()
	defer r.db.unlock()
	out := slices.Clone(st.compRules)
	slices.SortStableFunc(out, func(a, b store.CompensationRule) int {
		return cmp.Or(cmp.Compare(a.Band, b.Band), cmp.Compare(a.MinAge, b.MinAge), cmp.Compare(a.MinOVR, b.MinOVR))
	})
	return out, nil
}

func (r *referenceRepo) DraftValues(_ context.Context) ([]store.DraftValue, error) {
	st := r.db.lock()
	defer r.db.unlock()
	out := slices.Clone(st.draftValues)
	slices.SortStableFunc(out, func(a, b store.DraftValue) int { return cmp.Compare(a.PickNumber, b.PickNumber) })
	return out, nil
}

func (r *referenceRepo) ReplaceContractRules(_ context.Context, rules []store.ContractRule) error {
	st := r.db.lock()
	defer r.db.unlock()
	st.contractRules = slices.Clone(rules)
	return nil
}

func (r *referenceRepo) ReplaceCompensationRules(_ context.Context, rules []store.CompensationRule) error {
	st := r.db.lock()
	defer r.db.unlock()
	st.compRules = slices.Clone(rules)
	return nil
}

func (r *referenceRepo) ReplaceDraftValues(_ context.Context, values []store.DraftValue) error {
	st := r.db.lock()
	defer r.db.unlock()
	st.draftValues = slices.Clone(values)
	return nil
}
