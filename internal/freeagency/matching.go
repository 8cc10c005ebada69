package freeagency

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/footy-fa-bot/internal/event"
	"github.com/jensholdgaard/footy-fa-bot/internal/notify"
	"github.com/jensholdgaard/footy-fa-bot/internal/store"
)

// RankBids orders the active bids on one player from winner down: highest
// amount, then better (lower) ladder position, then earliest placement.
// Teams without a ladder position rank behind those with one. Team ID
// breaks any remaining tie so the order is total.
func RankBids(bids []store.Bid, ladder map[string]int) []store.Bid {
	ranked := slices.Clone(bids)
	pos := func(teamID string) int {
		if p, ok := ladder[teamID]; ok {
			return p
		}
		return math.MaxInt
	}
	slices.SortFunc(ranked, func(a, b store.Bid) int {
		return cmp.Or(
			cmp.Compare(b.Amount, a.Amount),
			cmp.Compare(pos(a.TeamID), pos(b.TeamID)),
			a.PlacedAt.Compare(b.PlacedAt),
			cmp.Compare(a.TeamID, b.TeamID),
		)
	})
	return ranked
}

// WinningBid is a ranked result with everything the logs show about it.
type WinningBid struct {
	Player   store.Player
	Original store.Team
	Winner   store.Team
	Amount   int
	RFA      bool
	Cost     int
}

// StartMatching closes bidding: each expiring player's active bids are
// ranked, the top one marked winning and the rest outbid, and one result
// row is written per expiring player. Owners of players with a winning bid
// receive their matching embed.
func (m *Manager) StartMatching(ctx context.Context) (*Transition, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.StartMatching")
	defer span.End()

	var (
		box outbox
		tr  *Transition
	)
	err := m.withPeriod(ctx, func(tx *store.Repositories, season *store.Season, p *store.Period) error {
		if err := requirePhase(p, store.PeriodBidding); err != nil {
			return err
		}
		expiring, err := tx.Players.ListExpiring(ctx, season.Number)
		if err != nil {
			return fmt.Errorf("listing expiring players: %w", err)
		}
		bids, err := tx.Bids.ListByPeriod(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("listing bids: %w", err)
		}
		ladder, err := tx.Teams.LadderPositions(ctx, season.Number)
		if err != nil {
			return fmt.Errorf("loading ladder: %w", err)
		}
		teams, err := teamsByID(ctx, tx.Teams)
		if err != nil {
			return err
		}

		active := make(map[string][]store.Bid)
		for _, b := range bids {
			if b.Status == store.BidActive {
				active[b.PlayerID] = append(active[b.PlayerID], b)
			}
		}

		var won []WinningBid
		for _, pl := range expiring {
			res := &store.Result{PeriodID: p.ID, PlayerID: pl.ID, OriginalTeamID: *pl.TeamID}
			ranked := RankBids(active[pl.ID], ladder)
			for i, b := range ranked {
				status := store.BidOutbid
				if i == 0 {
					status = store.BidWinning
				}
				if err := tx.Bids.SetStatus(ctx, b.ID, status); err != nil {
					return fmt.Errorf("marking bid %s %s: %w", b.ID, status, err)
				}
			}
			if len(ranked) > 0 {
				top := ranked[0]
				res.WinningTeamID = &top.TeamID
				res.WinningBid = &top.Amount
				won = append(won, WinningBid{
					Player:   pl,
					Original: teams[*pl.TeamID],
					Winner:   teams[top.TeamID],
					Amount:   top.Amount,
					RFA:      IsRFA(pl.Age, m.cfg.RFAMaxAge),
					Cost:     MatchCost(top.Amount, pl.Age, m.cfg.RFAMaxAge, m.rfaRate),
				})
			}
			if err := tx.Results.Create(ctx, res); err != nil {
				return fmt.Errorf("recording result for %s: %w", pl.Name, err)
			}
		}

		if err := m.advance(ctx, tx, p, store.PeriodMatching); err != nil {
			return err
		}

		box.add(notify.AuctionsLog(), winningBidsLog(season.Number, won, len(expiring)-len(won)))
		owners := make(map[string]bool)
		for _, w := range won {
			owners[w.Original.ID] = true
		}
		for _, id := range slices.Sorted(maps.Keys(owners)) {
			st, err := m.matchState(ctx, tx, p, teams[id], teams)
			if err != nil {
				return err
			}
			m.warnCutoff(ctx, teams[id], len(st.Rows))
			box.add(notify.Team(id, teams[id].ChannelID), matchEmbed(st))
		}
		tr = &Transition{Season: season.Number, From: store.PeriodBidding, To: store.PeriodMatching}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.deliver(ctx, box)
	m.recordTransition(ctx, tr)
	return tr, nil
}

// MatchState is one original team's position in the matching phase.
type MatchState struct {
	Team      store.Team
	Points    int
	Rows      []MatchRow
	Confirmed bool
}

// MatchRow is a result with a winning bid against the team.
type MatchRow struct {
	Result store.Result
	Player store.Player
	Winner store.Team
	RFA    bool
	Cost   int
}

// Matched returns the IDs of the players currently flagged as matched.
func (st *MatchState) Matched() []string {
	var ids []string
	for _, r := range st.Rows {
		if r.Result.Matched {
			ids = append(ids, r.Player.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

func (m *Manager) matchState(ctx context.Context, repos *store.Repositories, p *store.Period, team store.Team, teams map[string]store.Team) (*MatchState, error) {
	results, err := repos.Results.ListByOriginalTeam(ctx, p.ID, team.ID)
	if err != nil {
		return nil, fmt.Errorf("loading results: %w", err)
	}
	st := &MatchState{Team: team, Points: p.AuctionPoints, Confirmed: true}
	for _, r := range results {
		if r.WinningTeamID == nil {
			continue
		}
		pl, err := repos.Players.GetByID(ctx, r.PlayerID)
		if err != nil {
			return nil, fmt.Errorf("loading player %s: %w", r.PlayerID, err)
		}
		st.Rows = append(st.Rows, MatchRow{
			Result: r,
			Player: *pl,
			Winner: teams[*r.WinningTeamID],
			RFA:    IsRFA(pl.Age, m.cfg.RFAMaxAge),
			Cost:   MatchCost(*r.WinningBid, pl.Age, m.cfg.RFAMaxAge, m.rfaRate),
		})
		if r.ConfirmedAt == nil {
			st.Confirmed = false
		}
	}
	if len(st.Rows) == 0 {
		st.Confirmed = false
	}
	return st, nil
}

// validate checks a match selection and returns the de-duplicated IDs.
func (st *MatchState) validate(playerIDs []string) ([]string, error) {
	if len(st.Rows) == 0 {
		return nil, &PreconditionError{Err: ErrNothingToMatch}
	}
	ids := dedupe(playerIDs)
	total := 0
	for _, id := range ids {
		i := slices.IndexFunc(st.Rows, func(r MatchRow) bool { return r.Player.ID == id })
		if i < 0 {
			return nil, precondition(ErrNotMatchable, "%s", id)
		}
		total += st.Rows[i].Cost
	}
	if total > st.Points {
		return nil, precondition(ErrOverBudget, "matching costs %d of %d points", total, st.Points)
	}
	return ids, nil
}

// matchOp runs fn against the team's matching state in a locked
// matching-phase transaction and renders the resulting embed.
func (m *Manager) matchOp(ctx context.Context, teamID string, fn func(tx *store.Repositories, p *store.Period, st *MatchState) error) (notify.Embed, error) {
	var panel notify.Embed
	err := m.withPeriod(ctx, func(tx *store.Repositories, _ *store.Season, p *store.Period) error {
		if err := requirePhase(p, store.PeriodMatching); err != nil {
			return err
		}
		teams, err := teamsByID(ctx, tx.Teams)
		if err != nil {
			return err
		}
		team, ok := teams[teamID]
		if !ok {
			return &PreconditionError{Err: ErrUnknownTeam}
		}
		st, err := m.matchState(ctx, tx, p, team, teams)
		if err != nil {
			return err
		}
		if err := fn(tx, p, st); err != nil {
			return err
		}
		if st, err = m.matchState(ctx, tx, p, team, teams); err != nil {
			return err
		}
		panel = matchEmbed(st)
		return nil
	})
	return panel, err
}

// MatchPanel renders the team's matching decisions.
func (m *Manager) MatchPanel(ctx context.Context, teamID string) (notify.Embed, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.MatchPanel",
		trace.WithAttributes(attribute.String("team_id", teamID)),
	)
	defer span.End()

	st, err := m.loadMatchState(ctx, teamID)
	if err != nil {
		return notify.Embed{}, err
	}
	if len(st.Rows) == 0 {
		return notify.Embed{}, &PreconditionError{Err: ErrNothingToMatch}
	}
	return matchEmbed(st), nil
}

// MatchSelection returns the players the team has flagged as matched.
func (m *Manager) MatchSelection(ctx context.Context, teamID string) ([]string, error) {
	st, err := m.loadMatchState(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return st.Matched(), nil
}

func (m *Manager) loadMatchState(ctx context.Context, teamID string) (*MatchState, error) {
	_, p, err := m.loadPeriod(ctx, m.repos)
	if err != nil {
		return nil, err
	}
	if err := requirePhase(p, store.PeriodMatching); err != nil {
		return nil, err
	}
	teams, err := teamsByID(ctx, m.repos.Teams)
	if err != nil {
		return nil, err
	}
	team, ok := teams[teamID]
	if !ok {
		return nil, &PreconditionError{Err: ErrUnknownTeam}
	}
	return m.matchState(ctx, m.repos, p, team, teams)
}

// SelectMatches flags which of the team's players it intends to match
// without confirming.
func (m *Manager) SelectMatches(ctx context.Context, teamID string, playerIDs []string) (notify.Embed, error) {
	return m.selectMatches(ctx, teamID, -1, playerIDs)
}

// SelectMatchesPage flags the players picked on page k of the matching
// menu, keeping the flags set on other pages.
func (m *Manager) SelectMatchesPage(ctx context.Context, teamID string, page int, playerIDs []string) (notify.Embed, error) {
	return m.selectMatches(ctx, teamID, page, playerIDs)
}

func (m *Manager) selectMatches(ctx context.Context, teamID string, page int, playerIDs []string) (notify.Embed, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.SelectMatches",
		trace.WithAttributes(
			attribute.String("team_id", teamID),
			attribute.Int("players", len(playerIDs)),
			attribute.Int("page", page),
		),
	)
	defer span.End()

	return m.matchOp(ctx, teamID, func(tx *store.Repositories, p *store.Period, st *MatchState) error {
		if st.Confirmed {
			return &PreconditionError{Err: ErrAlreadyConfirmed}
		}
		if page >= 0 {
			playerIDs = mergePage(st.Matched(), matchOptions(st), page, playerIDs)
		}
		ids, err := st.validate(playerIDs)
		if err != nil {
			return err
		}
		if err := m.writeMatches(ctx, tx, st, ids, nil); err != nil {
			return err
		}
		return audit(ctx, tx, p.ID, event.MatchSelected, teamID, event.SelectionData{PlayerIDs: ids})
	})
}

// ConfirmMatches matches the chosen players and releases the rest, stamping
// every result with a winning bid against the team as confirmed. The total
// match cost may not exceed the period's auction points. Confirming the
// same selection again changes nothing.
func (m *Manager) ConfirmMatches(ctx context.Context, teamID string, playerIDs []string) (notify.Embed, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ConfirmMatches",
		trace.WithAttributes(
			attribute.String("team_id", teamID),
			attribute.Int("players", len(playerIDs)),
		),
	)
	defer span.End()

	var box outbox
	panel, err := m.matchOp(ctx, teamID, func(tx *store.Repositories, p *store.Period, st *MatchState) error {
		ids, err := st.validate(playerIDs)
		if err != nil {
			return err
		}
		if st.Confirmed {
			if slices.Equal(ids, st.Matched()) {
				return nil
			}
			return &PreconditionError{Err: ErrAlreadyConfirmed}
		}
		now := m.clock.Now()
		if err := m.writeMatches(ctx, tx, st, ids, &now); err != nil {
			return err
		}
		if err := audit(ctx, tx, p.ID, event.MatchConfirmed, teamID, event.SelectionData{PlayerIDs: ids}); err != nil {
			return err
		}
		box.add(notify.BotLogs(), matchConfirmedLog(st, ids))
		return nil
	})
	if err != nil {
		return notify.Embed{}, err
	}
	m.deliver(ctx, box)
	if len(box) > 0 {
		m.logger.InfoContext(ctx, "matches confirmed",
			slog.String("team_id", teamID),
			slog.Int("matched", len(dedupe(playerIDs))),
		)
	}
	return panel, nil
}

// EditMatches reopens a confirmed matching decision. Match flags are kept.
func (m *Manager) EditMatches(ctx context.Context, teamID string) (notify.Embed, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.EditMatches",
		trace.WithAttributes(attribute.String("team_id", teamID)),
	)
	defer span.End()

	return m.matchOp(ctx, teamID, func(tx *store.Repositories, p *store.Period, st *MatchState) error {
		if !st.Confirmed {
			return nil
		}
		for _, r := range st.Rows {
			res := r.Result
			res.ConfirmedAt = nil
			if err := tx.Results.Update(ctx, &res); err != nil {
				return fmt.Errorf("reopening result %s: %w", res.ID, err)
			}
		}
		return audit(ctx, tx, p.ID, event.MatchEdited, teamID, event.SelectionData{PlayerIDs: st.Matched()})
	})
}

func (m *Manager) writeMatches(ctx context.Context, tx *store.Repositories, st *MatchState, ids []string, confirmedAt *time.Time) error {
	for _, r := range st.Rows {
		res := r.Result
		res.Matched = slices.Contains(ids, r.Player.ID)
		res.ConfirmedAt = confirmedAt
		if err := tx.Results.Update(ctx, &res); err != nil {
			return fmt.Errorf("updating result %s: %w", res.ID, err)
		}
	}
	return nil
}

// matchBlockers returns the names of teams with an unconfirmed result that
// has a winning bid.
func matchBlockers(results []store.Result, teams map[string]store.Team) []string {
	seen := make(map[string]bool)
	for _, r := range results {
		if r.WinningTeamID != nil && r.ConfirmedAt == nil {
			seen[teamName(teams, r.OriginalTeamID)] = true
		}
	}
	return slices.Sorted(maps.Keys(seen))
}
