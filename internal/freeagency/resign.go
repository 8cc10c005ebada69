package freeagency

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/footy-fa-bot/internal/event"
	"github.com/jensholdgaard/footy-fa-bot/internal/notify"
	"github.com/jensholdgaard/footy-fa-bot/internal/store"
)

// ExpiringPlayer is a player coming off contract with its chart lookups.
type ExpiringPlayer struct {
	store.Player
	Band          int // 0 when the chart awards nothing
	ContractYears int
}

// ResignState is one team's position in the re-sign phase.
type ResignState struct {
	Season    int
	Team      store.Team
	Allowance int
	Expiring  []ExpiringPlayer
	Selected  []string
	Confirmed bool
}

func expiringFor(ref *Reference, players []store.Player) []ExpiringPlayer {
	out := make([]ExpiringPlayer, 0, len(players))
	for _, p := range players {
		band, _ := ref.CompensationBand(p.Age, p.OverallRating)
		out = append(out, ExpiringPlayer{Player: p, Band: band, ContractYears: ref.ContractYears(p.Age)})
	}
	return out
}

func groupByTeam(players []store.Player) map[string][]store.Player {
	out := make(map[string][]store.Player)
	for _, p := range players {
		if p.TeamID != nil {
			out[*p.TeamID] = append(out[*p.TeamID], p)
		}
	}
	return out
}

func (m *Manager) resignState(ctx context.Context, repos *store.Repositories, season int, p *store.Period, team store.Team) (*ResignState, error) {
	ref, err := LoadReference(ctx, repos.Reference)
	if err != nil {
		return nil, err
	}
	expiring, err := repos.Players.ListExpiring(ctx, season)
	if err != nil {
		return nil, fmt.Errorf("listing expiring players: %w", err)
	}
	own := groupByTeam(expiring)[team.ID]
	rows, err := repos.ReSigns.ListByTeam(ctx, p.ID, team.ID)
	if err != nil {
		return nil, fmt.Errorf("loading re-sign selection: %w", err)
	}

	st := &ResignState{
		Season:    season,
		Team:      team,
		Allowance: ResignAllowance(ref, own),
		Expiring:  expiringFor(ref, own),
		Confirmed: len(rows) > 0 && rows[0].Confirmed,
	}
	for _, r := range rows {
		if r.PlayerID != nil {
			st.Selected = append(st.Selected, *r.PlayerID)
		}
	}
	slices.Sort(st.Selected)
	return st, nil
}

// validate checks a selection against the team's expiring players and
// allowance, returning the de-duplicated sorted IDs.
func (st *ResignState) validate(playerIDs []string) ([]string, error) {
	if st.Allowance == 0 {
		return nil, &PreconditionError{Err: ErrNotEligible}
	}
	ids := dedupe(playerIDs)
	for _, id := range ids {
		if !slices.ContainsFunc(st.Expiring, func(p ExpiringPlayer) bool { return p.ID == id }) {
			return nil, precondition(ErrNotYourPlayer, "%s", id)
		}
	}
	if len(ids) > st.Allowance {
		return nil, precondition(ErrTooManyResigns, "%d selected, %d allowed", len(ids), st.Allowance)
	}
	return ids, nil
}

func dedupe(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// resignOp loads the team's state inside a locked re-sign phase transaction.
func (m *Manager) resignOp(ctx context.Context, teamID string, fn func(tx *store.Repositories, p *store.Period, st *ResignState) error) (notify.Embed, error) {
	var panel notify.Embed
	err := m.withPeriod(ctx, func(tx *store.Repositories, season *store.Season, p *store.Period) error {
		if err := requirePhase(p, store.PeriodResign); err != nil {
			return err
		}
		team, err := getTeam(ctx, tx.Teams, teamID)
		if err != nil {
			return err
		}
		st, err := m.resignState(ctx, tx, season.Number, p, *team)
		if err != nil {
			return err
		}
		if err := fn(tx, p, st); err != nil {
			return err
		}
		if st, err = m.resignState(ctx, tx, season.Number, p, *team); err != nil {
			return err
		}
		panel = resignEmbed(st)
		return nil
	})
	return panel, err
}

// ResignPanel renders the team's current re-sign selection.
func (m *Manager) ResignPanel(ctx context.Context, teamID string) (notify.Embed, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ResignPanel",
		trace.WithAttributes(attribute.String("team_id", teamID)),
	)
	defer span.End()

	season, p, err := m.loadPeriod(ctx, m.repos)
	if err != nil {
		return notify.Embed{}, err
	}
	if err := requirePhase(p, store.PeriodResign); err != nil {
		return notify.Embed{}, err
	}
	team, err := getTeam(ctx, m.repos.Teams, teamID)
	if err != nil {
		return notify.Embed{}, err
	}
	st, err := m.resignState(ctx, m.repos, season.Number, p, *team)
	if err != nil {
		return notify.Embed{}, err
	}
	if st.Allowance == 0 {
		return notify.Embed{}, &PreconditionError{Err: ErrNotEligible}
	}
	return resignEmbed(st), nil
}

// ResignSelection returns the team's stored selection.
func (m *Manager) ResignSelection(ctx context.Context, teamID string) ([]string, error) {
	season, p, err := m.loadPeriod(ctx, m.repos)
	if err != nil {
		return nil, err
	}
	team, err := getTeam(ctx, m.repos.Teams, teamID)
	if err != nil {
		return nil, err
	}
	st, err := m.resignState(ctx, m.repos, season.Number, p, *team)
	if err != nil {
		return nil, err
	}
	return st.Selected, nil
}

// SelectResigns stores an unconfirmed selection, replacing any previous one.
func (m *Manager) SelectResigns(ctx context.Context, teamID string, playerIDs []string) (notify.Embed, error) {
	return m.selectResigns(ctx, teamID, -1, playerIDs)
}

// SelectResignsPage stores the players picked on page k of the selection
// menu, keeping what was picked on other pages.
func (m *Manager) SelectResignsPage(ctx context.Context, teamID string, page int, playerIDs []string) (notify.Embed, error) {
	return m.selectResigns(ctx, teamID, page, playerIDs)
}

func (m *Manager) selectResigns(ctx context.Context, teamID string, page int, playerIDs []string) (notify.Embed, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.SelectResigns",
		trace.WithAttributes(
			attribute.String("team_id", teamID),
			attribute.Int("players", len(playerIDs)),
			attribute.Int("page", page),
		),
	)
	defer span.End()

	return m.resignOp(ctx, teamID, func(tx *store.Repositories, p *store.Period, st *ResignState) error {
		if st.Confirmed {
			return &PreconditionError{Err: ErrAlreadyConfirmed}
		}
		if page >= 0 {
			playerIDs = mergePage(st.Selected, resignOptions(st), page, playerIDs)
		}
		ids, err := st.validate(playerIDs)
		if err != nil {
			return err
		}
		if err := tx.ReSigns.Replace(ctx, p.ID, teamID, ids, nil); err != nil {
			return fmt.Errorf("storing re-sign selection: %w", err)
		}
		return audit(ctx, tx, p.ID, event.ResignSelected, teamID, event.SelectionData{PlayerIDs: ids})
	})
}

// ConfirmResigns confirms the team's re-signs. Confirming zero players is
// allowed. Confirming the same selection again changes nothing; a different
// selection needs EditResigns first.
func (m *Manager) ConfirmResigns(ctx context.Context, teamID string, playerIDs []string) (notify.Embed, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ConfirmResigns",
		trace.WithAttributes(
			attribute.String("team_id", teamID),
			attribute.Int("players", len(playerIDs)),
		),
	)
	defer span.End()

	var box outbox
	panel, err := m.resignOp(ctx, teamID, func(tx *store.Repositories, p *store.Period, st *ResignState) error {
		ids, err := st.validate(playerIDs)
		if err != nil {
			return err
		}
		if st.Confirmed {
			if slices.Equal(ids, st.Selected) {
				return nil
			}
			return &PreconditionError{Err: ErrAlreadyConfirmed}
		}
		now := m.clock.Now()
		if err := tx.ReSigns.Replace(ctx, p.ID, teamID, ids, &now); err != nil {
			return fmt.Errorf("confirming re-signs: %w", err)
		}
		if err := audit(ctx, tx, p.ID, event.ResignConfirmed, teamID, event.SelectionData{PlayerIDs: ids}); err != nil {
			return err
		}
		box.add(notify.BotLogs(), resignConfirmedLog(st, ids))
		return nil
	})
	if err != nil {
		return notify.Embed{}, err
	}
	m.deliver(ctx, box)
	if len(box) > 0 {
		m.logger.InfoContext(ctx, "re-signs confirmed",
			slog.String("team_id", teamID),
			slog.Int("players", len(dedupe(playerIDs))),
		)
	}
	return panel, nil
}

// EditResigns reopens a confirmed selection.
func (m *Manager) EditResigns(ctx context.Context, teamID string) (notify.Embed, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.EditResigns",
		trace.WithAttributes(attribute.String("team_id", teamID)),
	)
	defer span.End()

	return m.resignOp(ctx, teamID, func(tx *store.Repositories, p *store.Period, st *ResignState) error {
		if !st.Confirmed {
			return nil
		}
		if err := tx.ReSigns.SetConfirmed(ctx, p.ID, teamID, nil); err != nil {
			return fmt.Errorf("reopening re-signs: %w", err)
		}
		return audit(ctx, tx, p.ID, event.ResignEdited, teamID, event.SelectionData{PlayerIDs: st.Selected})
	})
}

// resignBlockers returns the names of eligible teams without a confirmed
// selection.
func resignBlockers(ctx context.Context, tx *store.Repositories, ref *Reference, expiring []store.Player, p *store.Period, teams map[string]store.Team) ([]string, error) {
	var blocking []string
	for teamID, players := range groupByTeam(expiring) {
		if ResignAllowance(ref, players) == 0 {
			continue
		}
		rows, err := tx.ReSigns.ListByTeam(ctx, p.ID, teamID)
		if err != nil {
			return nil, fmt.Errorf("loading re-sign selection: %w", err)
		}
		if len(rows) == 0 || !rows[0].Confirmed {
			blocking = append(blocking, teamName(teams, teamID))
		}
	}
	slices.Sort(blocking)
	return blocking, nil
}

func teamName(teams map[string]store.Team, id string) string {
	if t, ok := teams[id]; ok {
		return t.Name
	}
	return id
}

// StartResign opens the season's free agency period in the re-sign phase
// and sends every eligible team its selection embed.
func (m *Manager) StartResign(ctx context.Context) (*Transition, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.StartResign")
	defer span.End()

	var (
		box outbox
		tr  *Transition
	)
	err := m.repos.Tx(ctx, func(tx *store.Repositories) error {
		season, expiring, err := m.openable(ctx, tx)
		if err != nil {
			return err
		}
		p, err := m.openPeriod(ctx, tx, season, store.PeriodResign)
		if err != nil {
			return err
		}

		ref, err := LoadReference(ctx, tx.Reference)
		if err != nil {
			return err
		}
		teams, err := tx.Teams.List(ctx)
		if err != nil {
			return fmt.Errorf("listing teams: %w", err)
		}
		byTeam := groupByTeam(expiring)
		for _, team := range teams {
			own := byTeam[team.ID]
			allowance := ResignAllowance(ref, own)
			if allowance == 0 {
				continue
			}
			m.warnCutoff(ctx, team, len(own))
			box.add(notify.Team(team.ID, team.ChannelID), resignEmbed(&ResignState{
				Season:    season.Number,
				Team:      team,
				Allowance: allowance,
				Expiring:  expiringFor(ref, own),
			}))
		}
		tr = &Transition{Season: season.Number, From: PhaseNone, To: p.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.deliver(ctx, box)
	m.recordTransition(ctx, tr)
	return tr, nil
}

// openable checks a new period may be opened and returns the expiring players.
func (m *Manager) openable(ctx context.Context, tx *store.Repositories) (*store.Season, []store.Player, error) {
	season, err := currentSeason(ctx, tx.Seasons)
	if err != nil {
		return nil, nil, err
	}
	if season.Status == store.SeasonActive {
		return nil, nil, precondition(ErrSeasonActive, "season %d", season.Number)
	}
	_, err = tx.Periods.GetBySeason(ctx, season.Number)
	if err == nil {
		return nil, nil, precondition(ErrPeriodExists, "season %d", season.Number)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}
	expiring, err := tx.Players.ListExpiring(ctx, season.Number)
	if err != nil {
		return nil, nil, fmt.Errorf("listing expiring players: %w", err)
	}
	if len(expiring) == 0 {
		return nil, nil, precondition(ErrNoExpiring, "season %d", season.Number)
	}
	return season, expiring, nil
}

func (m *Manager) openPeriod(ctx context.Context, tx *store.Repositories, season *store.Season, status string) (*store.Period, error) {
	now := m.clock.Now()
	p := &store.Period{SeasonNumber: season.Number, Status: status, AuctionPoints: m.cfg.AuctionPoints}
	switch status {
	case store.PeriodResign:
		p.ResignStartedAt = &now
	case store.PeriodBidding:
		p.BiddingStartedAt = &now
	}
	if err := tx.Periods.Create(ctx, p); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, precondition(ErrPeriodExists, "season %d", season.Number)
		}
		return nil, err
	}
	err := audit(ctx, tx, p.ID, event.PeriodOpened, event.ActorAdmin, event.PeriodOpenedData{
		SeasonNumber:  p.SeasonNumber,
		Status:        p.Status,
		AuctionPoints: p.AuctionPoints,
	})
	return p, err
}

// ResignedPlayer is a confirmed free re-sign turned into a contract.
type ResignedPlayer struct {
	ExpiringPlayer
	Team store.Team
}

// StartBidding opens bidding. From the re-sign phase it requires every
// eligible team to have confirmed, and turns confirmed re-signs into new
// contracts. With no period yet the re-sign phase is skipped.
func (m *Manager) StartBidding(ctx context.Context) (*Transition, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.StartBidding")
	defer span.End()

	var (
		box outbox
		tr  *Transition
	)
	err := m.repos.Tx(ctx, func(tx *store.Repositories) error {
		season, err := currentSeason(ctx, tx.Seasons)
		if err != nil {
			return err
		}
		_, err = tx.Periods.GetBySeason(ctx, season.Number)
		if errors.Is(err, store.ErrNotFound) {
			season, _, err := m.openable(ctx, tx)
			if err != nil {
				return err
			}
			p, err := m.openPeriod(ctx, tx, season, store.PeriodBidding)
			if err != nil {
				return err
			}
			box.add(notify.AuctionsLog(), biddingOpenLog(season.Number, p.AuctionPoints, nil))
			tr = &Transition{Season: season.Number, From: PhaseNone, To: store.PeriodBidding}
			return nil
		}
		if err != nil {
			return err
		}

		return m.lockPeriod(ctx, tx, func(tx *store.Repositories, season *store.Season, p *store.Period) error {
			if err := requirePhase(p, store.PeriodResign); err != nil {
				return err
			}
			resigned, err := m.materialiseResigns(ctx, tx, season.Number, p)
			if err != nil {
				return err
			}
			if err := m.advance(ctx, tx, p, store.PeriodBidding); err != nil {
				return err
			}
			box.add(notify.AuctionsLog(), biddingOpenLog(season.Number, p.AuctionPoints, resigned))
			tr = &Transition{Season: season.Number, From: store.PeriodResign, To: store.PeriodBidding}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	m.deliver(ctx, box)
	m.recordTransition(ctx, tr)
	return tr, nil
}

// materialiseResigns checks the re-sign gate and gives every confirmed
// re-sign a new contract.
func (m *Manager) materialiseResigns(ctx context.Context, tx *store.Repositories, season int, p *store.Period) ([]ResignedPlayer, error) {
	ref, err := LoadReference(ctx, tx.Reference)
	if err != nil {
		return nil, err
	}
	expiring, err := tx.Players.ListExpiring(ctx, season)
	if err != nil {
		return nil, fmt.Errorf("listing expiring players: %w", err)
	}
	teams, err := teamsByID(ctx, tx.Teams)
	if err != nil {
		return nil, err
	}
	blocking, err := resignBlockers(ctx, tx, ref, expiring, p, teams)
	if err != nil {
		return nil, err
	}
	if len(blocking) > 0 {
		return nil, &GateError{Transition: "start bidding", Blocking: blocking}
	}

	rows, err := tx.ReSigns.ListByPeriod(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("loading re-sign selections: %w", err)
	}
	byID := make(map[string]ExpiringPlayer, len(expiring))
	for _, ep := range expiringFor(ref, expiring) {
		byID[ep.ID] = ep
	}

	var out []ResignedPlayer
	for _, r := range rows {
		if !r.Confirmed || r.PlayerID == nil {
			continue
		}
		ep, ok := byID[*r.PlayerID]
		if !ok || !ep.OwnedBy(r.TeamID) {
			m.logger.WarnContext(ctx, "skipping re-sign of player no longer expiring",
				slog.String("team_id", r.TeamID),
				slog.String("player_id", *r.PlayerID),
			)
			continue
		}
		if err := tx.Players.Assign(ctx, ep.ID, r.TeamID, season+ep.ContractYears); err != nil {
			return nil, fmt.Errorf("re-signing %s: %w", ep.Name, err)
		}
		out = append(out, ResignedPlayer{ExpiringPlayer: ep, Team: teams[r.TeamID]})
	}
	slices.SortFunc(out, func(a, b ResignedPlayer) int {
		return cmp.Or(cmp.Compare(a.Team.Name, b.Team.Name), cmp.Compare(a.Name, b.Name))
	})
	return out, nil
}
