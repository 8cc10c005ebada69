package freeagency

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jensholdgaard/footy-fa-bot/internal/event"
	"github.com/jensholdgaard/footy-fa-bot/internal/notify"
	"github.com/jensholdgaard/footy-fa-bot/internal/store"
)

// compensationRound is the draft round each band's pick lands in. Odd
// bands follow the team's own pick in that round; even bands go at the
// end of the round.
var compensationRound = map[int]int{1: 1, 2: 1, 3: 2, 4: 2, 5: 3}

const compensationPrefix = "Compensation Band "

// Movement is a player whose club changed at settlement.
type Movement struct {
	Player store.Player
	From   store.Team
	To     store.Team
	Bid    int
	Band   int // 0 when no compensation is due
	Pick   *store.DraftPick
	Value  int
}

// award is a compensation pick owed to the team that lost a player.
type award struct {
	result  *store.Result
	player  store.Player
	awardee store.Team
	band    int
	move    *Movement
}

// EndMatching settles the period in one transaction: contracts for every
// result, transfers for released players, compensation picks for their
// former clubs, then all bids are deleted and the period completes. Any
// failure rolls the whole settlement back.
func (m *Manager) EndMatching(ctx context.Context) (*Transition, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.EndMatching")
	defer span.End()

	var (
		box   outbox
		tr    *Transition
		picks int
	)
	err := m.withPeriod(ctx, func(tx *store.Repositories, season *store.Season, p *store.Period) error {
		if err := requirePhase(p, store.PeriodMatching); err != nil {
			return err
		}
		results, err := tx.Results.ListByPeriod(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("loading results: %w", err)
		}
		teams, err := teamsByID(ctx, tx.Teams)
		if err != nil {
			return err
		}
		if blocking := matchBlockers(results, teams); len(blocking) > 0 {
			return &GateError{Transition: "end matching", Blocking: blocking}
		}
		ref, err := LoadReference(ctx, tx.Reference)
		if err != nil {
			return err
		}

		var (
			summary event.SettledData
			awards  []award
			moves   []*Movement
		)
		for i := range results {
			r := &results[i]
			pl, err := tx.Players.GetByID(ctx, r.PlayerID)
			if err != nil {
				return fmt.Errorf("loading player %s: %w", r.PlayerID, err)
			}
			expiry := season.Number + ref.ContractYears(pl.Age)

			switch {
			case r.WinningTeamID == nil:
				summary.Unsold++
				err = tx.Players.Assign(ctx, pl.ID, r.OriginalTeamID, expiry)
			case r.Matched:
				summary.Matched++
				err = tx.Players.Assign(ctx, pl.ID, r.OriginalTeamID, expiry)
			default:
				summary.Transfers++
				err = tx.Players.Assign(ctx, pl.ID, *r.WinningTeamID, expiry)
				mv := &Movement{Player: *pl, From: teams[r.OriginalTeamID], To: teams[*r.WinningTeamID], Bid: *r.WinningBid}
				moves = append(moves, mv)
				if band, ok := ref.CompensationBand(pl.Age, pl.OverallRating); ok {
					r.CompensationBand = &band
					mv.Band = band
					awards = append(awards, award{result: r, player: *pl, awardee: teams[r.OriginalTeamID], band: band, move: mv})
				}
			}
			if err != nil {
				return fmt.Errorf("settling %s: %w", pl.Name, err)
			}
		}

		draft, err := tx.Drafts.Current(ctx)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if len(awards) > 0 {
				m.logger.WarnContext(ctx, "no current draft; compensation picks not inserted",
					slog.Int("season", season.Number),
					slog.Int("awards", len(awards)),
				)
			}
		case err != nil:
			return fmt.Errorf("loading current draft: %w", err)
		default:
			slices.SortStableFunc(awards, func(a, b award) int {
				return cmp.Or(cmp.Compare(a.band, b.band), cmp.Compare(a.awardee.ID, b.awardee.ID))
			})
			for _, aw := range awards {
				pick, err := insertCompensationPick(ctx, tx.Drafts, draft.ID, aw.awardee, aw.band, aw.player.Name)
				if err != nil {
					return err
				}
				if pick == nil {
					continue
				}
				aw.result.CompensationPickID = &pick.ID
				aw.move.Pick = pick
				picks++
			}
			// Later inserts shift earlier picks; report final positions.
			if picks > 0 {
				final, err := tx.Drafts.ListPicks(ctx, draft.ID)
				if err != nil {
					return fmt.Errorf("listing draft picks: %w", err)
				}
				for _, mv := range moves {
					if mv.Pick == nil {
						continue
					}
					if i := slices.IndexFunc(final, func(dp store.DraftPick) bool { return dp.ID == mv.Pick.ID }); i >= 0 {
						mv.Pick = &final[i]
						mv.Value = ref.DraftValue(final[i].PickNumber)
					}
				}
			}
		}
		summary.CompensationPicks = picks

		for _, aw := range awards {
			if err := tx.Results.Update(ctx, aw.result); err != nil {
				return fmt.Errorf("recording compensation for %s: %w", aw.player.Name, err)
			}
		}
		if _, err := tx.Bids.DeleteByPeriod(ctx, p.ID); err != nil {
			return fmt.Errorf("clearing bids: %w", err)
		}
		if err := m.advance(ctx, tx, p, store.PeriodCompleted); err != nil {
			return err
		}
		if err := audit(ctx, tx, p.ID, event.Settled, event.ActorAdmin, summary); err != nil {
			return err
		}

		box.add(notify.AuctionsLog(), movementsLog(season.Number, moves, summary))
		tr = &Transition{Season: season.Number, From: store.PeriodMatching, To: store.PeriodCompleted}
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("compensation_picks", picks))
	m.picksInserted.Add(ctx, int64(picks))
	m.deliver(ctx, box)
	m.recordTransition(ctx, tr)
	return tr, nil
}

// insertCompensationPick places a band's pick for awardee in the draft,
// renumbering later picks. It returns nil when the band earns no pick.
func insertCompensationPick(ctx context.Context, drafts store.DraftRepository, draftID string, awardee store.Team, band int, playerName string) (*store.DraftPick, error) {
	picks, err := drafts.ListPicks(ctx, draftID)
	if err != nil {
		return nil, fmt.Errorf("listing draft picks: %w", err)
	}
	round, number, ok := compensationSlot(picks, band, awardee)
	if !ok {
		return nil, nil
	}
	if err := drafts.ShiftFrom(ctx, draftID, number); err != nil {
		return nil, fmt.Errorf("making room at pick %d: %w", number, err)
	}
	pick := &store.DraftPick{
		DraftID:        draftID,
		RoundNumber:    round,
		PickNumber:     number,
		PickOrigin:     fmt.Sprintf("%s%d (lost %s)", compensationPrefix, band, playerName),
		OriginalTeamID: awardee.ID,
		CurrentTeamID:  awardee.ID,
	}
	if err := drafts.InsertPick(ctx, pick); err != nil {
		return nil, fmt.Errorf("inserting compensation pick: %w", err)
	}
	return pick, nil
}

// compensationSlot returns the round and overall number a band's pick
// should take given the current picks, ordered by number. Odd bands go
// straight after the awardee's natural pick of the round, behind any
// compensation picks the awardee already holds there. Even bands, or odd
// bands whose natural pick the awardee no longer holds, go at the end of
// the round. Pick origin survives trades, so holding means CurrentTeamID.
func compensationSlot(picks []store.DraftPick, band int, awardee store.Team) (round, number int, ok bool) {
	round, ok = compensationRound[band]
	if !ok {
		return 0, 0, false
	}
	if band%2 == 1 {
		natural := fmt.Sprintf("%s R%d", awardee.Name, round)
		for i, p := range picks {
			if p.PickOrigin != natural || p.CurrentTeamID != awardee.ID {
				continue
			}
			n := p.PickNumber + 1
			for _, next := range picks[i+1:] {
				if next.PickNumber != n || next.RoundNumber != round || !isCompensation(next) || next.OriginalTeamID != awardee.ID {
					break
				}
				n++
			}
			return round, n, true
		}
	}
	return round, endOfRound(picks, round), true
}

// endOfRound is one past the last pick in rounds up to round.
func endOfRound(picks []store.DraftPick, round int) int {
	last := 0
	for _, p := range picks {
		if p.RoundNumber <= round {
			last = max(last, p.PickNumber)
		}
	}
	return last + 1
}

func isCompensation(p store.DraftPick) bool {
	return strings.HasPrefix(p.PickOrigin, compensationPrefix)
}
