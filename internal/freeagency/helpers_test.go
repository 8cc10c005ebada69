package freeagency_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/footy-fa-bot/internal/clock"
	"github.com/jensholdgaard/footy-fa-bot/internal/config"
	"github.com/jensholdgaard/footy-fa-bot/internal/event"
	"github.com/jensholdgaard/footy-fa-bot/internal/freeagency"
	"github.com/jensholdgaard/footy-fa-bot/internal/notify"
	"github.com/jensholdgaard/footy-fa-bot/internal/store"
	"github.com/jensholdgaard/footy-fa-bot/internal/store/memstore"
)

const season = 9

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var testConfig = config.FreeAgencyConfig{AuctionPoints: 300, RFAMaxAge: 25, RFAMatchRate: 0.8}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	repos *store.Repositories
	clk   *clock.Mock
	sent  *notify.Capture
	mgr   *freeagency.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewMock(epoch)
	return newFixtureWith(t, clk, memstore.New(clk), &notify.Capture{})
}

func newFixtureWith(t *testing.T, clk *clock.Mock, repos *store.Repositories, sent *notify.Capture) *fixture {
	t.Helper()
	mgr, err := freeagency.NewManager(repos, sent, testConfig, slog.Default(), noop.NewTracerProvider(), metricnoop.NewMeterProvider(), clk)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	f := &fixture{t: t, ctx: context.Background(), repos: repos, clk: clk, sent: sent, mgr: mgr}
	if err := repos.Seasons.Upsert(f.ctx, &store.Season{Number: season, Status: store.SeasonCompleted}); err != nil {
		t.Fatalf("Seasons.Upsert() error = %v", err)
	}
	return f
}

func (f *fixture) team(name string, ladder int) *store.Team {
	f.t.Helper()
	team := &store.Team{Name: name, ChannelID: "ch-" + name, OwnerDiscordID: "owner-" + name}
	if err := f.repos.Teams.Create(f.ctx, team); err != nil {
		f.t.Fatalf("Teams.Create(%s) error = %v", name, err)
	}
	if ladder > 0 {
		if err := f.repos.Teams.SetLadderPosition(f.ctx, season, team.ID, ladder); err != nil {
			f.t.Fatalf("SetLadderPosition(%s) error = %v", name, err)
		}
	}
	return team
}

// expiring creates a player on team whose contract ends this season.
func (f *fixture) expiring(name string, team *store.Team, age, ovr int) *store.Player {
	f.t.Helper()
	return f.player(name, team, age, ovr, season)
}

func (f *fixture) player(name string, team *store.Team, age, ovr, expiry int) *store.Player {
	f.t.Helper()
	p := &store.Player{Name: name, Position: "MID", Age: age, OverallRating: ovr, TeamID: &team.ID, ContractExpiry: expiry}
	if err := f.repos.Players.Create(f.ctx, p); err != nil {
		f.t.Fatalf("Players.Create(%s) error = %v", name, err)
	}
	return p
}

// draft creates the current draft with one natural pick per team per round.
func (f *fixture) draft(rounds int, order ...*store.Team) *store.Draft {
	f.t.Helper()
	return f.tradedDraft(rounds, nil, order...)
}

// tradedDraft is draft with the picks named in holders, by origin, held by
// another team.
func (f *fixture) tradedDraft(rounds int, holders map[string]*store.Team, order ...*store.Team) *store.Draft {
	f.t.Helper()
	d := &store.Draft{Name: fmt.Sprintf("%d National Draft", season+1), SeasonNumber: season + 1, Current: true}
	if err := f.repos.Drafts.Create(f.ctx, d); err != nil {
		f.t.Fatalf("Drafts.Create() error = %v", err)
	}
	n := 0
	for r := 1; r <= rounds; r++ {
		for _, team := range order {
			n++
			pick := &store.DraftPick{
				DraftID:        d.ID,
				RoundNumber:    r,
				PickNumber:     n,
				PickOrigin:     fmt.Sprintf("%s R%d", team.Name, r),
				OriginalTeamID: team.ID,
				CurrentTeamID:  team.ID,
			}
			if holder, ok := holders[pick.PickOrigin]; ok {
				pick.CurrentTeamID = holder.ID
			}
			if err := f.repos.Drafts.InsertPick(f.ctx, pick); err != nil {
				f.t.Fatalf("InsertPick(%d) error = %v", n, err)
			}
		}
	}
	return d
}

func (f *fixture) getPlayer(id string) *store.Player {
	f.t.Helper()
	p, err := f.repos.Players.GetByID(f.ctx, id)
	if err != nil {
		f.t.Fatalf("Players.GetByID(%s) error = %v", id, err)
	}
	return p
}

func (f *fixture) period() *store.Period {
	f.t.Helper()
	p, err := f.repos.Periods.GetBySeason(f.ctx, season)
	if err != nil {
		f.t.Fatalf("Periods.GetBySeason() error = %v", err)
	}
	return p
}

func (f *fixture) results() []store.Result {
	f.t.Helper()
	res, err := f.repos.Results.ListByPeriod(f.ctx, f.period().ID)
	if err != nil {
		f.t.Fatalf("Results.ListByPeriod() error = %v", err)
	}
	return res
}

func (f *fixture) resultFor(playerID string) store.Result {
	f.t.Helper()
	for _, r := range f.results() {
		if r.PlayerID == playerID {
			return r
		}
	}
	f.t.Fatalf("no result for player %s", playerID)
	return store.Result{}
}

func (f *fixture) picks(d *store.Draft) []store.DraftPick {
	f.t.Helper()
	picks, err := f.repos.Drafts.ListPicks(f.ctx, d.ID)
	if err != nil {
		f.t.Fatalf("ListPicks() error = %v", err)
	}
	return picks
}

func (f *fixture) startBidding() {
	f.t.Helper()
	if _, err := f.mgr.StartBidding(f.ctx); err != nil {
		f.t.Fatalf("StartBidding() error = %v", err)
	}
}

func (f *fixture) startMatching() {
	f.t.Helper()
	if _, err := f.mgr.StartMatching(f.ctx); err != nil {
		f.t.Fatalf("StartMatching() error = %v", err)
	}
}

func (f *fixture) endMatching() {
	f.t.Helper()
	if _, err := f.mgr.EndMatching(f.ctx); err != nil {
		f.t.Fatalf("EndMatching() error = %v", err)
	}
}

func (f *fixture) bid(team *store.Team, p *store.Player, amount int) *store.Bid {
	f.t.Helper()
	f.clk.Advance(time.Second)
	b, err := f.mgr.PlaceBid(f.ctx, team.ID, p.ID, amount)
	if err != nil {
		f.t.Fatalf("PlaceBid(%s, %s, %d) error = %v", team.Name, p.Name, amount, err)
	}
	return b
}

func (f *fixture) confirmMatches(team *store.Team, players ...*store.Player) {
	f.t.Helper()
	if _, err := f.mgr.ConfirmMatches(f.ctx, team.ID, ids(players...)); err != nil {
		f.t.Fatalf("ConfirmMatches(%s) error = %v", team.Name, err)
	}
}

func (f *fixture) eventCount(typ event.Type) int {
	f.t.Helper()
	events, err := f.repos.Events.Load(f.ctx, f.period().ID)
	if err != nil {
		f.t.Fatalf("Events.Load() error = %v", err)
	}
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func ids(players ...*store.Player) []string {
	out := make([]string, 0, len(players))
	for _, p := range players {
		out = append(out, p.ID)
	}
	return out
}

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}

// assertContiguous checks every round holds an increasing run of pick
// numbers and the draft as a whole is numbered 1..n without gaps.
func assertContiguous(t *testing.T, picks []store.DraftPick) {
	t.Helper()
	for i, p := range picks {
		if p.PickNumber != i+1 {
			t.Fatalf("pick %d has number %d, want %d", i, p.PickNumber, i+1)
		}
		if i > 0 && p.RoundNumber < picks[i-1].RoundNumber {
			t.Fatalf("pick %d is round %d after a round %d pick", p.PickNumber, p.RoundNumber, picks[i-1].RoundNumber)
		}
	}
}

func pickByOrigin(t *testing.T, picks []store.DraftPick, origin string) store.DraftPick {
	t.Helper()
	for _, p := range picks {
		if p.PickOrigin == origin {
			return p
		}
	}
	t.Fatalf("no pick with origin %q", origin)
	return store.DraftPick{}
}
