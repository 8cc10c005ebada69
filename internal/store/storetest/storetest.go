// Package storetest is a conformance suite for store drivers. Each driver
// package runs it against a fresh database.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jensholdgaard/footy-fa-bot/internal/clock"
	"github.com/jensholdgaard/footy-fa-bot/internal/event"
	"github.com/jensholdgaard/footy-fa-bot/internal/store"
)

// Opener returns empty, migrated repositories that use clk for timestamps.
type Opener func(t *testing.T, clk clock.Clock) *store.Repositories

var epoch = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

// Run executes every conformance test against repositories from open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, open Opener)
	}{
		{"Seasons", testSeasons},
		{"Teams", testTeams},
		{"Players", testPlayers},
		{"Periods", testPeriods},
		{"ReSigns", testReSigns},
		{"Bids", testBids},
		{"Results", testResults},
		{"Drafts", testDrafts},
		{"Reference", testReference},
		{"Events", testEvents},
		{"TxCommit", testTxCommit},
		{"TxRollback", testTxRollback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.fn(t, open) })
	}
}

func strp(s string) *string { return &s }

func intp(v int) *int { return &v }

func mustTeam(t *testing.T, repos *store.Repositories, name string) *store.Team {
	t.Helper()
	team := &store.Team{Name: name, ChannelID: "ch-" + name, OwnerDiscordID: "owner-" + name}
	if err := repos.Teams.Create(context.Background(), team); err != nil {
		t.Fatalf("Teams.Create(%s): %v", name, err)
	}
	return team
}

func mustPeriod(t *testing.T, repos *store.Repositories, season int) *store.Period {
	t.Helper()
	p := &store.Period{SeasonNumber: season, Status: store.PeriodBidding, AuctionPoints: 300}
	if err := repos.Periods.Create(context.Background(), p); err != nil {
		t.Fatalf("Periods.Create: %v", err)
	}
	return p
}

func testSeasons(t *testing.T, open Opener) {
	repos := open(t, clock.NewMock(epoch))
	ctx := context.Background()

	if _, err := repos.Seasons.Current(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Current on empty store: err = %v, want ErrNotFound", err)
	}
	for _, s := range []store.Season{{Number: 8, Status: store.SeasonCompleted}, {Number: 9, Status: store.SeasonActive}} {
		if err := repos.Seasons.Upsert(ctx, &s); err != nil {
			t.Fatalf("Upsert(%d): %v", s.Number, err)
		}
	}
	if err := repos.Seasons.Upsert(ctx, &store.Season{Number: 9, Status: store.SeasonOffseason}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	cur, err := repos.Seasons.Current(ctx)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.Number != 9 || cur.Status != store.SeasonOffseason {
		t.Errorf("Current = %+v, want season 9 offseason", cur)
	}
}

func testTeams(t *testing.T, open Opener) {
	repos := open(t, clock.NewMock(epoch))
	ctx := context.Background()

	b := mustTeam(t, repos, "Bravo")
	a := mustTeam(t, repos, "Alpha")

	got, err := repos.Teams.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Name != "Alpha" {
		t.Errorf("GetByID name = %q, want Alpha", got.Name)
	}
	if got, err := repos.Teams.GetByOwner(ctx, "owner-Bravo"); err != nil || got.ID != b.ID {
		t.Errorf("GetByOwner = %v, %v; want %s", got, err, b.ID)
	}
	if got, err := repos.Teams.GetByChannel(ctx, "ch-Alpha"); err != nil || got.ID != a.ID {
		t.Errorf("GetByChannel = %v, %v; want %s", got, err, a.ID)
	}
	if _, err := repos.Teams.GetByID(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetByID(missing) err = %v, want ErrNotFound", err)
	}

	teams, err := repos.Teams.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(teams) != 2 || teams[0].Name != "Alpha" || teams[1].Name != "Bravo" {
		t.Errorf("List = %+v, want [Alpha Bravo]", teams)
	}

	if err := repos.Teams.SetLadderPosition(ctx, 9, a.ID, 3); err != nil {
		t.Fatalf("SetLadderPosition: %v", err)
	}
	if err := repos.Teams.SetLadderPosition(ctx, 9, a.ID, 2); err != nil {
		t.Fatalf("SetLadderPosition overwrite: %v", err)
	}
	ladder, err := repos.Teams.LadderPositions(ctx, 9)
	if err != nil {
		t.Fatalf("LadderPositions: %v", err)
	}
	if len(ladder) != 1 || ladder[a.ID] != 2 {
		t.Errorf("LadderPositions = %v, want {%s: 2}", ladder, a.ID)
	}
	if ladder, _ := repos.Teams.LadderPositions(ctx, 10); len(ladder) != 0 {
		t.Errorf("LadderPositions(10) = %v, want empty", ladder)
	}
}

func testPlayers(t *testing.T, open Opener) {
	repos := open(t, clock.NewMock(epoch))
	ctx := context.Background()
	a := mustTeam(t, repos, "Alpha")
	b := mustTeam(t, repos, "Bravo")

	players := []*store.Player{
		{Name: "Low", Age: 24, OverallRating: 70, TeamID: &a.ID, ContractExpiry: 9},
		{Name: "High", Age: 28, OverallRating: 90, TeamID: &a.ID, ContractExpiry: 9},
		{Name: "Free", Age: 30, OverallRating: 80, ContractExpiry: 9},
		{Name: "Later", Age: 22, OverallRating: 85, TeamID: &b.ID, ContractExpiry: 11},
	}
	for _, p := range players {
		if err := repos.Players.Create(ctx, p); err != nil {
			t.Fatalf("Create(%s): %v", p.Name, err)
		}
	}

	expiring, err := repos.Players.ListExpiring(ctx, 9)
	if err != nil {
		t.Fatalf("ListExpiring: %v", err)
	}
	if len(expiring) != 2 || expiring[0].Name != "High" || expiring[1].Name != "Low" {
		t.Fatalf("ListExpiring = %+v, want [High Low]", expiring)
	}

	if err := repos.Players.Assign(ctx, players[1].ID, b.ID, 12); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	got, err := repos.Players.GetByID(ctx, players[1].ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.OwnedBy(b.ID) || got.ContractExpiry != 12 {
		t.Errorf("after Assign = %+v, want team %s expiry 12", got, b.ID)
	}
	if err := repos.Players.Assign(ctx, "missing", b.ID, 12); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Assign(missing) err = %v, want ErrNotFound", err)
	}
}

func testPeriods(t *testing.T, open Opener) {
	clk := clock.NewMock(epoch)
	repos := open(t, clk)
	ctx := context.Background()

	started := epoch
	p := &store.Period{SeasonNumber: 9, Status: store.PeriodResign, AuctionPoints: 300, ResignStartedAt: &started}
	if err := repos.Periods.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID == "" {
		t.Fatal("expected ID to be set after Create")
	}
	dup := &store.Period{SeasonNumber: 9, Status: store.PeriodBidding, AuctionPoints: 300}
	if err := repos.Periods.Create(ctx, dup); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate Create err = %v, want ErrConflict", err)
	}
	if _, err := repos.Periods.GetBySeason(ctx, 10); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetBySeason(10) err = %v, want ErrNotFound", err)
	}

	if err := repos.Periods.Lock(ctx, p.ID); err != nil {
		t.Errorf("Lock: %v", err)
	}
	if err := repos.Periods.Lock(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Lock(missing) err = %v, want ErrNotFound", err)
	}

	at := epoch.Add(time.Hour)
	if err := repos.Periods.Advance(ctx, p.ID, store.PeriodResign, store.PeriodBidding, at); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if err := repos.Periods.Advance(ctx, p.ID, store.PeriodResign, store.PeriodBidding, at); !errors.Is(err, store.ErrConflict) {
		t.Errorf("stale Advance err = %v, want ErrConflict", err)
	}

	got, err := repos.Periods.GetBySeason(ctx, 9)
	if err != nil {
		t.Fatalf("GetBySeason: %v", err)
	}
	if got.Status != store.PeriodBidding {
		t.Errorf("Status = %q, want bidding", got.Status)
	}
	if got.BiddingStartedAt == nil || !got.BiddingStartedAt.Equal(at) {
		t.Errorf("BiddingStartedAt = %v, want %v", got.BiddingStartedAt, at)
	}
	if got.ResignStartedAt == nil || !got.ResignStartedAt.Equal(started) {
		t.Errorf("ResignStartedAt = %v, want %v", got.ResignStartedAt, started)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt = %v, want nil", got.CompletedAt)
	}
}

func testReSigns(t *testing.T, open Opener) {
	repos := open(t, clock.NewMock(epoch))
	ctx := context.Background()
	p := mustPeriod(t, repos, 9)

	if err := repos.ReSigns.Replace(ctx, p.ID, "team-a", []string{"p2", "p1", "p1"}, nil); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	rows, err := repos.ReSigns.ListByTeam(ctx, p.ID, "team-a")
	if err != nil {
		t.Fatalf("ListByTeam: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("ListByTeam returned %d rows, want 2 (duplicates collapse)", len(rows))
	}
	for _, r := range rows {
		if r.Confirmed || r.ConfirmedAt != nil {
			t.Errorf("row %+v should be unconfirmed", r)
		}
	}

	at := epoch.Add(time.Minute)
	if err := repos.ReSigns.SetConfirmed(ctx, p.ID, "team-a", &at); err != nil {
		t.Fatalf("SetConfirmed: %v", err)
	}
	rows, _ = repos.ReSigns.ListByTeam(ctx, p.ID, "team-a")
	for _, r := range rows {
		if !r.Confirmed || r.ConfirmedAt == nil || !r.ConfirmedAt.Equal(at) {
			t.Errorf("row %+v should be confirmed at %v", r, at)
		}
	}

	// Zero selection leaves a single marker row.
	if err := repos.ReSigns.Replace(ctx, p.ID, "team-b", nil, &at); err != nil {
		t.Fatalf("Replace(zero): %v", err)
	}
	rows, _ = repos.ReSigns.ListByTeam(ctx, p.ID, "team-b")
	if len(rows) != 1 || rows[0].PlayerID != nil || !rows[0].Confirmed {
		t.Errorf("zero selection rows = %+v, want one confirmed marker", rows)
	}

	all, err := repos.ReSigns.ListByPeriod(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListByPeriod: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListByPeriod returned %d rows, want 3", len(all))
	}
}

func testBids(t *testing.T, open Opener) {
	repos := open(t, clock.NewMock(epoch))
	ctx := context.Background()
	p := mustPeriod(t, repos, 9)

	bid := &store.Bid{PeriodID: p.ID, TeamID: "team-a", PlayerID: "p1", Amount: 100, Status: store.BidActive, PlacedAt: epoch, UpdatedAt: epoch}
	if err := repos.Bids.Upsert(ctx, bid); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	firstID := bid.ID
	later := epoch.Add(time.Minute)
	again := &store.Bid{PeriodID: p.ID, TeamID: "team-a", PlayerID: "p1", Amount: 120, Status: store.BidActive, PlacedAt: later, UpdatedAt: later}
	if err := repos.Bids.Upsert(ctx, again); err != nil {
		t.Fatalf("Upsert update: %v", err)
	}
	if again.ID != firstID {
		t.Errorf("Upsert changed ID %s -> %s", firstID, again.ID)
	}
	got, err := repos.Bids.Get(ctx, p.ID, "team-a", "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Amount != 120 || !got.PlacedAt.Equal(later) {
		t.Errorf("Get = %+v, want amount 120 placed %v", got, later)
	}

	other := &store.Bid{PeriodID: p.ID, TeamID: "team-a", PlayerID: "p2", Amount: 50, Status: store.BidActive, PlacedAt: epoch, UpdatedAt: epoch}
	if err := repos.Bids.Upsert(ctx, other); err != nil {
		t.Fatalf("Upsert p2: %v", err)
	}
	rival := &store.Bid{PeriodID: p.ID, TeamID: "team-b", PlayerID: "p1", Amount: 200, Status: store.BidActive, PlacedAt: epoch, UpdatedAt: epoch}
	if err := repos.Bids.Upsert(ctx, rival); err != nil {
		t.Fatalf("Upsert rival: %v", err)
	}

	sum, err := repos.Bids.SumActive(ctx, p.ID, "team-a", "")
	if err != nil {
		t.Fatalf("SumActive: %v", err)
	}
	if sum != 170 {
		t.Errorf("SumActive = %d, want 170", sum)
	}
	if sum, _ := repos.Bids.SumActive(ctx, p.ID, "team-a", "p1"); sum != 50 {
		t.Errorf("SumActive excluding p1 = %d, want 50", sum)
	}

	if err := repos.Bids.SetStatus(ctx, other.ID, store.BidOutbid); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if sum, _ := repos.Bids.SumActive(ctx, p.ID, "team-a", ""); sum != 120 {
		t.Errorf("SumActive after outbid = %d, want 120", sum)
	}

	byPeriod, err := repos.Bids.ListByPeriod(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListByPeriod: %v", err)
	}
	if len(byPeriod) != 3 {
		t.Fatalf("ListByPeriod returned %d, want 3", len(byPeriod))
	}

	// team-b cannot delete team-a's bid.
	if n, err := repos.Bids.Delete(ctx, p.ID, "team-b", []string{firstID}); err != nil || n != 0 {
		t.Errorf("cross-team Delete = %d, %v; want 0, nil", n, err)
	}
	if n, err := repos.Bids.Delete(ctx, p.ID, "team-a", []string{firstID, other.ID}); err != nil || n != 2 {
		t.Errorf("Delete = %d, %v; want 2, nil", n, err)
	}
	if n, err := repos.Bids.Delete(ctx, p.ID, "team-a", nil); err != nil || n != 0 {
		t.Errorf("Delete(nil) = %d, %v; want 0, nil", n, err)
	}
	mine, _ := repos.Bids.ListByTeam(ctx, p.ID, "team-a")
	if len(mine) != 0 {
		t.Errorf("ListByTeam after delete = %+v, want empty", mine)
	}
	if n, err := repos.Bids.DeleteByPeriod(ctx, p.ID); err != nil || n != 1 {
		t.Errorf("DeleteByPeriod = %d, %v; want 1, nil", n, err)
	}
}

func testResults(t *testing.T, open Opener) {
	repos := open(t, clock.NewMock(epoch))
	ctx := context.Background()
	p := mustPeriod(t, repos, 9)

	won := &store.Result{PeriodID: p.ID, PlayerID: "p1", OriginalTeamID: "team-a", WinningTeamID: strp("team-b"), WinningBid: intp(150)}
	unsold := &store.Result{PeriodID: p.ID, PlayerID: "p2", OriginalTeamID: "team-a"}
	elsewhere := &store.Result{PeriodID: p.ID, PlayerID: "p3", OriginalTeamID: "team-c"}
	for _, r := range []*store.Result{won, unsold, elsewhere} {
		if err := repos.Results.Create(ctx, r); err != nil {
			t.Fatalf("Create(%s): %v", r.PlayerID, err)
		}
	}
	if err := repos.Results.Create(ctx, &store.Result{PeriodID: p.ID, PlayerID: "p1", OriginalTeamID: "team-a"}); !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate Create err = %v, want ErrConflict", err)
	}

	at := epoch.Add(time.Hour)
	won.Matched = false
	won.CompensationBand = intp(3)
	won.CompensationPickID = strp("pick-1")
	won.ConfirmedAt = &at
	if err := repos.Results.Update(ctx, won); err != nil {
		t.Fatalf("Update: %v", err)
	}

	mine, err := repos.Results.ListByOriginalTeam(ctx, p.ID, "team-a")
	if err != nil {
		t.Fatalf("ListByOriginalTeam: %v", err)
	}
	if len(mine) != 2 || mine[0].PlayerID != "p1" || mine[1].PlayerID != "p2" {
		t.Fatalf("ListByOriginalTeam = %+v, want [p1 p2]", mine)
	}
	got := mine[0]
	if got.WinningBid == nil || *got.WinningBid != 150 || got.WinningTeamID == nil || *got.WinningTeamID != "team-b" {
		t.Errorf("winner fields = %+v", got)
	}
	if got.CompensationBand == nil || *got.CompensationBand != 3 || got.CompensationPickID == nil || *got.CompensationPickID != "pick-1" {
		t.Errorf("compensation fields = %+v", got)
	}
	if got.ConfirmedAt == nil || !got.ConfirmedAt.Equal(at) {
		t.Errorf("ConfirmedAt = %v, want %v", got.ConfirmedAt, at)
	}
	if mine[1].WinningTeamID != nil || mine[1].WinningBid != nil {
		t.Errorf("unsold result has winner: %+v", mine[1])
	}

	all, _ := repos.Results.ListByPeriod(ctx, p.ID)
	if len(all) != 3 {
		t.Errorf("ListByPeriod returned %d, want 3", len(all))
	}
}

func testDrafts(t *testing.T, open Opener) {
	repos := open(t, clock.NewMock(epoch))
	ctx := context.Background()

	if _, err := repos.Drafts.Current(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Current on empty store: err = %v, want ErrNotFound", err)
	}
	old := &store.Draft{Name: "2025 National Draft", SeasonNumber: 8, Current: true}
	if err := repos.Drafts.Create(ctx, old); err != nil {
		t.Fatalf("Create: %v", err)
	}
	d := &store.Draft{Name: "2026 National Draft", SeasonNumber: 9, Current: true}
	if err := repos.Drafts.Create(ctx, d); err != nil {
		t.Fatalf("Create: %v", err)
	}
	cur, err := repos.Drafts.Current(ctx)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.ID != d.ID {
		t.Errorf("Current = %s, want newest draft %s", cur.Name, d.Name)
	}

	for i, origin := range []string{"Alpha R1", "Bravo R1", "Alpha R2", "Bravo R2"} {
		pick := &store.DraftPick{DraftID: d.ID, RoundNumber: i/2 + 1, PickNumber: i + 1, PickOrigin: origin, OriginalTeamID: "t", CurrentTeamID: "t"}
		if err := repos.Drafts.InsertPick(ctx, pick); err != nil {
			t.Fatalf("InsertPick(%s): %v", origin, err)
		}
	}
	if err := repos.Drafts.InsertPick(ctx, &store.DraftPick{DraftID: d.ID, RoundNumber: 1, PickNumber: 2, PickOrigin: "dup", OriginalTeamID: "t", CurrentTeamID: "t"}); !errors.Is(err, store.ErrConflict) {
		t.Errorf("InsertPick on taken number err = %v, want ErrConflict", err)
	}

	if err := repos.Drafts.ShiftFrom(ctx, d.ID, 2); err != nil {
		t.Fatalf("ShiftFrom: %v", err)
	}
	comp := &store.DraftPick{DraftID: d.ID, RoundNumber: 1, PickNumber: 2, PickOrigin: "Compensation Band 1 (lost X)", OriginalTeamID: "t", CurrentTeamID: "t"}
	if err := repos.Drafts.InsertPick(ctx, comp); err != nil {
		t.Fatalf("InsertPick(comp): %v", err)
	}

	picks, err := repos.Drafts.ListPicks(ctx, d.ID)
	if err != nil {
		t.Fatalf("ListPicks: %v", err)
	}
	want := []string{"Alpha R1", "Compensation Band 1 (lost X)", "Bravo R1", "Alpha R2", "Bravo R2"}
	if len(picks) != len(want) {
		t.Fatalf("ListPicks returned %d, want %d", len(picks), len(want))
	}
	for i, p := range picks {
		if p.PickOrigin != want[i] || p.PickNumber != i+1 {
			t.Errorf("pick[%d] = %d %q, want %d %q", i, p.PickNumber, p.PickOrigin, i+1, want[i])
		}
	}
}

func testReference(t *testing.T, open Opener) {
	repos := open(t, clock.NewMock(epoch))
	ctx := context.Background()

	rules, err := repos.Reference.ContractRules(ctx)
	if err != nil {
		t.Fatalf("ContractRules: %v", err)
	}
	if len(rules) != len(store.DefaultContractRules()) {
		t.Errorf("seeded %d contract rules, want %d", len(rules), len(store.DefaultContractRules()))
	}
	values, err := repos.Reference.DraftValues(ctx)
	if err != nil {
		t.Fatalf("DraftValues: %v", err)
	}
	if len(values) == 0 || values[0].PickNumber != 1 {
		t.Errorf("DraftValues = %v, want seeded values starting at pick 1", values)
	}

	chart := []store.CompensationRule{
		{MinAge: 20, MaxAge: intp(25), MinOVR: 80, MaxOVR: intp(99), Band: 2},
		{MinAge: 24, MinOVR: 88, Band: 1},
	}
	if err := repos.Reference.ReplaceCompensationRules(ctx, chart); err != nil {
		t.Fatalf("ReplaceCompensationRules: %v", err)
	}
	got, err := repos.Reference.CompensationRules(ctx)
	if err != nil {
		t.Fatalf("CompensationRules: %v", err)
	}
	if len(got) != 2 || got[0].Band != 1 || got[0].MaxAge != nil || got[1].MaxOVR == nil || *got[1].MaxOVR != 99 {
		t.Errorf("CompensationRules = %+v", got)
	}

	if err := repos.Reference.ReplaceContractRules(ctx, []store.ContractRule{{MinAge: 18, Years: 4}}); err != nil {
		t.Fatalf("ReplaceContractRules: %v", err)
	}
	if rules, _ := repos.Reference.ContractRules(ctx); len(rules) != 1 || rules[0].Years != 4 {
		t.Errorf("ContractRules after replace = %+v", rules)
	}
	if err := repos.Reference.ReplaceDraftValues(ctx, []store.DraftValue{{PickNumber: 1, Points: 10}}); err != nil {
		t.Fatalf("ReplaceDraftValues: %v", err)
	}
	if values, _ := repos.Reference.DraftValues(ctx); len(values) != 1 || values[0].Points != 10 {
		t.Errorf("DraftValues after replace = %+v", values)
	}
}

func testEvents(t *testing.T, open Opener) {
	clk := clock.NewMock(epoch)
	repos := open(t, clk)
	ctx := context.Background()

	first := event.New("period-1", event.PeriodOpened, event.ActorAdmin, event.PeriodOpenedData{SeasonNumber: 9, Status: "resign"})
	second := event.New("period-1", event.BidPlaced, "team-a", event.BidPlacedData{PlayerID: "p1", Amount: 10})
	third := event.New("period-2", event.BidPlaced, "team-b", event.BidPlacedData{PlayerID: "p2", Amount: 20})
	if err := repos.Events.Append(ctx, first, second); err != nil {
		t.Fatalf("Append: %v", err)
	}
	clk.Advance(time.Second)
	if err := repos.Events.Append(ctx, third); err != nil {
		t.Fatalf("Append: %v", err)
	}

	loaded, err := repos.Events.Load(ctx, "period-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 2 || loaded[0].Type != event.PeriodOpened || loaded[1].Type != event.BidPlaced {
		t.Fatalf("Load = %+v, want [opened placed]", loaded)
	}
	if loaded[0].ID == "" || !loaded[0].CreatedAt.Equal(epoch) {
		t.Errorf("event[0] id=%q created=%v, want id set and %v", loaded[0].ID, loaded[0].CreatedAt, epoch)
	}
	var data event.BidPlacedData
	if err := json.Unmarshal(loaded[1].Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.Amount != 10 || loaded[1].Actor != "team-a" {
		t.Errorf("event[1] = %+v, data %+v", loaded[1], data)
	}

	other, err := repos.Events.Load(ctx, "period-2")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(other) != 1 || !other[0].CreatedAt.Equal(epoch.Add(time.Second)) {
		t.Errorf("Load(period-2) = %+v", other)
	}
}

func testTxCommit(t *testing.T, open Opener) {
	repos := open(t, clock.NewMock(epoch))
	ctx := context.Background()

	err := repos.Tx(ctx, func(tx *store.Repositories) error {
		if err := tx.Seasons.Upsert(ctx, &store.Season{Number: 9, Status: store.SeasonOffseason}); err != nil {
			return err
		}
		// Nested Tx joins the outer transaction.
		return tx.Tx(ctx, func(inner *store.Repositories) error {
			return inner.Teams.Create(ctx, &store.Team{Name: "Alpha"})
		})
	})
	if err != nil {
		t.Fatalf("Tx: %v", err)
	}
	if _, err := repos.Seasons.Current(ctx); err != nil {
		t.Errorf("season not committed: %v", err)
	}
	if teams, _ := repos.Teams.List(ctx); len(teams) != 1 {
		t.Errorf("teams after commit = %d, want 1", len(teams))
	}
}

func testTxRollback(t *testing.T, open Opener) {
	repos := open(t, clock.NewMock(epoch))
	ctx := context.Background()
	a := mustTeam(t, repos, "Alpha")
	player := &store.Player{Name: "P", Age: 25, OverallRating: 80, TeamID: &a.ID, ContractExpiry: 9}
	if err := repos.Players.Create(ctx, player); err != nil {
		t.Fatalf("Create: %v", err)
	}

	boom := errors.New("boom")
	err := repos.Tx(ctx, func(tx *store.Repositories) error {
		if err := tx.Players.Assign(ctx, player.ID, a.ID, 14); err != nil {
			return err
		}
		if err := tx.Periods.Create(ctx, &store.Period{SeasonNumber: 9, Status: store.PeriodResign, AuctionPoints: 300}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Tx err = %v, want boom", err)
	}
	got, err := repos.Players.GetByID(ctx, player.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ContractExpiry != 9 {
		t.Errorf("ContractExpiry = %d after rollback, want 9", got.ContractExpiry)
	}
	if _, err := repos.Periods.GetBySeason(ctx, 9); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("period visible after rollback: err = %v", err)
	}
}
