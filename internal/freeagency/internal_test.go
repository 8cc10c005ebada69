package freeagency

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/jensholdgaard/footy-fa-bot/internal/clock"
	"github.com/jensholdgaard/footy-fa-bot/internal/notify"
	"github.com/jensholdgaard/footy-fa-bot/internal/store"
	"github.com/jensholdgaard/footy-fa-bot/internal/store/memstore"
)

// Quarters make the allowance exact in integers: band 1 earns two, band 2
// one, and a remainder of three quarters is the only one that rounds up.
func TestAllowanceForBands_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bands := rapid.SliceOf(rapid.IntRange(0, 6)).Draw(t, "bands")
		q := 0
		for _, b := range bands {
			switch b {
			case 1:
				q += 2
			case 2:
				q++
			}
		}
		want := q / 4
		if q%4 > 2 {
			want++
		}
		if got := allowanceForBands(bands); got != want {
			t.Fatalf("allowanceForBands(%v) = %d, want %d", bands, got, want)
		}
	})
}

func TestRankBids_Property(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rapid.Check(t, func(t *rapid.T) {
		teams := rapid.IntRange(1, 8).Draw(t, "teams")
		ladder := make(map[string]int)
		for i := range teams {
			if rapid.Bool().Draw(t, fmt.Sprintf("ranked%d", i)) {
				ladder[fmt.Sprintf("t%d", i)] = rapid.IntRange(1, 18).Draw(t, fmt.Sprintf("ladder%d", i))
			}
		}
		n := rapid.IntRange(1, teams).Draw(t, "bids")
		bids := make([]store.Bid, 0, n)
		for i := range n {
			bids = append(bids, store.Bid{
				ID:       fmt.Sprintf("b%d", i),
				TeamID:   fmt.Sprintf("t%d", i),
				Amount:   rapid.IntRange(1, 5).Draw(t, fmt.Sprintf("amount%d", i)),
				PlacedAt: t0.Add(time.Duration(rapid.IntRange(0, 3).Draw(t, fmt.Sprintf("at%d", i))) * time.Second),
			})
		}

		ranked := RankBids(bids, ladder)
		if len(ranked) != len(bids) {
			t.Fatalf("RankBids() returned %d of %d bids", len(ranked), len(bids))
		}
		top := ranked[0]
		for _, b := range bids {
			if b.Amount > top.Amount {
				t.Fatalf("winner bid %d but %s bid %d", top.Amount, b.TeamID, b.Amount)
			}
			if b.Amount == top.Amount {
				if lp, ok := ladder[b.TeamID]; ok {
					if tp, ok := ladder[top.TeamID]; !ok || lp < tp {
						t.Fatalf("winner %s ranks behind %s on the ladder", top.TeamID, b.TeamID)
					}
				}
			}
		}

		shuffled := rapid.Permutation(bids).Draw(t, "shuffled")
		again := RankBids(shuffled, ladder)
		for i := range ranked {
			if ranked[i].ID != again[i].ID {
				t.Fatalf("order depends on input order: %v vs %v", ids(ranked), ids(again))
			}
		}
	})
}

func ids(bids []store.Bid) []string {
	out := make([]string, 0, len(bids))
	for _, b := range bids {
		out = append(out, b.ID)
	}
	return out
}

// Inserting any sequence of compensation picks keeps the draft numbered
// 1..n with rounds in order, and every pick lands in its band's round.
func TestInsertCompensationPick_Contiguous(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		repos := memstore.New(clock.NewMock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
		draft := &store.Draft{Name: "draft", SeasonNumber: 10, Current: true}
		if err := repos.Drafts.Create(ctx, draft); err != nil {
			t.Fatal(err)
		}

		nTeams := rapid.IntRange(1, 6).Draw(t, "teams")
		rounds := rapid.IntRange(1, 4).Draw(t, "rounds")
		teams := make([]store.Team, nTeams)
		for i := range teams {
			teams[i] = store.Team{ID: fmt.Sprintf("t%d", i), Name: fmt.Sprintf("Team %d", i)}
		}
		n := 0
		for r := 1; r <= rounds; r++ {
			for _, team := range teams {
				// A trade changes the holder; the origin stays.
				owner := teams[rapid.IntRange(0, nTeams-1).Draw(t, "owner")]
				n++
				err := repos.Drafts.InsertPick(ctx, &store.DraftPick{
					DraftID:        draft.ID,
					RoundNumber:    r,
					PickNumber:     n,
					PickOrigin:     fmt.Sprintf("%s R%d", team.Name, r),
					OriginalTeamID: team.ID,
					CurrentTeamID:  owner.ID,
				})
				if err != nil {
					t.Fatal(err)
				}
			}
		}

		awards := rapid.IntRange(0, 8).Draw(t, "awards")
		for i := range awards {
			band := rapid.IntRange(1, 6).Draw(t, fmt.Sprintf("band%d", i))
			awardee := teams[rapid.IntRange(0, nTeams-1).Draw(t, fmt.Sprintf("awardee%d", i))]
			pick, err := insertCompensationPick(ctx, repos.Drafts, draft.ID, awardee, band, fmt.Sprintf("P%d", i))
			if err != nil {
				t.Fatal(err)
			}
			if band > 5 {
				if pick != nil {
					t.Fatalf("band %d earned a pick", band)
				}
				continue
			}
			if pick == nil || pick.RoundNumber != compensationRound[band] {
				t.Fatalf("band %d pick = %+v, want round %d", band, pick, compensationRound[band])
			}

			picks, err := repos.Drafts.ListPicks(ctx, draft.ID)
			if err != nil {
				t.Fatal(err)
			}
			for j, p := range picks {
				if p.PickNumber != j+1 {
					t.Fatalf("pick %d numbered %d", j+1, p.PickNumber)
				}
				if j > 0 && p.RoundNumber < picks[j-1].RoundNumber {
					t.Fatalf("round %d pick #%d follows round %d", p.RoundNumber, p.PickNumber, picks[j-1].RoundNumber)
				}
			}
			at := slices.IndexFunc(picks, func(p store.DraftPick) bool { return p.ID == pick.ID })
			if at < 0 {
				t.Fatalf("inserted pick %s missing", pick.ID)
			}
			natural := fmt.Sprintf("%s R%d", awardee.Name, pick.RoundNumber)
			held := slices.ContainsFunc(picks, func(p store.DraftPick) bool {
				return p.PickOrigin == natural && p.CurrentTeamID == awardee.ID
			})
			if band%2 == 0 || !held {
				if at+1 < len(picks) && picks[at+1].RoundNumber == pick.RoundNumber {
					t.Fatalf("band %d pick #%d is not last in round %d (natural held: %v)", band, pick.PickNumber, pick.RoundNumber, held)
				}
				continue
			}
			// Everything between the natural pick and this one is the
			// awardee's own compensation in the same round.
			j := at - 1
			for j >= 0 && picks[j].PickOrigin != natural {
				if !isCompensation(picks[j]) || picks[j].OriginalTeamID != awardee.ID || picks[j].RoundNumber != pick.RoundNumber {
					t.Fatalf("band %d pick #%d follows %q, not %s", band, pick.PickNumber, picks[j].PickOrigin, natural)
				}
				j--
			}
			if j < 0 {
				t.Fatalf("band %d pick #%d precedes its natural pick %s", band, pick.PickNumber, natural)
			}
		}
	})
}

func TestCompensationSlot(t *testing.T) {
	team := func(name string) store.Team { return store.Team{ID: name, Name: name} }
	pick := func(n, round int, origin, owner string) store.DraftPick {
		return store.DraftPick{PickNumber: n, RoundNumber: round, PickOrigin: origin, OriginalTeamID: owner, CurrentTeamID: owner}
	}
	picks := []store.DraftPick{
		pick(1, 1, "A R1", "A"),
		pick(2, 1, compensationPrefix+"1 (lost X)", "A"),
		pick(3, 1, "B R1", "B"),
		pick(4, 2, "A R2", "A"),
		pick(5, 2, "B R2", "B"),
	}
	// B's round-one pick now belongs to C.
	traded := slices.Clone(picks)
	traded[2].CurrentTeamID = "C"

	tests := []struct {
		name       string
		picks      []store.DraftPick
		band       int
		awardee    string
		wantRound  int
		wantNumber int
		wantOK     bool
	}{
		{"behind own earlier compensation", picks, 1, "A", 1, 3, true},
		{"straight after natural pick", picks, 1, "B", 1, 4, true},
		{"natural pick traded away", traded, 1, "B", 1, 4, true},
		{"traded pick anchors nobody else", traded, 1, "C", 1, 4, true},
		{"even band ends the round", picks, 2, "B", 1, 4, true},
		{"odd band round two", picks, 3, "A", 2, 5, true},
		{"even band round two", picks, 4, "A", 2, 6, true},
		{"round beyond the draft", picks, 5, "A", 3, 6, true},
		{"natural pick missing", picks, 3, "C", 2, 6, true},
		{"no round for band", picks, 6, "A", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			round, number, ok := compensationSlot(tt.picks, tt.band, team(tt.awardee))
			if round != tt.wantRound || number != tt.wantNumber || ok != tt.wantOK {
				t.Errorf("compensationSlot() = %d, %d, %v; want %d, %d, %v",
					round, number, ok, tt.wantRound, tt.wantNumber, tt.wantOK)
			}
		})
	}

	// A traded natural pick at the end of its round still sends the
	// compensation behind every other pick of the round.
	late := []store.DraftPick{
		pick(1, 1, "B R1", "B"),
		pick(2, 1, "A R1", "A"),
		pick(3, 2, "A R2", "A"),
		pick(4, 2, "B R2", "B"),
		pick(5, 2, "C R2", "C"),
	}
	late[2].CurrentTeamID = "C"
	if round, number, _ := compensationSlot(late, 3, team("A")); round != 2 || number != 6 {
		t.Errorf("traded natural pick: compensationSlot() = round %d #%d, want round 2 #6", round, number)
	}

	// A one-team, one-round draft whose round-two compensation pick sits
	// straight after the team's only natural pick.
	solo := []store.DraftPick{
		pick(1, 1, "A R1", "A"),
		pick(2, 2, compensationPrefix+"3 (lost X)", "A"),
	}
	if round, number, _ := compensationSlot(solo, 1, team("A")); round != 1 || number != 2 {
		t.Errorf("compensationSlot() = round %d #%d, want round 1 #2", round, number)
	}
}

func TestMergePage(t *testing.T) {
	var options []notify.Option
	for i := range notify.MaxOptions + 3 {
		options = append(options, notify.Option{Value: fmt.Sprint(i)})
	}
	tests := []struct {
		name     string
		selected []string
		page     int
		picked   []string
		want     []string
	}{
		{"adds to other pages", []string{"1"}, 1, []string{"26"}, []string{"1", "26"}},
		{"replaces own page", []string{"1", "25"}, 1, []string{"27"}, []string{"1", "27"}},
		{"clears own page", []string{"1", "25"}, 0, nil, []string{"25"}},
		{"page beyond options keeps everything", []string{"1"}, 3, []string{"2"}, []string{"1", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mergePage(tt.selected, options, tt.page, tt.picked); !slices.Equal(got, tt.want) {
				t.Errorf("mergePage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCutoffNote(t *testing.T) {
	if note := cutoffNote(notify.MaxSelectable); note != nil {
		t.Errorf("cutoffNote(%d) = %v, want none", notify.MaxSelectable, note)
	}
	note := cutoffNote(notify.MaxSelectable + 7)
	if len(note) != 2 || !strings.Contains(note[1], fmt.Sprintf("first %d of %d", notify.MaxSelectable, notify.MaxSelectable+7)) {
		t.Errorf("cutoffNote() = %q", note)
	}
}
