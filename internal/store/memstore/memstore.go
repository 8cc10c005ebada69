// Package memstore provides a store.Driver that keeps all state in process
// memory. It is used for local runs and for engine tests; data is lost on exit.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/jensholdgaard/footy-fa-bot/internal/clock"
	"github.com/jensholdgaard/footy-fa-bot/internal/config"
	"github.com/jensholdgaard/footy-fa-bot/internal/event"
	"github.com/jensholdgaard/footy-fa-bot/internal/store"
)

func init() {
	store.Register("memory", openMemory)
}

func openMemory(_ context.Context, _ config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	return New(clk), nil
}

// state is one consistent snapshot of every table.
type state struct {
	seasons       map[int]store.Season
	teams         map[string]store.Team
	ladder        map[int]map[string]int
	players       map[string]store.Player
	periods       map[string]store.Period
	resigns       map[string]store.ReSign
	bids          map[string]store.Bid
	results       map[string]store.Result
	drafts        map[string]store.Draft
	picks         map[string]store.DraftPick
	contractRules []store.ContractRule
	compRules     []store.CompensationRule
	draftValues   []store.DraftValue
	events        []event.Event
}

func newState() *state {
	return &state{
		contractRules: store.DefaultContractRules(),
		compRules:     store.DefaultCompensationRules(),
		draftValues:   store.DefaultDraftValues(),
		seasons:       map[int]store.Season{},
		teams:         map[string]store.Team{},
		ladder:        map[int]map[string]int{},
		players:       map[string]store.Player{},
		periods:       map[string]store.Period{},
		resigns:       map[string]store.ReSign{},
		bids:          map[string]store.Bid{},
		results:       map[string]store.Result{},
		drafts:        map[string]store.Draft{},
		picks:         map[string]store.DraftPick{},
	}
}

// clone copies every table. Rows are values and are never mutated through
// their pointer fields, so a shallow copy of each row is enough.
func (s *state) clone() *state {
	c := &state{
		seasons:       maps.Clone(s.seasons),
		teams:         maps.Clone(s.teams),
		ladder:        make(map[int]map[string]int, len(s.ladder)),
		players:       maps.Clone(s.players),
		periods:       maps.Clone(s.periods),
		resigns:       maps.Clone(s.resigns),
		bids:          maps.Clone(s.bids),
		results:       maps.Clone(s.results),
		drafts:        maps.Clone(s.drafts),
		picks:         maps.Clone(s.picks),
		contractRules: slices.Clone(s.contractRules),
		compRules:     slices.Clone(s.compRules),
		draftValues:   slices.Clone(s.draftValues),
		events:        slices.Clone(s.events),
	}
	for season, positions := range s.ladder {
		c.ladder[season] = maps.Clone(positions)
	}
	return c
}

// db is the shared handle behind every repository. Outside a transaction mu
// is the store mutex and cur points at the live state; inside one, mu is a
// no-op (the transaction already holds the store mutex) and cur points at
// the transaction's private copy.
type db struct {
	mu  sync.Locker
	cur **state
	clk clock.Clock
}

func (d *db) lock() *state {
	d.mu.Lock()
	return *d.cur
}

func (d *db) unlock() { d.mu.Unlock() }

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

// New returns in-memory repositories holding only the default reference tables.
func New(clk clock.Clock) *store.Repositories {
	root := &struct {
		mu sync.Mutex
		st *state
	}{st: newState()}

	repos := bind(&db{mu: &root.mu, cur: &root.st, clk: clk})
	repos.Tx = func(ctx context.Context, fn func(tx *store.Repositories) error) error {
		root.mu.Lock()
		defer root.mu.Unlock()

		work := root.st.clone()
		txRepos := bind(&db{mu: noLock{}, cur: &work, clk: clk})
		txRepos.Tx = func(_ context.Context, inner func(tx *store.Repositories) error) error {
			return inner(txRepos)
		}
		if err := fn(txRepos); err != nil {
			return err
		}
		root.st = work
		return nil
	}
	repos.Closer = store.CloserFunc(func() error { return nil })
	repos.Ping = func(context.Context) error { return nil }
	return repos
}

func bind(d *db) *store.Repositories {
	return &store.Repositories{
		Seasons:   &seasonRepo{d},
		Teams:     &teamRepo{d},
		Players:   &playerRepo{d},
		Periods:   &periodRepo{d},
		ReSigns:   &reSignRepo{d},
		Bids:      &bidRepo{d},
		Results:   &resultRepo{d},
		Drafts:    &draftRepo{d},
		Reference: &referenceRepo{d},
		Events:    &eventStore{d},
	}
}

func newID() string { return uuid.NewString() }
