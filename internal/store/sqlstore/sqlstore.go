// Package sqlstore implements the store repositories on top of sqlx. Queries
// are written with ? placeholders and rebound for the connection's dialect,
// so the same code serves the postgres and sqlite drivers.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/footy-fa-bot/internal/clock"
	"github.com/jensholdgaard/footy-fa-bot/internal/store"
)

// New returns Repositories backed by db. db must have been created with the
// dialect's driver name ("postgres" or "sqlite3") so that Rebind works.
func New(db *sqlx.DB, clk clock.Clock) *store.Repositories {
	repos := bind(db, clk)
	repos.Tx = func(ctx context.Context, fn func(tx *store.Repositories) error) error {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		txRepos := bind(tx, clk)
		txRepos.Tx = func(_ context.Context, inner func(tx *store.Repositories) error) error {
			return inner(txRepos)
		}
		if err := fn(txRepos); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing transaction: %w", err)
		}
		return nil
	}
	repos.Closer = db
	repos.Ping = db.PingContext
	return repos
}

func bind(ext sqlx.ExtContext, clk clock.Clock) *store.Repositories {
	return &store.Repositories{
		Seasons:   &SeasonRepo{db: ext},
		Teams:     &TeamRepo{db: ext},
		Players:   &PlayerRepo{db: ext},
		Periods:   &PeriodRepo{db: ext, clk: clk},
		ReSigns:   &ReSignRepo{db: ext, clk: clk},
		Bids:      &BidRepo{db: ext, clk: clk},
		Results:   &ResultRepo{db: ext},
		Drafts:    &DraftRepo{db: ext},
		Reference: &ReferenceRepo{db: ext},
		Events:    &EventStore{db: ext, clk: clk},
	}
}

// SeedReference fills empty reference tables with the store defaults.
func SeedReference(ctx context.Context, ref store.ReferenceRepository) error {
	rules, err := ref.ContractRules(ctx)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		if err := ref.ReplaceContractRules(ctx, store.DefaultContractRules()); err != nil {
			return err
		}
	}
	chart, err := ref.CompensationRules(ctx)
	if err != nil {
		return err
	}
	if len(chart) == 0 {
		if err := ref.ReplaceCompensationRules(ctx, store.DefaultCompensationRules()); err != nil {
			return err
		}
	}
	values, err := ref.DraftValues(ctx)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return ref.ReplaceDraftValues(ctx, store.DefaultDraftValues())
	}
	return nil
}

func newID() string { return uuid.NewString() }

// notFound maps sql.ErrNoRows to store.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// exactlyOne returns ErrConflict unless res affected a single row.
func exactlyOne(res sql.Result, conflict error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return conflict
	}
	return nil
}
