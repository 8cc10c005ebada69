package sqlstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/footy-fa-bot/internal/clock"
	"github.com/jensholdgaard/footy-fa-bot/internal/store"
)

// PeriodRepo implements store.PeriodRepository with sqlx.
type PeriodRepo struct {
	db  sqlx.ExtContext
	clk clock.Clock
}

func (r *PeriodRepo) Create(ctx context.Context, p *store.Period) error {
	if p.ID == "" {
		p.ID = newID()
	}
	p.CreatedAt = r.clk.Now()
	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO freeagency_periods
		   (id, season_number, status, auction_points, resign_started_at, bidding_started_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (season_number) DO NOTHING`),
		p.ID, p.SeasonNumber, p.Status, p.AuctionPoints, p.ResignStartedAt, p.BiddingStartedAt, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating period for season %d: %w", p.SeasonNumber, err)
	}
	if err := exactlyOne(res, store.ErrConflict); err != nil {
		return fmt.Errorf("creating period for season %d: %w", p.SeasonNumber, err)
	}
	return nil
}

func (r *PeriodRepo) GetBySeason(ctx context.Context, season int) (*store.Period, error) {
	var p store.Period
	err := sqlx.GetContext(ctx, r.db, &p, r.db.Rebind(
		`SELECT * FROM freeagency_periods WHERE season_number = ?`), season)
	if err != nil {
		return nil, fmt.Errorf("getting period for season %d: %w", season, notFound(err))
	}
	return &p, nil
}

func (r *PeriodRepo) Lock(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE freeagency_periods SET status = status WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("locking period %s: %w", id, err)
	}
	if err := exactlyOne(res, store.ErrNotFound); err != nil {
		return fmt.Errorf("locking period %s: %w", id, err)
	}
	return nil
}

// phaseColumn is the timestamp stamped when a period enters a status.
var phaseColumn = map[string]string{
	store.PeriodBidding:   "bidding_started_at",
	store.PeriodMatching:  "matching_started_at",
	store.PeriodCompleted: "completed_at",
}

func (r *PeriodRepo) Advance(ctx context.Context, id, from, to string, at time.Time) error {
	col, ok := phaseColumn[to]
	if !ok {
		return fmt.Errorf("advancing period to %q: unknown status", to)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE freeagency_periods SET status = ?, `+col+` = ? WHERE id = ? AND status = ?`),
		to, at, id, from)
	if err != nil {
		return fmt.Errorf("advancing period %s: %w", id, err)
	}
	if err := exactlyOne(res, store.ErrConflict); err != nil {
		return fmt.Errorf("advancing period %s from %s to %s: %w", id, from, to, err)
	}
	return nil
}

// ReSignRepo implements store.ReSignRepository with sqlx.
type ReSignRepo struct {
	db  sqlx.ExtContext
	clk clock.Clock
}

func (r *ReSignRepo) ListByPeriod(ctx context.Context, periodID string) ([]store.ReSign, error) {
	var rows []store.ReSign
	err := sqlx.SelectContext(ctx, r.db, &rows, r.db.Rebind(
		`SELECT * FROM freeagency_resigns WHERE period_id = ? ORDER BY team_id, created_at, id`), periodID)
	if err != nil {
		return nil, fmt.Errorf("listing re-signs: %w", err)
	}
	return rows, nil
}

func (r *ReSignRepo) ListByTeam(ctx context.Context, periodID, teamID string) ([]store.ReSign, error) {
	var rows []store.ReSign
	err := sqlx.SelectContext(ctx, r.db, &rows, r.db.Rebind(
		`SELECT * FROM freeagency_resigns WHERE period_id = ? AND team_id = ? ORDER BY created_at, id`),
		periodID, teamID)
	if err != nil {
		return nil, fmt.Errorf("listing team re-signs: %w", err)
	}
	return rows, nil
}

func (r *ReSignRepo) Replace(ctx context.Context, periodID, teamID string, playerIDs []string, confirmedAt *time.Time) error {
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(
		`DELETE FROM freeagency_resigns WHERE period_id = ? AND team_id = ?`), periodID, teamID); err != nil {
		return fmt.Errorf("clearing re-signs: %w", err)
	}
	q := r.db.Rebind(`INSERT INTO freeagency_resigns
		(id, period_id, team_id, player_id, confirmed, confirmed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	now := r.clk.Now()
	insert := func(playerID *string) error {
		_, err := r.db.ExecContext(ctx, q, newID(), periodID, teamID, playerID, confirmedAt != nil, confirmedAt, now)
		if err != nil {
			return fmt.Errorf("inserting re-sign: %w", err)
		}
		return nil
	}
	if len(playerIDs) == 0 {
		return insert(nil)
	}
	for _, pid := range slices.Compact(slices.Sorted(slices.Values(playerIDs))) {
		if err := insert(&pid); err != nil {
			return err
		}
	}
	return nil
}

func (r *ReSignRepo) SetConfirmed(ctx context.Context, periodID, teamID string, confirmedAt *time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE freeagency_resigns SET confirmed = ?, confirmed_at = ? WHERE period_id = ? AND team_id = ?`),
		confirmedAt != nil, confirmedAt, periodID, teamID)
	if err != nil {
		return fmt.Errorf("updating re-sign confirmation: %w", err)
	}
	return nil
}

// BidRepo implements store.BidRepository with sqlx.
type BidRepo struct {
	db  sqlx.ExtContext
	clk clock.Clock
}

func (r *BidRepo) Upsert(ctx context.Context, b *store.Bid) error {
	err := sqlx.GetContext(ctx, r.db, &b.ID, r.db.Rebind(
		`INSERT INTO freeagency_bids (id, period_id, team_id, player_id, bid_amount, status, placed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (period_id, team_id, player_id) DO UPDATE SET
		   bid_amount = excluded.bid_amount,
		   status = excluded.status,
		   placed_at = excluded.placed_at,
		   updated_at = excluded.updated_at
		 RETURNING id`),
		newID(), b.PeriodID, b.TeamID, b.PlayerID, b.Amount, b.Status, b.PlacedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting bid: %w", err)
	}
	return nil
}

func (r *BidRepo) Get(ctx context.Context, periodID, teamID, playerID string) (*store.Bid, error) {
	var b store.Bid
	err := sqlx.GetContext(ctx, r.db, &b, r.db.Rebind(
		`SELECT * FROM freeagency_bids WHERE period_id = ? AND team_id = ? AND player_id = ?`),
		periodID, teamID, playerID)
	if err != nil {
		return nil, fmt.Errorf("getting bid: %w", notFound(err))
	}
	return &b, nil
}

func (r *BidRepo) ListByPeriod(ctx context.Context, periodID string) ([]store.Bid, error) {
	var bids []store.Bid
	err := sqlx.SelectContext(ctx, r.db, &bids, r.db.Rebind(
		`SELECT * FROM freeagency_bids WHERE period_id = ?
		 ORDER BY player_id, bid_amount DESC, placed_at, id`), periodID)
	if err != nil {
		return nil, fmt.Errorf("listing bids: %w", err)
	}
	return bids, nil
}

func (r *BidRepo) ListByTeam(ctx context.Context, periodID, teamID string) ([]store.Bid, error) {
	var bids []store.Bid
	err := sqlx.SelectContext(ctx, r.db, &bids, r.db.Rebind(
		`SELECT * FROM freeagency_bids WHERE period_id = ? AND team_id = ? ORDER BY placed_at, id`),
		periodID, teamID)
	if err != nil {
		return nil, fmt.Errorf("listing team bids: %w", err)
	}
	return bids, nil
}

func (r *BidRepo) SumActive(ctx context.Context, periodID, teamID, excludePlayerID string) (int, error) {
	var total int
	err := sqlx.GetContext(ctx, r.db, &total, r.db.Rebind(
		`SELECT COALESCE(SUM(bid_amount), 0) FROM freeagency_bids
		 WHERE period_id = ? AND team_id = ? AND status = ? AND player_id <> ?`),
		periodID, teamID, store.BidActive, excludePlayerID)
	if err != nil {
		return 0, fmt.Errorf("summing active bids: %w", err)
	}
	return total, nil
}

func (r *BidRepo) SetStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE freeagency_bids SET status = ?, updated_at = ? WHERE id = ?`),
		status, r.clk.Now(), id)
	if err != nil {
		return fmt.Errorf("setting bid status: %w", err)
	}
	if err := exactlyOne(res, store.ErrNotFound); err != nil {
		return fmt.Errorf("setting status of bid %s: %w", id, err)
	}
	return nil
}

func (r *BidRepo) Delete(ctx context.Context, periodID, teamID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(
		`DELETE FROM freeagency_bids WHERE period_id = ? AND team_id = ? AND id IN (?)`,
		periodID, teamID, ids)
	if err != nil {
		return 0, fmt.Errorf("building bid delete: %w", err)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("deleting bids: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *BidRepo) DeleteByPeriod(ctx context.Context, periodID string) (int, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM freeagency_bids WHERE period_id = ?`), periodID)
	if err != nil {
		return 0, fmt.Errorf("deleting period bids: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ResultRepo implements store.ResultRepository with sqlx.
type ResultRepo struct {
	db sqlx.ExtContext
}

func (r *ResultRepo) Create(ctx context.Context, res *store.Result) error {
	if res.ID == "" {
		res.ID = newID()
	}
	out, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO freeagency_results
		   (id, period_id, player_id, original_team_id, winning_team_id, winning_bid, matched,
		    compensation_band, compensation_pick_id, confirmed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (period_id, player_id) DO NOTHING`),
		res.ID, res.PeriodID, res.PlayerID, res.OriginalTeamID, res.WinningTeamID, res.WinningBid,
		res.Matched, res.CompensationBand, res.CompensationPickID, res.ConfirmedAt)
	if err != nil {
		return fmt.Errorf("creating result: %w", err)
	}
	if err := exactlyOne(out, store.ErrConflict); err != nil {
		return fmt.Errorf("creating result for player %s: %w", res.PlayerID, err)
	}
	return nil
}

func (r *ResultRepo) ListByPeriod(ctx context.Context, periodID string) ([]store.Result, error) {
	var results []store.Result
	err := sqlx.SelectContext(ctx, r.db, &results, r.db.Rebind(
		`SELECT * FROM freeagency_results WHERE period_id = ? ORDER BY original_team_id, player_id`), periodID)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	return results, nil
}

func (r *ResultRepo) ListByOriginalTeam(ctx context.Context, periodID, teamID string) ([]store.Result, error) {
	var results []store.Result
	err := sqlx.SelectContext(ctx, r.db, &results, r.db.Rebind(
		`SELECT * FROM freeagency_results WHERE period_id = ? AND original_team_id = ? ORDER BY player_id`),
		periodID, teamID)
	if err != nil {
		return nil, fmt.Errorf("listing team results: %w", err)
	}
	return results, nil
}

func (r *ResultRepo) Update(ctx context.Context, res *store.Result) error {
	out, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE freeagency_results
		 SET matched = ?, compensation_band = ?, compensation_pick_id = ?, confirmed_at = ?
		 WHERE id = ?`),
		res.Matched, res.CompensationBand, res.CompensationPickID, res.ConfirmedAt, res.ID)
	if err != nil {
		return fmt.Errorf("updating result: %w", err)
	}
	if err := exactlyOne(out, store.ErrNotFound); err != nil {
		return fmt.Errorf("updating result %s: %w", res.ID, err)
	}
	return nil
}
