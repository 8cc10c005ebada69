package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/footy-fa-bot/internal/store"
)

// SeasonRepo implements store.SeasonRepository with sqlx.
type SeasonRepo struct {
	db sqlx.ExtContext
}

func (r *SeasonRepo) Current(ctx context.Context) (*store.Season, error) {
	var s store.Season
	err := sqlx.GetContext(ctx, r.db, &s, `SELECT * FROM seasons ORDER BY number DESC LIMIT 1`)
	if err != nil {
		return nil, fmt.Errorf("getting current season: %w", notFound(err))
	}
	return &s, nil
}

func (r *SeasonRepo) Upsert(ctx context.Context, s *store.Season) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO seasons (number, status) VALUES (?, ?)
		 ON CONFLICT (number) DO UPDATE SET status = excluded.status`),
		s.Number, s.Status)
	if err != nil {
		return fmt.Errorf("upserting season %d: %w", s.Number, err)
	}
	return nil
}

// TeamRepo implements store.TeamRepository with sqlx.
type TeamRepo struct {
	db sqlx.ExtContext
}

func (r *TeamRepo) Create(ctx context.Context, t *store.Team) error {
	if t.ID == "" {
		t.ID = newID()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO teams (id, name, channel_id, owner_discord_id) VALUES (?, ?, ?, ?)`),
		t.ID, t.Name, t.ChannelID, t.OwnerDiscordID)
	if err != nil {
		return fmt.Errorf("creating team %q: %w", t.Name, err)
	}
	return nil
}

func (r *TeamRepo) get(ctx context.Context, where string, arg any) (*store.Team, error) {
	var t store.Team
	err := sqlx.GetContext(ctx, r.db, &t, r.db.Rebind(`SELECT * FROM teams WHERE `+where+` = ? ORDER BY name, id LIMIT 1`), arg)
	if err != nil {
		return nil, fmt.Errorf("getting team by %s: %w", where, notFound(err))
	}
	return &t, nil
}

func (r *TeamRepo) GetByID(ctx context.Context, id string) (*store.Team, error) {
	return r.get(ctx, "id", id)
}

func (r *TeamRepo) GetByOwner(ctx context.Context, discordID string) (*store.Team, error) {
	return r.get(ctx, "owner_discord_id", discordID)
}

func (r *TeamRepo) GetByChannel(ctx context.Context, channelID string) (*store.Team, error) {
	return r.get(ctx, "channel_id", channelID)
}

func (r *TeamRepo) List(ctx context.Context) ([]store.Team, error) {
	var teams []store.Team
	if err := sqlx.SelectContext(ctx, r.db, &teams, `SELECT * FROM teams ORDER BY name, id`); err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	return teams, nil
}

func (r *TeamRepo) SetLadderPosition(ctx context.Context, season int, teamID string, position int) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO ladder_positions (season_number, team_id, position) VALUES (?, ?, ?)
		 ON CONFLICT (season_number, team_id) DO UPDATE SET position = excluded.position`),
		season, teamID, position)
	if err != nil {
		return fmt.Errorf("setting ladder position: %w", err)
	}
	return nil
}

func (r *TeamRepo) LadderPositions(ctx context.Context, season int) (map[string]int, error) {
	var rows []struct {
		TeamID   string `db:"team_id"`
		Position int    `db:"position"`
	}
	err := sqlx.SelectContext(ctx, r.db, &rows, r.db.Rebind(
		`SELECT team_id, position FROM ladder_positions WHERE season_number = ?`), season)
	if err != nil {
		return nil, fmt.Errorf("listing ladder positions: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.TeamID] = row.Position
	}
	return out, nil
}

// PlayerRepo implements store.PlayerRepository with sqlx.
type PlayerRepo struct {
	db sqlx.ExtContext
}

func (r *PlayerRepo) Create(ctx context.Context, p *store.Player) error {
	if p.ID == "" {
		p.ID = newID()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO players (id, name, position, age, overall_rating, team_id, contract_expiry)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.Name, p.Position, p.Age, p.OverallRating, p.TeamID, p.ContractExpiry)
	if err != nil {
		return fmt.Errorf("creating player %q: %w", p.Name, err)
	}
	return nil
}

func (r *PlayerRepo) GetByID(ctx context.Context, id string) (*store.Player, error) {
	var p store.Player
	err := sqlx.GetContext(ctx, r.db, &p, r.db.Rebind(`SELECT * FROM players WHERE id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("getting player %s: %w", id, notFound(err))
	}
	return &p, nil
}

func (r *PlayerRepo) ListExpiring(ctx context.Context, season int) ([]store.Player, error) {
	var players []store.Player
	err := sqlx.SelectContext(ctx, r.db, &players, r.db.Rebind(
		`SELECT * FROM players WHERE contract_expiry = ? AND team_id IS NOT NULL
		 ORDER BY overall_rating DESC, name, id`), season)
	if err != nil {
		return nil, fmt.Errorf("listing expiring players: %w", err)
	}
	return players, nil
}

func (r *PlayerRepo) Assign(ctx context.Context, id, teamID string, contractExpiry int) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE players SET team_id = ?, contract_expiry = ? WHERE id = ?`),
		teamID, contractExpiry, id)
	if err != nil {
		return fmt.Errorf("assigning player %s: %w", id, err)
	}
	if err := exactlyOne(res, store.ErrNotFound); err != nil {
		return fmt.Errorf("assigning player %s: %w", id, err)
	}
	return nil
}

// DraftRepo implements store.DraftRepository with sqlx.
type DraftRepo struct {
	db sqlx.ExtContext
}

func (r *DraftRepo) Create(ctx context.Context, d *store.Draft) error {
	if d.ID == "" {
		d.ID = newID()
	}
	if d.Current {
		if _, err := r.db.ExecContext(ctx, `UPDATE drafts SET is_current = false WHERE is_current`); err != nil {
			return fmt.Errorf("clearing current draft: %w", err)
		}
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO drafts (id, name, season_number, is_current) VALUES (?, ?, ?, ?)`),
		d.ID, d.Name, d.SeasonNumber, d.Current)
	if err != nil {
		return fmt.Errorf("creating draft %q: %w", d.Name, err)
	}
	return nil
}

func (r *DraftRepo) Current(ctx context.Context) (*store.Draft, error) {
	var d store.Draft
	err := sqlx.GetContext(ctx, r.db, &d, `SELECT * FROM drafts WHERE is_current LIMIT 1`)
	if err != nil {
		return nil, fmt.Errorf("getting current draft: %w", notFound(err))
	}
	return &d, nil
}

func (r *DraftRepo) ListPicks(ctx context.Context, draftID string) ([]store.DraftPick, error) {
	var picks []store.DraftPick
	err := sqlx.SelectContext(ctx, r.db, &picks, r.db.Rebind(
		`SELECT * FROM draft_picks WHERE draft_id = ? ORDER BY pick_number`), draftID)
	if err != nil {
		return nil, fmt.Errorf("listing picks: %w", err)
	}
	return picks, nil
}

// ShiftFrom renumbers through negative values so the (draft_id, pick_number)
// unique constraint holds after every row update.
func (r *DraftRepo) ShiftFrom(ctx context.Context, draftID string, from int) error {
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE draft_picks SET pick_number = -(pick_number + 1) WHERE draft_id = ? AND pick_number >= ?`),
		draftID, from); err != nil {
		return fmt.Errorf("shifting picks: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE draft_picks SET pick_number = -pick_number WHERE draft_id = ? AND pick_number < 0`),
		draftID); err != nil {
		return fmt.Errorf("shifting picks: %w", err)
	}
	return nil
}

func (r *DraftRepo) InsertPick(ctx context.Context, p *store.DraftPick) error {
	if p.ID == "" {
		p.ID = newID()
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO draft_picks (id, draft_id, round_number, pick_number, pick_origin, original_team_id, current_team_id, player_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (draft_id, pick_number) DO NOTHING`),
		p.ID, p.DraftID, p.RoundNumber, p.PickNumber, p.PickOrigin, p.OriginalTeamID, p.CurrentTeamID, p.PlayerID)
	if err != nil {
		return fmt.Errorf("inserting pick %d: %w", p.PickNumber, err)
	}
	if err := exactlyOne(res, store.ErrConflict); err != nil {
		return fmt.Errorf("inserting pick %d into draft %s: %w", p.PickNumber, p.DraftID, err)
	}
	return nil
}

// ReferenceRepo implements store.ReferenceRepository with sqlx.
type ReferenceRepo struct {
	db sqlx.ExtContext
}

func (r *ReferenceRepo) ContractRules(ctx context.Context) ([]store.ContractRule, error) {
	var rules []store.ContractRule
	if err := sqlx.SelectContext(ctx, r.db, &rules, `SELECT * FROM contract_config ORDER BY min_age`); err != nil {
		return nil, fmt.Errorf("loading contract config: %w", err)
	}
	return rules, nil
}

func (r *ReferenceRepo) CompensationRules(ctx context.Context) ([]store.CompensationRule, error) {
	var rules []store.CompensationRule
	err := sqlx.SelectContext(ctx, r.db, &rules,
		`SELECT * FROM compensation_chart ORDER BY compensation_band, min_age, min_ovr`)
	if err != nil {
		return nil, fmt.Errorf("loading compensation chart: %w", err)
	}
	return rules, nil
}

func (r *ReferenceRepo) DraftValues(ctx context.Context) ([]store.DraftValue, error) {
	var values []store.DraftValue
	if err := sqlx.SelectContext(ctx, r.db, &values, `SELECT * FROM draft_value_index ORDER BY pick_number`); err != nil {
		return nil, fmt.Errorf("loading draft value index: %w", err)
	}
	return values, nil
}

func (r *ReferenceRepo) ReplaceContractRules(ctx context.Context, rules []store.ContractRule) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM contract_config`); err != nil {
		return fmt.Errorf("clearing contract config: %w", err)
	}
	q := r.db.Rebind(`INSERT INTO contract_config (min_age, max_age, contract_years) VALUES (?, ?, ?)`)
	for _, rule := range rules {
		if _, err := r.db.ExecContext(ctx, q, rule.MinAge, rule.MaxAge, rule.Years); err != nil {
			return fmt.Errorf("inserting contract rule: %w", err)
		}
	}
	return nil
}

func (r *ReferenceRepo) ReplaceCompensationRules(ctx context.Context, rules []store.CompensationRule) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM compensation_chart`); err != nil {
		return fmt.Errorf("clearing compensation chart: %w", err)
	}
	q := r.db.Rebind(`INSERT INTO compensation_chart (min_age, max_age, min_ovr, max_ovr, compensation_band)
		VALUES (?, ?, ?, ?, ?)`)
	for _, rule := range rules {
		if _, err := r.db.ExecContext(ctx, q, rule.MinAge, rule.MaxAge, rule.MinOVR, rule.MaxOVR, rule.Band); err != nil {
			return fmt.Errorf("inserting compensation rule: %w", err)
		}
	}
	return nil
}

func (r *ReferenceRepo) ReplaceDraftValues(ctx context.Context, values []store.DraftValue) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM draft_value_index`); err != nil {
		return fmt.Errorf("clearing draft value index: %w", err)
	}
	q := r.db.Rebind(`INSERT INTO draft_value_index (pick_number, points) VALUES (?, ?)`)
	for _, v := range values {
		if _, err := r.db.ExecContext(ctx, q, v.PickNumber, v.Points); err != nil {
			return fmt.Errorf("inserting draft value: %w", err)
		}
	}
	return nil
}
