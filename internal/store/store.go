package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional write finds the row in an unexpected state.
var ErrConflict = errors.New("conflicting update")

// Season statuses.
const (
	SeasonActive    = "active"
	SeasonOffseason = "offseason"
	SeasonCompleted = "completed"
)

// Free agency period statuses, in lifecycle order.
const (
	PeriodResign    = "resign"
	PeriodBidding   = "bidding"
	PeriodMatching  = "matching"
	PeriodCompleted = "completed"
)

// Bid statuses.
const (
	BidActive    = "active"
	BidOutbid    = "outbid"
	BidWinning   = "winning"
	BidWithdrawn = "withdrawn"
)

// Season is a league season as reported by the season clock.
type Season struct {
	Number int    `db:"number"`
	Status string `db:"status"`
}

// Team is a league club with its registered inbox channel.
type Team struct {
	ID             string `db:"id"`
	Name           string `db:"name"`
	ChannelID      string `db:"channel_id"`
	OwnerDiscordID string `db:"owner_discord_id"`
}

// Player is the subset of player data free agency works with.
type Player struct {
	ID             string  `db:"id"`
	Name           string  `db:"name"`
	Position       string  `db:"position"`
	Age            int     `db:"age"`
	OverallRating  int     `db:"overall_rating"`
	TeamID         *string `db:"team_id"`
	ContractExpiry int     `db:"contract_expiry"`
}

// OwnedBy reports whether the player belongs to teamID.
func (p Player) OwnedBy(teamID string) bool {
	return p.TeamID != nil && *p.TeamID == teamID
}

// Period is one free agency cycle; at most one exists per season.
type Period struct {
	ID                string     `db:"id"`
	SeasonNumber      int        `db:"season_number"`
	Status            string     `db:"status"`
	AuctionPoints     int        `db:"auction_points"`
	ResignStartedAt   *time.Time `db:"resign_started_at"`
	BiddingStartedAt  *time.Time `db:"bidding_started_at"`
	MatchingStartedAt *time.Time `db:"matching_started_at"`
	CompletedAt       *time.Time `db:"completed_at"`
	CreatedAt         time.Time  `db:"created_at"`
}

// ReSign is a team's free re-sign selection row. A nil PlayerID marks a
// confirmed selection of zero players.
type ReSign struct {
	ID          string     `db:"id"`
	PeriodID    string     `db:"period_id"`
	TeamID      string     `db:"team_id"`
	PlayerID    *string    `db:"player_id"`
	Confirmed   bool       `db:"confirmed"`
	ConfirmedAt *time.Time `db:"confirmed_at"`
	CreatedAt   time.Time  `db:"created_at"`
}

// Bid is a team's bid on an expiring player.
type Bid struct {
	ID        string    `db:"id"`
	PeriodID  string    `db:"period_id"`
	TeamID    string    `db:"team_id"`
	PlayerID  string    `db:"player_id"`
	Amount    int       `db:"bid_amount"`
	Status    string    `db:"status"`
	PlacedAt  time.Time `db:"placed_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Result is the outcome of bidding for one expiring player.
type Result struct {
	ID                 string     `db:"id"`
	PeriodID           string     `db:"period_id"`
	PlayerID           string     `db:"player_id"`
	OriginalTeamID     string     `db:"original_team_id"`
	WinningTeamID      *string    `db:"winning_team_id"`
	WinningBid         *int       `db:"winning_bid"`
	Matched            bool       `db:"matched"`
	CompensationBand   *int       `db:"compensation_band"`
	CompensationPickID *string    `db:"compensation_pick_id"`
	ConfirmedAt        *time.Time `db:"confirmed_at"`
}

// Draft is a draft order; at most one is flagged current.
type Draft struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	SeasonNumber int    `db:"season_number"`
	Current      bool   `db:"is_current"`
}

// DraftPick is a slot in a draft order. PickNumber is the overall position.
type DraftPick struct {
	ID             string  `db:"id"`
	DraftID        string  `db:"draft_id"`
	RoundNumber    int     `db:"round_number"`
	PickNumber     int     `db:"pick_number"`
	PickOrigin     string  `db:"pick_origin"`
	OriginalTeamID string  `db:"original_team_id"`
	CurrentTeamID  string  `db:"current_team_id"`
	PlayerID       *string `db:"player_id"`
}

// ContractRule maps an age range to a contract length in seasons.
type ContractRule struct {
	MinAge int  `db:"min_age"`
	MaxAge *int `db:"max_age"`
	Years  int  `db:"contract_years"`
}

// CompensationRule maps an age × rating box to a compensation band.
// A nil upper bound means the range is the single lower value.
type CompensationRule struct {
	MinAge int  `db:"min_age"`
	MaxAge *int `db:"max_age"`
	MinOVR int  `db:"min_ovr"`
	MaxOVR *int `db:"max_ovr"`
	Band   int  `db:"compensation_band"`
}

// DraftValue is the trade value of an overall pick number.
type DraftValue struct {
	PickNumber int `db:"pick_number"`
	Points     int `db:"points"`
}

// SeasonRepository is the season clock.
type SeasonRepository interface {
	Current(ctx context.Context) (*Season, error)
	Upsert(ctx context.Context, s *Season) error
}

// TeamRepository defines team persistence operations.
type TeamRepository interface {
	Create(ctx context.Context, t *Team) error
	GetByID(ctx context.Context, id string) (*Team, error)
	GetByOwner(ctx context.Context, discordID string) (*Team, error)
	GetByChannel(ctx context.Context, channelID string) (*Team, error)
	List(ctx context.Context) ([]Team, error)
	SetLadderPosition(ctx context.Context, season int, teamID string, position int) error
	// LadderPositions returns finishing positions keyed by team ID.
	LadderPositions(ctx context.Context, season int) (map[string]int, error)
}

// PlayerRepository defines player persistence operations.
type PlayerRepository interface {
	Create(ctx context.Context, p *Player) error
	GetByID(ctx context.Context, id string) (*Player, error)
	// ListExpiring returns players with contract_expiry = season and a team.
	ListExpiring(ctx context.Context, season int) ([]Player, error)
	// Assign sets a player's team and contract expiry.
	Assign(ctx context.Context, id, teamID string, contractExpiry int) error
}

// PeriodRepository defines free agency period persistence operations.
type PeriodRepository interface {
	Create(ctx context.Context, p *Period) error
	GetBySeason(ctx context.Context, season int) (*Period, error)
	// Lock takes a write lock on the period row for the rest of the
	// transaction, serialising writers of the same period.
	Lock(ctx context.Context, id string) error
	// Advance moves the period from one status to another, stamping the phase
	// timestamp. It returns ErrConflict if the period is not in status from.
	Advance(ctx context.Context, id, from, to string, at time.Time) error
}

// ReSignRepository defines re-sign selection persistence operations.
type ReSignRepository interface {
	ListByPeriod(ctx context.Context, periodID string) ([]ReSign, error)
	ListByTeam(ctx context.Context, periodID, teamID string) ([]ReSign, error)
	// Replace swaps the team's rows for one row per player (or a single
	// marker row when playerIDs is empty) with the given confirmation state.
	Replace(ctx context.Context, periodID, teamID string, playerIDs []string, confirmedAt *time.Time) error
	// SetConfirmed updates the confirmation state of all the team's rows.
	SetConfirmed(ctx context.Context, periodID, teamID string, confirmedAt *time.Time) error
}

// BidRepository defines bid persistence operations.
type BidRepository interface {
	// Upsert inserts or replaces the (period, team, player) bid and sets b.ID.
	Upsert(ctx context.Context, b *Bid) error
	Get(ctx context.Context, periodID, teamID, playerID string) (*Bid, error)
	ListByPeriod(ctx context.Context, periodID string) ([]Bid, error)
	ListByTeam(ctx context.Context, periodID, teamID string) ([]Bid, error)
	// SumActive totals the team's active bids, skipping any bid on excludePlayerID.
	SumActive(ctx context.Context, periodID, teamID, excludePlayerID string) (int, error)
	SetStatus(ctx context.Context, id, status string) error
	// Delete removes the team's bids with the given IDs and returns how many went.
	Delete(ctx context.Context, periodID, teamID string, ids []string) (int, error)
	DeleteByPeriod(ctx context.Context, periodID string) (int, error)
}

// ResultRepository defines free agency result persistence operations.
type ResultRepository interface {
	Create(ctx context.Context, r *Result) error
	ListByPeriod(ctx context.Context, periodID string) ([]Result, error)
	ListByOriginalTeam(ctx context.Context, periodID, teamID string) ([]Result, error)
	// Update writes matched, compensation and confirmation fields.
	Update(ctx context.Context, r *Result) error
}

// DraftRepository is the draft order store.
type DraftRepository interface {
	Create(ctx context.Context, d *Draft) error
	Current(ctx context.Context) (*Draft, error)
	// ListPicks returns the draft's picks ordered by pick number.
	ListPicks(ctx context.Context, draftID string) ([]DraftPick, error)
	// ShiftFrom adds one to every pick number >= from.
	ShiftFrom(ctx context.Context, draftID string, from int) error
	InsertPick(ctx context.Context, p *DraftPick) error
}

// ReferenceRepository serves the read-only configuration tables.
type ReferenceRepository interface {
	ContractRules(ctx context.Context) ([]ContractRule, error)
	CompensationRules(ctx context.Context) ([]CompensationRule, error)
	DraftValues(ctx context.Context) ([]DraftValue, error)
	// Replace* swap a whole table; used by imports and seeding.
	ReplaceContractRules(ctx context.Context, rules []ContractRule) error
	ReplaceCompensationRules(ctx context.Context, rules []CompensationRule) error
	ReplaceDraftValues(ctx context.Context, values []DraftValue) error
}
