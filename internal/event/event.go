package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	PeriodOpened  Type = "fa.period.opened"
	PhaseAdvanced Type = "fa.phase.advanced"

	ResignSelected  Type = "fa.resign.selected"
	ResignConfirmed Type = "fa.resign.confirmed"
	ResignEdited    Type = "fa.resign.edited"

	BidPlaced    Type = "fa.bid.placed"
	BidWithdrawn Type = "fa.bid.withdrawn"

	MatchSelected  Type = "fa.match.selected"
	MatchConfirmed Type = "fa.match.confirmed"
	MatchEdited    Type = "fa.match.edited"

	Settled Type = "fa.settled"
)

// ActorAdmin is recorded for admin commands.
const ActorAdmin = "admin"

// Event is a single audit record. AggregateID is the free agency period ID.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Actor       string          `json:"actor" db:"actor"`
	Data        json.RawMessage `json:"data" db:"data"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// PeriodOpenedData is the payload for PeriodOpened events.
type PeriodOpenedData struct {
	SeasonNumber  int    `json:"season_number"`
	Status        string `json:"status"`
	AuctionPoints int    `json:"auction_points"`
}

// PhaseAdvancedData is the payload for PhaseAdvanced events.
type PhaseAdvancedData struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SelectionData is the payload for re-sign and match selection events.
type SelectionData struct {
	PlayerIDs []string `json:"player_ids"`
}

// BidPlacedData is the payload for BidPlaced events.
type BidPlacedData struct {
	PlayerID string `json:"player_id"`
	Amount   int    `json:"amount"`
}

// BidWithdrawnData is the payload for BidWithdrawn events.
type BidWithdrawnData struct {
	BidIDs []string `json:"bid_ids"`
}

// SettledData is the payload for Settled events.
type SettledData struct {
	Transfers         int `json:"transfers"`
	Matched           int `json:"matched"`
	Unsold            int `json:"unsold"`
	CompensationPicks int `json:"compensation_picks"`
}

// New builds an event with a JSON encoded payload.
func New(aggregateID string, t Type, actor string, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil || payload == nil {
		data = json.RawMessage(`{}`)
	}
	return Event{
		AggregateID: aggregateID,
		Type:        t,
		Actor:       actor,
		Data:        data,
	}
}
