package event_test

import (
	"encoding/json"
	"testing"

	"github.com/jensholdgaard/footy-fa-bot/internal/event"
)

func TestNew(t *testing.T) {
	e := event.New("period-1", event.BidPlaced, "team-a", event.BidPlacedData{PlayerID: "p1", Amount: 120})

	if e.AggregateID != "period-1" || e.Type != event.BidPlaced || e.Actor != "team-a" {
		t.Fatalf("New() = %+v", e)
	}
	var d event.BidPlacedData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if d.PlayerID != "p1" || d.Amount != 120 {
		t.Errorf("payload = %+v, want p1/120", d)
	}
}

func TestNew_NilPayload(t *testing.T) {
	e := event.New("period-1", event.ResignEdited, "team-a", nil)
	if string(e.Data) != `{}` {
		t.Errorf("Data = %s, want {}", e.Data)
	}
}
