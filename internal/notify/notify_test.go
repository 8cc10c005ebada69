package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/jensholdgaard/footy-fa-bot/internal/clock"
	"github.com/jensholdgaard/footy-fa-bot/internal/notify"
)

type fakeSender struct {
	channels []string
	msgs     []*discordgo.MessageSend
	err      error
}

func (f *fakeSender) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.channels = append(f.channels, channelID)
	f.msgs = append(f.msgs, data)
	return &discordgo.Message{ChannelID: channelID}, nil
}

func TestDiscord_Resolve(t *testing.T) {
	tests := []struct {
		name    string
		to      notify.ChannelRef
		want    string
		wantErr error
	}{
		{name: "team inbox", to: notify.Team("t1", "chan-t1"), want: "chan-t1"},
		{name: "auctions log", to: notify.AuctionsLog(), want: "auctions"},
		{name: "bot logs", to: notify.BotLogs(), want: "botlogs"},
		{name: "team without channel", to: notify.Team("t2", ""), wantErr: notify.ErrNoChannel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			d := notify.NewDiscord(sender, "auctions", "botlogs")
			err := d.Dispatch(context.Background(), tt.to, notify.Embed{Title: "hello"})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Dispatch: %v", err)
			}
			if len(sender.channels) != 1 || sender.channels[0] != tt.want {
				t.Errorf("sent to %v, want [%s]", sender.channels, tt.want)
			}
		})
	}
}

func TestDiscord_SendError(t *testing.T) {
	sender := &fakeSender{err: errors.New("rate limited")}
	d := notify.NewDiscord(sender, "auctions", "")
	if err := d.Dispatch(context.Background(), notify.AuctionsLog(), notify.Embed{}); err == nil {
		t.Fatal("expected error")
	}
	if err := d.Dispatch(context.Background(), notify.BotLogs(), notify.Embed{}); !errors.Is(err, notify.ErrNoChannel) {
		t.Errorf("unconfigured bot logs err = %v, want ErrNoChannel", err)
	}
}

func TestMessageEmbed(t *testing.T) {
	me := notify.MessageEmbed(notify.Embed{
		Title:       "Winning bids",
		Description: "Season 9",
		Color:       notify.ColorInfo,
		Fields:      []notify.Field{{Name: "A", Value: "1", Inline: true}},
		Footer:      "300 points",
	})
	if me.Title != "Winning bids" || me.Color != notify.ColorInfo {
		t.Errorf("embed = %+v", me)
	}
	if len(me.Fields) != 1 || !me.Fields[0].Inline {
		t.Errorf("fields = %+v", me.Fields)
	}
	if me.Footer == nil || me.Footer.Text != "300 points" {
		t.Errorf("footer = %+v", me.Footer)
	}
	if notify.MessageEmbed(notify.Embed{}).Footer != nil {
		t.Error("empty footer should be omitted")
	}
}

func TestComponents(t *testing.T) {
	var opts []notify.Option
	for i := range 30 {
		opts = append(opts, notify.Option{Label: fmt.Sprint(i), Value: fmt.Sprint(i)})
	}
	actions := []notify.Action{
		{Kind: notify.ActionSelect, CustomID: "sel", Placeholder: "Pick", Options: opts, MaxValues: 40},
		{Kind: notify.ActionButton, CustomID: "b1", Label: "Confirm"},
		{Kind: notify.ActionButton, CustomID: "b2", Label: "Edit", Style: notify.StyleSecondary},
	}
	rows := notify.Components(actions)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	tests := []struct {
		row       int
		customID  string
		options   int
		maxValues int
		first     string
	}{
		{0, "sel", notify.MaxOptions, notify.MaxOptions, "0"},
		{1, "sel#1", 5, 5, "25"},
	}
	for _, tt := range tests {
		menu := rows[tt.row].(discordgo.ActionsRow).Components[0].(discordgo.SelectMenu)
		if menu.CustomID != tt.customID {
			t.Errorf("row %d CustomID = %q, want %q", tt.row, menu.CustomID, tt.customID)
		}
		if len(menu.Options) != tt.options {
			t.Errorf("row %d has %d options, want %d", tt.row, len(menu.Options), tt.options)
		}
		if menu.MaxValues != tt.maxValues {
			t.Errorf("row %d MaxValues = %d, want %d", tt.row, menu.MaxValues, tt.maxValues)
		}
		if menu.MinValues == nil || *menu.MinValues != 0 {
			t.Errorf("row %d MinValues = %v, want 0", tt.row, menu.MinValues)
		}
		if menu.Options[0].Value != tt.first {
			t.Errorf("row %d starts at %q, want %q", tt.row, menu.Options[0].Value, tt.first)
		}
	}
	if menu := rows[1].(discordgo.ActionsRow).Components[0].(discordgo.SelectMenu); menu.Placeholder != "Pick (2/2)" {
		t.Errorf("placeholder = %q", menu.Placeholder)
	}

	buttons := rows[2].(discordgo.ActionsRow).Components
	if len(buttons) != 2 {
		t.Fatalf("button row has %d buttons, want 2", len(buttons))
	}
	if b := buttons[1].(discordgo.Button); b.Style != discordgo.SecondaryButton {
		t.Errorf("style = %v, want secondary", b.Style)
	}
}

func TestComponents_SelectPageCap(t *testing.T) {
	var opts []notify.Option
	for i := range notify.MaxSelectable + 20 {
		opts = append(opts, notify.Option{Label: fmt.Sprint(i), Value: fmt.Sprint(i)})
	}
	rows := notify.Components([]notify.Action{
		{Kind: notify.ActionSelect, CustomID: "sel", Options: opts, MaxValues: len(opts)},
		{Kind: notify.ActionButton, CustomID: "ok", Label: "Confirm"},
	})
	if len(rows) != notify.MaxSelectPages+1 {
		t.Fatalf("got %d rows, want %d", len(rows), notify.MaxSelectPages+1)
	}
	last := rows[notify.MaxSelectPages-1].(discordgo.ActionsRow).Components[0].(discordgo.SelectMenu)
	if got := last.Options[len(last.Options)-1].Value; got != fmt.Sprint(notify.MaxSelectable-1) {
		t.Errorf("last selectable option = %q, want %d", got, notify.MaxSelectable-1)
	}
	if _, ok := rows[notify.MaxSelectPages].(discordgo.ActionsRow).Components[0].(discordgo.Button); !ok {
		t.Error("button row was pushed out by select menus")
	}
}

func TestPaging(t *testing.T) {
	opts := make([]notify.Option, 60)
	for i := range opts {
		opts[i].Value = fmt.Sprint(i)
	}
	tests := []struct {
		n     int
		pages int
	}{
		{0, 1},
		{1, 1},
		{25, 1},
		{26, 2},
		{60, 3},
		{notify.MaxSelectable + 1, notify.MaxSelectPages},
	}
	for _, tt := range tests {
		if got := notify.PageCount(make([]notify.Option, tt.n)); got != tt.pages {
			t.Errorf("PageCount(%d options) = %d, want %d", tt.n, got, tt.pages)
		}
	}

	if p := notify.Page(opts, 2); len(p) != 10 || p[0].Value != "50" {
		t.Errorf("Page(2) = %v", p)
	}
	for _, k := range []int{-1, 3, notify.MaxSelectPages} {
		if p := notify.Page(opts, k); p != nil {
			t.Errorf("Page(%d) = %v, want nil", k, p)
		}
	}
}

func TestParsePageID(t *testing.T) {
	for k := range notify.MaxSelectPages {
		id := notify.PageID("fa/match/select", k)
		base, page := notify.ParsePageID(id)
		if base != "fa/match/select" || page != k {
			t.Errorf("ParsePageID(%q) = %q, %d", id, base, page)
		}
	}
	tests := []struct {
		id   string
		base string
		page int
	}{
		{"fa/match/select", "fa/match/select", 0},
		{"fa/match/select#x", "fa/match/select#x", 0},
		{"fa/match/select#-2", "fa/match/select#-2", 0},
		{"fa/match/select#", "fa/match/select#", 0},
	}
	for _, tt := range tests {
		base, page := notify.ParsePageID(tt.id)
		if base != tt.base || page != tt.page {
			t.Errorf("ParsePageID(%q) = %q, %d; want %q, %d", tt.id, base, page, tt.base, tt.page)
		}
	}
}

func TestComponents_ButtonOverflow(t *testing.T) {
	var actions []notify.Action
	for i := range 7 {
		actions = append(actions, notify.Action{Kind: notify.ActionButton, CustomID: fmt.Sprint(i)})
	}
	rows := notify.Components(actions)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if n := len(rows[0].(discordgo.ActionsRow).Components); n != 5 {
		t.Errorf("first row has %d buttons, want 5", n)
	}
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return &jetstream.PubAck{Stream: "FABOT_NOTIFICATIONS", Sequence: uint64(len(f.subjects))}, nil
}

func TestNATS_Dispatch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub := &fakePublisher{}
	n := notify.NewNATS(pub, "fabot.events", clock.NewMock(now))

	if err := n.Dispatch(context.Background(), notify.Team("t1", "c1"), notify.Embed{Title: "Re-sign"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(pub.subjects) != 1 || pub.subjects[0] != "fabot.events.team" {
		t.Fatalf("subjects = %v", pub.subjects)
	}
	var msg notify.Message
	if err := json.Unmarshal(pub.payloads[0], &msg); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if msg.To.TeamID != "t1" || msg.Embed.Title != "Re-sign" || !msg.SentAt.Equal(now) {
		t.Errorf("message = %+v", msg)
	}

	pub.err = errors.New("no responders")
	if err := n.Dispatch(context.Background(), notify.AuctionsLog(), notify.Embed{}); err == nil {
		t.Error("expected publish error")
	}
}

func TestMulti(t *testing.T) {
	ok := &notify.Capture{}
	failing := &notify.Capture{Err: errors.New("down")}
	m := notify.Multi{failing, ok}

	err := m.Dispatch(context.Background(), notify.BotLogs(), notify.Embed{Title: "x"})
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(ok.Sent()) != 1 || len(failing.Sent()) != 1 {
		t.Errorf("every notifier should be tried: ok=%d failing=%d", len(ok.Sent()), len(failing.Sent()))
	}
}

func TestCapture_To(t *testing.T) {
	c := &notify.Capture{}
	ctx := context.Background()
	_ = c.Dispatch(ctx, notify.Team("a", "ca"), notify.Embed{Title: "1"})
	_ = c.Dispatch(ctx, notify.Team("b", "cb"), notify.Embed{Title: "2"})
	_ = c.Dispatch(ctx, notify.AuctionsLog(), notify.Embed{Title: "3"})

	if got := c.To(notify.Team("a", "ca")); len(got) != 1 || got[0].Title != "1" {
		t.Errorf("To(team a) = %+v", got)
	}
	c.Reset()
	if len(c.Sent()) != 0 {
		t.Error("Reset did not clear")
	}
}
