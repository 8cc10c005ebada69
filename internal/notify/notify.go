// Package notify delivers embeds to team inboxes and the league log channels.
// Delivery is best-effort: callers log failures and carry on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoChannel is returned when a ChannelRef resolves to no channel.
var ErrNoChannel = errors.New("no channel configured")

// ChannelKind selects where an embed is delivered.
type ChannelKind string

const (
	KindTeam        ChannelKind = "team"
	KindAuctionsLog ChannelKind = "auctions_log"
	KindBotLogs     ChannelKind = "bot_logs"
)

// ChannelRef addresses a delivery target. ChannelID and TeamID are only set
// for team inboxes; log channels are resolved by the sink.
type ChannelRef struct {
	Kind      ChannelKind `json:"kind"`
	TeamID    string      `json:"team_id,omitempty"`
	ChannelID string      `json:"channel_id,omitempty"`
}

// Team addresses a team's registered inbox channel.
func Team(teamID, channelID string) ChannelRef {
	return ChannelRef{Kind: KindTeam, TeamID: teamID, ChannelID: channelID}
}

// AuctionsLog addresses the phase results log.
func AuctionsLog() ChannelRef { return ChannelRef{Kind: KindAuctionsLog} }

// BotLogs addresses the fine-grained user action log.
func BotLogs() ChannelRef { return ChannelRef{Kind: KindBotLogs} }

func (r ChannelRef) String() string {
	if r.Kind == KindTeam {
		return fmt.Sprintf("team:%s", r.TeamID)
	}
	return string(r.Kind)
}

// Embed colours.
const (
	ColorInfo    = 0x3498DB
	ColorSuccess = 0x2ECC71
	ColorWarning = 0xF1C40F
	ColorDanger  = 0xE74C3C
)

// MaxOptions is the most options one select menu may carry. Select actions
// with more are split into pages of MaxOptions.
const MaxOptions = 25

// MaxSelectPages is how many menus one select action may span. Discord
// allows five rows per message and the buttons take one.
const MaxSelectPages = 4

// MaxSelectable is the most options a select action can offer.
const MaxSelectable = MaxOptions * MaxSelectPages

// pageSep joins a select action's custom ID and its page number.
const pageSep = "#"

// PageCount is the number of menus opts needs, at most MaxSelectPages.
func PageCount(opts []Option) int {
	return min(max((len(opts)+MaxOptions-1)/MaxOptions, 1), MaxSelectPages)
}

// Page returns the options shown on page k of a select action.
func Page(opts []Option, k int) []Option {
	lo := k * MaxOptions
	if k < 0 || lo >= len(opts) || k >= MaxSelectPages {
		return nil
	}
	return opts[lo:min(lo+MaxOptions, len(opts))]
}

// PageID is the custom ID of page k. Page 0 keeps the action's own ID.
func PageID(customID string, k int) string {
	if k == 0 {
		return customID
	}
	return customID + pageSep + strconv.Itoa(k)
}

// ParsePageID splits a component custom ID into the action ID and page.
// IDs without a valid page suffix are page 0.
func ParsePageID(id string) (string, int) {
	base, suffix, ok := strings.Cut(id, pageSep)
	if !ok {
		return id, 0
	}
	k, err := strconv.Atoi(suffix)
	if err != nil || k < 0 {
		return id, 0
	}
	return base, k
}

// Embed is a platform-neutral rich message.
type Embed struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Color       int      `json:"color,omitempty"`
	Fields      []Field  `json:"fields,omitempty"`
	Footer      string   `json:"footer,omitempty"`
	Actions     []Action `json:"actions,omitempty"`
}

// Field is a titled block of embed text.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// ActionKind is the kind of interactive control.
type ActionKind string

const (
	ActionSelect ActionKind = "select"
	ActionButton ActionKind = "button"
)

// ButtonStyle is the visual weight of a button.
type ButtonStyle string

const (
	StylePrimary   ButtonStyle = "primary"
	StyleSecondary ButtonStyle = "secondary"
	StyleDanger    ButtonStyle = "danger"
)

// Action is an interactive control attached to an embed. CustomID routes
// the user's interaction back to a handler.
type Action struct {
	Kind        ActionKind  `json:"kind"`
	CustomID    string      `json:"custom_id"`
	Label       string      `json:"label,omitempty"`
	Placeholder string      `json:"placeholder,omitempty"`
	Style       ButtonStyle `json:"style,omitempty"`
	Options     []Option    `json:"options,omitempty"`
	MinValues   int         `json:"min_values,omitempty"`
	MaxValues   int         `json:"max_values,omitempty"`
	Disabled    bool        `json:"disabled,omitempty"`
}

// Option is one choice of a select action.
type Option struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
	Default     bool   `json:"default,omitempty"`
}

// Notifier dispatches an embed to a channel.
type Notifier interface {
	Dispatch(ctx context.Context, to ChannelRef, e Embed) error
}

// Multi fans a dispatch out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Dispatch(ctx context.Context, to ChannelRef, e Embed) error {
	var errs []error
	for _, n := range m {
		if err := n.Dispatch(ctx, to, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every embed.
type Nop struct{}

func (Nop) Dispatch(context.Context, ChannelRef, Embed) error { return nil }
