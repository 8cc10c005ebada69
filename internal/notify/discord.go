package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// MessageSender is the subset of *discordgo.Session used for delivery.
type MessageSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord delivers embeds as channel messages.
type Discord struct {
	sender      MessageSender
	auctionsLog string
	botLogs     string
}

// NewDiscord returns a Discord notifier. The log channel IDs may be empty,
// in which case log dispatches fail with ErrNoChannel.
func NewDiscord(sender MessageSender, auctionsLogChannel, botLogsChannel string) *Discord {
	return &Discord{sender: sender, auctionsLog: auctionsLogChannel, botLogs: botLogsChannel}
}

func (d *Discord) Dispatch(ctx context.Context, to ChannelRef, e Embed) error {
	channelID := d.resolve(to)
	if channelID == "" {
		return fmt.Errorf("dispatching to %s: %w", to, ErrNoChannel)
	}
	_, err := d.sender.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{MessageEmbed(e)},
		Components: Components(e.Actions),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("sending to channel %s: %w", channelID, err)
	}
	return nil
}

func (d *Discord) resolve(to ChannelRef) string {
	switch to.Kind {
	case KindTeam:
		return to.ChannelID
	case KindAuctionsLog:
		return d.auctionsLog
	case KindBotLogs:
		return d.botLogs
	}
	return ""
}

// MessageEmbed converts e to its Discord form. Actions are carried separately
// as components.
func MessageEmbed(e Embed) *discordgo.MessageEmbed {
	me := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		me.Fields = append(me.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.Footer != "" {
		me.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	return me
}

// maxButtonsPerRow is Discord's limit for one action row.
const maxButtonsPerRow = 5

// Components lays actions out as Discord action rows: one row per select
// menu, buttons packed into shared rows.
func Components(actions []Action) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	var buttons []discordgo.MessageComponent
	flush := func() {
		if len(buttons) > 0 {
			rows = append(rows, discordgo.ActionsRow{Components: buttons})
			buttons = nil
		}
	}
	for _, a := range actions {
		switch a.Kind {
		case ActionSelect:
			flush()
			for _, menu := range selectMenus(a) {
				rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{menu}})
			}
		case ActionButton:
			if len(buttons) == maxButtonsPerRow {
				flush()
			}
			buttons = append(buttons, discordgo.Button{
				CustomID: a.CustomID,
				Label:    a.Label,
				Style:    buttonStyle(a.Style),
				Disabled: a.Disabled,
			})
		}
	}
	flush()
	return rows
}

// selectMenus renders a select action as one menu per page. Each page
// reports only its own picks, so MaxValues is applied per page and the
// handler merges pages.
func selectMenus(a Action) []discordgo.MessageComponent {
	pages := PageCount(a.Options)
	menus := make([]discordgo.MessageComponent, 0, pages)
	for k := range pages {
		menu := discordgo.SelectMenu{
			MenuType:    discordgo.StringSelectMenu,
			CustomID:    PageID(a.CustomID, k),
			Placeholder: a.Placeholder,
			Disabled:    a.Disabled,
		}
		if pages > 1 {
			menu.Placeholder = fmt.Sprintf("%s (%d/%d)", a.Placeholder, k+1, pages)
		}
		for _, o := range Page(a.Options, k) {
			menu.Options = append(menu.Options, discordgo.SelectMenuOption{
				Label:       o.Label,
				Value:       o.Value,
				Description: o.Description,
				Default:     o.Default,
			})
		}
		minValues := min(a.MinValues, len(menu.Options))
		menu.MinValues = &minValues
		menu.MaxValues = min(max(a.MaxValues, 1), len(menu.Options))
		menus = append(menus, menu)
	}
	return menus
}

func buttonStyle(s ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case StyleSecondary:
		return discordgo.SecondaryButton
	case StyleDanger:
		return discordgo.DangerButton
	default:
		return discordgo.PrimaryButton
	}
}
