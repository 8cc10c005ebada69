package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/footy-fa-bot/internal/freeagency"
	"github.com/jensholdgaard/footy-fa-bot/internal/notify"
	"github.com/jensholdgaard/footy-fa-bot/internal/store"
)

// Responder is the subset of *discordgo.Session used to answer interactions.
type Responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

// Handlers process Discord interactions.
type Handlers struct {
	fa     *freeagency.Manager
	logger *slog.Logger
	tracer trace.Tracer
}

// NewHandlers creates new command handlers.
func NewHandlers(fa *freeagency.Manager, logger *slog.Logger, tp trace.TracerProvider) *Handlers {
	return &Handlers{
		fa:     fa,
		logger: logger,
		tracer: tp.Tracer("github.com/jensholdgaard/footy-fa-bot/internal/bot/commands"),
	}
}

// adminPermission hides admin commands from members without it by default.
var adminPermission int64 = discordgo.PermissionManageServer

// SlashCommands returns the slash command definitions.
func SlashCommands() []*discordgo.ApplicationCommand {
	admin := func(name, description string) *discordgo.ApplicationCommand {
		return &discordgo.ApplicationCommand{
			Name:                     name,
			Description:              description,
			DefaultMemberPermissions: &adminPermission,
		}
	}
	return []*discordgo.ApplicationCommand{
		admin("fa-start-resign", "Open free agency with the re-sign phase (admin only)"),
		admin("fa-start-bidding", "Open bidding on expiring players (admin only)"),
		admin("fa-start-matching", "Close bidding and start matching (admin only)"),
		admin("fa-end-matching", "Settle free agency (admin only)"),
		admin("fa-status", "Show the free agency phase and who is holding it up (admin only)"),
		{
			Name:        "fa-bid",
			Description: "Bid auction points on an expiring player",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "player",
					Description:  "Player to bid on",
					Required:     true,
					Autocomplete: true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "amount",
					Description: "Auction points to bid",
					Required:    true,
				},
			},
		},
		{
			Name:        "fa-withdraw",
			Description: "Withdraw one of your bids",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "bid",
					Description:  "Bid to withdraw",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:        "fa-auctions",
			Description: "Show your bids and the players on the market",
		},
		{
			Name:        "fa-resigns",
			Description: "Re-open your free re-sign selection",
		},
		{
			Name:        "fa-matches",
			Description: "Re-open your matching decisions",
		},
	}
}

// InteractionCreate is registered with the Discord session.
func (h *Handlers) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.Handle(context.Background(), s, i.Interaction)
}

// Handle routes an interaction to its command, autocomplete or component
// handler.
func (h *Handlers) Handle(ctx context.Context, r Responder, i *discordgo.Interaction) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		h.handleCommand(ctx, r, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		h.handleAutocomplete(ctx, r, i)
	case discordgo.InteractionMessageComponent:
		h.handleComponent(ctx, r, i)
	}
}

func (h *Handlers) handleCommand(ctx context.Context, r Responder, i *discordgo.Interaction) {
	name := i.ApplicationCommandData().Name
	ctx, span := h.tracer.Start(ctx, "InteractionCreate",
		trace.WithAttributes(attribute.String("command", name)),
	)
	defer span.End()

	switch name {
	case "fa-start-resign":
		h.handleTransition(ctx, r, i, h.fa.StartResign)
	case "fa-start-bidding":
		h.handleTransition(ctx, r, i, h.fa.StartBidding)
	case "fa-start-matching":
		h.handleTransition(ctx, r, i, h.fa.StartMatching)
	case "fa-end-matching":
		h.handleTransition(ctx, r, i, h.fa.EndMatching)
	case "fa-status":
		h.handleStatus(ctx, r, i)
	case "fa-bid":
		h.handleBid(ctx, r, i)
	case "fa-withdraw":
		h.handleWithdraw(ctx, r, i)
	case "fa-auctions":
		h.handlePanel(ctx, r, i, h.fa.Auctions)
	case "fa-resigns":
		h.handlePanel(ctx, r, i, h.fa.ResignPanel)
	case "fa-matches":
		h.handlePanel(ctx, r, i, h.fa.MatchPanel)
	default:
		h.respond(ctx, r, i, "Unknown command")
	}
}

func (h *Handlers) handleTransition(ctx context.Context, r Responder, i *discordgo.Interaction, fn func(context.Context) (*freeagency.Transition, error)) {
	tr, err := fn(ctx)
	if err != nil {
		h.fail(ctx, r, i, err)
		return
	}
	h.logger.InfoContext(ctx, "free agency phase changed",
		slog.String("user", userID(i)),
		slog.String("from", tr.From),
		slog.String("to", tr.To),
	)
	h.respond(ctx, r, i, fmt.Sprintf("Season %d free agency moved from **%s** to **%s**.", tr.Season, tr.From, tr.To))
}

func (h *Handlers) handleStatus(ctx context.Context, r Responder, i *discordgo.Interaction) {
	report, err := h.fa.Status(ctx)
	if err != nil {
		h.fail(ctx, r, i, err)
		return
	}
	h.reply(ctx, r, i, discordgo.InteractionResponseChannelMessageWithSource, freeagency.StatusEmbed(report), true)
}

func (h *Handlers) handleBid(ctx context.Context, r Responder, i *discordgo.Interaction) {
	team, ok := h.team(ctx, r, i)
	if !ok {
		return
	}
	opts := options(i.ApplicationCommandData().Options)
	playerID := opts["player"].StringValue()
	amount := int(opts["amount"].IntValue())

	bid, err := h.fa.PlaceBid(ctx, team.ID, playerID, amount)
	if err != nil {
		h.fail(ctx, r, i, err)
		return
	}
	remaining, err := h.fa.Remaining(ctx, team.ID)
	if err != nil {
		h.fail(ctx, r, i, err)
		return
	}
	h.respond(ctx, r, i, fmt.Sprintf("Bid of **%d** placed. %d auction points remaining.", bid.Amount, remaining))
}

func (h *Handlers) handleWithdraw(ctx context.Context, r Responder, i *discordgo.Interaction) {
	team, ok := h.team(ctx, r, i)
	if !ok {
		return
	}
	bidID := options(i.ApplicationCommandData().Options)["bid"].StringValue()
	n, err := h.fa.WithdrawBids(ctx, team.ID, []string{bidID})
	if err != nil {
		h.fail(ctx, r, i, err)
		return
	}
	if n == 0 {
		h.respond(ctx, r, i, "No such bid.")
		return
	}
	remaining, err := h.fa.Remaining(ctx, team.ID)
	if err != nil {
		h.fail(ctx, r, i, err)
		return
	}
	h.respond(ctx, r, i, fmt.Sprintf("Bid withdrawn. %d auction points remaining.", remaining))
}

func (h *Handlers) handlePanel(ctx context.Context, r Responder, i *discordgo.Interaction, panel func(context.Context, string) (notify.Embed, error)) {
	team, ok := h.team(ctx, r, i)
	if !ok {
		return
	}
	e, err := panel(ctx, team.ID)
	if err != nil {
		h.fail(ctx, r, i, err)
		return
	}
	h.reply(ctx, r, i, discordgo.InteractionResponseChannelMessageWithSource, e, true)
}

func (h *Handlers) handleAutocomplete(ctx context.Context, r Responder, i *discordgo.Interaction) {
	data := i.ApplicationCommandData()
	ctx, span := h.tracer.Start(ctx, "Autocomplete",
		trace.WithAttributes(attribute.String("command", data.Name)),
	)
	defer span.End()

	var choices []*discordgo.ApplicationCommandOptionChoice
	team, err := h.fa.ResolveTeam(ctx, userID(i), i.ChannelID)
	if err == nil {
		choices, err = h.choices(ctx, data, team.ID)
	}
	if err != nil && !isUserError(err) {
		span.RecordError(err)
		h.logger.WarnContext(ctx, "autocomplete failed", slog.String("command", data.Name), slog.Any("error", err))
	}
	if err := r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}); err != nil {
		h.logger.WarnContext(ctx, "responding to autocomplete", slog.Any("error", err))
	}
}

func (h *Handlers) choices(ctx context.Context, data discordgo.ApplicationCommandInteractionData, teamID string) ([]*discordgo.ApplicationCommandOptionChoice, error) {
	var query string
	for _, o := range data.Options {
		if o.Focused {
			query = o.StringValue()
		}
	}
	var out []*discordgo.ApplicationCommandOptionChoice
	switch data.Name {
	case "fa-bid":
		players, err := h.fa.BiddablePlayers(ctx, teamID, query)
		if err != nil {
			return nil, err
		}
		for _, p := range players {
			out = append(out, &discordgo.ApplicationCommandOptionChoice{
				Name:  fmt.Sprintf("%s (%s, %d, %d OVR)", p.Name, p.Position, p.Age, p.OverallRating),
				Value: p.ID,
			})
		}
	case "fa-withdraw":
		lines, err := h.fa.TeamBids(ctx, teamID)
		if err != nil {
			return nil, err
		}
		query = strings.ToLower(query)
		for _, l := range lines {
			if !strings.Contains(strings.ToLower(l.Player.Name), query) || len(out) == notify.MaxOptions {
				continue
			}
			out = append(out, &discordgo.ApplicationCommandOptionChoice{
				Name:  fmt.Sprintf("%s: %d", l.Player.Name, l.Bid.Amount),
				Value: l.Bid.ID,
			})
		}
	}
	return out, nil
}

func (h *Handlers) handleComponent(ctx context.Context, r Responder, i *discordgo.Interaction) {
	data := i.MessageComponentData()
	ctx, span := h.tracer.Start(ctx, "Component",
		trace.WithAttributes(attribute.String("custom_id", data.CustomID)),
	)
	defer span.End()

	team, ok := h.team(ctx, r, i)
	if !ok {
		return
	}

	var (
		e   notify.Embed
		err error
	)
	action, page := notify.ParsePageID(data.CustomID)
	switch action {
	case freeagency.ActionResignSelect:
		e, err = h.fa.SelectResignsPage(ctx, team.ID, page, data.Values)
	case freeagency.ActionResignConfirm:
		var sel []string
		if sel, err = h.fa.ResignSelection(ctx, team.ID); err == nil {
			e, err = h.fa.ConfirmResigns(ctx, team.ID, sel)
		}
	case freeagency.ActionResignEdit:
		e, err = h.fa.EditResigns(ctx, team.ID)
	case freeagency.ActionMatchSelect:
		e, err = h.fa.SelectMatchesPage(ctx, team.ID, page, data.Values)
	case freeagency.ActionMatchConfirm:
		var sel []string
		if sel, err = h.fa.MatchSelection(ctx, team.ID); err == nil {
			e, err = h.fa.ConfirmMatches(ctx, team.ID, sel)
		}
	case freeagency.ActionMatchEdit:
		e, err = h.fa.EditMatches(ctx, team.ID)
	case freeagency.ActionBidWithdraw:
		if _, err = h.fa.WithdrawBids(ctx, team.ID, data.Values); err == nil {
			e, err = h.fa.Auctions(ctx, team.ID)
		}
	default:
		h.respond(ctx, r, i, "This control is no longer active.")
		return
	}
	if err != nil {
		h.fail(ctx, r, i, err)
		return
	}
	h.reply(ctx, r, i, discordgo.InteractionResponseUpdateMessage, e, false)
}

// team resolves the caller's team, answering the interaction when there is
// none.
func (h *Handlers) team(ctx context.Context, r Responder, i *discordgo.Interaction) (*store.Team, bool) {
	team, err := h.fa.ResolveTeam(ctx, userID(i), i.ChannelID)
	if err != nil {
		h.fail(ctx, r, i, err)
		return nil, false
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("team_id", team.ID))
	return team, true
}

// isUserError reports whether err is a refusal the user can act on rather
// than a fault.
func isUserError(err error) bool {
	var pe *freeagency.PreconditionError
	var ge *freeagency.GateError
	return errors.As(err, &pe) || errors.As(err, &ge)
}

// fail tells the user why the interaction was refused. Faults are logged
// and shown generically.
func (h *Handlers) fail(ctx context.Context, r Responder, i *discordgo.Interaction, err error) {
	msg := err.Error()
	if !isUserError(err) {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logger.ErrorContext(ctx, "interaction failed", slog.String("user", userID(i)), slog.Any("error", err))
		msg = "Something went wrong. Please try again."
	}
	h.respond(ctx, r, i, msg)
}

// respond answers with a message only the caller can see.
func (h *Handlers) respond(ctx context.Context, r Responder, i *discordgo.Interaction, msg string) {
	err := r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		h.logger.WarnContext(ctx, "responding to interaction", slog.Any("error", err))
	}
}

func (h *Handlers) reply(ctx context.Context, r Responder, i *discordgo.Interaction, typ discordgo.InteractionResponseType, e notify.Embed, ephemeral bool) {
	data := &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{notify.MessageEmbed(e)},
		Components: notify.Components(e.Actions),
	}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := r.InteractionRespond(i, &discordgo.InteractionResponse{Type: typ, Data: data}); err != nil {
		h.logger.WarnContext(ctx, "responding to interaction", slog.Any("error", err))
	}
}

func options(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		out[o.Name] = o
	}
	return out
}

func userID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
