package freeagency

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jensholdgaard/footy-fa-bot/internal/event"
	"github.com/jensholdgaard/footy-fa-bot/internal/notify"
	"github.com/jensholdgaard/footy-fa-bot/internal/store"
)

// Custom IDs of the interactive controls the engine attaches to embeds.
const (
	ActionResignSelect  = "fa/resign/select"
	ActionResignConfirm = "fa/resign/confirm"
	ActionResignEdit    = "fa/resign/edit"
	ActionMatchSelect   = "fa/match/select"
	ActionMatchConfirm  = "fa/match/confirm"
	ActionMatchEdit     = "fa/match/edit"
	ActionBidWithdraw   = "fa/bids/withdraw"
)

// maxDescription keeps embed descriptions inside Discord's limit.
const maxDescription = 4000

func joinLines(lines []string) string {
	var b strings.Builder
	for i, l := range lines {
		if b.Len()+len(l)+1 > maxDescription {
			fmt.Fprintf(&b, "… and %d more", len(lines)-i)
			break
		}
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func playerSummary(p store.Player) string {
	return fmt.Sprintf("%s, %d, %d OVR", p.Position, p.Age, p.OverallRating)
}

func bandLabel(band int) string {
	if band == 0 {
		return "no band"
	}
	return fmt.Sprintf("band %d", band)
}

func confirmedFooter(confirmed bool) string {
	if confirmed {
		return "Confirmed. Press Edit to make changes."
	}
	return "Not confirmed yet."
}

func resignEmbed(st *ResignState) notify.Embed {
	lines := make([]string, 0, len(st.Expiring)+2)
	lines = append(lines,
		fmt.Sprintf("You may re-sign up to **%d** of your expiring players for free. Confirm with nothing selected to re-sign nobody.", st.Allowance),
		"")
	for _, p := range st.Expiring {
		lines = append(lines, fmt.Sprintf("**%s** (%s) %s, %d-year contract", p.Name, playerSummary(p.Player), bandLabel(p.Band), p.ContractYears))
	}
	options := resignOptions(st)
	lines = append(lines, cutoffNote(len(options))...)
	return notify.Embed{
		Title:       fmt.Sprintf("%s: free re-signs for season %d", st.Team.Name, st.Season),
		Description: joinLines(lines),
		Color:       notify.ColorInfo,
		Footer:      confirmedFooter(st.Confirmed),
		Actions: []notify.Action{
			{
				Kind:        notify.ActionSelect,
				CustomID:    ActionResignSelect,
				Placeholder: "Choose players to re-sign",
				Options:     options,
				MinValues:   0,
				MaxValues:   min(st.Allowance, len(options)),
				Disabled:    st.Confirmed,
			},
			{Kind: notify.ActionButton, CustomID: ActionResignConfirm, Label: "Confirm", Style: notify.StylePrimary, Disabled: st.Confirmed},
			{Kind: notify.ActionButton, CustomID: ActionResignEdit, Label: "Edit", Style: notify.StyleSecondary, Disabled: !st.Confirmed},
		},
	}
}

// resignOptions lists the re-sign choices in panel order.
func resignOptions(st *ResignState) []notify.Option {
	options := make([]notify.Option, 0, len(st.Expiring))
	for _, p := range st.Expiring {
		options = append(options, notify.Option{
			Label:       p.Name,
			Value:       p.ID,
			Description: fmt.Sprintf("%s, %s", playerSummary(p.Player), bandLabel(p.Band)),
			Default:     slices.Contains(st.Selected, p.ID),
		})
	}
	return options
}

// cutoffNote warns when a panel lists more players than its menus can offer.
func cutoffNote(options int) []string {
	if options <= notify.MaxSelectable {
		return nil
	}
	return []string{"", fmt.Sprintf("Only the first %d of %d players can be selected here. Ask an admin to handle the rest.", notify.MaxSelectable, options)}
}

// mergePage replaces the choices page k of options can show with picked,
// keeping those made on other pages.
func mergePage(selected []string, options []notify.Option, k int, picked []string) []string {
	onPage := make(map[string]bool, notify.MaxOptions)
	for _, o := range notify.Page(options, k) {
		onPage[o.Value] = true
	}
	out := make([]string, 0, len(selected)+len(picked))
	for _, id := range selected {
		if !onPage[id] {
			out = append(out, id)
		}
	}
	return append(out, picked...)
}

func namesOf(players []ExpiringPlayer, ids []string) string {
	var names []string
	for _, p := range players {
		if slices.Contains(ids, p.ID) {
			names = append(names, p.Name)
		}
	}
	if len(names) == 0 {
		return "nobody"
	}
	return strings.Join(names, ", ")
}

func resignConfirmedLog(st *ResignState, ids []string) notify.Embed {
	return notify.Embed{
		Title:       "Re-signs confirmed",
		Description: fmt.Sprintf("**%s** re-signed %s.", st.Team.Name, namesOf(st.Expiring, ids)),
		Color:       notify.ColorSuccess,
	}
}

func biddingOpenLog(season, points int, resigned []ResignedPlayer) notify.Embed {
	e := notify.Embed{
		Title:       fmt.Sprintf("Season %d free agency: bidding is open", season),
		Description: fmt.Sprintf("Every team has %d auction points. Bids are blind.", points),
		Color:       notify.ColorInfo,
	}
	if len(resigned) == 0 {
		return e
	}
	var (
		lines []string
		team  string
	)
	for _, r := range resigned {
		if r.Team.Name != team {
			team = r.Team.Name
			lines = append(lines, fmt.Sprintf("**%s**", team))
		}
		lines = append(lines, fmt.Sprintf("• %s (%s) %d years", r.Name, playerSummary(r.Player), r.ContractYears))
	}
	e.Fields = []notify.Field{{Name: "Free re-signs", Value: truncate(joinLines(lines), 1024)}}
	return e
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func bidPlacedLog(team store.Team, player store.Player, amount, remaining int) notify.Embed {
	return notify.Embed{
		Title:       "Bid placed",
		Description: fmt.Sprintf("**%s** bid %d on %s (%d points left).", team.Name, amount, player.Name, remaining),
		Color:       notify.ColorInfo,
	}
}

func bidsWithdrawnLog(team store.Team, n int) notify.Embed {
	return notify.Embed{
		Title:       "Bids withdrawn",
		Description: fmt.Sprintf("**%s** withdrew %d bid(s).", team.Name, n),
		Color:       notify.ColorWarning,
	}
}

func auctionsEmbed(v *AuctionView) notify.Embed {
	e := notify.Embed{
		Title:  fmt.Sprintf("%s: season %d auctions", v.Team.Name, v.Season),
		Color:  notify.ColorInfo,
		Footer: fmt.Sprintf("%d of %d points remaining", v.Remaining, v.Points),
	}

	var bids []string
	var options []notify.Option
	for _, l := range v.Bids {
		bids = append(bids, fmt.Sprintf("• %s: %d (%s)", l.Player.Name, l.Bid.Amount, l.Bid.Status))
		options = append(options, notify.Option{
			Label:       fmt.Sprintf("%s (%d)", l.Player.Name, l.Bid.Amount),
			Value:       l.Bid.ID,
			Description: playerSummary(l.Player),
		})
	}
	if len(bids) == 0 {
		bids = append(bids, "No bids yet. Use /fa-bid to place one.")
	}
	e.Fields = append(e.Fields, notify.Field{Name: "Your bids", Value: truncate(joinLines(bids), 1024)})

	var agents []string
	for _, p := range v.FreeAgents {
		agents = append(agents, fmt.Sprintf("• %s (%s) %s", p.Name, playerSummary(p.Player), bandLabel(p.Band)))
	}
	if len(agents) > 0 {
		e.Description = "**Free agents**\n" + joinLines(agents)
	}

	if len(options) > 0 {
		e.Actions = []notify.Action{{
			Kind:        notify.ActionSelect,
			CustomID:    ActionBidWithdraw,
			Placeholder: "Withdraw bids",
			Options:     options,
			MinValues:   1,
			MaxValues:   len(options),
		}}
	}
	return e
}

func winningBidsLog(season int, won []WinningBid, unsold int) notify.Embed {
	lines := make([]string, 0, len(won))
	for _, w := range won {
		rfa := ""
		if w.RFA {
			rfa = " RFA"
		}
		lines = append(lines, fmt.Sprintf("**%s** (%s): %s → %s for %d%s, match cost %d",
			w.Player.Name, playerSummary(w.Player), w.Original.Name, w.Winner.Name, w.Amount, rfa, w.Cost))
	}
	if len(lines) == 0 {
		lines = append(lines, "No bids were placed.")
	}
	return notify.Embed{
		Title:       fmt.Sprintf("Season %d free agency: winning bids", season),
		Description: joinLines(lines),
		Color:       notify.ColorInfo,
		Footer:      fmt.Sprintf("%d player(s) received no bids. Clubs may now match.", unsold),
	}
}

func matchEmbed(st *MatchState) notify.Embed {
	lines := []string{
		fmt.Sprintf("Rival clubs won bids on your players. Select the players you want to match; matching costs up to %d points in total. Unselected players leave for the winning club.", st.Points),
		"",
	}
	for _, r := range st.Rows {
		rfa := ""
		if r.RFA {
			rfa = " (RFA discount)"
		}
		lines = append(lines, fmt.Sprintf("**%s** (%s): %s bid %d, match for %d%s",
			r.Player.Name, playerSummary(r.Player), r.Winner.Name, *r.Result.WinningBid, r.Cost, rfa))
	}
	options := matchOptions(st)
	lines = append(lines, cutoffNote(len(options))...)
	return notify.Embed{
		Title:       fmt.Sprintf("%s: match or release", st.Team.Name),
		Description: joinLines(lines),
		Color:       notify.ColorWarning,
		Footer:      confirmedFooter(st.Confirmed),
		Actions: []notify.Action{
			{
				Kind:        notify.ActionSelect,
				CustomID:    ActionMatchSelect,
				Placeholder: "Choose players to match",
				Options:     options,
				MinValues:   0,
				MaxValues:   len(options),
				Disabled:    st.Confirmed,
			},
			{Kind: notify.ActionButton, CustomID: ActionMatchConfirm, Label: "Confirm", Style: notify.StylePrimary, Disabled: st.Confirmed},
			{Kind: notify.ActionButton, CustomID: ActionMatchEdit, Label: "Edit", Style: notify.StyleSecondary, Disabled: !st.Confirmed},
		},
	}
}

// matchOptions lists the matching choices in panel order.
func matchOptions(st *MatchState) []notify.Option {
	options := make([]notify.Option, 0, len(st.Rows))
	for _, r := range st.Rows {
		options = append(options, notify.Option{
			Label:       r.Player.Name,
			Value:       r.Player.ID,
			Description: fmt.Sprintf("%s bid %d, match for %d", r.Winner.Name, *r.Result.WinningBid, r.Cost),
			Default:     r.Result.Matched,
		})
	}
	return options
}

func matchConfirmedLog(st *MatchState, ids []string) notify.Embed {
	var matched, released []string
	for _, r := range st.Rows {
		if slices.Contains(ids, r.Player.ID) {
			matched = append(matched, r.Player.Name)
		} else {
			released = append(released, r.Player.Name)
		}
	}
	list := func(names []string) string {
		if len(names) == 0 {
			return "nobody"
		}
		return strings.Join(names, ", ")
	}
	return notify.Embed{
		Title:       "Matches confirmed",
		Description: fmt.Sprintf("**%s** matched %s and released %s.", st.Team.Name, list(matched), list(released)),
		Color:       notify.ColorSuccess,
	}
}

func movementsLog(season int, moves []*Movement, s event.SettledData) notify.Embed {
	var lines []string
	for _, mv := range moves {
		lines = append(lines, fmt.Sprintf("**%s** (%s): %s → %s for %d", mv.Player.Name, playerSummary(mv.Player), mv.From.Name, mv.To.Name, mv.Bid))
		switch {
		case mv.Pick != nil:
			lines = append(lines, fmt.Sprintf("   ↳ %s receive Compensation Band %d: pick #%d (%d points)", mv.From.Name, mv.Band, mv.Pick.PickNumber, mv.Value))
		case mv.Band != 0:
			lines = append(lines, fmt.Sprintf("   ↳ %s receive Compensation Band %d", mv.From.Name, mv.Band))
		}
	}
	if len(lines) == 0 {
		lines = append(lines, "No players changed clubs.")
	}
	return notify.Embed{
		Title:       fmt.Sprintf("Season %d free agency: final movements", season),
		Description: joinLines(lines),
		Color:       notify.ColorSuccess,
		Footer: fmt.Sprintf("%d transfer(s), %d matched, %d unsold, %d compensation pick(s)",
			s.Transfers, s.Matched, s.Unsold, s.CompensationPicks),
	}
}

// StatusEmbed renders a Report for admins.
func StatusEmbed(r *Report) notify.Embed {
	e := notify.Embed{
		Title: fmt.Sprintf("Season %d free agency: %s", r.Season, r.Phase),
		Color: notify.ColorInfo,
		Fields: []notify.Field{
			{Name: "Season", Value: r.SeasonStatus, Inline: true},
			{Name: "Expiring players", Value: fmt.Sprint(r.Expiring), Inline: true},
		},
	}
	if p := r.Period; p != nil {
		e.Fields = append(e.Fields,
			notify.Field{Name: "Active bids", Value: fmt.Sprint(r.ActiveBids), Inline: true},
			notify.Field{Name: "Results", Value: fmt.Sprint(r.Results), Inline: true},
			notify.Field{Name: "Auction points", Value: fmt.Sprint(p.AuctionPoints), Inline: true},
		)
		var stamps []string
		for _, s := range []struct {
			name string
			at   *time.Time
		}{
			{"Re-sign", p.ResignStartedAt},
			{"Bidding", p.BiddingStartedAt},
			{"Matching", p.MatchingStartedAt},
			{"Completed", p.CompletedAt},
		} {
			if s.at != nil {
				stamps = append(stamps, fmt.Sprintf("%s: <t:%d:f>", s.name, s.at.Unix()))
			}
		}
		if len(stamps) > 0 {
			e.Fields = append(e.Fields, notify.Field{Name: "Timeline", Value: strings.Join(stamps, "\n")})
		}
		if ev := r.LastEvent; ev != nil {
			e.Fields = append(e.Fields, notify.Field{
				Name:  "Audit log",
				Value: fmt.Sprintf("%d events, last `%s` by %s <t:%d:R>", r.AuditEvents, ev.Type, ev.Actor, ev.CreatedAt.Unix()),
			})
		}
	}
	if r.Next != "" {
		next := "ready"
		if len(r.Blocking) > 0 {
			next = "waiting on " + strings.Join(r.Blocking, ", ")
			e.Color = notify.ColorWarning
		}
		e.Footer = fmt.Sprintf("Next: %s (%s)", r.Next, next)
	}
	return e
}
