package freeagency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/footy-fa-bot/internal/event"
	"github.com/jensholdgaard/footy-fa-bot/internal/notify"
	"github.com/jensholdgaard/footy-fa-bot/internal/store"
)

// PlaceBid places or changes the team's bid on an expiring player. The
// team's active bids, with this one replacing any earlier bid on the same
// player, may not exceed the period's auction points. Re-placing an active
// bid at the same amount changes nothing.
func (m *Manager) PlaceBid(ctx context.Context, teamID, playerID string, amount int) (*store.Bid, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.PlaceBid",
		trace.WithAttributes(
			attribute.String("team_id", teamID),
			attribute.String("player_id", playerID),
			attribute.Int("amount", amount),
		),
	)
	defer span.End()

	var (
		box    outbox
		placed *store.Bid
	)
	err := m.withPeriod(ctx, func(tx *store.Repositories, season *store.Season, p *store.Period) error {
		if err := requirePhase(p, store.PeriodBidding); err != nil {
			return err
		}
		if amount < 1 || amount > p.AuctionPoints {
			return precondition(ErrBidRange, "bids must be between 1 and %d", p.AuctionPoints)
		}
		team, err := getTeam(ctx, tx.Teams, teamID)
		if err != nil {
			return err
		}
		player, err := tx.Players.GetByID(ctx, playerID)
		if errors.Is(err, store.ErrNotFound) {
			return precondition(ErrUnknownPlayer, "%s", playerID)
		}
		if err != nil {
			return err
		}
		if player.TeamID == nil || player.ContractExpiry != season.Number {
			return precondition(ErrNotFreeAgent, "%s", player.Name)
		}
		if player.OwnedBy(teamID) {
			return precondition(ErrOwnPlayer, "%s", player.Name)
		}

		existing, err := tx.Bids.Get(ctx, p.ID, teamID, playerID)
		switch {
		case err == nil && existing.Status == store.BidActive && existing.Amount == amount:
			placed = existing
			return nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return err
		}

		committed, err := tx.Bids.SumActive(ctx, p.ID, teamID, playerID)
		if err != nil {
			return fmt.Errorf("totalling active bids: %w", err)
		}
		if committed+amount > p.AuctionPoints {
			return precondition(ErrOverBudget, "%d of %d points remaining", p.AuctionPoints-committed, p.AuctionPoints)
		}

		now := m.clock.Now()
		placed = &store.Bid{
			PeriodID:  p.ID,
			TeamID:    teamID,
			PlayerID:  playerID,
			Amount:    amount,
			Status:    store.BidActive,
			PlacedAt:  now,
			UpdatedAt: now,
		}
		if err := tx.Bids.Upsert(ctx, placed); err != nil {
			return fmt.Errorf("storing bid: %w", err)
		}
		if err := audit(ctx, tx, p.ID, event.BidPlaced, teamID, event.BidPlacedData{PlayerID: playerID, Amount: amount}); err != nil {
			return err
		}
		box.add(notify.BotLogs(), bidPlacedLog(*team, *player, amount, p.AuctionPoints-committed-amount))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(box) > 0 {
		m.bidsPlaced.Add(ctx, 1)
		m.deliver(ctx, box)
		m.logger.InfoContext(ctx, "bid placed",
			slog.String("team_id", teamID),
			slog.String("player_id", playerID),
			slog.Int("amount", amount),
		)
	}
	return placed, nil
}

// WithdrawBids deletes the given bids of the team, releasing their points,
// and returns how many were removed. IDs of other teams' bids are ignored.
func (m *Manager) WithdrawBids(ctx context.Context, teamID string, bidIDs []string) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.WithdrawBids",
		trace.WithAttributes(
			attribute.String("team_id", teamID),
			attribute.Int("bids", len(bidIDs)),
		),
	)
	defer span.End()

	var (
		box     outbox
		removed int
	)
	err := m.withPeriod(ctx, func(tx *store.Repositories, _ *store.Season, p *store.Period) error {
		if err := requirePhase(p, store.PeriodBidding); err != nil {
			return err
		}
		team, err := getTeam(ctx, tx.Teams, teamID)
		if err != nil {
			return err
		}
		ids := dedupe(bidIDs)
		if removed, err = tx.Bids.Delete(ctx, p.ID, teamID, ids); err != nil {
			return fmt.Errorf("withdrawing bids: %w", err)
		}
		if removed == 0 {
			return nil
		}
		if err := audit(ctx, tx, p.ID, event.BidWithdrawn, teamID, event.BidWithdrawnData{BidIDs: ids}); err != nil {
			return err
		}
		box.add(notify.BotLogs(), bidsWithdrawnLog(*team, removed))
		return nil
	})
	if err != nil {
		return 0, err
	}
	m.deliver(ctx, box)
	return removed, nil
}

// Remaining returns the team's auction points not tied up in active bids.
func (m *Manager) Remaining(ctx context.Context, teamID string) (int, error) {
	_, p, err := m.loadPeriod(ctx, m.repos)
	if err != nil {
		return 0, err
	}
	committed, err := m.repos.Bids.SumActive(ctx, p.ID, teamID, "")
	if err != nil {
		return 0, fmt.Errorf("totalling active bids: %w", err)
	}
	return p.AuctionPoints - committed, nil
}

// BiddablePlayers lists the expiring players the team may bid on whose name
// contains query, at most notify.MaxOptions of them.
func (m *Manager) BiddablePlayers(ctx context.Context, teamID, query string) ([]store.Player, error) {
	season, p, err := m.loadPeriod(ctx, m.repos)
	if err != nil {
		return nil, err
	}
	if err := requirePhase(p, store.PeriodBidding); err != nil {
		return nil, err
	}
	expiring, err := m.repos.Players.ListExpiring(ctx, season.Number)
	if err != nil {
		return nil, fmt.Errorf("listing expiring players: %w", err)
	}
	query = strings.ToLower(strings.TrimSpace(query))
	var out []store.Player
	for _, pl := range expiring {
		if pl.OwnedBy(teamID) || !strings.Contains(strings.ToLower(pl.Name), query) {
			continue
		}
		out = append(out, pl)
		if len(out) == notify.MaxOptions {
			break
		}
	}
	return out, nil
}

// AuctionView is what a team sees of the bidding phase: its own bids and
// the players it may bid on. Other teams' bids are never shown.
type AuctionView struct {
	Season     int
	Team       store.Team
	Points     int
	Remaining  int
	Bids       []BidLine
	FreeAgents []ExpiringPlayer
}

// BidLine is one of the team's bids with its player.
type BidLine struct {
	Bid    store.Bid
	Player store.Player
}

// Auctions renders the team's bidding overview with a withdraw control.
func (m *Manager) Auctions(ctx context.Context, teamID string) (notify.Embed, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Auctions",
		trace.WithAttributes(attribute.String("team_id", teamID)),
	)
	defer span.End()

	season, p, err := m.loadPeriod(ctx, m.repos)
	if err != nil {
		return notify.Embed{}, err
	}
	if err := requirePhase(p, store.PeriodBidding); err != nil {
		return notify.Embed{}, err
	}
	team, err := getTeam(ctx, m.repos.Teams, teamID)
	if err != nil {
		return notify.Embed{}, err
	}
	ref, err := LoadReference(ctx, m.repos.Reference)
	if err != nil {
		return notify.Embed{}, err
	}
	expiring, err := m.repos.Players.ListExpiring(ctx, season.Number)
	if err != nil {
		return notify.Embed{}, fmt.Errorf("listing expiring players: %w", err)
	}
	lines, err := m.bidLines(ctx, p, teamID)
	if err != nil {
		return notify.Embed{}, err
	}

	view := &AuctionView{Season: season.Number, Team: *team, Points: p.AuctionPoints, Remaining: p.AuctionPoints, Bids: lines}
	for _, pl := range expiring {
		if !pl.OwnedBy(teamID) {
			view.FreeAgents = append(view.FreeAgents, expiringFor(ref, []store.Player{pl})...)
		}
	}
	for _, l := range lines {
		if l.Bid.Status == store.BidActive {
			view.Remaining -= l.Bid.Amount
		}
	}
	return auctionsEmbed(view), nil
}

// TeamBids returns the team's bids in the bidding phase with their players.
func (m *Manager) TeamBids(ctx context.Context, teamID string) ([]BidLine, error) {
	_, p, err := m.loadPeriod(ctx, m.repos)
	if err != nil {
		return nil, err
	}
	if err := requirePhase(p, store.PeriodBidding); err != nil {
		return nil, err
	}
	return m.bidLines(ctx, p, teamID)
}

func (m *Manager) bidLines(ctx context.Context, p *store.Period, teamID string) ([]BidLine, error) {
	bids, err := m.repos.Bids.ListByTeam(ctx, p.ID, teamID)
	if err != nil {
		return nil, fmt.Errorf("listing bids: %w", err)
	}
	lines := make([]BidLine, 0, len(bids))
	for _, b := range bids {
		pl, err := m.repos.Players.GetByID(ctx, b.PlayerID)
		if err != nil {
			return nil, fmt.Errorf("loading player %s: %w", b.PlayerID, err)
		}
		lines = append(lines, BidLine{Bid: b, Player: *pl})
	}
	slices.SortFunc(lines, func(a, b BidLine) int { return strings.Compare(a.Player.Name, b.Player.Name) })
	return lines, nil
}
