package freeagency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/footy-fa-bot/internal/clock"
	"github.com/jensholdgaard/footy-fa-bot/internal/config"
	"github.com/jensholdgaard/footy-fa-bot/internal/event"
	"github.com/jensholdgaard/footy-fa-bot/internal/notify"
	"github.com/jensholdgaard/footy-fa-bot/internal/store"
)

const instrumentation = "github.com/jensholdgaard/footy-fa-bot/internal/freeagency"

// Manager runs the free agency cycle. It keeps no state between calls:
// every operation reads what it needs from the store, validates and writes
// inside one transaction, and notifies Discord once the transaction commits.
type Manager struct {
	repos    *store.Repositories
	notifier notify.Notifier
	cfg      config.FreeAgencyConfig
	rfaRate  decimal.Decimal
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock

	bidsPlaced     metric.Int64Counter
	transitions    metric.Int64Counter
	notifyFailures metric.Int64Counter
	picksInserted  metric.Int64Counter
}

// NewManager creates a Manager.
func NewManager(repos *store.Repositories, notifier notify.Notifier, cfg config.FreeAgencyConfig, logger *slog.Logger, tp trace.TracerProvider, mp metric.MeterProvider, clk clock.Clock) (*Manager, error) {
	meter := mp.Meter(instrumentation)
	m := &Manager{
		repos:    repos,
		notifier: notifier,
		cfg:      cfg,
		rfaRate:  decimal.NewFromFloat(cfg.RFAMatchRate),
		logger:   logger,
		tracer:   tp.Tracer(instrumentation),
		clock:    clk,
	}

	var err error
	if m.bidsPlaced, err = meter.Int64Counter("fa.bids.placed",
		metric.WithDescription("Bids placed or changed")); err != nil {
		return nil, fmt.Errorf("creating bids counter: %w", err)
	}
	if m.transitions, err = meter.Int64Counter("fa.phase.transitions",
		metric.WithDescription("Free agency phase transitions")); err != nil {
		return nil, fmt.Errorf("creating transitions counter: %w", err)
	}
	if m.notifyFailures, err = meter.Int64Counter("fa.notify.failures",
		metric.WithDescription("Notifications that could not be delivered")); err != nil {
		return nil, fmt.Errorf("creating notify failures counter: %w", err)
	}
	if m.picksInserted, err = meter.Int64Counter("fa.compensation.picks",
		metric.WithDescription("Compensation picks inserted into the draft order")); err != nil {
		return nil, fmt.Errorf("creating compensation picks counter: %w", err)
	}
	return m, nil
}

// Transition summarises a completed phase change.
type Transition struct {
	Season int
	From   string
	To     string
}

// ResolveTeam finds the team an interaction belongs to: the team the user
// owns, otherwise the team whose inbox channel it came from.
func (m *Manager) ResolveTeam(ctx context.Context, discordID, channelID string) (*store.Team, error) {
	team, err := m.repos.Teams.GetByOwner(ctx, discordID)
	if err == nil {
		return team, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if channelID != "" {
		team, err = m.repos.Teams.GetByChannel(ctx, channelID)
		if err == nil {
			return team, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, &PreconditionError{Err: ErrUnknownTeam}
}

// Phase reports the current season's free agency phase, PhaseNone when no
// period has been opened.
func (m *Manager) Phase(ctx context.Context) (string, error) {
	_, p, err := m.loadPeriod(ctx, m.repos)
	switch {
	case err == nil:
		return p.Status, nil
	case errors.Is(err, ErrNoPeriod):
		return PhaseNone, nil
	default:
		return "", err
	}
}

func currentSeason(ctx context.Context, seasons store.SeasonRepository) (*store.Season, error) {
	s, err := seasons.Current(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &PreconditionError{Err: ErrNoSeason}
	}
	if err != nil {
		return nil, fmt.Errorf("loading current season: %w", err)
	}
	return s, nil
}

// loadPeriod returns the current season and its period without locking.
func (m *Manager) loadPeriod(ctx context.Context, repos *store.Repositories) (*store.Season, *store.Period, error) {
	season, err := currentSeason(ctx, repos.Seasons)
	if err != nil {
		return nil, nil, err
	}
	p, err := repos.Periods.GetBySeason(ctx, season.Number)
	if errors.Is(err, store.ErrNotFound) {
		return season, nil, precondition(ErrNoPeriod, "season %d", season.Number)
	}
	if err != nil {
		return nil, nil, err
	}
	return season, p, nil
}

type periodFunc func(tx *store.Repositories, season *store.Season, p *store.Period) error

// withPeriod runs fn in a transaction holding the period lock.
func (m *Manager) withPeriod(ctx context.Context, fn periodFunc) error {
	return m.repos.Tx(ctx, func(tx *store.Repositories) error {
		return m.lockPeriod(ctx, tx, fn)
	})
}

// lockPeriod locks the current period within tx and calls fn. The period
// is re-read after locking so fn sees the latest committed status.
func (m *Manager) lockPeriod(ctx context.Context, tx *store.Repositories, fn periodFunc) error {
	season, p, err := m.loadPeriod(ctx, tx)
	if err != nil {
		return err
	}
	if err := tx.Periods.Lock(ctx, p.ID); err != nil {
		return err
	}
	if p, err = tx.Periods.GetBySeason(ctx, season.Number); err != nil {
		return err
	}
	return fn(tx, season, p)
}

func requirePhase(p *store.Period, phase string) error {
	if p.Status != phase {
		return precondition(ErrWrongPhase, "free agency is in the %s phase", p.Status)
	}
	return nil
}

// advance moves p along the state machine and records the audit event.
func (m *Manager) advance(ctx context.Context, tx *store.Repositories, p *store.Period, to string) error {
	if !CanTransition(p.Status, to) {
		return precondition(ErrWrongPhase, "cannot move from %s to %s", p.Status, to)
	}
	if err := tx.Periods.Advance(ctx, p.ID, p.Status, to, m.clock.Now()); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return precondition(ErrWrongPhase, "free agency left the %s phase", p.Status)
		}
		return err
	}
	return audit(ctx, tx, p.ID, event.PhaseAdvanced, event.ActorAdmin, event.PhaseAdvancedData{From: p.Status, To: to})
}

func audit(ctx context.Context, tx *store.Repositories, periodID string, t event.Type, actor string, payload any) error {
	if err := tx.Events.Append(ctx, event.New(periodID, t, actor, payload)); err != nil {
		return fmt.Errorf("recording %s: %w", t, err)
	}
	return nil
}

func (m *Manager) recordTransition(ctx context.Context, tr *Transition) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", tr.To)))
	m.logger.InfoContext(ctx, "free agency phase changed",
		slog.Int("season", tr.Season),
		slog.String("from", tr.From),
		slog.String("to", tr.To),
	)
}

func teamsByID(ctx context.Context, teams store.TeamRepository) (map[string]store.Team, error) {
	list, err := teams.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	out := make(map[string]store.Team, len(list))
	for _, t := range list {
		out[t.ID] = t
	}
	return out, nil
}

func getTeam(ctx context.Context, teams store.TeamRepository, id string) (*store.Team, error) {
	t, err := teams.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &PreconditionError{Err: ErrUnknownTeam}
	}
	return t, err
}

// outbox collects notifications produced inside a transaction. They are
// only delivered once it commits.
type outbox []outbound

type outbound struct {
	to    notify.ChannelRef
	embed notify.Embed
}

func (o *outbox) add(to notify.ChannelRef, e notify.Embed) {
	*o = append(*o, outbound{to: to, embed: e})
}

func (m *Manager) deliver(ctx context.Context, box outbox) {
	for _, msg := range box {
		if err := m.notifier.Dispatch(ctx, msg.to, msg.embed); err != nil {
			m.notifyFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(msg.to.Kind))))
			m.logger.WarnContext(ctx, "notification not delivered",
				slog.String("to", msg.to.String()),
				slog.String("title", msg.embed.Title),
				slog.Any("error", err),
			)
		}
	}
}

// warnCutoff logs a team panel listing more players than its menus offer.
func (m *Manager) warnCutoff(ctx context.Context, team store.Team, players int) {
	if players > notify.MaxSelectable {
		m.logger.WarnContext(ctx, "panel lists more players than can be selected",
			slog.String("team", team.Name),
			slog.Int("players", players),
			slog.Int("selectable", notify.MaxSelectable),
		)
	}
}
