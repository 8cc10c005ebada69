package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/footy-fa-bot/internal/bot/commands"
	"github.com/jensholdgaard/footy-fa-bot/internal/config"
	"github.com/jensholdgaard/footy-fa-bot/internal/freeagency"
)

// Session creates the Discord session shared by the bot and the Discord
// notifier. The connection is opened by Start.
func Session(cfg config.DiscordConfig) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	return session, nil
}

// Bot registers the free agency slash commands and routes interactions.
type Bot struct {
	session  *discordgo.Session
	cfg      config.DiscordConfig
	logger   *slog.Logger
	handlers *commands.Handlers
	cmds     []*discordgo.ApplicationCommand
}

// New creates a Bot on session.
func New(session *discordgo.Session, cfg config.DiscordConfig, fa *freeagency.Manager, logger *slog.Logger, tp trace.TracerProvider) *Bot {
	return &Bot{
		session:  session,
		cfg:      cfg,
		logger:   logger,
		handlers: commands.NewHandlers(fa, logger, tp),
	}
}

// Start opens the Discord connection and registers slash commands.
func (b *Bot) Start(ctx context.Context) error {
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.logger.InfoContext(ctx, "bot is ready", slog.String("user", s.State.User.Username))
	})
	b.session.AddHandler(b.handlers.InteractionCreate)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}

	registered, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, b.cfg.GuildID, commands.SlashCommands())
	if err != nil {
		return fmt.Errorf("registering slash commands: %w", err)
	}
	b.cmds = registered

	b.logger.InfoContext(ctx, "slash commands registered", slog.Int("count", len(registered)))
	return nil
}

// Stop closes the Discord connection. Commands stay registered so a
// standby replica taking over does not need to re-create them.
func (b *Bot) Stop() error {
	b.logger.Info("closing discord session", slog.Int("commands", len(b.cmds)))
	return b.session.Close()
}
