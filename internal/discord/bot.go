// Package discord provides the Discord bot layer for Tallyvox. It owns the
// discordgo.Session lifecycle, follows speakers into voice channels, routes
// slash command interactions to registered handlers, and renders the
// leaderboard.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tallyvox/internal/counter"
	"github.com/MrWong99/tallyvox/pkg/audio"
	voicediscord "github.com/MrWong99/tallyvox/pkg/voice/discord"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string `yaml:"token"`

	// GuildID is the target guild (single-guild deployment).
	GuildID string `yaml:"guild_id"`
}

// Bot owns the Discord gateway connection. It follows guild members into
// voice channels, feeds their audio into the sink, and serves the
// /leaderboard command from the tally.
type Bot struct {
	mu        sync.Mutex
	session   *discordgo.Session
	router    *CommandRouter
	guildID   string
	sink      audio.Sink
	tally     *counter.Tally
	listener  *voicediscord.Listener
	commands  []*discordgo.ApplicationCommand
	closeOnce sync.Once

	// joinVoice connects to a voice channel and starts listening. Defaults
	// to voicediscord.Join; overridden in tests.
	joinVoice func(s *discordgo.Session, guildID, channelID string, sink audio.Sink) (*voicediscord.Listener, error)
}

// New creates a Bot, connects to Discord, and registers the gateway handlers.
func New(_ context.Context, cfg Config, sink audio.Sink, tally *counter.Tally) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMembers

	b := &Bot{
		session:   session,
		router:    NewCommandRouter(),
		guildID:   cfg.GuildID,
		sink:      sink,
		tally:     tally,
		joinVoice: voicediscord.Join,
	}
	b.router.RegisterCommand("leaderboard", &discordgo.ApplicationCommand{
		Name:        "leaderboard",
		Description: "Show who said the tracked keywords most.",
	}, b.handleLeaderboard)

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})
	session.AddHandler(b.handleVoiceState)

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	return b, nil
}

// Session returns the underlying discordgo session.
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// Run registers slash commands with the Discord API and blocks until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context) error {
	appID := b.session.State.User.ID

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered))
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close leaves the voice channel, unregisters commands, and disconnects from
// Discord. Safe to call more than once.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.listener != nil {
			if err := b.listener.Close(); err != nil {
				slog.Warn("discord: leaving voice channel", "err", err)
			}
			b.listener = nil
		}

		if b.session != nil && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}

		slog.Info("discord bot closed")
	})
	return closeErr
}

// handleVoiceState follows guild members into voice channels: the bot joins
// the channel a member speaks from, moves when they move, and leaves once no
// non-bot member remains in its channel.
func (b *Bot) handleVoiceState(s *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.GuildID != b.guildID {
		return
	}
	botID := ""
	if s.State != nil && s.State.User != nil {
		botID = s.State.User.ID
	}
	if vsu.UserID == botID {
		return
	}
	if vsu.Member != nil && vsu.Member.User != nil && vsu.Member.User.Bot {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listener != nil {
		cur := b.listener.ChannelID()

		// Member left the channel we listen to: their worker stops, their
		// counts persist.
		if vsu.BeforeUpdate != nil && vsu.BeforeUpdate.ChannelID == cur && vsu.ChannelID != cur {
			b.listener.SpeakerLeft(vsu.UserID)
		}

		if !b.channelHasListeners(s, cur, botID) {
			slog.Info("discord: voice channel empty, leaving", "channel", cur)
			if err := b.listener.Close(); err != nil {
				slog.Warn("discord: leaving voice channel", "err", err)
			}
			b.listener = nil
		}
	}

	if vsu.ChannelID == "" {
		return
	}
	if b.listener != nil && b.listener.ChannelID() == vsu.ChannelID {
		return
	}

	// Follow the member: drop the old connection and join their channel.
	if b.listener != nil {
		if err := b.listener.Close(); err != nil {
			slog.Warn("discord: leaving voice channel", "err", err)
		}
		b.listener = nil
	}
	l, err := b.joinVoice(s, b.guildID, vsu.ChannelID, b.sink)
	if err != nil {
		slog.Error("discord: joining voice channel", "channel", vsu.ChannelID, "err", err)
		return
	}
	slog.Info("discord: listening in voice channel", "channel", vsu.ChannelID)
	b.listener = l
}

// channelHasListeners reports whether any non-bot member other than the bot
// itself is in the channel.
func (b *Bot) channelHasListeners(s *discordgo.Session, channelID, botID string) bool {
	guild, err := s.State.Guild(b.guildID)
	if err != nil || guild == nil {
		// Without state we cannot prove the channel is empty; stay.
		return true
	}
	return channelHasNonBot(guild, channelID, botID, func(userID string) bool {
		member, err := s.State.Member(b.guildID, userID)
		if err != nil || member == nil || member.User == nil {
			return false
		}
		return member.User.Bot
	})
}

// channelHasNonBot reports whether the channel holds at least one member that
// is neither the bot itself nor flagged as a bot by isBot.
func channelHasNonBot(guild *discordgo.Guild, channelID, botID string, isBot func(userID string) bool) bool {
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID || vs.UserID == botID {
			continue
		}
		if isBot != nil && isBot(vs.UserID) {
			continue
		}
		return true
	}
	return false
}
