package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func voiceGuild(states ...*discordgo.VoiceState) *discordgo.Guild {
	return &discordgo.Guild{ID: "g1", VoiceStates: states}
}

func TestChannelHasNonBot(t *testing.T) {
	isBot := func(userID string) bool { return userID == "helper-bot" }

	tests := []struct {
		name  string
		guild *discordgo.Guild
		want  bool
	}{
		{
			name:  "empty channel",
			guild: voiceGuild(),
			want:  false,
		},
		{
			name: "only the bot itself",
			guild: voiceGuild(
				&discordgo.VoiceState{UserID: "me", ChannelID: "c1"},
			),
			want: false,
		},
		{
			name: "only other bots",
			guild: voiceGuild(
				&discordgo.VoiceState{UserID: "me", ChannelID: "c1"},
				&discordgo.VoiceState{UserID: "helper-bot", ChannelID: "c1"},
			),
			want: false,
		},
		{
			name: "human present",
			guild: voiceGuild(
				&discordgo.VoiceState{UserID: "me", ChannelID: "c1"},
				&discordgo.VoiceState{UserID: "alice", ChannelID: "c1"},
			),
			want: true,
		},
		{
			name: "human in a different channel",
			guild: voiceGuild(
				&discordgo.VoiceState{UserID: "alice", ChannelID: "c2"},
			),
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := channelHasNonBot(tc.guild, "c1", "me", isBot); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCommandRouter_DispatchesRegisteredCommand(t *testing.T) {
	r := NewCommandRouter()
	called := false
	r.RegisterCommand("leaderboard", &discordgo.ApplicationCommand{Name: "leaderboard"},
		func(_ *discordgo.Session, _ *discordgo.InteractionCreate) { called = true })

	i := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		Data: discordgo.ApplicationCommandInteractionData{Name: "leaderboard"},
	}}
	r.Handle(nil, i)

	if !called {
		t.Error("handler not invoked")
	}
}

func TestCommandRouter_ApplicationCommands(t *testing.T) {
	r := NewCommandRouter()
	r.RegisterCommand("leaderboard", &discordgo.ApplicationCommand{Name: "leaderboard"}, nil)

	cmds := r.ApplicationCommands()
	if len(cmds) != 1 || cmds[0].Name != "leaderboard" {
		t.Errorf("unexpected commands: %+v", cmds)
	}
}
