package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/tallyvox/internal/counter"
)

// maxMessageLen keeps each leaderboard message below Discord's 2000-character
// limit with headroom for formatting.
const maxMessageLen = 1900

var rankMedals = []string{"🥇", "🥈", "🥉"}

// handleLeaderboard serves the /leaderboard command from the in-memory tally.
// The response is public; everyone in the channel gets to see who swears the
// most.
func (b *Bot) handleLeaderboard(s *discordgo.Session, i *discordgo.InteractionCreate) {
	entries := b.tally.Ranking()
	if len(entries) == 0 {
		Respond(s, i, "No keywords detected yet.")
		return
	}

	chunks := chunkLines(leaderboardLines(entries), maxMessageLen)
	Respond(s, i, chunks[0])
	for _, chunk := range chunks[1:] {
		FollowUp(s, i, chunk)
	}
}

// leaderboardLines renders one line per speaker: a medal for the top three,
// a generic one for everyone else.
func leaderboardLines(entries []counter.RankEntry) []string {
	lines := make([]string, 0, len(entries))
	for idx, e := range entries {
		medal := "🏅"
		if idx < len(rankMedals) {
			medal = rankMedals[idx]
		}
		name := e.DisplayName
		if name == "" {
			name = fmt.Sprintf("User %s", e.SpeakerID)
		}
		lines = append(lines, fmt.Sprintf("%s #%d — %s x%d", medal, idx+1, name, e.Total))
	}
	return lines
}

// chunkLines packs lines into newline-joined chunks of at most maxLen
// characters each. A single oversized line still becomes its own chunk.
func chunkLines(lines []string, maxLen int) []string {
	var chunks []string
	var current []string
	currentLen := 0

	for _, line := range lines {
		lineLen := len(line) + 1
		if currentLen+lineLen > maxLen && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n"))
			current = nil
			currentLen = 0
		}
		current = append(current, line)
		currentLen += lineLen
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n"))
	}
	return chunks
}
