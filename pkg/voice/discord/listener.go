// Package discord adapts a Discord voice connection to the Tallyvox audio
// pipeline. It receives Opus packets, demuxes them by SSRC, decodes them to
// PCM, resolves the speaking member's identity, and dispatches frames into
// an [audio.Sink].
package discord

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/tallyvox/pkg/audio"
	"github.com/bwmarrin/discordgo"
)

// Listener consumes one voice connection's incoming audio and feeds it to a
// sink. It is receive-only: Tallyvox never transmits audio.
//
// Listener is safe for concurrent use.
type Listener struct {
	session *discordgo.Session
	vc      *discordgo.VoiceConnection
	sink    audio.Sink
	guildID string

	mu       sync.RWMutex
	ssrcUser map[uint32]string
	speakers map[string]audio.Speaker

	// resolve maps a user ID to a Speaker. Defaults to a guild member
	// lookup through the session state; overridden in tests.
	resolve func(userID string) audio.Speaker

	done      chan struct{}
	closeOnce sync.Once

	// disconnect tears down the voice connection on Close. Defaults to
	// vc.Disconnect; overridden in tests.
	disconnect func() error
}

// Join connects the bot to a voice channel and starts listening. Frames are
// dispatched to sink until Close is called or the voice connection drops.
func Join(session *discordgo.Session, guildID, channelID string, sink audio.Sink) (*Listener, error) {
	vc, err := session.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %s: %w", channelID, err)
	}

	l := newListener(session, guildID, sink)
	l.vc = vc
	l.disconnect = vc.Disconnect

	// Speaking updates carry the SSRC to user ID mapping; they arrive
	// before the first audio packet of that SSRC.
	vc.AddHandler(func(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
		l.noteSpeaking(uint32(vs.SSRC), vs.UserID)
	})

	go l.recvLoop(vc.OpusRecv)
	return l, nil
}

func newListener(session *discordgo.Session, guildID string, sink audio.Sink) *Listener {
	l := &Listener{
		session:  session,
		guildID:  guildID,
		sink:     sink,
		ssrcUser: make(map[uint32]string),
		speakers: make(map[string]audio.Speaker),
		done:     make(chan struct{}),
	}
	l.resolve = l.resolveMember
	return l
}

// ChannelID returns the voice channel this listener is connected to.
func (l *Listener) ChannelID() string {
	if l.vc == nil {
		return ""
	}
	return l.vc.ChannelID
}

// Close disconnects from the voice channel and stops the receive loop. Safe
// to call more than once. The sink is left running; shutting it down is the
// owner's concern.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		if l.disconnect != nil {
			err = l.disconnect()
		}
	})
	return err
}

// SpeakerLeft forwards a channel leave to the sink and drops the cached
// identity so a rejoin resolves the member afresh.
func (l *Listener) SpeakerLeft(userID string) {
	l.mu.Lock()
	delete(l.speakers, userID)
	l.mu.Unlock()
	l.sink.SpeakerLeft(userID)
}

// recvLoop reads Opus packets from the voice connection, decodes per SSRC,
// and dispatches frames to the sink.
func (l *Listener) recvLoop(packets <-chan *discordgo.Packet) {
	decoders := make(map[uint32]pcmDecoder)

	for {
		select {
		case <-l.done:
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}
			l.handlePacket(pkt, decoders)
		}
	}
}

func (l *Listener) handlePacket(pkt *discordgo.Packet, decoders map[uint32]pcmDecoder) {
	sp, ok := l.speakerForSSRC(pkt.SSRC)
	if !ok {
		// No speaking update seen for this SSRC yet; identity unknown.
		return
	}
	if sp.Bot {
		return
	}

	dec, exists := decoders[pkt.SSRC]
	if !exists {
		var err error
		dec, err = newOpusDecoder()
		if err != nil {
			slog.Error("discord: failed to create opus decoder", "ssrc", pkt.SSRC, "error", err)
			return
		}
		decoders[pkt.SSRC] = dec
	}

	pcm, err := dec.decode(pkt.Opus)
	if err != nil {
		slog.Warn("discord: opus decode error", "ssrc", pkt.SSRC, "error", err)
		return
	}

	l.sink.Dispatch(sp, audio.Frame{
		Data:       pcm,
		SampleRate: opusSampleRate,
		Channels:   opusChannels,
		Timestamp:  time.Duration(pkt.Timestamp) * time.Second / time.Duration(opusSampleRate),
	})
}

// noteSpeaking records the SSRC to user mapping from a speaking update.
func (l *Listener) noteSpeaking(ssrc uint32, userID string) {
	if userID == "" {
		return
	}
	l.mu.Lock()
	l.ssrcUser[ssrc] = userID
	l.mu.Unlock()
}

// speakerForSSRC returns the resolved speaker behind an SSRC, caching the
// identity after the first lookup.
func (l *Listener) speakerForSSRC(ssrc uint32) (audio.Speaker, bool) {
	l.mu.RLock()
	userID, known := l.ssrcUser[ssrc]
	sp, cached := l.speakers[userID]
	l.mu.RUnlock()
	if !known {
		return audio.Speaker{}, false
	}
	if cached {
		return sp, true
	}

	sp = l.resolve(userID)
	l.mu.Lock()
	l.speakers[userID] = sp
	l.mu.Unlock()
	return sp, true
}

// resolveMember builds a Speaker from the guild member behind a user ID.
// Prefers the guild nick, then the global display name, then the username.
func (l *Listener) resolveMember(userID string) audio.Speaker {
	sp := audio.Speaker{ID: userID, DisplayName: userID}

	member, err := l.session.State.Member(l.guildID, userID)
	if err != nil || member == nil {
		member, err = l.session.GuildMember(l.guildID, userID)
		if err != nil || member == nil {
			slog.Warn("discord: cannot resolve guild member", "user", userID, "error", err)
			return sp
		}
	}

	if member.User != nil {
		sp.Bot = member.User.Bot
		if member.User.GlobalName != "" {
			sp.DisplayName = member.User.GlobalName
		} else if member.User.Username != "" {
			sp.DisplayName = member.User.Username
		}
	}
	if member.Nick != "" {
		sp.DisplayName = member.Nick
	}
	return sp
}
