// Package gateway connects the moderation handler to Discord through
// discordgo.
package gateway

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/whisper/modbot/internal/bot"
)

// Intents are the gateway intents the bot needs: guild message events and
// their content.
const Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

// Discord is a gateway session.
type Discord struct {
	session *discordgo.Session
	log     logrus.FieldLogger
}

// New prepares a session for the given bot token. Nothing is dialed until
// Open.
func New(token string, log logrus.FieldLogger) (*Discord, error) {
	if token == "" {
		return nil, fmt.Errorf("gateway: empty token")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("gateway: new session: %w", err)
	}
	s.Identify.Intents = Intents

	return &Discord{session: s, log: log.WithField("component", "gateway")}, nil
}

// OnReady registers fn to receive the bot's own user ID once connected.
func (d *Discord) OnReady(fn func(selfID string)) {
	d.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		if r.User == nil {
			return
		}
		d.log.WithField("user_id", r.User.ID).Infof("%s is connected!", r.User.Username)
		fn(r.User.ID)
	})
}

// OnMessage registers fn for every message created in a visible channel.
func (d *Discord) OnMessage(fn func(bot.Message)) {
	d.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		fn(ToMessage(m))
	})
}

// Open connects to the gateway.
func (d *Discord) Open() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("gateway: open: %w", err)
	}
	return nil
}

// Close disconnects from the gateway.
func (d *Discord) Close() error {
	return d.session.Close()
}

// DeleteMessage removes a message through the REST API.
func (d *Discord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return d.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
}

// ToMessage converts a discordgo event into a bot.Message.
func ToMessage(m *discordgo.MessageCreate) bot.Message {
	if m == nil || m.Message == nil {
		return bot.Message{}
	}
	msg := bot.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorIsBot = m.Author.Bot
	}
	return msg
}
