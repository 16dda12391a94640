package gateway

import (
	"context"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"

	"github.com/rahul/orbit/internal/agent"
	"github.com/rahul/orbit/internal/steps"
	"github.com/rahul/orbit/internal/tools"
)

const SourceDiscord = "discord"

// discordLimit is the longest message, in characters, Discord accepts.
const discordLimit = 2000

type DiscordGateway struct {
	Session *discordgo.Session
	bridge  *Bridge
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewDiscordGateway(ctx context.Context, token string, a *agent.Agent, hub *steps.Hub, registry *tools.Registry) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	dg := &DiscordGateway{Session: session}
	dg.ctx, dg.cancel = context.WithCancel(ctx)
	dg.bridge = &Bridge{
		Agent:    a,
		Hub:      hub,
		Registry: registry,
		Source:   SourceDiscord,
		Send:     dg.Send,
	}
	session.AddHandler(dg.onMessage)
	return dg, nil
}

func (dg *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	log.Printf("[%s] %s", m.Author.Username, m.Content)
	dg.bridge.Handle(dg.ctx, m.ChannelID, m.Content)
}

// Start opens the gateway websocket and blocks until Stop.
func (dg *DiscordGateway) Start() error {
	if err := dg.Session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	if st := dg.Session.State; st != nil && st.User != nil {
		log.Printf("Discord connected as %s", st.User.Username)
	}
	<-dg.ctx.Done()
	return nil
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	_, err := dg.Session.ChannelMessageSend(chatID, clipMessage(text, discordLimit))
	return err
}

func (dg *DiscordGateway) Stop() error {
	dg.cancel()
	return dg.Session.Close()
}

// clipMessage shortens text to limit characters, never splitting a rune.
func clipMessage(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit-3]) + "..."
}
