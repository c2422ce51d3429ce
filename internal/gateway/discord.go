package gateway

import (
	"context"
	"log"

	"github.com/bwmarrin/discordgo"

	"github.com/nsharma/weft/internal/agent"
)

type DiscordGateway struct {
	Session *discordgo.Session
	Brain   agent.Brain
}

func NewDiscordGateway(token string, brain agent.Brain) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	gw := &DiscordGateway{
		Session: session,
		Brain:   brain,
	}
	session.AddHandler(gw.onMessage)
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages

	return gw, nil
}

func (dg *DiscordGateway) Start() error {
	if err := dg.Session.Open(); err != nil {
		return err
	}
	log.Printf("Discord gateway connected as %s", dg.Session.State.User.Username)
	return nil
}

func (dg *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID {
		return
	}

	log.Printf("[discord:%s] %s", m.Author.Username, m.Content)

	// Channel ID doubles as the chat identifier, same as Telegram.
	go func() {
		response, err := dg.Brain.Think(context.Background(), m.ChannelID, m.Content)
		if err != nil {
			log.Printf("Error thinking: %v", err)
			response = "I'm having trouble thinking right now..."
		}
		if _, err := s.ChannelMessageSend(m.ChannelID, response); err != nil {
			log.Printf("Error sending reply to channel %s: %v", m.ChannelID, err)
		}
	}()
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	_, err := dg.Session.ChannelMessageSend(chatID, text)
	return err
}

func (dg *DiscordGateway) Stop() error {
	return dg.Session.Close()
}
