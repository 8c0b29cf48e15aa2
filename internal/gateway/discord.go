package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rahul/medcrew/internal/document"
)

const (
	discordMessageLimit = 2000
	discordMaxFileSize  = 25 << 20
)

type DiscordGateway struct {
	Session    *discordgo.Session
	Dispatcher *Dispatcher
	HTTPClient *http.Client
	log        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewDiscordGateway(token string, dispatcher *Dispatcher, log *slog.Logger) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	dg := &DiscordGateway{
		Session:    session,
		Dispatcher: dispatcher,
		HTTPClient: &http.Client{Timeout: time.Minute},
		log:        log.With("gateway", "discord"),
		ctx:        ctx,
		cancel:     cancel,
	}
	session.AddHandler(dg.onMessage)
	return dg, nil
}

// Start opens the websocket and blocks until Stop.
func (dg *DiscordGateway) Start() error {
	if err := dg.Session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	dg.log.Info("connected", "account", dg.Session.State.User.Username)
	<-dg.ctx.Done()
	return nil
}

func (dg *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	go dg.handle(m.Message)
}

func (dg *DiscordGateway) handle(m *discordgo.Message) {
	dg.log.Info("message received", "channel", m.ChannelID, "user", m.Author.Username, "textLen", len(m.Content), "attachments", len(m.Attachments))

	in := Incoming{ChatID: m.ChannelID, Text: m.Content}
	if len(m.Attachments) > 0 {
		att := m.Attachments[0]
		if att.Size > discordMaxFileSize {
			dg.reply(m.ChannelID, "This file is too large, the limit is 25 MB.")
			return
		}
		data, err := dg.download(att.URL)
		if err != nil {
			dg.log.Error("failed to download attachment", "channel", m.ChannelID, "error", err)
			dg.reply(m.ChannelID, "I could not download that file.")
			return
		}
		in.FileName = att.Filename
		in.File = data
	}

	stop := dg.keepTyping(m.ChannelID)
	response := dg.Dispatcher.Handle(dg.ctx, in)
	stop()

	dg.reply(m.ChannelID, response)
}

func (dg *DiscordGateway) download(url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(dg.ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := dg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: %s", resp.Status)
	}
	return document.ReadLimited(resp.Body, discordMaxFileSize)
}

// keepTyping refreshes the typing indicator, which Discord clears after ten seconds.
func (dg *DiscordGateway) keepTyping(channelID string) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(8 * time.Second)
		defer ticker.Stop()
		for {
			if err := dg.Session.ChannelTyping(channelID); err != nil {
				dg.log.Debug("typing indicator failed", "error", err)
			}
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()
	return func() { close(done) }
}

func (dg *DiscordGateway) reply(channelID, text string) {
	if err := dg.Send(channelID, text); err != nil {
		dg.log.Error("failed to send message", "channel", channelID, "error", err)
	}
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	for _, chunk := range SplitMessage(text, discordMessageLimit) {
		if _, err := dg.Session.ChannelMessageSend(chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (dg *DiscordGateway) Stop() error {
	dg.cancel()
	return dg.Session.Close()
}
