package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rahul/medcrew/internal/document"
)

const (
	telegramMessageLimit = 4096
	// Bot API download limit.
	telegramMaxFileSize = 20 << 20
)

type TelegramGateway struct {
	Bot        *tgbotapi.BotAPI
	Dispatcher *Dispatcher
	HTTPClient *http.Client
	log        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewTelegramGateway(token string, dispatcher *Dispatcher, log *slog.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("gateway", "telegram")
	log.Info("authorized", "account", bot.Self.UserName)

	ctx, cancel := context.WithCancel(context.Background())
	return &TelegramGateway{
		Bot:        bot,
		Dispatcher: dispatcher,
		HTTPClient: &http.Client{Timeout: time.Minute},
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}
		go tg.handle(update.Message)
	}
	return nil
}

func (tg *TelegramGateway) handle(m *tgbotapi.Message) {
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	user := ""
	if m.From != nil {
		user = m.From.UserName
	}
	tg.log.Info("message received", "chat", chatID, "user", user, "textLen", len(m.Text), "document", m.Document != nil)

	in := Incoming{ChatID: chatID, Text: m.Text}
	if m.Document != nil {
		in.Text = m.Caption
		if m.Document.FileSize > telegramMaxFileSize {
			tg.reply(m.Chat.ID, "This file is too large, the limit is 20 MB.")
			return
		}
		data, err := tg.download(m.Document.FileID)
		if err != nil {
			tg.log.Error("failed to download document", "chat", chatID, "error", err)
			tg.reply(m.Chat.ID, "I could not download that file.")
			return
		}
		in.FileName = m.Document.FileName
		in.File = data
	}

	stop := tg.keepTyping(m.Chat.ID)
	response := tg.Dispatcher.Handle(tg.ctx, in)
	stop()

	tg.reply(m.Chat.ID, response)
}

func (tg *TelegramGateway) download(fileID string) ([]byte, error) {
	url, err := tg.Bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(tg.ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := tg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: %s", resp.Status)
	}
	return document.ReadLimited(resp.Body, telegramMaxFileSize)
}

// keepTyping shows the typing indicator until the returned func is called.
func (tg *TelegramGateway) keepTyping(chatID int64) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(4 * time.Second)
		defer ticker.Stop()
		for {
			if _, err := tg.Bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
				tg.log.Debug("typing indicator failed", "error", err)
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

func (tg *TelegramGateway) reply(chatID int64, text string) {
	for _, chunk := range SplitMessage(text, telegramMessageLimit) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := tg.Bot.Send(msg); err != nil {
			// Model output is not always valid Telegram markdown.
			msg.ParseMode = ""
			if _, err := tg.Bot.Send(msg); err != nil {
				tg.log.Error("failed to send message", "chat", chatID, "error", err)
				return
			}
		}
	}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	for _, chunk := range SplitMessage(text, telegramMessageLimit) {
		msg := tgbotapi.NewMessage(id, chunk)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := tg.Bot.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

func (tg *TelegramGateway) Stop() error {
	tg.cancel()
	tg.Bot.StopReceivingUpdates()
	return nil
}
