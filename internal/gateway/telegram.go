package gateway

import (
	"context"
	"fmt"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rahul/orbit/internal/agent"
	"github.com/rahul/orbit/internal/steps"
	"github.com/rahul/orbit/internal/tools"
)

const SourceTelegram = "telegram"

type TelegramGateway struct {
	Bot    *tgbotapi.BotAPI
	bridge *Bridge
	ctx    context.Context
	cancel context.CancelFunc
}

func NewTelegramGateway(ctx context.Context, token string, a *agent.Agent, hub *steps.Hub, registry *tools.Registry) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login failed: %w", err)
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	tg := &TelegramGateway{Bot: bot}
	tg.ctx, tg.cancel = context.WithCancel(ctx)
	tg.bridge = &Bridge{
		Agent:    a,
		Hub:      hub,
		Registry: registry,
		Source:   SourceTelegram,
		Send:     tg.Send,
	}
	return tg, nil
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-tg.ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}

			log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)

			chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
			tg.bridge.Handle(tg.ctx, chatID, update.Message.Text)
		}
	}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(id, text)
	_, err = tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.cancel()
	tg.Bot.StopReceivingUpdates()
	return nil
}
