package notify

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// messageSender is the part of *bot.Bot used here.
type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramSender mirrors user notifications into an operator chat.
type TelegramSender struct {
	client messageSender
	chatID int64
}

func NewTelegramSender(client messageSender, chatID int64) *TelegramSender {
	return &TelegramSender{client: client, chatID: chatID}
}

func (s *TelegramSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	sent, err := s.client.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    s.chatID,
		Text:      opsText(msg),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("telegram %s: %w", msg.Template, err)
	}

	r := Receipt{Sender: "telegram", At: time.Now().UTC()}
	if sent != nil {
		r.ID = strconv.Itoa(sent.ID)
	}
	return r, nil
}

func opsText(msg Message) string {
	to := html.EscapeString(msg.To)
	switch msg.Template {
	case TemplateTransactionVerified:
		return fmt.Sprintf("✅ <b>payment verified</b>\n%s\n<code>%s</code>", to, html.EscapeString(msg.Data["hash"]))
	case TemplateSubscriptionReminder:
		return fmt.Sprintf("⏳ <b>reminder</b> %s\n%s", to, html.EscapeString(msg.Data["message"]))
	case TemplateSubscriptionExpired:
		return fmt.Sprintf("⌛ <b>expired</b> %s", to)
	default:
		return fmt.Sprintf("<b>%s</b> %s", html.EscapeString(string(msg.Template)), to)
	}
}
