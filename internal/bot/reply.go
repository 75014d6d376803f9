package bot

import (
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mesbot/mesbot/internal/calendar"
	"github.com/mesbot/mesbot/internal/domain"
)

const (
	msgNoToken      = "У вас отсутствует токен! Пожалуйста, введите команду /token, чтобы получить его!"
	msgExpiredToken = "Срок действия токена истёк! Пожалуйста, введите команду /token, чтобы получить новый токен."
	msgServerError  = "Произошла ошибка при получении информации. Повторите попытку позже."
)

// userMessage turns an error into the text shown to the user.
func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoToken):
		return msgNoToken
	case errors.Is(err, domain.ErrExpiredToken):
		return msgExpiredToken
	default:
		return msgServerError
	}
}

type replyOption func(*tgbotapi.MessageConfig)

func markdown() replyOption {
	return func(m *tgbotapi.MessageConfig) { m.ParseMode = tgbotapi.ModeMarkdown }
}

func withKeyboard(markup any) replyOption {
	return func(m *tgbotapi.MessageConfig) { m.ReplyMarkup = markup }
}

// reply sends text to the request's chat. Sound follows the user's notify
// preference once a session is known. Send failures are logged only; there
// is no channel left to report them on.
func (b *Bot) reply(req *request, text string, opts ...replyOption) error {
	msg := tgbotapi.NewMessage(req.chatID, text)
	if req.session != nil {
		msg.DisableNotification = !req.session.Preferences().Notify
	}
	for _, opt := range opts {
		opt(&msg)
	}

	_, err := b.api.Send(msg)
	if err != nil && msg.ParseMode != "" {
		b.logger.Warn("Formatted message rejected, resending as plain text", "user_id", req.userID, "error", err)
		msg.ParseMode = ""
		_, err = b.api.Send(msg)
	}
	if err != nil {
		b.logger.Error("Failed to send message", "user_id", req.userID, "error", err)
	}
	return nil
}

// replyError logs err and tells the user what went wrong.
func (b *Bot) replyError(req *request, err error) {
	var se *domain.ServerError
	switch {
	case errors.Is(err, domain.ErrNoToken):
		b.logger.Debug("Request without token", "user_id", req.userID)
	case errors.Is(err, domain.ErrExpiredToken):
		b.logger.Info("Portal token expired", "user_id", req.userID)
	case errors.As(err, &se):
		b.logger.Warn("Portal request failed", "user_id", req.userID, "status", se.StatusCode, "error", err)
	case errors.Is(err, calendar.ErrInvalidWeekday):
		b.logger.Error("Weekday out of range", "user_id", req.userID, "error", err)
	default:
		b.logger.Error("Handler failed", "user_id", req.userID, "text", req.text, "error", err)
	}
	_ = b.reply(req, userMessage(err))
}

func (b *Bot) deleteMessage(chatID int64, messageID int) {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.logger.Debug("Failed to delete message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) mainKeyboard(req *request) tgbotapi.ReplyKeyboardMarkup {
	if req.session == nil {
		return mainKeyboard(domain.User{}, false)
	}
	user := req.session.User()
	return mainKeyboard(user, b.isAdmin(user.ID))
}
