package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mesbot/mesbot/internal/calendar"
	"github.com/mesbot/mesbot/internal/export"
	"github.com/mesbot/mesbot/internal/session"
)

const settingsHelp = `*Настройки:*

*Выдача на день/неделю:*
    1) *"Выдача на день":* будет высылаться домашнее задание только на завтра. В пятницу, субботу и воскресенье будет высылаться домашнее задание на понедельник.
    2) *"Выдача на неделю":* будет высылаться домашнее задание на всю неделю.

*Уведомления:*
    1) *"Уведомления вкл.":* сообщения приходят со звуком.
    2) *"Уведомления выкл.":* сообщения приходят без звука.

*Скрытие ссылок:*
    1) *"Скрыть ссылки":* ссылки прячутся под названием материала.
    2) *"Показать ссылки":* ссылки выводятся напрямую.`

const debugHelp = `Добро пожаловать, разработчик! Доступные команды:

/users - список всех пользователей
"Запрос пользователя" - ваша запись в базе
"Выкл. дебаг" - выключить режим разработчика`

func (b *Bot) handleStart(_ context.Context, req *request) error {
	text := fmt.Sprintf("Привет, %s! Я покажу расписание, оценки и домашнее задание из «Моей школы».", req.name)
	if !req.session.CheckToken() {
		text += "\n\nЧтобы начать, отправьте команду /token."
	}
	return b.reply(req, text, withKeyboard(b.mainKeyboard(req)))
}

func (b *Bot) handleTokenPrompt(_ context.Context, req *request) error {
	b.setAwaitingToken(req.userID, true)
	text := "Пожалуйста, нажмите на кнопку ниже, скопируйте и отправьте нам токен! (токен начинается с `eyJhb`)\n\n" +
		"Если вы получили другой текст, сначала перейдите по второй кнопке и войдите, а потом нажмите первую."
	return b.reply(req, text, markdown(), withKeyboard(tokenKeyboard()))
}

func (b *Bot) handleTokenInput(ctx context.Context, req *request) error {
	err := req.session.SetToken(ctx, req.text)
	if errors.Is(err, session.ErrInvalidToken) {
		b.setAwaitingToken(req.userID, true)
		return b.reply(req, "Неправильный токен, повторите попытку!")
	}
	if err != nil {
		return err
	}

	b.setAwaitingToken(req.userID, false)
	user := req.session.User()
	return b.reply(req, fmt.Sprintf("%s, ваш токен успешно зарегистрирован!", req.name),
		withKeyboard(mainKeyboard(user, b.isAdmin(user.ID))))
}

func (b *Bot) handleHomework(ctx context.Context, req *request) error {
	prefs := req.session.Preferences()
	now := b.localNow()

	date := now
	if !prefs.DeliverWeekly {
		date = calendar.NextSchoolDay(now)
	}

	wait, waitErr := b.api.Send(tgbotapi.NewMessage(req.chatID, "Ожидайте... ⌛"))
	week, err := req.session.GetHomework(ctx, date)
	if waitErr == nil {
		b.deleteMessage(req.chatID, wait.MessageID)
	}
	if err != nil {
		return err
	}

	text := FormatHomework(week, prefs.DeliverWeekly, prefs.HideLinks, calendar.ISOWeekday(date))
	return b.reply(req, text, markdown())
}

func (b *Bot) handleMarks(ctx context.Context, req *request) error {
	prefs := req.session.Preferences()
	day := calendar.LastSchoolDay(b.localNow())

	marks, err := req.session.GetMarks(ctx, day)
	if err != nil {
		return err
	}
	return b.reply(req, FormatMarks(marks, prefs.DeliverWeekly, calendar.ISOWeekday(day)),
		markdown(), withKeyboard(b.mainKeyboard(req)))
}

func (b *Bot) handleSchedule(ctx context.Context, req *request) error {
	prefs := req.session.Preferences()

	schedule, err := req.session.GetSchedule(ctx, b.localNow())
	if err != nil {
		return err
	}
	return b.reply(req, FormatSchedule(schedule, prefs.DeliverWeekly), markdown())
}

func (b *Bot) handleCalendar(ctx context.Context, req *request) error {
	now := b.localNow()
	week, err := req.session.GetHomework(ctx, now)
	if err != nil {
		return err
	}

	doc := tgbotapi.NewDocument(req.chatID, tgbotapi.FileBytes{
		Name:  export.HomeworkFileName(week),
		Bytes: []byte(export.Homework(week, now)),
	})
	doc.Caption = fmt.Sprintf("Домашнее задание на %s - %s",
		week.WindowStart.Format(dayMonth), week.WindowEnd.Format(dayMonth))
	doc.DisableNotification = !req.session.Preferences().Notify
	if _, err := b.api.Send(doc); err != nil {
		b.logger.Error("Failed to send calendar", "user_id", req.userID, "error", err)
		return err
	}
	return nil
}

func (b *Bot) handleScheduleCalendar(ctx context.Context, req *request) error {
	now := b.localNow()
	schedule, err := req.session.GetSchedule(ctx, now)
	if err != nil {
		return err
	}

	doc := tgbotapi.NewDocument(req.chatID, tgbotapi.FileBytes{
		Name:  export.ScheduleFileName(schedule),
		Bytes: []byte(export.Schedule(req.userID, schedule, now)),
	})
	doc.Caption = fmt.Sprintf("Расписание на %s", schedule.Target.Format(dayMonth))
	doc.DisableNotification = !req.session.Preferences().Notify
	if _, err := b.api.Send(doc); err != nil {
		b.logger.Error("Failed to send calendar", "user_id", req.userID, "error", err)
		return err
	}
	return nil
}

func (b *Bot) handleSettings(_ context.Context, req *request) error {
	return b.reply(req, settingsHelp, markdown(), withKeyboard(settingsKeyboard(req.session.Preferences())))
}

func (b *Bot) handleToggle(ctx context.Context, req *request) error {
	pref, ok := toggles[req.text]
	if !ok {
		return b.handleUnknown(ctx, req)
	}
	prefs, err := req.session.TogglePreference(ctx, pref)
	if err != nil {
		return err
	}
	b.logger.Debug("Preference changed", "user_id", req.userID, "button", req.text)
	return b.reply(req, "Настройки успешно изменены!", withKeyboard(settingsKeyboard(prefs)))
}

func (b *Bot) handleBack(_ context.Context, req *request) error {
	return b.reply(req, "Главное меню", withKeyboard(b.mainKeyboard(req)))
}

func (b *Bot) handleDelete(ctx context.Context, req *request) error {
	if err := req.session.Delete(ctx); err != nil {
		return err
	}
	b.setAwaitingToken(req.userID, false)
	return b.reply(req, "Аккаунт успешно удален!", withKeyboard(tgbotapi.NewRemoveKeyboard(true)))
}

func (b *Bot) handleUnknown(_ context.Context, req *request) error {
	b.logger.Info("Unknown command", "user_id", req.userID, "text", req.text)
	return b.reply(req, "Извините, нет такой команды. Пожалуйста, используйте доступные кнопки или команды.")
}

func (b *Bot) handleUsers(ctx context.Context, req *request) error {
	users, err := b.sessions.Users(ctx)
	if err != nil {
		return err
	}
	return b.reply(req, FormatUsers(users))
}

func (b *Bot) handleDebugOn(ctx context.Context, req *request) error {
	if err := req.session.SetDebug(ctx, true); err != nil {
		return err
	}
	b.logger.Warn("Debug mode enabled", "user_id", req.userID)
	return b.reply(req, fmt.Sprintf("Удачной разработки, %s! 😉", req.name), withKeyboard(b.mainKeyboard(req)))
}

func (b *Bot) handleDebugCommands(_ context.Context, req *request) error {
	return b.reply(req, debugHelp, withKeyboard(debugKeyboard()))
}

func (b *Bot) handleDebugUser(_ context.Context, req *request) error {
	data, err := json.MarshalIndent(req.session.User(), "", "    ")
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return b.reply(req, string(data))
}

func (b *Bot) handleDebugOff(ctx context.Context, req *request) error {
	if err := req.session.SetDebug(ctx, false); err != nil {
		return err
	}
	return b.reply(req, "Выключаю дебаг...", withKeyboard(b.mainKeyboard(req)))
}
