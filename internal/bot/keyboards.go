package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mesbot/mesbot/internal/domain"
	"github.com/mesbot/mesbot/internal/session"
)

// Reply keyboard labels.
const (
	btnSchedule = "Расписание 📅"
	btnMarks    = "Оценки 📝"
	btnHomework = "Домашнее задание 📓"
	btnCalendar = "Календарь 🗓"
	btnSettings = "Настройки ⚙️"

	btnWeekly     = "Выдача на неделю"
	btnDaily      = "Выдача на день"
	btnNotifyOn   = "Уведомления вкл."
	btnNotifyOff  = "Уведомления выкл."
	btnHideLinks  = "Скрыть ссылки"
	btnShowLinks  = "Показать ссылки"
	btnBack       = "Назад"
	btnDeleteUser = "Удалить аккаунт"

	btnDebugCommands = "Команды дебага"
	btnDebugUser     = "Запрос пользователя"
	btnDebugOff      = "Выкл. дебаг"
	btnMainMenu      = "В главное меню"
)

const (
	tokenRefreshURL  = "https://authedu.mosreg.ru/v2/token/refresh"
	tokenRegisterURL = "https://authedu.mosreg.ru/50"
)

// toggles maps each settings label to the preference it flips. Labels show
// the current state, so both labels of a pair flip the same preference.
var toggles = map[string]session.Preference{
	btnWeekly:    session.DeliverWeekly,
	btnDaily:     session.DeliverWeekly,
	btnNotifyOn:  session.Notify,
	btnNotifyOff: session.Notify,
	btnHideLinks: session.HideLinks,
	btnShowLinks: session.HideLinks,
}

func mainKeyboard(user domain.User, admin bool) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSchedule),
			tgbotapi.NewKeyboardButton(btnMarks),
			tgbotapi.NewKeyboardButton(btnHomework),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCalendar),
			tgbotapi.NewKeyboardButton(btnSettings),
		),
	}
	if admin && user.Debug {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnDebugCommands)))
	}
	return tgbotapi.NewReplyKeyboard(rows...)
}

func settingsKeyboard(p domain.Preferences) tgbotapi.ReplyKeyboardMarkup {
	delivery := btnDaily
	if p.DeliverWeekly {
		delivery = btnWeekly
	}
	notify := btnNotifyOff
	if p.Notify {
		notify = btnNotifyOn
	}
	links := btnShowLinks
	if p.HideLinks {
		links = btnHideLinks
	}

	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(delivery),
			tgbotapi.NewKeyboardButton(notify),
			tgbotapi.NewKeyboardButton(links),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnBack),
			tgbotapi.NewKeyboardButton(btnDeleteUser),
		),
	)
}

func tokenKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Получить токен", tokenRefreshURL),
			tgbotapi.NewInlineKeyboardButtonURL("Если токена нет", tokenRegisterURL),
		),
	)
}

func debugKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnDebugUser)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnDebugOff)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnMainMenu)),
	)
}
