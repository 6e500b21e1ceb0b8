package telegram

import (
	"encoding/json"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type command struct {
	tgbotapi.BotCommand
	text     string
	keyboard *tgbotapi.InlineKeyboardMarkup
}

var (
	StartCmd = command{
		BotCommand: tgbotapi.BotCommand{
			Command:     "start",
			Description: "Главное меню",
		},
		text: "Добро пожаловать в магазин! Используйте меню для навигации.",
	}
	MenuCmd = command{
		BotCommand: tgbotapi.BotCommand{
			Command:     "menu",
			Description: "Меню бота",
		},
		text: "Выберите действие:",
	}
	HelpCmd = command{
		BotCommand: tgbotapi.BotCommand{
			Command:     "help",
			Description: "Помощь",
		},
		text: "ℹ️ Доступные команды:\n\n" +
			"/start - Главное меню\n" +
			"/menu - Меню бота\n" +
			"/help - Показать эту справку\n\n" +
			"🛍 Каталог - выбрать товар и оформить заказ\n" +
			"📦 Мой заказ - посмотреть или отменить активный заказ\n" +
			"💰 Пополнение - пополнить баланс\n" +
			"👤 Профиль - баланс и реферальная ссылка",
	}
	AdminCmd = command{
		BotCommand: tgbotapi.BotCommand{
			Command:     "admin",
			Description: "Админ-панель",
		},
		text: "",
	}
)

var commands = map[string]*command{
	StartCmd.Command: &StartCmd,
	MenuCmd.Command:  &MenuCmd,
	HelpCmd.Command:  &HelpCmd,
	AdminCmd.Command: &AdminCmd,
}

// setMyCommands sets bot commands
func (b *Bot) setMyCommands() error {
	params := make(tgbotapi.Params)
	data, err := json.Marshal([]tgbotapi.BotCommand{
		StartCmd.BotCommand,
		MenuCmd.BotCommand,
		HelpCmd.BotCommand,
	})
	if err != nil {
		return err
	}
	params.AddNonEmpty("commands", string(data))
	_, err = b.api.MakeRequest("setMyCommands", params)
	if err != nil {
		return err
	}
	return nil
}
