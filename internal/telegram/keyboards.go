package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/skoret/market-bot/internal/storage"
)

var (
	mainMenuKeyboard = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🛍 Каталог", "catalog"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📦 Мой заказ", "order:view"),
			tgbotapi.NewInlineKeyboardButtonData("💰 Пополнение", "topup"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👤 Профиль", "profile"),
			tgbotapi.NewInlineKeyboardButtonData("ℹ️ Помощь", HelpCmd.Command),
		),
	)

	goToMenuButton = tgbotapi.NewInlineKeyboardButtonData("◀️ Меню", MenuCmd.Command)

	helpKeyboard = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(goToMenuButton),
	)

	activeOrderKeyboard = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📦 Посмотреть заказ", "order:view"),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отменить заказ", "order:cancel"),
		),
		tgbotapi.NewInlineKeyboardRow(goToMenuButton),
	)

	adminKeyboard = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 Заказы", "admin:orders"),
			tgbotapi.NewInlineKeyboardButtonData("💰 Пополнения", "admin:topups"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⚙️ Настройки", "admin:settings"),
		),
		tgbotapi.NewInlineKeyboardRow(goToMenuButton),
	)
)

func citiesKeyboard(cities []*storage.City) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, city := range cities {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(city.Name, fmt.Sprintf("city:%d", city.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(goToMenuButton))
	return &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func districtsKeyboard(cityID int64, districts []*storage.District) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, d := range districts {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(d.Name, fmt.Sprintf("district:%d:%d", cityID, d.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("◀️ Города", "catalog"),
	))
	return &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func productsKeyboard(cityID, districtID int64, products []*storage.Product, symbol string) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range products {
		label := fmt.Sprintf("%s — %s %s", p.Name, p.Price.String(), symbol)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("product:%d:%d:%d", p.ID, cityID, districtID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("◀️ Районы", fmt.Sprintf("city:%d", cityID)),
	))
	return &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func productCardKeyboard(productID, cityID, districtID int64) *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Оформить заказ", fmt.Sprintf("order:new:%d:%d:%d", productID, cityID, districtID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎟 У меня есть промокод", fmt.Sprintf("promo:%d:%d:%d", productID, cityID, districtID)),
		),
		tgbotapi.NewInlineKeyboardRow(goToMenuButton),
	)
	return &kb
}

func paymentMethodsKeyboard(methods []*storage.PaymentMethod, prefix string) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, m := range methods {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(m.Name, fmt.Sprintf("%s:%d", prefix, m.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(goToMenuButton))
	return &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func init() {
	StartCmd.keyboard = &mainMenuKeyboard
	MenuCmd.keyboard = &mainMenuKeyboard
	HelpCmd.keyboard = &helpKeyboard
}
