package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skoret/market-bot/internal/logger"
	"github.com/skoret/market-bot/internal/storage"
)

// editableSettings lists the keys the admin panel exposes, with labels.
var editableSettings = []struct {
	key   string
	label string
}{
	{storage.SettingMarkupPercent, "Наценка, %"},
	{storage.SettingPaymentWindowMinutes, "Окно оплаты, мин"},
	{storage.SettingCurrencySymbol, "Символ валюты"},
	{storage.SettingReferralPercent, "Скидка за реферала, %"},
	{storage.SettingMaxReferralDiscount, "Макс. реферальная скидка, %"},
	{storage.SettingReferralCashbackPct, "Кэшбэк рефереру, %"},
	{storage.SettingCancelCooldownMinutes, "Кулдаун после отмены, мин"},
}

func (b *Bot) handleAdminCallback(ctx context.Context, chatID int64, msgID int, user *storage.User, data string) (responses, error) {
	if !b.isAdmin(user.Username) {
		res := tgbotapi.NewEditMessageText(chatID, msgID, "❌ У вас нет прав администратора.")
		res.ReplyMarkup = &helpKeyboard
		return responses{res}, nil
	}

	switch {
	case data == "admin":
		res := tgbotapi.NewEditMessageText(chatID, msgID, "👑 Админ-панель")
		res.ReplyMarkup = &adminKeyboard
		return responses{res}, nil
	case data == "admin:orders":
		return b.handleAdminOrders(ctx, chatID, msgID)
	case data == "admin:topups":
		return b.handleAdminTopups(ctx, chatID, msgID)
	case data == "admin:settings":
		return b.handleAdminSettings(ctx, chatID, msgID)
	case strings.HasPrefix(data, "admin:set:"):
		return b.handleAdminSettingStart(ctx, chatID, msgID, user, strings.TrimPrefix(data, "admin:set:"))
	case strings.HasPrefix(data, "admin:paid:"):
		orderID, err := parseID(strings.TrimPrefix(data, "admin:paid:"))
		if err != nil {
			return nil, err
		}
		return b.handleAdminOrderPaid(ctx, chatID, msgID, orderID)
	case strings.HasPrefix(data, "admin:complete:"):
		orderID, err := parseID(strings.TrimPrefix(data, "admin:complete:"))
		if err != nil {
			return nil, err
		}
		return b.handleAdminOrderComplete(ctx, chatID, msgID, orderID)
	case strings.HasPrefix(data, "admin:credit:"):
		topupID, err := parseID(strings.TrimPrefix(data, "admin:credit:"))
		if err != nil {
			return nil, err
		}
		return b.handleAdminTopupCredit(ctx, chatID, msgID, topupID)
	}

	return responses{errorMessage(chatID, msgID, true)}, errors.Errorf("unknown admin callback: %s", data)
}

func (b *Bot) handleAdminOrders(ctx context.Context, chatID int64, msgID int) (responses, error) {
	pending, err := b.repo.ListOrdersByStatus(ctx, storage.OrderStatusPending)
	if err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}
	paid, err := b.repo.ListOrdersByStatus(ctx, storage.OrderStatusPaid)
	if err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}

	if len(pending) == 0 && len(paid) == 0 {
		res := tgbotapi.NewEditMessageText(chatID, msgID, "📋 Активных заказов нет.")
		res.ReplyMarkup = &adminKeyboard
		return responses{res}, nil
	}

	symbol := b.currencySymbol(ctx)
	var sb strings.Builder
	var rows [][]tgbotapi.InlineKeyboardButton
	sb.WriteString("📋 Активные заказы\n")

	for _, order := range pending {
		sb.WriteString(fmt.Sprintf("\n#%d — %s %s, ожидает оплаты\n`%s`\n",
			order.ID, order.TotalPrice.String(), symbol, order.ReferenceCode))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("✅ #%d оплачен", order.ID), fmt.Sprintf("admin:paid:%d", order.ID)),
		))
	}
	for _, order := range paid {
		sb.WriteString(fmt.Sprintf("\n#%d — %s %s, оплачен\n`%s`\n",
			order.ID, order.TotalPrice.String(), symbol, order.ReferenceCode))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("📦 #%d выдан", order.ID), fmt.Sprintf("admin:complete:%d", order.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("◀️ Назад", "admin"),
	))

	res := tgbotapi.NewEditMessageText(chatID, msgID, sb.String())
	res.ParseMode = tgbotapi.ModeMarkdown
	res.ReplyMarkup = &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
	return responses{res}, nil
}

func (b *Bot) handleAdminTopups(ctx context.Context, chatID int64, msgID int) (responses, error) {
	pending, err := b.repo.ListTopupsByStatus(ctx, storage.TopupStatusPending)
	if err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}

	symbol := b.currencySymbol(ctx)
	var sb strings.Builder
	var rows [][]tgbotapi.InlineKeyboardButton
	sb.WriteString("💰 Пополнения в ожидании\n")

	count := 0
	for _, topup := range pending {
		if topup.Amount.IsZero() {
			continue // unfinished flow, nothing to credit
		}
		count++
		sb.WriteString(fmt.Sprintf("\n#%d — %s %s\n`%s`\n",
			topup.ID, topup.Amount.String(), symbol, topup.ReferenceCode))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("✅ #%d зачислить", topup.ID), fmt.Sprintf("admin:credit:%d", topup.ID)),
		))
	}

	if count == 0 {
		res := tgbotapi.NewEditMessageText(chatID, msgID, "💰 Пополнений в ожидании нет.")
		res.ReplyMarkup = &adminKeyboard
		return responses{res}, nil
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("◀️ Назад", "admin"),
	))
	res := tgbotapi.NewEditMessageText(chatID, msgID, sb.String())
	res.ParseMode = tgbotapi.ModeMarkdown
	res.ReplyMarkup = &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
	return responses{res}, nil
}

func (b *Bot) handleAdminSettings(ctx context.Context, chatID int64, msgID int) (responses, error) {
	var sb strings.Builder
	var rows [][]tgbotapi.InlineKeyboardButton
	sb.WriteString("⚙️ Настройки\n\n")

	for _, s := range editableSettings {
		value, err := b.repo.GetSetting(ctx, s.key)
		if err != nil {
			return responses{errorMessage(chatID, msgID, true)}, err
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", s.label, value))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✏️ "+s.label, "admin:set:"+s.key),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("◀️ Назад", "admin"),
	))

	res := tgbotapi.NewEditMessageText(chatID, msgID, sb.String())
	res.ReplyMarkup = &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
	return responses{res}, nil
}

func (b *Bot) handleAdminSettingStart(ctx context.Context, chatID int64, msgID int, user *storage.User, key string) (responses, error) {
	if settingLabel(key) == "" {
		return responses{errorMessage(chatID, msgID, true)}, errors.Errorf("unknown setting key: %s", key)
	}
	if err := b.repo.SetSession(ctx, user.TelegramID, modeAwaitingSetting, key); err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}

	res := tgbotapi.NewEditMessageText(chatID, msgID,
		fmt.Sprintf("✏️ Отправьте новое значение для «%s» одним сообщением.\n\nДля отмены используйте /menu", settingLabel(key)))
	return responses{res}, nil
}

func (b *Bot) handleSettingInput(ctx context.Context, msg *tgbotapi.Message, user *storage.User, key string) (responses, error) {
	if !b.isAdmin(user.Username) {
		if err := b.repo.ClearSession(ctx, user.TelegramID); err != nil {
			return nil, err
		}
		return responses{tgbotapi.NewMessage(msg.Chat.ID, "❌ У вас нет прав администратора.")}, nil
	}

	value := strings.TrimSpace(msg.Text)
	if err := validateSetting(key, value); err != nil {
		return responses{tgbotapi.NewMessage(msg.Chat.ID,
			"❌ Некорректное значение, попробуйте ещё раз.")}, nil
	}

	if err := b.repo.ClearSession(ctx, user.TelegramID); err != nil {
		return responses{errorMessage(msg.Chat.ID, msg.MessageID, false)}, err
	}
	if err := b.repo.SetSetting(ctx, key, value); err != nil {
		return responses{errorMessage(msg.Chat.ID, msg.MessageID, false)}, err
	}

	res := tgbotapi.NewMessage(msg.Chat.ID,
		fmt.Sprintf("✅ «%s» обновлено: %s", settingLabel(key), value))
	res.ReplyMarkup = &adminKeyboard
	return responses{res}, nil
}

func (b *Bot) handleAdminOrderPaid(ctx context.Context, chatID int64, msgID int, orderID int64) (responses, error) {
	if err := b.orders.MarkPaid(ctx, orderID); err != nil {
		res := tgbotapi.NewEditMessageText(chatID, msgID,
			fmt.Sprintf("⚠️ Заказ #%d не в ожидании оплаты, статус не изменён.", orderID))
		res.ReplyMarkup = &adminKeyboard
		return responses{res}, nil
	}

	b.notifyOrderUser(ctx, orderID, "✅ Оплата получена! Заказ передан на выдачу.")

	res := tgbotapi.NewEditMessageText(chatID, msgID,
		fmt.Sprintf("✅ Заказ #%d отмечен оплаченным.", orderID))
	res.ReplyMarkup = &adminKeyboard
	return responses{res}, nil
}

func (b *Bot) handleAdminOrderComplete(ctx context.Context, chatID int64, msgID int, orderID int64) (responses, error) {
	if err := b.orders.Complete(ctx, orderID); err != nil {
		res := tgbotapi.NewEditMessageText(chatID, msgID,
			fmt.Sprintf("⚠️ Заказ #%d не оплачен, статус не изменён.", orderID))
		res.ReplyMarkup = &adminKeyboard
		return responses{res}, nil
	}

	b.notifyOrderUser(ctx, orderID, "📦 Ваш заказ выдан. Спасибо за покупку!")

	res := tgbotapi.NewEditMessageText(chatID, msgID,
		fmt.Sprintf("📦 Заказ #%d завершён.", orderID))
	res.ReplyMarkup = &adminKeyboard
	return responses{res}, nil
}

func (b *Bot) handleAdminTopupCredit(ctx context.Context, chatID int64, msgID int, topupID int64) (responses, error) {
	if err := b.topups.Credit(ctx, topupID); err != nil {
		res := tgbotapi.NewEditMessageText(chatID, msgID,
			fmt.Sprintf("⚠️ Пополнение #%d не в ожидании, баланс не изменён.", topupID))
		res.ReplyMarkup = &adminKeyboard
		return responses{res}, nil
	}

	if topup, err := b.repo.GetTopupByID(ctx, topupID); err == nil && topup != nil {
		if user, err := b.repo.GetUserByID(ctx, topup.UserID); err == nil && user != nil {
			text := fmt.Sprintf("💰 Баланс пополнен на %s %s.", topup.Amount.String(), b.currencySymbol(ctx))
			if err := b.SendNotification(user.TelegramID, text); err != nil {
				logger.Log.Warn("failed to notify user about topup",
					zap.Int64("topup_id", topupID), zap.Error(err))
			}
		}
	}

	res := tgbotapi.NewEditMessageText(chatID, msgID,
		fmt.Sprintf("✅ Пополнение #%d зачислено.", topupID))
	res.ReplyMarkup = &adminKeyboard
	return responses{res}, nil
}

func (b *Bot) notifyOrderUser(ctx context.Context, orderID int64, text string) {
	order, err := b.repo.GetOrderByID(ctx, orderID)
	if err != nil || order == nil {
		return
	}
	user, err := b.repo.GetUserByID(ctx, order.UserID)
	if err != nil || user == nil {
		return
	}
	if err := b.SendNotification(user.TelegramID, text); err != nil {
		logger.Log.Warn("failed to notify user about order",
			zap.Int64("order_id", orderID), zap.Error(err))
	}
}

func settingLabel(key string) string {
	for _, s := range editableSettings {
		if s.key == key {
			return s.label
		}
	}
	return ""
}

func validateSetting(key, value string) error {
	if value == "" {
		return errors.New("empty value")
	}
	switch key {
	case storage.SettingCurrencySymbol:
		return nil
	case storage.SettingPaymentWindowMinutes, storage.SettingCancelCooldownMinutes:
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		if n <= 0 {
			return errors.New("minutes must be positive")
		}
		return nil
	default:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return err
		}
		if d.IsNegative() {
			return errors.New("percent must not be negative")
		}
		return nil
	}
}
