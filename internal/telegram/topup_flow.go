package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/skoret/market-bot/internal/storage"
	"github.com/skoret/market-bot/internal/topups"
)

var topupCancelKeyboard = tgbotapi.NewInlineKeyboardMarkup(
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("❌ Отменить пополнение", "topup:cancel"),
	),
	tgbotapi.NewInlineKeyboardRow(goToMenuButton),
)

func (b *Bot) handleTopupStart(ctx context.Context, chatID int64, msgID int, user *storage.User) (responses, error) {
	active, err := b.topups.Active(ctx, user.ID)
	if err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}
	if active != nil {
		text := fmt.Sprintf("💰 У вас уже есть пополнение в ожидании оплаты.\n\n"+
			"Сумма: %s %s\n🔑 Код: `%s`",
			active.Amount.String(), b.currencySymbol(ctx), active.ReferenceCode)
		res := tgbotapi.NewEditMessageText(chatID, msgID, text)
		res.ParseMode = tgbotapi.ModeMarkdown
		res.ReplyMarkup = &topupCancelKeyboard
		return responses{res}, nil
	}

	methods, err := b.repo.ListPaymentMethods(ctx)
	if err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}
	if len(methods) == 0 {
		res := tgbotapi.NewEditMessageText(chatID, msgID, "Пополнение сейчас недоступно.")
		res.ReplyMarkup = &helpKeyboard
		return responses{res}, nil
	}

	res := tgbotapi.NewEditMessageText(chatID, msgID, "💰 Пополнение баланса\n\nВыберите способ оплаты:")
	res.ReplyMarkup = paymentMethodsKeyboard(methods, "topup_method")
	return responses{res}, nil
}

func (b *Bot) handleTopupMethodChosen(ctx context.Context, chatID int64, msgID int, user *storage.User, methodID int64) (responses, error) {
	method, err := b.repo.GetPaymentMethodByID(ctx, methodID)
	if err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}
	if method == nil {
		return responses{errorMessage(chatID, msgID, true)}, errors.Errorf("payment method %d not found", methodID)
	}

	if method.RequiresConfirmation {
		text := fmt.Sprintf("⚠️ Оплата «%s» проходит по реквизитам в иностранном банке.\n\nПродолжить?", method.Name)
		res := tgbotapi.NewEditMessageText(chatID, msgID, text)
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Продолжить", fmt.Sprintf("topup_confirm:%d", methodID)),
				tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "topup"),
			),
		)
		res.ReplyMarkup = &kb
		return responses{res}, nil
	}

	return b.handleTopupMethodSelected(ctx, chatID, msgID, user, methodID)
}

func (b *Bot) handleTopupMethodSelected(ctx context.Context, chatID int64, msgID int, user *storage.User, methodID int64) (responses, error) {
	_, err := b.topups.Create(ctx, user.ID, methodID)
	if err != nil {
		if errors.Is(err, topups.ErrActiveTopupExists) {
			res := tgbotapi.NewEditMessageText(chatID, msgID,
				"⚠️ У вас уже есть пополнение в ожидании оплаты.\n\nОплатите или отмените его.")
			res.ReplyMarkup = &topupCancelKeyboard
			return responses{res}, nil
		}
		return responses{errorMessage(chatID, msgID, true)}, err
	}

	payload := strconv.FormatInt(methodID, 10)
	if err := b.repo.SetSession(ctx, user.TelegramID, modeAwaitingTopupAmount, payload); err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}

	res := tgbotapi.NewEditMessageText(chatID, msgID,
		fmt.Sprintf("💰 Отправьте сумму пополнения в %s одним сообщением.\n\nНапример: 1500", b.currencySymbol(ctx)))
	return responses{res}, nil
}

func (b *Bot) handleTopupAmountInput(ctx context.Context, msg *tgbotapi.Message, user *storage.User) (responses, error) {
	amount, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(msg.Text), ",", "."))
	if err != nil || !amount.IsPositive() {
		return responses{tgbotapi.NewMessage(msg.Chat.ID,
			"❌ Не удалось распознать сумму. Отправьте положительное число, например: 1500")}, nil
	}

	if err := b.repo.ClearSession(ctx, user.TelegramID); err != nil {
		return responses{errorMessage(msg.Chat.ID, msg.MessageID, false)}, err
	}

	topup, err := b.topups.SetAmount(ctx, user.ID, amount)
	if err != nil {
		if errors.Is(err, topups.ErrNoPendingTopup) {
			return responses{tgbotapi.NewMessage(msg.Chat.ID,
				"⚠️ Пополнение не найдено. Начните заново через меню.")}, nil
		}
		return responses{errorMessage(msg.Chat.ID, msg.MessageID, false)}, err
	}

	method, err := b.repo.GetPaymentMethodByID(ctx, topup.PaymentMethodID)
	if err != nil || method == nil {
		return responses{errorMessage(msg.Chat.ID, msg.MessageID, false)}, errors.Errorf("payment method %d not found", topup.PaymentMethodID)
	}

	details, qr, err := b.paymentDetails(ctx, msg.Chat.ID, method, topup.Amount)
	if err != nil {
		if errors.Is(err, errRatesUnavailable) {
			res := tgbotapi.NewMessage(msg.Chat.ID, ratesSorry)
			res.ReplyMarkup = &topupCancelKeyboard
			return responses{res}, nil
		}
		return responses{errorMessage(msg.Chat.ID, msg.MessageID, false)}, err
	}

	b.notifyAdminAboutTopup(ctx, topup, user.Username)

	window, _ := b.repo.GetSettingInt(ctx, storage.SettingPaymentWindowMinutes)
	text := fmt.Sprintf("%s\n\n⏳ Пополнение действительно %d мин. Баланс будет зачислен после подтверждения администратором.", details, window)
	res := tgbotapi.NewMessage(msg.Chat.ID, text)
	res.ParseMode = tgbotapi.ModeMarkdown
	res.ReplyMarkup = &topupCancelKeyboard

	if qr != nil {
		return responses{res, qr}, nil
	}
	return responses{res}, nil
}

func (b *Bot) handleTopupCancel(ctx context.Context, chatID int64, msgID int, user *storage.User) (responses, error) {
	if _, err := b.topups.Cancel(ctx, user.ID); err != nil {
		if errors.Is(err, topups.ErrNoPendingTopup) {
			res := tgbotapi.NewEditMessageText(chatID, msgID, "У вас нет активного пополнения.")
			res.ReplyMarkup = &helpKeyboard
			return responses{res}, nil
		}
		return responses{errorMessage(chatID, msgID, true)}, err
	}

	res := tgbotapi.NewEditMessageText(chatID, msgID, "❌ Пополнение отменено.")
	res.ReplyMarkup = &helpKeyboard
	return responses{res}, nil
}

// notifyAdminAboutTopup pushes the awaiting topup to all registered admins.
func (b *Bot) notifyAdminAboutTopup(ctx context.Context, topup *storage.Topup, username string) {
	text := fmt.Sprintf("💰 НОВОЕ ПОПОЛНЕНИЕ\n\n"+
		"👤 Пользователь: @%s\n"+
		"💵 Сумма: %s %s\n"+
		"🔑 Код: `%s`",
		username, topup.Amount.String(), b.currencySymbol(ctx), topup.ReferenceCode)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Зачислить", fmt.Sprintf("admin:credit:%d", topup.ID)),
		),
	)
	b.notifyAdmins(text, &keyboard)
}
