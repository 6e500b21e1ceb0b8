package telegram

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/yeqown/go-qrcode"
	"go.uber.org/zap"

	"github.com/skoret/market-bot/internal/logger"
	"github.com/skoret/market-bot/internal/rates"
	"github.com/skoret/market-bot/internal/storage"
)

// fiatCode is the fiat currency orders are priced in.
const fiatCode = "RUB"

// errRatesUnavailable marks soft failures of the external rate services.
var errRatesUnavailable = errors.New("exchange rates unavailable")

const ratesSorry = "😔 Не удалось получить курс обмена, попробуйте ещё раз чуть позже."

func (b *Bot) handlePaymentMethodChosen(ctx context.Context, chatID int64, msgID int, user *storage.User, methodID int64) (responses, error) {
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
				tgbotapi.NewInlineKeyboardButtonData("✅ Продолжить", fmt.Sprintf("paymethod_confirm:%d", methodID)),
				tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "order:view"),
			),
		)
		res.ReplyMarkup = &kb
		return responses{res}, nil
	}

	return b.handlePaymentMethodSelected(ctx, chatID, msgID, user, methodID)
}

func (b *Bot) handlePaymentMethodSelected(ctx context.Context, chatID int64, msgID int, user *storage.User, methodID int64) (responses, error) {
	order, err := b.orders.SelectPaymentMethod(ctx, user.ID, methodID)
	if err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}

	method, err := b.repo.GetPaymentMethodByID(ctx, methodID)
	if err != nil || method == nil {
		return responses{errorMessage(chatID, msgID, true)}, errors.Errorf("payment method %d not found", methodID)
	}

	amount, err := b.pricing.PaymentAmount(ctx, order.TotalPrice)
	if err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}

	window, _ := b.repo.GetSettingInt(ctx, storage.SettingPaymentWindowMinutes)
	details, qr, err := b.paymentDetails(ctx, chatID, method, amount)
	if err != nil {
		if errors.Is(err, errRatesUnavailable) {
			// Re-offer the methods so the user can retry without cancelling.
			methods, mErr := b.repo.ListPaymentMethods(ctx)
			if mErr != nil {
				return responses{errorMessage(chatID, msgID, true)}, mErr
			}
			res := tgbotapi.NewEditMessageText(chatID, msgID, ratesSorry+"\n\n💳 Выберите способ оплаты:")
			res.ReplyMarkup = paymentMethodsKeyboard(methods, "paymethod")
			return responses{res}, nil
		}
		return responses{errorMessage(chatID, msgID, true)}, err
	}

	text := fmt.Sprintf("%s\n\n⏳ Заказ действителен %d мин. После оплаты администратор подтвердит заказ.", details, window)
	res := tgbotapi.NewEditMessageText(chatID, msgID, text)
	res.ParseMode = tgbotapi.ModeMarkdown
	res.ReplyMarkup = &activeOrderKeyboard

	if qr != nil {
		return responses{res, qr}, nil
	}
	return responses{res}, nil
}

// paymentDetails renders the payment instructions for the method and amount.
// For crypto methods the fiat amount is converted via the external rate APIs;
// their failure is soft and reported as errRatesUnavailable.
func (b *Bot) paymentDetails(ctx context.Context, chatID int64, method *storage.PaymentMethod, amount decimal.Decimal) (string, tgbotapi.Chattable, error) {
	symbol := b.currencySymbol(ctx)

	switch method.Kind {
	case storage.PaymentMethodCrypto:
		addr, err := b.repo.NextPaymentAddress(ctx, method.ID)
		if err != nil {
			return "", nil, err
		}
		if addr == nil {
			return "", nil, errors.Errorf("no payment addresses for method %d", method.ID)
		}

		converted, err := b.rates.Convert(ctx, amount, fiatCode, method.Currency)
		if err != nil {
			logger.Log.Warn("rate conversion failed",
				zap.String("currency", method.Currency), zap.Error(err))
			return "", nil, errRatesUnavailable
		}

		text := fmt.Sprintf("💳 Оплата %s\n\n"+
			"К оплате: %s %s (%s %s)\n\n"+
			"Адрес для перевода:\n`%s`",
			method.Name, amount.String(), symbol,
			rates.Format(converted, method.Currency), method.Currency,
			addr.Address)
		return text, addressQR(chatID, addr.Address), nil

	case storage.PaymentMethodCard:
		acc, err := b.repo.GetCardAccount(ctx, method.ID)
		if err != nil {
			return "", nil, err
		}
		if acc == nil {
			return "", nil, errors.Errorf("no card account for method %d", method.ID)
		}

		text := fmt.Sprintf("💳 Оплата %s\n\n"+
			"К оплате: %s %s\n\n"+
			"Номер карты:\n`%s`\n"+
			"Получатель: %s",
			method.Name, amount.String(), symbol, acc.CardNumber, acc.Holder)
		return text, nil, nil
	}

	return "", nil, errors.Errorf("unknown payment method kind: %s", method.Kind)
}

func addressQR(chatID int64, address string) tgbotapi.Chattable {
	options := []qrcode.ImageOption{
		qrcode.WithQRWidth(7),
		qrcode.WithBuiltinImageEncoder(qrcode.PNG_FORMAT),
	}
	qrc, err := qrcode.New(address, options...)
	if err != nil {
		logger.Log.Warn("failed to create qr code", zap.Error(err))
		return nil
	}
	buf := bytes.Buffer{}
	if err := qrc.SaveTo(&buf); err != nil {
		logger.Log.Warn("failed to encode qr code", zap.Error(err))
		return nil
	}
	name := strconv.FormatInt(time.Now().Unix(), 10)
	return tgbotapi.NewPhoto(chatID, tgbotapi.FileReader{
		Name:   name + ".png",
		Reader: &buf,
	})
}
