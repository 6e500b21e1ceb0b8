package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/skoret/market-bot/internal/orders"
	"github.com/skoret/market-bot/internal/storage"
)

func (b *Bot) currencySymbol(ctx context.Context) string {
	symbol, err := b.repo.GetSetting(ctx, storage.SettingCurrencySymbol)
	if err != nil {
		return "₽"
	}
	return symbol
}

func (b *Bot) handleCatalog(ctx context.Context, chatID int64, msgID int) (responses, error) {
	cities, err := b.repo.ListCities(ctx)
	if err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}
	if len(cities) == 0 {
		res := tgbotapi.NewEditMessageText(chatID, msgID, "Каталог пока пуст.")
		res.ReplyMarkup = &helpKeyboard
		return responses{res}, nil
	}

	res := tgbotapi.NewEditMessageText(chatID, msgID, "🏙 Выберите город:")
	res.ReplyMarkup = citiesKeyboard(cities)
	return responses{res}, nil
}

func (b *Bot) handleCity(ctx context.Context, chatID int64, msgID int, cityID int64) (responses, error) {
	districts, err := b.repo.ListDistricts(ctx, cityID)
	if err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}
	if len(districts) == 0 {
		res := tgbotapi.NewEditMessageText(chatID, msgID, "В этом городе пока нет районов доставки.")
		res.ReplyMarkup = &helpKeyboard
		return responses{res}, nil
	}

	res := tgbotapi.NewEditMessageText(chatID, msgID, "📍 Выберите район:")
	res.ReplyMarkup = districtsKeyboard(cityID, districts)
	return responses{res}, nil
}

func (b *Bot) handleDistrict(ctx context.Context, chatID int64, msgID int, cityID, districtID int64) (responses, error) {
	products, err := b.repo.ListProducts(ctx)
	if err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}
	if len(products) == 0 {
		res := tgbotapi.NewEditMessageText(chatID, msgID, "Товаров пока нет.")
		res.ReplyMarkup = &helpKeyboard
		return responses{res}, nil
	}

	res := tgbotapi.NewEditMessageText(chatID, msgID, "🛍 Выберите товар:")
	res.ReplyMarkup = productsKeyboard(cityID, districtID, products, b.currencySymbol(ctx))
	return responses{res}, nil
}

func (b *Bot) handleProductCard(ctx context.Context, chatID int64, msgID int, user *storage.User, productID, cityID, districtID int64) (responses, error) {
	product, err := b.repo.GetProductByID(ctx, productID)
	if err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}
	if product == nil {
		return responses{errorMessage(chatID, msgID, true)}, errors.Errorf("product %d not found", productID)
	}

	text := fmt.Sprintf("🛍 %s\n\n%s\n\n💵 Цена: %s %s",
		product.Name, product.Description, product.Price.String(), b.currencySymbol(ctx))
	res := tgbotapi.NewEditMessageText(chatID, msgID, text)
	res.ReplyMarkup = productCardKeyboard(productID, cityID, districtID)
	return responses{res}, nil
}

// handleOrderCreate creates the order and renders either the payment method
// selection or a guiding error.
func (b *Bot) handleOrderCreate(ctx context.Context, chatID int64, msgID int, user *storage.User, productID, cityID, districtID int64, promoCode string) (responses, error) {
	order, err := b.orders.Create(ctx, user.ID, productID, cityID, districtID, promoCode)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrActiveOrderExists):
			res := tgbotapi.NewEditMessageText(chatID, msgID,
				"⚠️ У вас уже есть активный заказ.\n\nОплатите или отмените его, прежде чем оформлять новый.")
			res.ReplyMarkup = &activeOrderKeyboard
			return responses{res}, nil
		case errors.Is(err, orders.ErrCooldownActive):
			minutes, _ := b.repo.GetSettingInt(ctx, storage.SettingCancelCooldownMinutes)
			res := tgbotapi.NewEditMessageText(chatID, msgID,
				fmt.Sprintf("⚠️ После отмены заказа оформление нового доступно через %d мин.", minutes))
			res.ReplyMarkup = &helpKeyboard
			return responses{res}, nil
		case errors.Is(err, orders.ErrInvalidPromocode):
			res := tgbotapi.NewEditMessageText(chatID, msgID,
				"❌ Промокод не найден, уже использован или истёк.")
			res.ReplyMarkup = productCardKeyboard(productID, cityID, districtID)
			return responses{res}, nil
		}
		return responses{errorMessage(chatID, msgID, true)}, err
	}

	b.notifyAdminAboutOrder(ctx, order, user.Username)

	methods, err := b.repo.ListPaymentMethods(ctx)
	if err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}

	text := b.orderSummaryText(ctx, order) + "\n\n💳 Выберите способ оплаты:"
	res := tgbotapi.NewEditMessageText(chatID, msgID, text)
	res.ParseMode = tgbotapi.ModeMarkdown
	res.ReplyMarkup = paymentMethodsKeyboard(methods, "paymethod")
	return responses{res}, nil
}

func (b *Bot) orderSummaryText(ctx context.Context, order *storage.Order) string {
	symbol := b.currencySymbol(ctx)
	var sb strings.Builder
	sb.WriteString("📦 Ваш заказ\n\n")
	if product, err := b.repo.GetProductByID(ctx, order.ProductID); err == nil && product != nil {
		sb.WriteString(fmt.Sprintf("• Товар: %s\n", product.Name))
	}
	sb.WriteString(fmt.Sprintf("• Цена: %s %s\n", order.Price.String(), symbol))
	if order.Discount.IsPositive() {
		sb.WriteString(fmt.Sprintf("• Скидка: %s %s\n", order.Discount.String(), symbol))
	}
	sb.WriteString(fmt.Sprintf("• Итого: %s %s\n", order.TotalPrice.String(), symbol))
	sb.WriteString(fmt.Sprintf("\n🔑 Код заказа: `%s`", order.ReferenceCode))
	return sb.String()
}

func (b *Bot) handlePromoStart(ctx context.Context, chatID int64, msgID int, user *storage.User, payload string) (responses, error) {
	if _, err := parseIDs(payload, 3); err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}
	if err := b.repo.SetSession(ctx, user.TelegramID, modeAwaitingPromo, payload); err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}

	res := tgbotapi.NewEditMessageText(chatID, msgID,
		"🎟 Отправьте промокод сообщением.\n\nДля отмены используйте /menu")
	return responses{res}, nil
}

func (b *Bot) handlePromoInput(ctx context.Context, msg *tgbotapi.Message, user *storage.User, payload string) (responses, error) {
	if err := b.repo.ClearSession(ctx, user.TelegramID); err != nil {
		return responses{errorMessage(msg.Chat.ID, msg.MessageID, false)}, err
	}

	ids, err := parseIDs(payload, 3)
	if err != nil {
		return responses{errorMessage(msg.Chat.ID, msg.MessageID, false)}, err
	}

	code := strings.TrimSpace(msg.Text)
	order, err := b.orders.Create(ctx, user.ID, ids[0], ids[1], ids[2], code)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrInvalidPromocode):
			return responses{tgbotapi.NewMessage(msg.Chat.ID,
				"❌ Промокод не найден, уже использован или истёк.\n\nОформите заказ без промокода через каталог.")}, nil
		case errors.Is(err, orders.ErrActiveOrderExists):
			res := tgbotapi.NewMessage(msg.Chat.ID,
				"⚠️ У вас уже есть активный заказ.\n\nОплатите или отмените его, прежде чем оформлять новый.")
			res.ReplyMarkup = &activeOrderKeyboard
			return responses{res}, nil
		case errors.Is(err, orders.ErrCooldownActive):
			minutes, _ := b.repo.GetSettingInt(ctx, storage.SettingCancelCooldownMinutes)
			return responses{tgbotapi.NewMessage(msg.Chat.ID,
				fmt.Sprintf("⚠️ После отмены заказа оформление нового доступно через %d мин.", minutes))}, nil
		}
		return responses{errorMessage(msg.Chat.ID, msg.MessageID, false)}, err
	}

	b.notifyAdminAboutOrder(ctx, order, user.Username)

	methods, err := b.repo.ListPaymentMethods(ctx)
	if err != nil {
		return responses{errorMessage(msg.Chat.ID, msg.MessageID, false)}, err
	}

	res := tgbotapi.NewMessage(msg.Chat.ID, b.orderSummaryText(ctx, order)+"\n\n💳 Выберите способ оплаты:")
	res.ParseMode = tgbotapi.ModeMarkdown
	res.ReplyMarkup = paymentMethodsKeyboard(methods, "paymethod")
	return responses{res}, nil
}

func (b *Bot) handleOrderView(ctx context.Context, chatID int64, msgID int, user *storage.User) (responses, error) {
	order, err := b.orders.Active(ctx, user.ID)
	if err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}
	if order == nil {
		res := tgbotapi.NewEditMessageText(chatID, msgID, "У вас нет активного заказа.")
		res.ReplyMarkup = &helpKeyboard
		return responses{res}, nil
	}

	status := "ожидает оплаты"
	if order.Status == storage.OrderStatusPaid {
		status = "оплачен, ожидает выдачи"
	}
	text := b.orderSummaryText(ctx, order) + fmt.Sprintf("\n\n📌 Статус: %s", status)

	res := tgbotapi.NewEditMessageText(chatID, msgID, text)
	res.ParseMode = tgbotapi.ModeMarkdown
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отменить заказ", "order:cancel"),
		),
		tgbotapi.NewInlineKeyboardRow(goToMenuButton),
	)
	res.ReplyMarkup = &kb
	return responses{res}, nil
}

func (b *Bot) handleOrderCancel(ctx context.Context, chatID int64, msgID int, user *storage.User) (responses, error) {
	_, err := b.orders.Cancel(ctx, user.ID)
	if err != nil {
		if errors.Is(err, orders.ErrNoActiveOrder) {
			res := tgbotapi.NewEditMessageText(chatID, msgID, "У вас нет активного заказа.")
			res.ReplyMarkup = &helpKeyboard
			return responses{res}, nil
		}
		return responses{errorMessage(chatID, msgID, true)}, err
	}

	minutes, _ := b.repo.GetSettingInt(ctx, storage.SettingCancelCooldownMinutes)
	res := tgbotapi.NewEditMessageText(chatID, msgID,
		fmt.Sprintf("❌ Заказ отменён.\n\nНовый заказ можно оформить через %d мин.", minutes))
	res.ReplyMarkup = &helpKeyboard
	return responses{res}, nil
}

func (b *Bot) handleProfile(ctx context.Context, chatID int64, msgID int, user *storage.User) (responses, error) {
	referrals, err := b.repo.CountReferrals(ctx, user.ID)
	if err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}

	text := fmt.Sprintf("👤 Профиль\n\n"+
		"💰 Баланс: %s %s\n"+
		"👥 Приглашено: %d\n\n"+
		"🔗 Ваша реферальная ссылка:\n"+
		"https://t.me/%s?start=%d",
		user.Balance.String(), b.currencySymbol(ctx), referrals, b.api.Self.UserName, user.ID)

	res := tgbotapi.NewEditMessageText(chatID, msgID, text)
	res.ReplyMarkup = &helpKeyboard
	return responses{res}, nil
}

// notifyAdminAboutOrder pushes the new order to all registered admins.
func (b *Bot) notifyAdminAboutOrder(ctx context.Context, order *storage.Order, username string) {
	text := fmt.Sprintf("📦 НОВЫЙ ЗАКАЗ\n\n"+
		"👤 Пользователь: @%s\n"+
		"💵 Сумма: %s %s\n"+
		"🔑 Код заказа: `%s`",
		username, order.TotalPrice.String(), b.currencySymbol(ctx), order.ReferenceCode)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Оплачен", fmt.Sprintf("admin:paid:%d", order.ID)),
		),
	)
	b.notifyAdmins(text, &keyboard)
}
