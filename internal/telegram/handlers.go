package telegram

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/skoret/market-bot/internal/storage"
)

type responses []tgbotapi.Chattable

// Conversational modes persisted in the sessions table.
const (
	modeAwaitingPromo       = "awaiting_promo"
	modeAwaitingTopupAmount = "awaiting_topup_amount"
	modeAwaitingSetting     = "awaiting_setting"
)

func (b *Bot) handleMessage(msg *tgbotapi.Message) (responses, error) {
	ctx := context.Background()

	user, err := b.repo.GetOrCreateUser(ctx, msg.From.ID, msg.From.UserName)
	if err != nil {
		return responses{errorMessage(msg.Chat.ID, msg.MessageID, false)}, errors.Wrap(err, "failed to get/create user")
	}

	if msg.IsCommand() {
		return b.handleCommand(ctx, msg, user)
	}

	// Not a command: check whether the user is mid-dialog.
	session, err := b.repo.GetSession(ctx, user.TelegramID)
	if err != nil {
		return responses{errorMessage(msg.Chat.ID, msg.MessageID, false)}, err
	}
	if session != nil {
		return b.handleSessionInput(ctx, msg, user, session)
	}

	return responses{tgbotapi.NewMessage(msg.Chat.ID, "Используйте кнопки меню или команду /menu")}, nil
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, user *storage.User) (responses, error) {
	// Any command drops the current dialog.
	if err := b.repo.ClearSession(ctx, user.TelegramID); err != nil {
		return responses{errorMessage(msg.Chat.ID, msg.MessageID, false)}, err
	}

	cmd, ok := commands[msg.Command()]
	if !ok {
		return responses{tgbotapi.NewMessage(msg.Chat.ID, "Неизвестная команда. Используйте /menu")}, nil
	}

	switch msg.Command() {
	case "start":
		if msg.From.UserName != "" {
			b.registerAdmin(msg.From.UserName, msg.Chat.ID)
		}
		// /start <referrer_id> records the referral once.
		if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" {
			if referrerID, err := strconv.ParseInt(arg, 10, 64); err == nil {
				if err := b.repo.SetReferrer(ctx, user.ID, referrerID); err != nil {
					return responses{errorMessage(msg.Chat.ID, msg.MessageID, false)}, err
				}
			}
		}
	case "admin":
		if !b.isAdmin(user.Username) {
			return responses{tgbotapi.NewMessage(msg.Chat.ID, "❌ У вас нет прав администратора.")}, nil
		}
		res := tgbotapi.NewMessage(msg.Chat.ID, "👑 Админ-панель")
		res.ReplyMarkup = &adminKeyboard
		return responses{res}, nil
	}

	res := tgbotapi.NewMessage(msg.Chat.ID, cmd.text)
	res.ReplyMarkup = cmd.keyboard
	return responses{res}, nil
}

func (b *Bot) handleSessionInput(ctx context.Context, msg *tgbotapi.Message, user *storage.User, session *storage.Session) (responses, error) {
	switch session.Mode {
	case modeAwaitingPromo:
		return b.handlePromoInput(ctx, msg, user, session.Payload)
	case modeAwaitingTopupAmount:
		return b.handleTopupAmountInput(ctx, msg, user)
	case modeAwaitingSetting:
		return b.handleSettingInput(ctx, msg, user, session.Payload)
	default:
		if err := b.repo.ClearSession(ctx, user.TelegramID); err != nil {
			return nil, err
		}
		return responses{tgbotapi.NewMessage(msg.Chat.ID, "Используйте кнопки меню или команду /menu")}, nil
	}
}

func (b *Bot) handleQuery(query *tgbotapi.CallbackQuery) (responses, error) {
	if query.Message == nil {
		return nil, errors.New("callback query received without message")
	}

	chatID, msgID := query.Message.Chat.ID, query.Message.MessageID
	ctx := context.Background()

	user, err := b.repo.GetOrCreateUser(ctx, query.From.ID, query.From.UserName)
	if err != nil {
		return responses{errorMessage(chatID, msgID, true)}, errors.Wrap(err, "failed to get/create user")
	}

	callback := tgbotapi.NewCallback(query.ID, "")
	if _, err := b.api.Request(callback); err != nil {
		return responses{errorMessage(chatID, msgID, true)}, errors.Wrap(err, "failed to ack callback query")
	}

	resps, err := b.handleCallbackData(ctx, chatID, msgID, user, query.Data)
	if err != nil {
		return responses{errorMessage(chatID, msgID, true)}, err
	}
	return resps, nil
}

func (b *Bot) handleCallbackData(ctx context.Context, chatID int64, msgID int, user *storage.User, data string) (responses, error) {
	// Menu commands rendered as edits. The admin entry goes through the gated
	// admin handler below instead.
	if cmd, ok := commands[data]; ok && data != AdminCmd.Command {
		if err := b.repo.ClearSession(ctx, user.TelegramID); err != nil {
			return nil, err
		}
		res := tgbotapi.NewEditMessageText(chatID, msgID, cmd.text)
		res.ReplyMarkup = cmd.keyboard
		return responses{res}, nil
	}

	switch {
	case data == "catalog":
		return b.handleCatalog(ctx, chatID, msgID)
	case strings.HasPrefix(data, "city:"):
		cityID, err := parseID(strings.TrimPrefix(data, "city:"))
		if err != nil {
			return nil, err
		}
		return b.handleCity(ctx, chatID, msgID, cityID)
	case strings.HasPrefix(data, "district:"):
		ids, err := parseIDs(strings.TrimPrefix(data, "district:"), 2)
		if err != nil {
			return nil, err
		}
		return b.handleDistrict(ctx, chatID, msgID, ids[0], ids[1])
	case strings.HasPrefix(data, "product:"):
		ids, err := parseIDs(strings.TrimPrefix(data, "product:"), 3)
		if err != nil {
			return nil, err
		}
		return b.handleProductCard(ctx, chatID, msgID, user, ids[0], ids[1], ids[2])
	case strings.HasPrefix(data, "order:new:"):
		ids, err := parseIDs(strings.TrimPrefix(data, "order:new:"), 3)
		if err != nil {
			return nil, err
		}
		return b.handleOrderCreate(ctx, chatID, msgID, user, ids[0], ids[1], ids[2], "")
	case strings.HasPrefix(data, "promo:"):
		return b.handlePromoStart(ctx, chatID, msgID, user, strings.TrimPrefix(data, "promo:"))
	case data == "order:view":
		return b.handleOrderView(ctx, chatID, msgID, user)
	case data == "order:cancel":
		return b.handleOrderCancel(ctx, chatID, msgID, user)
	case strings.HasPrefix(data, "paymethod_confirm:"):
		methodID, err := parseID(strings.TrimPrefix(data, "paymethod_confirm:"))
		if err != nil {
			return nil, err
		}
		return b.handlePaymentMethodSelected(ctx, chatID, msgID, user, methodID)
	case strings.HasPrefix(data, "paymethod:"):
		methodID, err := parseID(strings.TrimPrefix(data, "paymethod:"))
		if err != nil {
			return nil, err
		}
		return b.handlePaymentMethodChosen(ctx, chatID, msgID, user, methodID)
	case data == "topup":
		return b.handleTopupStart(ctx, chatID, msgID, user)
	case strings.HasPrefix(data, "topup_confirm:"):
		methodID, err := parseID(strings.TrimPrefix(data, "topup_confirm:"))
		if err != nil {
			return nil, err
		}
		return b.handleTopupMethodSelected(ctx, chatID, msgID, user, methodID)
	case strings.HasPrefix(data, "topup_method:"):
		methodID, err := parseID(strings.TrimPrefix(data, "topup_method:"))
		if err != nil {
			return nil, err
		}
		return b.handleTopupMethodChosen(ctx, chatID, msgID, user, methodID)
	case data == "topup:cancel":
		return b.handleTopupCancel(ctx, chatID, msgID, user)
	case data == "profile":
		return b.handleProfile(ctx, chatID, msgID, user)
	case strings.HasPrefix(data, "admin"):
		return b.handleAdminCallback(ctx, chatID, msgID, user, data)
	}

	return responses{errorMessage(chatID, msgID, true)}, errors.Errorf("unknown callback data: %s", data)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "bad callback id: %s", s)
	}
	return id, nil
}

func parseIDs(s string, n int) ([]int64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != n {
		return nil, errors.Errorf("bad callback payload: %s", s)
	}
	ids := make([]int64, n)
	for i, part := range parts {
		id, err := parseID(part)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

const sorry = "Что-то пошло не так, извините 👉🏻👈🏻"

func errorMessage(chatID int64, msgID int, edit bool) (res tgbotapi.Chattable) {
	if edit {
		res = tgbotapi.NewEditMessageTextAndMarkup(
			chatID, msgID, sorry,
			tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(goToMenuButton),
			),
		)
	} else {
		res = tgbotapi.NewMessage(chatID, sorry)
	}
	return
}
