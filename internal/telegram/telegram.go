package telegram

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/skoret/market-bot/internal/logger"
	"github.com/skoret/market-bot/internal/orders"
	"github.com/skoret/market-bot/internal/pricing"
	"github.com/skoret/market-bot/internal/rates"
	"github.com/skoret/market-bot/internal/storage"
	"github.com/skoret/market-bot/internal/topups"
)

type Bot struct {
	wg           *sync.WaitGroup
	api          *tgbotapi.BotAPI
	repo         *storage.Repository
	orders       *orders.Service
	topups       *topups.Service
	pricing      *pricing.Service
	rates        *rates.Client
	admins       map[string]struct{} // Admin usernames
	adminChatIDs map[string]int64    // Admin username -> chat_id mapping
	adminMutex   sync.RWMutex
}

// NewBot creates new Bot instance
func NewBot(
	token string,
	adminUsernames string,
	repo *storage.Repository,
	orderService *orders.Service,
	topupService *topups.Service,
	pricingService *pricing.Service,
	ratesClient *rates.Client,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("bot authorized", zap.String("username", api.Self.UserName))

	var admins map[string]struct{}
	if len(adminUsernames) != 0 {
		users := strings.Split(adminUsernames, ",")
		admins = make(map[string]struct{}, len(users))
		for _, user := range users {
			admins[strings.TrimSpace(user)] = struct{}{}
		}
	}

	bot := &Bot{
		wg:           &sync.WaitGroup{},
		api:          api,
		repo:         repo,
		orders:       orderService,
		topups:       topupService,
		pricing:      pricingService,
		rates:        ratesClient,
		admins:       admins,
		adminChatIDs: make(map[string]int64),
	}

	if err := bot.setMyCommands(); err != nil {
		return nil, err
	}

	return bot, nil
}

// SendNotification sends a notification message to a user
func (b *Bot) SendNotification(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) Run(ctx context.Context) error {
	defer b.wg.Wait()

	config := tgbotapi.NewUpdate(0)
	config.Timeout = 30

	// Start polling Telegram for updates
	updates := b.api.GetUpdatesChan(config)

	for {
		select {
		case update := <-updates:
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				if errs := b.handle(&update); errs != nil {
					for _, err := range errs {
						logger.Log.Error("update handling failed", zap.Error(err))
					}
				}
			}()
		case <-ctx.Done():
			logger.Log.Info("stopping bot", zap.Error(ctx.Err()))
			b.api.StopReceivingUpdates()
			return nil
		}
	}
}

func (b *Bot) isAdmin(user string) bool {
	if len(b.admins) == 0 {
		return false
	}
	_, ok := b.admins[user]
	return ok
}

func (b *Bot) handle(update *tgbotapi.Update) []error {
	var res []tgbotapi.Chattable
	var err error
	errs := make([]error, 0)
	switch {
	case update.Message != nil:
		res, err = b.handleMessage(update.Message)
	case update.CallbackQuery != nil:
		res, err = b.handleQuery(update.CallbackQuery)
	default:
		errs = append(errs, errors.New("unable to handle such update"))
	}
	if err != nil {
		errs = append(errs, err)
	}
	for _, resp := range res {
		if err := b.send(resp); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (b *Bot) send(c tgbotapi.Chattable) error {
	if c == nil {
		return nil
	}
	if _, err := b.api.Send(c); err != nil {
		return errors.Wrap(err, "failed to send message")
	}
	return nil
}

// registerAdmin registers admin chat_id when they send /start
func (b *Bot) registerAdmin(username string, chatID int64) {
	if username == "" {
		return
	}
	b.adminMutex.Lock()
	defer b.adminMutex.Unlock()
	if _, isAdmin := b.admins[username]; isAdmin {
		b.adminChatIDs[username] = chatID
		logger.Log.Info("admin registered", zap.String("username", username), zap.Int64("chat_id", chatID))
	}
}

// getAdminChatIDs returns all admin chat IDs
func (b *Bot) getAdminChatIDs() []int64 {
	b.adminMutex.RLock()
	defer b.adminMutex.RUnlock()
	chatIDs := make([]int64, 0, len(b.adminChatIDs))
	for _, chatID := range b.adminChatIDs {
		chatIDs = append(chatIDs, chatID)
	}
	return chatIDs
}

// notifyAdmins pushes a message to every registered admin chat.
func (b *Bot) notifyAdmins(text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	chatIDs := b.getAdminChatIDs()
	if len(chatIDs) == 0 {
		logger.Log.Warn("no admin chat ids registered, notification dropped")
		return
	}
	for _, chatID := range chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		if err := b.send(msg); err != nil {
			logger.Log.Warn("failed to notify admin", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
}
