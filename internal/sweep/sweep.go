package sweep

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skoret/market-bot/internal/logger"
	"github.com/skoret/market-bot/internal/storage"
)

const interval = 5 * time.Minute

// Notifier delivers outbound chat messages. Delivery failures are expected
// (users block the bot) and must not stop the sweep.
type Notifier interface {
	SendNotification(chatID int64, text string) error
}

// Service periodically expires stale pending orders and topups and sends
// payment warnings.
type Service struct {
	repo     *storage.Repository
	notifier Notifier
	now      func() time.Time
	stop     chan struct{}
}

func NewService(repo *storage.Repository, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Run(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the sweep loop
func (s *Service) Stop() {
	close(s.stop)
}

// Run executes a single sweep tick. Every step is idempotent, so overlapping
// or repeated ticks are harmless.
func (s *Service) Run(ctx context.Context) {
	now := s.now()

	window, err := s.repo.PaymentWindow(ctx)
	if err != nil {
		logger.Log.Error("sweep: failed to read payment window", zap.Error(err))
		return
	}
	cutoff := now.Add(-window)

	if err := s.expireOrders(ctx, cutoff); err != nil {
		logger.Log.Error("sweep: order expiry failed", zap.Error(err))
	}
	if err := s.warnExpiredOrders(ctx); err != nil {
		logger.Log.Error("sweep: order warnings failed", zap.Error(err))
	}
	if err := s.expireTopups(ctx, cutoff); err != nil {
		logger.Log.Error("sweep: topup expiry failed", zap.Error(err))
	}
	if err := s.warnExpiredTopups(ctx); err != nil {
		logger.Log.Error("sweep: topup warnings failed", zap.Error(err))
	}
}

func (s *Service) expireOrders(ctx context.Context, cutoff time.Time) error {
	expired, err := s.repo.ExpireStaleOrders(ctx, cutoff)
	if err != nil {
		return err
	}
	if expired > 0 {
		logger.Log.Info("sweep: expired stale orders", zap.Int64("count", expired))
	}
	return nil
}

func (s *Service) warnExpiredOrders(ctx context.Context) error {
	orders, err := s.repo.GetExpiredUnnotifiedOrders(ctx)
	if err != nil {
		return err
	}

	for _, order := range orders {
		user, err := s.repo.GetUserByID(ctx, order.UserID)
		if err != nil || user == nil {
			logger.Log.Error("sweep: failed to get user for warning",
				zap.Int64("order_id", order.ID), zap.Error(err))
			continue
		}

		// Users who exhausted their warnings are marked silently, the
		// warning flag stays clear because nothing was delivered.
		if user.WarningsLeft <= 0 {
			if err := s.repo.SetOrderNotified(ctx, order.ID, true, false); err != nil {
				logger.Log.Error("sweep: failed to mark order notified", zap.Error(err))
			}
			continue
		}

		if err := s.repo.SetOrderNotified(ctx, order.ID, true, true); err != nil {
			logger.Log.Error("sweep: failed to mark order notified", zap.Error(err))
			continue
		}

		text := fmt.Sprintf(
			"⏰ Время оплаты заказа `%s` истекло, заказ просрочен.\n\n"+
				"Вы можете оформить новый заказ через меню.",
			order.ReferenceCode,
		)
		if err := s.notifier.SendNotification(user.TelegramID, text); err != nil {
			logger.Log.Warn("sweep: failed to deliver order warning, will retry",
				zap.Int64("order_id", order.ID), zap.Error(err))
			// Roll the flags back so the next tick retries delivery.
			if err := s.repo.SetOrderNotified(ctx, order.ID, false, false); err != nil {
				logger.Log.Error("sweep: failed to roll back warning flag", zap.Error(err))
			}
			continue
		}

		if err := s.repo.DecrementUserWarnings(ctx, user.ID); err != nil {
			logger.Log.Error("sweep: failed to decrement warnings", zap.Error(err))
		}
	}
	return nil
}

func (s *Service) expireTopups(ctx context.Context, cutoff time.Time) error {
	expired, err := s.repo.ExpireStaleTopups(ctx, cutoff)
	if err != nil {
		return err
	}
	if expired > 0 {
		logger.Log.Info("sweep: expired stale topups", zap.Int64("count", expired))
	}
	return nil
}

func (s *Service) warnExpiredTopups(ctx context.Context) error {
	topups, err := s.repo.GetExpiredUnnotifiedTopups(ctx)
	if err != nil {
		return err
	}

	for _, topup := range topups {
		user, err := s.repo.GetUserByID(ctx, topup.UserID)
		if err != nil || user == nil {
			logger.Log.Error("sweep: failed to get user for topup warning",
				zap.Int64("topup_id", topup.ID), zap.Error(err))
			continue
		}

		if err := s.repo.SetTopupWarned(ctx, topup.ID, true); err != nil {
			logger.Log.Error("sweep: failed to mark topup warned", zap.Error(err))
			continue
		}

		text := fmt.Sprintf(
			"⏰ Время оплаты пополнения `%s` истекло.\n\n"+
				"Создайте новое пополнение через меню, если хотите пополнить баланс.",
			topup.ReferenceCode,
		)
		if err := s.notifier.SendNotification(user.TelegramID, text); err != nil {
			logger.Log.Warn("sweep: failed to deliver topup warning, will retry",
				zap.Int64("topup_id", topup.ID), zap.Error(err))
			if err := s.repo.SetTopupWarned(ctx, topup.ID, false); err != nil {
				logger.Log.Error("sweep: failed to roll back topup warning flag", zap.Error(err))
			}
		}
	}
	return nil
}
