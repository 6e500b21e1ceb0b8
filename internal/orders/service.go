package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skoret/market-bot/internal/logger"
	"github.com/skoret/market-bot/internal/pricing"
	"github.com/skoret/market-bot/internal/storage"
)

var (
	// ErrActiveOrderExists mirrors the storage-level constraint for the
	// service-level pre-check.
	ErrActiveOrderExists = storage.ErrActiveOrderExists
	// ErrCooldownActive is returned while the post-cancellation block holds.
	ErrCooldownActive = errors.New("order creation is blocked after cancellation")
	// ErrInvalidPromocode covers unknown, exhausted and expired codes.
	ErrInvalidPromocode = errors.New("promocode is invalid")
	// ErrNoActiveOrder is returned by operations that need an active order.
	ErrNoActiveOrder = errors.New("no active order")
)

type Service struct {
	repo    *storage.Repository
	pricing *pricing.Service
	now     func() time.Time
}

func NewService(repo *storage.Repository, pricingService *pricing.Service) *Service {
	return &Service{
		repo:    repo,
		pricing: pricingService,
		now:     time.Now,
	}
}

// Active returns the user's pending or paid order without side effects.
func (s *Service) Active(ctx context.Context, userID int64) (*storage.Order, error) {
	return s.repo.GetActiveOrderByUserID(ctx, userID)
}

// Create creates a pending order for the user. It refuses when the user has an
// active order or is inside the cancellation cooldown. The insert and the
// promocode consumption share one transaction; the unique index on active
// orders backs up the pre-check under concurrent requests.
func (s *Service) Create(ctx context.Context, userID, productID, cityID, districtID int64, promoCode string) (*storage.Order, error) {
	now := s.now()

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user")
	}
	if user == nil {
		return nil, errors.New("user not found")
	}
	if user.CooldownUntil != nil && now.Before(*user.CooldownUntil) {
		return nil, ErrCooldownActive
	}

	if active, err := s.repo.GetActiveOrderByUserID(ctx, userID); err != nil {
		return nil, errors.Wrap(err, "failed to check active order")
	} else if active != nil {
		return nil, ErrActiveOrderExists
	}

	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get product")
	}
	if product == nil {
		return nil, errors.New("product not found")
	}

	var promo *storage.Promocode
	promoPercent := decimal.Zero
	if promoCode != "" {
		promo, err = s.validPromocode(ctx, promoCode, now)
		if err != nil {
			return nil, err
		}
		promoPercent = promo.Percent
	}

	quote, err := s.pricing.Quote(ctx, product.Price, promoPercent, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute quote")
	}

	order := &storage.Order{
		UserID:        userID,
		ProductID:     productID,
		CityID:        cityID,
		DistrictID:    districtID,
		ReferenceCode: uuid.NewString(),
		Price:         quote.Price,
		Discount:      quote.Discount,
		TotalPrice:    quote.TotalPrice,
		Status:        storage.OrderStatusPending,
		CreatedAt:     now,
	}
	if promo != nil {
		order.PromocodeID = &promo.ID
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := s.repo.CreateOrder(ctx, tx, order); err != nil {
		return nil, err
	}
	if promo != nil {
		if err := s.repo.ConsumePromocode(ctx, tx, promo.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit order")
	}

	logger.Log.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.String("total", order.TotalPrice.String()))

	return order, nil
}

func (s *Service) validPromocode(ctx context.Context, code string, now time.Time) (*storage.Promocode, error) {
	promo, err := s.repo.GetPromocodeByCode(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get promocode")
	}
	if promo == nil {
		return nil, ErrInvalidPromocode
	}
	if promo.Uses >= promo.MaxUses {
		return nil, ErrInvalidPromocode
	}
	if promo.ExpiresAt != nil && now.After(*promo.ExpiresAt) {
		return nil, ErrInvalidPromocode
	}
	return promo, nil
}

// SelectPaymentMethod attaches the payment method to the user's pending order.
func (s *Service) SelectPaymentMethod(ctx context.Context, userID, methodID int64) (*storage.Order, error) {
	order, err := s.repo.GetActiveOrderByUserID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get active order")
	}
	if order == nil || order.Status != storage.OrderStatusPending {
		return nil, ErrNoActiveOrder
	}

	if err := s.repo.SetOrderPaymentMethod(ctx, order.ID, methodID); err != nil {
		return nil, errors.Wrap(err, "failed to set payment method")
	}
	order.PaymentMethodID = &methodID
	return order, nil
}

// Cancel cancels the user's active order and starts the cooldown.
func (s *Service) Cancel(ctx context.Context, userID int64) (*storage.Order, error) {
	order, err := s.repo.GetActiveOrderByUserID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get active order")
	}
	if order == nil {
		return nil, ErrNoActiveOrder
	}

	moved, err := s.repo.TransitionOrderStatus(ctx, order.ID, order.Status, storage.OrderStatusCancelled)
	if err != nil {
		return nil, errors.Wrap(err, "failed to cancel order")
	}
	if !moved {
		return nil, ErrNoActiveOrder
	}

	cooldown, err := s.repo.CancelCooldown(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get cancel cooldown")
	}
	until := s.now().Add(cooldown)
	if err := s.repo.SetUserCooldown(ctx, userID, until); err != nil {
		return nil, errors.Wrap(err, "failed to set cooldown")
	}

	order.Status = storage.OrderStatusCancelled
	logger.Log.Info("order cancelled",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.Time("cooldown_until", until))
	return order, nil
}

// MarkPaid records the external payment confirmation. Only the admin panel
// triggers it; there is no automated detection.
func (s *Service) MarkPaid(ctx context.Context, orderID int64) error {
	moved, err := s.repo.TransitionOrderStatus(ctx, orderID, storage.OrderStatusPending, storage.OrderStatusPaid)
	if err != nil {
		return errors.Wrap(err, "failed to mark order paid")
	}
	if !moved {
		return errors.Errorf("order %d is not pending", orderID)
	}
	return nil
}

// Complete finishes a paid order and credits referral cashback to the buyer's
// referrer, if any. The cashback credit is best-effort after the transition.
func (s *Service) Complete(ctx context.Context, orderID int64) error {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return errors.Wrap(err, "failed to get order")
	}
	if order == nil {
		return errors.Errorf("order %d not found", orderID)
	}

	moved, err := s.repo.TransitionOrderStatus(ctx, orderID, storage.OrderStatusPaid, storage.OrderStatusCompleted)
	if err != nil {
		return errors.Wrap(err, "failed to complete order")
	}
	if !moved {
		return errors.Errorf("order %d is not paid", orderID)
	}

	if err := s.payCashback(ctx, order); err != nil {
		logger.Log.Error("failed to pay referral cashback",
			zap.Int64("order_id", orderID), zap.Error(err))
	}
	return nil
}

func (s *Service) payCashback(ctx context.Context, order *storage.Order) error {
	user, err := s.repo.GetUserByID(ctx, order.UserID)
	if err != nil {
		return err
	}
	if user == nil || user.ReferrerID == nil {
		return nil
	}

	cashback, err := s.pricing.CashbackAmount(ctx, order.TotalPrice)
	if err != nil {
		return err
	}
	if cashback.IsZero() {
		return nil
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.repo.CreditBalance(ctx, tx, *user.ReferrerID, cashback); err != nil {
		return err
	}
	return tx.Commit()
}
