package topups

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skoret/market-bot/internal/logger"
	"github.com/skoret/market-bot/internal/storage"
)

var (
	// ErrActiveTopupExists is returned when a pending topup with an amount
	// already awaits payment.
	ErrActiveTopupExists = errors.New("user already has an active topup")
	// ErrInvalidAmount rejects non-positive topup amounts.
	ErrInvalidAmount = errors.New("topup amount must be positive")
	// ErrNoPendingTopup is returned by operations that need a pending topup.
	ErrNoPendingTopup = errors.New("no pending topup")
)

type Service struct {
	repo *storage.Repository
	now  func() time.Time
}

func NewService(repo *storage.Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// Active returns the user's pending topup with a set amount, if any. A pending
// row with zero amount is an unfinished flow and does not count.
func (s *Service) Active(ctx context.Context, userID int64) (*storage.Topup, error) {
	topup, err := s.repo.GetPendingTopupByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if topup == nil || topup.Amount.IsZero() {
		return nil, nil
	}
	return topup, nil
}

// Create starts a topup with the chosen payment method and no amount yet. An
// unfinished zero-amount topup is cancelled and replaced; a topup already
// awaiting payment blocks creation.
func (s *Service) Create(ctx context.Context, userID, methodID int64) (*storage.Topup, error) {
	pending, err := s.repo.GetPendingTopupByUserID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to check pending topup")
	}
	if pending != nil {
		if !pending.Amount.IsZero() {
			return nil, ErrActiveTopupExists
		}
		if _, err := s.repo.TransitionTopupStatus(ctx, pending.ID, storage.TopupStatusPending, storage.TopupStatusCancelled); err != nil {
			return nil, errors.Wrap(err, "failed to cancel unfinished topup")
		}
	}

	topup := &storage.Topup{
		UserID:          userID,
		ReferenceCode:   uuid.NewString(),
		Amount:          decimal.Zero,
		PaymentMethodID: methodID,
		Status:          storage.TopupStatusPending,
		CreatedAt:       s.now(),
	}
	if err := s.repo.CreateTopup(ctx, topup); err != nil {
		return nil, err
	}

	logger.Log.Info("topup created",
		zap.Int64("topup_id", topup.ID),
		zap.Int64("user_id", userID),
		zap.Int64("method_id", methodID))
	return topup, nil
}

// SetAmount fills in the amount the user entered in the second step.
func (s *Service) SetAmount(ctx context.Context, userID int64, amount decimal.Decimal) (*storage.Topup, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	topup, err := s.repo.GetPendingTopupByUserID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get pending topup")
	}
	if topup == nil {
		return nil, ErrNoPendingTopup
	}

	if err := s.repo.SetTopupAmount(ctx, topup.ID, amount); err != nil {
		return nil, errors.Wrap(err, "failed to set topup amount")
	}
	topup.Amount = amount
	return topup, nil
}

// Cancel cancels the user's pending topup.
func (s *Service) Cancel(ctx context.Context, userID int64) (*storage.Topup, error) {
	topup, err := s.repo.GetPendingTopupByUserID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get pending topup")
	}
	if topup == nil {
		return nil, ErrNoPendingTopup
	}

	moved, err := s.repo.TransitionTopupStatus(ctx, topup.ID, storage.TopupStatusPending, storage.TopupStatusCancelled)
	if err != nil {
		return nil, errors.Wrap(err, "failed to cancel topup")
	}
	if !moved {
		return nil, ErrNoPendingTopup
	}

	topup.Status = storage.TopupStatusCancelled
	logger.Log.Info("topup cancelled",
		zap.Int64("topup_id", topup.ID), zap.Int64("user_id", userID))
	return topup, nil
}

// Credit completes the topup and credits the user's balance. Only the admin
// panel triggers it after verifying the incoming payment.
func (s *Service) Credit(ctx context.Context, topupID int64) error {
	if err := s.repo.CompleteTopupAndCredit(ctx, topupID); err != nil {
		return errors.Wrap(err, "failed to credit topup")
	}
	logger.Log.Info("topup credited", zap.Int64("topup_id", topupID))
	return nil
}
