package pricing

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/skoret/market-bot/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// Quote is the result of a price computation for a single order.
type Quote struct {
	Price      decimal.Decimal
	Discount   decimal.Decimal
	TotalPrice decimal.Decimal
}

type Service struct {
	repo *storage.Repository
}

func NewService(repo *storage.Repository) *Service {
	return &Service{repo: repo}
}

// Compute builds a quote from the base price. The promocode percent and the
// referral discount are both taken from the base price and added together,
// they do not compound.
func Compute(base, promoPercent decimal.Decimal, referralCount int, perReferralPercent, maxReferralPercent decimal.Decimal) Quote {
	referralPercent := perReferralPercent.Mul(decimal.NewFromInt(int64(referralCount)))
	if referralPercent.GreaterThan(maxReferralPercent) {
		referralPercent = maxReferralPercent
	}

	discount := base.Mul(promoPercent).Div(hundred).
		Add(base.Mul(referralPercent).Div(hundred))

	return Quote{
		Price:      base,
		Discount:   discount,
		TotalPrice: base.Sub(discount),
	}
}

// PaymentAmount applies the markup and rounds to a whole unit. The markup is
// applied at display time only and never stored on the order.
func PaymentAmount(total, markupPercent decimal.Decimal) decimal.Decimal {
	return total.Mul(hundred.Add(markupPercent)).Div(hundred).Round(0)
}

// Quote computes the order quote for the user, reading the referral settings.
// promoPercent is zero when no promocode applies.
func (s *Service) Quote(ctx context.Context, base, promoPercent decimal.Decimal, userID int64) (Quote, error) {
	perReferral, err := s.repo.GetSettingDecimal(ctx, storage.SettingReferralPercent)
	if err != nil {
		return Quote{}, errors.Wrap(err, "failed to get referral percent")
	}
	maxReferral, err := s.repo.GetSettingDecimal(ctx, storage.SettingMaxReferralDiscount)
	if err != nil {
		return Quote{}, errors.Wrap(err, "failed to get max referral discount")
	}
	referrals, err := s.repo.CountReferrals(ctx, userID)
	if err != nil {
		return Quote{}, errors.Wrap(err, "failed to count referrals")
	}

	return Compute(base, promoPercent, referrals, perReferral, maxReferral), nil
}

// PaymentAmount returns the amount the payer actually sees, with the global
// markup applied.
func (s *Service) PaymentAmount(ctx context.Context, total decimal.Decimal) (decimal.Decimal, error) {
	markup, err := s.repo.GetSettingDecimal(ctx, storage.SettingMarkupPercent)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to get markup percent")
	}
	return PaymentAmount(total, markup), nil
}

// CashbackAmount computes the referral cashback for a completed order total.
func (s *Service) CashbackAmount(ctx context.Context, total decimal.Decimal) (decimal.Decimal, error) {
	percent, err := s.repo.GetSettingDecimal(ctx, storage.SettingReferralCashbackPct)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to get cashback percent")
	}
	return total.Mul(percent).Div(hundred).Round(2), nil
}
