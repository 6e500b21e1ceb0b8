package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name          string
		base          decimal.Decimal
		promoPercent  decimal.Decimal
		referralCount int
		perReferral   decimal.Decimal
		maxReferral   decimal.Decimal
		wantDiscount  decimal.Decimal
		wantTotal     decimal.Decimal
	}{
		{
			name:         "no discounts",
			base:         d("1000"),
			promoPercent: decimal.Zero,
			perReferral:  d("1"),
			maxReferral:  d("10"),
			wantDiscount: d("0"),
			wantTotal:    d("1000"),
		},
		{
			name:         "promocode only",
			base:         d("1000"),
			promoPercent: d("10"),
			perReferral:  d("1"),
			maxReferral:  d("10"),
			wantDiscount: d("100"),
			wantTotal:    d("900"),
		},
		{
			name:          "referrals only",
			base:          d("1000"),
			promoPercent:  decimal.Zero,
			referralCount: 3,
			perReferral:   d("1"),
			maxReferral:   d("10"),
			wantDiscount:  d("30"),
			wantTotal:     d("970"),
		},
		{
			name:          "referral discount capped",
			base:          d("1000"),
			promoPercent:  decimal.Zero,
			referralCount: 50,
			perReferral:   d("1"),
			maxReferral:   d("10"),
			wantDiscount:  d("100"),
			wantTotal:     d("900"),
		},
		{
			name:          "promo and referrals add up without compounding",
			base:          d("1000"),
			promoPercent:  d("10"),
			referralCount: 5,
			perReferral:   d("1"),
			maxReferral:   d("10"),
			wantDiscount:  d("150"),
			wantTotal:     d("850"),
		},
		{
			name:         "fractional base",
			base:         d("999.99"),
			promoPercent: d("10"),
			perReferral:  d("1"),
			maxReferral:  d("10"),
			wantDiscount: d("99.999"),
			wantTotal:    d("899.991"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.base, tt.promoPercent, tt.referralCount, tt.perReferral, tt.maxReferral)
			assert.True(t, tt.base.Equal(got.Price), "price: want %s, got %s", tt.base, got.Price)
			assert.True(t, tt.wantDiscount.Equal(got.Discount), "discount: want %s, got %s", tt.wantDiscount, got.Discount)
			assert.True(t, tt.wantTotal.Equal(got.TotalPrice), "total: want %s, got %s", tt.wantTotal, got.TotalPrice)
		})
	}
}

func TestPaymentAmount(t *testing.T) {
	tests := []struct {
		name   string
		total  decimal.Decimal
		markup decimal.Decimal
		want   decimal.Decimal
	}{
		{
			name:   "zero markup keeps the total",
			total:  d("900"),
			markup: decimal.Zero,
			want:   d("900"),
		},
		{
			name:   "markup applied",
			total:  d("1000"),
			markup: d("5"),
			want:   d("1050"),
		},
		{
			name:   "result rounded to whole units",
			total:  d("999"),
			markup: d("3"),
			want:   d("1029"), // 1028.97 rounds up
		},
		{
			name:   "fractional total rounded half away from zero",
			total:  d("850.5"),
			markup: decimal.Zero,
			want:   d("851"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PaymentAmount(tt.total, tt.markup)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}
