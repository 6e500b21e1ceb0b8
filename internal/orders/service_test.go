package orders

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skoret/market-bot/internal/pricing"
	"github.com/skoret/market-bot/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Repository) {
	t.Helper()

	repo, err := storage.NewRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.Migrate(context.Background()))
	return NewService(repo, pricing.NewService(repo)), repo
}

func seedCatalog(t *testing.T, repo *storage.Repository, price string) (userID, productID, cityID, districtID int64) {
	t.Helper()
	ctx := context.Background()

	user, err := repo.GetOrCreateUser(ctx, 100500, "buyer")
	require.NoError(t, err)

	city := &storage.City{Name: "Казань"}
	require.NoError(t, repo.CreateCity(ctx, city))
	district := &storage.District{CityID: city.ID, Name: "Вахитовский"}
	require.NoError(t, repo.CreateDistrict(ctx, district))
	product := &storage.Product{
		Name:        "Товар",
		Description: "Описание",
		Price:       decimal.RequireFromString(price),
	}
	require.NoError(t, repo.CreateProduct(ctx, product))

	return user.ID, product.ID, city.ID, district.ID
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	userID, productID, cityID, districtID := seedCatalog(t, repo, "1000")

	order, err := svc.Create(ctx, userID, productID, cityID, districtID, "")
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Equal(t, storage.OrderStatusPending, order.Status)
	assert.True(t, order.TotalPrice.Equal(decimal.RequireFromString("1000")))
	assert.True(t, order.Discount.IsZero())
	assert.NotEmpty(t, order.ReferenceCode)

	active, err := svc.Active(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, order.ID, active.ID)
}

func TestCreateRejectsSecondActiveOrder(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	userID, productID, cityID, districtID := seedCatalog(t, repo, "1000")

	_, err := svc.Create(ctx, userID, productID, cityID, districtID, "")
	require.NoError(t, err)

	_, err = svc.Create(ctx, userID, productID, cityID, districtID, "")
	assert.ErrorIs(t, err, ErrActiveOrderExists)

	// A paid order still blocks new ones.
	order, err := svc.Active(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, svc.MarkPaid(ctx, order.ID))

	_, err = svc.Create(ctx, userID, productID, cityID, districtID, "")
	assert.ErrorIs(t, err, ErrActiveOrderExists)
}

func TestCreateWithPromocode(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	userID, productID, cityID, districtID := seedCatalog(t, repo, "1000")

	promo := &storage.Promocode{
		Code:    "SALE10",
		Percent: decimal.RequireFromString("10"),
		MaxUses: 1,
	}
	require.NoError(t, repo.CreatePromocode(ctx, promo))

	order, err := svc.Create(ctx, userID, productID, cityID, districtID, "SALE10")
	require.NoError(t, err)
	assert.True(t, order.Discount.Equal(decimal.RequireFromString("100")), "discount: %s", order.Discount)
	assert.True(t, order.TotalPrice.Equal(decimal.RequireFromString("900")), "total: %s", order.TotalPrice)

	// The single use is consumed, the next buyer gets rejected.
	other, err := repo.GetOrCreateUser(ctx, 100501, "other")
	require.NoError(t, err)
	_, err = svc.Create(ctx, other.ID, productID, cityID, districtID, "SALE10")
	assert.ErrorIs(t, err, ErrInvalidPromocode)
}

func TestCreateRejectsBadPromocodes(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	userID, productID, cityID, districtID := seedCatalog(t, repo, "1000")

	expired := time.Now().Add(-time.Hour)
	require.NoError(t, repo.CreatePromocode(ctx, &storage.Promocode{
		Code:      "OLD",
		Percent:   decimal.RequireFromString("10"),
		MaxUses:   10,
		ExpiresAt: &expired,
	}))

	_, err := svc.Create(ctx, userID, productID, cityID, districtID, "NOSUCH")
	assert.ErrorIs(t, err, ErrInvalidPromocode)

	_, err = svc.Create(ctx, userID, productID, cityID, districtID, "OLD")
	assert.ErrorIs(t, err, ErrInvalidPromocode)
}

func TestReferralDiscount(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	userID, productID, cityID, districtID := seedCatalog(t, repo, "1000")

	// Three users signed up through the buyer's link: 3% at 1% per referral.
	for i, tgID := range []int64{200501, 200502, 200503} {
		ref, err := repo.GetOrCreateUser(ctx, tgID, "ref")
		require.NoError(t, err, "referral %d", i)
		require.NoError(t, repo.SetReferrer(ctx, ref.ID, userID))
	}

	order, err := svc.Create(ctx, userID, productID, cityID, districtID, "")
	require.NoError(t, err)
	assert.True(t, order.Discount.Equal(decimal.RequireFromString("30")), "discount: %s", order.Discount)
	assert.True(t, order.TotalPrice.Equal(decimal.RequireFromString("970")), "total: %s", order.TotalPrice)
}

func TestCancelStartsCooldown(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	userID, productID, cityID, districtID := seedCatalog(t, repo, "1000")

	base := time.Now()
	svc.now = func() time.Time { return base }

	_, err := svc.Create(ctx, userID, productID, cityID, districtID, "")
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, storage.OrderStatusCancelled, cancelled.Status)

	// Inside the cooldown window creation is blocked.
	_, err = svc.Create(ctx, userID, productID, cityID, districtID, "")
	assert.ErrorIs(t, err, ErrCooldownActive)

	// Past the 30-minute default it succeeds again.
	svc.now = func() time.Time { return base.Add(31 * time.Minute) }
	_, err = svc.Create(ctx, userID, productID, cityID, districtID, "")
	assert.NoError(t, err)
}

func TestCancelWithoutOrder(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	userID, _, _, _ := seedCatalog(t, repo, "1000")

	_, err := svc.Cancel(ctx, userID)
	assert.ErrorIs(t, err, ErrNoActiveOrder)
}

func TestSelectPaymentMethod(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	userID, productID, cityID, districtID := seedCatalog(t, repo, "1000")

	method := &storage.PaymentMethod{Name: "Bitcoin", Kind: storage.PaymentMethodCrypto, Currency: "BTC"}
	require.NoError(t, repo.CreatePaymentMethod(ctx, method))

	_, err := svc.SelectPaymentMethod(ctx, userID, method.ID)
	assert.ErrorIs(t, err, ErrNoActiveOrder)

	_, err = svc.Create(ctx, userID, productID, cityID, districtID, "")
	require.NoError(t, err)

	order, err := svc.SelectPaymentMethod(ctx, userID, method.ID)
	require.NoError(t, err)
	require.NotNil(t, order.PaymentMethodID)
	assert.Equal(t, method.ID, *order.PaymentMethodID)
}

func TestCompletePaysCashback(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	userID, productID, cityID, districtID := seedCatalog(t, repo, "1000")

	referrer, err := repo.GetOrCreateUser(ctx, 300500, "referrer")
	require.NoError(t, err)
	require.NoError(t, repo.SetReferrer(ctx, userID, referrer.ID))

	order, err := svc.Create(ctx, userID, productID, cityID, districtID, "")
	require.NoError(t, err)

	// Completion requires the paid status first.
	err = svc.Complete(ctx, order.ID)
	assert.Error(t, err)

	require.NoError(t, svc.MarkPaid(ctx, order.ID))
	require.NoError(t, svc.Complete(ctx, order.ID))

	got, err := repo.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.OrderStatusCompleted, got.Status)

	// 5% default cashback of the 1000 total lands on the referrer's balance.
	updated, err := repo.GetUserByID(ctx, referrer.ID)
	require.NoError(t, err)
	assert.True(t, updated.Balance.Equal(decimal.RequireFromString("50")), "balance: %s", updated.Balance)
}
