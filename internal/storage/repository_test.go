package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func TestGetOrCreateUser(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	user, err := repo.GetOrCreateUser(ctx, 100500, "someone")
	require.NoError(t, err)
	assert.Equal(t, int64(100500), user.TelegramID)
	assert.True(t, user.Balance.IsZero())
	assert.Equal(t, 2, user.WarningsLeft)

	again, err := repo.GetOrCreateUser(ctx, 100500, "someone")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
}

func TestSetReferrer(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	referrer, err := repo.GetOrCreateUser(ctx, 1, "first")
	require.NoError(t, err)
	other, err := repo.GetOrCreateUser(ctx, 2, "second")
	require.NoError(t, err)
	user, err := repo.GetOrCreateUser(ctx, 3, "third")
	require.NoError(t, err)

	// Self-referral is silently ignored.
	require.NoError(t, repo.SetReferrer(ctx, user.ID, user.ID))
	got, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ReferrerID)

	// A stale or crafted link with an unknown referrer id is ignored too,
	// it must not surface an error to the /start flow.
	require.NoError(t, repo.SetReferrer(ctx, user.ID, 999999))
	got, err = repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ReferrerID)

	require.NoError(t, repo.SetReferrer(ctx, user.ID, referrer.ID))
	// The first referrer sticks, repeats do not overwrite.
	require.NoError(t, repo.SetReferrer(ctx, user.ID, other.ID))

	got, err = repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ReferrerID)
	assert.Equal(t, referrer.ID, *got.ReferrerID)

	count, err := repo.CountReferrals(ctx, referrer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	session, err := repo.GetSession(ctx, 100500)
	require.NoError(t, err)
	assert.Nil(t, session)

	require.NoError(t, repo.SetSession(ctx, 100500, "awaiting_promo", "1:2:3"))
	session, err = repo.GetSession(ctx, 100500)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "awaiting_promo", session.Mode)
	assert.Equal(t, "1:2:3", session.Payload)

	// A new session replaces the old one.
	require.NoError(t, repo.SetSession(ctx, 100500, "awaiting_topup_amount", ""))
	session, err = repo.GetSession(ctx, 100500)
	require.NoError(t, err)
	assert.Equal(t, "awaiting_topup_amount", session.Mode)

	require.NoError(t, repo.ClearSession(ctx, 100500))
	session, err = repo.GetSession(ctx, 100500)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	// Migration seeds the defaults.
	window, err := repo.GetSettingInt(ctx, SettingPaymentWindowMinutes)
	require.NoError(t, err)
	assert.Equal(t, 30, window)

	symbol, err := repo.GetSetting(ctx, SettingCurrencySymbol)
	require.NoError(t, err)
	assert.Equal(t, "₽", symbol)

	require.NoError(t, repo.SetSetting(ctx, SettingMarkupPercent, "7.5"))
	markup, err := repo.GetSettingDecimal(ctx, SettingMarkupPercent)
	require.NoError(t, err)
	assert.True(t, markup.Equal(decimal.RequireFromString("7.5")))

	cooldown, err := repo.CancelCooldown(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cooldown)
}

func TestNextPaymentAddressRotation(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	method := &PaymentMethod{Name: "Bitcoin", Kind: PaymentMethodCrypto, Currency: "BTC"}
	require.NoError(t, repo.CreatePaymentMethod(ctx, method))

	empty, err := repo.NextPaymentAddress(ctx, method.ID)
	require.NoError(t, err)
	assert.Nil(t, empty)

	for _, a := range []string{"addr-one", "addr-two"} {
		require.NoError(t, repo.AddPaymentAddress(ctx, &PaymentAddress{MethodID: method.ID, Address: a}))
	}

	// Least-used rotation alternates between the two addresses.
	first, err := repo.NextPaymentAddress(ctx, method.ID)
	require.NoError(t, err)
	second, err := repo.NextPaymentAddress(ctx, method.ID)
	require.NoError(t, err)
	third, err := repo.NextPaymentAddress(ctx, method.ID)
	require.NoError(t, err)

	assert.NotEqual(t, first.Address, second.Address)
	assert.Equal(t, first.Address, third.Address)
	assert.Equal(t, int64(2), third.UseCount)
}

func TestActiveOrderUniqueIndex(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	user, err := repo.GetOrCreateUser(ctx, 100500, "buyer")
	require.NoError(t, err)
	city := &City{Name: "Казань"}
	require.NoError(t, repo.CreateCity(ctx, city))
	district := &District{CityID: city.ID, Name: "Центр"}
	require.NoError(t, repo.CreateDistrict(ctx, district))
	product := &Product{Name: "Товар", Description: "...", Price: decimal.RequireFromString("1000")}
	require.NoError(t, repo.CreateProduct(ctx, product))

	newOrder := func() *Order {
		return &Order{
			UserID:        user.ID,
			ProductID:     product.ID,
			CityID:        city.ID,
			DistrictID:    district.ID,
			ReferenceCode: uuid.NewString(),
			Price:         product.Price,
			Discount:      decimal.Zero,
			TotalPrice:    product.Price,
			Status:        OrderStatusPending,
			CreatedAt:     time.Now(),
		}
	}

	create := func(o *Order) error {
		tx, err := repo.BeginTx(ctx)
		require.NoError(t, err)
		defer tx.Rollback()
		if err := repo.CreateOrder(ctx, tx, o); err != nil {
			return err
		}
		return tx.Commit()
	}

	first := newOrder()
	require.NoError(t, create(first))

	// The partial index rejects a second active order for the same user.
	assert.ErrorIs(t, create(newOrder()), ErrActiveOrderExists)

	// After the first one leaves the active statuses, inserts work again.
	moved, err := repo.TransitionOrderStatus(ctx, first.ID, OrderStatusPending, OrderStatusCancelled)
	require.NoError(t, err)
	require.True(t, moved)
	assert.NoError(t, create(newOrder()))
}
