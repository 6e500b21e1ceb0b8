package topups

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skoret/market-bot/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Repository, int64) {
	t.Helper()
	ctx := context.Background()

	repo, err := storage.NewRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.Migrate(ctx))

	user, err := repo.GetOrCreateUser(ctx, 100500, "payer")
	require.NoError(t, err)

	method := &storage.PaymentMethod{Name: "Bitcoin", Kind: storage.PaymentMethodCrypto, Currency: "BTC"}
	require.NoError(t, repo.CreatePaymentMethod(ctx, method))

	return NewService(repo), repo, user.ID
}

func TestCreateAndSetAmount(t *testing.T) {
	ctx := context.Background()
	svc, _, userID := newTestService(t)

	topup, err := svc.Create(ctx, userID, 1)
	require.NoError(t, err)
	assert.True(t, topup.Amount.IsZero())
	assert.NotEmpty(t, topup.ReferenceCode)

	// Without an amount the topup is an unfinished flow, not active yet.
	active, err := svc.Active(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, active)

	topup, err = svc.SetAmount(ctx, userID, decimal.RequireFromString("1500"))
	require.NoError(t, err)
	assert.True(t, topup.Amount.Equal(decimal.RequireFromString("1500")))

	active, err = svc.Active(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, topup.ID, active.ID)
}

func TestCreateReplacesUnfinishedTopup(t *testing.T) {
	ctx := context.Background()
	svc, repo, userID := newTestService(t)

	first, err := svc.Create(ctx, userID, 1)
	require.NoError(t, err)

	// Restarting the flow before entering an amount replaces the draft.
	second, err := svc.Create(ctx, userID, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	old, err := repo.GetTopupByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.TopupStatusCancelled, old.Status)
}

func TestCreateRejectsActiveTopup(t *testing.T) {
	ctx := context.Background()
	svc, _, userID := newTestService(t)

	_, err := svc.Create(ctx, userID, 1)
	require.NoError(t, err)
	_, err = svc.SetAmount(ctx, userID, decimal.RequireFromString("500"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, userID, 1)
	assert.ErrorIs(t, err, ErrActiveTopupExists)
}

func TestSetAmountValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, userID := newTestService(t)

	_, err := svc.SetAmount(ctx, userID, decimal.RequireFromString("100"))
	assert.ErrorIs(t, err, ErrNoPendingTopup)

	_, err = svc.Create(ctx, userID, 1)
	require.NoError(t, err)

	_, err = svc.SetAmount(ctx, userID, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.SetAmount(ctx, userID, decimal.RequireFromString("-5"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	svc, _, userID := newTestService(t)

	_, err := svc.Cancel(ctx, userID)
	assert.ErrorIs(t, err, ErrNoPendingTopup)

	_, err = svc.Create(ctx, userID, 1)
	require.NoError(t, err)
	_, err = svc.SetAmount(ctx, userID, decimal.RequireFromString("500"))
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, storage.TopupStatusCancelled, cancelled.Status)

	active, err := svc.Active(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestCreditCompletesAndCreditsBalance(t *testing.T) {
	ctx := context.Background()
	svc, repo, userID := newTestService(t)

	topup, err := svc.Create(ctx, userID, 1)
	require.NoError(t, err)

	// A topup without an amount cannot be credited.
	assert.Error(t, svc.Credit(ctx, topup.ID))

	_, err = svc.SetAmount(ctx, userID, decimal.RequireFromString("1500"))
	require.NoError(t, err)
	require.NoError(t, svc.Credit(ctx, topup.ID))

	got, err := repo.GetTopupByID(ctx, topup.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.TopupStatusCompleted, got.Status)

	user, err := repo.GetUserByID(ctx, userID)
	require.NoError(t, err)
	assert.True(t, user.Balance.Equal(decimal.RequireFromString("1500")), "balance: %s", user.Balance)

	// Crediting twice must not double the balance.
	assert.Error(t, svc.Credit(ctx, topup.ID))
	user, err = repo.GetUserByID(ctx, userID)
	require.NoError(t, err)
	assert.True(t, user.Balance.Equal(decimal.RequireFromString("1500")))
}
