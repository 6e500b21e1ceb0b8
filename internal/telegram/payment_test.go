package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skoret/market-bot/internal/orders"
	"github.com/skoret/market-bot/internal/pricing"
	"github.com/skoret/market-bot/internal/rates"
	"github.com/skoret/market-bot/internal/storage"
	"github.com/skoret/market-bot/internal/topups"
)

func newTestBot(t *testing.T, ratesClient *rates.Client) (*Bot, *storage.Repository) {
	t.Helper()

	repo, err := storage.NewRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.Migrate(context.Background()))

	pricingSvc := pricing.NewService(repo)
	return &Bot{
		repo:    repo,
		orders:  orders.NewService(repo, pricingSvc),
		topups:  topups.NewService(repo),
		pricing: pricingSvc,
		rates:   ratesClient,
	}, repo
}

func newRatesClient(t *testing.T, priceHandler, fxHandler http.HandlerFunc) *rates.Client {
	t.Helper()
	priceSrv := httptest.NewServer(priceHandler)
	t.Cleanup(priceSrv.Close)
	fxSrv := httptest.NewServer(fxHandler)
	t.Cleanup(fxSrv.Close)
	return rates.NewClient(priceSrv.URL, fxSrv.URL)
}

func seedPendingOrder(t *testing.T, b *Bot, repo *storage.Repository, price string) *storage.User {
	t.Helper()
	ctx := context.Background()

	user, err := repo.GetOrCreateUser(ctx, 100500, "buyer")
	require.NoError(t, err)

	city := &storage.City{Name: "Казань"}
	require.NoError(t, repo.CreateCity(ctx, city))
	district := &storage.District{CityID: city.ID, Name: "Центр"}
	require.NoError(t, repo.CreateDistrict(ctx, district))
	product := &storage.Product{Name: "Товар", Description: "...", Price: decimal.RequireFromString(price)}
	require.NoError(t, repo.CreateProduct(ctx, product))

	_, err = b.orders.Create(ctx, user.ID, product.ID, city.ID, district.ID, "")
	require.NoError(t, err)
	return user
}

func TestPaymentDetailsCrypto(t *testing.T) {
	ctx := context.Background()
	client := newRatesClient(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"bitcoin":{"usd":60000}}`))
		},
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"rates":{"RUB":90}}`))
		},
	)
	b, repo := newTestBot(t, client)
	user := seedPendingOrder(t, b, repo, "5400000")

	method := &storage.PaymentMethod{Name: "Bitcoin", Kind: storage.PaymentMethodCrypto, Currency: "BTC"}
	require.NoError(t, repo.CreatePaymentMethod(ctx, method))
	require.NoError(t, repo.AddPaymentAddress(ctx, &storage.PaymentAddress{MethodID: method.ID, Address: "bc1qtestaddress"}))

	resps, err := b.handlePaymentMethodSelected(ctx, 1, 1, user, method.ID)
	require.NoError(t, err)
	require.Len(t, resps, 2) // text + QR photo

	edit, ok := resps[0].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Contains(t, edit.Text, "bc1qtestaddress")
	// 5_400_000 RUB at 90 RUB/USD and 60_000 USD/BTC is exactly 1 BTC.
	assert.Contains(t, edit.Text, "1.00000000 BTC")
}

func TestPaymentDetailsCard(t *testing.T) {
	ctx := context.Background()
	// Card payments never call the rate APIs, failing servers must not matter.
	client := newRatesClient(t,
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
	)
	b, repo := newTestBot(t, client)
	user := seedPendingOrder(t, b, repo, "1000")

	method := &storage.PaymentMethod{Name: "Карта", Kind: storage.PaymentMethodCard}
	require.NoError(t, repo.CreatePaymentMethod(ctx, method))
	require.NoError(t, repo.AddCardAccount(ctx, &storage.CardAccount{MethodID: method.ID, CardNumber: "2200 1234 5678 9012", Holder: "Иван И."}))

	resps, err := b.handlePaymentMethodSelected(ctx, 1, 1, user, method.ID)
	require.NoError(t, err)
	require.Len(t, resps, 1)

	edit, ok := resps[0].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Contains(t, edit.Text, "2200 1234 5678 9012")
	assert.Contains(t, edit.Text, "Иван И.")
}

func TestPaymentDetailsRatesFailureOffersRetry(t *testing.T) {
	ctx := context.Background()
	client := newRatesClient(t,
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
	)
	b, repo := newTestBot(t, client)
	user := seedPendingOrder(t, b, repo, "1000")

	method := &storage.PaymentMethod{Name: "Bitcoin", Kind: storage.PaymentMethodCrypto, Currency: "BTC"}
	require.NoError(t, repo.CreatePaymentMethod(ctx, method))
	require.NoError(t, repo.AddPaymentAddress(ctx, &storage.PaymentAddress{MethodID: method.ID, Address: "bc1qtestaddress"}))

	resps, err := b.handlePaymentMethodSelected(ctx, 1, 1, user, method.ID)
	require.NoError(t, err)
	require.Len(t, resps, 1)

	// The apology must keep a way back into the payment flow: the method
	// keyboard is offered again so the user can retry without cancelling.
	edit, ok := resps[0].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Contains(t, edit.Text, "курс обмена")
	require.NotNil(t, edit.ReplyMarkup)
	require.NotEmpty(t, edit.ReplyMarkup.InlineKeyboard)

	btn := edit.ReplyMarkup.InlineKeyboard[0][0]
	require.NotNil(t, btn.CallbackData)
	assert.Equal(t, fmt.Sprintf("paymethod:%d", method.ID), *btn.CallbackData)

	// The order survives untouched and the retry can succeed later.
	order, err := b.orders.Active(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, storage.OrderStatusPending, order.Status)
}
