package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a Telegram user
type User struct {
	ID            int64
	TelegramID    int64
	Username      string
	Balance       decimal.Decimal
	ReferrerID    *int64
	WarningsLeft  int
	CooldownUntil *time.Time
	CreatedAt     time.Time
}

// OrderStatus represents order status
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
)

// Order represents a storefront order
type Order struct {
	ID              int64
	UserID          int64
	ProductID       int64
	CityID          int64
	DistrictID      int64
	ReferenceCode   string
	Price           decimal.Decimal
	Discount        decimal.Decimal
	TotalPrice      decimal.Decimal
	PromocodeID     *int64
	PaymentMethodID *int64
	Status          OrderStatus
	WarningSent     bool
	ExpiredNotified bool
	CreatedAt       time.Time
}

// TopupStatus represents topup status
type TopupStatus string

const (
	TopupStatusPending   TopupStatus = "pending"
	TopupStatusCompleted TopupStatus = "completed"
	TopupStatusCancelled TopupStatus = "cancelled"
	TopupStatusExpired   TopupStatus = "expired"
)

// Topup represents a balance top-up attempt
type Topup struct {
	ID              int64
	UserID          int64
	ReferenceCode   string
	Amount          decimal.Decimal
	PaymentMethodID int64
	Status          TopupStatus
	WarningSent     bool
	CreatedAt       time.Time
}

// City represents a delivery city
type City struct {
	ID   int64
	Name string
}

// District represents a district within a city
type District struct {
	ID     int64
	CityID int64
	Name   string
}

// Product represents a catalog item
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
}

// PaymentMethodKind distinguishes crypto methods from card accounts
type PaymentMethodKind string

const (
	PaymentMethodCrypto PaymentMethodKind = "crypto"
	PaymentMethodCard   PaymentMethodKind = "card"
)

// PaymentMethod represents an accepted payment method.
// Currency is the ticker (BTC, LTC, ...) for crypto methods and the fiat code
// for card methods. RequiresConfirmation interposes an extra confirmation step
// before the payment details are shown.
type PaymentMethod struct {
	ID                   int64
	Name                 string
	Kind                 PaymentMethodKind
	Currency             string
	RequiresConfirmation bool
}

// PaymentAddress is a crypto address assigned to payments round-robin
type PaymentAddress struct {
	ID       int64
	MethodID int64
	Address  string
	UseCount int64
}

// CardAccount is a card/bank account shown for card payment methods
type CardAccount struct {
	ID         int64
	MethodID   int64
	CardNumber string
	Holder     string
}

// Promocode represents a percent discount code
type Promocode struct {
	ID        int64
	Code      string
	Percent   decimal.Decimal
	MaxUses   int
	Uses      int
	ExpiresAt *time.Time
}

// Session holds the conversational mode of a user between messages.
// It is persisted so that restarts do not drop users mid-dialog.
type Session struct {
	TelegramID int64
	Mode       string
	Payload    string
	UpdatedAt  time.Time
}
