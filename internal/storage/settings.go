package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Setting keys. Values live in the settings table and are editable from the
// admin panel; pricing reads them on every computation.
const (
	SettingMarkupPercent         = "markup_percent"
	SettingPaymentWindowMinutes  = "payment_window_minutes"
	SettingCurrencySymbol        = "currency_symbol"
	SettingReferralPercent       = "referral_percent"
	SettingMaxReferralDiscount   = "max_referral_discount_percent"
	SettingReferralCashbackPct   = "referral_cashback_percent"
	SettingCancelCooldownMinutes = "cancel_cooldown_minutes"
)

func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("setting %s is not defined", key)
		}
		return "", fmt.Errorf("failed to query setting %s: %w", key, err)
	}
	return value, nil
}

func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

func (r *Repository) GetSettingDecimal(ctx context.Context, key string) (decimal.Decimal, error) {
	value, err := r.GetSetting(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("setting %s is not a number: %w", key, err)
	}
	return d, nil
}

func (r *Repository) GetSettingInt(ctx context.Context, key string) (int, error) {
	value, err := r.GetSetting(ctx, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("setting %s is not an integer: %w", key, err)
	}
	return n, nil
}

// PaymentWindow returns the configured payment window as a duration.
func (r *Repository) PaymentWindow(ctx context.Context) (time.Duration, error) {
	minutes, err := r.GetSettingInt(ctx, SettingPaymentWindowMinutes)
	if err != nil {
		return 0, err
	}
	return time.Duration(minutes) * time.Minute, nil
}

// CancelCooldown returns the post-cancellation block duration.
func (r *Repository) CancelCooldown(ctx context.Context) (time.Duration, error) {
	minutes, err := r.GetSettingInt(ctx, SettingCancelCooldownMinutes)
	if err != nil {
		return 0, err
	}
	return time.Duration(minutes) * time.Minute, nil
}
