package storage

import (
	"context"
	"fmt"
)

// Migrate creates all necessary tables
func (r *Repository) Migrate(ctx context.Context) error {
	migrations := []struct {
		name string
		sql  string
	}{
		{
			name: "create_users",
			sql: `CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				telegram_id INTEGER NOT NULL UNIQUE,
				username TEXT NOT NULL,
				balance TEXT NOT NULL DEFAULT '0',
				referrer_id INTEGER,
				warnings_left INTEGER NOT NULL DEFAULT 2,
				cooldown_until DATETIME,
				created_at DATETIME NOT NULL,
				FOREIGN KEY (referrer_id) REFERENCES users(id)
			)`,
		},
		{
			name: "create_cities",
			sql: `CREATE TABLE IF NOT EXISTS cities (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE
			)`,
		},
		{
			name: "create_districts",
			sql: `CREATE TABLE IF NOT EXISTS districts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				city_id INTEGER NOT NULL,
				name TEXT NOT NULL,
				FOREIGN KEY (city_id) REFERENCES cities(id) ON DELETE CASCADE
			)`,
		},
		{
			name: "create_products",
			sql: `CREATE TABLE IF NOT EXISTS products (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				price TEXT NOT NULL
			)`,
		},
		{
			name: "create_payment_methods",
			sql: `CREATE TABLE IF NOT EXISTS payment_methods (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE,
				kind TEXT NOT NULL,
				currency TEXT NOT NULL DEFAULT '',
				requires_confirmation INTEGER NOT NULL DEFAULT 0
			)`,
		},
		{
			name: "create_payment_addresses",
			sql: `CREATE TABLE IF NOT EXISTS payment_addresses (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				method_id INTEGER NOT NULL,
				address TEXT NOT NULL UNIQUE,
				use_count INTEGER NOT NULL DEFAULT 0,
				FOREIGN KEY (method_id) REFERENCES payment_methods(id) ON DELETE CASCADE
			)`,
		},
		{
			name: "create_card_accounts",
			sql: `CREATE TABLE IF NOT EXISTS card_accounts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				method_id INTEGER NOT NULL,
				card_number TEXT NOT NULL,
				holder TEXT NOT NULL DEFAULT '',
				FOREIGN KEY (method_id) REFERENCES payment_methods(id) ON DELETE CASCADE
			)`,
		},
		{
			name: "create_promocodes",
			sql: `CREATE TABLE IF NOT EXISTS promocodes (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				code TEXT NOT NULL UNIQUE,
				percent TEXT NOT NULL,
				max_uses INTEGER NOT NULL DEFAULT 1,
				uses INTEGER NOT NULL DEFAULT 0,
				expires_at DATETIME
			)`,
		},
		{
			name: "create_settings",
			sql: `CREATE TABLE IF NOT EXISTS settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
		},
		{
			name: "create_orders",
			sql: `CREATE TABLE IF NOT EXISTS orders (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				product_id INTEGER NOT NULL,
				city_id INTEGER NOT NULL,
				district_id INTEGER NOT NULL,
				reference_code TEXT NOT NULL UNIQUE,
				price TEXT NOT NULL,
				discount TEXT NOT NULL,
				total_price TEXT NOT NULL,
				promocode_id INTEGER,
				payment_method_id INTEGER,
				status TEXT NOT NULL,
				warning_sent INTEGER NOT NULL DEFAULT 0,
				expired_notified INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
				FOREIGN KEY (product_id) REFERENCES products(id),
				FOREIGN KEY (promocode_id) REFERENCES promocodes(id),
				FOREIGN KEY (payment_method_id) REFERENCES payment_methods(id)
			)`,
		},
		{
			name: "create_topups",
			sql: `CREATE TABLE IF NOT EXISTS topups (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				reference_code TEXT NOT NULL UNIQUE,
				amount TEXT NOT NULL DEFAULT '0',
				payment_method_id INTEGER NOT NULL,
				status TEXT NOT NULL,
				warning_sent INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
				FOREIGN KEY (payment_method_id) REFERENCES payment_methods(id)
			)`,
		},
		{
			name: "create_sessions",
			sql: `CREATE TABLE IF NOT EXISTS sessions (
				telegram_id INTEGER PRIMARY KEY,
				mode TEXT NOT NULL,
				payload TEXT NOT NULL DEFAULT '',
				updated_at DATETIME NOT NULL
			)`,
		},
		{
			// At most one pending/paid order per user, enforced by the database
			// so concurrent double-taps cannot create duplicates.
			name: "create_active_order_index",
			sql: `CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_active_user
				ON orders(user_id) WHERE status IN ('pending', 'paid')`,
		},
		{
			name: "create_indexes",
			sql: `CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id);
				CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
				CREATE INDEX IF NOT EXISTS idx_topups_user_id ON topups(user_id);
				CREATE INDEX IF NOT EXISTS idx_topups_status ON topups(status);
				CREATE INDEX IF NOT EXISTS idx_districts_city_id ON districts(city_id);
				CREATE INDEX IF NOT EXISTS idx_payment_addresses_method_id ON payment_addresses(method_id);
				CREATE INDEX IF NOT EXISTS idx_promocodes_code ON promocodes(code);
			`,
		},
	}

	for _, migration := range migrations {
		if _, err := r.db.ExecContext(ctx, migration.sql); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.name, err)
		}
	}

	return r.seedSettings(ctx)
}

// Default settings, inserted only when missing so admin edits survive restarts.
var defaultSettings = map[string]string{
	SettingMarkupPercent:         "0",
	SettingPaymentWindowMinutes:  "30",
	SettingCurrencySymbol:        "₽",
	SettingReferralPercent:       "1",
	SettingMaxReferralDiscount:   "10",
	SettingReferralCashbackPct:   "5",
	SettingCancelCooldownMinutes: "30",
}

func (r *Repository) seedSettings(ctx context.Context) error {
	for key, value := range defaultSettings {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
			key, value,
		)
		if err != nil {
			return fmt.Errorf("seeding setting %s failed: %w", key, err)
		}
	}
	return nil
}
