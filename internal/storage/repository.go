package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

type Repository struct {
	db *sql.DB
}

// NewRepository opens the SQLite database at dsn and returns a repository.
func NewRepository(dsn string) (*Repository, error) {
	if dsn == "" {
		dsn = "market.db"
	}

	if dsn != ":memory:" {
		absPath, err := filepath.Abs(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path '%s': %w", dsn, err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+dsn+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database '%s': %w", dsn, err)
	}

	// SQLite serializes writes anyway; a single connection also keeps an
	// in-memory database alive for its whole lifetime.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database '%s': %w", dsn, err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, nil)
}

// User operations

const userColumns = `id, telegram_id, username, balance, referrer_id, warnings_left, cooldown_until, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	user := &User{}
	var balance string
	err := row.Scan(
		&user.ID, &user.TelegramID, &user.Username, &balance,
		&user.ReferrerID, &user.WarningsLeft, &user.CooldownUntil, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("invalid balance for user %d: %w", user.ID, err)
	}
	return user, nil
}

func (r *Repository) GetOrCreateUser(ctx context.Context, telegramID int64, username string) (*User, error) {
	user, err := r.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	now := time.Now()
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO users (telegram_id, username, balance, created_at) VALUES (?, ?, '0', ?)",
		telegramID, username, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return &User{
		ID:           id,
		TelegramID:   telegramID,
		Username:     username,
		Balance:      decimal.Zero,
		WarningsLeft: 2,
		CreatedAt:    now,
	}, nil
}

func (r *Repository) GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE telegram_id = ?", telegramID,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id int64) (*User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

// SetReferrer records the referrer once; later /start payloads never overwrite
// it. Unknown referrer ids are ignored: referral links are user-supplied input
// and a stale or crafted one must not fail the /start flow.
func (r *Repository) SetReferrer(ctx context.Context, userID, referrerID int64) error {
	if userID == referrerID {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET referrer_id = ? WHERE id = ? AND referrer_id IS NULL
		 AND EXISTS (SELECT 1 FROM users WHERE id = ?)`,
		referrerID, userID, referrerID,
	)
	if err != nil {
		return fmt.Errorf("failed to set referrer: %w", err)
	}
	return nil
}

func (r *Repository) CountReferrals(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE referrer_id = ?`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count referrals: %w", err)
	}
	return count, nil
}

func (r *Repository) SetUserCooldown(ctx context.Context, userID int64, until time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET cooldown_until = ? WHERE id = ?`, until, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set cooldown: %w", err)
	}
	return nil
}

func (r *Repository) DecrementUserWarnings(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET warnings_left = warnings_left - 1 WHERE id = ? AND warnings_left > 0`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to decrement warnings: %w", err)
	}
	return nil
}

// CreditBalance adds amount to the user's balance inside the given transaction.
func (r *Repository) CreditBalance(ctx context.Context, tx *sql.Tx, userID int64, amount decimal.Decimal) error {
	var balance string
	err := tx.QueryRowContext(ctx, `SELECT balance FROM users WHERE id = ?`, userID).Scan(&balance)
	if err != nil {
		return fmt.Errorf("failed to query balance: %w", err)
	}
	current, err := decimal.NewFromString(balance)
	if err != nil {
		return fmt.Errorf("invalid balance for user %d: %w", userID, err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE users SET balance = ? WHERE id = ?`,
		current.Add(amount).String(), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	return nil
}

// Session operations

func (r *Repository) SetSession(ctx context.Context, telegramID int64, mode, payload string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (telegram_id, mode, payload, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(telegram_id) DO UPDATE SET mode = excluded.mode, payload = excluded.payload, updated_at = excluded.updated_at`,
		telegramID, mode, payload, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}
	return nil
}

func (r *Repository) GetSession(ctx context.Context, telegramID int64) (*Session, error) {
	session := &Session{}
	err := r.db.QueryRowContext(ctx,
		`SELECT telegram_id, mode, payload, updated_at FROM sessions WHERE telegram_id = ?`,
		telegramID,
	).Scan(&session.TelegramID, &session.Mode, &session.Payload, &session.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return session, nil
}

func (r *Repository) ClearSession(ctx context.Context, telegramID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE telegram_id = ?`, telegramID)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
