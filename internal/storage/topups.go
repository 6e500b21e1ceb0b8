package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const topupColumns = `id, user_id, reference_code, amount, payment_method_id, status, warning_sent, created_at`

func scanTopup(row interface{ Scan(...any) error }) (*Topup, error) {
	t := &Topup{}
	var amount string
	err := row.Scan(
		&t.ID, &t.UserID, &t.ReferenceCode, &amount, &t.PaymentMethodID,
		&t.Status, &t.WarningSent, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid amount for topup %d: %w", t.ID, err)
	}
	return t, nil
}

func (r *Repository) CreateTopup(ctx context.Context, topup *Topup) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO topups (user_id, reference_code, amount, payment_method_id, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		topup.UserID, topup.ReferenceCode, topup.Amount.String(), topup.PaymentMethodID,
		topup.Status, topup.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create topup: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	topup.ID = id
	return nil
}

func (r *Repository) GetTopupByID(ctx context.Context, id int64) (*Topup, error) {
	topup, err := scanTopup(r.db.QueryRowContext(ctx,
		`SELECT `+topupColumns+` FROM topups WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query topup: %w", err)
	}
	return topup, nil
}

// GetPendingTopupByUserID returns the user's latest pending topup regardless
// of amount; a topup only counts as active once the amount is set.
func (r *Repository) GetPendingTopupByUserID(ctx context.Context, userID int64) (*Topup, error) {
	topup, err := scanTopup(r.db.QueryRowContext(ctx,
		`SELECT `+topupColumns+` FROM topups WHERE user_id = ? AND status = ? ORDER BY created_at DESC LIMIT 1`,
		userID, TopupStatusPending,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query pending topup: %w", err)
	}
	return topup, nil
}

func (r *Repository) SetTopupAmount(ctx context.Context, topupID int64, amount decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE topups SET amount = ? WHERE id = ? AND status = ?`,
		amount.String(), topupID, TopupStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to set topup amount: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check topup amount update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("topup %d is not pending", topupID)
	}
	return nil
}

func (r *Repository) TransitionTopupStatus(ctx context.Context, topupID int64, from, to TopupStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE topups SET status = ? WHERE id = ? AND status = ?`,
		to, topupID, from,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition topup status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check topup transition: %w", err)
	}
	return affected > 0, nil
}

func (r *Repository) ListTopupsByStatus(ctx context.Context, status TopupStatus) ([]*Topup, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+topupColumns+` FROM topups WHERE status = ? ORDER BY created_at ASC`, status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query topups: %w", err)
	}
	defer rows.Close()

	var topups []*Topup
	for rows.Next() {
		topup, err := scanTopup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan topup: %w", err)
		}
		topups = append(topups, topup)
	}
	return topups, rows.Err()
}

func (r *Repository) ExpireStaleTopups(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE topups SET status = ? WHERE status = ? AND created_at < ?`,
		TopupStatusExpired, TopupStatusPending, before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale topups: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired topups: %w", err)
	}
	return affected, nil
}

// GetExpiredUnnotifiedTopups returns expired topups whose owner has not been
// warned yet. Zero-amount topups are skipped: the user never finished the flow.
func (r *Repository) GetExpiredUnnotifiedTopups(ctx context.Context) ([]*Topup, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+topupColumns+` FROM topups
		 WHERE status = ? AND warning_sent = 0 AND amount != '0' ORDER BY created_at ASC`,
		TopupStatusExpired,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired topups: %w", err)
	}
	defer rows.Close()

	var topups []*Topup
	for rows.Next() {
		topup, err := scanTopup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan topup: %w", err)
		}
		topups = append(topups, topup)
	}
	return topups, rows.Err()
}

func (r *Repository) SetTopupWarned(ctx context.Context, topupID int64, warned bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE topups SET warning_sent = ? WHERE id = ?`, warned, topupID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark topup warned: %w", err)
	}
	return nil
}

// CompleteTopupAndCredit atomically marks the topup completed and credits the
// user's balance.
func (r *Repository) CompleteTopupAndCredit(ctx context.Context, topupID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	topup := &Topup{}
	var amount string
	err = tx.QueryRowContext(ctx,
		`SELECT id, user_id, amount, status FROM topups WHERE id = ?`, topupID,
	).Scan(&topup.ID, &topup.UserID, &amount, &topup.Status)
	if err != nil {
		return fmt.Errorf("failed to query topup: %w", err)
	}
	if topup.Status != TopupStatusPending {
		return fmt.Errorf("topup %d is not pending: %s", topupID, topup.Status)
	}
	topup.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("invalid amount for topup %d: %w", topupID, err)
	}
	if topup.Amount.IsZero() {
		return fmt.Errorf("topup %d has no amount", topupID)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE topups SET status = ? WHERE id = ? AND status = ?`,
		TopupStatusCompleted, topupID, TopupStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to complete topup: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil || affected == 0 {
		return fmt.Errorf("topup %d was not completed", topupID)
	}

	if err := r.CreditBalance(ctx, tx, topup.UserID, topup.Amount); err != nil {
		return err
	}

	return tx.Commit()
}
