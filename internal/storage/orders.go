package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrActiveOrderExists is returned when the partial unique index rejects a
// second pending/paid order for the same user.
var ErrActiveOrderExists = errors.New("user already has an active order")

const orderColumns = `id, user_id, product_id, city_id, district_id, reference_code,
	price, discount, total_price, promocode_id, payment_method_id, status,
	warning_sent, expired_notified, created_at`

func scanOrder(row interface{ Scan(...any) error }) (*Order, error) {
	o := &Order{}
	var price, discount, total string
	err := row.Scan(
		&o.ID, &o.UserID, &o.ProductID, &o.CityID, &o.DistrictID, &o.ReferenceCode,
		&price, &discount, &total, &o.PromocodeID, &o.PaymentMethodID, &o.Status,
		&o.WarningSent, &o.ExpiredNotified, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("invalid price for order %d: %w", o.ID, err)
	}
	if o.Discount, err = decimal.NewFromString(discount); err != nil {
		return nil, fmt.Errorf("invalid discount for order %d: %w", o.ID, err)
	}
	if o.TotalPrice, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("invalid total for order %d: %w", o.ID, err)
	}
	return o, nil
}

// CreateOrder inserts the order inside the given transaction. The partial
// unique index on (user_id, active status) turns concurrent duplicates into
// ErrActiveOrderExists.
func (r *Repository) CreateOrder(ctx context.Context, tx *sql.Tx, order *Order) error {
	result, err := tx.ExecContext(ctx,
		`INSERT INTO orders (user_id, product_id, city_id, district_id, reference_code,
			price, discount, total_price, promocode_id, payment_method_id, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.UserID, order.ProductID, order.CityID, order.DistrictID, order.ReferenceCode,
		order.Price.String(), order.Discount.String(), order.TotalPrice.String(),
		order.PromocodeID, order.PaymentMethodID, order.Status, order.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: orders.user_id") {
			return ErrActiveOrderExists
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	order.ID = id
	return nil
}

func (r *Repository) GetOrderByID(ctx context.Context, id int64) (*Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	return order, nil
}

// GetActiveOrderByUserID returns the user's pending or paid order, if any.
// It is a pure query: expiry happens only in the sweep.
func (r *Repository) GetActiveOrderByUserID(ctx context.Context, userID int64) (*Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = ? AND status IN (?, ?) LIMIT 1`,
		userID, OrderStatusPending, OrderStatusPaid,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query active order: %w", err)
	}
	return order, nil
}

func (r *Repository) ListOrdersByStatus(ctx context.Context, status OrderStatus) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = ? ORDER BY created_at ASC`, status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (r *Repository) SetOrderPaymentMethod(ctx context.Context, orderID, methodID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET payment_method_id = ? WHERE id = ? AND status = ?`,
		methodID, orderID, OrderStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to set payment method: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check payment method update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("order %d is not pending", orderID)
	}
	return nil
}

// TransitionOrderStatus moves the order from one status to another and reports
// whether the transition happened. Guarding on the current status makes every
// transition idempotent.
func (r *Repository) TransitionOrderStatus(ctx context.Context, orderID int64, from, to OrderStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE id = ? AND status = ?`,
		to, orderID, from,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check order transition: %w", err)
	}
	return affected > 0, nil
}

// ExpireStaleOrders marks every pending order created before the cutoff as
// expired. One statement for all users.
func (r *Repository) ExpireStaleOrders(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE status = ? AND created_at < ?`,
		OrderStatusExpired, OrderStatusPending, before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale orders: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired orders: %w", err)
	}
	return affected, nil
}

// GetExpiredUnnotifiedOrders returns expired orders whose owner has not been
// warned yet.
func (r *Repository) GetExpiredUnnotifiedOrders(ctx context.Context) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = ? AND expired_notified = 0 ORDER BY created_at ASC`,
		OrderStatusExpired,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// SetOrderNotified records the outcome of expiry handling: notified means the
// sweep is done with the order, warned means the user actually got the message.
// A silent skip sets notified without warned.
func (r *Repository) SetOrderNotified(ctx context.Context, orderID int64, notified, warned bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE orders SET expired_notified = ?, warning_sent = ? WHERE id = ?`,
		notified, warned, orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark order notified: %w", err)
	}
	return nil
}
