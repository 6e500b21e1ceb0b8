package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// Catalog operations

func (r *Repository) ListCities(ctx context.Context) ([]*City, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM cities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cities: %w", err)
	}
	defer rows.Close()

	var cities []*City
	for rows.Next() {
		city := &City{}
		if err := rows.Scan(&city.ID, &city.Name); err != nil {
			return nil, fmt.Errorf("failed to scan city: %w", err)
		}
		cities = append(cities, city)
	}
	return cities, rows.Err()
}

func (r *Repository) ListDistricts(ctx context.Context, cityID int64) ([]*District, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, city_id, name FROM districts WHERE city_id = ? ORDER BY name`, cityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query districts: %w", err)
	}
	defer rows.Close()

	var districts []*District
	for rows.Next() {
		d := &District{}
		if err := rows.Scan(&d.ID, &d.CityID, &d.Name); err != nil {
			return nil, fmt.Errorf("failed to scan district: %w", err)
		}
		districts = append(districts, d)
	}
	return districts, rows.Err()
}

func (r *Repository) ListProducts(ctx context.Context) ([]*Product, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, price FROM products ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *Repository) GetProductByID(ctx context.Context, id int64) (*Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx,
		`SELECT id, name, description, price FROM products WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func scanProduct(row interface{ Scan(...any) error }) (*Product, error) {
	p := &Product{}
	var price string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price); err != nil {
		return nil, err
	}
	var err error
	p.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("invalid price for product %d: %w", p.ID, err)
	}
	return p, nil
}

// Payment method operations

func (r *Repository) ListPaymentMethods(ctx context.Context) ([]*PaymentMethod, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, kind, currency, requires_confirmation FROM payment_methods ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment methods: %w", err)
	}
	defer rows.Close()

	var methods []*PaymentMethod
	for rows.Next() {
		m := &PaymentMethod{}
		if err := rows.Scan(&m.ID, &m.Name, &m.Kind, &m.Currency, &m.RequiresConfirmation); err != nil {
			return nil, fmt.Errorf("failed to scan payment method: %w", err)
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

func (r *Repository) GetPaymentMethodByID(ctx context.Context, id int64) (*PaymentMethod, error) {
	m := &PaymentMethod{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, kind, currency, requires_confirmation FROM payment_methods WHERE id = ?`, id,
	).Scan(&m.ID, &m.Name, &m.Kind, &m.Currency, &m.RequiresConfirmation)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query payment method: %w", err)
	}
	return m, nil
}

// NextPaymentAddress picks the least used address for the method and bumps its
// counter, rotating addresses across payments.
func (r *Repository) NextPaymentAddress(ctx context.Context, methodID int64) (*PaymentAddress, error) {
	addr := &PaymentAddress{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, method_id, address, use_count FROM payment_addresses
		 WHERE method_id = ? ORDER BY use_count ASC, id ASC LIMIT 1`,
		methodID,
	).Scan(&addr.ID, &addr.MethodID, &addr.Address, &addr.UseCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query payment address: %w", err)
	}

	if _, err := r.db.ExecContext(ctx,
		`UPDATE payment_addresses SET use_count = use_count + 1 WHERE id = ?`, addr.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to bump address use count: %w", err)
	}
	addr.UseCount++
	return addr, nil
}

func (r *Repository) GetCardAccount(ctx context.Context, methodID int64) (*CardAccount, error) {
	acc := &CardAccount{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, method_id, card_number, holder FROM card_accounts WHERE method_id = ? ORDER BY id LIMIT 1`,
		methodID,
	).Scan(&acc.ID, &acc.MethodID, &acc.CardNumber, &acc.Holder)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query card account: %w", err)
	}
	return acc, nil
}

// Promocode operations

func (r *Repository) GetPromocodeByCode(ctx context.Context, code string) (*Promocode, error) {
	p := &Promocode{}
	var percent string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, code, percent, max_uses, uses, expires_at FROM promocodes WHERE code = ?`, code,
	).Scan(&p.ID, &p.Code, &percent, &p.MaxUses, &p.Uses, &p.ExpiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query promocode: %w", err)
	}
	p.Percent, err = decimal.NewFromString(percent)
	if err != nil {
		return nil, fmt.Errorf("invalid percent for promocode %d: %w", p.ID, err)
	}
	return p, nil
}

// Catalog writes, used by seeding and operator tooling.

func (r *Repository) CreateCity(ctx context.Context, city *City) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO cities (name) VALUES (?)`, city.Name)
	if err != nil {
		return fmt.Errorf("failed to create city: %w", err)
	}
	city.ID, err = res.LastInsertId()
	return err
}

func (r *Repository) CreateDistrict(ctx context.Context, district *District) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO districts (city_id, name) VALUES (?, ?)`, district.CityID, district.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to create district: %w", err)
	}
	district.ID, err = res.LastInsertId()
	return err
}

func (r *Repository) CreateProduct(ctx context.Context, product *Product) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO products (name, description, price) VALUES (?, ?, ?)`,
		product.Name, product.Description, product.Price.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	product.ID, err = res.LastInsertId()
	return err
}

func (r *Repository) CreatePaymentMethod(ctx context.Context, m *PaymentMethod) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_methods (name, kind, currency, requires_confirmation) VALUES (?, ?, ?, ?)`,
		m.Name, m.Kind, m.Currency, m.RequiresConfirmation,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment method: %w", err)
	}
	m.ID, err = res.LastInsertId()
	return err
}

func (r *Repository) AddPaymentAddress(ctx context.Context, addr *PaymentAddress) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_addresses (method_id, address, use_count) VALUES (?, ?, ?)`,
		addr.MethodID, addr.Address, addr.UseCount,
	)
	if err != nil {
		return fmt.Errorf("failed to add payment address: %w", err)
	}
	addr.ID, err = res.LastInsertId()
	return err
}

func (r *Repository) AddCardAccount(ctx context.Context, acc *CardAccount) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO card_accounts (method_id, card_number, holder) VALUES (?, ?, ?)`,
		acc.MethodID, acc.CardNumber, acc.Holder,
	)
	if err != nil {
		return fmt.Errorf("failed to add card account: %w", err)
	}
	acc.ID, err = res.LastInsertId()
	return err
}

func (r *Repository) CreatePromocode(ctx context.Context, p *Promocode) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO promocodes (code, percent, max_uses, uses, expires_at) VALUES (?, ?, ?, ?, ?)`,
		p.Code, p.Percent.String(), p.MaxUses, p.Uses, p.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create promocode: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

// ConsumePromocode bumps the usage counter inside the order-creation transaction.
func (r *Repository) ConsumePromocode(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE promocodes SET uses = uses + 1 WHERE id = ? AND uses < max_uses`, id,
	)
	if err != nil {
		return fmt.Errorf("failed to consume promocode: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check promocode consumption: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("promocode %d is exhausted", id)
	}
	return nil
}
