package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bingo-sales/internal/model"
)

const vendorColumns = `id, name, phone, role, leader_id, seller_id, is_active, created_at`

func scanVendor(row pgx.Row) (*model.Vendor, error) {
	var (
		v    model.Vendor
		role string
	)
	if err := row.Scan(&v.ID, &v.Name, &v.Phone, &role, &v.LeaderID, &v.SellerID, &v.IsActive, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.Role = model.VendorRole(role)
	return &v, nil
}

func getVendor(ctx context.Context, q queryer, id string) (*model.Vendor, error) {
	v, err := scanVendor(q.QueryRow(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrVendorNotFound, id)
		}
		return nil, fmt.Errorf("get vendor: %w", classify(err))
	}
	return v, nil
}

// CreateVendor сохраняет нового продавца.
func (r *PostgresRepository) CreateVendor(ctx context.Context, v *model.Vendor) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO vendors (id, name, phone, role, leader_id, seller_id, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		v.ID, v.Name, v.Phone, string(v.Role), v.LeaderID, v.SellerID, v.IsActive,
	).Scan(&v.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: parent vendor", ErrVendorNotFound)
		}
		return fmt.Errorf("create vendor: %w", classify(err))
	}
	return nil
}

// VendorUpdate описывает изменяемые поля продавца; nil оставляет поле без изменений.
type VendorUpdate struct {
	Name     *string
	Phone    *string
	IsActive *bool
}

// UpdateVendor изменяет имя, телефон и активность продавца. Иерархия после создания не меняется.
func (r *PostgresRepository) UpdateVendor(ctx context.Context, id string, u VendorUpdate) (*model.Vendor, error) {
	v, err := scanVendor(r.pool.QueryRow(ctx,
		`UPDATE vendors
		 SET name = COALESCE($2, name),
		     phone = COALESCE($3, phone),
		     is_active = COALESCE($4, is_active)
		 WHERE id = $1
		 RETURNING `+vendorColumns,
		id, u.Name, u.Phone, u.IsActive,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrVendorNotFound, id)
		}
		return nil, fmt.Errorf("update vendor: %w", classify(err))
	}
	return v, nil
}

// GetVendor возвращает продавца по идентификатору.
func (r *PostgresRepository) GetVendor(ctx context.Context, id string) (*model.Vendor, error) {
	var v *model.Vendor
	err := r.withRetry(ctx, func() error {
		var err error
		v, err = getVendor(ctx, r.pool, id)
		return err
	})
	return v, err
}

// ListVendors возвращает продавцов, при необходимости только команду указанного лидера.
func (r *PostgresRepository) ListVendors(ctx context.Context, leaderID *string) ([]model.Vendor, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+vendorColumns+`
		 FROM vendors
		 WHERE $1::text IS NULL OR leader_id = $1
		 ORDER BY created_at`,
		leaderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select vendors: %w", classify(err))
	}
	defer rows.Close()

	var res []model.Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		res = append(res, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", classify(err))
	}

	return res, nil
}

// DeleteVendor удаляет продавца, если у него нет команды, истории продаж и непроданных назначенных карточек.
func (r *PostgresRepository) DeleteVendor(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	defer tx.Rollback(ctx)

	var dummy int
	err = tx.QueryRow(ctx, `SELECT 1 FROM vendors WHERE id = $1 FOR UPDATE`, id).Scan(&dummy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrVendorNotFound, id)
		}
		return fmt.Errorf("lock vendor: %w", classify(err))
	}

	var inUse bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM vendors WHERE leader_id = $1 OR seller_id = $1)
		     OR EXISTS (SELECT 1 FROM sales WHERE seller_id = $1 OR leader_id = $1 OR subleader_id = $1)
		     OR EXISTS (SELECT 1 FROM cards WHERE assigned_to = $1 AND sold = FALSE)`,
		id,
	).Scan(&inUse)
	if err != nil {
		return fmt.Errorf("check vendor usage: %w", classify(err))
	}
	if inUse {
		return ErrVendorInUse
	}

	if _, err := tx.Exec(ctx, `DELETE FROM vendors WHERE id = $1`, id); err != nil {
		if isForeignKeyViolation(err) {
			return ErrVendorInUse
		}
		return fmt.Errorf("delete vendor: %w", classify(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", classify(err))
	}

	return nil
}

// GetVendorBalance возвращает сумму всех записей баланса продавца.
func (r *PostgresRepository) GetVendorBalance(ctx context.Context, id string) (decimal.Decimal, error) {
	var total int64
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`SELECT COALESCE(SUM(amount), 0) FROM balances WHERE vendor_id = $1`,
			id,
		).Scan(&total)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum balances: %w", err)
	}
	return fromCents(total), nil
}
