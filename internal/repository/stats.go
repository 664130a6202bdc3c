package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/bingo-sales/internal/model"
)

// ApplyCounterDelta изменяет денормализованные счётчики продавца на указанные приращения.
func (r *PostgresRepository) ApplyCounterDelta(ctx context.Context, vendorID string, assigned, sold int64) error {
	if assigned == 0 && sold == 0 {
		return nil
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO vendor_stats (vendor_id, assigned_count, sold_count, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (vendor_id) DO UPDATE
		 SET assigned_count = vendor_stats.assigned_count + EXCLUDED.assigned_count,
		     sold_count = vendor_stats.sold_count + EXCLUDED.sold_count,
		     updated_at = NOW()`,
		vendorID, assigned, sold,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", ErrVendorNotFound, vendorID)
		}
		return fmt.Errorf("apply counter delta: %w", classify(err))
	}
	return nil
}

// GetVendorStats возвращает счётчики продавца; отсутствие строки означает нулевые счётчики.
func (r *PostgresRepository) GetVendorStats(ctx context.Context, vendorID string) (*model.VendorStats, error) {
	st := model.VendorStats{VendorID: vendorID}
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`SELECT assigned_count, sold_count, updated_at FROM vendor_stats WHERE vendor_id = $1`,
			vendorID,
		).Scan(&st.AssignedCount, &st.SoldCount, &st.UpdatedAt)
	})
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get vendor stats: %w", err)
	}
	return &st, nil
}
