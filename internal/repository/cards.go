package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/bingo-sales/internal/grid"
	"github.com/mmeshcher/bingo-sales/internal/model"
)

const cardColumns = `id, event_date, card_no, numbers, grid_size, assigned_to, sold, sale_id, was_corrected, created_at`

// Максимальный размер пачки вставок при генерации карточек.
const insertBatchSize = 500

// CardFilter описывает выборку карточек события.
type CardFilter struct {
	EventDate  string
	AssignedTo *string
	Sold       *bool
	// AfterCardNo задаёт курсор: возвращаются карточки с номером больше указанного.
	AfterCardNo int
	Limit       int
}

func scanCard(row pgx.Row) (*model.Card, error) {
	var (
		c       model.Card
		numbers []int32
	)
	err := row.Scan(&c.ID, &c.EventDate, &c.CardNo, &numbers, &c.GridSize,
		&c.AssignedTo, &c.Sold, &c.SaleID, &c.WasCorrected, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Numbers = make([]int, len(numbers))
	for i, n := range numbers {
		c.Numbers[i] = int(n)
	}
	return &c, nil
}

func collectCards(rows pgx.Rows) ([]model.Card, error) {
	defer rows.Close()

	var res []model.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		res = append(res, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", classify(err))
	}

	return res, nil
}

func toInt32s(numbers []int) []int32 {
	res := make([]int32, len(numbers))
	for i, n := range numbers {
		res[i] = int32(n)
	}
	return res
}

// GetCard возвращает карточку события.
func (r *PostgresRepository) GetCard(ctx context.Context, eventDate, id string) (*model.Card, error) {
	var c *model.Card
	err := r.withRetry(ctx, func() error {
		var err error
		c, err = scanCard(r.pool.QueryRow(ctx,
			`SELECT `+cardColumns+` FROM cards WHERE event_date = $1 AND id = $2`,
			eventDate, id,
		))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", ErrCardNotFound, eventDate, id)
		}
		return nil, fmt.Errorf("get card: %w", err)
	}
	return c, nil
}

// ListCards возвращает карточки события по фильтру, упорядоченные по номеру.
func (r *PostgresRepository) ListCards(ctx context.Context, f CardFilter) ([]model.Card, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+cardColumns+`
		 FROM cards
		 WHERE event_date = $1
		   AND ($2::text IS NULL OR assigned_to = $2)
		   AND ($3::boolean IS NULL OR sold = $3)
		   AND card_no > $4
		 ORDER BY card_no
		 LIMIT $5`,
		f.EventDate, f.AssignedTo, f.Sold, f.AfterCardNo, f.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select cards: %w", classify(err))
	}
	return collectCards(rows)
}

// SearchCards ищет карточки события по номеру.
func (r *PostgresRepository) SearchCards(ctx context.Context, eventDate string, cardNo int) ([]model.Card, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE event_date = $1 AND card_no = $2 LIMIT 5`,
		eventDate, cardNo,
	)
	if err != nil {
		return nil, fmt.Errorf("search cards: %w", classify(err))
	}
	return collectCards(rows)
}

// ListUnsoldCards возвращает все непроданные карточки события.
func (r *PostgresRepository) ListUnsoldCards(ctx context.Context, eventDate string) ([]model.Card, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE event_date = $1 AND sold = FALSE ORDER BY card_no`,
		eventDate,
	)
	if err != nil {
		return nil, fmt.Errorf("select unsold cards: %w", classify(err))
	}
	return collectCards(rows)
}

// CardTotals возвращает максимальный номер и количество карточек события.
func (r *PostgresRepository) CardTotals(ctx context.Context, eventDate string) (*model.CardTotals, error) {
	var t model.CardTotals
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx,
			`SELECT COALESCE(MAX(card_no), 0), COUNT(*) FROM cards WHERE event_date = $1`,
			eventDate,
		).Scan(&t.MaxCardNo, &t.TotalDocuments)
	})
	if err != nil {
		return nil, fmt.Errorf("card totals: %w", err)
	}
	t.TotalCards = max(t.MaxCardNo, t.TotalDocuments)
	return &t, nil
}

// CreateCards сохраняет карточки события в одной транзакции. Карточкам с нулевым CardNo
// присваиваются последовательные номера после текущего максимума события; генерации
// одного события сериализуются advisory-блокировкой.
func (r *PostgresRepository) CreateCards(ctx context.Context, eventDate string, cards []model.Card) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, eventDate); err != nil {
		return fmt.Errorf("lock event: %w", classify(err))
	}

	var next int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(card_no), 0) + 1 FROM cards WHERE event_date = $1`,
		eventDate,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("next card number: %w", classify(err))
	}

	for i := range cards {
		cards[i].EventDate = eventDate
		if cards[i].CardNo == 0 {
			cards[i].CardNo = next
			next++
		}
	}

	for start := 0; start < len(cards); start += insertBatchSize {
		end := min(start+insertBatchSize, len(cards))

		batch := &pgx.Batch{}
		for i := start; i < end; i++ {
			c := &cards[i]
			batch.Queue(
				`INSERT INTO cards (id, event_date, card_no, numbers, grid_size, assigned_to, sold)
				 VALUES ($1, $2, $3, $4, $5, $6, FALSE)
				 RETURNING created_at`,
				c.ID, c.EventDate, c.CardNo, toInt32s(c.Numbers), c.GridSize, c.AssignedTo,
			).QueryRow(func(row pgx.Row) error {
				return row.Scan(&c.CreatedAt)
			})
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if isUniqueViolation(err, "cards_event_card_no_key") {
				return ErrCardNoTaken
			}
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: assignee", ErrVendorNotFound)
			}
			return fmt.Errorf("insert cards: %w", classify(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", classify(err))
	}

	return nil
}

// ReplaceCardGrids заменяет сетки непроданных карточек стандартного размера и помечает их исправленными.
// Карточки, успевшие стать проданными, не изменяются.
func (r *PostgresRepository) ReplaceCardGrids(ctx context.Context, eventDate string, grids map[string][]int) (int, error) {
	if len(grids) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", classify(err))
	}
	defer tx.Rollback(ctx)

	replaced := 0
	for id, numbers := range grids {
		tag, err := tx.Exec(ctx,
			`UPDATE cards
			 SET numbers = $3, grid_size = $4, was_corrected = TRUE, updated_at = NOW()
			 WHERE event_date = $1 AND id = $2 AND sold = FALSE`,
			eventDate, id, toInt32s(numbers), grid.Size,
		)
		if err != nil {
			return 0, fmt.Errorf("replace grid: %w", classify(err))
		}
		replaced += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", classify(err))
	}

	return replaced, nil
}

func (t *pgTx) LockAssignableCards(ctx context.Context, eventDate string, owner *string, limit int) ([]model.Card, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+cardColumns+`
		 FROM cards
		 WHERE event_date = $1 AND sold = FALSE AND assigned_to IS NOT DISTINCT FROM $2::text
		 ORDER BY card_no
		 LIMIT $3
		 FOR UPDATE SKIP LOCKED`,
		eventDate, owner, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("lock assignable cards: %w", classify(err))
	}
	return collectCards(rows)
}

func (t *pgTx) LockCardsByNumber(ctx context.Context, eventDate string, cardNos []int) ([]model.Card, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+cardColumns+`
		 FROM cards
		 WHERE event_date = $1 AND card_no = ANY($2)
		 ORDER BY card_no
		 FOR UPDATE`,
		eventDate, toInt32s(cardNos),
	)
	if err != nil {
		return nil, fmt.Errorf("lock cards by number: %w", classify(err))
	}
	return collectCards(rows)
}

// CountCardsByVendor считает назначенные и проданные карточки продавцов в событии по самим карточкам.
// Продавцы без карточек в результат не попадают.
func (r *PostgresRepository) CountCardsByVendor(ctx context.Context, eventDate string, vendorIDs []string) (map[string]model.CardCounts, error) {
	res := make(map[string]model.CardCounts, len(vendorIDs))
	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT assigned_to, COUNT(*), COUNT(*) FILTER (WHERE sold)
			 FROM cards
			 WHERE event_date = $1 AND assigned_to = ANY($2)
			 GROUP BY assigned_to`,
			eventDate, vendorIDs,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id string
				c  model.CardCounts
			)
			if err := rows.Scan(&id, &c.Assigned, &c.Sold); err != nil {
				return err
			}
			res[id] = c
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("count cards by vendor: %w", err)
	}
	return res, nil
}
