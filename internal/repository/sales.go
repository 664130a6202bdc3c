package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bingo-sales/internal/model"
)

// Tx описывает операции, выполняемые внутри одной транзакции хранилища.
type Tx interface {
	// LockCard читает карточку и удерживает её эксклюзивно до конца транзакции.
	LockCard(ctx context.Context, eventDate, cardID string) (*model.Card, error)
	GetVendor(ctx context.Context, id string) (*model.Vendor, error)
	InsertSale(ctx context.Context, sale *model.Sale) error
	// MarkCardSold переводит карточку в проданные; ErrCardAlreadySold, если она уже продана.
	MarkCardSold(ctx context.Context, eventDate, cardID, saleID string) error
	InsertLedgerEntries(ctx context.Context, entries []model.LedgerEntry) error
	// LockAssignableCards блокирует до limit непроданных карточек, назначенных owner
	// (nil означает свободные), по возрастанию номера. Занятые другими транзакциями строки пропускаются.
	LockAssignableCards(ctx context.Context, eventDate string, owner *string, limit int) ([]model.Card, error)
	// LockCardsByNumber блокирует карточки события с указанными номерами.
	LockCardsByNumber(ctx context.Context, eventDate string, cardNos []int) ([]model.Card, error)
	SetCardAssignee(ctx context.Context, eventDate, cardID string, vendorID *string) error
	DeleteCard(ctx context.Context, eventDate, cardID string) error
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockCard(ctx context.Context, eventDate, cardID string) (*model.Card, error) {
	c, err := scanCard(t.tx.QueryRow(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE event_date = $1 AND id = $2 FOR UPDATE`,
		eventDate, cardID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", ErrCardNotFound, eventDate, cardID)
		}
		return nil, fmt.Errorf("lock card: %w", classify(err))
	}
	return c, nil
}

func (t *pgTx) GetVendor(ctx context.Context, id string) (*model.Vendor, error) {
	return getVendor(ctx, t.tx, id)
}

func (t *pgTx) InsertSale(ctx context.Context, s *model.Sale) error {
	for _, d := range []decimal.Decimal{s.Amount, s.Commissions.Seller, s.Commissions.Leader, s.Commissions.Subleader} {
		if !fitsCents(d) {
			return fmt.Errorf("%w: sale amount %s cannot be stored in cents", ErrValidation, d)
		}
	}

	err := t.tx.QueryRow(ctx,
		`INSERT INTO sales (id, card_id, event_date, seller_id, leader_id, subleader_id,
		                    amount, seller_commission, leader_commission, subleader_commission, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at`,
		s.ID, s.CardID, s.EventDate, s.SellerID, s.LeaderID, s.SubleaderID,
		toCents(s.Amount),
		toCents(s.Commissions.Seller), toCents(s.Commissions.Leader), toCents(s.Commissions.Subleader),
		s.CreatedAt,
	).Scan(&s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "sales_card_id_key") {
			return ErrCardAlreadySold
		}
		return fmt.Errorf("insert sale: %w", classify(err))
	}
	return nil
}

func (t *pgTx) MarkCardSold(ctx context.Context, eventDate, cardID, saleID string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE cards SET sold = TRUE, sale_id = $3, updated_at = NOW()
		 WHERE event_date = $1 AND id = $2 AND sold = FALSE`,
		eventDate, cardID, saleID,
	)
	if err != nil {
		return fmt.Errorf("mark card sold: %w", classify(err))
	}
	if tag.RowsAffected() != 1 {
		return ErrCardAlreadySold
	}
	return nil
}

func (t *pgTx) InsertLedgerEntries(ctx context.Context, entries []model.LedgerEntry) error {
	for _, e := range entries {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO balances (id, vendor_id, type, amount, source_sale_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, e.VendorID, string(e.Type), toCents(e.Amount), e.SaleID, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert ledger entry: %w", classify(err))
		}
	}
	return nil
}

func (t *pgTx) SetCardAssignee(ctx context.Context, eventDate, cardID string, vendorID *string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE cards SET assigned_to = $3, updated_at = NOW()
		 WHERE event_date = $1 AND id = $2 AND sold = FALSE`,
		eventDate, cardID, vendorID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: assignee", ErrVendorNotFound)
		}
		return fmt.Errorf("assign card: %w", classify(err))
	}
	if tag.RowsAffected() != 1 {
		return ErrCardAlreadySold
	}
	return nil
}

func (t *pgTx) DeleteCard(ctx context.Context, eventDate, cardID string) error {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM cards WHERE event_date = $1 AND id = $2 AND sold = FALSE`,
		eventDate, cardID,
	)
	if err != nil {
		return fmt.Errorf("delete card: %w", classify(err))
	}
	if tag.RowsAffected() != 1 {
		return ErrCardAlreadySold
	}
	return nil
}

// SaleFilter описывает выборку продаж.
type SaleFilter struct {
	SellerID *string
	From     *time.Time
	To       *time.Time
	Limit    int
}

const saleColumns = `id, card_id, event_date, seller_id, leader_id, subleader_id,
	amount, seller_commission, leader_commission, subleader_commission, created_at`

func scanSale(row pgx.Row) (*model.Sale, error) {
	var (
		s                                   model.Sale
		amount, sellerC, leaderC, subleadC int64
	)
	err := row.Scan(&s.ID, &s.CardID, &s.EventDate, &s.SellerID, &s.LeaderID, &s.SubleaderID,
		&amount, &sellerC, &leaderC, &subleadC, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.Amount = fromCents(amount)
	s.Commissions = model.Commissions{
		Seller:    fromCents(sellerC),
		Leader:    fromCents(leaderC),
		Subleader: fromCents(subleadC),
	}
	return &s, nil
}

// ListSales возвращает продажи по фильтру, новые первыми.
func (r *PostgresRepository) ListSales(ctx context.Context, f SaleFilter) ([]model.Sale, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+saleColumns+`
		 FROM sales
		 WHERE ($1::text IS NULL OR seller_id = $1)
		   AND ($2::timestamptz IS NULL OR created_at >= $2)
		   AND ($3::timestamptz IS NULL OR created_at <= $3)
		 ORDER BY created_at DESC
		 LIMIT $4`,
		f.SellerID, f.From, f.To, f.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select sales: %w", classify(err))
	}
	defer rows.Close()

	var res []model.Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		res = append(res, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", classify(err))
	}

	return res, nil
}

// GetSale возвращает продажу по идентификатору.
func (r *PostgresRepository) GetSale(ctx context.Context, id string) (*model.Sale, error) {
	var s *model.Sale
	err := r.withRetry(ctx, func() error {
		var err error
		s, err = scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSaleNotFound, id)
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}
	return s, nil
}

// GetLedgerEntriesBySale возвращает записи баланса, созданные продажей.
func (r *PostgresRepository) GetLedgerEntriesBySale(ctx context.Context, saleID string) ([]model.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, vendor_id, type, amount, source_sale_id, created_at
		 FROM balances
		 WHERE source_sale_id = $1
		 ORDER BY created_at, id`,
		saleID,
	)
	if err != nil {
		return nil, fmt.Errorf("select ledger entries: %w", classify(err))
	}
	defer rows.Close()

	var res []model.LedgerEntry
	for rows.Next() {
		var (
			e      model.LedgerEntry
			typ    string
			amount int64
		)
		if err := rows.Scan(&e.ID, &e.VendorID, &typ, &amount, &e.SaleID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Type = model.LedgerEntryType(typ)
		e.Amount = fromCents(amount)
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", classify(err))
	}

	return res, nil
}
