package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/bingo-sales/internal/commission"
	"github.com/mmeshcher/bingo-sales/internal/metrics"
	"github.com/mmeshcher/bingo-sales/internal/model"
	"github.com/mmeshcher/bingo-sales/internal/repository"
)

const (
	// Размер страницы списка продаж.
	salesPageSize = 200
	// Суммы хранятся в минимальных денежных единицах.
	amountPlaces = 2
)

// MaxSaleAmount ограничивает сумму продажи, чтобы она и доли комиссии помещались в хранилище.
var MaxSaleAmount = decimal.New(1, 12)

var (
	// ErrSellerNotFound возвращается, если продавец из запроса продажи не найден.
	ErrSellerNotFound = fmt.Errorf("seller %w", repository.ErrNotFound)
	// ErrNegativeAmount возвращается для отрицательной суммы продажи.
	ErrNegativeAmount = fmt.Errorf("%w: amount must not be negative", repository.ErrValidation)
	// ErrAmountTooLarge возвращается для суммы больше MaxSaleAmount.
	ErrAmountTooLarge = fmt.Errorf("%w: amount must not exceed %s", repository.ErrValidation, MaxSaleAmount)
	// ErrAmountPrecision возвращается для суммы с долями меньше минимальной денежной единицы.
	ErrAmountPrecision = fmt.Errorf("%w: amount must have at most %d decimal places", repository.ErrValidation, amountPlaces)
)

// ValidateAmount проверяет, что сумму продажи можно сохранить без потери точности.
func ValidateAmount(amount decimal.Decimal) error {
	switch {
	case amount.IsNegative():
		return ErrNegativeAmount
	case amount.GreaterThan(MaxSaleAmount):
		return ErrAmountTooLarge
	case !amount.Equal(amount.Round(amountPlaces)):
		return ErrAmountPrecision
	}
	return nil
}

// SaleRequest описывает запрос продажи карточки. Amount равный nil заменяется ценой по умолчанию.
type SaleRequest struct {
	CardID    string
	SellerID  string
	Amount    *decimal.Decimal
	EventDate string
}

// SaleResult содержит созданную продажу и её записи баланса.
type SaleResult struct {
	Sale    *model.Sale
	Entries []model.LedgerEntry
}

// RecordSale продаёт карточку продавцу. Проверки, расчёт комиссии, перевод карточки в проданные,
// создание продажи и записей баланса выполняются в одной транзакции: после ошибки не остаётся
// ни одной записи. Временные сбои хранилища возвращаются как repository.ErrTransient без повторов:
// повторный вызов должен заново прочитать состояние карточки.
func (s *Service) RecordSale(ctx context.Context, req SaleRequest) (*SaleResult, error) {
	amount := s.defaultAmount
	if req.Amount != nil {
		amount = *req.Amount
	}
	if err := ValidateAmount(amount); err != nil {
		s.metrics.IncSale(metrics.SaleInvalid)
		return nil, err
	}

	var (
		result *SaleResult
		change model.CardStateChange
	)

	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		card, err := tx.LockCard(ctx, req.EventDate, req.CardID)
		if err != nil {
			return err
		}
		if card.Sold {
			return repository.ErrCardAlreadySold
		}

		seller, err := tx.GetVendor(ctx, req.SellerID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrSellerNotFound, req.SellerID)
			}
			return err
		}

		split, err := s.policy.Split(*seller, amount)
		if err != nil {
			return fmt.Errorf("%w: %w", repository.ErrConflict, err)
		}

		now := s.now().UTC().Truncate(time.Microsecond)
		sale := &model.Sale{
			ID:          uuid.NewString(),
			CardID:      card.ID,
			SellerID:    seller.ID,
			LeaderID:    split.LeaderID,
			SubleaderID: split.SubleaderID,
			Amount:      amount,
			Commissions: split.Commissions,
			EventDate:   req.EventDate,
			CreatedAt:   now,
		}

		entries := commission.Entries(split, seller.ID)
		for i := range entries {
			entries[i].ID = uuid.NewString()
			entries[i].SaleID = sale.ID
			entries[i].CreatedAt = now
		}

		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		if err := tx.MarkCardSold(ctx, req.EventDate, card.ID, sale.ID); err != nil {
			return err
		}
		if err := tx.InsertLedgerEntries(ctx, entries); err != nil {
			return err
		}

		result = &SaleResult{Sale: sale, Entries: entries}
		change = model.CardStateChange{
			EventDate:      req.EventDate,
			CardID:         card.ID,
			PrevAssignedTo: card.AssignedTo,
			AssignedTo:     card.AssignedTo,
			PrevSold:       false,
			Sold:           true,
			At:             now,
		}
		return nil
	})
	if err != nil {
		s.metrics.IncSale(saleResultLabel(err))
		if errors.Is(err, repository.ErrTransient) {
			s.logger.Warn("sale transaction aborted",
				zap.Error(err),
				zap.String("cardID", req.CardID),
				zap.String("date", req.EventDate))
		}
		return nil, err
	}

	s.metrics.IncSale(metrics.SaleOK)
	s.metrics.ObserveSale(result.Sale)
	s.notify(ctx, change)

	return result, nil
}

func saleResultLabel(err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return metrics.SaleNotFound
	case errors.Is(err, repository.ErrConflict):
		return metrics.SaleConflict
	case errors.Is(err, repository.ErrTransient):
		return metrics.SaleTransient
	case errors.Is(err, repository.ErrValidation):
		return metrics.SaleInvalid
	}
	return metrics.SaleError
}

// SaleQuery описывает фильтр списка продаж.
type SaleQuery struct {
	SellerID *string
	From     *time.Time
	To       *time.Time
}

// ListSales возвращает продажи по фильтру, новые первыми, не более одной страницы.
func (s *Service) ListSales(ctx context.Context, q SaleQuery) ([]model.Sale, error) {
	return s.repo.ListSales(ctx, repository.SaleFilter{
		SellerID: q.SellerID,
		From:     q.From,
		To:       q.To,
		Limit:    salesPageSize,
	})
}

// GetSale возвращает продажу вместе с её записями баланса.
func (s *Service) GetSale(ctx context.Context, id string) (*SaleResult, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}

	entries, err := s.repo.GetLedgerEntriesBySale(ctx, id)
	if err != nil {
		return nil, err
	}

	return &SaleResult{Sale: sale, Entries: entries}, nil
}
