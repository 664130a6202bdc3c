// Package commission вычисляет распределение комиссии продажи по уровням иерархии продавцов.
//
// Политика является чистой функцией без ввода-вывода: результат зависит только от продавца и суммы.
package commission

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bingo-sales/internal/model"
)

// Схемы расчёта комиссии.
const (
	SchemeFlat    = "flat"
	SchemePercent = "percent"
)

// Доли округляются до минимальной денежной единицы.
const moneyPlaces = 2

var (
	// ErrMissingLeader возвращается, если схема требует лидера, а у продавца он не указан.
	ErrMissingLeader = errors.New("seller has no leader")
	// ErrMissingParentSeller возвращается для субпродавца без родительского продавца.
	ErrMissingParentSeller = errors.New("subseller has no parent seller")
	// ErrUnknownRole возвращается для неизвестной роли продавца.
	ErrUnknownRole = errors.New("unknown vendor role")
)

// Split содержит результат работы политики: доли и получателей пассивных комиссий.
type Split struct {
	Commissions model.Commissions
	LeaderID    *string
	SubleaderID *string
}

// Policy вычисляет распределение комиссии для продажи.
type Policy interface {
	Split(seller model.Vendor, amount decimal.Decimal) (Split, error)
}

// Config описывает параметры выбора политики.
type Config struct {
	Scheme            string
	FlatFee           decimal.Decimal
	LeaderOnSubseller bool
	SellerRate        decimal.Decimal
	LeaderRate        decimal.Decimal
	SubleaderRate     decimal.Decimal
}

// New создаёт политику по конфигурации.
func New(cfg Config) (Policy, error) {
	switch cfg.Scheme {
	case "", SchemeFlat:
		if cfg.FlatFee.IsNegative() {
			return nil, fmt.Errorf("flat fee must not be negative: %s", cfg.FlatFee)
		}
		return FlatFee{Fee: cfg.FlatFee, LeaderOnSubseller: cfg.LeaderOnSubseller}, nil
	case SchemePercent:
		for name, rate := range map[string]decimal.Decimal{
			"seller":    cfg.SellerRate,
			"leader":    cfg.LeaderRate,
			"subleader": cfg.SubleaderRate,
		} {
			if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
				return nil, fmt.Errorf("%s rate must be within [0, 1]: %s", name, rate)
			}
		}
		return Percentage{
			SellerRate:    cfg.SellerRate,
			LeaderRate:    cfg.LeaderRate,
			SubleaderRate: cfg.SubleaderRate,
		}, nil
	default:
		return nil, fmt.Errorf("unknown commission scheme %q", cfg.Scheme)
	}
}

// FlatFee начисляет фиксированную сумму независимо от цены карточки:
// продавцу Fee, вышестоящему уровню Fee/2.
type FlatFee struct {
	Fee decimal.Decimal
	// LeaderOnSubseller включает выплату Fee/2 лидеру при продаже субпродавцом.
	LeaderOnSubseller bool
}

// Split реализует Policy.
func (p FlatFee) Split(seller model.Vendor, _ decimal.Decimal) (Split, error) {
	fee := p.Fee.Round(moneyPlaces)
	half := p.Fee.Div(decimal.NewFromInt(2)).Round(moneyPlaces)

	res := Split{
		Commissions: model.Commissions{
			Seller:    fee,
			Leader:    decimal.Zero,
			Subleader: decimal.Zero,
		},
		LeaderID: seller.LeaderID,
	}

	switch seller.Role {
	case model.VendorRoleLeader:
	case model.VendorRoleSeller:
		if seller.LeaderID == nil {
			return Split{}, ErrMissingLeader
		}
		res.Commissions.Leader = half
	case model.VendorRoleSubseller:
		if seller.SellerID == nil {
			return Split{}, ErrMissingParentSeller
		}
		res.SubleaderID = seller.SellerID
		res.Commissions.Subleader = half
		if p.LeaderOnSubseller {
			if seller.LeaderID == nil {
				return Split{}, ErrMissingLeader
			}
			res.Commissions.Leader = half
		}
	default:
		return Split{}, fmt.Errorf("%w: %q", ErrUnknownRole, seller.Role)
	}

	return res, nil
}

// Percentage начисляет доли от суммы продажи. При продаже субпродавцом
// пассивную долю получает родительский продавец, лидер на этом уровне не получает ничего.
type Percentage struct {
	SellerRate    decimal.Decimal
	LeaderRate    decimal.Decimal
	SubleaderRate decimal.Decimal
}

// Split реализует Policy.
func (p Percentage) Split(seller model.Vendor, amount decimal.Decimal) (Split, error) {
	res := Split{
		Commissions: model.Commissions{
			Seller:    amount.Mul(p.SellerRate).Round(moneyPlaces),
			Leader:    decimal.Zero,
			Subleader: decimal.Zero,
		},
		LeaderID: seller.LeaderID,
	}

	switch seller.Role {
	case model.VendorRoleLeader:
	case model.VendorRoleSeller:
		if seller.LeaderID == nil {
			return Split{}, ErrMissingLeader
		}
		res.Commissions.Leader = amount.Mul(p.LeaderRate).Round(moneyPlaces)
	case model.VendorRoleSubseller:
		if seller.SellerID == nil {
			return Split{}, ErrMissingParentSeller
		}
		res.SubleaderID = seller.SellerID
		res.Commissions.Subleader = amount.Mul(p.SubleaderRate).Round(moneyPlaces)
	default:
		return Split{}, fmt.Errorf("%w: %q", ErrUnknownRole, seller.Role)
	}

	return res, nil
}

// Entries раскладывает доли в записи баланса: по одной на каждую ненулевую долю.
// Сумма записей всегда равна сумме ненулевых долей.
func Entries(split Split, sellerID string) []model.LedgerEntry {
	entries := make([]model.LedgerEntry, 0, 3)
	add := func(vendorID *string, amount decimal.Decimal) {
		if vendorID == nil || !amount.IsPositive() {
			return
		}
		entries = append(entries, model.LedgerEntry{
			VendorID: *vendorID,
			Type:     model.LedgerEntryCommission,
			Amount:   amount,
		})
	}

	add(&sellerID, split.Commissions.Seller)
	add(split.LeaderID, split.Commissions.Leader)
	add(split.SubleaderID, split.Commissions.Subleader)

	return entries
}
