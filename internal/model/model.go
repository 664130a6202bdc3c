// Package model содержит доменные сущности сервиса продаж бинго-карточек.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// VendorRole описывает уровень продавца в иерархии.
type VendorRole string

const (
	VendorRoleLeader    VendorRole = "LEADER"
	VendorRoleSeller    VendorRole = "SELLER"
	VendorRoleSubseller VendorRole = "SUBSELLER"
)

// IsValid сообщает, является ли роль одной из известных.
func (r VendorRole) IsValid() bool {
	switch r {
	case VendorRoleLeader, VendorRoleSeller, VendorRoleSubseller:
		return true
	}
	return false
}

// Vendor представляет продавца: лидера, продавца или субпродавца.
// LeaderID у субпродавца наследуется от его продавца при создании и не пересчитывается.
type Vendor struct {
	ID        string
	Name      string
	Phone     *string
	Role      VendorRole
	LeaderID  *string
	SellerID  *string
	IsActive  bool
	CreatedAt time.Time
}

// Card описывает бинго-карточку события.
type Card struct {
	ID           string
	EventDate    string
	CardNo       int
	Numbers      []int
	GridSize     int
	AssignedTo   *string
	Sold         bool
	SaleID       *string
	WasCorrected bool
	CreatedAt    time.Time
}

// Commissions содержит распределение комиссии продажи по уровням.
type Commissions struct {
	Seller    decimal.Decimal
	Leader    decimal.Decimal
	Subleader decimal.Decimal
}

// Total возвращает сумму всех долей.
func (c Commissions) Total() decimal.Decimal {
	return c.Seller.Add(c.Leader).Add(c.Subleader)
}

// Sale описывает факт продажи карточки. Создаётся один раз и не изменяется.
type Sale struct {
	ID          string
	CardID      string
	SellerID    string
	LeaderID    *string
	SubleaderID *string
	Amount      decimal.Decimal
	Commissions Commissions
	EventDate   string
	CreatedAt   time.Time
}

// LedgerEntryType описывает тип записи баланса.
type LedgerEntryType string

const LedgerEntryCommission LedgerEntryType = "COMMISSION"

// LedgerEntry начисляет одну долю комиссии одному продавцу.
type LedgerEntry struct {
	ID        string
	VendorID  string
	Type      LedgerEntryType
	Amount    decimal.Decimal
	SaleID    string
	CreatedAt time.Time
}

// VendorStats содержит денормализованные счётчики карточек продавца.
// Значения обновляются асинхронно и могут временно отставать.
type VendorStats struct {
	VendorID      string
	AssignedCount int64
	SoldCount     int64
	UpdatedAt     time.Time
}

// CardStateChange описывает изменение назначения или статуса продажи карточки.
// Deleted выставляется при удалении карточки.
type CardStateChange struct {
	EventDate      string    `json:"eventDate"`
	CardID         string    `json:"cardId"`
	PrevAssignedTo *string   `json:"prevAssignedTo,omitempty"`
	AssignedTo     *string   `json:"assignedTo,omitempty"`
	PrevSold       bool      `json:"prevSold"`
	Sold           bool      `json:"sold"`
	Deleted        bool      `json:"deleted,omitempty"`
	At             time.Time `json:"at"`
}

// CardCounts содержит точные количества карточек продавца в событии, посчитанные по самим карточкам.
// Assigned включает проданные карточки.
type CardCounts struct {
	Assigned int
	Sold     int
}

// CardTotals содержит сводку по карточкам события.
type CardTotals struct {
	TotalCards     int
	MaxCardNo      int
	TotalDocuments int
}

// FixReport описывает результат проверки и исправления сеток.
type FixReport struct {
	Corrected int
	Valid     int
	Total     int
}
