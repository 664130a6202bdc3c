// Package service реализует бизнес-логику продаж бинго-карточек: движок транзакции
// продажи, операции с карточками и справочник продавцов.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/bingo-sales/internal/commission"
	"github.com/mmeshcher/bingo-sales/internal/events"
	"github.com/mmeshcher/bingo-sales/internal/metrics"
	"github.com/mmeshcher/bingo-sales/internal/model"
	"github.com/mmeshcher/bingo-sales/internal/repository"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	Ping(ctx context.Context) error
	WithTx(ctx context.Context, fn func(tx repository.Tx) error) error

	CreateVendor(ctx context.Context, v *model.Vendor) error
	GetVendor(ctx context.Context, id string) (*model.Vendor, error)
	ListVendors(ctx context.Context, leaderID *string) ([]model.Vendor, error)
	UpdateVendor(ctx context.Context, id string, u repository.VendorUpdate) (*model.Vendor, error)
	DeleteVendor(ctx context.Context, id string) error
	GetVendorBalance(ctx context.Context, id string) (decimal.Decimal, error)
	GetVendorStats(ctx context.Context, id string) (*model.VendorStats, error)

	CreateCards(ctx context.Context, eventDate string, cards []model.Card) error
	GetCard(ctx context.Context, eventDate, id string) (*model.Card, error)
	ListCards(ctx context.Context, f repository.CardFilter) ([]model.Card, error)
	SearchCards(ctx context.Context, eventDate string, cardNo int) ([]model.Card, error)
	ListUnsoldCards(ctx context.Context, eventDate string) ([]model.Card, error)
	CardTotals(ctx context.Context, eventDate string) (*model.CardTotals, error)
	CountCardsByVendor(ctx context.Context, eventDate string, vendorIDs []string) (map[string]model.CardCounts, error)
	ReplaceCardGrids(ctx context.Context, eventDate string, grids map[string][]int) (int, error)

	ListSales(ctx context.Context, f repository.SaleFilter) ([]model.Sale, error)
	GetSale(ctx context.Context, id string) (*model.Sale, error)
	GetLedgerEntriesBySale(ctx context.Context, saleID string) ([]model.LedgerEntry, error)
}

// Service содержит бизнес-логику сервиса продаж.
type Service struct {
	repo          Repository
	policy        commission.Policy
	publisher     events.Publisher
	logger        *zap.Logger
	metrics       *metrics.Metrics
	defaultAmount decimal.Decimal
	now           func() time.Time
}

// Option настраивает сервис.
type Option func(*Service)

// WithDefaultAmount задаёт цену карточки для запросов продажи без суммы.
func WithDefaultAmount(amount decimal.Decimal) Option {
	return func(s *Service) {
		s.defaultAmount = amount
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService создаёт сервис. publisher и m могут быть nil.
func NewService(repo Repository, policy commission.Policy, publisher events.Publisher, logger *zap.Logger, m *metrics.Metrics, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		repo:          repo,
		policy:        policy,
		publisher:     publisher,
		logger:        logger,
		metrics:       m,
		defaultAmount: decimal.NewFromInt(20),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// notify публикует событие после фиксации транзакции. Ошибка публикации не влияет
// на результат операции: счётчики, построенные на событиях, не являются источником истины.
func (s *Service) notify(ctx context.Context, change model.CardStateChange) {
	if s.publisher == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, change); err != nil {
		s.logger.Warn("publish card state event error",
			zap.Error(err),
			zap.String("cardID", change.CardID),
			zap.String("date", change.EventDate))
	}
}
