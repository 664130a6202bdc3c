package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmeshcher/bingo-sales/internal/grid"
	"github.com/mmeshcher/bingo-sales/internal/model"
	"github.com/mmeshcher/bingo-sales/internal/repository"
)

// Ограничения операций с карточками.
const (
	MaxGenerateCount = 10000
	DefaultCardLimit = 50
	MaxCardLimit     = 2000
)

var (
	// ErrInvalidGrid возвращается для сетки, нарушающей правила столбцов.
	ErrInvalidGrid = fmt.Errorf("%w: invalid bingo grid", repository.ErrValidation)
	// ErrInvalidCount возвращается для недопустимого количества генерируемых карточек.
	ErrInvalidCount = fmt.Errorf("%w: count must be between 0 and %d", repository.ErrValidation, MaxGenerateCount)
	// ErrInvalidAssignmentFlow возвращается, если назначение нарушает иерархию продавцов.
	ErrInvalidAssignmentFlow = fmt.Errorf("%w: card must be assigned to the vendor's parent first", repository.ErrConflict)
)

// GenerateCards создаёт count случайных карточек события с последовательными номерами.
func (s *Service) GenerateCards(ctx context.Context, eventDate string, count int) ([]model.Card, error) {
	if count < 0 || count > MaxGenerateCount {
		return nil, ErrInvalidCount
	}
	if count == 0 {
		return []model.Card{}, nil
	}

	cards := make([]model.Card, count)
	for i := range cards {
		cards[i] = model.Card{
			ID:       uuid.NewString(),
			Numbers:  grid.Flatten(grid.Generate()),
			GridSize: grid.Size,
		}
	}

	if err := s.repo.CreateCards(ctx, eventDate, cards); err != nil {
		return nil, err
	}

	s.logger.Sugar().Infow("cards generated", "date", eventDate, "count", count,
		"firstCardNo", cards[0].CardNo, "lastCardNo", cards[len(cards)-1].CardNo)

	return cards, nil
}

// CreateCard сохраняет карточку с переданной сеткой. Нулевой cardNo означает следующий свободный номер.
func (s *Service) CreateCard(ctx context.Context, eventDate string, numbers grid.Grid, cardNo int) (*model.Card, error) {
	if !grid.Validate(numbers) {
		return nil, ErrInvalidGrid
	}
	if cardNo < 0 {
		return nil, fmt.Errorf("%w: card number must be positive", repository.ErrValidation)
	}

	cards := []model.Card{{
		ID:       uuid.NewString(),
		CardNo:   cardNo,
		Numbers:  grid.Flatten(numbers),
		GridSize: grid.Size,
	}}

	if err := s.repo.CreateCards(ctx, eventDate, cards); err != nil {
		return nil, err
	}
	return &cards[0], nil
}

// GetCard возвращает карточку события.
func (s *Service) GetCard(ctx context.Context, eventDate, id string) (*model.Card, error) {
	return s.repo.GetCard(ctx, eventDate, id)
}

// CardQuery описывает фильтр списка карточек.
type CardQuery struct {
	EventDate   string
	AssignedTo  *string
	Sold        *bool
	AfterCardNo int
	Limit       int
}

// ListCards возвращает страницу карточек события по возрастанию номера.
func (s *Service) ListCards(ctx context.Context, q CardQuery) ([]model.Card, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultCardLimit
	}
	limit = min(limit, MaxCardLimit)

	return s.repo.ListCards(ctx, repository.CardFilter{
		EventDate:   q.EventDate,
		AssignedTo:  q.AssignedTo,
		Sold:        q.Sold,
		AfterCardNo: q.AfterCardNo,
		Limit:       limit,
	})
}

// SearchCards ищет карточки события по номеру.
func (s *Service) SearchCards(ctx context.Context, eventDate string, cardNo int) ([]model.Card, error) {
	return s.repo.SearchCards(ctx, eventDate, cardNo)
}

// CardTotals возвращает сводку по карточкам события.
func (s *Service) CardTotals(ctx context.Context, eventDate string) (*model.CardTotals, error) {
	return s.repo.CardTotals(ctx, eventDate)
}

// AssignCard назначает карточку продавцу. Лидеру можно назначить любую непроданную карточку,
// продавцу только карточку его лидера, субпродавцу только карточку его продавца.
func (s *Service) AssignCard(ctx context.Context, eventDate, cardID, vendorID string) (*model.Card, error) {
	var (
		card    *model.Card
		change  model.CardStateChange
		changed bool
	)

	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		vendor, err := tx.GetVendor(ctx, vendorID)
		if err != nil {
			return err
		}
		if !vendor.IsActive {
			return ErrVendorInactive
		}

		card, err = tx.LockCard(ctx, eventDate, cardID)
		if err != nil {
			return err
		}
		if card.Sold {
			return repository.ErrCardAlreadySold
		}

		if card.AssignedTo != nil && *card.AssignedTo == vendor.ID {
			return nil
		}

		if err := checkAssignmentFlow(card, vendor); err != nil {
			return err
		}

		if err := tx.SetCardAssignee(ctx, eventDate, cardID, &vendor.ID); err != nil {
			return err
		}

		change = model.CardStateChange{
			EventDate:      eventDate,
			CardID:         cardID,
			PrevAssignedTo: card.AssignedTo,
			AssignedTo:     &vendor.ID,
			At:             s.now().UTC(),
		}
		changed = true
		card.AssignedTo = &vendor.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.notify(ctx, change)
	}
	return card, nil
}

func checkAssignmentFlow(card *model.Card, vendor *model.Vendor) error {
	var parent *string
	switch vendor.Role {
	case model.VendorRoleLeader:
		return nil
	case model.VendorRoleSeller:
		parent = vendor.LeaderID
	case model.VendorRoleSubseller:
		parent = vendor.SellerID
	default:
		return fmt.Errorf("%w: vendor role %q", repository.ErrValidation, vendor.Role)
	}

	if parent == nil || card.AssignedTo == nil || *card.AssignedTo != *parent {
		return ErrInvalidAssignmentFlow
	}
	return nil
}

// UnassignCard снимает назначение с непроданной карточки.
func (s *Service) UnassignCard(ctx context.Context, eventDate, cardID string) (*model.Card, error) {
	var (
		card   *model.Card
		change model.CardStateChange
	)

	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		card, err = tx.LockCard(ctx, eventDate, cardID)
		if err != nil {
			return err
		}
		if card.Sold {
			return repository.ErrCardAlreadySold
		}
		if card.AssignedTo == nil {
			return nil
		}

		if err := tx.SetCardAssignee(ctx, eventDate, cardID, nil); err != nil {
			return err
		}

		change = model.CardStateChange{
			EventDate:      eventDate,
			CardID:         cardID,
			PrevAssignedTo: card.AssignedTo,
			At:             s.now().UTC(),
		}
		card.AssignedTo = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	if change.PrevAssignedTo != nil {
		s.notify(ctx, change)
	}
	return card, nil
}

// DeleteCard удаляет непроданную карточку.
func (s *Service) DeleteCard(ctx context.Context, eventDate, cardID string) error {
	var change model.CardStateChange

	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		card, err := tx.LockCard(ctx, eventDate, cardID)
		if err != nil {
			return err
		}
		if card.Sold {
			return repository.ErrCardAlreadySold
		}

		if err := tx.DeleteCard(ctx, eventDate, cardID); err != nil {
			return err
		}

		change = model.CardStateChange{
			EventDate:      eventDate,
			CardID:         cardID,
			PrevAssignedTo: card.AssignedTo,
			PrevSold:       card.Sold,
			Deleted:        true,
			At:             s.now().UTC(),
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify(ctx, change)
	return nil
}

// ValidateAndFix проверяет сетки непроданных карточек события и заменяет некорректные новыми.
func (s *Service) ValidateAndFix(ctx context.Context, eventDate string) (*model.FixReport, error) {
	cards, err := s.repo.ListUnsoldCards(ctx, eventDate)
	if err != nil {
		return nil, err
	}

	report := &model.FixReport{}
	fixes := make(map[string][]int)
	for _, c := range cards {
		if grid.Validate(grid.Expand(c.Numbers, c.GridSize)) {
			report.Valid++
			continue
		}
		fixes[c.ID] = grid.Flatten(grid.Generate())
	}

	corrected, err := s.repo.ReplaceCardGrids(ctx, eventDate, fixes)
	if err != nil {
		return nil, err
	}

	report.Corrected = corrected
	report.Total = report.Corrected + report.Valid

	if corrected > 0 {
		s.logger.Sugar().Infow("card grids corrected", "date", eventDate, "corrected", corrected, "valid", report.Valid)
	}

	return report, nil
}

// IsAlreadySold сообщает, вызвана ли ошибка попыткой изменить проданную карточку.
func IsAlreadySold(err error) bool {
	return errors.Is(err, repository.ErrCardAlreadySold)
}
