package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/mmeshcher/bingo-sales/internal/model"
	"github.com/mmeshcher/bingo-sales/internal/repository"
)

// Ограничения массового назначения и подсчёта карточек.
const (
	MaxBulkAssign     = 5000
	DefaultBulkStep   = 10
	bulkAssignChunk   = 500
	MaxCountVendorIDs = 500
)

var (
	// ErrInvalidBulkAssign возвращается для запроса массового назначения с неверным режимом или границами.
	ErrInvalidBulkAssign = fmt.Errorf("%w: specify exactly one of count, cardNumbers or startRange/endRange", repository.ErrValidation)
	// ErrVendorInactive возвращается при назначении карточек неактивному продавцу.
	ErrVendorInactive = fmt.Errorf("%w: vendor is inactive", repository.ErrConflict)
)

// BulkAssignRequest описывает массовое назначение карточек продавцу. Задаётся ровно один режим:
// Count свободных карточек, список CardNumbers или диапазон StartRange..EndRange с шагом Step.
type BulkAssignRequest struct {
	EventDate   string
	VendorID    string
	Count       int
	CardNumbers []int
	StartRange  int
	EndRange    int
	Step        int
}

// BulkAssignResult описывает итог массового назначения.
type BulkAssignResult struct {
	Vendor    *model.Vendor
	Requested int
	Assigned  int
	Skipped   int
	Warning   string
}

func (req BulkAssignRequest) cardNumbers() ([]int, error) {
	byCount := req.Count != 0
	byList := len(req.CardNumbers) > 0
	byRange := req.StartRange != 0 || req.EndRange != 0

	modes := 0
	for _, on := range []bool{byCount, byList, byRange} {
		if on {
			modes++
		}
	}
	if modes != 1 {
		return nil, ErrInvalidBulkAssign
	}

	switch {
	case byCount:
		if req.Count < 0 || req.Count > MaxBulkAssign {
			return nil, fmt.Errorf("%w: count must be between 1 and %d", repository.ErrValidation, MaxBulkAssign)
		}
		return nil, nil

	case byList:
		nos := slices.Clone(req.CardNumbers)
		slices.Sort(nos)
		nos = slices.Compact(nos)
		if nos[0] < 1 || len(nos) > MaxBulkAssign {
			return nil, fmt.Errorf("%w: card numbers must be positive, at most %d", repository.ErrValidation, MaxBulkAssign)
		}
		return nos, nil
	}

	step := req.Step
	if step == 0 {
		step = DefaultBulkStep
	}
	if req.StartRange < 1 || req.EndRange < req.StartRange || step < 1 {
		return nil, fmt.Errorf("%w: range requires 1 <= startRange <= endRange and step >= 1", repository.ErrValidation)
	}
	if (req.EndRange-req.StartRange)/step+1 > MaxBulkAssign {
		return nil, fmt.Errorf("%w: range selects more than %d cards", repository.ErrValidation, MaxBulkAssign)
	}

	var nos []int
	for n := req.StartRange; n <= req.EndRange; n += step {
		nos = append(nos, n)
	}
	return nos, nil
}

// assignmentSource возвращает владельца, у которого продавец может забирать карточки:
// лидер берёт свободные, продавец карточки своего лидера, субпродавец карточки своего продавца.
func assignmentSource(v *model.Vendor) (*string, error) {
	switch v.Role {
	case model.VendorRoleLeader:
		return nil, nil
	case model.VendorRoleSeller:
		if v.LeaderID == nil {
			return nil, ErrInvalidAssignmentFlow
		}
		return v.LeaderID, nil
	case model.VendorRoleSubseller:
		if v.SellerID == nil {
			return nil, ErrInvalidAssignmentFlow
		}
		return v.SellerID, nil
	}
	return nil, fmt.Errorf("%w: vendor role %q", repository.ErrValidation, v.Role)
}

// BulkAssignCards назначает продавцу пачку карточек события с соблюдением иерархии.
// Карточки обрабатываются частями, каждая часть в отдельной транзакции; события публикуются
// после фиксации части. Недоступные карточки пропускаются, нехватка отражается в Warning.
func (s *Service) BulkAssignCards(ctx context.Context, req BulkAssignRequest) (*BulkAssignResult, error) {
	nos, err := req.cardNumbers()
	if err != nil {
		return nil, err
	}

	vendor, err := s.repo.GetVendor(ctx, req.VendorID)
	if err != nil {
		return nil, err
	}
	if !vendor.IsActive {
		return nil, ErrVendorInactive
	}
	source, err := assignmentSource(vendor)
	if err != nil {
		return nil, err
	}

	res := &BulkAssignResult{Vendor: vendor, Requested: req.Count}
	if nos != nil {
		res.Requested = len(nos)
	}

	for {
		var chunk []int
		limit := 0
		if nos != nil {
			if len(nos) == 0 {
				break
			}
			n := min(len(nos), bulkAssignChunk)
			chunk, nos = nos[:n], nos[n:]
		} else {
			limit = min(res.Requested-res.Assigned, bulkAssignChunk)
			if limit <= 0 {
				break
			}
		}

		changes, err := s.assignChunk(ctx, req.EventDate, vendor, source, chunk, limit)
		if err != nil {
			if res.Assigned > 0 {
				s.logger.Sugar().Warnw("bulk assign interrupted",
					"vendorID", vendor.ID, "date", req.EventDate, "assigned", res.Assigned, "error", err)
			}
			return nil, err
		}

		for _, ch := range changes {
			s.notify(ctx, ch)
		}
		res.Assigned += len(changes)

		if chunk != nil {
			res.Skipped += len(chunk) - len(changes)
		} else if len(changes) < limit {
			break
		}
	}

	if res.Assigned < res.Requested {
		res.Warning = fmt.Sprintf("requested %d cards, assigned %d", res.Requested, res.Assigned)
		if req.Count > 0 && res.Assigned == 0 {
			res.Warning = "stock exhausted"
		}
	}

	s.logger.Sugar().Infow("cards bulk assigned",
		"vendorID", vendor.ID, "date", req.EventDate, "requested", res.Requested, "assigned", res.Assigned)

	return res, nil
}

// assignChunk назначает одну часть карточек в отдельной транзакции и возвращает изменения
// для публикации. chunk задаёт номера карточек; при пустом chunk берётся limit свободных карточек source.
func (s *Service) assignChunk(ctx context.Context, eventDate string, vendor *model.Vendor, source *string, chunk []int, limit int) ([]model.CardStateChange, error) {
	var changes []model.CardStateChange

	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		changes = changes[:0]

		var cards []model.Card
		var err error
		if chunk != nil {
			cards, err = tx.LockCardsByNumber(ctx, eventDate, chunk)
		} else {
			cards, err = tx.LockAssignableCards(ctx, eventDate, source, limit)
		}
		if err != nil {
			return err
		}

		now := s.now().UTC()
		for i := range cards {
			c := &cards[i]
			if c.Sold || (c.AssignedTo != nil && *c.AssignedTo == vendor.ID) || checkAssignmentFlow(c, vendor) != nil {
				continue
			}
			if err := tx.SetCardAssignee(ctx, eventDate, c.ID, &vendor.ID); err != nil {
				return err
			}
			changes = append(changes, model.CardStateChange{
				EventDate:      eventDate,
				CardID:         c.ID,
				PrevAssignedTo: c.AssignedTo,
				AssignedTo:     &vendor.ID,
				At:             now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return changes, nil
}

// CardCounts возвращает точные количества назначенных и проданных карточек продавцов в событии.
// В отличие от GetVendorStats значения считаются по карточкам и не отстают.
func (s *Service) CardCounts(ctx context.Context, eventDate string, vendorIDs []string) (map[string]model.CardCounts, error) {
	ids := slices.Clone(vendorIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) == 0 || len(ids) > MaxCountVendorIDs || ids[0] == "" {
		return nil, fmt.Errorf("%w: vendorIds must contain 1 to %d non-empty ids", repository.ErrValidation, MaxCountVendorIDs)
	}

	found, err := s.repo.CountCardsByVendor(ctx, eventDate, ids)
	if err != nil {
		return nil, err
	}

	res := make(map[string]model.CardCounts, len(ids))
	for _, id := range ids {
		res[id] = found[id]
	}
	return res, nil
}
