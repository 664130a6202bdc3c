package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bingo-sales/internal/model"
	"github.com/mmeshcher/bingo-sales/internal/repository"
)

const (
	minNameLen  = 2
	minPhoneLen = 6
)

var (
	// ErrInvalidRole возвращается для неизвестной роли продавца.
	ErrInvalidRole = fmt.Errorf("%w: unknown vendor role", repository.ErrValidation)
	// ErrInvalidHierarchy возвращается, если родители продавца не соответствуют его роли.
	ErrInvalidHierarchy = fmt.Errorf("%w: vendor parents do not match role", repository.ErrValidation)
)

// VendorRequest описывает запрос создания продавца.
type VendorRequest struct {
	Name     string
	Phone    *string
	Role     model.VendorRole
	LeaderID *string
	SellerID *string
}

// CreateVendor регистрирует продавца. Лидер не имеет родителей, продавец подчиняется лидеру,
// субпродавец подчиняется продавцу и наследует его лидера.
func (s *Service) CreateVendor(ctx context.Context, req VendorRequest) (*model.Vendor, error) {
	name := strings.TrimSpace(req.Name)
	if utf8.RuneCountInString(name) < minNameLen {
		return nil, fmt.Errorf("%w: vendor name must have at least %d characters", repository.ErrValidation, minNameLen)
	}
	if req.Phone != nil && len(strings.TrimSpace(*req.Phone)) < minPhoneLen {
		return nil, fmt.Errorf("%w: phone must have at least %d characters", repository.ErrValidation, minPhoneLen)
	}
	if !req.Role.IsValid() {
		return nil, ErrInvalidRole
	}

	v := &model.Vendor{
		ID:       uuid.NewString(),
		Name:     name,
		Phone:    req.Phone,
		Role:     req.Role,
		IsActive: true,
	}

	switch req.Role {
	case model.VendorRoleLeader:
		if req.LeaderID != nil || req.SellerID != nil {
			return nil, fmt.Errorf("%w: leader cannot have parents", ErrInvalidHierarchy)
		}

	case model.VendorRoleSeller:
		if req.LeaderID == nil || req.SellerID != nil {
			return nil, fmt.Errorf("%w: seller requires leaderId only", ErrInvalidHierarchy)
		}
		leader, err := s.parent(ctx, *req.LeaderID, model.VendorRoleLeader)
		if err != nil {
			return nil, err
		}
		v.LeaderID = &leader.ID

	case model.VendorRoleSubseller:
		if req.SellerID == nil {
			return nil, fmt.Errorf("%w: subseller requires sellerId", ErrInvalidHierarchy)
		}
		seller, err := s.parent(ctx, *req.SellerID, model.VendorRoleSeller)
		if err != nil {
			return nil, err
		}
		if req.LeaderID != nil && (seller.LeaderID == nil || *req.LeaderID != *seller.LeaderID) {
			return nil, fmt.Errorf("%w: leaderId differs from seller's leader", ErrInvalidHierarchy)
		}
		v.SellerID = &seller.ID
		v.LeaderID = seller.LeaderID
	}

	if err := s.repo.CreateVendor(ctx, v); err != nil {
		return nil, err
	}

	s.logger.Sugar().Infow("vendor created", "vendorID", v.ID, "role", v.Role)
	return v, nil
}

func (s *Service) parent(ctx context.Context, id string, role model.VendorRole) (*model.Vendor, error) {
	p, err := s.repo.GetVendor(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Role != role {
		return nil, fmt.Errorf("%w: parent %s must be %s", ErrInvalidHierarchy, id, role)
	}
	return p, nil
}

// GetVendor возвращает продавца.
func (s *Service) GetVendor(ctx context.Context, id string) (*model.Vendor, error) {
	return s.repo.GetVendor(ctx, id)
}

// ListVendors возвращает продавцов, при необходимости только команду лидера.
func (s *Service) ListVendors(ctx context.Context, leaderID *string) ([]model.Vendor, error) {
	return s.repo.ListVendors(ctx, leaderID)
}

// ErrEmptyVendorUpdate возвращается для запроса изменения продавца без полей.
var ErrEmptyVendorUpdate = fmt.Errorf("%w: nothing to update", repository.ErrValidation)

// UpdateVendor изменяет имя, телефон или активность продавца.
// Неактивному продавцу нельзя назначать карточки; проданные карточки и баланс сохраняются.
func (s *Service) UpdateVendor(ctx context.Context, id string, u repository.VendorUpdate) (*model.Vendor, error) {
	if u.Name == nil && u.Phone == nil && u.IsActive == nil {
		return nil, ErrEmptyVendorUpdate
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if utf8.RuneCountInString(name) < minNameLen {
			return nil, fmt.Errorf("%w: vendor name must have at least %d characters", repository.ErrValidation, minNameLen)
		}
		u.Name = &name
	}
	if u.Phone != nil && len(strings.TrimSpace(*u.Phone)) < minPhoneLen {
		return nil, fmt.Errorf("%w: phone must have at least %d characters", repository.ErrValidation, minPhoneLen)
	}

	v, err := s.repo.UpdateVendor(ctx, id, u)
	if err != nil {
		return nil, err
	}

	s.logger.Sugar().Infow("vendor updated", "vendorID", v.ID, "active", v.IsActive)
	return v, nil
}

// DeleteVendor удаляет продавца без команды, продаж и назначенных непроданных карточек.
func (s *Service) DeleteVendor(ctx context.Context, id string) error {
	if err := s.repo.DeleteVendor(ctx, id); err != nil {
		if errors.Is(err, repository.ErrVendorInUse) {
			s.logger.Sugar().Infow("vendor delete refused", "vendorID", id)
		}
		return err
	}
	return nil
}

// GetVendorBalance возвращает сумму начисленных продавцу комиссий.
func (s *Service) GetVendorBalance(ctx context.Context, id string) (decimal.Decimal, error) {
	if _, err := s.repo.GetVendor(ctx, id); err != nil {
		return decimal.Zero, err
	}
	return s.repo.GetVendorBalance(ctx, id)
}

// GetVendorStats возвращает счётчики назначенных и проданных карточек продавца.
// Счётчики обновляются асинхронно и могут отставать от состояния карточек.
func (s *Service) GetVendorStats(ctx context.Context, id string) (*model.VendorStats, error) {
	if _, err := s.repo.GetVendor(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.GetVendorStats(ctx, id)
}
