package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/bingo-sales/internal/model"
	"github.com/mmeshcher/bingo-sales/internal/repository"
	"github.com/mmeshcher/bingo-sales/internal/service"
	"github.com/mmeshcher/bingo-sales/internal/validation"
)

type createVendorRequest struct {
	Name     string  `json:"name" validate:"required,min=2"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,min=6"`
	Role     string  `json:"role" validate:"required,oneof=LEADER SELLER SUBSELLER"`
	LeaderID *string `json:"leaderId,omitempty"`
	SellerID *string `json:"sellerId,omitempty"`
}

type updateVendorRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=2"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,min=6"`
	IsActive *bool   `json:"isActive,omitempty"`
}

type vendorResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Phone     *string `json:"phone,omitempty"`
	Role      string  `json:"role"`
	LeaderID  *string `json:"leaderId"`
	SellerID  *string `json:"sellerId"`
	IsActive  bool    `json:"isActive"`
	CreatedAt string  `json:"createdAt"`
}

type balanceResponse struct {
	VendorID string  `json:"vendorId"`
	Balance  float64 `json:"balance"`
}

type statsResponse struct {
	VendorID      string `json:"vendorId"`
	AssignedCount int64  `json:"assignedCount"`
	SoldCount     int64  `json:"soldCount"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

func toVendorResponse(v *model.Vendor) vendorResponse {
	return vendorResponse{
		ID:        v.ID,
		Name:      v.Name,
		Phone:     v.Phone,
		Role:      string(v.Role),
		LeaderID:  v.LeaderID,
		SellerID:  v.SellerID,
		IsActive:  v.IsActive,
		CreatedAt: formatTime(v.CreatedAt),
	}
}

// CreateVendor регистрирует продавца.
func (h *Handler) CreateVendor(w http.ResponseWriter, r *http.Request) {
	var req createVendorRequest
	if err := validation.DecodeJSONBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	v, err := h.service.CreateVendor(r.Context(), service.VendorRequest{
		Name:     req.Name,
		Phone:    req.Phone,
		Role:     model.VendorRole(req.Role),
		LeaderID: req.LeaderID,
		SellerID: req.SellerID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVendorResponse(v))
}

// ListVendors возвращает продавцов, при необходимости только команду лидера.
func (h *Handler) ListVendors(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.service.ListVendors(r.Context(), optionalQuery(r, "leaderId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]vendorResponse, 0, len(vendors))
	for i := range vendors {
		resp = append(resp, toVendorResponse(&vendors[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetVendor возвращает продавца.
func (h *Handler) GetVendor(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.GetVendor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVendorResponse(v))
}

// UpdateVendor изменяет имя, телефон или активность продавца.
func (h *Handler) UpdateVendor(w http.ResponseWriter, r *http.Request) {
	var req updateVendorRequest
	if err := validation.DecodeJSONBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	v, err := h.service.UpdateVendor(r.Context(), chi.URLParam(r, "id"), repository.VendorUpdate{
		Name:     req.Name,
		Phone:    req.Phone,
		IsActive: req.IsActive,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVendorResponse(v))
}

// DeleteVendor удаляет продавца.
func (h *Handler) DeleteVendor(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteVendor(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetVendorBalance возвращает баланс комиссий продавца.
func (h *Handler) GetVendorBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	balance, err := h.service.GetVendorBalance(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{VendorID: id, Balance: money(balance)})
}

// GetVendorStats возвращает счётчики карточек продавца.
func (h *Handler) GetVendorStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetVendorStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := statsResponse{
		VendorID:      stats.VendorID,
		AssignedCount: stats.AssignedCount,
		SoldCount:     stats.SoldCount,
	}
	if !stats.UpdatedAt.IsZero() {
		resp.UpdatedAt = formatTime(stats.UpdatedAt)
	}
	writeJSON(w, http.StatusOK, resp)
}
