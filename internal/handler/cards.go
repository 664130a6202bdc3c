package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/bingo-sales/internal/grid"
	"github.com/mmeshcher/bingo-sales/internal/model"
	"github.com/mmeshcher/bingo-sales/internal/service"
	"github.com/mmeshcher/bingo-sales/internal/validation"
)

type createCardRequest struct {
	Numbers [][]int `json:"numbers" validate:"required,len=5,dive,len=5"`
	Date    string  `json:"date" validate:"required,eventdate"`
	CardNo  int     `json:"cardNo,omitempty" validate:"gte=0"`
}

type generateCardsRequest struct {
	Count int    `json:"count" validate:"gte=0,lte=10000"`
	Date  string `json:"date" validate:"required,eventdate"`
}

type eventDateRequest struct {
	Date string `json:"date" validate:"required,eventdate"`
}

type assignCardRequest struct {
	VendorID string `json:"vendorId" validate:"required"`
}

type bulkAssignRequest struct {
	VendorID    string `json:"vendorId" validate:"required"`
	Date        string `json:"date" validate:"required,eventdate"`
	Count       int    `json:"count,omitempty" validate:"gte=0,lte=5000"`
	CardNumbers []int  `json:"cardNumbers,omitempty" validate:"max=5000,dive,gt=0"`
	StartRange  int    `json:"startRange,omitempty" validate:"gte=0"`
	EndRange    int    `json:"endRange,omitempty" validate:"gte=0"`
	Step        int    `json:"step,omitempty" validate:"gte=0"`
}

type bulkAssignResponse struct {
	AssignedCount int    `json:"assignedCount"`
	Requested     int    `json:"requested"`
	Skipped       int    `json:"skipped"`
	VendorID      string `json:"vendorId"`
	Role          string `json:"role"`
	Warning       string `json:"warning,omitempty"`
}

type cardCountsRequest struct {
	VendorIDs []string `json:"vendorIds" validate:"required,min=1,max=500,dive,required"`
	Date      string   `json:"date" validate:"required,eventdate"`
}

type cardCount struct {
	Assigned int `json:"assigned"`
	Sold     int `json:"sold"`
}

type cardCountsResponse struct {
	Date   string               `json:"date"`
	Counts map[string]cardCount `json:"counts"`
}

type cardResponse struct {
	ID           string  `json:"id"`
	Date         string  `json:"date"`
	CardNo       int     `json:"cardNo"`
	Numbers      [][]int `json:"numbers"`
	GridSize     int     `json:"gridSize"`
	AssignedTo   *string `json:"assignedTo"`
	Sold         bool    `json:"sold"`
	SaleID       *string `json:"saleId,omitempty"`
	WasCorrected bool    `json:"wasCorrected,omitempty"`
	CreatedAt    string  `json:"createdAt"`
}

type cardsPageResponse struct {
	Cards      []cardResponse `json:"cards"`
	HasMore    bool           `json:"hasMore"`
	LastCardNo *int           `json:"lastCardNo,omitempty"`
}

type generateCardsResponse struct {
	Count int            `json:"count"`
	Cards []cardResponse `json:"cards"`
}

type cardTotalsResponse struct {
	Date           string `json:"date"`
	TotalCards     int    `json:"totalCards"`
	MaxCardNo      int    `json:"maxCardNo"`
	TotalDocuments int    `json:"totalDocuments"`
}

type fixReportResponse struct {
	Date      string `json:"date"`
	Corrected int    `json:"corrected"`
	Valid     int    `json:"valid"`
	Total     int    `json:"total"`
}

func toCardResponse(c *model.Card) cardResponse {
	return cardResponse{
		ID:           c.ID,
		Date:         c.EventDate,
		CardNo:       c.CardNo,
		Numbers:      grid.Expand(c.Numbers, c.GridSize),
		GridSize:     c.GridSize,
		AssignedTo:   c.AssignedTo,
		Sold:         c.Sold,
		SaleID:       c.SaleID,
		WasCorrected: c.WasCorrected,
		CreatedAt:    formatTime(c.CreatedAt),
	}
}

func toCardResponses(cards []model.Card) []cardResponse {
	out := make([]cardResponse, 0, len(cards))
	for i := range cards {
		out = append(out, toCardResponse(&cards[i]))
	}
	return out
}

// CreateCard сохраняет карточку с переданной сеткой.
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req createCardRequest
	if err := validation.DecodeJSONBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	card, err := h.service.CreateCard(r.Context(), req.Date, grid.Grid(req.Numbers), req.CardNo)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCardResponse(card))
}

// GenerateCards создаёт пачку случайных карточек события.
func (h *Handler) GenerateCards(w http.ResponseWriter, r *http.Request) {
	var req generateCardsRequest
	if err := validation.DecodeJSONBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	cards, err := h.service.GenerateCards(r.Context(), req.Date, req.Count)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, generateCardsResponse{Count: len(cards), Cards: toCardResponses(cards)})
}

// ValidateAndFix проверяет сетки непроданных карточек события и исправляет некорректные.
func (h *Handler) ValidateAndFix(w http.ResponseWriter, r *http.Request) {
	var req eventDateRequest
	if err := validation.DecodeJSONBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	report, err := h.service.ValidateAndFix(r.Context(), req.Date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fixReportResponse{
		Date:      req.Date,
		Corrected: report.Corrected,
		Valid:     report.Valid,
		Total:     report.Total,
	})
}

// BulkAssignCards назначает продавцу пачку карточек по количеству, списку номеров или диапазону.
func (h *Handler) BulkAssignCards(w http.ResponseWriter, r *http.Request) {
	var req bulkAssignRequest
	if err := validation.DecodeJSONBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.service.BulkAssignCards(r.Context(), service.BulkAssignRequest{
		EventDate:   req.Date,
		VendorID:    req.VendorID,
		Count:       req.Count,
		CardNumbers: req.CardNumbers,
		StartRange:  req.StartRange,
		EndRange:    req.EndRange,
		Step:        req.Step,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkAssignResponse{
		AssignedCount: res.Assigned,
		Requested:     res.Requested,
		Skipped:       res.Skipped,
		VendorID:      res.Vendor.ID,
		Role:          string(res.Vendor.Role),
		Warning:       res.Warning,
	})
}

// CardCounts возвращает точные количества назначенных и проданных карточек продавцов.
func (h *Handler) CardCounts(w http.ResponseWriter, r *http.Request) {
	var req cardCountsRequest
	if err := validation.DecodeJSONBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	counts, err := h.service.CardCounts(r.Context(), req.Date, req.VendorIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := cardCountsResponse{Date: req.Date, Counts: make(map[string]cardCount, len(counts))}
	for id, c := range counts {
		resp.Counts[id] = cardCount{Assigned: c.Assigned, Sold: c.Sold}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListCards возвращает страницу карточек события.
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	date, err := eventDate(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	limit, err := validation.ParseQueryInt(r, "limit", service.DefaultCardLimit, 1, service.MaxCardLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	after, err := validation.ParseQueryInt(r, "startAfter", 0, 0, 1<<31-1)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	q := service.CardQuery{
		EventDate:   date,
		AssignedTo:  optionalQuery(r, "assignedTo"),
		AfterCardNo: after,
		Limit:       limit,
	}
	if raw := r.URL.Query().Get("sold"); raw != "" {
		sold, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, r, &validation.Error{Message: "invalid query parameter", Fields: map[string]string{"sold": "must be a boolean"}})
			return
		}
		q.Sold = &sold
	}

	cards, err := h.service.ListCards(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := cardsPageResponse{
		Cards:   toCardResponses(cards),
		HasMore: len(cards) == limit,
	}
	if len(cards) > 0 {
		last := cards[len(cards)-1].CardNo
		resp.LastCardNo = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

// SearchCards ищет карточки события по номеру.
func (h *Handler) SearchCards(w http.ResponseWriter, r *http.Request) {
	date, err := eventDate(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("cardNo") == "" {
		h.writeError(w, r, &validation.Error{Message: "invalid query parameter", Fields: map[string]string{"cardNo": "is required"}})
		return
	}
	cardNo, err := validation.ParseQueryInt(r, "cardNo", 0, 1, 1<<31-1)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	cards, err := h.service.SearchCards(r.Context(), date, cardNo)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponses(cards))
}

// CardTotals возвращает сводку по карточкам события.
func (h *Handler) CardTotals(w http.ResponseWriter, r *http.Request) {
	date, err := eventDate(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	totals, err := h.service.CardTotals(r.Context(), date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cardTotalsResponse{
		Date:           date,
		TotalCards:     totals.TotalCards,
		MaxCardNo:      totals.MaxCardNo,
		TotalDocuments: totals.TotalDocuments,
	})
}

// GetCard возвращает карточку события.
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	date, err := eventDate(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	card, err := h.service.GetCard(r.Context(), date, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(card))
}

// AssignCard назначает карточку продавцу.
func (h *Handler) AssignCard(w http.ResponseWriter, r *http.Request) {
	date, err := eventDate(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req assignCardRequest
	if err := validation.DecodeJSONBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	card, err := h.service.AssignCard(r.Context(), date, chi.URLParam(r, "id"), req.VendorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(card))
}

// UnassignCard снимает назначение с карточки.
func (h *Handler) UnassignCard(w http.ResponseWriter, r *http.Request) {
	date, err := eventDate(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	card, err := h.service.UnassignCard(r.Context(), date, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(card))
}

// DeleteCard удаляет непроданную карточку.
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	date, err := eventDate(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.service.DeleteCard(r.Context(), date, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
