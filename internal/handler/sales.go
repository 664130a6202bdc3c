package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bingo-sales/internal/model"
	"github.com/mmeshcher/bingo-sales/internal/service"
	"github.com/mmeshcher/bingo-sales/internal/validation"
)

type saleRequest struct {
	CardID   string           `json:"cardId" validate:"required"`
	SellerID string           `json:"sellerId" validate:"required"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Date     string           `json:"date" validate:"required,eventdate"`
}

type commissionsResponse struct {
	Seller    float64 `json:"seller"`
	Leader    float64 `json:"leader"`
	Subleader float64 `json:"subleader"`
}

type saleResponse struct {
	ID          string              `json:"id"`
	CardID      string              `json:"cardId"`
	SellerID    string              `json:"sellerId"`
	LeaderID    *string             `json:"leaderId"`
	SubleaderID *string             `json:"subleaderId"`
	Amount      float64             `json:"amount"`
	Commissions commissionsResponse `json:"commissions"`
	CreatedAt   string              `json:"createdAt"`
	Date        string              `json:"date"`
}

type ledgerEntryResponse struct {
	ID        string  `json:"id"`
	VendorID  string  `json:"vendorId"`
	Type      string  `json:"type"`
	Amount    float64 `json:"amount"`
	CreatedAt string  `json:"createdAt"`
}

type saleDetailsResponse struct {
	saleResponse
	Entries []ledgerEntryResponse `json:"entries"`
}

func toSaleResponse(s *model.Sale) saleResponse {
	return saleResponse{
		ID:          s.ID,
		CardID:      s.CardID,
		SellerID:    s.SellerID,
		LeaderID:    s.LeaderID,
		SubleaderID: s.SubleaderID,
		Amount:      money(s.Amount),
		Commissions: commissionsResponse{
			Seller:    money(s.Commissions.Seller),
			Leader:    money(s.Commissions.Leader),
			Subleader: money(s.Commissions.Subleader),
		},
		CreatedAt: formatTime(s.CreatedAt),
		Date:      s.EventDate,
	}
}

func toSaleDetails(res *service.SaleResult) saleDetailsResponse {
	entries := make([]ledgerEntryResponse, 0, len(res.Entries))
	for _, e := range res.Entries {
		entries = append(entries, ledgerEntryResponse{
			ID:        e.ID,
			VendorID:  e.VendorID,
			Type:      string(e.Type),
			Amount:    money(e.Amount),
			CreatedAt: formatTime(e.CreatedAt),
		})
	}
	return saleDetailsResponse{saleResponse: toSaleResponse(res.Sale), Entries: entries}
}

// CreateSale продаёт карточку продавцу.
func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := validation.DecodeJSONBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Amount != nil {
		if err := service.ValidateAmount(*req.Amount); err != nil {
			h.writeError(w, r, &validation.Error{Message: "invalid request", Fields: map[string]string{"amount": err.Error()}})
			return
		}
	}

	res, err := h.service.RecordSale(r.Context(), service.SaleRequest{
		CardID:    req.CardID,
		SellerID:  req.SellerID,
		Amount:    req.Amount,
		EventDate: req.Date,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSaleResponse(res.Sale))
}

// ListSales возвращает продажи, новые первыми.
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	q := service.SaleQuery{SellerID: optionalQuery(r, "sellerId")}

	for key, dst := range map[string]**time.Time{"from": &q.From, "to": &q.To} {
		raw := r.URL.Query().Get(key)
		if raw == "" {
			continue
		}
		t, err := validation.ParseTime(raw)
		if err != nil {
			h.writeError(w, r, &validation.Error{Message: "invalid query parameter", Fields: map[string]string{key: "must be RFC 3339 or unix milliseconds"}})
			return
		}
		*dst = &t
	}

	sales, err := h.service.ListSales(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]saleResponse, 0, len(sales))
	for i := range sales {
		resp = append(resp, toSaleResponse(&sales[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSale возвращает продажу с записями баланса.
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleDetails(res))
}
