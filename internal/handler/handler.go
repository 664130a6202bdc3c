// Package handler содержит HTTP-обработчики API сервиса продаж бинго-карточек.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/bingo-sales/internal/grid"
	"github.com/mmeshcher/bingo-sales/internal/metrics"
	"github.com/mmeshcher/bingo-sales/internal/middleware"
	"github.com/mmeshcher/bingo-sales/internal/model"
	"github.com/mmeshcher/bingo-sales/internal/repository"
	"github.com/mmeshcher/bingo-sales/internal/service"
	"github.com/mmeshcher/bingo-sales/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error

	RecordSale(ctx context.Context, req service.SaleRequest) (*service.SaleResult, error)
	ListSales(ctx context.Context, q service.SaleQuery) ([]model.Sale, error)
	GetSale(ctx context.Context, id string) (*service.SaleResult, error)

	GenerateCards(ctx context.Context, eventDate string, count int) ([]model.Card, error)
	CreateCard(ctx context.Context, eventDate string, numbers grid.Grid, cardNo int) (*model.Card, error)
	GetCard(ctx context.Context, eventDate, id string) (*model.Card, error)
	ListCards(ctx context.Context, q service.CardQuery) ([]model.Card, error)
	SearchCards(ctx context.Context, eventDate string, cardNo int) ([]model.Card, error)
	CardTotals(ctx context.Context, eventDate string) (*model.CardTotals, error)
	AssignCard(ctx context.Context, eventDate, cardID, vendorID string) (*model.Card, error)
	UnassignCard(ctx context.Context, eventDate, cardID string) (*model.Card, error)
	DeleteCard(ctx context.Context, eventDate, cardID string) error
	ValidateAndFix(ctx context.Context, eventDate string) (*model.FixReport, error)
	BulkAssignCards(ctx context.Context, req service.BulkAssignRequest) (*service.BulkAssignResult, error)
	CardCounts(ctx context.Context, eventDate string, vendorIDs []string) (map[string]model.CardCounts, error)

	CreateVendor(ctx context.Context, req service.VendorRequest) (*model.Vendor, error)
	GetVendor(ctx context.Context, id string) (*model.Vendor, error)
	ListVendors(ctx context.Context, leaderID *string) ([]model.Vendor, error)
	UpdateVendor(ctx context.Context, id string, u repository.VendorUpdate) (*model.Vendor, error)
	DeleteVendor(ctx context.Context, id string) error
	GetVendorBalance(ctx context.Context, id string) (decimal.Decimal, error)
	GetVendorStats(ctx context.Context, id string) (*model.VendorStats, error)
}

// retryAfterSeconds подсказывает клиенту паузу перед повтором после временного сбоя.
const retryAfterSeconds = 1

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service  Service
	logger   *zap.Logger
	auth     *middleware.Authorizer
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// gatherer может быть nil, тогда /metrics не регистрируется.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.Authorizer, m *metrics.Metrics, gatherer prometheus.Gatherer) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:  s,
		logger:   logger,
		auth:     auth,
		metrics:  m,
		gatherer: gatherer,
	}
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError переводит категорию ошибки в HTTP-статус.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	switch {
	case errors.Is(err, validation.ErrBodyTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Message, Fields: verr.Fields})
	case errors.Is(err, repository.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, repository.ErrCardAlreadySold):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, repository.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, repository.ErrTransient):
		h.logger.Warn("transient store failure", zap.Error(err), zap.String("uri", r.RequestURI))
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "temporary store failure, retry the request"})
	default:
		h.logger.Error("request failed", zap.Error(err), zap.String("method", r.Method), zap.String("uri", r.RequestURI))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: http.StatusText(http.StatusInternalServerError)})
	}
}

// Health сообщает о доступности хранилища.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.service.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func money(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// eventDate читает обязательный параметр date из строки запроса.
func eventDate(r *http.Request) (string, error) {
	date := r.URL.Query().Get("date")
	if err := validation.Var("date", date, "required,eventdate"); err != nil {
		return "", err
	}
	return date, nil
}

func optionalQuery(r *http.Request, key string) *string {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	return &v
}
