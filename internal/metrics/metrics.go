// Package metrics содержит метрики Prometheus сервиса продаж.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mmeshcher/bingo-sales/internal/model"
)

// Результаты попытки продажи.
const (
	SaleOK        = "ok"
	SaleNotFound  = "not_found"
	SaleConflict  = "conflict"
	SaleTransient = "transient"
	SaleInvalid   = "invalid"
	SaleError     = "error"
)

// Metrics объединяет коллекторы сервиса. Нулевое значение и nil безопасны для вызова.
type Metrics struct {
	sales         *prometheus.CounterVec
	saleAmount    prometheus.Counter
	commission    *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	counterEvents *prometheus.CounterVec
}

// New регистрирует коллекторы в reg. При nil метрики не собираются.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}

	m := &Metrics{
		sales: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bingo_sales_total",
			Help: "Sale attempts by result.",
		}, []string{"result"}),
		saleAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bingo_sale_amount",
			Help: "Total amount of recorded sales.",
		}),
		commission: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bingo_commission_amount",
			Help: "Total commission credited by tier.",
		}, []string{"tier"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		counterEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bingo_counter_events_total",
			Help: "Card state events applied to vendor counters by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.sales, m.saleAmount, m.commission, m.httpDuration, m.counterEvents)
	return m
}

// IncSale учитывает попытку продажи с результатом result.
func (m *Metrics) IncSale(result string) {
	if m == nil || m.sales == nil {
		return
	}
	m.sales.WithLabelValues(result).Inc()
}

// ObserveSale добавляет сумму продажи и доли комиссии.
func (m *Metrics) ObserveSale(s *model.Sale) {
	if m == nil || m.saleAmount == nil || s == nil {
		return
	}
	m.saleAmount.Add(s.Amount.InexactFloat64())
	m.commission.WithLabelValues("seller").Add(s.Commissions.Seller.InexactFloat64())
	m.commission.WithLabelValues("leader").Add(s.Commissions.Leader.InexactFloat64())
	m.commission.WithLabelValues("subleader").Add(s.Commissions.Subleader.InexactFloat64())
}

// ObserveHTTP записывает длительность HTTP-запроса.
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil || m.httpDuration == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}

// IncCounterEvent учитывает обработку события счётчиками.
func (m *Metrics) IncCounterEvent(result string) {
	if m == nil || m.counterEvents == nil {
		return
	}
	m.counterEvents.WithLabelValues(result).Inc()
}
