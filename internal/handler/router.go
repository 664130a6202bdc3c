package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/bingo-sales/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(custommiddleware.Metrics(h.metrics))

	r.Get("/health", h.Health)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(h.auth.Middleware)

		r.Route("/sales", func(r chi.Router) {
			r.With(custommiddleware.Require(custommiddleware.CapSalesWrite)).Post("/", h.CreateSale)
			r.Get("/", h.ListSales)
			r.Get("/{id}", h.GetSale)
		})

		r.Route("/cards", func(r chi.Router) {
			r.Get("/", h.ListCards)
			r.Get("/search", h.SearchCards)
			r.Get("/total", h.CardTotals)
			r.Post("/counts", h.CardCounts)
			r.Get("/{id}", h.GetCard)

			r.Group(func(r chi.Router) {
				r.Use(custommiddleware.Require(custommiddleware.CapAdmin))

				r.Post("/", h.CreateCard)
				r.Post("/generate", h.GenerateCards)
				r.Post("/validate-and-fix", h.ValidateAndFix)
				r.Post("/bulk-assign", h.BulkAssignCards)
				r.Post("/{id}/assign", h.AssignCard)
				r.Post("/{id}/unassign", h.UnassignCard)
				r.Delete("/{id}", h.DeleteCard)
			})
		})

		r.Route("/vendors", func(r chi.Router) {
			r.Get("/", h.ListVendors)
			r.Get("/{id}", h.GetVendor)
			r.Get("/{id}/balance", h.GetVendorBalance)
			r.Get("/{id}/stats", h.GetVendorStats)

			r.Group(func(r chi.Router) {
				r.Use(custommiddleware.Require(custommiddleware.CapAdmin))

				r.Post("/", h.CreateVendor)
				r.Patch("/{id}", h.UpdateVendor)
				r.Delete("/{id}", h.DeleteVendor)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
