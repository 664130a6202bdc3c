// Package counters поддерживает денормализованные счётчики назначенных и проданных
// карточек продавца, потребляя события изменения карточек.
//
// Счётчики обновляются асинхронно и могут временно отставать от состояния карточек.
// Они не используются для проверки того, что карточка продана не более одного раза.
package counters

import (
	"context"
	"errors"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/mmeshcher/bingo-sales/internal/events"
	"github.com/mmeshcher/bingo-sales/internal/metrics"
	"github.com/mmeshcher/bingo-sales/internal/model"
	"github.com/mmeshcher/bingo-sales/internal/repository"
)

// Store применяет приращения к счётчикам продавца.
type Store interface {
	ApplyCounterDelta(ctx context.Context, vendorID string, assigned, sold int64) error
}

// Delta описывает изменение счётчиков одного продавца.
type Delta struct {
	VendorID string
	Assigned int64
	Sold     int64
}

// Deltas вычисляет изменения счётчиков для события.
func Deltas(c model.CardStateChange) []Delta {
	var res []Delta

	release := func(vendorID string, wasSold bool) {
		d := Delta{VendorID: vendorID, Assigned: -1}
		if wasSold {
			d.Sold = -1
		}
		res = append(res, d)
	}

	prev, cur := c.PrevAssignedTo, c.AssignedTo

	switch {
	case c.Deleted:
		if prev != nil {
			release(*prev, c.PrevSold)
		}
	case cur != nil && (prev == nil || *cur != *prev):
		d := Delta{VendorID: *cur, Assigned: 1}
		if c.Sold {
			d.Sold = 1
		}
		res = append(res, d)
		if prev != nil {
			release(*prev, c.PrevSold)
		}
	case cur == nil && prev != nil:
		release(*prev, c.PrevSold)
	case cur != nil && *cur == *prev:
		if c.Sold && !c.PrevSold {
			res = append(res, Delta{VendorID: *cur, Sold: 1})
		} else if !c.Sold && c.PrevSold {
			res = append(res, Delta{VendorID: *cur, Sold: -1})
		}
	}

	return res
}

// Consumer читает события из источника и применяет приращения через пул воркеров.
type Consumer struct {
	store   Store
	source  events.Subscriber
	workers int
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewConsumer создаёт потребителя событий.
func NewConsumer(store Store, source events.Subscriber, workers int, logger *zap.Logger, m *metrics.Metrics) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		store:   store,
		source:  source,
		workers: workers,
		logger:  logger,
		metrics: m,
	}
}

// Run обрабатывает события до отмены контекста.
func (c *Consumer) Run(ctx context.Context) error {
	pool := pond.NewPool(c.workers, pond.WithContext(ctx))
	defer func() {
		pool.StopAndWait()
		c.logger.Info("counter consumer stopped",
			zap.Uint64("submitted", pool.SubmittedTasks()),
			zap.Uint64("failed", pool.FailedTasks()))
	}()

	return c.source.Subscribe(ctx, func(ctx context.Context, change model.CardStateChange) error {
		pool.Submit(func() {
			c.Apply(ctx, change)
		})
		return nil
	})
}

// Apply применяет все приращения события, повторяя временные сбои.
func (c *Consumer) Apply(ctx context.Context, change model.CardStateChange) {
	for _, d := range Deltas(change) {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 100 * time.Millisecond
		b.MaxElapsedTime = 10 * time.Second

		op := func() error {
			err := c.store.ApplyCounterDelta(ctx, d.VendorID, d.Assigned, d.Sold)
			if err != nil && !errors.Is(err, repository.ErrTransient) {
				return backoff.Permanent(err)
			}
			return err
		}

		if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
			c.metrics.IncCounterEvent("error")
			c.logger.Error("apply counter delta error",
				zap.Error(err),
				zap.String("vendorID", d.VendorID),
				zap.String("cardID", change.CardID),
				zap.Int64("assigned", d.Assigned),
				zap.Int64("sold", d.Sold))
			continue
		}
		c.metrics.IncCounterEvent("ok")
	}
}
