// Package events передаёт события изменения состояния карточек от сервиса
// к асинхронным потребителям.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/mmeshcher/bingo-sales/internal/model"
)

// ErrClosed возвращается при публикации в закрытую шину.
var ErrClosed = errors.New("event bus closed")

// Publisher публикует события изменения карточек.
type Publisher interface {
	Publish(ctx context.Context, change model.CardStateChange) error
}

// Handler обрабатывает одно событие.
type Handler func(ctx context.Context, change model.CardStateChange) error

// Subscriber доставляет события обработчику до отмены контекста.
type Subscriber interface {
	Subscribe(ctx context.Context, h Handler) error
}

// Bus реализует шину в памяти процесса на буферизованном канале.
type Bus struct {
	ch     chan model.CardStateChange
	mu     sync.RWMutex
	closed bool
}

// NewBus создаёт шину с буфером указанного размера.
func NewBus(buffer int) *Bus {
	if buffer < 0 {
		buffer = 0
	}
	return &Bus{ch: make(chan model.CardStateChange, buffer)}
}

// Publish кладёт событие в шину, ожидая свободного места не дольше жизни контекста.
func (b *Bus) Publish(ctx context.Context, change model.CardStateChange) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	select {
	case b.ch <- change:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe вызывает h для каждого события до отмены контекста или закрытия шины.
// Ошибка обработчика не останавливает доставку.
func (b *Bus) Subscribe(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-b.ch:
			if !ok {
				return nil
			}
			_ = h(ctx, change)
		}
	}
}

// Close закрывает шину. Уже опубликованные события дочитываются подписчиком.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.ch)
	}
	return nil
}
