package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/mmeshcher/bingo-sales/internal/model"
)

const (
	// CardStateSubject задаёт субъект NATS для событий изменения карточек.
	CardStateSubject = "bingo.cards.state"

	countersQueue = "bingo-counters"
)

// NATS публикует и доставляет события через NATS core. Доставка не гарантирована,
// поэтому построенные на событиях счётчики не являются источником истины.
type NATS struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
}

// NewNATS подключается к серверу NATS по адресу url.
func NewNATS(url string, logger *zap.Logger) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("bingo-sales"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{nc: nc, subject: CardStateSubject, logger: logger}, nil
}

// Publish сериализует событие в JSON и отправляет его в субъект.
func (n *NATS) Publish(_ context.Context, change model.CardStateChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.nc.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe подписывается на субъект в группе очереди, поэтому каждое событие
// обрабатывает один экземпляр сервиса.
func (n *NATS) Subscribe(ctx context.Context, h Handler) error {
	msgs := make(chan *nats.Msg, 256)
	sub, err := n.nc.ChanQueueSubscribe(n.subject, countersQueue, msgs)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgs:
			var change model.CardStateChange
			if err := json.Unmarshal(msg.Data, &change); err != nil {
				n.logger.Warn("skip malformed card event", zap.Error(err))
				continue
			}
			_ = h(ctx, change)
		}
	}
}

// Close дожидается отправки буферизованных сообщений и закрывает соединение.
func (n *NATS) Close() error {
	return n.nc.Drain()
}
