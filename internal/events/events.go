// Пакет events — уведомления об изменениях файлов через RabbitMQ.
// Подписчики (кэши Presentation Layer, индексаторы) получают событие
// после каждой успешной мутации и перечитывают затронутые данные.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Типы событий (routing keys).
const (
	FileUploaded = "file.uploaded"
	FileRenamed  = "file.renamed"
	FileShared   = "file.shared"
	FileDeleted  = "file.deleted"
)

// Event — сообщение об изменении файла.
type Event struct {
	Type      string    `json:"event"`
	FileID    string    `json:"file_id"`
	OwnerID   string    `json:"owner_id"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier — получатель событий об изменениях.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Noop — Notifier, отбрасывающий события (RabbitMQ не настроен).
type Noop struct{}

// Notify ничего не делает.
func (Noop) Notify(context.Context, Event) error { return nil }

// channel — подмножество *amqp.Channel, используемое Publisher.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher публикует события в topic exchange.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
	logger   *slog.Logger
}

// Dial подключается к RabbitMQ и объявляет durable topic exchange.
func Dial(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ошибка открытия канала RabbitMQ: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("ошибка объявления exchange %s: %w", exchange, err)
	}

	p := newPublisher(ch, exchange, logger)
	p.conn = conn

	logger.Info("Подключение к RabbitMQ установлено", slog.String("exchange", exchange))
	return p, nil
}

func newPublisher(ch channel, exchange string, logger *slog.Logger) *Publisher {
	return &Publisher{
		ch:       ch,
		exchange: exchange,
		logger:   logger.With(slog.String("component", "events")),
	}
}

// Notify публикует событие с routing key, равным типу события.
func (p *Publisher) Notify(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(
		ctx,
		p.exchange,
		ev.Type,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    ev.Timestamp,
		},
	)
	if err != nil {
		return fmt.Errorf("ошибка публикации события %s: %w", ev.Type, err)
	}

	p.logger.Debug("Событие опубликовано",
		slog.String("event", ev.Type),
		slog.String("file_id", ev.FileID),
	)
	return nil
}

// Close закрывает канал и соединение.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.ch != nil {
		firstErr = p.ch.Close()
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CheckReady проверяет, что соединение с RabbitMQ открыто.
func (p *Publisher) CheckReady() (status, message string) {
	if p.conn == nil || p.conn.IsClosed() {
		return "fail", "соединение с RabbitMQ закрыто"
	}
	return "ok", "соединение активно"
}
