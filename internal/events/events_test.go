package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// mockChannel — мок канала AMQP.
type mockChannel struct {
	publishFn func(exchange, key string, msg amqp.Publishing) error
	closed    bool
}

func (m *mockChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	return m.publishFn(exchange, key, msg)
}

func (m *mockChannel) Close() error {
	m.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisher_Notify(t *testing.T) {
	var gotExchange, gotKey string
	var gotMsg amqp.Publishing
	ch := &mockChannel{publishFn: func(exchange, key string, msg amqp.Publishing) error {
		gotExchange, gotKey, gotMsg = exchange, key, msg
		return nil
	}}
	p := newPublisher(ch, "filevault.events", testLogger())

	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	err := p.Notify(context.Background(), Event{
		Type: FileRenamed, FileID: "f1", OwnerID: "u1", ActorID: "u2", Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if gotExchange != "filevault.events" {
		t.Errorf("exchange = %q", gotExchange)
	}
	if gotKey != FileRenamed {
		t.Errorf("routing key = %q, ожидался %q", gotKey, FileRenamed)
	}
	if gotMsg.ContentType != "application/json" || gotMsg.DeliveryMode != amqp.Persistent {
		t.Errorf("msg = %+v", gotMsg)
	}

	var body map[string]any
	if err := json.Unmarshal(gotMsg.Body, &body); err != nil {
		t.Fatalf("тело не JSON: %v", err)
	}
	for _, k := range []string{"event", "file_id", "owner_id", "actor_id", "timestamp"} {
		if _, ok := body[k]; !ok {
			t.Errorf("в теле нет поля %q: %s", k, gotMsg.Body)
		}
	}
	if body["event"] != FileRenamed || body["actor_id"] != "u2" {
		t.Errorf("body = %v", body)
	}
}

func TestPublisher_NotifyFillsTimestamp(t *testing.T) {
	var gotMsg amqp.Publishing
	ch := &mockChannel{publishFn: func(_, _ string, msg amqp.Publishing) error {
		gotMsg = msg
		return nil
	}}
	p := newPublisher(ch, "x", testLogger())

	if err := p.Notify(context.Background(), Event{Type: FileDeleted}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if gotMsg.Timestamp.IsZero() {
		t.Error("Timestamp не заполнен")
	}
}

func TestPublisher_NotifyError(t *testing.T) {
	ch := &mockChannel{publishFn: func(string, string, amqp.Publishing) error {
		return errors.New("channel closed")
	}}
	p := newPublisher(ch, "x", testLogger())

	if err := p.Notify(context.Background(), Event{Type: FileUploaded}); err == nil {
		t.Fatal("ожидалась ошибка публикации")
	}
}

func TestPublisher_Close(t *testing.T) {
	ch := &mockChannel{}
	p := newPublisher(ch, "x", testLogger())
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !ch.closed {
		t.Error("канал не закрыт")
	}
	if status, _ := p.CheckReady(); status != "fail" {
		t.Errorf("CheckReady без соединения = %q, ожидался fail", status)
	}
}

func TestNoop(t *testing.T) {
	var n Notifier = Noop{}
	if err := n.Notify(context.Background(), Event{Type: FileShared}); err != nil {
		t.Errorf("Noop.Notify: %v", err)
	}
}
