// actions.go — серверные сессии диалогов действий.
// Обёртка над hashicorp/golang-lru/v2/expirable: одна сессия на пару
// (вызывающий, файл), неактивные сессии вытесняются по TTL.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/filevault/internal/domain/action"
	"github.com/bigkaa/filevault/internal/domain/model"
)

var actionSessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fv_action_sessions_started_total",
	Help: "Количество начатых диалогов действий по виду.",
}, []string{"action"})

// callerExecutor выполняет действия автомата от имени конкретного вызывающего.
type callerExecutor struct {
	storage *StorageService
	caller  model.Caller
}

func (e callerExecutor) Rename(ctx context.Context, fileID, baseName, extension string) (*model.FileRecord, error) {
	return e.storage.Rename(ctx, e.caller, fileID, baseName, extension)
}

func (e callerExecutor) UpdateAccess(ctx context.Context, fileID string, emails []string) (*model.FileRecord, error) {
	return e.storage.UpdateAccess(ctx, e.caller, fileID, emails)
}

func (e callerExecutor) Delete(ctx context.Context, fileID, objectKey string) error {
	return e.storage.Delete(ctx, e.caller, fileID, objectKey)
}

// ActionInput — изменение кандидатов диалога. nil — поле не меняется.
type ActionInput struct {
	Name   *string
	Emails *[]string
}

// ActionRegistry хранит автоматы диалогов между HTTP-запросами.
type ActionRegistry struct {
	storage  *StorageService
	mu       sync.Mutex
	sessions *expirable.LRU[string, *action.Controller]
	logger   *slog.Logger
}

// NewActionRegistry создаёт реестр сессий.
// maxSize — максимальное количество сессий, ttl — время жизни неактивной сессии.
func NewActionRegistry(storage *StorageService, maxSize int, ttl time.Duration, logger *slog.Logger) *ActionRegistry {
	return &ActionRegistry{
		storage:  storage,
		sessions: expirable.NewLRU[string, *action.Controller](maxSize, nil, ttl),
		logger:   logger.With(slog.String("component", "action_registry")),
	}
}

func sessionKey(caller model.Caller, fileID string) string {
	return caller.ID + "/" + fileID
}

// Start выбирает действие и открывает диалог. Существующая сессия в Idle
// переиспользуется, иначе создаётся новая с актуальной записью.
func (r *ActionRegistry) Start(ctx context.Context, caller model.Caller, fileID string, kind action.Kind) (action.Snapshot, error) {
	const op = "action_start"

	if caller.ID == "" || caller.Email == "" {
		return action.Snapshot{}, &Error{Kind: KindAuthRequired, Op: op}
	}
	if _, err := action.ParseKind(string(kind)); err != nil {
		return action.Snapshot{}, err
	}

	ctrl, ok := r.lookup(caller, fileID)
	if !ok || ctrl.Snapshot().State == action.StateIdle {
		// Свежая запись: состояние могло измениться в другом диалоге
		rec, err := r.storage.Get(ctx, caller, fileID)
		if err != nil {
			return action.Snapshot{}, relabel(err, op)
		}
		ctrl = action.New(rec, callerExecutor{storage: r.storage, caller: caller})
		r.put(caller, fileID, ctrl)
	}

	if err := ctrl.Select(kind); err != nil {
		return ctrl.Snapshot(), err
	}
	if err := ctrl.Open(); err != nil {
		return ctrl.Snapshot(), err
	}

	actionSessionsStarted.WithLabelValues(string(kind)).Inc()
	r.logger.Debug("Диалог открыт",
		slog.String("file_id", fileID),
		slog.String("action", string(kind)),
	)
	return ctrl.Snapshot(), nil
}

// Snapshot возвращает состояние сессии.
func (r *ActionRegistry) Snapshot(caller model.Caller, fileID string) (action.Snapshot, error) {
	ctrl, err := r.get(caller, fileID, "action_get")
	if err != nil {
		return action.Snapshot{}, err
	}
	return ctrl.Snapshot(), nil
}

// SetInput обновляет кандидатов имени и/или адресов.
func (r *ActionRegistry) SetInput(caller model.Caller, fileID string, in ActionInput) (action.Snapshot, error) {
	ctrl, err := r.get(caller, fileID, "action_input")
	if err != nil {
		return action.Snapshot{}, err
	}
	if in.Name != nil {
		if err := ctrl.SetName(*in.Name); err != nil {
			return ctrl.Snapshot(), err
		}
	}
	if in.Emails != nil {
		if err := ctrl.SetEmails(*in.Emails); err != nil {
			return ctrl.Snapshot(), err
		}
	}
	return ctrl.Snapshot(), nil
}

// Submit отправляет действие сессии. После удаления файла сессия закрывается.
func (r *ActionRegistry) Submit(ctx context.Context, caller model.Caller, fileID string) (action.Snapshot, error) {
	ctrl, err := r.get(caller, fileID, "action_submit")
	if err != nil {
		return action.Snapshot{}, err
	}
	err = ctrl.Submit(ctx)
	return r.settle(caller, fileID, ctrl), err
}

// RemoveEmail убирает адрес из списка доступа и сразу отправляет остаток.
func (r *ActionRegistry) RemoveEmail(ctx context.Context, caller model.Caller, fileID, email string) (action.Snapshot, error) {
	ctrl, err := r.get(caller, fileID, "action_remove_email")
	if err != nil {
		return action.Snapshot{}, err
	}
	err = ctrl.RemoveEmail(ctx, email)
	return r.settle(caller, fileID, ctrl), err
}

// Cancel закрывает диалог (для details — Dismiss) и удаляет сессию.
func (r *ActionRegistry) Cancel(caller model.Caller, fileID string) (action.Snapshot, error) {
	ctrl, err := r.get(caller, fileID, "action_cancel")
	if err != nil {
		return action.Snapshot{}, err
	}

	if ctrl.Snapshot().Action == action.KindDetails {
		err = ctrl.Dismiss()
	} else {
		err = ctrl.Cancel()
	}
	if err != nil {
		return ctrl.Snapshot(), err
	}

	r.remove(caller, fileID)
	return ctrl.Snapshot(), nil
}

// Len возвращает количество активных сессий.
func (r *ActionRegistry) Len() int {
	return r.sessions.Len()
}

// settle удаляет сессию удалённого файла.
func (r *ActionRegistry) settle(caller model.Caller, fileID string, ctrl *action.Controller) action.Snapshot {
	snap := ctrl.Snapshot()
	if snap.Record == nil {
		r.remove(caller, fileID)
	}
	return snap
}

func (r *ActionRegistry) get(caller model.Caller, fileID, op string) (*action.Controller, error) {
	if caller.ID == "" {
		return nil, &Error{Kind: KindAuthRequired, Op: op}
	}
	ctrl, ok := r.lookup(caller, fileID)
	if !ok {
		return nil, &Error{Kind: KindNotFound, Op: op, FileID: fileID, Msg: "диалог не открыт"}
	}
	return ctrl, nil
}

// lookup возвращает сессию и продлевает её TTL.
func (r *ActionRegistry) lookup(caller model.Caller, fileID string) (*action.Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sessionKey(caller, fileID)
	ctrl, ok := r.sessions.Get(key)
	if ok {
		r.sessions.Add(key, ctrl)
	}
	return ctrl, ok
}

func (r *ActionRegistry) put(caller model.Caller, fileID string, ctrl *action.Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions.Add(sessionKey(caller, fileID), ctrl)
}

func (r *ActionRegistry) remove(caller model.Caller, fileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions.Remove(sessionKey(caller, fileID))
}
