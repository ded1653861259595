// Пакет action — конечный автомат диалога действий над одним файлом.
//
// Жизненный цикл:
//
//	Idle → ActionSelected → Confirming → Submitting → Idle (успех)
//	                                               ↘ Confirming + ошибка (сбой)
//
// Cancel из ActionSelected/Confirming возвращает в Idle. Повторный Submit
// во время Submitting игнорируется. Потокобезопасен через sync.Mutex;
// на время вызова хранилища мьютекс освобождается.
package action

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/bigkaa/filevault/internal/domain/classify"
	"github.com/bigkaa/filevault/internal/domain/model"
)

// State — состояние диалога.
type State string

const (
	StateIdle           State = "idle"
	StateActionSelected State = "action_selected"
	StateConfirming     State = "confirming"
	StateSubmitting     State = "submitting"
)

// Kind — вид действия. Закрытый набор.
type Kind string

const (
	KindRename  Kind = "rename"
	KindShare   Kind = "share"
	KindDelete  Kind = "delete"
	KindDetails Kind = "details"
)

// ParseKind возвращает Kind по строке или ошибку для неизвестного действия.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindRename, KindShare, KindDelete, KindDetails:
		return k, nil
	}
	return "", &TransitionError{Code: CodeInvalidAction, Message: fmt.Sprintf("неизвестное действие %q", s)}
}

// Input — данные отправки для конкретного действия.
type Input interface {
	kind() Kind
}

// RenameInput — новое базовое имя (без расширения).
type RenameInput struct {
	BaseName string
}

// ShareInput — полный список адресов с доступом.
type ShareInput struct {
	Emails []string
}

// DeleteInput — подтверждение удаления.
type DeleteInput struct{}

func (RenameInput) kind() Kind { return KindRename }
func (ShareInput) kind() Kind  { return KindShare }
func (DeleteInput) kind() Kind { return KindDelete }

// Executor выполняет действие над файлом от имени вызывающего.
type Executor interface {
	Rename(ctx context.Context, fileID, baseName, extension string) (*model.FileRecord, error)
	UpdateAccess(ctx context.Context, fileID string, emails []string) (*model.FileRecord, error)
	Delete(ctx context.Context, fileID, objectKey string) error
}

// Коды ошибок переходов.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInvalidAction     = "INVALID_ACTION"
	CodeRecordDeleted     = "RECORD_DELETED"
)

// TransitionError — недопустимая операция в текущем состоянии.
type TransitionError struct {
	Code    string
	Message string
}

func (e *TransitionError) Error() string {
	return e.Code + ": " + e.Message
}

// Snapshot — наблюдаемое состояние диалога.
type Snapshot struct {
	State     State
	Action    Kind
	Loading   bool
	ModalOpen bool
	// Name — кандидат нового базового имени
	Name string
	// Emails — кандидат списка адресов
	Emails []string
	// Err — ошибка последней отправки
	Err error
	// Record — текущая запись; nil после удаления
	Record *model.FileRecord
}

// Controller — автомат диалога для одной записи.
type Controller struct {
	mu        sync.Mutex
	exec      Executor
	record    *model.FileRecord
	state     State
	action    Kind
	modalOpen bool
	name      string
	emails    []string
	lastErr   error
}

// New создаёт автомат в состоянии Idle.
func New(record *model.FileRecord, exec Executor) *Controller {
	c := &Controller{
		exec:   exec,
		record: record,
		state:  StateIdle,
	}
	c.resetLocked()
	return c
}

// Select выбирает действие: Idle → ActionSelected.
// Повторный выбор в ActionSelected заменяет действие.
func (c *Controller) Select(kind Kind) error {
	kind, err := ParseKind(string(kind))
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.record == nil {
		return &TransitionError{Code: CodeRecordDeleted, Message: "файл удалён"}
	}
	if c.state != StateIdle && c.state != StateActionSelected {
		return c.invalid("select")
	}

	c.state = StateActionSelected
	c.action = kind
	c.lastErr = nil
	if kind == KindShare {
		c.emails = slices.Clone(c.record.SharedWith)
	}
	return nil
}

// Open открывает диалог: ActionSelected → Confirming.
func (c *Controller) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateActionSelected {
		return c.invalid("open")
	}
	c.state = StateConfirming
	c.modalOpen = true
	return nil
}

// SetName задаёт кандидата имени для действия rename.
func (c *Controller) SetName(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.editable(KindRename) {
		return c.invalid("set_name")
	}
	c.name = name
	return nil
}

// SetEmails задаёт кандидата списка адресов для действия share.
func (c *Controller) SetEmails(emails []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.editable(KindShare) {
		return c.invalid("set_emails")
	}
	c.emails = slices.Clone(emails)
	return nil
}

// Submit отправляет текущее действие. Во время Submitting — no-op.
// Возвращает ошибку исполнителя; состояние при этом — Confirming.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return nil
	}
	if c.state != StateConfirming {
		err := c.invalid("submit")
		c.mu.Unlock()
		return err
	}

	in, err := c.inputLocked()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	return c.submitLocked(ctx, in)
}

// RemoveEmail убирает адрес и сразу отправляет оставшийся список.
func (c *Controller) RemoveEmail(ctx context.Context, email string) error {
	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return nil
	}
	if c.state != StateConfirming || c.action != KindShare {
		err := c.invalid("remove_email")
		c.mu.Unlock()
		return err
	}

	remaining := slices.DeleteFunc(slices.Clone(c.emails), func(e string) bool { return e == email })
	c.emails = remaining
	return c.submitLocked(ctx, ShareInput{Emails: slices.Clone(remaining)})
}

// submitLocked переводит автомат в Submitting, отпускает мьютекс на время
// вызова исполнителя и применяет результат. Вызывается под c.mu.
func (c *Controller) submitLocked(ctx context.Context, in Input) error {
	rec := c.record
	c.state = StateSubmitting
	c.lastErr = nil
	c.mu.Unlock()

	updated, deleted, err := c.perform(ctx, rec, in)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.state = StateConfirming
		c.lastErr = err
		return err
	}

	switch {
	case deleted:
		c.record = nil
	case updated != nil:
		c.record = updated
	}
	c.state = StateIdle
	c.resetLocked()
	return nil
}

func (c *Controller) perform(ctx context.Context, rec *model.FileRecord, in Input) (*model.FileRecord, bool, error) {
	switch v := in.(type) {
	case RenameInput:
		updated, err := c.exec.Rename(ctx, rec.ID, v.BaseName, rec.Extension)
		return updated, false, err
	case ShareInput:
		updated, err := c.exec.UpdateAccess(ctx, rec.ID, v.Emails)
		return updated, false, err
	case DeleteInput:
		err := c.exec.Delete(ctx, rec.ID, rec.ObjectKey)
		return nil, err == nil, err
	}
	return nil, false, &TransitionError{Code: CodeInvalidAction, Message: fmt.Sprintf("действие %T не поддерживается", in)}
}

// Cancel закрывает диалог без отправки: ActionSelected/Confirming → Idle.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateIdle:
		return nil
	case StateActionSelected, StateConfirming:
		c.state = StateIdle
		c.resetLocked()
		return nil
	}
	return c.invalid("cancel")
}

// Dismiss закрывает диалог просмотра деталей.
func (c *Controller) Dismiss() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.action != KindDetails || (c.state != StateActionSelected && c.state != StateConfirming) {
		return c.invalid("dismiss")
	}
	c.state = StateIdle
	c.resetLocked()
	return nil
}

// Snapshot возвращает копию текущего состояния.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rec *model.FileRecord
	if c.record != nil {
		cp := *c.record
		cp.SharedWith = slices.Clone(c.record.SharedWith)
		rec = &cp
	}

	return Snapshot{
		State:     c.state,
		Action:    c.action,
		Loading:   c.state == StateSubmitting,
		ModalOpen: c.modalOpen,
		Name:      c.name,
		Emails:    slices.Clone(c.emails),
		Err:       c.lastErr,
		Record:    rec,
	}
}

func (c *Controller) inputLocked() (Input, error) {
	switch c.action {
	case KindRename:
		return RenameInput{BaseName: c.name}, nil
	case KindShare:
		return ShareInput{Emails: slices.Clone(c.emails)}, nil
	case KindDelete:
		return DeleteInput{}, nil
	}
	return nil, &TransitionError{
		Code:    CodeInvalidAction,
		Message: fmt.Sprintf("действие %q не отправляется", c.action),
	}
}

func (c *Controller) editable(kind Kind) bool {
	return c.action == kind && (c.state == StateActionSelected || c.state == StateConfirming)
}

// resetLocked закрывает диалог и сбрасывает кандидатов.
func (c *Controller) resetLocked() {
	c.action = ""
	c.modalOpen = false
	c.emails = nil
	c.lastErr = nil
	c.name = ""
	if c.record != nil {
		c.name = classify.BaseName(c.record.Name, c.record.Extension)
	}
}

func (c *Controller) invalid(op string) *TransitionError {
	return &TransitionError{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("операция %s недопустима в состоянии %s (действие %q)", op, c.state, c.action),
	}
}
