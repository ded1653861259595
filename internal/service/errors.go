// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bigkaa/filevault/internal/domain/query"
	"github.com/bigkaa/filevault/internal/repository"
)

// Kind — класс ошибки оркестрации.
type Kind int

const (
	// KindAuthRequired — у вызывающего нет идентичности
	KindAuthRequired Kind = iota + 1
	// KindNotFound — запись отсутствует или вне области доступа
	KindNotFound
	// KindStoreUnavailable — object store или metadata store вернул ошибку
	KindStoreUnavailable
	// KindOrphanedBlob — blob остался без записи метаданных
	KindOrphanedBlob
	// KindValidationFailed — некорректные входные данные
	KindValidationFailed
)

// Сентинелы для errors.Is.
var (
	ErrAuthRequired     = errors.New("требуется аутентификация")
	ErrNotFound         = errors.New("файл не найден")
	ErrStoreUnavailable = errors.New("хранилище недоступно")
	ErrOrphanedBlob     = errors.New("blob остался без метаданных")
	ErrValidation       = errors.New("ошибка валидации")
)

func (k Kind) sentinel() error {
	switch k {
	case KindAuthRequired:
		return ErrAuthRequired
	case KindNotFound:
		return ErrNotFound
	case KindStoreUnavailable:
		return ErrStoreUnavailable
	case KindOrphanedBlob:
		return ErrOrphanedBlob
	case KindValidationFailed:
		return ErrValidation
	}
	return nil
}

// String возвращает имя класса ошибки.
func (k Kind) String() string {
	switch k {
	case KindAuthRequired:
		return "AuthRequired"
	case KindNotFound:
		return "NotFound"
	case KindStoreUnavailable:
		return "StoreUnavailable"
	case KindOrphanedBlob:
		return "OrphanedBlob"
	case KindValidationFailed:
		return "ValidationFailed"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error — ошибка операции оркестратора.
type Error struct {
	Kind Kind
	// Op — имя операции (upload, rename, ...)
	Op        string
	FileID    string
	ObjectKey string
	// Msg — пояснение для клиента (опционально)
	Msg string
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		b.WriteString(e.Kind.sentinel().Error())
	}
	if e.ObjectKey != "" {
		fmt.Fprintf(&b, " (object_key=%s)", e.ObjectKey)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap возвращает причину.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is сопоставляет ошибку с сентинелом её класса.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// Message возвращает сообщение, безопасное для показа клиенту.
func (e *Error) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Kind.sentinel().Error()
}

// KindOf возвращает класс ошибки или 0, если ошибка не из сервисного слоя.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

func validationError(op, msg string) *Error {
	return &Error{Kind: KindValidationFailed, Op: op, Msg: msg}
}

// fromRepo классифицирует ошибку metadata store.
func fromRepo(op, fileID string, err error) *Error {
	kind := KindStoreUnavailable
	switch {
	case errors.Is(err, repository.ErrNotFound):
		kind = KindNotFound
	case errors.Is(err, repository.ErrInvalidQuery):
		kind = KindValidationFailed
	case errors.Is(err, query.ErrAuthRequired):
		kind = KindAuthRequired
	}
	e := &Error{Kind: kind, Op: op, FileID: fileID, Err: err}
	if kind == KindValidationFailed {
		e.Msg = err.Error()
	}
	return e
}
