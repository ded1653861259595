// Пакет query — построение набора предикатов выборки файлов.
//
// Набор (Set) не зависит от хранилища: адаптер метаданных
// (repository) транслирует его в SQL. Видимость (владелец или
// e-mail в sharedWith) добавляется в каждый набор безусловно, поэтому
// проверка доступа выполняется хранилищем, а не фильтрацией результатов.
package query

import (
	"errors"
	"strings"

	"github.com/bigkaa/filevault/internal/domain/model"
)

// Логические имена полей записи.
const (
	FieldID         = "$id"
	FieldCreatedAt  = "$createdAt"
	FieldUpdatedAt  = "$updatedAt"
	FieldName       = "name"
	FieldExtension  = "extension"
	FieldCategory   = "type"
	FieldSize       = "size"
	FieldObjectKey  = "objectKey"
	FieldOwnerID    = "ownerId"
	FieldSharedWith = "users"
)

// DefaultSort — сортировка по умолчанию: новые файлы первыми.
const DefaultSort = FieldCreatedAt + "-desc"

// ErrAuthRequired — у вызывающего нет id или e-mail.
var ErrAuthRequired = errors.New("требуется идентичность вызывающего")

// Op — вид предиката.
type Op int

// Виды предикатов.
const (
	// OpEqual — поле равно значению
	OpEqual Op = iota
	// OpContains — регистронезависимая подстрока в строковом поле
	OpContains
	// OpArrayContains — массив содержит значение
	OpArrayContains
	// OpIn — поле равно одному из значений
	OpIn
	// OpOr — хотя бы один из вложенных предикатов истинен
	OpOr
)

// Predicate — одно условие выборки.
type Predicate struct {
	Op     Op
	Field  string
	Value  string
	Values []string
	// Any — вложенные предикаты для OpOr
	Any []Predicate
}

// Order — сортировка. Field передаётся как есть, разрешается адаптером.
type Order struct {
	Field     string
	Ascending bool
}

// Set — конъюнкция предикатов с сортировкой и лимитом.
type Set struct {
	Where []Predicate
	Order *Order
	// Limit — 0 означает отсутствие лимита
	Limit int
}

// Filters — параметры списка файлов от Presentation Layer.
type Filters struct {
	Categories []model.Category
	SearchText string
	// Sort — "поле-направление", пустая строка — DefaultSort
	Sort  string
	Limit int
}

// Equal создаёт предикат равенства.
func Equal(field, value string) Predicate {
	return Predicate{Op: OpEqual, Field: field, Value: value}
}

// Contains создаёт предикат поиска подстроки.
func Contains(field, substr string) Predicate {
	return Predicate{Op: OpContains, Field: field, Value: substr}
}

// ArrayContains создаёт предикат вхождения значения в массив.
func ArrayContains(field, value string) Predicate {
	return Predicate{Op: OpArrayContains, Field: field, Value: value}
}

// In создаёт предикат принадлежности множеству.
func In(field string, values ...string) Predicate {
	return Predicate{Op: OpIn, Field: field, Values: values}
}

// Or объединяет предикаты дизъюнкцией.
func Or(preds ...Predicate) Predicate {
	return Predicate{Op: OpOr, Any: preds}
}

// Visibility возвращает предикат области доступа вызывающего.
func Visibility(caller model.Caller) (Predicate, error) {
	if caller.ID == "" || caller.Email == "" {
		return Predicate{}, ErrAuthRequired
	}
	return Or(
		Equal(FieldOwnerID, caller.ID),
		ArrayContains(FieldSharedWith, caller.Email),
	), nil
}

// Build строит набор предикатов для списка файлов.
func Build(caller model.Caller, f Filters) (Set, error) {
	vis, err := Visibility(caller)
	if err != nil {
		return Set{}, err
	}

	set := Set{Where: []Predicate{vis}}

	if len(f.Categories) > 0 {
		values := make([]string, 0, len(f.Categories))
		for _, c := range f.Categories {
			values = append(values, string(c))
		}
		set.Where = append(set.Where, In(FieldCategory, values...))
	}

	if f.SearchText != "" {
		set.Where = append(set.Where, Contains(FieldName, f.SearchText))
	}

	order := ParseSort(f.Sort)
	set.Order = &order

	if f.Limit > 0 {
		set.Limit = f.Limit
	}

	return set, nil
}

// ForRecord строит набор для одной записи в области доступа вызывающего.
func ForRecord(caller model.Caller, fileID string) (Set, error) {
	vis, err := Visibility(caller)
	if err != nil {
		return Set{}, err
	}
	return Set{Where: []Predicate{vis, Equal(FieldID, fileID)}}, nil
}

// ForOwner строит набор файлов владельца (без учёта sharedWith).
func ForOwner(ownerID string, pageSize int) (Set, error) {
	if ownerID == "" {
		return Set{}, ErrAuthRequired
	}
	return Set{
		Where: []Predicate{Equal(FieldOwnerID, ownerID)},
		Limit: pageSize,
	}, nil
}

// ParseSort разбирает строку "поле-направление".
// Направление "asc" даёт возрастающий порядок, любое другое — убывающий.
func ParseSort(sort string) Order {
	if sort == "" {
		sort = DefaultSort
	}
	field, dir := sort, ""
	if i := strings.LastIndexByte(sort, '-'); i >= 0 {
		field, dir = sort[:i], sort[i+1:]
	}
	return Order{Field: field, Ascending: dir == "asc"}
}

// With возвращает копию набора с дополнительными предикатами.
func (s Set) With(preds ...Predicate) Set {
	where := make([]Predicate, 0, len(s.Where)+len(preds))
	where = append(where, s.Where...)
	where = append(where, preds...)
	s.Where = where
	return s
}
