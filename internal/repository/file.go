package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/filevault/internal/domain/model"
	"github.com/bigkaa/filevault/internal/domain/query"
)

// fileColumns — список столбцов таблицы files для SELECT/RETURNING.
const fileColumns = `file_id, name, extension, category, size_bytes, object_key, url,
	owner_id, account_id, shared_with, created_at, updated_at`

// filterColumns — допустимые поля фильтрации (логическое имя → столбец).
var filterColumns = map[string]string{
	query.FieldID:         "file_id",
	"id":                  "file_id",
	query.FieldName:       "name",
	query.FieldExtension:  "extension",
	query.FieldCategory:   "category",
	"category":            "category",
	query.FieldSize:       "size_bytes",
	"sizeBytes":           "size_bytes",
	query.FieldObjectKey:  "object_key",
	query.FieldOwnerID:    "owner_id",
	"accountId":           "account_id",
	query.FieldSharedWith: "shared_with",
	"sharedWith":          "shared_with",
	query.FieldCreatedAt:  "created_at",
	"createdAt":           "created_at",
	query.FieldUpdatedAt:  "updated_at",
	"updatedAt":           "updated_at",
}

// sortColumns — whitelist полей сортировки.
var sortColumns = map[string]string{
	query.FieldCreatedAt: "created_at",
	"createdAt":          "created_at",
	query.FieldUpdatedAt: "updated_at",
	"updatedAt":          "updated_at",
	query.FieldName:      "name",
	query.FieldSize:      "size_bytes",
	"sizeBytes":          "size_bytes",
	query.FieldCategory:  "category",
	"category":           "category",
	query.FieldExtension: "extension",
}

// Patch — изменяемые поля записи. nil — поле не меняется.
type Patch struct {
	Name       *string
	SharedWith *[]string
}

// FileRepository — интерфейс доступа к метаданным файлов.
type FileRepository interface {
	// Create сохраняет новую запись. ID и временные метки назначает хранилище.
	Create(ctx context.Context, f *model.FileRecord) (*model.FileRecord, error)
	// Update применяет patch к единственной записи, попадающей в set.
	Update(ctx context.Context, set query.Set, patch Patch) (*model.FileRecord, error)
	// Delete удаляет единственную запись, попадающую в set, и возвращает её.
	Delete(ctx context.Context, set query.Set) (*model.FileRecord, error)
	// List возвращает записи набора и их общее количество без учёта лимита.
	List(ctx context.Context, set query.Set) ([]*model.FileRecord, int, error)
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// Create вставляет запись и возвращает её с назначенными file_id, created_at, updated_at.
func (r *fileRepo) Create(ctx context.Context, f *model.FileRecord) (*model.FileRecord, error) {
	shared := f.SharedWith
	if shared == nil {
		shared = []string{}
	}

	q := fmt.Sprintf(`
		INSERT INTO files (name, extension, category, size_bytes, object_key, url,
			owner_id, account_id, shared_with)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING %s`, fileColumns)

	created, err := scanFile(r.db.QueryRow(ctx, q,
		f.Name, f.Extension, string(f.Category), f.SizeBytes, f.ObjectKey, f.URL,
		f.OwnerID, f.AccountID, shared,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: object_key уже зарегистрирован", ErrConflict)
		}
		return nil, fmt.Errorf("ошибка создания записи файла: %w", err)
	}
	return created, nil
}

// Update обновляет name и/или shared_with записи в наборе.
// Возвращает ErrNotFound, если запись вне набора.
func (r *fileRepo) Update(ctx context.Context, set query.Set, patch Patch) (*model.FileRecord, error) {
	var assignments []string
	var args []any

	if patch.Name != nil {
		args = append(args, *patch.Name)
		assignments = append(assignments, fmt.Sprintf("name = $%d", len(args)))
	}
	if patch.SharedWith != nil {
		shared := *patch.SharedWith
		if shared == nil {
			shared = []string{}
		}
		args = append(args, shared)
		assignments = append(assignments, fmt.Sprintf("shared_with = $%d", len(args)))
	}
	if len(assignments) == 0 {
		return nil, fmt.Errorf("%w: пустой patch", ErrInvalidQuery)
	}

	where, whereArgs, err := buildWhere(set.Where, len(args)+1)
	if err != nil {
		return nil, err
	}
	if where == "" {
		return nil, fmt.Errorf("%w: обновление без условий запрещено", ErrInvalidQuery)
	}
	args = append(args, whereArgs...)

	q := fmt.Sprintf(`UPDATE files SET %s %s RETURNING %s`,
		strings.Join(assignments, ", "), where, fileColumns)

	f, err := scanFile(r.db.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления записи файла: %w", err)
	}
	return f, nil
}

// Delete удаляет запись из набора.
// Возвращает удалённую запись или ErrNotFound.
func (r *fileRepo) Delete(ctx context.Context, set query.Set) (*model.FileRecord, error) {
	where, args, err := buildWhere(set.Where, 1)
	if err != nil {
		return nil, err
	}
	if where == "" {
		return nil, fmt.Errorf("%w: удаление без условий запрещено", ErrInvalidQuery)
	}

	q := fmt.Sprintf(`DELETE FROM files %s RETURNING %s`, where, fileColumns)

	f, err := scanFile(r.db.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка удаления записи файла: %w", err)
	}
	return f, nil
}

// List выполняет выборку по набору с сортировкой и лимитом.
// Возвращает (записи, общее количество, ошибка).
func (r *fileRepo) List(ctx context.Context, set query.Set) ([]*model.FileRecord, int, error) {
	where, args, err := buildWhere(set.Where, 1)
	if err != nil {
		return nil, 0, err
	}

	orderBy, err := buildOrderBy(set.Order)
	if err != nil {
		return nil, 0, err
	}

	dataQuery := fmt.Sprintf(`SELECT %s FROM files %s %s`, fileColumns, where, orderBy)
	dataArgs := args
	if set.Limit > 0 {
		dataQuery += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		dataArgs = append(append([]any{}, args...), set.Limit)
	}

	rows, err := r.db.Query(ctx, dataQuery, dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка выборки файлов: %w", err)
	}
	defer rows.Close()

	var result []*model.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка итерации результатов: %w", err)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM files %s`, where)
	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта файлов: %w", err)
	}

	return result, total, nil
}

// rowScanner — общий интерфейс pgx.Row и pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*model.FileRecord, error) {
	f := &model.FileRecord{}
	var category string
	if err := row.Scan(
		&f.ID, &f.Name, &f.Extension, &category, &f.SizeBytes, &f.ObjectKey, &f.URL,
		&f.OwnerID, &f.AccountID, &f.SharedWith, &f.CreatedAt, &f.UpdatedAt,
	); err != nil {
		return nil, err
	}
	f.Category = model.Category(category)
	if f.SharedWith == nil {
		f.SharedWith = []string{}
	}
	return f, nil
}

// buildWhere строит WHERE-условие (конъюнкция предикатов) и аргументы.
// startArg — номер первого $-параметра.
func buildWhere(preds []query.Predicate, startArg int) (whereClause string, args []any, err error) {
	if len(preds) == 0 {
		return "", nil, nil
	}

	conditions := make([]string, 0, len(preds))
	argNum := startArg
	for _, p := range preds {
		cond, pArgs, err := buildPredicate(p, argNum)
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, cond)
		args = append(args, pArgs...)
		argNum += len(pArgs)
	}

	return "WHERE " + strings.Join(conditions, " AND "), args, nil
}

// buildPredicate транслирует один предикат в SQL-условие.
//
//nolint:cyclop // по ветке на вид предиката
func buildPredicate(p query.Predicate, argNum int) (string, []any, error) {
	if p.Op == query.OpOr {
		if len(p.Any) == 0 {
			return "FALSE", nil, nil
		}
		parts := make([]string, 0, len(p.Any))
		var args []any
		for _, sub := range p.Any {
			cond, subArgs, err := buildPredicate(sub, argNum+len(args))
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, cond)
			args = append(args, subArgs...)
		}
		return "(" + strings.Join(parts, " OR ") + ")", args, nil
	}

	column, ok := filterColumns[p.Field]
	if !ok {
		return "", nil, fmt.Errorf("%w: неизвестное поле %q", ErrInvalidQuery, p.Field)
	}

	switch p.Op {
	case query.OpEqual:
		// Некорректный UUID не может совпасть ни с одной записью
		if column == "file_id" {
			if _, err := uuid.Parse(p.Value); err != nil {
				return "FALSE", nil, nil
			}
		}
		if column == "shared_with" {
			return "", nil, fmt.Errorf("%w: равенство для массива %q", ErrInvalidQuery, p.Field)
		}
		return fmt.Sprintf("%s = $%d", column, argNum), []any{p.Value}, nil

	case query.OpContains:
		if !isTextColumn(column) {
			return "", nil, fmt.Errorf("%w: поиск подстроки по полю %q", ErrInvalidQuery, p.Field)
		}
		return fmt.Sprintf("%s ILIKE $%d", column, argNum), []any{"%" + escapeLike(p.Value) + "%"}, nil

	case query.OpArrayContains:
		if column != "shared_with" {
			return "", nil, fmt.Errorf("%w: поле %q не является массивом", ErrInvalidQuery, p.Field)
		}
		return fmt.Sprintf("$%d = ANY(%s)", argNum, column), []any{p.Value}, nil

	case query.OpIn:
		if len(p.Values) == 0 {
			return "FALSE", nil, nil
		}
		if column == "file_id" || column == "shared_with" {
			return "", nil, fmt.Errorf("%w: IN по полю %q", ErrInvalidQuery, p.Field)
		}
		return fmt.Sprintf("%s = ANY($%d)", column, argNum), []any{p.Values}, nil
	}

	return "", nil, fmt.Errorf("%w: неизвестная операция %d", ErrInvalidQuery, p.Op)
}

func isTextColumn(column string) bool {
	switch column {
	case "name", "extension", "category", "object_key", "owner_id", "account_id":
		return true
	}
	return false
}

// escapeLike экранирует спецсимволы шаблона ILIKE.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// buildOrderBy строит ORDER BY по whitelist полей.
// file_id добавляется для стабильного порядка при равных значениях.
func buildOrderBy(order *query.Order) (string, error) {
	if order == nil {
		return "", nil
	}
	column, ok := sortColumns[order.Field]
	if !ok {
		return "", fmt.Errorf("%w: недопустимое поле сортировки %q", ErrInvalidQuery, order.Field)
	}
	direction := "DESC"
	if order.Ascending {
		direction = "ASC"
	}
	return fmt.Sprintf("ORDER BY %s %s, file_id %s", column, direction, direction), nil
}
