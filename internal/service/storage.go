// storage.go — оркестрация object store и metadata store.
//
// Upload: classify → Put → проверка размера → Create. При сбое Create
// blob удаляется (компенсация); если и компенсация не удалась — OrphanedBlob.
// Delete: сначала метаданные, затем blob. Запись без blob невозможна.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/filevault/internal/domain/classify"
	"github.com/bigkaa/filevault/internal/domain/model"
	"github.com/bigkaa/filevault/internal/domain/query"
	"github.com/bigkaa/filevault/internal/events"
	"github.com/bigkaa/filevault/internal/objectstore"
	"github.com/bigkaa/filevault/internal/repository"
)

// Prometheus-метрики оркестратора.
var (
	storageOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fv_storage_operations_total",
		Help: "Количество операций оркестратора по результату.",
	}, []string{"op", "result"})
	storageOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fv_storage_operation_duration_seconds",
		Help:    "Длительность операций оркестратора.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	orphanedBlobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fv_orphaned_blobs_total",
		Help: "Количество blob, оставшихся без записи метаданных.",
	}, []string{"op"})
	uploadedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_uploaded_bytes_total",
		Help: "Общий объём успешно загруженных данных в байтах.",
	})
)

// StorageConfig — параметры оркестратора.
type StorageConfig struct {
	// Bucket — бакет object store (часть публичного URL)
	Bucket string
	// PublicBaseURL — базовый URL без завершающего "/"
	PublicBaseURL string
	// MaxUploadSize — максимальный размер файла в байтах
	MaxUploadSize int64
}

// UploadInput — параметры загрузки.
type UploadInput struct {
	Content     io.Reader
	Size        int64
	Filename    string
	ContentType string
	OwnerID     string
	AccountID   string
}

// ListResult — страница файлов и общее количество совпадений.
type ListResult struct {
	Items []*model.FileRecord
	Total int
}

// StorageService — оркестратор файловых операций.
type StorageService struct {
	repo     repository.FileRepository
	store    objectstore.Store
	notifier events.Notifier
	cfg      StorageConfig
	logger   *slog.Logger
}

// NewStorageService создаёт оркестратор. notifier == nil — события не отправляются.
func NewStorageService(
	repo repository.FileRepository,
	store objectstore.Store,
	notifier events.Notifier,
	cfg StorageConfig,
	logger *slog.Logger,
) *StorageService {
	if notifier == nil {
		notifier = events.Noop{}
	}
	return &StorageService{
		repo:     repo,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "storage_service")),
	}
}

// Upload сохраняет blob и создаёт запись метаданных.
func (s *StorageService) Upload(ctx context.Context, in UploadInput) (rec *model.FileRecord, err error) {
	const op = "upload"
	defer s.observe(op, time.Now(), &err)

	if in.OwnerID == "" || in.AccountID == "" {
		return nil, &Error{Kind: KindAuthRequired, Op: op}
	}
	if strings.TrimSpace(in.Filename) == "" {
		return nil, validationError(op, "имя файла не задано")
	}
	if in.Size < 0 {
		return nil, validationError(op, "размер файла не может быть отрицательным")
	}
	if in.Size > s.cfg.MaxUploadSize {
		return nil, validationError(op, fmt.Sprintf(
			"размер файла %d байт превышает максимум %d байт", in.Size, s.cfg.MaxUploadSize))
	}

	class := classify.Classify(in.Filename)

	info, err := s.store.Put(ctx, in.Content, in.Size, objectstore.PutHint{
		Filename:    in.Filename,
		ContentType: in.ContentType,
	})
	if err != nil {
		return nil, &Error{Kind: KindStoreUnavailable, Op: op, Err: err}
	}

	if info.Size != in.Size {
		mismatch := fmt.Errorf("хранилище приняло %d байт вместо %d", info.Size, in.Size)
		return nil, s.compensate(ctx, op, info.Key, mismatch)
	}

	created, err := s.repo.Create(ctx, &model.FileRecord{
		Name:       in.Filename,
		Extension:  class.Extension,
		Category:   class.Category,
		SizeBytes:  info.Size,
		ObjectKey:  info.Key,
		URL:        s.ConstructURL(info.Key),
		OwnerID:    in.OwnerID,
		AccountID:  in.AccountID,
		SharedWith: []string{},
	})
	if err != nil {
		return nil, s.compensate(ctx, op, info.Key, err)
	}

	uploadedBytesTotal.Add(float64(created.SizeBytes))
	s.logger.Info("Файл загружен",
		slog.String("file_id", created.ID),
		slog.String("object_key", created.ObjectKey),
		slog.String("category", string(created.Category)),
		slog.Int64("size", created.SizeBytes),
	)
	s.notify(ctx, events.FileUploaded, created, in.OwnerID)

	return created, nil
}

// compensate удаляет blob после неудачного шага загрузки.
// Выполняется на контексте без отмены: прерванный клиентом запрос
// всё равно должен убрать за собой blob.
func (s *StorageService) compensate(ctx context.Context, op, key string, cause error) *Error {
	cctx := context.WithoutCancel(ctx)
	if err := s.store.Delete(cctx, key); err != nil {
		orphanedBlobsTotal.WithLabelValues(op).Inc()
		s.logger.Error("Компенсирующее удаление blob не удалось",
			slog.String("object_key", key),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()),
		)
		return &Error{Kind: KindOrphanedBlob, Op: op, ObjectKey: key, Err: errors.Join(cause, err)}
	}

	s.logger.Warn("Загрузка отменена, blob удалён",
		slog.String("object_key", key),
		slog.String("cause", cause.Error()),
	)
	return &Error{Kind: KindStoreUnavailable, Op: op, Err: cause}
}

// Rename меняет отображаемое имя, сохраняя расширение записи.
func (s *StorageService) Rename(
	ctx context.Context, caller model.Caller, fileID, newBaseName, extension string,
) (rec *model.FileRecord, err error) {
	const op = "rename"
	defer s.observe(op, time.Now(), &err)

	base := strings.TrimSpace(newBaseName)
	if base == "" {
		return nil, validationError(op, "новое имя не задано")
	}
	if strings.ContainsAny(base, "/\\") {
		return nil, validationError(op, "имя не может содержать разделители пути")
	}

	current, err := s.Get(ctx, caller, fileID)
	if err != nil {
		return nil, relabel(err, op)
	}
	if !strings.EqualFold(extension, current.Extension) {
		return nil, validationError(op, fmt.Sprintf(
			"расширение %q не совпадает с расширением файла %q", extension, current.Extension))
	}

	name := base
	if current.Extension != "" {
		name = base + "." + current.Extension
	}

	set, err := query.ForRecord(caller, fileID)
	if err != nil {
		return nil, fromRepo(op, fileID, err)
	}
	updated, err := s.repo.Update(ctx, set, repository.Patch{Name: &name})
	if err != nil {
		return nil, fromRepo(op, fileID, err)
	}

	s.logger.Info("Файл переименован",
		slog.String("file_id", fileID),
		slog.String("name", name),
	)
	s.notify(ctx, events.FileRenamed, updated, caller.ID)

	return updated, nil
}

// UpdateAccess полностью заменяет список e-mail адресов с доступом.
func (s *StorageService) UpdateAccess(
	ctx context.Context, caller model.Caller, fileID string, emails []string,
) (rec *model.FileRecord, err error) {
	const op = "update_access"
	defer s.observe(op, time.Now(), &err)

	shared := normalizeEmails(emails)

	set, err := query.ForRecord(caller, fileID)
	if err != nil {
		return nil, fromRepo(op, fileID, err)
	}
	updated, err := s.repo.Update(ctx, set, repository.Patch{SharedWith: &shared})
	if err != nil {
		return nil, fromRepo(op, fileID, err)
	}

	s.logger.Info("Доступ к файлу обновлён",
		slog.String("file_id", fileID),
		slog.Int("shared_with", len(shared)),
	)
	s.notify(ctx, events.FileShared, updated, caller.ID)

	return updated, nil
}

// Delete удаляет запись, затем blob.
func (s *StorageService) Delete(ctx context.Context, caller model.Caller, fileID, objectKey string) (err error) {
	const op = "delete"
	defer s.observe(op, time.Now(), &err)

	if objectKey == "" {
		return validationError(op, "object key не задан")
	}

	set, err := query.ForRecord(caller, fileID)
	if err != nil {
		return fromRepo(op, fileID, err)
	}
	deleted, err := s.repo.Delete(ctx, set.With(query.Equal(query.FieldObjectKey, objectKey)))
	if err != nil {
		return fromRepo(op, fileID, err)
	}

	// Метаданные уже удалены — blob удаляем даже при отмене запроса
	if err := s.store.Delete(context.WithoutCancel(ctx), deleted.ObjectKey); err != nil {
		orphanedBlobsTotal.WithLabelValues(op).Inc()
		s.logger.Error("Blob не удалён после удаления метаданных",
			slog.String("file_id", fileID),
			slog.String("object_key", deleted.ObjectKey),
			slog.String("error", err.Error()),
		)
		s.notify(ctx, events.FileDeleted, deleted, caller.ID)
		return &Error{Kind: KindOrphanedBlob, Op: op, FileID: fileID, ObjectKey: deleted.ObjectKey, Err: err}
	}

	s.logger.Info("Файл удалён",
		slog.String("file_id", fileID),
		slog.String("object_key", deleted.ObjectKey),
	)
	s.notify(ctx, events.FileDeleted, deleted, caller.ID)

	return nil
}

// List возвращает файлы в области доступа вызывающего.
func (s *StorageService) List(ctx context.Context, caller model.Caller, f query.Filters) (res *ListResult, err error) {
	const op = "list"
	defer s.observe(op, time.Now(), &err)

	set, err := query.Build(caller, f)
	if err != nil {
		return nil, fromRepo(op, "", err)
	}

	items, total, err := s.repo.List(ctx, set)
	if err != nil {
		return nil, fromRepo(op, "", err)
	}
	if items == nil {
		items = []*model.FileRecord{}
	}

	s.logger.Debug("Список файлов получен",
		slog.Int("total", total),
		slog.Int("returned", len(items)),
	)
	return &ListResult{Items: items, Total: total}, nil
}

// Get возвращает одну запись в области доступа вызывающего.
func (s *StorageService) Get(ctx context.Context, caller model.Caller, fileID string) (*model.FileRecord, error) {
	const op = "get"

	set, err := query.ForRecord(caller, fileID)
	if err != nil {
		return nil, fromRepo(op, fileID, err)
	}
	set.Limit = 1

	items, _, err := s.repo.List(ctx, set)
	if err != nil {
		return nil, fromRepo(op, fileID, err)
	}
	if len(items) == 0 {
		return nil, &Error{Kind: KindNotFound, Op: op, FileID: fileID}
	}
	return items[0], nil
}

// ConstructURL возвращает публичную ссылку на blob.
func (s *StorageService) ConstructURL(objectKey string) string {
	return fmt.Sprintf("%s/%s/%s", s.cfg.PublicBaseURL, url.PathEscape(s.cfg.Bucket), url.PathEscape(objectKey))
}

// ConstructDownloadURL возвращает ссылку на скачивание blob.
func (s *StorageService) ConstructDownloadURL(objectKey string) string {
	return s.ConstructURL(objectKey) + "?download=1"
}

// notify отправляет событие; ошибка публикации не отменяет выполненную операцию.
func (s *StorageService) notify(ctx context.Context, typ string, rec *model.FileRecord, actorID string) {
	ev := events.Event{
		Type:      typ,
		FileID:    rec.ID,
		OwnerID:   rec.OwnerID,
		ActorID:   actorID,
		Timestamp: time.Now().UTC(),
	}
	if err := s.notifier.Notify(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn("Не удалось отправить событие",
			slog.String("event", typ),
			slog.String("file_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *StorageService) observe(op string, start time.Time, errp *error) {
	storageOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	result := "ok"
	if *errp != nil {
		result = strings.ToLower(KindOf(*errp).String())
	}
	storageOpsTotal.WithLabelValues(op, result).Inc()
}

// relabel переносит ошибку вложенной операции на внешнюю.
func relabel(err error, op string) error {
	var se *Error
	if errors.As(err, &se) {
		cp := *se
		cp.Op = op
		return &cp
	}
	return err
}

// normalizeEmails убирает пробелы, пустые строки и дубликаты, сохраняя порядок.
// Формат адреса не проверяется: список хранится как набор строк.
func normalizeEmails(emails []string) []string {
	out := make([]string, 0, len(emails))
	seen := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
