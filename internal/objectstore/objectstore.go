// Пакет objectstore — клиент бинарного хранилища (MinIO / S3-совместимое).
// Хранилище назначает ключ объекта и сообщает фактический размер записанных данных.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound — объект отсутствует в бакете.
var ErrNotFound = errors.New("объект не найден")

// PutHint — подсказки для записи объекта.
type PutHint struct {
	// Filename — исходное имя файла (используется для расширения ключа)
	Filename string
	// ContentType — MIME-тип, пустой — application/octet-stream
	ContentType string
}

// ObjectInfo — ключ и размер записанного объекта.
type ObjectInfo struct {
	Key  string
	Size int64
}

// Store — операции бинарного хранилища, используемые оркестратором.
type Store interface {
	Put(ctx context.Context, r io.Reader, size int64, hint PutHint) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}

// Options — параметры подключения к MinIO.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Region    string
}

// MinioStore — реализация Store поверх minio-go.
type MinioStore struct {
	client *minio.Client
	bucket string
	region string
	logger *slog.Logger
}

// NewMinioStore создаёт клиент MinIO. Сетевых вызовов не выполняет.
func NewMinioStore(opts Options, logger *slog.Logger) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента MinIO: %w", err)
	}

	return &MinioStore{
		client: client,
		bucket: opts.Bucket,
		region: opts.Region,
		logger: logger.With(slog.String("component", "objectstore")),
	}, nil
}

// Bucket возвращает имя бакета.
func (s *MinioStore) Bucket() string {
	return s.bucket
}

// EnsureBucket создаёт бакет, если он ещё не существует.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("ошибка проверки бакета %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		// Бакет мог быть создан параллельно другим экземпляром
		if exists, errExists := s.client.BucketExists(ctx, s.bucket); errExists == nil && exists {
			return nil
		}
		return fmt.Errorf("ошибка создания бакета %s: %w", s.bucket, err)
	}

	s.logger.Info("Бакет создан", slog.String("bucket", s.bucket))
	return nil
}

// Put записывает объект под новым уникальным ключом.
// Возвращает размер, фактически принятый хранилищем.
func (s *MinioStore) Put(ctx context.Context, r io.Reader, size int64, hint PutHint) (ObjectInfo, error) {
	key := NewObjectKey(hint.Filename)

	contentType := hint.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("ошибка записи объекта %s: %w", key, err)
	}

	s.logger.Debug("Объект записан",
		slog.String("object_key", key),
		slog.Int64("size", info.Size),
	)
	return ObjectInfo{Key: key, Size: info.Size}, nil
}

// Delete удаляет объект. Отсутствующий объект не считается ошибкой.
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("ошибка удаления объекта %s: %w", key, err)
	}
	return nil
}

// Stat возвращает размер объекта или ErrNotFound.
func (s *MinioStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return ObjectInfo{}, ErrNotFound
		}
		return ObjectInfo{}, fmt.Errorf("ошибка получения метаданных объекта %s: %w", key, err)
	}
	return ObjectInfo{Key: key, Size: info.Size}, nil
}

// CheckReady проверяет доступность бакета для /health/ready.
func (s *MinioStore) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return "fail", fmt.Sprintf("MinIO недоступен: %v", err)
	}
	if !exists {
		return "fail", fmt.Sprintf("бакет %s не найден", s.bucket)
	}
	return "ok", "бакет доступен"
}

// NewObjectKey генерирует уникальный ключ объекта, сохраняя расширение.
func NewObjectKey(filename string) string {
	key := uuid.NewString()
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" || ext == "." || strings.ContainsAny(ext, "/\\ ?#%") {
		return key
	}
	return key + ext
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
