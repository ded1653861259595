// handler.go — основной обработчик API, реализующий openapi.ServerInterface.
// Объединяет health и бизнес-обработчики; идентичность вызывающего берётся
// из контекста (JWT middleware) и передаётся в сервисный слой явно.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/filevault/internal/api/errors"
	"github.com/bigkaa/filevault/internal/api/middleware"
	"github.com/bigkaa/filevault/internal/api/openapi"
	"github.com/bigkaa/filevault/internal/domain/action"
	"github.com/bigkaa/filevault/internal/domain/model"
	"github.com/bigkaa/filevault/internal/domain/query"
	"github.com/bigkaa/filevault/internal/service"
)

// FileService — операции оркестратора, используемые API.
type FileService interface {
	Upload(ctx context.Context, in service.UploadInput) (*model.FileRecord, error)
	List(ctx context.Context, caller model.Caller, f query.Filters) (*service.ListResult, error)
	Get(ctx context.Context, caller model.Caller, fileID string) (*model.FileRecord, error)
	Rename(ctx context.Context, caller model.Caller, fileID, newBaseName, extension string) (*model.FileRecord, error)
	UpdateAccess(ctx context.Context, caller model.Caller, fileID string, emails []string) (*model.FileRecord, error)
	Delete(ctx context.Context, caller model.Caller, fileID, objectKey string) error
	ConstructDownloadURL(objectKey string) string
}

// UsageService — сводка использования.
type UsageService interface {
	Summarize(ctx context.Context, ownerID string) (*model.UsageSummary, error)
}

// ActionService — сессии диалогов действий.
type ActionService interface {
	Start(ctx context.Context, caller model.Caller, fileID string, kind action.Kind) (action.Snapshot, error)
	Snapshot(caller model.Caller, fileID string) (action.Snapshot, error)
	SetInput(caller model.Caller, fileID string, in service.ActionInput) (action.Snapshot, error)
	Submit(ctx context.Context, caller model.Caller, fileID string) (action.Snapshot, error)
	RemoveEmail(ctx context.Context, caller model.Caller, fileID, email string) (action.Snapshot, error)
	Cancel(caller model.Caller, fileID string) (action.Snapshot, error)
}

// APIHandler — основной обработчик API filevault.
type APIHandler struct {
	health        *HealthHandler
	files         FileService
	usage         UsageService
	actions       ActionService
	maxUploadSize int64
	logger        *slog.Logger
}

var _ openapi.ServerInterface = (*APIHandler)(nil)

// NewAPIHandler создаёт основной обработчик API.
// maxUploadSize — максимальный размер загружаемого файла в байтах.
func NewAPIHandler(
	health *HealthHandler,
	files FileService,
	usage UsageService,
	actions ActionService,
	maxUploadSize int64,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:        health,
		files:         files,
		usage:         usage,
		actions:       actions,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

func callerOf(r *http.Request) model.Caller {
	return middleware.CallerFromContext(r.Context())
}

// errorCode возвращает HTTP-статус и машиночитаемый код ошибки.
func errorCode(err error) (int, string) {
	var te *action.TransitionError
	if errors.As(err, &te) {
		return http.StatusConflict, te.Code
	}

	switch service.KindOf(err) {
	case service.KindAuthRequired:
		return http.StatusUnauthorized, apierrors.CodeUnauthorized
	case service.KindNotFound:
		return http.StatusNotFound, apierrors.CodeNotFound
	case service.KindValidationFailed:
		return http.StatusBadRequest, apierrors.CodeValidationError
	case service.KindStoreUnavailable:
		return http.StatusBadGateway, apierrors.CodeStoreUnavailable
	case service.KindOrphanedBlob:
		return http.StatusInternalServerError, apierrors.CodeOrphanedBlob
	}
	return http.StatusInternalServerError, apierrors.CodeInternalError
}

// errorMessage возвращает сообщение, безопасное для клиента.
func errorMessage(err error) string {
	var te *action.TransitionError
	if errors.As(err, &te) {
		return te.Message
	}
	var se *service.Error
	if errors.As(err, &se) {
		return se.Message()
	}
	return "Внутренняя ошибка сервера"
}

// writeServiceError записывает ошибку сервисного слоя в стандартном формате.
// 5xx логируются; OrphanedBlob — на уровне ERROR с ключом blob.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := h.logServiceError(r, err)
	apierrors.WriteError(w, status, code, errorMessage(err))
}

// logServiceError логирует 5xx и возвращает статус с кодом ошибки.
func (h *APIHandler) logServiceError(r *http.Request, err error) (int, string) {
	status, code := errorCode(err)

	if status >= http.StatusInternalServerError {
		attrs := []any{
			slog.String("path", r.URL.Path),
			slog.String("code", code),
			slog.String("error", err.Error()),
		}
		var se *service.Error
		if errors.As(err, &se) && se.ObjectKey != "" {
			attrs = append(attrs, slog.String("object_key", se.ObjectKey))
		}
		h.logger.Error("Ошибка обработки запроса", attrs...)
	}
	return status, code
}

// toFile конвертирует доменную запись в API-тип.
func (h *APIHandler) toFile(rec *model.FileRecord) openapi.File {
	users := rec.SharedWith
	if users == nil {
		users = []string{}
	}
	return openapi.File{
		Id:          rec.ID,
		Name:        rec.Name,
		Extension:   rec.Extension,
		Type:        openapi.Category(rec.Category),
		Size:        rec.SizeBytes,
		ObjectKey:   rec.ObjectKey,
		Url:         rec.URL,
		DownloadUrl: h.files.ConstructDownloadURL(rec.ObjectKey),
		OwnerId:     rec.OwnerID,
		AccountId:   rec.AccountID,
		Users:       users,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}
