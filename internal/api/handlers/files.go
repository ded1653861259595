// files.go — обработчики /api/v1/files: загрузка, список, метаданные,
// переименование, управление доступом и удаление.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/filevault/internal/api/errors"
	"github.com/bigkaa/filevault/internal/api/openapi"
	"github.com/bigkaa/filevault/internal/domain/classify"
	"github.com/bigkaa/filevault/internal/domain/model"
	"github.com/bigkaa/filevault/internal/domain/query"
	"github.com/bigkaa/filevault/internal/service"
)

// multipartOverhead — запас на заголовки multipart сверх размера файла.
const multipartOverhead = 1 << 20

// multipartMemory — часть формы, хранимая в памяти (остальное — во временных файлах).
const multipartMemory = 8 << 20

// UploadFile — POST /api/v1/files (multipart/form-data, поле file).
func (h *APIHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	caller := callerOf(r)
	if caller.ID == "" {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.PayloadTooLarge(w, fmt.Sprintf("Размер файла превышает %d байт", h.maxUploadSize))
			return
		}
		apierrors.ValidationError(w, "Ожидается multipart/form-data с полем file")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле file отсутствует")
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadSize {
		apierrors.PayloadTooLarge(w, fmt.Sprintf("Размер файла превышает %d байт", h.maxUploadSize))
		return
	}

	rec, err := h.files.Upload(r.Context(), service.UploadInput{
		Content:     file,
		Size:        header.Size,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		OwnerID:     caller.ID,
		AccountID:   caller.AccountID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.toFile(rec))
}

// ListFiles — GET /api/v1/files.
// type имеет приоритет над section; неизвестный section — без фильтра.
func (h *APIHandler) ListFiles(w http.ResponseWriter, r *http.Request, params openapi.ListFilesParams) {
	var f query.Filters

	switch {
	case params.Type != nil && len(*params.Type) > 0:
		for _, c := range *params.Type {
			cat := model.Category(c)
			if !cat.Valid() {
				apierrors.ValidationError(w, fmt.Sprintf("Неизвестная категория %q", c))
				return
			}
			f.Categories = append(f.Categories, cat)
		}
	case params.Section != nil:
		f.Categories = classify.CategoriesForSection(*params.Section)
	}
	if params.Query != nil {
		f.SearchText = strings.TrimSpace(*params.Query)
	}
	if params.Sort != nil {
		f.Sort = *params.Sort
	}
	if params.Limit != nil {
		f.Limit = *params.Limit
	}

	res, err := h.files.List(r.Context(), callerOf(r), f)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := openapi.FileList{
		Items: make([]openapi.File, 0, len(res.Items)),
		Total: res.Total,
	}
	for _, rec := range res.Items {
		resp.Items = append(resp.Items, h.toFile(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetFile — GET /api/v1/files/{file_id}.
func (h *APIHandler) GetFile(w http.ResponseWriter, r *http.Request, fileID openapi.FileId) {
	rec, err := h.files.Get(r.Context(), callerOf(r), fileID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toFile(rec))
}

// RenameFile — PATCH /api/v1/files/{file_id}/name.
func (h *APIHandler) RenameFile(w http.ResponseWriter, r *http.Request, fileID openapi.FileId) {
	var req openapi.RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	rec, err := h.files.Rename(r.Context(), callerOf(r), fileID, req.Name, req.Extension)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toFile(rec))
}

// UpdateFileAccess — PUT /api/v1/files/{file_id}/access.
// Список полностью заменяет текущий; пустой список отзывает доступ.
func (h *APIHandler) UpdateFileAccess(w http.ResponseWriter, r *http.Request, fileID openapi.FileId) {
	var req openapi.AccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	rec, err := h.files.UpdateAccess(r.Context(), callerOf(r), fileID, req.Emails)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toFile(rec))
}

// DeleteFile — DELETE /api/v1/files/{file_id}.
// Без object_key используется ключ из записи.
func (h *APIHandler) DeleteFile(w http.ResponseWriter, r *http.Request, fileID openapi.FileId, params openapi.DeleteFileParams) {
	caller := callerOf(r)

	objectKey := ""
	if params.ObjectKey != nil {
		objectKey = *params.ObjectKey
	} else {
		rec, err := h.files.Get(r.Context(), caller, fileID)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		objectKey = rec.ObjectKey
	}

	if err := h.files.Delete(r.Context(), caller, fileID, objectKey); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.logger.Debug("Файл удалён через API", slog.String("file_id", fileID))
	w.WriteHeader(http.StatusNoContent)
}
