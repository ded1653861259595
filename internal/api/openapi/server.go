package openapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/filevault/internal/api/errors"
)

// ServerInterface — обработчики всех операций OpenAPI-документа.
type ServerInterface interface {
	// (GET /health/live)
	HealthLive(w http.ResponseWriter, r *http.Request)
	// (GET /health/ready)
	HealthReady(w http.ResponseWriter, r *http.Request)
	// (GET /metrics)
	GetMetrics(w http.ResponseWriter, r *http.Request)

	// (GET /api/v1/files)
	ListFiles(w http.ResponseWriter, r *http.Request, params ListFilesParams)
	// (POST /api/v1/files)
	UploadFile(w http.ResponseWriter, r *http.Request)
	// (GET /api/v1/files/{file_id})
	GetFile(w http.ResponseWriter, r *http.Request, fileID FileId)
	// (DELETE /api/v1/files/{file_id})
	DeleteFile(w http.ResponseWriter, r *http.Request, fileID FileId, params DeleteFileParams)
	// (PATCH /api/v1/files/{file_id}/name)
	RenameFile(w http.ResponseWriter, r *http.Request, fileID FileId)
	// (PUT /api/v1/files/{file_id}/access)
	UpdateFileAccess(w http.ResponseWriter, r *http.Request, fileID FileId)

	// (POST /api/v1/files/{file_id}/action)
	StartAction(w http.ResponseWriter, r *http.Request, fileID FileId)
	// (GET /api/v1/files/{file_id}/action)
	GetAction(w http.ResponseWriter, r *http.Request, fileID FileId)
	// (DELETE /api/v1/files/{file_id}/action)
	CancelAction(w http.ResponseWriter, r *http.Request, fileID FileId)
	// (PUT /api/v1/files/{file_id}/action/input)
	SetActionInput(w http.ResponseWriter, r *http.Request, fileID FileId)
	// (POST /api/v1/files/{file_id}/action/submit)
	SubmitAction(w http.ResponseWriter, r *http.Request, fileID FileId)
	// (DELETE /api/v1/files/{file_id}/action/emails/{email})
	RemoveActionEmail(w http.ResponseWriter, r *http.Request, fileID FileId, email string)

	// (GET /api/v1/usage)
	GetUsage(w http.ResponseWriter, r *http.Request)
}

// ServerInterfaceWrapper разбирает параметры запроса и вызывает обработчик.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

// pathParam извлекает и декодирует обязательный path-параметр.
func pathParam(r *http.Request, name string) (string, error) {
	var value string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &value,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return "", fmt.Errorf("некорректный параметр %s: %w", name, err)
	}
	return value, nil
}

// withFileID оборачивает обработчик с параметром file_id.
func (siw *ServerInterfaceWrapper) withFileID(h func(w http.ResponseWriter, r *http.Request, fileID FileId)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fileID, err := pathParam(r, "file_id")
		if err != nil {
			apierrors.ValidationError(w, err.Error())
			return
		}
		h(w, r, fileID)
	}
}

// ListFiles разбирает query-параметры списка файлов.
func (siw *ServerInterfaceWrapper) ListFiles(w http.ResponseWriter, r *http.Request) {
	var params ListFilesParams
	q := r.URL.Query()

	bind := []struct {
		name    string
		explode bool
		dest    any
	}{
		{"type", false, &params.Type},
		{"section", true, &params.Section},
		{"query", true, &params.Query},
		{"sort", true, &params.Sort},
		{"limit", true, &params.Limit},
	}
	for _, b := range bind {
		if err := runtime.BindQueryParameter("form", b.explode, false, b.name, q, b.dest); err != nil {
			apierrors.ValidationError(w, fmt.Sprintf("некорректный параметр %s: %v", b.name, err))
			return
		}
	}

	siw.Handler.ListFiles(w, r, params)
}

// DeleteFile разбирает параметры удаления.
func (siw *ServerInterfaceWrapper) DeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := pathParam(r, "file_id")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	var params DeleteFileParams
	if err := runtime.BindQueryParameter("form", true, false, "object_key", r.URL.Query(), &params.ObjectKey); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("некорректный параметр object_key: %v", err))
		return
	}

	siw.Handler.DeleteFile(w, r, fileID, params)
}

// RemoveActionEmail разбирает file_id и email.
func (siw *ServerInterfaceWrapper) RemoveActionEmail(w http.ResponseWriter, r *http.Request) {
	fileID, err := pathParam(r, "file_id")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	email, err := pathParam(r, "email")
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	siw.Handler.RemoveActionEmail(w, r, fileID, email)
}

// HandlerFromMux регистрирует все маршруты документа в chi-роутере.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	wrapper := &ServerInterfaceWrapper{Handler: si}

	r.Get("/health/live", si.HealthLive)
	r.Get("/health/ready", si.HealthReady)
	r.Get("/metrics", si.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/usage", si.GetUsage)

		r.Get("/files", wrapper.ListFiles)
		r.Post("/files", si.UploadFile)

		r.Route("/files/{file_id}", func(r chi.Router) {
			r.Get("/", wrapper.withFileID(si.GetFile))
			r.Delete("/", wrapper.DeleteFile)
			r.Patch("/name", wrapper.withFileID(si.RenameFile))
			r.Put("/access", wrapper.withFileID(si.UpdateFileAccess))

			r.Post("/action", wrapper.withFileID(si.StartAction))
			r.Get("/action", wrapper.withFileID(si.GetAction))
			r.Delete("/action", wrapper.withFileID(si.CancelAction))
			r.Put("/action/input", wrapper.withFileID(si.SetActionInput))
			r.Post("/action/submit", wrapper.withFileID(si.SubmitAction))
			r.Delete("/action/emails/{email}", wrapper.RemoveActionEmail)
		})
	})

	return r
}
