// actions.go — обработчики /api/v1/files/{file_id}/action: диалоги
// rename/share/delete/details на стороне сервера.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apierrors "github.com/bigkaa/filevault/internal/api/errors"
	"github.com/bigkaa/filevault/internal/api/openapi"
	"github.com/bigkaa/filevault/internal/domain/action"
	"github.com/bigkaa/filevault/internal/service"
)

// StartAction — POST /action: выбор действия и открытие диалога.
func (h *APIHandler) StartAction(w http.ResponseWriter, r *http.Request, fileID openapi.FileId) {
	var req openapi.StartActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}
	kind, err := action.ParseKind(req.Action)
	if err != nil {
		apierrors.ValidationError(w, errorMessage(err))
		return
	}

	snap, err := h.actions.Start(r.Context(), callerOf(r), fileID, kind)
	h.writeSnapshot(w, r, snap, err)
}

// GetAction — GET /action: текущее состояние диалога.
func (h *APIHandler) GetAction(w http.ResponseWriter, r *http.Request, fileID openapi.FileId) {
	snap, err := h.actions.Snapshot(callerOf(r), fileID)
	h.writeSnapshot(w, r, snap, err)
}

// CancelAction — DELETE /action: закрытие диалога без отправки.
func (h *APIHandler) CancelAction(w http.ResponseWriter, r *http.Request, fileID openapi.FileId) {
	snap, err := h.actions.Cancel(callerOf(r), fileID)
	h.writeSnapshot(w, r, snap, err)
}

// SetActionInput — PUT /action/input: кандидаты имени и адресов.
func (h *APIHandler) SetActionInput(w http.ResponseWriter, r *http.Request, fileID openapi.FileId) {
	var req openapi.ActionInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return
	}

	snap, err := h.actions.SetInput(callerOf(r), fileID, service.ActionInput{
		Name:   req.Name,
		Emails: req.Emails,
	})
	h.writeSnapshot(w, r, snap, err)
}

// SubmitAction — POST /action/submit: выполнение действия.
// При ошибке хранилища диалог остаётся открытым (state=confirming).
func (h *APIHandler) SubmitAction(w http.ResponseWriter, r *http.Request, fileID openapi.FileId) {
	snap, err := h.actions.Submit(r.Context(), callerOf(r), fileID)
	h.writeSnapshot(w, r, snap, err)
}

// RemoveActionEmail — DELETE /action/emails/{email}: убрать адрес и сразу сохранить.
func (h *APIHandler) RemoveActionEmail(w http.ResponseWriter, r *http.Request, fileID openapi.FileId, email string) {
	snap, err := h.actions.RemoveEmail(r.Context(), callerOf(r), fileID, email)
	h.writeSnapshot(w, r, snap, err)
}

// writeSnapshot записывает состояние диалога или ошибку.
// Неудачная отправка, после которой диалог остался в confirming,
// отдаётся как 200 со снимком: ошибка уже лежит в snap.Err.
func (h *APIHandler) writeSnapshot(w http.ResponseWriter, r *http.Request, snap action.Snapshot, err error) {
	if err != nil {
		if !keptOpen(snap, err) {
			h.writeServiceError(w, r, err)
			return
		}
		h.logServiceError(r, err)
	}
	writeJSON(w, http.StatusOK, h.toActionState(snap))
}

// toActionState конвертирует снимок автомата в API-тип.
func (h *APIHandler) toActionState(snap action.Snapshot) openapi.ActionState {
	state := openapi.ActionState{
		State:     string(snap.State),
		Action:    string(snap.Action),
		Loading:   snap.Loading,
		ModalOpen: snap.ModalOpen,
		Name:      snap.Name,
		Emails:    snap.Emails,
	}
	if snap.Err != nil {
		_, code := errorCode(snap.Err)
		state.Error = &openapi.ErrorDetail{Code: code, Message: errorMessage(snap.Err)}
	}
	if snap.Record != nil {
		f := h.toFile(snap.Record)
		state.File = &f
	}
	return state
}

func keptOpen(snap action.Snapshot, err error) bool {
	var te *action.TransitionError
	if errors.As(err, &te) {
		return false
	}
	return snap.State == action.StateConfirming && snap.Err != nil && errors.Is(err, snap.Err)
}
