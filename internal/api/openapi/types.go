package openapi

import "time"

// Category — категория файла.
type Category string

// Значения Category.
const (
	CategoryDocument Category = "document"
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryOther    Category = "other"
)

// FileId — идентификатор файла в пути.
type FileId = string

// File — метаданные файла.
type File struct {
	Id          string    `json:"id"`
	Name        string    `json:"name"`
	Extension   string    `json:"extension"`
	Type        Category  `json:"type"`
	Size        int64     `json:"size"`
	ObjectKey   string    `json:"object_key"`
	Url         string    `json:"url"`
	DownloadUrl string    `json:"download_url"`
	OwnerId     string    `json:"owner_id"`
	AccountId   string    `json:"account_id"`
	Users       []string  `json:"users"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FileList — страница файлов.
type FileList struct {
	Items []File `json:"items"`
	Total int    `json:"total"`
}

// RenameRequest — тело PATCH /files/{file_id}/name.
type RenameRequest struct {
	Name      string `json:"name"`
	Extension string `json:"extension"`
}

// AccessRequest — тело PUT /files/{file_id}/access.
type AccessRequest struct {
	Emails []string `json:"emails"`
}

// StartActionRequest — тело POST /files/{file_id}/action.
type StartActionRequest struct {
	Action string `json:"action"`
}

// ActionInput — тело PUT /files/{file_id}/action/input.
type ActionInput struct {
	Name   *string   `json:"name,omitempty"`
	Emails *[]string `json:"emails,omitempty"`
}

// ErrorDetail — код и сообщение ошибки.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ActionState — наблюдаемое состояние диалога действия.
type ActionState struct {
	State     string       `json:"state"`
	Action    string       `json:"action,omitempty"`
	Loading   bool         `json:"loading"`
	ModalOpen bool         `json:"modal_open"`
	Name      string       `json:"name,omitempty"`
	Emails    []string     `json:"emails,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
	File      *File        `json:"file,omitempty"`
}

// CategoryUsage — объём и последнее изменение в категории.
type CategoryUsage struct {
	Size       int64      `json:"size"`
	LatestDate *time.Time `json:"latest_date"`
}

// UsageSummary — сводка использования хранилища.
type UsageSummary struct {
	Document    CategoryUsage `json:"document"`
	Image       CategoryUsage `json:"image"`
	Video       CategoryUsage `json:"video"`
	Audio       CategoryUsage `json:"audio"`
	Other       CategoryUsage `json:"other"`
	Used        int64         `json:"used"`
	All         int64         `json:"all"`
	Available   int64         `json:"available"`
	UsedPercent float64       `json:"used_percent"`
}

// ListFilesParams — query-параметры GET /files.
type ListFilesParams struct {
	Type    *[]Category `form:"type,omitempty" json:"type,omitempty"`
	Section *string     `form:"section,omitempty" json:"section,omitempty"`
	Query   *string     `form:"query,omitempty" json:"query,omitempty"`
	Sort    *string     `form:"sort,omitempty" json:"sort,omitempty"`
	Limit   *int        `form:"limit,omitempty" json:"limit,omitempty"`
}

// DeleteFileParams — query-параметры DELETE /files/{file_id}.
type DeleteFileParams struct {
	ObjectKey *string `form:"object_key,omitempty" json:"object_key,omitempty"`
}
