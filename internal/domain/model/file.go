// Пакет model — доменные модели filevault.
// FileRecord — маппинг таблицы files, UsageSummary — агрегат по категориям.
package model

import "time"

// Category — категория файла, выводится из расширения.
type Category string

// Категории файлов.
const (
	CategoryDocument Category = "document"
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryOther    Category = "other"
)

// AllCategories — все категории в порядке отображения.
var AllCategories = []Category{
	CategoryDocument, CategoryImage, CategoryVideo, CategoryAudio, CategoryOther,
}

// Valid сообщает, является ли значение одной из известных категорий.
func (c Category) Valid() bool {
	switch c {
	case CategoryDocument, CategoryImage, CategoryVideo, CategoryAudio, CategoryOther:
		return true
	}
	return false
}

// FileRecord — запись файла в таблице files.
type FileRecord struct {
	// ID — UUID файла (назначается хранилищем метаданных)
	ID string
	// Name — отображаемое имя, включая расширение
	Name string
	// Extension — расширение в нижнем регистре, без точки
	Extension string
	// Category — категория, выведенная из расширения
	Category Category
	// SizeBytes — размер blob в байтах, неизменяем
	SizeBytes int64
	// ObjectKey — ключ blob в object store, неизменяем
	ObjectKey string
	// URL — публичная ссылка на blob
	URL string
	// OwnerID — идентификатор владельца (sub из JWT)
	OwnerID string
	// AccountID — идентификатор аккаунта владельца
	AccountID string
	// SharedWith — e-mail адреса, которым открыт доступ
	SharedWith []string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего изменения
	UpdatedAt time.Time
}

// Caller — идентичность вызывающего, получена от Identity Provider.
type Caller struct {
	ID        string
	Email     string
	AccountID string
}

// CategoryUsage — занятый объём и последнее изменение в одной категории.
type CategoryUsage struct {
	SizeBytes int64
	// LatestModifiedAt — nil, если в категории нет файлов
	LatestModifiedAt *time.Time
}

// UsageSummary — сводка использования хранилища владельцем.
type UsageSummary struct {
	Categories map[Category]CategoryUsage
	// Used — сумма размеров по всем категориям
	Used int64
	// QuotaBytes — квота аккаунта
	QuotaBytes int64
}

// AvailableBytes возвращает остаток квоты (не меньше нуля).
func (u UsageSummary) AvailableBytes() int64 {
	if u.Used >= u.QuotaBytes {
		return 0
	}
	return u.QuotaBytes - u.Used
}

// UsedPercent возвращает долю занятой квоты в процентах.
func (u UsageSummary) UsedPercent() float64 {
	if u.QuotaBytes <= 0 {
		return 0
	}
	return float64(u.Used) / float64(u.QuotaBytes) * 100
}
