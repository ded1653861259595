// Пакет classify — определение категории файла по имени.
// Чистые функции без состояния, безопасны для конкурентного вызова.
package classify

import (
	"strings"

	"github.com/bigkaa/filevault/internal/domain/model"
)

// Result — результат классификации.
type Result struct {
	Category  model.Category
	Extension string
}

var extensions = map[string]model.Category{}

func register(c model.Category, exts ...string) {
	for _, e := range exts {
		extensions[e] = c
	}
}

func init() {
	register(model.CategoryDocument,
		"pdf", "doc", "docx", "txt", "xls", "xlsx", "csv", "rtf", "ods", "ppt", "odp",
		"md", "html", "htm", "epub", "pages", "fig", "psd", "ai", "indd", "xd",
		"sketch", "afdesign", "afphoto",
	)
	register(model.CategoryImage, "jpg", "jpeg", "png", "gif", "bmp", "svg", "webp")
	register(model.CategoryVideo, "mp4", "avi", "mov", "mkv", "webm")
	register(model.CategoryAudio, "mp3", "wav", "ogg", "flac")
}

// Classify возвращает категорию и расширение для имени файла.
// Расширение — текст после последней точки в нижнем регистре.
// Имя без точки даёт пустое расширение и категорию other.
func Classify(filename string) Result {
	ext := Extension(filename)
	return Result{Category: CategoryOf(ext), Extension: ext}
}

// Extension извлекает расширение из имени файла.
func Extension(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(filename[i+1:])
}

// CategoryOf возвращает категорию для уже извлечённого расширения.
func CategoryOf(ext string) model.Category {
	if c, ok := extensions[strings.ToLower(ext)]; ok {
		return c
	}
	return model.CategoryOther
}

// CategoriesForSection отображает раздел UI на набор категорий.
// Неизвестный раздел — пустой набор (без фильтра).
func CategoriesForSection(section string) []model.Category {
	switch strings.ToLower(section) {
	case "documents":
		return []model.Category{model.CategoryDocument}
	case "images":
		return []model.Category{model.CategoryImage}
	case "media":
		return []model.Category{model.CategoryVideo, model.CategoryAudio}
	case "others":
		return []model.Category{model.CategoryOther}
	default:
		return nil
	}
}

// BaseName возвращает имя без суффикса "."+extension.
// Используется как начальное значение в диалоге переименования.
func BaseName(name, extension string) string {
	if extension == "" {
		return name
	}
	suffix := "." + extension
	if len(name) > len(suffix) && strings.EqualFold(name[len(name)-len(suffix):], suffix) {
		return name[:len(name)-len(suffix)]
	}
	return name
}
