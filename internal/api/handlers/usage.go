package handlers

import (
	"net/http"

	"github.com/bigkaa/filevault/internal/api/openapi"
	"github.com/bigkaa/filevault/internal/domain/model"
)

// GetUsage — GET /api/v1/usage: сводка по файлам, которыми владеет вызывающий.
func (h *APIHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	summary, err := h.usage.Summarize(r.Context(), callerOf(r).ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	category := func(c model.Category) openapi.CategoryUsage {
		u := summary.Categories[c]
		return openapi.CategoryUsage{Size: u.SizeBytes, LatestDate: u.LatestModifiedAt}
	}

	writeJSON(w, http.StatusOK, openapi.UsageSummary{
		Document:    category(model.CategoryDocument),
		Image:       category(model.CategoryImage),
		Video:       category(model.CategoryVideo),
		Audio:       category(model.CategoryAudio),
		Other:       category(model.CategoryOther),
		Used:        summary.Used,
		All:         summary.QuotaBytes,
		Available:   summary.AvailableBytes(),
		UsedPercent: summary.UsedPercent(),
	})
}
