// usage.go — агрегирование занятого пространства по категориям.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/filevault/internal/domain/model"
	"github.com/bigkaa/filevault/internal/domain/query"
	"github.com/bigkaa/filevault/internal/repository"
)

var (
	usageSummariesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_usage_summaries_total",
		Help: "Количество вычислений сводки использования.",
	})
	usageDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fv_usage_duration_seconds",
		Help:    "Длительность вычисления сводки использования.",
		Buckets: prometheus.DefBuckets,
	})
)

// UsageService вычисляет сводку использования по файлам владельца.
// Результат не кэшируется: каждая мутация сразу отражается в следующем вызове.
type UsageService struct {
	repo       repository.FileRepository
	quotaBytes int64
	pageSize   int
	logger     *slog.Logger
}

// NewUsageService создаёт агрегатор.
func NewUsageService(repo repository.FileRepository, quotaBytes int64, pageSize int, logger *slog.Logger) *UsageService {
	return &UsageService{
		repo:       repo,
		quotaBytes: quotaBytes,
		pageSize:   pageSize,
		logger:     logger.With(slog.String("component", "usage_service")),
	}
}

// Summarize возвращает сводку по файлам, которыми владеет ownerID.
// Файлы, открытые владельцу другими пользователями, не учитываются.
func (s *UsageService) Summarize(ctx context.Context, ownerID string) (*model.UsageSummary, error) {
	const op = "usage"
	start := time.Now()
	usageSummariesTotal.Inc()

	if ownerID == "" {
		return nil, &Error{Kind: KindAuthRequired, Op: op}
	}

	set, err := query.ForOwner(ownerID, s.pageSize)
	if err != nil {
		return nil, fromRepo(op, "", err)
	}

	items, total, err := s.repo.List(ctx, set)
	if err != nil {
		return nil, fromRepo(op, "", err)
	}
	if total > len(items) {
		s.logger.Warn("Сводка использования усечена размером страницы",
			slog.String("owner_id", ownerID),
			slog.Int("total", total),
			slog.Int("page_size", s.pageSize),
		)
	}

	summary := Fold(items, s.quotaBytes)

	usageDuration.Observe(time.Since(start).Seconds())
	s.logger.Debug("Сводка использования вычислена",
		slog.String("owner_id", ownerID),
		slog.Int("files", len(items)),
		slog.Int64("used", summary.Used),
	)
	return summary, nil
}

// Fold сворачивает записи в сводку по пяти категориям.
// Неизвестная категория учитывается как other. При равных updatedAt
// побеждает последняя встреченная запись.
func Fold(items []*model.FileRecord, quotaBytes int64) *model.UsageSummary {
	summary := &model.UsageSummary{
		Categories: make(map[model.Category]model.CategoryUsage, len(model.AllCategories)),
		QuotaBytes: quotaBytes,
	}
	for _, c := range model.AllCategories {
		summary.Categories[c] = model.CategoryUsage{}
	}

	for _, rec := range items {
		cat := rec.Category
		if !cat.Valid() {
			cat = model.CategoryOther
		}

		u := summary.Categories[cat]
		u.SizeBytes += rec.SizeBytes
		if u.LatestModifiedAt == nil || !rec.UpdatedAt.Before(*u.LatestModifiedAt) {
			ts := rec.UpdatedAt
			u.LatestModifiedAt = &ts
		}
		summary.Categories[cat] = u
		summary.Used += rec.SizeBytes
	}

	return summary
}
