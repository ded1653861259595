// logging.go — журнал HTTP-запросов filevault через slog.
// Запись делается после ответа; caller_id заполняет JWT middleware,
// выполняющийся глубже по цепочке.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// requestInfo — данные запроса, которые внутренние middleware сообщают логгеру.
type requestInfo struct {
	callerID string
}

type requestInfoKey struct{}

// noteCaller сохраняет идентификатор вызывающего для записи журнала.
func noteCaller(ctx context.Context, callerID string) {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		info.callerID = callerID
	}
}

// statusRecorder перехватывает статус и размер ответа.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += int64(n)
	return n, err
}

// Unwrap — для http.ResponseController.
func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// RequestLogger возвращает middleware журнала запросов.
// Уровень: DEBUG для /health/ и /metrics, иначе INFO, WARN (4xx), ERROR (5xx).
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "http"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			info := &requestInfo{}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.bytes),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if info.callerID != "" {
				attrs = append(attrs, slog.String("caller_id", info.callerID))
			}

			logger.LogAttrs(r.Context(), requestLevel(r.URL.Path, rec.status), "HTTP запрос", attrs...)
		})
	}
}

func requestLevel(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case strings.HasPrefix(path, "/health/") || path == "/metrics":
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
