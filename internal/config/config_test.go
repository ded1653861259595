package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"FV_DB_HOST":          "localhost",
		"FV_DB_NAME":          "filevault",
		"FV_DB_USER":          "filevault",
		"FV_DB_PASSWORD":      "secret",
		"FV_MINIO_ENDPOINT":   "minio.local:9000",
		"FV_MINIO_ACCESS_KEY": "minio",
		"FV_MINIO_SECRET_KEY": "minio-secret",
		"FV_JWT_JWKS_URL":     "https://idp.local/certs",
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8040 {
		t.Errorf("Port = %d, ожидается 8040", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	if cfg.MinioBucket != "filevault" {
		t.Errorf("MinioBucket = %q, ожидается filevault", cfg.MinioBucket)
	}
	if cfg.PublicBaseURL != "http://minio.local:9000" {
		t.Errorf("PublicBaseURL = %q, ожидается http://minio.local:9000", cfg.PublicBaseURL)
	}
	if cfg.QuotaBytes != 2*1024*1024*1024 {
		t.Errorf("QuotaBytes = %d, ожидается 2 GiB", cfg.QuotaBytes)
	}
	if cfg.MaxUploadSize != 50*1024*1024 {
		t.Errorf("MaxUploadSize = %d, ожидается 50 MiB", cfg.MaxUploadSize)
	}
	if cfg.DBMaxConns != 10 {
		t.Errorf("DBMaxConns = %d, ожидается 10", cfg.DBMaxConns)
	}
	if cfg.UsagePageSize != 10000 {
		t.Errorf("UsagePageSize = %d, ожидается 10000", cfg.UsagePageSize)
	}
	if cfg.ActionSessionTTL != 15*time.Minute {
		t.Errorf("ActionSessionTTL = %v, ожидается 15m", cfg.ActionSessionTTL)
	}
	if cfg.AMQPURL != "" {
		t.Errorf("AMQPURL = %q, ожидается пустая строка (события отключены)", cfg.AMQPURL)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	required := []string{
		"FV_DB_HOST", "FV_DB_NAME", "FV_DB_USER", "FV_DB_PASSWORD",
		"FV_MINIO_ENDPOINT", "FV_MINIO_ACCESS_KEY", "FV_MINIO_SECRET_KEY",
		"FV_JWT_JWKS_URL",
	}

	for _, key := range required {
		t.Run(key, func(t *testing.T) {
			envs := minimalEnvs()
			delete(envs, key)
			setEnvs(t, envs)
			t.Setenv(key, "")

			_, err := Load()
			if err == nil {
				t.Fatalf("ожидалась ошибка при отсутствии %s", key)
			}
			if !strings.Contains(err.Error(), key) {
				t.Errorf("ошибка %q не содержит имя переменной %s", err.Error(), key)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"порт не число", "FV_PORT", "abc"},
		{"порт вне диапазона", "FV_PORT", "70000"},
		{"неизвестный уровень логов", "FV_LOG_LEVEL", "trace"},
		{"неизвестный формат логов", "FV_LOG_FORMAT", "xml"},
		{"неизвестный ssl mode", "FV_DB_SSL_MODE", "prefer"},
		{"пул без соединений", "FV_DB_MAX_CONNS", "0"},
		{"endpoint со схемой", "FV_MINIO_ENDPOINT", "http://minio:9000"},
		{"квота ноль", "FV_QUOTA_BYTES", "0"},
		{"лимит загрузки отрицательный", "FV_MAX_UPLOAD_SIZE", "-1"},
		{"page size вне диапазона", "FV_USAGE_PAGE_SIZE", "0"},
		{"некорректная длительность", "FV_ACTION_SESSION_TTL", "10"},
		{"некорректный bool", "FV_MINIO_USE_SSL", "yes"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setEnvs(t, minimalEnvs())
			t.Setenv(tc.key, tc.val)

			if _, err := Load(); err == nil {
				t.Fatalf("ожидалась ошибка для %s=%q", tc.key, tc.val)
			}
		})
	}
}

func TestLoad_PublicBaseURLFromSSL(t *testing.T) {
	setEnvs(t, minimalEnvs())
	t.Setenv("FV_MINIO_USE_SSL", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.PublicBaseURL != "https://minio.local:9000" {
		t.Errorf("PublicBaseURL = %q, ожидается https://minio.local:9000", cfg.PublicBaseURL)
	}
	if cfg.MinioURL() != "https://minio.local:9000" {
		t.Errorf("MinioURL() = %q", cfg.MinioURL())
	}
}

func TestLoad_PublicBaseURLTrailingSlash(t *testing.T) {
	setEnvs(t, minimalEnvs())
	t.Setenv("FV_PUBLIC_BASE_URL", "https://cdn.example.com/files/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.PublicBaseURL != "https://cdn.example.com/files" {
		t.Errorf("PublicBaseURL = %q, trailing slash должен быть убран", cfg.PublicBaseURL)
	}
}

func TestDatabaseURL(t *testing.T) {
	cfg := &Config{
		DBHost: "db", DBPort: 5433, DBName: "fv",
		DBUser: "user", DBPassword: "p@ss", DBSSLMode: "disable",
	}
	got := cfg.DatabaseURL()
	want := "postgres://user:p%40ss@db:5433/fv?sslmode=disable"
	if got != want {
		t.Errorf("DatabaseURL() = %q, ожидается %q", got, want)
	}
}
