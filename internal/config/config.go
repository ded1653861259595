// Пакет config — загрузка и валидация конфигурации filevault
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Значения по умолчанию, совпадающие с исходными лимитами сервиса.
const (
	// DefaultQuotaBytes — квота аккаунта (2 GiB).
	DefaultQuotaBytes int64 = 2 * 1024 * 1024 * 1024
	// DefaultMaxUploadSize — максимальный размер одного файла (50 MiB).
	DefaultMaxUploadSize int64 = 50 * 1024 * 1024
	// DefaultUsagePageSize — верхняя граница числа записей при подсчёте usage.
	DefaultUsagePageSize = 10000
)

// Config содержит все параметры конфигурации filevault.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- PostgreSQL (metadata store) ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальный размер пула соединений
	DBMaxConns int

	// --- MinIO (object store) ---

	// Адрес MinIO без схемы (host:port)
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	// Использовать TLS при подключении к MinIO
	MinioUseSSL bool
	// Бакет для пользовательских файлов
	MinioBucket string
	// Регион бакета (используется при создании)
	MinioRegion string
	// Публичный базовый URL, из которого строятся ссылки на файлы
	PublicBaseURL string

	// --- JWT (Identity Provider) ---

	// URL JWKS endpoint
	JWTJWKSURL string
	// Ожидаемый issuer (пустой — не проверяется)
	JWTIssuer string
	// Допустимое отклонение времени при проверке exp/nbf
	JWTLeeway time.Duration
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration

	// --- Бизнес-лимиты ---

	// Квота аккаунта в байтах
	QuotaBytes int64
	// Максимальный размер загружаемого файла
	MaxUploadSize int64
	// Размер страницы выборки при подсчёте usage
	UsagePageSize int

	// --- Сессии действий (ActionStateMachine на сервере) ---

	// Время жизни неактивной сессии диалога
	ActionSessionTTL time.Duration
	// Максимальное количество одновременных сессий
	ActionSessionMax int

	// --- RabbitMQ (события изменений) ---

	// URL AMQP (пустой — события отключены)
	AMQPURL string
	// Имя topic exchange для событий
	AMQPExchange string

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
	DephealthIsEntry       bool

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
//
//nolint:gocyclo,funlen // линейная загрузка переменных
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// FV_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("FV_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("FV_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("FV_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FV_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FV_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("FV_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FV_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("FV_HTTP_READ_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("FV_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("FV_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("FV_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("FV_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("FV_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("FV_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("FV_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("FV_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("FV_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("FV_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBMaxConns, err = getEnvInt("FV_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("FV_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("FV_DB_MAX_CONNS: значение должно быть положительным, получено %d", cfg.DBMaxConns)
	}

	// --- MinIO ---

	cfg.MinioEndpoint, err = getEnvRequired("FV_MINIO_ENDPOINT")
	if err != nil {
		return nil, err
	}
	if strings.Contains(cfg.MinioEndpoint, "://") {
		return nil, fmt.Errorf("FV_MINIO_ENDPOINT: ожидается host:port без схемы, получено %q", cfg.MinioEndpoint)
	}
	cfg.MinioAccessKey, err = getEnvRequired("FV_MINIO_ACCESS_KEY")
	if err != nil {
		return nil, err
	}
	cfg.MinioSecretKey, err = getEnvRequired("FV_MINIO_SECRET_KEY")
	if err != nil {
		return nil, err
	}
	cfg.MinioUseSSL, err = getEnvBool("FV_MINIO_USE_SSL", false)
	if err != nil {
		return nil, fmt.Errorf("FV_MINIO_USE_SSL: %w", err)
	}
	cfg.MinioBucket = getEnvDefault("FV_MINIO_BUCKET", "filevault")
	cfg.MinioRegion = getEnvDefault("FV_MINIO_REGION", "us-east-1")

	// FV_PUBLIC_BASE_URL — по умолчанию строится из адреса MinIO
	scheme := "http"
	if cfg.MinioUseSSL {
		scheme = "https"
	}
	cfg.PublicBaseURL = strings.TrimRight(
		getEnvDefault("FV_PUBLIC_BASE_URL", fmt.Sprintf("%s://%s", scheme, cfg.MinioEndpoint)), "/")
	if _, err := url.ParseRequestURI(cfg.PublicBaseURL); err != nil {
		return nil, fmt.Errorf("FV_PUBLIC_BASE_URL: некорректный URL %q", cfg.PublicBaseURL)
	}

	// --- JWT ---

	cfg.JWTJWKSURL, err = getEnvRequired("FV_JWT_JWKS_URL")
	if err != nil {
		return nil, err
	}
	cfg.JWTIssuer = getEnvDefault("FV_JWT_ISSUER", "")
	cfg.JWTLeeway, err = getEnvDuration("FV_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("FV_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FV_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWKSClientTimeout, err = getEnvDuration("FV_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// --- Бизнес-лимиты ---

	cfg.QuotaBytes, err = getEnvInt64("FV_QUOTA_BYTES", DefaultQuotaBytes)
	if err != nil {
		return nil, fmt.Errorf("FV_QUOTA_BYTES: %w", err)
	}
	if cfg.QuotaBytes <= 0 {
		return nil, fmt.Errorf("FV_QUOTA_BYTES: значение должно быть > 0")
	}

	cfg.MaxUploadSize, err = getEnvInt64("FV_MAX_UPLOAD_SIZE", DefaultMaxUploadSize)
	if err != nil {
		return nil, fmt.Errorf("FV_MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("FV_MAX_UPLOAD_SIZE: значение должно быть > 0")
	}

	cfg.UsagePageSize, err = getEnvInt("FV_USAGE_PAGE_SIZE", DefaultUsagePageSize)
	if err != nil {
		return nil, fmt.Errorf("FV_USAGE_PAGE_SIZE: %w", err)
	}
	if cfg.UsagePageSize < 1 || cfg.UsagePageSize > 100000 {
		return nil, fmt.Errorf("FV_USAGE_PAGE_SIZE: значение %d вне допустимого диапазона 1-100000", cfg.UsagePageSize)
	}

	// --- Сессии действий ---

	cfg.ActionSessionTTL, err = getEnvDuration("FV_ACTION_SESSION_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FV_ACTION_SESSION_TTL: %w", err)
	}
	cfg.ActionSessionMax, err = getEnvInt("FV_ACTION_SESSION_MAX", 10000)
	if err != nil {
		return nil, fmt.Errorf("FV_ACTION_SESSION_MAX: %w", err)
	}
	if cfg.ActionSessionMax < 1 {
		return nil, fmt.Errorf("FV_ACTION_SESSION_MAX: значение должно быть > 0")
	}

	// --- RabbitMQ ---

	cfg.AMQPURL = getEnvDefault("FV_AMQP_URL", "")
	cfg.AMQPExchange = getEnvDefault("FV_AMQP_EXCHANGE", "filevault.events")

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("FV_DEPHEALTH_GROUP", "filevault")
	cfg.DephealthCheckInterval, err = getEnvDuration("FV_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthIsEntry, err = getEnvBool("DEPHEALTH_ISENTRY", false)
	if err != nil {
		return nil, fmt.Errorf("DEPHEALTH_ISENTRY: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("FV_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// MinioURL возвращает URL MinIO со схемой.
func (c *Config) MinioURL() string {
	if c.MinioUseSSL {
		return "https://" + c.MinioEndpoint
	}
	return "http://" + c.MinioEndpoint
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 — как getEnvInt, для размеров в байтах.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
