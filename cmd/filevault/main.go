// main.go — точка входа filevault.
// Порядок: config → logger → PostgreSQL (+миграции) → MinIO → RabbitMQ →
// сервисы → topologymetrics → handlers → middleware → HTTP-сервер.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/filevault/internal/api/handlers"
	"github.com/bigkaa/filevault/internal/api/middleware"
	"github.com/bigkaa/filevault/internal/api/openapi"
	"github.com/bigkaa/filevault/internal/config"
	"github.com/bigkaa/filevault/internal/database"
	"github.com/bigkaa/filevault/internal/events"
	"github.com/bigkaa/filevault/internal/objectstore"
	"github.com/bigkaa/filevault/internal/repository"
	"github.com/bigkaa/filevault/internal/server"
	"github.com/bigkaa/filevault/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("filevault запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	ctx := context.Background()

	// 3. PostgreSQL: миграции и пул соединений
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций", slog.String("error", err.Error()))
		os.Exit(1)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4. MinIO
	store, err := objectstore.NewMinioStore(objectstore.Options{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		UseSSL:    cfg.MinioUseSSL,
		Bucket:    cfg.MinioBucket,
		Region:    cfg.MinioRegion,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента MinIO", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		logger.Error("Бакет MinIO недоступен",
			slog.String("bucket", cfg.MinioBucket),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// 5. RabbitMQ — события изменений (опционально)
	var notifier events.Notifier = events.Noop{}
	var publisher *events.Publisher
	if cfg.AMQPURL != "" {
		publisher, err = events.Dial(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Warn("RabbitMQ недоступен, события отключены", slog.String("error", err.Error()))
		} else {
			notifier = publisher
			defer func() { _ = publisher.Close() }()
		}
	}

	// 6. Сервисы
	repo := repository.NewFileRepository(pool)
	storageSvc := service.NewStorageService(repo, store, notifier, service.StorageConfig{
		Bucket:        cfg.MinioBucket,
		PublicBaseURL: cfg.PublicBaseURL,
		MaxUploadSize: cfg.MaxUploadSize,
	}, logger)
	usageSvc := service.NewUsageService(repo, cfg.QuotaBytes, cfg.UsagePageSize, logger)
	actionRegistry := service.NewActionRegistry(storageSvc, cfg.ActionSessionMax, cfg.ActionSessionTTL, logger)

	// 7. topologymetrics — мониторинг зависимостей
	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "filevault",
		Group:         cfg.DephealthGroup,
		DB:            stdlib.OpenDBFromPool(pool),
		PgURL:         cfg.DatabaseURL(),
		MinioURL:      cfg.MinioURL(),
		JWKSURL:       cfg.JWTJWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
		IsEntry:       cfg.DephealthIsEntry,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 8. Handlers
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), store)
	healthHandler.AddOptional("idp", middleware.NewIdPReadinessChecker(cfg.JWTJWKSURL, cfg.JWKSClientTimeout))
	if publisher != nil {
		healthHandler.AddOptional("rabbitmq", publisher)
	}

	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		storageSvc,
		usageSvc,
		actionRegistry,
		cfg.MaxUploadSize,
		logger,
	)

	// 9. Middleware: метрики → логирование → JWT → валидация запроса
	swagger, err := openapi.GetSwagger()
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI-документа", slog.String("error", err.Error()))
		os.Exit(1)
	}
	validator, err := openapi.Validator(swagger, logger)
	if err != nil {
		logger.Error("Ошибка создания валидатора запросов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		cfg.JWTIssuer,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка инициализации JWT", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT аутентификация настроена", slog.String("jwks_url", cfg.JWTJWKSURL))

	middlewares := []func(http.Handler) http.Handler{
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
		server.JWTAuthWithExclusions(jwtAuth.Middleware(), "/health/", "/metrics"),
		validator,
	}

	// 10. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, apiHandler, middlewares...)
	runErr := srv.Run(ctx)

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		os.Exit(1)
	}

	logger.Info("filevault остановлен")
}
