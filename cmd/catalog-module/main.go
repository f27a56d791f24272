// Точка входа Catalog Module — сервис библиотечного каталога.
// Загружает конфигурацию, подготавливает хранилище документов
// (PostgreSQL с миграциями или in-memory), строит движки коллекций
// admins, checkouts, items, patrons, запускает topologymetrics
// и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/catalog-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/catalog-module/internal/catalog"
	"github.com/bigkaa/goartstore/catalog-module/internal/config"
	"github.com/bigkaa/goartstore/catalog-module/internal/database"
	"github.com/bigkaa/goartstore/catalog-module/internal/schema"
	"github.com/bigkaa/goartstore/catalog-module/internal/server"
	"github.com/bigkaa/goartstore/catalog-module/internal/service"
	"github.com/bigkaa/goartstore/catalog-module/internal/store"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Catalog Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage", cfg.Storage),
	)

	ctx := context.Background()

	// 3. Хранилище документов
	var (
		st      store.Store
		checker handlers.ReadinessChecker
	)
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("Используется хранилище в памяти, данные не сохраняются между рестартами")
		memStore := store.NewMemoryStore()
		st, checker = memStore, memStore

	default:
		// 3.1 Применение миграций БД
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
			os.Exit(1)
		}

		// 3.2 Подключение к PostgreSQL (pgxpool)
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		st = store.NewPostgresStore(pool)
		checker = database.NewReadinessChecker(pool)

		// 3.3 topologymetrics — мониторинг PostgreSQL через существующий пул
		pgDB := stdlib.OpenDBFromPool(pool)
		defer pgDB.Close()

		dephealthSvc, dephealthErr := service.NewDephealthService(
			"catalog-module",
			cfg.DephealthGroup,
			pgDB,
			cfg.DatabaseURL(),
			cfg.DephealthCheckInterval,
			logger,
		)
		if dephealthErr != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", dephealthErr.Error()),
			)
		} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			defer dephealthSvc.Stop()
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 4. Схемы типов записей
	reg, err := schema.Load()
	if err != nil {
		logger.Error("Ошибка загрузки схем", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Движки коллекций и обработчики
	engines, err := catalog.NewEngines(reg, st, logger)
	if err != nil {
		logger.Error("Ошибка создания движков коллекций", slog.String("error", err.Error()))
		os.Exit(1)
	}

	h := server.Handlers{Health: handlers.NewHealthHandler(checker, cfg.Storage)}
	for _, e := range engines {
		h.Resources = append(h.Resources, handlers.NewResourceHandler(e, logger))

		// 5.1 Представления библиографической записи с кэшем строкового формата
		if e.Name() == catalog.Items {
			cache := service.NewMARCCache(cfg.MARCCacheSize, cfg.MARCCacheTTL)
			h.MARC = handlers.NewMARCHandler(service.NewMARCService(e, cache, logger), logger)
		}
	}

	// 6. Запуск HTTP-сервера
	srv := server.New(cfg, logger, h)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
