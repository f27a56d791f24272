// Пакет service — сервисы Catalog Module поверх движка ресурсов:
// строковое представление библиографических записей с LRU-кэшем
// и мониторинг зависимостей.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/catalog-module/internal/catalog"
	"github.com/bigkaa/goartstore/catalog-module/internal/marc"
	"github.com/bigkaa/goartstore/catalog-module/internal/resource"
	"github.com/bigkaa/goartstore/catalog-module/internal/store"
)

// Prometheus-метрики кэша.
var (
	marcCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_marc_cache_hits_total",
		Help: "Общее количество попаданий в кэш строкового представления MARC.",
	})
	marcCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_marc_cache_misses_total",
		Help: "Общее количество промахов кэша строкового представления MARC.",
	})
)

// MARCCache — LRU-кэш закодированных записей с автоматическим TTL.
// Ключ включает updatedAt экземпляра: изменение документа
// делает старую запись недостижимой.
type MARCCache struct {
	cache *expirable.LRU[string, string]
}

// NewMARCCache создаёт кэш с указанным максимальным размером и TTL.
func NewMARCCache(maxSize int, ttl time.Duration) *MARCCache {
	return &MARCCache{cache: expirable.NewLRU[string, string](maxSize, nil, ttl)}
}

// Get возвращает текст из кэша. Обновляет метрики hit/miss.
func (c *MARCCache) Get(key string) (string, bool) {
	val, ok := c.cache.Get(key)
	if ok {
		marcCacheHitsTotal.Inc()
		return val, true
	}
	marcCacheMissesTotal.Inc()
	return "", false
}

// Set добавляет или обновляет запись в кэше.
func (c *MARCCache) Set(key, text string) {
	c.cache.Add(key, text)
}

// Len возвращает количество записей в кэше.
func (c *MARCCache) Len() int {
	return c.cache.Len()
}

// MARCService отдаёт библиографическую запись экземпляра
// в структурированном и строковом виде.
type MARCService struct {
	items  *resource.Engine
	cache  *MARCCache
	logger *slog.Logger
}

// NewMARCService создаёт сервис поверх движка коллекции items.
func NewMARCService(items *resource.Engine, cache *MARCCache, logger *slog.Logger) *MARCService {
	return &MARCService{
		items:  items,
		cache:  cache,
		logger: logger.With(slog.String("component", "marc_service")),
	}
}

// Record возвращает структурированную запись экземпляра.
// Ошибки — *resource.Error (400, 404, 500).
func (s *MARCService) Record(ctx context.Context, id string) (marc.Record, error) {
	item, err := s.items.Get(ctx, id)
	if err != nil {
		return marc.Record{}, err
	}
	rec, err := catalog.RecordOf(item)
	if err != nil {
		return marc.Record{}, resource.Internal(err)
	}
	return rec, nil
}

// Text возвращает запись экземпляра в строковом формате.
func (s *MARCService) Text(ctx context.Context, id string) (string, error) {
	item, err := s.items.Get(ctx, id)
	if err != nil {
		return "", err
	}

	key := cacheKey(item)
	if text, ok := s.cache.Get(key); ok {
		return text, nil
	}

	rec, err := catalog.RecordOf(item)
	if err != nil {
		return "", resource.Internal(err)
	}
	text, err := marc.Encode(rec)
	if err != nil {
		s.logger.Error("Ошибка кодирования записи",
			slog.String("item_id", store.Document(item).String(resource.FieldID)),
			slog.String("error", err.Error()),
		)
		return "", resource.Internal(fmt.Errorf("кодирование записи: %w", err))
	}

	s.cache.Set(key, text)
	return text, nil
}

// cacheKey — идентификатор экземпляра и время его последнего изменения.
func cacheKey(item map[string]any) string {
	doc := store.Document(item)
	return doc.String(resource.FieldID) + ":" + doc.Time(store.FieldUpdatedAt).Format(time.RFC3339Nano)
}
