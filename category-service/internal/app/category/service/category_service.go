package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"augustberries/category-service/internal/app/category/entity"
	"augustberries/category-service/internal/app/category/repository"
	"augustberries/category-service/internal/app/category/util"
	"augustberries/pkg/logger"
	"augustberries/pkg/metrics"
)

// CategoryService управляет деревом категорий.
// Координирует PostgreSQL репозиторий, Redis кеш и Kafka producer.
//
// Чтения идут через кеш (read-through), записи сначала фиксируются в БД,
// затем сбрасывают кеш согласно CachePolicy и только после этого возвращаются.
type CategoryService struct {
	categoryRepo repository.CategoryRepository // Репозиторий категорий в PostgreSQL
	cache        util.Cache                    // Кеш результатов чтения
	publisher    util.MessagePublisher         // Producer для событий о категориях, может быть nil
	policy       CachePolicy

	// degraded выставляется, если сброс кеша после записи не удался.
	// Пока флаг стоит, чтения обходят кеш, а каждый вызов повторяет сброс.
	degraded atomic.Bool
}

// NewCategoryService создает сервис категорий с политикой кеширования по умолчанию
func NewCategoryService(
	categoryRepo repository.CategoryRepository,
	cache util.Cache,
	publisher util.MessagePublisher,
) *CategoryService {
	return &CategoryService{
		categoryRepo: categoryRepo,
		cache:        cache,
		publisher:    publisher,
		policy:       DefaultCachePolicy(),
	}
}

// WithCachePolicy заменяет политику кеширования
func (s *CategoryService) WithCachePolicy(policy CachePolicy) *CategoryService {
	s.policy = policy
	return s
}

// === WRITES ===

// CreateCategory создает новую категорию.
// Имя должно быть уникальным: предварительная проверка + UNIQUE индекс в БД.
func (s *CategoryService) CreateCategory(ctx context.Context, req *entity.CreateCategoryRequest) (*entity.Category, error) {
	if req.Level == nil || !entity.ValidLevel(*req.Level) {
		return nil, ErrInvalidLevel
	}

	if err := s.ensureValidParent(ctx, req.ParentID, 0); err != nil {
		return nil, err
	}

	if err := s.ensureNameFree(ctx, req.Name, 0); err != nil {
		return nil, err
	}

	category := &entity.Category{
		Name:        req.Name,
		Level:       *req.Level,
		ParentID:    req.ParentID,
		Description: req.Description,
		ImageURL:    req.ImageURL,
	}

	if err := s.categoryRepo.Save(ctx, category); err != nil {
		// Гонка между проверкой и вставкой закрывается UNIQUE индексом
		if errors.Is(err, repository.ErrCategoryAlreadyExists) {
			return nil, ErrCategoryAlreadyExists
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}

	s.invalidate(ctx, OpCreate)
	s.publishCategoryEvent(ctx, entity.EventCategoryCreated, category)

	return category, nil
}

// UpdateCategory обновляет только переданные поля категории, ID не меняется.
// Переименование в уже занятое имя запрещено.
func (s *CategoryService) UpdateCategory(ctx context.Context, id uint64, req *entity.UpdateCategoryRequest) (*entity.Category, error) {
	// Предусловия проверяем по БД, а не по кешу
	category, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Level != nil && !entity.ValidLevel(*req.Level) {
		return nil, ErrInvalidLevel
	}

	if req.ParentID != nil && *req.ParentID != category.ParentID {
		if err := s.ensureValidParent(ctx, *req.ParentID, category.ID); err != nil {
			return nil, err
		}
	}

	if req.Name != nil && *req.Name != category.Name {
		if err := s.ensureNameFree(ctx, *req.Name, category.ID); err != nil {
			return nil, err
		}
	}

	// Листовая категория не может иметь дочерних
	if req.Level != nil && *req.Level == entity.LevelLeaf && !category.IsLeaf() {
		if err := s.ensureNoChildren(ctx, category.ID); err != nil {
			return nil, err
		}
	}

	category.ApplyPatch(req)

	if err := s.categoryRepo.Save(ctx, category); err != nil {
		switch {
		case errors.Is(err, repository.ErrCategoryNotFound):
			return nil, ErrCategoryNotFound
		case errors.Is(err, repository.ErrCategoryAlreadyExists):
			return nil, ErrCategoryAlreadyExists
		}
		return nil, fmt.Errorf("failed to update category: %w", err)
	}

	s.invalidate(ctx, OpUpdate)
	s.publishCategoryEvent(ctx, entity.EventCategoryUpdated, category)

	return category, nil
}

// DeleteCategory удаляет категорию.
// Категорию с дочерними удалить нельзя, иначе потомки останутся без родителя.
func (s *CategoryService) DeleteCategory(ctx context.Context, id uint64) error {
	category, err := s.findByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.ensureNoChildren(ctx, id); err != nil {
		return err
	}

	if err := s.categoryRepo.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return ErrCategoryNotFound
		}
		return fmt.Errorf("failed to delete category: %w", err)
	}

	s.invalidate(ctx, OpDelete)
	s.publishCategoryEvent(ctx, entity.EventCategoryDeleted, category)

	return nil
}

// === READS ===

// GetCategory получает категорию по ID
func (s *CategoryService) GetCategory(ctx context.Context, id uint64) (*entity.Category, error) {
	return readThrough(ctx, s, OpGetByID, id, func(ctx context.Context) (*entity.Category, error) {
		return s.findByID(ctx, id)
	})
}

// GetCategoryByName получает категорию по точному имени
func (s *CategoryService) GetCategoryByName(ctx context.Context, name string) (*entity.Category, error) {
	return readThrough(ctx, s, OpGetByName, name, func(ctx context.Context) (*entity.Category, error) {
		category, err := s.categoryRepo.FindByName(ctx, name)
		if err != nil {
			if errors.Is(err, repository.ErrCategoryNotFound) {
				return nil, ErrCategoryNotFound
			}
			return nil, fmt.Errorf("failed to get category by name: %w", err)
		}
		return category, nil
	})
}

// GetCategoriesByLevel получает все категории уровня 0, 1 или 2
func (s *CategoryService) GetCategoriesByLevel(ctx context.Context, level int) ([]entity.Category, error) {
	if !entity.ValidLevel(level) {
		return nil, ErrInvalidLevel
	}

	return readThrough(ctx, s, OpListByLevel, level, func(ctx context.Context) ([]entity.Category, error) {
		categories, err := s.categoryRepo.FindByLevel(ctx, level)
		if err != nil {
			return nil, fmt.Errorf("failed to get categories by level: %w", err)
		}
		return categories, nil
	})
}

// GetAllCategories получает все категории
func (s *CategoryService) GetAllCategories(ctx context.Context) ([]entity.Category, error) {
	return readThrough(ctx, s, OpListAll, nil, func(ctx context.Context) ([]entity.Category, error) {
		categories, err := s.categoryRepo.FindAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get categories: %w", err)
		}
		return categories, nil
	})
}

// GetChildCategories получает прямых потомков категории.
// Для листовой категории всегда возвращает ErrCategoryLevelIsLowest.
func (s *CategoryService) GetChildCategories(ctx context.Context, id uint64) ([]entity.Category, error) {
	return readThrough(ctx, s, OpListChildren, id, func(ctx context.Context) ([]entity.Category, error) {
		category, err := s.findByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if category.IsLeaf() {
			return nil, ErrCategoryLevelIsLowest
		}

		children, err := s.categoryRepo.FindByParentID(ctx, category.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get child categories: %w", err)
		}
		return children, nil
	})
}

// WarmCache заполняет кеш списков: все категории и каждый уровень
func (s *CategoryService) WarmCache(ctx context.Context) error {
	var errs []error

	if _, err := s.GetAllCategories(ctx); err != nil {
		errs = append(errs, err)
	}
	for level := entity.LevelTop; level <= entity.LevelLeaf; level++ {
		if _, err := s.GetCategoriesByLevel(ctx, level); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// === HELPERS ===

// readThrough возвращает значение из кеша, а при промахе загружает его
// через load и кладет в кеш под тем поколением, которое видел Get:
// если между промахом и записью namespace сбросили, значение останется невидимым.
// Ошибки load не кешируются.
// Сбой кеша на чтении не прерывает запрос: данные берутся из БД.
func readThrough[T any](ctx context.Context, s *CategoryService, op Operation, arg interface{}, load func(context.Context) (T, error)) (T, error) {
	namespace, key, cacheable := s.policy.Key(op, arg)
	useCache := cacheable && s.cacheUsable(ctx)
	var generation int64

	if useCache {
		var cached T
		gen, hit, err := s.cache.Get(ctx, namespace, key, &cached)
		if err != nil {
			// Поколение неизвестно, результат загрузки не кешируем
			logger.Warn().Err(err).
				Str("namespace", namespace).
				Str("key", key).
				Msg("Cache read failed, falling back to database")
			useCache = false
		} else if hit {
			return cached, nil
		}
		generation = gen
	}

	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if useCache {
		if err := s.cache.Put(ctx, namespace, key, generation, value); err != nil {
			logger.Warn().Err(err).
				Str("namespace", namespace).
				Str("key", key).
				Msg("Failed to cache value")
		}
	}

	return value, nil
}

// cacheUsable сообщает, можно ли пользоваться кешем.
// В деградированном режиме сначала повторяет отложенный сброс.
func (s *CategoryService) cacheUsable(ctx context.Context) bool {
	if !s.degraded.Load() {
		return true
	}
	return s.evict(ctx, s.policy.Namespaces())
}

// invalidate сбрасывает namespace после зафиксированной записи.
// Отмена контекста запроса не должна помешать сбросу.
func (s *CategoryService) invalidate(ctx context.Context, op Operation) {
	namespaces := s.policy.EvictionsFor(op)
	if s.degraded.Load() {
		namespaces = s.policy.Namespaces()
	}
	s.evict(context.WithoutCancel(ctx), namespaces)
}

func (s *CategoryService) evict(ctx context.Context, namespaces []string) bool {
	var errs []error
	for _, ns := range namespaces {
		err := s.cache.EvictAll(ctx, ns)
		metrics.RecordCacheInvalidation(ns, err)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		if !s.degraded.Swap(true) {
			metrics.SetCacheDegraded(true)
			logger.Error().Err(err).
				Strs("namespaces", namespaces).
				Msg("Cache invalidation failed, bypassing cache until it succeeds")
		}
		return false
	}

	if s.degraded.Swap(false) {
		metrics.SetCacheDegraded(false)
		logger.Info().Msg("Cache invalidation recovered, cache enabled again")
	}
	return true
}

func (s *CategoryService) findByID(ctx context.Context, id uint64) (*entity.Category, error) {
	category, err := s.categoryRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return category, nil
}

// ensureValidParent проверяет, что родитель существует и не является листом.
// selfID - ID изменяемой категории (0 при создании).
func (s *CategoryService) ensureValidParent(ctx context.Context, parentID, selfID uint64) error {
	if parentID == entity.NoParent {
		return nil
	}
	if parentID == selfID {
		return ErrInvalidParent
	}

	parent, err := s.findByID(ctx, parentID)
	if err != nil {
		return err
	}
	if parent.IsLeaf() {
		return ErrCategoryLevelIsLowest
	}
	return nil
}

// ensureNameFree проверяет, что имя не занято другой категорией (ownerID - допустимый владелец)
func (s *CategoryService) ensureNameFree(ctx context.Context, name string, ownerID uint64) error {
	existing, err := s.categoryRepo.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return nil
		}
		return fmt.Errorf("failed to check category name: %w", err)
	}
	if existing.ID != ownerID {
		return ErrCategoryAlreadyExists
	}
	return nil
}

func (s *CategoryService) ensureNoChildren(ctx context.Context, id uint64) error {
	children, err := s.categoryRepo.FindByParentID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check child categories: %w", err)
	}
	if len(children) > 0 {
		return ErrCategoryHasChildren
	}
	return nil
}

// publishCategoryEvent отправляет событие в Kafka.
// Запись уже зафиксирована, поэтому ошибка только логируется.
func (s *CategoryService) publishCategoryEvent(ctx context.Context, eventType string, category *entity.Category) {
	if s.publisher == nil {
		return
	}

	event := entity.NewCategoryEvent(eventType, category)
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Msg("Failed to marshal category event")
		return
	}

	if err := s.publisher.PublishMessage(ctx, strconv.FormatUint(category.ID, 10), data); err != nil {
		logger.Warn().Err(err).
			Str("event_type", eventType).
			Uint64("category_id", category.ID).
			Msg("Failed to publish category event")
	}
}
