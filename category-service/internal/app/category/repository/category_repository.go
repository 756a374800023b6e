package repository

import (
	"context"
	"errors"
	"fmt"

	"augustberries/category-service/internal/app/category/entity"
	"augustberries/pkg/metrics"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	serviceName   = "category-service"
	categoryTable = "categories"

	pgUniqueViolation = "23505"
)

type categoryRepository struct {
	db *gorm.DB // GORM DB для работы с PostgreSQL
}

// NewCategoryRepository создает новый репозиторий категорий
func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

// FindByID получает категорию по ID из PostgreSQL
func (r *categoryRepository) FindByID(ctx context.Context, id uint64) (*entity.Category, error) {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpSelect, categoryTable)
	defer timer.ObserveDuration()

	var category entity.Category
	result := r.db.WithContext(ctx).First(&category, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		metrics.RecordDbError(serviceName, metrics.DbOpSelect)
		return nil, fmt.Errorf("failed to get category by id: %w", result.Error)
	}

	return &category, nil
}

// FindByName получает категорию по точному имени
func (r *categoryRepository) FindByName(ctx context.Context, name string) (*entity.Category, error) {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpSelect, categoryTable)
	defer timer.ObserveDuration()

	var category entity.Category
	result := r.db.WithContext(ctx).Where("name = ?", name).First(&category)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrCategoryNotFound
		}
		metrics.RecordDbError(serviceName, metrics.DbOpSelect)
		return nil, fmt.Errorf("failed to get category by name: %w", result.Error)
	}

	return &category, nil
}

// FindByLevel получает все категории указанного уровня
func (r *categoryRepository) FindByLevel(ctx context.Context, level int) ([]entity.Category, error) {
	return r.findWhere(ctx, "by level", "level = ?", level)
}

// FindByParentID получает прямых потомков категории
func (r *categoryRepository) FindByParentID(ctx context.Context, parentID uint64) ([]entity.Category, error) {
	return r.findWhere(ctx, "by parent", "parent_id = ?", parentID)
}

// FindAll получает все категории
func (r *categoryRepository) FindAll(ctx context.Context) ([]entity.Category, error) {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpSelect, categoryTable)
	defer timer.ObserveDuration()

	categories := make([]entity.Category, 0)
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&categories).Error; err != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpSelect)
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}

	return categories, nil
}

func (r *categoryRepository) findWhere(ctx context.Context, what, query string, arg interface{}) ([]entity.Category, error) {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpSelect, categoryTable)
	defer timer.ObserveDuration()

	categories := make([]entity.Category, 0)
	err := r.db.WithContext(ctx).
		Where(query, arg).
		Order("id ASC").
		Find(&categories).Error
	if err != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpSelect)
		return nil, fmt.Errorf("failed to get categories %s: %w", what, err)
	}

	return categories, nil
}

// Save создает категорию (ID == 0) или обновляет существующую.
// Уникальность имени гарантирует UNIQUE индекс, нарушение возвращается как ErrCategoryAlreadyExists.
func (r *categoryRepository) Save(ctx context.Context, category *entity.Category) error {
	if category.ID == 0 {
		return r.create(ctx, category)
	}

	timer := metrics.NewDbTimer(serviceName, metrics.DbOpUpdate, categoryTable)
	defer timer.ObserveDuration()

	result := r.db.WithContext(ctx).Model(category).
		Where("id = ?", category.ID).
		Updates(map[string]interface{}{
			"name":        category.Name,
			"level":       category.Level,
			"parent_id":   category.ParentID,
			"description": category.Description,
			"image_url":   category.ImageURL,
		})

	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return ErrCategoryAlreadyExists
		}
		metrics.RecordDbError(serviceName, metrics.DbOpUpdate)
		return fmt.Errorf("failed to update category: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrCategoryNotFound
	}

	return nil
}

func (r *categoryRepository) create(ctx context.Context, category *entity.Category) error {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpInsert, categoryTable)
	defer timer.ObserveDuration()

	if err := r.db.WithContext(ctx).Create(category).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrCategoryAlreadyExists
		}
		metrics.RecordDbError(serviceName, metrics.DbOpInsert)
		return fmt.Errorf("failed to create category: %w", err)
	}

	return nil
}

// DeleteByID удаляет категорию из PostgreSQL
func (r *categoryRepository) DeleteByID(ctx context.Context, id uint64) error {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpDelete, categoryTable)
	defer timer.ObserveDuration()

	result := r.db.WithContext(ctx).Delete(&entity.Category{}, "id = ?", id)
	if result.Error != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpDelete)
		return fmt.Errorf("failed to delete category: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrCategoryNotFound
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
