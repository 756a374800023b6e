package repository

import (
	"context"
	"errors"

	"augustberries/category-service/internal/app/category/entity"
)

var (
	ErrCategoryNotFound      = errors.New("category not found")
	ErrCategoryAlreadyExists = errors.New("category with this name already exists")
)

// CategoryRepository - постоянное хранилище категорий.
// Источник истины для уникальности имени (UNIQUE индекс).
type CategoryRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.Category, error)
	FindByName(ctx context.Context, name string) (*entity.Category, error)
	FindByLevel(ctx context.Context, level int) ([]entity.Category, error)
	FindByParentID(ctx context.Context, parentID uint64) ([]entity.Category, error)
	FindAll(ctx context.Context) ([]entity.Category, error)
	Save(ctx context.Context, category *entity.Category) error
	DeleteByID(ctx context.Context, id uint64) error
}
