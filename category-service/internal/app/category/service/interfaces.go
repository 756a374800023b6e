package service

import (
	"context"

	"augustberries/category-service/internal/app/category/entity"
)

type CategoryServiceInterface interface {
	CreateCategory(ctx context.Context, req *entity.CreateCategoryRequest) (*entity.Category, error)
	UpdateCategory(ctx context.Context, id uint64, req *entity.UpdateCategoryRequest) (*entity.Category, error)
	DeleteCategory(ctx context.Context, id uint64) error

	GetCategory(ctx context.Context, id uint64) (*entity.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*entity.Category, error)
	GetCategoriesByLevel(ctx context.Context, level int) ([]entity.Category, error)
	GetAllCategories(ctx context.Context) ([]entity.Category, error)
	GetChildCategories(ctx context.Context, id uint64) ([]entity.Category, error)
}

// CacheWarmer прогревает кеш списков категорий
type CacheWarmer interface {
	WarmCache(ctx context.Context) error
}
