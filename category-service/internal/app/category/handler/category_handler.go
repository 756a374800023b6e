package handler

import (
	"errors"
	"net/http"
	"strconv"

	"augustberries/category-service/internal/app/category/entity"
	"augustberries/category-service/internal/app/category/service"
	"augustberries/pkg/logger"
	"augustberries/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// CategoryHandler обрабатывает HTTP запросы для дерева категорий с использованием Gin
type CategoryHandler struct {
	categoryService service.CategoryServiceInterface
	validator       *validator.Validate
}

// NewCategoryHandler создает новый обработчик категорий
func NewCategoryHandler(categoryService service.CategoryServiceInterface) *CategoryHandler {
	return &CategoryHandler{
		categoryService: categoryService,
		validator:       validator.New(),
	}
}

// === WRITES ===

// CreateCategory обрабатывает POST /categories
func (h *CategoryHandler) CreateCategory(c *gin.Context) {
	var req entity.CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": formatValidationError(err)})
		return
	}

	category, err := h.categoryService.CreateCategory(c.Request.Context(), &req)
	if err != nil {
		h.respondServiceError(c, err, "Failed to create category")
		return
	}

	metrics.RecordCategoryWrite("create")
	c.JSON(http.StatusCreated, category)
}

// UpdateCategory обрабатывает PUT /categories/:id
// Меняются только переданные поля
func (h *CategoryHandler) UpdateCategory(c *gin.Context) {
	id, ok := parseCategoryID(c)
	if !ok {
		return
	}

	var req entity.UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": formatValidationError(err)})
		return
	}

	category, err := h.categoryService.UpdateCategory(c.Request.Context(), id, &req)
	if err != nil {
		h.respondServiceError(c, err, "Failed to update category")
		return
	}

	metrics.RecordCategoryWrite("update")
	c.JSON(http.StatusOK, category)
}

// DeleteCategory обрабатывает DELETE /categories/:id
func (h *CategoryHandler) DeleteCategory(c *gin.Context) {
	id, ok := parseCategoryID(c)
	if !ok {
		return
	}

	if err := h.categoryService.DeleteCategory(c.Request.Context(), id); err != nil {
		h.respondServiceError(c, err, "Failed to delete category")
		return
	}

	metrics.RecordCategoryWrite("delete")
	c.JSON(http.StatusOK, entity.SuccessResponse{Message: "Category deleted successfully"})
}

// === READS ===

// GetCategory обрабатывает GET /categories/:id
func (h *CategoryHandler) GetCategory(c *gin.Context) {
	id, ok := parseCategoryID(c)
	if !ok {
		return
	}

	category, err := h.categoryService.GetCategory(c.Request.Context(), id)
	if err != nil {
		h.respondServiceError(c, err, "Failed to get category")
		return
	}

	c.JSON(http.StatusOK, category)
}

// GetCategoryByName обрабатывает GET /categories/name/:name
func (h *CategoryHandler) GetCategoryByName(c *gin.Context) {
	category, err := h.categoryService.GetCategoryByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.respondServiceError(c, err, "Failed to get category")
		return
	}

	c.JSON(http.StatusOK, category)
}

// GetCategoriesByLevel обрабатывает GET /categories/level/:level
func (h *CategoryHandler) GetCategoriesByLevel(c *gin.Context) {
	level, err := strconv.Atoi(c.Param("level"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category level"})
		return
	}

	categories, err := h.categoryService.GetCategoriesByLevel(c.Request.Context(), level)
	if err != nil {
		h.respondServiceError(c, err, "Failed to get categories")
		return
	}

	respondList(c, categories)
}

// GetAllCategories обрабатывает GET /categories
func (h *CategoryHandler) GetAllCategories(c *gin.Context) {
	categories, err := h.categoryService.GetAllCategories(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err, "Failed to get categories")
		return
	}

	respondList(c, categories)
}

// GetChildCategories обрабатывает GET /categories/:id/children
func (h *CategoryHandler) GetChildCategories(c *gin.Context) {
	id, ok := parseCategoryID(c)
	if !ok {
		return
	}

	children, err := h.categoryService.GetChildCategories(c.Request.Context(), id)
	if err != nil {
		h.respondServiceError(c, err, "Failed to get child categories")
		return
	}

	respondList(c, children)
}

// === HELPERS ===

// respondServiceError переводит доменную ошибку в HTTP статус.
// Неизвестные ошибки логируются и отдаются как 500 с общим сообщением.
func (h *CategoryHandler) respondServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrCategoryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
	case errors.Is(err, service.ErrCategoryAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrCategoryHasChildren):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrCategoryLevelIsLowest):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidLevel), errors.Is(err, service.ErrInvalidParent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg(fallback)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func parseCategoryID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category ID"})
		return 0, false
	}
	return id, true
}

func respondList(c *gin.Context, categories []entity.Category) {
	if categories == nil {
		categories = []entity.Category{}
	}
	c.JSON(http.StatusOK, entity.CategoryListResponse{
		Categories: categories,
		Total:      len(categories),
	})
}

func formatValidationError(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		return validationErrors[0].Field() + " validation failed"
	}
	return "Validation failed"
}
