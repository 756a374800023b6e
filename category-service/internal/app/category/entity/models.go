package entity

import (
	"time"
)

// Уровни дерева категорий. Дерево всегда трехуровневое.
const (
	LevelTop    = 0 // Категория верхнего уровня (без родителя)
	LevelSecond = 1 // Подкатегория
	LevelLeaf   = 2 // Листовая категория, не может иметь дочерних

	// NoParent - значение ParentID для категорий верхнего уровня
	NoParent uint64 = 0
)

// Category представляет категорию товаров в трехуровневом дереве
type Category struct {
	ID          uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Name        string    `json:"name" gorm:"type:varchar(100);not null;uniqueIndex"` // Уникально среди всех категорий
	Level       int       `json:"level" gorm:"not null;index;check:level BETWEEN 0 AND 2"`
	ParentID    uint64    `json:"parent_id" gorm:"not null;default:0;index"` // 0 для категорий верхнего уровня
	Description string    `json:"description" gorm:"type:text"`
	ImageURL    string    `json:"image_url" gorm:"type:varchar(500)"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы для GORM
func (Category) TableName() string {
	return "categories"
}

// IsLeaf сообщает, что категория находится на нижнем уровне и не может иметь дочерних
func (c *Category) IsLeaf() bool {
	return c.Level == LevelLeaf
}

// ApplyPatch переносит в категорию только явно переданные поля.
// ID и CreatedAt не изменяются никогда.
func (c *Category) ApplyPatch(req *UpdateCategoryRequest) {
	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Level != nil {
		c.Level = *req.Level
	}
	if req.ParentID != nil {
		c.ParentID = *req.ParentID
	}
	if req.Description != nil {
		c.Description = *req.Description
	}
	if req.ImageURL != nil {
		c.ImageURL = *req.ImageURL
	}
}

// ValidLevel проверяет, что уровень входит в {0, 1, 2}
func ValidLevel(level int) bool {
	return level >= LevelTop && level <= LevelLeaf
}

// Типы событий об изменении категорий
const (
	EventCategoryCreated = "CATEGORY_CREATED"
	EventCategoryUpdated = "CATEGORY_UPDATED"
	EventCategoryDeleted = "CATEGORY_DELETED"
)

// CategoryEvent представляет событие изменения категории для Kafka
type CategoryEvent struct {
	EventType  string    `json:"event_type"` // CATEGORY_CREATED, CATEGORY_UPDATED, CATEGORY_DELETED
	CategoryID uint64    `json:"category_id"`
	Name       string    `json:"name"`
	Level      int       `json:"level"`
	ParentID   uint64    `json:"parent_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewCategoryEvent собирает событие из текущего состояния категории
func NewCategoryEvent(eventType string, c *Category) CategoryEvent {
	return CategoryEvent{
		EventType:  eventType,
		CategoryID: c.ID,
		Name:       c.Name,
		Level:      c.Level,
		ParentID:   c.ParentID,
		Timestamp:  time.Now(),
	}
}
