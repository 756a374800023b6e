package entity

type CreateCategoryRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Level       *int   `json:"level" validate:"required,min=0,max=2"`
	ParentID    uint64 `json:"parent_id"`
	Description string `json:"description" validate:"omitempty,max=2000"`
	ImageURL    string `json:"image_url" validate:"omitempty,url,max=500"`
}

// UpdateCategoryRequest - частичное обновление: nil означает "не менять"
type UpdateCategoryRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=100"`
	Level       *int    `json:"level" validate:"omitempty,min=0,max=2"`
	ParentID    *uint64 `json:"parent_id"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	ImageURL    *string `json:"image_url" validate:"omitempty,url,max=500"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type CategoryListResponse struct {
	Categories []Category `json:"categories"`
	Total      int        `json:"total"`
}
