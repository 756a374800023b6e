package service

import "errors"

var (
	ErrCategoryNotFound      = errors.New("category not found")
	ErrCategoryAlreadyExists = errors.New("category with this name already exists")
	ErrCategoryLevelIsLowest = errors.New("category is on the lowest level and has no children")
	ErrCategoryHasChildren   = errors.New("category has child categories")
	ErrInvalidLevel          = errors.New("category level must be 0, 1 or 2")
	ErrInvalidParent         = errors.New("category cannot be its own parent")
)
