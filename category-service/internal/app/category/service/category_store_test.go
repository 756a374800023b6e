package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"augustberries/category-service/internal/app/category/entity"
	"augustberries/category-service/internal/app/category/repository"
	"augustberries/category-service/internal/app/category/util"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// memoryCategoryRepository - CategoryRepository в памяти.
// Как и БД, отдает копии строк и следит за уникальностью имени.
type memoryCategoryRepository struct {
	mu     sync.Mutex
	rows   map[uint64]entity.Category
	nextID uint64
	reads  int
}

func newMemoryCategoryRepository() *memoryCategoryRepository {
	return &memoryCategoryRepository{rows: make(map[uint64]entity.Category), nextID: 1}
}

func (r *memoryCategoryRepository) FindByID(_ context.Context, id uint64) (*entity.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++

	row, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrCategoryNotFound
	}
	return &row, nil
}

func (r *memoryCategoryRepository) FindByName(_ context.Context, name string) (*entity.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++

	for _, row := range r.rows {
		if row.Name == name {
			return &row, nil
		}
	}
	return nil, repository.ErrCategoryNotFound
}

func (r *memoryCategoryRepository) FindByLevel(_ context.Context, level int) ([]entity.Category, error) {
	return r.filter(func(c entity.Category) bool { return c.Level == level }), nil
}

func (r *memoryCategoryRepository) FindByParentID(_ context.Context, parentID uint64) ([]entity.Category, error) {
	return r.filter(func(c entity.Category) bool { return c.ParentID == parentID }), nil
}

func (r *memoryCategoryRepository) FindAll(_ context.Context) ([]entity.Category, error) {
	return r.filter(func(entity.Category) bool { return true }), nil
}

func (r *memoryCategoryRepository) filter(match func(entity.Category) bool) []entity.Category {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++

	result := make([]entity.Category, 0)
	for _, row := range r.rows {
		if match(row) {
			result = append(result, row)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (r *memoryCategoryRepository) Save(_ context.Context, category *entity.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, row := range r.rows {
		if row.Name == category.Name && id != category.ID {
			return repository.ErrCategoryAlreadyExists
		}
	}

	if category.ID == 0 {
		category.ID = r.nextID
		r.nextID++
		category.CreatedAt = time.Now().UTC()
	} else if _, ok := r.rows[category.ID]; !ok {
		return repository.ErrCategoryNotFound
	}

	category.UpdatedAt = time.Now().UTC()
	r.rows[category.ID] = *category
	return nil
}

func (r *memoryCategoryRepository) DeleteByID(_ context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[id]; !ok {
		return repository.ErrCategoryNotFound
	}
	delete(r.rows, id)
	return nil
}

// insert кладет строку с заданным ID в обход сервиса
func (r *memoryCategoryRepository) insert(c entity.Category) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rows[c.ID] = c
	if c.ID >= r.nextID {
		r.nextID = c.ID + 1
	}
}

func (r *memoryCategoryRepository) readCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

// CategoryStoreTestSuite проверяет согласованность кеша и хранилища
// на настоящем Redis протоколе (miniredis)
type CategoryStoreTestSuite struct {
	suite.Suite
	miniRedis *miniredis.Miniredis
	client    *redis.Client
	repo      *memoryCategoryRepository
	service   *CategoryService
	ctx       context.Context
}

func TestCategoryStoreSuite(t *testing.T) {
	suite.Run(t, new(CategoryStoreTestSuite))
}

func (s *CategoryStoreTestSuite) SetupSuite() {
	var err error
	s.miniRedis, err = miniredis.Run()
	require.NoError(s.T(), err)

	s.client = redis.NewClient(&redis.Options{
		Addr: s.miniRedis.Addr(),
	})
	s.ctx = context.Background()
}

func (s *CategoryStoreTestSuite) SetupTest() {
	s.miniRedis.FlushAll()
	s.repo = newMemoryCategoryRepository()
	s.service = NewCategoryService(s.repo, util.NewRedisCache(s.client, "test", time.Hour), nil)
}

func (s *CategoryStoreTestSuite) TearDownSuite() {
	s.client.Close()
	s.miniRedis.Close()
}

func (s *CategoryStoreTestSuite) create(name string, level int, parentID uint64) *entity.Category {
	category, err := s.service.CreateCategory(s.ctx, &entity.CreateCategoryRequest{
		Name:     name,
		Level:    &level,
		ParentID: parentID,
	})
	s.Require().NoError(err)
	return category
}

// ===================== Scenarios =====================

func (s *CategoryStoreTestSuite) TestScenario_CreateRenameDelete() {
	created := s.create("Phones", entity.LevelTop, entity.NoParent)
	s.Equal(uint64(1), created.ID)

	byName, err := s.service.GetCategoryByName(s.ctx, "Phones")
	s.Require().NoError(err)
	s.Equal(uint64(1), byName.ID)

	_, err = s.service.CreateCategory(s.ctx, &entity.CreateCategoryRequest{Name: "Phones", Level: intPtr(entity.LevelTop)})
	s.ErrorIs(err, ErrCategoryAlreadyExists)

	_, err = s.service.UpdateCategory(s.ctx, 1, &entity.UpdateCategoryRequest{Name: strPtr("Mobile Phones")})
	s.Require().NoError(err)

	byID, err := s.service.GetCategory(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal("Mobile Phones", byID.Name)

	s.Require().NoError(s.service.DeleteCategory(s.ctx, 1))

	_, err = s.service.GetCategory(s.ctx, 1)
	s.ErrorIs(err, ErrCategoryNotFound)
}

func (s *CategoryStoreTestSuite) TestScenario_ChildrenOfLeaf() {
	s.repo.insert(entity.Category{ID: 10, Name: "Electronics", Level: entity.LevelTop})

	children, err := s.service.GetChildCategories(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(children)

	chip := s.create("Chip", entity.LevelLeaf, 10)
	s.Equal(uint64(11), chip.ID)

	_, err = s.service.GetChildCategories(s.ctx, 11)
	s.ErrorIs(err, ErrCategoryLevelIsLowest)

	// Дочерний список родителя видит новую категорию
	children, err = s.service.GetChildCategories(s.ctx, 10)
	s.Require().NoError(err)
	s.Len(children, 1)
}

// ===================== Properties =====================

func (s *CategoryStoreTestSuite) TestDuplicateCreate_DoesNotTouchStoreOrCache() {
	s.create("Books", entity.LevelTop, entity.NoParent)

	before, err := s.service.GetAllCategories(s.ctx)
	s.Require().NoError(err)
	readsBefore := s.repo.readCount()

	_, err = s.service.CreateCategory(s.ctx, &entity.CreateCategoryRequest{Name: "Books", Level: intPtr(entity.LevelSecond)})
	s.ErrorIs(err, ErrCategoryAlreadyExists)

	after, err := s.service.GetAllCategories(s.ctx)
	s.Require().NoError(err)
	s.Equal(before, after)
	// Один FindByName в проверке дубликата, список отдан из кеша
	s.Equal(readsBefore+1, s.repo.readCount())
}

func (s *CategoryStoreTestSuite) TestCreate_VisibleInCollections() {
	s.create("Electronics", entity.LevelTop, entity.NoParent)

	// Прогреваем кеш списков
	all, err := s.service.GetAllCategories(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
	second, err := s.service.GetCategoriesByLevel(s.ctx, entity.LevelSecond)
	s.Require().NoError(err)
	s.Empty(second)

	laptops := s.create("Laptops", entity.LevelSecond, 1)

	all, err = s.service.GetAllCategories(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 2)

	second, err = s.service.GetCategoriesByLevel(s.ctx, entity.LevelSecond)
	s.Require().NoError(err)
	s.Require().Len(second, 1)
	s.Equal(laptops.ID, second[0].ID)

	byID, err := s.service.GetCategory(s.ctx, laptops.ID)
	s.Require().NoError(err)
	s.Equal("Laptops", byID.Name)
}

func (s *CategoryStoreTestSuite) TestRename_InvalidatesNameLookups() {
	s.create("Phones", entity.LevelTop, entity.NoParent)

	// Кешируем поиск по старому имени
	_, err := s.service.GetCategoryByName(s.ctx, "Phones")
	s.Require().NoError(err)

	_, err = s.service.UpdateCategory(s.ctx, 1, &entity.UpdateCategoryRequest{Name: strPtr("Smartphones")})
	s.Require().NoError(err)

	_, err = s.service.GetCategoryByName(s.ctx, "Phones")
	s.ErrorIs(err, ErrCategoryNotFound)

	renamed, err := s.service.GetCategoryByName(s.ctx, "Smartphones")
	s.Require().NoError(err)
	s.Equal(uint64(1), renamed.ID)
}

func (s *CategoryStoreTestSuite) TestUpdate_PatchesOnlyGivenFields() {
	created, err := s.service.CreateCategory(s.ctx, &entity.CreateCategoryRequest{
		Name:        "Garden",
		Level:       intPtr(entity.LevelTop),
		Description: "Everything for the garden",
	})
	s.Require().NoError(err)

	// Кешируем старую версию
	_, err = s.service.GetCategory(s.ctx, created.ID)
	s.Require().NoError(err)

	_, err = s.service.UpdateCategory(s.ctx, created.ID, &entity.UpdateCategoryRequest{ImageURL: strPtr("https://cdn.example.com/garden.png")})
	s.Require().NoError(err)

	got, err := s.service.GetCategory(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(created.ID, got.ID)
	s.Equal("Garden", got.Name)
	s.Equal("Everything for the garden", got.Description)
	s.Equal("https://cdn.example.com/garden.png", got.ImageURL)
}

func (s *CategoryStoreTestSuite) TestUpdate_NotFoundChangesNothing() {
	s.create("Toys", entity.LevelTop, entity.NoParent)

	_, err := s.service.UpdateCategory(s.ctx, 99, &entity.UpdateCategoryRequest{Name: strPtr("Games")})
	s.ErrorIs(err, ErrCategoryNotFound)

	all, err := s.service.GetAllCategories(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal("Toys", all[0].Name)
}

func (s *CategoryStoreTestSuite) TestDelete_NotFound() {
	s.ErrorIs(s.service.DeleteCategory(s.ctx, 5), ErrCategoryNotFound)
}

func (s *CategoryStoreTestSuite) TestDelete_RemovesFromCachedCollections() {
	s.create("Music", entity.LevelTop, entity.NoParent)

	all, err := s.service.GetAllCategories(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
	_, err = s.service.GetCategory(s.ctx, 1)
	s.Require().NoError(err)

	s.Require().NoError(s.service.DeleteCategory(s.ctx, 1))

	all, err = s.service.GetAllCategories(s.ctx)
	s.Require().NoError(err)
	s.Empty(all)
	_, err = s.service.GetCategory(s.ctx, 1)
	s.ErrorIs(err, ErrCategoryNotFound)
}

func (s *CategoryStoreTestSuite) TestDelete_ParentWithChildrenForbidden() {
	parent := s.create("Sports", entity.LevelTop, entity.NoParent)
	s.create("Bikes", entity.LevelSecond, parent.ID)

	s.ErrorIs(s.service.DeleteCategory(s.ctx, parent.ID), ErrCategoryHasChildren)

	_, err := s.service.GetCategory(s.ctx, parent.ID)
	s.NoError(err)
}

func (s *CategoryStoreTestSuite) TestLeaf_WithMatchingRowsStillLowest() {
	// Строка ссылается на листовую категорию в обход сервиса
	s.repo.insert(entity.Category{ID: 1, Name: "Leaf", Level: entity.LevelLeaf, ParentID: 0})
	s.repo.insert(entity.Category{ID: 2, Name: "Orphan", Level: entity.LevelLeaf, ParentID: 1})

	_, err := s.service.GetChildCategories(s.ctx, 1)
	s.ErrorIs(err, ErrCategoryLevelIsLowest)
}

func (s *CategoryStoreTestSuite) TestChildren_NotFound() {
	_, err := s.service.GetChildCategories(s.ctx, 404)
	s.ErrorIs(err, ErrCategoryNotFound)
}

func (s *CategoryStoreTestSuite) TestCreate_UnderLeafRejected() {
	s.repo.insert(entity.Category{ID: 10, Name: "Electronics", Level: entity.LevelTop})
	chip := s.create("Chip", entity.LevelLeaf, 10)

	_, err := s.service.CreateCategory(s.ctx, &entity.CreateCategoryRequest{
		Name:     "UnderLeaf",
		Level:    intPtr(entity.LevelLeaf),
		ParentID: chip.ID,
	})
	s.ErrorIs(err, ErrCategoryLevelIsLowest)

	// Лист по-прежнему без потомков и удаляется
	_, err = s.service.GetCategoryByName(s.ctx, "UnderLeaf")
	s.ErrorIs(err, ErrCategoryNotFound)
	s.NoError(s.service.DeleteCategory(s.ctx, chip.ID))
}

func (s *CategoryStoreTestSuite) TestCreate_MissingParentRejected() {
	_, err := s.service.CreateCategory(s.ctx, &entity.CreateCategoryRequest{
		Name:     "Orphan",
		Level:    intPtr(entity.LevelSecond),
		ParentID: 999,
	})
	s.ErrorIs(err, ErrCategoryNotFound)

	all, err := s.service.GetAllCategories(s.ctx)
	s.Require().NoError(err)
	s.Empty(all)
}

func (s *CategoryStoreTestSuite) TestUpdate_ReparentOntoLeafRejected() {
	s.create("Electronics", entity.LevelTop, entity.NoParent)
	s.create("Books", entity.LevelTop, entity.NoParent)
	chip := s.create("Chip", entity.LevelLeaf, 1)

	_, err := s.service.UpdateCategory(s.ctx, 2, &entity.UpdateCategoryRequest{ParentID: uintPtr(chip.ID)})
	s.ErrorIs(err, ErrCategoryLevelIsLowest)

	_, err = s.service.UpdateCategory(s.ctx, 2, &entity.UpdateCategoryRequest{ParentID: uintPtr(404)})
	s.ErrorIs(err, ErrCategoryNotFound)

	books, err := s.service.GetCategory(s.ctx, 2)
	s.Require().NoError(err)
	s.Equal(entity.NoParent, books.ParentID)
}

func (s *CategoryStoreTestSuite) TestUpdate_SelfParentRejected() {
	s.create("Electronics", entity.LevelTop, entity.NoParent)

	_, err := s.service.UpdateCategory(s.ctx, 1, &entity.UpdateCategoryRequest{ParentID: uintPtr(1)})
	s.ErrorIs(err, ErrInvalidParent)
}

func (s *CategoryStoreTestSuite) TestUpdate_ReparentOntoNonLeaf() {
	s.create("Electronics", entity.LevelTop, entity.NoParent)
	s.create("Computers", entity.LevelTop, entity.NoParent)
	s.create("Laptops", entity.LevelSecond, 1)

	_, err := s.service.UpdateCategory(s.ctx, 3, &entity.UpdateCategoryRequest{ParentID: uintPtr(2)})
	s.Require().NoError(err)

	children, err := s.service.GetChildCategories(s.ctx, 2)
	s.Require().NoError(err)
	s.Len(children, 1)
	s.Equal("Laptops", children[0].Name)
}

func (s *CategoryStoreTestSuite) TestReads_Idempotent() {
	parent := s.create("Home", entity.LevelTop, entity.NoParent)
	s.create("Kitchen", entity.LevelSecond, parent.ID)

	type read func() (interface{}, error)
	reads := map[string]read{
		"by id":    func() (interface{}, error) { return s.service.GetCategory(s.ctx, parent.ID) },
		"by name":  func() (interface{}, error) { return s.service.GetCategoryByName(s.ctx, "Kitchen") },
		"by level": func() (interface{}, error) { return s.service.GetCategoriesByLevel(s.ctx, entity.LevelSecond) },
		"all":      func() (interface{}, error) { return s.service.GetAllCategories(s.ctx) },
		"children": func() (interface{}, error) { return s.service.GetChildCategories(s.ctx, parent.ID) },
	}

	for name, fn := range reads {
		first, err := fn()
		s.Require().NoError(err, name)
		readsAfterFirst := s.repo.readCount()

		second, err := fn()
		s.Require().NoError(err, name)

		s.Equal(first, second, name)
		s.Equal(readsAfterFirst, s.repo.readCount(), "second %s read must be served from cache", name)
	}
}

func (s *CategoryStoreTestSuite) TestRedisOutage_WriteSucceedsAndReadsStayFresh() {
	s.create("Pets", entity.LevelTop, entity.NoParent)
	_, err := s.service.GetAllCategories(s.ctx)
	s.Require().NoError(err)

	s.miniRedis.SetError("LOADING Redis is loading the dataset in memory")
	s.create("Cats", entity.LevelSecond, 1)
	s.miniRedis.SetError("")

	// Сброс повторяется при следующем чтении, старый список не отдается
	all, err := s.service.GetAllCategories(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 2)
	s.False(s.service.degraded.Load())
}
