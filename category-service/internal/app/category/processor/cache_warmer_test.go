package processor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockCacheWarmer мок для service.CacheWarmer
type MockCacheWarmer struct {
	mock.Mock
	calls atomic.Int32
}

func (m *MockCacheWarmer) WarmCache(ctx context.Context) error {
	m.calls.Add(1)
	args := m.Called(ctx)
	return args.Error(0)
}

// ===================== NewCacheWarmer Tests =====================

func TestNewCacheWarmer(t *testing.T) {
	mockSvc := new(MockCacheWarmer)

	warmer := NewCacheWarmer(mockSvc)

	assert.NotNil(t, warmer)
	assert.NotNil(t, warmer.cron)
	assert.Empty(t, warmer.Entries())
}

// ===================== Start Tests =====================

func TestCacheWarmer_Start_Success(t *testing.T) {
	mockSvc := new(MockCacheWarmer)
	warmer := NewCacheWarmer(mockSvc)

	// Первый прогрев при старте
	mockSvc.On("WarmCache", mock.Anything).Return(nil)

	err := warmer.Start(context.Background(), "*/10 * * * *")

	assert.NoError(t, err)
	assert.Len(t, warmer.Entries(), 1)
	assert.Equal(t, int32(1), mockSvc.calls.Load())

	warmer.Stop()
	mockSvc.AssertExpectations(t)
}

func TestCacheWarmer_Start_InvalidSchedule(t *testing.T) {
	mockSvc := new(MockCacheWarmer)
	warmer := NewCacheWarmer(mockSvc)

	err := warmer.Start(context.Background(), "invalid cron expression")

	assert.Error(t, err)
	mockSvc.AssertNotCalled(t, "WarmCache", mock.Anything)
}

func TestCacheWarmer_Start_InitialWarmupError_ContinuesWork(t *testing.T) {
	mockSvc := new(MockCacheWarmer)
	warmer := NewCacheWarmer(mockSvc)

	mockSvc.On("WarmCache", mock.Anything).Return(errors.New("redis unavailable"))

	err := warmer.Start(context.Background(), "*/10 * * * *")

	assert.NoError(t, err)
	assert.Len(t, warmer.Entries(), 1)

	warmer.Stop()
}

func TestCacheWarmer_WarmupHasDeadline(t *testing.T) {
	mockSvc := new(MockCacheWarmer)
	warmer := NewCacheWarmer(mockSvc)

	mockSvc.On("WarmCache", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	})).Return(nil)

	assert.NoError(t, warmer.Start(context.Background(), "@hourly"))
	warmer.Stop()

	mockSvc.AssertExpectations(t)
}

// ===================== Job Execution Tests =====================

func TestCacheWarmer_JobExecution(t *testing.T) {
	mockSvc := new(MockCacheWarmer)
	warmer := NewCacheWarmer(mockSvc)

	mockSvc.On("WarmCache", mock.Anything).Return(nil)

	// @every для быстрого теста
	err := warmer.Start(context.Background(), "@every 1s")
	assert.NoError(t, err)

	time.Sleep(2500 * time.Millisecond)
	warmer.Stop()

	// initial + минимум один запуск по расписанию
	assert.GreaterOrEqual(t, mockSvc.calls.Load(), int32(2))
}

func TestCacheWarmer_JobExecution_WithError(t *testing.T) {
	mockSvc := new(MockCacheWarmer)
	warmer := NewCacheWarmer(mockSvc)

	mockSvc.On("WarmCache", mock.Anything).Return(errors.New("db error"))

	err := warmer.Start(context.Background(), "@every 1s")
	assert.NoError(t, err)

	time.Sleep(2500 * time.Millisecond)
	warmer.Stop()

	// Несмотря на ошибки, запуски продолжаются
	assert.GreaterOrEqual(t, mockSvc.calls.Load(), int32(2))
}

// ===================== Context Cancellation Tests =====================

func TestCacheWarmer_CancelledContext_SkipsWarmup(t *testing.T) {
	mockSvc := new(MockCacheWarmer)
	warmer := NewCacheWarmer(mockSvc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := warmer.Start(ctx, "*/10 * * * *")
	warmer.Stop()

	assert.NoError(t, err)
	assert.Equal(t, int32(0), mockSvc.calls.Load())
}
