package processor

import (
	"context"
	"time"

	"augustberries/category-service/internal/app/category/service"
	"augustberries/pkg/logger"
	"augustberries/pkg/metrics"

	"github.com/robfig/cron/v3"
)

// warmTimeout ограничивает один прогрев, чтобы зависший Redis или БД
// не блокировали следующие запуски
const warmTimeout = 30 * time.Second

// CacheWarmer по расписанию прогревает кеш списков категорий
type CacheWarmer struct {
	cron   *cron.Cron
	warmer service.CacheWarmer
}

func NewCacheWarmer(warmer service.CacheWarmer) *CacheWarmer {
	c := cron.New(
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
	)

	return &CacheWarmer{
		cron:   c,
		warmer: warmer,
	}
}

// Start регистрирует задачу и сразу выполняет первый прогрев.
// Ошибка первого прогрева не останавливает планировщик.
func (w *CacheWarmer) Start(ctx context.Context, schedule string) error {
	logger.Info().Str("schedule", schedule).Msg("Starting cache warmer")

	if _, err := w.cron.AddFunc(schedule, func() { w.warm(ctx, "scheduled") }); err != nil {
		return err
	}

	w.cron.Start()
	w.warm(ctx, "initial")

	return nil
}

// Stop останавливает планировщик и ждет завершения текущего прогрева
func (w *CacheWarmer) Stop() {
	logger.Info().Msg("Stopping cache warmer...")
	<-w.cron.Stop().Done()
	logger.Info().Msg("Cache warmer stopped")
}

func (w *CacheWarmer) Entries() []cron.Entry {
	return w.cron.Entries()
}

func (w *CacheWarmer) warm(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, warmTimeout)
	defer cancel()

	start := time.Now()
	err := w.warmer.WarmCache(runCtx)
	metrics.RecordCacheWarmup(err)

	if err != nil {
		logger.Warn().Err(err).Str("trigger", trigger).Msg("Cache warm-up failed")
		return
	}

	logger.Debug().
		Str("trigger", trigger).
		Dur("duration", time.Since(start)).
		Msg("Cache warm-up completed")
}

// cronLogger направляет внутренние сообщения cron в zerolog
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
