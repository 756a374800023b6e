package util

import (
	"context"
)

// Cache интерфейс кеша с пространствами имен (namespace).
// EvictAll сбрасывает все ключи namespace одной операцией.
// Используется для dependency injection и упрощения тестирования
type Cache interface {
	// Get читает значение в dest. Возвращает поколение namespace,
	// в котором искал, и false при промахе.
	Get(ctx context.Context, namespace, key string, dest interface{}) (int64, bool, error)
	// Put пишет значение в поколение, полученное от Get
	Put(ctx context.Context, namespace, key string, gen int64, value interface{}) error
	EvictAll(ctx context.Context, namespace string) error
	Close() error
}

// MessagePublisher интерфейс для отправки сообщений в очередь (Kafka)
// Используется для dependency injection и упрощения тестирования
type MessagePublisher interface {
	PublishMessage(ctx context.Context, key string, value []byte) error
	Close() error
}
