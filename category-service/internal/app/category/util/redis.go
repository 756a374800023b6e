package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"augustberries/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

const serviceName = "category-service"

// RedisCache реализует Cache поверх Redis.
//
// Каждый namespace версионируется счетчиком поколений:
//
//	<prefix>:<namespace>:gen          - текущее поколение
//	<prefix>:<namespace>:<gen>:<key>  - значение
//
// EvictAll атомарно увеличивает счетчик (INCR), после чего все ранее
// записанные ключи namespace становятся невидимыми и истекают по TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration // TTL для закешированных значений
}

// NewRedisClient создает клиент Redis и проверяет соединение через ping
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// NewRedisCache создает кеш поверх готового клиента
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Get читает значение текущего поколения namespace и возвращает это поколение.
// Его нужно передать в Put, чтобы запись не пережила сброс, случившийся после чтения.
func (r *RedisCache) Get(ctx context.Context, namespace, key string, dest interface{}) (int64, bool, error) {
	gen, err := r.generation(ctx, namespace)
	if err != nil {
		return 0, false, err
	}

	timer := metrics.NewRedisTimer(serviceName, metrics.RedisOpGet)
	data, err := r.client.Get(ctx, r.entryKey(namespace, gen, key)).Bytes()
	timer.ObserveDuration()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.RecordCacheMiss(serviceName, namespace)
			return gen, false, nil
		}
		metrics.RecordRedisError(serviceName, metrics.RedisOpGet)
		return gen, false, fmt.Errorf("failed to get %s/%s from cache: %w", namespace, key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return gen, false, fmt.Errorf("failed to unmarshal %s/%s: %w", namespace, key, err)
	}

	metrics.RecordCacheHit(serviceName, namespace)
	return gen, true, nil
}

// Put записывает значение в поколение gen. Счетчик заново не читается:
// если поколение уже устарело, запись невидима и истечет по TTL.
func (r *RedisCache) Put(ctx context.Context, namespace, key string, gen int64, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", namespace, key, err)
	}

	timer := metrics.NewRedisTimer(serviceName, metrics.RedisOpSet)
	defer timer.ObserveDuration()

	if err := r.client.Set(ctx, r.entryKey(namespace, gen, key), data, r.ttl).Err(); err != nil {
		metrics.RecordRedisError(serviceName, metrics.RedisOpSet)
		return fmt.Errorf("failed to set %s/%s in cache: %w", namespace, key, err)
	}

	return nil
}

// EvictAll делает невидимыми все ключи namespace
func (r *RedisCache) EvictAll(ctx context.Context, namespace string) error {
	timer := metrics.NewRedisTimer(serviceName, metrics.RedisOpIncr)
	defer timer.ObserveDuration()

	if err := r.client.Incr(ctx, r.genKey(namespace)).Err(); err != nil {
		metrics.RecordRedisError(serviceName, metrics.RedisOpIncr)
		return fmt.Errorf("failed to evict namespace %s: %w", namespace, err)
	}

	return nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) generation(ctx context.Context, namespace string) (int64, error) {
	gen, err := r.client.Get(ctx, r.genKey(namespace)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		metrics.RecordRedisError(serviceName, metrics.RedisOpGet)
		return 0, fmt.Errorf("failed to get generation of %s: %w", namespace, err)
	}
	return gen, nil
}

func (r *RedisCache) genKey(namespace string) string {
	return r.prefix + ":" + namespace + ":gen"
}

func (r *RedisCache) entryKey(namespace string, gen int64, key string) string {
	return r.prefix + ":" + namespace + ":" + strconv.FormatInt(gen, 10) + ":" + key
}
