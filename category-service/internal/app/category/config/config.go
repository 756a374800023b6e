package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит все настройки Category Service
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	JWT      JWTConfig
	Cache    CacheConfig
	Log      LogConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Host string // по умолчанию 0.0.0.0
	Port string // по умолчанию 8081
}

// DatabaseConfig - настройки подключения к PostgreSQL, где хранится дерево категорий
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string // disable/require/verify-full
}

// RedisConfig - настройки Redis кеша
type RedisConfig struct {
	Host      string
	Port      string
	Password  string        // опционально
	DB        int           // 0-15
	KeyPrefix string        // Префикс всех ключей сервиса
	TTL       time.Duration // Время жизни записи кеша
}

// KafkaConfig - настройки Kafka для событий CATEGORY_CREATED/UPDATED/DELETED
type KafkaConfig struct {
	Brokers []string // host:port
	Topic   string
	Enabled bool // false - события не отправляются
}

// JWTConfig - секрет для проверки токенов, должен совпадать с Auth Service
type JWTConfig struct {
	Secret string
}

// CacheConfig - расписание прогрева кеша (cron формат)
type CacheConfig struct {
	WarmSchedule string
	WarmEnabled  bool
}

type LogConfig struct {
	Level        string
	LogstashAddr string // пусто - только stdout
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	cacheTTL, err := getEnvDuration("CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	if cacheTTL <= 0 {
		return nil, fmt.Errorf("invalid CACHE_TTL value: must be positive, got %s", cacheTTL)
	}

	kafkaEnabled, err := getEnvBool("KAFKA_ENABLED", true)
	if err != nil {
		return nil, err
	}

	warmEnabled, err := getEnvBool("CACHE_WARM_ENABLED", true)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8081"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "category_service"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:      getEnv("REDIS_HOST", "localhost"),
			Port:      getEnv("REDIS_PORT", "6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        redisDB,
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "category-service"),
			TTL:       cacheTTL,
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getEnv("KAFKA_TOPIC", "category_events"),
			Enabled: kafkaEnabled,
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key-change-this-in-production"),
		},
		Cache: CacheConfig{
			WarmSchedule: getEnv("CACHE_WARM_SCHEDULE", "*/10 * * * *"),
			WarmEnabled:  warmEnabled,
		},
		Log: LogConfig{
			Level:        getEnv("LOG_LEVEL", "info"),
			LogstashAddr: getEnv("LOGSTASH_ADDR", ""),
		},
	}, nil
}

// DSN возвращает строку подключения к PostgreSQL в формате libpq
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode,
	)
}

func (c *ServerConfig) Address() string {
	return c.Host + ":" + c.Port
}

func (c *RedisConfig) Address() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return parsed, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return parsed, nil
}

// getEnvDuration принимает формат time.ParseDuration (30s, 10m, 1h)
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return parsed, nil
}

// splitList разбирает список через запятую: "kafka-1:9092,kafka-2:9092"
func splitList(value string) []string {
	var result []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}
