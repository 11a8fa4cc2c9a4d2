package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию сервиса сообщений о прогрессе
type Config struct {
	Env      string `envconfig:"ENV" default:"development"`
	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`

	// Логирование
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding   string `envconfig:"LOG_ENCODING" default:"json"`
	LogOutputPath string `envconfig:"LOG_OUTPUT_PATH" default:""`

	// CORS
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// PostgreSQL (записи сообщений и шаблоны учебной программы)
	DBHost        string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" default:"postgres"`
	DBName        string        `envconfig:"DB_NAME" default:"artnote_db"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	DBPassword    string        `ignored:"true"`

	// Черновики: поля в Redis, изображения в локальной SQLite
	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	DraftTTL       time.Duration `envconfig:"DRAFT_TTL" default:"168h"`
	DraftImagesDB  string        `envconfig:"DRAFT_IMAGES_DB" default:"./data/draft_images.db"`
	DebounceWindow time.Duration `envconfig:"DRAFT_DEBOUNCE_INTERVAL" default:"1s"`

	// Изображения
	ImageMaxEdge       int    `envconfig:"IMAGE_MAX_EDGE" default:"1200"`
	ImageQuality       int    `envconfig:"IMAGE_QUALITY" default:"80"`
	ImageSavePath      string `envconfig:"IMAGE_SAVE_PATH" default:"./data/images"`
	ImagePublicBaseURL string `envconfig:"IMAGE_PUBLIC_BASE_URL" default:"http://localhost:8080/images"`

	// Генерация текста
	GenerationBackend    string        `envconfig:"GENERATION_BACKEND" default:"service"` // service, openai, ollama
	GenerationServiceURL string        `envconfig:"GENERATION_SERVICE_URL" default:"http://localhost:8090"`
	GenerationTimeout    time.Duration `envconfig:"GENERATION_TIMEOUT" default:"30s"`
	AIBaseURL            string        `envconfig:"AI_BASE_URL" default:"https://api.openai.com/v1"`
	AIModel              string        `envconfig:"AI_MODEL" default:"gpt-4o-mini"`
	AIMaxTokens          int           `envconfig:"AI_MAX_TOKENS" default:"400"`
	AITemperature        float64       `envconfig:"AI_TEMPERATURE" default:"0.8"`
	AIAPIKey             string        `ignored:"true"`

	// Не больше GENERATE_RATE_LIMIT запросов генерации за GENERATE_RATE_WINDOW от одного учителя. 0 отключает.
	GenerateRateLimit  uint          `envconfig:"GENERATE_RATE_LIMIT" default:"20"`
	GenerateRateWindow time.Duration `envconfig:"GENERATE_RATE_WINDOW" default:"1m"`

	// RabbitMQ. Пустой URL отключает публикацию событий.
	RabbitMQURL string `envconfig:"RABBITMQ_URL" default:""`

	// Каталог с секретами (Docker Secrets)
	SecretsDir string `envconfig:"SECRETS_DIR" default:"/run/secrets"`
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// MaskedDSN возвращает DSN с замаскированным паролем для логирования
func (c *Config) MaskedDSN() string {
	dsn := c.GetDSN()
	parts := strings.Split(dsn, "@")
	if len(parts) != 2 {
		return "[invalid dsn format]"
	}
	userInfo := strings.Split(parts[0], ":")
	if len(userInfo) >= 2 {
		userInfo[len(userInfo)-1] = "********"
	}
	return strings.Join(userInfo, ":") + "@" + parts[1]
}

// NeedsAIKey сообщает, требуется ли ключ внешнего AI API.
func (c *Config) NeedsAIKey() bool {
	return strings.EqualFold(c.GenerationBackend, "openai")
}

// LoadConfig загружает конфигурацию из .env (если есть), переменных окружения и секретов
func LoadConfig() (*Config, error) {
	return load(true)
}

// LoadGenerationConfig загружает конфигурацию без секрета db_password.
// Нужна командам, которые обращаются только к генератору текста.
func LoadGenerationConfig() (*Config, error) {
	return load(false)
}

func load(needsDB bool) (*Config, error) {
	// .env необязателен
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("ошибка чтения .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	secrets := NewSecretReader(cfg.SecretsDir)

	var err error
	if needsDB {
		cfg.DBPassword, err = secrets.Read("db_password")
		if err != nil {
			return nil, err
		}
	}

	if cfg.NeedsAIKey() {
		cfg.AIAPIKey, err = secrets.Read("ai_api_key")
		if err != nil {
			return nil, err
		}
	} else {
		cfg.AIAPIKey, _ = secrets.Read("ai_api_key")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения, которые envconfig проверить не может.
func (c *Config) Validate() error {
	switch strings.ToLower(c.GenerationBackend) {
	case "service", "openai", "ollama":
	default:
		return fmt.Errorf("неизвестный GENERATION_BACKEND: '%s'", c.GenerationBackend)
	}
	if c.ImageMaxEdge <= 0 {
		return fmt.Errorf("IMAGE_MAX_EDGE должен быть положительным, получено %d", c.ImageMaxEdge)
	}
	if c.ImageQuality < 1 || c.ImageQuality > 100 {
		return fmt.Errorf("IMAGE_QUALITY должен быть в диапазоне 1..100, получено %d", c.ImageQuality)
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT должен быть положительным")
	}
	return nil
}
