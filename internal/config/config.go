package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/campusclub/shop/internal/models"
)

type Config struct {
	Env      string
	LogLevel string

	ServerPort int

	DB_HOST     string
	DB_PORT     string
	DB_USER     string
	DB_PASSWORD string
	DB_NAME     string

	JWT_SECRET           string
	REFRESH_TOKEN_SECRET string

	ADMIN_EMAIL    string
	ADMIN_PASSWORD string

	REDIS_URL      string
	REDIS_HOST     string
	REDIS_PORT     string
	REDIS_PASSWORD string
	REDIS_DB       int

	RedisConnectTimeout time.Duration
	RedisCommandTimeout time.Duration

	KAFKA_ADDRESS string

	ES_URL      string
	ES_USER     string
	ES_PASSWORD string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	config := &Config{
		Env:      EnvDefault("APP_ENV", "development"),
		LogLevel: EnvDefault("LOG_LEVEL", "info"),

		ServerPort: EnvIntDefault("SERVER_PORT", 8080),

		DB_HOST:     os.Getenv("DB_HOST"),
		DB_PORT:     os.Getenv("DB_PORT"),
		DB_USER:     os.Getenv("DB_USER"),
		DB_PASSWORD: os.Getenv("DB_PASSWORD"),
		DB_NAME:     os.Getenv("DB_NAME"),

		JWT_SECRET:           os.Getenv("JWT_SECRET"),
		REFRESH_TOKEN_SECRET: os.Getenv("REFRESH_TOKEN_SECRET"),

		ADMIN_EMAIL:    os.Getenv("ADMIN_EMAIL"),
		ADMIN_PASSWORD: os.Getenv("ADMIN_PASSWORD"),

		REDIS_URL:      os.Getenv("REDIS_URL"),
		REDIS_HOST:     EnvDefault("REDIS_HOST", "localhost"),
		REDIS_PORT:     EnvDefault("REDIS_PORT", "6379"),
		REDIS_PASSWORD: os.Getenv("REDIS_PASSWORD"),
		REDIS_DB:       EnvIntDefault("REDIS_DB", 0),

		RedisConnectTimeout: EnvSecondsDefault("REDIS_CONNECT_TIMEOUT", 10*time.Second),
		RedisCommandTimeout: EnvSecondsDefault("REDIS_COMMAND_TIMEOUT", 5*time.Second),

		KAFKA_ADDRESS: os.Getenv("KAFKA_ADDRESS"),

		ES_URL:      os.Getenv("ES_URL"),
		ES_USER:     os.Getenv("ES_USER"),
		ES_PASSWORD: os.Getenv("ES_PASSWORD"),
	}

	MustNonEmpty(config.JWT_SECRET, "JWT_SECRET")

	return config, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DB_USER, cfg.DB_PASSWORD, cfg.DB_HOST, cfg.DB_PORT, cfg.DB_NAME,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("db connect error: %w", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
	); err != nil {
		return nil, fmt.Errorf("db migrate error: %w", err)
	}
	return db, nil
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvSecondsDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}
