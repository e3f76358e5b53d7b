// Pacote config centraliza o carregamento das variáveis de ambiente usadas pelos binários.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config agrega todos os parâmetros necessários para API e worker.
type Config struct {
	HTTPAddress string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuditoriaKeyPrefix    string
	ContadorKeyPrefix     string
	NotificadorKeyPrefix  string

	RateLimitEnabled       bool
	RateLimitMaxActions    int
	RateLimitWindowSeconds int
	RateLimitKeyPrefix     string

	AutoMigrate bool

	WorkerMetricsAddress string

	JWTSegredo         string
	JWTValidadeMinutos int

	// AdminChaveAcesso é exigida no endpoint de emissão de token; sem ela o
	// endpoint fica desligado e os tokens precisam ser emitidos fora da API.
	AdminChaveAcesso string

	// TxMaxTentativas limita as repetições do compare-and-swap antes de
	// devolver o conflito ao chamador.
	TxMaxTentativas int
}

func Load() (Config, error) {
	// .env facilita execução local; em Docker/K8s as variáveis vêm do ambiente.
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddress:            getEnv("HTTP_ADDRESS", ":8080"),
		PostgresHost:           getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:           getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:           getEnv("POSTGRES_USER", "eleicao"),
		PostgresPassword:       getEnv("POSTGRES_PASSWORD", "eleicao"),
		PostgresDB:             getEnv("POSTGRES_DB", "eleicao_diretoria"),
		PostgresSSLMode:        getEnv("POSTGRES_SSLMODE", "disable"),
		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		AuditoriaKeyPrefix:     getEnv("REDIS_AUDIT_PREFIX", "auditoria:eventos"),
		ContadorKeyPrefix:      getEnv("REDIS_COUNTER_PREFIX", "comparecimento"),
		NotificadorKeyPrefix:   getEnv("REDIS_NOTIFY_PREFIX", "eleicoes"),
		RateLimitEnabled:       getEnv("ANTIFRAUDE_RATE_LIMIT_ENABLED", "true") == "true",
		RateLimitMaxActions:    getEnvAsInt("ANTIFRAUDE_RATE_LIMIT_MAX", 10),
		RateLimitWindowSeconds: getEnvAsInt("ANTIFRAUDE_RATE_LIMIT_WINDOW", 60),
		RateLimitKeyPrefix:     getEnv("ANTIFRAUDE_RATE_LIMIT_PREFIX", "ratelimit"),
		AutoMigrate:            getEnvAsBool("DB_AUTO_MIGRATE", true),
		WorkerMetricsAddress:   getEnv("WORKER_METRICS_ADDRESS", ":9090"),
		JWTSegredo:             os.Getenv("JWT_SECRET"),
		JWTValidadeMinutos:     getEnvAsInt("JWT_TTL_MINUTES", 480),
		AdminChaveAcesso:       os.Getenv("ADMIN_ACCESS_KEY"),
		TxMaxTentativas:        getEnvAsInt("TX_MAX_TENTATIVAS", 5),
	}

	dbStr := getEnv("REDIS_DB", "0")
	dbInt, err := strconv.Atoi(dbStr)
	if err != nil {
		return Config{}, fmt.Errorf("config: REDIS_DB invalido: %w", err)
	}
	cfg.RedisDB = dbInt

	if cfg.TxMaxTentativas < 1 {
		return Config{}, fmt.Errorf("config: TX_MAX_TENTATIVAS deve ser >= 1")
	}

	return cfg, nil
}

func (c Config) PostgresDSN() string {
	// Mantemos o formato DSN compatível com GORM e ferramentas de migração.
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
		c.PostgresSSLMode,
	)
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvAsInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getEnvAsBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	switch value {
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return true
	}
}
