package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config описывает настройки сервиса. Все значения читаются из окружения с
// префиксом AP_; .env подхватывается для локальной разработки.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	// PostgresDSN пустой — репозитории in-memory.
	PostgresDSN string
	// KafkaBrokers пустой — события outbox публикуются только в лог.
	KafkaBrokers string

	GatewayKeyID    string
	GatewaySecret   string
	GatewayEndpoint string

	Currency                   string
	DeliveryFeeMinor           int64
	FreeDeliveryThresholdMinor int64

	PendingOrderTTL time.Duration

	// DevTokens — пары token:user_id для локального AuthProvider,
	// через запятую. В production auth отдаёт внешний сервис.
	DevTokens string
}

// DefaultConfig возвращает значения по умолчанию для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                   ":8080",
		MetricsAddr:                ":9090",
		Currency:                   "INR",
		DeliveryFeeMinor:           4900,
		FreeDeliveryThresholdMinor: 50000,
		PendingOrderTTL:            24 * time.Hour,
	}
}

// LoadConfig читает конфигурацию из окружения поверх значений по умолчанию.
func LoadConfig() (Config, error) {
	// .env опционален: его отсутствие — не ошибка.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if v := os.Getenv("AP_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("AP_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	cfg.PostgresDSN = os.Getenv("AP_POSTGRES_DSN")
	cfg.KafkaBrokers = os.Getenv("AP_KAFKA_BROKERS")
	cfg.GatewayKeyID = os.Getenv("AP_GATEWAY_KEY_ID")
	cfg.GatewaySecret = os.Getenv("AP_GATEWAY_SECRET")
	cfg.GatewayEndpoint = os.Getenv("AP_GATEWAY_ENDPOINT")
	cfg.DevTokens = os.Getenv("AP_DEV_TOKENS")

	if v := os.Getenv("AP_CURRENCY"); v != "" {
		cfg.Currency = strings.ToUpper(v)
	}
	if v := os.Getenv("AP_DELIVERY_FEE_MINOR"); v != "" {
		fee, err := strconv.ParseInt(v, 10, 64)
		if err != nil || fee < 0 {
			return Config{}, fmt.Errorf("invalid AP_DELIVERY_FEE_MINOR: %q", v)
		}
		cfg.DeliveryFeeMinor = fee
	}
	if v := os.Getenv("AP_FREE_DELIVERY_THRESHOLD_MINOR"); v != "" {
		threshold, err := strconv.ParseInt(v, 10, 64)
		if err != nil || threshold < 0 {
			return Config{}, fmt.Errorf("invalid AP_FREE_DELIVERY_THRESHOLD_MINOR: %q", v)
		}
		cfg.FreeDeliveryThresholdMinor = threshold
	}
	if v := os.Getenv("AP_PENDING_ORDER_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			return Config{}, fmt.Errorf("invalid AP_PENDING_ORDER_TTL: %q", v)
		}
		cfg.PendingOrderTTL = ttl
	}

	return cfg, nil
}
