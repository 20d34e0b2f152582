package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	MySQL             MySQLConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Cardgate          CardgateConfig
	Mobipay           MobipayConfig
	Sandbox           SandboxConfig
	Payments          PaymentsConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName string
	APIKey      string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type InternalEndpointsConfig struct {
	OrdersBaseURL  string
	OrdersAPIKey   string
	MethodsBaseURL string
	MethodsAPIKey  string
	HTTPTimeout    time.Duration
}

type CardgateConfig struct {
	Enabled                   bool
	BaseURL                   string
	SecretKey                 string
	WebhookSecret             string
	ReturnBaseURL             string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

type MobipayConfig struct {
	Enabled     bool
	BaseURL     string
	APIKey      string
	ShortCode   string
	HTTPTimeout time.Duration
}

type SandboxConfig struct {
	Enabled bool
}

type PaymentsConfig struct {
	NotifyMaxAttempts   int32
	NotifyRetryInterval time.Duration
	NotifyHTTPTimeout   time.Duration
	ReconcileStaleAfter time.Duration
	JobBatchSize        int32
}

type JobsConfig struct {
	ReconcileInterval      time.Duration
	NotifyDispatchInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "payments-service"),
			APIKey:      getEnv("APP_API_KEY", ""),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			OrdersBaseURL:  getEnv("ORDERS_SERVICE_BASE_URL", "http://localhost:8081"),
			OrdersAPIKey:   getEnv("ORDERS_SERVICE_API_KEY", ""),
			MethodsBaseURL: getEnv("METHODS_SERVICE_BASE_URL", "http://localhost:8082"),
			MethodsAPIKey:  getEnv("METHODS_SERVICE_API_KEY", ""),
			HTTPTimeout:    getSecondsEnv("INTERNAL_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Cardgate: CardgateConfig{
			Enabled:                   getBoolEnv("CARDGATE_ENABLED", false),
			BaseURL:                   getEnv("CARDGATE_BASE_URL", "https://api.cardgate.example.com"),
			SecretKey:                 getEnv("CARDGATE_SECRET_KEY", ""),
			WebhookSecret:             getEnv("CARDGATE_WEBHOOK_SECRET", ""),
			ReturnBaseURL:             getEnv("CARDGATE_RETURN_BASE_URL", ""),
			SignatureToleranceSeconds: int64(getIntEnv("CARDGATE_SIGNATURE_TOLERANCE_SECONDS", 300)),
			HTTPTimeout:               getSecondsEnv("CARDGATE_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Mobipay: MobipayConfig{
			Enabled:     getBoolEnv("MOBIPAY_ENABLED", false),
			BaseURL:     getEnv("MOBIPAY_BASE_URL", "https://api.mobipay.example.com"),
			APIKey:      getEnv("MOBIPAY_API_KEY", ""),
			ShortCode:   getEnv("MOBIPAY_SHORT_CODE", ""),
			HTTPTimeout: getSecondsEnv("MOBIPAY_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Sandbox: SandboxConfig{
			Enabled: getBoolEnv("SANDBOX_GATEWAY_ENABLED", true),
		},
		Payments: PaymentsConfig{
			NotifyMaxAttempts:   int32(getIntEnv("PAYMENTS_NOTIFY_MAX_ATTEMPTS", 10)),
			NotifyRetryInterval: getMinutesEnv("PAYMENTS_NOTIFY_RETRY_INTERVAL_MINUTES", 5*time.Minute),
			NotifyHTTPTimeout:   getSecondsEnv("PAYMENTS_NOTIFY_HTTP_TIMEOUT_SECONDS", 10*time.Second),
			ReconcileStaleAfter: getMinutesEnv("PAYMENTS_RECONCILE_STALE_AFTER_MINUTES", 15*time.Minute),
			JobBatchSize:        int32(getIntEnv("PAYMENTS_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			ReconcileInterval:      getMinutesEnv("PAYMENTS_RECONCILE_INTERVAL_MINUTES", 2*time.Minute),
			NotifyDispatchInterval: getMinutesEnv("PAYMENTS_NOTIFY_DISPATCH_INTERVAL_MINUTES", time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
