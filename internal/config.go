package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"http_server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Security   SecurityConfig   `mapstructure:"security"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	GatewaySim GatewaySimConfig `mapstructure:"gateway_sim"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source" validate:"required"`
}

type SecurityConfig struct {
	// JWTSecret verifies HS256 bearer tokens on the admin routes.
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

type PaymentConfig struct {
	GatewayURL              string         `mapstructure:"gateway_url" validate:"required,url"`
	AccountID               string         `mapstructure:"account_id" validate:"required"`
	RestrictKey             string         `mapstructure:"restrict_key" validate:"required"`
	TransactionType         string         `mapstructure:"transaction_type" validate:"required"`
	TransactionIndustryType string         `mapstructure:"transaction_industry_type" validate:"required"`
	GatewayTimeout          time.Duration  `mapstructure:"gateway_timeout"`
	SnowflakeNode           int64          `mapstructure:"snowflake_node" validate:"min=0,max=1023"`
	Postback                PostbackConfig `mapstructure:"postback"`
	StatusMaxWait           time.Duration  `mapstructure:"status_max_wait"`
}

type PostbackConfig struct {
	// URL is where the gateway delivers postbacks (sent as Postback.ID).
	URL                string  `mapstructure:"url" validate:"required"`
	Description        string  `mapstructure:"description"`
	RequireRestrictKey bool    `mapstructure:"require_restrict_key"`
	RateLimitRPS       float64 `mapstructure:"rate_limit_rps" validate:"min=0"`
	RateLimitBurst     int     `mapstructure:"rate_limit_burst" validate:"min=0"`
	MaxBodyBytes       int64   `mapstructure:"max_body_bytes" validate:"min=0"`
}

type RedisConfig struct {
	// Addr empty disables the status notifier and smart wait.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
}

type LoggingConfig struct {
	Env   string `mapstructure:"env"`
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

type GatewaySimConfig struct {
	Port           int           `mapstructure:"port"`
	Workers        int           `mapstructure:"workers" validate:"min=0"`
	QueueSize      int           `mapstructure:"queue_size" validate:"min=0"`
	DeliveryFormat string        `mapstructure:"delivery_format" validate:"omitempty,oneof=delimited json"`
	Deliveries     int           `mapstructure:"deliveries" validate:"min=0"`
	DeliveryDelay  time.Duration `mapstructure:"delivery_delay"`
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds the config for container deployments where no config.yml is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout:   getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Security: SecurityConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Payment: PaymentConfig{
			GatewayURL:              getEnv("PAYMENT_GATEWAY_URL", ""),
			AccountID:               getEnv("PAYMENT_ACCOUNT_ID", ""),
			RestrictKey:             getEnv("PAYMENT_RESTRICT_KEY", ""),
			TransactionType:         getEnv("PAYMENT_TRANSACTION_TYPE", "CREDITCARD"),
			TransactionIndustryType: getEnv("PAYMENT_TRANSACTION_INDUSTRY_TYPE", "WEB"),
			GatewayTimeout:          getEnvAsDuration("PAYMENT_GATEWAY_TIMEOUT", 30*time.Second),
			SnowflakeNode:           int64(getEnvAsInt("PAYMENT_SNOWFLAKE_NODE", 1)),
			StatusMaxWait:           getEnvAsDuration("PAYMENT_STATUS_MAX_WAIT", 25*time.Second),
			Postback: PostbackConfig{
				URL:                getEnv("PAYMENT_POSTBACK_URL", ""),
				Description:        getEnv("PAYMENT_POSTBACK_DESCRIPTION", "Carnimore order"),
				RequireRestrictKey: getEnvAsBool("PAYMENT_POSTBACK_REQUIRE_RESTRICT_KEY", false),
				RateLimitRPS:       getEnvAsFloat("PAYMENT_POSTBACK_RATE_LIMIT_RPS", 20),
				RateLimitBurst:     getEnvAsInt("PAYMENT_POSTBACK_RATE_LIMIT_BURST", 40),
				MaxBodyBytes:       int64(getEnvAsInt("PAYMENT_POSTBACK_MAX_BODY_BYTES", 64<<10)),
			},
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Logging: LoggingConfig{
			Env:   getEnv("APP_ENV", "production"),
			Level: getEnv("LOG_LEVEL", "info"),
		},
		GatewaySim: GatewaySimConfig{
			Port:           getEnvAsInt("GATEWAY_SIM_PORT", 8443),
			Workers:        getEnvAsInt("GATEWAY_SIM_WORKERS", 4),
			QueueSize:      getEnvAsInt("GATEWAY_SIM_QUEUE_SIZE", 100),
			DeliveryFormat: getEnv("GATEWAY_SIM_DELIVERY_FORMAT", "delimited"),
			Deliveries:     getEnvAsInt("GATEWAY_SIM_DELIVERIES", 1),
			DeliveryDelay:  getEnvAsDuration("GATEWAY_SIM_DELIVERY_DELAY", time.Second),
		},
	}
}

// ----------------- VALIDATION -----------------

var structValidator = validator.New()

func (c *Config) Validate() error {
	var errs []string

	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *PaymentConfig) Validate() error {
	u, err := url.Parse(c.GatewayURL)
	if err != nil {
		return fmt.Errorf("invalid gateway_url: %w", err)
	}
	if u.Scheme != "https" && u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
		return errors.New("gateway_url must use https outside of localhost")
	}
	if c.StatusMaxWait < 0 {
		return errors.New("status_max_wait cannot be negative")
	}
	return nil
}

// GatewayTimeoutOrDefault bounds the outbound authorization call.
func (c *PaymentConfig) GatewayTimeoutOrDefault() time.Duration {
	if c.GatewayTimeout <= 0 {
		return 30 * time.Second
	}
	return c.GatewayTimeout
}

func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}
