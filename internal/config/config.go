package config

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/fjod/go_cart/checkout-core/internal/repository"
	"github.com/spf13/viper"
)

// AppConfig holds the configuration for the checkout service.
// Tags used:
// - mapstructure: used by viper to unmarshal
// - default: default value to set if missing
// - required: if "true", error if missing
type AppConfig struct {
	Environment string `mapstructure:"APP_ENV" default:"development"`
	LogLevel    string `mapstructure:"LOG_LEVEL" default:"info"`
	HTTPPort    int    `mapstructure:"HTTP_PORT" default:"8080"`
	GRPCPort    int    `mapstructure:"GRPC_PORT" default:"50056"`
	// CORSAllowedOrigins is a comma separated list of storefront origins.
	CORSAllowedOrigins []string `mapstructure:"CORS_ALLOWED_ORIGINS" default:"*"`
	// TrustedProxies lists proxy CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string `mapstructure:"TRUSTED_PROXIES"`
	// JWTSecret verifies the HS256 bearer tokens issued by the auth service.
	JWTSecret string `mapstructure:"JWT_SECRET" required:"true"`

	Storage  StorageConfig  `mapstructure:",squash"`
	Database DatabaseConfig `mapstructure:",squash"`
	Redis    RedisConfig    `mapstructure:",squash"`
	Mongo    MongoConfig    `mapstructure:",squash"`
	Kafka    KafkaConfig    `mapstructure:",squash"`
	Checkout CheckoutConfig `mapstructure:",squash"`
	Payment  PaymentConfig  `mapstructure:",squash"`
}

type StorageConfig struct {
	// Driver selects the store implementation: postgres or memory.
	Driver  string        `mapstructure:"STORAGE_DRIVER" default:"postgres"`
	Timeout time.Duration `mapstructure:"STORAGE_TIMEOUT" default:"3s"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"DB_HOST" default:"localhost"`
	Port           int    `mapstructure:"DB_PORT" default:"5432"`
	User           string `mapstructure:"DB_USER" default:"postgres"`
	Password       string `mapstructure:"DB_PASSWORD" default:"postgres"`
	Name           string `mapstructure:"DB_NAME" default:"checkout"`
	MigrationsPath string `mapstructure:"MIGRATIONS_PATH" default:"internal/repository/migrations"`
}

// RedisConfig configures the cart cache. An empty address disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"REDIS_ADDR"`
	Password string `mapstructure:"REDIS_PASSWORD"`
}

// MongoConfig configures the payment audit journal. An empty URI disables it.
type MongoConfig struct {
	URI    string `mapstructure:"MONGO_URI"`
	DBName string `mapstructure:"MONGO_DB_NAME" default:"checkout_audit"`
}

// KafkaConfig configures the outbox publisher. No brokers means no publisher.
type KafkaConfig struct {
	Brokers []string `mapstructure:"KAFKA_BROKERS"`
	Topic   string   `mapstructure:"KAFKA_TOPIC" default:"order-events"`
}

type CheckoutConfig struct {
	FreeShippingThreshold int64 `mapstructure:"FREE_SHIPPING_THRESHOLD" default:"1000000"`
	FlatShippingFee       int64 `mapstructure:"FLAT_SHIPPING_FEE" default:"30000"`
}

type PaymentConfig struct {
	TmnCode           string        `mapstructure:"PAYMENT_TMN_CODE" default:"CHECKOUT"`
	HashSecret        string        `mapstructure:"PAYMENT_HASH_SECRET" required:"true"`
	URL               string        `mapstructure:"PAYMENT_URL" default:"https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"`
	ReturnURL         string        `mapstructure:"PAYMENT_RETURN_URL" default:"http://localhost:8080/api/v1/payments/return"`
	ResultRedirectURL string        `mapstructure:"PAYMENT_RESULT_REDIRECT_URL" default:"http://localhost:3000/checkout/result"`
	Locale            string        `mapstructure:"PAYMENT_LOCALE" default:"vn"`
	Currency          string        `mapstructure:"PAYMENT_CURRENCY" default:"VND"`
	Expire            time.Duration `mapstructure:"PAYMENT_EXPIRE" default:"15m"`
	// CallbackRateLimit bounds requests per second on the unauthenticated gateway endpoints.
	CallbackRateLimit float64 `mapstructure:"CALLBACK_RATE_LIMIT" default:"20"`
	CallbackRateBurst int     `mapstructure:"CALLBACK_RATE_BURST" default:"40"`
}

// Credentials converts the database section into repository credentials.
func (c DatabaseConfig) Credentials() *repository.Credentials {
	return &repository.Credentials{
		Host:              c.Host,
		Port:              c.Port,
		User:              c.User,
		Password:          c.Password,
		DBName:            c.Name,
		MigrationsDirPath: c.MigrationsPath,
	}
}

// Load loads configuration from an optional .env file in path and the environment.
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	v.AutomaticEnv()

	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config AppConfig

	if err := processTags(v, &config); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := validateRequired(&config); err != nil {
		return nil, err
	}

	if config.Storage.Driver != "postgres" && config.Storage.Driver != "memory" {
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", config.Storage.Driver)
	}

	return &config, nil
}

// processTags binds every tagged field to its env key and registers defaults.
func processTags(v *viper.Viper, config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := processTags(v, val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		key := field.Tag.Get("mapstructure")
		defaultValue := field.Tag.Get("default")

		if key != "" {
			if err := v.BindEnv(key); err != nil {
				return fmt.Errorf("bind %s: %w", key, err)
			}
		}

		if key != "" && defaultValue != "" {
			v.SetDefault(key, defaultValue)
		}
	}
	return nil
}

// validateRequired checks if fields marked as required have non-zero values.
func validateRequired(config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := validateRequired(val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		if field.Tag.Get("required") == "true" && val.Field(i).IsZero() {
			return fmt.Errorf("missing required configuration: %s", field.Tag.Get("mapstructure"))
		}
	}
	return nil
}
