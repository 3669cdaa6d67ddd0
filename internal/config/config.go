/**
 * @description
 * This package handles the configuration management for the membership service. It uses
 * Viper to read environment variables and an optional .env file.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"errors"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the membership service.
type Config struct {
	ServerPort               string `mapstructure:"SERVER_PORT"`
	DatabaseURL              string `mapstructure:"DATABASE_URL"`
	RunMigrations            bool   `mapstructure:"RUN_MIGRATIONS"`
	JWTSecret                string `mapstructure:"JWT_SECRET"`
	JWKSURL                  string `mapstructure:"JWKS_URL"`
	JWTIssuer                string `mapstructure:"JWT_ISSUER"`
	JWTAudience              string `mapstructure:"JWT_AUDIENCE"`
	RabbitMQURL              string `mapstructure:"RABBITMQ_URL"`
	NotificationExchange     string `mapstructure:"NOTIFICATION_EXCHANGE"`
	AdminEmail               string `mapstructure:"ADMIN_EMAIL"`
	RedisURL                 string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix     string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	QuoteRateLimitPerMinute  int    `mapstructure:"QUOTE_RATE_LIMIT_PER_MINUTE"`
	ApplyRateLimitPerMinute  int    `mapstructure:"APPLY_RATE_LIMIT_PER_MINUTE"`
	UploadDir                string `mapstructure:"UPLOAD_DIR"`
	PaymentUPIVPA            string `mapstructure:"PAYMENT_UPI_VPA"`
	PaymentPayeeName         string `mapstructure:"PAYMENT_PAYEE_NAME"`
	MembershipExpirySchedule string `mapstructure:"MEMBERSHIP_EXPIRY_SCHEDULE"`
}

// ErrMissingAuthConfig is returned when neither token verification method is configured.
var ErrMissingAuthConfig = errors.New("either JWT_SECRET or JWKS_URL must be set")

// LoadConfig reads configuration from environment variables and an optional .env file
// in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("RUN_MIGRATIONS", true)
	viper.SetDefault("NOTIFICATION_EXCHANGE", "gart.events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "gart:rate_limit")
	viper.SetDefault("QUOTE_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("APPLY_RATE_LIMIT_PER_MINUTE", 5)
	viper.SetDefault("UPLOAD_DIR", "./uploads")
	viper.SetDefault("PAYMENT_PAYEE_NAME", "GART")
	viper.SetDefault("MEMBERSHIP_EXPIRY_SCHEDULE", "@hourly")

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RUN_MIGRATIONS")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("JWT_ISSUER")
	_ = viper.BindEnv("JWT_AUDIENCE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("NOTIFICATION_EXCHANGE")
	_ = viper.BindEnv("ADMIN_EMAIL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("QUOTE_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("APPLY_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("UPLOAD_DIR")
	_ = viper.BindEnv("PAYMENT_UPI_VPA")
	_ = viper.BindEnv("PAYMENT_PAYEE_NAME")
	_ = viper.BindEnv("MEMBERSHIP_EXPIRY_SCHEDULE")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	if err = viper.Unmarshal(&config); err != nil {
		return config, err
	}

	if port := os.Getenv("PORT"); port != "" {
		config.ServerPort = port
	}
	config.JWTSecret = strings.TrimSpace(config.JWTSecret)
	config.JWKSURL = strings.TrimSpace(config.JWKSURL)
	if config.JWTSecret == "" && config.JWKSURL == "" {
		return config, ErrMissingAuthConfig
	}
	config.QuoteRateLimitPerMinute = max(config.QuoteRateLimitPerMinute, 0)
	config.ApplyRateLimitPerMinute = max(config.ApplyRateLimitPerMinute, 0)
	return config, nil
}
