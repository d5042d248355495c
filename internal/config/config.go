/**
 * @description
 * Configuration management for the billing service.
 */
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	ServerPort       string `mapstructure:"SERVER_PORT"`
	DatabaseURL      string `mapstructure:"DATABASE_URL"`
	LedgerServiceURL string `mapstructure:"LEDGER_SERVICE_URL"`
	LedgerAPIKey     string `mapstructure:"LEDGER_SERVICE_INTERNAL_API_KEY"`
	InternalAPIKey   string `mapstructure:"INTERNAL_API_KEY"`
	GatewayJWKSURL   string `mapstructure:"GATEWAY_JWKS_URL"`
	RabbitMQURL      string `mapstructure:"RABBITMQ_URL"`

	// DuePaymentSchedule is the cron expression for the due-payment sweep.
	DuePaymentSchedule string `mapstructure:"DUE_PAYMENT_JOB_SCHEDULE"`
	// DuePaymentBatchSize caps how many due policies one sweep settles.
	DuePaymentBatchSize int `mapstructure:"DUE_PAYMENT_BATCH_SIZE"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("DUE_PAYMENT_JOB_SCHEDULE", "*/5 * * * *")
	viper.SetDefault("DUE_PAYMENT_BATCH_SIZE", 100)
	viper.AutomaticEnv()

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("LEDGER_SERVICE_URL")
	_ = viper.BindEnv("LEDGER_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("GATEWAY_JWKS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("DUE_PAYMENT_JOB_SCHEDULE")
	_ = viper.BindEnv("DUE_PAYMENT_BATCH_SIZE")

	if err = viper.Unmarshal(&config); err != nil {
		return
	}
	if port := os.Getenv("PORT"); port != "" {
		config.ServerPort = port
	}

	if config.LedgerAPIKey == "" {
		config.LedgerAPIKey = config.InternalAPIKey
	}
	if config.DatabaseURL == "" {
		err = fmt.Errorf("DATABASE_URL is required")
		return
	}
	if config.LedgerServiceURL == "" {
		err = fmt.Errorf("LEDGER_SERVICE_URL is required")
		return
	}
	return
}
