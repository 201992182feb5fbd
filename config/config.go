package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Port       int
	CorsOrigin string

	DatabaseDbPath       string
	DatabaseCacheAddress string
	DatabaseCachePort    int

	SessionExpiryHours int

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	TwilioBaseURL    string

	DirectoryURL string

	ResponseLinkBase string

	DefaultLatitude  float64
	DefaultLongitude float64

	// MissingPhonePolicy decides what happens when a candidate donor has no
	// contact number: "skip", "placeholder", or "fail".
	MissingPhonePolicy string

	PollIntervalSeconds int
	PollTimeoutSeconds  int
}

func InitConfig() (Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", 8000)
	viper.SetDefault("CORS_ORIGIN", "http://localhost:5173")
	viper.SetDefault("DATABASE_DB_PATH", "data/vitally.db")
	viper.SetDefault("DATABASE_CACHE_ADDRESS", "localhost")
	viper.SetDefault("DATABASE_CACHE_PORT", 6379)
	viper.SetDefault("SESSION_EXPIRY_HOURS", 24)
	viper.SetDefault("TWILIO_BASE_URL", "https://api.twilio.com")
	viper.SetDefault("RESPONSE_LINK_BASE", "http://localhost:5173/donor/respond")
	viper.SetDefault("DEFAULT_LATITUDE", 19.0760)
	viper.SetDefault("DEFAULT_LONGITUDE", 72.8777)
	viper.SetDefault("MISSING_PHONE_POLICY", "skip")
	viper.SetDefault("POLL_INTERVAL_SECONDS", 5)
	viper.SetDefault("POLL_TIMEOUT_SECONDS", 300)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := Config{
		Port:                 viper.GetInt("PORT"),
		CorsOrigin:           viper.GetString("CORS_ORIGIN"),
		DatabaseDbPath:       viper.GetString("DATABASE_DB_PATH"),
		DatabaseCacheAddress: viper.GetString("DATABASE_CACHE_ADDRESS"),
		DatabaseCachePort:    viper.GetInt("DATABASE_CACHE_PORT"),
		SessionExpiryHours:   viper.GetInt("SESSION_EXPIRY_HOURS"),
		TwilioAccountSID:     viper.GetString("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:      viper.GetString("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:     viper.GetString("TWILIO_FROM_NUMBER"),
		TwilioBaseURL:        viper.GetString("TWILIO_BASE_URL"),
		DirectoryURL:         viper.GetString("DIRECTORY_URL"),
		ResponseLinkBase:     viper.GetString("RESPONSE_LINK_BASE"),
		DefaultLatitude:      viper.GetFloat64("DEFAULT_LATITUDE"),
		DefaultLongitude:     viper.GetFloat64("DEFAULT_LONGITUDE"),
		MissingPhonePolicy:   viper.GetString("MISSING_PHONE_POLICY"),
		PollIntervalSeconds:  viper.GetInt("POLL_INTERVAL_SECONDS"),
		PollTimeoutSeconds:   viper.GetInt("POLL_TIMEOUT_SECONDS"),
	}

	if config.MissingPhonePolicy != "skip" &&
		config.MissingPhonePolicy != "placeholder" &&
		config.MissingPhonePolicy != "fail" {
		return Config{}, fmt.Errorf("invalid MISSING_PHONE_POLICY %q", config.MissingPhonePolicy)
	}

	return config, nil
}
