package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// Config carries the process configuration, resolved from the environment
// (optionally seeded from a .env file in development).
type Config struct {
	Env      string
	HTTPAddr string

	// PublicBaseURL is the externally reachable origin used to build the
	// notify/return URLs handed to payment aggregators.
	PublicBaseURL string

	DatabaseDSN string

	// AgencyCode is the 3-digit code used as the contract number prefix.
	AgencyCode string

	QuoteExpiry    time.Duration
	SweepInterval  time.Duration
	GatewayTimeout time.Duration

	// Aggregator credentials. Empty values disable the aggregator.
	CinetpaySiteID    string
	CinetpayAPIKey    string
	CinetpayBaseURL   string
	PaytechAPIKey     string
	PaytechAPISecret  string
	PaytechBaseURL    string
	WaveToken         string
	WaveBaseURL       string
	GenericSharedKey  string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("DATABASE_DSN", "file:assurline.db")
	v.SetDefault("AGENCY_CODE", "101")
	v.SetDefault("QUOTE_EXPIRY", "24h")
	v.SetDefault("SWEEP_INTERVAL", "10m")
	v.SetDefault("GATEWAY_TIMEOUT", "30s")
	v.SetDefault("CINETPAY_BASE_URL", "https://api-checkout.cinetpay.com/v2")
	v.SetDefault("PAYTECH_BASE_URL", "https://paytech.sn/api")
	v.SetDefault("WAVE_BASE_URL", "https://api.wave.com/v1")

	cfg := Config{
		Env:              v.GetString("APP_ENV"),
		HTTPAddr:         v.GetString("HTTP_ADDR"),
		PublicBaseURL:    v.GetString("PUBLIC_BASE_URL"),
		DatabaseDSN:      v.GetString("DATABASE_DSN"),
		AgencyCode:       v.GetString("AGENCY_CODE"),
		QuoteExpiry:      v.GetDuration("QUOTE_EXPIRY"),
		SweepInterval:    v.GetDuration("SWEEP_INTERVAL"),
		GatewayTimeout:   v.GetDuration("GATEWAY_TIMEOUT"),
		CinetpaySiteID:   v.GetString("CINETPAY_SITE_ID"),
		CinetpayAPIKey:   v.GetString("CINETPAY_API_KEY"),
		CinetpayBaseURL:  v.GetString("CINETPAY_BASE_URL"),
		PaytechAPIKey:    v.GetString("PAYTECH_API_KEY"),
		PaytechAPISecret: v.GetString("PAYTECH_API_SECRET"),
		PaytechBaseURL:   v.GetString("PAYTECH_BASE_URL"),
		WaveToken:        v.GetString("WAVE_TOKEN"),
		WaveBaseURL:      v.GetString("WAVE_BASE_URL"),
		GenericSharedKey: v.GetString("GENERIC_SHARED_KEY"),
	}
	return cfg, nil
}

var Module = fx.Module("config",
	fx.Provide(Load),
)
