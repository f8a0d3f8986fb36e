package config

import "time"

type AppConfig struct {
	Workdir      string `envconfig:"WORK_DIR"`
	Port         string `envconfig:"PORT" default:"1680"`
	DatabaseUri  string `envconfig:"DATABASE_URI" default:"velohub.db"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"4"`
	LogToFile    bool   `envconfig:"LOG_TO_FILE" default:"true"`
	LogDBQueries bool   `envconfig:"LOG_DB_QUERIES" default:"false"`
	BaseUrl      string `envconfig:"BASE_URL"`

	JWTSecret string `envconfig:"JWT_SECRET"`

	// provider backends
	SkyvirtApiUrl      string        `envconfig:"SKYVIRT_API_URL" default:"https://api.skyvirt.cloud/v1"`
	SkyvirtApiKey      string        `envconfig:"SKYVIRT_API_KEY"`
	RackvmApiUrl       string        `envconfig:"RACKVM_API_URL" default:"https://panel.rackvm.net/api"`
	RackvmApiKey       string        `envconfig:"RACKVM_API_KEY"`
	RackvmApiPass      string        `envconfig:"RACKVM_API_PASS"`
	ProviderApiTimeout time.Duration `envconfig:"PROVIDER_API_TIMEOUT" default:"90s"`

	// payment gateways
	FlashpayKeyId         string `envconfig:"FLASHPAY_KEY_ID"`
	FlashpayKeySecret     string `envconfig:"FLASHPAY_KEY_SECRET"`
	FlashpayWebhookSecret string `envconfig:"FLASHPAY_WEBHOOK_SECRET"`
	PaymintAppId          string `envconfig:"PAYMINT_APP_ID"`
	PaymintSecretKey      string `envconfig:"PAYMINT_SECRET_KEY"`
	UpilinkMerchantId     string `envconfig:"UPILINK_MERCHANT_ID"`
	UpilinkApiToken       string `envconfig:"UPILINK_API_TOKEN"`

	// external collaborator contracts
	CatalogApiUrl string `envconfig:"CATALOG_API_URL"`
	NotifyHookUrl string `envconfig:"NOTIFY_HOOK_URL"`
}

// BatchConfig tunes one invocation of the batch retry runner. It is
// passed explicitly into each run so two overlapping runs cannot share
// mutable settings.
type BatchConfig struct {
	BatchSize       int
	MaxRetries      int
	RetryDelay      time.Duration
	InterOrderDelay time.Duration
	TimeBudget      time.Duration

	// lower-cased substrings of vendor error messages that are worth
	// retrying; matched only when the adapter does not return a
	// structured error code
	RetryableMatches []string
}

func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:       5,
		MaxRetries:      3,
		RetryDelay:      20 * time.Second,
		InterOrderDelay: 5 * time.Second,
		TimeBudget:      4 * time.Minute,
		RetryableMatches: []string{
			"rate limit",
			"too many requests",
			"ip address already",
			"weak password",
			"password validation",
			"timeout",
			"timed out",
			"temporarily",
		},
	}
}

// RecoveryConfig tunes one invocation of the pending-renewal recovery
// and stale-cleanup jobs.
type RecoveryConfig struct {
	StaleAfter time.Duration
}

func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		StaleAfter: 48 * time.Hour,
	}
}

// SyncConfig tunes one invocation of the provider status sync job.
type SyncConfig struct {
	BatchSize int
	Interval  time.Duration
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		BatchSize: 25,
		Interval:  10 * time.Minute,
	}
}
