// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port      string
		PublicURL string
	}
	OpenAI struct {
		APIKey  string
		BaseURL string
		Model   string
		Timeout time.Duration
	}
	Images struct {
		StorageMode     string
		PlatformManaged bool
		OutputDir       string
		PublicPath      string
		AppPassword     string
	}
	S3 struct {
		Endpoint      string
		Region        string
		AccessKey     string
		SecretKey     string
		Bucket        string
		PublicBaseURL string
		UsePathStyle  bool
		Prefix        string
	}
	Stripe struct {
		SecretKey  string
		PublicKey  string
		WebhookKey string
		Currency   string
	}
	GrooveSell struct {
		WebhookSecret string
		AllowUnsigned bool
	}
	Store struct {
		Driver string
	}
	DB struct {
		Host         string
		Port         string
		User         string
		Password     string
		DBName       string
		SSLMode      string
		MaxOpenConns int
		MaxIdleConns int
		ConnLifetime time.Duration
	}
	Firestore struct {
		ProjectID        string
		Collection       string
		LedgerCollection string
		CredentialsFile  string
	}
	Log struct {
		Level       string
		Development bool
	}
	ShutdownTimeout time.Duration
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"Server.Port":                "SERVER_PORT",
	"Server.PublicURL":           "PUBLIC_URL",
	"OpenAI.APIKey":              "OPENAI_API_KEY",
	"OpenAI.BaseURL":             "OPENAI_API_BASE_URL",
	"OpenAI.Model":               "OPENAI_IMAGE_MODEL",
	"OpenAI.Timeout":             "OPENAI_TIMEOUT",
	"Images.StorageMode":         "IMAGE_STORAGE_MODE",
	"Images.PlatformManaged":     "VERCEL",
	"Images.OutputDir":           "IMAGE_OUTPUT_DIR",
	"Images.PublicPath":          "IMAGE_PUBLIC_PATH",
	"Images.AppPassword":         "APP_PASSWORD",
	"S3.Endpoint":                "S3_ENDPOINT",
	"S3.Region":                  "S3_REGION",
	"S3.AccessKey":               "S3_ACCESS_KEY",
	"S3.SecretKey":               "S3_SECRET_KEY",
	"S3.Bucket":                  "S3_BUCKET",
	"S3.PublicBaseURL":           "S3_PUBLIC_BASE_URL",
	"S3.UsePathStyle":            "S3_USE_PATH_STYLE",
	"S3.Prefix":                  "S3_PREFIX",
	"Stripe.SecretKey":           "STRIPE_SECRET_KEY",
	"Stripe.PublicKey":           "STRIPE_PUBLIC_KEY",
	"Stripe.WebhookKey":          "STRIPE_WEBHOOK_SECRET",
	"Stripe.Currency":            "STRIPE_CURRENCY",
	"GrooveSell.WebhookSecret":   "GROOVESELL_WEBHOOK_SECRET",
	"GrooveSell.AllowUnsigned":   "GROOVESELL_ALLOW_UNSIGNED",
	"Store.Driver":               "STORE_DRIVER",
	"DB.Host":                    "DB_HOST",
	"DB.Port":                    "DB_PORT",
	"DB.User":                    "DB_USER",
	"DB.Password":                "DB_PASSWORD",
	"DB.DBName":                  "DB_NAME",
	"DB.SSLMode":                 "DB_SSL_MODE",
	"Firestore.ProjectID":        "FIRESTORE_PROJECT_ID",
	"Firestore.Collection":       "FIRESTORE_PROFILES_COLLECTION",
	"Firestore.LedgerCollection": "FIRESTORE_LEDGER_COLLECTION",
	"Firestore.CredentialsFile":  "FIRESTORE_CREDENTIALS_FILE",
	"Log.Level":                  "LOG_LEVEL",
	"Log.Development":            "LOG_DEVELOPMENT",
	"ShutdownTimeout":            "SHUTDOWN_TIMEOUT",
}

// Load loads the configuration
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.coloring-pages")

	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	// A missing config file is fine, env and defaults cover everything.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Process any ${ENV_VAR} syntax in the config values
	for _, key := range v.AllKeys() {
		value := v.GetString(key)
		if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(value, "}"), "${")
			if envValue := os.Getenv(envVar); envValue != "" {
				v.Set(key, envValue)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	cfg.Images.StorageMode = strings.ToLower(strings.TrimSpace(cfg.Images.StorageMode))

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ShutdownTimeout", 10*time.Second)
	v.SetDefault("Server.Port", "8080")
	v.SetDefault("OpenAI.Model", "gpt-image-1")
	v.SetDefault("OpenAI.BaseURL", "https://api.openai.com/v1")
	v.SetDefault("OpenAI.Timeout", 5*time.Minute)
	v.SetDefault("Images.OutputDir", "generated-images")
	v.SetDefault("Images.PublicPath", "/api/image")
	v.SetDefault("Images.PlatformManaged", false)
	v.SetDefault("S3.Prefix", "coloring-pages")
	v.SetDefault("Stripe.Currency", "usd")
	v.SetDefault("Store.Driver", "postgres")
	v.SetDefault("DB.Host", "localhost")
	v.SetDefault("DB.Port", "5432")
	v.SetDefault("DB.User", "postgres")
	v.SetDefault("DB.Password", "postgres")
	v.SetDefault("DB.DBName", "coloring_pages")
	v.SetDefault("DB.SSLMode", "disable")
	v.SetDefault("DB.MaxOpenConns", 20)
	v.SetDefault("DB.MaxIdleConns", 10)
	v.SetDefault("DB.ConnLifetime", 5*time.Minute)
	v.SetDefault("Firestore.Collection", "profiles")
	v.SetDefault("Firestore.LedgerCollection", "processed_events")
	v.SetDefault("Log.Level", "info")
}

// Validate reports every missing setting the selected drivers need.
func (c *Config) Validate() error {
	var missing []string
	require := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	require(c.OpenAI.APIKey, "OPENAI_API_KEY")
	require(c.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	require(c.Stripe.WebhookKey, "STRIPE_WEBHOOK_SECRET")

	if c.Images.StorageMode == "s3" {
		require(c.S3.Region, "S3_REGION")
		require(c.S3.AccessKey, "S3_ACCESS_KEY")
		require(c.S3.SecretKey, "S3_SECRET_KEY")
		require(c.S3.Bucket, "S3_BUCKET")
		require(c.S3.PublicBaseURL, "S3_PUBLIC_BASE_URL")
	}

	if c.GrooveSell.WebhookSecret == "" && !c.GrooveSell.AllowUnsigned {
		missing = append(missing, "GROOVESELL_WEBHOOK_SECRET")
	}

	switch c.Store.Driver {
	case "postgres":
		require(c.DB.Host, "DB_HOST")
		require(c.DB.DBName, "DB_NAME")
	case "firestore":
		require(c.Firestore.ProjectID, "FIRESTORE_PROJECT_ID")
	case "memory":
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v", missing)
	}
	return nil
}
