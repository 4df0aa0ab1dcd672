package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	infisical "github.com/infisical/go-sdk"
	"github.com/joho/godotenv"
)

type Config struct {
	DuneAPIKey      string
	DuneAPIURL      string
	DunePerformance string
	DatabaseURL     string
	StoreSchema     string
	XRPLRPCURL      string
	ReserveAPIURL   string
	RedisURL        string
	RedisPassword   string
	PushgatewayURL  string
	LogLevel        string
	HTTPTimeout     time.Duration
}

func Load() Config {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg := Config{
		DuneAPIKey:      os.Getenv("DUNE_API_KEY"),
		DuneAPIURL:      envOr("DUNE_API_URL", "https://api.dune.com/api/v1"),
		DunePerformance: envOr("DUNE_PERFORMANCE", "medium"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StoreSchema:     envOr("STORE_SCHEMA", "prod"),
		XRPLRPCURL:      envOr("XRPL_RPC_URL", "https://s1.ripple.com:51234/"),
		ReserveAPIURL:   envOr("RESERVE_API_URL", "https://prod-gw.openeden.com/sys/reserve-composition-live"),
		RedisURL:        os.Getenv("REDIS_URL"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		PushgatewayURL:  os.Getenv("PUSHGATEWAY_URL"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		HTTPTimeout:     durationOr("HTTP_TIMEOUT", 30*time.Second),
	}

	// If Infisical credentials are available, fill empty secrets from Infisical
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		if err := loadFromInfisical(&cfg, clientID, clientSecret); err != nil {
			slog.Warn("infisical secrets not fully loaded", "error", err)
		}
	}

	return cfg
}

// secretLookup returns the value stored under key in a secret manager.
type secretLookup func(key string) (string, error)

func loadFromInfisical(cfg *Config, clientID, clientSecret string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lookup, err := infisicalLookup(ctx, clientID, clientSecret)
	if err != nil {
		return err
	}
	loaded, err := fillSecrets(cfg, lookup)
	for _, key := range loaded {
		slog.Info("loaded secret from infisical", "key", key)
	}
	return err
}

func infisicalLookup(ctx context.Context, clientID, clientSecret string) (secretLookup, error) {
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	if projectID == "" {
		return nil, errors.New("INFISICAL_PROJECT_ID not set")
	}
	siteURL := envOr("INFISICAL_SITE_URL",
		"http://infisical-infisical-standalone-infisical.infisical.svc.cluster.local:8080")
	envSlug := envOr("INFISICAL_ENV", "prod")

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})
	if _, err := client.Auth().UniversalAuthLogin(clientID, clientSecret); err != nil {
		return nil, fmt.Errorf("infisical auth: %w", err)
	}

	return func(key string) (string, error) {
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			return "", err
		}
		return secret.SecretValue, nil
	}, nil
}

type secretField struct {
	key    string
	target *string
}

func (c *Config) secrets() []secretField {
	return []secretField{
		{"DUNE_API_KEY", &c.DuneAPIKey},
		{"DATABASE_URL", &c.DatabaseURL},
		{"REDIS_PASSWORD", &c.RedisPassword},
	}
}

// fillSecrets sets every empty secret in cfg from lookup. Values already
// present in the environment win. It returns the keys it filled and every
// lookup failure joined into one error.
func fillSecrets(cfg *Config, lookup secretLookup) ([]string, error) {
	var loaded []string
	var errs []error
	for _, f := range cfg.secrets() {
		if *f.target != "" {
			continue
		}
		v, err := lookup(f.key)
		if err != nil {
			errs = append(errs, fmt.Errorf("secret %s: %w", f.key, err))
			continue
		}
		if v == "" {
			continue
		}
		*f.target = v
		loaded = append(loaded, f.key)
	}
	return loaded, errors.Join(errs...)
}

// Validate reports every key in required that has no value.
func (c Config) Validate(required ...string) error {
	values := map[string]string{
		"DUNE_API_KEY":    c.DuneAPIKey,
		"DUNE_API_URL":    c.DuneAPIURL,
		"DATABASE_URL":    c.DatabaseURL,
		"XRPL_RPC_URL":    c.XRPLRPCURL,
		"RESERVE_API_URL": c.ReserveAPIURL,
		"REDIS_URL":       c.RedisURL,
	}
	var missing []string
	for _, k := range required {
		v, known := values[k]
		if !known {
			return fmt.Errorf("unknown config key %s", k)
		}
		if v == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", fallback.String())
		return fallback
	}
	return d
}
