package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

// Environment variables that override the file configuration.
const (
	EnvJWTSecret         = "JWT_SECRET"
	EnvAccessTokenTTL    = "ACCESS_TOKEN_TTL_SECONDS"
	EnvRefreshTokenTTL   = "REFRESH_TOKEN_TTL_SECONDS"
	EnvRefreshTimeout    = "REFRESH_TIMEOUT_SECONDS"
	EnvRefreshMaxRetries = "REFRESH_MAX_RETRIES"
	EnvDatabaseURL       = "DATABASE_URL"
	EnvDBPoolMaxSize     = "DB_POOL_MAX_SIZE"
	EnvDBPoolRecycle     = "DB_POOL_RECYCLE_SECONDS"
)

var overlayVars = map[string]struct{}{
	EnvJWTSecret:         {},
	EnvAccessTokenTTL:    {},
	EnvRefreshTokenTTL:   {},
	EnvRefreshTimeout:    {},
	EnvRefreshMaxRetries: {},
	EnvDatabaseURL:       {},
	EnvDBPoolMaxSize:     {},
	EnvDBPoolRecycle:     {},
}

// ApplyEnv overrides cfg with the overlay variables present in the process
// environment.
func ApplyEnv(cfg *Config) error {
	k := koanf.New(".")

	provider := env.Provider("", ".", func(key string) string {
		if _, ok := overlayVars[key]; !ok {
			return ""
		}
		return key
	})
	if err := k.Load(provider, nil); err != nil {
		return fmt.Errorf("loading environment: %w", err)
	}

	return applyOverlay(cfg, k)
}

func applyOverlay(cfg *Config, k *koanf.Koanf) error {
	var errs []error

	if k.Exists(EnvJWTSecret) {
		cfg.Auth.JWTSecret = commoncfg.SourceRef{
			Source: "embedded",
			Value:  k.String(EnvJWTSecret),
		}
	}

	if k.Exists(EnvDatabaseURL) {
		cfg.Database.URL = k.String(EnvDatabaseURL)
	}

	seconds := func(name string, dst *time.Duration) {
		if !k.Exists(name) {
			return
		}
		n, err := strconv.ParseInt(k.String(name), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("parsing %s: %w", name, err))
			return
		}
		*dst = time.Duration(n) * time.Second
	}
	seconds(EnvAccessTokenTTL, &cfg.Auth.AccessTokenTTL)
	seconds(EnvRefreshTokenTTL, &cfg.Auth.RefreshTokenTTL)
	seconds(EnvRefreshTimeout, &cfg.Auth.RefreshTimeout)
	seconds(EnvDBPoolRecycle, &cfg.Database.PoolRecycle)

	if k.Exists(EnvRefreshMaxRetries) {
		n, err := strconv.Atoi(k.String(EnvRefreshMaxRetries))
		if err != nil {
			errs = append(errs, fmt.Errorf("parsing %s: %w", EnvRefreshMaxRetries, err))
		} else {
			cfg.Auth.RefreshMaxRetries = n
		}
	}

	if k.Exists(EnvDBPoolMaxSize) {
		n, err := strconv.ParseInt(k.String(EnvDBPoolMaxSize), 10, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("parsing %s: %w", EnvDBPoolMaxSize, err))
		} else {
			cfg.Database.PoolMaxSize = int32(n)
		}
	}

	return errors.Join(errs...)
}
