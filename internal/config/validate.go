package config

import (
	"errors"

	"github.com/openkcm/session-keeper/internal/serviceerr"
)

// Validate checks the invariants the components rely on.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("auth.accessTokenTTL must be positive"))
	}
	if c.Auth.AccessTokenTTL >= c.Auth.RefreshTokenTTL {
		errs = append(errs, errors.New("auth.accessTokenTTL must be shorter than auth.refreshTokenTTL"))
	}
	if c.Auth.RefreshTimeout <= 0 {
		errs = append(errs, errors.New("auth.refreshTimeout must be positive"))
	}
	if c.Auth.RefreshMaxRetries < 0 {
		errs = append(errs, errors.New("auth.refreshMaxRetries must not be negative"))
	}
	if c.Database.PoolMaxSize <= 0 {
		errs = append(errs, errors.New("database.poolMaxSize must be positive"))
	}

	if c.Housekeeper.PurgeInterval <= 0 {
		errs = append(errs, errors.New("housekeeper.purgeInterval must be positive"))
	}

	switch c.Storage.Backend {
	case StorageBackendMemory, StorageBackendValKey, StorageBackendSQL:
	default:
		errs = append(errs, errors.New("storage.backend must be one of memory, valkey, sql"))
	}

	if len(errs) > 0 {
		return serviceerr.ErrConfig.Wrap(errors.Join(errs...))
	}

	return nil
}
