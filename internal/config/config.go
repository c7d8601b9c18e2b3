// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	HTTP HTTPServer `yaml:"http"`
	Auth Auth       `yaml:"auth"`

	Database    Database    `yaml:"database"`
	ValKey      ValKey      `yaml:"valkey"`
	Storage     Storage     `yaml:"storage"`
	Housekeeper Housekeeper `yaml:"housekeeper"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
}

type Auth struct {
	// JWTSecret is the HMAC key the tokens are signed with.
	JWTSecret commoncfg.SourceRef `yaml:"jwtSecret"`
	Issuer    string              `yaml:"issuer" default:"session-keeper"`

	AccessTokenTTL  time.Duration `yaml:"accessTokenTTL" default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refreshTokenTTL" default:"168h"`

	// RefreshTimeout bounds a single call to the refresh endpoint.
	RefreshTimeout    time.Duration `yaml:"refreshTimeout" default:"5s"`
	RefreshMaxRetries int           `yaml:"refreshMaxRetries" default:"2"`

	// RefreshURL is the refresh endpoint used by outbound clients.
	RefreshURL string `yaml:"refreshURL" default:"http://localhost:8080/auth/refresh"`
}

type Database struct {
	// URL takes precedence over the discrete connection fields below.
	URL string `yaml:"url"`

	Name     string              `yaml:"name"`
	Port     string              `yaml:"port"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`

	PoolMaxSize    int32         `yaml:"poolMaxSize" default:"10"`
	PoolRecycle    time.Duration `yaml:"poolRecycle" default:"30m"`
	ConnectTimeout time.Duration `yaml:"connectTimeout" default:"3s"`
}

type ValKey struct {
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
	Prefix   string              `yaml:"prefix" default:"session-keeper"`
}

// StorageBackend selects where sessions and revoked token ids are kept.
type StorageBackend string

const (
	StorageBackendMemory StorageBackend = "memory"
	StorageBackendValKey StorageBackend = "valkey"
	StorageBackendSQL    StorageBackend = "sql"
)

type Storage struct {
	Backend StorageBackend `yaml:"backend" default:"memory"`
}

type Housekeeper struct {
	PurgeInterval time.Duration `yaml:"purgeInterval" default:"1h"`
}
