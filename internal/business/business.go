package business

import (
	"context"
	"fmt"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/session-keeper/internal/business/server"
	"github.com/openkcm/session-keeper/internal/config"
	"github.com/openkcm/session-keeper/internal/dbconn"
	"github.com/openkcm/session-keeper/internal/grant"
	"github.com/openkcm/session-keeper/internal/serviceerr"
	"github.com/openkcm/session-keeper/internal/token"
	"github.com/openkcm/session-keeper/pkg/session"
	sessionmemory "github.com/openkcm/session-keeper/pkg/session/memory"
	sessionsql "github.com/openkcm/session-keeper/pkg/session/sql"
	sessionvalkey "github.com/openkcm/session-keeper/pkg/session/valkey"
)

// Main starts the API server.
func Main(ctx context.Context, cfg *config.Config) error {
	a, err := initApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the application: %w", err)
	}
	defer a.Close()

	handlers := server.Handlers{
		Grants: grant.NewHandler(a.grants),
		Auth:   a.grants,
	}
	if a.engines != nil {
		handlers.Engines = a.engines
	}

	return server.StartHTTPServer(ctx, cfg, handlers)
}

// app holds the components shared by the commands. The database engine is
// built lazily on first use, so initApp never touches the network for it.
type app struct {
	grants      *grant.Service
	engines     *dbconn.Manager
	sessions    session.Repository
	revocations session.RevocationList
	closers     []func()
}

func initApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{}

	if databaseConfigured(cfg.Database) {
		engines, err := newEngines(cfg.Database)
		if err != nil {
			return nil, err
		}
		a.engines = engines
		a.closers = append(a.closers, engines.Close)
	}

	if err := a.initStorage(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	secret, err := config.LoadJWTSecret(cfg.Auth)
	if err != nil {
		a.Close()
		return nil, err
	}

	codec := token.NewCodec(secret, token.WithIssuer(cfg.Auth.Issuer))
	a.grants, err = grant.NewService(codec, a.revocations, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating grant service: %w", err)
	}

	return a, nil
}

func (a *app) initStorage(ctx context.Context, cfg *config.Config) error {
	switch cfg.Storage.Backend {
	case config.StorageBackendValKey:
		client, err := newValkeyClient(cfg.ValKey)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)
		a.sessions = sessionvalkey.NewRepository(client, cfg.ValKey.Prefix)
		a.revocations = sessionvalkey.NewRevocationList(client, cfg.ValKey.Prefix)
	case config.StorageBackendSQL:
		if a.engines == nil {
			return serviceerr.ErrConfig.WithDescription("the sql storage backend requires a database")
		}
		a.sessions = sessionsql.NewRepository(a.engines)
		a.revocations = sessionsql.NewRevocationList(a.engines)
	default:
		a.sessions = sessionmemory.NewRepository()
		a.revocations = sessionmemory.NewRevocationList()
	}

	slogctx.Info(ctx, "Storage initialised", "backend", string(cfg.Storage.Backend), "database", a.engines != nil)

	return nil
}

// Close releases the clients in reverse order of creation. It is safe to call more than once.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func databaseConfigured(db config.Database) bool {
	return db.URL != "" || db.Host.Source != ""
}

func newEngines(db config.Database) (*dbconn.Manager, error) {
	connStr, err := config.MakeConnStr(db)
	if err != nil {
		return nil, fmt.Errorf("making dsn from config: %w", err)
	}

	return dbconn.NewManager(dbconn.Config{
		URL:            connStr,
		MaxConns:       db.PoolMaxSize,
		RecycleAfter:   db.PoolRecycle,
		ConnectTimeout: db.ConnectTimeout,
	}), nil
}

func newValkeyClient(cfg config.ValKey) (valkey.Client, error) {
	valkeyHost, err := commoncfg.LoadValueFromSourceRef(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("loading valkey host: %w", err)
	}

	valkeyUsername, err := commoncfg.LoadValueFromSourceRef(cfg.User)
	if err != nil {
		return nil, fmt.Errorf("loading valkey username: %w", err)
	}

	valkeyPassword, err := commoncfg.LoadValueFromSourceRef(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("loading valkey password: %w", err)
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{string(valkeyHost)},
		Username:    string(valkeyUsername),
		Password:    string(valkeyPassword),
	})
	if err != nil {
		return nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	return client, nil
}
