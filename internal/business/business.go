package business

import (
	"context"
	"fmt"
	"net/http"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/redis/go-redis/v9"
	"github.com/valkey-io/valkey-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"
	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/age-gate/internal/business/server"
	"github.com/openkcm/age-gate/internal/config"
	"github.com/openkcm/age-gate/internal/gate"
	"github.com/openkcm/age-gate/internal/serviceerr"
	"github.com/openkcm/age-gate/internal/storage"
	storagecookie "github.com/openkcm/age-gate/internal/storage/cookie"
	storagememory "github.com/openkcm/age-gate/internal/storage/memory"
	storageredis "github.com/openkcm/age-gate/internal/storage/redis"
	storagesql "github.com/openkcm/age-gate/internal/storage/sql"
	storagevalkey "github.com/openkcm/age-gate/internal/storage/valkey"
)

const minCookieHashKeyLen = 32

// Main starts the gate HTTP server.
func Main(ctx context.Context, cfg *config.Config) error {
	gk, closeFn, err := initGatekeeper(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the gatekeeper: %w", err)
	}

	defer closeFn()

	slogctx.Info(ctx, "Starting the age gate",
		"mode", cfg.AgeGate.Mode,
		"storage", cfg.Storage.Type,
		"publicURL", cfg.HTTP.PublicURL,
	)

	return server.StartHTTPServer(ctx, cfg, gk)
}

func initGatekeeper(ctx context.Context, cfg *config.Config) (_ *server.Gatekeeper, closeFn func(), _ error) {
	gateCfg, err := gateConfigFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	csrfSecret, err := commoncfg.LoadValueFromSourceRef(cfg.AgeGate.CSRFSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("loading csrf secret: %w", err)
	}

	httpClient, err := loadHTTPClient(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("loading http client: %w", err)
	}

	auditLogger, err := otlpaudit.NewLogger(&cfg.Audit)
	if err != nil {
		return nil, nil, fmt.Errorf("creating audit logger: %w", err)
	}

	verification, state, closeFn, err := backendFromConfig(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	gk, err := server.NewGatekeeper(cfg, gateCfg, verification, csrfSecret,
		server.WithStateBackend(state),
		server.WithAuditLogger(auditLogger),
		server.WithHTTPClient(httpClient),
	)
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("creating gatekeeper: %w", err)
	}

	return gk, closeFn, nil
}

func gateConfigFromConfig(cfg *config.Config) (gate.Config, error) {
	clientID, err := commoncfg.LoadValueFromSourceRef(cfg.AgeGate.ClientID)
	if err != nil {
		return gate.Config{}, fmt.Errorf("loading client id: %w", err)
	}

	clientSecret, err := config.LoadOptional(cfg.AgeGate.ClientSecret)
	if err != nil {
		return gate.Config{}, fmt.Errorf("loading client secret: %w", err)
	}

	return gate.Config{
		ClientID:     string(clientID),
		ClientSecret: clientSecret,
		RedirectURI:  cfg.AgeGate.RedirectURI,
		Mode:         gate.Mode(cfg.AgeGate.Mode),
		Endpoints: gate.Endpoints{
			Auth:     cfg.AgeGate.Endpoints.Auth,
			Token:    cfg.AgeGate.Endpoints.Token,
			Userinfo: cfg.AgeGate.Endpoints.Userinfo,
		},
		APIEndpoint: cfg.AgeGate.APIEndpoint,
		StateTTL:    cfg.AgeGate.StateTTL,
	}, nil
}

// backendFromConfig returns the verification backend and, when it differs,
// the backend keeping pending authorization requests.
func backendFromConfig(ctx context.Context, cfg *config.Config) (_ server.BackendFunc, state storage.Backend, closeFn func(), _ error) {
	noop := func() {}

	switch cfg.Storage.Type {
	case config.StorageTypeCookie:
		codec, err := cookieCodecFromConfig(cfg)
		if err != nil {
			return nil, nil, nil, err
		}

		// state needs an atomic take, which cookies cannot offer
		mem := storagememory.NewBackend(cfg.Storage.Local.DefaultTTL, cfg.Storage.Local.CleanupInterval)

		return func(w http.ResponseWriter, r *http.Request) storage.Backend {
			return codec.Jar(w, r)
		}, mem, noop, nil
	case config.StorageTypeLocal:
		mem := storagememory.NewBackend(cfg.Storage.Local.DefaultTTL, cfg.Storage.Local.CleanupInterval)
		return server.SharedBackend(mem), nil, noop, nil
	case config.StorageTypeValKey:
		client, err := valkeyClientFromConfig(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		return server.SharedBackend(storagevalkey.NewBackend(client, cfg.ValKey.Prefix)), nil, client.Close, nil
	case config.StorageTypeRedis:
		client, err := redisClientFromConfig(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				slogctx.Error(ctx, "Failed to close redis client", "error", err)
			}
		}
		return server.SharedBackend(storageredis.NewBackend(client, cfg.Redis.Prefix)), nil, closeFn, nil
	case config.StorageTypeSQL:
		db, err := dbPoolFromConfig(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		return server.SharedBackend(storagesql.NewBackend(db)), nil, db.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("%w: unknown storage type %q", serviceerr.ErrConfiguration, cfg.Storage.Type)
	}
}

func cookieCodecFromConfig(cfg *config.Config) (*storagecookie.Codec, error) {
	hashKey, err := commoncfg.LoadValueFromSourceRef(cfg.Storage.Cookie.HashKey)
	if err != nil {
		return nil, fmt.Errorf("loading cookie hash key: %w", err)
	}
	if len(hashKey) < minCookieHashKeyLen {
		return nil, fmt.Errorf("%w: cookie hash key must be at least %d bytes", serviceerr.ErrConfiguration, minCookieHashKeyLen)
	}

	blockKey, err := config.LoadOptional(cfg.Storage.Cookie.BlockKey)
	if err != nil {
		return nil, fmt.Errorf("loading cookie block key: %w", err)
	}

	switch len(blockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: cookie block key must be 16, 24 or 32 bytes", serviceerr.ErrConfiguration)
	}

	return storagecookie.NewCodec(hashKey, []byte(blockKey), cfg.Storage.Cookie.Template), nil
}

func valkeyClientFromConfig(cfg *config.Config) (valkey.Client, error) {
	host, user, password, err := config.ValKeyOptions(cfg.ValKey)
	if err != nil {
		return nil, err
	}

	valkeyOpts := valkey.ClientOption{
		InitAddress: []string{host},
		Username:    user,
		Password:    password,
	}

	if cfg.ValKey.SecretRef.Type == commoncfg.MTLSSecretType {
		tlsConfig, err := commoncfg.LoadMTLSConfig(&cfg.ValKey.SecretRef.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading valkey mTLS config from secret ref: %w", err)
		}

		valkeyOpts.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(valkeyOpts)
	if err != nil {
		return nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	return client, nil
}

func redisClientFromConfig(cfg *config.Config) (*redis.Client, error) {
	addr, username, password, err := config.RedisOptions(cfg.Redis)
	if err != nil {
		return nil, err
	}

	opts := &redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       cfg.Redis.DB,
	}

	if cfg.Redis.SecretRef.Type == commoncfg.MTLSSecretType {
		tlsConfig, err := commoncfg.LoadMTLSConfig(&cfg.Redis.SecretRef.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading redis mTLS config from secret ref: %w", err)
		}

		opts.TLSConfig = tlsConfig
	}

	return redis.NewClient(opts), nil
}

func dbPoolFromConfig(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	connStr, err := config.MakeConnStr(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("making dsn from config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing pgxpool config: %w", err)
	}

	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("initialising pgxpool connection: %w", err)
	}

	return db, nil
}

// loadHTTPClient returns the traced client calling the provider and the
// content endpoint.
func loadHTTPClient(cfg *config.Config) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if cfg.AgeGate.MTLS != nil {
		tlsConfig, err := commoncfg.LoadMTLSConfig(cfg.AgeGate.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading mTLS config: %w", err)
		}

		transport.TLSClientConfig = tlsConfig
	}

	return &http.Client{
		Transport: otelhttp.NewTransport(transport),
		Timeout:   cfg.AgeGate.HTTPTimeout,
	}, nil
}
