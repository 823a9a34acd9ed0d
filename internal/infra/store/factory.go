package store

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/osa030/flowshift/internal/domain/identity"
	"github.com/osa030/flowshift/internal/infra/config"
	"github.com/osa030/flowshift/internal/infra/supabase"
)

// SQLSettings are the driver settings for sqlite and postgres.
type SQLSettings struct {
	DSN                string `mapstructure:"dsn" validate:"required"`
	MaxOpenConns       int    `mapstructure:"max_open_conns" default:"10" validate:"gte=1"`
	ConnMaxLifetimeSec int    `mapstructure:"conn_max_lifetime_sec" default:"300" validate:"gte=0"`
}

// Open creates the store selected by cfg.Store.Driver.
// The supabase driver needs client; it may be nil for every other driver.
func Open(cfg *config.Config, client *supabase.Client) (Store, error) {
	driver := cfg.Store.Driver
	zlog.Debug().Msgf("store: opening: driver=%s", driver)

	switch driver {
	case config.DriverNone, "":
		return &shared{driver: config.DriverNone, repo: Nop{}}, nil

	case config.DriverSupabase:
		if client == nil {
			return nil, errors.New("store driver supabase requires a supabase client")
		}
		return &hosted{client: client}, nil

	case config.DriverSQLite, config.DriverPostgres:
		settings, err := decodeSQLSettings(cfg.Store.Settings)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s settings", driver)
		}

		var repo *SQLRepository
		if driver == config.DriverSQLite {
			repo, err = NewSQLiteRepository(settings.DSN)
		} else {
			repo, err = NewPostgresRepository(settings.DSN, PoolSettings{
				MaxOpenConns:    settings.MaxOpenConns,
				ConnMaxLifetime: time.Duration(settings.ConnMaxLifetimeSec) * time.Second,
			})
		}
		if err != nil {
			return nil, err
		}
		return &shared{driver: driver, repo: repo}, nil

	default:
		return nil, errors.Newf("unsupported store driver: %s", driver)
	}
}

func decodeSQLSettings(raw map[string]any) (*SQLSettings, error) {
	var settings SQLSettings
	if err := mapstructure.WeakDecode(raw, &settings); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&settings); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(settings); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	return &settings, nil
}

// hosted scopes repositories to the caller's access token,
// or to the service role key when the client has one.
type hosted struct {
	client *supabase.Client
}

func (h *hosted) Scoped(owner identity.Identity, tokens oauth2.TokenSource) Repository {
	if !owner.IsAuthenticated() {
		return Nop{}
	}
	if service := h.client.ServiceTokenSource(); service != nil {
		return h.client.Repository(service)
	}
	if tokens == nil {
		return Nop{}
	}
	return h.client.Repository(tokens)
}

func (h *hosted) Driver() string {
	return config.DriverSupabase
}

func (h *hosted) Close() error {
	return nil
}
