package nakama

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"

	"truco/internal/app"
	"truco/internal/config"
	"truco/internal/ports"
	"truco/internal/ports/natsbus"
	"truco/internal/ports/postgres"
)

// natsClientName identifies this module's connection on the NATS server.
const natsClientName = "truco-nakama"

// InitModule wires configuration, persistence, publishers and RPCs for the Nakama runtime.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	cfg, err := config.Load("", env)
	if err != nil {
		logger.Error("Truco: invalid configuration: %v", err)
		return err
	}

	store, err := newGameStore(ctx, cfg, db, nk)
	if err != nil {
		logger.Error("Truco: failed to set up %s persistence: %v", cfg.Persistence, err)
		return err
	}

	var links *app.LinkService
	if cfg.Link.Secret != "" {
		links = app.NewLinkService(cfg.Link.Secret, cfg.Link.Issuer, cfg.Link.TTL())
	} else {
		logger.Warn("Truco: %s is empty, invite links are disabled", config.EnvLinkSecret)
	}

	service := app.NewService(app.Deps{
		Store:    store,
		Accounts: NewNakamaAccountAdapter(nk),
		Links:    links,
		Bindings: NewNakamaLinkBindingAdapter(nk),
	}, app.Options{
		AutoFinish:     cfg.AutoFinish,
		ValidateDevice: cfg.Link.ValidateDevice,
	})

	if err := RegisterRPCs(initializer, NewModule(service, newPublishers(logger, cfg, nk)...)); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"persistence": string(cfg.Persistence),
		"auto_finish": cfg.AutoFinish,
	}).Info("Truco Go module loaded.")
	return nil
}

func newGameStore(ctx context.Context, cfg config.Config, db *sql.DB, nk StorageEngine) (ports.GameStore, error) {
	switch cfg.Persistence {
	case config.PersistenceStorage:
		return NewStorageStore(nk), nil
	case config.PersistenceSQL:
		if db == nil {
			return nil, fmt.Errorf("no database handle")
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		return postgres.NewStore(db), nil
	default:
		return nil, fmt.Errorf("unknown persistence %q", cfg.Persistence)
	}
}

// newPublishers returns the configured event sinks. A NATS server that cannot
// be reached is logged and skipped so the module still loads.
func newPublishers(logger runtime.Logger, cfg config.Config, nk NotificationSender) []ports.EventPublisher {
	var publishers []ports.EventPublisher
	if cfg.Notify {
		publishers = append(publishers, NewNotifier(nk))
	}
	if cfg.NATS.URL != "" {
		conn, err := natsbus.Connect(cfg.NATS.URL, natsClientName)
		if err != nil {
			logger.Warn("Truco: NATS unavailable at %s, event fan-out disabled: %v", cfg.NATS.URL, err)
		} else {
			publishers = append(publishers, natsbus.NewPublisher(conn, cfg.NATS.Subject))
		}
	}
	return publishers
}
