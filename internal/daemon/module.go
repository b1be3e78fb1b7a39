package daemon

import (
	"context"
	"fmt"

	"github.com/nihinconnect/chatd/internal/api"
	"github.com/nihinconnect/chatd/internal/bus"
	"github.com/nihinconnect/chatd/internal/chat"
	"github.com/nihinconnect/chatd/internal/config"
	"github.com/nihinconnect/chatd/internal/lock"
	"github.com/nihinconnect/chatd/internal/logging"
	"github.com/nihinconnect/chatd/internal/rest"
	"github.com/nihinconnect/chatd/internal/session"
	"github.com/nihinconnect/chatd/internal/status"
	"github.com/nihinconnect/chatd/internal/store"
	"github.com/nihinconnect/chatd/internal/ws"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideConfig,
			provideCredentials,
			provideStore,
			provideRESTClient,
			provideManager,
			provideTypist,
			provideProjector,
			providePoller,
			provideHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideConfig() (*config.Config, error) {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("api_base_url not set in %s", session.ConfigPath())
	}
	return cfg, nil
}

func provideCredentials(p Params) (*config.Credentials, error) {
	creds, err := config.LoadCredentials(session.CredentialsPath(p.SessionName))
	if err != nil {
		return nil, fmt.Errorf("load credentials (run 'chatctl login' first): %w", err)
	}
	return creds, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.CacheDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRESTClient(cfg *config.Config, creds *config.Credentials) *rest.Client {
	return rest.New(cfg.APIBaseURL, creds.AccessToken)
}

func provideManager(cfg *config.Config, creds *config.Credentials, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *ws.Manager {
	feed := ws.FeedURL(cfg.APIBaseURL, creds.AccessToken)
	return ws.NewManager(feed, ws.NewWebsocketTransport(), machine, b, logger)
}

func provideTypist(manager *ws.Manager) *chat.Typist {
	return chat.NewTypist(manager)
}

func provideProjector(creds *config.Credentials, client *rest.Client, manager *ws.Manager, typist *chat.Typist, db *store.DB, b *bus.Bus, logger *zap.Logger) *chat.Projector {
	self := rest.User{ID: creds.UserID, Name: creds.UserName, Avatar: creds.UserAvatar}
	return chat.NewProjector(self, client, manager, typist, db, b, logger)
}

func providePoller(projector *chat.Projector, client *rest.Client, b *bus.Bus, logger *zap.Logger) *chat.Poller {
	return chat.NewPoller(projector, client, b, logger)
}

func provideHandler(p Params, machine *status.Machine, projector *chat.Projector, poller *chat.Poller, typist *chat.Typist, db *store.DB, logger *zap.Logger) *api.Handler {
	return api.NewHandler(p.SessionName, machine, projector, poller, typist, db, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, manager *ws.Manager, projector *chat.Projector, poller *chat.Poller, db *store.DB, b *bus.Bus, logger *zap.Logger) {
	stop := make(chan struct{})
	var unsub func()

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Route decoded realtime envelopes into the projector.
			events, u := b.Subscribe(bus.KindWireMessage, 64)
			unsub = u
			go func() {
				for {
					select {
					case evt := <-events:
						if env, ok := evt.Payload.(*ws.Envelope); ok {
							projector.HandleEnvelope(env)
						}
					case <-stop:
						return
					}
				}
			}()

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("control server error", zap.Error(err))
				}
			}()

			manager.EnsureConnected()
			poller.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(stop)
			if unsub != nil {
				unsub()
			}
			poller.Stop()
			manager.Close()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
