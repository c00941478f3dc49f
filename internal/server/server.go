// Package server wires the independently-runnable pieces (storage,
// lobbyregistry, connregistry, transport) into one process, the role
// canasta-server's server.go played for ConnectionManager/GameManager/
// SessionManager/PersistenceManager. NewServer's shape — migrate, build
// managers, start background tasks, hand back both the Server and the
// *http.Server — is kept; what each step constructs is not.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"fourinarow-server/internal/config"
	"fourinarow-server/internal/connregistry"
	"fourinarow-server/internal/contracts"
	"fourinarow-server/internal/lobbyregistry"
	"fourinarow-server/internal/logging"
	"fourinarow-server/internal/storage"
	"fourinarow-server/internal/transport"

	"github.com/sirupsen/logrus"
)

// closer is the slice of storage.Store/storage.Memory this package
// actually depends on: a health probe and a shutdown hook.
type closer interface {
	contracts.UserDirectory
	contracts.MessageArchive
	Health(ctx context.Context) error
	Close()
}

type Server struct {
	log    *logrus.Logger
	store  closer
	lobby  *lobbyregistry.Registry
	conns  *connregistry.Registry
	hub    *transport.Hub
	cancel context.CancelFunc
}

// NewServer builds the Server and its *http.Server, the same two-value
// return NewServer always had so cmd/api/main.go's gracefulShutdown
// keeps working unchanged.
func NewServer() (*Server, *http.Server) {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	store := openStore(cfg, log)

	lobby := lobbyregistry.New(store, store)
	conns := connregistry.New(lobby, store)
	lobby.SetNotifier(conns)
	hub := transport.New(log, cfg, lobby, store, conns)

	ctx, cancel := context.WithCancel(context.Background())
	go lobby.Run(ctx)
	go conns.Run(ctx)
	go hub.Run(ctx)

	srv := &Server{
		log:    log,
		store:  store,
		lobby:  lobby,
		conns:  conns,
		hub:    hub,
		cancel: cancel,
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      hub.Handler(srv.health),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.WithField("port", cfg.Port).Info("server: listening")
	return srv, httpServer
}

// openStore picks storage.Store over Postgres when DATABASE_URL is
// configured, running migrations first, and falls back to storage.Memory
// otherwise — the teacher always assumed a database; this module runs
// fine for local development and tests without one.
func openStore(cfg config.Config, log *logrus.Logger) closer {
	if cfg.DatabaseURL == "" {
		log.Warn("server: no DATABASE_URL configured, using in-memory storage")
		return storage.NewMemory(storage.SystemClock{})
	}

	if err := storage.Migrate(cfg.DatabaseURL); err != nil {
		log.WithError(err).Fatal("server: applying migrations")
	}

	store, err := storage.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("server: connecting to storage")
	}
	return store
}

func (s *Server) health() error {
	return s.store.Health(context.Background())
}

// Shutdown stops the background actors and closes storage. Unlike the
// teacher's Shutdown, there is no per-game state to flush: a Lobby's
// state lives only as long as its actor goroutine, the same way
// client_state.rs never persisted mid-game state either — a dropped
// connection reconnects via its token, it does not resume from disk.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("server: beginning graceful shutdown")
	s.cancel()
	s.store.Close()
	s.log.Info("server: graceful shutdown complete")
	return nil
}
