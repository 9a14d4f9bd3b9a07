package main

import (
	"context"
	"database/sql"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/sirupsen/logrus"

	"roomchat/internal/auth"
	"roomchat/internal/config"
	"roomchat/internal/database"
	"roomchat/internal/logging"
	"roomchat/internal/presence"
	"roomchat/internal/rooms"
	"roomchat/internal/server"
	"roomchat/internal/store"
	"roomchat/internal/users"
	"roomchat/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logrus.Fatalf("logging: %v", err)
	}
	log.WithFields(logrus.Fields{"env": cfg.Env, "port": cfg.Port, "store": cfg.Store}).Info("config loaded")

	st, db, err := openStore(cfg, log)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	tokens := auth.NewManager(cfg.JWTSecret, cfg.JWTTTLHrs)
	roomSvc := rooms.NewService(st, log.WithField("component", "rooms"))
	userSvc := users.NewService(st, roomSvc, tokens, log.WithField("component", "users"))

	router := ws.NewRouter(log.WithField("component", "router"))
	tracker := presence.NewTracker(userSvc, router, log.WithField("component", "typing"), cfg.TypingTTL)
	sessions := ws.NewManager(router, tokens, userSvc, roomSvc, tracker, log.WithField("component", "ws"))

	srv := server.NewServer(cfg.Addr(), server.Deps{
		DB:            st,
		Authenticator: tokens,
		Users:         userSvc,
		Rooms:         roomSvc,
		Sessions:      sessions,
		WS:            sessions,
		CORSOrigins:   cfg.CORSOrigins,
		Log:           log,
	})
	go func() {
		if err := srv.Run(); err != nil {
			log.Fatalf("server error: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				log.Info("graceful shutdown initiated")
				sessions.Close()
				return srv.Shutdown(ctx)
			},
			"typing": func(ctx context.Context) error {
				tracker.Close()
				return nil
			},
			"database": func(ctx context.Context) error {
				if db == nil {
					return nil
				}
				return db.Close()
			},
		},
	)
	exitCode := <-wait
	log.WithField("code", exitCode).Info("exited")
	os.Exit(exitCode)
}

// openStore returns the configured store. The *sql.DB is nil for the memory
// store.
func openStore(cfg *config.Config, log *logrus.Logger) (store.Store, *sql.DB, error) {
	if cfg.Store == config.StoreMemory {
		log.Warn("using in-memory store; data is lost on restart")
		return store.NewMemory(), nil, nil
	}
	db, err := database.Connect(cfg.DSN, log)
	if err != nil {
		return nil, nil, err
	}
	if err := database.RunMigrations(db, cfg.MigrationsDir, log); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store.NewMySQL(db), db, nil
}
