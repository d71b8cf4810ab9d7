package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Joseda-hg/taskdeck/internal/db"
	"github.com/Joseda-hg/taskdeck/internal/logging"
	"github.com/Joseda-hg/taskdeck/internal/web"
)

const shutdownTimeout = 5 * time.Second

func runServe(ctx context.Context, env *environment, args []string) error {
	var global globalFlags
	fs := newFlagSet("serve", env, &global)
	port := fs.Int("port", 0, "listen port")
	driver := fs.String("db-driver", "", "database driver (sqlite, mysql)")
	dsn := fs.String("db-dsn", "", "database DSN (sqlite file path or mysql DSN)")
	requireKey := fs.String("require-key", "", "reject requests without this apikey header")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, _, err := global.load(env.vars)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *driver != "" {
		cfg.Server.DBDriver = *driver
	}
	if *dsn != "" {
		cfg.Server.DBDSN = *dsn
	}
	if *requireKey != "" {
		cfg.Server.APIKey = *requireKey
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg, env)
	if err != nil {
		return err
	}
	log := logging.Component(logger, "serve")

	conn, err := db.Open(cfg.Server.DBDriver, cfg.Server.DBDSN)
	if err != nil {
		return err
	}
	store := db.NewStore(conn)
	defer store.Close()

	if err := store.SeedCategories(ctx); err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		return err
	}

	handler := web.NewServer(store, web.Options{APIKey: cfg.Server.APIKey, Logger: logger}).Handler()
	log.WithField("driver", cfg.Server.DBDriver).Infof("web server running at http://localhost:%d", cfg.Server.Port)
	return serve(ctx, listener, handler, log)
}

// serve runs handler on listener until ctx is canceled, then drains open
// requests.
func serve(ctx context.Context, listener net.Listener, handler http.Handler, log logrus.FieldLogger) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
