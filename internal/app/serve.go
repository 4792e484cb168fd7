package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"marketwatch/internal/series"
	"marketwatch/internal/server"
)

const shutdownGrace = 10 * time.Second

// Serve runs the HTTP API until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot serve")
	}
	if closeStore != nil {
		defer closeStore()
	}

	engine := series.NewEngine(store, a.Logger)
	sync := a.newSyncer(store)

	handler := server.NewHandler(engine, sync, a.Config.Server.AdminToken, a.Logger)
	router := server.NewRouter(handler, a.Logger)

	srv := &http.Server{
		Addr:    a.Config.Server.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	a.Logger.Info().Str("addr", srv.Addr).Msg("http server started")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.Info().Msg("shutting down http server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}
