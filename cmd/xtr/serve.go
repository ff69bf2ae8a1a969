package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/franz/xeenaps-tracer/internal/api"
	"github.com/franz/xeenaps-tracer/internal/broadcast"
	"github.com/franz/xeenaps-tracer/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the library and tracer over HTTP",
	Long: `Serve the library and tracer over HTTP.

Item routes live under /api/items, tracer routes under /api/projects,
/api/references, /api/todos and /api/finance. Prometheus metrics are
exposed on /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "listen address")
	viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, topic := range []broadcast.Topic{broadcast.TracerUpdated, broadcast.TracerDeleted, broadcast.TodoUpdated, broadcast.TodoDeleted} {
		unsubscribe := a.bus.Subscribe(topic, func(e broadcast.Event) {
			util.DebugLog("Broadcast %s %s", e.Topic, e.ID)
		})
		defer unsubscribe()
	}

	opts := api.Options{
		Items:  a.db,
		Tracer: a.tracer,
		Blobs:  a.blobs,
		Events: a.events,
	}
	if a.ai != nil {
		opts.AI = a.ai
		opts.Citer = a.ai
		opts.Quotes = a.ai
	}

	addr := GetConfigString("serve.addr", ":8080")
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.New(opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		util.InfoLog("Listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	util.InfoLog("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
