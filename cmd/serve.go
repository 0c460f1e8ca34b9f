package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/mgmu/hortus/internal/records"
	"github.com/mgmu/hortus/web/handlers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := setup(ctx, cmd)
		if err != nil {
			return err
		}
		defer env.close(context.Background())
		return serve(ctx, env)
	},
}

func init() {
	serveCmd.Flags().String("port", "", "port to listen on (default 3000)")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, env *environment) error {
	cfg, log := env.cfg, env.log
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	svc := records.NewService(env.db,
		records.WithLogger(log.Named("records")),
		records.WithTimeout(cfg.Store.Timeout),
	)
	h, err := handlers.New(svc, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      h.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.Prune.Interval > 0 {
		pruner := records.NewPruner(svc, cfg.Prune.Interval, log)
		g.Go(func() error {
			return pruner.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("Server stopped", zap.Error(err))
		return err
	}
	log.Info("Server exited gracefully")
	return nil
}
