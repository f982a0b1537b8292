package cliplugins

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"drilltrack/internal/app"
	"drilltrack/internal/config"
	"drilltrack/internal/util/logger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

type ServeCommand struct {
	cmd *cobra.Command
}

func NewServeCommand() *ServeCommand {
	return &ServeCommand{}
}

func (s *ServeCommand) Meta() *cobra.Command {
	if s.cmd != nil {
		return s.cmd
	}
	s.cmd = &cobra.Command{
		Use:   "serve",
		Short: "Run discovery and the data server",
		Long: "Opens storage, starts the discovery service, the HTTP data server and the " +
			"spool import as configured, and stops them gracefully on SIGINT or SIGTERM.",
	}
	return s.cmd
}

func (s *ServeCommand) Execute(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(config.ResolvePath(path))
	if err != nil {
		return err
	}

	log, closer := logger.Setup(cfg.Env, logger.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer closer.Close()

	if cfg.Env != logger.EnvLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("starting drilltrack",
		slog.String("env", cfg.Env),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("db", cfg.Storage.Path),
	)

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		a.Stop(context.Background())
		return fmt.Errorf("failed to start: %w", err)
	}

	ing := a.Ingestion.Status()
	disc := a.Discovery.Status()
	log.Info("drilltrack started",
		slog.Bool("data_server", ing.Running),
		slog.String("ip", ing.IPAddress),
		slog.Int("http_port", int(ing.Port)),
		slog.Bool("discovery", disc.Active),
		slog.Int("discovery_port", int(disc.Port)),
	)

	<-ctx.Done()
	log.Info("Shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Ingestion.ShutdownTimeout)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		return err
	}

	log.Info("drilltrack stopped", slog.Uint64("received", a.Ingestion.Status().ReceivedCount))
	return nil
}
