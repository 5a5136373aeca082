package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/relay/internal/adapters/http"
	"github.com/dkeye/relay/internal/adapters/rtc"
	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/app/orch"
	"github.com/dkeye/relay/internal/config"
	"github.com/dkeye/relay/internal/storage"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "relay",
	Short:         "Presence, call signaling and room mesh relay",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	rootCmd.Flags().Int("port", 8080, "listen port")
	rootCmd.Flags().String("mode", "release", "gin mode: debug or release")
}

func main() {
	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("relay exited")
		os.Exit(1)
	}
}

func run(cmd *cobra.Command) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg)

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("close storage")
		}
	}()

	reg := app.NewRegistry()
	presence := app.NewPresence(db, reg)
	o := &orch.Orchestrator{
		Registry:   reg,
		Presence:   presence,
		Calls:      app.NewCalls(reg, presence, cfg.RingTimeout),
		Rooms:      app.NewRooms(reg, app.PolicyByName(cfg.FrameBackpressure), cfg.MeshEnforceInitiator),
		Transfers:  app.NewTransfers(db, reg),
		ICEServers: rtc.DefaultICEServers(),
	}

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("relay server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}

func setupLogger(cfg *config.Config) {
	if cfg.Mode == "debug" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
