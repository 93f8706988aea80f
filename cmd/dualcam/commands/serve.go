package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/DualCam/internal/api"
	"github.com/bryanchriswhite/DualCam/internal/app"
	"github.com/bryanchriswhite/DualCam/internal/camera"
	"github.com/bryanchriswhite/DualCam/internal/logger"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the camera and the HTTP server",
	Long: `Open the camera, present it on every configured head and serve the
API and MJPEG streams.

SIGUSR1 takes a snapshot and SIGUSR2 re-opens a suspended camera session,
the same as the capture and reopen buttons.`,
	Example: `  # Start with the simulated camera on the default port (8080)
  dualcam serve

  # Start on a custom port with debug logging
  dualcam serve --port 9090 --log-level debug

  # Take a snapshot from another terminal
  pkill -USR1 dualcam`,
	RunE: runServe,
}

var (
	noWindows  bool
	jsonOutput bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&noWindows, "no-window", false, "do not open X11 windows for heads")
	serveCmd.Flags().BoolVar(&jsonOutput, "json-logs", false, "log JSON instead of console output")
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg := configMgr.Get()

	logger.Init(cfg.LogLevel, !jsonOutput)
	log := logger.WithComponent("serve")
	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	a, err := app.New(cfg, app.Options{NoWindows: noWindows})
	if err != nil {
		var envErr *camera.EnvironmentError
		if errors.As(err, &envErr) {
			return fmt.Errorf("camera unavailable: %w", err)
		}
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close camera")
		}
	}()

	server := api.NewServer(a, configMgr)
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.Start(cfg.ServerPort)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() {
		runErr <- a.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigChan)

	log.Info().
		Str("web_ui", fmt.Sprintf("http://localhost:%d", cfg.ServerPort)).
		Strs("heads", a.Heads()).
		Msg("DualCam is running, press Ctrl+C to stop")

	var loopErr error
wait:
	for {
		select {
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGUSR1:
				a.Snapshot()
			case syscall.SIGUSR2:
				a.Resume()
			default:
				log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully")
				break wait
			}
		case err := <-runErr:
			loopErr = err
			runErr = nil
			break wait
		case err := <-srvErr:
			if err != nil {
				loopErr = fmt.Errorf("server error: %w", err)
			}
			break wait
		}
	}

	cancel()
	if runErr != nil {
		if err := <-runErr; err != nil && loopErr == nil {
			loopErr = err
		}
	}

	// Closing the app ends the MJPEG and event handlers, so Shutdown does
	// not wait on them.
	if err := a.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close camera")
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown failed")
	}
	return loopErr
}
