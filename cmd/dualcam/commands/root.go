package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/DualCam/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "dualcam",
		Short: "DualCam - live camera on two displays with snapshots",
		Long: `DualCam captures frames from a camera into two alternating buffers,
converts them from NV12 to RGB and presents them on two display heads.

Features:
  • Double-buffered capture, never shows a half-written frame
  • Two heads (tv and drc), each streamed as MJPEG or shown in an X11 window
  • Raw NV12 snapshots on demand, convertible to PNG
  • Simulated test-pattern camera or a V4L2 camera through GStreamer
  • REST API and WebSocket event feed`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/dualcam/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig opens the configuration and lets the global flags override
// it for this run.
func loadConfig(cmd *cobra.Command) (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	bindings := map[string]string{
		"server_port": "port",
		"log_level":   "log-level",
	}
	for key, name := range bindings {
		if err := configMgr.BindFlag(key, flags.Lookup(name)); err != nil {
			return nil, err
		}
	}
	return configMgr, nil
}
