package main

import (
	"fmt"
	"os"

	"catwatch/internal/app"
	"catwatch/internal/config"
	"catwatch/internal/logger"

	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.3.0"

var (
	cfg        *config.Config
	configFile string
	noMQTT     bool
)

var rootCmd = &cobra.Command{
	Use:           "catwatch",
	Short:         "Watches a camera for cats and people and announces their arrival",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			os.Setenv("CONFIG_FILE", configFile)
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := logger.New(cfg.LogDirectory, cfg.Debug)
		if err != nil {
			return err
		}
		defer log.Close()

		application, err := app.New(cfg, log)
		if err != nil {
			return err
		}
		defer application.Close()

		src, err := application.OpenCamera()
		if err != nil {
			return err
		}

		log.Info("📍 URL: http://localhost%s", cfg.ServerAddress())
		log.Info("📁 Images: %s", cfg.Snapshots.Directory)
		log.Info("🤖 AI Model: %s", cfg.Detector.ModelPath)

		return application.Run(cmd.Context(), src, app.Options{DisableMQTT: noMQTT})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file (overrides CONFIG_FILE)")
	rootCmd.Flags().BoolVar(&noMQTT, "no-mqtt", false, "do not publish notifications to MQTT")
}
