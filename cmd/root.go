// Package cmd implements the bratwurstpower command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/qetesh/bratwurstpower/app"
	"github.com/qetesh/bratwurstpower/config"
	"github.com/qetesh/bratwurstpower/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "bratwurstpower",
	Short:         "Power monitoring and pin control for the Bratwurst Power board",
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (default ./bratwurstpower.yaml, then /etc/bratwurstpower.yaml)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// loadConfig reads the configuration and applies its log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.SetLevel(cfg.General.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New("main")
	log.Infof("starting on %s", cfg.General.Hostname)
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Errorf("service close: %v", err)
		}
		log.Infof("stopped")
	}()
	return svc.Run(ctx)
}
