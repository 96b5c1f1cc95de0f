package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Laisky/errors/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seti-park/Skyscanner/internal/config"
	"github.com/seti-park/Skyscanner/internal/logger"
)

var rootCMD = &cobra.Command{
	Use:           "flightmon",
	Short:         "flight price monitor",
	Long:          `searches one round trip on Amadeus and reports qualifying offers to Telegram`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCMD.PersistentFlags().StringP("config", "c", "", "config file path (default: $FLIGHTMON_CONFIG or ./config.yaml)")
	rootCMD.PersistentFlags().Bool("debug", false, "log at debug level")
}

// setup loads and validates the configuration and installs the process logger.
func setup(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load config")
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Log.Level = "debug"
	}

	lg, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "new logger")
	}
	logger.SetGlobal(lg)

	if err := cfg.Validate(); err != nil {
		return nil, lg, err
	}
	return cfg, lg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCMD.ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.L().Error("flightmon failed", zap.Error(err))
		_ = logger.L().Sync()
		os.Exit(1)
	}
	_ = logger.L().Sync()
}
