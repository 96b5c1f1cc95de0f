package main

import (
	"github.com/Laisky/errors/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seti-park/Skyscanner/internal/monitor"
	"github.com/seti-park/Skyscanner/internal/notify"
	"github.com/seti-park/Skyscanner/internal/providers"
)

var runCMD = &cobra.Command{
	Use:   "run",
	Short: "run one monitoring pass",
	Long:  `search, optionally confirm prices, qualify and notify, then exit`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, lg, err := setup(cmd)
		if err != nil {
			return err
		}

		tg, err := notify.NewTelegram(cfg.Telegram, lg)
		if err != nil {
			return errors.Wrap(err, "new telegram")
		}
		amadeus := providers.NewAmadeus(cfg, lg)

		report, err := monitor.New(cfg, amadeus, tg, lg).Run(cmd.Context())
		if err != nil {
			return errors.Wrapf(err, "run %s", report.RunID)
		}

		fields := []zap.Field{
			zap.String("run_id", report.RunID),
			zap.Int("offers", report.OffersSeen),
			zap.Int("qualified", len(report.Flights)),
			zap.Duration("elapsed", report.Elapsed),
		}
		if report.Delivery != nil {
			fields = append(fields, zap.Bool("delivered", report.Delivery.Delivered))
		}
		lg.Info("pass complete", fields...)
		return nil
	},
}

func init() {
	rootCMD.AddCommand(runCMD)
}
