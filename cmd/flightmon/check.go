package main

import (
	"fmt"

	"github.com/Laisky/errors/v2"
	"github.com/spf13/cobra"

	"github.com/seti-park/Skyscanner/internal/notify"
	"github.com/seti-park/Skyscanner/internal/providers"
)

var checkCMD = &cobra.Command{
	Use:   "check",
	Short: "verify configuration and connectivity",
	Long:  `validates the configuration, fetches an Amadeus token and sends a Telegram test message`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		cfg, lg, err := setup(cmd)
		if err != nil {
			fmt.Fprintf(out, "❌ configuration: %v\n", err)
			return err
		}
		fmt.Fprintln(out, "✅ configuration valid")

		var failed bool
		if err := providers.NewAmadeus(cfg, lg).Authenticate(cmd.Context()); err != nil {
			fmt.Fprintf(out, "❌ amadeus: %v\n", err)
			failed = true
		} else {
			fmt.Fprintln(out, "✅ amadeus token issued")
		}

		tg, err := notify.NewTelegram(cfg.Telegram, lg)
		if err != nil {
			return errors.Wrap(err, "new telegram")
		}
		res := tg.Send(cmd.Context(), notify.Message{
			Text: fmt.Sprintf("🔧 Test message: flight monitor for %s → %s is working", cfg.Search.Origin, cfg.Search.Destination),
		})
		if !res.Delivered {
			fmt.Fprintf(out, "❌ telegram: %v\n", res.Err)
			failed = true
		} else {
			fmt.Fprintln(out, "✅ telegram message sent")
		}

		if failed {
			return errors.New("connectivity check failed")
		}
		return nil
	},
}

func init() {
	rootCMD.AddCommand(checkCMD)
}
