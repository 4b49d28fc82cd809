package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Run alert jobs once",
}

var alertsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate active alerts and notify subscribers",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Evaluator.CheckAlerts(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("alert check complete",
			zap.Int("evaluated", res.Evaluated),
			zap.Int("fired", res.Fired),
			zap.Int("no_price", res.NoPrice),
			zap.Int("failed", res.Failed),
		)
		return nil
	},
}

var alertsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Send the daily price summary to every subscriber",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Evaluator.SendDailySummaries(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("daily summary complete",
			zap.Int("phones", res.Phones),
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
		)
		return nil
	},
}

func init() {
	alertsCmd.AddCommand(alertsCheckCmd, alertsSummaryCmd)
	rootCmd.AddCommand(alertsCmd)
}
