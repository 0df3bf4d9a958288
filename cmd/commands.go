package cmd

import (
	"context"
	"fmt"

	"github.com/OjusWiZard/triton-bot/pkg/notifier"
	"github.com/spf13/cobra"
)

// oneShot builds the app, renders a report and prints it. With --notify the report is also
// sent through the notification sink.
func oneShot(render func(ctx context.Context, a *app) (string, notifier.Format)) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := buildApp(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		text, format := render(ctx, a)
		fmt.Fprintln(cmd.OutOrStdout(), text)

		if notify, _ := cmd.Flags().GetBool("notify"); notify {
			return a.sink.SendMessage(ctx, text, format)
		}
		return nil
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the staking status and accrued rewards of every service",
	RunE: oneShot(func(ctx context.Context, a *app) (string, notifier.Format) {
		return a.fleet.StatusReport(ctx), notifier.Format_Plain
	}),
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the wallet balances of every service",
	RunE: oneShot(func(ctx context.Context, a *app) (string, notifier.Format) {
		return a.fleet.BalanceReport(ctx), notifier.Format_MarkdownV2
	}),
}

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim the accrued rewards of every service into its Safe",
	RunE: oneShot(func(ctx context.Context, a *app) (string, notifier.Format) {
		return a.fleet.ManualClaim(ctx)
	}),
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Move the reward token balance of every Safe to its withdrawal address",
	RunE: oneShot(func(ctx context.Context, a *app) (string, notifier.Format) {
		return a.fleet.ManualWithdraw(ctx)
	}),
}

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "Show the free slots of the configured staking programs",
	RunE: oneShot(func(ctx context.Context, a *app) (string, notifier.Format) {
		return a.fleet.SlotsReport(ctx), notifier.Format_Plain
	}),
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, balanceCmd, claimCmd, withdrawCmd, slotsCmd} {
		c.Flags().Bool("notify", false, `Also send the report to the notification sinks`)
	}
}
