package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xueqianLu/ticketdesk/internal/intent"
	"github.com/xueqianLu/ticketdesk/internal/units"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show ETH balance, tickets held and tickets available",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.Desk.Refresh(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Address:   %s\n", snap.Account.Hex())
		fmt.Fprintf(out, "Balance:   %s ETH\n", units.FormatEther(snap.NativeBalance))
		fmt.Fprintf(out, "Tickets:   %s\n", snap.Tickets)
		fmt.Fprintf(out, "Available: %s\n", snap.Inventory)
		return nil
	},
}

var quoteCmd = &cobra.Command{
	Use:   "quote <quantity>",
	Short: "Price a number of tickets at the current unit price",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quantity, err := intent.ParseQuantity(args[0])
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		q, err := a.Desk.Quote(cmd.Context(), quantity)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d × %s ETH = %s ETH\n", quantity, units.FormatEther(q.UnitPrice), units.FormatEther(q.Total))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd, quoteCmd)
}
