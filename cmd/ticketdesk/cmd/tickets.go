package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xueqianLu/ticketdesk/internal/intent"
	"github.com/xueqianLu/ticketdesk/internal/units"
)

func submitCommand(kind intent.Kind, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <quantity>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := intent.New(kind, args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.Desk.Submit(cmd.Context(), in)
			out := cmd.OutOrStdout()
			if res.Quote != nil {
				fmt.Fprintf(out, "Total: %s ETH\n", units.FormatEther(res.Quote.Total))
			}
			fmt.Fprintln(out, res.Outcome.Message)
			if !res.Success() {
				return fmt.Errorf("%s: %s", in, res.Outcome.Kind)
			}
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(
		submitCommand(intent.Buy, "buy", "Buy tickets"),
		submitCommand(intent.Redeem, "redeem", "Redeem tickets you hold"),
	)
}
