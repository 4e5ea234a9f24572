package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/spf13/cobra"
	"github.com/xueqianLu/ticketdesk/internal/wallet"
)

var (
	walletOut   string
	walletLight bool
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Create and inspect key-store files",
}

var walletNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a new encrypted key-store file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if walletOut == "" {
			return errors.New("--out is required")
		}
		if _, err := os.Stat(walletOut); err == nil {
			return fmt.Errorf("%s already exists", walletOut)
		}

		pass, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		if passphraseEnv == "" {
			again, err := readPassphrase("Repeat passphrase: ")
			if err != nil {
				return err
			}
			if again != pass {
				return errors.New("passphrases do not match")
			}
		}

		n, p := keystore.StandardScryptN, keystore.StandardScryptP
		if walletLight {
			n, p = keystore.LightScryptN, keystore.LightScryptP
		}
		addr, keyJSON, err := wallet.Create(pass, n, p)
		if err != nil {
			return err
		}
		if err := wallet.Save(walletOut, keyJSON); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Address: %s\nKey file: %s\n", addr.Hex(), walletOut)
		return nil
	},
}

var walletInspectCmd = &cobra.Command{
	Use:   "inspect <keystore.json>",
	Short: "Show the envelope of a key-store file without decrypting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		contents, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		d, err := wallet.Inspect(contents)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Address: %s\n", d.Address)
		fmt.Fprintf(out, "ID:      %s\n", d.ID)
		fmt.Fprintf(out, "Version: %d\n", d.Version)
		fmt.Fprintf(out, "Cipher:  %s\n", d.Cipher)
		fmt.Fprintf(out, "KDF:     %s\n", d.KDF)
		for _, k := range d.ParamOrder {
			fmt.Fprintf(out, "  %s = %s\n", k, d.KDFParams[k])
		}
		return nil
	},
}

func init() {
	walletNewCmd.Flags().StringVar(&walletOut, "out", "", "where to write the key-store file")
	walletNewCmd.Flags().BoolVar(&walletLight, "light", false, "use light scrypt parameters (faster, weaker)")
	walletCmd.AddCommand(walletNewCmd, walletInspectCmd)
	rootCmd.AddCommand(walletCmd)
}
