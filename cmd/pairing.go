package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/gateclaw/internal/config"
	"github.com/nextlevelbuilder/gateclaw/internal/store"
	"github.com/nextlevelbuilder/gateclaw/internal/store/pg"
	"github.com/nextlevelbuilder/gateclaw/internal/store/sqlite"
)

// openStoresForCLI opens the same backend the gateway uses so CLI
// subcommands operate on live state.
func openStoresForCLI() (*store.Stores, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.IsManagedMode() {
		return pg.NewStores(cfg.Database.PostgresDSN)
	}
	return sqlite.NewStores(config.ExpandHome(cfg.Database.Path))
}

func pairingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairing",
		Short: "Manage sender pairing approvals",
	}
	cmd.AddCommand(pairingListCmd())
	cmd.AddCommand(pairingApproveCmd())
	cmd.AddCommand(pairingRevokeCmd())
	return cmd
}

func pairingListCmd() *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending pairing requests and approved senders",
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := openStoresForCLI()
			if err != nil {
				return err
			}
			defer stores.Close()

			pending, err := stores.Pairing.ListPending(channel)
			if err != nil {
				return fmt.Errorf("list pending: %w", err)
			}
			approved, err := stores.Pairing.ListPaired(channel)
			if err != nil {
				return fmt.Errorf("list approved: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PENDING\tCHANNEL\tCODE\tREQUESTED")
			for _, p := range pending {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					p.SenderID, p.Channel, p.Code, p.CreatedAt.Format("2006-01-02 15:04"))
			}
			fmt.Fprintln(w, "\nAPPROVED\tCHANNEL\t\tSINCE")
			for _, a := range approved {
				fmt.Fprintf(w, "%s\t%s\t\t%s\n",
					a.SenderID, a.Channel, a.ApprovedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "filter by channel (empty = all)")
	return cmd
}

func pairingApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <code>",
		Short: "Approve a pending pairing request by code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := openStoresForCLI()
			if err != nil {
				return err
			}
			defer stores.Close()

			p, err := stores.Pairing.Approve(args[0])
			if err != nil {
				return fmt.Errorf("approve: %w", err)
			}
			fmt.Printf("approved %s on %s\n", p.SenderID, p.Channel)
			return nil
		},
	}
}

func pairingRevokeCmd() *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "revoke <sender-id>",
		Short: "Revoke an approved sender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, err := openStoresForCLI()
			if err != nil {
				return err
			}
			defer stores.Close()

			if err := stores.Pairing.Revoke(args[0], channel); err != nil {
				return fmt.Errorf("revoke: %w", err)
			}
			fmt.Printf("revoked %s on %s\n", args[0], channel)
			return nil
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "telegram", "channel the sender was approved on")
	return cmd
}
