package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/gateclaw/internal/config"
	"github.com/nextlevelbuilder/gateclaw/internal/sessions"
)

func openSessionManager() (*sessions.Manager, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return sessions.NewManager(config.ExpandHome(cfg.Sessions.Storage)), nil
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage conversation sessions",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsResetCmd())
	cmd.AddCommand(sessionsActivationCmd())
	return cmd
}

func sessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known conversation sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openSessionManager()
			if err != nil {
				return err
			}

			list := mgr.List()
			if len(list) == 0 {
				fmt.Println("no sessions")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CONVERSATION\tTURNS\tACTIVATION\tUPDATED")
			for _, s := range list {
				activation := string(s.Activation)
				if activation == "" {
					activation = "-"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
					string(s.Key), s.TurnCount, activation, s.Updated.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

func sessionsResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <conversation-key>",
		Short: "Reset a conversation session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openSessionManager()
			if err != nil {
				return err
			}
			mgr.Reset(sessions.ConversationKey(args[0]))
			fmt.Printf("reset %s\n", args[0])
			return nil
		},
	}
}

func sessionsActivationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activation <conversation-key> <always|mention|none>",
		Short: "Override group mention gating for one conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var a sessions.Activation
			switch args[1] {
			case "always":
				a = sessions.ActivationAlways
			case "mention":
				a = sessions.ActivationMention
			case "none":
				a = sessions.ActivationNone
			default:
				return fmt.Errorf("unknown activation %q (want always, mention or none)", args[1])
			}

			mgr, err := openSessionManager()
			if err != nil {
				return err
			}
			mgr.SetActivation(sessions.ConversationKey(args[0]), a)
			fmt.Printf("activation for %s set to %s\n", args[0], args[1])
			return nil
		},
	}
}
