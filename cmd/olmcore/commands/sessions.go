package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"olmcore/internal/domain"
)

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions <curve25519 key>",
		Short: "List Olm sessions with a remote device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			curve, err := domain.ParseCurve25519(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			health, err := a.Devices.Health(ctx, curve)
			if err != nil {
				return err
			}
			sessions, err := a.Devices.Sessions(ctx, curve)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Health: %s\n", health)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tCREATED\tLAST USED")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.CreatedAt.Format(time.RFC3339), s.LastUsed.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}
