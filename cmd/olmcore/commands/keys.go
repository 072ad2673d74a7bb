package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"olmcore/internal/services/identity"
)

func keysCmd() *cobra.Command {
	var (
		generate int
		publish  bool
	)
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Print signed device keys and unpublished one-time keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if generate > 0 {
				if err := a.Accounts.Update(ctx, func(acc *identity.Account) error {
					return acc.GenerateOneTimeKeys(generate)
				}); err != nil {
					return err
				}
			}

			acc, err := a.Accounts.Account(ctx)
			if err != nil {
				return err
			}
			deviceKeys, err := acc.DeviceKeys()
			if err != nil {
				return err
			}
			oneTime, err := acc.SignedOneTimeKeys()
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]any{
				"device_keys":   deviceKeys,
				"one_time_keys": oneTime,
				"fingerprint":   acc.Fingerprint(),
			}); err != nil {
				return err
			}

			if publish {
				return a.Accounts.Update(ctx, func(acc *identity.Account) error {
					acc.MarkKeysAsPublished()
					return nil
				})
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&generate, "generate", 0, "generate this many new one-time keys first")
	cmd.Flags().BoolVar(&publish, "mark-published", false, "mark the printed one-time keys as published")
	return cmd
}
