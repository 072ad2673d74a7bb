package commands

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"olmcore/internal/app"
	"olmcore/internal/domain"
)

func initCmd() *cobra.Command {
	var (
		user     string
		deviceID string
		otks     int
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate the pickle key and the Olm account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			if user == "" {
				return fmt.Errorf("user id required (--user)")
			}
			if deviceID == "" {
				deviceID = strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
			}

			key, err := app.CreateKey(cfg, passphrase)
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, key)
			if err != nil {
				return err
			}
			defer a.Close()

			acc, fp, err := a.Accounts.Create(cmd.Context(), domain.UserID(user), domain.DeviceID(deviceID), otks)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account created.\nUser: %s\nDevice: %s\nIdentity key: %s\nFingerprint: %s\n",
				acc.UserID, acc.DeviceID, acc.IdentityPub, fp)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Matrix user id, e.g. @alice:example.org")
	cmd.Flags().StringVar(&deviceID, "device", "", "device id (default: random)")
	cmd.Flags().IntVar(&otks, "one-time-keys", 50, "number of one-time keys to generate")
	return cmd
}
