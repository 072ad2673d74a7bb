package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"olmcore/internal/domain"
	"olmcore/internal/signatures"
)

func verifyCmd() *cobra.Command {
	var (
		signer string
		keyID  string
		key    string
	)
	cmd := &cobra.Command{
		Use:   "verify [file]",
		Short: "Verify a signed JSON object (device keys when no key is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			if len(args) == 0 || args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			if key == "" {
				dk, err := signatures.VerifyDeviceKeysJSON(raw)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "OK: device %s of %s\n", dk.DeviceID, dk.UserID)
				return nil
			}

			pub, err := domain.ParseEd25519(key)
			if err != nil {
				return err
			}
			if err := signatures.VerifyJSON(raw, domain.UserID(signer), keyID, pub); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&signer, "signer", "", "user id under signatures")
	cmd.Flags().StringVar(&keyID, "key-id", "", `key id under the signer, e.g. "ed25519:DEVICE"`)
	cmd.Flags().StringVar(&key, "key", "", "unpadded base64 Ed25519 public key")
	return cmd
}
