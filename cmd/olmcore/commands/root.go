package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"olmcore/internal/app"
)

var (
	home       string
	configPath string
	passphrase string
	cfg        *app.Config
)

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return newRoot().ExecuteContext(ctx)
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "olmcore",
		Short:        "Olm and Megolm end-to-end encryption core",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := app.Load(home, configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "state dir (default ~/.olmcore)")
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <home>/config.toml)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the pickle key")

	root.AddCommand(initCmd(), keysCmd(), verifyCmd(), sessionsCmd())
	return root
}

// openApp unwraps the pickle key and wires the application.
func openApp(ctx context.Context) (*app.App, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase required (-p)")
	}
	key, err := app.LoadKey(cfg, passphrase)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, key)
}
