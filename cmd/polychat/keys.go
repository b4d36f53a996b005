package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manash/polychat/internal/config"
	"github.com/manash/polychat/internal/keys"
)

func newKeysCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage stored API keys",
		Long: `Manage API keys for the model providers.

Keys are kept in the system keyring when one is available and in keys.json
under the user config directory otherwise. A key given with a flag or an environment
variable always wins over a stored one.`,
	}
	cmd.AddCommand(newKeysSetCmd(app), newKeysGetCmd(app), newKeysListCmd(app), newKeysDeleteCmd(app))
	return cmd
}

func parseKeyProvider(s string) (string, error) {
	p, err := config.ParseProvider(s)
	if err != nil {
		return "", err
	}
	return string(p), nil
}

func newKeysSetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set <provider> [key]",
		Short: "Store an API key, prompting for it when omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseKeyProvider(args[0])
			if err != nil {
				return err
			}
			var key string
			if len(args) == 2 {
				key = args[1]
			} else if key, err = app.ReadPassword(fmt.Sprintf("%s API key: ", p)); err != nil {
				return err
			}

			store, err := app.NewKeyStore()
			if err != nil {
				return err
			}
			where, err := store.Set(p, strings.TrimSpace(key))
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Stored %s key in %s.\n", p, where)
			return nil
		},
	}
}

func newKeysGetCmd(app *App) *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "get <provider>",
		Short: "Show a stored API key, masked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseKeyProvider(args[0])
			if err != nil {
				return err
			}
			store, err := app.NewKeyStore()
			if err != nil {
				return err
			}
			key, err := store.Get(p)
			if err != nil {
				return err
			}
			if key == "" {
				return fmt.Errorf("%w for %s", keys.ErrKeyNotFound, p)
			}
			if !reveal {
				key = keys.MaskKey(key)
			}
			fmt.Fprintln(app.Out, key)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print the key unmasked")
	return cmd
}

func newKeysListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List providers with a stored key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := app.NewKeyStore()
			if err != nil {
				return err
			}
			providers, err := store.List()
			if err != nil {
				return err
			}
			if len(providers) == 0 {
				fmt.Fprintln(app.Out, "No keys stored.")
				return nil
			}
			for _, p := range providers {
				fmt.Fprintln(app.Out, p)
			}
			return nil
		},
	}
}

func newKeysDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <provider>",
		Aliases: []string{"rm"},
		Short:   "Remove a stored API key",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseKeyProvider(args[0])
			if err != nil {
				return err
			}
			store, err := app.NewKeyStore()
			if err != nil {
				return err
			}
			if err := store.Delete(p); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Deleted %s key.\n", p)
			return nil
		},
	}
}
