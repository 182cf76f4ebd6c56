package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/clawline/internal/identity"
)

func identityCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Show or reset this device's signing identity",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the device id and public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(f)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "device id:  %s\n", a.id.DeviceID())
			fmt.Fprintf(out, "public key: %s\n", a.id.PublicKeyBase64URL())
			fmt.Fprintf(out, "key file:   %s\n", filepath.Join(a.home, "device_key.yaml"))

			paired := pairedAgents(a.tokens)
			for _, ag := range a.cfg.Agents {
				fmt.Fprintf(out, "agent %-12s paired: %s\n", ag.Name, yesNo(paired[ag.ID]))
			}
			return nil
		},
	})

	var yesFlag bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Generate a new keypair; every agent must pair again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yesFlag {
				return fmt.Errorf("this discards the device key and all device tokens; rerun with --yes")
			}
			a, err := loadApp(f)
			if err != nil {
				return err
			}
			defer a.Close()

			old := a.id.DeviceID()
			if err := a.keys.Delete(); err != nil {
				return err
			}
			if err := a.tokens.Clear(); err != nil {
				return err
			}
			id, err := identity.LoadOrCreate(a.keys)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "old device id: %s\nnew device id: %s\n", old, id.DeviceID())
			return nil
		},
	}
	reset.Flags().BoolVar(&yesFlag, "yes", false, "confirm the reset")
	cmd.AddCommand(reset)
	return cmd
}
