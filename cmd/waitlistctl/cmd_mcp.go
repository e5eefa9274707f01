package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/organ-waitlist-engine/internal/setup"
)

func newMCPCommand() *cobra.Command {
	var clientConfig string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Register the MCP server with a desktop MCP client",
	}
	cmd.PersistentFlags().StringVar(&clientConfig, "client-config", "", "Client config file (default: the desktop client's standard location)")

	resolve := func() (string, error) {
		if clientConfig != "" {
			return clientConfig, nil
		}
		return setup.DefaultClientConfigPath()
	}

	var opts setup.Options
	register := &cobra.Command{
		Use:   "register",
		Short: "Add or update the organ waitlist server entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolve()
			if err != nil {
				return err
			}
			entry, err := setup.Register(path, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s) in %s\n", setup.ServerKey, entry.Command, path)
			return nil
		},
	}
	register.Flags().StringVar(&opts.ServerType, "type", "lite", "Server flavour: lite or full")
	register.Flags().StringVar(&opts.BinaryPath, "binary", "", "Server binary (searched for when empty)")
	register.Flags().StringVar(&opts.DataDir, "server-data-dir", "", "Data directory passed to the lite server")
	register.Flags().StringVar(&opts.SeedFile, "seed-file", "", "Seed file passed to the lite server")
	register.Flags().StringVar(&opts.ConfigFile, "server-config", "", "Config file passed to the full server")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether the server is registered and runnable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolve()
			if err != nil {
				return err
			}
			st, err := setup.GetStatus(path)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), st)
		},
	}

	cmd.AddCommand(register, status)
	return cmd
}
