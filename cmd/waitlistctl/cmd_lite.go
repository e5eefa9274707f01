package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

func newLiteCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lite",
		Short: "Manage the standalone SQLite store",
		Long: `Manage the SQLite store used by the lite MCP server.

The store lives under --data-dir. Match history can be exported as versioned
JSON for review and imported into another store.`,
	}

	cmd.AddCommand(newLiteSeedCommand(c))
	cmd.AddCommand(newLiteExportCommand(c))
	cmd.AddCommand(newLiteImportCommand(c))

	return cmd
}

func newLiteSeedCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <seed.json>",
		Short: "Load users, recipients, donor organs and weight configurations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening seed file: %w", err)
			}
			defer f.Close()

			lite, err := c.openLiteStore()
			if err != nil {
				return err
			}
			defer lite.store.Close()

			seed, err := lite.store.LoadSeed(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d users, %d recipients, %d donor organs, %d weight configs into %s\n",
				len(seed.Users), len(seed.Recipients), len(seed.DonorOrgans), len(seed.WeightConfigs), lite.store.Path())
			return nil
		},
	}
}

func newLiteExportCommand(c *cli) *cobra.Command {
	var donorOrganID, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export persisted matches as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lite, err := c.openLiteStore()
			if err != nil {
				return err
			}
			defer lite.store.Close()

			if out == "" {
				out = filepath.Join(lite.cfg.ExportDir(), fmt.Sprintf("matches-%s.json", time.Now().UTC().Format("20060102T150405")))
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating export file: %w", err)
			}
			defer f.Close()

			if err := lite.store.ExportMatches(cmd.Context(), f, donorOrganID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported matches to %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVar(&donorOrganID, "donor", "", "Only export matches for this donor organ")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default a timestamped file in the export directory)")

	return cmd
}

func newLiteImportCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import <export.json>",
		Short: "Import matches from an export, skipping ones already present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening import file: %w", err)
			}
			defer f.Close()

			lite, err := c.openLiteStore()
			if err != nil {
				return err
			}
			defer lite.store.Close()

			imported, skipped, err := lite.store.ImportMatches(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d matches, skipped %d\n", imported, skipped)
			return nil
		},
	}
}
