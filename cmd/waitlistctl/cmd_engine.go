package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/organ-waitlist-engine/internal/domain"
)

func newRecomputeCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute <recipient-id>",
		Short: "Recompute and store one recipient's priority score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeFn, err := c.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := engine.RecomputePriority(cmd.Context(), c.actor(), args[0])
			if err != nil {
				return fmt.Errorf("recomputing priority: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
}

func newRecomputeWaitlistCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute-waitlist <organ-type>",
		Short: "Recompute priority scores for every active recipient of an organ type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			organ, err := domain.ParseOrganType(args[0])
			if err != nil {
				return err
			}

			engine, closeFn, err := c.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := engine.RecomputeWaitlist(cmd.Context(), c.actor(), organ)
			if err != nil {
				return fmt.Errorf("recomputing waitlist: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
}

func newMatchCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "match <donor-organ-id>",
		Short: "Run a live matching pass for a stored donor organ",
		Long: `Run a live matching pass for a stored donor organ.

The top matches are persisted and coordinators are notified for the highest
ranked candidates. The full ranked list and every rejection are printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeFn, err := c.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := engine.RunMatching(cmd.Context(), c.actor(), args[0])
			if err != nil {
				return fmt.Errorf("running matching: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
}

func newSimulateCommand(c *cli) *cobra.Command {
	var donorFile string

	cmd := &cobra.Command{
		Use:   "simulate --donor-file donor.yaml",
		Short: "Rank the waitlist against a hypothetical donor organ without writing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			donor, err := loadDonorFile(donorFile)
			if err != nil {
				return err
			}

			engine, closeFn, err := c.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := engine.SimulateMatching(cmd.Context(), c.actor(), donor)
			if err != nil {
				return fmt.Errorf("simulating matching: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&donorFile, "donor-file", "", "YAML file describing the hypothetical donor organ")
	_ = cmd.MarkFlagRequired("donor-file")

	return cmd
}

// loadDonorFile decodes a donor organ scenario. Organ and blood type accept the
// same free-form spellings as the API.
func loadDonorFile(path string) (*domain.DonorOrgan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening donor file: %w", err)
	}
	defer f.Close()

	var donor domain.DonorOrgan
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&donor); err != nil {
		return nil, fmt.Errorf("parsing donor file %s: %w", path, err)
	}

	if err := donor.Normalize(); err != nil {
		return nil, err
	}
	return &donor, nil
}

func newExplainCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <donor-organ-id> <recipient-id>",
		Short: "Explain one donor organ and recipient compatibility verdict",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeFn, err := c.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			explanation, err := engine.ExplainCompatibility(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("explaining compatibility: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), explanation)
		},
	}
}

func newWeightsCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Show the priority weight configuration in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeFn, err := c.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			weights, err := engine.ActiveWeights(cmd.Context())
			if err != nil {
				return fmt.Errorf("loading weights: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), weights)
		},
	}

	cmd.AddCommand(newWeightsSetCommand(c))
	return cmd
}

func newWeightsSetCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "set <weights.yaml>",
		Short: "Store and activate a priority weight configuration",
		Long: `Store and activate a priority weight configuration.

The file carries name, the five *_weight factors and decay_rate. The new
configuration replaces the active one and applies to the next recompute.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := loadWeightsFile(args[0])
			if err != nil {
				return err
			}

			engine, closeFn, err := c.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			saved, err := engine.SaveWeights(cmd.Context(), c.actor(), w)
			if err != nil {
				return fmt.Errorf("saving weights: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), saved)
		},
	}
}

func loadWeightsFile(path string) (domain.WeightConfig, error) {
	var w domain.WeightConfig
	f, err := os.Open(path)
	if err != nil {
		return w, fmt.Errorf("opening weights file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&w); err != nil {
		return w, fmt.Errorf("parsing weights file %s: %w", path, err)
	}
	return w, nil
}
