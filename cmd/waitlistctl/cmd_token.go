package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/organ-waitlist-engine/internal/app"
	"github.com/organ-waitlist-engine/internal/domain"
	"github.com/organ-waitlist-engine/internal/middleware"
)

func newTokenCommand(c *cli) *cobra.Command {
	var (
		actor domain.Actor
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		Long: `Issue an HS256 bearer token signed with auth.jwt_secret.

The subject becomes the actor recorded on matches and priority writes made
through the HTTP API.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := app.LoadConfig(c.configFile)
			if err != nil {
				return err
			}
			auth := manager.GetConfig().Auth
			if auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured; the API runs unauthenticated")
			}

			token, err := middleware.IssueToken(auth, actor, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor.ID, "subject", "", "User id of the token holder")
	cmd.Flags().StringVar(&actor.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&actor.Role, "role", "coordinator", "Role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}
