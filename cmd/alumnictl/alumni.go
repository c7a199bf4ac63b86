package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/alumni-portal-api/internal/models"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import scraped alumni profiles from a JSON array",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var records []models.RawProfileRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return fmt.Errorf("decode %s: %w", args[0], err)
		}

		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.alumni.Import(cmd.Context(), records, "", models.RequestMeta{UserAgent: "alumnictl"})
		if err != nil {
			return err
		}
		cmd.Printf("received %d, stored %d, skipped %d\n", summary.Received, summary.Accepted, summary.Skipped)
		return nil
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Recompute derived batch, branch and company fields",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		updated, err := a.alumni.Reindex(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("updated %d profiles\n", updated)
		return nil
	},
}

var makeAdminCmd = &cobra.Command{
	Use:   "make-admin EMAIL",
	Short: "Grant the admin role to an existing account and approve it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.users.MakeAdmin(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		cmd.Printf("%s is now %s\n", user.Email, user.Role)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd, reindexCmd, makeAdminCmd)
}
