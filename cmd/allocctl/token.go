package main

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/trainer-seat-allocation/internal/utils"
)

func newIssueTokenCmd() *cobra.Command {
	var (
		trainerID uint64
		ttl       time.Duration
		secret    string
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Issue a TRAINER access token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if trainerID == 0 {
				return errors.New("--trainer is required")
			}
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			tok, err := utils.NewAccessToken(secret, trainerID, utils.RoleTrainer, ttl)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(tok)
		},
	}
	cmd.Flags().Uint64Var(&trainerID, "trainer", 0, "trainer ID (token subject)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to JWT_SECRET)")
	return cmd
}
