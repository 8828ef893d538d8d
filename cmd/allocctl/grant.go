package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/trainer-seat-allocation/internal/allocation"
)

func newGrantCmd() *cobra.Command {
	var (
		req  allocation.GrantRequest
		days int
	)
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant standalone tokens to a trainer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.TrainerID == 0 {
				return errors.New("--trainer is required")
			}
			svc, db, acfg, err := openService(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			if days <= 0 {
				days = acfg.StandaloneTokenDays
			}
			req.ValidFor = time.Duration(days) * 24 * time.Hour
			tok, err := svc.GrantTokens(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tok)
		},
	}
	cmd.Flags().Uint64Var(&req.TrainerID, "trainer", 0, "trainer ID")
	cmd.Flags().IntVar(&req.Quantity, "quantity", 1, "number of units")
	cmd.Flags().IntVar(&days, "days", 0, "validity in days (defaults to STANDALONE_TOKEN_DAYS)")
	cmd.Flags().StringVar(&req.GrantedBy, "by", "allocctl", "operator recorded as grantor")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "free-form grant reason")
	cmd.Flags().StringVar(&req.Reference, "ref", "", "external reference such as an invoice id, up to 100 characters (generated when empty)")
	return cmd
}

func newEligibleCmd() *cobra.Command {
	var trainerID uint64
	cmd := &cobra.Command{
		Use:   "eligible",
		Short: "List students a trainer may reactivate",
		RunE: func(cmd *cobra.Command, args []string) error {
			if trainerID == 0 {
				return errors.New("--trainer is required")
			}
			svc, db, _, err := openService(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			list, err := svc.GetEligibleStudentsForReactivation(cmd.Context(), trainerID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().Uint64Var(&trainerID, "trainer", 0, "trainer ID")
	return cmd
}
