package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"

	"github.com/iliyamo/trainer-seat-allocation/internal/allocation"
	"github.com/iliyamo/trainer-seat-allocation/internal/config"
	"github.com/iliyamo/trainer-seat-allocation/internal/database"
	"github.com/iliyamo/trainer-seat-allocation/internal/repository"
)

// openService connects to MySQL with the server's configuration.
func openService(ctx context.Context) (*allocation.Service, *sql.DB, config.AllocationConfig, error) {
	cfg := config.Load()
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, nil, cfg.Allocation, err
	}
	svc := allocation.New(allocation.Deps{
		Plans:              repository.NewPlanRepo(db),
		Subscriptions:      repository.NewSubscriptionRepo(db),
		Students:           repository.NewStudentRepo(db),
		Tokens:             repository.NewTokenRepo(db),
		History:            repository.NewHistoryRepo(db),
		Tx:                 database.NewTransactor(db),
		ReactivationWindow: cfg.Allocation.ReactivationWindow,
		LowSlotsThreshold:  cfg.Allocation.LowSlotsThreshold,
	})
	return svc, db, cfg.Allocation, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
