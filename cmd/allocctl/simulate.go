package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/iliyamo/trainer-seat-allocation/internal/allocation"
	"github.com/iliyamo/trainer-seat-allocation/internal/memstore"
	"github.com/iliyamo/trainer-seat-allocation/internal/model"
)

const simTrainer uint64 = 1

type simulation struct {
	FromSeats int `json:"from_seats"`
	ToSeats   int `json:"to_seats"`
	Students  int `json:"students"`
	Tokens    int `json:"tokens"`
}

type simulationReport struct {
	Input       simulation                     `json:"input"`
	Assignments map[string]int                 `json:"assignments"`
	Rejected    int                            `json:"rejected"`
	Before      allocation.Verdict             `json:"before"`
	Transition  allocation.TransitionResult    `json:"transition"`
	Reactivated *allocation.ReactivationResult `json:"manual_reactivation,omitempty"`
	After       allocation.Verdict             `json:"after"`
	Active      int                            `json:"active_students"`
}

// run subscribes to a plan with FromSeats seats, activates Students
// students against it plus Tokens standalone units, then moves the
// trainer to a plan with ToSeats seats. A downgrade is resolved by
// reactivating the first eligible students that fit.
func (s simulation) run(ctx context.Context) (simulationReport, error) {
	rep := simulationReport{Input: s, Assignments: map[string]int{}}
	store := memstore.New(time.Now)
	svc := allocation.New(allocation.Deps{
		Plans:         store,
		Subscriptions: store,
		Students:      store,
		Tokens:        store,
		History:       store,
		Tx:            store,
	})
	from := store.AddPlan(model.Plan{Name: "from", SeatLimit: s.FromSeats, DurationDays: 30, IsActive: true})
	to := store.AddPlan(model.Plan{Name: "to", SeatLimit: s.ToSeats, DurationDays: 30, IsActive: true})

	if _, err := svc.ProcessPlanTransition(ctx, simTrainer, from.ID, allocation.TransitionOptions{}); err != nil {
		return rep, err
	}
	if s.Tokens > 0 {
		if _, err := svc.GrantTokens(ctx, allocation.GrantRequest{
			TrainerID: simTrainer,
			Quantity:  s.Tokens,
			ValidFor:  30 * 24 * time.Hour,
			GrantedBy: "simulate",
		}); err != nil {
			return rep, err
		}
	}
	for i := 0; i < s.Students; i++ {
		st := store.AddStudent(model.Student{TrainerID: simTrainer, Status: model.StudentInactive})
		res, err := svc.AssignResourceToStudent(ctx, simTrainer, st.ID)
		if err != nil {
			if allocation.CodeOf(err) == allocation.CodeInternal {
				return rep, err
			}
			log.Debug().Err(err).Uint64("student_id", st.ID).Msg("simulate: student not activated")
			rep.Rejected++
			continue
		}
		rep.Assignments[string(res.ResourceType)]++
	}

	var err error
	if rep.Before, err = svc.ValidateStudentCreation(ctx, simTrainer, 1); err != nil {
		return rep, err
	}
	if rep.Transition, err = svc.ProcessPlanTransition(ctx, simTrainer, to.ID, allocation.TransitionOptions{}); err != nil {
		return rep, err
	}
	if rep.Transition.RequiresManualSelection > 0 {
		ids := make([]uint64, 0, rep.Transition.AvailableSlots)
		for _, e := range rep.Transition.EligibleStudents {
			if len(ids) == rep.Transition.AvailableSlots {
				break
			}
			ids = append(ids, e.StudentID)
		}
		if len(ids) > 0 {
			res, err := svc.ManuallyReactivateStudents(ctx, simTrainer, ids)
			if err != nil {
				return rep, err
			}
			rep.Reactivated = &res
		}
	}
	if rep.After, err = svc.ValidateStudentCreation(ctx, simTrainer, 1); err != nil {
		return rep, err
	}
	for _, st := range store.Students(simTrainer) {
		if st.IsActive() {
			rep.Active++
		}
	}
	return rep, nil
}

func newSimulateCmd() *cobra.Command {
	var sim simulation
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a plan change against an in-memory store and print the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sim.FromSeats < 0 || sim.ToSeats < 0 || sim.Students < 0 || sim.Tokens < 0 {
				return errors.New("counts must not be negative")
			}
			rep, err := sim.run(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().IntVar(&sim.FromSeats, "from-seats", 5, "seat limit of the starting plan")
	cmd.Flags().IntVar(&sim.ToSeats, "to-seats", 2, "seat limit of the target plan")
	cmd.Flags().IntVar(&sim.Students, "students", 5, "students to activate before the change")
	cmd.Flags().IntVar(&sim.Tokens, "tokens", 0, "standalone token units to grant first")
	return cmd
}
