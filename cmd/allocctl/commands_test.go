package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/trainer-seat-allocation/internal/allocation"
	"github.com/iliyamo/trainer-seat-allocation/internal/model"
	"github.com/iliyamo/trainer-seat-allocation/internal/utils"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	old := Version
	defer func() { Version = old }()
	Version = "1.2.3"

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "allocctl 1.2.3\n", out)
}

func TestIssueTokenCmd(t *testing.T) {
	out, err := execute(t, "issue-token", "--trainer", "42", "--secret", "s3cret", "--ttl", "10m")
	require.NoError(t, err)

	var tok utils.AccessToken
	require.NoError(t, json.Unmarshal([]byte(out), &tok))
	claims, err := utils.ParseAccessToken("s3cret", tok.Token)
	require.NoError(t, err)
	id, err := claims.TrainerID()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
	assert.Equal(t, utils.RoleTrainer, claims.Role)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), claims.ExpiresAt.Time, time.Minute)
}

func TestIssueTokenCmd_RequiresTrainer(t *testing.T) {
	_, err := execute(t, "issue-token", "--secret", "x")
	assert.EqualError(t, err, "--trainer is required")
}

func TestSimulateCmd_Downgrade(t *testing.T) {
	out, err := execute(t, "simulate", "--from-seats", "5", "--to-seats", "2", "--students", "5")
	require.NoError(t, err)

	var rep simulationReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 5, rep.Assignments["plan"])
	assert.Zero(t, rep.Rejected)
	assert.False(t, rep.Before.IsValid)
	assert.Equal(t, model.TransitionDowngrade, rep.Transition.TransitionType)
	assert.Equal(t, 5, rep.Transition.StudentsArchived)
	assert.Equal(t, 2, rep.Transition.AvailableSlots)
	require.NotNil(t, rep.Reactivated)
	assert.Equal(t, 2, rep.Reactivated.ReactivatedCount)
	assert.Equal(t, 2, rep.Active)
	assert.Zero(t, rep.After.AvailableSlots)
}

func TestSimulateCmd_UpgradeWithTokens(t *testing.T) {
	out, err := execute(t, "simulate", "--from-seats", "2", "--to-seats", "6", "--students", "4", "--tokens", "1")
	require.NoError(t, err)

	var rep simulationReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 2, rep.Assignments["plan"])
	assert.Equal(t, 1, rep.Assignments["token"])
	assert.Equal(t, 1, rep.Rejected)
	assert.Equal(t, model.TransitionUpgrade, rep.Transition.TransitionType)
	assert.Nil(t, rep.Reactivated)
	assert.Equal(t, 3, rep.Active)
	assert.Equal(t, allocation.ResourcePlan, rep.After.ResourceType)
}

func TestSimulateCmd_RejectsNegativeCounts(t *testing.T) {
	_, err := execute(t, "simulate", "--students", "-1")
	assert.EqualError(t, err, "counts must not be negative")
}
