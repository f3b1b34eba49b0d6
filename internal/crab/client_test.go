package crab

import (
	"context"
	"errors"
	"testing"

	"github.com/specialistvlad/tkalgrid/internal/command"
	"github.com/specialistvlad/tkalgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statusOutput = `CRAB project directory:		/work/a/b/crab_MTS_a_b
Task name:			240501_120000:user_crab_MTS_a_b
Status on the scheduler:	SUBMITTED
{"1": {"State": "failed", "Error": [8021, "FileReadError", {}]}}
Log file is /work/a/b/crab_MTS_a_b/crab.log
`

func respond(out string, err error) *testutil.FakeRunner {
	return &testutil.FakeRunner{Handle: func(context.Context, testutil.Call) (command.Result, error) {
		return command.Result{Stdout: out}, err
	}}
}

func TestCLI_Status(t *testing.T) {
	t.Parallel()

	runner := respond(statusOutput, nil)

	st, err := NewCLI(runner, "").Status(context.Background(), "/work/a/b/crab_MTS_a_b")
	require.NoError(t, err)

	j := st.Job()
	assert.Equal(t, Failed, j.State)
	assert.Equal(t, "8021", j.ErrorCode())
	assert.Equal(t, "crab status -d /work/a/b/crab_MTS_a_b --json", runner.Calls()[0].Line())
	assert.Equal(t, "/work/a/b", runner.Calls()[0].Dir)
}

func TestStatus_PendingPlaceholder(t *testing.T) {
	t.Parallel()

	st, err := ParseStatus("Task name: x\nStatus on the scheduler:\tNEW\n")
	require.NoError(t, err)
	assert.Equal(t, Pending, st.Job().State)
	assert.Equal(t, "-1", st.Job().ErrorCode())

	_, err = ParseStatus("garbage")
	assert.ErrorIs(t, err, ErrNoStatus)
}

func TestParseState(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Pending, ParseState(""))
	assert.Equal(t, Pending, ParseState("idle"))
	assert.Equal(t, Running, ParseState("RUNNING"))
	assert.Equal(t, State("transferring"), ParseState("transferring"))
	assert.False(t, State("transferring").Known())
	assert.True(t, Finished.Known())
}

func TestCLI_GetOutput(t *testing.T) {
	t.Parallel()

	runner := respond("PFN: davs://eos/store/x_1.root\nLFN: /store/group/alca_trackeralign/out/Validation/x_1.root\n", nil)

	lfns, err := NewCLI(runner, "crab").GetOutput(context.Background(), "/work/crab_x")
	require.NoError(t, err)
	assert.Equal(t, []string{"/store/group/alca_trackeralign/out/Validation/x_1.root"}, lfns)
	assert.Equal(t, "crab getoutput -d /work/crab_x --dump", runner.Calls()[0].Line())
}

func TestCLI_ErrorClassification(t *testing.T) {
	t.Parallel()

	exit := errors.New("exit status 1")
	testCases := []struct {
		name   string
		output string
		want   error
	}{
		{"already exists", "ConfigException: Working area '/work/crab_x' already exists", ErrAlreadyExists},
		{"cache", "CachefileNotFoundException: Cannot find .requestcache file", ErrCacheNotFound},
		{"task", "TaskNotFoundException: Cannot find task", ErrTaskNotFound},
		{"project dir", "Error: /work/crab_x is not a valid CRAB project directory.", ErrTaskNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := NewCLI(respond(tc.output, exit), "").Submit(context.Background(), "/work/crabConfig.py")
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, exit)
		})
	}

	err := NewCLI(respond("server unavailable", exit), "").Resubmit(context.Background(), "/work/crab_x")
	assert.ErrorIs(t, err, exit)
	assert.NotErrorIs(t, err, ErrAlreadyExists)
}
