package monitor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/tkalgrid/internal/command"
	"github.com/specialistvlad/tkalgrid/internal/crab"
	"github.com/specialistvlad/tkalgrid/internal/statusstore"
	"github.com/specialistvlad/tkalgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type statusResp struct {
	state crab.State
	err   error
	code  float64
}

// fakeClient answers status queries from a per-task script; the last entry
// repeats once the script is exhausted.
type fakeClient struct {
	mu         sync.Mutex
	statuses   map[string][]statusResp
	submitErrs []error
	outputs    [][]string
	onSubmit   func(cfgFile string)

	submits   []string
	resubmits []string
	getOutput int
}

func (f *fakeClient) Submit(_ context.Context, cfgFile string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, cfgFile)
	if f.onSubmit != nil {
		f.onSubmit(cfgFile)
	}
	if len(f.submitErrs) == 0 {
		return nil
	}
	err := f.submitErrs[0]
	f.submitErrs = f.submitErrs[1:]
	return err
}

func (f *fakeClient) Status(_ context.Context, requestDir string) (*crab.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	script := f.statuses[requestDir]
	if len(script) == 0 {
		return nil, crab.ErrTaskNotFound
	}
	r := script[0]
	if len(script) > 1 {
		f.statuses[requestDir] = script[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.state == "" {
		return &crab.Status{Jobs: map[string]crab.JobStatus{}}, nil
	}
	js := crab.JobStatus{State: r.state}
	if r.code != 0 {
		js.Error = []any{r.code, "failure"}
	}
	return &crab.Status{Jobs: map[string]crab.JobStatus{"1": js}}, nil
}

func (f *fakeClient) Resubmit(_ context.Context, requestDir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resubmits = append(f.resubmits, requestDir)
	return errors.New("server busy")
}

func (f *fakeClient) GetOutput(context.Context, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getOutput++
	if len(f.outputs) == 0 {
		return nil, nil
	}
	out := f.outputs[0]
	if len(f.outputs) > 1 {
		f.outputs = f.outputs[1:]
	}
	return out, nil
}

const outDir = "/store/group/alca_trackeralign/user/demo/ideal/cosmics"

func newTask(t *testing.T, name string, mode crab.Mode) Task {
	t.Helper()
	dir := t.TempDir()
	return Task{Name: name, Dir: dir, Config: &crab.Config{
		General: crab.General{RequestName: name, WorkArea: dir, TransferOutputs: true},
		JobType: crab.JobType{PluginName: "Analysis", PsetName: filepath.Join(dir, "validation_cfg.py")},
		Data:    crab.Data{OutLFNDirBase: outDir, UnitsPerJob: 1, Splitting: "FileBased"},
		Mode:    mode,
	}}
}

type fixture struct {
	client *fakeClient
	runner *testutil.FakeRunner
	store  *statusstore.Store
	out    *bytes.Buffer
	eos    string
	mon    *Monitor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		client: &fakeClient{statuses: map[string][]statusResp{}},
		runner: &testutil.FakeRunner{},
		store:  statusstore.New(),
		out:    &bytes.Buffer{},
		eos:    t.TempDir(),
	}
	f.mon = New(f.client, f.runner, f.store, f.out, Options{
		Interval:      time.Millisecond,
		Workers:       2,
		EOSPrefix:     f.eos,
		OutputRetries: 3,
		OutputBackoff: time.Millisecond,
	})
	f.mon.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

// gridOutput creates the file the grid wrote for lfn.
func (f *fixture) gridOutput(t *testing.T, lfn, content string) {
	t.Helper()
	path := filepath.Join(f.eos, lfn)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSubmit_NewTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	task := newTask(t, "MTS_cosmics_ideal", crab.ModeDataset)

	msg, err := f.mon.Submit(context.Background(), task)

	require.NoError(t, err)
	assert.Equal(t, "Job 'MTS_cosmics_ideal' successfully submitted", msg)
	assert.Equal(t, []string{filepath.Join(task.Dir, "crabConfig.py")}, f.client.submits)
	cfg, err := os.ReadFile(filepath.Join(task.Dir, "crabConfig.py"))
	require.NoError(t, err)
	assert.Contains(t, string(cfg), `config.General.requestName = "MTS_cosmics_ideal"`)
	assert.Empty(t, f.runner.Calls(), "dataset mode needs no flattened config")
}

func TestSubmit_AlreadyKnown(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	task := newTask(t, "job", crab.ModeDataset)
	require.NoError(t, os.MkdirAll(task.Config.RequestDir(), 0o755))
	f.client.statuses[task.Config.RequestDir()] = []statusResp{{state: crab.Running}}

	msg, err := f.mon.Submit(context.Background(), task)

	require.NoError(t, err)
	assert.Equal(t, "Job 'job' is submitted already with status 'running'", msg)
	assert.Empty(t, f.client.submits)
}

func TestSubmit_StaleRequestDirIsRemoved(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	task := newTask(t, "job", crab.ModeDataset)
	stale := filepath.Join(task.Config.RequestDir(), "leftover")
	require.NoError(t, os.MkdirAll(stale, 0o755))

	_, err := f.mon.Submit(context.Background(), task)

	require.NoError(t, err)
	assert.NoDirExists(t, task.Config.RequestDir())
	assert.Len(t, f.client.submits, 1)
}

func TestSubmit_StatusErrorKeepsRequestDir(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	f := newFixture(t)
	task := newTask(t, "job", crab.ModeDataset)
	require.NoError(t, os.MkdirAll(task.Config.RequestDir(), 0o755))
	f.client.statuses[task.Config.RequestDir()] = []statusResp{{err: errors.New("proxy expired")}}

	// --- Act ---
	_, err := f.mon.Submit(context.Background(), task)

	// --- Assert ---
	assert.ErrorContains(t, err, "status of job: proxy expired")
	assert.DirExists(t, task.Config.RequestDir())
	assert.Empty(t, f.client.submits)
}

func TestSubmit_ClientErrors(t *testing.T) {
	t.Parallel()

	t.Run("already exists counts as submitted", func(t *testing.T) {
		f := newFixture(t)
		f.client.submitErrs = []error{crab.ErrAlreadyExists}
		msg, err := f.mon.Submit(context.Background(), newTask(t, "job", crab.ModeDataset))
		require.NoError(t, err)
		assert.Equal(t, "Job 'job' is already submitted", msg)
	})

	t.Run("missing cache retries once", func(t *testing.T) {
		f := newFixture(t)
		f.client.submitErrs = []error{crab.ErrCacheNotFound, nil}
		msg, err := f.mon.Submit(context.Background(), newTask(t, "job", crab.ModeDataset))
		require.NoError(t, err)
		assert.Contains(t, msg, "successfully submitted")
		assert.Len(t, f.client.submits, 2)
	})

	t.Run("other errors fail", func(t *testing.T) {
		f := newFixture(t)
		boom := errors.New("proxy expired")
		f.client.submitErrs = []error{boom}
		_, err := f.mon.Submit(context.Background(), newTask(t, "job", crab.ModeDataset))
		assert.ErrorIs(t, err, boom)
		assert.ErrorContains(t, err, "grid job job failed to submit")
	})
}

func TestSubmit_ScriptMode(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	task := newTask(t, "job", crab.ModeScript)
	f.runner.Handle = func(context.Context, testutil.Call) (command.Result, error) {
		return command.Result{Stdout: "import FWCore.ParameterSet.Config as cms\nprocess = cms.Process('Validation')\n"}, nil
	}
	var shipped, script string
	f.client.onSubmit = func(string) {
		b, _ := os.ReadFile(filepath.Join(task.Dir, "validation.py"))
		shipped = string(b)
		s, _ := os.ReadFile(filepath.Join(task.Dir, "runCrab.sh"))
		script = string(s)
	}

	_, err := f.mon.Submit(context.Background(), task)
	require.NoError(t, err)

	assert.Contains(t, shipped, "cms.Process('Validation')")
	assert.Equal(t, "#!/bin/bash\ncmsRun -j FrameworkJobReport.xml -p validation.py\n", script)
	assert.NoFileExists(t, filepath.Join(task.Dir, "validation.py"))
	assert.NoFileExists(t, filepath.Join(task.Dir, "runCrab.sh"))

	require.Len(t, f.runner.Calls(), 1)
	call := f.runner.Calls()[0]
	assert.Equal(t, "python3", call.Name)
	assert.Equal(t, []string{
		"-c", "import sys; exec(open(sys.argv[1]).read()); print(process.dumpPython())",
		filepath.Join(task.Dir, "validation_cfg.py"),
		"config=" + filepath.Join(task.Dir, "validation.json"),
		"isCrab=1",
	}, call.Args)
	assert.Equal(t, task.Dir, call.Dir)
}

func TestPoll_UnknownTaskIsSubmitted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rep, err := f.mon.Poll(context.Background(), newTask(t, "job", crab.ModeDataset))

	require.NoError(t, err)
	assert.Equal(t, crab.Pending, rep.State)
	assert.Contains(t, rep.Message, "successfully submitted")
	assert.Len(t, f.client.submits, 1)
}

func TestPoll_FailedIsResubmitted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	task := newTask(t, "job", crab.ModeDataset)
	f.client.statuses[task.Config.RequestDir()] = []statusResp{{state: crab.Failed, code: 8021}}

	rep, err := f.mon.Poll(context.Background(), task)

	require.NoError(t, err, "resubmission errors are ignored")
	assert.Equal(t, crab.Failed, rep.State)
	assert.Equal(t, "[Error code = 8021] (Resubmitting...)", rep.Message)
	assert.Equal(t, []string{task.Config.RequestDir()}, f.client.resubmits)
}

func TestPoll_FinishedTransfersOutput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	task := newTask(t, "job", crab.ModeDataset)
	f.client.statuses[task.Config.RequestDir()] = []statusResp{{state: crab.Finished}}
	lfn := outDir + "/Validation/crab_job/240501_120000/0000/MTS_1.root"
	f.gridOutput(t, lfn, "histograms")
	f.client.outputs = [][]string{nil, {lfn}}

	rep, err := f.mon.Poll(context.Background(), task)

	require.NoError(t, err)
	want := filepath.Join(f.eos, outDir, "MTS.root")
	assert.Equal(t, want, rep.Output)
	got, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "histograms", string(got))
	assert.Equal(t, 2, f.client.getOutput)
}

func TestPoll_FinishedWithoutOutput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	task := newTask(t, "job", crab.ModeDataset)
	f.client.statuses[task.Config.RequestDir()] = []statusResp{{state: crab.Finished}}

	_, err := f.mon.Poll(context.Background(), task)

	assert.ErrorIs(t, err, ErrNoOutput)
	assert.Equal(t, 3, f.client.getOutput)
}

func TestRun_UntilAllFinished(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	fast := newTask(t, "fast", crab.ModeDataset)
	slow := newTask(t, "slow", crab.ModeDataset)
	lfn := outDir + "/Validation/MTS_1.root"
	f.gridOutput(t, lfn, "x")
	f.client.outputs = [][]string{{lfn}}
	f.client.statuses[fast.Config.RequestDir()] = []statusResp{{state: crab.Finished}}
	f.client.statuses[slow.Config.RequestDir()] = []statusResp{{state: crab.Running}, {state: crab.Failed, code: 1}, {state: crab.Finished}}

	require.NoError(t, f.mon.Run(context.Background(), []Task{fast, slow}))

	out := f.out.String()
	assert.Equal(t, 3, strings.Count(out, "Status of crab jobs (Wed May  1 12:00:00 2024)"))
	assert.Contains(t, out, "fast: FINISHED Output file transferred: ")
	assert.Contains(t, out, "slow: RUNNING\n")
	assert.Contains(t, out, "slow: FAILED [Error code = 1] (Resubmitting...)")
	assert.Equal(t, 1, strings.Count(out, "fast: "), "finished tasks are dropped")
	assert.Equal(t, 2, f.store.Count(statusstore.Finished))
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.mon.opts.Interval = time.Hour
	task := newTask(t, "job", crab.ModeDataset)
	f.client.statuses[task.Config.RequestDir()] = []statusResp{{state: crab.Running}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := f.mon.Run(ctx, []Task{task})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, statusstore.Running, f.store.Get("job").State)
}

func TestRunOne(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	task := newTask(t, "job", crab.ModeDataset)
	lfn := outDir + "/Validation/MTS_1.root"
	f.gridOutput(t, lfn, "x")
	f.client.outputs = [][]string{{lfn}}
	f.client.statuses[task.Config.RequestDir()] = []statusResp{{state: crab.Pending}, {state: crab.Running}, {state: crab.Finished}}

	require.NoError(t, f.mon.RunOne(context.Background(), task))

	out := f.out.String()
	assert.Contains(t, out, "[Wed May  1 12:00:00 2024] Job 'job' successfully submitted\n")
	assert.Contains(t, out, "Job 'job' is 'running'")
	assert.Contains(t, out, "Output file transferred: "+filepath.Join(f.eos, outDir, "MTS.root"))
}

func TestStylesLine(t *testing.T) {
	t.Parallel()

	s := newStyles(&bytes.Buffer{})
	testCases := []struct {
		name string
		rep  Report
		err  error
		want string
	}{
		{name: "running", rep: Report{Name: "a", State: crab.Running}, want: "a: RUNNING"},
		{name: "pending", rep: Report{Name: "a", State: crab.Pending, Message: "Job 'a' successfully submitted"}, want: "a: PENDING Job 'a' successfully submitted"},
		{name: "state kept from client", rep: Report{Name: "a", State: crab.State("transferring")}, want: "a: PENDING (transferring)"},
		{name: "error", rep: Report{Name: "a", State: crab.Finished}, err: ErrNoOutput, want: "a: FINISHED (error: finished task reported no output file)"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, s.line(tc.rep, tc.err))
		})
	}
}
