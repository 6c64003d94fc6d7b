package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/timederiv/internal/config"
	"github.com/san-kum/timederiv/internal/pipeline"
	"github.com/san-kum/timederiv/internal/report"
	"github.com/san-kum/timederiv/internal/stepstore"
	"github.com/san-kum/timederiv/internal/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	return cmd.ExecuteContext(context.Background())
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, -1, exitCode(errUsage))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestTooFewArguments(t *testing.T) {
	require.ErrorIs(t, execute(t, "in.db", "F"), errUsage)
	require.ErrorIs(t, execute(t), errUsage)
}

func TestMissingInputStore(t *testing.T) {
	dir := t.TempDir()
	err := execute(t, filepath.Join(dir, "missing"), "F", filepath.Join(dir, "out"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestBuildSpecPresetOverride(t *testing.T) {
	cmd := newGenerateCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--preset", "linear/small", "--steps", "7", "--drop", "2,3"}))

	spec, err := buildSpec(cmd)
	require.NoError(t, err)

	want := config.GetPreset("linear", "small")
	assert.Equal(t, 7, spec.Steps)
	assert.Equal(t, []int{2, 3}, spec.Drop)
	assert.Equal(t, want.Dt, spec.Dt)
	assert.Equal(t, want.Shape(), spec.Shape())
}

func TestBuildSpecRejectsBadPreset(t *testing.T) {
	cmd := newGenerateCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--preset", "linear"}))
	_, err := buildSpec(cmd)
	require.Error(t, err)

	cmd = newGenerateCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--preset", "linear/huge"}))
	_, err = buildSpec(cmd)
	require.Error(t, err)
}

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	nc := filepath.Join(dir, "deriv.nc")
	jsonPath := filepath.Join(dir, "report.json")

	require.NoError(t, execute(t, "generate", in,
		"--profile", "linear", "--var", "rho", "--steps", "6", "--dt", "0.5",
		"--nx", "3", "--ny", "2", "--nz", "2", "--slope", "4"))
	require.NoError(t, execute(t, in, "rho", out, "ignored-extra"))
	require.NoError(t, execute(t, "inspect", out, "--json", "-o", jsonPath, "--verify", in))
	require.NoError(t, execute(t, "export", out, nc))

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var saved report.Report
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.True(t, saved.Verified)
	for _, f := range saved.Frames {
		assert.Less(t, f.MaxError, 1e-9)
	}
	assert.FileExists(t, nc)

	st, err := stepstore.Open(config.DefaultConfig().StoreConfig(out), nil)
	require.NoError(t, err)
	defer st.Close()

	r := st.NewReader()
	rep, err := report.Collect(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, rep.Frames, 6)
	for _, f := range rep.Frames[1:5] {
		assert.InDelta(t, 4.0, f.Mean, 1e-9)
	}
	assert.Equal(t, synth.Axis(3), rep.Axes.X)

	m, err := r.Manifest()
	require.NoError(t, err)
	assert.Equal(t, in, m.Attributes["source"])
	assert.Equal(t, "rho", m.Attributes["variable"])
	assert.Equal(t, 6, m.StepsCommitted)
	assert.NotNil(t, m.ClosedAt)
}

func TestVerifyRejectsNonSyntheticInput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	other := filepath.Join(dir, "other")

	require.NoError(t, execute(t, "generate", in, "--steps", "4", "--nx", "2", "--ny", "2", "--nz", "2"))
	require.NoError(t, execute(t, in, "F", out))
	require.NoError(t, execute(t, in, "F", other))

	err := execute(t, "inspect", out, "--verify", other)
	require.ErrorIs(t, err, synth.ErrNotSynthetic)
}

func TestRunLive(t *testing.T) {
	logger = zap.NewNop()
	ctx := context.Background()

	in, err := stepstore.Open(stepstore.InMemoryConfig(), nil)
	require.NoError(t, err)
	defer in.Close()
	w, err := in.NewWriter()
	require.NoError(t, err)
	spec := synth.Spec{Profile: synth.Quadratic, Var: "F", Steps: 5, Dt: 0.1, Nx: 2, Ny: 2, Nz: 2, Slope: 1}
	_, err = synth.Generate(ctx, w, spec)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	out, err := stepstore.Open(stepstore.InMemoryConfig(), nil)
	require.NoError(t, err)
	defer out.Close()
	ow, err := out.NewWriter()
	require.NoError(t, err)

	p := pipeline.New(in.NewReader(), ow, "F", nil)
	summary, err := runLive(ctx, p, "in", "F",
		tea.WithInput(nil), tea.WithOutput(io.Discard), tea.WithoutSignalHandler())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.StepsRead)
	assert.Equal(t, 5, summary.FramesWritten)
	assert.Equal(t, 3, summary.DerivativeFrames)
}
