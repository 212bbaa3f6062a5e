package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/banshee-data/openml-pimp/internal/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writesResult(fsys fsutil.FileSystem, path string) func(string, []string) *MockCommandExecutor {
	return func(string, []string) *MockCommandExecutor {
		return &MockCommandExecutor{OnRun: func() {
			fsys.WriteFile(path, []byte(`{"fanova": {}}`), 0644)
		}}
	}
}

func TestNew(t *testing.T) {
	testCases := []struct {
		modus   string
		wantErr error
		want    interface{}
	}{
		{ModusFanova, nil, &FanovaBackend{}},
		{ModusAblation, nil, &PimpBackend{}},
		{"forward-selection", ErrUnknownModus, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.modus, func(t *testing.T) {
			b, err := New(tc.modus, []string{"tool"}, nil, nil)
			if tc.wantErr != nil {
				assert.True(t, errors.Is(err, tc.wantErr))
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tc.want, b)
		})
	}

	_, err := New(ModusFanova, nil, nil, nil)
	assert.Error(t, err)
}

func TestFanovaBackend_Execute(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	builder := NewMockCommandBuilder()
	builder.ExecutorFactory = writesResult(fsys, "/out/3/fanova.json")

	b, err := New(ModusFanova, []string{"python", "fanova_cli.py"}, builder, fsys)
	require.NoError(t, err)

	path, err := b.Execute(context.Background(), Request{
		OutputDir:         "/out/3",
		RunHistory:        "/cache/3/runhistory.json",
		ConfigSpace:       "/cache/3/configspace.pcs",
		Modus:             ModusFanova,
		UseQuantiles:      true,
		InteractionEffect: true,
		RunLimit:          500,
		Seed:              12345,
	})
	require.NoError(t, err)
	assert.Equal(t, "/out/3/fanova.json", path)
	assert.True(t, fsys.Exists("/out/3"))

	cmd := builder.LastCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "python", cmd.Name)
	assert.Equal(t, []string{
		"fanova_cli.py",
		"--runhistory", "/cache/3/runhistory.json",
		"--configspace", "/cache/3/configspace.pcs",
		"--output", "/out/3",
		"--seed", "12345",
		"--use-quantiles",
		"--interaction-effect",
		"--run-limit", "500",
	}, cmd.Args)
}

func TestPimpBackend_Execute(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	builder := NewMockCommandBuilder()
	builder.ExecutorFactory = writesResult(fsys, "/out/6/pimp_values_ablation.json")

	b, err := New(ModusAblation, []string{"pimp"}, builder, fsys)
	require.NoError(t, err)

	path, err := b.Execute(context.Background(), Request{
		OutputDir:   "/out/6",
		RunHistory:  "rh.json",
		ConfigSpace: "cs.pcs",
		Modus:       ModusAblation,
		Seed:        1,
	})
	require.NoError(t, err)
	assert.Equal(t, "/out/6/pimp_values_ablation.json", path)
	assert.Equal(t, []string{
		"--modus", "ablation",
		"--history", "rh.json",
		"--configspace", "cs.pcs",
		"--out-dir", "/out/6",
		"--seed", "1",
	}, builder.LastCommand().Args)
}

func TestExecute_Failures(t *testing.T) {
	t.Run("command fails", func(t *testing.T) {
		builder := NewMockCommandBuilder()
		builder.ExecutorFactory = func(string, []string) *MockCommandExecutor {
			return &MockCommandExecutor{Output: []byte("Traceback: boom\n"), Err: errors.New("exit status 1")}
		}
		b, err := New(ModusFanova, []string{"fanova"}, builder, fsutil.NewMemoryFileSystem())
		require.NoError(t, err)

		path, err := b.Execute(context.Background(), Request{OutputDir: "/out"})
		require.Error(t, err)
		assert.Empty(t, path)
		assert.Contains(t, err.Error(), "Traceback: boom")
	})

	t.Run("no result file", func(t *testing.T) {
		b, err := New(ModusFanova, []string{"fanova"}, NewMockCommandBuilder(), fsutil.NewMemoryFileSystem())
		require.NoError(t, err)

		_, err = b.Execute(context.Background(), Request{OutputDir: "/out"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "produced no result")
	})
}
