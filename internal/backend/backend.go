// Package backend invokes the external hyperparameter-importance tools and
// reports where they left their JSON results.
package backend

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/openml-pimp/internal/fsutil"
	"github.com/banshee-data/openml-pimp/internal/monitoring"
)

// Analysis modes.
const (
	ModusFanova   = "fanova"
	ModusAblation = "ablation"
)

// ErrUnknownModus is returned by New for an unsupported mode.
var ErrUnknownModus = errors.New("unknown modus")

// Request describes one backend invocation on one task.
type Request struct {
	OutputDir   string
	RunHistory  string
	ConfigSpace string
	Modus       string

	// fANOVA only.
	UseQuantiles      bool
	InteractionEffect bool
	RunLimit          int
	DrawPlots         bool

	Seed int64
}

// Backend runs an importance analysis and returns the result file path.
type Backend interface {
	Execute(ctx context.Context, req Request) (string, error)
}

// FanovaBackend wraps the fANOVA command line tool.
type FanovaBackend struct {
	Command []string
	Builder CommandBuilder
	FS      fsutil.FileSystem
}

// Execute implements Backend. The result is <OutputDir>/fanova.json.
func (b *FanovaBackend) Execute(ctx context.Context, req Request) (string, error) {
	args := []string{
		"--runhistory", req.RunHistory,
		"--configspace", req.ConfigSpace,
		"--output", req.OutputDir,
		"--seed", strconv.FormatInt(req.Seed, 10),
	}
	if req.UseQuantiles {
		args = append(args, "--use-quantiles")
	}
	if req.InteractionEffect {
		args = append(args, "--interaction-effect")
	}
	if req.RunLimit > 0 {
		args = append(args, "--run-limit", strconv.Itoa(req.RunLimit))
	}
	if req.DrawPlots {
		args = append(args, "--draw-plots")
	}
	result := filepath.Join(req.OutputDir, "fanova.json")
	if err := run(ctx, b.Builder, b.FS, b.Command, args, req.OutputDir, result); err != nil {
		return "", err
	}
	return result, nil
}

// PimpBackend wraps the PIMP command line tool, used for ablation.
type PimpBackend struct {
	Command []string
	Builder CommandBuilder
	FS      fsutil.FileSystem
}

// Execute implements Backend. The result is
// <OutputDir>/pimp_values_<modus>.json.
func (b *PimpBackend) Execute(ctx context.Context, req Request) (string, error) {
	args := []string{
		"--modus", req.Modus,
		"--history", req.RunHistory,
		"--configspace", req.ConfigSpace,
		"--out-dir", req.OutputDir,
		"--seed", strconv.FormatInt(req.Seed, 10),
	}
	result := filepath.Join(req.OutputDir, "pimp_values_"+req.Modus+".json")
	if err := run(ctx, b.Builder, b.FS, b.Command, args, req.OutputDir, result); err != nil {
		return "", err
	}
	return result, nil
}

// New selects the backend for modus. command is the executable and any
// leading arguments; builder and fsys default to the real implementations.
func New(modus string, command []string, builder CommandBuilder, fsys fsutil.FileSystem) (Backend, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("backend command for %s is empty", modus)
	}
	if builder == nil {
		builder = ExecCommandBuilder{}
	}
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	switch modus {
	case ModusFanova:
		return &FanovaBackend{Command: command, Builder: builder, FS: fsys}, nil
	case ModusAblation:
		return &PimpBackend{Command: command, Builder: builder, FS: fsys}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownModus, modus)
}

func run(ctx context.Context, builder CommandBuilder, fsys fsutil.FileSystem, command, args []string, outputDir, result string) error {
	if err := fsys.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create backend output dir: %w", err)
	}
	argv := append(append([]string(nil), command[1:]...), args...)
	monitoring.Debugf("backend: %s %s", command[0], strings.Join(argv, " "))

	out, err := builder.BuildCommand(ctx, command[0], argv...).Run()
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", command[0], err, strings.TrimSpace(string(out)))
	}
	if !fsys.Exists(result) {
		return fmt.Errorf("%s produced no result at %s", command[0], result)
	}
	return nil
}
