// Command pimp-bench ranks hyperparameter importance for one flow across every
// task of an OpenML study and averages the ranks.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/banshee-data/openml-pimp/internal/backend"
	"github.com/banshee-data/openml-pimp/internal/config"
	"github.com/banshee-data/openml-pimp/internal/db"
	"github.com/banshee-data/openml-pimp/internal/fsutil"
	"github.com/banshee-data/openml-pimp/internal/importance"
	"github.com/banshee-data/openml-pimp/internal/monitoring"
	"github.com/banshee-data/openml-pimp/internal/openml"
	"github.com/banshee-data/openml-pimp/internal/paramgrid"
	"github.com/banshee-data/openml-pimp/internal/report"
	"github.com/banshee-data/openml-pimp/internal/runhistory"
	"github.com/banshee-data/openml-pimp/internal/timeutil"
	"github.com/banshee-data/openml-pimp/internal/version"
)

var (
	seed           = flag.Int64("seed", 12345, "Random seed passed to the analysis backend")
	verbosity      = flag.String("V", "INFO", "Verbosity: INFO or DEBUG")
	saveTable      = flag.Bool("C", false, "Save the result table to the database")
	requiredSetups = flag.Int("R", 100, "Minimal number of setups needed to use a task")
	flowID         = flag.Int("F", 6970, "The OpenML flow id to use")
	modelType      = flag.String("model-type", paramgrid.RandomForest, "Model family whose grid restricts the parameters")
	studyID        = flag.Int("T", 14, "The OpenML study providing the tasks")
	fixedParams    = flag.String("P", "", `Only use setups with these parameters fixed, as JSON (e.g. {"kernel": "rbf"})`)
	useQuantiles   = flag.Bool("Q", false, "Use quantile information instead of the full range")
	drawPlots      = flag.Bool("X", false, "Draw plots of the marginals and the rank summary")
	interaction    = flag.Bool("I", true, "Compute pairwise interaction effects")
	modus          = flag.String("M", backend.ModusFanova, "Analysis: ablation or fanova")
	runLimit       = flag.Int("L", 0, "Max runs per task (0 means no limit)")

	configPath = flag.String("config", "", "Path to a JSON config file")
	cacheDir   = flag.String("cache-dir", "", "Root folder for cached run histories (overrides config)")
	outputDir  = flag.String("output-dir", "", "Root folder for results (overrides config)")
	dbPath     = flag.String("db", "", "SQLite database for saved tables (overrides config)")
	backendCmd = flag.String("backend", "", "Analysis command line, space separated (overrides config)")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

// defaultBackendCommands is used when neither the config nor -backend names
// the analysis tool.
var defaultBackendCommands = map[string][]string{
	backend.ModusFanova:   {"python3", "-m", "openmlpimp.backend.fanova"},
	backend.ModusAblation: {"python3", "-m", "openmlpimp.backend.pimp"},
}

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version.String("pimp-bench"))
		return
	}

	level, err := monitoring.ParseLevel(*verbosity)
	if err != nil {
		log.Fatalf("invalid -V: %v", err)
	}
	monitoring.SetLevel(level)

	cfg := config.DefaultBenchConfig()
	if *configPath != "" {
		cfg, err = config.LoadBenchConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	fixed, err := parseFixedParameters(*fixedParams)
	if err != nil {
		log.Fatalf("invalid -P: %v", err)
	}

	command := cfg.GetBackendCommand()
	if *backendCmd != "" {
		command = strings.Fields(*backendCmd)
	}
	if len(command) == 0 {
		command = defaultBackendCommands[*modus]
	}

	opts := benchOptions{
		FlowID:         *flowID,
		StudyID:        *studyID,
		ModelType:      *modelType,
		Modus:          *modus,
		RequiredSetups: *requiredSetups,
		Fixed:          fixed,
		CacheRoot:      firstNonEmpty(*cacheDir, cfg.GetCacheDir()),
		OutputRoot:     firstNonEmpty(*outputDir, cfg.GetOutputDir()),
		DrawPlots:      *drawPlots,
		Request: backend.Request{
			Modus:             *modus,
			UseQuantiles:      *useQuantiles,
			InteractionEffect: *interaction,
			RunLimit:          *runLimit,
			DrawPlots:         *drawPlots,
			Seed:              *seed,
		},
	}

	fsys := fsutil.OSFileSystem{}
	be, err := backend.New(*modus, command, nil, fsys)
	if err != nil {
		log.Fatalf("failed to set up backend: %v", err)
	}

	deps := benchDeps{
		Service:  openml.NewClient(cfg.GetOpenMLURL(), cfg.GetAPIKey(), nil),
		Registry: cfg.Registry(),
		Backend:  be,
		FS:       fsys,
		Clock:    timeutil.RealClock{},
		Out:      os.Stdout,
	}

	if *saveTable {
		database, err := db.Open(firstNonEmpty(*dbPath, cfg.GetDatabase()))
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()
		deps.Results = db.NewResultStore(database)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runBench(ctx, opts, deps); err != nil {
		log.Fatalf("pimp-bench: %v", err)
	}
}

type benchOptions struct {
	FlowID         int
	StudyID        int
	ModelType      string
	Modus          string
	RequiredSetups int
	Fixed          map[string]paramgrid.Value
	CacheRoot      string
	OutputRoot     string
	DrawPlots      bool
	Request        backend.Request
}

type benchDeps struct {
	Service  openml.Service
	Registry *paramgrid.Registry
	Backend  importance.Backend
	FS       fsutil.FileSystem
	Clock    timeutil.Clock
	Out      io.Writer
	// Results is nil unless the table is saved.
	Results *db.ResultStore
}

// runBench runs the whole study and writes the result folder.
func runBench(ctx context.Context, opts benchOptions, deps benchDeps) error {
	started := deps.Clock.Now()
	cacheFolder := filepath.Join(opts.CacheRoot, fmt.Sprintf("PIMP_flow%d_cache", opts.FlowID))
	saveFolder := filepath.Join(opts.OutputRoot,
		fmt.Sprintf("PIMP_flow%d_%s", opts.FlowID, started.Format("2006_01_02_15:04:05")))

	tasks, err := deps.Service.StudyTasks(ctx, opts.StudyID)
	if err != nil {
		return fmt.Errorf("study %d: %w", opts.StudyID, err)
	}
	fmt.Fprintf(deps.Out, "Tasks: %v (%d)\n", tasks, len(tasks))

	agg := &importance.Aggregator{
		Cache: &runhistory.Cache{
			Service:  deps.Service,
			FS:       deps.FS,
			Registry: deps.Registry,
		},
		Backend:   deps.Backend,
		FS:        deps.FS,
		FlowID:    opts.FlowID,
		CacheDir:  cacheFolder,
		OutputDir: saveFolder,
		Options: runhistory.Options{
			ModelFamily:      opts.ModelType,
			RequiredSetups:   opts.RequiredSetups,
			FixedParameters:  opts.Fixed,
			IgnoreParameters: importance.IgnoreParameters(opts.Fixed),
		},
		Request: opts.Request,
	}

	res, err := agg.Run(ctx, tasks)
	if err != nil {
		if importance.IsAbort(err) {
			return fmt.Errorf("aggregation aborted after %d tasks: %w", res.NumTasks, err)
		}
		return fmt.Errorf("no task of study %d produced a result (%d failed): %w", opts.StudyID, len(res.Failures), err)
	}
	fmt.Fprintf(deps.Out, "TOTAL RANKS: %s (%d)\n", res.Average, res.NumTasks)

	grid, err := deps.Registry.GridFor(opts.ModelType, nil, false)
	if err != nil {
		monitoring.Logf("no grid for %q (known: %v), columns follow first appearance", opts.ModelType, deps.Registry.Families())
	}
	columns := importance.ColumnOrder(grid, res.AllRanks)

	err = fsutil.WriteWith(deps.FS, filepath.Join(saveFolder, importance.UnpivotFile), func(w io.Writer) error {
		return importance.WriteUnpivot(w, res.AllRanks, columns)
	})
	if err != nil {
		return err
	}
	err = fsutil.WriteWith(deps.FS, filepath.Join(saveFolder, importance.PivotFile), func(w io.Writer) error {
		return importance.WritePivot(w, res.AllRanks, columns)
	})
	if err != nil {
		return err
	}

	if opts.DrawPlots {
		title := fmt.Sprintf("flow %d, %d tasks", opts.FlowID, res.NumTasks)
		if err := report.PlotAverageRanks(res.Average, title, filepath.Join(saveFolder, "average_ranks.png")); err != nil {
			monitoring.Logf("average rank plot: %v", err)
		}
		err := fsutil.WriteWith(deps.FS, filepath.Join(saveFolder, "importance.html"), func(w io.Writer) error {
			return report.RenderImportanceChart(w, title, res.AllRanks, columns)
		})
		if err != nil {
			monitoring.Logf("importance chart: %v", err)
		}
	}

	if err := report.FormatSummary(deps.Out, report.Summarize(res)); err != nil {
		return err
	}

	if deps.Results != nil {
		rec := db.RunRecord{
			RunID:       res.RunID,
			FlowID:      opts.FlowID,
			StudyID:     opts.StudyID,
			ModelFamily: opts.ModelType,
			Modus:       opts.Modus,
			NumTasks:    res.NumTasks,
			OutputDir:   saveFolder,
			StartedAt:   started,
			CompletedAt: deps.Clock.Now(),
		}
		if err := deps.Results.SaveRun(rec, res); err != nil {
			return err
		}
		monitoring.Logf("saved run %s", res.RunID)
	}
	return nil
}

// parseFixedParameters decodes -P. An empty flag means no restriction.
func parseFixedParameters(raw string) (map[string]paramgrid.Value, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var fixed map[string]paramgrid.Value
	if err := json.Unmarshal([]byte(raw), &fixed); err != nil {
		return nil, err
	}
	return fixed, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
