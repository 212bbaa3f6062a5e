// Command obtain-runids lists, per task, the runs of a search flow whose grid
// held out exactly one parameter, grouped by the value that parameter was
// fixed at. The table is printed as JSON.
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
	"strconv"
	"strings"
	"syscall"

	"github.com/banshee-data/openml-pimp/internal/config"
	"github.com/banshee-data/openml-pimp/internal/db"
	"github.com/banshee-data/openml-pimp/internal/monitoring"
	"github.com/banshee-data/openml-pimp/internal/openml"
	"github.com/banshee-data/openml-pimp/internal/paramgrid"
	"github.com/banshee-data/openml-pimp/internal/resolver"
	"github.com/banshee-data/openml-pimp/internal/timeutil"
	"github.com/banshee-data/openml-pimp/internal/version"
)

func main() {
	tasks := flag.String("tasks", "", "Comma-separated task ids (default: all tasks of -T)")
	studyID := flag.Int("T", 14, "OpenML study used when -tasks is empty")
	flowID := flag.Int("F", 6970, "The search flow id")
	modelType := flag.String("model-type", paramgrid.RandomForest, "Model family of the search grid")
	templates := flag.String("templates", "", "Comma-separated held-out parameters to resolve (default: every parameter)")
	dbPath := flag.String("db", "", "SQLite database used as a persistent setup cache")
	configPath := flag.String("config", "", "Path to a JSON config file")
	verbosity := flag.String("V", "INFO", "Verbosity: INFO or DEBUG")
	showVer := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVer {
		fmt.Println(version.String("obtain-runids"))
		return
	}

	level, err := monitoring.ParseLevel(*verbosity)
	if err != nil {
		log.Fatalf("invalid -V: %v", err)
	}
	monitoring.SetLevel(level)

	cfg := config.DefaultBenchConfig()
	if *configPath != "" {
		if cfg, err = config.LoadBenchConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	taskIDs, err := parseTaskIDs(*tasks)
	if err != nil {
		log.Fatalf("invalid -tasks: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := openml.NewClient(cfg.GetOpenMLURL(), cfg.GetAPIKey(), nil)
	if len(taskIDs) == 0 {
		if taskIDs, err = svc.StudyTasks(ctx, *studyID); err != nil {
			log.Fatalf("failed to list study %d: %v", *studyID, err)
		}
	}

	r := resolver.New(svc, cfg.Registry(), nil)
	if *dbPath != "" {
		database, err := db.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()
		r.Cache = db.NewSetupStore(database, timeutil.RealClock{})
	}

	names := splitList(*templates)
	if err := resolve(ctx, r, taskIDs, *flowID, *modelType, names, os.Stdout); err != nil {
		log.Fatalf("obtain-runids: %v", err)
	}
}

// resolve runs the resolver for the selected templates and writes the table
// as indented JSON.
func resolve(ctx context.Context, r *resolver.Resolver, taskIDs []int, flowID int, family string, names []string, w io.Writer) error {
	all, err := r.Registry.SingleExclusionTemplates(family)
	if err != nil {
		return err
	}
	selected, err := selectTemplates(all, names)
	if err != nil {
		return err
	}

	table, err := r.Resolve(ctx, taskIDs, flowID, family, selected)
	if err != nil {
		return err
	}
	monitoring.Logf("resolved %d runs over %d templates", table.Len(), len(table.Templates()))

	raw, err := table.MarshalJSON()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(json.RawMessage(raw))
}

// selectTemplates keeps the templates named in names, matching either the
// full grid key or its short name. No names keeps everything.
func selectTemplates(all map[string]paramgrid.Grid, names []string) (map[string]paramgrid.Grid, error) {
	if len(names) == 0 {
		return all, nil
	}
	selected := make(map[string]paramgrid.Grid, len(names))
	for _, name := range names {
		found := false
		for key, g := range all {
			if key == name || paramgrid.ShortName(key) == name {
				selected[key] = g
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q", paramgrid.ErrUnknownParameter, name)
		}
	}
	return selected, nil
}

func parseTaskIDs(s string) ([]int, error) {
	var ids []int
	for _, part := range splitList(s) {
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid task id '%s': %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
