package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"drivenet/internal/config"
	"drivenet/internal/track"
	"drivenet/pkg/drivenet"
)

var stdout io.Writer = os.Stdout

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "champion":
		return runChampion(ctx, args[1:])
	case "discard":
		return runDiscard(ctx, args[1:])
	case "history":
		return runHistory(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "config":
		return runConfig(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// commonFlags are shared by every command that opens the store.
type commonFlags struct {
	storeKind    *string
	dbPath       *string
	artifactsDir *string
	logLevel     *string
	logFormat    *string
}

func registerCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		storeKind:    fs.String("store", "sqlite", "store backend: memory|sqlite"),
		dbPath:       fs.String("db-path", "drivenet.db", "sqlite database path"),
		artifactsDir: fs.String("artifacts", "runs", "run artifacts directory"),
		logLevel:     fs.String("log-level", "info", "log level: debug|info|warn|error"),
		logFormat:    fs.String("log-format", "text", "log format: text|json"),
	}
}

func (f commonFlags) client() (*drivenet.Client, error) {
	logger, err := newLogger(*f.logLevel, *f.logFormat)
	if err != nil {
		return nil, err
	}
	return drivenet.New(drivenet.Options{
		StoreKind:    *f.storeKind,
		DBPath:       *f.dbPath,
		ArtifactsDir: *f.artifactsDir,
		Logger:       logger,
	})
}

func newLogger(level, format string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(parsed)

	switch format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
	return logger, nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	configPath := fs.String("config", "", "YAML config overlaid on the track defaults")
	trackKind := fs.String("track", "", "track kind: loop|linear (default loop)")
	population := fs.Int("pop", 0, "population size (0 keeps the configured size)")
	generations := fs.Int("gens", 0, "generations (0 keeps the configured count)")
	steps := fs.Int("steps", 0, "steps per generation (0 keeps the configured count)")
	workers := fs.Int("workers", 0, "concurrent learner evaluation (0 keeps the configured count)")
	seed := fs.Int64("seed", 0, "random seed (0 keeps the configured seed)")
	slot := fs.String("slot", "", "champion slot (default: track kind)")
	fresh := fs.Bool("fresh", false, "ignore the stored champion and start from random controllers")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *population < 0 || *generations < 0 || *steps < 0 || *workers < 0 {
		return errors.New("pop, gens, steps and workers must be >= 0")
	}

	client, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, drivenet.RunRequest{
		ConfigPath:  *configPath,
		Track:       *trackKind,
		Population:  *population,
		Generations: *generations,
		Steps:       *steps,
		Workers:     *workers,
		Seed:        *seed,
		Slot:        *slot,
		Fresh:       *fresh,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(summary)
	}

	fmt.Fprintf(stdout, "run_id=%s slot=%s champion_id=%s final_best=%.6f\n", summary.RunID, summary.Slot, summary.ChampionID, summary.FinalBestFitness)
	if summary.ResumedFrom != "" {
		fmt.Fprintf(stdout, "resumed_from=%s\n", summary.ResumedFrom)
	}
	for i, best := range summary.BestByGeneration {
		fmt.Fprintf(stdout, "generation=%d best_fitness=%.6f\n", i, best)
	}
	fmt.Fprintf(stdout, "artifacts=%s\n", summary.ArtifactsDir)
	return nil
}

func runChampion(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("champion", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	slot := fs.String("slot", string(track.KindLoop), "champion slot")
	jsonOut := fs.Bool("json", false, "emit champion summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	champion, err := client.Champion(ctx, *slot)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(champion)
	}
	fmt.Fprintf(stdout, "slot=%s id=%s run_id=%s generation=%d fitness=%.6f saved_at=%s topology=%s activation=%s\n",
		champion.Slot, champion.ID, champion.RunID, champion.Generation, champion.Fitness, champion.SavedAt,
		formatTopology(champion.Topology), champion.Activation)
	return nil
}

func runDiscard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("discard", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	slot := fs.String("slot", string(track.KindLoop), "champion slot")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	removed, err := client.Discard(ctx, *slot)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Fprintf(stdout, "no champion stored for slot=%s\n", *slot)
		return nil
	}
	fmt.Fprintf(stdout, "discarded champion slot=%s\n", *slot)
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run from the run index")
	limit := fs.Int("limit", 0, "max generations to print (0 for all)")
	diagnostics := fs.Bool("diagnostics", false, "print full per-generation diagnostics")
	jsonOut := fs.Bool("json", false, "emit history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("history requires --run-id or --latest")
	}

	client, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	req := drivenet.HistoryRequest{RunID: *runID, Latest: *latest, Limit: *limit}
	if *diagnostics {
		items, err := client.Diagnostics(ctx, req)
		if err != nil {
			return err
		}
		if *jsonOut {
			return writeJSON(items)
		}
		for _, d := range items {
			fmt.Fprintf(stdout, "generation=%d steps=%d best=%.6f mean=%.6f min=%.6f survivors=%d/%d best_distance=%.2f best_progress=%.2f\n",
				d.Generation, d.Steps, d.BestFitness, d.MeanFitness, d.MinFitness, d.Survivors, d.Population, d.BestDistance, d.BestProgress)
		}
		return nil
	}

	history, err := client.FitnessHistory(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(history)
	}
	for i, best := range history {
		fmt.Fprintf(stdout, "generation=%d best_fitness=%.6f\n", i, best)
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	artifactsDir := fs.String("artifacts", "runs", "run artifacts directory")
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := drivenet.New(drivenet.Options{StoreKind: "memory", ArtifactsDir: *artifactsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, drivenet.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(stdout, "run_id=%s created_at=%s track=%s slot=%s selector=%s seed=%d population=%d generations=%d steps=%d final_best=%.6f\n",
			r.RunID, r.CreatedAtUTC, r.Track, r.Slot, r.Selector, r.Seed, r.Population, r.Generations, r.StepsPerGeneration, r.FinalBestFitness)
	}
	return nil
}

// runConfig prints the resolved configuration as YAML, a starting point for
// a -config file.
func runConfig(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config overlaid on the track defaults")
	trackKind := fs.String("track", string(track.KindLoop), "track kind: loop|linear")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default(track.Kind(*trackKind))
		cfg.Track.Kind = track.Kind(*trackKind)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

func writeJSON(value any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func formatTopology(counts []int) string {
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprint(c)
	}
	return strings.Join(parts, "-")
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: drivenetctl <run|champion|discard|history|runs|config> [flags]", msg)
}
