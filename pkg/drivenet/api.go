package drivenet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"drivenet/internal/config"
	"drivenet/internal/model"
	"drivenet/internal/platform"
	"drivenet/internal/stats"
	"drivenet/internal/storage"
	"drivenet/internal/track"
)

const (
	defaultArtifactsDir = "runs"
	defaultDBPath       = "drivenet.db"
	defaultRunsLimit    = 20
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	Logger       logrus.FieldLogger
}

// Client is the public entry point for training runs and stored champions.
type Client struct {
	store        storage.Store
	artifactsDir string
	storeKind    string
	dbPath       string
	// log may be nil; the trainer then discards its output.
	log logrus.FieldLogger

	mu          sync.Mutex
	initialized bool
}

type RunRequest struct {
	// ConfigPath is an optional YAML file overlaid on the track defaults.
	ConfigPath string
	// Track picks the defaults when no config file is given.
	Track string
	// Zero values keep the configured setting.
	Population  int
	Generations int
	Steps       int
	Workers     int
	Seed        int64
	Slot        string
	// Fresh ignores the stored champion.
	Fresh bool
}

type RunSummary struct {
	RunID            string
	ArtifactsDir     string
	BestByGeneration []float64
	FinalBestFitness float64
	ChampionID       string
	Slot             string
	ResumedFrom      string
}

type ChampionSummary struct {
	ID         string
	Slot       string
	RunID      string
	Generation int
	Fitness    float64
	SavedAt    string
	Topology   []int
	Activation string
}

type HistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID            string
	CreatedAtUTC     string
	Track            string
	Slot             string
	Seed             int64
	Population       int
	Generations      int
	FinalBestFitness float64
	// Selector and StepsPerGeneration come from the run's config artifact
	// and stay empty when it is missing.
	Selector           string
	StepsPerGeneration int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = "memory"
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		artifactsDir: artifactsDir,
		storeKind:    storeKind,
		dbPath:       dbPath,
		log:          opts.Logger,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// ResolveConfig builds the run configuration a request describes.
func (c *Client) ResolveConfig(req RunRequest) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if req.ConfigPath != "" {
		cfg, err = config.Load(req.ConfigPath)
		if err != nil {
			return nil, err
		}
		if req.Track != "" && track.Kind(req.Track) != cfg.Track.Kind {
			return nil, fmt.Errorf("track %q conflicts with config file track %q", req.Track, cfg.Track.Kind)
		}
	} else {
		kind := track.Kind(req.Track)
		if kind == "" {
			kind = track.KindLoop
		}
		cfg = config.Default(kind)
		cfg.Track.Kind = kind
	}

	if req.Population > 0 {
		cfg.Population.Size = req.Population
	}
	if req.Generations > 0 {
		cfg.Run.Generations = req.Generations
	}
	if req.Steps > 0 {
		cfg.Run.StepsPerGeneration = req.Steps
	}
	if req.Workers > 0 {
		cfg.Run.Workers = req.Workers
	}
	if req.Seed != 0 {
		cfg.Run.Seed = req.Seed
	}
	if req.Slot != "" {
		cfg.Run.Slot = req.Slot
	}
	cfg.Run.Store = c.storeKind
	cfg.Run.DBPath = c.dbPath
	cfg.Run.ArtifactsDir = c.artifactsDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	cfg, err := c.ResolveConfig(req)
	if err != nil {
		return RunSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	trainer := platform.NewTrainer(c.store, platform.WithLogger(c.log))
	result, err := trainer.Run(ctx, platform.RunRequest{Config: cfg, Fresh: req.Fresh})
	if err != nil {
		return RunSummary{}, err
	}
	return RunSummary{
		RunID:            result.RunID,
		ArtifactsDir:     result.ArtifactsDir,
		BestByGeneration: append([]float64(nil), result.BestByGeneration...),
		FinalBestFitness: result.Champion.Fitness,
		ChampionID:       result.Champion.ID,
		Slot:             result.Champion.Slot,
		ResumedFrom:      result.ResumedFrom,
	}, nil
}

// Champion returns the controller stored under slot.
func (c *Client) Champion(ctx context.Context, slot string) (ChampionSummary, error) {
	if slot == "" {
		return ChampionSummary{}, errors.New("slot is required")
	}
	if err := c.Init(ctx); err != nil {
		return ChampionSummary{}, err
	}
	champion, ok, err := c.store.GetChampion(ctx, slot)
	if err != nil {
		return ChampionSummary{}, err
	}
	if !ok {
		return ChampionSummary{}, fmt.Errorf("no champion stored for slot: %s", slot)
	}
	return summarizeChampion(champion), nil
}

// Discard deletes the champion stored under slot so the next run starts from
// random controllers. It reports whether anything was stored.
func (c *Client) Discard(ctx context.Context, slot string) (bool, error) {
	if slot == "" {
		return false, errors.New("slot is required")
	}
	if err := c.Init(ctx); err != nil {
		return false, err
	}
	return c.store.DeleteChampion(ctx, slot)
}

// FitnessHistory reads the store first and falls back to the run's artifacts.
func (c *Client) FitnessHistory(ctx context.Context, req HistoryRequest) ([]float64, error) {
	runID, err := c.resolveRunID(req)
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		history, ok, err = stats.ReadFitnessHistory(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]float64(nil), history...), nil
}

func (c *Client) Diagnostics(ctx context.Context, req HistoryRequest) ([]model.GenerationDiagnostics, error) {
	runID, err := c.resolveRunID(req)
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		diagnostics, ok, err = stats.ReadGenerationDiagnostics(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	out := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(out, diagnostics)
	return out, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		cfg, _, err := stats.ReadRunConfig(c.artifactsDir, e.RunID)
		if err != nil {
			return nil, err
		}
		out = append(out, RunItem{
			RunID:            e.RunID,
			CreatedAtUTC:     e.CreatedAtUTC,
			Track:            e.TrackKind,
			Slot:             e.Slot,
			Seed:             e.Seed,
			Population:       e.PopulationSize,
			Generations:      e.Generations,
			FinalBestFitness: e.FinalBestFitness,

			Selector:           cfg.Selector,
			StepsPerGeneration: cfg.StepsPerGeneration,
		})
	}
	return out, nil
}

func (c *Client) resolveRunID(req HistoryRequest) (string, error) {
	if req.RunID != "" && req.Latest {
		return "", errors.New("use either run id or latest")
	}
	if req.Limit < 0 {
		return "", errors.New("limit must be >= 0")
	}
	if !req.Latest {
		if req.RunID == "" {
			return "", errors.New("run id or latest is required")
		}
		return req.RunID, nil
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func summarizeChampion(champion model.Champion) ChampionSummary {
	summary := ChampionSummary{
		ID:         champion.ID,
		Slot:       champion.Slot,
		RunID:      champion.RunID,
		Generation: champion.Generation,
		Fitness:    champion.Fitness,
		SavedAt:    champion.SavedAt.UTC().Format(time.RFC3339),
	}
	for i, layer := range champion.Network.Layers {
		if i == 0 {
			summary.Topology = append(summary.Topology, len(layer.Weights))
		}
		summary.Topology = append(summary.Topology, len(layer.Biases))
		summary.Activation = layer.Activation
	}
	return summary
}
