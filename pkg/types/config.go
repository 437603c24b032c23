package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PathStrategy selects the pathfinder traversal algorithm from spec §4.7.
type PathStrategy string

const (
	StrategyBFS           PathStrategy = "bfs"
	StrategyBestFirst     PathStrategy = "best_first"
	StrategyBidirectional PathStrategy = "bidirectional"
)

// ReconcilerConfig tunes the adaptive reconciler, spec §4.5.
type ReconcilerConfig struct {
	Alpha        float64       `yaml:"alpha"`
	QMax         int           `yaml:"q_max"`
	IMin         time.Duration `yaml:"i_min"`
	IMax         time.Duration `yaml:"i_max"`
	IBase        time.Duration `yaml:"i_base"`
	BatchBudget  int           `yaml:"batch_budget"`
}

// ANNConfig tunes the HNSW index, spec §4.6.
type ANNConfig struct {
	M              int `yaml:"m"`
	EfConstruction int `yaml:"ef_construction"`
	EfSearch       int `yaml:"ef_search"`
}

// PathfinderDefaults tunes find_paths when the caller omits explicit
// params, spec §4.7.
type PathfinderDefaults struct {
	Strategy    PathStrategy `yaml:"strategy"`
	MaxDepth    int          `yaml:"max_depth"`
	MaxPaths    int          `yaml:"max_paths"`
	Beta        float64      `yaml:"beta"`
	OverlapTau  float64      `yaml:"overlap_tau"`
	ConfFloor   float64      `yaml:"conf_floor"`
}

// Config is supplied at store open, spec §6.
type Config struct {
	StoragePath string `yaml:"storage_path"`

	VectorDimension uint32 `yaml:"vector_dimension"`
	NumShards       uint32 `yaml:"num_shards"`

	Reconciler ReconcilerConfig   `yaml:"reconciler"`
	ANN        ANNConfig          `yaml:"ann"`
	Pathfinder PathfinderDefaults `yaml:"pathfinder_defaults"`

	TxnTimeoutSecs uint32 `yaml:"txn_timeout_secs"`
	ReadOnly       bool   `yaml:"read_only"`

	// NormalizeOnInsert L2-normalizes vectors before they reach the
	// segment/ANN index. See SPEC_FULL.md's supplemented-features
	// section; the source assumes a unit-norm embedder with no
	// renormalization step, this is the optional guard against that.
	NormalizeOnInsert bool `yaml:"normalize_on_insert"`

	// MaxConcepts and MaxVectors bound writes; zero means unbounded.
	// Exceeding either returns KindCapacity.
	MaxConcepts uint64 `yaml:"max_concepts"`
	MaxVectors  uint64 `yaml:"max_vectors"`
}

// WithDefaults returns a copy of cfg with every optional knob filled from
// spec §4.5/§4.6/§4.7/§6.
func (cfg Config) WithDefaults() Config {
	if cfg.NumShards == 0 {
		cfg.NumShards = 1
	}
	if cfg.TxnTimeoutSecs == 0 {
		cfg.TxnTimeoutSecs = 5
	}
	r := &cfg.Reconciler
	if r.Alpha == 0 {
		r.Alpha = 0.3
	}
	if r.QMax == 0 {
		r.QMax = 10_000
	}
	if r.IMin == 0 {
		r.IMin = time.Millisecond
	}
	if r.IBase == 0 {
		r.IBase = 50 * time.Millisecond
	}
	if r.IMax == 0 {
		r.IMax = time.Second
	}
	if r.BatchBudget == 0 {
		r.BatchBudget = 1000
	}
	a := &cfg.ANN
	if a.M == 0 {
		a.M = 16
	}
	if a.EfConstruction == 0 {
		a.EfConstruction = 200
	}
	if a.EfSearch == 0 {
		a.EfSearch = 50
	}
	p := &cfg.Pathfinder
	if p.Strategy == "" {
		p.Strategy = StrategyBFS
	}
	if p.MaxDepth == 0 {
		p.MaxDepth = 6
	}
	if p.MaxPaths == 0 {
		p.MaxPaths = 5
	}
	if p.Beta == 0 {
		p.Beta = 0.99
	}
	if p.OverlapTau == 0 {
		p.OverlapTau = 0.7
	}
	if p.ConfFloor == 0 {
		p.ConfFloor = 0.1
	}
	return cfg
}

// Validate returns an error if cfg is structurally invalid.
func (cfg Config) Validate() error {
	if cfg.StoragePath == "" {
		return fmt.Errorf("config: storage_path is required")
	}
	if cfg.VectorDimension == 0 {
		return fmt.Errorf("config: vector_dimension is required")
	}
	return nil
}

// LoadConfig reads a YAML manifest into a Config, in the spirit of
// warren's cmd/warren/apply.go. Defaults are applied on the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
