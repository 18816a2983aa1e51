package batch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gnoswap-labs/metapy/importer"
	"github.com/gnoswap-labs/metapy/internal"
)

// Version is the tool version checked against a config's `requires`.
var Version = "0.3.0"

const DefaultConfigFile = ".metapy.yaml"

// Config is the content of a `.metapy.yaml` file.
type Config struct {
	Name        string   `yaml:"name"`
	SearchPaths []string `yaml:"search_paths"`
	Exec        bool     `yaml:"exec"`
	OutputDir   string   `yaml:"output_dir,omitempty"`
	CacheDir    string   `yaml:"cache_dir,omitempty"`
	CacheMaxAge string   `yaml:"cache_max_age,omitempty"`
	Extensions  []string `yaml:"extensions"`
	Requires    string   `yaml:"requires,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Name:        "metapy",
		SearchPaths: []string{"."},
		Extensions:  []string{importer.DefaultExtension},
		CacheMaxAge: internal.DefaultCacheMaxAge.String(),
	}
}

// LoadConfig reads the config file at path. A missing file yields the
// default configuration.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("error reading config: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}
	if len(config.Extensions) == 0 {
		config.Extensions = []string{importer.DefaultExtension}
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate checks the cache age and the version constraint.
func (c Config) Validate() error {
	if _, err := c.MaxAge(); err != nil {
		return err
	}
	if c.Requires == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(c.Requires)
	if err != nil {
		return fmt.Errorf("invalid requires constraint %q: %w", c.Requires, err)
	}
	version, err := semver.NewVersion(Version)
	if err != nil {
		return fmt.Errorf("invalid tool version %q: %w", Version, err)
	}
	if !constraint.Check(version) {
		return fmt.Errorf("config requires metapy %s, running %s", c.Requires, Version)
	}
	return nil
}

func (c Config) MaxAge() (time.Duration, error) {
	if c.CacheMaxAge == "" {
		return internal.DefaultCacheMaxAge, nil
	}
	d, err := time.ParseDuration(c.CacheMaxAge)
	if err != nil {
		return 0, fmt.Errorf("invalid cache_max_age %q: %w", c.CacheMaxAge, err)
	}
	return d, nil
}

// Write stores the config as YAML at path.
func (c Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// NewEngine builds an engine from the config: an importer over the search
// paths, and a cache when a cache directory is set.
func NewEngine(config Config, logger *zap.Logger, opts ...internal.EngineOption) (*internal.Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(config.Extensions) == 0 {
		config.Extensions = []string{importer.DefaultExtension}
	}
	imp := importer.New(config.SearchPaths,
		importer.WithExtension(config.Extensions[0]),
		importer.WithLogger(logger))

	engineOpts := []internal.EngineOption{
		internal.WithImporter(imp),
		internal.WithLogger(logger),
		internal.WithExec(config.Exec),
		internal.WithExtensions(config.Extensions...),
	}
	if config.CacheDir != "" {
		cache, err := internal.NewCache(config.CacheDir)
		if err != nil {
			return nil, err
		}
		maxAge, err := config.MaxAge()
		if err != nil {
			return nil, err
		}
		cache.SetMaxAge(maxAge)
		engineOpts = append(engineOpts, internal.WithCache(cache))
	}
	return internal.NewEngine(append(engineOpts, opts...)...)
}
