package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aperture/internal/config"
	"aperture/internal/embed"
	"aperture/internal/store"
)

// categoryFlags are shared by every command that operates on a configured
// category. Flag values override the YAML config when set.
type categoryFlags struct {
	configPath  string
	root        string
	category    string
	model       string
	shots       string
	thresholds  string
	provider    string
	providerURL string
	embedModel  string
	parallel    int
	db          string
}

func registerCategoryFlags(cmd *cobra.Command, f *categoryFlags) {
	fs := cmd.Flags()
	fs.StringVarP(&f.configPath, "config", "c", "", "Run configuration YAML")
	fs.StringVar(&f.root, "root", "", "Dataset root containing category folders")
	fs.StringVar(&f.category, "category", "", "Category folder name")
	fs.StringVar(&f.model, "model", "", "Embedding backbone id used in result paths")
	fs.StringVar(&f.shots, "shots", "", "Comma-separated shot counts, e.g. 1,5,10,30")
	fs.StringVar(&f.thresholds, "thresholds", "", "Comma-separated thresholds, e.g. 0.5,0.6,0.7")
	fs.StringVar(&f.provider, "provider", "", "Embedding provider (ollama, stub)")
	fs.StringVar(&f.providerURL, "provider-url", "", "Ollama base URL")
	fs.StringVar(&f.embedModel, "embed-model", "", "Ollama embedding model name")
	fs.IntVar(&f.parallel, "parallel", 0, "Grid worker pool size")
	fs.StringVar(&f.db, "db", "", "SQLite run store path")
}

// load merges the YAML config (when given) with flag overrides and validates
// the result.
func (f *categoryFlags) load() (*config.Run, error) {
	cfg := &config.Run{}
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if f.root != "" {
		cfg.Root = f.root
	}
	if f.category != "" {
		cfg.Category = f.category
	}
	if f.model != "" {
		cfg.Model = f.model
	}
	if f.shots != "" {
		shots, err := config.ParseShots(f.shots)
		if err != nil {
			return nil, err
		}
		cfg.Shots = shots
	}
	if f.thresholds != "" {
		thresholds, err := config.ParseThresholds(f.thresholds)
		if err != nil {
			return nil, err
		}
		cfg.Thresholds = thresholds
	}
	if f.provider != "" {
		cfg.Provider = f.provider
	}
	if f.providerURL != "" {
		cfg.ProviderURL = f.providerURL
	}
	if f.embedModel != "" {
		cfg.EmbedModel = f.embedModel
	}
	if f.parallel > 0 {
		cfg.Parallel = f.parallel
	}
	if f.db != "" {
		cfg.DBPath = f.db
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newProvider builds the embedding provider named by the config.
func newProvider(cfg *config.Run) (embed.Provider, error) {
	switch cfg.Provider {
	case "stub":
		return embed.NewStub(), nil
	case "", "ollama":
		if cfg.EmbedModel == "" {
			return nil, fmt.Errorf("embed_model is required for the ollama provider")
		}
		return embed.NewOllama(cfg.ProviderURL, cfg.EmbedModel)
	}
	return nil, fmt.Errorf("unknown provider %q (available: ollama, stub)", cfg.Provider)
}

// openStore opens the run store when a DB path is configured; nil store means
// persistence is disabled.
func openStore(cfg *config.Run) (*store.SqlStore, error) {
	if cfg.DBPath == "" {
		return nil, nil
	}
	return store.Open(cfg.DBPath)
}
