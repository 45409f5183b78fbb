package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"PfamSurvey/internal/domain"
)

const (
	configPathEnv = "PFAMSURVEY_CONFIG"
	workDirEnv    = "PFAMSURVEY_WORKDIR"
	logLevelEnv   = "PFAMSURVEY_LOG_LEVEL"
	sampleSizeEnv = "PFAMSURVEY_SAMPLE_SIZE"
	seedEnv       = "PFAMSURVEY_SEED"
	storageEnv    = "PFAMSURVEY_DB"
)

// Config holds high-level settings required across the application.
type Config struct {
	WorkDir       string              `yaml:"workDir"`
	Logging       LoggingConfig       `yaml:"logging"`
	Harvest       HarvestConfig       `yaml:"harvest"`
	Profiles      ProfileConfig       `yaml:"profiles"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Search        SearchConfig        `yaml:"search"`
	Aggregate     AggregateConfig     `yaml:"aggregate"`
	Report        ReportConfig        `yaml:"report"`
	Storage       StorageConfig       `yaml:"storage"`
	FailurePolicy FailurePolicyConfig `yaml:"failurePolicy"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HarvestConfig drives the sequence link harvester.
type HarvestConfig struct {
	Sources        []SourceConfig `yaml:"sources"`
	SampleSize     int            `yaml:"sampleSize"`
	Seed           uint64         `yaml:"seed"`
	ChunkSize      int            `yaml:"chunkSize"`
	TimeoutSeconds int            `yaml:"timeoutSeconds"`
	UserAgent      string         `yaml:"userAgent"`
}

// SourceConfig describes one index page with its scanner strategy.
type SourceConfig struct {
	Name    string            `yaml:"name"`
	Scanner string            `yaml:"scanner"`
	URL     string            `yaml:"url"`
	Suffix  string            `yaml:"suffix"`
	Options map[string]string `yaml:"options"`
}

// ProfileConfig drives the profile fetcher.
type ProfileConfig struct {
	Table       string `yaml:"table"`
	Column      string `yaml:"column"`
	Prefix      string `yaml:"prefix"`
	URLTemplate string `yaml:"urlTemplate"`
	Retriever   string `yaml:"retriever"`
	Tool        string `yaml:"tool"`
	Dedupe      bool   `yaml:"dedupe"`
}

// ArchiveConfig selects in-process gzip or an external tool.
type ArchiveConfig struct {
	Tool string `yaml:"tool"`
}

// SearchConfig drives script generation and execution.
type SearchConfig struct {
	Binary            string      `yaml:"binary"`
	EValue            float64     `yaml:"evalue"`
	ScriptPath        string      `yaml:"scriptPath"`
	LogPath           string      `yaml:"logPath"`
	Shell             string      `yaml:"shell"`
	SequenceExtension string      `yaml:"sequenceExtension"`
	Slurm             SlurmConfig `yaml:"slurm"`
}

// SlurmConfig optionally prefixes the generated script with #SBATCH directives.
type SlurmConfig struct {
	Enabled      bool   `yaml:"enabled"`
	JobName      string `yaml:"jobName"`
	Nodes        int    `yaml:"nodes"`
	TasksPerNode int    `yaml:"tasksPerNode"`
	Memory       string `yaml:"memory"`
	Time         string `yaml:"time"`
	MailType     string `yaml:"mailType"`
	MailUser     string `yaml:"mailUser"`
}

// AggregateConfig controls the summary table and grouping key.
type AggregateConfig struct {
	Output       string            `yaml:"output"`
	PrefixLength int               `yaml:"prefixLength"`
	GroupLabels  map[string]string `yaml:"groupLabels"`
}

// ReportConfig controls chart output.
type ReportConfig struct {
	Skip   bool   `yaml:"skip"`
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"`
}

// StorageConfig points at the SQLite run ledger; empty disables it.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// FailurePolicyConfig sets per-stage behaviour for a failing unit.
type FailurePolicyConfig struct {
	Harvest string `yaml:"harvest"`
	Fetch   string `yaml:"fetch"`
	Search  string `yaml:"search"`
}

// Policy resolves the policy for a stage.
func (f FailurePolicyConfig) Policy(stage domain.Stage) domain.FailurePolicy {
	var raw string
	switch stage {
	case domain.StageHarvest:
		raw = f.Harvest
	case domain.StageFetch:
		raw = f.Fetch
	case domain.StageSearch:
		raw = f.Search
	}
	p, err := domain.ParsePolicy(raw)
	if err != nil {
		return domain.PolicyAbort
	}
	return p
}

// Load reads .env and YAML configuration (if present) and applies environment overrides.
func Load(path string) Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot read .env: %v", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()

	if len(cfg.Harvest.Sources) == 0 {
		cfg.Harvest.Sources = defaultConfig().Harvest.Sources
	}

	return cfg
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Harvest.SampleSize < 1 {
		errs = append(errs, fmt.Errorf("harvest.sampleSize must be positive, got %d", c.Harvest.SampleSize))
	}
	if c.Harvest.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("harvest.chunkSize must be positive, got %d", c.Harvest.ChunkSize))
	}
	for _, src := range c.Harvest.Sources {
		if src.URL == "" {
			errs = append(errs, fmt.Errorf("harvest source %s has no url", src.Name))
		}
		if src.Suffix == "" {
			errs = append(errs, fmt.Errorf("harvest source %s has no suffix", src.Name))
		} else if ext := c.Search.SequenceExtension; ext != "" && !strings.HasSuffix(strings.TrimSuffix(src.Suffix, ".gz"), ext) {
			errs = append(errs, fmt.Errorf("harvest source %s suffix %q does not yield search.sequenceExtension %q files", src.Name, src.Suffix, ext))
		}
	}
	if !strings.Contains(c.Profiles.URLTemplate, domain.AccessionPlaceholder) {
		errs = append(errs, fmt.Errorf("profiles.urlTemplate must contain %s", domain.AccessionPlaceholder))
	}
	switch c.Profiles.Retriever {
	case "http", "command":
	default:
		errs = append(errs, fmt.Errorf("profiles.retriever must be http or command, got %q", c.Profiles.Retriever))
	}
	if c.Search.EValue <= 0 {
		errs = append(errs, fmt.Errorf("search.evalue must be positive, got %g", c.Search.EValue))
	}
	for _, raw := range []string{c.FailurePolicy.Harvest, c.FailurePolicy.Fetch, c.FailurePolicy.Search} {
		if _, err := domain.ParsePolicy(raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(workDirEnv); v != "" {
		c.WorkDir = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(sampleSizeEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Harvest.SampleSize = n
		} else {
			log.Printf("config: ignoring %s=%q: %v", sampleSizeEnv, v, err)
		}
	}

	if v := os.Getenv(seedEnv); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Harvest.Seed = n
		} else {
			log.Printf("config: ignoring %s=%q: %v", seedEnv, v, err)
		}
	}

	if v, ok := os.LookupEnv(storageEnv); ok {
		c.Storage.Path = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.WorkDir != "" {
		base.WorkDir = override.WorkDir
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if len(override.Harvest.Sources) > 0 {
		base.Harvest.Sources = override.Harvest.Sources
	}
	if override.Harvest.SampleSize != 0 {
		base.Harvest.SampleSize = override.Harvest.SampleSize
	}
	if override.Harvest.Seed != 0 {
		base.Harvest.Seed = override.Harvest.Seed
	}
	if override.Harvest.ChunkSize != 0 {
		base.Harvest.ChunkSize = override.Harvest.ChunkSize
	}
	if override.Harvest.TimeoutSeconds != 0 {
		base.Harvest.TimeoutSeconds = override.Harvest.TimeoutSeconds
	}
	if override.Harvest.UserAgent != "" {
		base.Harvest.UserAgent = override.Harvest.UserAgent
	}

	if override.Profiles.Table != "" {
		base.Profiles.Table = override.Profiles.Table
	}
	if override.Profiles.Column != "" {
		base.Profiles.Column = override.Profiles.Column
	}
	if override.Profiles.Prefix != "" {
		base.Profiles.Prefix = override.Profiles.Prefix
	}
	if override.Profiles.URLTemplate != "" {
		base.Profiles.URLTemplate = override.Profiles.URLTemplate
	}
	if override.Profiles.Retriever != "" {
		base.Profiles.Retriever = override.Profiles.Retriever
	}
	if override.Profiles.Tool != "" {
		base.Profiles.Tool = override.Profiles.Tool
	}
	base.Profiles.Dedupe = base.Profiles.Dedupe || override.Profiles.Dedupe

	if override.Archive.Tool != "" {
		base.Archive.Tool = override.Archive.Tool
	}

	if override.Search.Binary != "" {
		base.Search.Binary = override.Search.Binary
	}
	if override.Search.EValue != 0 {
		base.Search.EValue = override.Search.EValue
	}
	if override.Search.ScriptPath != "" {
		base.Search.ScriptPath = override.Search.ScriptPath
	}
	if override.Search.LogPath != "" {
		base.Search.LogPath = override.Search.LogPath
	}
	if override.Search.Shell != "" {
		base.Search.Shell = override.Search.Shell
	}
	if override.Search.SequenceExtension != "" {
		base.Search.SequenceExtension = override.Search.SequenceExtension
	}
	if override.Search.Slurm.Enabled {
		base.Search.Slurm = override.Search.Slurm
	}

	if override.Aggregate.Output != "" {
		base.Aggregate.Output = override.Aggregate.Output
	}
	if override.Aggregate.PrefixLength != 0 {
		base.Aggregate.PrefixLength = override.Aggregate.PrefixLength
	}
	if len(override.Aggregate.GroupLabels) > 0 {
		base.Aggregate.GroupLabels = override.Aggregate.GroupLabels
	}

	base.Report.Skip = base.Report.Skip || override.Report.Skip
	if override.Report.Dir != "" {
		base.Report.Dir = override.Report.Dir
	}
	if override.Report.Format != "" {
		base.Report.Format = override.Report.Format
	}

	if override.Storage.Path != "" {
		base.Storage.Path = override.Storage.Path
	}

	if override.FailurePolicy.Harvest != "" {
		base.FailurePolicy.Harvest = override.FailurePolicy.Harvest
	}
	if override.FailurePolicy.Fetch != "" {
		base.FailurePolicy.Fetch = override.FailurePolicy.Fetch
	}
	if override.FailurePolicy.Search != "" {
		base.FailurePolicy.Search = override.FailurePolicy.Search
	}

	return base
}

func defaultConfig() Config {
	return Config{
		WorkDir: ".",
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Harvest: HarvestConfig{
			Sources: []SourceConfig{
				{
					Name:    "wormbase-parasite",
					Scanner: "anchors",
					URL:     "https://parasite.wormbase.org/ftp.html",
					Suffix:  "protein.fa.gz",
				},
			},
			SampleSize:     3,
			ChunkSize:      8192,
			TimeoutSeconds: 600,
			UserAgent:      "PfamSurvey/1.0",
		},
		Profiles: ProfileConfig{
			Table:       "SearchResults-succinatedehydrogenase.tsv",
			Column:      "Accession",
			Prefix:      "PF",
			URLTemplate: "https://www.ebi.ac.uk/interpro/wwwapi//entry/pfam/{accession}?annotation=hmm",
			Retriever:   "http",
			Tool:        "wget",
		},
		Search: SearchConfig{
			Binary:            "hmmsearch",
			EValue:            0.1,
			ScriptPath:        "hmmer_script.sh",
			LogPath:           "hmmer_script.log",
			Shell:             "/bin/bash",
			SequenceExtension: ".fa",
			Slurm: SlurmConfig{
				JobName:      "hmmer_test",
				Nodes:        1,
				TasksPerNode: 1,
				Memory:       "8gb",
				Time:         "00:30:00",
				MailType:     "BEGIN,END,FAIL",
			},
		},
		Aggregate: AggregateConfig{
			Output:       "summary_table.tsv",
			PrefixLength: 3,
		},
		Report: ReportConfig{
			Dir:    ".",
			Format: "png",
		},
		Storage: StorageConfig{Path: "pfamsurvey.db"},
		FailurePolicy: FailurePolicyConfig{
			Harvest: string(domain.PolicyAbort),
			Fetch:   string(domain.PolicyAbort),
			Search:  string(domain.PolicyAbort),
		},
	}
}
