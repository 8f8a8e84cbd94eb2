package config

import (
	"fmt"
	"os"
	"time"
)

const (
	collectorConfigEnv = "COLLECTOR_CONFIG"
	coordinatorURLEnv  = "COORDINATOR_URL"
	coordinatorTknEnv  = "COORDINATOR_TOKEN"
	operatorIDEnv      = "OPERATOR_ID"
	scorerAPIKeyEnv    = "SCORER_API_KEY"
	anthropicAPIKeyEnv = "ANTHROPIC_API_KEY"
	githubTokenEnv     = "GITHUB_TOKEN"
)

// Scorer kinds understood by the collector.
const (
	ScorerInference = "inference"
	ScorerChat      = "chat"
	ScorerAnthropic = "anthropic"
)

// Collector holds the bootstrap settings of one collection daemon.
type Collector struct {
	OperatorID  string          `yaml:"operatorId" toml:"operatorId"`
	Worker      WorkerConfig    `yaml:"worker" toml:"worker"`
	Coordinator EndpointConfig  `yaml:"coordinator" toml:"coordinator"`
	Scorer      ScorerConfig    `yaml:"scorer" toml:"scorer"`
	Keywords    KeywordConfig   `yaml:"keywords" toml:"keywords"`
	Pipeline    PipelineConfig  `yaml:"pipeline" toml:"pipeline"`
	Heartbeat   HeartbeatConfig `yaml:"heartbeat" toml:"heartbeat"`
	GitHub      GitHubConfig    `yaml:"github" toml:"github"`
	Watchers    []WatcherConfig `yaml:"watchers" toml:"watchers"`
	Logging     LoggingConfig   `yaml:"logging" toml:"logging"`

	path string
}

// WorkerConfig describes how the daemon presents itself to the registry.
type WorkerConfig struct {
	Name         string   `yaml:"name" toml:"name"`
	Aspect       string   `yaml:"aspect" toml:"aspect"`
	Host         string   `yaml:"host" toml:"host"`
	Capabilities []string `yaml:"capabilities" toml:"capabilities"`
}

// EndpointConfig locates the coordinating service.
type EndpointConfig struct {
	URL     string   `yaml:"url" toml:"url"`
	Token   string   `yaml:"token" toml:"token"`
	Timeout Duration `yaml:"timeout" toml:"timeout"`
}

// ScorerConfig defines how to contact the scoring collaborator.
type ScorerConfig struct {
	Kind         string   `yaml:"kind" toml:"kind"`
	Endpoint     string   `yaml:"endpoint" toml:"endpoint"`
	Model        string   `yaml:"model" toml:"model"`
	APIKey       string   `yaml:"apiKey" toml:"apiKey"`
	SystemPrompt string   `yaml:"systemPrompt" toml:"systemPrompt"`
	Timeout      Duration `yaml:"timeout" toml:"timeout"`
}

// KeywordConfig holds the include/exclude interest lists.
type KeywordConfig struct {
	Include []string `yaml:"include" toml:"include"`
	Exclude []string `yaml:"exclude" toml:"exclude"`
}

// PipelineConfig tunes batching and backpressure.
type PipelineConfig struct {
	MinRelevance      float64  `yaml:"minRelevance" toml:"minRelevance"`
	BatchSize         int      `yaml:"batchSize" toml:"batchSize"`
	Cooldown          Duration `yaml:"cooldown" toml:"cooldown"`
	MaxItemsPerSource int      `yaml:"maxItemsPerSource" toml:"maxItemsPerSource"`
}

// HeartbeatConfig controls liveness reporting.
type HeartbeatConfig struct {
	Interval        Duration `yaml:"interval" toml:"interval"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" toml:"shutdownTimeout"`
}

// GitHubConfig is shared by repository-activity sources.
type GitHubConfig struct {
	Token          string  `yaml:"token" toml:"token"`
	APIBase        string  `yaml:"apiBase" toml:"apiBase"`
	RequestsPerMin float64 `yaml:"requestsPerMin" toml:"requestsPerMin"`
}

// WatcherConfig is one independently scheduled poll loop.
type WatcherConfig struct {
	Name       string         `yaml:"name" toml:"name"`
	Interval   Duration       `yaml:"interval" toml:"interval"`
	StartDelay Duration       `yaml:"startDelay" toml:"startDelay"`
	Sources    []SourceConfig `yaml:"sources" toml:"sources"`
}

// SourceConfig describes a single source with its scanner strategy.
type SourceConfig struct {
	Name    string            `yaml:"name" toml:"name"`
	Scanner string            `yaml:"scanner" toml:"scanner"`
	URL     string            `yaml:"url" toml:"url"`
	Options map[string]string `yaml:"options" toml:"options"`
}

// Path returns the file the configuration was loaded from, if any.
func (c Collector) Path() string { return c.path }

// LoadCollector reads the configuration file (if any), applies environment
// overrides and validates the result.
func LoadCollector(path string) (Collector, error) {
	cfg := DefaultCollector()

	if path = resolvePath(path, collectorConfigEnv); path != "" {
		cfg.Watchers = nil
		cfg.Worker.Capabilities = nil
		if err := decodeFile(path, &cfg); err != nil {
			return Collector{}, fmt.Errorf("config: %w", err)
		}
		cfg.path = path
	}

	if len(cfg.Watchers) == 0 {
		cfg.Watchers = DefaultCollector().Watchers
	}
	if len(cfg.Worker.Capabilities) == 0 {
		cfg.Worker.Capabilities = DefaultCollector().Worker.Capabilities
	}

	cfg.applyEnvOverrides()
	cfg.fillWorkerDefaults()

	if err := cfg.Validate(); err != nil {
		return Collector{}, err
	}
	return cfg, nil
}

func (c *Collector) applyEnvOverrides() {
	if v := os.Getenv(coordinatorURLEnv); v != "" {
		c.Coordinator.URL = v
	}
	if v := os.Getenv(coordinatorTknEnv); v != "" {
		c.Coordinator.Token = v
	}
	if v := os.Getenv(operatorIDEnv); v != "" {
		c.OperatorID = v
	}
	if v := os.Getenv(githubTokenEnv); v != "" {
		c.GitHub.Token = v
	}

	switch c.Scorer.Kind {
	case ScorerAnthropic:
		if v := os.Getenv(anthropicAPIKeyEnv); v != "" {
			c.Scorer.APIKey = v
		}
	default:
		if v := os.Getenv(scorerAPIKeyEnv); v != "" {
			c.Scorer.APIKey = v
		}
	}

	c.Logging.applyEnvOverrides()
}

func (c *Collector) fillWorkerDefaults() {
	if c.Worker.Host == "" {
		if host, err := os.Hostname(); err == nil {
			c.Worker.Host = host
		} else {
			c.Worker.Host = "unknown"
		}
	}
	if c.Worker.Name == "" {
		c.Worker.Name = c.Worker.Aspect + "@" + c.Worker.Host
	}
}

// Validate checks if the configuration has usable values.
func (c Collector) Validate() error {
	if c.OperatorID == "" {
		return fmt.Errorf("%w: operatorId is required", ErrInvalid)
	}
	if c.Coordinator.URL == "" {
		return fmt.Errorf("%w: coordinator.url is required", ErrInvalid)
	}
	switch c.Scorer.Kind {
	case ScorerInference, ScorerChat, ScorerAnthropic:
	default:
		return fmt.Errorf("%w: unknown scorer kind %q", ErrInvalid, c.Scorer.Kind)
	}
	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("%w: pipeline.batchSize must be at least 1 (got %d)", ErrInvalid, c.Pipeline.BatchSize)
	}
	if c.Pipeline.Cooldown.Duration < 0 {
		return fmt.Errorf("%w: pipeline.cooldown must not be negative", ErrInvalid)
	}
	if c.Pipeline.MinRelevance < 0 || c.Pipeline.MinRelevance > 1 {
		return fmt.Errorf("%w: pipeline.minRelevance must be within [0,1] (got %v)", ErrInvalid, c.Pipeline.MinRelevance)
	}
	if c.Heartbeat.Interval.Duration <= 0 {
		return fmt.Errorf("%w: heartbeat.interval must be positive", ErrInvalid)
	}
	if len(c.Watchers) == 0 {
		return fmt.Errorf("%w: at least one watcher is required", ErrInvalid)
	}
	seen := map[string]bool{}
	for _, w := range c.Watchers {
		if w.Name == "" || seen[w.Name] {
			return fmt.Errorf("%w: watcher names must be unique and non-empty (%q)", ErrInvalid, w.Name)
		}
		seen[w.Name] = true
		if w.Interval.Duration <= 0 {
			return fmt.Errorf("%w: watcher %s: interval must be positive", ErrInvalid, w.Name)
		}
		for _, s := range w.Sources {
			if s.Scanner == "" || s.URL == "" {
				return fmt.Errorf("%w: watcher %s: source %q needs scanner and url", ErrInvalid, w.Name, s.Name)
			}
		}
	}
	return nil
}

// DefaultCollector returns the settings used when nothing overrides them.
func DefaultCollector() Collector {
	return Collector{
		Worker: WorkerConfig{
			Aspect:       "scout",
			Capabilities: []string{"feed", "github"},
		},
		Coordinator: EndpointConfig{
			URL:     "http://localhost:8088",
			Timeout: D(15 * time.Second),
		},
		Scorer: ScorerConfig{
			Kind:     ScorerChat,
			Endpoint: "http://localhost:11434/v1/chat/completions",
			Model:    "llama3.1",
			Timeout:  D(60 * time.Second),
		},
		Pipeline: PipelineConfig{
			MinRelevance:      0.5,
			BatchSize:         5,
			Cooldown:          D(5 * time.Second),
			MaxItemsPerSource: 20,
		},
		Heartbeat: HeartbeatConfig{
			Interval:        D(60 * time.Second),
			ShutdownTimeout: D(5 * time.Second),
		},
		GitHub: GitHubConfig{
			APIBase:        "https://api.github.com",
			RequestsPerMin: 30,
		},
		Watchers: []WatcherConfig{
			{
				Name:     "feeds",
				Interval: D(5 * time.Minute),
				Sources: []SourceConfig{
					{Name: "hn-frontpage", Scanner: "feed", URL: "https://hnrss.org/frontpage"},
				},
			},
			{
				Name:       "repos",
				Interval:   D(10 * time.Minute),
				StartDelay: D(30 * time.Second),
				Sources: []SourceConfig{
					{Name: "go-releases", Scanner: "github", URL: "https://github.com/golang/go/releases"},
				},
			},
		},
		Logging: LoggingConfig{Level: "info", Format: "auto"},
	}
}
