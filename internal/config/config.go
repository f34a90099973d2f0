package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tuannvm/workorder-a2a/internal/models"
)

const (
	// WorkOrderAgentName is the agent name advertised on the A2A agent card
	WorkOrderAgentName = "WorkOrderAgent"

	// DefaultAgentPort is the default A2A listen port
	DefaultAgentPort = 8080
)

// Config holds the application configuration
type Config struct {
	// Server configuration
	ServerPort  int
	ServerHost  string
	WebhookPort int

	// Agent configuration
	AgentName    string
	AgentVersion string
	AgentURL     string

	// Jira configuration
	JiraBaseURL     string
	JiraUsername    string
	JiraAPIToken    string
	JiraDefaultJQL  string
	JiraMaxResults  int
	JiraTransitions map[string]string // lowercase transition name -> transition id

	// Authentication
	AuthType  string // "jwt" or "apikey"
	JWTSecret string
	APIKey    string

	// LLM configuration
	LLMEnabled        bool
	LLMProvider       string // "openai", "azure"
	LLMModel          string
	LLMEmbeddingModel string
	LLMAPIKey         string
	LLMServiceURL     string
	LLMMaxTokens      int
	LLMTimeout        int // in seconds
	LLMTemperature    float64

	// Generation pipeline
	GenerationTopK         int
	GenerationStageTimeout time.Duration

	// Retrieval index
	IndexBackend      string // "sqlite" or "postgres"
	IndexSQLitePath   string
	IndexPostgresDSN  string
	IndexChunkSize    int
	IndexChunkOverlap int

	// Kafka lifecycle events; empty brokers disables publishing
	KafkaBrokers []string
	KafkaTopic   string

	// Scoring tables override file; empty uses the embedded defaults
	ScoringTablesPath string

	// Work orders
	WorkOrdersLocalFirst bool

	LogLevel string
}

var v = viper.New()

// init loads environment variables from .env file
func init() {
	// Try to load from project root first
	err := godotenv.Load()
	if err != nil {
		// Try loading from parent directory (assuming we're in a subdirectory)
		err = godotenv.Load("../.env")
		if err != nil {
			err = godotenv.Load("../../.env")
			if err != nil {
				log.Println("No .env file found or error loading it. Using environment variables or defaults.")
			} else {
				log.Println("Loaded configuration from ../../.env file")
			}
		} else {
			log.Println("Loaded configuration from ../.env file")
		}
	} else {
		log.Println("Loaded configuration from .env file")
	}

	setDefaults(v)
}

// GetViper returns the viper instance backing the configuration
func GetViper() *viper.Viper {
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultAgentPort)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.webhook_port", DefaultAgentPort+3)

	v.SetDefault("agent.name", WorkOrderAgentName)
	v.SetDefault("agent.version", "1.0.0")
	v.SetDefault("agent.url", "")

	v.SetDefault("jira.base_url", "")
	v.SetDefault("jira.username", "")
	v.SetDefault("jira.api_token", "")
	v.SetDefault("jira.default_jql", `project = "DWOS" ORDER BY priority DESC`)
	v.SetDefault("jira.max_results", 50)
	v.SetDefault("jira.transitions", map[string]string{
		"to do":       "11",
		"todo":        "11",
		"in progress": "21",
		"in-progress": "21",
		"done":        "31",
	})

	v.SetDefault("auth.type", "apikey")
	v.SetDefault("auth.jwt_secret", "your-jwt-secret")
	v.SetDefault("auth.api_key", "your-api-key")

	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "nemotron-4-qa-9b-v2")
	v.SetDefault("llm.embedding_model", "nemotron-embedqa-v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.service_url", "")
	v.SetDefault("llm.max_tokens", 768)
	v.SetDefault("llm.timeout", 30)
	v.SetDefault("llm.temperature", 0.2)

	v.SetDefault("generation.top_k", 4)
	v.SetDefault("generation.stage_timeout", 45*time.Second)

	v.SetDefault("index.backend", "sqlite")
	v.SetDefault("index.sqlite_path", ".rag_store/index.db")
	v.SetDefault("index.postgres_dsn", "")
	v.SetDefault("index.chunk_size", 800)
	v.SetDefault("index.chunk_overlap", 120)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "workorder-events")

	v.SetDefault("scoring.tables_path", "")
	v.SetDefault("workorders.local_first", false)
	v.SetDefault("log.level", "info")
}

// Flags returns the command-line flags understood by Load
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.Int("port", 0, "A2A server port")
	fs.String("index-backend", "", "retrieval index backend (sqlite, postgres)")
	return fs
}

// Load reads configuration from defaults, an optional config file, the
// environment and the parsed flags, in increasing order of precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if path, _ := fs.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
		bindFlag(fs, "log-level", "log.level")
		bindFlag(fs, "port", "server.port")
		bindFlag(fs, "index-backend", "index.backend")
	}

	return NewConfig(), nil
}

func bindFlag(fs *pflag.FlagSet, flag, key string) {
	if f := fs.Lookup(flag); f != nil && f.Changed {
		_ = v.BindPFlag(key, f)
	}
}

// NewConfig creates a new configuration from the current viper state
func NewConfig() *Config {
	cfg := &Config{
		ServerPort:  v.GetInt("server.port"),
		ServerHost:  v.GetString("server.host"),
		WebhookPort: v.GetInt("server.webhook_port"),

		AgentName:    v.GetString("agent.name"),
		AgentVersion: v.GetString("agent.version"),
		AgentURL:     v.GetString("agent.url"),

		JiraBaseURL:     strings.TrimRight(v.GetString("jira.base_url"), "/"),
		JiraUsername:    v.GetString("jira.username"),
		JiraAPIToken:    v.GetString("jira.api_token"),
		JiraDefaultJQL:  v.GetString("jira.default_jql"),
		JiraMaxResults:  v.GetInt("jira.max_results"),
		JiraTransitions: v.GetStringMapString("jira.transitions"),

		AuthType:  v.GetString("auth.type"),
		JWTSecret: v.GetString("auth.jwt_secret"),
		APIKey:    v.GetString("auth.api_key"),

		LLMEnabled:        v.GetBool("llm.enabled"),
		LLMProvider:       v.GetString("llm.provider"),
		LLMModel:          v.GetString("llm.model"),
		LLMEmbeddingModel: v.GetString("llm.embedding_model"),
		LLMAPIKey:         v.GetString("llm.api_key"),
		LLMServiceURL:     v.GetString("llm.service_url"),
		LLMMaxTokens:      v.GetInt("llm.max_tokens"),
		LLMTimeout:        v.GetInt("llm.timeout"),
		LLMTemperature:    v.GetFloat64("llm.temperature"),

		GenerationTopK:         v.GetInt("generation.top_k"),
		GenerationStageTimeout: v.GetDuration("generation.stage_timeout"),

		IndexBackend:      strings.ToLower(v.GetString("index.backend")),
		IndexSQLitePath:   v.GetString("index.sqlite_path"),
		IndexPostgresDSN:  v.GetString("index.postgres_dsn"),
		IndexChunkSize:    v.GetInt("index.chunk_size"),
		IndexChunkOverlap: v.GetInt("index.chunk_overlap"),

		KafkaBrokers: v.GetStringSlice("kafka.brokers"),
		KafkaTopic:   v.GetString("kafka.topic"),

		ScoringTablesPath: v.GetString("scoring.tables_path"),

		WorkOrdersLocalFirst: v.GetBool("workorders.local_first"),

		LogLevel: v.GetString("log.level"),
	}

	if cfg.AgentURL == "" {
		cfg.AgentURL = fmt.Sprintf("http://%s:%d", cfg.ServerHost, cfg.ServerPort)
	}
	return cfg
}

// Validate checks that every capability the service cannot run without is
// configured. Failures wrap models.ErrDependencyUnavailable and are fatal at startup.
func (c *Config) Validate() error {
	if c.JiraBaseURL == "" || c.JiraUsername == "" || c.JiraAPIToken == "" {
		return fmt.Errorf("%w: jira.base_url, jira.username and jira.api_token are required", models.ErrDependencyUnavailable)
	}
	if c.LLMEnabled && c.LLMAPIKey == "" {
		return fmt.Errorf("%w: llm.api_key is required when llm.enabled is set", models.ErrDependencyUnavailable)
	}
	switch c.IndexBackend {
	case "sqlite":
		if c.IndexSQLitePath == "" {
			return fmt.Errorf("%w: index.sqlite_path is required for the sqlite backend", models.ErrDependencyUnavailable)
		}
	case "postgres":
		if c.IndexPostgresDSN == "" {
			return fmt.Errorf("%w: index.postgres_dsn is required for the postgres backend", models.ErrDependencyUnavailable)
		}
	default:
		return fmt.Errorf("%w: unsupported index backend %q", models.ErrValidation, c.IndexBackend)
	}
	if c.IndexChunkOverlap <= 0 || c.IndexChunkOverlap >= c.IndexChunkSize {
		return fmt.Errorf("%w: index.chunk_overlap must be positive and smaller than index.chunk_size", models.ErrValidation)
	}
	if c.GenerationTopK < 1 || c.GenerationTopK > 10 {
		return fmt.Errorf("%w: generation.top_k must be within [1,10]", models.ErrValidation)
	}
	return nil
}
