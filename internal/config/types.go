package config

import "os"

// Config is the root configuration structure for the application.
type Config struct {
	LogLevel    string            `yaml:"log_level" mapstructure:"log_level"`
	LogFile     string            `yaml:"log_file" mapstructure:"log_file"`
	Broker      BrokerConfig      `yaml:"broker" mapstructure:"broker"`
	Ingest      IngestConfig      `yaml:"ingest" mapstructure:"ingest"`
	Queues      QueuesConfig      `yaml:"queues" mapstructure:"queues"`
	Workers     WorkersConfig     `yaml:"workers" mapstructure:"workers"`
	Chunking    ChunkingConfig    `yaml:"chunking" mapstructure:"chunking"`
	Embedding   EmbeddingConfig   `yaml:"embedding" mapstructure:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store" mapstructure:"vector_store"`
	StatusStore StatusStoreConfig `yaml:"status_store" mapstructure:"status_store"`
	Supervisor  SupervisorConfig  `yaml:"supervisor" mapstructure:"supervisor"`
	Metrics     MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
}

// BrokerConfig holds Redis queue broker configuration.
type BrokerConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// IngestConfig holds library scanning and claim configuration.
type IngestConfig struct {
	LibraryDir   string   `yaml:"library_dir" mapstructure:"library_dir"`
	ProcessedDir string   `yaml:"processed_dir" mapstructure:"processed_dir"`
	Extensions   []string `yaml:"extensions,flow" mapstructure:"extensions"`
	ScanInterval int      `yaml:"scan_interval" mapstructure:"scan_interval"` // seconds
	LockTTL      int      `yaml:"lock_ttl" mapstructure:"lock_ttl"`           // seconds
	StaleAfter   int      `yaml:"stale_after" mapstructure:"stale_after"`     // seconds, 0 = lock_ttl
	QueueTimeout int      `yaml:"queue_timeout" mapstructure:"queue_timeout"` // seconds
	WatchLibrary bool     `yaml:"watch_library" mapstructure:"watch_library"`
}

// QueuesConfig holds the three stage queue names.
type QueuesConfig struct {
	Extraction string `yaml:"extraction" mapstructure:"extraction"`
	Chunking   string `yaml:"chunking" mapstructure:"chunking"`
	Embedding  string `yaml:"embedding" mapstructure:"embedding"`
}

// WorkersConfig holds worker pool sizes per stage.
type WorkersConfig struct {
	Extraction int `yaml:"extraction" mapstructure:"extraction"`
	Chunking   int `yaml:"chunking" mapstructure:"chunking"`
	Embedding  int `yaml:"embedding" mapstructure:"embedding"`
}

// ChunkingConfig holds hybrid chunker configuration.
type ChunkingConfig struct {
	MaxTokens  int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	MergePeers bool   `yaml:"merge_peers" mapstructure:"merge_peers"`
	Encoding   string `yaml:"encoding" mapstructure:"encoding"`
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Provider   string  `yaml:"provider" mapstructure:"provider"`
	Model      string  `yaml:"model" mapstructure:"model"`
	Dimensions int     `yaml:"dimensions" mapstructure:"dimensions"`
	RateLimit  int     `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per minute
	APIKey     *string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	APIKeyEnv  string  `yaml:"api_key_env" mapstructure:"api_key_env"`
}

// ResolveAPIKey returns the API key from config or falls back to environment variable.
func (c *EmbeddingConfig) ResolveAPIKey() string {
	if c.APIKey != nil && *c.APIKey != "" {
		return *c.APIKey
	}
	return os.Getenv(c.APIKeyEnv)
}

// VectorStoreConfig holds vector store configuration.
type VectorStoreConfig struct {
	Backend   string `yaml:"backend" mapstructure:"backend"` // "redis" or "file"
	Dir       string `yaml:"dir" mapstructure:"dir"`         // file backend record directory
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// StatusStoreConfig holds the SQLite status database configuration.
type StatusStoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// SupervisorConfig holds child process supervision configuration.
type SupervisorConfig struct {
	BaseDir     string `yaml:"base_dir" mapstructure:"base_dir"`
	LogDir      string `yaml:"log_dir" mapstructure:"log_dir"`
	PIDFile     string `yaml:"pid_file" mapstructure:"pid_file"`
	GracePeriod int    `yaml:"grace_period" mapstructure:"grace_period"` // seconds
	SpawnBroker bool   `yaml:"spawn_broker" mapstructure:"spawn_broker"`
	RedisPort   int    `yaml:"redis_port" mapstructure:"redis_port"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" mapstructure:"addr"`
}
