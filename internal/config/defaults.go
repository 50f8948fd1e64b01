package config

import "github.com/spf13/viper"

// Default configuration values.
const (
	DefaultLogLevel = "info"
	DefaultLogFile  = "~/.docfoundry/docfoundry.log"

	DefaultBrokerAddr = "localhost:6379"
	DefaultBrokerDB   = 0

	DefaultLibraryDir   = "~/.docfoundry/library"
	DefaultProcessedDir = "~/.docfoundry/processed"
	DefaultScanInterval = 30  // seconds
	DefaultLockTTL      = 300 // seconds
	DefaultQueueTimeout = 5   // seconds

	DefaultExtractionQueue = "extraction_jobs"
	DefaultChunkingQueue   = "document_processing_queue"
	DefaultEmbeddingQueue  = "embedding_queue"

	DefaultExtractionWorkers = 3
	DefaultChunkingWorkers   = 2
	DefaultEmbeddingWorkers  = 2

	DefaultMaxTokens = 8191
	DefaultEncoding  = "cl100k_base"

	DefaultEmbeddingProvider  = "simulated"
	DefaultEmbeddingModel     = "text-embedding-3-small"
	DefaultEmbeddingDims      = 384
	DefaultEmbeddingRateLimit = 500 // requests per minute

	DefaultVectorBackend   = "redis"
	DefaultVectorDir       = "~/.docfoundry/vectors"
	DefaultVectorKeyPrefix = "docfoundry:vec:"

	DefaultStatusStorePath = "~/.docfoundry/status.db"

	DefaultBaseDir     = "~/.docfoundry"
	DefaultLogDir      = "~/.docfoundry/logs"
	DefaultPIDFile     = "~/.docfoundry/docfoundry.pid"
	DefaultGracePeriod = 60 // seconds
	DefaultRedisPort   = 6379

	DefaultMetricsAddr = "127.0.0.1:9115"
)

// DefaultExtensions lists the file extensions the manager considers eligible.
var DefaultExtensions = []string{".pdf"}

// setDefaults registers all default configuration values with viper.
// Called during Init() before reading config files.
func setDefaults() {
	setViperDefaults(viper.GetViper())
}

// setViperDefaults registers all default configuration values with a viper instance.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_file", DefaultLogFile)

	v.SetDefault("broker.addr", DefaultBrokerAddr)
	v.SetDefault("broker.db", DefaultBrokerDB)

	v.SetDefault("ingest.library_dir", DefaultLibraryDir)
	v.SetDefault("ingest.processed_dir", DefaultProcessedDir)
	v.SetDefault("ingest.extensions", DefaultExtensions)
	v.SetDefault("ingest.scan_interval", DefaultScanInterval)
	v.SetDefault("ingest.lock_ttl", DefaultLockTTL)
	v.SetDefault("ingest.stale_after", 0) // 0 = lock_ttl
	v.SetDefault("ingest.queue_timeout", DefaultQueueTimeout)
	v.SetDefault("ingest.watch_library", true)

	v.SetDefault("queues.extraction", DefaultExtractionQueue)
	v.SetDefault("queues.chunking", DefaultChunkingQueue)
	v.SetDefault("queues.embedding", DefaultEmbeddingQueue)

	v.SetDefault("workers.extraction", DefaultExtractionWorkers)
	v.SetDefault("workers.chunking", DefaultChunkingWorkers)
	v.SetDefault("workers.embedding", DefaultEmbeddingWorkers)

	v.SetDefault("chunking.max_tokens", DefaultMaxTokens)
	v.SetDefault("chunking.merge_peers", true)
	v.SetDefault("chunking.encoding", DefaultEncoding)

	v.SetDefault("embedding.provider", DefaultEmbeddingProvider)
	v.SetDefault("embedding.model", DefaultEmbeddingModel)
	v.SetDefault("embedding.dimensions", DefaultEmbeddingDims)
	v.SetDefault("embedding.rate_limit", DefaultEmbeddingRateLimit)
	v.SetDefault("embedding.api_key_env", "OPENAI_API_KEY")

	v.SetDefault("vector_store.backend", DefaultVectorBackend)
	v.SetDefault("vector_store.dir", DefaultVectorDir)
	v.SetDefault("vector_store.key_prefix", DefaultVectorKeyPrefix)

	v.SetDefault("status_store.path", DefaultStatusStorePath)

	v.SetDefault("supervisor.base_dir", DefaultBaseDir)
	v.SetDefault("supervisor.log_dir", DefaultLogDir)
	v.SetDefault("supervisor.pid_file", DefaultPIDFile)
	v.SetDefault("supervisor.grace_period", DefaultGracePeriod)
	v.SetDefault("supervisor.spawn_broker", false)
	v.SetDefault("supervisor.redis_port", DefaultRedisPort)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", DefaultMetricsAddr)
}
