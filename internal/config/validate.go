package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a config validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation failures.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var b strings.Builder
	b.WriteString("config validation failed:\n")
	for _, err := range e {
		b.WriteString("  - ")
		b.WriteString(err.Error())
		b.WriteString("\n")
	}
	return b.String()
}

// validEmbeddingProviders lists recognized embedding providers.
var validEmbeddingProviders = map[string]bool{
	"openai":    true,
	"gemini":    true,
	"simulated": true,
}

// validVectorBackends lists recognized vector store backends.
var validVectorBackends = map[string]bool{
	"redis": true,
	"file":  true,
}

// Validate checks the configuration for errors.
// Returns ValidationErrors if validation fails.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	if cfg.Broker.Addr == "" {
		errs = append(errs, ValidationError{
			Field:   "broker.addr",
			Message: "must not be empty",
		})
	}

	if cfg.Ingest.LibraryDir == "" {
		errs = append(errs, ValidationError{
			Field:   "ingest.library_dir",
			Message: "must not be empty",
		})
	}

	if cfg.Ingest.ProcessedDir == "" {
		errs = append(errs, ValidationError{
			Field:   "ingest.processed_dir",
			Message: "must not be empty",
		})
	}

	if cfg.Ingest.ScanInterval < 1 {
		errs = append(errs, ValidationError{
			Field:   "ingest.scan_interval",
			Message: fmt.Sprintf("must be at least 1 second, got %d", cfg.Ingest.ScanInterval),
		})
	}

	if cfg.Ingest.LockTTL < 1 {
		errs = append(errs, ValidationError{
			Field:   "ingest.lock_ttl",
			Message: fmt.Sprintf("must be at least 1 second, got %d", cfg.Ingest.LockTTL),
		})
	}

	if cfg.Ingest.QueueTimeout < 1 {
		errs = append(errs, ValidationError{
			Field:   "ingest.queue_timeout",
			Message: fmt.Sprintf("must be at least 1 second, got %d", cfg.Ingest.QueueTimeout),
		})
	}

	for field, name := range map[string]string{
		"queues.extraction": cfg.Queues.Extraction,
		"queues.chunking":   cfg.Queues.Chunking,
		"queues.embedding":  cfg.Queues.Embedding,
	} {
		if name == "" {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "must not be empty",
			})
		}
	}

	for field, n := range map[string]int{
		"workers.extraction": cfg.Workers.Extraction,
		"workers.chunking":   cfg.Workers.Chunking,
		"workers.embedding":  cfg.Workers.Embedding,
	} {
		if n < 1 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("must be at least 1, got %d", n),
			})
		}
	}

	if cfg.Chunking.MaxTokens < 1 {
		errs = append(errs, ValidationError{
			Field:   "chunking.max_tokens",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Chunking.MaxTokens),
		})
	}

	if !validEmbeddingProviders[cfg.Embedding.Provider] {
		errs = append(errs, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unknown provider %q; must be one of openai, gemini, simulated", cfg.Embedding.Provider),
		})
	}

	if cfg.Embedding.Dimensions < 1 {
		errs = append(errs, ValidationError{
			Field:   "embedding.dimensions",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Embedding.Dimensions),
		})
	}

	if !validVectorBackends[cfg.VectorStore.Backend] {
		errs = append(errs, ValidationError{
			Field:   "vector_store.backend",
			Message: fmt.Sprintf("unknown backend %q; must be redis or file", cfg.VectorStore.Backend),
		})
	}

	if cfg.VectorStore.Backend == "file" && cfg.VectorStore.Dir == "" {
		errs = append(errs, ValidationError{
			Field:   "vector_store.dir",
			Message: "must not be empty when backend is file",
		})
	}

	if cfg.StatusStore.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "status_store.path",
			Message: "must not be empty",
		})
	}

	if cfg.Supervisor.GracePeriod < 1 {
		errs = append(errs, ValidationError{
			Field:   "supervisor.grace_period",
			Message: fmt.Sprintf("must be at least 1 second, got %d", cfg.Supervisor.GracePeriod),
		})
	}

	if cfg.Supervisor.RedisPort < 1 || cfg.Supervisor.RedisPort > 65535 {
		errs = append(errs, ValidationError{
			Field:   "supervisor.redis_port",
			Message: fmt.Sprintf("must be between 1 and 65535, got %d", cfg.Supervisor.RedisPort),
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}
