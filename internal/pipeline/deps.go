package pipeline

import (
	"log/slog"

	"github.com/docfoundry/docfoundry/internal/broker"
	"github.com/docfoundry/docfoundry/internal/chunker"
	"github.com/docfoundry/docfoundry/internal/converter"
	"github.com/docfoundry/docfoundry/internal/embedder"
	"github.com/docfoundry/docfoundry/internal/statusstore"
	"github.com/docfoundry/docfoundry/internal/vectorstore"
)

// Queues names the three stage queues.
type Queues struct {
	Extraction string
	Chunking   string
	Embedding  string
}

// Deps carries the shared collaborators a pipeline component needs.
// Each component uses a subset; unused fields may be nil.
type Deps struct {
	Broker     broker.Broker
	Status     statusstore.Store
	Converters *converter.Registry
	Chunker    *chunker.Hybrid
	Embedder   embedder.Embedder
	Vectors    vectorstore.Store
	Logger     *slog.Logger
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
