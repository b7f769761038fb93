package playback

import (
	"github.com/osa030/lyricsync/internal/app/event"
	"github.com/osa030/lyricsync/internal/infra/ingest"
)

// Ingestor is the event source the reconciler binds to.
// *ingest.Server implements it.
type Ingestor interface {
	Start() error
	Dispose()
	IsRunning() bool
	Port() int
	Subscribe(h event.Handler) string
	Unsubscribe(id string) bool
}

// IngestorFactory builds a stopped ingestor for port.
type IngestorFactory func(port int) Ingestor

// serverFactory returns a factory building ingestion servers with the
// given request settings.
func serverFactory(collectionPath string, maxBodyBytes int64) IngestorFactory {
	return func(port int) Ingestor {
		return ingest.New(ingest.Config{
			Port:           port,
			CollectionPath: collectionPath,
			MaxBodyBytes:   maxBodyBytes,
		})
	}
}
