package protocol

import (
	"net/http"
	"time"

	"filescout/internal/entity"
	"filescout/internal/observability"
	"filescout/internal/secrets"
)

// Factory hands out the adapter for a configuration's protocol tag. The set
// of protocols is closed: adding one means adding a variant and an adapter,
// never touching the scheduler or executor.
type Factory struct {
	ftp         *FTPAdapter
	https       *HTTPSAdapter
	objectStore *ObjectStoreAdapter
}

// NewFactory builds all adapters once with shared dependencies.
func NewFactory(resolver secrets.Resolver, connectTimeout, operationTimeout time.Duration, logger observability.Logger, metrics observability.Metrics) *Factory {
	httpClient := &http.Client{Timeout: operationTimeout}
	return &Factory{
		ftp:         NewFTPAdapter(resolver, connectTimeout, observability.Component(logger, "adapter.ftp"), metrics),
		https:       NewHTTPSAdapter(httpClient, resolver, observability.Component(logger, "adapter.https"), metrics),
		objectStore: NewObjectStoreAdapter(resolver, operationTimeout, observability.Component(logger, "adapter.objectstore"), metrics),
	}
}

// Adapter returns the implementation for the given protocol tag.
func (f *Factory) Adapter(p entity.Protocol) (Adapter, error) {
	switch p {
	case entity.ProtocolFTP:
		return f.ftp, nil
	case entity.ProtocolHTTPS:
		return f.https, nil
	case entity.ProtocolObjectStorage:
		return f.objectStore, nil
	default:
		return nil, Errorf(InvalidConfiguration, "unsupported protocol %q", p)
	}
}

// AdapterProvider is the narrow view the executor needs.
type AdapterProvider interface {
	Adapter(p entity.Protocol) (Adapter, error)
}

var _ AdapterProvider = (*Factory)(nil)
