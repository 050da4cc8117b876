package transports

import (
	"context"

	"github.com/harunnryd/agronomist/pkg/triage"
)

// Triager is the request handler a transport feeds.
type Triager interface {
	HandleRequest(ctx context.Context, req triage.Request) triage.Response
}

// Transport is an inbound surface for farmer questions. Implementations own
// their network lifecycle.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// ReadyReporter allows transports to expose readiness metadata (e.g. the
// listen address). Used for informational logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
