package metrics

import (
	"context"
	"time"

	"github.com/ruteri/kms-identity/envelope"
	"github.com/ruteri/kms-identity/interfaces"
)

// InstrumentedIdentity records sign latency and results of the wrapped
// identity under name.
type InstrumentedIdentity struct {
	interfaces.Identity

	name    string
	metrics *MetricsServer
}

// Instrument wraps id so that every Sign call is recorded in m under name.
func Instrument(name string, id interfaces.Identity, m *MetricsServer) *InstrumentedIdentity {
	return &InstrumentedIdentity{Identity: id, name: name, metrics: m}
}

// Sign delegates to the wrapped identity and records duration and outcome.
func (i *InstrumentedIdentity) Sign(ctx context.Context, content *envelope.Content) (*envelope.Signature, error) {
	start := time.Now()
	sig, err := i.Identity.Sign(ctx, content)
	i.metrics.ObserveSign(i.name, time.Since(start), err)
	return sig, err
}
