//go:build !mdns

package runtime

import (
	"context"
	"log/slog"

	"agentnet/internal/domain"
)

// MDNSDiscoverer is a placeholder used when mDNS support is not compiled in.
// Build with -tags mdns for the real implementation.
type MDNSDiscoverer struct{}

// NewMDNSDiscoverer creates the noop discoverer.
func NewMDNSDiscoverer(_ *slog.Logger) *MDNSDiscoverer { return &MDNSDiscoverer{} }

// Scan returns nil without the mdns build tag.
func (d *MDNSDiscoverer) Scan(_ context.Context) ([]domain.AgentDescriptor, error) {
	return nil, nil
}

// Advertise blocks until ctx is cancelled without the mdns build tag.
func (d *MDNSDiscoverer) Advertise(ctx context.Context, _ domain.AgentDescriptor) error {
	<-ctx.Done()
	return nil
}
