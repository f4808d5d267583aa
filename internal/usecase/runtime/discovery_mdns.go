//go:build mdns

package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"agentnet/internal/domain"
)

const (
	mdnsServiceType = "_agentnet._tcp"
	mdnsDomain      = "local."
	mdnsScanTimeout = 5 * time.Second
)

// MDNSDiscoverer advertises and discovers agents on the local network via
// mDNS/DNS-SD. Built only with the mdns tag; the default build uses the noop
// variant.
type MDNSDiscoverer struct {
	logger *slog.Logger
}

// NewMDNSDiscoverer creates an MDNSDiscoverer.
func NewMDNSDiscoverer(logger *slog.Logger) *MDNSDiscoverer {
	return &MDNSDiscoverer{logger: logger}
}

// Scan browses for agent services on the local network and returns partial
// descriptors (id, address, tags) suitable for registry seeding.
func (d *MDNSDiscoverer) Scan(ctx context.Context) ([]domain.AgentDescriptor, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var mu sync.Mutex
	var found []domain.AgentDescriptor
	var wg sync.WaitGroup

	scanCtx, cancel := context.WithTimeout(ctx, mdnsScanTimeout)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			desc := entryToDescriptor(entry)
			mu.Lock()
			found = append(found, desc)
			mu.Unlock()
			d.logger.Debug("mdns discovered agent", "id", desc.ID, "addr", desc.Address())
		}
	}()

	if err := resolver.Browse(scanCtx, mdnsServiceType, mdnsDomain, entries); err != nil {
		cancel()
		wg.Wait()
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	<-scanCtx.Done()
	wg.Wait()

	mu.Lock()
	result := make([]domain.AgentDescriptor, len(found))
	copy(result, found)
	mu.Unlock()
	return result, nil
}

// Advertise registers this agent on the local network. Blocks until ctx is
// cancelled; call in a goroutine.
func (d *MDNSDiscoverer) Advertise(ctx context.Context, desc domain.AgentDescriptor) error {
	txt := []string{
		"id=" + desc.ID,
		"tags=" + strings.Join(desc.Tags(), ","),
	}
	server, err := zeroconf.Register(desc.Name, mdnsServiceType, mdnsDomain, desc.Port, txt, nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	d.logger.Info("mdns advertising", "agent", desc.ID, "port", desc.Port)
	<-ctx.Done()
	server.Shutdown()
	return nil
}

func entryToDescriptor(entry *zeroconf.ServiceEntry) domain.AgentDescriptor {
	meta := make(map[string]string, len(entry.Text))
	for _, t := range entry.Text {
		if k, v, ok := strings.Cut(t, "="); ok {
			meta[k] = v
		}
	}

	host := ""
	if len(entry.AddrIPv4) > 0 {
		host = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		host = "[" + entry.AddrIPv6[0].String() + "]"
	}

	desc := domain.AgentDescriptor{
		ID:    meta["id"],
		Name:  entry.ServiceRecord.Instance,
		Host:  host,
		Port:  entry.Port,
		State: domain.AgentStateReady,
	}
	if tags := meta["tags"]; tags != "" {
		desc.Skills = []domain.Skill{{Name: "advertised", Tags: strings.Split(tags, ",")}}
	}
	return desc
}
