// Package lifecycle starts, stops and tracks agent processes. Each agent is
// an independent OS process; the manager owns the descriptor table and the
// state machine Starting -> Ready | Failed, Ready -> Stopped.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"agentnet/internal/domain"
	"agentnet/internal/infra/netutil"
)

// Prober checks whether an agent's HTTP surface answers its health check.
// *agenthttp.Caller satisfies it.
type Prober interface {
	CheckHealth(ctx context.Context, endpoint string) error
}

// ManagerConfig holds timing knobs for the Manager.
type ManagerConfig struct {
	ReadinessTimeout  time.Duration // max wait for a starting agent (default: 15s)
	ReadinessInterval time.Duration // poll interval (default: 250ms)
	StopGrace         time.Duration // graceful-stop window before force kill (default: 5s)
}

func (c *ManagerConfig) applyDefaults() {
	if c.ReadinessTimeout <= 0 {
		c.ReadinessTimeout = 15 * time.Second
	}
	if c.ReadinessInterval <= 0 {
		c.ReadinessInterval = 250 * time.Millisecond
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 5 * time.Second
	}
}

// agentEntry holds the runtime state for one managed agent.
type agentEntry struct {
	descriptor domain.AgentDescriptor
	handle     Handle
	launchID   string
	opMu       sync.Mutex // serializes operations on this agent id
}

// Manager orchestrates agent processes.
type Manager struct {
	agents  map[string]*agentEntry
	order   []string // start order, for stable List output
	mu      sync.Mutex
	config  ManagerConfig
	spawner Spawner
	prober  Prober
	logger  *slog.Logger
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig, spawner Spawner, prober Prober, logger *slog.Logger) *Manager {
	cfg.applyDefaults()
	return &Manager{
		agents:  make(map[string]*agentEntry),
		config:  cfg,
		spawner: spawner,
		prober:  prober,
		logger:  logger,
	}
}

// Start launches the agent described by def and blocks until it is Ready or
// Failed. port 0 picks an ephemeral port; a non-zero port is validated and
// never silently substituted. Starts of distinct agent ids run concurrently;
// only operations on the same id serialize.
func (m *Manager) Start(ctx context.Context, def domain.AgentDefinition, port int) (*domain.AgentDescriptor, error) {
	if def.ID == "" {
		return nil, domain.NewSubSystemError("lifecycle", "Manager.Start", domain.ErrInvalidInput, "agent id is required")
	}

	boundPort, err := netutil.Reserve(port)
	if err != nil {
		return nil, domain.WrapOp("Manager.Start", err)
	}

	entry := &agentEntry{
		descriptor: domain.AgentDescriptor{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Skills:      def.Skills,
			Host:        "127.0.0.1",
			Port:        boundPort,
			State:       domain.AgentStateStarting,
			StartedAt:   time.Now(),
		},
		launchID: newLaunchID(),
	}

	m.mu.Lock()
	if _, exists := m.agents[def.ID]; exists {
		m.mu.Unlock()
		return nil, domain.NewSubSystemError("lifecycle", "Manager.Start", domain.ErrDuplicate, def.ID)
	}
	m.agents[def.ID] = entry
	m.order = append(m.order, def.ID)
	m.mu.Unlock()

	entry.opMu.Lock()
	defer entry.opMu.Unlock()

	handle, err := m.spawner.Spawn(ctx, def, boundPort)
	if err != nil {
		m.remove(def.ID)
		return nil, fmt.Errorf("lifecycle: spawn %s: %w", def.ID, err)
	}

	m.mu.Lock()
	entry.handle = handle
	m.mu.Unlock()

	m.logger.Info("agent starting",
		"agent", def.ID, "launch_id", entry.launchID, "port", boundPort)

	if err := m.awaitReady(ctx, entry); err != nil {
		m.setState(entry, domain.AgentStateFailed)
		handle.Kill()
		return nil, err
	}

	m.setState(entry, domain.AgentStateReady)
	m.logger.Info("agent ready", "agent", def.ID, "addr", entry.descriptor.Address())

	desc := m.snapshot(entry)
	return &desc, nil
}

// awaitReady polls the agent's health endpoint until it answers, the process
// exits, or the readiness window closes.
func (m *Manager) awaitReady(ctx context.Context, entry *agentEntry) error {
	endpoint := entry.descriptor.Endpoint()
	deadline := time.After(m.config.ReadinessTimeout)
	ticker := time.NewTicker(m.config.ReadinessInterval)
	defer ticker.Stop()

	for {
		probeCtx, cancel := context.WithTimeout(ctx, m.config.ReadinessInterval)
		err := m.prober.CheckHealth(probeCtx, endpoint)
		cancel()
		if err == nil {
			return nil
		}

		select {
		case <-entry.handle.Done():
			return domain.NewSubSystemError("lifecycle", "Manager.Start", domain.ErrAgentUnreachable,
				fmt.Sprintf("agent %s exited before becoming ready", entry.descriptor.ID))
		case <-deadline:
			return domain.NewSubSystemError("lifecycle", "Manager.Start", domain.ErrTimeout,
				fmt.Sprintf("agent %s not ready after %s", entry.descriptor.ID, m.config.ReadinessTimeout))
		case <-ctx.Done():
			return domain.WrapOp("Manager.Start", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Stop terminates the agent gracefully, force-kills after the grace period,
// and always removes the descriptor.
func (m *Manager) Stop(ctx context.Context, agentID string) error {
	m.mu.Lock()
	entry, ok := m.agents[agentID]
	m.mu.Unlock()
	if !ok {
		return domain.NewSubSystemError("lifecycle", "Manager.Stop", domain.ErrNotFound, agentID)
	}

	entry.opMu.Lock()
	defer entry.opMu.Unlock()

	// Set state before signalling so a concurrent List never reports a
	// stopping agent as Failed.
	m.setState(entry, domain.AgentStateStopped)

	if entry.handle != nil && entry.handle.Alive() {
		if err := entry.handle.Terminate(); err != nil {
			m.logger.Warn("graceful terminate failed, killing", "agent", agentID, "error", err)
			entry.handle.Kill()
		}
		select {
		case <-entry.handle.Done():
		case <-time.After(m.config.StopGrace):
			m.logger.Warn("grace period expired, killing", "agent", agentID)
			entry.handle.Kill()
			<-entry.handle.Done()
		case <-ctx.Done():
			entry.handle.Kill()
		}
	}

	m.remove(agentID)
	m.logger.Info("agent stopped", "agent", agentID)
	return nil
}

// List returns descriptors in start order, reconciled against process
// liveness at read time: a Ready agent whose process has exited is reported
// (and recorded) as Failed. Crash detection is lazy; there is no watchdog.
func (m *Manager) List() []domain.AgentDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.AgentDescriptor, 0, len(m.order))
	for _, id := range m.order {
		entry, ok := m.agents[id]
		if !ok {
			continue
		}
		if entry.descriptor.State == domain.AgentStateReady &&
			entry.handle != nil && !entry.handle.Alive() {
			entry.descriptor.State = domain.AgentStateFailed
			m.logger.Warn("agent process exited", "agent", id)
		}
		out = append(out, entry.descriptor)
	}
	return out
}

// Get returns the descriptor for agentID, reconciled against liveness.
func (m *Manager) Get(agentID string) (*domain.AgentDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.agents[agentID]
	if !ok {
		return nil, domain.NewSubSystemError("lifecycle", "Manager.Get", domain.ErrNotFound, agentID)
	}
	if entry.descriptor.State == domain.AgentStateReady &&
		entry.handle != nil && !entry.handle.Alive() {
		entry.descriptor.State = domain.AgentStateFailed
	}
	desc := entry.descriptor
	return &desc, nil
}

// MarkFailed flips an agent to Failed. Callers use it when a call to the
// agent surfaced ErrAgentUnreachable.
func (m *Manager) MarkFailed(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.agents[agentID]; ok {
		entry.descriptor.State = domain.AgentStateFailed
	}
}

// Shutdown stops every managed agent.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Stop(ctx, id); err != nil {
			m.logger.Warn("shutdown stop failed", "agent", id, "error", err)
		}
	}
}

func (m *Manager) setState(entry *agentEntry, state domain.AgentState) {
	m.mu.Lock()
	entry.descriptor.State = state
	m.mu.Unlock()
}

func (m *Manager) snapshot(entry *agentEntry) domain.AgentDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return entry.descriptor
}

func (m *Manager) remove(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.agents, agentID)
	for i, id := range m.order {
		if id == agentID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func newLaunchID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
