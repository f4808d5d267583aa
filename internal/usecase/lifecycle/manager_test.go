package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"agentnet/internal/domain"
	"agentnet/internal/infra/logger"
)

type fakeHandle struct {
	mu         sync.Mutex
	done       chan struct{}
	terminated bool
	killed     bool
	// exitOnTerminate controls whether Terminate makes the process exit.
	exitOnTerminate bool
}

func newFakeHandle(exitOnTerminate bool) *fakeHandle {
	return &fakeHandle{done: make(chan struct{}), exitOnTerminate: exitOnTerminate}
}

func (h *fakeHandle) Terminate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terminated = true
	if h.exitOnTerminate {
		h.exitLocked()
	}
	return nil
}

func (h *fakeHandle) Kill() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.killed = true
	h.exitLocked()
}

func (h *fakeHandle) exit() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exitLocked()
}

func (h *fakeHandle) exitLocked() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

type fakeSpawner struct {
	mu      sync.Mutex
	handles map[string]*fakeHandle
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{handles: make(map[string]*fakeHandle)}
}

func (s *fakeSpawner) Spawn(ctx context.Context, def domain.AgentDefinition, port int) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := newFakeHandle(true)
	s.handles[def.ID] = h
	return h, nil
}

func (s *fakeSpawner) handle(id string) *fakeHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[id]
}

// fakeProber reports healthy after a configurable number of probes.
type fakeProber struct {
	mu         sync.Mutex
	failFirst  int
	probes     int
	alwaysFail bool
}

func (p *fakeProber) CheckHealth(ctx context.Context, endpoint string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes++
	if p.alwaysFail || p.probes <= p.failFirst {
		return errors.New("connection refused")
	}
	return nil
}

func testManager(spawner Spawner, prober Prober) *Manager {
	return NewManager(ManagerConfig{
		ReadinessTimeout:  500 * time.Millisecond,
		ReadinessInterval: 10 * time.Millisecond,
		StopGrace:         100 * time.Millisecond,
	}, spawner, prober, logger.Discard())
}

func def(id string) domain.AgentDefinition {
	return domain.AgentDefinition{ID: id, Name: id}
}

func TestStartBecomesReady(t *testing.T) {
	spawner := newFakeSpawner()
	m := testManager(spawner, &fakeProber{failFirst: 2})

	desc, err := m.Start(context.Background(), def("weather_agent"), 0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if desc.State != domain.AgentStateReady {
		t.Errorf("state = %s, want ready", desc.State)
	}
	if desc.Port <= 0 {
		t.Errorf("port = %d, want allocated", desc.Port)
	}
	if desc.Host != "127.0.0.1" {
		t.Errorf("host = %s", desc.Host)
	}
}

func TestStartDuplicate(t *testing.T) {
	spawner := newFakeSpawner()
	m := testManager(spawner, &fakeProber{})

	if _, err := m.Start(context.Background(), def("a"), 0); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	_, err := m.Start(context.Background(), def("a"), 0)
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("second Start err = %v, want ErrDuplicate", err)
	}
}

func TestStartReadinessTimeout(t *testing.T) {
	spawner := newFakeSpawner()
	m := testManager(spawner, &fakeProber{alwaysFail: true})

	_, err := m.Start(context.Background(), def("slow"), 0)
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("Start err = %v, want ErrTimeout", err)
	}
	// The failed agent stays visible as Failed and its process is killed.
	list := m.List()
	if len(list) != 1 || list[0].State != domain.AgentStateFailed {
		t.Errorf("list = %+v, want one failed descriptor", list)
	}
	if h := spawner.handle("slow"); !h.killed {
		t.Error("process of timed-out agent must be killed")
	}
}

func TestStartProcessExitsEarly(t *testing.T) {
	spawner := newFakeSpawner()
	prober := &fakeProber{alwaysFail: true}
	m := testManager(spawner, prober)

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Start(context.Background(), def("crasher"), 0)
		errCh <- err
	}()

	// Let the spawn happen, then simulate a crash.
	var h *fakeHandle
	for i := 0; i < 100; i++ {
		if h = spawner.handle("crasher"); h != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if h == nil {
		t.Fatal("spawn never happened")
	}
	h.exit()

	err := <-errCh
	if !errors.Is(err, domain.ErrAgentUnreachable) {
		t.Errorf("Start err = %v, want ErrAgentUnreachable", err)
	}
}

func TestStopGraceful(t *testing.T) {
	spawner := newFakeSpawner()
	m := testManager(spawner, &fakeProber{})

	if _, err := m.Start(context.Background(), def("a"), 0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Stop(context.Background(), "a"); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	h := spawner.handle("a")
	if !h.terminated {
		t.Error("expected graceful terminate")
	}
	if h.killed {
		t.Error("graceful exit must not escalate to kill")
	}
	if len(m.List()) != 0 {
		t.Error("descriptor must be removed after Stop")
	}
}

func TestStopForceKillsAfterGrace(t *testing.T) {
	spawner := newFakeSpawner()
	m := testManager(spawner, &fakeProber{})

	if _, err := m.Start(context.Background(), def("stubborn"), 0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Ignore SIGTERM.
	spawner.handle("stubborn").exitOnTerminate = false

	if err := m.Stop(context.Background(), "stubborn"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	h := spawner.handle("stubborn")
	if !h.killed {
		t.Error("expected force kill after grace period")
	}
	if len(m.List()) != 0 {
		t.Error("descriptor must be removed even on the force path")
	}
}

func TestStopUnknownAgent(t *testing.T) {
	m := testManager(newFakeSpawner(), &fakeProber{})
	if err := m.Stop(context.Background(), "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Stop err = %v, want ErrNotFound", err)
	}
}

func TestListReconcilesLiveness(t *testing.T) {
	spawner := newFakeSpawner()
	m := testManager(spawner, &fakeProber{})

	if _, err := m.Start(context.Background(), def("a"), 0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Start(context.Background(), def("b"), 0); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// b crashes silently; nothing notices until the next List.
	spawner.handle("b").exit()

	list := m.List()
	if len(list) != 2 {
		t.Fatalf("list len = %d", len(list))
	}
	if list[0].ID != "a" || list[0].State != domain.AgentStateReady {
		t.Errorf("a = %+v", list[0])
	}
	if list[1].ID != "b" || list[1].State != domain.AgentStateFailed {
		t.Errorf("b = %+v, want failed", list[1])
	}
}

func TestListOrderIsStartOrder(t *testing.T) {
	spawner := newFakeSpawner()
	m := testManager(spawner, &fakeProber{})

	for _, id := range []string{"third", "first", "second"} {
		if _, err := m.Start(context.Background(), def(id), 0); err != nil {
			t.Fatalf("Start %s: %v", id, err)
		}
	}

	list := m.List()
	want := []string{"third", "first", "second"}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("list[%d] = %s, want %s", i, list[i].ID, id)
		}
	}
}

func TestConcurrentStartsOfDistinctAgents(t *testing.T) {
	spawner := newFakeSpawner()
	m := testManager(spawner, &fakeProber{})

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = m.Start(context.Background(), def(string(rune('a'+n))), 0)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Start %d: %v", i, err)
		}
	}
	if len(m.List()) != 5 {
		t.Errorf("list len = %d, want 5", len(m.List()))
	}
}

func TestMarkFailed(t *testing.T) {
	spawner := newFakeSpawner()
	m := testManager(spawner, &fakeProber{})

	if _, err := m.Start(context.Background(), def("a"), 0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.MarkFailed("a")

	desc, err := m.Get("a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if desc.State != domain.AgentStateFailed {
		t.Errorf("state = %s, want failed", desc.State)
	}
}

func TestShutdownStopsAll(t *testing.T) {
	spawner := newFakeSpawner()
	m := testManager(spawner, &fakeProber{})

	for _, id := range []string{"a", "b"} {
		if _, err := m.Start(context.Background(), def(id), 0); err != nil {
			t.Fatalf("Start %s: %v", id, err)
		}
	}
	m.Shutdown(context.Background())
	if len(m.List()) != 0 {
		t.Errorf("list len = %d after shutdown", len(m.List()))
	}
}
