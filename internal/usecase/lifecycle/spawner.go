package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"agentnet/internal/domain"
)

// Handle controls one spawned agent process.
type Handle interface {
	// Terminate requests graceful shutdown (SIGTERM).
	Terminate() error
	// Kill force-terminates the process.
	Kill()
	// Done is closed when the process has exited.
	Done() <-chan struct{}
	// Alive reports whether the process is still running.
	Alive() bool
}

// Spawner launches one agent runtime as an independent OS process.
type Spawner interface {
	Spawn(ctx context.Context, def domain.AgentDefinition, port int) (Handle, error)
}

// ExecSpawner launches agent runtimes by re-invoking the current binary with
// the agent subcommand. The definition travels as a JSON argument so the
// child needs no shared files.
type ExecSpawner struct {
	Binary string // defaults to the current executable
}

func (s *ExecSpawner) Spawn(ctx context.Context, def domain.AgentDefinition, port int) (Handle, error) {
	binary := s.Binary
	if binary == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		binary = exe
	}

	defJSON, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("marshal definition: %w", err)
	}

	// Detached context: the child outlives the Start call. Termination goes
	// through the handle, never through the request context.
	cmdCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(cmdCtx, binary,
		"agent",
		"--port", strconv.Itoa(port),
		"--definition", string(defJSON),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start agent process: %w", err)
	}

	h := &execHandle{cmd: cmd, cancel: cancel, done: make(chan struct{})}
	go func() {
		cmd.Wait()
		close(h.done)
	}()
	return h, nil
}

type execHandle struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}
}

func (h *execHandle) Terminate() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Signal(syscall.SIGTERM)
}

func (h *execHandle) Kill() { h.cancel() }

func (h *execHandle) Done() <-chan struct{} { return h.done }

func (h *execHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
