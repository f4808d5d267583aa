package netutil

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"agentnet/internal/domain"
)

func TestReserveEphemeral(t *testing.T) {
	port, err := Reserve(0)
	if err != nil {
		t.Fatalf("Reserve(0): %v", err)
	}
	if port <= 0 || port > 65535 {
		t.Errorf("port %d out of range", port)
	}
}

func TestReservePreferredFree(t *testing.T) {
	// Ask the OS for a port that was just free; re-reserving it immediately
	// should succeed and return the same number.
	port, err := Reserve(0)
	if err != nil {
		t.Fatalf("Reserve(0): %v", err)
	}
	got, err := Reserve(port)
	if err != nil {
		t.Fatalf("Reserve(%d): %v", port, err)
	}
	if got != port {
		t.Errorf("Reserve(%d) = %d, want %d", port, got, port)
	}
}

func TestReservePreferredOccupied(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	_, err = Reserve(port)
	if !errors.Is(err, domain.ErrPortUnavailable) {
		t.Fatalf("Reserve(%d) err = %v, want ErrPortUnavailable", port, err)
	}
	// The error names the offending port.
	if want := fmt.Sprintf("port %d", port); !strings.Contains(err.Error(), want) {
		t.Errorf("error %q missing %q", err, want)
	}
}

func TestReserveOutOfRange(t *testing.T) {
	if _, err := Reserve(70000); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Reserve(70000) err = %v, want ErrInvalidInput", err)
	}
	if _, err := Reserve(-1); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Reserve(-1) err = %v, want ErrInvalidInput", err)
	}
}
