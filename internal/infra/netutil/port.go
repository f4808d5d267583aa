// Package netutil provides port reservation for agent processes.
package netutil

import (
	"fmt"
	"net"

	"agentnet/internal/domain"
)

// Reserve finds a usable TCP port via a bind-and-release probe.
//
// With preferred == 0 the OS assigns an ephemeral port. With a preferred
// port, Reserve either confirms it is free or fails with ErrPortUnavailable.
// It never substitutes a different port, because peers discover agents by
// their advertised address.
//
// The probe releases the port before returning, so a small window exists in
// which another process could grab it; the caller binds immediately after.
func Reserve(preferred int) (int, error) {
	if preferred < 0 || preferred > 65535 {
		return 0, domain.NewSubSystemError("netutil", "Reserve", domain.ErrInvalidInput,
			fmt.Sprintf("port %d out of range", preferred))
	}

	addr := fmt.Sprintf("127.0.0.1:%d", preferred)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		if preferred != 0 {
			return 0, domain.NewSubSystemError("netutil", "Reserve", domain.ErrPortUnavailable,
				fmt.Sprintf("port %d", preferred))
		}
		return 0, fmt.Errorf("netutil: probe bind: %w", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	if err := l.Close(); err != nil {
		return 0, fmt.Errorf("netutil: probe release: %w", err)
	}
	return port, nil
}
