// Package port implements host port availability checks for service
// deployments.
//
// Before publishing a container port, uvboot verifies the requested host
// port is actually free. Docker itself only fails the bind once the
// container is already created, which leaves a half-made deployment
// behind; probing first keeps failures at the CLI boundary. When the
// caller permits it, a fallback search picks a free port from the IANA
// dynamic range (49152-65535) instead of failing.
package port

import (
	"fmt"
	"net"
)

// Scanner checks whether specific ports are available on the host.
//
// It asks the operating system directly via net.Listen/net.ListenPacket
// rather than parsing /proc/net/* or shelling out to lsof/ss, which may
// need elevated permissions. A struct (rather than bare functions) keeps
// the Scanner injectable and leaves room for options such as a custom
// bind address.
type Scanner struct{}

// NewScanner creates a new Scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// IsPortAvailable checks whether a single port is free on the host.
//
// For TCP it attempts net.Listen(":port"); for UDP, net.ListenPacket.
// A successful bind means the port is free; the probe listener is closed
// immediately. The probe binds all interfaces because Docker publishes
// ports on 0.0.0.0 — checking loopback only would produce false
// positives for services bound to a single interface.
func (s *Scanner) IsPortAvailable(port int, protocol string) bool {
	addr := fmt.Sprintf(":%d", port)

	switch protocol {
	case "tcp":
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return false
		}
		defer func() { _ = listener.Close() }()
		return true

	case "udp":
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return false
		}
		defer func() { _ = conn.Close() }()
		return true

	default:
		// Unknown protocol — treat as unavailable to fail safe.
		return false
	}
}

// FindAvailablePort scans [startPort, endPort] inclusive and returns the
// first free port for the protocol. The sequential search keeps the
// selection deterministic for a given host state.
//
// Returns an error when the whole range is occupied.
func (s *Scanner) FindAvailablePort(startPort, endPort int, protocol string) (int, error) {
	for port := startPort; port <= endPort; port++ {
		if s.IsPortAvailable(port, protocol) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available %s port found in range %d-%d", protocol, startPort, endPort)
}
