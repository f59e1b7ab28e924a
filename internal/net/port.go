// Package net has small networking helpers for tests and local setups.
package net

import (
	"fmt"
	"net"
)

// GetEphemeralTCPPort asks the kernel for a free TCP port on localhost and
// releases it. The port can be re-bound immediately, e.g. by a transport
// listener under test.
func GetEphemeralTCPPort() (int, error) {
	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, fmt.Errorf("listening to acquire port: %w", err)
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}
