//go:build windows

package transport

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/windows"
)

// setSocketOptions sets SO_REUSEADDR on the NHDP multicast socket. Windows
// has no SO_REUSEPORT; its SO_REUSEADDR already allows multiple processes
// to bind the same port, closer to POSIX SO_REUSEPORT than POSIX
// SO_REUSEADDR.
func setSocketOptions(fd uintptr) error {
	if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
	}
	return nil
}

func platformControl(network, address string, c syscall.RawConn) error {
	var sockoptErr error
	err := c.Control(func(fd uintptr) {
		sockoptErr = setSocketOptions(fd)
	})
	if err != nil {
		return fmt.Errorf("raw conn control failed: %w", err)
	}
	return sockoptErr
}

// PlatformControl is the net.ListenConfig.Control function the NHDP socket
// uses when opening its multicast listener.
func PlatformControl(network, address string, c syscall.RawConn) error {
	return platformControl(network, address, c)
}
