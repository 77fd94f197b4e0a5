//go:build !linux

package link

import (
	"context"
	"fmt"
	"time"
)

// OpenBluetooth is only implemented on Linux.
func OpenBluetooth(ctx context.Context, address string, channel int, readTimeout time.Duration) (*Bluetooth, error) {
	if _, err := parseBDAddr(address); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("rfcomm %s: %w", address, ErrUnsupported)
}

func readSocket(fd int, p []byte) (int, error) {
	return 0, ErrUnsupported
}

func closeSocket(fd int) error {
	return nil
}
