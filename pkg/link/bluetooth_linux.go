//go:build linux

package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sys/unix"
)

// OpenBluetooth connects an RFCOMM socket to address/channel. The connect
// itself is bounded by DefaultConnectTimeout rather than ctx.
func OpenBluetooth(ctx context.Context, address string, channel int, readTimeout time.Duration) (*Bluetooth, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if readTimeout == 0 {
		readTimeout = DefaultReadTimeout
	}

	bdaddr, err := parseBDAddr(address)
	if err != nil {
		return nil, err
	}
	if channel < 1 || channel > 30 {
		return nil, fmt.Errorf("invalid rfcomm channel %d", channel)
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("failed to create rfcomm socket: %w", err)
	}

	// On Linux SO_SNDTIMEO also bounds a blocking connect.
	connectTV := unix.NsecToTimeval(DefaultConnectTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &connectTV); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to set connect timeout: %w", err)
	}

	if err := unix.Connect(fd, &unix.SockaddrRFCOMM{Addr: littleEndian(bdaddr), Channel: uint8(channel)}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to connect to %s channel %d: %w", address, channel, err)
	}

	readTV := unix.NsecToTimeval(readTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &readTV); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &Bluetooth{
		address: address,
		channel: channel,
		fd:      fd,
		lines:   newLineReader(socketReader(fd)),
	}, nil
}

func readSocket(fd int, p []byte) (int, error) {
	n, err := unix.Read(fd, p)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func closeSocket(fd int) error {
	return unix.Close(fd)
}
