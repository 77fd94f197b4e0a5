package link

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultConnectTimeout bounds a blocking RFCOMM connect.
const DefaultConnectTimeout = 10 * time.Second

// Bluetooth is a transport over an RFCOMM socket (Linux only).
type Bluetooth struct {
	address string
	channel int

	mu    sync.Mutex
	fd    int // -1 once closed
	lines *lineReader
}

// ReadLine implements Transport.
func (b *Bluetooth) ReadLine() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fd < 0 {
		return "", ErrNotConnected
	}
	line, err := b.lines.readLine()
	if err != nil {
		return "", fmt.Errorf("rfcomm read %s: %w", b, err)
	}
	return line, nil
}

// Close implements Transport.
func (b *Bluetooth) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fd < 0 {
		return nil
	}
	err := closeSocket(b.fd)
	b.fd = -1
	b.lines.reset()
	return err
}

func (b *Bluetooth) String() string {
	return fmt.Sprintf("bluetooth:%s/%d", b.address, b.channel)
}

// socketReader reads from a socket fd, reporting a receive timeout as (0, nil).
type socketReader int

func (fd socketReader) Read(p []byte) (int, error) {
	return readSocket(int(fd), p)
}

// parseBDAddr parses a colon separated Bluetooth device address in the usual
// most-significant-first notation.
func parseBDAddr(s string) ([6]uint8, error) {
	var addr [6]uint8
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != len(addr) {
		return addr, fmt.Errorf("invalid bluetooth address %q", s)
	}
	for i, part := range parts {
		if len(part) != 2 {
			return addr, fmt.Errorf("invalid bluetooth address %q", s)
		}
		v, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return addr, fmt.Errorf("invalid bluetooth address %q: %w", s, err)
		}
		addr[i] = uint8(v)
	}
	return addr, nil
}

// littleEndian reverses a parsed address into the byte order of sockaddr_rc.
func littleEndian(addr [6]uint8) [6]uint8 {
	var out [6]uint8
	for i, b := range addr {
		out[len(addr)-1-i] = b
	}
	return out
}
