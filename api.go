package rudp

import (
	"fmt"
	"net"
)

// Bind opens a UDP socket on the given local address and wraps it in a
// Socket ready for StartPolling or ManualStep.
func Bind(address string, cfg Config) (*Socket, error) {
	pconn, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBind, err)
	}
	return newSocket(pconn, cfg), nil
}

// BindAny binds to an ephemeral port on all interfaces.
func BindAny(cfg Config) (*Socket, error) {
	return Bind(":0", cfg)
}
