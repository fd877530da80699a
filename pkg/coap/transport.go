package coap

import (
	"context"
	"net"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// UDPTransport is the concrete Transport: a bound UDP socket with
// multicast TTL/loopback controls, adapted from the discovery package's
// CoapCreateUDPServer/CoapSocketSend/CoapSocketRecv trio.
type UDPTransport struct {
	conn   *net.UDPConn
	pconn  *ipv4.PacketConn
	local  *net.UDPAddr
}

const (
	defaultMulticastTTL = 64
)

// NewUDPTransport binds a UDP socket at addr with SO_REUSEADDR set (so a
// restarted endpoint can rebind before the previous socket's TIME_WAIT
// clears) and conservative multicast defaults: TTL capped and loopback
// delivery disabled so an endpoint never reprocesses its own multicast
// sends.
func NewUDPTransport(addr *net.UDPAddr) (*UDPTransport, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp", addr.String())
	if err != nil {
		return nil, err
	}
	conn := pc.(*net.UDPConn)

	pconn := ipv4.NewPacketConn(conn)
	_ = pconn.SetMulticastTTL(defaultMulticastTTL)
	_ = pconn.SetMulticastLoopback(false)

	local, _ := conn.LocalAddr().(*net.UDPAddr)
	return &UDPTransport{conn: conn, pconn: pconn, local: local}, nil
}

func (t *UDPTransport) ReadFrom(buf []byte) (int, *net.UDPAddr, error) {
	n, addr, err := t.conn.ReadFromUDP(buf)
	return n, addr, err
}

func (t *UDPTransport) WriteTo(buf []byte, dst *net.UDPAddr) (int, error) {
	return t.conn.WriteToUDP(buf, dst)
}

func (t *UDPTransport) LocalAddr() *net.UDPAddr { return t.local }

func (t *UDPTransport) SetReadDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

func (t *UDPTransport) Close() error { return t.conn.Close() }
