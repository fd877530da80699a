package coap

import (
	"math/rand"
	"net"
	"time"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewSource(42))
}

// fakeTransport is an in-memory Transport double: writes are captured for
// assertions and reads are fed from a queue, so dispatch/scheduler tests
// never touch a real socket.
type fakeTransport struct {
	local   *net.UDPAddr
	written []fakeWrite
	inbox   []fakeRead
}

type fakeWrite struct {
	buf []byte
	dst *net.UDPAddr
}

type fakeRead struct {
	buf []byte
	src *net.UDPAddr
}

func newFakeTransport(local *net.UDPAddr) *fakeTransport {
	return &fakeTransport{local: local}
}

func (t *fakeTransport) ReadFrom(buf []byte) (int, *net.UDPAddr, error) {
	if len(t.inbox) == 0 {
		return 0, nil, &net.OpError{Op: "read", Err: fakeTimeoutErr{}}
	}
	r := t.inbox[0]
	t.inbox = t.inbox[1:]
	n := copy(buf, r.buf)
	return n, r.src, nil
}

func (t *fakeTransport) WriteTo(buf []byte, dst *net.UDPAddr) (int, error) {
	cp := append([]byte(nil), buf...)
	t.written = append(t.written, fakeWrite{buf: cp, dst: dst})
	return len(cp), nil
}

func (t *fakeTransport) LocalAddr() *net.UDPAddr { return t.local }

func (t *fakeTransport) SetReadDeadline(time.Time) error { return nil }

func (t *fakeTransport) Close() error { return nil }

func (t *fakeTransport) queueRead(src *net.UDPAddr, buf []byte) {
	t.inbox = append(t.inbox, fakeRead{buf: buf, src: src})
}

// fakeTimeoutErr satisfies net.Error with Timeout() == true, mirroring a
// SetReadDeadline expiry on an idle real socket.
type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string   { return "i/o timeout" }
func (fakeTimeoutErr) Timeout() bool   { return true }
func (fakeTimeoutErr) Temporary() bool { return true }

// newTestContext builds a Context wired to a fakeTransport and a FakeClock,
// bypassing NewContext's real socket bind.
func newTestContext(local *net.UDPAddr) (*Context, *fakeTransport, *FakeClock) {
	transport := newFakeTransport(local)
	clock := NewFakeClock()
	resources := NewMapResourceTable()
	RegisterWellKnownCore(resources)

	ctx := &Context{
		Transport: transport,
		Resources: resources,
		sendQ:     newSendQueue(),
		dup:       newDupCache(),
		Counters:  newCounters(),
		Clock:     clock,
		rng:       testRand(),

		AckTimeout:       defaultAckTimeout,
		AckRandomFactor:  defaultAckRandomFactor,
		MaxRetransmit:    defaultMaxRetransmit,
		ExchangeLifetime: defaultExchangeLifetime,

		criticalOptions: map[OptionID]bool{
			OptionContentType: true,
			OptionProxyURI:    true,
			OptionURIHost:     true,
			OptionURIPort:     true,
			OptionURIPath:     true,
			OptionToken:       true,
			OptionURIQuery:    true,
		},
	}
	ctx.MsgIDSeed = 0x1000
	return ctx, transport, clock
}

func udpAddr(ip string, port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(ip), Port: port}
}
