package coap

import (
	"math/rand"
	"net"
	"time"

	"github.com/pkg/errors"
	log "github.com/nstackx/coap-engine/pkg/utils/logger"
)

// Protocol timing constants (RFC 7252, net.c's macros of the same
// name). defaultAckTimeout is in ticks, via the 0.150*1024 realization of
// ACK_TIMEOUT truncated to a whole 153 ticks; defaultAckRandomFactor is a
// plain multiplier.
const (
	defaultAckTimeout       = Tick(150 * ticksPerSecond / 1000)
	defaultAckRandomFactor  = 1.5
	defaultMaxRetransmit    = 4
	defaultExchangeLifetime = Tick(247 * ticksPerSecond)
)

// ResponseHandler is the single callback a Context dispatches parsed
// responses to. request is the PDU of the matched outstanding send and is
// never nil: an ACK/RST that matches no outstanding send is dropped before
// the handler is reached, and a response arriving as CON or NON is not
// routed to it at all.
type ResponseHandler func(ctx *Context, remote *net.UDPAddr, request *PDU, response *PDU, tid TransactionID)

// Transport is the external collaborator that actually moves bytes; the
// engine core never touches a socket directly. UDPTransport is the
// concrete implementation NewContext constructs at creation.
type Transport interface {
	ReadFrom(buf []byte) (n int, src *net.UDPAddr, err error)
	WriteTo(buf []byte, dst *net.UDPAddr) (int, error)
	LocalAddr() *net.UDPAddr
	SetReadDeadline(t time.Time) error
	Close() error
}

// Context is the per-endpoint singleton: queues, caches, the resource
// table, counters, and the bits NewContext initializes once at creation.
type Context struct {
	Transport Transport
	Resources ResourceTable

	sendQ *sendQueue
	recvQ []*recvEntry
	dup   *dupCache

	MsgIDSeed uint16

	// criticalOptions is the bitset of option numbers this endpoint
	// registers as critical: Content-Type, Proxy-Uri, Uri-Host, Uri-Port,
	// Uri-Path, Token, Uri-Query.
	criticalOptions map[OptionID]bool

	ResponseHandler ResponseHandler

	Counters *Counters
	Clock    Clock

	AckTimeout       Tick
	AckRandomFactor  float64
	MaxRetransmit    int
	ExchangeLifetime Tick

	rng *rand.Rand
}

// recvEntry is a queued, already-parsed inbound datagram: wire-arrival
// order is preserved by simple FIFO append/pop.
type recvEntry struct {
	pdu   *PDU
	src   *net.UDPAddr
	local *net.UDPAddr
	t     Tick
	tid   TransactionID
}

// NewContext creates and initializes an endpoint: seeds
// the clock and PRNG from the listen address bit pattern xored with the
// clock offset, binds the UDP transport with address reuse, registers the
// built-in critical options, and seeds the message id.
func NewContext(listenAddr *net.UDPAddr, resources ResourceTable) (*Context, error) {
	transport, err := NewUDPTransport(listenAddr)
	if err != nil {
		return nil, errors.Wrap(err, "coap: bind transport")
	}

	if resources == nil {
		resources = NewMapResourceTable()
	}

	clock := NewSystemClock()
	seed := seedFromAddr(transport.LocalAddr()) ^ int64(clock.Now())

	ctx := &Context{
		Transport: transport,
		Resources: resources,
		sendQ:     newSendQueue(),
		dup:       newDupCache(),
		Counters:  newCounters(),
		Clock:     clock,
		rng:       rand.New(rand.NewSource(seed)),

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
	ctx.MsgIDSeed = uint16(ctx.rng.Intn(1 << 16))

	log.Infof("[coap] endpoint bound on %s", transport.LocalAddr())
	return ctx, nil
}

func seedFromAddr(addr *net.UDPAddr) int64 {
	var seed int64
	for i, b := range addr.IP {
		seed ^= int64(b) << uint((i%8)*8)
	}
	seed ^= int64(addr.Port)
	return seed
}

// NextMessageID returns the next outgoing message id.
func (c *Context) NextMessageID() uint16 {
	c.MsgIDSeed++
	if c.MsgIDSeed == 0 {
		c.MsgIDSeed++
	}
	return c.MsgIDSeed
}

// IsCriticalUnknown reports whether opt is a critical option this Context
// does not recognize.
func (c *Context) IsCriticalUnknown(opt Option) bool {
	if !opt.ID.IsCritical() {
		return false
	}
	return !c.criticalOptions[opt.ID]
}

// Destroy tears the endpoint down: walks and frees both
// queues, deletes every resource (cascading through its subscriber lists
// and releasing each registration), and closes the transport.
func (c *Context) Destroy() {
	for e := c.sendQ.PopFront(); e != nil; e = c.sendQ.PopFront() {
		if e.reg != nil {
			e.reg.Release(c)
		}
	}
	c.recvQ = nil
	for _, res := range c.Resources.All() {
		for cur := res.subscribers; cur != nil; {
			nxt := cur.next
			cur.RefCount = 1 // force the release below to free it
			cur.Release(c)
			cur = nxt
		}
	}
	if c.Transport != nil {
		_ = c.Transport.Close()
	}
}

// readPollInterval bounds how long ReadOne blocks before giving the
// caller's event loop a chance to run the scheduler and check for a
// shutdown signal.
const readPollInterval = 50 * time.Millisecond

// ReadOne drains exactly one readable datagram from the transport into
// the receive queue, the event loop's read step. It sets a short read
// deadline so the caller's select loop can still service the
// retransmission scheduler and signal handling even with no traffic; a
// deadline expiry is reported as (false, nil), not an error.
func (c *Context) ReadOne(buf []byte) (bool, error) {
	_ = c.Transport.SetReadDeadline(time.Now().Add(readPollInterval))
	n, src, err := c.Transport.ReadFrom(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return false, nil
		}
		return false, err
	}
	pdu, err := Decode(buf[:n])
	now := c.Clock.Now()
	if err != nil {
		log.Debugf("[coap] malformed datagram from %s: %v", src, err)
		c.sendResetForMalformed(buf[:n], src)
		return true, nil
	}
	c.Counters.recvPacket(pdu.Type, n)
	tid := TransactionHash(src, pdu.MsgID)
	c.recvQ = append(c.recvQ, &recvEntry{pdu: pdu, src: src, local: c.Transport.LocalAddr(), t: now, tid: tid})
	return true, nil
}

// sendResetForMalformed best-effort parses just enough of a malformed
// datagram's header to answer CON/NON with RST.
func (c *Context) sendResetForMalformed(buf []byte, src *net.UDPAddr) {
	if len(buf) < 4 {
		return
	}
	typ := Type((buf[0] >> 4) & 0x03)
	if typ != TypeCON && typ != TypeNON {
		return
	}
	msgID := uint16(buf[2])<<8 | uint16(buf[3])
	rst := &PDU{Type: TypeRST, Code: CodeEmpty, MsgID: msgID}
	c.sendPDU(rst, src, nil)
}

// sendPDU encodes and writes a PDU, updating counters. If entry is
// non-nil it has already been inserted into the send queue by the caller
// (reliable path); this just performs the wire write, reusing the bytes
// cached by the PDU's last Encode.
func (c *Context) sendPDU(pdu *PDU, dst *net.UDPAddr, entry *sendEntry) error {
	buf := pdu.raw
	if entry == nil || buf == nil {
		var err error
		buf, err = pdu.Encode()
		if err != nil {
			return errors.Wrap(err, "coap: encode outgoing pdu")
		}
	}
	n, err := c.Transport.WriteTo(buf, dst)
	if err != nil {
		return err
	}
	c.Counters.sendPacket(pdu.Type, n)
	return nil
}

// DrainReceiveQueue runs every currently queued inbound PDU through the
// dispatcher, in wire-arrival order.
func (c *Context) DrainReceiveQueue() {
	q := c.recvQ
	c.recvQ = nil
	for _, e := range q {
		c.Dispatch(e)
	}
}

