package coap

import (
	"bytes"
	"net"
	"testing"
)

func decodeLastWrite(t *testing.T, transport *fakeTransport) *PDU {
	t.Helper()
	if len(transport.written) == 0 {
		t.Fatal("expected at least one write")
	}
	w := transport.written[len(transport.written)-1]
	pdu, err := Decode(w.buf)
	if err != nil {
		t.Fatalf("failed to decode written datagram: %v", err)
	}
	return pdu
}

func TestDispatchWellKnownCoreGet(t *testing.T) {
	ctx, transport, clock := newTestContext(udpAddr("127.0.0.1", 5683))
	peer := udpAddr("10.0.0.1", 40000)

	req := &PDU{Type: TypeCON, Code: MethodGET, MsgID: 1,
		Options: []Option{{ID: OptionURIPath, Value: []byte(".well-known/core")}}}

	entry := &recvEntry{pdu: req, src: peer, t: clock.Now(), tid: TransactionHash(peer, req.MsgID)}
	ctx.Dispatch(entry)

	resp := decodeLastWrite(t, transport)
	if resp.Type != TypeACK {
		t.Fatalf("expected ACK, got %s", resp.Type)
	}
	if resp.Code != Content {
		t.Fatalf("expected 2.05 Content, got %s", resp.Code)
	}
}

func TestDispatchUnknownResourceReturnsNotFound(t *testing.T) {
	ctx, transport, clock := newTestContext(udpAddr("127.0.0.1", 5683))
	peer := udpAddr("10.0.0.1", 40000)

	req := &PDU{Type: TypeCON, Code: MethodGET, MsgID: 2,
		Options: []Option{{ID: OptionURIPath, Value: []byte("/no/such/resource")}}}
	entry := &recvEntry{pdu: req, src: peer, t: clock.Now(), tid: TransactionHash(peer, req.MsgID)}
	ctx.Dispatch(entry)

	resp := decodeLastWrite(t, transport)
	if resp.Code != NotFound {
		t.Fatalf("expected 4.04 NotFound, got %s", resp.Code)
	}
}

func TestDispatchUnrecognizedCriticalOptionOnCONSendsBadOption(t *testing.T) {
	ctx, transport, clock := newTestContext(udpAddr("127.0.0.1", 5683))
	peer := udpAddr("10.0.0.1", 40000)

	const unknownCritical OptionID = 9999 // odd, so critical; not in ctx.criticalOptions
	req := &PDU{Type: TypeCON, Code: MethodGET, MsgID: 3,
		Options: []Option{{ID: unknownCritical, Value: []byte{0x01}}}}
	entry := &recvEntry{pdu: req, src: peer, t: clock.Now(), tid: TransactionHash(peer, req.MsgID)}
	ctx.Dispatch(entry)

	resp := decodeLastWrite(t, transport)
	if resp.Code != BadOption {
		t.Fatalf("expected 4.02 BadOption, got %s", resp.Code)
	}
	if resp.Type != TypeACK {
		t.Fatalf("expected ACK for a CON request, got %s", resp.Type)
	}
	if o, ok := resp.Option(unknownCritical); !ok {
		t.Fatal("expected the unrecognized critical option to be echoed on the response")
	} else if !bytes.Equal(o.Value, []byte{0x01}) {
		t.Fatalf("expected echoed option value to match the original, got %v", o.Value)
	}
}

func TestDispatchUnrecognizedCriticalOptionOnNONIsSilentlyDropped(t *testing.T) {
	ctx, transport, clock := newTestContext(udpAddr("127.0.0.1", 5683))
	peer := udpAddr("10.0.0.1", 40000)

	const unknownCritical OptionID = 9999
	req := &PDU{Type: TypeNON, Code: MethodGET, MsgID: 4,
		Options: []Option{{ID: unknownCritical, Value: []byte{0x01}}}}
	entry := &recvEntry{pdu: req, src: peer, t: clock.Now(), tid: TransactionHash(peer, req.MsgID)}
	ctx.Dispatch(entry)

	if len(transport.written) != 0 {
		t.Fatalf("expected no reply for a NON request with an unknown critical option, got %d writes", len(transport.written))
	}
}

func TestDispatchDuplicateCONRequestReplaysACK(t *testing.T) {
	ctx, transport, clock := newTestContext(udpAddr("127.0.0.1", 5683))
	peer := udpAddr("10.0.0.1", 40000)

	req := &PDU{Type: TypeCON, Code: MethodGET, MsgID: 5,
		Options: []Option{{ID: OptionURIPath, Value: []byte(".well-known/core")}}}
	entry := &recvEntry{pdu: req, src: peer, t: clock.Now(), tid: TransactionHash(peer, req.MsgID)}
	ctx.Dispatch(entry)
	firstWrites := len(transport.written)

	dupEntry := &recvEntry{pdu: req, src: peer, t: clock.Now(), tid: TransactionHash(peer, req.MsgID)}
	ctx.Dispatch(dupEntry)

	if len(transport.written) != firstWrites+1 {
		t.Fatalf("expected exactly one more write for the replayed duplicate, got %d total", len(transport.written))
	}
	if ctx.Counters.Duplicates.Load() != 1 {
		t.Fatalf("expected duplicate counter at 1, got %d", ctx.Counters.Duplicates.Load())
	}
	resp := decodeLastWrite(t, transport)
	if resp.Type != TypeACK || resp.Code != CodeEmpty {
		t.Fatalf("expected an empty ACK replay, got type=%s code=%s", resp.Type, resp.Code)
	}
}

func TestDispatchObserveRegistrationAckedNotification(t *testing.T) {
	ctx, _, clock := newTestContext(udpAddr("127.0.0.1", 5683))
	peer := udpAddr("10.0.0.1", 40000)
	res := newTestResource(ctx, ResourceKey{7})

	reg := AddRegistration(ctx, res, peer, []byte{0xAA})
	pdu := &PDU{Type: TypeCON, Code: Content, MsgID: ctx.NextMessageID()}
	tid, err := ctx.QueueConfirmable(pdu, peer, SensorDatapoint, reg)
	if err != nil {
		t.Fatalf("unexpected error queuing notification: %v", err)
	}

	ack := &PDU{Type: TypeACK, Code: CodeEmpty, MsgID: pdu.MsgID}
	entry := &recvEntry{pdu: ack, src: peer, t: clock.Now(), tid: tid}
	ctx.Dispatch(entry)

	if !ctx.sendQ.Empty() {
		t.Fatal("expected the outstanding notification to be cancelled on ACK")
	}
	if res.subscribers == nil || res.subscribers.RefCount != 1 {
		t.Fatalf("expected the registration to remain at RefCount 1 after ACK, got %+v", res.subscribers)
	}
}

func TestDispatchObserveRegistrationRSTFailsNotification(t *testing.T) {
	ctx, _, clock := newTestContext(udpAddr("127.0.0.1", 5683))
	peer := udpAddr("10.0.0.1", 40000)
	res := newTestResource(ctx, ResourceKey{8})

	unregistered := false
	res.OnUnregister = func(ctx *Context, r *Registration) {
		unregistered = true
		r.Release(ctx) // the streaming layer's own reference, separate from the in-flight send's
	}

	reg := AddRegistration(ctx, res, peer, []byte{0xAA})
	pdu := &PDU{Type: TypeCON, Code: Content, MsgID: ctx.NextMessageID()}
	tid, _ := ctx.QueueConfirmable(pdu, peer, SensorDatapoint, reg)

	rst := &PDU{Type: TypeRST, Code: CodeEmpty, MsgID: pdu.MsgID}
	entry := &recvEntry{pdu: rst, src: peer, t: clock.Now(), tid: tid}
	ctx.Dispatch(entry)

	if !unregistered {
		t.Fatal("expected OnUnregister to fire on RST for an outstanding notification")
	}
	if res.subscribers != nil {
		t.Fatal("expected the registration to be released from the resource once both references are released")
	}
}

func TestDispatchMethodNotAllowedWhenNoHandlerRegistered(t *testing.T) {
	ctx, transport, clock := newTestContext(udpAddr("127.0.0.1", 5683))
	peer := udpAddr("10.0.0.1", 40000)

	key := ResourceKeyForPath("sensors/temp")
	res := newTestResource(ctx, key)
	res.Handlers[int(MethodGET)-1] = func(ctx *Context, req *PDU, remote *net.UDPAddr, token []byte, resp *PDU) {
		resp.Code = Content
	}

	req := &PDU{Type: TypeCON, Code: MethodPOST, MsgID: 6,
		Options: []Option{{ID: OptionURIPath, Value: []byte("sensors/temp")}}}
	entry := &recvEntry{pdu: req, src: peer, t: clock.Now(), tid: TransactionHash(peer, req.MsgID)}
	ctx.Dispatch(entry)

	resp := decodeLastWrite(t, transport)
	if resp.Code != MethodNotAllowed {
		t.Fatalf("expected 4.05 MethodNotAllowed, got %s", resp.Code)
	}
}

func TestResourceKeyForPathIgnoresSlashesAndReservesWellKnown(t *testing.T) {
	if ResourceKeyForPath("/.well-known/core") != WellKnownCoreKey {
		t.Fatal("expected the well-known/core path to reserve the zero key")
	}
	if ResourceKeyForPath("sensors/temp") != ResourceKeyForPath("/sensors/temp/") {
		t.Fatal("expected leading/trailing slashes not to affect the computed key")
	}
}

func TestDispatchUnmatchedReplyIsIgnored(t *testing.T) {
	ctx, transport, clock := newTestContext(udpAddr("127.0.0.1", 5683))
	peer := udpAddr("10.0.0.1", 40000)

	ack := &PDU{Type: TypeACK, Code: CodeEmpty, MsgID: 999}
	entry := &recvEntry{pdu: ack, src: peer, t: clock.Now(), tid: TransactionHash(peer, 999)}
	ctx.Dispatch(entry)

	if len(transport.written) != 0 {
		t.Fatalf("expected no writes for an unmatched reply, got %d", len(transport.written))
	}
}
