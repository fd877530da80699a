// Package client builds outgoing requests against a coap.Context: method
// PDU framing and token allocation, for callers that want to originate
// requests rather than only answer them.
package client

import (
	"net"

	"github.com/rs/xid"

	"github.com/nstackx/coap-engine/pkg/coap"
)

// Request is a not-yet-sent outgoing PDU paired with its destination.
type Request struct {
	PDU  *coap.PDU
	Dest *net.UDPAddr
}

// NewToken allocates a compact token from an xid, keeping its last 8 bytes
// (machine id, process id and counter) to fit the engine's 8-byte token
// limit, so successive tokens from one process differ.
func NewToken() []byte {
	id := xid.New()
	b := id.Bytes()
	return b[len(b)-8:]
}

// Get builds a confirmable GET for path against dest, with a freshly
// allocated token and Uri-Path option.
func Get(ctx *coap.Context, dest *net.UDPAddr, path string, observe bool) *Request {
	token := NewToken()
	opts := []coap.Option{
		{ID: coap.OptionToken, Value: token},
		{ID: coap.OptionURIPath, Value: []byte(path)},
	}
	if observe {
		opts = append(opts, coap.Option{ID: coap.OptionObserve, Value: []byte{0}})
	}
	pdu := &coap.PDU{
		Type:    coap.TypeCON,
		Code:    coap.MethodGET,
		MsgID:   ctx.NextMessageID(),
		Options: opts,
	}
	return &Request{PDU: pdu, Dest: dest}
}

// Send queues req for reliable delivery, tagging it with sensor so the
// retransmit-by-type counters can track it.
func Send(ctx *coap.Context, req *Request, sensor coap.SensorType) (coap.TransactionID, error) {
	return ctx.QueueConfirmable(req.PDU, req.Dest, sensor, nil)
}
