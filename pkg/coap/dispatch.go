package coap

import (
	"strings"

	log "github.com/nstackx/coap-engine/pkg/utils/logger"
)

// Dispatch routes one already-parsed, already-timestamped inbound entry:
// replies to a duplicate from the alive cache without re-running a
// handler, matches ACK/RST against an outstanding send, or routes a
// fresh request (CON/NON carrying a request code) to its resource's
// handler.
func (c *Context) Dispatch(e *recvEntry) {
	c.dup.Evict(e.t)

	switch {
	case e.pdu.Type == TypeACK || e.pdu.Type == TypeRST:
		c.dispatchReply(e)
	case e.pdu.Code.IsRequest():
		c.dispatchRequest(e)
	default:
		log.Debugf("[coap] dropping unrecognized message from %s: type=%s code=%s", e.src, e.pdu.Type, e.pdu.Code)
	}
}

// dispatchReply matches an ACK or RST against the send queue. A
// registration pinned by the matched entry is acknowledged (ACK) or
// failed (RST); either way the entry's reference on it is released.
func (c *Context) dispatchReply(e *recvEntry) {
	entry := c.CancelByTID(e.tid)
	if entry == nil {
		log.Debugf("[coap] unmatched %s from %s msgid=%d", e.pdu.Type, e.src, e.pdu.MsgID)
		return
	}

	if entry.reg != nil {
		if e.pdu.Type == TypeACK {
			entry.reg.AckNotification()
			entry.reg.Release(c)
		} else {
			FailedNotify(c, entry.reg)
		}
		return
	}

	if e.pdu.Code == CodeEmpty {
		return
	}

	if c.ResponseHandler != nil {
		c.ResponseHandler(c, e.src, entry.pdu, e.pdu, e.tid)
	}
}

// dispatchRequest handles a fresh CON/NON request: answers a cached
// duplicate with an empty ACK or RST per its recorded reply type, checks for unrecognized critical
// options (answering CON with 4.02 Bad Option and dropping NON silently),
// then routes to the resource's handler, or answers 4.04/4.05 if no
// resource or no method handler exists.
func (c *Context) dispatchRequest(e *recvEntry) {
	if alive := c.dup.Find(e.src, e.pdu.MsgID); alive != nil {
		c.Counters.Duplicates.Inc()
		c.replayDuplicate(e, alive)
		return
	}
	entry := c.dup.Add(e.src, e.pdu.MsgID, e.t, c.ExchangeLifetime)

	for _, o := range e.pdu.Options {
		if c.IsCriticalUnknown(o) {
			if e.pdu.Type == TypeCON {
				resp := BuildErrorResponse(e.pdu, BadOption, "unrecognized critical option")
				EchoCriticalOptions(c, e.pdu, resp)
				c.sendPDU(resp, e.src, nil)
				entry.typ = replyACK
			}
			// A NON request with an unrecognized critical option is
			// dropped without any reply; the alive-MID record still
			// stands, so a later duplicate datagram is suppressed too.
			return
		}
	}

	resp := c.frameResponse(e.pdu)
	res, ok := c.Resources.Lookup(c.resourceKeyFor(e.pdu))
	if !ok {
		resp.Code = NotFound
		c.finishRequest(e, entry, resp)
		return
	}

	handler, ok := res.HandlerFor(e.pdu.Code)
	if !ok {
		resp.Code = MethodNotAllowed
		c.finishRequest(e, entry, resp)
		return
	}

	handler(c, e.pdu, e.src, e.pdu.Token(), resp)
	c.finishRequest(e, entry, resp)
}

// resourceKeyFor extracts the resource key a request targets. Computing
// the hash of the request's Uri-* options is the external collaborator's
// job; absent that wiring, this engine derives the key itself by hashing
// the joined Uri-Path segments with the same fnv4 digest the transaction
// id uses, reserving the all-zero key for .well-known/core regardless of
// how its path happens to hash (matching the reserved well-known hash
// key convention, rather than leaving it to chance collision).
func (c *Context) resourceKeyFor(req *PDU) ResourceKey {
	var path []byte
	for _, o := range req.Options {
		if o.ID != OptionURIPath {
			continue
		}
		if len(path) > 0 {
			path = append(path, '/')
		}
		path = append(path, o.Value...)
	}
	return resourceKeyForPathBytes(path)
}

// ResourceKeyForPath computes the key a resource registered at path (e.g.
// "sensors/temp", leading/trailing slashes ignored) will be looked up
// under, for callers building a ResourceTable outside of this package.
func ResourceKeyForPath(path string) ResourceKey {
	return resourceKeyForPathBytes([]byte(strings.Trim(path, "/")))
}

func resourceKeyForPathBytes(path []byte) ResourceKey {
	trimmed := strings.Trim(string(path), "/")
	if trimmed == "" || trimmed == ".well-known/core" {
		return WellKnownCoreKey
	}
	var key ResourceKey
	copy(key[:], fnv4([]byte(trimmed))[:])
	return key
}

// frameResponse pre-allocates a response PDU framed as: ACK with
// the request's message id for a CON request, NON with a fresh message
// id for a NON request; the Token option is copied across either way.
func (c *Context) frameResponse(req *PDU) *PDU {
	resp := &PDU{}
	if req.Type == TypeCON {
		resp.Type = TypeACK
		resp.MsgID = req.MsgID
	} else {
		resp.Type = TypeNON
		resp.MsgID = c.NextMessageID()
	}
	if tok := req.Token(); len(tok) > 0 {
		resp.Options = append(resp.Options, Option{ID: OptionToken, Value: tok})
	}
	return resp
}

// finishRequest sends resp, records the alive-cache reply type so a
// retransmitted request gets the same answer replayed rather than the
// handler re-run, and flips alive to RST if resp itself is a fresh
// (request-code-less) reset — which does not happen on this path but is
// handled for symmetry with replayDuplicate.
func (c *Context) finishRequest(e *recvEntry, alive *aliveEntry, resp *PDU) {
	if e.pdu.Type == TypeCON && resp.Type == TypeCON {
		log.Warnf("[coap] CON response to CON request from %s msgid=%d", e.src, e.pdu.MsgID)
	}
	if err := c.sendPDU(resp, e.src, nil); err != nil {
		log.Warnf("[coap] send response to %s failed: %v", e.src, err)
		return
	}
	if resp.Type == TypeACK {
		alive.typ = replyACK
	} else if resp.Type == TypeRST {
		alive.typ = replyRST
	}
}

// replayDuplicate answers a repeated request per the cached reply type:
// an empty ACK or RST carrying the duplicate's own message id, matching
// what a peer retransmitting because it never saw the first answer
// expects. An "undefined" record (the original request was NON, so
// nothing was sent back) means the duplicate is dropped silently.
func (c *Context) replayDuplicate(e *recvEntry, alive *aliveEntry) {
	switch alive.typ {
	case replyACK:
		ack := &PDU{Type: TypeACK, Code: CodeEmpty, MsgID: e.pdu.MsgID}
		c.sendPDU(ack, e.src, nil)
	case replyRST:
		rst := &PDU{Type: TypeRST, Code: CodeEmpty, MsgID: e.pdu.MsgID}
		c.sendPDU(rst, e.src, nil)
	default:
		log.Debugf("[coap] dropping duplicate NON request from %s msgid=%d", e.src, e.pdu.MsgID)
	}
}
