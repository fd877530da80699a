package coap

import "net"

// COAP_OBS_MAX_FAIL / COAP_OBS_MAX_NON bound the consecutive-failure and
// consecutive-non-confirmable counters on a Registration.
const (
	ObsMaxFail = 3
	ObsMaxNon  = 15
)

// Registration is a persistent Observe subscription. It is shared between
// the owning Resource's subscriber list and any send-queue entry
// currently carrying a notification built from it; RefCount disciplines
// that multi-owner lifetime.
type Registration struct {
	Peer  *net.UDPAddr
	Token []byte
	ResKey ResourceKey

	RefCount int
	Invalid  bool

	Report SenderReport

	SendNon bool
	NonCnt  int
	FailCnt int

	next *Registration
}

// AddRegistration looks up a subscriber by peer address on res. A match
// overwrites its token (the *found* record's token is replaced, not
// self-assigned) and is
// returned checked out once more; a miss allocates a fresh record, prepends
// it to res's subscriber list, and checks it out once before returning so
// the caller — typically a request handler handing the pointer to the
// streaming layer — always receives RefCount >= 1.
func AddRegistration(ctx *Context, res *Resource, peer *net.UDPAddr, token []byte) *Registration {
	if len(token) > maxTokenLen {
		token = token[:maxTokenLen]
	}
	for cur := res.subscribers; cur != nil; cur = cur.next {
		if AddrEqual(cur.Peer, peer) {
			cur.Token = append(cur.Token[:0], token...)
			cur.Checkout()
			return cur
		}
	}

	reg := &Registration{
		Peer:   peer,
		Token:  append([]byte(nil), token...),
		ResKey: res.Key,
		Report: SenderReport{NotCnt: uint16(ctx.rng.Intn(1 << 16))},
	}
	reg.next = res.subscribers
	res.subscribers = reg
	reg.Checkout()
	return reg
}

// Checkout increments the reference count. Never blocks.
func (r *Registration) Checkout() { r.RefCount++ }

// Release decrements the reference count; at zero it scrubs the record
// from its owning resource's subscriber list (found by a fresh scan from
// the resource's list head) and it is no longer reachable. This is the
// only free point: detachment is a side effect of the balancing release,
// not of handler-initiated deletion.
func (r *Registration) Release(ctx *Context) {
	r.RefCount--
	if r.RefCount > 0 {
		return
	}
	res, ok := ctx.Resources.Lookup(r.ResKey)
	if !ok {
		return
	}
	var prev *Registration
	for cur := res.subscribers; cur != nil; cur = cur.next {
		if cur == r {
			if prev == nil {
				res.subscribers = cur.next
			} else {
				prev.next = cur.next
			}
			cur.next = nil
			return
		}
		prev = cur
	}
}

// AckNotification clears FailCnt for a notification's ACK, subject
// to the late-ACK guard: an ACK that arrives after the registration was
// already marked invalid is ignored here (the caller still releases the
// send-queue's reference).
func (r *Registration) AckNotification() {
	if r.Invalid {
		return
	}
	if r.FailCnt <= ObsMaxFail {
		r.FailCnt = 0
	}
}

// FailedNotify is invoked when a confirmable notification exhausts
// retransmits without an ACK, or a RST arrives for an outstanding
// notification. It is idempotent: once Invalid is true it never
// re-invokes OnUnregister, no matter how many more RSTs or timeouts
// reference the same registration.
func FailedNotify(ctx *Context, reg *Registration) {
	res, ok := ctx.Resources.Lookup(reg.ResKey)
	if !ok {
		return
	}
	if !reg.Invalid {
		if res.OnUnregister != nil {
			res.OnUnregister(ctx, reg)
		}
		reg.Invalid = true
	}
	reg.Release(ctx)
}
