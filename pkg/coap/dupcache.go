package coap

import "net"

// replyType records what the engine sent back for a request already
// bound to a message id, so a duplicate can be replayed identically.
// "undefined" means the original arrived as NON: duplicates of it are
// dropped silently.
type replyType uint8

const (
	replyUndefined replyType = iota
	replyACK
	replyRST
)

// aliveEntry is one message-id binding kept alive for EXCHANGE_LIFETIME.
type aliveEntry struct {
	peer   *net.UDPAddr
	msgID  uint16
	typ    replyType
	expiry Tick

	next *aliveEntry
}

// dupCache is the per-context alive-message-id list. It is walked
// linearly; the implementation favors simplicity over asymptotic cost
// since the live set is bounded by traffic within one EXCHANGE_LIFETIME
// window.
type dupCache struct {
	head *aliveEntry
}

func newDupCache() *dupCache { return &dupCache{} }

// Evict drops every entry whose expiry has passed.
func (c *dupCache) Evict(now Tick) {
	var prev *aliveEntry
	for cur := c.head; cur != nil; {
		if cur.expiry < now {
			nxt := cur.next
			if prev == nil {
				c.head = nxt
			} else {
				prev.next = nxt
			}
			cur = nxt
			continue
		}
		prev = cur
		cur = cur.next
	}
}

// Find returns the entry matching (peer, msgID), or nil.
func (c *dupCache) Find(peer *net.UDPAddr, msgID uint16) *aliveEntry {
	for cur := c.head; cur != nil; cur = cur.next {
		if cur.msgID == msgID && AddrEqual(cur.peer, peer) {
			return cur
		}
	}
	return nil
}

// Add prepends a new binding with type "undefined"; the dispatcher updates
// it to ACK/RST once the local response is emitted.
func (c *dupCache) Add(peer *net.UDPAddr, msgID uint16, now Tick, lifetime Tick) *aliveEntry {
	e := &aliveEntry{peer: peer, msgID: msgID, typ: replyUndefined, expiry: now + lifetime}
	e.next = c.head
	c.head = e
	return e
}
