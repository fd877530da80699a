package coap

import (
	"encoding/binary"
	"net"
)

// TransactionID is the local 32-bit key used to match ACK/RST against an
// outstanding confirmable send, and as the send-queue lookup key.
type TransactionID uint32

// InvalidTransactionID is the sentinel returned when a PDU could not be
// queued.
const InvalidTransactionID TransactionID = 0xFFFFFFFF

// TransactionHash derives a 32-bit transaction id from a peer address and
// a 16-bit message id. For IPv4 the whole address structure contributes;
// for IPv6 only the 16-byte address and port do (flowinfo and scope are
// excluded, since net.UDPAddr doesn't carry them). A collision only
// costs the matching dispatcher a linear walk of the send queue, so the
// hash need not be cryptographic.
func TransactionHash(peer *net.UDPAddr, msgID uint16) TransactionID {
	var buf []byte
	if ip4 := peer.IP.To4(); ip4 != nil {
		buf = make([]byte, 0, 4+2)
		buf = append(buf, ip4...)
		buf = appendUint16(buf, uint16(peer.Port))
	} else {
		ip16 := peer.IP.To16()
		buf = make([]byte, 0, 16+2)
		buf = append(buf, ip16...)
		buf = appendUint16(buf, uint16(peer.Port))
	}
	buf = appendUint16(buf, msgID)

	h := fnv4(buf)
	return TransactionID((uint32(h[0])<<8 | uint32(h[1])) ^ (uint32(h[2])<<8 | uint32(h[3])))
}

func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

// fnv4 folds an arbitrary-length input into a 4-byte digest with the FNV-1a
// recurrence, truncated to 32 bits and split back into bytes. Collision
// resistance is irrelevant here; only distribution across the small live
// send-queue matters.
func fnv4(data []byte) [4]byte {
	const (
		offset = 2166136261
		prime  = 16777619
	)
	h := uint32(offset)
	for _, b := range data {
		h ^= uint32(b)
		h *= prime
	}
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], h)
	return out
}

// AddrEqual reports whether two UDP addresses refer to the same peer, by
// IP and port only.
func AddrEqual(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
