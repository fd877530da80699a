package coap

import (
	"github.com/fxamacker/cbor/v2"
)

// SenderReport is the RTP-like periodic summary embedded in some
// notifications: an NTP/RTP timestamp pair plus octet/packet counters,
// alongside the notification sequence number net.c calls notcnt.
type SenderReport struct {
	NotCnt      uint16 `cbor:"notcnt"`
	NTPSeconds  uint32 `cbor:"ntp_sec"`
	NTPFraction uint32 `cbor:"ntp_frac"`
	RTPStamp    uint32 `cbor:"rtp"`
	OctetCount  uint32 `cbor:"octets"`
	PacketCount uint32 `cbor:"packets"`
}

// Encode serializes the report as CBOR, the compact binary form
// matrix-org/lb uses for CoAP payloads (cbor.go in that repo); a
// notification handler appends the result as its response Data.
func (s SenderReport) Encode() ([]byte, error) {
	return cbor.Marshal(s)
}

// DecodeSenderReport parses a CBOR-encoded sender report, as a client
// consuming notifications would.
func DecodeSenderReport(b []byte) (SenderReport, error) {
	var s SenderReport
	err := cbor.Unmarshal(b, &s)
	return s, err
}

// Advance bumps the sequence number and packet/octet counters for one more
// notification of payloadLen bytes, the way a streaming layer would before
// handing the report to the notifier.
func (s *SenderReport) Advance(payloadLen int) {
	s.NotCnt++
	s.PacketCount++
	s.OctetCount += uint32(payloadLen)
}
