package coap

import (
	"encoding/binary"
	"sort"
)

// Type is a CoAP message type: confirmable, non-confirmable, ack, or reset.
type Type uint8

const (
	TypeCON Type = 0
	TypeNON Type = 1
	TypeACK Type = 2
	TypeRST Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeCON:
		return "CON"
	case TypeNON:
		return "NON"
	case TypeACK:
		return "ACK"
	case TypeRST:
		return "RST"
	default:
		return "???"
	}
}

// Code is the 8-bit method/response code. 0 is empty, 1-31 are request
// methods, 64-191 are responses.
type Code uint8

const (
	CodeEmpty Code = 0

	MethodGET    Code = 1
	MethodPOST   Code = 2
	MethodPUT    Code = 3
	MethodDELETE Code = 4

	Content       Code = 2<<5 | 5 // 2.05
	BadOption     Code = 4<<5 | 2 // 4.02
	NotFound      Code = 4<<5 | 4 // 4.04
	MethodNotAllowed Code = 4<<5 | 5 // 4.05
)

// IsRequest reports whether code falls in the 1..31 request range.
func (c Code) IsRequest() bool { return c >= 1 && c <= 31 }

// IsResponse reports whether code falls in the 64..191 response range.
func (c Code) IsResponse() bool { return c >= 64 && c <= 191 }

func (c Code) String() string {
	return string(rune('0'+int(c)/32)) + "." + pad2(int(c)%32)
}

func pad2(n int) string {
	if n < 10 {
		return "0" + string(rune('0'+n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}

const (
	coapVersion = 1

	// optLongSentinel is the header option-count value (the 4-bit OC field)
	// that means "more than 14 options follow; read until the 0xF0
	// terminator instead of decrementing a count".
	optLongSentinel = 0x0F

	optEndMarker = 0xF0
	optJumpMin   = 0xF1
	optJumpMax   = 0xF3

	optExtLenCap = 780

	maxTokenLen = 8
)

// OptionID identifies a CoAP option by its registered number. Odd numbers
// are critical per RFC 7252.
type OptionID uint16

func (o OptionID) IsCritical() bool { return o%2 == 1 }

// Built-in option numbers for this endpoint. A critical option is one
// with an odd number; every option registered as critical below is odd
// by construction. Observe is the one elective (even) option in regular
// use, matching its elective status in the real registry.
const (
	OptionContentType OptionID = 1
	OptionURIHost     OptionID = 3
	OptionObserve     OptionID = 6
	OptionURIPort     OptionID = 7
	OptionURIPath     OptionID = 11
	OptionURIQuery    OptionID = 15
	OptionToken       OptionID = 19
	OptionProxyURI    OptionID = 21
)

// Option is a single parsed option: a type code and its opaque value.
type Option struct {
	ID    OptionID
	Value []byte
}

// PDU is a parsed CoAP message: header, options, and trailing data region.
type PDU struct {
	Type    Type
	Code    Code
	MsgID   uint16
	Options []Option
	Data    []byte

	// raw holds the encoded bytes from the last Decode or Encode, so the
	// retransmission scheduler can resend byte-identical wire content
	// without re-encoding.
	raw []byte
}

// Token returns the value of the Token option, or nil if absent.
func (p *PDU) Token() []byte {
	for _, o := range p.Options {
		if o.ID == OptionToken {
			return o.Value
		}
	}
	return nil
}

// Option returns the first option with the given id, or ok=false.
func (p *PDU) Option(id OptionID) (Option, bool) {
	for _, o := range p.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Bytes returns the wire encoding last produced by Decode or Encode.
func (p *PDU) Bytes() []byte { return p.raw }

// Decode parses a single CoAP datagram per the draft-ietf-core-coap-09
// framing described in: a four-byte header (2-bit version, 2-bit
// type, 4-bit option count), followed by options (delta/length nibble,
// extended length via 0xFF continuation bytes, jump codes 0xF1-0xF3, and
// end-of-options marker 0xF0 legal only for a long option list), followed
// by the data region.
func Decode(buf []byte) (*PDU, error) {
	if len(buf) < 4 {
		return nil, ErrHeaderTooShort
	}
	ver := buf[0] >> 6
	if ver != coapVersion {
		return nil, ErrBadVersion
	}
	pdu := &PDU{
		Type:  Type((buf[0] >> 4) & 0x03),
		Code:  Code(buf[1]),
		MsgID: binary.BigEndian.Uint16(buf[2:4]),
	}
	optCount := buf[0] & 0x0F

	pos := 4
	prevNum := OptionID(0)
	remaining := optCount
	long := optCount == optLongSentinel

	for {
		if !long && remaining == 0 {
			break
		}
		if pos >= len(buf) {
			if long {
				return nil, ErrOptionOverrun
			}
			return nil, ErrOptionOverrun
		}
		b := buf[pos]

		if b&0xF0 == 0xF0 {
			switch {
			case b == optEndMarker:
				if !long {
					return nil, ErrOptionMalformed
				}
				pos++
				goto optionsDone
			case b >= optJumpMin && b <= optJumpMax:
				skip := int(b & 0x03)
				if pos+skip >= len(buf) {
					return nil, ErrOptionMalformed
				}
				pos += skip
				continue
			default:
				return nil, ErrOptionMalformed
			}
		}

		{
			deltaNib := OptionID(b >> 4)
			lenNib := int(b & 0x0F)
			pos++

			length := lenNib
			if lenNib == 15 {
				length = 0
				for {
					if pos >= len(buf) {
						return nil, ErrOptionOverrun
					}
					c := buf[pos]
					pos++
					if c == 0xFF {
						length += 255
						if length > optExtLenCap {
							return nil, ErrOptionTooLong
						}
						continue
					}
					length += int(c)
					break
				}
				if length > optExtLenCap {
					return nil, ErrOptionTooLong
				}
			}

			if pos+length > len(buf) {
				return nil, ErrOptionOverrun
			}
			num := prevNum + deltaNib
			prevNum = num
			val := append([]byte(nil), buf[pos:pos+length]...)
			pdu.Options = append(pdu.Options, Option{ID: num, Value: val})
			pos += length
		}

		if !long {
			remaining--
		}
	}
optionsDone:

	if pos < 0 || pos > len(buf) {
		return nil, ErrOptionOverrun
	}
	pdu.Data = buf[pos:]
	pdu.raw = append([]byte(nil), buf...)
	return pdu, nil
}

// Encode serializes the PDU back to wire bytes, caching the result on the
// PDU itself for the retransmission scheduler to resend without re-encoding.
func (p *PDU) Encode() ([]byte, error) {
	long := len(p.Options) >= optLongSentinel
	buf := make([]byte, 4, 32)
	oc := uint8(len(p.Options))
	if long {
		oc = optLongSentinel
	}
	buf[0] = (coapVersion << 6) | (uint8(p.Type) << 4) | oc
	buf[1] = byte(p.Code)
	binary.BigEndian.PutUint16(buf[2:4], p.MsgID)

	// Options must be encoded in ascending id order for the delta
	// scheme to work; callers build them by appending in whatever order
	// is convenient, so sort a copy here rather than pushing the
	// ordering requirement onto every call site.
	sorted := append([]Option(nil), p.Options...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	prevNum := OptionID(0)
	for _, o := range sorted {
		var err error
		buf, err = appendOption(buf, prevNum, o)
		if err != nil {
			return nil, err
		}
		prevNum = o.ID
	}
	if long {
		buf = append(buf, optEndMarker)
	}
	if len(p.Data) > 0 {
		buf = append(buf, p.Data...)
	}
	p.raw = buf
	return buf, nil
}

// appendOption encodes one option's delta/length header, extended length
// bytes, and value. Deltas above 14 have no representation in this codec
// (draft-09 would spend a fencepost option on them), so an option numbered
// more than 14 above its predecessor is reported as an error rather than
// silently mis-encoded. This includes any such option EchoCriticalOptions
// copies into a 4.02 response, which then fails to encode.
func appendOption(buf []byte, prevNum OptionID, o Option) ([]byte, error) {
	delta := o.ID - prevNum
	if delta > 14 {
		return nil, ErrOptionMalformed
	}
	length := len(o.Value)

	var lenNib uint8
	var lenExt []byte
	if length < 15 {
		lenNib = uint8(length)
	} else {
		lenNib = 15
		rem := length
		for rem >= 255 {
			lenExt = append(lenExt, 0xFF)
			rem -= 255
		}
		lenExt = append(lenExt, byte(rem))
	}

	buf = append(buf, (uint8(delta)<<4)|lenNib)
	if len(lenExt) > 0 {
		buf = append(buf, lenExt...)
	}
	return append(buf, o.Value...), nil
}
