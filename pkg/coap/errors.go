package coap

import "errors"

var (
	// decode errors
	ErrHeaderTooShort  = errors.New("coap: datagram shorter than header")
	ErrBadVersion      = errors.New("coap: unsupported version")
	ErrOptionOverrun   = errors.New("coap: option walk reached past buffer")
	ErrOptionMalformed = errors.New("coap: malformed option jump byte")
	ErrOptionTooLong   = errors.New("coap: option length exceeds cap")

	// engine errors
	ErrNoTransactionID  = errors.New("coap: allocation failure, no transaction id assigned")
	ErrUnknownResource  = errors.New("coap: no resource registered for key")
	ErrNoHandler        = errors.New("coap: resource has no handler for method")
	ErrRegistrationGone = errors.New("coap: registration already invalid")
	ErrTokenTooLong     = errors.New("coap: token exceeds 8 bytes")
)
