// Package coap implements the core message engine of a CoAP endpoint:
// PDU parsing/serialization, the retransmission scheduler for confirmable
// messages, duplicate suppression, the CON/NON/ACK/RST dispatcher, and the
// reference-counted Observe registration registry.
//
// The transport socket, option-encoding helpers for resource URIs, the
// well-known/core link-format printer (stubbed minimally here), the
// resource registry storage, and the platform clock are treated as given
// collaborators; DTLS, block-wise transfer, multicast group management,
// proxying and the higher-level streaming layer are out of scope.
package coap
