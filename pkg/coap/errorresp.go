package coap

// BuildErrorResponse constructs a response PDU for a request that could
// not be routed or handled: framed as ACK if the request was CON (the
// response piggybacks on the acknowledgment), or NON if the request was
// NON (the error stands alone; a CON request error is never itself sent
// as a fresh CON, since that would demand its own acknowledgment for a
// message that is already reporting a problem). The Token option is
// copied across if present; code carries the diagnostic (e.g. BadOption,
// NotFound, MethodNotAllowed); reason, if non-empty, is attached as a
// plain-text payload.
func BuildErrorResponse(req *PDU, code Code, reason string) *PDU {
	respType := TypeNON
	if req.Type == TypeCON {
		respType = TypeACK
	}

	resp := &PDU{
		Type:  respType,
		Code:  code,
		MsgID: req.MsgID,
	}
	if tok := req.Token(); len(tok) > 0 {
		resp.Options = append(resp.Options, Option{ID: OptionToken, Value: tok})
	}
	if reason != "" {
		resp.Data = []byte(reason)
	}
	return resp
}

// EchoCriticalOptions copies every critical option from req into resp that
// the Context does not recognize and which resp does not already carry,
// per the rule that a 4.02 Bad Option response should let the client see
// which of its critical options tripped the failure. Options the Context
// does recognize are never echoed: the response is reporting the specific
// unrecognized option that caused the rejection, not relaying the whole
// request back.
func EchoCriticalOptions(ctx *Context, req *PDU, resp *PDU) {
	have := make(map[OptionID]bool, len(resp.Options))
	for _, o := range resp.Options {
		have[o.ID] = true
	}
	for _, o := range req.Options {
		if have[o.ID] {
			continue
		}
		if !ctx.IsCriticalUnknown(o) {
			continue
		}
		resp.Options = append(resp.Options, o)
	}
}
