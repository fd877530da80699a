package coap

import (
	"net"
	"strings"
)

// mediaTypeLinkFormat is the application/link-format Content-Format
// registry value (RFC 6690), matching net.c's
// COAP_MEDIATYPE_APPLICATION_LINK_FORMAT.
const mediaTypeLinkFormat = 40

// WellKnownCoreHandler answers GET /.well-known/core by listing every
// registered resource in link-format (RFC 6690): "<path>;attrs" entries
// comma-separated. Resources supply their own LinkAttrs; this handler
// only walks the table and formats it, since no external link-format
// printer is wired into this engine.
func WellKnownCoreHandler(ctx *Context, req *PDU, remote *net.UDPAddr, token []byte, resp *PDU) {
	var b strings.Builder
	for _, r := range ctx.Resources.All() {
		if r.Key == WellKnownCoreKey {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('<')
		b.WriteString(r.Path)
		b.WriteByte('>')
		if r.LinkAttrs != "" {
			b.WriteByte(';')
			b.WriteString(r.LinkAttrs)
		}
	}
	resp.Code = Content
	resp.Options = append(resp.Options, Option{ID: OptionContentType, Value: []byte{mediaTypeLinkFormat}})
	resp.Data = []byte(b.String())
}

// RegisterWellKnownCore installs the .well-known/core resource on table,
// backed by WellKnownCoreHandler.
func RegisterWellKnownCore(table *MapResourceTable) {
	table.Register(&Resource{
		Key:      WellKnownCoreKey,
		Path:     "/.well-known/core",
		Handlers: [4]HandlerFunc{int(MethodGET) - 1: WellKnownCoreHandler},
	})
}
