package coap

import "net"

// HandlerFunc answers one request. req is the parsed incoming PDU, remote
// its source, token its Token option value, and resp a pre-allocated
// response PDU already framed as ACK with the request's message id (CON
// request) or NON with a fresh message id (NON request), with the Token
// copied in; the handler fills in Code/Options/Data.
type HandlerFunc func(ctx *Context, req *PDU, remote *net.UDPAddr, token []byte, resp *PDU)

// UnregisterHook tears down the streaming layer's state for a registration
// whose notification stream has failed.
type UnregisterHook func(ctx *Context, reg *Registration)

// ResourceKeySize is the width of a hashed resource key.
const ResourceKeySize = 4

// ResourceKey identifies a resource the way the external resource-registry
// collaborator does: a hash of the request URI. The engine computes it
// itself from the joined Uri-Path options (see ResourceKeyForPath).
type ResourceKey [ResourceKeySize]byte

// WellKnownCoreKey is the reserved zero key for .well-known/core,
// matching net.c's COAP_DEFAULT_WKC_HASHKEY.
var WellKnownCoreKey ResourceKey

// Resource is the dispatcher's view of one registered resource: a method
// table indexed 0..3 (GET/POST/PUT/DELETE, i.e. code-1), an unregister
// hook, and the subscriber list the Observe registry hangs off it.
type Resource struct {
	Key          ResourceKey
	Path         string // e.g. "/sensors/temp", used only for link-format
	LinkAttrs    string // e.g. `rt="temperature";if="sensor"`
	Handlers     [4]HandlerFunc
	OnUnregister UnregisterHook

	subscribers *Registration
}

// HandlerFor returns the method table entry for code (1-indexed GET..DELETE).
func (r *Resource) HandlerFor(code Code) (HandlerFunc, bool) {
	if code < MethodGET || code > MethodDELETE {
		return nil, false
	}
	h := r.Handlers[code-1]
	return h, h != nil
}

// ResourceTable is the external resource-registry collaborator: a keyed
// map exposing lookup and iteration. The dispatcher never mutates it
// beyond what Resource itself exposes (the subscriber list).
type ResourceTable interface {
	Lookup(key ResourceKey) (*Resource, bool)
	All() []*Resource
}

// MapResourceTable is the straightforward in-memory ResourceTable
// implementation used by Context when the caller does not supply its own.
type MapResourceTable struct {
	m map[ResourceKey]*Resource
}

func NewMapResourceTable() *MapResourceTable {
	return &MapResourceTable{m: make(map[ResourceKey]*Resource)}
}

func (t *MapResourceTable) Register(r *Resource) { t.m[r.Key] = r }

func (t *MapResourceTable) Lookup(key ResourceKey) (*Resource, bool) {
	r, ok := t.m[key]
	return r, ok
}

func (t *MapResourceTable) All() []*Resource {
	out := make([]*Resource, 0, len(t.m))
	for _, r := range t.m {
		out = append(out, r)
	}
	return out
}
