// Package messaging defines the envelope format and node-reference types
// shared by every algorithm in this module (§3 "Message", §6).
package messaging

import "github.com/goccy/go-json"

// NodeRef is the runtime-visible handle for a node: an opaque per-link
// index (called source.id in §3), distinct from the node's application
// level unique_value.
type NodeRef int

// MetaHeader marks a message as a runtime-internal self-delivery, used to
// fire the spontaneous-start handler (§6: push_to_inbox with meta_header
// "INI").
type MetaHeader string

// IniMetaHeader is the only meta-header value defined by §3.
const IniMetaHeader MetaHeader = "INI"

// Envelope is the wire format every algorithm exchanges. Data is algorithm
// specific and is type-asserted by the receiving handler; this mirrors the
// teacher's CoordinatorGossip/Response4Coordinator split, collapsed into one
// generic envelope since every algorithm here needs only one message shape
// in flight at a time.
type Envelope struct {
	Header      string      `json:"header"`
	Data        interface{} `json:"data"`
	Source      NodeRef     `json:"source"`
	Destination []NodeRef   `json:"destination"`
	MetaHeader  MetaHeader  `json:"meta_header,omitempty"`
}

// NewEnvelope builds a point-to-point envelope. Source is left zero: the
// kernel stamps it on delivery (§3 "The runtime stamps source on
// delivery"), via Kernel.Send's explicit src parameter.
func NewEnvelope(header string, data interface{}, dst NodeRef) Envelope {
	return Envelope{Header: header, Data: data, Destination: []NodeRef{dst}}
}

// NewBroadcast builds a multi-destination envelope.
func NewBroadcast(header string, data interface{}, dst []NodeRef) Envelope {
	return Envelope{Header: header, Data: data, Destination: dst}
}

// Marshal and Unmarshal round-trip an envelope through goccy/go-json, used
// by runtime/simkernel's debug trace of every scheduled envelope (in the
// style of the teacher's sendMsg, which always marshals the PaGossip
// payload before handing it to the transport). The envelope that is
// delivered is the original, not the decoded copy.
func Marshal(e Envelope) []byte {
	b, err := json.Marshal(e)
	if err != nil {
		panic(err.Error())
	}
	return b
}

func Unmarshal(b []byte) Envelope {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		panic(err.Error())
	}
	return e
}
