// Package runtime declares the consumed simulation-kernel contract (§6):
// the surrounding framework that delivers messages and fires timers. It is
// an external collaborator per §1's scope note; every algorithm package
// depends only on the interfaces here, never on a concrete kernel. This
// package additionally ships simkernel, an in-memory deterministic
// implementation used by the seed tests and by cmd/distcore-sim, in the
// same spirit as the teacher's TestKit()/makeLocal() in-process stand-in
// for a real coordinator/participant RPC mesh.
package runtime

import "github.com/oltpfc/distcore/messaging"

// Kernel is the subset of §6's consumed interface an algorithm handler
// calls while reacting to one event: send a message, arm a future
// self-delivery, or (during initialization only) push directly into a
// node's inbox without going through the simulated network.
type Kernel interface {
	// Send enqueues env for delivery to dst, stamping env.Source = src on
	// delivery (§3: "The runtime stamps source on delivery").
	Send(src messaging.NodeRef, dst messaging.NodeRef, env messaging.Envelope)
	// SetAlarm schedules env for self-delivery to dst after ticks simulation
	// steps (§5: "Alarm delay in all algorithms is 20 simulation ticks").
	SetAlarm(dst messaging.NodeRef, ticks int, env messaging.Envelope)
	// PushToInbox delivers env to dst immediately, bypassing the simulated
	// network hop; used only for the meta_header=INI self-message that
	// fires the spontaneous-start handler (§6).
	PushToInbox(dst messaging.NodeRef, env messaging.Envelope)
}

// Network is the consumed topology/registry interface (§6: network.nodes(),
// node.neighbors(), apply_restrictions()).
type Network interface {
	Nodes() []messaging.NodeRef
	Neighbors(self messaging.NodeRef) []messaging.NodeRef
	ApplyRestrictions() error
}

// EventHandler is the single entry point an algorithm driver registers with
// a Kernel: given the destination node and the delivered envelope, look up
// that node's state and run the (status, header) dispatch table (§9
// "Message dispatch table").
type EventHandler func(dst messaging.NodeRef, env messaging.Envelope)
