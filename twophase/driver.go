package twophase

import (
	"fmt"

	"github.com/oltpfc/distcore/configs"
	"github.com/oltpfc/distcore/messaging"
	"github.com/oltpfc/distcore/runtime"
)

// Driver wires a set of 2PC Nodes to a runtime.Kernel/Network pair: it owns
// the per-node state (exclusively, per §3's ownership invariant) and is the
// runtime.EventHandler the kernel calls on every delivery.
type Driver struct {
	nodes       map[messaging.NodeRef]*Node
	coordinator messaging.NodeRef
	kernel      runtime.Kernel
}

// NewDriver allocates one 2PC node per network node, designating
// coordinatorRef as COORDINATOR and every other node as SLEEP. ids supplies
// each node's unique_value (§3 Invariant 1: globally distinct, immutable);
// if a ref is missing from ids it defaults to a stable "node<ref>" label.
func NewDriver(k runtime.Kernel, net runtime.Network, ids map[messaging.NodeRef]string, coordinatorRef messaging.NodeRef) *Driver {
	d := &Driver{nodes: make(map[messaging.NodeRef]*Node), coordinator: coordinatorRef, kernel: k}
	for _, ref := range net.Nodes() {
		uid := ids[ref]
		if uid == "" {
			uid = fmt.Sprintf("node%d", ref)
		}
		refs := net.Neighbors(ref)
		if ref == coordinatorRef {
			d.nodes[ref] = NewCoordinator(uid, refs)
		} else {
			d.nodes[ref] = NewParticipant(uid, refs)
		}
	}
	return d
}

// Start delivers the spontaneous meta_header=INI message to the
// coordinator, firing coordinatorStart.
func (d *Driver) Start() {
	d.kernel.PushToInbox(d.coordinator, messaging.Envelope{
		Header:     HeaderStart,
		MetaHeader: messaging.IniMetaHeader,
	})
}

// Handle implements runtime.EventHandler.
func (d *Driver) Handle(dst messaging.NodeRef, env messaging.Envelope) {
	self, ok := d.nodes[dst]
	configs.Assert(ok, "2pc: unknown node ref %v", dst)
	dispatch(self, dst, d.coordinator, d.kernel, env)
}

// Node returns the current state of a node, for test assertions.
func (d *Driver) Node(ref messaging.NodeRef) *Node { return d.nodes[ref] }

// AllDone reports whether every node has reached the terminal DONE status
// (§6: terminal set {DONE}).
func (d *Driver) AllDone() bool {
	for _, n := range d.nodes {
		if n.Status != StatusDone {
			return false
		}
	}
	return true
}

// CoordinatorDecision returns the coordinator's final decision ("Commit" or
// "Abort"), or "" if it has not decided yet.
func (d *Driver) CoordinatorDecision() string {
	return d.nodes[d.coordinator].Decision
}
