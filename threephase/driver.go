package threephase

import (
	"fmt"

	"github.com/oltpfc/distcore/configs"
	"github.com/oltpfc/distcore/messaging"
	"github.com/oltpfc/distcore/runtime"
)

// Driver wires a set of 3PC Nodes to a runtime.Kernel/Network pair.
type Driver struct {
	nodes       map[messaging.NodeRef]*Node
	coordinator messaging.NodeRef
	kernel      runtime.Kernel
}

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

func (d *Driver) Start() {
	d.kernel.PushToInbox(d.coordinator, messaging.Envelope{
		Header:     HeaderStart,
		MetaHeader: messaging.IniMetaHeader,
	})
}

func (d *Driver) Handle(dst messaging.NodeRef, env messaging.Envelope) {
	self, ok := d.nodes[dst]
	configs.Assert(ok, "3pc: unknown node ref %v", dst)
	dispatch(self, dst, d.kernel, env)
}

func (d *Driver) Node(ref messaging.NodeRef) *Node { return d.nodes[ref] }

func (d *Driver) AllDone() bool {
	for _, n := range d.nodes {
		if n.Status != StatusDone {
			return false
		}
	}
	return true
}

func (d *Driver) CoordinatorDecision() string { return d.nodes[d.coordinator].Decision }

// ParticipantCommitted reports whether the non-coordinator node ref reached
// DONE via Commit — used by the 3PC safety test (§8: "if the coordinator
// reaches DONE via Commit, no participant reached DONE via Aborted, and
// vice versa"). A participant replies Done only when it reaches DONE from
// StatusWaiting via HeaderCommit, the only commit path, so this checks
// whether the coordinator recorded a Done for that neighbor.
func (d *Driver) ParticipantCommitted(ref messaging.NodeRef) bool {
	coord := d.nodes[d.coordinator]
	return coord.NodeStatus[ref] == VoteDone
}
