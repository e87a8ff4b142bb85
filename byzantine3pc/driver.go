package byzantine3pc

import (
	"fmt"

	"github.com/oltpfc/distcore/configs"
	"github.com/oltpfc/distcore/messaging"
	"github.com/oltpfc/distcore/runtime"
)

// Driver wires a set of byzantine3pc Nodes, with a chosen set of FAULTY
// refs, to a runtime.Kernel/Network pair.
type Driver struct {
	nodes         map[messaging.NodeRef]*Node
	coordinator   messaging.NodeRef
	coordinatorID string
	kernel        runtime.Kernel
}

func NewDriver(k runtime.Kernel, net runtime.Network, ids map[messaging.NodeRef]string, coordinatorRef messaging.NodeRef, faulty map[messaging.NodeRef]bool) *Driver {
	allRefs := net.Nodes()
	n := len(allRefs)
	m := 0
	for _, f := range faulty {
		if f {
			m++
		}
	}
	d := &Driver{
		nodes:         make(map[messaging.NodeRef]*Node, n),
		coordinator:   coordinatorRef,
		coordinatorID: ids[coordinatorRef],
		kernel:        k,
	}
	for _, ref := range allRefs {
		uid := ids[ref]
		if uid == "" {
			uid = fmt.Sprintf("node%d", ref)
		}
		refs := net.Neighbors(ref)
		switch {
		case ref == coordinatorRef:
			d.nodes[ref] = NewCoordinator(uid, refs, m, n)
		case faulty[ref]:
			d.nodes[ref] = NewFaulty(uid, refs, m, n)
		default:
			d.nodes[ref] = NewParticipant(uid, refs, m, n)
		}
	}
	if d.coordinatorID == "" {
		d.coordinatorID = fmt.Sprintf("node%d", coordinatorRef)
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
	configs.Assert(ok, "byzantine3pc: unknown node ref %v", dst)
	dispatch(self, dst, d.coordinatorID, d.kernel, env)
}

func (d *Driver) Node(ref messaging.NodeRef) *Node { return d.nodes[ref] }

// AllHonestDone reports whether every non-FAULTY node reached DONE; a
// FAULTY node's own status is adversarial bookkeeping, not a safety
// witness, so it is excluded from the completion check.
func (d *Driver) AllHonestDone() bool {
	for _, n := range d.nodes {
		if n.Status == StatusFaulty {
			continue
		}
		if n.Status != StatusDone {
			return false
		}
	}
	return true
}

func (d *Driver) CoordinatorDecision() string { return d.nodes[d.coordinator].Decision }

func (d *Driver) ParticipantCommitted(ref messaging.NodeRef) bool {
	coord := d.nodes[d.coordinator]
	return coord.NodeStatus[ref] == VoteDone
}
