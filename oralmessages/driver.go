package oralmessages

import (
	"fmt"

	"github.com/oltpfc/distcore/configs"
	"github.com/oltpfc/distcore/messaging"
	"github.com/oltpfc/distcore/runtime"
)

// Driver wires a set of Oral-Messages Nodes -- one COMMANDER, a chosen set
// of TRAITOR refs, the rest LIEUTENANT -- to a runtime.Kernel/Network
// pair.
type Driver struct {
	nodes     map[messaging.NodeRef]*Node
	commander messaging.NodeRef
	kernel    runtime.Kernel
}

func NewDriver(k runtime.Kernel, net runtime.Network, ids map[messaging.NodeRef]string, commanderRef messaging.NodeRef, traitors map[messaging.NodeRef]bool, m, decision int) *Driver {
	d := &Driver{nodes: make(map[messaging.NodeRef]*Node), commander: commanderRef, kernel: k}
	for _, ref := range net.Nodes() {
		uid := ids[ref]
		if uid == "" {
			uid = fmt.Sprintf("node%d", ref)
		}
		refs := net.Neighbors(ref)
		switch {
		case ref == commanderRef:
			d.nodes[ref] = NewCommander(uid, refs, m, decision)
		case traitors[ref]:
			d.nodes[ref] = NewTraitor(uid, refs, m)
		default:
			d.nodes[ref] = NewLieutenant(uid, refs, m)
		}
	}
	return d
}

func (d *Driver) Start() {
	d.kernel.PushToInbox(d.commander, messaging.Envelope{
		Header:     HeaderStart,
		MetaHeader: messaging.IniMetaHeader,
	})
}

func (d *Driver) Handle(dst messaging.NodeRef, env messaging.Envelope) {
	self, ok := d.nodes[dst]
	configs.Assert(ok, "oralmessages: unknown node ref %v", dst)
	dispatch(self, dst, d.kernel, env)
}

func (d *Driver) Node(ref messaging.NodeRef) *Node { return d.nodes[ref] }

// AllLieutenantsDecided reports whether every LIEUTENANT (traitors
// excluded: they never decide) has reached ATTACK or RETREAT.
func (d *Driver) AllLieutenantsDecided() bool {
	for _, n := range d.nodes {
		if n.Status == StatusTraitor || n.Status == StatusCommander || n.Status == StatusDone {
			continue
		}
		if n.Status != StatusAttack && n.Status != StatusRetreat {
			return false
		}
	}
	return true
}
