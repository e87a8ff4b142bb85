// Package node defines the data every algorithm's per-node state machine
// shares: identity, status and the neighbor-slot table (§3 "Node",
// "Common memory").
package node

import "github.com/oltpfc/distcore/messaging"

// Slot maps a runtime-visible neighbor link (Source, the local neighbor
// slot) to the application-level unique_value learned the first time that
// neighbor sends a message. ID is empty until learned.
type Slot struct {
	Source messaging.NodeRef
	ID     string
}

// Base is embedded by every algorithm's own Node type. It owns identity,
// status and the neighbor table; algorithm-specific memory lives in the
// embedding struct, per §3 Invariant 1 (unique_value distinct and
// immutable) and the "ownership" note (a node's memory is exclusively
// owned by that node).
type Base struct {
	UniqueValue string
	Status      string
	Neighbors   []Slot
}

// NewBase allocates the neighbor table for the given runtime-visible
// neighbor refs, all initially unlearned.
func NewBase(uniqueValue string, status string, refs []messaging.NodeRef) Base {
	slots := make([]Slot, len(refs))
	for i, r := range refs {
		slots[i] = Slot{Source: r}
	}
	return Base{UniqueValue: uniqueValue, Status: status, Neighbors: slots}
}

// LearnNeighbor records the remote unique-value for a neighbor slot the
// first time it is observed. Once a slot is learned, later calls for it are
// no-ops: a different id for an already-learned slot is ignored and the
// first one is kept (a runtime NodeRef is a stable handle for the lifetime
// of the run).
func (b *Base) LearnNeighbor(source messaging.NodeRef, id string) {
	for i := range b.Neighbors {
		if b.Neighbors[i].Source != source {
			continue
		}
		if b.Neighbors[i].ID == "" {
			b.Neighbors[i].ID = id
		}
		return
	}
}

// NeighborRefs returns every runtime-visible neighbor slot.
func (b *Base) NeighborRefs() []messaging.NodeRef {
	refs := make([]messaging.NodeRef, len(b.Neighbors))
	for i, s := range b.Neighbors {
		refs[i] = s.Source
	}
	return refs
}

// LearnedID returns the unique-value learned for a neighbor slot, or ""
// if that neighbor has not sent anything yet.
func (b *Base) LearnedID(source messaging.NodeRef) string {
	for _, s := range b.Neighbors {
		if s.Source == source {
			return s.ID
		}
	}
	return ""
}
