package oralmessages

import (
	"github.com/oltpfc/distcore/configs"
	"github.com/oltpfc/distcore/messaging"
	"github.com/oltpfc/distcore/runtime"
)

func dispatch(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	switch self.Status {
	case StatusCommander:
		if env.Header == HeaderStart {
			commanderSpontaneously(self, selfRef, k)
			return
		}
	case StatusTraitor, StatusLieutenant:
		if env.Header == HeaderDecision {
			receiving(self, selfRef, k, env)
			return
		}
	case StatusDone, StatusAttack, StatusRetreat:
		// terminal; any further Decision is logged and dropped below.
	}
	configs.InfoPrintf("oralmessages: dropped header %q in status %q for node %s", env.Header, self.Status, self.UniqueValue)
}

// commanderSpontaneously is always honest (§4.5 "Commander step"): it
// sends its order to every neighbor and is immediately done. When m==0
// there is no recursion to come, so n is pinned to 1 (a single direct
// observation each lieutenant must honor).
func commanderSpontaneously(self *Node, selfRef messaging.NodeRef, k runtime.Kernel) {
	n := totalNodes(self) - 1
	if self.M == 0 {
		n = 1
	}
	data := DecisionData{
		ID:       self.UniqueValue,
		Decision: self.Decision,
		M:        self.M,
		Path:     []string{self.UniqueValue},
		N:        n,
	}
	for _, ref := range self.NeighborRefs() {
		k.Send(selfRef, ref, messaging.NewEnvelope(HeaderDecision, data, ref))
	}
	self.Status = StatusDone
}

// totalNodes reports the total node count, inferred from the neighbor
// table plus self (§4.5: "N is total nodes").
func totalNodes(self *Node) int { return len(self.Neighbors) + 1 }

// receiving is shared by TRAITOR and LIEUTENANT (§4.5): a traitor executes
// exactly the same recursion bookkeeping as a lieutenant -- only
// send_recursion_start's equivocation, and the final no-op at the top
// level, differ.
func receiving(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	data, ok := env.Data.(DecisionData)
	if !ok {
		configs.InfoPrintf("oralmessages: malformed Decision payload at node %s", self.UniqueValue)
		return
	}
	self.LearnNeighbor(env.Source, data.ID)

	switch {
	case data.M > 1:
		receivedMoreThanOne(self, selfRef, k, data)
	case data.M == 1:
		receivedOne(self, selfRef, k, data)
	case data.M == 0:
		receivedZero(self, selfRef, k, data)
	default:
		configs.InfoPrintf("oralmessages: invalid m=%d received by node %s", data.M, self.UniqueValue)
	}
}

func entryFor(self *Node, key string, ownerKey string, decision, total int) *DecisionEntry {
	entry, ok := self.SavedDecisions[key]
	if !ok {
		entry = &DecisionEntry{Decisions: map[string]int{ownerKey: decision}, Total: total}
		self.SavedDecisions[key] = entry
	} else {
		entry.Decisions[ownerKey] = decision
	}
	configs.Assert(len(entry.Decisions) <= entry.Total, "oralmessages: node %s received more decisions than expected for path %v", self.UniqueValue, key)
	return entry
}

// receivedMoreThanOne (§4.5): record the sender's order under our own id,
// then relay as sub-commander for m-1, appending ourselves to the path.
func receivedMoreThanOne(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, data DecisionData) {
	key := pathKey(data.Path)
	entry := entryFor(self, key, self.UniqueValue, data.Decision, data.N)

	forwardPath := append(append([]string{}, data.Path...), self.UniqueValue)
	forward := DecisionData{ID: self.UniqueValue, Decision: data.Decision, M: data.M - 1, Path: forwardPath, N: data.N - 1}
	sendRecursionStart(self, selfRef, k, forward, destinations(self, data.Path))

	if len(entry.Decisions) == entry.Total {
		processFinalDecision(self, selfRef, data.Path, entry)
	}
}

// receivedOne (§4.5): identical bookkeeping, but the relayed message keeps
// the same path and n (the recipient does not add itself, per the m==1
// base case of the recursion).
func receivedOne(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, data DecisionData) {
	key := pathKey(data.Path)
	entry := entryFor(self, key, self.UniqueValue, data.Decision, data.N)

	forward := DecisionData{ID: self.UniqueValue, Decision: data.Decision, M: data.M - 1, Path: data.Path, N: data.N}
	sendRecursionStart(self, selfRef, k, forward, destinations(self, data.Path))

	if len(entry.Decisions) == entry.Total {
		processFinalDecision(self, selfRef, data.Path, entry)
	}
}

// receivedZero (§4.5): leaf of the recursion -- no further relay, just
// record the value under the claimed sender id and fold if complete.
func receivedZero(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, data DecisionData) {
	key := pathKey(data.Path)
	entry := entryFor(self, key, data.ID, data.Decision, data.N)
	if len(entry.Decisions) == entry.Total {
		processFinalDecision(self, selfRef, data.Path, entry)
	}
}

// destinations returns the neighbors this node may still relay to: those
// whose learned id is not already on the path. An unlearned neighbor
// (empty id) is always included, since it cannot yet be proven to be on
// the path.
func destinations(self *Node, path []string) []messaging.NodeRef {
	var out []messaging.NodeRef
	for _, ref := range self.NeighborRefs() {
		if !inPath(path, self.LearnedID(ref)) {
			out = append(out, ref)
		}
	}
	return out
}

// sendRecursionStart (§4.5): an honest node relays unchanged; a traitor
// splits its destinations in half and sends the flipped decision to the
// second half, sowing disagreement.
func sendRecursionStart(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, data DecisionData, dests []messaging.NodeRef) {
	if self.Status != StatusTraitor {
		for _, ref := range dests {
			k.Send(selfRef, ref, messaging.NewEnvelope(HeaderDecision, data, ref))
		}
		return
	}
	half := len(dests) / 2
	flipped := data
	flipped.Decision = flip(data.Decision)
	for i, ref := range dests {
		if i < half {
			k.Send(selfRef, ref, messaging.NewEnvelope(HeaderDecision, data, ref))
		} else {
			k.Send(selfRef, ref, messaging.NewEnvelope(HeaderDecision, flipped, ref))
		}
	}
}

func flip(d int) int {
	if d == 0 {
		return 1
	}
	return 0
}

// majority (§4.5): ties break toward 0 (RETREAT).
func majority(decisions map[string]int) int {
	ones, zeros := 0, 0
	for _, v := range decisions {
		if v == 1 {
			ones++
		} else {
			zeros++
		}
	}
	if ones > zeros {
		return Attack
	}
	return Retreat
}

// processFinalDecision (§4.5 "Folding"): folds bottom-up. At the top level
// (len(path)==1) a lieutenant decides ATTACK/RETREAT and a traitor simply
// stops; otherwise the result is written into the parent entry under the
// father's key and folding recurses if that entry is now complete too.
// Bounded by depth m, so a direct recursive call is fine (§9).
func processFinalDecision(self *Node, selfRef messaging.NodeRef, path []string, entry *DecisionEntry) {
	final := majority(entry.Decisions)

	if len(path) == 1 {
		if self.Status == StatusTraitor {
			return
		}
		if final == Attack {
			self.Status = StatusAttack
		} else {
			self.Status = StatusRetreat
		}
		return
	}

	father := path[len(path)-1]
	parentPath := path[:len(path)-1]
	parentEntry, ok := self.SavedDecisions[pathKey(parentPath)]
	configs.Assert(ok, "oralmessages: node %s folding into unknown parent path %v", self.UniqueValue, parentPath)
	parentEntry.Decisions[father] = final
	configs.Assert(len(parentEntry.Decisions) <= parentEntry.Total, "oralmessages: node %s received more decisions than expected for path %v", self.UniqueValue, parentPath)

	if len(parentEntry.Decisions) == parentEntry.Total {
		processFinalDecision(self, selfRef, parentPath, parentEntry)
	}
}
