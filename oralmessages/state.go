// Package oralmessages implements the Byzantine Generals / Oral-Messages
// (Lamport-Shostak-Pease) algorithm (§4.5): a commander broadcasts an
// order, every lieutenant relays it recursively m levels deep, and each
// honest lieutenant folds the resulting recursion tree bottom-up by
// majority vote. Tolerates m traitors given n >= 3m+1.
package oralmessages

import (
	"strings"

	"github.com/oltpfc/distcore/messaging"
	"github.com/oltpfc/distcore/node"
)

// Status values (§6: "Oral-Messages Byzantine initial {COMMANDER, TRAITOR,
// LIEUTENANT}, terminal {DONE, RETREAT, ATTACK, TRAITOR}"). TRAITOR is
// both an initial and a terminal status: a traitor keeps relaying forever
// but never decides.
const (
	StatusCommander  = "COMMANDER"
	StatusTraitor    = "TRAITOR"
	StatusLieutenant = "LIEUTENANT"
	StatusDone       = "DONE"
	StatusRetreat    = "RETREAT"
	StatusAttack     = "ATTACK"
)

const (
	Retreat = 0
	Attack  = 1
)

const (
	HeaderDecision = "Decision"
	HeaderStart    = "Start"
)

// DecisionData is the wire shape of a relayed order (§4.5 "Message
// format"): ID is the claimed identity of whoever is asserting this
// decision at this hop; Path is the ordered list of unique_values the
// order has traveled through, commander first; N is the number of sibling
// responses the recipient must collect before folding this subtree.
type DecisionData struct {
	ID       string
	Decision int
	M        int
	Path     []string
	N        int
}

// DecisionEntry is one bucket of saved_decisions (§4.5): the decisions
// collected so far for a given path, and the count expected before the
// bucket is complete.
type DecisionEntry struct {
	Decisions map[string]int
	Total     int
}

// Node is the Oral-Messages per-node state (§3 "Byzantine (Oral Messages)
// memory"). SavedDecisions is keyed by pathKey(path): multiple recursions
// at different subtrees coexist concurrently in this map.
type Node struct {
	node.Base
	M              int
	Decision       int // commander's own order; meaningless for non-commanders
	SavedDecisions map[string]*DecisionEntry
}

func NewCommander(uniqueValue string, refs []messaging.NodeRef, m, decision int) *Node {
	return &Node{
		Base:           node.NewBase(uniqueValue, StatusCommander, refs),
		M:              m,
		Decision:       decision,
		SavedDecisions: make(map[string]*DecisionEntry),
	}
}

func NewTraitor(uniqueValue string, refs []messaging.NodeRef, m int) *Node {
	return &Node{
		Base:           node.NewBase(uniqueValue, StatusTraitor, refs),
		M:              m,
		SavedDecisions: make(map[string]*DecisionEntry),
	}
}

func NewLieutenant(uniqueValue string, refs []messaging.NodeRef, m int) *Node {
	return &Node{
		Base:           node.NewBase(uniqueValue, StatusLieutenant, refs),
		M:              m,
		SavedDecisions: make(map[string]*DecisionEntry),
	}
}

// pathKey canonicalizes a path tuple into a map key. Paths never contain
// the separator (unique_values come from the driver's own id alphabet),
// so a simple join is an unambiguous tuple encoding.
func pathKey(path []string) string {
	return strings.Join(path, "\x1f")
}

func inPath(path []string, id string) bool {
	if id == "" {
		return false
	}
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}
