// Package byzantine3pc implements the signed-message Byzantine-tolerant
// variant of 3PC (§4.4): every phase message carries a signature, and up
// to m non-coordinator nodes are FAULTY and actively try to split the
// honest nodes by equivocating (sending Commit to some neighbors and
// Abort to others).
package byzantine3pc

import (
	"github.com/oltpfc/distcore/messaging"
	"github.com/oltpfc/distcore/node"
)

// Status values (§6: "Byzantine-3PC initial {COORDINATOR, SLEEP, FAULTY},
// terminal {DONE}"). The coordinator reuses 3PC's four sub-states; the
// participant reuses its two.
const (
	StatusCoordinator            = "COORDINATOR"
	StatusCoordinatorWaitPrepare = "COORDINATOR_WAITING_PREPARED"
	StatusCoordinatorWaitAck     = "COORDINATOR_WAITING_ACK"
	StatusCoordinatorWaitDone    = "COORDINATOR_WAITING_DONE"
	StatusCoordinatorAborting    = "COORDINATOR_ABORTING"
	StatusSleep                  = "SLEEP"
	StatusWaitPreCommit          = "WAITING_PRECOMMIT"
	StatusWaiting                = "WAITING"
	StatusFaulty                 = "FAULTY"
	StatusDone                   = "DONE"
)

const (
	VoteSleep    = "sleep"
	VotePrepared = "prepared"
	VoteAck      = "ack"
	VoteDone     = "done"
	VoteAborted  = "aborted"
)

// Message headers (§4.4).
const (
	HeaderPrepare      = "Prepare"
	HeaderPrepared     = "Prepared"
	HeaderPreCommit    = "PreCommit"
	HeaderAck          = "Ack"
	HeaderCommit       = "Commit"
	HeaderDone         = "Done"
	HeaderAbort        = "Abort"
	HeaderAborted      = "Aborted"
	HeaderTimeoutPrep  = "Timeout_Prepared"
	HeaderTimeoutAck   = "Timeout_Ack"
	HeaderTimeoutDone  = "Timeout_Done"
	HeaderTimeoutAbort = "Timeout_Abort"
	HeaderStart        = "Start"
)

// TimeoutData carries the per-neighbor timeout target (§4.4 follows §4.3's
// Timeout_Ack_<id>/Timeout_Done_<id>/Timeout_Abort_<id> shape).
type TimeoutData struct {
	Target messaging.NodeRef
}

// Signed is the payload shape for every signed phase message (§4.4):
// SenderID is the unique_value the sender claims to be (the asserted
// identity verify() checks the signature against); Decision carries the
// commit/abort vote where one applies; Signature is sign() applied to the
// header's canonical string.
type Signed struct {
	SenderID  string
	Decision  int
	Signature string
}

// Node is the Byzantine-3PC per-node state (§3 "Byzantine-3PC memory").
// Quorum (the coordinator's threshold to advance a phase) is n-1: see §9's
// open question — this preserves n-1 (all-participant quorum) rather than
// n-m-1 (honest-only quorum), per the spec's instruction to mirror the
// observed source behavior.
type Node struct {
	node.Base
	M          int
	N          int
	NodeStatus map[messaging.NodeRef]string
	// PrepareVotes/AckVotes are keyed by the verified claimed unique_value
	// (pid), not by NodeRef: a message whose signature fails verification
	// never reaches these maps (§7 kind 3), so their length is always an
	// honest count.
	PrepareVotes map[string]Signed
	AckVotes     map[string]Signed
	Decision     string
	PrivateKey   string
}

func NewCoordinator(uniqueValue string, refs []messaging.NodeRef, m, n int) *Node {
	return &Node{
		Base:         node.NewBase(uniqueValue, StatusCoordinator, refs),
		M:            m,
		N:            n,
		NodeStatus:   initStatus(refs),
		PrepareVotes: make(map[string]Signed),
		AckVotes:     make(map[string]Signed),
		PrivateKey:   messaging.PrivateKey(uniqueValue),
	}
}

func NewParticipant(uniqueValue string, refs []messaging.NodeRef, m, n int) *Node {
	return &Node{
		Base:       node.NewBase(uniqueValue, StatusSleep, refs),
		M:          m,
		N:          n,
		NodeStatus: initStatus(refs),
		PrivateKey: messaging.PrivateKey(uniqueValue),
	}
}

func NewFaulty(uniqueValue string, refs []messaging.NodeRef, m, n int) *Node {
	return &Node{
		Base:       node.NewBase(uniqueValue, StatusFaulty, refs),
		M:          m,
		N:          n,
		NodeStatus: initStatus(refs),
		PrivateKey: messaging.PrivateKey(uniqueValue),
	}
}

func initStatus(refs []messaging.NodeRef) map[messaging.NodeRef]string {
	m := make(map[messaging.NodeRef]string, len(refs))
	for _, r := range refs {
		m[r] = VoteSleep
	}
	return m
}
