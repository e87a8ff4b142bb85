// Package threephase implements classical Three-Phase Commit (§4.3): a
// PreCommit round is inserted between Prepare and Commit so that a
// coordinator that times out waiting for Acks can safely abort, because no
// participant has yet committed.
package threephase

import (
	"github.com/oltpfc/distcore/messaging"
	"github.com/oltpfc/distcore/node"
)

// Status values (§6: "3PC initial {COORDINATOR, SLEEP}, terminal {DONE}").
const (
	StatusCoordinator            = "COORDINATOR"
	StatusCoordinatorWaitPrepare = "COORDINATOR_WAITING_PREPARED"
	StatusCoordinatorWaitAck     = "COORDINATOR_WAITING_ACK"
	StatusCoordinatorWaitDone    = "COORDINATOR_WAITING_DONE"
	StatusCoordinatorAborting    = "COORDINATOR_ABORTING"
	StatusSleep                  = "SLEEP"
	StatusWaitPreCommit          = "WAITING_PRECOMMIT"
	StatusWaiting                = "WAITING"
	StatusDone                   = "DONE"
)

// Vote status values for node_status entries (§3: "3PC memory... expanded
// node_status values {sleep|prepared|ack|done|aborted}").
const (
	VoteSleep    = "sleep"
	VotePrepared = "prepared"
	VoteAck      = "ack"
	VoteDone     = "done"
	VoteAborted  = "aborted"
)

// Message headers (§4.3).
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

// PreparedData is the payload of a Prepared reply (§4.3: "Prepared{decision:0|1}").
type PreparedData struct {
	Decision int
}

// TimeoutData carries the neighbor a per-neighbor timeout alarm targets
// (§4.3: Timeout_Ack_<id>, Timeout_Done_<id>, Timeout_Abort_<id>).
type TimeoutData struct {
	Target messaging.NodeRef
}

// Node is the 3PC per-node state: identity/status/neighbors plus the §3
// memory. Decision is set by the coordinator: "Commit" once every yes-vote
// is in, "Abort" on a no-vote or a missing Ack. Votes records each
// neighbor's Prepared vote.
type Node struct {
	node.Base
	NodeStatus map[messaging.NodeRef]string
	Votes      map[messaging.NodeRef]int
	Decision   string
}

func NewCoordinator(uniqueValue string, refs []messaging.NodeRef) *Node {
	return &Node{
		Base:       node.NewBase(uniqueValue, StatusCoordinator, refs),
		NodeStatus: initStatus(refs),
		Votes:      make(map[messaging.NodeRef]int, len(refs)),
	}
}

func NewParticipant(uniqueValue string, refs []messaging.NodeRef) *Node {
	return &Node{
		Base:       node.NewBase(uniqueValue, StatusSleep, refs),
		NodeStatus: initStatus(refs),
	}
}

func initStatus(refs []messaging.NodeRef) map[messaging.NodeRef]string {
	m := make(map[messaging.NodeRef]string, len(refs))
	for _, r := range refs {
		m[r] = VoteSleep
	}
	return m
}
