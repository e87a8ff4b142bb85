package twophase

import (
	"github.com/oltpfc/distcore/configs"
	"github.com/oltpfc/distcore/messaging"
	"github.com/oltpfc/distcore/runtime"
)

// HeaderStart fires the coordinator's spontaneous handler (§6: a
// push_to_inbox delivery with meta_header INI).
const HeaderStart = "Start"

func dispatch(self *Node, selfRef messaging.NodeRef, coordinatorRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	handled := true
	switch self.Status {
	case StatusCoordinator:
		if env.Header == HeaderStart {
			coordinatorStart(self, selfRef, k)
		} else {
			handled = false
		}
	case StatusCoordinatorWaitPrepare:
		coordinatorWaitingPrepared(self, selfRef, k, env)
	case StatusCoordinatorWaitAck:
		coordinatorWaitingAck(self, selfRef, k, env)
	case StatusSleep:
		if env.Header == HeaderPrepare {
			participantSleep(self, selfRef, k, env)
		} else {
			handled = false
		}
	case StatusWaiting:
		participantWaiting(self, selfRef, k, env)
	case StatusDone:
		participantDone(self, selfRef, k, env)
	default:
		handled = false
	}
	configs.Warn(handled, "2pc: dropped header %q in status %q for node %s", env.Header, self.Status, self.UniqueValue)
}

// coordinatorStart implements the spontaneous COORDINATOR transition of
// §4.2: send Prepare to all neighbors, arm Timeout_Prepared.
func coordinatorStart(self *Node, selfRef messaging.NodeRef, k runtime.Kernel) {
	for _, ref := range self.NeighborRefs() {
		k.Send(selfRef, ref, messaging.NewEnvelope(HeaderPrepare, nil, ref))
	}
	armTimeoutPrepared(self, selfRef, k)
	self.Status = StatusCoordinatorWaitPrepare
}

func armTimeoutPrepared(self *Node, selfRef messaging.NodeRef, k runtime.Kernel) {
	k.SetAlarm(selfRef, configs.AlarmDelayTicks, messaging.NewEnvelope(HeaderTimeoutPrep, nil, selfRef))
}

// coordinatorWaitingPrepared handles Prepared replies and Timeout_Prepared
// retransmission (§4.2).
func coordinatorWaitingPrepared(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	switch env.Header {
	case HeaderPrepared:
		if self.NodeStatus[env.Source] == VoteSleep {
			self.NodeStatus[env.Source] = VotePrepared
			vote, _ := env.Data.(PreparedData)
			self.Votes[env.Source] = vote.Decision
		}
		if !allAtLeast(self, VotePrepared) {
			return
		}
		self.Decision = decide(self)
		header := headerForDecision(self.Decision)
		for _, ref := range self.NeighborRefs() {
			k.Send(selfRef, ref, messaging.NewEnvelope(header, nil, ref))
			armTimeoutAck(self, selfRef, k, ref)
		}
		self.Status = StatusCoordinatorWaitAck
	case HeaderTimeoutPrep:
		pending := false
		for _, ref := range self.NeighborRefs() {
			if self.NodeStatus[ref] == VoteSleep {
				k.Send(selfRef, ref, messaging.NewEnvelope(HeaderPrepare, nil, ref))
				pending = true
			}
		}
		if pending {
			armTimeoutPrepared(self, selfRef, k)
		}
	default:
		configs.InfoPrintf("2pc: unexpected header %q for coordinator awaiting prepared", env.Header)
	}
}

func armTimeoutAck(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, target messaging.NodeRef) {
	k.SetAlarm(selfRef, configs.AlarmDelayTicks, messaging.Envelope{
		Header: HeaderTimeoutAck,
		Data:   TimeoutAckData{Target: target},
	})
}

// coordinatorWaitingAck handles Ack replies and per-neighbor Timeout_Ack
// retransmission (§4.2: "On Timeout_Ack_<id> the coordinator resends its
// stored decision to that neighbor and re-arms that specific alarm").
func coordinatorWaitingAck(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	switch env.Header {
	case HeaderAck:
		if self.NodeStatus[env.Source] == VotePrepared {
			self.NodeStatus[env.Source] = VoteAck
		}
		if allAtLeast(self, VoteAck) {
			self.Status = StatusDone
		}
	case HeaderTimeoutAck:
		data, _ := env.Data.(TimeoutAckData)
		if self.NodeStatus[data.Target] == VoteAck {
			return // §5: alarm handlers re-check status and no-op if already satisfied.
		}
		k.Send(selfRef, data.Target, messaging.NewEnvelope(headerForDecision(self.Decision), nil, data.Target))
		armTimeoutAck(self, selfRef, k, data.Target)
	default:
		configs.InfoPrintf("2pc: unexpected header %q for coordinator awaiting ack", env.Header)
	}
}

// decide picks Commit iff every collected Prepared vote was 1, else Abort
// (§4.2: "pick Commit if all decision=1 else Abort"). §4.2 also notes
// participants always vote commit in this model, so Abort is unreachable
// in practice but the fold still inspects the real votes.
func decide(self *Node) string {
	for _, v := range self.Votes {
		if v != 1 {
			return "Abort"
		}
	}
	return "Commit"
}

func headerForDecision(decision string) string {
	if decision == "Commit" {
		return HeaderCommit
	}
	return HeaderAbort
}

func allAtLeast(self *Node, want string) bool {
	for _, ref := range self.NeighborRefs() {
		st := self.NodeStatus[ref]
		if st == VoteSleep {
			return false
		}
		if want == VoteAck && st != VoteAck {
			return false
		}
	}
	return true
}

// participantSleep implements SLEEP → (Prepare) → WAITING (§4.2).
func participantSleep(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderPrepared, PreparedData{Decision: 1}, env.Source))
	self.Status = StatusWaiting
}

// participantWaiting implements WAITING → (Commit|Abort) → DONE, with a
// duplicate Prepare re-sending Prepared (§4.2).
func participantWaiting(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	switch env.Header {
	case HeaderCommit, HeaderAbort:
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderAck, nil, env.Source))
		self.Status = StatusDone
	case HeaderPrepare:
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderPrepared, PreparedData{Decision: 1}, env.Source))
	default:
		configs.InfoPrintf("2pc: unexpected header %q for participant waiting", env.Header)
	}
}

// participantDone implements the DONE duplicate-handling rule: a duplicate
// Commit/Abort re-sends Ack; a late Prepared/Ack reaching the finished
// coordinator is logged and dropped; anything else is a programmer error
// (§4.2 Errors).
func participantDone(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	switch env.Header {
	case HeaderCommit, HeaderAbort:
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderAck, nil, env.Source))
	case HeaderTimeoutPrep, HeaderTimeoutAck:
		// stray alarm for an already-finished node; not an error (§5).
	case HeaderPrepared, HeaderAck:
		// only the coordinator receives these: a late reply after it finished.
		configs.InfoPrintf("2pc: DONE coordinator %s dropped late header %q", self.UniqueValue, env.Header)
	default:
		configs.Assert(false, "2pc: DONE participant %s received non-duplicate header %q", self.UniqueValue, env.Header)
	}
}
