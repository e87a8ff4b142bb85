package threephase

import (
	"github.com/oltpfc/distcore/configs"
	"github.com/oltpfc/distcore/messaging"
	"github.com/oltpfc/distcore/runtime"
)

func dispatch(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	switch self.Status {
	case StatusCoordinator:
		if env.Header == HeaderStart {
			coordinatorStart(self, selfRef, k)
			return
		}
	case StatusCoordinatorWaitPrepare:
		coordinatorWaitingPrepared(self, selfRef, k, env)
		return
	case StatusCoordinatorWaitAck:
		coordinatorWaitingAck(self, selfRef, k, env)
		return
	case StatusCoordinatorWaitDone:
		coordinatorWaitingDone(self, selfRef, k, env)
		return
	case StatusCoordinatorAborting:
		coordinatorAborting(self, selfRef, k, env)
		return
	case StatusSleep:
		if env.Header == HeaderPrepare {
			participantSleep(self, selfRef, k, env)
			return
		}
	case StatusWaitPreCommit:
		participantWaitingPreCommit(self, selfRef, k, env)
		return
	case StatusWaiting:
		participantWaiting(self, selfRef, k, env)
		return
	case StatusDone:
		participantDone(self, selfRef, k, env)
		return
	}
	configs.InfoPrintf("3pc: dropped header %q in status %q for node %s", env.Header, self.Status, self.UniqueValue)
}

func coordinatorStart(self *Node, selfRef messaging.NodeRef, k runtime.Kernel) {
	for _, ref := range self.NeighborRefs() {
		k.Send(selfRef, ref, messaging.NewEnvelope(HeaderPrepare, nil, ref))
	}
	armAlarm(self, selfRef, k, HeaderTimeoutPrep, nil)
	self.Status = StatusCoordinatorWaitPrepare
}

func armAlarm(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, header string, target *messaging.NodeRef) {
	var data interface{}
	if target != nil {
		data = TimeoutData{Target: *target}
	}
	k.SetAlarm(selfRef, configs.AlarmDelayTicks, messaging.Envelope{Header: header, Data: data})
}

func broadcast(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, header string) {
	for _, ref := range self.NeighborRefs() {
		k.Send(selfRef, ref, messaging.NewEnvelope(header, nil, ref))
	}
}

func armPerNeighbor(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, header string) {
	for _, ref := range self.NeighborRefs() {
		target := ref
		armAlarm(self, selfRef, k, header, &target)
	}
}

// coordinatorWaitingPrepared implements §4.3's WAITING_PREPARED sub-state:
// any no-vote aborts immediately; a full yes-vote advances to PreCommit;
// Timeout_Prepared retransmits to stragglers.
func coordinatorWaitingPrepared(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	switch env.Header {
	case HeaderPrepared:
		if self.NodeStatus[env.Source] != VoteSleep {
			return
		}
		vote, _ := env.Data.(PreparedData)
		self.Votes[env.Source] = vote.Decision
		self.NodeStatus[env.Source] = VotePrepared
		if vote.Decision == 0 {
			self.Decision = "Abort"
			broadcast(self, selfRef, k, HeaderAbort)
			armPerNeighbor(self, selfRef, k, HeaderTimeoutAbort)
			self.Status = StatusCoordinatorAborting
			return
		}
		if !allAtLeast(self, VotePrepared) {
			return
		}
		self.Decision = "Commit"
		broadcast(self, selfRef, k, HeaderPreCommit)
		armPerNeighbor(self, selfRef, k, HeaderTimeoutAck)
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
			armAlarm(self, selfRef, k, HeaderTimeoutPrep, nil)
		}
	default:
		configs.InfoPrintf("3pc: unexpected header %q for coordinator awaiting prepared", env.Header)
	}
}

// coordinatorWaitingAck implements WAITING_ACK: a missing ACK aborts rather
// than retries (§4.3 rationale: PreCommit has not been observed by every
// participant yet, so it is still safe to abort).
func coordinatorWaitingAck(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	switch env.Header {
	case HeaderAck:
		if self.NodeStatus[env.Source] == VotePrepared {
			self.NodeStatus[env.Source] = VoteAck
		}
		if !allAtLeast(self, VoteAck) {
			return
		}
		broadcast(self, selfRef, k, HeaderCommit)
		armPerNeighbor(self, selfRef, k, HeaderTimeoutDone)
		self.Status = StatusCoordinatorWaitDone
	case HeaderTimeoutAck:
		data, _ := env.Data.(TimeoutData)
		if self.NodeStatus[data.Target] == VoteAck {
			return
		}
		self.Decision = "Abort"
		broadcast(self, selfRef, k, HeaderAbort)
		armPerNeighbor(self, selfRef, k, HeaderTimeoutAbort)
		self.Status = StatusCoordinatorAborting
	default:
		configs.InfoPrintf("3pc: unexpected header %q for coordinator awaiting ack", env.Header)
	}
}

// coordinatorWaitingDone implements WAITING_DONE: the commit decision is
// final, so Timeout_Done retransmits Commit rather than aborting.
func coordinatorWaitingDone(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	switch env.Header {
	case HeaderDone:
		if self.NodeStatus[env.Source] == VoteAck {
			self.NodeStatus[env.Source] = VoteDone
		}
		if allAtLeast(self, VoteDone) {
			self.Status = StatusDone
		}
	case HeaderTimeoutDone:
		data, _ := env.Data.(TimeoutData)
		if self.NodeStatus[data.Target] == VoteDone {
			return
		}
		k.Send(selfRef, data.Target, messaging.NewEnvelope(HeaderCommit, nil, data.Target))
		target := data.Target
		armAlarm(self, selfRef, k, HeaderTimeoutDone, &target)
	default:
		configs.InfoPrintf("3pc: unexpected header %q for coordinator awaiting done", env.Header)
	}
}

// coordinatorAborting implements ABORTING.
func coordinatorAborting(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	switch env.Header {
	case HeaderAborted:
		self.NodeStatus[env.Source] = VoteAborted
		if allAtLeast(self, VoteAborted) {
			self.Status = StatusDone
		}
	case HeaderTimeoutAbort:
		data, _ := env.Data.(TimeoutData)
		if self.NodeStatus[data.Target] == VoteAborted {
			return
		}
		k.Send(selfRef, data.Target, messaging.NewEnvelope(HeaderAbort, nil, data.Target))
		target := data.Target
		armAlarm(self, selfRef, k, HeaderTimeoutAbort, &target)
	default:
		configs.InfoPrintf("3pc: unexpected header %q for coordinator aborting", env.Header)
	}
}

// allAtLeast reports whether every neighbor's recorded status has reached
// at least `want` along the sleep→prepared→ack→done (or →aborted) chain.
func allAtLeast(self *Node, want string) bool {
	rank := map[string]int{VoteSleep: 0, VotePrepared: 1, VoteAck: 2, VoteDone: 3, VoteAborted: 3}
	for _, ref := range self.NeighborRefs() {
		if rank[self.NodeStatus[ref]] < rank[want] {
			return false
		}
	}
	return true
}

func participantSleep(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderPrepared, PreparedData{Decision: 1}, env.Source))
	self.Status = StatusWaitPreCommit
}

func participantWaitingPreCommit(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	switch env.Header {
	case HeaderPreCommit:
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderAck, nil, env.Source))
		self.Status = StatusWaiting
	case HeaderAbort:
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderAborted, nil, env.Source))
		self.Status = StatusDone
	case HeaderPrepare:
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderPrepared, PreparedData{Decision: 1}, env.Source))
	default:
		configs.InfoPrintf("3pc: unexpected header %q for participant awaiting precommit", env.Header)
	}
}

func participantWaiting(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	switch env.Header {
	case HeaderCommit:
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderDone, nil, env.Source))
		self.Status = StatusDone
	case HeaderAbort:
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderAborted, nil, env.Source))
		self.Status = StatusDone
	case HeaderPreCommit:
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderAck, nil, env.Source))
	default:
		configs.InfoPrintf("3pc: unexpected header %q for participant waiting", env.Header)
	}
}

// participantDone implements §4.3's DONE duplicate-handling rule: a
// duplicate Commit is answered with Ack (not Done), a duplicate Abort with
// Aborted, and stray alarms are ignored. A late reply (Prepared, Ack, Done,
// Aborted) reaching the finished coordinator is logged and dropped.
func participantDone(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	switch env.Header {
	case HeaderCommit:
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderAck, nil, env.Source))
	case HeaderAbort:
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderAborted, nil, env.Source))
	case HeaderTimeoutPrep, HeaderTimeoutAck, HeaderTimeoutDone, HeaderTimeoutAbort:
		// ignored: stray alarm for an already-finished node (§4.3 DONE: "Timeout_* ignored").
	case HeaderPrepared, HeaderAck, HeaderDone, HeaderAborted:
		// only the coordinator receives these: a late reply after it finished.
		configs.InfoPrintf("3pc: DONE coordinator %s dropped late header %q", self.UniqueValue, env.Header)
	default:
		configs.Assert(false, "3pc: DONE participant %s received non-duplicate header %q", self.UniqueValue, env.Header)
	}
}
