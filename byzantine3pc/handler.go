package byzantine3pc

import (
	"sort"

	"github.com/oltpfc/distcore/configs"
	"github.com/oltpfc/distcore/messaging"
	"github.com/oltpfc/distcore/runtime"
)

// dispatch is the per-node event router. coordinatorID/ is needed by
// participants and FAULTY nodes to validate that phase messages claiming
// to be from the coordinator actually are (§4.4's defense against a
// FAULTY peer injecting its own Commit/Abort).
func dispatch(self *Node, selfRef messaging.NodeRef, coordinatorID string, k runtime.Kernel, env messaging.Envelope) {
	if self.Status == StatusFaulty {
		faulty(self, selfRef, k, env)
		return
	}
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
			participantSleep(self, selfRef, coordinatorID, k, env)
			return
		}
	case StatusWaitPreCommit:
		participantWaitingPreCommit(self, selfRef, coordinatorID, k, env)
		return
	case StatusWaiting:
		participantWaiting(self, selfRef, coordinatorID, k, env)
		return
	case StatusDone:
		participantDone(self, selfRef, coordinatorID, k, env)
		return
	}
	configs.InfoPrintf("byzantine3pc: dropped header %q in status %q for node %s", env.Header, self.Status, self.UniqueValue)
}

func armAlarm(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, header string, target *messaging.NodeRef) {
	var data interface{}
	if target != nil {
		data = TimeoutData{Target: *target}
	}
	k.SetAlarm(selfRef, configs.AlarmDelayTicks, messaging.Envelope{Header: header, Data: data})
}

func armPerNeighbor(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, header string) {
	for _, ref := range self.NeighborRefs() {
		target := ref
		armAlarm(self, selfRef, k, header, &target)
	}
}

// -- coordinator --

func coordinatorStart(self *Node, selfRef messaging.NodeRef, k runtime.Kernel) {
	payload := sign(self.UniqueValue, canonPrepare(self.UniqueValue), 0)
	for _, ref := range self.NeighborRefs() {
		k.Send(selfRef, ref, messaging.NewEnvelope(HeaderPrepare, payload, ref))
	}
	armAlarm(self, selfRef, k, HeaderTimeoutPrep, nil)
	self.Status = StatusCoordinatorWaitPrepare
}

func coordinatorWaitingPrepared(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	switch env.Header {
	case HeaderPrepared:
		vote, ok := env.Data.(Signed)
		if !ok || !verify(canonPrepared(vote.SenderID, vote.Decision), vote, "") {
			return
		}
		self.PrepareVotes[vote.SenderID] = vote
		self.NodeStatus[env.Source] = VotePrepared
		if vote.Decision == 0 {
			abortAll(self, selfRef, k)
			return
		}
		if len(self.PrepareVotes) < self.N-1 {
			return
		}
		self.Decision = "Commit"
		payload := sign(self.UniqueValue, canonPreCommit(self.UniqueValue), 0)
		for _, ref := range self.NeighborRefs() {
			k.Send(selfRef, ref, messaging.NewEnvelope(HeaderPreCommit, payload, ref))
		}
		armPerNeighbor(self, selfRef, k, HeaderTimeoutAck)
		self.Status = StatusCoordinatorWaitAck
	case HeaderTimeoutPrep:
		pending := false
		payload := sign(self.UniqueValue, canonPrepare(self.UniqueValue), 0)
		for _, ref := range self.NeighborRefs() {
			if self.NodeStatus[ref] == VoteSleep {
				k.Send(selfRef, ref, messaging.NewEnvelope(HeaderPrepare, payload, ref))
				pending = true
			}
		}
		if pending {
			armAlarm(self, selfRef, k, HeaderTimeoutPrep, nil)
		}
	default:
		configs.InfoPrintf("byzantine3pc: unexpected header %q for coordinator awaiting prepared", env.Header)
	}
}

func abortAll(self *Node, selfRef messaging.NodeRef, k runtime.Kernel) {
	self.Decision = "Abort"
	payload := sign(self.UniqueValue, canonAbort(self.UniqueValue), 0)
	for _, ref := range self.NeighborRefs() {
		k.Send(selfRef, ref, messaging.NewEnvelope(HeaderAbort, payload, ref))
	}
	armPerNeighbor(self, selfRef, k, HeaderTimeoutAbort)
	self.Status = StatusCoordinatorAborting
}

func coordinatorWaitingAck(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	switch env.Header {
	case HeaderAck:
		ack, ok := env.Data.(Signed)
		if !ok || !verify(canonAck(ack.SenderID), ack, "") {
			return
		}
		self.AckVotes[ack.SenderID] = ack
		self.NodeStatus[env.Source] = VoteAck
		if len(self.AckVotes) < self.N-1 {
			return
		}
		payload := sign(self.UniqueValue, canonCommit(self.UniqueValue), 0)
		for _, ref := range self.NeighborRefs() {
			k.Send(selfRef, ref, messaging.NewEnvelope(HeaderCommit, payload, ref))
		}
		armPerNeighbor(self, selfRef, k, HeaderTimeoutDone)
		self.Status = StatusCoordinatorWaitDone
	case HeaderTimeoutAck:
		data, _ := env.Data.(TimeoutData)
		if self.NodeStatus[data.Target] == VoteAck {
			return
		}
		abortAll(self, selfRef, k)
	default:
		configs.InfoPrintf("byzantine3pc: unexpected header %q for coordinator awaiting ack", env.Header)
	}
}

func coordinatorWaitingDone(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	switch env.Header {
	case HeaderDone:
		done, ok := env.Data.(Signed)
		if ok && verify(canonDone(done.SenderID), done, "") {
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
		payload := sign(self.UniqueValue, canonCommit(self.UniqueValue), 0)
		k.Send(selfRef, data.Target, messaging.NewEnvelope(HeaderCommit, payload, data.Target))
		target := data.Target
		armAlarm(self, selfRef, k, HeaderTimeoutDone, &target)
	default:
		configs.InfoPrintf("byzantine3pc: unexpected header %q for coordinator awaiting done", env.Header)
	}
}

func coordinatorAborting(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	switch env.Header {
	case HeaderAborted:
		aborted, ok := env.Data.(Signed)
		if ok && verify(canonAborted(aborted.SenderID), aborted, "") {
			self.NodeStatus[env.Source] = VoteAborted
		}
		if allAtLeast(self, VoteAborted) {
			self.Status = StatusDone
		}
	case HeaderTimeoutAbort:
		data, _ := env.Data.(TimeoutData)
		if self.NodeStatus[data.Target] == VoteAborted {
			return
		}
		payload := sign(self.UniqueValue, canonAbort(self.UniqueValue), 0)
		k.Send(selfRef, data.Target, messaging.NewEnvelope(HeaderAbort, payload, data.Target))
		target := data.Target
		armAlarm(self, selfRef, k, HeaderTimeoutAbort, &target)
	default:
		configs.InfoPrintf("byzantine3pc: unexpected header %q for coordinator aborting", env.Header)
	}
}

func allAtLeast(self *Node, want string) bool {
	rank := map[string]int{VoteSleep: 0, VotePrepared: 1, VoteAck: 2, VoteDone: 3, VoteAborted: 3}
	for _, ref := range self.NeighborRefs() {
		if rank[self.NodeStatus[ref]] < rank[want] {
			return false
		}
	}
	return true
}

// -- honest participant --

func participantSleep(self *Node, selfRef messaging.NodeRef, coordinatorID string, k runtime.Kernel, env messaging.Envelope) {
	prep, ok := env.Data.(Signed)
	if !ok || !verify(canonPrepare(prep.SenderID), prep, coordinatorID) {
		return
	}
	reply := sign(self.UniqueValue, canonPrepared(self.UniqueValue, 1), 1)
	k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderPrepared, reply, env.Source))
	self.Status = StatusWaitPreCommit
}

func participantWaitingPreCommit(self *Node, selfRef messaging.NodeRef, coordinatorID string, k runtime.Kernel, env messaging.Envelope) {
	switch env.Header {
	case HeaderPreCommit:
		data, ok := env.Data.(Signed)
		if !ok || !verify(canonPreCommit(data.SenderID), data, coordinatorID) {
			return
		}
		reply := sign(self.UniqueValue, canonAck(self.UniqueValue), 0)
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderAck, reply, env.Source))
		self.Status = StatusWaiting
	case HeaderAbort:
		data, ok := env.Data.(Signed)
		if !ok || !verify(canonAbort(data.SenderID), data, coordinatorID) {
			return
		}
		reply := sign(self.UniqueValue, canonAborted(self.UniqueValue), 0)
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderAborted, reply, env.Source))
		self.Status = StatusDone
	case HeaderPrepare:
		data, ok := env.Data.(Signed)
		if !ok || !verify(canonPrepare(data.SenderID), data, coordinatorID) {
			return
		}
		reply := sign(self.UniqueValue, canonPrepared(self.UniqueValue, 1), 1)
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderPrepared, reply, env.Source))
	default:
		configs.InfoPrintf("byzantine3pc: unexpected header %q for participant awaiting precommit", env.Header)
	}
}

func participantWaiting(self *Node, selfRef messaging.NodeRef, coordinatorID string, k runtime.Kernel, env messaging.Envelope) {
	switch env.Header {
	case HeaderCommit:
		data, ok := env.Data.(Signed)
		if !ok || !verify(canonCommit(data.SenderID), data, coordinatorID) {
			return
		}
		reply := sign(self.UniqueValue, canonDone(self.UniqueValue), 0)
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderDone, reply, env.Source))
		self.Status = StatusDone
	case HeaderAbort:
		data, ok := env.Data.(Signed)
		if !ok || !verify(canonAbort(data.SenderID), data, coordinatorID) {
			return
		}
		reply := sign(self.UniqueValue, canonAborted(self.UniqueValue), 0)
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderAborted, reply, env.Source))
		self.Status = StatusDone
	case HeaderPreCommit:
		data, ok := env.Data.(Signed)
		if !ok || !verify(canonPreCommit(data.SenderID), data, coordinatorID) {
			return
		}
		reply := sign(self.UniqueValue, canonAck(self.UniqueValue), 0)
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderAck, reply, env.Source))
	default:
		configs.InfoPrintf("byzantine3pc: unexpected header %q for participant waiting", env.Header)
	}
}

// participantDone mirrors 3PC's literal DONE duplicate rule (§4.3/§4.4): a
// duplicate Commit resends Ack, a duplicate Abort resends Aborted.
func participantDone(self *Node, selfRef messaging.NodeRef, coordinatorID string, k runtime.Kernel, env messaging.Envelope) {
	switch env.Header {
	case HeaderCommit:
		data, ok := env.Data.(Signed)
		if !ok || !verify(canonCommit(data.SenderID), data, coordinatorID) {
			return
		}
		reply := sign(self.UniqueValue, canonAck(self.UniqueValue), 0)
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderAck, reply, env.Source))
	case HeaderAbort:
		data, ok := env.Data.(Signed)
		if !ok || !verify(canonAbort(data.SenderID), data, coordinatorID) {
			return
		}
		reply := sign(self.UniqueValue, canonAborted(self.UniqueValue), 0)
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderAborted, reply, env.Source))
	case HeaderTimeoutPrep, HeaderTimeoutAck, HeaderTimeoutDone, HeaderTimeoutAbort:
		// stray alarm for an already-finished node; ignored.
	default:
		// a forged or equivocated message from a non-coordinator peer: drop
		// silently rather than asserting, since in byzantine3pc a DONE node
		// can legitimately keep receiving FAULTY equivocation traffic.
		configs.InfoPrintf("byzantine3pc: DONE participant %s dropped header %q", self.UniqueValue, env.Header)
	}
}

// -- FAULTY --

// faulty implements §4.4's adversary: on any received message it splits
// its remaining neighbors (all but the message's source) in half, signs a
// Commit-headed message to the
// first half and an Abort-headed message to the second half under its own
// key (equivocation, not forgery), and separately replies to the message's
// source with a protocol-conformant response matching the incoming
// header. Per §9's documented source behavior, both halves carry the same
// Decision value (decision_commit) even though their headers disagree.
func faulty(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, env messaging.Envelope) {
	splitEquivocate(self, selfRef, k, env.Source)

	switch env.Header {
	case HeaderPrepare:
		reply := sign(self.UniqueValue, canonPrepared(self.UniqueValue, 1), 1)
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderPrepared, reply, env.Source))
	case HeaderPreCommit:
		reply := sign(self.UniqueValue, canonAck(self.UniqueValue), 0)
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderAck, reply, env.Source))
	case HeaderCommit:
		reply := sign(self.UniqueValue, canonDone(self.UniqueValue), 0)
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderDone, reply, env.Source))
		self.Status = StatusDone
	case HeaderAbort:
		reply := sign(self.UniqueValue, canonAborted(self.UniqueValue), 0)
		k.Send(selfRef, env.Source, messaging.NewEnvelope(HeaderAborted, reply, env.Source))
		self.Status = StatusDone
	case HeaderAborted:
		self.Status = StatusDone
	}
}

func splitEquivocate(self *Node, selfRef messaging.NodeRef, k runtime.Kernel, source messaging.NodeRef) {
	var refs []messaging.NodeRef
	for _, ref := range self.NeighborRefs() {
		if ref != source {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	mid := (len(refs) + 1) / 2
	commitPayload := sign(self.UniqueValue, canonCommit(self.UniqueValue), 1)
	abortPayload := sign(self.UniqueValue, canonAbort(self.UniqueValue), 1)
	for i, ref := range refs {
		if i < mid {
			k.Send(selfRef, ref, messaging.NewEnvelope(HeaderCommit, commitPayload, ref))
		} else {
			k.Send(selfRef, ref, messaging.NewEnvelope(HeaderAbort, abortPayload, ref))
		}
	}
}
