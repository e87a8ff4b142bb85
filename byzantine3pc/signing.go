package byzantine3pc

import (
	"strconv"

	"github.com/oltpfc/distcore/messaging"
)

// Canonical strings signed for each phase message (§4.4). <coord-id> and
// <pid> are unique_value identities, not NodeRefs: the signature binds a
// claimed application identity, not a transport address.
func canonPrepare(coordID string) string      { return "prepare:" + coordID }
func canonPrepared(pid string, d int) string  { return "prepared:" + pid + ":" + strconv.Itoa(d) }
func canonPreCommit(coordID string) string    { return "precommit:" + coordID }
func canonAck(pid string) string              { return "ack:" + pid }
func canonCommit(coordID string) string       { return "commit:" + coordID }
func canonDone(pid string) string             { return "done:" + pid }
func canonAbort(coordID string) string        { return "abort:" + coordID }
func canonAborted(pid string) string          { return "aborted:" + pid }

// sign produces a Signed payload for one of the canonical strings above,
// claiming selfID as the sender.
func sign(selfID, canonical string, decision int) Signed {
	return Signed{
		SenderID:  selfID,
		Decision:  decision,
		Signature: messaging.Sign(canonical, messaging.PrivateKey(selfID)),
	}
}

// verify checks that s.Signature is valid for canonical(s.SenderID) and,
// when expectedID is non-empty, that s.SenderID matches it. A message that
// fails either check is forged or mis-attributed and must be dropped
// silently (§7 kind 3) rather than acted on: this is what lets an honest
// node tell a coordinator's genuine Commit/Abort apart from the same
// header equivocated in by a FAULTY peer. The FAULTY peer claims its *own*
// id and signs under its own key, so the signature check passes and the
// SenderID check alone is what rejects it.
func verify(canonical string, s Signed, expectedID string) bool {
	if !messaging.Verify(canonical, s.Signature, s.SenderID) {
		return false
	}
	if expectedID != "" && s.SenderID != expectedID {
		return false
	}
	return true
}
