package threephase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oltpfc/distcore/messaging"
	"github.com/oltpfc/distcore/runtime"
)

func idsFor(n int) map[messaging.NodeRef]string {
	ids := make(map[messaging.NodeRef]string, n)
	for i := 0; i < n; i++ {
		ids[messaging.NodeRef(i)] = string(rune('A' + i))
	}
	return ids
}

func TestHappyPath(t *testing.T) {
	k := runtime.NewCompleteSimKernel(4)
	d := NewDriver(k, k, idsFor(4), 0)
	k.SetHandler(d.Handle)
	d.Start()
	k.Run(2000)

	assert.True(t, d.AllDone())
	assert.Equal(t, "Commit", d.CoordinatorDecision())
	for ref := messaging.NodeRef(1); ref < 4; ref++ {
		assert.Equal(t, StatusDone, d.Node(ref).Status)
	}
}

// S3: 3PC abort on missing ACK. n=4, drop one Ack from a participant.
// Timeout_Ack transitions the coordinator to ABORTING; all honest
// participants deliver Aborted; coordinator reaches DONE with no
// participant having committed.
func TestAbortOnMissingAck(t *testing.T) {
	k := runtime.NewCompleteSimKernel(4)
	d := NewDriver(k, k, idsFor(4), 0)
	k.SetHandler(d.Handle)

	dropped := false
	k.SetDropRule(func(dst messaging.NodeRef, env messaging.Envelope) bool {
		if !dropped && env.Header == HeaderAck && dst == 0 {
			dropped = true
			return true
		}
		return false
	})

	d.Start()
	k.Run(2000)

	assert.True(t, dropped)
	assert.True(t, d.AllDone())
	assert.Equal(t, "Abort", d.CoordinatorDecision())
	for ref := messaging.NodeRef(1); ref < 4; ref++ {
		assert.False(t, d.ParticipantCommitted(ref), "no participant should have committed")
		assert.Equal(t, StatusDone, d.Node(ref).Status)
	}
}

// Idempotence + §4.3's documented DONE exception: a duplicate Commit to an
// already-DONE participant resends Ack, not Done, and leaves status
// unchanged.
func TestDuplicateCommitInDoneResendsAck(t *testing.T) {
	k := runtime.NewCompleteSimKernel(2)
	d := NewDriver(k, k, idsFor(2), 0)
	k.SetHandler(d.Handle)
	d.Start()
	k.Run(2000)
	assert.True(t, d.AllDone())

	var sent []messaging.Envelope
	k.SetDropRule(func(dst messaging.NodeRef, env messaging.Envelope) bool {
		sent = append(sent, env)
		return false
	})
	k.Send(0, 1, messaging.NewEnvelope(HeaderCommit, nil, 1))
	k.Run(3000)

	assert.Equal(t, StatusDone, d.Node(1).Status)
	foundAck, foundDone := false, false
	for _, e := range sent {
		switch e.Header {
		case HeaderAck:
			foundAck = true
		case HeaderDone:
			foundDone = true
		}
	}
	assert.True(t, foundAck, "duplicate Commit in DONE must resend Ack")
	assert.False(t, foundDone, "duplicate Commit in DONE must not resend Done")
}
