package twophase

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

// S1: 2PC happy path, n=4, coordinator=node 0. Expected: all nodes DONE,
// coordinator decision == "Commit".
func TestHappyPath(t *testing.T) {
	k := runtime.NewCompleteSimKernel(4)
	d := NewDriver(k, k, idsFor(4), 0)
	k.SetHandler(d.Handle)
	d.Start()
	k.Run(1000)

	assert.True(t, d.AllDone(), "every node should reach DONE")
	assert.Equal(t, "Commit", d.CoordinatorDecision())
}

// S2: 2PC ACK loss, n=3. Drop one Ack once; Timeout_Ack fires, Commit is
// retransmitted, the duplicate Ack arrives and termination is still
// reached with decision "Commit".
func TestAckLossRecoversViaTimeout(t *testing.T) {
	k := runtime.NewCompleteSimKernel(3)
	d := NewDriver(k, k, idsFor(3), 0)
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
	k.Run(1000)

	assert.True(t, dropped, "the test should actually have exercised the drop path")
	assert.True(t, d.AllDone())
	assert.Equal(t, "Commit", d.CoordinatorDecision())
}

// Idempotence (§8): re-delivering Commit to a DONE participant re-sends Ack
// and does not change status.
func TestDuplicateCommitInDoneResendsAck(t *testing.T) {
	k := runtime.NewCompleteSimKernel(2)
	d := NewDriver(k, k, idsFor(2), 0)
	k.SetHandler(d.Handle)
	d.Start()
	k.Run(1000)
	assert.True(t, d.AllDone())

	var sent []messaging.Envelope
	k.SetDropRule(func(dst messaging.NodeRef, env messaging.Envelope) bool {
		sent = append(sent, env)
		return false
	})
	k.Send(0, 1, messaging.NewEnvelope(HeaderCommit, nil, 1))
	k.Run(2000)

	assert.Equal(t, StatusDone, d.Node(1).Status)
	foundAck := false
	for _, e := range sent {
		if e.Header == HeaderAck {
			foundAck = true
		}
	}
	assert.True(t, foundAck, "duplicate Commit in DONE must resend Ack")
}
