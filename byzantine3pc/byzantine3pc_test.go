package byzantine3pc

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"

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

func TestHappyPathNoFaulty(t *testing.T) {
	k := runtime.NewCompleteSimKernel(4)
	d := NewDriver(k, k, idsFor(4), 0, nil)
	k.SetHandler(d.Handle)
	d.Start()
	k.Run(2000)

	assert.True(t, d.AllHonestDone())
	assert.Equal(t, "Commit", d.CoordinatorDecision())
	for ref := messaging.NodeRef(1); ref < 4; ref++ {
		assert.True(t, d.ParticipantCommitted(ref))
	}
}

// One FAULTY node equivocates Commit to half its neighbors and Abort
// to the other half, under its own valid signature. Honest nodes still
// reach a single, consistent decision because they only accept
// Commit/Abort/Prepare/PreCommit claiming the real coordinator's id (§4.4):
// the FAULTY node's own phase votes are honest enough to not block quorum,
// but its side-channel equivocation traffic must be silently dropped by
// every honest peer.
func TestFaultyEquivocationCannotSplitHonestNodes(t *testing.T) {
	k := runtime.NewCompleteSimKernel(5)
	faulty := map[messaging.NodeRef]bool{4: true}
	d := NewDriver(k, k, idsFor(5), 0, faulty)
	k.SetHandler(d.Handle)
	d.Start()
	k.Run(4000)

	assert.True(t, d.AllHonestDone())
	assert.Equal(t, "Commit", d.CoordinatorDecision())
	for ref := messaging.NodeRef(1); ref < 4; ref++ {
		assert.True(t, d.ParticipantCommitted(ref), "honest participant %d must have committed despite equivocation", ref)
	}
}

// A forged signature -- claiming to be the coordinator while signed under
// a different node's key -- must fail verification.
func TestForgedSignatureRejected(t *testing.T) {
	coordID := "A"
	attackerID := "Z"
	forged := Signed{
		SenderID:  coordID,
		Decision:  1,
		Signature: messaging.Sign(canonCommit(coordID), messaging.PrivateKey(attackerID)),
	}
	assert.False(t, verify(canonCommit(coordID), forged, coordID))

	genuine := sign(coordID, canonCommit(coordID), 1)
	assert.True(t, verify(canonCommit(coordID), genuine, coordID))
}

// A properly self-signed message whose claimed identity does not match
// the expected coordinator is rejected by the expectedID check even
// though its signature is perfectly valid (this is exactly how an honest
// participant rejects a FAULTY peer's equivocated Commit/Abort).
func TestValidSignatureWrongClaimedIdentityRejected(t *testing.T) {
	faultyID := "E"
	coordID := "A"
	msg := sign(faultyID, canonCommit(faultyID), 1)
	assert.True(t, verify(canonCommit(faultyID), msg, ""))
	assert.False(t, verify(canonCommit(faultyID), msg, coordID))
}

// The coordinator's PrepareVotes/AckVotes must settle on exactly the set of
// honest participant ids -- no more (a forged vote sneaking in) and no
// fewer (a vote lost to a verification bug) -- so this compares the full id
// set rather than just its length.
func TestCoordinatorCollectsExactVoteSet(t *testing.T) {
	k := runtime.NewCompleteSimKernel(4)
	d := NewDriver(k, k, idsFor(4), 0, nil)
	k.SetHandler(d.Handle)
	d.Start()
	k.Run(2000)

	coord := d.Node(0)
	want := []string{"B", "C", "D"}

	gotPrepared := voteIDs(coord.PrepareVotes)
	if diff := cmp.Diff(want, gotPrepared); diff != "" {
		t.Errorf("coordinator's PrepareVotes id set differs from expected (-want +got):\n%s", diff)
	}

	gotAck := voteIDs(coord.AckVotes)
	if diff := cmp.Diff(want, gotAck); diff != "" {
		t.Errorf("coordinator's AckVotes id set differs from expected (-want +got):\n%s", diff)
	}
}

func voteIDs(votes map[string]Signed) []string {
	ids := make([]string, 0, len(votes))
	for id := range votes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Several independent equivocation scenarios run concurrently must not
// share any mutable state: each owns its own kernel and node maps, so this
// only exercises that independence (mirrors oralmessages' equivalent test).
func TestConcurrentScenariosDoNotRace(t *testing.T) {
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			k := runtime.NewCompleteSimKernel(5)
			faulty := map[messaging.NodeRef]bool{4: true}
			d := NewDriver(k, k, idsFor(5), 0, faulty)
			k.SetHandler(d.Handle)
			d.Start()
			k.Run(4000)
			if !d.AllHonestDone() {
				t.Errorf("scenario instance failed to converge")
			}
			return nil
		})
	}
	assert.NoError(t, g.Wait())
}
