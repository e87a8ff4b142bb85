package oralmessages

import (
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

// S4: honest commander, one traitor lieutenant equivocating per §4.5.
// Validity requires every honest lieutenant decide the commander's order.
func TestHonestCommanderHonestLieutenantsDecideCommanderOrder(t *testing.T) {
	k := runtime.NewCompleteSimKernel(4)
	traitors := map[messaging.NodeRef]bool{1: true}
	d := NewDriver(k, k, idsFor(4), 0, traitors, 1, Attack)
	k.SetHandler(d.Handle)
	d.Start()
	k.Run(5000)

	assert.True(t, d.AllLieutenantsDecided())
	for ref := messaging.NodeRef(1); ref < 4; ref++ {
		n := d.Node(ref)
		if n.Status == StatusTraitor {
			continue
		}
		assert.Equal(t, StatusAttack, n.Status, "honest lieutenant %d must decide the honest commander's order", ref)
	}
}

// S5: traitor commander. Agreement requires every pair of honest
// lieutenants reach the same final decision even though there is no
// honest order to be faithful to.
func TestTraitorCommanderHonestLieutenantsAgree(t *testing.T) {
	k := runtime.NewCompleteSimKernel(7)
	traitors := map[messaging.NodeRef]bool{0: true, 1: true}
	d := NewDriver(k, k, idsFor(7), 0, traitors, 2, Attack)
	k.SetHandler(d.Handle)
	d.Start()
	k.Run(20000)

	assert.True(t, d.AllLieutenantsDecided())
	var agreed *string
	for ref := messaging.NodeRef(2); ref < 7; ref++ {
		n := d.Node(ref)
		if n.Status == StatusTraitor {
			continue
		}
		if agreed == nil {
			agreed = &n.Status
			continue
		}
		assert.Equal(t, *agreed, n.Status, "every honest lieutenant must agree on the same decision")
	}
}

func TestMajorityTiesBreakTowardRetreat(t *testing.T) {
	assert.Equal(t, Retreat, majority(map[string]int{"a": 1, "b": 0}))
	assert.Equal(t, Attack, majority(map[string]int{"a": 1, "b": 1, "c": 0}))
}

// Two honest lieutenants running the identical honest-commander scenario
// must fold an identical top-level saved_decisions snapshot for the
// commander's path once the traitor's own entry ("B") is left out -- the
// traitor relays a different value to each of them, while every honest
// entry must match. A convergence property beyond just matching final
// status, checked with go-cmp rather than a field-by-field assert.
func TestHonestLieutenantsFoldIdenticalHonestTopLevelVotes(t *testing.T) {
	k := runtime.NewCompleteSimKernel(4)
	traitors := map[messaging.NodeRef]bool{1: true}
	d := NewDriver(k, k, idsFor(4), 0, traitors, 1, Attack)
	k.SetHandler(d.Handle)
	d.Start()
	k.Run(5000)

	honest := func(votes map[string]int) map[string]int {
		out := make(map[string]int, len(votes))
		for id, v := range votes {
			if id != "B" {
				out[id] = v
			}
		}
		return out
	}
	a := honest(d.Node(2).SavedDecisions[pathKey([]string{"A"})].Decisions)
	b := honest(d.Node(3).SavedDecisions[pathKey([]string{"A"})].Decisions)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("honest lieutenants folded different top-level vote sets (-node2 +node3):\n%s", diff)
	}
}

// Running several independent honest-commander scenarios concurrently
// must not race: each scenario owns its own kernel and node maps, so
// concurrent convergence checks only exercise the lack of any shared
// mutable state across scenario instances (§5 "no shared mutable state").
func TestConcurrentScenariosDoNotRace(t *testing.T) {
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			k := runtime.NewCompleteSimKernel(4)
			traitors := map[messaging.NodeRef]bool{1: true}
			d := NewDriver(k, k, idsFor(4), 0, traitors, 1, Attack)
			k.SetHandler(d.Handle)
			d.Start()
			k.Run(5000)
			if !d.AllLieutenantsDecided() {
				t.Errorf("scenario instance failed to converge")
			}
			return nil
		})
	}
	assert.NoError(t, g.Wait())
}
