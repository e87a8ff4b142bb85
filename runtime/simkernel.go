package runtime

import (
	"errors"
	"math/rand"
	"sort"

	set "github.com/deckarep/golang-set"
	"github.com/viney-shih/go-lock"

	"github.com/oltpfc/distcore/configs"
	"github.com/oltpfc/distcore/messaging"
)

// pendingEvent is one scheduled delivery: a message destined for dst,
// to be delivered once the kernel's logical clock reaches tick. seq breaks
// ties between events scheduled for the same tick in FIFO order, giving a
// deterministic (if not FIFO-across-nodes, per §5) replay for a fixed seed.
type pendingEvent struct {
	tick int
	seq  int
	dst  messaging.NodeRef
	env  messaging.Envelope
}

// DropRule lets a test simulate message loss (S2/S3: "drop one Ack"). It is
// consulted on delivery, not on send, matching the spec's framing of loss
// as something that happens to a message in flight.
type DropRule func(dst messaging.NodeRef, env messaging.Envelope) bool

// SimKernel is a deterministic, single-threaded discrete-event simulator
// implementing Kernel and Network. It owns no algorithm state: it only
// stores topology and the event queue, and hands each due event to the
// registered EventHandler, one at a time, run to completion (§5).
type SimKernel struct {
	latch lock.Mutex

	nodes     []messaging.NodeRef
	adjacency map[messaging.NodeRef][]messaging.NodeRef

	clock   int
	seq     int
	queue   []pendingEvent
	handler EventHandler
	drop    DropRule

	delivered int
}

// NewSimKernel builds a kernel over n nodes (refs 0..n-1) connected by a
// random connected bidirectional graph: a ring (guaranteeing connectivity)
// plus extraEdges additional random bidirectional links, seeded for
// reproducibility (§9 "Randomization").
func NewSimKernel(n int, extraEdges int, seed int64) *SimKernel {
	rng := rand.New(rand.NewSource(seed))
	k := &SimKernel{
		latch:     lock.NewCASMutex(),
		nodes:     make([]messaging.NodeRef, n),
		adjacency: make(map[messaging.NodeRef][]messaging.NodeRef, n),
	}
	for i := 0; i < n; i++ {
		k.nodes[i] = messaging.NodeRef(i)
	}
	link := func(a, b messaging.NodeRef) {
		if a == b {
			return
		}
		for _, x := range k.adjacency[a] {
			if x == b {
				return
			}
		}
		k.adjacency[a] = append(k.adjacency[a], b)
		k.adjacency[b] = append(k.adjacency[b], a)
	}
	for i := 0; i < n; i++ {
		link(messaging.NodeRef(i), messaging.NodeRef((i+1)%n))
	}
	for e := 0; e < extraEdges; e++ {
		a := messaging.NodeRef(rng.Intn(n))
		b := messaging.NodeRef(rng.Intn(n))
		link(a, b)
	}
	return k
}

// NewCompleteSimKernel builds a kernel over n nodes connected by a complete
// bidirectional graph. Every algorithm in this module (§4) assumes each
// node can reach every other node directly — the coordinator addresses
// "all neighbors" meaning all participants, and the Oral-Messages
// commander/lieutenants must each be able to relay directly to every other
// lieutenant — so tests build their topology with this constructor rather
// than the general random-graph one.
func NewCompleteSimKernel(n int) *SimKernel {
	k := &SimKernel{
		latch:     lock.NewCASMutex(),
		nodes:     make([]messaging.NodeRef, n),
		adjacency: make(map[messaging.NodeRef][]messaging.NodeRef, n),
	}
	for i := 0; i < n; i++ {
		k.nodes[i] = messaging.NodeRef(i)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			k.adjacency[messaging.NodeRef(i)] = append(k.adjacency[messaging.NodeRef(i)], messaging.NodeRef(j))
		}
	}
	return k
}

// PickCoordinator resolves §6's "coordinatorID: 0 means pick randomly" by
// drawing one of net's nodes with the same seeded RNG used for topology
// generation, so a scenario run is fully reproducible end to end.
func PickCoordinator(net Network, seed int64) messaging.NodeRef {
	rng := rand.New(rand.NewSource(seed))
	nodes := net.Nodes()
	return nodes[rng.Intn(len(nodes))]
}

// SetHandler registers the algorithm driver's dispatch entry point.
func (k *SimKernel) SetHandler(h EventHandler) { k.handler = h }

// SetDropRule installs a DropRule used by tests to model message loss.
func (k *SimKernel) SetDropRule(d DropRule) { k.drop = d }

// Nodes implements Network.
func (k *SimKernel) Nodes() []messaging.NodeRef { return append([]messaging.NodeRef(nil), k.nodes...) }

// Neighbors implements Network.
func (k *SimKernel) Neighbors(self messaging.NodeRef) []messaging.NodeRef {
	return append([]messaging.NodeRef(nil), k.adjacency[self]...)
}

// ApplyRestrictions checks BidirectionalLinks and Connectivity over the
// topology, and that it is not empty (§6: apply_restrictions()).
// InitialDistinctValues is not checked: the kernel holds only NodeRefs, not
// the algorithms' unique values. TotalReliability is not checked either: it
// depends on whether a DropRule is installed.
func (k *SimKernel) ApplyRestrictions() error {
	for a, peers := range k.adjacency {
		for _, b := range peers {
			found := false
			for _, back := range k.adjacency[b] {
				if back == a {
					found = true
					break
				}
			}
			if !found {
				return errors.New("simkernel: link is not bidirectional")
			}
		}
	}
	if len(k.nodes) == 0 {
		return errors.New("simkernel: empty topology")
	}
	seen := set.NewSet()
	frontier := []messaging.NodeRef{k.nodes[0]}
	seen.Add(k.nodes[0])
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		for _, nb := range k.adjacency[cur] {
			if !seen.Contains(nb) {
				seen.Add(nb)
				frontier = append(frontier, nb)
			}
		}
	}
	if seen.Cardinality() != len(k.nodes) {
		return errors.New("simkernel: topology is not connected")
	}
	return nil
}

// Send implements Kernel: the message is scheduled for delivery one tick
// from now, modeling a minimal one-hop delay, with Source stamped to src
// (§3: "The runtime stamps source on delivery").
func (k *SimKernel) Send(src messaging.NodeRef, dst messaging.NodeRef, env messaging.Envelope) {
	env.Source = src
	k.schedule(dst, env, k.clock+1)
}

// SetAlarm implements Kernel. Alarm delay is AlarmDelayTicks in every
// algorithm here (§5), but the caller supplies ticks explicitly so a test
// can use a shorter delay to keep scenarios fast. Source is stamped to dst:
// an alarm is a self-delivered message.
func (k *SimKernel) SetAlarm(dst messaging.NodeRef, ticks int, env messaging.Envelope) {
	env.Source = dst
	k.schedule(dst, env, k.clock+ticks)
}

// PushToInbox implements Kernel: used at initialization to deliver the
// meta_header=INI self-message that fires the spontaneous-start handler,
// bypassing the simulated one-hop delay of Send.
func (k *SimKernel) PushToInbox(dst messaging.NodeRef, env messaging.Envelope) {
	env.Source = dst
	k.schedule(dst, env, k.clock)
}

// traceWire round-trips env through its wire format (goccy/go-json under
// messaging.Marshal/Unmarshal) purely for the debug trace: the decoded copy
// is logged, never delivered, so a handler's type assertion on env.Data
// (which Unmarshal would otherwise turn into a bare map) is never affected.
func traceWire(dst messaging.NodeRef, env messaging.Envelope) {
	wire := messaging.Marshal(env)
	decoded := messaging.Unmarshal(wire)
	configs.DPrintf("simkernel: scheduling %q (%d bytes) for node %d", decoded.Header, len(wire), dst)
}

func (k *SimKernel) schedule(dst messaging.NodeRef, env messaging.Envelope, tick int) {
	traceWire(dst, env)
	k.latch.Lock()
	defer k.latch.Unlock()
	k.seq++
	k.queue = append(k.queue, pendingEvent{tick: tick, seq: k.seq, dst: dst, env: env})
}

// Run drains the event queue in (tick, seq) order until empty or until
// maxTicks is exceeded (a guard against a buggy handler that never
// terminates). It returns the number of events delivered.
func (k *SimKernel) Run(maxTicks int) int {
	configsAssertHandler(k.handler)
	for len(k.queue) > 0 && k.clock <= maxTicks {
		sort.SliceStable(k.queue, func(i, j int) bool {
			if k.queue[i].tick != k.queue[j].tick {
				return k.queue[i].tick < k.queue[j].tick
			}
			return k.queue[i].seq < k.queue[j].seq
		})
		next := k.queue[0]
		k.queue = k.queue[1:]
		k.clock = next.tick
		if k.drop != nil && k.drop(next.dst, next.env) {
			continue
		}
		k.handler(next.dst, next.env)
		k.delivered++
	}
	return k.delivered
}

func configsAssertHandler(h EventHandler) {
	if h == nil {
		panic("simkernel: Run called with no handler registered")
	}
}
