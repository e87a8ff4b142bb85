// Command distcore-sim drives one end-to-end scenario through
// runtime/simkernel and prints the outcome, the way the teacher's own
// benchmark/ commands drive a protocol run against an in-process harness
// instead of a live cluster.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/oltpfc/distcore/byzantine3pc"
	"github.com/oltpfc/distcore/config"
	"github.com/oltpfc/distcore/configs"
	"github.com/oltpfc/distcore/messaging"
	"github.com/oltpfc/distcore/oralmessages"
	"github.com/oltpfc/distcore/runtime"
	"github.com/oltpfc/distcore/threephase"
	"github.com/oltpfc/distcore/twophase"
)

func main() {
	path := flag.String("config", "", "path to a .properties scenario file")
	flag.Parse()

	params := config.Defaults()
	if *path != "" {
		loaded, err := config.Load(*path)
		configs.CheckError(err)
		params = loaded
	}

	ids := idsFor(params.N)

	switch params.Scenario {
	case configs.TwoPC:
		runTwoPC(params, ids)
	case configs.ThreePC:
		runThreePC(params, ids)
	case configs.Byzantine3PC:
		runByzantine3PC(params, ids)
	case configs.OralMessages:
		runOralMessages(params, ids)
	default:
		fmt.Fprintf(os.Stderr, "distcore-sim: unknown scenario %q\n", params.Scenario)
		os.Exit(1)
	}
}

func idsFor(n int) map[messaging.NodeRef]string {
	ids := make(map[messaging.NodeRef]string, n)
	for i := 0; i < n; i++ {
		ids[messaging.NodeRef(i)] = string(rune('A' + i))
	}
	return ids
}

// pickCoordinator resolves config.Params.CoordinatorID (§6: "0 means pick
// randomly") to a NodeRef against a concrete topology: an empty
// CoordinatorID draws one of net's nodes with the scenario's own seed, so
// the whole run -- topology and coordinator choice alike -- is
// reproducible from (seed, n) alone.
func pickCoordinator(p config.Params, net runtime.Network, ids map[messaging.NodeRef]string) messaging.NodeRef {
	if p.CoordinatorID == "" {
		return runtime.PickCoordinator(net, p.Seed)
	}
	for ref, id := range ids {
		if id == p.CoordinatorID {
			return ref
		}
	}
	return 0
}

func runTwoPC(p config.Params, ids map[messaging.NodeRef]string) {
	k := runtime.NewSimKernel(p.N, p.N, p.Seed)
	configs.CheckError(k.ApplyRestrictions())
	coordinator := pickCoordinator(p, k, ids)
	d := twophase.NewDriver(k, k, ids, coordinator)
	k.SetHandler(d.Handle)
	d.Start()
	delivered := k.Run(p.MaxTicks)
	fmt.Printf("2PC: delivered=%d allDone=%v decision=%s\n", delivered, d.AllDone(), d.CoordinatorDecision())
}

func runThreePC(p config.Params, ids map[messaging.NodeRef]string) {
	k := runtime.NewSimKernel(p.N, p.N, p.Seed)
	configs.CheckError(k.ApplyRestrictions())
	coordinator := pickCoordinator(p, k, ids)
	d := threephase.NewDriver(k, k, ids, coordinator)
	k.SetHandler(d.Handle)
	d.Start()
	delivered := k.Run(p.MaxTicks)
	fmt.Printf("3PC: delivered=%d allDone=%v decision=%s\n", delivered, d.AllDone(), d.CoordinatorDecision())
}

// pickRoles shuffles net's nodes (excluding exclude) with the scenario's own
// seed and returns the first m of them, matching the "initialization
// shuffles the node list to assign TRAITOR/FAULTY roles" design note rather
// than always picking the lowest-numbered candidates.
func pickRoles(p config.Params, net runtime.Network, exclude messaging.NodeRef, m int) map[messaging.NodeRef]bool {
	rng := rand.New(rand.NewSource(p.Seed))
	candidates := make([]messaging.NodeRef, 0, p.N-1)
	for _, ref := range net.Nodes() {
		if ref != exclude {
			candidates = append(candidates, ref)
		}
	}
	rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	roles := make(map[messaging.NodeRef]bool, m)
	for i := 0; i < m && i < len(candidates); i++ {
		roles[candidates[i]] = true
	}
	return roles
}

func runByzantine3PC(p config.Params, ids map[messaging.NodeRef]string) {
	k := runtime.NewCompleteSimKernel(p.N)
	coordinator := pickCoordinator(p, k, ids)
	faulty := pickRoles(p, k, coordinator, p.M)
	d := byzantine3pc.NewDriver(k, k, ids, coordinator, faulty)
	k.SetHandler(d.Handle)
	d.Start()
	delivered := k.Run(p.MaxTicks)
	fmt.Printf("Byzantine-3PC: delivered=%d allHonestDone=%v decision=%s\n", delivered, d.AllHonestDone(), d.CoordinatorDecision())
}

func runOralMessages(p config.Params, ids map[messaging.NodeRef]string) {
	k := runtime.NewCompleteSimKernel(p.N)
	commander := pickCoordinator(p, k, ids)
	traitors := pickRoles(p, k, commander, p.M)
	d := oralmessages.NewDriver(k, k, ids, commander, traitors, p.M, p.Decision)
	k.SetHandler(d.Handle)
	d.Start()
	delivered := k.Run(p.MaxTicks)
	fmt.Printf("Oral-Messages: delivered=%d allLieutenantsDecided=%v\n", delivered, d.AllLieutenantsDecided())
}
