// Package config loads scenario parameters for cmd/distcore-sim from a
// .properties file, in the style of the teacher's configs package (which
// reads workload parameters from its own config file) but built on
// github.com/magiconair/properties rather than a hand-rolled JSON reader.
package config

import (
	"fmt"

	"github.com/magiconair/properties"

	"github.com/oltpfc/distcore/configs"
)

// Params is the full set of scenario parameters spanning every algorithm
// (§6 "Configuration parameters (per algorithm)"): N sizes every scenario,
// M feeds Oral-Messages and Byzantine-3PC, Decision feeds Oral-Messages,
// CoordinatorID picks the coordinator/commander in every scenario (empty
// means pick randomly), Seed drives the topology RNG, the random
// coordinator pick and the TRAITOR/FAULTY shuffle, and Scenario picks
// which algorithm cmd/distcore-sim runs.
type Params struct {
	Scenario      string
	N             int
	M             int
	Decision      int
	CoordinatorID string
	Seed          int64
	MaxTicks      int
}

// Defaults mirror the seed scenarios' smallest configuration (§8 S1).
func Defaults() Params {
	return Params{
		Scenario: configs.TwoPC,
		N:        4,
		M:        0,
		Decision: 1,
		Seed:     1,
		MaxTicks: 5000,
	}
}

// Load reads a .properties file and overlays it onto Defaults(). Missing
// keys, and numeric values that do not parse, keep their default; only a
// file that cannot be loaded is returned as an error.
func Load(path string) (Params, error) {
	p := Defaults()
	props, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return p, fmt.Errorf("config: loading %s: %w", path, err)
	}

	p.Scenario = props.GetString("scenario", p.Scenario)
	p.N = props.GetInt("n", p.N)
	p.M = props.GetInt("m", p.M)
	p.Decision = props.GetInt("decision", p.Decision)
	p.CoordinatorID = props.GetString("coordinatorID", p.CoordinatorID)
	p.Seed = props.GetInt64("seed", p.Seed)
	p.MaxTicks = props.GetInt("maxTicks", p.MaxTicks)
	return p, nil
}
