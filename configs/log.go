// Package configs holds the debug switches, log helpers and invariant
// checks shared by every algorithm package, in the style of the teacher
// project's configs package.
package configs

import (
	"fmt"
	"log"
	"time"

	"github.com/goccy/go-json"
)

// Debugging switches.
var (
	ShowDebugInfo = false
	ShowTestInfo  = false
	LogToFile     = false
)

// Alarm tick constant shared by every timeout/retransmission policy (§5).
const AlarmDelayTicks = 20

func printf(gate bool, format string, a ...interface{}) {
	if !gate {
		return
	}
	line := time.Now().Format("15:04:05.00") + " <---> " + fmt.Sprintf(format, a...)
	if LogToFile {
		log.Print(line)
	} else {
		fmt.Println(line)
	}
}

// DPrintf logs a debug-level message, gated by ShowDebugInfo.
func DPrintf(format string, a ...interface{}) {
	printf(ShowDebugInfo, format, a...)
}

// EventPrintf logs a node-scoped debug message, gated by ShowTestInfo.
// Mirrors the teacher's TxnPrint, scoped by node unique-value instead of
// transaction id.
func EventPrintf(uniqueValue string, format string, a ...interface{}) {
	printf(ShowTestInfo, "node "+uniqueValue+": "+format, a...)
}

// InfoPrintf logs an "unexpected header in state" event (§7 kind 2): dropped
// silently from the protocol's point of view, but worth surfacing when
// debugging.
func InfoPrintf(format string, a ...interface{}) {
	printf(ShowDebugInfo, "[info] "+format, a...)
}

// JToString marshals v for debug dumps.
func JToString(v interface{}) string {
	b, err := json.Marshal(v)
	CheckError(err)
	return string(b)
}
