// Command snmpcli is a minimal demonstration front-end for the
// command-generator core: it resolves a single target from command-line
// flags, issues one Get, Walk or BulkWalk, and prints the result.
//
// It exists to exercise cmdgen/dispatch/target/pdu end to end as a runnable
// program, not as a full-featured SNMP client.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/coriolisnet/snmpgen/cmdgen"
	"github.com/coriolisnet/snmpgen/dispatch"
	"github.com/coriolisnet/snmpgen/pdu"
	"github.com/coriolisnet/snmpgen/target"
)

func main() {
	var (
		addr       = flag.String("target", "", "target address, host:port (required)")
		community  = flag.String("community", "public", "SNMPv1/v2c community string")
		version    = flag.Int("version", 1, "SNMP message processing model: 0 (v1), 1 (v2c)")
		op         = flag.String("op", "get", "operation: get, walk or bulkwalk")
		oids       = flag.String("oids", "", "comma-separated OIDs (get) or single root OID (walk/bulkwalk)")
		timeout    = flag.Duration("timeout", 2*time.Second, "per-attempt response timeout")
		retries    = flag.Int("retries", 2, "retransmissions before giving up")
		maxRepeats = flag.Int("max-repetitions", 10, "max-repetitions for bulkwalk")
	)
	flag.Parse()

	if *addr == "" || *oids == "" {
		fmt.Fprintln(os.Stderr, "usage: snmpcli -target host:port -oids oid[,oid...] [-op get|walk|bulkwalk]")
		os.Exit(2)
	}

	store := target.NewRegistry()
	store.Add(target.Info{
		Name:             "cli-target",
		TransportAddress: *addr,
		TimeoutCentisec:  int(timeout.Milliseconds() / 10),
		RetryLimit:       *retries,
		MPModel:          *version,
		SecurityModel:    *version + 1, // community-based: 1 for v1, 2 for v2c
		SecurityName:     *community,
	})

	disp, err := dispatch.NewUDPDispatcher(dispatch.DefaultHooks)
	if err != nil {
		fatal(err)
	}
	defer disp.Close()

	done := make(chan struct{})

	switch *op {
	case "get":
		runGet(disp, store, strings.Split(*oids, ","), done)
	case "walk":
		runWalk(disp, store, []string{*oids}, done)
	case "bulkwalk":
		runBulkWalk(disp, store, []string{*oids}, *maxRepeats, done)
	default:
		fatal(fmt.Errorf("unknown operation %q", *op))
	}

	<-done
}

func runGet(disp dispatch.Dispatcher, store target.Store, oids []string, done chan struct{}) {
	g := cmdgen.NewGetDriver(disp, store, cmdgen.WithHooks(cmdgen.DefaultHooks))
	_, err := g.SendReq("cli-target", oids, func(_ int32, errInd error, errStatus, errIdx int, varBinds []pdu.Varbind, _ interface{}) {
		defer close(done)
		if errInd != nil {
			fatal(errInd)
		}
		if errStatus != 0 {
			fmt.Printf("error-status %d at index %d\n", errStatus, errIdx)
			return
		}
		printVarBinds(varBinds)
	}, nil, nil, "")
	if err != nil {
		fatal(err)
	}
}

func runWalk(disp dispatch.Dispatcher, store target.Store, columns []string, done chan struct{}) {
	w := cmdgen.NewWalkDriver(disp, store, cmdgen.WithHooks(cmdgen.DefaultHooks))
	_, err := w.SendReq("cli-target", columns, func(_ int32, errInd error, errStatus, errIdx int, varBinds []pdu.Varbind, _ interface{}) bool {
		if errInd != nil {
			fatal(errInd) // exits the process; done is never reached.
		}
		printVarBinds(varBinds)
		if len(varBinds) == 0 || varBinds[len(varBinds)-1].Value.IsEndOfMib() ||
			!pdu.IsDescendantOf(varBinds[len(varBinds)-1].OID, columns[0]) {
			close(done)
		}
		return true
	}, nil, nil, "")
	if err != nil {
		fatal(err)
	}
}

func runBulkWalk(disp dispatch.Dispatcher, store target.Store, columns []string, maxReps int, done chan struct{}) {
	b := cmdgen.NewBulkWalkDriver(disp, store, cmdgen.WithHooks(cmdgen.DefaultHooks))
	_, err := b.SendReq("cli-target", 0, maxReps, columns, func(_ int32, errInd error, errStatus, errIdx int, varBinds []pdu.Varbind, _ interface{}) bool {
		if errInd != nil {
			fatal(errInd) // exits the process; done is never reached.
		}
		printVarBinds(varBinds)
		if len(varBinds) == 0 {
			close(done)
		}
		return true
	}, nil, nil, "")
	if err != nil {
		fatal(err)
	}
}

func printVarBinds(varBinds []pdu.Varbind) {
	for _, vb := range varBinds {
		fmt.Printf("%s = %s\n", vb.OID.String(), vb.Value.String())
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "snmpcli:", err)
	os.Exit(1)
}
