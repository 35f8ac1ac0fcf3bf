// Command mcx is the Meta-Concord governance CLI. Every subcommand maps
// 1:1 to an engine method and prints the legitimacy/reason result as JSON.
// The engine instance is explicit and passed to command handlers; there is
// no process-wide implicit state.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/topstolenname/metaconcord/pkg/config"
	"github.com/topstolenname/metaconcord/pkg/governance"
)

func main() {
	cfg := config.Load()
	engine, err := governance.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	os.Exit(Run(engine, os.Args, os.Stdout, os.Stderr))
}

// Run dispatches a command against an explicit engine instance.
//
// Exit codes:
//
//	0 = operation legitimate
//	1 = operation completed but not legitimate
//	2 = usage or runtime error
func Run(e *governance.Engine, args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "init":
		return runInit(e, stdout)
	case "party":
		if len(args) < 3 {
			_, _ = fmt.Fprintln(stderr, "Usage: mcx party <add|remove|list>")
			return 2
		}
		return runParty(e, args[2], args[3:], stdout, stderr)
	case "propose":
		return runPropose(e, args[2:], stdout, stderr)
	case "vote":
		return runVote(e, args[2:], stdout, stderr)
	case "object":
		return runObject(e, args[2:], stdout, stderr)
	case "resolve-objection":
		return runResolveObjection(e, args[2:], stdout, stderr)
	case "appeal":
		return runAppeal(e, args[2:], stdout, stderr)
	case "resolve-appeal":
		return runResolveAppeal(e, args[2:], stdout, stderr)
	case "evaluate":
		return runEvaluate(e, args[2:], stdout, stderr)
	case "execute":
		return runExecute(e, args[2:], stdout, stderr)
	case "audit":
		if len(args) < 3 {
			_, _ = fmt.Fprintln(stderr, "Usage: mcx audit <verify|summary>")
			return 2
		}
		return runAudit(e, args[2], args[3:], stdout, stderr)
	case "emergency":
		if len(args) < 3 {
			_, _ = fmt.Fprintln(stderr, "Usage: mcx emergency <enter|renew|exit|status>")
			return 2
		}
		return runEmergency(e, args[2], args[3:], stdout, stderr)
	case "status":
		return runStatus(e, args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "mcx — Meta-Concord governance engine")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  mcx init                                  report engine state")
	fmt.Fprintln(w, "  mcx party add --id ID --class H|A|I       register a party")
	fmt.Fprintln(w, "  mcx party remove --id ID                  remove a party")
	fmt.Fprintln(w, "  mcx party list                            list parties")
	fmt.Fprintln(w, "  mcx propose --class D0..D4 --proposer ID  propose a decision")
	fmt.Fprintln(w, "  mcx vote --decision ID --party ID --vote approve|deny")
	fmt.Fprintln(w, "  mcx object --decision ID --party ID --basis B [--veto --category C]")
	fmt.Fprintln(w, "  mcx resolve-objection --objection ID [--sustained] [--note N]")
	fmt.Fprintln(w, "  mcx appeal --decision ID --party ID --grounds G")
	fmt.Fprintln(w, "  mcx resolve-appeal --appeal ID [--sustained] [--note N]")
	fmt.Fprintln(w, "  mcx evaluate --decision ID                recompute proofs and finalize")
	fmt.Fprintln(w, "  mcx execute --decision ID                 execute an approved decision")
	fmt.Fprintln(w, "  mcx audit verify [--decision ID]          check the hash chain")
	fmt.Fprintln(w, "  mcx audit summary [--max N]               bounded log summary")
	fmt.Fprintln(w, "  mcx emergency enter|renew|exit|status")
	fmt.Fprintln(w, "  mcx status [--decision ID]                decision or engine status")
}
