package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/topstolenname/metaconcord/pkg/contracts"
	"github.com/topstolenname/metaconcord/pkg/governance"
)

// printResult writes a Result as indented JSON and converts legitimacy to
// an exit code.
func printResult(w io.Writer, res contracts.Result) int {
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "{\"legitimate\":false,\"reason\":%q}\n", err.Error())
		return 2
	}
	fmt.Fprintln(w, string(out))
	if res.Legitimate {
		return 0
	}
	return 1
}

func printJSON(w io.Writer, v any) int {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return 2
	}
	fmt.Fprintln(w, string(out))
	return 0
}

func runInit(e *governance.Engine, stdout io.Writer) int {
	return printResult(stdout, contracts.Legit("engine initialized").
		WithData("schema_version", contracts.SchemaVersion).
		WithData("audit_entries", e.AuditLog().Length()))
}

func runParty(e *governance.Engine, sub string, args []string, stdout, stderr io.Writer) int {
	switch sub {
	case "add":
		cmd := flag.NewFlagSet("party add", flag.ContinueOnError)
		cmd.SetOutput(stderr)
		id := cmd.String("id", "", "party identifier (REQUIRED)")
		class := cmd.String("class", "", "party class: H, A or I (REQUIRED)")
		scope := cmd.String("scope", "", "representation scope")
		conflicts := cmd.String("conflicts", "", "comma-separated declared conflicts")
		if err := cmd.Parse(args); err != nil {
			return 2
		}
		if *id == "" || *class == "" {
			_, _ = fmt.Fprintln(stderr, "Error: --id and --class are required")
			return 2
		}
		pc, err := contracts.ParsePartyClass(*class)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		return printResult(stdout, e.RegisterParty(*id, pc, *scope, splitList(*conflicts)))
	case "remove":
		cmd := flag.NewFlagSet("party remove", flag.ContinueOnError)
		cmd.SetOutput(stderr)
		id := cmd.String("id", "", "party identifier (REQUIRED)")
		if err := cmd.Parse(args); err != nil {
			return 2
		}
		if *id == "" {
			_, _ = fmt.Fprintln(stderr, "Error: --id is required")
			return 2
		}
		return printResult(stdout, e.RemoveParty(*id))
	case "list":
		return printJSON(stdout, e.ListParties())
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown party subcommand: %s\n", sub)
		return 2
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func runPropose(e *governance.Engine, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("propose", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	class := cmd.String("class", "", "decision class D0..D4 (REQUIRED)")
	proposer := cmd.String("proposer", "", "proposing party id (REQUIRED)")
	rationale := cmd.String("rationale", "", "proposal rationale")
	impact := cmd.String("impact", "", "impact statement")
	irreversible := cmd.Bool("irreversible", false, "execution implies an irreversible action")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *class == "" || *proposer == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --class and --proposer are required")
		return 2
	}
	dc, err := contracts.ParseDecisionClass(*class)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return printResult(stdout, e.ProposeDecision(governance.ProposalInput{
		Class:           dc,
		Proposer:        *proposer,
		Rationale:       *rationale,
		ImpactStatement: *impact,
		Irreversible:    *irreversible,
	}))
}

func runVote(e *governance.Engine, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("vote", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	decisionID := cmd.String("decision", "", "decision id (REQUIRED)")
	party := cmd.String("party", "", "voting party id (REQUIRED)")
	vote := cmd.String("vote", "", "approve or deny (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *decisionID == "" || *party == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --decision and --party are required")
		return 2
	}
	var approve bool
	switch *vote {
	case "approve":
		approve = true
	case "deny":
		approve = false
	default:
		_, _ = fmt.Fprintf(stderr, "Error: --vote must be approve or deny, got %q\n", *vote)
		return 2
	}
	return printResult(stdout, e.CastVote(*decisionID, *party, approve))
}

func runObject(e *governance.Engine, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("object", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	decisionID := cmd.String("decision", "", "decision id (REQUIRED)")
	party := cmd.String("party", "", "objecting party id (REQUIRED)")
	basis := cmd.String("basis", "", "objection basis (REQUIRED)")
	veto := cmd.Bool("veto", false, "file as a veto")
	category := cmd.String("category", "", "veto category (required with --veto)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *decisionID == "" || *party == "" || *basis == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --decision, --party and --basis are required")
		return 2
	}
	return printResult(stdout, e.FileObjection(*decisionID, *party,
		contracts.ObjectionBasis(*basis), *veto, contracts.VetoCategory(*category)))
}

func runResolveObjection(e *governance.Engine, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("resolve-objection", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	objectionID := cmd.String("objection", "", "objection id (REQUIRED)")
	sustained := cmd.Bool("sustained", false, "sustain the objection")
	note := cmd.String("note", "", "resolution note")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *objectionID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --objection is required")
		return 2
	}
	return printResult(stdout, e.ResolveObjection(*objectionID, *sustained, *note))
}

func runResolveAppeal(e *governance.Engine, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("resolve-appeal", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	appealID := cmd.String("appeal", "", "appeal id (REQUIRED)")
	sustained := cmd.Bool("sustained", false, "sustain the appeal")
	note := cmd.String("note", "", "resolution note")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *appealID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --appeal is required")
		return 2
	}
	return printResult(stdout, e.ResolveAppeal(*appealID, *sustained, *note))
}

func runAppeal(e *governance.Engine, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("appeal", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	decisionID := cmd.String("decision", "", "decision id (REQUIRED)")
	party := cmd.String("party", "", "appealing party id (REQUIRED)")
	grounds := cmd.String("grounds", "", "appeal grounds (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *decisionID == "" || *party == "" || *grounds == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --decision, --party and --grounds are required")
		return 2
	}
	return printResult(stdout, e.FileAppeal(*decisionID, *party, contracts.ObjectionBasis(*grounds)))
}

func runEvaluate(e *governance.Engine, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	decisionID := cmd.String("decision", "", "decision id (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *decisionID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --decision is required")
		return 2
	}
	return printResult(stdout, e.EvaluateDecision(*decisionID))
}

func runExecute(e *governance.Engine, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("execute", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	decisionID := cmd.String("decision", "", "decision id (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *decisionID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --decision is required")
		return 2
	}
	return printResult(stdout, e.ExecuteDecision(*decisionID))
}

func runAudit(e *governance.Engine, sub string, args []string, stdout, stderr io.Writer) int {
	switch sub {
	case "verify":
		cmd := flag.NewFlagSet("audit verify", flag.ContinueOnError)
		cmd.SetOutput(stderr)
		decisionID := cmd.String("decision", "", "verify one decision's trail")
		if err := cmd.Parse(args); err != nil {
			return 2
		}
		if *decisionID != "" {
			return printResult(stdout, e.VerifyDecisionAudit(*decisionID))
		}
		return printResult(stdout, e.VerifyAuditLog())
	case "summary":
		cmd := flag.NewFlagSet("audit summary", flag.ContinueOnError)
		cmd.SetOutput(stderr)
		maxEntries := cmd.Int("max", 20, "maximum entries to show")
		if err := cmd.Parse(args); err != nil {
			return 2
		}
		return printJSON(stdout, e.AuditSummary(*maxEntries))
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown audit subcommand: %s\n", sub)
		return 2
	}
}

// emergencyVotes builds an all-class vote set from registered party ids.
func emergencyVotes(e *governance.Engine, approvers string) ([]contracts.VoteRecord, error) {
	ids := splitList(approvers)
	if len(ids) == 0 {
		return nil, fmt.Errorf("--approvers is required")
	}
	byID := make(map[string]contracts.Party)
	for _, p := range e.ListParties() {
		byID[p.ID] = p
	}
	votes := make([]contracts.VoteRecord, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("party %q is not registered", id)
		}
		votes = append(votes, contracts.VoteRecord{PartyID: p.ID, Class: p.Class, Approve: true})
	}
	return votes, nil
}

func runEmergency(e *governance.Engine, sub string, args []string, stdout, stderr io.Writer) int {
	switch sub {
	case "enter":
		cmd := flag.NewFlagSet("emergency enter", flag.ContinueOnError)
		cmd.SetOutput(stderr)
		approvers := cmd.String("approvers", "", "comma-separated approving party ids (REQUIRED)")
		decisionID := cmd.String("decision", "", "originating decision id")
		if err := cmd.Parse(args); err != nil {
			return 2
		}
		votes, err := emergencyVotes(e, *approvers)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		return printResult(stdout, e.EnterEmergency(votes, *decisionID))
	case "renew":
		cmd := flag.NewFlagSet("emergency renew", flag.ContinueOnError)
		cmd.SetOutput(stderr)
		approvers := cmd.String("approvers", "", "comma-separated approving party ids (REQUIRED)")
		if err := cmd.Parse(args); err != nil {
			return 2
		}
		votes, err := emergencyVotes(e, *approvers)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		return printResult(stdout, e.RenewEmergency(votes))
	case "exit":
		return printResult(stdout, e.ExitEmergency())
	case "status":
		return printJSON(stdout, e.EmergencyStatus())
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown emergency subcommand: %s\n", sub)
		return 2
	}
}

func runStatus(e *governance.Engine, args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("status", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	decisionID := cmd.String("decision", "", "show one decision")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *decisionID != "" {
		return printResult(stdout, e.DecisionStatus(*decisionID))
	}
	return printJSON(stdout, map[string]any{
		"decisions": e.ListDecisions(),
		"emergency": e.EmergencyStatus(),
		"parties":   e.ListParties(),
	})
}
