// Command meshbridge-log is a tool for viewing and analyzing mesh bridge
// recovery journals.
//
// Journals are written by meshbridge when run with the -journal flag (or the
// journal.path setting in its configuration file).
//
// Usage:
//
//	meshbridge-log <command> [flags] <file.mbj>
//
// Commands:
//
//	view     View journal in human-readable format
//	export   Export journal to JSON or CSV format
//	filter   Filter journal and write to new file
//	stats    Show reconnect statistics
//
// Examples:
//
//	# View only supervisor events
//	meshbridge-log view --component supervisor bridge.mbj
//
//	# Export to JSONL
//	meshbridge-log export --format jsonl bridge.mbj
//
//	# Keep one session's attempts
//	meshbridge-log filter --session 6f1c2c1e-... --category attempt -o attempts.mbj bridge.mbj
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/meshbridge/meshbridge-go/cmd/meshbridge-log/commands"
)

const usage = `meshbridge-log - Mesh Bridge Journal Analyzer

Usage:
  meshbridge-log <command> [flags] <file.mbj>

Commands:
  view     View journal in human-readable format
  export   Export journal to JSON or CSV format
  filter   Filter journal and write to new file
  stats    Show reconnect statistics

Use "meshbridge-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func newFlagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "meshbridge-log %s - %s\n\nUsage:\n  meshbridge-log %s [flags] <file.mbj>\n\nFlags:\n", name, synopsis, name)
		fs.PrintDefaults()
	}
	return fs
}

// journalArg parses args and returns the journal path or exits.
func journalArg(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: journal path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := newFlagSet("view", "View journal in human-readable format")
	session := fs.String("session", "", "Filter by session ID")
	component := fs.String("component", "", "Filter by component (supervisor, transport, session, retry)")
	category := fs.String("category", "", "Filter by category (state, attempt, error)")
	path := journalArg(fs, args)

	filter := commands.ViewFilter{SessionID: *session}
	if *component != "" {
		c, err := commands.ParseComponentFlag(*component)
		if err != nil {
			fail(err)
		}
		filter.Component = &c
	}
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export journal to JSON or CSV format")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := journalArg(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Filter journal and write to new file")
	output := fs.String("o", "", "Output file (required)")
	session := fs.String("session", "", "Filter by session ID")
	component := fs.String("component", "", "Filter by component (supervisor, transport, session, retry)")
	category := fs.String("category", "", "Filter by category (state, attempt, error)")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")
	path := journalArg(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, commands.FilterOptions{
		Output:    *output,
		SessionID: *session,
		Component: *component,
		Category:  *category,
		TimeStart: *timeStart,
		TimeEnd:   *timeEnd,
	})
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show reconnect statistics")
	path := journalArg(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
