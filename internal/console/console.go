// Package console implements the interactive operator console: a small
// command loop over the session logger, the hardware intake, and the
// read-back reports. On a real terminal it runs with completion and history;
// on a pipe it degrades to plain line reading so it stays scriptable.
package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/evgrid/chargemon/internal/archive"
	"github.com/evgrid/chargemon/internal/datalog"
	"github.com/evgrid/chargemon/internal/errors"
	"github.com/evgrid/chargemon/internal/intake"
	"github.com/evgrid/chargemon/internal/report"
)

// Console drives the operator command loop.
type Console struct {
	logger  *datalog.Logger
	svc     *intake.Service
	reports report.Options
	archive archive.Options

	out io.Writer
	in  io.Reader
}

// New creates a console over the given logger and intake service. svc may be
// nil when running without the hardware link.
func New(logger *datalog.Logger, svc *intake.Service, reports report.Options, arch archive.Options) *Console {
	return &Console{
		logger:  logger,
		svc:     svc,
		reports: reports,
		archive: arch,
		out:     os.Stdout,
		in:      os.Stdin,
	}
}

var commands = []prompt.Suggest{
	{Text: "start", Description: "Start a new logging session"},
	{Text: "stop", Description: "Stop the active logging session"},
	{Text: "status", Description: "Show logger and link status"},
	{Text: "report", Description: "Summarize a session file (latest by default)"},
	{Text: "analyze", Description: "Analyze a raw packet mirror"},
	{Text: "sessions", Description: "List session files"},
	{Text: "export", Description: "Archive a session CSV to Parquet"},
	{Text: "help", Description: "Show available commands"},
	{Text: "exit", Description: "Leave the console"},
}

// Run executes the command loop until exit or EOF.
func (c *Console) Run() error {
	if f, ok := c.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.runInteractive()
		return nil
	}
	return c.runPlain()
}

// runInteractive runs the go-prompt loop with completion.
func (c *Console) runInteractive() {
	fmt.Fprintln(c.out, "chargemon console. Type 'help' for commands.")

	p := prompt.New(
		func(line string) { c.execute(line) },
		c.complete,
		prompt.OptionPrefix("chargemon> "),
		prompt.OptionTitle("chargemon"),
	)
	p.Run()
}

// runPlain reads commands line by line without terminal features.
func (c *Console) runPlain() error {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if c.execute(scanner.Text()) {
			return nil
		}
	}
	return scanner.Err()
}

func (c *Console) complete(d prompt.Document) []prompt.Suggest {
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(commands, d.GetWordBeforeCursor(), true)
}

// execute runs one command line. Returns true when the console should exit.
func (c *Console) execute(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "start":
		c.cmdStart()
	case "stop":
		c.cmdStop()
	case "status":
		c.cmdStatus()
	case "report":
		c.cmdReport(args)
	case "analyze":
		c.cmdAnalyze(args)
	case "sessions":
		c.cmdSessions()
	case "export":
		c.cmdExport(args)
	case "help":
		c.cmdHelp()
	case "exit", "quit":
		return true
	default:
		fmt.Fprintf(c.out, "unknown command %q, try 'help'\n", cmd)
	}
	return false
}

func (c *Console) cmdStart() {
	session, err := c.logger.Start()
	if err != nil {
		fmt.Fprintf(c.out, "start failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "logging to %s\n", session.ProcessedPath)
	fmt.Fprintf(c.out, "raw mirror %s\n", session.RawPath)
}

func (c *Console) cmdStop() {
	session, err := c.logger.Stop()
	if err != nil {
		if errors.Is(err, errors.ErrNotLogging) {
			fmt.Fprintln(c.out, "no active session")
			return
		}
		fmt.Fprintf(c.out, "stop failed: %v\n", err)
		return
	}
	stats := c.logger.Stats()
	fmt.Fprintf(c.out, "stopped %s (%d rows)\n", session.ProcessedPath, stats.RowsWritten)
}

func (c *Console) cmdStatus() {
	if c.logger.Active() {
		session := c.logger.Session()
		stats := c.logger.Stats()
		fmt.Fprintf(c.out, "logging: active since %s\n",
			session.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(c.out, "  file:  %s\n", session.ProcessedPath)
		fmt.Fprintf(c.out, "  rows:  %d processed, %d raw\n", stats.RowsWritten, stats.RawWritten)
	} else {
		fmt.Fprintln(c.out, "logging: inactive")
	}

	if c.svc == nil {
		fmt.Fprintln(c.out, "link:    not configured")
		return
	}

	stats := c.svc.Stats()
	fmt.Fprintf(c.out, "link:    %s (%d packets, %d parse errors)\n",
		c.svc.LocalAddr(), stats.PacketsReceived, stats.ParseErrors)

	if reading, at, ok := c.svc.LastReading(); ok {
		fmt.Fprintf(c.out, "last:    %s  EV %.0f W  PV %.0f W  SoC %.1f%%\n",
			at.Format("15:04:05"), reading.EVPower, reading.PVPower, reading.EVSoC)
	}
}

func (c *Console) cmdReport(args []string) {
	var rep *report.Report
	var err error
	if len(args) > 0 {
		rep, err = report.Generate(args[0], c.reports)
	} else {
		// The latest session is the one being written; summarizing a file
		// mid-write would undercount it.
		if c.logger.Active() {
			fmt.Fprintln(c.out, "cannot generate report while logging is active, stop first")
			return
		}
		rep, err = report.GenerateLatest(c.logger.Dir(), c.reports)
	}
	if err != nil {
		fmt.Fprintf(c.out, "report failed: %v\n", err)
		return
	}
	c.printReport(rep)
}

func (c *Console) printReport(rep *report.Report) {
	fmt.Fprintf(c.out, "session %s\n", rep.FilePath)
	fmt.Fprintf(c.out, "  records:  %d", rep.TotalRecords)
	if rep.SkippedRows > 0 {
		fmt.Fprintf(c.out, " (%d skipped)", rep.SkippedRows)
	}
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "  duration: %.1f min\n", rep.DurationMinutes())

	names := make([]string, 0, len(rep.Columns))
	for name := range rep.Columns {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(c.out, "  %-16s %12s %12s %12s %12s\n", "column", "min", "mean", "max", "p95")
	for _, name := range names {
		col := rep.Columns[name]
		p95 := "-"
		if col.P95 != nil {
			p95 = fmt.Sprintf("%.2f", *col.P95)
		}
		fmt.Fprintf(c.out, "  %-16s %12.2f %12.2f %12.2f %12s\n",
			name, col.Min, col.Mean, col.Max, p95)
	}
}

func (c *Console) cmdAnalyze(args []string) {
	var path string
	if len(args) > 0 {
		path = args[0]
	} else {
		if c.logger.Active() {
			fmt.Fprintln(c.out, "cannot analyze while logging is active, stop first")
			return
		}
		latest, err := report.LatestSessionFile(c.logger.Dir())
		if err != nil {
			fmt.Fprintf(c.out, "analyze failed: %v\n", err)
			return
		}
		path = rawMirrorPath(latest)
	}

	raw, err := report.AnalyzeRaw(path)
	if err != nil {
		fmt.Fprintf(c.out, "analyze failed: %v\n", err)
		return
	}

	fmt.Fprintf(c.out, "raw mirror %s\n", raw.FilePath)
	fmt.Fprintf(c.out, "  packets:    %d", raw.Packets)
	if raw.IncompleteRows > 0 {
		fmt.Fprintf(c.out, " (%d incomplete)", raw.IncompleteRows)
	}
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "  duration:   %s\n", raw.Duration.Round(time.Millisecond))
	if raw.Packets > 1 {
		fmt.Fprintf(c.out, "  rate:       %.1f packets/s\n", raw.PacketsPerSecond)
		fmt.Fprintf(c.out, "  interval:   %s mean\n", raw.MeanInterarrival.Round(time.Millisecond))
	}
	for source, n := range raw.Sources {
		fmt.Fprintf(c.out, "  source:     %s (%d)\n", source, n)
	}
}

func (c *Console) cmdSessions() {
	files, err := report.SessionFiles(c.logger.Dir())
	if err != nil {
		fmt.Fprintf(c.out, "sessions failed: %v\n", err)
		return
	}
	if len(files) == 0 {
		fmt.Fprintln(c.out, "no sessions")
		return
	}
	for _, f := range files {
		fmt.Fprintln(c.out, f)
	}
}

func (c *Console) cmdExport(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "usage: export <session.csv> [archive.parquet]")
		return
	}
	csvPath := args[0]
	pqPath := archive.DefaultArchivePath(csvPath)
	if len(args) > 1 {
		pqPath = args[1]
	}

	n, err := archive.Convert(csvPath, pqPath, c.archive)
	if err != nil {
		fmt.Fprintf(c.out, "export failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "archived %d rows to %s\n", n, pqPath)
}

func (c *Console) cmdHelp() {
	for _, cmd := range commands {
		fmt.Fprintf(c.out, "  %-10s %s\n", cmd.Text, cmd.Description)
	}
}

// rawMirrorPath derives the raw mirror path for a processed session file.
func rawMirrorPath(processedPath string) string {
	name := strings.Replace(filepath.Base(processedPath), "ev_data_", "ev_raw_", 1)
	return filepath.Join(filepath.Dir(processedPath), "debug", name)
}
