// Command asynccmd runs external commands and classifies their outcome.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/deixis/asynccmd"
	"github.com/deixis/asynccmd/command"
	"github.com/deixis/asynccmd/internal/config"
	"github.com/deixis/asynccmd/internal/logging"
	cmdmcp "github.com/deixis/asynccmd/internal/mcp"
	"github.com/deixis/asynccmd/internal/report"
	"github.com/deixis/asynccmd/internal/workflow"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("asynccmd: ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "run":
		err = runMain(args)
	case "batch":
		err = batchMain(args)
	case "mcp":
		err = mcpMain(args)
	case "version":
		fmt.Println(asynccmd.Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "asynccmd: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: asynccmd <command> [flags] [args]

Commands:
  run         Run one executable: asynccmd run [flags] path [args...]
  batch       Run configured commands concurrently: asynccmd batch [flags] [names...]
  mcp         Start the MCP server
  version     Print the version
  help        Show this help

Use "asynccmd <command> -h" for command-specific flags.`)
}

// phraseList collects a repeatable string flag.
type phraseList []string

func (p *phraseList) String() string {
	return strings.Join(*p, ",")
}

func (p *phraseList) Set(v string) error {
	*p = append(*p, v)
	return nil
}

// --- run ---

func runMain(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	nameFlag := fs.String("name", "", "display name for diagnostics (default: executable base name)")
	dirFlag := fs.String("dir", "", "working directory as a path or file:// URL")
	jsonFlag := fs.Bool("json", false, "output the run record as JSON")
	verboseFlag := fs.Bool("v", false, "stream diagnostics while the command runs")
	runsFlag := fs.String("runs", "", "directory to record runs in")
	var phrases phraseList
	fs.Var(&phrases, "phrase", "error phrase (repeatable)")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("run: missing executable")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	eng, err := newEngine(*runsFlag, *jsonFlag)
	if err != nil {
		return err
	}

	record, err := eng.Run(ctx, workflow.Spec{
		Name:         *nameFlag,
		Path:         fs.Arg(0),
		Args:         fs.Args()[1:],
		Dir:          *dirFlag,
		ErrorPhrases: phrases,
		Verbose:      *verboseFlag,
	})
	if record == nil {
		return fmt.Errorf("run: %w", err)
	}
	if err != nil {
		eng.Logger.Warn().Err(err).Msg("run completed with errors")
	}

	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(record); err != nil {
			return err
		}
	} else {
		fmt.Print(formatRunCLI(record, *verboseFlag))
	}

	if record.Failed() {
		os.Exit(1)
	}
	return nil
}

func formatRunCLI(r *report.Record, verbose bool) string {
	var b []byte
	w := func(format string, args ...any) {
		b = fmt.Appendf(b, format, args...)
	}

	// Verbose runs already streamed their output.
	if !verbose && r.Log != "" {
		w("%s\n\n", r.Log)
	}

	status := "ok"
	if r.Failed() {
		status = "FAIL"
	}
	w("%s\t%s\texit %d\t%s\n", status, r.Name, r.ExitCode, r.Duration.Round(time.Millisecond))
	return string(b)
}

// --- batch ---

func batchMain(args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	jsonFlag := fs.Bool("json", false, "output results as JSON")
	verboseFlag := fs.Bool("v", false, "show the log of failed commands")
	runsFlag := fs.String("runs", "", "directory to record runs in")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	eng, err := newEngine(*runsFlag, *jsonFlag)
	if err != nil {
		return err
	}

	result, err := eng.Batch(ctx, fs.Args())
	if result == nil {
		return fmt.Errorf("batch: %w", err)
	}
	if err != nil {
		eng.Logger.Warn().Err(err).Msg("batch completed with errors")
	}

	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		fmt.Print(formatBatchCLI(result, *verboseFlag))
	}

	if result.Failed() {
		os.Exit(1)
	}
	return nil
}

func formatBatchCLI(result *workflow.BatchResult, verbose bool) string {
	var b []byte
	w := func(format string, args ...any) {
		b = fmt.Appendf(b, format, args...)
	}

	if result.Failed() {
		w("FAIL\n")
	} else {
		w("ok\n")
	}
	w("\n")

	for _, s := range result.Steps {
		switch s.Status {
		case workflow.StepFinished:
			w("  %-15s ok\n", s.Name)
		case workflow.StepError:
			w("  %-15s FAIL (exit %d)\n", s.Name, s.Record.ExitCode)
		case workflow.StepSkipped:
			w("  %-15s -\n", s.Name)
		}
	}
	w("\n%s\n", report.Summarize(result.Records()))

	if verbose {
		for _, s := range result.Steps {
			if s.Record == nil || !s.Record.Failed() || s.Record.Log == "" {
				continue
			}
			w("\n--- %s (run %s)\n%s\n", s.Name, s.Record.ID, s.Record.Log)
		}
	}

	return string(b)
}

// --- mcp ---

func mcpMain(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(cmdmcp.Instructions)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return serve(ctx, *httpAddr)
}

func serve(ctx context.Context, httpAddr string) error {
	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := logging.FromConfig(loaded.Config, os.Stderr)

	engine := &workflow.Engine{
		Config:    loaded.Config,
		Store:     report.NewLRUStore(32, report.NewDiskStore()),
		Logger:    logger,
		Sink:      command.LoggerSink(logger),
		Workspace: workspace,
	}
	server := cmdmcp.NewServer(engine, loaded.Root)

	if httpAddr != "" {
		return serveHTTP(ctx, server, httpAddr, logger)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string, logger zerolog.Logger) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	logger.Info().Str("addr", addr).Msg("listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// --- shared ---

// newEngine loads the workspace configuration. Verbose diagnostics go to
// stdout, or to stderr when stdout carries JSON.
func newEngine(runsDir string, jsonOut bool) (*workflow.Engine, error) {
	workspace, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	var diag io.Writer = os.Stdout
	if jsonOut {
		diag = os.Stderr
	}

	eng := &workflow.Engine{
		Config:    loaded.Config,
		Logger:    logging.FromConfig(loaded.Config, os.Stderr),
		Sink:      command.WriterSink(diag),
		Workspace: workspace,
	}
	if runsDir != "" {
		eng.Store = report.NewDiskStoreAt(runsDir)
	}
	return eng, nil
}
