// Command framegrid browses a remote dataset in the terminal and uploads or
// lists datasets.
//
//	framegrid view [-api URL] [-page-size N] [-log FILE] <dataset>
//	framegrid upload [-api URL] -title TITLE <file>
//	framegrid list [-api URL]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"framegrid/internal/client"
	"framegrid/internal/config"
	"framegrid/internal/grid"
	"framegrid/internal/observability"
	"framegrid/internal/tui"
)

const requestTimeout = 2 * time.Minute

var (
	exitFunc = os.Exit
	getenv   = os.Getenv
	// runProgram owns the terminal until the user quits.
	runProgram = func(m tea.Model) error {
		_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
		return err
	}
)

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: framegrid <view|upload|list> [flags] [args]")
}

func cli(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	cfg, err := config.Load(getenv)
	if err != nil {
		fmt.Fprintf(stderr, "configuration: %v\n", err)
		return 1
	}
	switch args[0] {
	case "view":
		return viewCmd(cfg, args[1:], stderr)
	case "upload":
		return uploadCmd(cfg, args[1:], stdout, stderr)
	case "list":
		return listCmd(cfg, args[1:], stdout, stderr)
	case "-h", "--help", "help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}
}

func newFlags(name string, cfg *config.Config, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("framegrid "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.APIBase, "api", cfg.APIBase, "dataset service base URL")
	return fs
}

func parse(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

func viewCmd(cfg config.Config, args []string, stderr io.Writer) int {
	fs := newFlags("view", &cfg, stderr)
	fs.IntVar(&cfg.PageSize, "page-size", cfg.PageSize, "rows per page")
	logPath := fs.String("log", "", "write logs to this file (the terminal is taken by the grid)")
	if code, ok := parse(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "view requires exactly one dataset reference")
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "configuration: %v\n", err)
		return 1
	}
	logOut := io.Discard
	if *logPath != "" {
		f, err := os.OpenFile(filepath.Clean(*logPath), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			fmt.Fprintf(stderr, "open log: %v\n", err)
			return 1
		}
		defer func() { _ = f.Close() }()
		logOut = f
	}
	level, _ := observability.ParseLevel(cfg.LogLevel)
	logger, err := observability.NewLogger(logOut, level, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return 1
	}
	remote, err := client.New(cfg.APIBase, client.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(stderr, "client: %v\n", err)
		return 1
	}
	bridge := tui.NewBridge()
	ctrl := grid.New(fs.Arg(0), remote,
		grid.WithPageSize(cfg.PageSize),
		grid.WithLogger(logger),
		grid.WithNotifier(bridge),
		grid.WithOnChange(bridge.Changed),
	)
	if err := runProgram(tui.New(ctrl, bridge)); err != nil {
		fmt.Fprintf(stderr, "terminal: %v\n", err)
		return 1
	}
	return 0
}

func uploadCmd(cfg config.Config, args []string, stdout, stderr io.Writer) int {
	fs := newFlags("upload", &cfg, stderr)
	title := fs.String("title", "", "dataset title (defaults to the file name)")
	if code, ok := parse(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "upload requires exactly one file")
		return 2
	}
	path := fs.Arg(0)
	if *title == "" {
		*title = filepath.Base(path)
	}
	c, err := client.New(cfg.APIBase)
	if err != nil {
		fmt.Fprintf(stderr, "client: %v\n", err)
		return 1
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		fmt.Fprintf(stderr, "open: %v\n", err)
		return 1
	}
	defer func() { _ = f.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	ds, err := c.Upload(ctx, *title, filepath.Base(path), f)
	if err != nil {
		fmt.Fprintf(stderr, "upload failed: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, ds.Ref())
	return 0
}

func listCmd(cfg config.Config, args []string, stdout, stderr io.Writer) int {
	fs := newFlags("list", &cfg, stderr)
	if code, ok := parse(fs, args); !ok {
		return code
	}
	c, err := client.New(cfg.APIBase)
	if err != nil {
		fmt.Fprintf(stderr, "client: %v\n", err)
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	list, err := c.List(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "list failed: %v\n", err)
		return 1
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tFILE\tCREATED")
	for _, ds := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ds.Ref(), ds.Title, ds.File, ds.CreatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
	return 0
}
