// Package main is the entry point for the spellmark checker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/dshills/spellmark/internal/app"
	"github.com/dshills/spellmark/internal/config"
	"github.com/dshills/spellmark/internal/spell"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// errUsage reports bad command-line arguments.
var errUsage = errors.New("usage")

func main() {
	os.Exit(run())
}

func run() int {
	opts, args := parseFlags()
	if len(args) == 0 {
		flag.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "check":
		err = withApp(ctx, opts, func(a *app.Application) error { return checkCmd(ctx, a, rest, os.Stdout) })
	case "fix":
		err = withApp(ctx, opts, func(a *app.Application) error { return fixCmd(ctx, a, rest, os.Stdout) })
	case "view":
		opts.LogOutput = io.Discard
		err = viewCmd(ctx, opts, rest)
	case "words":
		err = withApp(ctx, opts, func(a *app.Application) error { return wordsCmd(ctx, a, rest, os.Stdout) })
	case "languages":
		err = withApp(ctx, opts, func(a *app.Application) error { return languagesCmd(ctx, a, os.Stdout) })
	default:
		err = fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errFindings):
		return 1
	case errors.Is(err, errUsage):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		return 2
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
}

func withApp(ctx context.Context, opts app.Options, fn func(*app.Application) error) error {
	a, err := app.New(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.Close()
	return fn(a)
}

func parseFlags() (app.Options, []string) {
	var opts app.Options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	flag.BoolVar(&opts.Offline, "offline", false, "Use local dictionaries instead of the online service")
	flag.StringVar(&opts.Language, "language", "", "Default language tag, or auto")
	flag.StringVar(&opts.Language, "l", "", "Default language tag, or auto (shorthand)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.Watch, "watch", false, "Reload the configuration file while viewing")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Spellmark - spelling and grammar suggestions for Markdown\n\n")
		fmt.Fprintf(os.Stderr, "Usage: spellmark [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  check FILE        List suggestions per block\n")
		fmt.Fprintf(os.Stderr, "  fix FILE          Apply the first replacement of every suggestion\n")
		fmt.Fprintf(os.Stderr, "  view FILE         Show the file with underlined suggestions\n")
		fmt.Fprintf(os.Stderr, "  words add WORD... Add words to the user dictionary\n")
		fmt.Fprintf(os.Stderr, "  words list        List the user dictionary\n")
		fmt.Fprintf(os.Stderr, "  languages         List languages of the selected backend\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  spellmark check README.md\n")
		fmt.Fprintf(os.Stderr, "  spellmark -offline -l en-GB fix notes.md\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("Spellmark %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	switch opts.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.LogLevel)
		os.Exit(2)
	}
	if opts.Language != "" && opts.Language != config.AutoLanguage {
		if err := config.ValidateTag(opts.Language); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid language %q: %v\n", opts.Language, err)
			os.Exit(2)
		}
	}

	return opts, flag.Args()
}

// errFindings makes check exit non-zero when something was flagged.
var errFindings = errors.New("suggestions found")

func oneFile(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: expected one file", errUsage)
	}
	return args[0], nil
}

func checkCmd(ctx context.Context, a *app.Application, args []string, out io.Writer) error {
	path, err := oneFile(args)
	if err != nil {
		return err
	}
	id, err := a.Open(path)
	if err != nil {
		return err
	}
	if err := a.Check(ctx); err != nil {
		return err
	}
	findings, err := a.Findings(id)
	if err != nil {
		return err
	}
	printFindings(out, path, findings)
	if len(findings) > 0 {
		return errFindings
	}
	return nil
}

func printFindings(out io.Writer, path string, findings []app.Finding) {
	for n, f := range findings {
		if n > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%s: %s\n", path, excerpt(f.Text, 60))
		if f.State == spell.StateFailed {
			fmt.Fprintf(out, "  check failed\n")
			continue
		}
		for _, s := range f.Suggestions {
			word := string([]rune(f.Text)[s.Offset:min(s.End(), len([]rune(f.Text)))])
			fmt.Fprintf(out, "  %d:%d %q %s", s.Offset, s.Length, word, s.ShortMessage)
			if s.Category != spell.CategoryUnknownWord && s.Message != "" {
				fmt.Fprintf(out, ": %s", s.Message)
			}
			if len(s.Replacements) > 0 {
				fmt.Fprintf(out, " -> %s", strings.Join(s.Replacements[:min(len(s.Replacements), 5)], ", "))
			}
			fmt.Fprintln(out)
		}
	}
}

func excerpt(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}

func fixCmd(ctx context.Context, a *app.Application, args []string, out io.Writer) error {
	path, err := oneFile(args)
	if err != nil {
		return err
	}
	a.Settings().Update(func(c *config.Config) {
		c.General.ExperimentalCorrect = true
	})
	id, err := a.Open(path)
	if err != nil {
		return err
	}
	if err := a.Check(ctx); err != nil {
		return err
	}
	fixed, err := a.FixAll(ctx, id)
	if err != nil {
		return err
	}
	if fixed > 0 {
		if err := a.Save(id); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "%s: %d corrections\n", path, fixed)
	return nil
}

func wordsCmd(ctx context.Context, a *app.Application, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: words add|list", errUsage)
	}
	switch args[0] {
	case "add":
		if len(args) < 2 {
			return fmt.Errorf("%w: words add WORD...", errUsage)
		}
		for _, w := range args[1:] {
			if err := a.AddWord(ctx, w); err != nil {
				return err
			}
		}
		return nil
	case "list":
		entries, err := a.Words(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Word, e.Source, e.AddedAt.Format("2006-01-02"))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("%w: unknown words command %q", errUsage, args[0])
	}
}

func languagesCmd(ctx context.Context, a *app.Application, out io.Writer) error {
	langs, err := a.Languages(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "backend: %s\n", a.Backend().Kind)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, l := range langs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", l.LongCode, l.Code, l.Name)
	}
	return tw.Flush()
}
