// Command probe inspects a course export without touching a database and
// reports whether a seed of it would pass validation.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	csvparser "catalog/internal/parser/csv"
	"catalog/internal/probe"
)

const usage = "usage: probe -data path.csv [-languages english,french,...] [-strip-html] [-json]"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// runMain exits 0 when the export is clean, 1 when it has problems or cannot
// be read, and 2 on usage errors.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		dataPath  = fs.String("data", "", "course CSV path")
		languages = fs.String("languages", "", "comma-separated handout languages to load (default all six)")
		stripHTML = fs.Bool("strip-html", false, "reduce description markup to text before validating")
		asJSON    = fs.Bool("json", false, "print the report as JSON")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*dataPath) == "" || fs.NArg() > 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	raw, err := csvparser.ReadFile(ctx, *dataPath, csvparser.Options{})
	if err != nil {
		fmt.Fprintf(stderr, "read: %v\n", err)
		return 1
	}

	rep := probe.Inspect(raw, probe.Options{
		HandoutLanguages: splitList(*languages),
		StripHTML:        *stripHTML,
	})

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fmt.Fprintf(stderr, "encode: %v\n", err)
			return 1
		}
	} else {
		fmt.Fprint(stdout, probe.Format(rep))
	}

	if !rep.OK() {
		return 1
	}
	return 0
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
