// Command lumnictl drives a Lumnicode server from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/lumnicode/engine/pkg/client"
	"github.com/lumnicode/engine/pkg/logger"
)

type command struct {
	usage string
	run   func(ctx context.Context, app *cli, args []string) error
}

var commands = map[string]command{
	"projects": {"projects [--search s] [--page n]", runProjects},
	"create":   {"create <name> [--description d] [--stack react,typescript]", runCreate},
	"files":    {"files <project-id>", runFiles},
	"rm":       {"rm <project-id> <file-id>", runRemove},
	"push":     {"push <project-id> <dir> [--watch] [--delay 2s]", runPush},
	"generate": {"generate <project-id> <prompt> [--stack react] [--detach]", runGenerate},
	"watch":    {"watch <project-id> <session-id>", runWatch},
}

type cli struct {
	api    *client.Client
	server string
	out    *tabwriter.Writer
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: lumnictl [--server url] [--token t] <command> [args]")
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[n].usage)
	}
}

func main() {
	_ = godotenv.Load()

	global := flag.NewFlagSet("lumnictl", flag.ContinueOnError)
	global.SetInterspersed(false)
	server := global.String("server", envOr("LUMNICODE_URL", "http://localhost:8000"), "API base URL")
	token := global.String("token", os.Getenv("LUMNICODE_TOKEN"), "bearer token")
	verbose := global.BoolP("verbose", "v", false, "log client internals")
	global.Usage = usage
	if err := global.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	if _, err := logger.Init(level, "console"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	args := global.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli{
		api:    client.New(*server, client.WithToken(*token)),
		server: *server,
		out:    tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0),
	}
	err := cmd.run(ctx, app, args[1:])
	_ = app.out.Flush()
	if err != nil {
		var usageErr errUsage
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "usage: lumnictl %s\n", cmd.usage)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type errUsage struct{}

func (errUsage) Error() string { return "bad arguments" }

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
