package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/probectl/internal/client"
	"github.com/danmuck/probectl/internal/control"
	"github.com/danmuck/probectl/internal/logging"
	"github.com/danmuck/probectl/internal/protocol/session"
	"github.com/danmuck/probectl/internal/scan"
	"github.com/spf13/pflag"
)

var errUsage = errors.New("usage: spmctl [flags] <request|release|start|stop|params|add|remove|state|history|set-mode|end> [args]")

func main() {
	logging.ConfigureCLI()
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "spmctl: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	router   string
	identity string
	token    string
	timeout  time.Duration
	retries  int
	params   scan.Params2D
	command  string
	args     []string
}

func parseArgs(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("spmctl", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVarP(&opts.router, "router", "r", client.DefaultConfig().Address, "router address")
	flagSet.StringVar(&opts.identity, "id", "", "client identity (random when empty)")
	flagSet.StringVar(&opts.token, "token", os.Getenv("PROBECTL_TOKEN"), "shared router token")
	flagSet.DurationVar(&opts.timeout, "timeout", session.DefaultConfig().RequestTimeout, "per-attempt reply timeout")
	flagSet.IntVar(&opts.retries, "retries", session.DefaultConfig().Retries, "resends after a missed reply")
	flagSet.Float64Var(&opts.params.TopLeftX, "x", 0, "params: top-left x")
	flagSet.Float64Var(&opts.params.TopLeftY, "y", 0, "params: top-left y")
	flagSet.Float64Var(&opts.params.SizeX, "width", 0, "params: region width")
	flagSet.Float64Var(&opts.params.SizeY, "height", 0, "params: region height")
	flagSet.StringVar(&opts.params.Units, "units", scan.DefaultUnits, "params: length units")
	flagSet.Uint32Var(&opts.params.ResolutionX, "res-x", 256, "params: pixels per row")
	flagSet.Uint32Var(&opts.params.ResolutionY, "res-y", 256, "params: rows")
	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		return options{}, errUsage
	}
	opts.command = strings.ToLower(rest[0])
	opts.args = rest[1:]
	return opts, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseArgs(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	cfg := client.DefaultConfig()
	cfg.Address = opts.router
	cfg.Identity = control.ClientID(opts.identity)
	cfg.AuthToken = opts.token
	cfg.Session.RequestTimeout = opts.timeout
	cfg.Session.Retries = opts.retries

	c, err := client.NewAdmin(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if opts.command == "state" {
		snap, err := c.State(ctx)
		if err != nil {
			return err
		}
		printSnapshot(out, snap)
		return nil
	}
	if opts.command == "history" {
		return printHistory(ctx, out, c, opts.args)
	}

	resp, err := dispatch(ctx, c, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", c.ID(), resp)
	return nil
}

func dispatch(ctx context.Context, c *client.AdminClient, opts options) (control.Response, error) {
	switch opts.command {
	case "request":
		return c.RequestControl(ctx), nil
	case "release":
		return c.ReleaseControl(ctx), nil
	case "start":
		return c.StartScan(ctx), nil
	case "stop":
		return c.StopScan(ctx), nil
	case "params":
		return c.SetScanParams(ctx, opts.params)
	case "add", "remove":
		if len(opts.args) != 1 {
			return control.ResponseUndefined, fmt.Errorf("%s needs one problem name or id", opts.command)
		}
		p, err := control.ParseProblem(opts.args[0])
		if err != nil {
			return control.ResponseUndefined, err
		}
		if opts.command == "add" {
			return c.AddProblem(ctx, p), nil
		}
		return c.RemoveProblem(ctx, p), nil
	case "set-mode":
		if len(opts.args) != 1 {
			return control.ResponseUndefined, errors.New("set-mode needs one mode")
		}
		mode, err := parseMode(opts.args[0])
		if err != nil {
			return control.ResponseUndefined, err
		}
		return c.SetControlMode(ctx, mode), nil
	case "end":
		return c.EndExperiment(ctx), nil
	default:
		return control.ResponseUndefined, fmt.Errorf("unknown command %q: %w", opts.command, errUsage)
	}
}

func parseMode(raw string) (control.Mode, error) {
	for _, m := range []control.Mode{control.ModeManual, control.ModeAutomated, control.ModeProblem} {
		if strings.EqualFold(strings.TrimSpace(raw), m.String()) {
			return m, nil
		}
	}
	return control.ModeUndefined, fmt.Errorf("unknown mode %q", raw)
}

// printHistory writes one router decision per line, oldest first.
func printHistory(ctx context.Context, out io.Writer, c *client.AdminClient, args []string) error {
	limit := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return fmt.Errorf("history limit %q: want a non-negative count", args[0])
		}
		limit = n
	}
	decisions, err := c.History(ctx, limit)
	if err != nil {
		return err
	}
	for _, d := range decisions {
		fmt.Fprintf(out, "%d %s %s %s mode=%s\n", d.Seq, d.Client, d.Kind, d.Response, d.Mode)
	}
	return nil
}

func printSnapshot(out io.Writer, snap control.Snapshot) {
	owner := "-"
	if snap.HasOwner {
		owner = string(snap.Owner)
	}
	problems := make([]string, 0, len(snap.Problems))
	for _, p := range snap.Problems {
		problems = append(problems, p.String())
	}
	fmt.Fprintf(out, "mode=%s owner=%s scanning=%t problems=[%s]\n",
		snap.Mode, owner, snap.Scanning, strings.Join(problems, ","))
}
