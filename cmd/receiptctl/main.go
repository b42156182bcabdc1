// Command receiptctl runs operator tasks against the configured stores:
// notification broadcasts and the reconciliation report.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"recibos/internal/app"
	"recibos/internal/broadcast"
	"recibos/internal/catalog"
	"recibos/internal/ledger"
	"recibos/internal/platform/config"
	"recibos/internal/platform/logger"
	"recibos/pkg/platform/middleware/admin"
)

const usage = `usage: receiptctl <command> [flags]

commands:
  broadcast --period mm/yyyy [--dry-run] [--limit N]
  report    [--period mm/yyyy ...] [--out file.csv]
  hash-token --token T
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "receiptctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command\n%s", usage)
	}
	cmd, rest := args[0], args[1:]

	flags := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	configDir := flags.String("config", ".", "directory holding config.yaml")
	var (
		period  *string
		periods *[]string
		dryRun  *bool
		limit   *int
		out     *string
		token   *string
	)
	switch cmd {
	case "broadcast":
		period = flags.String("period", "", "period to announce, mm/yyyy")
		dryRun = flags.Bool("dry-run", false, "resolve recipients without sending")
		limit = flags.Int("limit", 0, "maximum number of sends (0 for no limit)")
	case "report":
		periods = flags.StringSlice("period", nil, "limit the report to these periods")
		out = flags.StringP("out", "o", "", "write the CSV to this file instead of stdout")
	case "hash-token":
		token = flags.String("token", "", "admin token to hash for server.admin_token_hash")
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	if err := flags.Parse(rest); err != nil {
		return err
	}
	if token != nil {
		hash, err := admin.HashToken(*token)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, hash)
		return err
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	a, err := app.Build(ctx, cfg, log, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if cmd == "broadcast" {
		return runBroadcast(ctx, a, broadcast.Options{Period: *period, DryRun: *dryRun, Limit: *limit}, stdout)
	}
	return runReport(ctx, a, *periods, *out, stdout)
}

func runBroadcast(ctx context.Context, a *app.App, opts broadcast.Options, stdout io.Writer) error {
	if opts.Period == "" {
		return errors.New("--period is required")
	}
	summary, err := a.Dispatcher.Run(ctx, opts)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func runReport(ctx context.Context, a *app.App, raw []string, out string, stdout io.Writer) error {
	periods, err := catalog.ParseLabels(raw)
	if err != nil {
		return err
	}
	rows, err := a.Ledger.BuildReport(ctx, periods...)
	if err != nil {
		return err
	}

	w := stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return ledger.WriteCSV(w, rows)
}
