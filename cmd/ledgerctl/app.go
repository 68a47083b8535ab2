package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/SscSPs/fx_ledger/internal/platform/bootstrap"
	"github.com/SscSPs/fx_ledger/internal/platform/config"
	"github.com/SscSPs/fx_ledger/migrations"
	"github.com/SscSPs/fx_ledger/pkg/database"
	"github.com/spf13/pflag"
)

// Exit codes.
const (
	exitPass        = 0
	exitDiscrepancy = 1
	exitError       = 2
)

// summary is the machine-readable outcome of one command.
type summary struct {
	Command string    `json:"command"`
	Passed  bool      `json:"passed"`
	Result  any       `json:"result,omitempty"`
	Error   string    `json:"error,omitempty"`
	RanAt   time.Time `json:"ranAt"`
}

type app struct {
	stdout     io.Writer
	stderr     io.Writer
	logger     *slog.Logger
	loadConfig func() (*config.Config, error)
	open       func(ctx context.Context, cfg *config.Config) (*bootstrap.Runtime, error)
	now        func() time.Time
}

// command parses its own flags and reports whether the check passed.
type command struct {
	usage string
	run   func(ctx context.Context, a *app, rt *bootstrap.Runtime, fs *pflag.FlagSet, args []string) (passed bool, result any, err error)
	flags func(fs *pflag.FlagSet)
	// raw commands get a runtime holding only the config and open what they need themselves.
	raw   bool
}

var commands = map[string]command{
	"verify-trial-balance": {
		usage: "verify-trial-balance <tenant>",
		flags: func(fs *pflag.FlagSet) { fs.String("tenant", "", "tenant id") },
		run:   verifyTrialBalance,
	},
	"verify-audit-integrity": {
		usage: "verify-audit-integrity <tenant> <from>/<to>",
		flags: func(fs *pflag.FlagSet) {
			fs.String("tenant", "", "tenant id")
			fs.String("from", "", "range start (RFC 3339)")
			fs.String("to", "", "range end (RFC 3339), defaults to now")
		},
		run: verifyAuditIntegrity,
	},
	"rebuild-journal": {
		usage: "rebuild-journal <tenant> [transaction]",
		flags: func(fs *pflag.FlagSet) {
			fs.String("tenant", "", "tenant id")
			fs.String("transaction", "", "transaction id; empty rebuilds the whole tenant")
		},
		run: rebuildJournal,
	},
	"purge-audit": {
		usage: "purge-audit [--retention duration]",
		flags: func(fs *pflag.FlagSet) {
			fs.Duration("retention", 0, "retention period, defaults to AUDIT_RETENTION_DAYS")
		},
		run: purgeAudit,
	},
	"run-detection": {
		usage: "run-detection",
		run:   runDetection,
	},
	"migrate": {
		usage: "migrate",
		run:   migrate,
		raw:   true,
	},
}

func (a *app) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.usage()
		return exitError
	}
	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(a.stderr, "unknown command %q\n", name)
		a.usage()
		return exitError
	}

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "usage: ledgerctl %s\n", cmd.usage)
		fs.PrintDefaults()
	}
	if cmd.flags != nil {
		cmd.flags(fs)
	}
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitPass
		}
		return exitError
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return a.report(summary{Command: name, Error: fmt.Sprintf("failed to load config: %v", err)}, exitError)
	}

	var rt *bootstrap.Runtime
	if !cmd.raw {
		if rt, err = a.open(ctx, cfg); err != nil {
			return a.report(summary{Command: name, Error: err.Error()}, exitError)
		}
		defer func() {
			if cerr := rt.Close(); cerr != nil {
				a.logger.Error("Error releasing resources", slog.String("error", cerr.Error()))
			}
		}()
	} else {
		rt = &bootstrap.Runtime{Config: cfg, Logger: a.logger}
	}

	passed, result, err := cmd.run(ctx, a, rt, fs, fs.Args())
	s := summary{Command: name, Passed: passed && err == nil, Result: result}
	switch {
	case err != nil:
		s.Error = err.Error()
		return a.report(s, exitError)
	case !passed:
		return a.report(s, exitDiscrepancy)
	default:
		return a.report(s, exitPass)
	}
}

// report writes the summary to stdout on success and to stderr otherwise.
func (a *app) report(s summary, code int) int {
	s.RanAt = a.now().UTC()
	out := a.stdout
	if code != exitPass {
		out = a.stderr
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		a.logger.Error("Failed to write summary", slog.String("error", err.Error()))
		return exitError
	}
	return code
}

func (a *app) usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(a.stderr, "usage: ledgerctl <command> [flags]")
	for _, name := range names {
		fmt.Fprintf(a.stderr, "  %s\n", commands[name].usage)
	}
}

// stringArg prefers the named flag, falling back to the positional argument at pos.
func stringArg(fs *pflag.FlagSet, flag string, args []string, pos int) string {
	if v, _ := fs.GetString(flag); v != "" {
		return v
	}
	if pos < len(args) {
		return args[pos]
	}
	return ""
}

func verifyTrialBalance(ctx context.Context, _ *app, rt *bootstrap.Runtime, fs *pflag.FlagSet, args []string) (bool, any, error) {
	tenantID := stringArg(fs, "tenant", args, 0)
	if tenantID == "" {
		return false, nil, errors.New("tenant is required")
	}
	tb, err := rt.Services.Journal.TrialBalance(ctx, domain.SystemActor(), tenantID)
	if err != nil {
		return false, nil, err
	}
	return tb.Balanced, tb, nil
}

func verifyAuditIntegrity(ctx context.Context, a *app, rt *bootstrap.Runtime, fs *pflag.FlagSet, args []string) (bool, any, error) {
	tenantID := stringArg(fs, "tenant", args, 0)
	if tenantID == "" {
		return false, nil, errors.New("tenant is required")
	}
	from, to, err := parseRange(fs, args, a.now().UTC())
	if err != nil {
		return false, nil, err
	}
	res, err := rt.Services.Audit.VerifyRange(ctx, domain.SystemActor(), dto.VerifyAuditRangeRequest{TenantID: tenantID, From: from, To: to})
	if err != nil {
		return false, nil, err
	}
	return res.Passed, res, nil
}

// parseRange reads --from/--to, or a positional "<from>/<to>" interval.
func parseRange(fs *pflag.FlagSet, args []string, now time.Time) (time.Time, time.Time, error) {
	fromStr, _ := fs.GetString("from")
	toStr, _ := fs.GetString("to")
	if fromStr == "" && len(args) > 1 {
		var ok bool
		fromStr, toStr, ok = strings.Cut(args[1], "/")
		if !ok {
			return time.Time{}, time.Time{}, fmt.Errorf("range %q must be <from>/<to>", args[1])
		}
	}
	if fromStr == "" {
		return time.Time{}, time.Time{}, errors.New("range start is required")
	}
	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid range start: %w", err)
	}
	to := now
	if toStr != "" {
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid range end: %w", err)
		}
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("range end must be after its start")
	}
	return from, to, nil
}

func rebuildJournal(ctx context.Context, _ *app, rt *bootstrap.Runtime, fs *pflag.FlagSet, args []string) (bool, any, error) {
	tenantID := stringArg(fs, "tenant", args, 0)
	if tenantID == "" {
		return false, nil, errors.New("tenant is required")
	}
	res, err := rt.Services.Journal.RebuildJournal(ctx, domain.SystemActor(), tenantID, stringArg(fs, "transaction", args, 1))
	if err != nil {
		return false, nil, err
	}
	// The entries can be large; the counts are what an operator acts on.
	res.Entries = nil
	return res.Balanced && len(res.Mismatches) == 0, res, nil
}

func purgeAudit(ctx context.Context, _ *app, rt *bootstrap.Runtime, fs *pflag.FlagSet, _ []string) (bool, any, error) {
	retention, _ := fs.GetDuration("retention")
	if retention <= 0 {
		retention = rt.Config.AuditRetention
	}
	purged, err := rt.Services.Audit.PurgeOlderThan(ctx, retention, domain.SeverityHigh)
	if err != nil {
		return false, nil, err
	}
	return true, map[string]any{"purged": purged, "retention": retention.String()}, nil
}

func runDetection(ctx context.Context, a *app, rt *bootstrap.Runtime, _ *pflag.FlagSet, _ []string) (bool, any, error) {
	flagged, err := rt.Services.Detection.RunDetection(ctx, a.now().UTC())
	if err != nil {
		return false, nil, err
	}
	return true, map[string]any{"flagged": len(flagged), "events": flagged}, nil
}

func migrate(_ context.Context, a *app, rt *bootstrap.Runtime, _ *pflag.FlagSet, _ []string) (bool, any, error) {
	if rt.Config.StoreDriver != config.StoreDriverPostgres {
		return false, nil, fmt.Errorf("migrate requires STORE_DRIVER=%s", config.StoreDriverPostgres)
	}
	res, err := database.RunMigrations(rt.Config.DatabaseURL, migrations.FS, a.logger)
	if err != nil {
		return false, nil, err
	}
	return true, res, nil
}
