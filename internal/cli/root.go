// Package cli implements the budgetctl commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"budgetcore/internal/config"
	"budgetcore/internal/core"
	"budgetcore/pkg/domain"
)

// Exit codes returned by Execute.
const (
	ExitOK    = 0
	ExitError = 1
	// ExitFatal signals an approval whose rollback also failed; the stores
	// may disagree and need an operator.
	ExitFatal = 2
)

// Options overrides what Execute would otherwise build from the config file.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	// Adapter replaces the configured storage. Execute does not close it.
	Adapter domain.CollectionAdapter
	Logger  *zap.Logger
	Clock   core.Clock
	// Registry receives the operation metrics; a fresh registry when nil.
	Registry *prometheus.Registry
}

type app struct {
	opts       Options
	configPath string
	as         string

	cfg       config.Config
	logger    *zap.Logger
	adapter   domain.CollectionAdapter
	ownsStore bool
	registry  *prometheus.Registry
	stores    core.Stores
	svc       *core.Service
	dir       *core.Directory
}

// Execute runs budgetctl with args and returns the process exit code.
func Execute(ctx context.Context, args []string, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	a := &app{opts: opts}
	defer a.close()
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		return a.report(err)
	}
	return ExitOK
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "budgetctl",
		Short:         "Budget change-request workflow",
		Long:          "Submit, approve and audit changes to yearly government budgets.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultPath, "Path to the TOML config file")
	root.PersistentFlags().StringVar(&a.as, "as", "", "Username of the acting user")
	root.AddCommand(
		a.userCommand(),
		a.budgetCommand(),
		a.itemCommand(),
		a.requestCommand(),
		a.changelogCommand(),
		a.serveMetricsCommand(),
	)
	return root
}

// report prints err with its kind and maps it to an exit code.
func (a *app) report(err error) int {
	if kind := domain.KindOf(err); kind != "" {
		fmt.Fprintf(a.opts.Stderr, "error [%s]: %v\n", kind, err)
	} else {
		fmt.Fprintf(a.opts.Stderr, "error: %v\n", err)
	}
	if domain.IsFatal(err) {
		fmt.Fprintln(a.opts.Stderr, "budget and audit stores may be inconsistent; inspect the logs before retrying")
		return ExitFatal
	}
	return ExitError
}

// open loads the config and wires storage, directory and service once.
func (a *app) open(ctx context.Context) error {
	if a.svc != nil {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = a.opts.Logger
	if a.logger == nil {
		if a.logger, err = buildLogger(cfg.Log, a.opts.Stderr); err != nil {
			return err
		}
	}
	a.adapter = a.opts.Adapter
	if a.adapter == nil {
		if a.adapter, err = core.OpenAdapter(ctx, cfg.Storage, a.logger); err != nil {
			return err
		}
		a.ownsStore = true
	}
	a.registry = a.opts.Registry
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
	}
	metrics, err := core.NewPrometheusMetrics(a.registry)
	if err != nil {
		return err
	}
	a.stores = core.OpenStores(a.adapter, a.logger)
	limits := limitsFrom(cfg.Limits)
	a.dir = core.NewDirectory(a.stores.Users, limits, a.logger)
	a.svc = a.stores.Service(
		core.WithLogger(a.logger),
		core.WithMetrics(metrics),
		core.WithClock(a.opts.Clock),
		core.WithLimits(limits),
	)
	return nil
}

func (a *app) close() {
	if a.ownsStore && a.adapter != nil {
		if err := a.adapter.Close(); err != nil && a.logger != nil {
			a.logger.Warn("close storage", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// actor resolves the --as user.
func (a *app) actor(ctx context.Context) (*domain.User, error) {
	if strings.TrimSpace(a.as) == "" {
		return nil, domain.ValidationError(core.RuleRequired, "--as <username> is required for this command")
	}
	user, err := a.dir.Lookup(ctx, a.as)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func limitsFrom(cfg config.LimitsConfig) core.Limits {
	return core.Limits{
		EditChangeLimit:        cfg.EditChangeLimit,
		BalanceChangeLimit:     cfg.BalanceChangeLimit,
		MaxPendingPerRequester: cfg.MaxPendingPerRequester,
		MinBudgetYear:          cfg.MinBudgetYear,
		ProtectedNames:         cfg.ProtectedNames,
	}
}

// buildLogger returns a JSON production logger or a console development
// logger writing to w.
func buildLogger(cfg config.LogConfig, w io.Writer) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}
	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "json":
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	case "", "console":
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return zap.New(zapcore.NewCore(encoder, zapcore.AddSync(w), level)), nil
}
