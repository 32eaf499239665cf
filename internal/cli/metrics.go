package cli

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"budgetcore/internal/core"
	"budgetcore/pkg/domain"
)

// stateCollector exports the stored workflow state at scrape time.
type stateCollector struct {
	svc     *core.Service
	pending *prometheus.Desc
	net     *prometheus.Desc
	logs    *prometheus.Desc
}

func newStateCollector(svc *core.Service) *stateCollector {
	return &stateCollector{
		svc: svc,
		pending: prometheus.NewDesc("budgetcore_change_requests",
			"Stored change requests by status.", []string{"status"}, nil),
		net: prometheus.NewDesc("budgetcore_budget_net_result",
			"Net result (revenue minus expense) per budget year.", []string{"year"}, nil),
		logs: prometheus.NewDesc("budgetcore_change_logs",
			"Audit records stored.", nil, nil),
	}
}

func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pending
	ch <- c.net
	ch <- c.logs
}

func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	counts := map[domain.Status]int{
		domain.StatusPending:  0,
		domain.StatusApproved: 0,
		domain.StatusRejected: 0,
	}
	for _, change := range c.svc.PendingChanges(ctx) {
		counts[change.Status]++
	}
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(n), string(status))
	}
	for _, b := range c.svc.Budgets(ctx) {
		ch <- prometheus.MustNewConstMetric(c.net, prometheus.GaugeValue, b.NetResult, strconv.Itoa(b.Year))
	}
	ch <- prometheus.MustNewConstMetric(c.logs, prometheus.GaugeValue, float64(len(c.svc.ChangeLogs(ctx))))
}

// metricsHandler serves /metrics from reg and /debug/vars from expvar.
func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/debug/vars", expvar.Handler())
	return mux
}

func (a *app) serveMetricsCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Expose Prometheus metrics for the stored workflow state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Metrics.Addr
			}
			if err := a.registry.Register(newStateCollector(a.svc)); err != nil {
				return fmt.Errorf("register state collector: %w", err)
			}
			if err := a.registry.Register(collectors.NewGoCollector()); err != nil {
				return fmt.Errorf("register go collector: %w", err)
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           metricsHandler(a.registry),
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			a.logger.Info("serving metrics", zap.String("addr", addr))
			fmt.Fprintf(cmd.OutOrStdout(), "serving metrics on %s\n", addr)
			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("metrics server: %w", err)
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to metrics.addr from the config)")
	return cmd
}
