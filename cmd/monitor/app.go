package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"lecca.io/oasys-watchtower/internal/alerts"
	"lecca.io/oasys-watchtower/internal/config"
	"lecca.io/oasys-watchtower/internal/dashboard"
	"lecca.io/oasys-watchtower/internal/explorer"
	"lecca.io/oasys-watchtower/internal/logger"
	"lecca.io/oasys-watchtower/internal/metrics"
	"lecca.io/oasys-watchtower/internal/monitor"
	"lecca.io/oasys-watchtower/internal/production"
	"lecca.io/oasys-watchtower/internal/rpc"
	"lecca.io/oasys-watchtower/internal/validators"
)

// app holds everything a subcommand may need, built from one config.
type app struct {
	cfg        *config.Config
	rpc        *rpc.Client
	validators monitor.Registry
	alerts     *alerts.Manager
	monitor    *monitor.Monitor
	registry   *prometheus.Registry
	exporter   *metrics.Exporter
	dashboard  *dashboard.Server
}

// newApp wires the pipeline. withServer also builds the metrics exporter and
// the dashboard, which only the long-running command serves.
func newApp(cfg *config.Config, withServer bool) (*app, error) {
	settings := cfg.Pipeline()

	logger.Info("INIT", "Connecting to RPC %s...", settings.RPC)
	client, err := rpc.Dial(settings.RPC, settings.RPCTimeout)
	if err != nil {
		return nil, err
	}

	var source production.BlockSource
	if settings.Explorer != "" {
		ex, err := explorer.NewClient(explorer.ClientConfig{
			BaseURL:         settings.Explorer,
			Timeout:         settings.ExplorerTimeout,
			RateLimitPerSec: settings.ExplorerRateLimit,
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("explorer: %w", err)
		}
		source = ex
	} else {
		logger.Warn("INIT", "No explorer configured, block production will be sampled over RPC")
	}

	prober := validators.NewProber(client, settings.StakingContract)
	resolver := production.NewResolver(source, client, settings.SampleBlocks)
	notifier := alerts.NewNotifier(cfg.Alerts)
	logger.Info("INIT", "%d alert channel(s) enabled", notifier.Len())

	a := &app{
		cfg:    cfg,
		rpc:    client,
		alerts: alerts.NewManager(cfg.Alerts, cfg.Schedule.DailySummary.Location(), notifier),
	}

	a.validators = validators.NewRegistry(cfg.Chain, prober)

	deps := monitor.Deps{
		Registry: a.validators,
		Pipeline: monitor.NewPipeline(prober, resolver, settings),
		Alerts:   a.alerts,
	}

	if withServer {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.exporter = metrics.NewExporter(cfg.Chain.Name, cfg.Advanced.Prometheus.MetricsPrefix, a.registry)
		a.dashboard = dashboard.NewServer(*cfg, a.registry)
		deps.Metrics = a.exporter
		deps.Dashboard = a.dashboard
	}

	a.monitor = monitor.New(deps)
	return a, nil
}

func (a *app) Close() {
	a.rpc.Close()
}

// setupInfo counts validators through the registry so a contract-discovered
// list is reported too. A lookup failure leaves the count at zero.
func (a *app) setupInfo(ctx context.Context) alerts.SetupInfo {
	count := 0
	if addrs, err := a.validators.Addresses(ctx); err != nil {
		logger.Warn("INIT", "Could not resolve validator list for setup message: %v", err)
	} else {
		count = len(addrs)
	}
	return alerts.SetupInfo{
		Validators:    count,
		CheckInterval: a.cfg.Schedule.CheckIntervalDuration(),
		DailySummary:  a.cfg.Schedule.DailySummary.Enabled,
		SummaryHour:   a.cfg.Schedule.DailySummary.Hour,
		Timezone:      a.cfg.Schedule.DailySummary.Timezone,
	}
}
