package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"lecca.io/oasys-watchtower/internal/logger"
	"lecca.io/oasys-watchtower/internal/monitor"
	"lecca.io/oasys-watchtower/internal/utils"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Monitor validators on the configured schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.dashboard.Start(ctx)
			a.alerts.SendSetup(ctx, a.setupInfo(ctx))

			logger.Info("SYS", "Oasys Watchtower %s started (chain: %s)", version, cfg.Chain.Name)
			err = monitor.NewScheduler(a.monitor, cfg.Schedule).Run(ctx)
			logger.Info("SYS", "Shutting down gracefully...")
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func newCheckCmd() *cobra.Command {
	var (
		notify  bool
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a single monitoring cycle and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			var rep monitor.Report
			if notify {
				rep, err = a.monitor.RunCycle(cmd.Context())
			} else {
				rep, err = a.monitor.Check(cmd.Context())
			}
			if err != nil {
				if notify {
					a.monitor.ReportFailure(cmd.Context(), err)
				}
				return err
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rep.Statuses)
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", false, "send alerts for the results")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print statuses as JSON")
	return cmd
}

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Send the daily summary now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			_, err = a.monitor.SendDailySummary(cmd.Context())
			return err
		},
	}
}

func newNotifyTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify-test",
		Short: "Send a test message to every enabled channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.alerts.SendTest(cmd.Context()); err != nil {
				return fmt.Errorf("test notification: %w", err)
			}
			logger.Info("ALERT", "Test notification delivered")
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func printReport(w io.Writer, rep monitor.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VALIDATOR\tSTATUS\tACTIVE\tJAILED\tSTAKE\tBLOCKS/24H\tLAST BLOCK\tISSUES")
	for _, v := range rep.Statuses {
		last := "-"
		if mins, ok := v.MinutesSinceLastBlock(rep.FinishedAt); ok {
			last = fmt.Sprintf("%dm ago", mins)
		}
		blocks := fmt.Sprintf("%d", v.BlocksValidated24h)
		if v.Approximate {
			blocks = "~" + blocks
		}
		issues := "-"
		if len(v.Issues) > 0 {
			issues = fmt.Sprintf("%q", v.Issues)
		}
		fmt.Fprintf(tw, "%s\t%s %s\t%t\t%t\t%s\t%s\t%s\t%s\n",
			v.ShortAddress, v.Severity.Icon(), v.Severity, v.IsActive, v.IsJailed,
			utils.FormatStake(v.Stake), blocks, last, issues)
	}
	_ = tw.Flush()

	g := rep.Groups
	fmt.Fprintf(w, "\n%d validator(s) checked in %s: %d healthy, %d warning, %d critical, %d error\n",
		len(rep.Statuses), rep.Duration().Round(time.Millisecond),
		len(g.Healthy), len(g.Warning), len(g.Critical), len(g.Error))
}
