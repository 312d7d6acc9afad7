package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"escrowScope/internal/aggregate"
	"escrowScope/internal/config"
)

func runStats(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	weeks, _ := cmd.Flags().GetInt("weeks")
	top, _ := cmd.Flags().GetInt("top")

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := aggregate.NewService(store).Analytics(ctx, aggregate.Options{Weeks: weeks, Top: top})
	if err != nil {
		return err
	}
	renderAnalytics(os.Stdout, report)
	return nil
}

func renderAnalytics(out io.Writer, report aggregate.Analytics) {
	totals := table.NewWriter()
	totals.SetOutputMirror(out)
	totals.SetTitle(fmt.Sprintf("Escrows as of %s", report.GeneratedAt.Format("2006-01-02 15:04 MST")))
	totals.AppendHeader(table.Row{"Chain", "Escrows", "Volume", "Open", "Completed", "Disputed", "Resolved", "Expired", "Cancelled", "Completion", "Dispute rate"})
	for _, t := range report.Chains {
		totals.AppendRow(totalsRow(string(t.Chain), t))
	}
	totals.AppendFooter(totalsRow("all", report.Overall))
	totals.Render()

	trend := table.NewWriter()
	trend.SetOutputMirror(out)
	trend.SetTitle("Weekly trend")
	trend.AppendHeader(table.Row{"Week", "Created", "Completed", "Disputed", "Volume"})
	for _, b := range report.WeeklyTrend {
		trend.AppendRow(table.Row{b.Start.Format("2006-01-02"), b.Created, b.Completed, b.Disputed, b.Volume})
	}
	trend.Render()

	agents := table.NewWriter()
	agents.SetOutputMirror(out)
	agents.SetTitle("Top agents")
	agents.AppendHeader(table.Row{"#", "Chain", "Agent", "Escrows", "Volume"})
	for i, a := range report.TopAgents {
		agents.AppendRow(table.Row{i + 1, a.Chain, a.Agent, a.TotalEscrows, a.TotalVolume})
	}
	agents.Render()
}

func totalsRow(label string, t aggregate.Totals) table.Row {
	return table.Row{
		label,
		t.TotalEscrows,
		t.TotalVolume,
		t.Open,
		t.Completed,
		t.Disputed,
		t.Resolved,
		t.Expired,
		t.Cancelled,
		fmt.Sprintf("%.1f%%", t.CompletionRate),
		fmt.Sprintf("%.1f%%", t.DisputeRate),
	}
}
