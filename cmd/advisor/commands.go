package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/eddiefleurent/zone_strangler/internal/dashboard"
	"github.com/eddiefleurent/zone_strangler/internal/models"
	"github.com/eddiefleurent/zone_strangler/internal/scheduler"
	"github.com/eddiefleurent/zone_strangler/internal/strategy"
	"github.com/eddiefleurent/zone_strangler/internal/trades"
)

const shutdownGrace = 30 * time.Second

func (a *App) newScheduler() *scheduler.Scheduler {
	hour, minute := a.Config.EODClock()
	return scheduler.New(a.Repo, a.Monitor, a.Generator, a.Logger, scheduler.Config{
		Location:  a.Config.Location(),
		EODHour:   hour,
		EODMinute: minute,
	})
}

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and, when enabled, the dashboard API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := c.app
			log := app.Logger
			if app.Config.IsPaperTrading() {
				log.Info("Paper mode: market data is synthetic")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sched := app.newScheduler()
			if err := sched.Start(ctx); err != nil {
				return fmt.Errorf("start scheduler: %w", err)
			}

			var srv *dashboard.Server
			errCh := make(chan error, 1)
			if app.Config.Dashboard.Enabled {
				srv = dashboard.NewServer(dashboard.Config{
					Port:         app.Config.Dashboard.Port,
					AuthToken:    app.Config.Dashboard.AuthToken,
					MarketStatus: app.Config.MarketStatus,
					Now:          func() time.Time { return app.Now().In(app.Config.Location()) },
				}, app.Repo, app.Trades, app.Builder, sched, app.Metrics, log)
				go func() { errCh <- srv.Start() }()
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
			defer signal.Stop(sigCh)

			var runErr error
		loop:
			for {
				select {
				case sig := <-sigCh:
					if sig == syscall.SIGHUP {
						log.Info("SIGHUP received, reconciling jobs")
						if err := sched.Reconcile(); err != nil {
							log.WithError(err).Error("Reconcile failed")
						}
						continue
					}
					log.WithField("signal", sig.String()).Info("Shutdown signal received")
					break loop
				case err := <-errCh:
					if err != nil {
						runErr = fmt.Errorf("dashboard: %w", err)
					}
					break loop
				case <-ctx.Done():
					break loop
				}
			}

			if srv != nil {
				shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := srv.Shutdown(shutCtx); err != nil {
					log.WithError(err).Warn("Dashboard shutdown failed")
				}
				shutCancel()
			}
			if !sched.Stop(shutdownGrace) {
				log.Warn("Jobs still running after grace period")
			}
			log.Info("Advisor stopped")
			return runErr
		},
	}
}

func newGenerateCmd(c *cli) *cobra.Command {
	var (
		index, horizon, expiry, tag string
		lot                         int
		adopt, asJSON               bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build a strategy table and optionally adopt it",
		Example: `  advisor generate --index NIFTY
  advisor generate --index BANKNIFTY --horizon Monthly --adopt --tag "Expiry week"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := c.app
			idx, err := models.ParseIndex(index)
			if err != nil {
				return err
			}
			h, err := models.ParseHorizon(horizon)
			if err != nil {
				return err
			}
			req := strategy.Request{Index: idx, Horizon: h, LotSize: lot}
			if expiry != "" {
				if req.Expiry, err = models.ParseExpiry(expiry, app.Config.Location()); err != nil {
					return err
				}
			}
			if req.LotSize <= 0 {
				settings, err := app.Repo.Settings()
				if err != nil {
					return err
				}
				req.LotSize = settings.LotSize(idx)
			}

			table, err := app.Builder.Build(cmd.Context(), req)
			if err != nil {
				return err
			}

			var adopted *trades.AdoptResult
			if adopt {
				if adopted, err = app.Trades.Adopt(cmd.Context(), table, tag); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, map[string]interface{}{"table": table, "adopted": adopted})
			}
			printTable(out, table)
			if adopted != nil {
				fmt.Fprintln(out, adopted.Message)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&index, "index", "NIFTY", "NIFTY or BANKNIFTY")
	f.StringVar(&horizon, "horizon", string(models.HorizonWeekly), "Weekly or Monthly")
	f.StringVar(&expiry, "expiry", "", "expiry date, e.g. 14-Aug-2025 (default: next for the horizon)")
	f.IntVar(&lot, "lot", 0, "lot size (default: from settings)")
	f.BoolVar(&adopt, "adopt", false, "adopt all three tiers as running trades")
	f.StringVar(&tag, "tag", "", "entry tag for adopted trades (default: \"<Weekday> Selling\")")
	f.BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newMonitorOnceCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run-monitor-once",
		Short: "Mark running trades to market once and apply target/stop-loss rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := c.app.Monitor.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newEODOnceCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run-eod-once",
		Short: "Send the end-of-day P/L report now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := c.app.Monitor.EOD(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.Text)
			return nil
		},
	}
}

func newRegenSchedulesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "regen-schedules",
		Short: "Assign missing schedule ids and list the jobs the settings produce",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sched := c.app.newScheduler()
			if err := sched.Reconcile(); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), sched.Jobs())
		},
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(w io.Writer, t *models.StrategyTable) {
	fmt.Fprintf(w, "%s %s expiry %s  spot %.2f  lot %d\n", t.Index, t.Horizon, t.ExpiryLabel(), t.Spot, t.LotSize)
	fmt.Fprintf(w, "zones: supply %.2f  demand %.2f\n\n", t.Zones.Supply, t.Zones.Demand)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tCE\tPE\tCE LTP\tPE LTP\tPREMIUM\tTARGET\tSTOP")
	for _, r := range t.Rows {
		fmt.Fprintf(tw, "%s\t%.0f\t%.0f\t%.2f\t%.2f\t%.2f\t%.0f\t%.0f\n",
			r.Tier.Label(), r.CEStrike, r.PEStrike, r.CEPrice, r.PEPrice, r.CombinedPremium, r.TargetAmount, r.StoplossAmount)
	}
	_ = tw.Flush()
	for _, warn := range t.Warnings {
		fmt.Fprintln(w, "warning:", warn)
	}
}
