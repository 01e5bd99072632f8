package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pbaille/timeline/internal/api"
	"github.com/pbaille/timeline/internal/collector"
	"github.com/pbaille/timeline/internal/config"
	"github.com/pbaille/timeline/internal/domain"
	"github.com/pbaille/timeline/internal/pipeline"
)

var (
	configPath string
	dbPath     string
	logLevel   string
	include    string
	exclude    string
	color      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "timeline",
		Short:         "Local-first daily activity timeline",
		Long:          "Aggregates git commits, shell history, browser visits, session events and\ncalendar entries into a chronological timeline of your workday.\n\nRun 'timeline init' to create a configuration.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.timeline/config.yaml, or $TIMELINE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides general.db_path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&include, "include", "", "only show these sources (comma-separated)")
	rootCmd.PersistentFlags().StringVar(&exclude, "exclude", "", "hide these sources (comma-separated)")
	rootCmd.PersistentFlags().StringVar(&color, "color", "", "auto, always or never")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(collectCmd())
	rootCmd.AddCommand(transformCmd())
	rootCmd.AddCommand(summarizeCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(backfillCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(serveCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for configuration and argument errors, 1 otherwise.
func exitCode(err error) int {
	var cfgErr *domain.ConfigError
	var argErr *domain.ArgumentError
	if errors.As(err, &cfgErr) || errors.As(err, &argErr) {
		return 2
	}
	return 1
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = config.DefaultPath()
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			fmt.Println("Edit git authors, repos and project mappings, then run 'timeline run'.")
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var quick, refresh bool
	var groupBy, format string

	cmd := &cobra.Command{
		Use:   "run [date]",
		Short: "Collect, transform, summarize and show a day",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			r, err := a.dateArg(args)
			if err != nil {
				return err
			}
			d, err := a.display(groupBy)
			if err != nil {
				return err
			}
			p, err := a.pipeline(format, !quick)
			if err != nil {
				return err
			}
			return p.Run(cmd.Context(), r, pipeline.RunOptions{
				Quick:   quick,
				Refresh: refresh,
				Filter:  a.filter,
				Display: d,
			})
		},
	}

	cmd.Flags().BoolVar(&quick, "quick", false, "skip summarization")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-collect expensive sources and regenerate the summary")
	cmd.Flags().StringVar(&groupBy, "group-by", "", "flat, hour or period")
	cmd.Flags().StringVar(&format, "format", "", "text or json")
	return cmd
}

func collectCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "collect [date]",
		Short: "Collect raw records without transforming",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			r, err := a.dateArg(args)
			if err != nil {
				return err
			}
			p, err := a.pipeline("", false)
			if err != nil {
				return err
			}
			results, err := p.Collect(cmd.Context(), r, refresh)
			if err != nil {
				return err
			}

			for _, res := range results {
				switch {
				case res.Err != nil:
					fmt.Printf("  %-9s failed: %v\n", res.Source, res.Err)
				case res.Decision == collector.Reuse:
					fmt.Printf("  %-9s cached\n", res.Source)
				default:
					fmt.Printf("  %-9s %d found, %d new\n", res.Source, res.Found, res.Inserted)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-collect expensive sources")
	return cmd
}

func transformCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transform [date]",
		Short: "Rebuild timeline events from stored raw records",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			r, err := a.dateArg(args)
			if err != nil {
				return err
			}
			p, err := a.pipeline("", false)
			if err != nil {
				return err
			}
			res, err := p.Transform(cmd.Context(), r)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d raw records, %d events, %d dropped\n", r, res.Raw, res.Events, res.Dropped)
			return nil
		},
	}
}

func summarizeCmd() *cobra.Command {
	var refresh bool
	var week string

	cmd := &cobra.Command{
		Use:   "summarize [date]",
		Short: "Generate the daily or weekly summary",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			r, period, err := a.periodArgs(args, week)
			if err != nil {
				return err
			}
			p, err := a.pipeline("", true)
			if err != nil {
				return err
			}
			summary, err := p.Summarize(cmd.Context(), r, period, refresh)
			if err != nil {
				return err
			}
			if summary == nil {
				fmt.Println("No summary generated.")
				return nil
			}
			fmt.Println(summary.Text)
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "regenerate an existing summary")
	cmd.Flags().StringVar(&week, "week", "", "summarize an ISO week (YYYY-Wnn, Wnn, n or this)")
	return cmd
}

func showCmd() *cobra.Command {
	var groupBy, format, week string

	cmd := &cobra.Command{
		Use:   "show [date]",
		Short: "Show stored events without collecting",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			r, period, err := a.periodArgs(args, week)
			if err != nil {
				return err
			}
			d, err := a.display(groupBy)
			if err != nil {
				return err
			}
			p, err := a.pipeline(format, false)
			if err != nil {
				return err
			}
			return p.Show(cmd.Context(), r, pipeline.ShowOptions{Filter: a.filter, Display: d, Period: period})
		},
	}

	cmd.Flags().StringVar(&groupBy, "group-by", "", "flat, hour or period")
	cmd.Flags().StringVar(&format, "format", "", "text or json")
	cmd.Flags().StringVar(&week, "week", "", "show an ISO week (YYYY-Wnn, Wnn, n or this)")
	return cmd
}

// periodArgs resolves [date] or --week, which are mutually exclusive.
func (a *app) periodArgs(args []string, week string) (domain.DateRange, domain.PeriodType, error) {
	if week == "" {
		r, err := a.dateArg(args)
		return r, domain.PeriodDay, err
	}
	if len(args) > 0 {
		return domain.DateRange{}, "", &domain.ArgumentError{Arg: "week", Msg: "cannot combine a date with --week"}
	}
	r, err := a.weekArg(week)
	return r, domain.PeriodWeek, err
}

func backfillCmd() *cobra.Command {
	var months int
	var force, includeAPI, summarize bool

	cmd := &cobra.Command{
		Use:   "backfill [start] [end]",
		Short: "Load historical data one day at a time",
		Long: `Load historical data for a date range. Days that already have events are
skipped unless --force is given, so an interrupted backfill can be resumed.

Examples:
  timeline backfill 2026-01-01              # Jan 1 to today
  timeline backfill 2026-01-01 2026-01-31   # specific range
  timeline backfill --months 3              # last 3 months`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			r, err := a.backfillRange(args, months)
			if err != nil {
				return err
			}
			p, err := a.pipeline("", summarize)
			if err != nil {
				return err
			}

			fmt.Printf("Backfilling %s (%d days)\n", r, r.Days())
			report, err := p.Backfill(cmd.Context(), r, pipeline.BackfillOptions{
				Force:            force,
				IncludeExpensive: includeAPI,
				Summarize:        summarize,
				Progress: func(d pipeline.DayReport) {
					note := ""
					if d.Cached {
						note = " (existing)"
					}
					fmt.Printf("  [%d/%d] %s: %d events%s\n", d.Index, d.Total, d.Day, d.Events, note)
				},
			})
			if err != nil {
				return err
			}
			fmt.Printf("Done: %d days collected, %d skipped, %d events\n", report.Collected, report.Skipped, report.Events)
			return nil
		},
	}

	cmd.Flags().IntVar(&months, "months", 0, "backfill the last N months instead of dates")
	cmd.Flags().BoolVar(&force, "force", false, "re-collect days that already have data")
	cmd.Flags().BoolVar(&includeAPI, "include-api", false, "include expensive collectors")
	cmd.Flags().BoolVar(&summarize, "summarize", false, "summarize each collected day")
	return cmd
}

// backfillRange is the last --months months, or start to end (today when
// omitted).
func (a *app) backfillRange(args []string, months int) (domain.DateRange, error) {
	if months > 0 {
		return domain.LastNMonths(months, a.loc), nil
	}
	if len(args) == 0 {
		return domain.DateRange{}, &domain.ArgumentError{Arg: "backfill", Msg: "provide a start date or --months"}
	}
	start, err := domain.ParseDate(args[0], a.loc)
	if err != nil {
		return domain.DateRange{}, err
	}
	end := domain.Today(a.loc)
	if len(args) > 1 {
		if end, err = domain.ParseDate(args[1], a.loc); err != nil {
			return domain.DateRange{}, err
		}
	}
	return domain.NewDateRange(start.Start, end.End)
}

func resetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all collected data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			path := a.cfg.General.DBPath
			if !yes && !confirm(fmt.Sprintf("Delete all data in %s?", path)) {
				fmt.Println("Aborted.")
				return nil
			}
			if err := a.store.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Database cleared. Run 'timeline run' to start fresh.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the timeline as a read-only JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			if addr == "" {
				addr = a.cfg.API.Addr
			}
			srv := api.New(api.Options{
				Store:    a.store,
				Metrics:  a.metrics,
				Location: a.loc,
				Logger:   a.logger,
				Addr:     addr,
			})
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default api.addr)")
	return cmd
}
