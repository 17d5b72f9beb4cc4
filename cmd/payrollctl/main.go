// Package main provides payrollctl, the operator CLI for the payroll engine.
//
// It runs batch recalculations, reads finalized history and checks rates
// documents against the same store and rates the server uses.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store"
)

const (
	Version = "0.1.0"
	appName = "payrollctl"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the persistent flags shared by every subcommand.
type options struct {
	driver      string
	dsn         string
	ratesFile   string
	concurrency int
	verbose     bool
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Operate the payroll engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.applyDefaults(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.driver, "driver", "", "Store driver: sqlite or postgres (default from DB_DRIVER)")
	cmd.PersistentFlags().StringVar(&opts.dsn, "db", "", "SQLite path or Postgres URL (default from DB_DSN)")
	cmd.PersistentFlags().StringVar(&opts.ratesFile, "rates", "", "Rates document (default from RATES_FILE)")
	cmd.PersistentFlags().IntVar(&opts.concurrency, "concurrency", 0, "Batch concurrency (default from BATCH_CONCURRENCY)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log engine activity to stderr")

	cmd.AddCommand(
		batchCmd(opts),
		historyCmd(opts),
		ratesCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)
	return cmd
}

// applyDefaults fills unset flags from the environment.
func (o *options) applyDefaults(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if !flags.Changed("driver") {
		o.driver = cfg.Database.Driver
	}
	if !flags.Changed("db") {
		o.dsn = cfg.Database.DSN
	}
	if !flags.Changed("rates") {
		o.ratesFile = cfg.Payroll.RatesFile
	}
	if !flags.Changed("concurrency") {
		o.concurrency = cfg.Payroll.BatchConcurrency
	}
	return nil
}

func (o *options) rates() (payroll.Rates, error) {
	if o.ratesFile == "" {
		return payroll.Rates{}, errors.New("a rates document is required (--rates or RATES_FILE)")
	}
	return factory.LoadRatesFile(o.ratesFile)
}

// engine opens the store and builds an engine on it. The caller closes
// the returned backend.
func (o *options) engine(ctx context.Context) (*payroll.Engine, store.Backend, error) {
	rates, err := o.rates()
	if err != nil {
		return nil, nil, err
	}
	backend, err := store.Open(ctx, o.driver, o.dsn)
	if err != nil {
		return nil, nil, err
	}

	logger := zap.NewNop()
	if o.verbose {
		zc := zap.NewDevelopmentConfig()
		zc.OutputPaths = []string{"stderr"}
		if logger, err = zc.Build(); err != nil {
			backend.Close()
			return nil, nil, err
		}
	}

	engine, err := payroll.NewEngine(backend, rates,
		payroll.WithLogger(logger),
		payroll.WithBatchConcurrency(o.concurrency),
	)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	return engine, backend, nil
}

// =============================================================================
// BATCH
// =============================================================================

func batchCmd(opts *options) *cobra.Command {
	var failOnError bool

	cmd := &cobra.Command{
		Use:   "batch PERIOD [EMPLOYEE_ID...]",
		Short: "Recalculate payroll for a period (YYYY-MM)",
		Long: `Recalculates every listed employee, or every employee when none are
listed. Failures are reported per employee and do not stop the run.
Approved and locked records are reported as failures and left unchanged.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := api.ParsePeriod(args[0])
			if err != nil {
				return fmt.Errorf("invalid period %q (use YYYY-MM)", args[0])
			}

			ctx := cmd.Context()
			engine, backend, err := opts.engine(ctx)
			if err != nil {
				return err
			}
			defer backend.Close()

			res, err := engine.CalculateBatch(ctx, period, args[1:])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "period %s: %d succeeded, %d failed\n", period, len(res.Succeeded), len(res.Failed))
			for _, rec := range res.Succeeded {
				fmt.Fprintf(out, "  ok    %-16s %-16s net %s\n", rec.EmployeeID, rec.Status, rec.NetSalary.StringFixed(2))
			}
			for _, f := range res.Failed {
				fmt.Fprintf(out, "  fail  %-16s %s\n", f.EmployeeID, f.Reason)
			}
			if failOnError && len(res.Failed) > 0 {
				return fmt.Errorf("%d employee(s) failed", len(res.Failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "Exit non-zero when any employee fails")
	return cmd
}

// =============================================================================
// HISTORY
// =============================================================================

func historyCmd(opts *options) *cobra.Command {
	var employeeID, period string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finalized payroll snapshots as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter payroll.HistoryFilter
			if employeeID != "" {
				filter.EmployeeID = &employeeID
			}
			if period != "" {
				p, err := api.ParsePeriod(period)
				if err != nil {
					return fmt.Errorf("invalid period %q (use YYYY-MM)", period)
				}
				filter.Period = &p
			}

			ctx := cmd.Context()
			engine, backend, err := opts.engine(ctx)
			if err != nil {
				return err
			}
			defer backend.Close()

			snaps, err := engine.History(ctx, filter)
			if err != nil {
				return err
			}
			if snaps == nil {
				snaps = []payroll.PayrollHistory{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snaps)
		},
	}
	cmd.Flags().StringVar(&employeeID, "employee", "", "Filter by employee id")
	cmd.Flags().StringVar(&period, "period", "", "Filter by period (YYYY-MM)")
	return cmd
}

// =============================================================================
// RATES
// =============================================================================

func ratesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Inspect rates documents",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check [FILE]",
		Short: "Validate a rates document and print the effective rates as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.ratesFile = args[0]
			}
			rates, err := opts.rates()
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(factory.ToDocument(rates))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s is valid\n%s", opts.ratesFile, out)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "presets",
		Short: "List the named commission presets",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, name := range factory.PresetNames() {
				c, _ := factory.CommissionPreset(name)
				fmt.Fprintf(out, "%-10s rate %s  tax_rate %s\n", name, c.Rate, c.TaxRate)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "tax AMOUNT",
		Short: "Print the income tax for a monthly amount under the loaded rates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rates, err := opts.rates()
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			tax := payroll.TaxTable(rates.TaxBrackets).Compute(amount)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", tax.String())
			return nil
		},
	})
	return cmd
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}
