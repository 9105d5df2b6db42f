package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/SIMOUNIX/harvestor/internal/common"
	"github.com/SIMOUNIX/harvestor/internal/export"
	"github.com/SIMOUNIX/harvestor/internal/harvest"
	"github.com/SIMOUNIX/harvestor/internal/models"
	"github.com/SIMOUNIX/harvestor/internal/schema"
	"github.com/SIMOUNIX/harvestor/internal/store"
)

type flags struct {
	config   string
	model    string
	output   string
	pretty   bool
	full     bool
	validate bool
	redact   bool
	xlsx     string
	storeDSN string
	logLevel string
}

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:           "harvestor <file> <schema>",
		Short:         "Extract structured data from documents using AI",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runHarvest(cmd.Context(), f, args[0], args[1], stdout, stderr)
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
			}
			return err
		},
	}

	fl := root.Flags()
	fl.StringVarP(&f.model, "model", "m", "", "model to use (default from config, claude-haiku)")
	fl.StringVarP(&f.output, "output", "o", "", "output file path (default: stdout)")
	fl.BoolVar(&f.pretty, "pretty", false, "pretty print JSON output")
	fl.BoolVar(&f.full, "full", false, "print the full result instead of the extracted data")
	fl.BoolVar(&f.validate, "validate", false, "run validation and fraud rules")
	fl.BoolVar(&f.redact, "redact", false, "redact PII before text reaches the model")
	fl.StringVar(&f.xlsx, "xlsx", "", "also write an XLSX workbook to this path")
	fl.StringVar(&f.storeDSN, "store", "", "persist the result (postgres:// DSN or SQLite path)")
	root.PersistentFlags().StringVar(&f.config, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(newModelsCmd(stdout))
	return root
}

func newModelsCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List supported models and their prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPROVIDER\tINPUT $/M\tOUTPUT $/M\tVISION")
			for _, m := range models.List() {
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%t\n",
					m.Name, m.Provider, m.InputCostPerMillion, m.OutputCostPerMillion, m.SupportsVision)
			}
			return tw.Flush()
		},
	}
}

// setup loads config, opens the optional store and builds the harvester.
// The returned cleanup must run even when err is nil.
func setup(ctx context.Context, f flags, schemaName string, stderr io.Writer) (*harvest.Harvester, *slog.Logger, func(), error) {
	cleanup := func() {}
	cfg, err := common.LoadConfig(f.config)
	if err != nil {
		return nil, nil, cleanup, err
	}
	if f.model != "" {
		cfg.OverrideModel(f.model)
	}
	if f.storeDSN != "" {
		cfg.Store.DSN = f.storeDSN
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, cleanup, err
	}

	logger := common.NewLogger(stderr, f.logLevel)
	slog.SetDefault(logger)

	s, err := schema.Resolve(schemaName)
	if err != nil {
		return nil, nil, cleanup, err
	}

	opts := harvest.OptionsFromConfig(cfg)
	opts = append(opts, harvest.WithSchema(s), harvest.WithLogger(logger))
	if f.validate {
		opts = append(opts, harvest.WithValidation())
	}
	if f.redact {
		opts = append(opts, harvest.WithRedaction())
	}

	if cfg.Store.DSN != "" {
		db, err := store.Open(ctx, store.Config{DSN: cfg.Store.DSN, DialTimeout: 5 * time.Second}, logger)
		if err != nil {
			return nil, nil, cleanup, err
		}
		cleanup = db.Close
		if err := db.Migrate(ctx); err != nil {
			return nil, nil, cleanup, err
		}
		opts = append(opts, harvest.WithStore(store.New(db, logger)))
	}

	h, err := harvest.New(opts...)
	if err != nil {
		return nil, nil, cleanup, err
	}
	return h, logger, cleanup, nil
}

func runHarvest(ctx context.Context, f flags, path, schemaName string, stdout, stderr io.Writer) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file not found: %s", path)
	}
	h, logger, cleanup, err := setup(ctx, f, schemaName, stderr)
	defer cleanup()
	if err != nil {
		return err
	}

	ctx = common.WithRequestID(ctx, uuid.NewString())
	res, err := h.Harvest(ctx, path, "")
	printCostSummary(stderr, h, res)

	if f.xlsx != "" {
		if xerr := export.NewService(logger).WriteFile(ctx, f.xlsx, []*harvest.Result{res}, h.Tracker().Records()); xerr != nil {
			return xerr
		}
	}
	if err != nil {
		return err
	}
	if !res.Success {
		return errors.New(res.Error)
	}

	var payload any = res.Data
	if f.full {
		payload = res
	}
	return writeOutput(stdout, f, payload)
}

func writeOutput(stdout io.Writer, f flags, payload any) error {
	out, err := marshal(payload, f.pretty)
	if err != nil {
		return err
	}
	if f.output != "" {
		return os.WriteFile(f.output, out, 0o644)
	}
	_, err = fmt.Fprintln(stdout, string(out))
	return err
}

func marshal(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

func printCostSummary(w io.Writer, h *harvest.Harvester, res *harvest.Result) {
	st := h.Tracker().Stats()
	var b strings.Builder
	fmt.Fprintf(&b, "cost: $%.6f (%d in / %d out tokens, model %s", res.TotalCost, res.InputTokens, res.OutputTokens, res.Model)
	if st.TotalCalls > 0 {
		fmt.Fprintf(&b, ", %d call(s)", st.TotalCalls)
	}
	b.WriteString(")")
	if res.Validation != nil {
		fmt.Fprintf(&b, " validation: valid=%t fraud_risk=%s", res.Validation.IsValid, res.Validation.FraudRisk)
	}
	fmt.Fprintln(w, b.String())
}
