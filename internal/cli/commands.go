package cli

import (
	"fmt"
	"log"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/streamhouse/streamhouse/internal/app"
	"github.com/streamhouse/streamhouse/internal/registrar"
)

func parseAt(at string) (time.Time, error) {
	if at == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at must be RFC3339: %w", err)
	}
	return t, nil
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduled registrars and the trigger endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			printBanner(a)

			if err := a.Start(cmd.Context()); err != nil {
				a.Stop(cmd.Context())
				return err
			}
			return a.WaitForShutdown(cmd.Context())
		},
	}
}

// printBanner prints the startup banner with a configuration summary.
func printBanner(a *app.App) {
	cfg := a.Config()
	log.Printf("╔═══════════════════════════════════════════════════════════╗")
	log.Printf("║                     STREAMHOUSE                           ║")
	log.Printf("║     Hourly partition registration for streaming tables    ║")
	log.Printf("╚═══════════════════════════════════════════════════════════╝")
	log.Printf("")
	log.Printf("Configuration:")
	log.Printf("  Stage:    %s", cfg.Stage)
	log.Printf("  Database: %s", cfg.Database)
	log.Printf("  Storage:  %s (%s)", cfg.Storage.Type, cfg.Storage.Root)
	log.Printf("  Catalog:  %s", cfg.Catalog.Type)
	if cfg.HTTP.Addr != "" {
		log.Printf("  HTTP:     %s", cfg.HTTP.Addr)
	}
	if d := cfg.ScheduleOverride(); d > 0 {
		log.Printf("  Schedule: every %s (dev override)", d)
	}
	log.Printf("")

	for _, rc := range a.Warehouse().RegistrarConfigs() {
		log.Printf("Registrar %s: schedule=%q window=%d key=%s", rc.Table, rc.Schedule, rc.Window, rc.PartitionKeyName)
	}
	log.Printf("")
}

func newTickCmd(flags *globalFlags) *cobra.Command {
	var table, at string

	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Register the partition window of one or every streaming table now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, err := parseAt(at)
			if err != nil {
				return err
			}
			return withApp(cmd, flags, func(a *app.App) error {
				if table != "" {
					res, err := a.Tick(cmd.Context(), table, ref)
					if err != nil {
						return err
					}
					return printTicks(cmd, flags, []tickRow{rowOf(table, res, nil)})
				}

				var rows []tickRow
				failed := 0
				for _, r := range a.TickAll(cmd.Context(), ref) {
					if r.Err != nil {
						failed++
					}
					rows = append(rows, rowOf(r.Table, r.Tick, r.Err))
				}
				if err := printTicks(cmd, flags, rows); err != nil {
					return err
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d table(s) failed to register", failed, len(rows))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "Table to tick; all streaming tables when empty")
	cmd.Flags().StringVar(&at, "at", "", "Reference time in RFC3339; now when empty")
	return cmd
}

type tickRow struct {
	Table      string   `json:"table"`
	Partitions []string `json:"partitions,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	Error      string   `json:"error,omitempty"`
}

func rowOf(table string, res *registrar.TickResult, err error) tickRow {
	row := tickRow{Table: table}
	if res != nil {
		row.Partitions = res.Keys
		row.DurationMS = res.Duration.Milliseconds()
	}
	if err != nil {
		row.Error = err.Error()
	}
	return row
}

func printTicks(cmd *cobra.Command, flags *globalFlags, rows []tickRow) error {
	if flags.output == "json" {
		return printJSON(cmd.OutOrStdout(), rows)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tFIRST\tLAST\tCOUNT\tSTATUS")
	for _, r := range rows {
		first, last, status := "-", "-", "ok"
		if n := len(r.Partitions); n > 0 {
			first, last = r.Partitions[0], r.Partitions[n-1]
		}
		if r.Error != "" {
			status = r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.Table, first, last, len(r.Partitions), status)
	}
	return w.Flush()
}

func newRenderCmd(flags *globalFlags) *cobra.Command {
	var table, at string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the statement a tick would submit without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, err := parseAt(at)
			if err != nil {
				return err
			}
			return withApp(cmd, flags, func(a *app.App) error {
				keys, stmt, err := a.Render(table, ref)
				if err != nil {
					return err
				}
				if flags.output == "json" {
					return printJSON(cmd.OutOrStdout(), map[string]interface{}{
						"table":      table,
						"partitions": keys,
						"statement":  stmt,
					})
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), stmt)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "Streaming table")
	cmd.Flags().StringVar(&at, "at", "", "Reference time in RFC3339; now when empty")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

type tableRow struct {
	Name      string `json:"name"`
	Format    string `json:"format"`
	Location  string `json:"location"`
	Keys      string `json:"partition_keys"`
	Streaming bool   `json:"streaming"`
	Shards    int    `json:"shards,omitempty"`
	Schedule  string `json:"schedule,omitempty"`
	Window    int    `json:"window,omitempty"`
}

func newTablesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the warehouse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(a *app.App) error {
				rows, err := tableRows(a)
				if err != nil {
					return err
				}
				if flags.output == "json" {
					return printJSON(cmd.OutOrStdout(), rows)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tFORMAT\tKEYS\tSHARDS\tSCHEDULE\tLOCATION")
				for _, r := range rows {
					shards, schedule := "-", "-"
					if r.Streaming {
						shards, schedule = fmt.Sprint(r.Shards), r.Schedule
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Name, r.Format, r.Keys, shards, schedule, r.Location)
				}
				return w.Flush()
			})
		},
	}
}

func tableRows(a *app.App) ([]tableRow, error) {
	wh := a.Warehouse()
	streaming := make(map[string]bool)
	for _, name := range wh.ListStreamingTables() {
		streaming[name] = true
	}

	var rows []tableRow
	for _, name := range wh.ListTables() {
		t, err := wh.GetTable(name)
		if err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(t.PartitionKeys))
		for _, k := range t.PartitionKeys {
			keys = append(keys, k.Name)
		}
		row := tableRow{
			Name:     t.Name,
			Format:   string(t.Format),
			Location: t.Location,
			Keys:     strings.Join(keys, ","),
		}
		if streaming[name] {
			b, err := wh.GetInputStream(name)
			if err != nil {
				return nil, err
			}
			rc, err := wh.GetRegistrarConfig(name)
			if err != nil {
				return nil, err
			}
			row.Streaming = true
			row.Shards = b.ShardCount
			row.Schedule = rc.Schedule
			row.Window = rc.Window
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func newPartitionsCmd(flags *globalFlags) *cobra.Command {
	var table string

	cmd := &cobra.Command{
		Use:   "partitions",
		Short: "List the partitions registered in the catalog for a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(a *app.App) error {
				parts, err := a.Partitions(cmd.Context(), table)
				if err != nil {
					return err
				}
				if flags.output == "json" {
					return printJSON(cmd.OutOrStdout(), parts)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VALUE\tLOCATION\tREGISTERED")
				for _, p := range parts {
					fmt.Fprintf(w, "%s\t%s\t%s\n", p.Value, p.Location, p.RegisteredAt.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "Table")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func newDriftCmd(flags *globalFlags) *cobra.Command {
	var table string
	var failOnDrift bool

	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Compare stored hour keys with registered partitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(a *app.App) error {
				report, err := a.Drift(cmd.Context(), table)
				if err != nil {
					return err
				}
				if flags.output == "json" {
					if err := printJSON(cmd.OutOrStdout(), report); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "table %s.%s: %d registered, %d stored hour(s), %d object(s)\n",
						report.Database, report.Table, report.Registered, report.StorageKeys, report.Objects)
					for _, key := range report.Unregistered {
						fmt.Fprintf(out, "  unregistered %s\n", key)
					}
					if len(report.Ignored) > 0 {
						fmt.Fprintf(out, "  %d object(s) outside hour directories\n", len(report.Ignored))
					}
				}
				if failOnDrift && report.HasDrift() {
					return fmt.Errorf("table %s has %d unregistered hour(s)", table, len(report.Unregistered))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "Table")
	cmd.Flags().BoolVar(&failOnDrift, "fail-on-drift", false, "Exit non-zero when stored hours are unregistered")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func newGenerateCmd(flags *globalFlags) *cobra.Command {
	var table, at string
	var count int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Deliver synthetic events to a streaming table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be >= 1, got %d", count)
			}
			ref, err := parseAt(at)
			if err != nil {
				return err
			}
			return withApp(cmd, flags, func(a *app.App) error {
				paths, err := a.Generate(cmd.Context(), table, count, ref)
				if err != nil {
					return err
				}
				if flags.output == "json" {
					return printJSON(cmd.OutOrStdout(), map[string]interface{}{
						"table":   table,
						"records": count,
						"objects": paths,
					})
				}
				for _, p := range paths {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "Streaming table")
	cmd.Flags().IntVar(&count, "count", 10, "Number of events")
	cmd.Flags().StringVar(&at, "at", "", "Delivery time in RFC3339; now when empty")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}
