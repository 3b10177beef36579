package cli

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aponysus/bamboo/apierr"
	"github.com/aponysus/bamboo/config"
	"github.com/aponysus/bamboo/dataset"
	"github.com/aponysus/bamboo/internal/fakebamboo"
	"github.com/aponysus/bamboo/params"
)

func newCreateCommand(g *globals) *cobra.Command {
	var (
		src dataset.Source
		na  []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a dataset from a file, URL or schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client(cmd)
			if err != nil {
				return err
			}
			if len(na) > 0 {
				src.NAValues = na
			}
			d, err := c.Create(cmd.Context(), src)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.ID())
			return nil
		},
	}
	cmd.Flags().StringVar(&src.Path, "file", "", "path to a CSV or JSON file")
	cmd.Flags().StringVar(&src.URL, "source-url", "", "URL of a CSV file the service fetches")
	cmd.Flags().StringVar(&src.SchemaPath, "schema", "", "path to an SDF schema file")
	cmd.Flags().StringVar(&src.Format, "format", params.FormatCSV, "format of --file: csv or json")
	cmd.Flags().StringSliceVar(&na, "na", nil, "cell values read as missing")
	return cmd
}

func newInfoCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "info <dataset-id>",
		Short: "Show dataset information",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := attach(cmd, g, args[0])
			if err != nil {
				return err
			}
			info, err := d.Info(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, info)
		},
	}
}

// queryFlags collects the loosely typed read arguments handed to params.FromMap.
type queryFlags struct {
	sel      []string
	where    string
	groups   []string
	orderBy  string
	limit    int
	distinct string
	format   string
	count    bool
}

func (q *queryFlags) register(cmd *cobra.Command, withGroups bool) {
	cmd.Flags().StringSliceVar(&q.sel, "select", nil, "columns to return")
	cmd.Flags().StringVar(&q.where, "query", "", "filter document as JSON, e.g. '{\"rating\":\"delectible\"}'")
	cmd.Flags().StringVar(&q.orderBy, "order-by", "", "column to sort by")
	cmd.Flags().IntVar(&q.limit, "limit", 0, "maximum number of rows")
	if withGroups {
		cmd.Flags().StringSliceVar(&q.groups, "group", nil, "columns to group by")
		return
	}
	cmd.Flags().StringVar(&q.distinct, "distinct", "", "return the distinct values of a column")
	cmd.Flags().StringVar(&q.format, "format", "", "response format: csv or json")
	cmd.Flags().BoolVar(&q.count, "count", false, "return the row count only")
}

func (q *queryFlags) query() (params.Query, error) {
	m := map[string]any{}
	if len(q.sel) > 0 {
		m["select"] = q.sel
	}
	if q.where != "" {
		var doc any
		if err := json.Unmarshal([]byte(q.where), &doc); err != nil {
			return params.Query{}, apierr.Validation("params", "query", "not valid JSON: %v", err)
		}
		m["query"] = doc
	}
	if len(q.groups) > 0 {
		m["group"] = q.groups
	}
	m["order_by"] = q.orderBy
	m["limit"] = q.limit
	m["distinct"] = q.distinct
	m["format"] = q.format
	m["count"] = q.count
	return params.FromMap(m)
}

func newDataCommand(g *globals) *cobra.Command {
	q := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "data <dataset-id>",
		Short: "Fetch dataset rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.query()
			if err != nil {
				return err
			}
			d, err := attach(cmd, g, args[0])
			if err != nil {
				return err
			}
			body, err := d.Query(cmd.Context(), query)
			if err != nil {
				return err
			}
			return printBody(cmd, body)
		},
	}
	q.register(cmd, false)
	return cmd
}

func newSummaryCommand(g *globals) *cobra.Command {
	q := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "summary <dataset-id>",
		Short: "Show per-column statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.query()
			if err != nil {
				return err
			}
			d, err := attach(cmd, g, args[0])
			if err != nil {
				return err
			}
			body, err := d.Summary(cmd.Context(), query)
			if err != nil {
				return err
			}
			return printBody(cmd, body)
		},
	}
	q.register(cmd, true)
	return cmd
}

func newCountCommand(g *globals) *cobra.Command {
	var method string
	cmd := &cobra.Command{
		Use:   "count <dataset-id> <column>",
		Short: "Print a summary statistic of a column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := attach(cmd, g, args[0])
			if err != nil {
				return err
			}
			n, err := d.Count(cmd.Context(), args[1], method)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	cmd.Flags().StringVar(&method, "method", "count", "statistic: count, mean, min, max, std or a percentile")
	return cmd
}

func newColumnsCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "columns <dataset-id>",
		Short: "List column names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := attach(cmd, g, args[0])
			if err != nil {
				return err
			}
			cols, err := d.Columns(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(cols, "\n"))
			return nil
		},
	}
}

func newCalcCommand(g *globals) *cobra.Command {
	calc := &cobra.Command{
		Use:   "calc",
		Short: "Manage calculations and aggregations",
	}

	add := &cobra.Command{
		Use:   "add <dataset-id> <formula>",
		Short: `Add a calculation, e.g. "double_amount = amount * 2"`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := attach(cmd, g, args[0])
			if err != nil {
				return err
			}
			ok, err := d.AddCalculation(cmd.Context(), args[1])
			return report(cmd, ok, err)
		},
	}

	var groups []string
	agg := &cobra.Command{
		Use:   "agg <dataset-id> <formula>",
		Short: `Add an aggregation, e.g. "total = sum(amount)"`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := attach(cmd, g, args[0])
			if err != nil {
				return err
			}
			ok, err := d.AddAggregation(cmd.Context(), args[1], groups...)
			return report(cmd, ok, err)
		},
	}
	agg.Flags().StringSliceVar(&groups, "group", nil, "columns to group by")

	list := &cobra.Command{
		Use:   "list <dataset-id>",
		Short: "List calculations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := attach(cmd, g, args[0])
			if err != nil {
				return err
			}
			defs, err := d.Calculations(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, defs)
		},
	}

	rm := &cobra.Command{
		Use:   "rm <dataset-id> <name>",
		Short: "Remove a calculation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := attach(cmd, g, args[0])
			if err != nil {
				return err
			}
			ok, err := d.RemoveCalculation(cmd.Context(), args[1])
			return report(cmd, ok, err)
		},
	}

	calc.AddCommand(add, agg, list, rm)
	return calc
}

func newDeleteCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <dataset-id>",
		Short: "Delete a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := attach(cmd, g, args[0])
			if err != nil {
				return err
			}
			ok, err := d.Delete(cmd.Context())
			return report(cmd, ok, err)
		},
	}
}

func newVersionCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the service version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client(cmd)
			if err != nil {
				return err
			}
			body, err := c.Version(cmd.Context())
			if err != nil {
				return err
			}
			return printBody(cmd, body)
		},
	}
}

func newSandboxCommand() *cobra.Command {
	var (
		addr  string
		level string
	)
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Serve an in-memory bamboo service for local experiments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := config.NewLogger(config.Log{Level: level, Format: config.FormatConsole}, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			srv := &http.Server{
				Handler:           fakebamboo.New(fakebamboo.WithLogger(logger)),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-cmd.Context().Done()
				_ = srv.Close()
			}()

			logger.Info().Str("addr", ln.Addr().String()).Msg("sandbox listening")
			fmt.Fprintf(cmd.OutOrStdout(), "http://%s\n", ln.Addr())
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&level, "log-level", zerolog.LevelInfoValue, "log level")
	return cmd
}

func attach(cmd *cobra.Command, g *globals, id string) (*dataset.Dataset, error) {
	c, err := g.client(cmd)
	if err != nil {
		return nil, err
	}
	return c.Attach(id)
}

func report(cmd *cobra.Command, ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("not acknowledged by the service")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}
