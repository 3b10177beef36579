// Package cli implements the bamboo command-line tool.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aponysus/bamboo/bamboo"
	"github.com/aponysus/bamboo/config"
	"github.com/aponysus/bamboo/connection"
)

type globals struct {
	configPath string
	url        string
	logLevel   string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "bamboo",
		Short: "Work with datasets on a bamboo service",
		Long: `bamboo creates, queries, transforms and deletes datasets on a bamboo
service from the command line.

Examples:
  # Upload a CSV file
  bamboo create --file good_eats.csv

  # Show dataset information
  bamboo info <dataset-id>

  # Add a calculation
  bamboo calc add <dataset-id> "double_amount = amount * 2"

  # Run a local in-memory service for experiments
  bamboo sandbox --addr 127.0.0.1:8080
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", os.Getenv("BAMBOO_CONFIG"), "path to a YAML configuration file")
	root.PersistentFlags().StringVar(&g.url, "url", "", "bamboo service URL (overrides configuration)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (overrides configuration)")

	root.AddCommand(
		newCreateCommand(g),
		newInfoCommand(g),
		newDataCommand(g),
		newSummaryCommand(g),
		newCountCommand(g),
		newColumnsCommand(g),
		newCalcCommand(g),
		newDeleteCommand(g),
		newVersionCommand(g),
		newSandboxCommand(),
	)
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (g *globals) client(cmd *cobra.Command) (*bamboo.Client, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.url != "" {
		cfg.URL = g.url
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := config.NewLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return bamboo.New(cfg, bamboo.WithLogger(logger))
}

func printBody(cmd *cobra.Command, body connection.Body) error {
	var out bytes.Buffer
	if err := json.Indent(&out, body.Raw(), "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err := cmd.OutOrStdout().Write(out.Bytes())
	return err
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
