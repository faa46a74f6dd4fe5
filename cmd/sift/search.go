package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	searchMax int
	batchFile string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run one search and print the response as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		resp, err := a.service.Search(ctx, strings.Join(args, " "), searchMax)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch [query...]",
	Short: "Run several searches with bounded concurrency",
	Long: `Run several searches. Queries come from the arguments and, with --file,
one per line from a file ("-" reads stdin). Blank lines and duplicates are
skipped. Output is a JSON array in input order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		queries := args
		if batchFile != "" {
			more, err := readLines(batchFile)
			if err != nil {
				return err
			}
			queries = append(queries, more...)
		}
		if len(queries) == 0 {
			return errors.New("no queries given")
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		responses, err := a.service.SearchBatch(ctx, queries, searchMax)
		if err != nil {
			logger.Warn("batch interrupted", slog.String("error", err.Error()))
		}
		return printJSON(responses)
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchMax, "max", "n", 0, "Maximum results (0 uses search.default_results)")
	batchCmd.Flags().IntVarP(&searchMax, "max", "n", 0, "Maximum results per query")
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "File with one query per line")
}

func readLines(path string) ([]string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
