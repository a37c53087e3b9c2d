package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/toolrun/internal/engine"
	"github.com/jackzampolin/toolrun/internal/output"
	"github.com/jackzampolin/toolrun/internal/tool"
)

var (
	batchFailFast    bool
	batchParallelism int
	batchSave        bool
	batchMetricsAddr string
)

var batchCmd = &cobra.Command{
	Use:   "batch <file.jsonl|->",
	Short: "Execute many invocations concurrently",
	Long: `Execute a file of invocation envelopes, one JSON object per line.

Invocations run concurrently, bounded by limits.max_concurrent_tools.
Results are reported in input order together with resource usage and
a per-kind summary. Blank lines and lines starting with # are ignored.

Examples:
  toolrun batch calls.jsonl
  toolrun batch calls.jsonl --fail-fast --save
  cat calls.jsonl | toolrun batch - -o json --metrics-addr :9090`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		invs, err := parseJSONL(data)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		if batchMetricsAddr != "" {
			a.serveMetrics(ctx, batchMetricsAddr)
		}

		items, runErr := a.engine.ExecuteAll(ctx, invs, engine.BatchOptions{
			FailFast:    batchFailFast,
			Parallelism: batchParallelism,
		})

		views := make([]runView, len(items))
		for i, item := range items {
			views[i] = newRunView(item.Index, item.Invocation, item.Result, item.Err)
		}
		rep := newReport(a, uuid.NewString(), views)

		if batchSave {
			path, err := saveRun(a.home.RunPath(rep.RunID), views)
			if err != nil {
				return err
			}
			rep.SavedTo = path
		}
		if err := output.Print(rep); err != nil {
			return err
		}
		if runErr != nil {
			return runErr
		}
		if n := rep.failures(); n > 0 {
			return fmt.Errorf("%d of %d invocations failed", n, len(views))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().BoolVar(&batchFailFast, "fail-fast", false, "cancel remaining invocations after the first error")
	batchCmd.Flags().IntVar(&batchParallelism, "parallelism", 0, "max invocations submitted at once (0 = all)")
	batchCmd.Flags().BoolVar(&batchSave, "save", false, "save results under the home runs directory")
	batchCmd.Flags().StringVar(&batchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	rootCmd.AddCommand(batchCmd)
}

// parseJSONL decodes one invocation envelope per non-blank line.
func parseJSONL(data []byte) ([]tool.Invocation, error) {
	var invs []tool.Invocation
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 10<<20)
	for line := 1; sc.Scan(); line++ {
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		inv, err := tool.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		invs = append(invs, inv)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(invs) == 0 {
		return nil, fmt.Errorf("no invocations in input")
	}
	return invs, nil
}

// saveRun writes one JSON line per item and returns the file path.
func saveRun(path string, items []runView) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}
	defer f.Close()
	if err := writeJSONL(f, items); err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}
	return path, nil
}

func writeJSONL(w io.Writer, items []runView) error {
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	return nil
}
