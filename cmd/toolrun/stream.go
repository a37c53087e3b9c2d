package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/toolrun/internal/tool"
)

var streamMetricsAddr string

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Execute invocations read from stdin as they arrive",
	Long: `Read invocation envelopes from stdin, one per line, and execute each as
soon as it arrives. Every result is written to stdout as a JSON line the
moment it completes, so output order follows completion order; use the
index field to match results to input lines.

stream runs until stdin closes or the process is interrupted. While it
runs, expired cache entries are swept on cache.sweep_interval and the
config file is watched: logging.level changes apply immediately.

Examples:
  agent | toolrun stream --metrics-addr 127.0.0.1:9090`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if err := a.startSweeper(ctx); err != nil {
			return err
		}
		a.watchConfig()
		if streamMetricsAddr != "" {
			a.serveMetrics(ctx, streamMetricsAddr)
		}

		var mu sync.Mutex
		enc := json.NewEncoder(cmd.OutOrStdout())
		emit := func(v any) {
			mu.Lock()
			defer mu.Unlock()
			if err := enc.Encode(v); err != nil {
				a.logger.Error("failed to write result", "error", err)
			}
		}

		var g errgroup.Group
		sc := bufio.NewScanner(cmd.InOrStdin())
		sc.Buffer(make([]byte, 0, 64*1024), 10<<20)
		index := 0
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 || line[0] == '#' {
				continue
			}
			i := index
			index++

			inv, err := tool.Parse(line)
			if err != nil {
				emit(runView{Index: i, Error: newErrorView(err)})
				continue
			}
			g.Go(func() error {
				res, err := a.engine.Execute(ctx, inv)
				emit(newRunView(i, inv, res, err))
				return nil
			})
		}
		_ = g.Wait()

		a.logger.Debug("stream finished", "invocations", index, "usage", a.engine.String())
		return sc.Err()
	},
}

func init() {
	streamCmd.Flags().StringVar(&streamMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.AddCommand(streamCmd)
}
