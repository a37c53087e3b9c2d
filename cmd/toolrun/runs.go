package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/toolrun/internal/home"
	"github.com/jackzampolin/toolrun/internal/output"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect results saved with --save",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		entries, err := os.ReadDir(h.RunsDir())
		if err != nil && !os.IsNotExist(err) {
			return err
		}

		type savedRun struct {
			ID      string `json:"id" yaml:"id"`
			SavedAt string `json:"saved_at" yaml:"saved_at"`
		}
		var runs []savedRun
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			runs = append(runs, savedRun{
				ID:      strings.TrimSuffix(e.Name(), ".jsonl"),
				SavedAt: info.ModTime().UTC().Format("2006-01-02T15:04:05Z"),
			})
		}
		sort.Slice(runs, func(i, j int) bool { return runs[i].SavedAt > runs[j].SavedAt })
		return output.Print(runs)
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the results of a saved run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		items, err := loadRun(h.RunPath(args[0]))
		if err != nil {
			return err
		}
		return output.Print(report{RunID: args[0], Items: items})
	},
}

func loadRun(path string) ([]runView, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run: %w", err)
	}
	defer f.Close()

	var items []runView
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		var v runView
		if err := json.Unmarshal(sc.Bytes(), &v); err != nil {
			return nil, fmt.Errorf("corrupt run file %s: %w", path, err)
		}
		items = append(items, v)
	}
	return items, sc.Err()
}

func init() {
	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
