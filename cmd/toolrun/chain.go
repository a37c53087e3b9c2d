package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/toolrun/internal/engine"
	"github.com/jackzampolin/toolrun/internal/output"
	"github.com/jackzampolin/toolrun/internal/tool"
	"github.com/jackzampolin/toolrun/internal/toolerr"
)

var chainSave bool

var chainCmd = &cobra.Command{
	Use:   "chain <file.json|->",
	Short: "Execute a sequence of dependent invocations",
	Long: `Execute a chain: steps run in order, and a step with
use_previous_result takes the first output line of an earlier step as its
path. The strategy decides what happens when a step fails:

  fail_fast          stop at the failing step (default)
  continue_on_error  record the failure and keep going
  retry              re-run the step max_retries times, sleeping backoff

Example chain:
  {
    "strategy": "retry", "max_retries": 2, "backoff": "500ms",
    "steps": [
      {"invocation": {"kind": "file_search", "params": {"pattern": "*.go"}}},
      {"invocation": {"kind": "file_read", "params": {}}, "use_previous_result": true}
    ]
  }`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		var chain engine.Chain
		if err := json.Unmarshal(data, &chain); err != nil {
			return toolerr.NewParse(args[0], "invalid chain", err)
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, runErr := a.engine.ExecuteChain(cmd.Context(), chain)

		views := make([]runView, 0, len(res.Results)+1)
		for i, r := range res.Results {
			views = append(views, newRunView(i, chain.Steps[i].Invocation, r, nil))
		}
		if te, ok := toolerr.As(runErr); ok && te.Kind == toolerr.KindChainExecution && te.Step < len(chain.Steps) {
			cause := error(te)
			if te.Err != nil {
				cause = te.Err
			}
			views = append(views, newRunView(te.Step, chain.Steps[te.Step].Invocation, tool.Result{}, cause))
		}

		rep := newReport(a, res.ID, views)
		if chainSave {
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
			return fmt.Errorf("chain %s: %w", res.ID, runErr)
		}
		return nil
	},
}

func init() {
	chainCmd.Flags().BoolVar(&chainSave, "save", false, "save results under the home runs directory")
	rootCmd.AddCommand(chainCmd)
}
