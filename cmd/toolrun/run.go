package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/toolrun/internal/output"
	"github.com/jackzampolin/toolrun/internal/tool"
)

var runFile string

var runCmd = &cobra.Command{
	Use:   "run [kind] [params-json]",
	Short: "Execute a single tool invocation",
	Long: `Execute one tool invocation through the engine.

The invocation is given either as a kind and a JSON parameter object, or
as a full envelope ({"kind": ..., "params": {...}}) read from --file
("-" for stdin).

Examples:
  toolrun run file_read '{"path": "README.md"}'
  toolrun run list_directory
  toolrun run execute_command '{"command": "go test ./..."}' -o text
  echo '{"kind":"web_search","params":{"query":"golang"}}' | toolrun run -f -`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		inv, err := invocationFromArgs(cmd.InOrStdin(), args, runFile)
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.engine.Execute(cmd.Context(), inv)
		if perr := output.Print(newRunView(0, inv, res, err)); perr != nil {
			return perr
		}
		return err
	},
}

func init() {
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "read the invocation envelope from a file (- for stdin)")
	rootCmd.AddCommand(runCmd)
}

// invocationFromArgs builds the invocation from positional args or an
// envelope file.
func invocationFromArgs(stdin io.Reader, args []string, file string) (tool.Invocation, error) {
	if file != "" {
		if len(args) > 0 {
			return tool.Invocation{}, fmt.Errorf("--file cannot be combined with positional arguments")
		}
		data, err := readInput(stdin, file)
		if err != nil {
			return tool.Invocation{}, err
		}
		return tool.Parse(data)
	}
	if len(args) == 0 {
		return tool.Invocation{}, fmt.Errorf("a tool kind or --file is required")
	}
	var raw json.RawMessage
	if len(args) == 2 {
		raw = json.RawMessage(strings.TrimSpace(args[1]))
	}
	return tool.ParseParams(tool.Kind(args[0]), raw)
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
