package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/toolrun/internal/output"
	"github.com/jackzampolin/toolrun/internal/tool"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the tool kinds toolrun can execute",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var views kindsView
		for _, k := range tool.Kinds() {
			views = append(views, kindView{Kind: k, Network: k.Network()})
		}
		return output.Print(views)
	},
}

func init() {
	rootCmd.AddCommand(kindsCmd)
}
