package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/lead-intake/internal/badge"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Badge rule file tools",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a badge rule file and print its evaluation order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := badge.LoadRules(args[0])
		if err != nil {
			return err
		}
		printSteps(cmd.OutOrStdout(), rules)
		return nil
	},
}

func printSteps(w io.Writer, rules badge.Rules) {
	for i, s := range rules.Steps() {
		fmt.Fprintf(w, "%d. %s\n", i+1, s)
	}
	fmt.Fprintf(w, "otherwise -> %s\n", badge.White)
}

func init() {
	rulesCmd.AddCommand(rulesCheckCmd)
	rootCmd.AddCommand(rulesCmd)
}
