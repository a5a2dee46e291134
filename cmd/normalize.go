package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/lead-intake/internal/harvest"
	"github.com/sells-group/lead-intake/internal/phone"
)

var (
	normalizeLabel   string
	normalizeExtract bool
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize [tokens...]",
	Short: "Show how phone tokens are normalized",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens := args
		if normalizeExtract {
			tokens = harvest.ExtractTokens(strings.Join(args, " "))
		}
		printCandidates(cmd.OutOrStdout(), tokens, normalizeLabel)
		return nil
	},
}

func printCandidates(w io.Writer, tokens []string, label string) {
	for _, tok := range tokens {
		c, ok := phone.Normalize(tok, label)
		if !ok {
			fmt.Fprintf(w, "%q\trejected\n", tok)
			continue
		}
		fmt.Fprintf(w, "%q\tdigits=%s display=%q ext=%s valid=%t line=%s flags=[%s]\n",
			tok, c.Digits, c.Display, c.Extension, c.Valid,
			harvest.LineType(label), strings.Join(c.Flags, ", "))
	}
}

func init() {
	normalizeCmd.Flags().StringVar(&normalizeLabel, "label", "", "context label, e.g. Fax or Sec Ph")
	normalizeCmd.Flags().BoolVar(&normalizeExtract, "extract", false, "treat args as free text and extract tokens first")
	rootCmd.AddCommand(normalizeCmd)
}
