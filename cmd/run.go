package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intake/internal/harvest"
	"github.com/sells-group/lead-intake/internal/report"
	"github.com/sells-group/lead-intake/internal/runner"
)

var (
	runInput  string
	runOutput string
	runLimit  int
	runToday  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Summarize harvested leads and write the workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initIntake(cfg, "run")
		if err != nil {
			return err
		}
		today, err := parseToday(runToday)
		if err != nil {
			return err
		}

		rc := runnerConfig(cfg, env.Rules, runLimit, today)
		output := runOutput
		if output == "" {
			output = defaultOutputPath(cfg.Report.OutputDir, cfg.Report.TitlePrefix, time.Now())
		}

		return runLeads(cmd.Context(), rc, harvest.NewSource(runInput), output, cmd.OutOrStdout())
	},
}

// runLeads runs one job from src, writes the workbook to output and prints
// a line per lead to w.
func runLeads(ctx context.Context, rc runner.Config, src harvest.Source, output string, w io.Writer) error {
	res, err := runner.New(rc, nil).RunSource(ctx, uuid.New(), src)
	if err != nil {
		return err
	}

	for _, s := range res.Summaries {
		fmt.Fprintf(w, "%s  %-30s  $%10s  listed=%d extra=%d\n",
			report.Glyph(s.Badge), s.Name, s.MonthlyPremiumTotal.StringFixed(2),
			len(s.Phones.Primary), len(s.Phones.Extra))
	}
	for _, e := range res.Errors {
		fmt.Fprintf(w, "skipped lead %d (%s): %s\n", e.Index, e.Name, e.Error)
	}

	if err := report.WriteFile(output, res.Summaries); err != nil {
		return eris.Wrap(err, "write report")
	}
	n, total := report.Totals(res.Summaries)
	fmt.Fprintf(w, "%d leads, $%s monthly premium -> %s\n", n, total.StringFixed(2), output)

	zap.L().Info("run complete",
		zap.String("output", output),
		zap.Int("leads", n),
		zap.Int("errors", len(res.Errors)),
	)
	return nil
}

func defaultOutputPath(dir, prefix string, now time.Time) string {
	if prefix == "" {
		prefix = "Leads"
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s.xlsx", prefix, now.Format("2006-01-02-150405")))
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "leads file (json/yaml) or http(s) URL")
	runCmd.Flags().StringVar(&runOutput, "output", "", "workbook path (default under report.output_dir)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "max leads to process, negative for no cap (default batch.max_leads)")
	runCmd.Flags().StringVar(&runToday, "today", "", "evaluation date YYYY-MM-DD (default today)")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}
